// Package main is the operator CLI: it writes requests to the control bus
// and prints the bot's last published state.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/your-org/trigger-trader/internal/config"
	"github.com/your-org/trigger-trader/internal/control"
	"github.com/your-org/trigger-trader/internal/event"
	"github.com/your-org/trigger-trader/internal/telemetry"
)

const usage = `usage: ctl [-config path | -dir runtime] [-symbol SYM] <command>

Without -symbol, a multi-symbol configuration applies the command to every
symbol.

commands:
  pause               suspend beat evaluation
  resume              resume beat evaluation
  reset [-wait 30s]   flatten and reset strategy state and daily PnL
  mode live|sim       switch the tick source and order routing
  status              print the last published state
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := fs.String("config", "", "Path to the configuration file (for runtime_dir)")
	dir := fs.String("dir", "", "Runtime directory (overrides config)")
	symbol := fs.String("symbol", "", "Symbol to address in a multi-symbol run")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	dirs, err := runtimeDirs(*configPath, *dir, *symbol)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	buses := make([]*control.FileBus, 0, len(dirs))
	for _, d := range dirs {
		bus, err := control.NewFileBus(d)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		buses = append(buses, bus)
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "pause", "resume":
		for _, bus := range buses {
			if err := bus.SetPaused(cmd == "pause"); err != nil {
				fmt.Fprintf(stderr, "Failed to %s: %v\n", cmd, err)
				return 1
			}
		}
		fmt.Fprintf(stdout, "%s requested\n", cmd)
	case "mode":
		if len(rest) != 1 {
			fmt.Fprint(stderr, usage)
			return 2
		}
		m, ok := event.ParseMode(rest[0])
		if !ok {
			fmt.Fprintf(stderr, "Unknown mode %q: want live or sim\n", rest[0])
			return 2
		}
		for _, bus := range buses {
			if err := bus.RequestMode(m); err != nil {
				fmt.Fprintf(stderr, "Failed to request mode: %v\n", err)
				return 1
			}
		}
		fmt.Fprintf(stdout, "mode %s requested\n", m)
	case "reset":
		return reset(buses, rest, stdout, stderr)
	case "status":
		for i, d := range dirs {
			if i > 0 {
				fmt.Fprintln(stdout)
			}
			if code := status(d, stdout, stderr); code != 0 {
				return code
			}
		}
	default:
		fmt.Fprintf(stderr, "Unknown command %q\n", cmd)
		fs.Usage()
		return 2
	}
	return 0
}

// runtimeDirs resolves the runtime directories a command addresses. An
// explicit -dir is used as is, or joined with -symbol.
func runtimeDirs(configPath, dir, symbol string) ([]string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if dir != "" {
		if symbol != "" {
			dir = filepath.Join(dir, symbol)
		}
		return []string{dir}, nil
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	insts, err := cfg.Instances()
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, inst := range insts {
		if symbol == "" || inst.Symbol == symbol {
			dirs = append(dirs, inst.RuntimeDir)
		}
	}
	if len(dirs) == 0 {
		return nil, fmt.Errorf("symbol %s is not configured", symbol)
	}
	return dirs, nil
}

func reset(buses []*control.FileBus, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	fs.SetOutput(stderr)
	wait := fs.Duration("wait", 0, "Wait up to this long for the bot to carry out the reset")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	for _, bus := range buses {
		if err := bus.RequestReset(); err != nil {
			fmt.Fprintf(stderr, "Failed to request reset: %v\n", err)
			return 1
		}
	}
	fmt.Fprintln(stdout, "reset requested")
	if *wait <= 0 {
		return 0
	}

	deadline := time.Now().Add(*wait)
	for time.Now().Before(deadline) {
		pending := false
		for _, bus := range buses {
			p, err := bus.ResetRequested()
			if err != nil {
				fmt.Fprintf(stderr, "Failed to read reset request: %v\n", err)
				return 1
			}
			pending = pending || p
		}
		if !pending {
			fmt.Fprintln(stdout, "reset done")
			return 0
		}
		time.Sleep(100 * time.Millisecond)
	}
	fmt.Fprintf(stderr, "reset still pending after %s\n", *wait)
	return 1
}

func status(dir string, stdout, stderr io.Writer) int {
	s, err := telemetry.ReadState(dir)
	if errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(stdout, "No state published yet.")
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "Failed to read state: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "%-14s %s\n", "Symbol:", s.Symbol)
	fmt.Fprintf(stdout, "%-14s %s\n", "Mode:", s.Mode)
	fmt.Fprintf(stdout, "%-14s %t\n", "Paused:", s.Paused)
	fmt.Fprintf(stdout, "%-14s %s\n", "Phase:", s.Phase)
	fmt.Fprintf(stdout, "%-14s %s\n", "Last price:", formatPrice(s.LastPrice))
	fmt.Fprintf(stdout, "%-14s %s\n", "Base price:", formatPrice(s.BasePrice))
	fmt.Fprintf(stdout, "%-14s %d @ %.2f\n", "Position:", s.Position, s.AvgPrice)
	fmt.Fprintf(stdout, "%-14s %.2f\n", "Realized PnL:", s.RealizedPnL)
	fmt.Fprintf(stdout, "%-14s %.2f\n", "Daily PnL:", s.DailyPnL)
	fmt.Fprintf(stdout, "%-14s %s\n", "Updated:", s.Timestamp.Format(time.RFC3339))

	trades, err := telemetry.ReadTrades(dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(stderr, "Failed to read trades: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "%-14s %d (%d executions)\n", "Trade log net:", telemetry.NetPosition(trades), len(trades))
	return 0
}

func formatPrice(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *p)
}
