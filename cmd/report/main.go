// Package main prints a session report built from the execution log.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/your-org/trigger-trader/internal/config"
	"github.com/your-org/trigger-trader/internal/report"
	"github.com/your-org/trigger-trader/internal/telemetry"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to the configuration file (for runtime_dir)")
	dir := fs.String("dir", "", "Runtime directory holding trades.jsonl (overrides config)")
	symbol := fs.String("symbol", "", "Symbol to report on; required for a multi-symbol configuration")
	asJSON := fs.Bool("json", false, "Print the report as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	runtimeDir, err := resolveDir(*configPath, *dir, strings.ToUpper(strings.TrimSpace(*symbol)))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	trades, err := telemetry.ReadTrades(runtimeDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(stderr, "Failed to read trades: %v\n", err)
		return 1
	}

	r, err := report.AnalyzeTrades(trades)
	if errors.Is(err, report.ErrNoTrades) {
		fmt.Fprintln(stdout, "No trades recorded.")
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "Failed to analyze trades: %v\n", err)
		return 1
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			fmt.Fprintf(stderr, "Failed to encode report: %v\n", err)
			return 1
		}
		return 0
	}
	if err := r.Write(stdout); err != nil {
		fmt.Fprintf(stderr, "Failed to write report: %v\n", err)
		return 1
	}
	return 0
}

func resolveDir(configPath, dir, symbol string) (string, error) {
	if dir != "" {
		if symbol != "" {
			return filepath.Join(dir, symbol), nil
		}
		return dir, nil
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to load configuration: %w", err)
	}
	if !cfg.MultiSymbol() {
		return cfg.RuntimeDir, nil
	}
	if symbol == "" {
		return "", errors.New("multi-symbol configuration: pass -symbol")
	}
	insts, err := cfg.Instances()
	if err != nil {
		return "", err
	}
	for _, inst := range insts {
		if inst.Symbol == symbol {
			return inst.RuntimeDir, nil
		}
	}
	return "", fmt.Errorf("symbol %s is not configured", symbol)
}
