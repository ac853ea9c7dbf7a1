// Package main is the entry point of the trigger trader.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/your-org/trigger-trader/internal/alert"
	"github.com/your-org/trigger-trader/internal/config"
	"github.com/your-org/trigger-trader/internal/dbwriter"
	"github.com/your-org/trigger-trader/internal/http/handler"
	"github.com/your-org/trigger-trader/internal/supervisor"
	"github.com/your-org/trigger-trader/internal/telemetry"
	"github.com/your-org/trigger-trader/pkg/logger"
)

var newNotifier = alert.New

func main() {
	// --- Configuration ---
	configPath := flag.String("config", "config/config.yaml", "Path to the configuration file")
	replayPath := flag.String("replay", "", "Replay ticks from a CSV file (ts,price,size) instead of the simulator")
	speed := flag.Float64("speed", 1, "Replay speed multiplier; 0 replays as fast as possible")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger ---
	logger.SetGlobalLogLevel(cfg.LogLevel)
	defer logger.Sync()
	logger.Info("Trigger trader starting...")
	logger.Infof("Loaded configuration from: %s", *configPath)
	if cfg.MultiSymbol() {
		for _, sc := range cfg.Symbols {
			logger.Infof("Target symbol: %s (%s)", sc.Symbol, sc.Venue)
		}
	} else {
		logger.Infof("Target symbol: %s", cfg.Symbol)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *replayPath, *speed); err != nil {
		logger.Errorf("Trigger trader stopped: %v", err)
		os.Exit(1)
	}
	logger.Info("Trigger trader shut down gracefully.")
}

func run(ctx context.Context, cfg *config.Config, replayPath string, speed float64) error {
	insts, err := cfg.Instances()
	if err != nil {
		return err
	}
	if replayPath != "" && len(insts) > 1 {
		return errors.New("-replay needs a single-symbol configuration")
	}

	// --- Optional sinks ---
	db, err := dbwriter.New(ctx, cfg.Database, logger.Zap())
	if err != nil {
		return fmt.Errorf("failed to initialize TimescaleDB writer: %w", err)
	}
	defer db.Close()

	notifier, err := newNotifier(cfg.Alert, logger.Zap())
	if err != nil {
		logger.Warnf("Telegram notifier disabled: %v", err)
		notifier = alert.NewNoOpNotifier()
	}
	defer notifier.Close()

	// --- Pipelines ---
	pipelines := make([]*pipeline, 0, len(insts))
	defer func() {
		for _, p := range pipelines {
			p.close()
		}
	}()
	var tasks []supervisor.Task
	for _, inst := range insts {
		p, err := newPipeline(inst, sinks{db: db, notifier: notifier}, replayPath, speed)
		if err != nil {
			return fmt.Errorf("%s: %w", inst.Symbol, err)
		}
		pipelines = append(pipelines, p)
		tasks = append(tasks, p.tasks(len(insts) > 1)...)
	}

	states := func() []telemetry.State {
		out := make([]telemetry.State, len(pipelines))
		for i, p := range pipelines {
			out[i] = p.state()
		}
		return out
	}
	tasks = append(tasks, supervisor.Task{Name: "http", Run: func(ctx context.Context) error {
		return serveHTTP(ctx, cfg.HTTP.Addr, handler.NewRouter(states))
	}})

	if err := supervisor.RunTasks(ctx, tasks...); err != nil {
		if sendErr := notifier.Send(fmt.Sprintf("trigger trader stopped: %v", err)); sendErr != nil {
			logger.Warnf("failed to send stop notice: %v", sendErr)
		}
		return err
	}
	return nil
}

func serveHTTP(ctx context.Context, addr string, h http.Handler) error {
	if addr == "" {
		<-ctx.Done()
		return nil
	}
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP server starting on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
