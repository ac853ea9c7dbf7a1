package main

import (
	"context"
	"os"
	"time"

	"github.com/your-org/trigger-trader/internal/alert"
	"github.com/your-org/trigger-trader/internal/config"
	"github.com/your-org/trigger-trader/internal/control"
	"github.com/your-org/trigger-trader/internal/dbwriter"
	"github.com/your-org/trigger-trader/internal/engine"
	"github.com/your-org/trigger-trader/internal/event"
	"github.com/your-org/trigger-trader/internal/exchange/alpaca"
	"github.com/your-org/trigger-trader/internal/feed"
	"github.com/your-org/trigger-trader/internal/risk"
	"github.com/your-org/trigger-trader/internal/strategy"
	"github.com/your-org/trigger-trader/internal/supervisor"
	"github.com/your-org/trigger-trader/internal/telemetry"
	"github.com/your-org/trigger-trader/pkg/logger"
	"github.com/your-org/trigger-trader/pkg/queue"
)

// sinks are shared by every symbol's pipeline.
type sinks struct {
	db       dbwriter.DBWriter
	notifier alert.Notifier
}

// pipeline is the full tick-to-execution chain for one symbol, with its own
// runtime directory and control bus.
type pipeline struct {
	cfg      *config.Config
	recorder *telemetry.Recorder
	strat    *strategy.Engine
	gate     *risk.Gate
	router   *engine.Router
	sup      *supervisor.Supervisor
	journal  *supervisor.Journal
	eod      *supervisor.EODWatcher
}

func newPipeline(cfg *config.Config, out sinks, replayPath string, speed float64) (*pipeline, error) {
	hasCredentials := cfg.Feed.Alpaca.Key != "" && cfg.Feed.Alpaca.Secret != ""

	// --- Runtime files ---
	recorder, err := telemetry.NewRecorder(cfg.RuntimeDir, bool(cfg.Telemetry.TradesCSV), logger.Zap())
	if err != nil {
		return nil, err
	}
	bus, err := control.NewFileBus(cfg.RuntimeDir)
	if err != nil {
		recorder.Close()
		return nil, err
	}

	mode := initialMode(cfg, hasCredentials)
	logger.Infof("[%s] starting in %s mode, runtime dir %s", cfg.Symbol, mode, cfg.RuntimeDir)

	p := &pipeline{cfg: cfg, recorder: recorder}

	// --- Queues and stages ---
	ticks := queue.New[event.Tick]()
	signals := queue.New[event.OrderSignal]()
	approvals := queue.New[event.ApprovedOrder]()
	executions := queue.New[event.Execution]()

	lastPrice := func() (float64, bool) { return p.strat.LastPrice() }

	p.gate = risk.NewGate(risk.LimitsFromConfig(cfg), signals, approvals, lastPrice)
	p.strat = strategy.NewEngine(strategy.OptionsFromConfig(cfg), ticks, signals, p.gate, func() bool { return p.sup.Paused() })

	var live engine.ExecutionEngine
	if hasCredentials {
		client := alpaca.NewClient(cfg.Feed.Alpaca.Key, cfg.Feed.Alpaca.Secret, cfg.Feed.Alpaca.BaseURL, cfg.Feed.Alpaca.OrderTimeout)
		live = engine.NewLiveExecutionEngine(client)
	}
	p.router = engine.NewRouter(live, engine.NewSimExecutionEngine(lastPrice), lastPrice, approvals, executions, mode)
	p.router.SetTimeout(cfg.Feed.Alpaca.OrderTimeout)

	// --- Tick sources ---
	var simSource feed.Source = feed.NewSimulator(cfg.Sim, 0)
	if replayPath != "" {
		logger.Infof("[%s] replaying ticks from %s at %.1fx", cfg.Symbol, replayPath, speed)
		simSource = feed.NewReplay(replayPath, speed)
	}
	sources := map[event.Mode]feed.Source{event.ModeSim: simSource}
	if hasCredentials {
		streamCfg := alpaca.StreamConfig{
			URL:           cfg.Feed.Alpaca.WSURL,
			Key:           cfg.Feed.Alpaca.Key,
			Secret:        cfg.Feed.Alpaca.Secret,
			Channel:       alpaca.ParseChannel(cfg.Feed.Alpaca.Channel),
			WatchdogGrace: cfg.Feed.WatchdogGrace,
			LogTicks:      bool(cfg.Feed.LogTicks),
			OnMode:        func(m event.Mode) { p.sup.NoteMode(event.ModeLive, m) },
		}
		if cfg.Feed.SimFallback {
			streamCfg.Fallback = simSource
		}
		sources[event.ModeLive] = alpaca.NewStreamClient(streamCfg)
	}

	persistMode := supervisor.ModeSetterFunc(func(m event.Mode) {
		if err := recorder.WriteMode(m); err != nil {
			logger.Warnf("[%s] failed to persist mode: %v", cfg.Symbol, err)
		}
	})
	p.sup = supervisor.New(supervisor.Options{
		Symbol:            cfg.Symbol,
		PollInterval:      cfg.Control.PollInterval,
		ResetSettle:       cfg.Control.ResetSettle,
		ModeSwitchGrace:   cfg.Control.ModeSwitchGrace,
		EnableManualReset: bool(cfg.Control.EnableManualReset),
	}, supervisor.Deps{
		Sources:  sources,
		Ticks:    ticks,
		Signals:  signals,
		Strategy: p.strat,
		Risk:     p.gate,
		Bus:      bus,
		Modes:    []supervisor.ModeSetter{p.router, persistMode},
		Notifier: out.notifier,
	}, mode)

	p.journal = supervisor.NewJournal(executions, p.gate, recorder, out.db, out.notifier)
	p.gate.SetFillHook(p.journal.OnLedger)

	recorder.OnPrice(func(s telemetry.PriceSample) {
		out.db.SavePriceSample(dbwriter.PriceSample{Time: s.Timestamp, Symbol: cfg.Symbol, Price: s.Price})
	})

	if cfg.EOD.Enabled {
		loc, err := cfg.Location()
		if err != nil {
			recorder.Close()
			return nil, err
		}
		hour, minute, err := cfg.EODClock()
		if err != nil {
			recorder.Close()
			return nil, err
		}
		logger.Infof("[%s] end-of-day flatten scheduled at %02d:%02d %s", cfg.Symbol, hour, minute, loc)
		p.eod = &supervisor.EODWatcher{Location: loc, Hour: hour, Minute: minute, OnClose: p.sup.FlattenAndReset}
	}
	return p, nil
}

// tasks lists the pipeline's long-running components. Names carry the
// symbol when several pipelines share the process.
func (p *pipeline) tasks(qualify bool) []supervisor.Task {
	name := func(n string) string {
		if qualify {
			return p.cfg.Symbol + "/" + n
		}
		return n
	}
	lastPrice := func() (float64, bool) { return p.strat.LastPrice() }
	tasks := []supervisor.Task{
		{Name: name("strategy"), Run: p.strat.Run},
		{Name: name("risk"), Run: p.gate.Run},
		{Name: name("router"), Run: p.router.Run},
		{Name: name("journal"), Run: p.journal.Run},
		{Name: name("supervisor"), Run: p.sup.Run},
		{Name: name("telemetry"), Run: func(ctx context.Context) error {
			return p.recorder.Run(ctx, p.cfg.Telemetry.StateInterval, p.cfg.Telemetry.PriceInterval, p.state, lastPrice)
		}},
	}
	if p.eod != nil {
		tasks = append(tasks, supervisor.Task{Name: name("eod"), Run: p.eod.Run})
	}
	return tasks
}

func (p *pipeline) state() telemetry.State {
	return buildState(p.cfg.Symbol, p.strat, p.gate, p.sup)
}

// close writes the final state and releases the runtime files.
func (p *pipeline) close() {
	if err := p.recorder.WriteState(p.state()); err != nil {
		logger.Warnf("[%s] failed to write final state: %v", p.cfg.Symbol, err)
	}
	if err := p.recorder.Close(); err != nil {
		logger.Warnf("[%s] failed to close runtime files: %v", p.cfg.Symbol, err)
	}
}

// initialMode is the configured mode, overridden by the mode persisted on the
// last run unless FORCE_SIM pinned the configuration to sim. Live without
// credentials degrades to sim.
func initialMode(cfg *config.Config, hasCredentials bool) event.Mode {
	mode := event.Mode(cfg.Feed.Mode)
	if os.Getenv("FORCE_SIM") == "" {
		if persisted, ok := telemetry.ReadMode(cfg.RuntimeDir); ok {
			mode = persisted
		}
	}
	if mode == event.ModeLive && !hasCredentials {
		logger.Warnf("[%s] live mode requested without venue credentials; using sim", cfg.Symbol)
		mode = event.ModeSim
	}
	return mode
}

func buildState(symbol string, strat *strategy.Engine, gate *risk.Gate, sup *supervisor.Supervisor) telemetry.State {
	snap := strat.Snapshot()
	ledger := gate.Snapshot()
	s := telemetry.State{
		Timestamp:       time.Now(),
		Symbol:          symbol,
		Phase:           string(snap.Phase),
		LastPrice:       snap.LastPrice,
		BasePrice:       snap.BasePrice,
		FirstOrderPrice: snap.FirstOrderPrice,
		Cycles:          snap.Cycles,
		Mode:            sup.Mode(),
		Paused:          sup.Paused(),
		Ticks:           snap.Ticks,
		Position:        ledger.Position,
		AvgPrice:        ledger.AvgPrice,
		RealizedPnL:     ledger.RealizedPnL,
		DailyPnL:        ledger.DailyPnL,
	}
	if !snap.LastTickAt.IsZero() {
		age := time.Since(snap.LastTickAt).Seconds()
		s.LastTickAge = &age
	}
	return s
}
