// Package supervisor runs the tick stream and carries out operator and
// end-of-day commands: flatten, reset, mode switch and pause.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/your-org/trigger-trader/internal/alert"
	"github.com/your-org/trigger-trader/internal/control"
	"github.com/your-org/trigger-trader/internal/event"
	"github.com/your-org/trigger-trader/internal/feed"
	"github.com/your-org/trigger-trader/internal/metrics"
	"github.com/your-org/trigger-trader/pkg/logger"
	"github.com/your-org/trigger-trader/pkg/queue"
)

// Strategy is the part of the strategy engine the supervisor drives.
type Strategy interface {
	Reset(ctx context.Context) error
	LastPrice() (float64, bool)
}

// Risk is the part of the risk gate the supervisor drives.
type Risk interface {
	ResetDaily(ctx context.Context) error
	OpenPosition() (qty int, avgPrice float64)
}

// ModeSetter is told about every mode change: the order router and the
// persisted mode file.
type ModeSetter interface {
	SetMode(m event.Mode)
}

// ModeSetterFunc adapts a function to ModeSetter.
type ModeSetterFunc func(m event.Mode)

// SetMode calls f(m).
func (f ModeSetterFunc) SetMode(m event.Mode) { f(m) }

// Options tunes the supervisor.
type Options struct {
	Symbol            string
	PollInterval      time.Duration
	ResetSettle       time.Duration
	ModeSwitchGrace   time.Duration
	RestartDelay      time.Duration
	EnableManualReset bool
}

// Deps are the collaborators the supervisor needs. Notifier may be nil.
type Deps struct {
	Sources  map[event.Mode]feed.Source
	Ticks    *queue.Queue[event.Tick]
	Signals  *queue.Queue[event.OrderSignal]
	Strategy Strategy
	Risk     Risk
	Bus      control.Bus
	Modes    []ModeSetter
	Notifier alert.Notifier
}

type streamResult struct {
	gen int
	err error
}

type stream struct {
	gen    int
	mode   event.Mode
	cancel context.CancelFunc
	done   chan struct{}
}

// Supervisor owns the active tick stream and the pause flag.
type Supervisor struct {
	opts Options
	deps Deps

	mode   atomic.Value // event.Mode in effect for orders and telemetry
	paused atomic.Bool

	resetMu  sync.Mutex
	streamMu sync.Mutex
	current  *stream
	gen      int
	results  chan streamResult
	now      func() time.Time
}

// New creates a Supervisor that starts in mode.
func New(opts Options, deps Deps, mode event.Mode) *Supervisor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.ModeSwitchGrace <= 0 {
		opts.ModeSwitchGrace = 2 * time.Second
	}
	if opts.RestartDelay <= 0 {
		opts.RestartDelay = time.Second
	}
	if deps.Notifier == nil {
		deps.Notifier = alert.NewNoOpNotifier()
	}
	s := &Supervisor{
		opts:    opts,
		deps:    deps,
		results: make(chan streamResult, 1),
		now:     time.Now,
	}
	s.mode.Store(mode)
	metrics.SetFeedMode(opts.Symbol, string(mode))
	return s
}

// Mode returns the mode currently in effect.
func (s *Supervisor) Mode() event.Mode {
	return s.mode.Load().(event.Mode)
}

// Paused reports whether beat evaluation is suspended.
func (s *Supervisor) Paused() bool {
	return s.paused.Load()
}

// SetPaused toggles beat evaluation.
func (s *Supervisor) SetPaused(p bool) {
	if s.paused.Swap(p) != p {
		if p {
			logger.Info("[CONTROL] paused")
		} else {
			logger.Info("[CONTROL] resumed")
		}
	}
}

// NoteMode records a mode change made by the feed itself (watchdog
// fallback, successful live handshake) so orders and telemetry follow it.
// Callbacks from a stream that is no longer current are ignored. A fall
// back from live is announced on the notifier.
func (s *Supervisor) NoteMode(from, m event.Mode) {
	if cur := s.streamMode(); cur != from {
		return
	}
	prev := s.Mode()
	s.applyMode(m)
	if prev == event.ModeLive && m == event.ModeSim {
		s.notify(fmt.Sprintf("%s live feed lost; trading on the %s feed", s.opts.Symbol, m))
	}
}

func (s *Supervisor) notify(msg string) {
	if err := s.deps.Notifier.Send(msg); err != nil {
		logger.Debugf("[MODE] notifier: %v", err)
	}
}

func (s *Supervisor) applyMode(m event.Mode) {
	prev := s.Mode()
	s.mode.Store(m)
	for _, ms := range s.deps.Modes {
		ms.SetMode(m)
	}
	metrics.SetFeedMode(s.opts.Symbol, string(m))
	if prev != m {
		logger.Infof("[MODE] %s -> %s", prev, m)
	}
}

// Run starts the stream for the current mode and polls the control bus
// until ctx is done.
func (s *Supervisor) Run(ctx context.Context) error {
	if req, ok := s.takeModeRequest(); ok {
		if _, has := s.deps.Sources[req]; has {
			logger.Infof("[CONTROL] applying pending %s mode request", req)
			s.mode.Store(req)
		} else {
			logger.Warnf("[MODE] no %s source configured; staying in %s", req, s.Mode())
		}
	}
	s.applyMode(s.Mode())
	if err := s.startStream(ctx, s.Mode()); err != nil {
		return err
	}

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.stopStream()
			return nil
		case res := <-s.results:
			if err := s.onStreamExit(ctx, res); err != nil {
				return err
			}
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

// SwitchMode cancels the active stream, waiting up to the grace period for
// it to unwind, and starts the source for m. Orders follow immediately.
func (s *Supervisor) SwitchMode(ctx context.Context, m event.Mode) error {
	if _, ok := s.deps.Sources[m]; !ok {
		logger.Warnf("[MODE] no %s source configured; staying in %s", m, s.Mode())
		return nil
	}
	logger.Infof("[MODE] switching feed to %s", m)
	s.stopStream()
	s.applyMode(m)
	return s.startStream(ctx, m)
}

// Flatten injects a closing signal for the open position at the signal
// stage, so it still passes the risk gate. It reports whether one was sent.
func (s *Supervisor) Flatten() bool {
	qty, _ := s.deps.Risk.OpenPosition()
	if qty == 0 {
		return false
	}
	size := qty
	if size < 0 {
		size = -size
	}
	price, _ := s.deps.Strategy.LastPrice()
	sig := event.OrderSignal{
		Time:      s.now(),
		Symbol:    s.opts.Symbol,
		Side:      event.SideForPosition(qty).Opposite(),
		Qty:       size,
		Reason:    event.ReasonFlatten,
		BasePrice: price,
	}
	logger.Infof("[FLATTEN] %s %d to close position %d", sig.Side, sig.Qty, qty)
	s.deps.Signals.Push(sig)
	return true
}

// FlattenAndReset flattens, waits for the closing fill to settle, then
// resets the ladder state and the daily PnL. Position is left to the fills.
func (s *Supervisor) FlattenAndReset(ctx context.Context) error {
	s.resetMu.Lock()
	defer s.resetMu.Unlock()

	if s.Flatten() && s.opts.ResetSettle > 0 {
		t := time.NewTimer(s.opts.ResetSettle)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	if err := s.deps.Strategy.Reset(ctx); err != nil {
		return err
	}
	if err := s.deps.Risk.ResetDaily(ctx); err != nil {
		return err
	}
	logger.Info("[RESET] strategy state and daily PnL reset")
	return nil
}

func (s *Supervisor) poll(ctx context.Context) {
	bus := s.deps.Bus

	if p, err := bus.Paused(); err != nil {
		logger.Warnf("[CONTROL] failed to read pause flag: %v", err)
	} else {
		s.SetPaused(p)
	}

	if req, ok := s.takeModeRequest(); ok && req != s.Mode() {
		if err := s.SwitchMode(ctx, req); err != nil {
			logger.Errorf("[CONTROL] mode switch to %s failed: %v", req, err)
		}
	}

	requested, err := bus.ResetRequested()
	if err != nil {
		logger.Warnf("[CONTROL] failed to read reset request: %v", err)
		return
	}
	if !requested {
		return
	}
	if !s.opts.EnableManualReset {
		logger.Warn("[CONTROL] manual reset is disabled; ignoring request")
	} else if err := s.FlattenAndReset(ctx); err != nil {
		logger.Errorf("[CONTROL] reset failed: %v", err)
		return
	}
	if err := bus.ClearReset(); err != nil {
		logger.Warnf("[CONTROL] failed to clear reset request: %v", err)
	}
}

// takeModeRequest reads and consumes a pending mode request.
func (s *Supervisor) takeModeRequest() (event.Mode, bool) {
	bus := s.deps.Bus
	req, ok, err := bus.ModeRequest()
	if err != nil {
		logger.Warnf("[CONTROL] failed to read mode request: %v", err)
		return "", false
	}
	if !ok {
		return "", false
	}
	if err := bus.ClearModeRequest(); err != nil {
		logger.Warnf("[CONTROL] failed to clear mode request: %v", err)
	}
	return req, true
}

func (s *Supervisor) startStream(ctx context.Context, m event.Mode) error {
	src, ok := s.deps.Sources[m]
	if !ok {
		return errors.New("no tick source for mode " + string(m))
	}
	s.gen++
	child, cancel := context.WithCancel(ctx)
	st := &stream{gen: s.gen, mode: m, cancel: cancel, done: make(chan struct{})}
	s.setCurrent(st)

	go func() {
		err := src.Stream(child, s.opts.Symbol, s.deps.Ticks)
		close(st.done)
		select {
		case s.results <- streamResult{gen: st.gen, err: err}:
		case <-ctx.Done():
		}
	}()
	logger.Infof("[FEED] %s stream started for %s", m, s.opts.Symbol)
	return nil
}

func (s *Supervisor) stopStream() {
	st := s.swapCurrent(nil)
	if st == nil {
		return
	}
	st.cancel()
	t := time.NewTimer(s.opts.ModeSwitchGrace)
	defer t.Stop()
	select {
	case <-st.done:
	case <-t.C:
		logger.Warnf("[FEED] %s stream did not stop within %s", st.mode, s.opts.ModeSwitchGrace)
	}
}

// onStreamExit restarts a stream that returned on its own, as the venue
// stream does after a connection-limit cooldown. Errors are fatal.
func (s *Supervisor) onStreamExit(ctx context.Context, res streamResult) error {
	st := s.currentStream()
	if st == nil || st.gen != res.gen || ctx.Err() != nil {
		return nil
	}
	if res.err != nil {
		return res.err
	}
	logger.Warnf("[FEED] %s stream exited; restarting in %s", st.mode, s.opts.RestartDelay)
	st.cancel()
	s.swapCurrent(nil)

	t := time.NewTimer(s.opts.RestartDelay)
	select {
	case <-ctx.Done():
		t.Stop()
		return nil
	case <-t.C:
	}
	return s.startStream(ctx, st.mode)
}

func (s *Supervisor) setCurrent(st *stream) {
	s.streamMu.Lock()
	s.current = st
	s.streamMu.Unlock()
}

func (s *Supervisor) swapCurrent(st *stream) *stream {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()
	prev := s.current
	s.current = st
	return prev
}

func (s *Supervisor) currentStream() *stream {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()
	return s.current
}

func (s *Supervisor) streamMode() event.Mode {
	if st := s.currentStream(); st != nil {
		return st.mode
	}
	return ""
}
