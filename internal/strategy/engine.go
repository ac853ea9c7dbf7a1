package strategy

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/your-org/trigger-trader/internal/event"
	"github.com/your-org/trigger-trader/internal/metrics"
	"github.com/your-org/trigger-trader/pkg/logger"
	"github.com/your-org/trigger-trader/pkg/queue"
)

// PositionView is a read-only view of the open position, used by the
// protection cycle.
type PositionView interface {
	OpenPosition() (qty int, avgPrice float64)
}

// Snapshot is a read-only copy of the engine state for telemetry.
type Snapshot struct {
	Phase           Phase     `json:"phase"`
	LastPrice       *float64  `json:"last_price"`
	BasePrice       *float64  `json:"base_price"`
	FirstOrderPrice *float64  `json:"first_order_price"`
	Cycles          int       `json:"cycles"`
	Ticks           int64     `json:"ticks"`
	LastTickAt      time.Time `json:"-"`
}

// Engine owns the ladder state. Three goroutines run under Run: the tick
// listener keeps the last price current, the beat loop evaluates the trigger
// bank and is the only writer of the state, and the protection loop watches
// the open position for stop-loss and take-profit exits.
type Engine struct {
	opts      Options
	ticks     *queue.Queue[event.Tick]
	signals   *queue.Queue[event.OrderSignal]
	positions PositionView
	paused    func() bool
	now       func() time.Time

	state LadderState

	lastPrice  atomic.Uint64 // math.Float64bits, zero before the first tick
	lastTickAt atomic.Int64
	tickCount  atomic.Int64
	snap       atomic.Pointer[Snapshot]
	resets     chan chan struct{}
}

// NewEngine creates an Engine reading ticks and writing signals. paused may
// be nil.
func NewEngine(opts Options, ticks *queue.Queue[event.Tick], signals *queue.Queue[event.OrderSignal], positions PositionView, paused func() bool) *Engine {
	if paused == nil {
		paused = func() bool { return false }
	}
	e := &Engine{
		opts:      opts,
		ticks:     ticks,
		signals:   signals,
		positions: positions,
		paused:    paused,
		now:       time.Now,
		state:     NewState(),
		resets:    make(chan chan struct{}),
	}
	e.publish()
	return e
}

// Run blocks until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.listen(ctx) })
	g.Go(func() error { return e.beatLoop(ctx) })
	g.Go(func() error { return e.protectionLoop(ctx) })
	return g.Wait()
}

// LastPrice returns the most recent tick price.
func (e *Engine) LastPrice() (float64, bool) {
	bits := e.lastPrice.Load()
	if bits == 0 {
		return 0, false
	}
	return math.Float64frombits(bits), true
}

// Snapshot returns the state as of the last beat.
func (e *Engine) Snapshot() Snapshot {
	s := *e.snap.Load()
	if p, ok := e.LastPrice(); ok {
		s.LastPrice = &p
	}
	s.Ticks = e.tickCount.Load()
	if ns := e.lastTickAt.Load(); ns != 0 {
		s.LastTickAt = time.Unix(0, ns)
	}
	return s
}

// Reset replaces the ladder state and price history with the IDLE default.
// The request is applied by the beat loop; Reset returns once it has been.
func (e *Engine) Reset(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case e.resets <- done:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) listen(ctx context.Context) error {
	var last float64
	for {
		t, err := e.ticks.Pop(ctx)
		if err != nil {
			return nil
		}
		if t.Price <= 0 {
			continue
		}
		e.lastPrice.Store(math.Float64bits(t.Price))
		e.lastTickAt.Store(e.now().UnixNano())
		e.tickCount.Add(1)
		metrics.TicksTotal.WithLabelValues(t.Symbol).Inc()
		if t.Price != last {
			last = t.Price
			logger.Debugf("[HEARTBEAT] last_price=%.2f", last)
		}
	}
}

func (e *Engine) beatLoop(ctx context.Context) error {
	ticker := time.NewTicker(e.opts.Beat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case done := <-e.resets:
			e.state = NewState()
			e.publish()
			logger.Info("[STRATEGY] state reset to IDLE")
			close(done)
		case <-ticker.C:
			e.beat(e.now())
		}
	}
}

// beat runs one evaluation. Only the beat loop calls it.
func (e *Engine) beat(now time.Time) {
	if e.paused() {
		return
	}
	price, ok := e.LastPrice()
	if !ok {
		return
	}

	next, fires := Evaluate(e.state, now, price, e.opts.Thresholds)
	e.state = next
	for _, f := range fires {
		e.emit(now, f)
	}
	e.publish()
}

func (e *Engine) emit(now time.Time, f Fire) {
	qty := e.opts.Lots[f.Reason]
	if qty <= 0 {
		logger.Debugf("[SIGNAL] %s fired with no lot configured", f.Reason)
		return
	}
	base := f.Base
	if base == 0 {
		base = f.Price
	}
	sig := event.OrderSignal{
		Time:      now,
		Symbol:    e.opts.Symbol,
		Side:      f.Side(),
		Qty:       qty,
		Reason:    f.Reason,
		BasePrice: base,
		FromBase:  f.FromBase,
		FromFirst: f.FromFirst,
	}
	if f.First != 0 {
		sig.FirstOrderPrice = ptr(f.First)
	}

	fromFirst := "-"
	if f.FromFirst != nil {
		fromFirst = formatOffset(*f.FromFirst)
	}
	logger.Infof("[SIGNAL] %s %s %s %d base=%.2f last=%.2f from_base=%s from_first=%s",
		sig.Symbol, sig.Reason, sig.Side, sig.Qty, sig.BasePrice, f.Price, formatOffset(f.FromBase), fromFirst)
	metrics.SignalsTotal.WithLabelValues(e.opts.Symbol, string(sig.Reason)).Inc()
	e.signals.Push(sig)
}

func (e *Engine) protectionLoop(ctx context.Context) error {
	ticker := time.NewTicker(e.opts.ProtectionBeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.protect(e.now())
		}
	}
}

// protect emits a full-size exit when the open position has moved past the
// stop or the take-profit distance from its average entry. Ladder state is
// left untouched.
func (e *Engine) protect(now time.Time) {
	if e.positions == nil {
		return
	}
	price, ok := e.LastPrice()
	if !ok {
		return
	}
	qty, avg := e.positions.OpenPosition()
	if qty == 0 {
		return
	}

	favorable := price - avg
	if qty < 0 {
		favorable = -favorable
	}
	adverse := -favorable

	var reason event.Reason
	switch {
	case reached(adverse, e.opts.StopLoss):
		reason = event.ReasonStopLoss
	case reached(favorable, e.opts.TakeProfit):
		reason = event.ReasonTakeProfit
	default:
		return
	}

	snap := e.snap.Load()
	base := price
	if snap.BasePrice != nil {
		base = *snap.BasePrice
	}
	size := qty
	if size < 0 {
		size = -size
	}
	sig := event.OrderSignal{
		Time:            now,
		Symbol:          e.opts.Symbol,
		Side:            event.SideForPosition(qty).Opposite(),
		Qty:             size,
		Reason:          reason,
		BasePrice:       base,
		FirstOrderPrice: snap.FirstOrderPrice,
		FromBase:        price - base,
	}
	logger.Infof("[PROTECTION] %s %s %s %d @ %.2f (avg entry %.2f, move %+.2f)",
		sig.Symbol, reason, sig.Side, sig.Qty, price, avg, favorable)
	metrics.SignalsTotal.WithLabelValues(e.opts.Symbol, string(reason)).Inc()
	e.signals.Push(sig)
}

func (e *Engine) publish() {
	s := e.state
	snap := &Snapshot{Phase: s.Phase, Cycles: s.Cycles}
	if s.Base != 0 {
		snap.BasePrice = ptr(s.Base)
	}
	if s.First != 0 {
		snap.FirstOrderPrice = ptr(s.First)
	}
	e.snap.Store(snap)
	metrics.LadderPhase.WithLabelValues(e.opts.Symbol).Set(float64(phaseIndex(s.Phase)))
}

func phaseIndex(p Phase) int {
	switch p {
	case T1Window:
		return 1
	case T2Window:
		return 2
	case T3Window:
		return 3
	case T4Window:
		return 4
	case T5Window:
		return 5
	}
	return 0
}

func formatOffset(v float64) string {
	return fmt.Sprintf("%+.2f", v)
}
