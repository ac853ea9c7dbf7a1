// Package risk gates order signals against throttle, exposure and daily loss
// limits, and owns the ledger that accounts every execution.
package risk

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/your-org/trigger-trader/internal/config"
	"github.com/your-org/trigger-trader/internal/event"
	"github.com/your-org/trigger-trader/internal/metrics"
	"github.com/your-org/trigger-trader/pkg/logger"
	"github.com/your-org/trigger-trader/pkg/queue"
)

// Limits configures the gate.
type Limits struct {
	Symbol         string
	MaxPosition    int
	DailyMaxLoss   float64
	ThrottlePerSec float64
	MarkInterval   time.Duration
}

// LimitsFromConfig maps the risk section of the configuration.
func LimitsFromConfig(cfg *config.Config) Limits {
	c := cfg.Risk
	return Limits{
		Symbol:         cfg.Symbol,
		MaxPosition:    c.MaxPosition,
		DailyMaxLoss:   c.DailyMaxLoss,
		ThrottlePerSec: c.ThrottlePerSec,
		MarkInterval:   c.MarkInterval,
	}
}

// PriceFunc reports the last observed price.
type PriceFunc func() (float64, bool)

// Gate consumes signals and emits approvals. Its Run goroutine is the only
// code that touches the ledger; fills and resets reach it as messages.
type Gate struct {
	limits    Limits
	signals   *queue.Queue[event.OrderSignal]
	approvals *queue.Queue[event.ApprovedOrder]
	fills     *queue.Queue[event.Execution]
	resets    chan chan struct{}
	price     PriceFunc
	now       func() time.Time

	ledger       *Ledger
	lastApproval time.Time
	snap         atomic.Pointer[LedgerSnapshot]
	onFill       FillHook
}

// FillHook observes every accounted execution together with the ledger
// right after it. It runs on the gate goroutine and must not block.
type FillHook func(e event.Execution, after LedgerSnapshot)

// NewGate creates a Gate. price may be nil, in which case mark-to-market
// only reflects realized PnL.
func NewGate(limits Limits, signals *queue.Queue[event.OrderSignal], approvals *queue.Queue[event.ApprovedOrder], price PriceFunc) *Gate {
	if price == nil {
		price = func() (float64, bool) { return 0, false }
	}
	g := &Gate{
		limits:    limits,
		signals:   signals,
		approvals: approvals,
		fills:     queue.New[event.Execution](),
		resets:    make(chan chan struct{}),
		price:     price,
		now:       time.Now,
		ledger:    NewLedger(),
	}
	g.publish()
	return g
}

// Run blocks until ctx is done.
func (g *Gate) Run(ctx context.Context) error {
	interval := g.limits.MarkInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		// Fills first so exposure checks see every execution already routed.
		g.drainFills()
		g.drainSignals()

		select {
		case <-ctx.Done():
			return nil
		case <-g.fills.Ready():
		case <-g.signals.Ready():
		case done := <-g.resets:
			g.ledger.ResetDaily()
			g.publish()
			logger.Info("[RISK] daily PnL reset to 0")
			close(done)
		case <-ticker.C:
			g.mark()
		}
	}
}

// SetFillHook installs h. Call before Run.
func (g *Gate) SetFillHook(h FillHook) {
	g.onFill = h
}

// OnFill hands an execution to the gate for accounting.
func (g *Gate) OnFill(e event.Execution) {
	g.fills.Push(e)
}

// ResetDaily zeroes realized and daily PnL, returning once applied.
func (g *Gate) ResetDaily(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case g.resets <- done:
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

// Snapshot returns the ledger as of the last change.
func (g *Gate) Snapshot() LedgerSnapshot {
	return *g.snap.Load()
}

// OpenPosition returns the signed position and its average entry price.
func (g *Gate) OpenPosition() (int, float64) {
	s := g.snap.Load()
	return s.Position, s.AvgPrice
}

func (g *Gate) drainFills() {
	changed := false
	for {
		e, ok := g.fills.TryPop()
		if !ok {
			break
		}
		// Fills without a price (accepted live orders) take the latest
		// observed price, which may be newer than the ledger's last mark.
		price := e.Price
		if price <= 0 {
			if p, ok := g.price(); ok {
				price = p
			}
		}
		realized := g.ledger.OnFill(e.Side, e.Qty, price)
		changed = true
		logger.Infof("[RISK] fill %s %d @ %.2f (%s) position=%d realized=%+.2f",
			e.Side, e.Qty, price, e.Reason, g.ledger.Position(), realized)
		if g.onFill != nil {
			g.onFill(e, g.ledger.Snapshot())
		}
	}
	if changed {
		g.mark()
	}
}

func (g *Gate) drainSignals() {
	for {
		sig, ok := g.signals.TryPop()
		if !ok {
			return
		}
		g.evaluate(sig)
	}
}

// evaluate approves sig or drops it silently.
func (g *Gate) evaluate(sig event.OrderSignal) {
	now := g.now()
	if cause, ok := g.check(sig, now); !ok {
		metrics.RejectionsTotal.WithLabelValues(g.limits.Symbol, cause).Inc()
		logger.Debugf("[RISK] drop %s %s %d: %s", sig.Reason, sig.Side, sig.Qty, cause)
		return
	}
	g.lastApproval = now
	g.approvals.Push(event.ApprovedOrder{
		Time:   sig.Time,
		Symbol: sig.Symbol,
		Side:   sig.Side,
		Qty:    sig.Qty,
		Reason: sig.Reason,
	})
	metrics.ApprovalsTotal.WithLabelValues(g.limits.Symbol, string(sig.Reason)).Inc()
}

func (g *Gate) check(sig event.OrderSignal, now time.Time) (string, bool) {
	if sig.Qty <= 0 {
		return "empty", false
	}
	if !g.lastApproval.IsZero() && g.limits.ThrottlePerSec > 0 {
		minGap := time.Duration(float64(time.Second) / g.limits.ThrottlePerSec)
		if now.Sub(g.lastApproval) < minGap {
			return "throttle", false
		}
	}
	next := g.ledger.Position() + sig.SignedQty()
	if next > g.limits.MaxPosition || next < -g.limits.MaxPosition {
		return "exposure", false
	}
	if g.ledger.DailyLossReached(g.limits.DailyMaxLoss) {
		return "daily_loss", false
	}
	return "", true
}

func (g *Gate) mark() {
	price, ok := g.price()
	g.ledger.MarkToMarket(price, ok)
	g.publish()
}

func (g *Gate) publish() {
	s := g.ledger.Snapshot()
	g.snap.Store(&s)
	metrics.Position.WithLabelValues(g.limits.Symbol).Set(float64(s.Position))
	metrics.DailyPnL.WithLabelValues(g.limits.Symbol).Set(s.DailyPnL)
}
