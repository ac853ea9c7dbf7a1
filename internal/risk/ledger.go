package risk

import (
	"github.com/your-org/trigger-trader/internal/event"
	"github.com/your-org/trigger-trader/internal/pnl"
	"github.com/your-org/trigger-trader/internal/position"
)

// LedgerSnapshot is a read-only copy of the ledger.
type LedgerSnapshot struct {
	Position    int     `json:"position"`
	AvgPrice    float64 `json:"avg_price"`
	RealizedPnL float64 `json:"realized_pnl"`
	DailyPnL    float64 `json:"daily_pnl"`
}

// Ledger accounts fills into position, average entry price and PnL.
type Ledger struct {
	pos      *position.Position
	pnl      *pnl.Calculator
	lastMark float64
}

// NewLedger returns a flat ledger.
func NewLedger() *Ledger {
	return &Ledger{pos: position.NewPosition(), pnl: pnl.NewCalculator()}
}

// OnFill applies one execution. An execution without a usable price is
// accounted at the last mark, or at the average entry if nothing was marked,
// so the position still tracks every fill without distorting PnL.
func (l *Ledger) OnFill(side event.Side, qty int, price float64) float64 {
	if price <= 0 {
		price = l.lastMark
		if price <= 0 {
			price = l.pos.AvgEntryPrice
		}
	}
	realized := l.pos.Update(qty*side.Sign(), price)
	if realized != 0 {
		l.pnl.UpdateRealizedPnL(realized)
	}
	return realized
}

// MarkToMarket recomputes daily PnL as realized plus unrealized at lastPrice.
func (l *Ledger) MarkToMarket(lastPrice float64, ok bool) {
	unrealized := 0.0
	if ok && lastPrice > 0 {
		l.lastMark = lastPrice
		unrealized = l.pos.Unrealized(lastPrice)
	}
	l.pnl.MarkToMarket(unrealized)
}

// ResetDaily zeroes realized and daily PnL. Position and average price are
// facts of the market and are kept.
func (l *Ledger) ResetDaily() {
	l.pnl.ResetDaily()
}

// DailyLossReached reports whether daily PnL is at or below -maxLoss.
func (l *Ledger) DailyLossReached(maxLoss float64) bool {
	return l.pnl.AtOrBelow(maxLoss)
}

// Position returns the signed open position.
func (l *Ledger) Position() int {
	return l.pos.Size
}

// Snapshot copies the ledger.
func (l *Ledger) Snapshot() LedgerSnapshot {
	size, avg := l.pos.Get()
	return LedgerSnapshot{
		Position:    size,
		AvgPrice:    avg,
		RealizedPnL: l.pnl.GetRealizedPnL(),
		DailyPnL:    l.pnl.GetDailyPnL(),
	}
}
