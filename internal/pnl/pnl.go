// Package pnl accumulates realized profit and loss and derives the daily
// mark-to-market figure.
package pnl

import (
	"github.com/shopspring/decimal"
)

// Calculator handles PnL calculations. Realized PnL is accumulated as a
// decimal so long sessions of fractional-cent fills do not drift.
type Calculator struct {
	realized decimal.Decimal
	daily    decimal.Decimal
}

// NewCalculator creates a new PnL Calculator.
func NewCalculator() *Calculator {
	return &Calculator{}
}

// UpdateRealizedPnL adds pnl to the realized total.
func (c *Calculator) UpdateRealizedPnL(pnl float64) {
	c.realized = c.realized.Add(decimal.NewFromFloat(pnl))
}

// MarkToMarket sets daily PnL to realized plus unrealized.
func (c *Calculator) MarkToMarket(unrealized float64) {
	c.daily = c.realized.Add(decimal.NewFromFloat(unrealized))
}

// ResetDaily zeroes realized and daily PnL.
func (c *Calculator) ResetDaily() {
	c.realized = decimal.Zero
	c.daily = decimal.Zero
}

// GetRealizedPnL returns the current realized PnL.
func (c *Calculator) GetRealizedPnL() float64 {
	return c.realized.InexactFloat64()
}

// GetDailyPnL returns the last mark-to-market daily PnL.
func (c *Calculator) GetDailyPnL() float64 {
	return c.daily.InexactFloat64()
}

// AtOrBelow reports whether daily PnL has reached -maxLoss.
func (c *Calculator) AtOrBelow(maxLoss float64) bool {
	return c.daily.LessThanOrEqual(decimal.NewFromFloat(-maxLoss))
}
