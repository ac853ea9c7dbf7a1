// Package position tracks a signed share position and its average entry price.
package position

// Position holds the state of a trading position. It has no locking: the
// risk gate goroutine is its only owner.
type Position struct {
	Size          int
	AvgEntryPrice float64
}

// NewPosition creates a flat Position.
func NewPosition() *Position {
	return &Position{}
}

// Update applies a signed fill and returns the PnL realized on any closed
// quantity.
//
// Fills that open or add to exposure blend the average entry price. Fills
// against the position realize PnL on min(|fill|, |position|) at the existing
// average and leave it untouched, unless the fill crosses through zero, in
// which case the remainder is opened at the fill price.
func (p *Position) Update(tradeSize int, tradePrice float64) (realizedPnL float64) {
	if tradeSize == 0 {
		return 0
	}

	if p.Size == 0 || (p.Size > 0) == (tradeSize > 0) {
		held := abs(p.Size)
		add := abs(tradeSize)
		if held == 0 {
			p.AvgEntryPrice = tradePrice
		} else {
			p.AvgEntryPrice = (p.AvgEntryPrice*float64(held) + tradePrice*float64(add)) / float64(held+add)
		}
		p.Size += tradeSize
		return 0
	}

	closed := min(abs(tradeSize), abs(p.Size))
	realizedPnL = (tradePrice - p.AvgEntryPrice) * float64(closed)
	if p.Size < 0 {
		realizedPnL = -realizedPnL
	}

	flipped := abs(tradeSize) > abs(p.Size)
	p.Size += tradeSize
	switch {
	case p.Size == 0:
		p.AvgEntryPrice = 0
	case flipped:
		p.AvgEntryPrice = tradePrice
	}
	return realizedPnL
}

// Unrealized values the open position at mark.
func (p *Position) Unrealized(mark float64) float64 {
	if p.Size == 0 {
		return 0
	}
	return (mark - p.AvgEntryPrice) * float64(p.Size)
}

// Get returns the current size and average entry price of the position.
func (p *Position) Get() (int, float64) {
	return p.Size, p.AvgEntryPrice
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
