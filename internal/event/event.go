// Package event defines the records that flow between pipeline stages:
// ticks, order signals, approved orders and executions.
package event

import (
	"strings"
	"time"
)

// Side is the direction of an order.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Sign returns +1 for Buy and -1 for Sell.
func (s Side) Sign() int {
	if s == Buy {
		return 1
	}
	return -1
}

// Opposite returns the side that closes a position opened on s.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Lower returns the venue wire form ("buy"/"sell").
func (s Side) Lower() string {
	return strings.ToLower(string(s))
}

// SideFromOffset maps a signed price offset to a side: positive is Buy,
// zero or negative is Sell.
func SideFromOffset(offset float64) Side {
	if offset > 0 {
		return Buy
	}
	return Sell
}

// SideForPosition returns the side of an open signed position.
func SideForPosition(qty int) Side {
	if qty > 0 {
		return Buy
	}
	return Sell
}

// Mode selects the live venue or the simulator for both feed and fills.
type Mode string

const (
	ModeLive Mode = "live"
	ModeSim  Mode = "sim"
)

// ParseMode accepts "live" or "sim" in any case.
func ParseMode(s string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeLive:
		return ModeLive, true
	case ModeSim:
		return ModeSim, true
	}
	return "", false
}

// Reason identifies the rule that produced a signal.
type Reason string

const (
	ReasonT1         Reason = "T1"
	ReasonT2         Reason = "T2"
	ReasonT3         Reason = "T3"
	ReasonT4         Reason = "T4"
	ReasonT5         Reason = "T5"
	ReasonMacro      Reason = "T7"
	ReasonFirstJump  Reason = "T8"
	ReasonSecondJump Reason = "T9"
	ReasonExtension  Reason = "T10"
	ReasonSlowTrend  Reason = "T11"
	ReasonCounter    Reason = "T12"
	ReasonCounterExt Reason = "T13"
	ReasonSwing      Reason = "T14"
	ReasonLowVol     Reason = "T15"
	ReasonFallback   Reason = "T16"
	ReasonStopLoss   Reason = "STOP_LOSS"
	ReasonTakeProfit Reason = "TAKE_PROFIT"
	ReasonFlatten    Reason = "FLATTEN"
)

// IsLadder reports whether r is one of the primary ladder stages T1..T5.
func (r Reason) IsLadder() bool {
	switch r {
	case ReasonT1, ReasonT2, ReasonT3, ReasonT4, ReasonT5:
		return true
	}
	return false
}

// Tick is a single price observation.
type Tick struct {
	Time   time.Time
	Symbol string
	Price  float64
	Size   float64
}

// OrderSignal is a trading intent produced by the strategy engine.
type OrderSignal struct {
	Time            time.Time
	Symbol          string
	Side            Side
	Qty             int
	Reason          Reason
	BasePrice       float64
	FirstOrderPrice *float64
	FromBase        float64
	FromFirst       *float64
}

// SignedQty returns Qty with the sign of Side.
func (s OrderSignal) SignedQty() int {
	return s.Qty * s.Side.Sign()
}

// ApprovedOrder is a signal that passed every risk gate.
type ApprovedOrder struct {
	Time   time.Time
	Symbol string
	Side   Side
	Qty    int
	Reason Reason
}

// ExecStatus describes how an execution's price was obtained.
type ExecStatus string

const (
	// StatusFilled carries the venue-reported average fill price.
	StatusFilled ExecStatus = "filled"
	// StatusAccepted means the venue took the order without reporting a price.
	StatusAccepted ExecStatus = "accepted"
	// StatusSimulated is a synthetic fill at the last observed price.
	StatusSimulated ExecStatus = "simulated"
	// StatusFallback is a failed live order realised at the last observed price.
	StatusFallback ExecStatus = "fallback"
)

// Execution is the terminal record of one trading cycle.
type Execution struct {
	Time    time.Time
	Symbol  string
	Side    Side
	Qty     int
	Price   float64
	Status  ExecStatus
	Reason  Reason
	OrderID string
	Mode    Mode
}

// HasPrice reports whether the execution carries a usable fill price.
func (e Execution) HasPrice() bool {
	return e.Price > 0
}

// SignedQty returns Qty with the sign of Side.
func (e Execution) SignedQty() int {
	return e.Qty * e.Side.Sign()
}
