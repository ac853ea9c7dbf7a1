// Package strategy implements the beat-driven trigger bank: a phased ladder
// (T1..T5) plus independent jump, extension, trend, counter, low-volatility,
// fallback, swing and macro triggers.
package strategy

import (
	"time"

	"github.com/your-org/trigger-trader/internal/event"
)

// Phase is the stage of the primary ladder.
type Phase string

const (
	Idle     Phase = "IDLE"
	T1Window Phase = "T1_WINDOW"
	T2Window Phase = "T2_WINDOW"
	T3Window Phase = "T3_WINDOW"
	T4Window Phase = "T4_WINDOW"
	T5Window Phase = "T5_WINDOW"
)

// Sample is one beat's entry in the price history.
type Sample struct {
	Time  time.Time
	Price float64
}

// LadderState is the full decision state. Prices are strictly positive, so a
// zero price field means "unset". Values are never mutated in place by the
// evaluators; each returns an updated copy.
type LadderState struct {
	Phase    Phase
	Base     float64
	First    float64
	T3Anchor float64
	T4Anchor float64
	Cycles   int // beats since the current window opened

	LastBeat float64
	JumpDir  int // direction of an armed first jump, 0 when none

	// Extension reference seeded by the second jump or the macro trigger.
	ExtRef  float64
	ExtSide event.Side

	// Reference for the counter-position sequence: the last ladder or macro fill.
	CounterRef   float64
	CounterSide  event.Side
	CounterArmed bool

	LowVolStart     float64
	LowVolStartBeat int

	// FallbackBeats counts windowed beats since a ladder trigger last fired.
	FallbackBeats int
	// Beats counts every evaluated beat and drives the low-volatility window.
	Beats int

	History []Sample
}

// NewState returns the IDLE default.
func NewState() LadderState {
	return LadderState{Phase: Idle}
}

// Thresholds are the trigger distances, window lengths and ladder budgets.
type Thresholds struct {
	T1Move          float64
	T2Hold          float64
	T3MoveFromFirst float64
	T4ExtraFromT3   float64
	T5ExtraFromT4   float64

	// Budgets[i] is the beat budget of ladder window i+1.
	Budgets [5]int

	Macro      float64
	FirstJump  float64
	SecondJump float64
	Extension  float64

	SlowTrend      float64
	SlowTrendBeats int
	Lookback       time.Duration

	Counter    float64
	CounterExt float64

	Swing float64

	LowVolBeats   int
	LowVolCeiling float64
	LowVolMark    float64

	FallbackBeats int
	FallbackMove  float64
}

// Fire is one trigger firing within a beat evaluation.
type Fire struct {
	Reason    event.Reason
	Price     float64
	Base      float64
	First     float64  // zero when no first order exists yet
	FromBase  float64
	FromFirst *float64 // nil when the trigger is not measured from the first order
}

// Side derives the order direction from the offset the trigger measured.
func (f Fire) Side() event.Side {
	if f.FromFirst != nil {
		return event.SideFromOffset(*f.FromFirst)
	}
	return event.SideFromOffset(f.FromBase)
}

// reached compares a move against a threshold, absorbing float noise so that
// a move of exactly the threshold always counts.
func reached(move, threshold float64) bool {
	return move >= threshold-1e-9
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func ptr(v float64) *float64 {
	return &v
}
