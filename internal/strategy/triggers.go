package strategy

import (
	"time"

	"github.com/your-org/trigger-trader/internal/event"
)

// Evaluate runs one beat of the trigger bank against price and returns the
// updated state together with every trigger that fired, in evaluation order.
// Triggers are independent: one firing never suppresses another.
func Evaluate(s LadderState, now time.Time, price float64, th Thresholds) (LadderState, []Fire) {
	var fires []Fire
	collect := func(next LadderState, f *Fire) {
		s = next
		if f != nil {
			fires = append(fires, *f)
		}
	}

	s.Beats++
	s.History = appendHistory(s.History, now, price, th.Lookback)

	collect(evalSwing(s, price, th))

	if s.Phase == Idle {
		return openWindow(s, price), fires
	}

	s.Cycles++
	s.FallbackBeats++

	collect(evalJumps(s, price, th))
	collect(evalExtension(s, price, th))
	collect(evalSlowTrend(s, price, th))
	collect(evalCounter(s, price, th))
	collect(evalLowVol(s, price, th))
	collect(evalFallback(s, price, th))
	collect(evalLadder(s, price, th))
	collect(evalMacro(s, price, th))

	s.LastBeat = price
	return s, fires
}

// appendHistory returns a new history with the sample appended and entries
// older than lookback dropped.
func appendHistory(h []Sample, now time.Time, price float64, lookback time.Duration) []Sample {
	cutoff := now.Add(-lookback)
	out := make([]Sample, 0, len(h)+1)
	for _, x := range h {
		if !x.Time.Before(cutoff) {
			out = append(out, x)
		}
	}
	return append(out, Sample{Time: now, Price: price})
}

// openWindow re-bases the ladder at price and opens the T1 window. The
// low-vol and fallback windows restart here; only the position references
// (extension, counter) survive.
func openWindow(s LadderState, price float64) LadderState {
	s.Phase = T1Window
	s.Base = price
	s.First = 0
	s.T3Anchor = 0
	s.T4Anchor = 0
	s.Cycles = 0
	s.LastBeat = price
	s.JumpDir = 0
	s.LowVolStart = price
	s.LowVolStartBeat = s.Beats
	s.FallbackBeats = 0
	return s
}

func (s LadderState) fromBase(price float64) float64 {
	if s.Base == 0 {
		return 0
	}
	return price - s.Base
}

func (s LadderState) fire(reason event.Reason, price float64, fromFirst *float64) *Fire {
	return &Fire{
		Reason:    reason,
		Price:     price,
		Base:      s.Base,
		First:     s.First,
		FromBase:  s.fromBase(price),
		FromFirst: fromFirst,
	}
}

// evalSwing fires on any large excursion from base, in every phase.
func evalSwing(s LadderState, price float64, th Thresholds) (LadderState, *Fire) {
	if s.Base == 0 || !reached(abs(price-s.Base), th.Swing) {
		return s, nil
	}
	return s, s.fire(event.ReasonSwing, price, nil)
}

// evalJumps detects a beat-to-beat jump and a second jump in the same
// direction.
func evalJumps(s LadderState, price float64, th Thresholds) (LadderState, *Fire) {
	if s.LastBeat == 0 {
		return s, nil
	}
	delta := price - s.LastBeat
	dir := 0
	switch {
	case delta > 0:
		dir = 1
	case delta < 0:
		dir = -1
	}
	if dir == 0 {
		return s, nil
	}
	jump := abs(delta)

	switch {
	case s.JumpDir == 0 && reached(jump, th.FirstJump):
		f := s.fire(event.ReasonFirstJump, price, nil)
		s.JumpDir = dir
		return s, f
	case s.JumpDir == dir && reached(jump, th.SecondJump):
		f := s.fire(event.ReasonSecondJump, price, nil)
		s.JumpDir = 0
		s.ExtRef = price
		s.ExtSide = event.SideFromOffset(delta)
		return s, f
	}
	return s, nil
}

// evalExtension fires once price runs favorably past the extension reference.
func evalExtension(s LadderState, price float64, th Thresholds) (LadderState, *Fire) {
	if s.ExtSide == "" || s.ExtRef == 0 {
		return s, nil
	}
	favorable := price - s.ExtRef
	if s.ExtSide == event.Sell {
		favorable = -favorable
	}
	if !reached(favorable, th.Extension) {
		return s, nil
	}
	f := s.fire(event.ReasonExtension, price, nil)
	s.ExtRef = 0
	s.ExtSide = ""
	return s, f
}

// evalSlowTrend compares price with the oldest sample once the history holds
// a full window, restarting the window when it fires.
func evalSlowTrend(s LadderState, price float64, th Thresholds) (LadderState, *Fire) {
	if th.SlowTrendBeats <= 0 || len(s.History) < th.SlowTrendBeats {
		return s, nil
	}
	start := s.History[0].Price
	if !reached(abs(price-start), th.SlowTrend) {
		return s, nil
	}
	f := s.fire(event.ReasonSlowTrend, price, nil)
	s.History = []Sample{s.History[len(s.History)-1]}
	return s, f
}

// evalCounter runs the two-stage sequence against the last position reference.
func evalCounter(s LadderState, price float64, th Thresholds) (LadderState, *Fire) {
	if s.CounterSide == "" || s.CounterRef == 0 {
		return s, nil
	}
	against := s.CounterRef - price
	if s.CounterSide == event.Sell {
		against = -against
	}
	if !s.CounterArmed {
		if !reached(against, th.Counter) {
			return s, nil
		}
		f := s.fire(event.ReasonCounter, price, nil)
		s.CounterArmed = true
		return s, f
	}
	if !reached(against, th.Counter+th.CounterExt) {
		return s, nil
	}
	f := s.fire(event.ReasonCounterExt, price, nil)
	s.CounterArmed = false
	return s, f
}

// evalLowVol closes a fixed beat-count window and fires when the net move
// stayed under the ceiling but still reached the mark.
func evalLowVol(s LadderState, price float64, th Thresholds) (LadderState, *Fire) {
	if s.LowVolStart == 0 || s.Beats-s.LowVolStartBeat < th.LowVolBeats {
		return s, nil
	}
	var f *Fire
	rng := abs(price - s.LowVolStart)
	if rng <= th.LowVolCeiling+1e-9 && reached(rng, th.LowVolMark) {
		f = s.fire(event.ReasonLowVol, price, nil)
	}
	s.LowVolStart = price
	s.LowVolStartBeat = s.Beats
	return s, f
}

// evalFallback takes a directional entry when the T1 window has gone too
// long without any ladder trigger, and forces the ladder back to IDLE.
func evalFallback(s LadderState, price float64, th Thresholds) (LadderState, *Fire) {
	if s.Phase != T1Window || s.FallbackBeats < th.FallbackBeats {
		return s, nil
	}
	if !reached(abs(s.fromBase(price)), th.FallbackMove) {
		return s, nil
	}
	f := s.fire(event.ReasonFallback, price, nil)
	s.Phase = Idle
	s.FallbackBeats = 0
	return s, f
}

// evalMacro fires on a large move from the first order and seeds the
// extension reference.
func evalMacro(s LadderState, price float64, th Thresholds) (LadderState, *Fire) {
	if s.First == 0 {
		return s, nil
	}
	fromFirst := price - s.First
	if !reached(abs(fromFirst), th.Macro) {
		return s, nil
	}
	f := s.fire(event.ReasonMacro, price, ptr(fromFirst))
	side := f.Side()
	s.ExtRef, s.ExtSide = price, side
	s.CounterRef, s.CounterSide, s.CounterArmed = price, side, false
	return s, f
}
