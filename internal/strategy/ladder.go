package strategy

import (
	"github.com/your-org/trigger-trader/internal/event"
)

// ladderStep describes one window of the T1..T5 chain.
type ladderStep struct {
	reason event.Reason
	next   Phase
	budget func(th Thresholds) int
	// check returns the move to test, its threshold, and the offset from the
	// first order to report (nil when not measured from it).
	check func(s LadderState, price float64, th Thresholds) (move, threshold float64, fromFirst *float64)
	// enter records the anchors the next window needs.
	enter func(s *LadderState, price float64)
}

var ladder = map[Phase]ladderStep{
	T1Window: {
		reason: event.ReasonT1,
		next:   T2Window,
		budget: func(th Thresholds) int { return th.Budgets[0] },
		check: func(s LadderState, price float64, th Thresholds) (float64, float64, *float64) {
			return abs(s.fromBase(price)), th.T1Move, nil
		},
		enter: func(s *LadderState, price float64) {
			s.First = price
			s.T3Anchor = price
		},
	},
	T2Window: {
		reason: event.ReasonT2,
		next:   T3Window,
		budget: func(th Thresholds) int { return th.Budgets[1] },
		check: func(s LadderState, price float64, th Thresholds) (float64, float64, *float64) {
			return abs(s.fromBase(price)), th.T2Hold, s.fromFirst(price)
		},
		enter: func(s *LadderState, price float64) {
			s.T3Anchor = price
		},
	},
	T3Window: {
		reason: event.ReasonT3,
		next:   T4Window,
		budget: func(th Thresholds) int { return th.Budgets[2] },
		check: func(s LadderState, price float64, th Thresholds) (float64, float64, *float64) {
			ff := 0.0
			if s.First != 0 {
				ff = price - s.First
			}
			return abs(ff), th.T3MoveFromFirst, ptr(ff)
		},
		enter: func(s *LadderState, price float64) {
			s.T4Anchor = price
		},
	},
	T4Window: {
		reason: event.ReasonT4,
		next:   T5Window,
		budget: func(th Thresholds) int { return th.Budgets[3] },
		check: func(s LadderState, price float64, th Thresholds) (float64, float64, *float64) {
			return anchorMove(s.T3Anchor, price), th.T4ExtraFromT3, s.fromFirst(price)
		},
		enter: func(s *LadderState, price float64) {},
	},
	T5Window: {
		reason: event.ReasonT5,
		next:   Idle,
		budget: func(th Thresholds) int { return th.Budgets[4] },
		check: func(s LadderState, price float64, th Thresholds) (float64, float64, *float64) {
			return anchorMove(s.T4Anchor, price), th.T5ExtraFromT4, s.fromFirst(price)
		},
		enter: func(s *LadderState, price float64) {},
	},
}

func anchorMove(anchor, price float64) float64 {
	if anchor == 0 {
		return 0
	}
	return abs(price - anchor)
}

func (s LadderState) fromFirst(price float64) *float64 {
	if s.First == 0 {
		return nil
	}
	return ptr(price - s.First)
}

// evalLadder advances the T1..T5 chain by at most one window. A window whose
// beat budget is exhausted without firing expires back to IDLE.
func evalLadder(s LadderState, price float64, th Thresholds) (LadderState, *Fire) {
	step, ok := ladder[s.Phase]
	if !ok {
		return s, nil
	}
	budget := step.budget(th)
	move, threshold, fromFirst := step.check(s, price, th)

	if s.Cycles <= budget && reached(move, threshold) {
		f := s.fire(step.reason, price, fromFirst)
		step.enter(&s, price)
		s.CounterRef, s.CounterSide, s.CounterArmed = price, f.Side(), false
		s.FallbackBeats = 0
		s.Phase = step.next
		s.Cycles = 0
		return s, f
	}
	if s.Cycles > budget {
		s.Phase = Idle
	}
	return s, nil
}
