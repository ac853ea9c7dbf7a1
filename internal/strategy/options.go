package strategy

import (
	"time"

	"github.com/your-org/trigger-trader/internal/config"
	"github.com/your-org/trigger-trader/internal/event"
)

// Lots maps a trigger to its order quantity.
type Lots map[event.Reason]int

// Options configures an Engine.
type Options struct {
	Symbol         string
	Beat           time.Duration
	ProtectionBeat time.Duration
	Thresholds     Thresholds
	Lots           Lots
	StopLoss       float64
	TakeProfit     float64
}

// OptionsFromConfig maps application configuration onto engine options.
func OptionsFromConfig(cfg *config.Config) Options {
	sc := cfg.Strategy
	tr := sc.Triggers
	l := sc.Lots
	return Options{
		Symbol:         cfg.Symbol,
		Beat:           sc.Beat,
		ProtectionBeat: sc.ProtectionBeat,
		StopLoss:       cfg.Risk.StopLoss,
		TakeProfit:     cfg.Risk.TakeProfit,
		Thresholds: Thresholds{
			T1Move:          tr.T1Move,
			T2Hold:          tr.T2Hold,
			T3MoveFromFirst: tr.T3MoveFromFirst,
			T4ExtraFromT3:   tr.T4ExtraFromT3,
			T5ExtraFromT4:   tr.T5ExtraFromT4,
			Budgets:         [5]int{sc.Budgets.T1, sc.Budgets.T2, sc.Budgets.T3, sc.Budgets.T4, sc.Budgets.T5},
			Macro:           tr.T7Macro,
			FirstJump:       tr.T8FirstJump,
			SecondJump:      tr.T9SecondJump,
			Extension:       tr.T10Favorable,
			SlowTrend:       tr.T11SlowTrend,
			SlowTrendBeats:  tr.T11WindowBeats,
			Lookback:        sc.Lookback,
			Counter:         tr.T12Counter,
			CounterExt:      tr.T13Continue,
			Swing:           tr.T14Swing,
			LowVolBeats:     tr.T15WindowBeats,
			LowVolCeiling:   tr.T15Ceiling,
			LowVolMark:      tr.T15MoveMark,
			FallbackBeats:   tr.T16WindowBeats,
			FallbackMove:    tr.T16FallbackMove,
		},
		Lots: Lots{
			event.ReasonT1:         l.T1,
			event.ReasonT2:         l.T2,
			event.ReasonT3:         l.T3,
			event.ReasonT4:         l.T4,
			event.ReasonT5:         l.T5,
			event.ReasonMacro:      l.T7,
			event.ReasonFirstJump:  l.T8,
			event.ReasonSecondJump: l.T9,
			event.ReasonExtension:  l.T10,
			event.ReasonSlowTrend:  l.T11,
			event.ReasonCounter:    l.T12,
			event.ReasonCounterExt: l.T13,
			event.ReasonSwing:      l.T14,
			event.ReasonLowVol:     l.T15,
			event.ReasonFallback:   l.T16,
		},
	}
}
