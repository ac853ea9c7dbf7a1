// Package metrics holds the Prometheus collectors shared by the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ticks_total", Help: "Count of market ticks ingested"},
		[]string{"symbol"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_total", Help: "Order signals emitted by trigger"},
		[]string{"symbol", "reason"},
	)
	ApprovalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "approvals_total", Help: "Signals approved by the risk gate"},
		[]string{"symbol", "reason"},
	)
	RejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "rejections_total", Help: "Signals dropped by the risk gate"},
		[]string{"symbol", "cause"},
	)
	ExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "executions_total", Help: "Executions produced by the order router"},
		[]string{"symbol", "mode", "side", "status"},
	)
	FeedReconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "feed_reconnects_total", Help: "Venue feed reconnect attempts"},
		[]string{"symbol"},
	)
	FeedMode = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "feed_mode", Help: "1 for the active feed mode"},
		[]string{"symbol", "mode"},
	)
	Position = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "position_shares", Help: "Signed open position"},
		[]string{"symbol"},
	)
	DailyPnL = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "daily_pnl", Help: "Realized plus unrealized PnL for the day"},
		[]string{"symbol"},
	)
	LadderPhase = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "ladder_phase", Help: "Ladder phase, 0 for IDLE through 5 for T5_WINDOW"},
		[]string{"symbol"},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal, SignalsTotal, ApprovalsTotal, RejectionsTotal, ExecutionsTotal,
		FeedReconnectsTotal, FeedMode, Position, DailyPnL, LadderPhase,
	)
}

// SetFeedMode marks mode as the active feed for symbol.
func SetFeedMode(symbol, mode string) {
	for _, m := range []string{"live", "sim"} {
		v := 0.0
		if m == mode {
			v = 1
		}
		FeedMode.WithLabelValues(symbol, m).Set(v)
	}
}
