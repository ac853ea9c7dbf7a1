package report

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/your-org/trigger-trader/internal/event"
	"github.com/your-org/trigger-trader/internal/telemetry"
)

// ErrNoTrades is returned when there is nothing to analyze.
var ErrNoTrades = errors.New("no trades to analyze")

// RoundTrip is one excursion from flat back to flat (or to a flip).
type RoundTrip struct {
	Opened time.Time       `json:"opened"`
	Closed time.Time       `json:"closed"`
	Long   bool            `json:"long"`
	PnL    decimal.Decimal `json:"pnl"`
}

// Report は損益分析の結果を保持します。
type Report struct {
	StartDate                   time.Time            `json:"start_date"`
	EndDate                     time.Time            `json:"end_date"`
	Executions                  int                  `json:"executions"`
	UnpricedExecutions          int                  `json:"unpriced_executions"`
	FallbackExecutions          int                  `json:"fallback_executions"`
	RoundTrips                  int                  `json:"round_trips"`
	WinningTrades               int                  `json:"winning_trades"`
	LosingTrades                int                  `json:"losing_trades"`
	WinRate                     float64              `json:"win_rate"`
	LongWinningTrades           int                  `json:"long_winning_trades"`
	LongLosingTrades            int                  `json:"long_losing_trades"`
	ShortWinningTrades          int                  `json:"short_winning_trades"`
	ShortLosingTrades           int                  `json:"short_losing_trades"`
	TotalPnL                    decimal.Decimal      `json:"total_pnl"`
	AverageProfit               decimal.Decimal      `json:"average_profit"`
	AverageLoss                 decimal.Decimal      `json:"average_loss"`
	ProfitFactor                float64              `json:"profit_factor"`
	MaxDrawdown                 decimal.Decimal      `json:"max_drawdown"`
	SharpeRatio                 float64              `json:"sharpe_ratio"`
	MaxConsecutiveWins          int                  `json:"max_consecutive_wins"`
	MaxConsecutiveLosses        int                  `json:"max_consecutive_losses"`
	AverageHoldingPeriodSeconds float64              `json:"average_holding_period_seconds"`
	FinalPosition               int                  `json:"final_position"`
	FinalAvgPrice               decimal.Decimal      `json:"final_avg_price"`
	ByReason                    map[event.Reason]int `json:"by_reason"`
	Trips                       []RoundTrip          `json:"-"`
}

// book replays fills with average-cost accounting, the same way the live
// ledger does, and cuts round trips whenever the position returns to flat or
// changes sign.
type book struct {
	pos       int
	avg       decimal.Decimal
	opened    time.Time
	tripPnL   decimal.Decimal
	realized  decimal.Decimal
	equity    []decimal.Decimal
	trips     []RoundTrip
	lastPrice decimal.Decimal
}

func (b *book) apply(ts time.Time, signed int, price decimal.Decimal) {
	if b.pos == 0 {
		b.open(ts, signed, price)
		return
	}
	if sign(signed) == sign(b.pos) {
		held := decimal.NewFromInt(int64(abs(b.pos)))
		add := decimal.NewFromInt(int64(abs(signed)))
		b.avg = b.avg.Mul(held).Add(price.Mul(add)).Div(held.Add(add))
		b.pos += signed
		return
	}

	closing := min(abs(signed), abs(b.pos))
	pnl := price.Sub(b.avg).Mul(decimal.NewFromInt(int64(closing * sign(b.pos))))
	b.realized = b.realized.Add(pnl)
	b.tripPnL = b.tripPnL.Add(pnl)
	b.equity = append(b.equity, b.realized)

	wasLong := b.pos > 0
	b.pos += signed
	switch {
	case b.pos == 0:
		b.close(ts, wasLong)
		b.avg = decimal.Zero
	case sign(b.pos) != sign(b.pos-signed):
		b.close(ts, wasLong)
		b.open(ts, b.pos, price)
	}
}

func (b *book) open(ts time.Time, signed int, price decimal.Decimal) {
	b.pos = signed
	b.avg = price
	b.opened = ts
	b.tripPnL = decimal.Zero
}

func (b *book) close(ts time.Time, long bool) {
	b.trips = append(b.trips, RoundTrip{Opened: b.opened, Closed: ts, Long: long, PnL: b.tripPnL})
	b.tripPnL = decimal.Zero
}

// AnalyzeTrades はトレードリストを分析してレポートを作成します。
// Executions without a price are realised at the last known price; those
// seen before any priced execution are counted and skipped.
func AnalyzeTrades(trades []telemetry.TradeRecord) (Report, error) {
	if len(trades) == 0 {
		return Report{}, ErrNoTrades
	}

	sorted := append([]telemetry.TradeRecord(nil), trades...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	r := Report{
		StartDate:  sorted[0].Timestamp,
		EndDate:    sorted[len(sorted)-1].Timestamp,
		Executions: len(sorted),
		ByReason:   make(map[event.Reason]int),
	}

	var b book
	for _, t := range sorted {
		r.ByReason[t.Reason]++
		if t.Status == event.StatusFallback {
			r.FallbackExecutions++
		}
		signed := t.Qty * t.Side.Sign()
		if signed == 0 {
			continue
		}
		price := decimal.NewFromFloat(t.Price)
		if !price.IsPositive() {
			if !b.lastPrice.IsPositive() {
				r.UnpricedExecutions++
				continue
			}
			price = b.lastPrice
		}
		b.lastPrice = price
		b.apply(t.Timestamp, signed, price)
	}

	r.Trips = b.trips
	r.RoundTrips = len(b.trips)
	r.TotalPnL = b.realized
	r.FinalPosition = b.pos
	r.FinalAvgPrice = b.avg

	var totalProfit, totalLoss decimal.Decimal
	var consecutiveWins, consecutiveLosses int
	var holding float64
	tripPnL := make([]float64, len(b.trips))
	for i, trip := range b.trips {
		tripPnL[i] = trip.PnL.InexactFloat64()
		holding += trip.Closed.Sub(trip.Opened).Seconds()
		switch {
		case trip.PnL.IsPositive():
			r.WinningTrades++
			if trip.Long {
				r.LongWinningTrades++
			} else {
				r.ShortWinningTrades++
			}
			totalProfit = totalProfit.Add(trip.PnL)
			consecutiveWins++
			consecutiveLosses = 0
			r.MaxConsecutiveWins = max(r.MaxConsecutiveWins, consecutiveWins)
		case trip.PnL.IsNegative():
			r.LosingTrades++
			if trip.Long {
				r.LongLosingTrades++
			} else {
				r.ShortLosingTrades++
			}
			totalLoss = totalLoss.Add(trip.PnL)
			consecutiveLosses++
			consecutiveWins = 0
			r.MaxConsecutiveLosses = max(r.MaxConsecutiveLosses, consecutiveLosses)
		}
	}

	if decided := r.WinningTrades + r.LosingTrades; decided > 0 {
		r.WinRate = float64(r.WinningTrades) / float64(decided) * 100
	}
	if r.WinningTrades > 0 {
		r.AverageProfit = totalProfit.Div(decimal.NewFromInt(int64(r.WinningTrades)))
	}
	if r.LosingTrades > 0 {
		r.AverageLoss = totalLoss.Div(decimal.NewFromInt(int64(r.LosingTrades)))
	}
	if totalLoss.IsNegative() {
		r.ProfitFactor = totalProfit.Div(totalLoss.Abs()).InexactFloat64()
	}
	if len(b.trips) > 0 {
		r.AverageHoldingPeriodSeconds = holding / float64(len(b.trips))
	}
	r.MaxDrawdown = maxDrawdown(b.equity)
	r.SharpeRatio = calculateSharpeRatio(tripPnL, 0)
	return r, nil
}

// maxDrawdown is the largest peak-to-trough fall of the cumulative realized
// PnL curve, starting from zero.
func maxDrawdown(equity []decimal.Decimal) decimal.Decimal {
	dd := decimal.Zero
	peak := decimal.Zero
	for _, e := range equity {
		if e.GreaterThan(peak) {
			peak = e
		}
		if d := peak.Sub(e); d.GreaterThan(dd) {
			dd = d
		}
	}
	return dd
}

// Write renders the report as aligned text.
func (r Report) Write(w io.Writer) error {
	var sb strings.Builder
	line := func(label, format string, args ...any) {
		fmt.Fprintf(&sb, "%-22s "+format+"\n", append([]any{label + ":"}, args...)...)
	}
	line("Period", "%s .. %s", r.StartDate.Format(time.RFC3339), r.EndDate.Format(time.RFC3339))
	line("Executions", "%d (fallback %d, unpriced %d)", r.Executions, r.FallbackExecutions, r.UnpricedExecutions)
	line("Round trips", "%d", r.RoundTrips)
	line("Wins / losses", "%d / %d (long %d/%d, short %d/%d)",
		r.WinningTrades, r.LosingTrades, r.LongWinningTrades, r.LongLosingTrades, r.ShortWinningTrades, r.ShortLosingTrades)
	line("Win rate", "%.1f%%", r.WinRate)
	line("Realized PnL", "%s", r.TotalPnL.StringFixed(2))
	line("Average win / loss", "%s / %s", r.AverageProfit.StringFixed(2), r.AverageLoss.StringFixed(2))
	line("Profit factor", "%.2f", r.ProfitFactor)
	line("Max drawdown", "%s", r.MaxDrawdown.StringFixed(2))
	line("Sharpe (per trip)", "%.2f", r.SharpeRatio)
	line("Streaks", "%d wins, %d losses", r.MaxConsecutiveWins, r.MaxConsecutiveLosses)
	line("Avg holding", "%.0fs", r.AverageHoldingPeriodSeconds)
	line("Final position", "%d @ %s", r.FinalPosition, r.FinalAvgPrice.StringFixed(2))

	reasons := make([]string, 0, len(r.ByReason))
	for reason := range r.ByReason {
		reasons = append(reasons, string(reason))
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		line("  "+reason, "%d", r.ByReason[event.Reason(reason)])
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

// calculateStandardDeviation はリターンの標準偏差を計算します。
func calculateStandardDeviation(returns []float64, mean float64) float64 {
	if len(returns) == 0 {
		return 0.0
	}
	variance := 0.0
	for _, r := range returns {
		variance += math.Pow(r-mean, 2)
	}
	return math.Sqrt(variance / float64(len(returns)))
}

// calculateSharpeRatio はシャープレシオを計算します。
func calculateSharpeRatio(returns []float64, riskFreeRate float64) float64 {
	if len(returns) == 0 {
		return 0.0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	stdDev := calculateStandardDeviation(returns, mean)
	if stdDev == 0 {
		return 0.0
	}
	return (mean - riskFreeRate) / stdDev
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
