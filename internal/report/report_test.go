package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/trigger-trader/internal/event"
	"github.com/your-org/trigger-trader/internal/telemetry"
)

var start = time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)

func trade(sec int, side event.Side, qty int, price float64, reason event.Reason) telemetry.TradeRecord {
	return telemetry.TradeRecord{
		Timestamp: start.Add(time.Duration(sec) * time.Second),
		Symbol:    "DIA",
		Side:      side,
		Qty:       qty,
		Price:     price,
		Reason:    reason,
		Status:    event.StatusSimulated,
	}
}

func TestAnalyzeTrades(t *testing.T) {
	t.Run("long winner", func(t *testing.T) {
		r, err := AnalyzeTrades([]telemetry.TradeRecord{
			trade(0, event.Buy, 10, 100, event.ReasonT1),
			trade(30, event.Sell, 10, 110, event.ReasonT4),
		})
		require.NoError(t, err)
		assert.Equal(t, 1, r.RoundTrips)
		assert.Equal(t, 1, r.WinningTrades)
		assert.Equal(t, 1, r.LongWinningTrades)
		assert.Equal(t, "100.00", r.TotalPnL.StringFixed(2))
		assert.Equal(t, 0, r.FinalPosition)
		assert.InDelta(t, 30.0, r.AverageHoldingPeriodSeconds, 1e-9)
	})

	t.Run("short winner", func(t *testing.T) {
		r, err := AnalyzeTrades([]telemetry.TradeRecord{
			trade(0, event.Sell, 10, 110, event.ReasonSecondJump),
			trade(1, event.Buy, 10, 100, event.ReasonExtension),
		})
		require.NoError(t, err)
		assert.Equal(t, 1, r.ShortWinningTrades)
		assert.Equal(t, "100.00", r.TotalPnL.StringFixed(2))
	})

	t.Run("partial exits stay in one trip", func(t *testing.T) {
		r, err := AnalyzeTrades([]telemetry.TradeRecord{
			trade(0, event.Buy, 10, 100, event.ReasonT1),
			trade(1, event.Sell, 5, 120, event.ReasonT4),
			trade(2, event.Sell, 5, 90, event.ReasonT5),
		})
		require.NoError(t, err)
		assert.Equal(t, 1, r.RoundTrips)
		assert.Equal(t, 1, r.WinningTrades)
		assert.Equal(t, "50.00", r.TotalPnL.StringFixed(2))
		assert.Equal(t, "50.00", r.MaxDrawdown.StringFixed(2), "peak 100 after first exit, trough 50")
	})

	t.Run("flip closes and reopens", func(t *testing.T) {
		r, err := AnalyzeTrades([]telemetry.TradeRecord{
			trade(0, event.Buy, 10, 100, event.ReasonT1),
			trade(1, event.Sell, 15, 103, event.ReasonMacro),
		})
		require.NoError(t, err)
		assert.Equal(t, 1, r.RoundTrips)
		assert.Equal(t, "30.00", r.TotalPnL.StringFixed(2))
		assert.Equal(t, -5, r.FinalPosition)
		assert.Equal(t, "103.00", r.FinalAvgPrice.StringFixed(2))
	})

	t.Run("unpriced executions use the last price", func(t *testing.T) {
		unpriced := trade(1, event.Sell, 10, 0, event.ReasonStopLoss)
		unpriced.Status = event.StatusAccepted
		r, err := AnalyzeTrades([]telemetry.TradeRecord{
			trade(0, event.Buy, 10, 100, event.ReasonT1),
			unpriced,
		})
		require.NoError(t, err)
		assert.Equal(t, 0, r.UnpricedExecutions)
		assert.Equal(t, 1, r.RoundTrips)
		assert.True(t, r.TotalPnL.IsZero())
		assert.Equal(t, 0, r.WinningTrades+r.LosingTrades)
	})

	t.Run("leading unpriced execution is skipped", func(t *testing.T) {
		r, err := AnalyzeTrades([]telemetry.TradeRecord{trade(0, event.Buy, 10, 0, event.ReasonT1)})
		require.NoError(t, err)
		assert.Equal(t, 1, r.UnpricedExecutions)
		assert.Equal(t, 0, r.FinalPosition)
	})

	t.Run("out of order input is sorted", func(t *testing.T) {
		r, err := AnalyzeTrades([]telemetry.TradeRecord{
			trade(5, event.Sell, 10, 95, event.ReasonStopLoss),
			trade(0, event.Buy, 10, 100, event.ReasonT1),
		})
		require.NoError(t, err)
		assert.Equal(t, 1, r.LongLosingTrades)
		assert.Equal(t, "-50.00", r.TotalPnL.StringFixed(2))
		assert.Equal(t, "50.00", r.MaxDrawdown.StringFixed(2))
		assert.Equal(t, start, r.StartDate)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := AnalyzeTrades(nil)
		assert.ErrorIs(t, err, ErrNoTrades)
	})
}

func TestAnalyzeTrades_Aggregates(t *testing.T) {
	fallback := trade(5, event.Sell, 10, 98, event.ReasonFlatten)
	fallback.Status = event.StatusFallback
	r, err := AnalyzeTrades([]telemetry.TradeRecord{
		trade(0, event.Buy, 10, 100, event.ReasonT1),
		trade(1, event.Sell, 10, 104, event.ReasonT4),
		trade(2, event.Buy, 10, 100, event.ReasonT1),
		trade(3, event.Sell, 10, 102, event.ReasonT4),
		trade(4, event.Buy, 10, 100, event.ReasonT1),
		fallback,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, r.RoundTrips)
	assert.Equal(t, 2, r.WinningTrades)
	assert.Equal(t, 1, r.LosingTrades)
	assert.InDelta(t, 66.666, r.WinRate, 0.01)
	assert.Equal(t, "30.00", r.AverageProfit.StringFixed(2))
	assert.Equal(t, "-20.00", r.AverageLoss.StringFixed(2))
	assert.InDelta(t, 3.0, r.ProfitFactor, 1e-9)
	assert.Equal(t, 2, r.MaxConsecutiveWins)
	assert.Equal(t, 1, r.MaxConsecutiveLosses)
	assert.Equal(t, 1, r.FallbackExecutions)
	assert.Equal(t, 3, r.ByReason[event.ReasonT1])

	var buf bytes.Buffer
	require.NoError(t, r.Write(&buf))
	assert.Contains(t, buf.String(), "Realized PnL:          40.00")
	assert.Contains(t, buf.String(), "Round trips:           3")
}

func TestCalculateSharpeRatio(t *testing.T) {
	assert.Zero(t, calculateSharpeRatio(nil, 0))
	assert.Zero(t, calculateSharpeRatio([]float64{5, 5}, 0))
	assert.InDelta(t, 1.0, calculateSharpeRatio([]float64{2, 0}, 0), 1e-9)
}
