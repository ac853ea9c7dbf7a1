package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/your-org/trigger-trader/internal/event"
	"github.com/your-org/trigger-trader/internal/exchange/alpaca"
	"github.com/your-org/trigger-trader/pkg/queue"
)

type mockPlacer struct {
	mock.Mock
}

func (m *mockPlacer) NewOrder(ctx context.Context, req alpaca.OrderRequest) (*alpaca.OrderResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*alpaca.OrderResponse)
	return resp, args.Error(1)
}

var t0 = time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

func approval(side event.Side, qty int, reason event.Reason) event.ApprovedOrder {
	return event.ApprovedOrder{Time: t0, Symbol: "DIA", Side: side, Qty: qty, Reason: reason}
}

func fixedPrice(p float64) PriceFunc {
	return func() (float64, bool) { return p, p > 0 }
}

func TestLiveExecutionEngine_FilledPrice(t *testing.T) {
	placer := &mockPlacer{}
	price := "476.61"
	placer.On("NewOrder", mock.Anything, mock.MatchedBy(func(req alpaca.OrderRequest) bool {
		return req.Symbol == "DIA" && req.Side == "buy" && req.Qty == 10 && req.Type == "market"
	})).Return(&alpaca.OrderResponse{ID: "o-1", Status: "filled", FilledAvgPrice: &price}, nil).Once()

	fill, err := NewLiveExecutionEngine(placer).PlaceOrder(context.Background(), approval(event.Buy, 10, event.ReasonT1))
	require.NoError(t, err)
	assert.Equal(t, Fill{Price: 476.61, Status: event.StatusFilled, OrderID: "o-1"}, fill)
	placer.AssertExpectations(t)
}

func TestLiveExecutionEngine_AcceptedWithoutPrice(t *testing.T) {
	placer := &mockPlacer{}
	placer.On("NewOrder", mock.Anything, mock.Anything).Return(&alpaca.OrderResponse{ID: "o-2", Status: "accepted"}, nil)

	fill, err := NewLiveExecutionEngine(placer).PlaceOrder(context.Background(), approval(event.Sell, 5, event.ReasonT2))
	require.NoError(t, err)
	assert.Equal(t, event.StatusAccepted, fill.Status)
	assert.Zero(t, fill.Price)
}

func TestSimExecutionEngine(t *testing.T) {
	fill, err := NewSimExecutionEngine(fixedPrice(476.5)).PlaceOrder(context.Background(), approval(event.Buy, 1, event.ReasonT1))
	require.NoError(t, err)
	assert.Equal(t, 476.5, fill.Price)
	assert.Equal(t, event.StatusSimulated, fill.Status)
	assert.Contains(t, fill.OrderID, "sim-")

	_, err = NewSimExecutionEngine(fixedPrice(0)).PlaceOrder(context.Background(), approval(event.Buy, 1, event.ReasonT1))
	assert.ErrorIs(t, err, ErrNoPrice)
}

func TestRouter_LiveFailureFallsBackToLastPrice(t *testing.T) {
	placer := &mockPlacer{}
	placer.On("NewOrder", mock.Anything, mock.Anything).Return(nil, errors.New("boom"))

	r := NewRouter(NewLiveExecutionEngine(placer), NewSimExecutionEngine(fixedPrice(476.4)), fixedPrice(476.4),
		queue.New[event.ApprovedOrder](), queue.New[event.Execution](), event.ModeLive)
	exec := r.route(context.Background(), approval(event.Sell, 30, event.ReasonT3))

	assert.Equal(t, event.Execution{
		Time: t0, Symbol: "DIA", Side: event.Sell, Qty: 30, Price: 476.4,
		Status: event.StatusFallback, Reason: event.ReasonT3, Mode: event.ModeLive,
	}, exec)
}

func TestRouter_FallbackWithoutPrice(t *testing.T) {
	placer := &mockPlacer{}
	placer.On("NewOrder", mock.Anything, mock.Anything).Return(nil, errors.New("boom"))

	r := NewRouter(NewLiveExecutionEngine(placer), nil, fixedPrice(0),
		queue.New[event.ApprovedOrder](), queue.New[event.Execution](), event.ModeLive)
	exec := r.route(context.Background(), approval(event.Buy, 1, event.ReasonT1))
	assert.Equal(t, event.StatusFallback, exec.Status)
	assert.False(t, exec.HasPrice())
}

func TestRouter_ModeSwitch(t *testing.T) {
	placer := &mockPlacer{}
	price := "100.10"
	placer.On("NewOrder", mock.Anything, mock.Anything).Return(&alpaca.OrderResponse{ID: "x", FilledAvgPrice: &price}, nil)

	r := NewRouter(NewLiveExecutionEngine(placer), NewSimExecutionEngine(fixedPrice(99)), fixedPrice(99),
		queue.New[event.ApprovedOrder](), queue.New[event.Execution](), event.ModeSim)

	exec := r.route(context.Background(), approval(event.Buy, 1, event.ReasonT1))
	assert.Equal(t, event.ModeSim, exec.Mode)
	assert.Equal(t, 99.0, exec.Price)
	placer.AssertNotCalled(t, "NewOrder", mock.Anything, mock.Anything)

	r.SetMode(event.ModeLive)
	exec = r.route(context.Background(), approval(event.Buy, 1, event.ReasonT1))
	assert.Equal(t, event.ModeLive, exec.Mode)
	assert.Equal(t, 100.10, exec.Price)
	assert.Equal(t, event.StatusFilled, exec.Status)
}

func TestRouter_NoLiveEngineRoutesToSim(t *testing.T) {
	r := NewRouter(nil, NewSimExecutionEngine(fixedPrice(50)), fixedPrice(50),
		queue.New[event.ApprovedOrder](), queue.New[event.Execution](), event.ModeLive)
	exec := r.route(context.Background(), approval(event.Buy, 1, event.ReasonT1))
	assert.Equal(t, event.ModeSim, exec.Mode)
	assert.Equal(t, event.StatusSimulated, exec.Status)
}

func TestRouter_RunAgainstVenue(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req alpaca.OrderRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"id": req.ClientOrderID, "status": "filled", "filled_avg_price": "476.70"})
	}))
	defer server.Close()

	approvals := queue.New[event.ApprovedOrder]()
	executions := queue.New[event.Execution]()
	client := alpaca.NewClient("k", "s", server.URL, time.Second)
	r := NewRouter(NewLiveExecutionEngine(client), NewSimExecutionEngine(fixedPrice(1)), fixedPrice(1), approvals, executions, event.ModeLive)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Run(ctx) }()

	approvals.Push(approval(event.Buy, 10, event.ReasonT1))
	approvals.Push(approval(event.Sell, 10, event.ReasonTakeProfit))

	popCtx, popCancel := context.WithTimeout(ctx, 2*time.Second)
	defer popCancel()
	first, err := executions.Pop(popCtx)
	require.NoError(t, err)
	second, err := executions.Pop(popCtx)
	require.NoError(t, err)

	assert.Equal(t, event.ReasonT1, first.Reason)
	assert.Equal(t, 476.70, first.Price)
	assert.NotEmpty(t, first.OrderID)
	assert.Equal(t, event.ReasonTakeProfit, second.Reason, "executions keep approval order")
}
