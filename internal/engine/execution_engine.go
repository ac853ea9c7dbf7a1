package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/your-org/trigger-trader/internal/event"
	"github.com/your-org/trigger-trader/internal/exchange/alpaca"
	"github.com/your-org/trigger-trader/pkg/logger"
)

// ErrNoPrice is returned when a fill needs a last price and none was seen yet.
var ErrNoPrice = errors.New("no price observed yet")

// Fill is what an ExecutionEngine learned about a placed order.
type Fill struct {
	Price   float64
	Status  event.ExecStatus
	OrderID string
}

// ExecutionEngine defines the interface for order execution.
type ExecutionEngine interface {
	PlaceOrder(ctx context.Context, order event.ApprovedOrder) (Fill, error)
}

// PriceFunc reports the last observed price.
type PriceFunc func() (float64, bool)

// OrderPlacer is the venue call the live engine depends on.
type OrderPlacer interface {
	NewOrder(ctx context.Context, req alpaca.OrderRequest) (*alpaca.OrderResponse, error)
}

// LiveExecutionEngine handles real order placement with the venue.
type LiveExecutionEngine struct {
	client OrderPlacer
}

// NewLiveExecutionEngine creates a new LiveExecutionEngine.
func NewLiveExecutionEngine(client OrderPlacer) *LiveExecutionEngine {
	return &LiveExecutionEngine{client: client}
}

// PlaceOrder sends a day market order. The fill price is the venue's average
// fill price when the response carries one; otherwise the order is reported
// as accepted without a price.
func (e *LiveExecutionEngine) PlaceOrder(ctx context.Context, order event.ApprovedOrder) (Fill, error) {
	if e.client == nil {
		return Fill{}, fmt.Errorf("LiveExecutionEngine: exchange client is not initialized")
	}

	req := alpaca.NewMarketOrder(order.Symbol, string(order.Side), order.Qty)
	logger.Infof("[Live] Placing order: %s %s %d (%s) client_order_id=%s", req.Symbol, req.Side, req.Qty, order.Reason, req.ClientOrderID)
	resp, err := e.client.NewOrder(ctx, req)
	if err != nil {
		return Fill{}, err
	}

	fill := Fill{Status: event.StatusAccepted, OrderID: resp.ID}
	if price, ok := resp.FilledPrice(); ok {
		fill.Price = price
		fill.Status = event.StatusFilled
	}
	logger.Infof("[Live] Order %s %s, filled_avg_price=%.2f", resp.ID, resp.Status, fill.Price)
	return fill, nil
}

// SimExecutionEngine fills at the last observed price without calling out.
type SimExecutionEngine struct {
	price PriceFunc
}

// NewSimExecutionEngine creates a new SimExecutionEngine.
func NewSimExecutionEngine(price PriceFunc) *SimExecutionEngine {
	return &SimExecutionEngine{price: price}
}

// PlaceOrder simulates an immediate fill.
func (e *SimExecutionEngine) PlaceOrder(_ context.Context, order event.ApprovedOrder) (Fill, error) {
	price, ok := e.price()
	if !ok {
		return Fill{}, ErrNoPrice
	}
	logger.Infof("[OMS-SIM] %s %d @ %.2f (reason: %s)", order.Side, order.Qty, price, order.Reason)
	return Fill{Price: price, Status: event.StatusSimulated, OrderID: "sim-" + uuid.NewString()}, nil
}
