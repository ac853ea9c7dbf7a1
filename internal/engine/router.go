// Package engine routes approved orders to the live venue or the simulator
// and emits one execution per approval.
package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/your-org/trigger-trader/internal/event"
	"github.com/your-org/trigger-trader/internal/metrics"
	"github.com/your-org/trigger-trader/pkg/logger"
	"github.com/your-org/trigger-trader/pkg/queue"
)

// Router consumes approvals and produces executions.
type Router struct {
	live       ExecutionEngine
	sim        ExecutionEngine
	price      PriceFunc
	approvals  *queue.Queue[event.ApprovedOrder]
	executions *queue.Queue[event.Execution]
	mode       atomic.Value // event.Mode
	timeout    time.Duration
}

// NewRouter creates a Router starting in mode.
func NewRouter(live, sim ExecutionEngine, price PriceFunc, approvals *queue.Queue[event.ApprovedOrder], executions *queue.Queue[event.Execution], mode event.Mode) *Router {
	r := &Router{
		live:       live,
		sim:        sim,
		price:      price,
		approvals:  approvals,
		executions: executions,
		timeout:    10 * time.Second,
	}
	r.mode.Store(mode)
	return r
}

// SetMode switches where subsequent approvals are routed.
func (r *Router) SetMode(m event.Mode) {
	if prev := r.Mode(); prev != m {
		logger.Infof("[OMS] mode %s -> %s", prev, m)
	}
	r.mode.Store(m)
}

// Mode returns the current routing mode.
func (r *Router) Mode() event.Mode {
	return r.mode.Load().(event.Mode)
}

// Run blocks until ctx is done.
func (r *Router) Run(ctx context.Context) error {
	for {
		order, err := r.approvals.Pop(ctx)
		if err != nil {
			return nil
		}
		r.executions.Push(r.route(ctx, order))
	}
}

// route places one order. A failed placement is realised at the last
// observed price instead of failing the cycle.
func (r *Router) route(ctx context.Context, order event.ApprovedOrder) event.Execution {
	mode := r.Mode()
	eng := r.live
	if mode == event.ModeSim || eng == nil {
		mode = event.ModeSim
		eng = r.sim
	}

	placeCtx, cancel := context.WithTimeout(ctx, r.timeout)
	fill, err := eng.PlaceOrder(placeCtx, order)
	cancel()
	if err != nil {
		logger.Errorf("[OMS-ERROR] %s order failed: %v", mode, err)
		fill = Fill{Status: event.StatusFallback}
		if price, ok := r.price(); ok {
			fill.Price = price
		}
	}

	exec := event.Execution{
		Time:    order.Time,
		Symbol:  order.Symbol,
		Side:    order.Side,
		Qty:     order.Qty,
		Price:   fill.Price,
		Status:  fill.Status,
		Reason:  order.Reason,
		OrderID: fill.OrderID,
		Mode:    mode,
	}
	metrics.ExecutionsTotal.WithLabelValues(exec.Symbol, string(mode), string(exec.Side), string(exec.Status)).Inc()
	return exec
}

// SetTimeout bounds each live order call.
func (r *Router) SetTimeout(d time.Duration) {
	if d > 0 {
		r.timeout = d
	}
}
