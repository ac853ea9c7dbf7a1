// Package feed defines the tick source contract and the synthetic and
// recorded sources that implement it.
package feed

import (
	"context"
	"time"

	"github.com/your-org/trigger-trader/internal/event"
	"github.com/your-org/trigger-trader/pkg/queue"
)

// Source produces ticks for symbol into out until ctx is done. A nil return
// before cancellation tells the caller to restart the stream.
type Source interface {
	Stream(ctx context.Context, symbol string, out *queue.Queue[event.Tick]) error
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, symbol string, out *queue.Queue[event.Tick]) error

// Stream calls f.
func (f SourceFunc) Stream(ctx context.Context, symbol string, out *queue.Queue[event.Tick]) error {
	return f(ctx, symbol, out)
}

// sleep waits for d or until ctx is done, reporting whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
