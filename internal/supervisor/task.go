package supervisor

import (
	"context"
	"fmt"
	"runtime/debug"

	"golang.org/x/sync/errgroup"

	"github.com/your-org/trigger-trader/pkg/logger"
)

// Task is one long-running component.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// RunTasks runs every task under one group. The first task to fail, by
// error or by panic, cancels the rest; the returned error names it.
func RunTasks(ctx context.Context, tasks ...Task) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, t := range tasks {
		g.Go(func() error { return guard(ctx, t) })
	}
	return g.Wait()
}

func guard(ctx context.Context, t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[SUPERVISOR] task %s panicked: %v\n%s", t.Name, r, debug.Stack())
			err = fmt.Errorf("task %s panicked: %v", t.Name, r)
		}
	}()
	if err := t.Run(ctx); err != nil {
		return fmt.Errorf("task %s: %w", t.Name, err)
	}
	return nil
}
