package supervisor

import (
	"context"
	"time"

	"github.com/your-org/trigger-trader/pkg/logger"
)

// NextClose returns the first weekday close at hour:minute in loc that is
// strictly after now.
func NextClose(now time.Time, loc *time.Location, hour, minute int) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// EODWatcher sleeps until each scheduled close and then runs OnClose.
type EODWatcher struct {
	Location *time.Location
	Hour     int
	Minute   int
	OnClose  func(ctx context.Context) error

	now func() time.Time
}

// Run blocks until ctx is done. A failing OnClose is logged and the watcher
// moves on to the next close.
func (w *EODWatcher) Run(ctx context.Context) error {
	now := w.now
	if now == nil {
		now = time.Now
	}
	for {
		at := NextClose(now(), w.Location, w.Hour, w.Minute)
		logger.Infof("[EOD] next flatten scheduled at %s", at.Format(time.RFC3339))

		timer := time.NewTimer(at.Sub(now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		logger.Info("[EOD] market close reached, flattening")
		if err := w.OnClose(ctx); err != nil && ctx.Err() == nil {
			logger.Errorf("[EOD] close handling failed: %v", err)
		}
	}
}
