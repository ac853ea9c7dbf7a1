package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/your-org/trigger-trader/internal/alert"
	"github.com/your-org/trigger-trader/internal/dbwriter"
	"github.com/your-org/trigger-trader/internal/event"
	"github.com/your-org/trigger-trader/internal/risk"
	"github.com/your-org/trigger-trader/pkg/logger"
	"github.com/your-org/trigger-trader/pkg/queue"
)

// Accounting receives every execution for the ledger.
type Accounting interface {
	OnFill(e event.Execution)
}

// TradeLog persists executions for display.
type TradeLog interface {
	RecordExecution(e event.Execution) error
}

type ledgerUpdate struct {
	exec  event.Execution
	after risk.LedgerSnapshot
}

// Journal is the consumer of the execution channel: it closes the loop
// back into the risk ledger and fans each execution out to the trade log,
// the database sink and the notifier.
type Journal struct {
	executions *queue.Queue[event.Execution]
	accounting Accounting
	trades     TradeLog
	db         dbwriter.DBWriter
	notifier   alert.Notifier
	ledger     *queue.Queue[ledgerUpdate]
}

// NewJournal creates a Journal. db and notifier may be nil.
func NewJournal(executions *queue.Queue[event.Execution], accounting Accounting, trades TradeLog, db dbwriter.DBWriter, notifier alert.Notifier) *Journal {
	if notifier == nil {
		notifier = alert.NewNoOpNotifier()
	}
	return &Journal{
		executions: executions,
		accounting: accounting,
		trades:     trades,
		db:         db,
		notifier:   notifier,
		ledger:     queue.New[ledgerUpdate](),
	}
}

// OnLedger is a risk.FillHook; it queues the post-fill ledger for the
// database so the gate goroutine never waits on I/O.
func (j *Journal) OnLedger(e event.Execution, after risk.LedgerSnapshot) {
	if j.db != nil {
		j.ledger.Push(ledgerUpdate{exec: e, after: after})
	}
}

// Run blocks until ctx is done.
func (j *Journal) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-j.executions.Ready():
			for {
				e, ok := j.executions.TryPop()
				if !ok {
					break
				}
				j.record(e)
			}
		case <-j.ledger.Ready():
			for {
				u, ok := j.ledger.TryPop()
				if !ok {
					break
				}
				j.savePnL(ctx, u)
			}
		}
	}
}

func (j *Journal) record(e event.Execution) {
	j.accounting.OnFill(e)

	logger.Infof("[EXEC] %s %s %d @ %.2f %s (%s, %s)", e.Symbol, e.Side, e.Qty, e.Price, e.Status, e.Reason, e.Mode)
	if err := j.trades.RecordExecution(e); err != nil {
		logger.Warnf("[EXEC] failed to record execution: %v", err)
	}
	if j.db != nil {
		j.db.SaveExecution(dbwriter.ExecutionFromEvent(e))
	}
	if err := j.notifier.Send(formatExecution(e)); err != nil {
		logger.Debugf("[EXEC] notifier: %v", err)
	}
}

func (j *Journal) savePnL(ctx context.Context, u ledgerUpdate) {
	summary := dbwriter.PnLSummary{
		Time:        u.exec.Time,
		Symbol:      u.exec.Symbol,
		Position:    u.after.Position,
		AvgPrice:    u.after.AvgPrice,
		RealizedPnL: u.after.RealizedPnL,
		DailyPnL:    u.after.DailyPnL,
	}
	saveCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := j.db.SavePnLSummary(saveCtx, summary); err != nil {
		logger.Warnf("[EXEC] failed to save PnL summary: %v", err)
	}
}

func formatExecution(e event.Execution) string {
	msg := fmt.Sprintf("%s %s %d %s @ %.2f [%s] %s", e.Mode, e.Side, e.Qty, e.Symbol, e.Price, e.Reason, e.Status)
	if e.Status == event.StatusFallback {
		msg += " (live order failed)"
	}
	return msg
}
