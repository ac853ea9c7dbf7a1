package dbwriter

import (
	"context"
)

// DBWriter defines the interface for writing trading records to the database.
// This allows for mocking in tests.
type DBWriter interface {
	SaveExecution(exec Execution)
	SavePriceSample(sample PriceSample)
	SavePnLSummary(ctx context.Context, pnl PnLSummary) error
	Close()
}
