package dbwriter

import (
	"context"

	"github.com/your-org/trigger-trader/pkg/logger"
)

// dummyWriter is a no-op implementation of the DBWriter interface.
// It is used when no database is configured.
type dummyWriter struct {
	logger logger.Logger
}

// NewDummyWriter creates a new dummy writer.
func NewDummyWriter(l logger.Logger) DBWriter {
	l.Info("Creating dummy DB writer because no database is configured.")
	return &dummyWriter{logger: l}
}

// SaveExecution does nothing.
func (d *dummyWriter) SaveExecution(exec Execution) {
	// No-op
}

// SavePriceSample does nothing.
func (d *dummyWriter) SavePriceSample(sample PriceSample) {
	// No-op
}

// SavePnLSummary does nothing and returns nil.
func (d *dummyWriter) SavePnLSummary(ctx context.Context, pnl PnLSummary) error {
	d.logger.Debugf("Dummy writer: SavePnLSummary called: %+v", pnl)
	return nil
}

// Close does nothing.
func (d *dummyWriter) Close() {
	d.logger.Debug("Dummy writer: Close called")
}
