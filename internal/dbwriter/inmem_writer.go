package dbwriter

import (
	"context"
	"sync"
)

// InMemWriter is an in-memory implementation of the DBWriter interface for testing.
type InMemWriter struct {
	mu           sync.RWMutex
	Executions   []Execution
	PriceSamples []PriceSample
	PnlSummaries []PnLSummary
	IsClosed     bool
}

// NewInMemWriter creates a new InMemWriter.
func NewInMemWriter() *InMemWriter {
	return &InMemWriter{
		Executions:   make([]Execution, 0),
		PriceSamples: make([]PriceSample, 0),
		PnlSummaries: make([]PnLSummary, 0),
	}
}

// SaveExecution appends an execution to the in-memory slice.
func (w *InMemWriter) SaveExecution(exec Execution) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Executions = append(w.Executions, exec)
}

// SavePriceSample appends a price sample to the in-memory slice.
func (w *InMemWriter) SavePriceSample(sample PriceSample) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.PriceSamples = append(w.PriceSamples, sample)
}

// SavePnLSummary appends a PnL summary to the in-memory slice.
func (w *InMemWriter) SavePnLSummary(ctx context.Context, pnl PnLSummary) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.PnlSummaries = append(w.PnlSummaries, pnl)
	return nil
}

// Close marks the writer as closed.
func (w *InMemWriter) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.IsClosed = true
}

// Snapshot returns copies of the stored records.
func (w *InMemWriter) Snapshot() ([]Execution, []PriceSample, []PnLSummary) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]Execution(nil), w.Executions...),
		append([]PriceSample(nil), w.PriceSamples...),
		append([]PnLSummary(nil), w.PnlSummaries...)
}

// Clear resets all the in-memory slices.
func (w *InMemWriter) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Executions = make([]Execution, 0)
	w.PriceSamples = make([]PriceSample, 0)
	w.PnlSummaries = make([]PnLSummary, 0)
	w.IsClosed = false
}
