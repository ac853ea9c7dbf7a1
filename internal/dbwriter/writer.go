package dbwriter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/your-org/trigger-trader/internal/event"
)

// Execution is one terminal order record as stored in the executions table.
type Execution struct {
	Time    time.Time `db:"time"`
	Symbol  string    `db:"symbol"`
	Side    string    `db:"side"` // "buy" or "sell"
	Qty     int       `db:"qty"`
	Price   float64   `db:"price"`
	Status  string    `db:"status"`
	Reason  string    `db:"reason"`
	OrderID string    `db:"order_id"`
	Mode    string    `db:"mode"`
}

// ExecutionFromEvent converts a pipeline execution into its table row.
func ExecutionFromEvent(e event.Execution) Execution {
	return Execution{
		Time:    e.Time,
		Symbol:  e.Symbol,
		Side:    e.Side.Lower(),
		Qty:     e.Qty,
		Price:   e.Price,
		Status:  string(e.Status),
		Reason:  string(e.Reason),
		OrderID: e.OrderID,
		Mode:    string(e.Mode),
	}
}

// PriceSample is a periodic last-price observation.
type PriceSample struct {
	Time   time.Time `db:"time"`
	Symbol string    `db:"symbol"`
	Price  float64   `db:"price"`
}

// PnLSummary is the ledger state written after every execution.
type PnLSummary struct {
	Time        time.Time `db:"time"`
	Symbol      string    `db:"symbol"`
	Position    int       `db:"position"`
	AvgPrice    float64   `db:"avg_price"`
	RealizedPnL float64   `db:"realized_pnl"`
	DailyPnL    float64   `db:"daily_pnl"`
}

var (
	executionColumns   = []string{"time", "symbol", "side", "qty", "price", "status", "reason", "order_id", "mode"}
	priceSampleColumns = []string{"time", "symbol", "price"}
)

const (
	defaultBatchSize     = 100
	defaultFlushInterval = time.Second
)

// Pool is an interface that abstracts the pgxpool.Pool for testability.
type Pool interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Close()
}

// TimescaleWriter batches executions and price samples into TimescaleDB.
type TimescaleWriter struct {
	pool         Pool
	logger       *zap.Logger
	batchSize    int
	execBuffer   []Execution
	priceBuffer  []PriceSample
	bufferMutex  sync.Mutex
	flushTicker  *time.Ticker
	shutdownChan chan struct{}
	closeOnce    sync.Once
	done         chan struct{}
}

// NewTimescaleWriter creates a writer over pool and starts its background
// flusher. Buffers are flushed when they reach batchSize or every
// flushInterval, whichever comes first.
func NewTimescaleWriter(pool Pool, batchSize int, flushInterval time.Duration, logger *zap.Logger) *TimescaleWriter {
	if batchSize <= 0 {
		logger.Warn("BatchSize is zero or negative, using default.", zap.Int("originalValue", batchSize))
		batchSize = defaultBatchSize
	}
	if flushInterval <= 0 {
		logger.Warn("FlushInterval is zero or negative, using default.", zap.Duration("originalValue", flushInterval))
		flushInterval = defaultFlushInterval
	}

	w := &TimescaleWriter{
		pool:         pool,
		logger:       logger,
		batchSize:    batchSize,
		execBuffer:   make([]Execution, 0, batchSize),
		priceBuffer:  make([]PriceSample, 0, batchSize),
		flushTicker:  time.NewTicker(flushInterval),
		shutdownChan: make(chan struct{}),
		done:         make(chan struct{}),
	}
	go w.run()
	logger.Info("Started TimescaleDB batch writer", zap.Int("batchSize", batchSize), zap.Duration("flushInterval", flushInterval))
	return w
}

// Close stops the flusher, writes whatever is buffered and closes the pool.
func (w *TimescaleWriter) Close() {
	w.closeOnce.Do(func() {
		w.logger.Info("Closing TimescaleDB writer...")
		close(w.shutdownChan)
		<-w.done
		w.flushTicker.Stop()

		w.flushBuffers()

		w.pool.Close()
		w.logger.Info("TimescaleDB connection pool closed")
	})
}

func (w *TimescaleWriter) run() {
	defer close(w.done)
	for {
		select {
		case <-w.flushTicker.C:
			w.flushBuffers()
		case <-w.shutdownChan:
			return
		}
	}
}

// SaveExecution adds an execution to the buffer.
func (w *TimescaleWriter) SaveExecution(exec Execution) {
	w.bufferMutex.Lock()
	w.execBuffer = append(w.execBuffer, exec)
	shouldFlush := len(w.execBuffer) >= w.batchSize
	w.bufferMutex.Unlock()

	if shouldFlush {
		w.flushBuffers()
	}
}

// SavePriceSample adds a price sample to the buffer.
func (w *TimescaleWriter) SavePriceSample(sample PriceSample) {
	w.bufferMutex.Lock()
	w.priceBuffer = append(w.priceBuffer, sample)
	shouldFlush := len(w.priceBuffer) >= w.batchSize
	w.bufferMutex.Unlock()

	if shouldFlush {
		w.flushBuffers()
	}
}

func (w *TimescaleWriter) flushBuffers() {
	w.bufferMutex.Lock()
	defer w.bufferMutex.Unlock()

	if len(w.execBuffer) > 0 {
		w.copyRows(context.Background(), "executions", executionColumns, toExecutionInterfaces(w.execBuffer))
		w.execBuffer = w.execBuffer[:0]
	}

	if len(w.priceBuffer) > 0 {
		w.copyRows(context.Background(), "price_samples", priceSampleColumns, toPriceSampleInterfaces(w.priceBuffer))
		w.priceBuffer = w.priceBuffer[:0]
	}
}

func (w *TimescaleWriter) copyRows(ctx context.Context, table string, columns []string, rows [][]interface{}) {
	w.logger.Debug("Flushing rows", zap.String("table", table), zap.Int("count", len(rows)))
	_, err := w.pool.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		w.logger.Error("Failed to batch insert", zap.String("table", table), zap.Error(err))
	}
}

func toExecutionInterfaces(execs []Execution) [][]interface{} {
	rows := make([][]interface{}, len(execs))
	for i, e := range execs {
		rows[i] = []interface{}{e.Time, e.Symbol, e.Side, e.Qty, e.Price, e.Status, e.Reason, e.OrderID, e.Mode}
	}
	return rows
}

func toPriceSampleInterfaces(samples []PriceSample) [][]interface{} {
	rows := make([][]interface{}, len(samples))
	for i, s := range samples {
		rows[i] = []interface{}{s.Time, s.Symbol, s.Price}
	}
	return rows
}

// SavePnLSummary writes a single PnL summary row.
func (w *TimescaleWriter) SavePnLSummary(ctx context.Context, pnl PnLSummary) error {
	query := `INSERT INTO pnl_summary (time, symbol, position, avg_price, realized_pnl, daily_pnl)
	          VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := w.pool.Exec(ctx, query,
		pnl.Time, pnl.Symbol, pnl.Position,
		pnl.AvgPrice, pnl.RealizedPnL, pnl.DailyPnL,
	)
	if err != nil {
		w.logger.Error("Failed to insert PnL summary", zap.Error(err), zap.Any("pnl", pnl))
		return fmt.Errorf("failed to insert PnL summary: %w", err)
	}
	return nil
}
