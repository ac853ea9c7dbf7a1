// Package telemetry writes the display artifacts read by dashboards and the
// operator CLI: state.json, prices.jsonl, trades.jsonl, trades.csv and
// mode.txt. None of them are read back by the trading pipeline except
// mode.txt at startup.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/your-org/trigger-trader/internal/csvwriter"
	"github.com/your-org/trigger-trader/internal/event"
)

const (
	StateFile  = "state.json"
	PricesFile = "prices.jsonl"
	TradesFile = "trades.jsonl"
	TradesCSV  = "trades.csv"
	ModeFile   = "mode.txt"
)

// State is the periodic snapshot written to state.json and served on /state.
type State struct {
	Timestamp       time.Time  `json:"ts"`
	Symbol          string     `json:"symbol"`
	Phase           string     `json:"phase"`
	LastPrice       *float64   `json:"last_price"`
	BasePrice       *float64   `json:"base_price"`
	FirstOrderPrice *float64   `json:"first_order_price"`
	Cycles          int        `json:"cycles"`
	Mode            event.Mode `json:"mode"`
	Paused          bool       `json:"paused"`
	Ticks           int64      `json:"ticks"`
	LastTickAge     *float64   `json:"last_tick_age"` // seconds
	Position        int        `json:"position"`
	AvgPrice        float64    `json:"avg_price"`
	RealizedPnL     float64    `json:"realized_pnl"`
	DailyPnL        float64    `json:"daily_pnl"`
}

// PriceSample is one prices.jsonl record.
type PriceSample struct {
	Timestamp time.Time `json:"ts"`
	Price     float64   `json:"price"`
}

// TradeRecord is one trades.jsonl record.
type TradeRecord struct {
	Timestamp time.Time        `json:"ts"`
	Symbol    string           `json:"symbol"`
	Side      event.Side       `json:"side"`
	Qty       int              `json:"qty"`
	Price     float64          `json:"price"`
	Reason    event.Reason     `json:"reason"`
	Status    event.ExecStatus `json:"status,omitempty"`
	Mode      event.Mode       `json:"mode,omitempty"`
	OrderID   string           `json:"order_id,omitempty"`
}

// TradeFromExecution maps an execution onto its log record.
func TradeFromExecution(e event.Execution) TradeRecord {
	return TradeRecord{
		Timestamp: e.Time,
		Symbol:    e.Symbol,
		Side:      e.Side,
		Qty:       e.Qty,
		Price:     e.Price,
		Reason:    e.Reason,
		Status:    e.Status,
		Mode:      e.Mode,
		OrderID:   e.OrderID,
	}
}

// Recorder owns the files in the runtime directory.
type Recorder struct {
	dir    string
	logger *zap.Logger

	mu     sync.Mutex
	prices *os.File
	trades *os.File
	csv    *csvwriter.Writer

	onPrice func(PriceSample)
}

// OnPrice registers fn to receive every sample written to the price tap.
// Call before Run.
func (r *Recorder) OnPrice(fn func(PriceSample)) {
	r.onPrice = fn
}

// NewRecorder opens the append-only logs under dir. withCSV adds trades.csv.
func NewRecorder(dir string, withCSV bool, logger *zap.Logger) (*Recorder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create runtime dir: %w", err)
	}
	r := &Recorder{dir: dir, logger: logger}

	var err error
	if r.prices, err = openAppend(filepath.Join(dir, PricesFile)); err != nil {
		return nil, err
	}
	if r.trades, err = openAppend(filepath.Join(dir, TradesFile)); err != nil {
		r.prices.Close()
		return nil, err
	}
	if withCSV {
		header := []string{"ts", "side", "qty", "price", "reason"}
		if r.csv, err = csvwriter.NewWriter(filepath.Join(dir, TradesCSV), header, logger); err != nil {
			r.prices.Close()
			r.trades.Close()
			return nil, err
		}
	}
	return r, nil
}

func openAppend(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", filepath.Base(path), err)
	}
	return f, nil
}

// Dir returns the runtime directory.
func (r *Recorder) Dir() string {
	return r.dir
}

// Run writes the state snapshot and the price tap on their cadences until
// ctx is done. Write failures are logged, never fatal.
func (r *Recorder) Run(ctx context.Context, stateEvery, priceEvery time.Duration, state func() State, price func() (float64, bool)) error {
	stateTicker := time.NewTicker(stateEvery)
	defer stateTicker.Stop()
	priceTicker := time.NewTicker(priceEvery)
	defer priceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stateTicker.C:
			if err := r.WriteState(state()); err != nil {
				r.logger.Warn("failed to write state", zap.Error(err))
			}
		case now := <-priceTicker.C:
			p, ok := price()
			if !ok {
				continue
			}
			sample := PriceSample{Timestamp: now, Price: p}
			if err := r.AppendPrice(sample); err != nil {
				r.logger.Warn("failed to append price", zap.Error(err))
			}
			if r.onPrice != nil {
				r.onPrice(sample)
			}
		}
	}
}

// WriteState replaces state.json atomically.
func (r *Recorder) WriteState(s State) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return writeAtomic(filepath.Join(r.dir, StateFile), data)
}

// AppendPrice appends one price tap record.
func (r *Recorder) AppendPrice(s PriceSample) error {
	return r.appendJSON(r.prices, s)
}

// RecordExecution appends the execution to trades.jsonl and trades.csv.
func (r *Recorder) RecordExecution(e event.Execution) error {
	rec := TradeFromExecution(e)
	err := r.appendJSON(r.trades, rec)
	if r.csv != nil {
		err = multierr.Append(err, r.csv.Write([]string{
			rec.Timestamp.UTC().Format(time.RFC3339Nano),
			string(rec.Side),
			strconv.Itoa(rec.Qty),
			strconv.FormatFloat(rec.Price, 'f', 2, 64),
			string(rec.Reason),
		}))
		r.csv.Flush()
	}
	return err
}

func (r *Recorder) appendJSON(f *os.File, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err = f.Write(append(data, '\n'))
	return err
}

// WriteMode records which source is feeding the bot.
func (r *Recorder) WriteMode(m event.Mode) error {
	return writeAtomic(filepath.Join(r.dir, ModeFile), []byte(m))
}

// ReadMode returns the mode recorded by a previous run.
func ReadMode(dir string) (event.Mode, bool) {
	data, err := os.ReadFile(filepath.Join(dir, ModeFile))
	if err != nil {
		return "", false
	}
	return event.ParseMode(string(data))
}

// ReadState loads state.json.
func ReadState(dir string) (State, error) {
	var s State
	data, err := os.ReadFile(filepath.Join(dir, StateFile))
	if err != nil {
		return s, err
	}
	err = json.Unmarshal(data, &s)
	return s, err
}

// Close flushes and closes every file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := multierr.Combine(r.prices.Close(), r.trades.Close())
	if r.csv != nil {
		err = multierr.Append(err, r.csv.Close())
	}
	return err
}

// writeAtomic replaces path so a concurrent reader never sees a partial file.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if err := multierr.Combine(werr, cerr); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	_ = os.Chmod(tmp.Name(), 0o644)
	return os.Rename(tmp.Name(), path)
}
