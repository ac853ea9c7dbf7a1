// Package main exports recorded price samples or executions from the
// database as CSV. Price exports use the ts,price,size layout that
// `bot -replay` reads back.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/your-org/trigger-trader/internal/config"
	"github.com/your-org/trigger-trader/internal/dbwriter"
	"github.com/your-org/trigger-trader/pkg/logger"
)

const timeLayout = "2006-01-02 15:04:05"

// rows is the part of pgx.Rows the exporters read.
type rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

type table struct {
	query  string
	header []string
	record func(r rows) ([]string, error)
}

var tables = map[string]table{
	"prices": {
		query: `
        SELECT time, price
        FROM price_samples
        WHERE symbol = $1 AND time >= $2 AND time < $3
        ORDER BY time ASC;`,
		header: []string{"ts", "price", "size"},
		record: func(r rows) ([]string, error) {
			var t time.Time
			var price float64
			if err := r.Scan(&t, &price); err != nil {
				return nil, err
			}
			return []string{t.UTC().Format(time.RFC3339Nano), strconv.FormatFloat(price, 'f', -1, 64), ""}, nil
		},
	},
	"executions": {
		query: `
        SELECT time, symbol, side, qty, price, status, reason, order_id, mode
        FROM executions
        WHERE symbol = $1 AND time >= $2 AND time < $3
        ORDER BY time ASC;`,
		header: []string{"time", "symbol", "side", "qty", "price", "status", "reason", "order_id", "mode"},
		record: func(r rows) ([]string, error) {
			var e dbwriter.Execution
			if err := r.Scan(&e.Time, &e.Symbol, &e.Side, &e.Qty, &e.Price, &e.Status, &e.Reason, &e.OrderID, &e.Mode); err != nil {
				return nil, err
			}
			return []string{
				e.Time.UTC().Format(time.RFC3339Nano),
				e.Symbol,
				e.Side,
				strconv.Itoa(e.Qty),
				strconv.FormatFloat(e.Price, 'f', -1, 64),
				e.Status,
				e.Reason,
				e.OrderID,
				e.Mode,
			}, nil
		},
	},
}

func main() {
	// --- Argument Parsing ---
	configPath := flag.String("config", "config/config.yaml", "Path to the configuration file")
	tableName := flag.String("table", "prices", "What to export: prices or executions")
	startTimeStr := flag.String("start", "", "Start time for the export window (YYYY-MM-DD HH:MM:SS, UTC)")
	endTimeStr := flag.String("end", "", "End time for the export window (YYYY-MM-DD HH:MM:SS, UTC)")
	symbolFlag := flag.String("symbol", "", "Symbol to export (defaults to the configured symbol)")
	flag.Parse()

	if *startTimeStr == "" || *endTimeStr == "" {
		logger.Fatal("Both --start and --end flags are required.")
	}
	start, end, err := parseWindow(*startTimeStr, *endTimeStr)
	if err != nil {
		logger.Fatalf("Invalid export window: %v", err)
	}
	tbl, ok := tables[*tableName]
	if !ok {
		logger.Fatalf("Unknown table %q: want prices or executions", *tableName)
	}

	// --- Config and Logger Setup ---
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load configuration to get DB settings: %v", err)
	}
	logger.SetGlobalLogLevel(cfg.LogLevel)
	if !cfg.Database.Enabled() {
		logger.Fatal("No database configured; set DB_HOST.")
	}

	symbol := strings.ToUpper(strings.TrimSpace(*symbolFlag))
	if symbol == "" {
		if cfg.MultiSymbol() {
			logger.Fatal("Multi-symbol configuration: pass --symbol.")
		}
		symbol = cfg.Symbol
	}

	// --- Database Connection ---
	ctx := context.Background()
	dbpool, err := dbwriter.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Fatalf("Unable to connect to database: %v", err)
	}
	defer dbpool.Close()

	logger.Infof("Exporting %s for %s from %s to %s...", *tableName, symbol, start, end)
	rs, err := dbpool.Query(ctx, tbl.query, symbol, start, end)
	if err != nil {
		logger.Fatalf("Failed to query %s: %v", *tableName, err)
	}

	count, err := writeCSV(os.Stdout, tbl, rs)
	if err != nil {
		logger.Fatalf("Export failed after %d rows: %v", count, err)
	}
	logger.Infof("Successfully exported %d rows.", count)
}

func parseWindow(startStr, endStr string) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation(timeLayout, startStr, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("start: %w", err)
	}
	end, err := time.ParseInLocation(timeLayout, endStr, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("end: %w", err)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end %s is not after start %s", endStr, startStr)
	}
	return start, end, nil
}

// writeCSV drains rs into w and closes it.
func writeCSV(w io.Writer, tbl table, rs rows) (int, error) {
	defer rs.Close()

	writer := csv.NewWriter(w)
	if err := writer.Write(tbl.header); err != nil {
		return 0, fmt.Errorf("failed to write CSV header: %w", err)
	}

	var rowCount int
	for rs.Next() {
		record, err := tbl.record(rs)
		if err != nil {
			return rowCount, fmt.Errorf("failed to scan row: %w", err)
		}
		if err := writer.Write(record); err != nil {
			return rowCount, fmt.Errorf("failed to write CSV record: %w", err)
		}
		rowCount++
	}
	if err := rs.Err(); err != nil {
		return rowCount, fmt.Errorf("error iterating over rows: %w", err)
	}
	writer.Flush()
	return rowCount, writer.Error()
}
