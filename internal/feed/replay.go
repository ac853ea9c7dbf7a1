package feed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/your-org/trigger-trader/internal/event"
	"github.com/your-org/trigger-trader/pkg/logger"
	"github.com/your-org/trigger-trader/pkg/queue"
)

const maxReplayGap = 200 * time.Millisecond

// Replay streams ticks recorded in a CSV file with the columns ts,price,size.
// ts is either epoch nanoseconds or RFC3339. With Speed > 0 the recorded gaps
// are replayed divided by Speed, each capped at 200ms; otherwise rows are
// emitted as fast as they are read. After the last row Stream blocks until
// cancelled so the rest of the pipeline keeps running.
type Replay struct {
	Path  string
	Speed float64
}

// NewReplay creates a Replay.
func NewReplay(path string, speed float64) *Replay {
	return &Replay{Path: path, Speed: speed}
}

// Stream implements Source. The symbol column is not recorded; every row is
// attributed to symbol.
func (r *Replay) Stream(ctx context.Context, symbol string, out *queue.Queue[event.Tick]) error {
	file, err := os.Open(r.Path)
	if err != nil {
		return fmt.Errorf("failed to open replay file: %w", err)
	}
	defer file.Close()

	n, err := r.stream(ctx, file, symbol, out)
	if err != nil {
		return err
	}
	logger.Infof("[REPLAY] streamed %d ticks from %s", n, r.Path)
	<-ctx.Done()
	return nil
}

func (r *Replay) stream(ctx context.Context, src io.Reader, symbol string, out *queue.Queue[event.Tick]) (int, error) {
	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var prev time.Time
	count := 0
	line := 0
	for {
		if ctx.Err() != nil {
			return count, nil
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return count, nil
		}
		if err != nil {
			return count, fmt.Errorf("failed to read csv record: %w", err)
		}
		line++
		if line == 1 && isHeader(record) {
			continue
		}
		tick, err := parseRow(record)
		if err != nil {
			logger.Warnf("[REPLAY] skipping line %d: %v", line, err)
			continue
		}
		tick.Symbol = symbol

		if r.Speed > 0 && !prev.IsZero() {
			gap := time.Duration(float64(tick.Time.Sub(prev)) / r.Speed)
			if gap > maxReplayGap {
				gap = maxReplayGap
			}
			if gap > 0 && !sleep(ctx, gap) {
				return count, nil
			}
		}
		prev = tick.Time
		out.Push(tick)
		count++
	}
}

func isHeader(record []string) bool {
	return len(record) > 0 && strings.EqualFold(strings.TrimSpace(record[0]), "ts")
}

func parseRow(record []string) (event.Tick, error) {
	if len(record) < 2 {
		return event.Tick{}, fmt.Errorf("expected at least 2 columns, got %d", len(record))
	}
	ts, err := parseTime(strings.TrimSpace(record[0]))
	if err != nil {
		return event.Tick{}, err
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
	if err != nil {
		return event.Tick{}, fmt.Errorf("invalid price %q: %w", record[1], err)
	}
	if price <= 0 {
		return event.Tick{}, fmt.Errorf("non-positive price %v", price)
	}
	var size float64
	if len(record) > 2 && strings.TrimSpace(record[2]) != "" {
		size, err = strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
		if err != nil {
			return event.Tick{}, fmt.Errorf("invalid size %q: %w", record[2], err)
		}
	}
	return event.Tick{Time: ts, Price: price, Size: size}, nil
}

func parseTime(s string) (time.Time, error) {
	if ns, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(0, ns), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}
	return t, nil
}
