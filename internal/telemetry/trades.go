package telemetry

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ReadTrades parses trades.jsonl under dir. Malformed lines are skipped.
func ReadTrades(dir string) ([]TradeRecord, error) {
	f, err := os.Open(filepath.Join(dir, TradesFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeTrades(f)
}

// DecodeTrades parses newline-delimited trade records.
func DecodeTrades(src io.Reader) ([]TradeRecord, error) {
	var out []TradeRecord
	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec TradeRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("failed to read trades: %w", err)
	}
	return out, nil
}

// NetPosition is the signed sum of the trade quantities.
func NetPosition(trades []TradeRecord) int {
	pos := 0
	for _, t := range trades {
		pos += t.Qty * t.Side.Sign()
	}
	return pos
}
