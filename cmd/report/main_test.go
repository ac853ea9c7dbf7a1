package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/trigger-trader/internal/telemetry"
)

const tradesLog = `{"ts":"2024-03-01T14:30:00Z","symbol":"DIA","side":"BUY","qty":10,"price":100,"reason":"T1","status":"simulated"}
not json
{"ts":"2024-03-01T14:31:00Z","symbol":"DIA","side":"SELL","qty":10,"price":101.5,"reason":"T4","status":"simulated"}
`

func TestRun_Text(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, telemetry.TradesFile), []byte(tradesLog), 0o644))

	var stdout, stderr bytes.Buffer
	code := run([]string{"-dir", dir}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "Realized PnL:          15.00")
	assert.Contains(t, stdout.String(), "Final position:        0 @ 0.00")
}

func TestRun_JSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, telemetry.TradesFile), []byte(tradesLog), 0o644))

	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run([]string{"-dir", dir, "-json"}, &stdout, &stderr))

	var got map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &got))
	assert.Equal(t, "15", got["total_pnl"])
	assert.EqualValues(t, 1, got["round_trips"])
	assert.EqualValues(t, 2, got["executions"])
}

func TestRun_NoTrades(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run([]string{"-dir", t.TempDir()}, &stdout, &stderr))
	assert.Equal(t, "No trades recorded.\n", stdout.String())
}

func TestRun_BadFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, run([]string{"-nope"}, &stdout, &stderr))
}

func TestRun_SymbolSubdir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "DIA"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "DIA", telemetry.TradesFile), []byte(tradesLog), 0o644))

	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run([]string{"-dir", root, "-symbol", "dia"}, &stdout, &stderr), stderr.String())
	assert.Contains(t, stdout.String(), "Realized PnL:          15.00")
}

func TestRun_MultiSymbolConfigNeedsSymbol(t *testing.T) {
	t.Setenv("FORCE_SIM", "1")
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("symbols:\n  - symbol: DIA\n  - symbol: EWH\n"), 0o644))

	var stdout, stderr bytes.Buffer
	assert.Equal(t, 1, run([]string{"-config", configPath}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "pass -symbol")
}
