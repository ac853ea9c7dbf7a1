// Package config_test tests the config package.
package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/your-org/trigger-trader/internal/config"
)

// Helper function to create a dummy config file with specific content
func createDummyConfigFile(t *testing.T, path, content string) {
	t.Helper()
	err := os.WriteFile(path, []byte(content), 0644)
	require.NoError(t, err)
}

// clearEnv unsets variables that would otherwise leak in from the host.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SYMBOL", "LOG_LEVEL", "FORCE_SIM", "ALPACA_KEY", "ALPACA_SECRET",
		"ALPACA_CHANNEL", "NO_TICK_WARN_SEC", "DB_HOST", "DB_PORT", "SIM_FALLBACK",
		"TELEGRAM_CHAT_ID",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("FORCE_SIM", "1")

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "DIA", cfg.Symbol)
	assert.Equal(t, "sim", cfg.Feed.Mode)
	assert.Equal(t, 14*time.Second, cfg.Strategy.Beat)
	assert.Equal(t, 37*time.Second, cfg.Strategy.ProtectionBeat)
	assert.Equal(t, 15*time.Second, cfg.Feed.WatchdogGrace)
	assert.Equal(t, 0.14, cfg.Strategy.Triggers.T1Move)
	assert.Equal(t, 65, cfg.Strategy.Triggers.T11WindowBeats)
	assert.Equal(t, 5000, cfg.Strategy.Lots.T9)
	assert.Equal(t, 4, cfg.Strategy.Budgets.T1)
	assert.Equal(t, 10000, cfg.Risk.MaxPosition)
	assert.Equal(t, "https://paper-api.alpaca.markets", cfg.Feed.Alpaca.BaseURL)
	assert.False(t, cfg.Database.Enabled())
}

func TestLoadConfig_YAMLOverridesDefaults(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	createDummyConfigFile(t, configPath, `
symbol: spy
feed:
  mode: sim
  sim_fallback: "off"
  alpaca:
    base_url: https://api.alpaca.markets/v2/
    channel: quotes
strategy:
  beat: 5s
  triggers:
    t1_move: 0.2
  lots:
    t1: 3
eod:
  close: "15:45"
`)

	cfg, err := config.LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "SPY", cfg.Symbol)
	assert.False(t, bool(cfg.Feed.SimFallback))
	assert.Equal(t, "quotes", cfg.Feed.Alpaca.Channel)
	assert.Equal(t, "https://api.alpaca.markets", cfg.Feed.Alpaca.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Strategy.Beat)
	assert.Equal(t, 0.2, cfg.Strategy.Triggers.T1Move)
	assert.Equal(t, 0.18, cfg.Strategy.Triggers.T2Hold, "unset keys keep defaults")
	assert.Equal(t, 3, cfg.Strategy.Lots.T1)
	assert.Equal(t, 10, cfg.Strategy.Lots.T2)

	h, m, err := cfg.EODClock()
	require.NoError(t, err)
	assert.Equal(t, 15, h)
	assert.Equal(t, 45, m)
}

// TestLoadConfig_EnvVarOverride tests if environment variables correctly override yaml values.
func TestLoadConfig_EnvVarOverride(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	createDummyConfigFile(t, configPath, `
log_level: "info"
database:
  host: "localhost"
  user: "user_from_file"`)

	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DB_HOST", "db.from.env")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("ALPACA_KEY", "key_from_env")
	t.Setenv("ALPACA_SECRET", "secret_from_env")
	t.Setenv("NO_TICK_WARN_SEC", "2.5")
	t.Setenv("TELEGRAM_CHAT_ID", "-10042")

	cfg, err := config.LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "db.from.env", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, "user_from_file", cfg.Database.User)
	assert.Equal(t, "key_from_env", cfg.Feed.Alpaca.Key)
	assert.Equal(t, "live", cfg.Feed.Mode)
	assert.Equal(t, 2500*time.Millisecond, cfg.Feed.WatchdogGrace)
	assert.Equal(t, int64(-100042), cfg.Alert.TelegramChatID)
	assert.True(t, cfg.Database.Enabled())
	assert.Contains(t, cfg.Database.DSN(), "@db.from.env:6543/")
}

func TestLoadConfig_ReportsEveryProblem(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	createDummyConfigFile(t, configPath, `
timezone: Mars/Olympus
feed:
  mode: paper
  alpaca:
    channel: trades
risk:
  max_position: 0
eod:
  close: "4pm"
`)

	_, err := config.LoadConfig(configPath)
	require.Error(t, err)
	errs := multierr.Errors(err)
	assert.GreaterOrEqual(t, len(errs), 4)
	assert.Contains(t, err.Error(), "timezone")
	assert.Contains(t, err.Error(), "feed.mode")
	assert.Contains(t, err.Error(), "risk.max_position")
	assert.Contains(t, err.Error(), "eod.close")
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := config.LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestFlexBool(t *testing.T) {
	var out struct {
		A config.FlexBool `yaml:"a"`
		B config.FlexBool `yaml:"b"`
		C config.FlexBool `yaml:"c"`
		D config.FlexBool `yaml:"d"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("a: true\nb: \"yes\"\nc: 0\nd: 1.5\n"), &out))
	assert.True(t, bool(out.A))
	assert.True(t, bool(out.B))
	assert.False(t, bool(out.C))
	assert.True(t, bool(out.D))

	assert.Error(t, yaml.Unmarshal([]byte("a: maybe\n"), &out))
}

func TestLoadConfig_SymbolInstances(t *testing.T) {
	clearEnv(t)
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	createDummyConfigFile(t, configPath, `
runtime_dir: /var/lib/trader
feed:
  mode: sim
strategy:
  beat: 14s
symbols:
  - symbol: dia
  - symbol: " ewh "
    venue: SIM
    strategy:
      beat: 5s
      lots:
        t1: 3
    risk:
      max_position: 400
    sim:
      base_price: 18.2
`)
	t.Setenv("ALPACA_KEY", "k")
	t.Setenv("ALPACA_SECRET", "s")

	cfg, err := config.LoadConfig(configPath)
	require.NoError(t, err)
	require.True(t, cfg.MultiSymbol())

	insts, err := cfg.Instances()
	require.NoError(t, err)
	require.Len(t, insts, 2)

	dia, ewh := insts[0], insts[1]
	assert.Equal(t, "DIA", dia.Symbol)
	assert.Equal(t, filepath.Join("/var/lib/trader", "DIA"), dia.RuntimeDir)
	assert.Equal(t, 14*time.Second, dia.Strategy.Beat)
	assert.Equal(t, "k", dia.Feed.Alpaca.Key)

	assert.Equal(t, "EWH", ewh.Symbol)
	assert.Equal(t, filepath.Join("/var/lib/trader", "EWH"), ewh.RuntimeDir)
	assert.Equal(t, 5*time.Second, ewh.Strategy.Beat)
	assert.Equal(t, 3, ewh.Strategy.Lots.T1)
	assert.Equal(t, 10, ewh.Strategy.Lots.T2, "keys missing from the overlay are inherited")
	assert.Equal(t, 400, ewh.Risk.MaxPosition)
	assert.Equal(t, 2000.0, ewh.Risk.DailyMaxLoss)
	assert.Equal(t, 18.2, ewh.Sim.BasePrice)
	assert.Equal(t, "sim", ewh.Feed.Mode)
	assert.Empty(t, ewh.Feed.Alpaca.Key, "sim venue never trades live")

	assert.Equal(t, 14*time.Second, cfg.Strategy.Beat, "the top level is untouched")
	assert.Equal(t, 10000, cfg.Risk.MaxPosition)
}

func TestLoadConfig_SingleSymbolInstance(t *testing.T) {
	clearEnv(t)
	t.Setenv("FORCE_SIM", "1")
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	insts, err := cfg.Instances()
	require.NoError(t, err)
	require.Len(t, insts, 1)
	assert.Same(t, cfg, insts[0])
	assert.Equal(t, "runtime", insts[0].RuntimeDir)
}

func TestLoadConfig_BadSymbols(t *testing.T) {
	clearEnv(t)
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	createDummyConfigFile(t, configPath, `
feed:
  mode: sim
symbols:
  - symbol: DIA
  - symbol: dia
  - symbol: EWU
    venue: lse
  - symbol: SPY
    risk:
      max_position: -1
  - venue: sim
`)

	_, err := config.LoadConfig(configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate symbol DIA")
	assert.Contains(t, err.Error(), "symbols[EWU].venue")
	assert.Contains(t, err.Error(), "symbols[SPY].risk.max_position must be positive")
	assert.Contains(t, err.Error(), "symbols[4].symbol is required")
}
