// Package config handles application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Config defines the structure for all application configuration.
type Config struct {
	Symbol     string         `yaml:"symbol"`
	Timezone   string         `yaml:"timezone"`
	LogLevel   string         `yaml:"log_level"`
	RuntimeDir string         `yaml:"runtime_dir"`
	Feed       FeedConfig     `yaml:"feed"`
	Sim        SimConfig      `yaml:"sim"`
	Strategy   StrategyConfig `yaml:"strategy"`
	Risk       RiskConfig     `yaml:"risk"`
	EOD        EODConfig      `yaml:"eod"`
	Control    ControlConfig  `yaml:"control"`
	Telemetry  TelemetryConf  `yaml:"telemetry"`
	HTTP       HTTPConfig     `yaml:"http"`
	Database   DatabaseConfig `yaml:"database"`
	Alert      AlertConfig    `yaml:"alert"`
	Symbols    []SymbolConfig `yaml:"symbols"`
}

// FeedConfig selects the tick source and holds venue connectivity settings.
type FeedConfig struct {
	Mode          string        `yaml:"mode"` // live or sim
	WatchdogGrace time.Duration `yaml:"watchdog_grace"`
	SimFallback   FlexBool      `yaml:"sim_fallback"`
	LogTicks      FlexBool      `yaml:"log_ticks"`
	Alpaca        AlpacaConfig  `yaml:"alpaca"`
}

// AlpacaConfig holds venue endpoints and credentials.
type AlpacaConfig struct {
	Key          string        `yaml:"-"` // Loaded from env
	Secret       string        `yaml:"-"` // Loaded from env
	BaseURL      string        `yaml:"base_url"`
	WSURL        string        `yaml:"ws_url"`
	Channel      string        `yaml:"channel"` // trades, quotes or bars
	OrderTimeout time.Duration `yaml:"order_timeout"`
}

// SimConfig parametrizes the synthetic tick generator.
type SimConfig struct {
	BasePrice    float64       `yaml:"base_price"`
	Amplitude    float64       `yaml:"amplitude"`
	Noise        float64       `yaml:"noise"`
	Trend        float64       `yaml:"trend"`
	ReverseEvery int           `yaml:"reverse_every"`
	Interval     time.Duration `yaml:"interval"`
}

// StrategyConfig holds beat timing, trigger thresholds and lot sizes.
type StrategyConfig struct {
	Beat           time.Duration `yaml:"beat"`
	ProtectionBeat time.Duration `yaml:"protection_beat"`
	Lookback       time.Duration `yaml:"lookback"`
	Triggers       Triggers      `yaml:"triggers"`
	Budgets        Budgets       `yaml:"budgets"`
	Lots           Lots          `yaml:"lots"`
}

// Triggers are price distances in points unless noted.
type Triggers struct {
	T1Move          float64 `yaml:"t1_move"`
	T2Hold          float64 `yaml:"t2_hold"`
	T3MoveFromFirst float64 `yaml:"t3_move_from_first"`
	T4ExtraFromT3   float64 `yaml:"t4_extra_from_t3"`
	T5ExtraFromT4   float64 `yaml:"t5_extra_from_t4"`
	T7Macro         float64 `yaml:"t7_total_from_first"`
	T8FirstJump     float64 `yaml:"t8_jump_single"`
	T9SecondJump    float64 `yaml:"t9_jump2_single"`
	T10Favorable    float64 `yaml:"t10_favorable_move"`
	T11SlowTrend    float64 `yaml:"t11_slow_trend"`
	T11WindowBeats  int     `yaml:"t11_window_beats"`
	T12Counter      float64 `yaml:"t12_counter_jump"`
	T13Continue     float64 `yaml:"t13_counter_continue"`
	T14Swing        float64 `yaml:"t14_violent_swing"`
	T15WindowBeats  int     `yaml:"t15_low_vol_window"`
	T15Ceiling      float64 `yaml:"t15_low_vol_threshold"`
	T15MoveMark     float64 `yaml:"t15_move_mark"`
	T16WindowBeats  int     `yaml:"t16_fallback_window"`
	T16FallbackMove float64 `yaml:"t16_fallback_move"`
}

// Budgets is the number of beats each ladder window may stay open.
type Budgets struct {
	T1 int `yaml:"t1"`
	T2 int `yaml:"t2"`
	T3 int `yaml:"t3"`
	T4 int `yaml:"t4"`
	T5 int `yaml:"t5"`
}

// Lots is the order quantity per trigger.
type Lots struct {
	T1  int `yaml:"t1"`
	T2  int `yaml:"t2"`
	T3  int `yaml:"t3"`
	T4  int `yaml:"t4"`
	T5  int `yaml:"t5"`
	T7  int `yaml:"t7"`
	T8  int `yaml:"t8"`
	T9  int `yaml:"t9"`
	T10 int `yaml:"t10"`
	T11 int `yaml:"t11"`
	T12 int `yaml:"t12"`
	T13 int `yaml:"t13"`
	T14 int `yaml:"t14"`
	T15 int `yaml:"t15"`
	T16 int `yaml:"t16"`
}

// RiskConfig holds the risk gate limits and the protection cycle exits.
type RiskConfig struct {
	MaxPosition    int           `yaml:"max_position"`
	DailyMaxLoss   float64       `yaml:"daily_max_loss"`
	StopLoss       float64       `yaml:"per_leg_stop"`
	TakeProfit     float64       `yaml:"take_profit"`
	ThrottlePerSec float64       `yaml:"order_throttle_per_sec"`
	MarkInterval   time.Duration `yaml:"mark_interval"`
}

// EODConfig schedules the end-of-day flatten.
type EODConfig struct {
	Enabled FlexBool `yaml:"enabled"`
	Close   string   `yaml:"close"` // HH:MM in Timezone
}

// ControlConfig drives the operator command bus.
type ControlConfig struct {
	EnableManualReset FlexBool      `yaml:"enable_manual_reset"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	ResetSettle       time.Duration `yaml:"reset_settle"`
	ModeSwitchGrace   time.Duration `yaml:"mode_switch_grace"`
}

// TelemetryConf holds the cadence of the display artifacts.
type TelemetryConf struct {
	StateInterval time.Duration `yaml:"state_interval"`
	PriceInterval time.Duration `yaml:"price_interval"`
	TradesCSV     FlexBool      `yaml:"trades_csv"`
}

// HTTPConfig is the health/metrics listener.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// DatabaseConfig enables the optional TimescaleDB sink when Host is set.
type DatabaseConfig struct {
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	User          string        `yaml:"user"`
	Password      string        `yaml:"-"` // Loaded from env
	Name          string        `yaml:"name"`
	SSLMode       string        `yaml:"sslmode"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	Migrate       FlexBool      `yaml:"migrate"`
}

// Enabled reports whether a database sink was configured.
func (d DatabaseConfig) Enabled() bool {
	return d.Host != ""
}

// DSN builds a postgres connection string.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}

// AlertConfig configures the Telegram notifier.
type AlertConfig struct {
	TelegramToken  string        `yaml:"-"` // Loaded from env
	TelegramChatID int64         `yaml:"telegram_chat_id"`
	BufferInterval time.Duration `yaml:"buffer_interval"`
}

// Enabled reports whether Telegram credentials are present.
func (a AlertConfig) Enabled() bool {
	return a.TelegramToken != "" && a.TelegramChatID != 0
}

// Default returns a Config populated with the production defaults.
func Default() *Config {
	return &Config{
		Symbol:     "DIA",
		Timezone:   "America/New_York",
		LogLevel:   "info",
		RuntimeDir: "runtime",
		Feed: FeedConfig{
			Mode:          "live",
			WatchdogGrace: 15 * time.Second,
			SimFallback:   true,
			Alpaca: AlpacaConfig{
				BaseURL:      "https://paper-api.alpaca.markets",
				WSURL:        "wss://stream.data.alpaca.markets/v2/iex",
				Channel:      "trades",
				OrderTimeout: 10 * time.Second,
			},
		},
		Sim: SimConfig{
			BasePrice:    476.50,
			Amplitude:    0.30,
			Noise:        0.02,
			Trend:        0.02,
			ReverseEvery: 240,
			Interval:     500 * time.Millisecond,
		},
		Strategy: StrategyConfig{
			Beat:           14 * time.Second,
			ProtectionBeat: 37 * time.Second,
			Lookback:       15 * time.Minute,
			Triggers: Triggers{
				T1Move:          0.14,
				T2Hold:          0.18,
				T3MoveFromFirst: 0.25,
				T4ExtraFromT3:   0.10,
				T5ExtraFromT4:   0.10,
				T7Macro:         0.80,
				T8FirstJump:     0.16,
				T9SecondJump:    0.14,
				T10Favorable:    0.19,
				T11SlowTrend:    0.52,
				T11WindowBeats:  65,
				T12Counter:      0.29,
				T13Continue:     0.09,
				T14Swing:        0.48,
				T15WindowBeats:  34,
				T15Ceiling:      0.29,
				T15MoveMark:     0.11,
				T16WindowBeats:  11,
				T16FallbackMove: 0.10,
			},
			Budgets: Budgets{T1: 4, T2: 4, T3: 3, T4: 2, T5: 3},
			Lots: Lots{
				T1: 10, T2: 10, T3: 30, T4: 200, T5: 500,
				T7: 5000, T8: 1000, T9: 5000, T10: 1000, T11: 1000,
				T12: 400, T13: 200, T14: 1000, T15: 100, T16: 100,
			},
		},
		Risk: RiskConfig{
			MaxPosition:    10000,
			DailyMaxLoss:   2000,
			StopLoss:       1.50,
			TakeProfit:     2.00,
			ThrottlePerSec: 2,
			MarkInterval:   time.Second,
		},
		EOD: EODConfig{Enabled: true, Close: "16:00"},
		Control: ControlConfig{
			EnableManualReset: true,
			PollInterval:      time.Second,
			ResetSettle:       2 * time.Second,
			ModeSwitchGrace:   2 * time.Second,
		},
		Telemetry: TelemetryConf{
			StateInterval: time.Second,
			PriceInterval: 500 * time.Millisecond,
			TradesCSV:     true,
		},
		HTTP: HTTPConfig{Addr: ":8080"},
		Database: DatabaseConfig{
			Port:          5432,
			BatchSize:     100,
			FlushInterval: 5 * time.Second,
			Migrate:       true,
		},
		Alert: AlertConfig{BufferInterval: 10 * time.Second},
	}
}

// LoadConfig loads configuration from the specified YAML file path, a .env
// file in the working directory if present, and environment variables.
// An empty path yields the defaults plus environment overrides.
func LoadConfig(configPath string) (*Config, error) {
	// Missing .env is not an error.
	_ = godotenv.Load()

	cfg := Default()

	if configPath != "" {
		file, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
		if err := yaml.Unmarshal(file, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", configPath, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.Symbol = strings.ToUpper(strings.TrimSpace(cfg.Symbol))
	normalizeSymbols(cfg.Symbols)
	cfg.Feed.Alpaca.BaseURL = strings.TrimSuffix(strings.TrimRight(cfg.Feed.Alpaca.BaseURL, "/"), "/v2")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	var errs error
	str := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	flag := func(name string, dst *FlexBool) {
		if v := os.Getenv(name); v != "" {
			b, err := parseBool(v)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = FlexBool(b)
		}
	}

	str("SYMBOL", &cfg.Symbol)
	str("TRADER_TZ", &cfg.Timezone)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("RUNTIME_DIR", &cfg.RuntimeDir)
	str("ALPACA_KEY", &cfg.Feed.Alpaca.Key)
	str("ALPACA_SECRET", &cfg.Feed.Alpaca.Secret)
	str("ALPACA_BASE_URL", &cfg.Feed.Alpaca.BaseURL)
	str("ALPACA_WS_URL", &cfg.Feed.Alpaca.WSURL)
	str("ALPACA_CHANNEL", &cfg.Feed.Alpaca.Channel)
	flag("SIM_FALLBACK", &cfg.Feed.SimFallback)
	flag("LOG_TICKS", &cfg.Feed.LogTicks)
	flag("ENABLE_MANUAL_RESET", &cfg.Control.EnableManualReset)

	if v := os.Getenv("FORCE_SIM"); v != "" {
		b, err := parseBool(v)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("FORCE_SIM: %w", err))
		} else if b {
			cfg.Feed.Mode = "sim"
		}
	}
	if v := os.Getenv("NO_TICK_WARN_SEC"); v != "" {
		secs, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("NO_TICK_WARN_SEC: %w", err))
		} else {
			cfg.Feed.WatchdogGrace = time.Duration(secs * float64(time.Second))
		}
	}

	str("DB_HOST", &cfg.Database.Host)
	str("DB_USER", &cfg.Database.User)
	str("DB_PASSWORD", &cfg.Database.Password)
	str("DB_NAME", &cfg.Database.Name)
	if v := os.Getenv("DB_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("DB_PORT: %w", err))
		} else {
			cfg.Database.Port = port
		}
	}

	str("TELEGRAM_BOT_TOKEN", &cfg.Alert.TelegramToken)
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("TELEGRAM_CHAT_ID: %w", err))
		} else {
			cfg.Alert.TelegramChatID = id
		}
	}
	return errs
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var errs error
	add := func(format string, args ...interface{}) {
		errs = multierr.Append(errs, fmt.Errorf(format, args...))
	}

	if c.Symbol == "" {
		add("symbol is required")
	}
	if _, err := c.Location(); err != nil {
		add("timezone %q: %v", c.Timezone, err)
	}
	if c.Feed.Mode != "live" && c.Feed.Mode != "sim" {
		add("feed.mode must be live or sim, got %q", c.Feed.Mode)
	}
	switch c.Feed.Alpaca.Channel {
	case "trades", "quotes", "bars":
	default:
		add("feed.alpaca.channel must be trades, quotes or bars, got %q", c.Feed.Alpaca.Channel)
	}
	if c.Feed.WatchdogGrace <= 0 {
		add("feed.watchdog_grace must be positive")
	}
	errs = multierr.Append(errs, c.validateTunables(""))
	if _, _, err := c.EODClock(); err != nil {
		add("eod.close: %v", err)
	}
	if c.Control.PollInterval <= 0 {
		add("control.poll_interval must be positive")
	}
	if c.Feed.Mode == "live" && (c.Feed.Alpaca.Key == "" || c.Feed.Alpaca.Secret == "") {
		add("live mode requires ALPACA_KEY and ALPACA_SECRET")
	}

	seen := make(map[string]bool, len(c.Symbols))
	for i, sc := range c.Symbols {
		if sc.Symbol == "" {
			add("symbols[%d].symbol is required", i)
			continue
		}
		if seen[sc.Symbol] {
			add("symbols[%d]: duplicate symbol %s", i, sc.Symbol)
		}
		seen[sc.Symbol] = true
		if sc.Venue != VenueAlpaca && sc.Venue != VenueSim {
			add("symbols[%s].venue must be alpaca or sim, got %q", sc.Symbol, sc.Venue)
		}
		inst, err := c.instance(sc)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		errs = multierr.Append(errs, inst.validateTunables(fmt.Sprintf("symbols[%s].", sc.Symbol)))
	}
	return errs
}

// validateTunables checks the sections a symbol may override.
func (c *Config) validateTunables(prefix string) error {
	var errs error
	add := func(format string, args ...interface{}) {
		errs = multierr.Append(errs, fmt.Errorf(prefix+format, args...))
	}

	if c.Sim.Interval <= 0 {
		add("sim.interval must be positive")
	}
	if c.Sim.ReverseEvery <= 0 {
		add("sim.reverse_every must be positive")
	}
	if c.Strategy.Beat <= 0 {
		add("strategy.beat must be positive")
	}
	if c.Strategy.ProtectionBeat <= 0 {
		add("strategy.protection_beat must be positive")
	}
	if c.Strategy.Lookback <= 0 {
		add("strategy.lookback must be positive")
	}
	tr := c.Strategy.Triggers
	for name, v := range map[string]int{
		"t11_window_beats":    tr.T11WindowBeats,
		"t15_low_vol_window":  tr.T15WindowBeats,
		"t16_fallback_window": tr.T16WindowBeats,
	} {
		if v <= 0 {
			add("strategy.triggers.%s must be positive", name)
		}
	}
	b := c.Strategy.Budgets
	if b.T1 <= 0 || b.T2 <= 0 || b.T3 <= 0 || b.T4 <= 0 || b.T5 <= 0 {
		add("strategy.budgets must all be positive")
	}
	if c.Risk.MaxPosition <= 0 {
		add("risk.max_position must be positive")
	}
	if c.Risk.DailyMaxLoss <= 0 {
		add("risk.daily_max_loss must be positive")
	}
	if c.Risk.ThrottlePerSec <= 0 {
		add("risk.order_throttle_per_sec must be positive")
	}
	if c.Risk.MarkInterval <= 0 {
		add("risk.mark_interval must be positive")
	}
	return errs
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// EODClock parses the EOD close as hour and minute.
func (c *Config) EODClock() (hour, minute int, err error) {
	t, err := time.Parse("15:04", c.EOD.Close)
	if err != nil {
		return 0, 0, errors.New("want HH:MM")
	}
	return t.Hour(), t.Minute(), nil
}
