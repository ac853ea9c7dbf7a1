package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Venue names for SymbolConfig.Venue.
const (
	VenueAlpaca = "alpaca"
	VenueSim    = "sim"
)

// SymbolConfig adds an instrument to a multi-symbol run. The strategy, risk
// and sim sections are overlays: only the keys present replace the
// top-level values.
type SymbolConfig struct {
	Symbol   string    `yaml:"symbol"`
	Venue    string    `yaml:"venue"` // alpaca (default) or sim
	Strategy yaml.Node `yaml:"strategy"`
	Risk     yaml.Node `yaml:"risk"`
	Sim      yaml.Node `yaml:"sim"`
}

// MultiSymbol reports whether the configuration lists symbols to run side by
// side.
func (c *Config) MultiSymbol() bool {
	return len(c.Symbols) > 0
}

// Instances returns one configuration per traded symbol. A single-symbol
// configuration is returned as is. In a multi-symbol run every instance
// gets its own runtime subdirectory named after the symbol, and a sim
// venue instance never sees the venue credentials, so it trades on the
// simulator only.
func (c *Config) Instances() ([]*Config, error) {
	if !c.MultiSymbol() {
		return []*Config{c}, nil
	}
	out := make([]*Config, 0, len(c.Symbols))
	for _, sc := range c.Symbols {
		inst, err := c.instance(sc)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

func (c *Config) instance(sc SymbolConfig) (*Config, error) {
	inst := *c
	inst.Symbols = nil
	inst.Symbol = sc.Symbol
	inst.RuntimeDir = filepath.Join(c.RuntimeDir, sc.Symbol)

	overlays := []struct {
		name string
		node *yaml.Node
		dst  interface{}
	}{
		{"strategy", &sc.Strategy, &inst.Strategy},
		{"risk", &sc.Risk, &inst.Risk},
		{"sim", &sc.Sim, &inst.Sim},
	}
	for _, o := range overlays {
		if o.node.IsZero() {
			continue
		}
		if err := o.node.Decode(o.dst); err != nil {
			return nil, fmt.Errorf("symbols[%s].%s: %w", sc.Symbol, o.name, err)
		}
	}

	if sc.Venue == VenueSim {
		inst.Feed.Mode = "sim"
		inst.Feed.Alpaca.Key = ""
		inst.Feed.Alpaca.Secret = ""
	}
	return &inst, nil
}

func normalizeSymbols(symbols []SymbolConfig) {
	for i := range symbols {
		symbols[i].Symbol = strings.ToUpper(strings.TrimSpace(symbols[i].Symbol))
		symbols[i].Venue = strings.ToLower(strings.TrimSpace(symbols[i].Venue))
		if symbols[i].Venue == "" {
			symbols[i].Venue = VenueAlpaca
		}
	}
}
