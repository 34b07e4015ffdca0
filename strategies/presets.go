// Package strategies holds named entry/exit condition sets that can be run
// without spelling out every parameter.
package strategies

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/nadavw1312/trading-manager-server/services/conditions"
	"github.com/nadavw1312/trading-manager-server/services/engine"
	"github.com/nadavw1312/trading-manager-server/services/runner"
)

type Preset struct {
	Name        string                `yaml:"name"`
	Description string                `yaml:"description"`
	Type        engine.Strategy       `yaml:"type"`
	Entry       []runner.ConditionRef `yaml:"entry_conditions"`
	Exit        []runner.ConditionRef `yaml:"exit_conditions"`
}

var builtin = []Preset{
	{
		Name:        "rsi_trend_atr_target",
		Description: "5m RSI threshold confirmed by the 1h SMA trend, exit at an hourly ATR target.",
		Type:        engine.FirstDailyTrade,
		Entry: []runner.ConditionRef{{Symbol: "rsiTrendEntry", Params: conditions.Params{
			"condition_timeframe": "5m", "trend_timeframe": "1h", "rsi_period": 14, "sma_period": 20, "rsi_threshold": 30.0,
		}}},
		Exit: []runner.ConditionRef{{Symbol: "atrTargetExit", Params: conditions.Params{
			"condition_timeframe": "5m", "atr_timeframe": "1h", "atr_period": 14, "target_atr_multiplier": 0.2,
		}}},
	},
	{
		Name:        "sma_cross_entry_low_stop",
		Description: "Daily SMA/EMA cross, stopped out below the entry candle low.",
		Type:        engine.EachDay,
		Entry: []runner.ConditionRef{{Symbol: "smaCrossesAboveEma", Params: conditions.Params{
			"condition_timeframe": "1d", "sma_window": 10, "ema_window": 30,
		}}},
		Exit: []runner.ConditionRef{{Symbol: "priceBelowEntryLow", Params: conditions.Params{
			"condition_timeframe": "1d",
		}}},
	},
	{
		Name:        "sma_trend_atr_exit",
		Description: "Close above a rising SMA stack, exit after an ATR-sized move either way.",
		Type:        engine.EachDay,
		Entry: []runner.ConditionRef{{Symbol: "smaCrossOverTrend", Params: conditions.Params{
			"condition_timeframe": "1d", "short_sma_window": 20, "long_sma_window": 50,
		}}},
		Exit: []runner.ConditionRef{{Symbol: "priceExceedsAtrExit", Params: conditions.Params{
			"condition_timeframe": "1d", "atr_window": 14, "atr_multiplier": 0.7,
		}}},
	},
	{
		Name:        "bollinger_breakout",
		Description: "Upper band breakout with SMA confirmation, ATR exit.",
		Type:        engine.EachDay,
		Entry: []runner.ConditionRef{
			{Symbol: "bollingerBreakout", Params: conditions.Params{"condition_timeframe": "1d", "window": 20, "num_std": 2.0}},
			{Symbol: "smaAboveEma", Params: conditions.Params{"condition_timeframe": "1d"}},
		},
		Exit: []runner.ConditionRef{{Symbol: "priceExceedsAtrExit", Params: conditions.Params{
			"condition_timeframe": "1d", "atr_window": 14, "atr_multiplier": 1.0,
		}}},
	},
}

// Catalog is the set of presets a process can run by name: the built-ins
// plus any loaded from a presets file, which replace built-ins of the same name.
type Catalog struct {
	presets map[string]Preset
}

func NewCatalog(extra ...Preset) (*Catalog, error) {
	c := &Catalog{presets: make(map[string]Preset, len(builtin)+len(extra))}
	for _, p := range builtin {
		c.presets[p.Name] = p
	}
	seen := make(map[string]bool, len(extra))
	for _, p := range extra {
		if seen[p.Name] {
			return nil, fmt.Errorf("duplicate preset %q", p.Name)
		}
		seen[p.Name] = true
		c.presets[p.Name] = p
	}
	return c, nil
}

// LoadCatalog builds a catalog from the presets file at path. An empty path
// yields the built-ins only.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return NewCatalog()
	}
	extra, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return NewCatalog(extra...)
}

// All returns the presets sorted by name.
func (c *Catalog) All() []Preset {
	out := make([]Preset, 0, len(c.presets))
	for _, p := range c.presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (c *Catalog) Lookup(name string) (Preset, bool) {
	p, ok := c.presets[name]
	return p, ok
}

// Apply copies the preset's conditions and type into req. Params maps are
// cloned so the preset is never mutated through req.
func (p Preset) Apply(req *runner.Request) {
	req.EntryConditions = cloneRefs(p.Entry)
	req.ExitConditions = cloneRefs(p.Exit)
	if p.Type != "" {
		req.Type = p.Type
	}
}

func cloneRefs(refs []runner.ConditionRef) []runner.ConditionRef {
	out := make([]runner.ConditionRef, len(refs))
	for i, r := range refs {
		params := make(conditions.Params, len(r.Params))
		for k, v := range r.Params {
			params[k] = v
		}
		out[i] = runner.ConditionRef{Symbol: r.Symbol, Params: params}
	}
	return out
}

// LoadFile reads a YAML list of presets.
func LoadFile(path string) ([]Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read presets: %w", err)
	}
	var out []Preset
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse presets: %w", err)
	}
	for i, p := range out {
		if p.Name == "" || len(p.Entry) == 0 || len(p.Exit) == 0 {
			return nil, fmt.Errorf("preset %d: name, entry_conditions and exit_conditions are required", i)
		}
	}
	return out, nil
}
