package engine

// Run configuration and reproducibility fingerprint

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nadavw1312/trading-manager-server/services/bars"
	"github.com/nadavw1312/trading-manager-server/services/conditions"
)

type Strategy string

const (
	FirstDailyTrade Strategy = "first_daily_trade"
	EachDay         Strategy = "each_day"
)

type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// ExitCombine selects how several exit conditions are merged.
type ExitCombine string

const (
	CombineAll ExitCombine = "all"
	CombineAny ExitCombine = "any"
)

// EndOfData decides what happens to a position still open on the last row.
type EndOfData string

const (
	EndOfDataDrop       EndOfData = "drop"
	EndOfDataForceClose EndOfData = "force_close"
)

type Mode string

const (
	ModeVectorized Mode = "vectorized"
	ModeReference  Mode = "reference"
)

type RunConfig struct {
	Strategy        Strategy    `json:"strategy" yaml:"strategy"`
	MaxTradesPerDay int         `json:"max_trades_per_day" yaml:"max_trades_per_day"`
	Direction       Direction   `json:"direction,omitempty" yaml:"direction"`
	ExitCombine     ExitCombine `json:"exit_combine" yaml:"exit_combine"`
	EndOfData       EndOfData   `json:"end_of_data" yaml:"end_of_data"`
	Mode            Mode        `json:"mode" yaml:"mode"`

	// Location defines calendar days; nil means UTC.
	Location *time.Location `json:"-" yaml:"-"`
}

func DefaultRunConfig() RunConfig {
	return RunConfig{
		Strategy:        FirstDailyTrade,
		MaxTradesPerDay: 1,
		ExitCombine:     CombineAll,
		EndOfData:       EndOfDataDrop,
		Mode:            ModeVectorized,
	}
}

// normalized fills empty enum fields with their defaults. MaxTradesPerDay is
// left alone so that a zero value is rejected by Validate.
func (c RunConfig) normalized() RunConfig {
	def := DefaultRunConfig()
	if c.Strategy == "" {
		c.Strategy = def.Strategy
	}
	if c.ExitCombine == "" {
		c.ExitCombine = def.ExitCombine
	}
	if c.EndOfData == "" {
		c.EndOfData = def.EndOfData
	}
	if c.Mode == "" {
		c.Mode = def.Mode
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	return c
}

func (c RunConfig) Validate() error {
	c = c.normalized()
	switch c.Strategy {
	case FirstDailyTrade, EachDay:
	default:
		return &ConfigurationError{Field: "strategy", Reason: fmt.Sprintf("unknown strategy %q", c.Strategy)}
	}
	if c.MaxTradesPerDay <= 0 {
		return &ConfigurationError{Field: "max_trades_per_day", Reason: fmt.Sprintf("must be positive, got %d", c.MaxTradesPerDay)}
	}
	switch c.Direction {
	case "", Long, Short:
	default:
		return &ConfigurationError{Field: "direction", Reason: fmt.Sprintf("unknown direction %q", c.Direction)}
	}
	switch c.ExitCombine {
	case CombineAll, CombineAny:
	default:
		return &ConfigurationError{Field: "exit_combine", Reason: fmt.Sprintf("unknown policy %q", c.ExitCombine)}
	}
	switch c.EndOfData {
	case EndOfDataDrop, EndOfDataForceClose:
	default:
		return &ConfigurationError{Field: "end_of_data", Reason: fmt.Sprintf("unknown policy %q", c.EndOfData)}
	}
	switch c.Mode {
	case ModeVectorized, ModeReference:
	default:
		return &ConfigurationError{Field: "mode", Reason: fmt.Sprintf("unknown mode %q", c.Mode)}
	}
	return nil
}

type conditionSnapshot struct {
	Symbol string            `json:"symbol"`
	Params conditions.Params `json:"params"`
}

type fingerprintInput struct {
	Config    RunConfig                 `json:"config"`
	Location  string                    `json:"location"`
	Entry     []conditionSnapshot       `json:"entry"`
	Exit      []conditionSnapshot       `json:"exit"`
	Checksums map[bars.Timeframe]string `json:"checksums,omitempty"`
}

// Fingerprint hashes everything that determines a ledger: run config,
// condition symbols and params, and the dataset contents. Mode is excluded
// since both modes yield the same ledger.
func Fingerprint(cfg RunConfig, entry, exit []conditions.Spec, ds bars.Dataset) (string, error) {
	cfg = cfg.normalized()
	in := fingerprintInput{Config: cfg, Location: cfg.Location.String()}
	in.Config.Mode = ""
	for _, s := range entry {
		in.Entry = append(in.Entry, conditionSnapshot{Symbol: s.Symbol, Params: s.Params()})
	}
	for _, s := range exit {
		in.Exit = append(in.Exit, conditionSnapshot{Symbol: s.Symbol, Params: s.Params()})
	}
	if ds != nil {
		in.Checksums = ds.Checksums()
	}
	b, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return fmt.Sprintf("%x", sha256.Sum256(b)), nil
}
