package runner

import (
	"fmt"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/nadavw1312/trading-manager-server/services/conditions"
	"github.com/nadavw1312/trading-manager-server/services/engine"
)

type ConditionRef struct {
	Symbol string            `json:"symbol" yaml:"symbol" validate:"required"`
	Params conditions.Params `json:"params,omitempty" yaml:"params,omitempty"`
}

// Request is one multi-ticker backtest job.
type Request struct {
	Tickers         []string           `json:"tickers" yaml:"tickers" validate:"required,min=1,dive,required"`
	From            time.Time          `json:"from" yaml:"from" validate:"required"`
	To              time.Time          `json:"to" yaml:"to" validate:"required,gtfield=From"`
	EntryConditions []ConditionRef     `json:"entry_conditions" yaml:"entry_conditions" validate:"required,min=1,dive"`
	ExitConditions  []ConditionRef     `json:"exit_conditions" yaml:"exit_conditions" validate:"required,min=1,dive"`
	Type            engine.Strategy    `json:"type" yaml:"type" default:"first_daily_trade" validate:"oneof=first_daily_trade each_day"`
	MaxTradesPerDay int                `json:"max_trades_per_day" yaml:"max_trades_per_day" default:"1" validate:"min=1"`
	Direction       engine.Direction   `json:"direction,omitempty" yaml:"direction,omitempty" validate:"omitempty,oneof=long short"`
	ExitCombine     engine.ExitCombine `json:"exit_combine,omitempty" yaml:"exit_combine,omitempty" default:"all" validate:"oneof=all any"`
	ForceClose      bool               `json:"force_close,omitempty" yaml:"force_close,omitempty"`
	Mode            engine.Mode        `json:"mode,omitempty" yaml:"mode,omitempty" default:"vectorized" validate:"oneof=vectorized reference"`
}

var validate = validator.New()

// Normalize fills defaults and validates the request.
func (r *Request) Normalize() error {
	if err := defaults.Set(r); err != nil {
		return &engine.ConfigurationError{Field: "request", Reason: "defaults", Err: err}
	}
	if err := validate.Struct(r); err != nil {
		return &engine.ConfigurationError{Field: "request", Reason: "validation failed", Err: err}
	}
	return nil
}

// RunConfig maps the request onto the engine configuration.
func (r *Request) RunConfig(loc *time.Location) engine.RunConfig {
	cfg := engine.DefaultRunConfig()
	cfg.Strategy = r.Type
	cfg.MaxTradesPerDay = r.MaxTradesPerDay
	cfg.Direction = r.Direction
	cfg.ExitCombine = r.ExitCombine
	cfg.Mode = r.Mode
	cfg.Location = loc
	if r.ForceClose {
		cfg.EndOfData = engine.EndOfDataForceClose
	}
	return cfg
}

func resolve(reg *conditions.Registry, field string, refs []ConditionRef) ([]conditions.Spec, []string, error) {
	specs := make([]conditions.Spec, 0, len(refs))
	symbols := make([]string, 0, len(refs))
	for i, ref := range refs {
		spec, err := reg.Resolve(ref.Symbol, ref.Params)
		if err != nil {
			return nil, nil, fmt.Errorf("%s[%d]: %w", field, i, err)
		}
		specs = append(specs, spec)
		symbols = append(symbols, ref.Symbol)
	}
	return specs, symbols, nil
}

type TickerResult struct {
	Ticker            string          `json:"ticker"`
	From              time.Time       `json:"from"`
	To                time.Time       `json:"to"`
	EntryConditionsID string          `json:"entry_conditions_id"`
	ExitConditionsID  string          `json:"exit_conditions_id"`
	Trades            engine.Ledger   `json:"trades"`
	Profit            decimal.Decimal `json:"profit"`
	Summary           engine.Summary  `json:"summary"`
	Fingerprint       string          `json:"fingerprint"`
	Cached            bool            `json:"cached"`
}

type Report struct {
	JobID     string         `json:"job_id"`
	CreatedAt time.Time      `json:"created_at"`
	Duration  time.Duration  `json:"duration"`
	Results   []TickerResult `json:"results"`
}
