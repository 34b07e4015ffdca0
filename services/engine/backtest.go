// Package engine runs a single-ticker, condition-driven backtest: entry and
// exit signals from the conditions package are turned into positions and a
// ledger of trades.
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nadavw1312/trading-manager-server/services/bars"
	"github.com/nadavw1312/trading-manager-server/services/conditions"
)

type Stage string

const (
	StageValidate     Stage = "validate"
	StageEntrySignals Stage = "entry_signals"
	StagePositions    Stage = "positions"
	StageCompile      Stage = "compile"
)

type options struct {
	log  *zap.Logger
	hook func(Stage)
}

type Option func(*options)

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithStageHook calls fn as each stage starts.
func WithStageHook(fn func(Stage)) Option {
	return func(o *options) { o.hook = fn }
}

type Result struct {
	Trades           Ledger         `json:"trades"`
	Positions        []Position     `json:"positions"`
	PrimaryTimeframe bars.Timeframe `json:"primary_timeframe"`
	Rows             int            `json:"rows"`
	Candidates       int            `json:"candidates"`
	ExitEvaluations  int            `json:"exit_evaluations"`
}

// Backtest evaluates entry and exit conditions over ds and returns the trade
// ledger. The primary timeframe is the condition timeframe of entry[0]; every
// condition must run on it. ctx is checked between stages.
func Backtest(ctx context.Context, ds bars.Dataset, entry, exit []conditions.Spec, cfg RunConfig, opts ...Option) (*Result, error) {
	o := options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	started := time.Now()
	stage := func(s Stage) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if o.hook != nil {
			o.hook(s)
		}
		o.log.Debug("backtest stage", zap.String("stage", string(s)), zap.Duration("elapsed", time.Since(started)))
		return ctx.Err()
	}

	if err := stage(StageValidate); err != nil {
		return nil, err
	}
	cfg, tf, err := prepare(cfg, entry, exit)
	if err != nil {
		return nil, err
	}
	required, err := conditions.RequiredTimeframes(entry, exit)
	if err != nil {
		return nil, &ConfigurationError{Field: "conditions", Reason: "bad timeframe parameter", Err: err}
	}
	if err := ds.Require(required...); err != nil {
		return nil, err
	}
	primary, err := ds.Table(tf)
	if err != nil {
		return nil, err
	}
	res := &Result{Trades: Ledger{}, PrimaryTimeframe: tf, Rows: primary.Len()}
	if primary.Len() == 0 {
		return res, nil
	}

	if err := stage(StageEntrySignals); err != nil {
		return nil, err
	}
	n := primary.Len()
	cols, err := evaluateAll(ds, entry, n)
	if err != nil {
		return nil, err
	}
	signal := combineAll(cols, n)
	days := dayKeys(primary, cfg)
	cands := candidates(cfg.Strategy, risingEdges(signal, days), days)
	res.Candidates = len(cands)

	if err := stage(StagePositions); err != nil {
		return nil, err
	}
	r := &run{cfg: cfg, ds: ds, primary: primary, tf: tf, exit: exit, log: o.log}
	var positions []Position
	if cfg.Mode == ModeReference {
		positions, err = r.trackReference(ctx, signal, days)
	} else {
		positions, err = r.trackVectorized(ctx, cands)
	}
	if err != nil {
		return nil, err
	}
	res.Positions = positions
	res.ExitEvaluations = r.exitEvals

	if err := stage(StageCompile); err != nil {
		return nil, err
	}
	res.Trades = compile(positions, cfg)
	o.log.Info("backtest finished",
		zap.String("timeframe", string(tf)),
		zap.String("mode", string(cfg.Mode)),
		zap.Int("rows", n),
		zap.Int("candidates", len(cands)),
		zap.Int("positions", len(positions)),
		zap.Int("trades", len(res.Trades)),
		zap.Duration("elapsed", time.Since(started)))
	return res, nil
}

// prepare validates the run and resolves the primary timeframe and direction.
func prepare(cfg RunConfig, entry, exit []conditions.Spec) (RunConfig, bars.Timeframe, error) {
	if err := cfg.Validate(); err != nil {
		return cfg, "", err
	}
	cfg = cfg.normalized()
	if len(entry) == 0 {
		return cfg, "", &ConfigurationError{Field: "entry_conditions", Reason: "at least one entry condition is required"}
	}
	if len(exit) == 0 {
		return cfg, "", &ConfigurationError{Field: "exit_conditions", Reason: "at least one exit condition is required"}
	}
	tf, err := entry[0].Timeframe()
	if err != nil {
		return cfg, "", &ConfigurationError{Field: "entry_conditions", Reason: "primary timeframe", Err: err}
	}
	check := func(field string, specs []conditions.Spec, forbidden conditions.Role) error {
		for _, s := range specs {
			if s.Role == forbidden {
				return &ConfigurationError{Field: field, Reason: fmt.Sprintf("%s is a %s-only condition", s.Symbol, forbidden)}
			}
			got, err := s.Timeframe()
			if err != nil {
				return &ConfigurationError{Field: field, Reason: s.Symbol, Err: err}
			}
			if got != tf {
				return &ConfigurationError{Field: field, Reason: fmt.Sprintf("%s runs on %s, primary timeframe is %s", s.Symbol, got, tf)}
			}
		}
		return nil
	}
	if err := check("entry_conditions", entry, conditions.RoleExit); err != nil {
		return cfg, "", err
	}
	if err := check("exit_conditions", exit, conditions.RoleEntry); err != nil {
		return cfg, "", err
	}
	if cfg.Direction == "" {
		cfg.Direction = Long
		if long, err := entry[0].Params().IsLong(); err == nil && !long {
			cfg.Direction = Short
		}
	}
	return cfg, tf, nil
}
