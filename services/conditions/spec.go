// Package conditions provides the condition evaluators a backtest combines
// into entry and exit signals, and the Registry that resolves them by symbol.
package conditions

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nadavw1312/trading-manager-server/services/bars"
)

// ErrNoPosition is returned by exit-only conditions evaluated on a table
// without position context.
var ErrNoPosition = errors.New("condition needs an open position context")

// EvalFunc computes a boolean column aligned to the condition timeframe.
type EvalFunc func(ds bars.Dataset, p Params) ([]bool, error)

type Role string

const (
	RoleEntry Role = "entry"
	RoleExit  Role = "exit"
	RoleBoth  Role = "both"
)

// ComputationError is a condition failure, carrying what is needed to
// reproduce it.
type ComputationError struct {
	Condition string
	Params    Params
	Timeframe bars.Timeframe
	Row       int
	Err       error
}

func (e *ComputationError) Error() string {
	params, _ := json.Marshal(e.Params)
	msg := fmt.Sprintf("condition %q (timeframe %s, params %s)", e.Condition, e.Timeframe, params)
	if e.Row >= 0 {
		msg += fmt.Sprintf(" row %d", e.Row)
	}
	return msg + ": " + e.Err.Error()
}

func (e *ComputationError) Unwrap() error { return e.Err }

// Spec is a resolved, parameterised condition. Immutable once built.
type Spec struct {
	Name   string
	Symbol string
	Role   Role
	params Params
	eval   EvalFunc
}

// NewSpec wraps an evaluator with a parameter snapshot.
func NewSpec(name string, role Role, params Params, fn EvalFunc) Spec {
	return Spec{Name: name, Symbol: name, Role: role, params: params.Clone(), eval: fn}
}

// Params returns a copy of the condition parameters.
func (s Spec) Params() Params { return s.params.Clone() }

func (s Spec) Timeframe() (bars.Timeframe, error) { return s.params.ConditionTimeframe() }

func (s Spec) label() string {
	if s.Symbol != "" {
		return s.Symbol
	}
	return s.Name
}

// Evaluate runs the condition. Every failure comes back as a *ComputationError.
func (s Spec) Evaluate(ds bars.Dataset) ([]bool, error) {
	tf, _ := s.Timeframe()
	if s.eval == nil {
		return nil, s.Fail(tf, -1, errors.New("no evaluator"))
	}
	col, err := s.eval(ds, s.params.Clone())
	if err != nil {
		var ce *ComputationError
		if errors.As(err, &ce) {
			return nil, err
		}
		return nil, s.Fail(tf, -1, err)
	}
	return col, nil
}

// Fail builds a ComputationError for this spec.
func (s Spec) Fail(tf bars.Timeframe, row int, err error) *ComputationError {
	return &ComputationError{Condition: s.label(), Params: s.params.Clone(), Timeframe: tf, Row: row, Err: err}
}
