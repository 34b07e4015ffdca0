package conditions

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/nadavw1312/trading-manager-server/services/bars"
)

var ErrUnknownCondition = errors.New("unknown condition")

type FieldType string

const (
	FieldTimeframe FieldType = "timeframe"
	FieldString    FieldType = "str"
	FieldInt       FieldType = "int"
	FieldFloat     FieldType = "float"
	FieldBool      FieldType = "bool"
)

// Field describes one accepted parameter.
type Field struct {
	Type        FieldType   `json:"type"`
	Title       string      `json:"title,omitempty"`
	Description string      `json:"description,omitempty"`
	Options     []string    `json:"options,omitempty"`
	Range       *[2]float64 `json:"range,omitempty"`
}

// Definition is a registered condition: metadata, default params and the
// compiled evaluator.
type Definition struct {
	Symbol      string           `json:"symbol"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Role        Role             `json:"role"`
	Category    string           `json:"category"`
	Logic       string           `json:"condition_logic"`
	Defaults    Params           `json:"params"`
	Fields      map[string]Field `json:"params_fields"`
	Eval        EvalFunc         `json:"-"`
}

// ParamError rejects a parameter value before any evaluation happens.
type ParamError struct {
	Condition string
	Key       string
	Reason    string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("condition %q parameter %q: %s", e.Condition, e.Key, e.Reason)
}

// Registry resolves condition symbols to evaluators. Populate it at start-up;
// Resolve is safe for concurrent use afterwards.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// NewDefaultRegistry returns a registry holding the built-in conditions.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, d := range Builtins() {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
	return r
}

func (r *Registry) Register(d Definition) error {
	if d.Symbol == "" {
		return errors.New("register condition: empty symbol")
	}
	if d.Eval == nil {
		return fmt.Errorf("register condition %q: nil evaluator", d.Symbol)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.defs[d.Symbol]; ok {
		return fmt.Errorf("register condition %q: already registered", d.Symbol)
	}
	if d.Role == "" {
		d.Role = RoleBoth
	}
	d.Defaults = d.Defaults.Clone()
	r.defs[d.Symbol] = d
	return nil
}

func (r *Registry) Lookup(symbol string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[symbol]
	return d, ok
}

// Definitions returns every registered condition ordered by symbol.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Resolve merges the stored defaults with overrides, validates the result
// and returns the evaluable Spec.
func (r *Registry) Resolve(symbol string, overrides Params) (Spec, error) {
	d, ok := r.Lookup(symbol)
	if !ok {
		return Spec{}, fmt.Errorf("%w %q", ErrUnknownCondition, symbol)
	}
	params := Merge(d.Defaults, overrides)
	if err := d.validate(params); err != nil {
		return Spec{}, err
	}
	return Spec{Name: d.Name, Symbol: d.Symbol, Role: d.Role, params: params, eval: d.Eval}, nil
}

func (d Definition) validate(p Params) error {
	if _, err := p.ConditionTimeframe(); err != nil {
		return &ParamError{Condition: d.Symbol, Key: KeyConditionTimeframe, Reason: err.Error()}
	}
	keys := make([]string, 0, len(d.Fields))
	for k := range d.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		f := d.Fields[key]
		if _, ok := p[key]; !ok {
			return &ParamError{Condition: d.Symbol, Key: key, Reason: "missing"}
		}
		if reason := f.check(p, key); reason != "" {
			return &ParamError{Condition: d.Symbol, Key: key, Reason: reason}
		}
	}
	return nil
}

func (f Field) check(p Params, key string) string {
	var num float64
	switch f.Type {
	case FieldTimeframe:
		tf, err := p.Timeframe(key)
		if err != nil {
			return err.Error()
		}
		if len(f.Options) > 0 && !contains(f.Options, string(tf)) {
			return fmt.Sprintf("%s not in %v", tf, f.Options)
		}
		return ""
	case FieldString:
		s, err := p.String(key)
		if err != nil {
			return err.Error()
		}
		if len(f.Options) > 0 && !contains(f.Options, s) {
			return fmt.Sprintf("%q not in %v", s, f.Options)
		}
		return ""
	case FieldBool:
		if _, err := p.Bool(key); err != nil {
			return err.Error()
		}
		return ""
	case FieldInt:
		n, err := p.Int(key)
		if err != nil {
			return err.Error()
		}
		num = float64(n)
	case FieldFloat:
		n, err := p.Float(key)
		if err != nil {
			return err.Error()
		}
		num = n
	default:
		return fmt.Sprintf("unknown field type %q", f.Type)
	}
	if f.Range != nil && (num < f.Range[0] || num > f.Range[1]) {
		return fmt.Sprintf("%v outside [%v, %v]", num, f.Range[0], f.Range[1])
	}
	return ""
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Signature identifies a condition set: symbols sorted alphabetically and
// joined with "-".
func Signature(symbols []string) string {
	s := append([]string(nil), symbols...)
	sort.Strings(s)
	return strings.Join(s, "-")
}

// RequiredTimeframes collects every timeframe referenced by the specs.
func RequiredTimeframes(specs ...[]Spec) ([]bars.Timeframe, error) {
	seen := make(map[bars.Timeframe]struct{})
	for _, list := range specs {
		for _, s := range list {
			tfs, err := s.params.Timeframes()
			if err != nil {
				return nil, &ParamError{Condition: s.label(), Key: "timeframe", Reason: err.Error()}
			}
			for _, tf := range tfs {
				seen[tf] = struct{}{}
			}
		}
	}
	out := make([]bars.Timeframe, 0, len(seen))
	for tf := range seen {
		out = append(out, tf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Duration() < out[j].Duration() })
	return out, nil
}
