package conditions

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/nadavw1312/trading-manager-server/services/bars"
)

const (
	KeyConditionTimeframe = "condition_timeframe"
	KeyIsLong             = "is_long"
)

var ErrMissingParam = errors.New("missing parameter")

// Params is the key/value parameter set of one condition.
type Params map[string]any

// Merge returns defaults overlaid with overrides; overrides win.
func Merge(defaults, overrides Params) Params {
	out := make(Params, len(defaults)+len(overrides))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

func (p Params) Clone() Params { return Merge(p, nil) }

func (p Params) lookup(key string) (any, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, fmt.Errorf("%w %q", ErrMissingParam, key)
	}
	return v, nil
}

func (p Params) String(key string) (string, error) {
	v, err := p.lookup(key)
	if err != nil {
		return "", err
	}
	switch s := v.(type) {
	case string:
		return s, nil
	case bars.Timeframe:
		return string(s), nil
	case fmt.Stringer:
		return s.String(), nil
	}
	return "", fmt.Errorf("parameter %q: expected string, got %T", key, v)
}

func (p Params) Float(key string) (float64, error) {
	v, err := p.lookup(key)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("parameter %q: %w", key, err)
		}
		return f, nil
	}
	return 0, fmt.Errorf("parameter %q: expected number, got %T", key, v)
}

// Int accepts integral floats so values decoded from JSON work unchanged.
func (p Params) Int(key string) (int, error) {
	f, err := p.Float(key)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("parameter %q: expected integer, got %v", key, f)
	}
	return int(f), nil
}

func (p Params) Bool(key string) (bool, error) {
	v, err := p.lookup(key)
	if err != nil {
		return false, err
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(b))
	}
	return false, fmt.Errorf("parameter %q: expected bool, got %T", key, v)
}

func (p Params) Timeframe(key string) (bars.Timeframe, error) {
	s, err := p.String(key)
	if err != nil {
		return "", err
	}
	tf, err := bars.ParseTimeframe(s)
	if err != nil {
		return "", fmt.Errorf("parameter %q: %w", key, err)
	}
	return tf, nil
}

func (p Params) ConditionTimeframe() (bars.Timeframe, error) {
	return p.Timeframe(KeyConditionTimeframe)
}

// IsLong defaults to true when the parameter is absent.
func (p Params) IsLong() (bool, error) {
	if _, ok := p[KeyIsLong]; !ok {
		return true, nil
	}
	return p.Bool(KeyIsLong)
}

// Timeframes returns every timeframe referenced by a key containing
// "timeframe", finest first.
func (p Params) Timeframes() ([]bars.Timeframe, error) {
	seen := make(map[bars.Timeframe]struct{})
	for k := range p {
		if !strings.Contains(k, "timeframe") {
			continue
		}
		tf, err := p.Timeframe(k)
		if err != nil {
			return nil, err
		}
		seen[tf] = struct{}{}
	}
	out := make([]bars.Timeframe, 0, len(seen))
	for tf := range seen {
		out = append(out, tf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Duration() < out[j].Duration() })
	return out, nil
}
