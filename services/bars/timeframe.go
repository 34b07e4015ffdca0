package bars

// Multi-timeframe labels with right-edge alignment

import (
	"fmt"
	"strings"
	"time"
)

type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

// Timeframes lists the supported labels from finest to coarsest.
var Timeframes = []Timeframe{TF1m, TF5m, TF15m, TF1h, TF4h, TF1d}

var timeframeAliases = map[string]Timeframe{
	"1m": TF1m, "1min": TF1m,
	"5m": TF5m, "5min": TF5m,
	"15m": TF15m, "15min": TF15m,
	"1h": TF1h, "60m": TF1h, "60min": TF1h,
	"4h": TF4h, "240m": TF4h, "240min": TF4h,
	"1d": TF1d, "d": TF1d, "1440m": TF1d, "daily": TF1d,
}

// ParseTimeframe normalises labels such as "60m" or "1D" to a supported Timeframe.
func ParseTimeframe(s string) (Timeframe, error) {
	tf, ok := timeframeAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("unsupported timeframe %q", s)
	}
	return tf, nil
}

func (tf Timeframe) Valid() bool {
	switch tf {
	case TF1m, TF5m, TF15m, TF1h, TF4h, TF1d:
		return true
	}
	return false
}

// Duration is the span covered by one bar.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF1m:
		return time.Minute
	case TF5m:
		return 5 * time.Minute
	case TF15m:
		return 15 * time.Minute
	case TF1h:
		return time.Hour
	case TF4h:
		return 4 * time.Hour
	case TF1d:
		return 24 * time.Hour
	}
	return 0
}

func (tf Timeframe) String() string { return string(tf) }
