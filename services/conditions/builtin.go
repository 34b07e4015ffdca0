package conditions

import (
	"github.com/nadavw1312/trading-manager-server/services/bars"
	"github.com/nadavw1312/trading-manager-server/services/indicators"
)

var timeframeOptions = []string{"1m", "5m", "15m", "1h", "4h", "1d"}

func tfField(title string) Field {
	return Field{Type: FieldTimeframe, Title: title, Options: timeframeOptions}
}

func intField(title string, min, max float64) Field {
	return Field{Type: FieldInt, Title: title, Range: &[2]float64{min, max}}
}

func floatField(title string, min, max float64) Field {
	return Field{Type: FieldFloat, Title: title, Range: &[2]float64{min, max}}
}

var isLongField = Field{Type: FieldBool, Title: "Is Long", Description: "Evaluate for a long position; false evaluates the short mirror."}

// Builtins returns the compiled condition library.
func Builtins() []Definition {
	return []Definition{
		{
			Symbol:      "rsiTrendEntry",
			Name:        "RSI Threshold with Trend Confirmation",
			Description: "Enters when RSI on the condition timeframe passes a threshold while the SMA of a higher timeframe confirms the trend.",
			Role:        RoleEntry,
			Category:    "momentum",
			Logic:       "RSI > rsi_threshold AND SMA(trend) < Close",
			Defaults: Params{
				KeyConditionTimeframe: "5m",
				"trend_timeframe":     "1h",
				KeyIsLong:             true,
				"rsi_period":          14,
				"sma_period":          20,
				"rsi_threshold":       30.0,
			},
			Fields: map[string]Field{
				KeyConditionTimeframe: tfField("Condition Timeframe"),
				"trend_timeframe":     tfField("Trend Timeframe"),
				KeyIsLong:             isLongField,
				"rsi_period":          intField("RSI Period", 2, 500),
				"sma_period":          intField("SMA Period", 1, 500),
				"rsi_threshold":       floatField("RSI Threshold", 0, 100),
			},
			Eval: rsiTrendEntry,
		},
		{
			Symbol:      "atrTargetExit",
			Name:        "ATR Target Exit",
			Description: "Exits once price has moved a multiple of a higher-timeframe ATR away from the entry price, optionally requiring volume.",
			Role:        RoleExit,
			Category:    "exit",
			Logic:       "Close >= entry_price + ATR * target_atr_multiplier",
			Defaults: Params{
				KeyConditionTimeframe:   "5m",
				"atr_timeframe":         "1h",
				KeyIsLong:               true,
				"atr_period":            14,
				"target_atr_multiplier": 0.2,
				"volume_threshold":      0.0,
			},
			Fields: map[string]Field{
				KeyConditionTimeframe:   tfField("Condition Timeframe"),
				"atr_timeframe":         tfField("ATR Timeframe"),
				KeyIsLong:               isLongField,
				"atr_period":            intField("ATR Period", 1, 500),
				"target_atr_multiplier": floatField("Target ATR Multiplier", 0, 50),
				"volume_threshold":      floatField("Volume Threshold", 0, 1e15),
			},
			Eval: atrTargetExit,
		},
		{
			Symbol:      "priceBelowEntryLow",
			Name:        "Price Below Entry Candle Low",
			Description: "Exits when price trades through the low of the entry candle (the high for shorts).",
			Role:        RoleExit,
			Category:    "exit",
			Logic:       "Low <= entry_candle_low",
			Defaults:    Params{KeyConditionTimeframe: "1d", KeyIsLong: true},
			Fields: map[string]Field{
				KeyConditionTimeframe: tfField("Condition Timeframe"),
				KeyIsLong:             isLongField,
			},
			Eval: priceBelowEntryLow,
		},
		{
			Symbol:      "priceExceedsAtrExit",
			Name:        "Price Exceeds ATR Exit",
			Description: "Exits when price has moved more than a fraction of the ATR away from the entry price.",
			Role:        RoleExit,
			Category:    "exit",
			Logic:       "abs(Close - entry_price) > ATR * atr_multiplier",
			Defaults: Params{
				KeyConditionTimeframe: "1d",
				KeyIsLong:             true,
				"atr_window":          14,
				"atr_multiplier":      0.7,
			},
			Fields: map[string]Field{
				KeyConditionTimeframe: tfField("Condition Timeframe"),
				KeyIsLong:             isLongField,
				"atr_window":          intField("ATR Window", 1, 500),
				"atr_multiplier":      floatField("ATR Multiplier", 0.1, 5),
			},
			Eval: priceExceedsAtrExit,
		},
		{
			Symbol:      "smaAboveEma",
			Name:        "SMA Above EMA",
			Description: "SMA of closes is above the EMA (below for shorts).",
			Role:        RoleBoth,
			Category:    "trend",
			Logic:       "SMA > EMA",
			Defaults:    smaEmaDefaults(),
			Fields:      smaEmaFields(),
			Eval:        smaAboveEma,
		},
		{
			Symbol:      "smaCrossesAboveEma",
			Name:        "SMA Crosses Above EMA",
			Description: "SMA crosses above the EMA on this bar (below for shorts).",
			Role:        RoleEntry,
			Category:    "trend",
			Logic:       "SMA crosses_above EMA",
			Defaults:    smaEmaDefaults(),
			Fields:      smaEmaFields(),
			Eval:        smaCrossesAboveEma,
		},
		{
			Symbol:      "smaCrossOverTrend",
			Name:        "SMA Cross Over Trend",
			Description: "Close above the short SMA which is above the long SMA (mirrored for shorts).",
			Role:        RoleEntry,
			Category:    "trend",
			Logic:       "Close > SMA(short) > SMA(long)",
			Defaults: Params{
				KeyConditionTimeframe: "1d",
				KeyIsLong:             true,
				"short_sma_window":    20,
				"long_sma_window":     50,
			},
			Fields: map[string]Field{
				KeyConditionTimeframe: tfField("Condition Timeframe"),
				KeyIsLong:             isLongField,
				"short_sma_window":    intField("Short SMA Window", 1, 500),
				"long_sma_window":     intField("Long SMA Window", 1, 500),
			},
			Eval: smaCrossOverTrend,
		},
		{
			Symbol:      "bollingerBreakout",
			Name:        "Bollinger Band Breakout",
			Description: "Close breaks above the upper band (below the lower band for shorts).",
			Role:        RoleBoth,
			Category:    "volatility",
			Logic:       "Close > SMA + num_std * STD",
			Defaults: Params{
				KeyConditionTimeframe: "1d",
				KeyIsLong:             true,
				"window":              20,
				"num_std":             2.0,
			},
			Fields: map[string]Field{
				KeyConditionTimeframe: tfField("Condition Timeframe"),
				KeyIsLong:             isLongField,
				"window":              intField("Window", 2, 500),
				"num_std":             floatField("Standard Deviations", 0.1, 10),
			},
			Eval: bollingerBreakout,
		},
	}
}

func smaEmaDefaults() Params {
	return Params{KeyConditionTimeframe: "1d", KeyIsLong: true, "sma_window": 50, "ema_window": 20}
}

func smaEmaFields() map[string]Field {
	return map[string]Field{
		KeyConditionTimeframe: tfField("Condition Timeframe"),
		KeyIsLong:             isLongField,
		"sma_window":          intField("SMA Window", 1, 500),
		"ema_window":          intField("EMA Window", 1, 500),
	}
}

func tableFor(ds bars.Dataset, p Params, key string) (*bars.Table, error) {
	tf, err := p.Timeframe(key)
	if err != nil {
		return nil, err
	}
	return ds.Table(tf)
}

func positionOf(t *bars.Table) (*bars.PositionColumns, error) {
	pc, ok := t.Position()
	if !ok {
		return nil, ErrNoPosition
	}
	return pc, nil
}

func rsiTrendEntry(ds bars.Dataset, p Params) ([]bool, error) {
	tbl, err := tableFor(ds, p, KeyConditionTimeframe)
	if err != nil {
		return nil, err
	}
	trend, err := tableFor(ds, p, "trend_timeframe")
	if err != nil {
		return nil, err
	}
	long, err := p.IsLong()
	if err != nil {
		return nil, err
	}
	rsiPeriod, err := p.Int("rsi_period")
	if err != nil {
		return nil, err
	}
	smaPeriod, err := p.Int("sma_period")
	if err != nil {
		return nil, err
	}
	threshold, err := p.Float("rsi_threshold")
	if err != nil {
		return nil, err
	}

	close := tbl.Close()
	rsi := indicators.RSI(close, rsiPeriod)
	sma := bars.Align(tbl, trend, indicators.SMA(trend.Close(), smaPeriod))
	out := make([]bool, tbl.Len())
	for i := range out {
		if long {
			out[i] = rsi[i] > threshold && sma[i] < close[i]
		} else {
			out[i] = rsi[i] < threshold && sma[i] > close[i]
		}
	}
	return out, nil
}

func atrTargetExit(ds bars.Dataset, p Params) ([]bool, error) {
	tbl, err := tableFor(ds, p, KeyConditionTimeframe)
	if err != nil {
		return nil, err
	}
	pc, err := positionOf(tbl)
	if err != nil {
		return nil, err
	}
	atrTbl, err := tableFor(ds, p, "atr_timeframe")
	if err != nil {
		return nil, err
	}
	long, err := p.IsLong()
	if err != nil {
		return nil, err
	}
	period, err := p.Int("atr_period")
	if err != nil {
		return nil, err
	}
	mult, err := p.Float("target_atr_multiplier")
	if err != nil {
		return nil, err
	}
	minVolume, err := p.Float("volume_threshold")
	if err != nil {
		return nil, err
	}

	high, _ := atrTbl.Column(bars.ColHigh)
	low, _ := atrTbl.Column(bars.ColLow)
	atr := bars.Align(tbl, atrTbl, indicators.RangeATR(high, low, period))
	close := tbl.Close()
	volume, _ := tbl.Column(bars.ColVolume)
	out := make([]bool, tbl.Len())
	for i := range out {
		if long {
			out[i] = close[i] >= pc.EntryPrice[i]+atr[i]*mult
		} else {
			out[i] = close[i] <= pc.EntryPrice[i]-atr[i]*mult
		}
		if minVolume > 0 {
			out[i] = out[i] && volume[i] >= minVolume
		}
	}
	return out, nil
}

func priceBelowEntryLow(ds bars.Dataset, p Params) ([]bool, error) {
	tbl, err := tableFor(ds, p, KeyConditionTimeframe)
	if err != nil {
		return nil, err
	}
	pc, err := positionOf(tbl)
	if err != nil {
		return nil, err
	}
	long, err := p.IsLong()
	if err != nil {
		return nil, err
	}
	high, _ := tbl.Column(bars.ColHigh)
	low, _ := tbl.Column(bars.ColLow)
	out := make([]bool, tbl.Len())
	for i := range out {
		e := pc.EntryIndex[i]
		if e < 0 {
			continue
		}
		if long {
			out[i] = low[i] <= low[e]
		} else {
			out[i] = high[i] >= high[e]
		}
	}
	return out, nil
}

func priceExceedsAtrExit(ds bars.Dataset, p Params) ([]bool, error) {
	tbl, err := tableFor(ds, p, KeyConditionTimeframe)
	if err != nil {
		return nil, err
	}
	pc, err := positionOf(tbl)
	if err != nil {
		return nil, err
	}
	window, err := p.Int("atr_window")
	if err != nil {
		return nil, err
	}
	mult, err := p.Float("atr_multiplier")
	if err != nil {
		return nil, err
	}
	high, _ := tbl.Column(bars.ColHigh)
	low, _ := tbl.Column(bars.ColLow)
	close := tbl.Close()
	atr := indicators.ATR(high, low, close, window)
	out := make([]bool, tbl.Len())
	for i := range out {
		move := close[i] - pc.EntryPrice[i]
		if move < 0 {
			move = -move
		}
		out[i] = move > atr[i]*mult
	}
	return out, nil
}

func smaEma(ds bars.Dataset, p Params) (tbl *bars.Table, sma, ema []float64, long bool, err error) {
	if tbl, err = tableFor(ds, p, KeyConditionTimeframe); err != nil {
		return
	}
	if long, err = p.IsLong(); err != nil {
		return
	}
	smaWindow, err := p.Int("sma_window")
	if err != nil {
		return
	}
	emaWindow, err := p.Int("ema_window")
	if err != nil {
		return
	}
	sma = indicators.SMA(tbl.Close(), smaWindow)
	ema = indicators.EMA(tbl.Close(), emaWindow)
	return
}

func smaAboveEma(ds bars.Dataset, p Params) ([]bool, error) {
	tbl, sma, ema, long, err := smaEma(ds, p)
	if err != nil {
		return nil, err
	}
	out := make([]bool, tbl.Len())
	for i := range out {
		if long {
			out[i] = sma[i] > ema[i]
		} else {
			out[i] = sma[i] < ema[i]
		}
	}
	return out, nil
}

func smaCrossesAboveEma(ds bars.Dataset, p Params) ([]bool, error) {
	tbl, sma, ema, long, err := smaEma(ds, p)
	if err != nil {
		return nil, err
	}
	out := make([]bool, tbl.Len())
	for i := 1; i < len(out); i++ {
		if long {
			out[i] = sma[i-1] <= ema[i-1] && sma[i] > ema[i]
		} else {
			out[i] = sma[i-1] >= ema[i-1] && sma[i] < ema[i]
		}
	}
	return out, nil
}

func smaCrossOverTrend(ds bars.Dataset, p Params) ([]bool, error) {
	tbl, err := tableFor(ds, p, KeyConditionTimeframe)
	if err != nil {
		return nil, err
	}
	long, err := p.IsLong()
	if err != nil {
		return nil, err
	}
	shortWindow, err := p.Int("short_sma_window")
	if err != nil {
		return nil, err
	}
	longWindow, err := p.Int("long_sma_window")
	if err != nil {
		return nil, err
	}
	close := tbl.Close()
	fast := indicators.SMA(close, shortWindow)
	slow := indicators.SMA(close, longWindow)
	out := make([]bool, tbl.Len())
	for i := range out {
		if long {
			out[i] = close[i] > fast[i] && fast[i] > slow[i]
		} else {
			out[i] = close[i] < fast[i] && fast[i] < slow[i]
		}
	}
	return out, nil
}

func bollingerBreakout(ds bars.Dataset, p Params) ([]bool, error) {
	tbl, err := tableFor(ds, p, KeyConditionTimeframe)
	if err != nil {
		return nil, err
	}
	long, err := p.IsLong()
	if err != nil {
		return nil, err
	}
	window, err := p.Int("window")
	if err != nil {
		return nil, err
	}
	numStd, err := p.Float("num_std")
	if err != nil {
		return nil, err
	}
	close := tbl.Close()
	bands := indicators.Bollinger(close, window, numStd)
	out := make([]bool, tbl.Len())
	for i := range out {
		if long {
			out[i] = close[i] > bands.Upper[i]
		} else {
			out[i] = close[i] < bands.Lower[i]
		}
	}
	return out, nil
}
