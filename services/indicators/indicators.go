// Package indicators computes rolling indicator columns over float series.
// Warm-up rows and rows whose window contains NaN are NaN, so comparisons
// against them evaluate to false.
package indicators

import "math"

// SMA is the rolling mean over period values.
func SMA(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 {
		return out
	}
	var sum float64
	nans := 0
	for i, v := range values {
		if math.IsNaN(v) {
			nans++
		} else {
			sum += v
		}
		if i >= period {
			old := values[i-period]
			if math.IsNaN(old) {
				nans--
			} else {
				sum -= old
			}
		}
		if i >= period-1 && nans == 0 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA uses alpha = 2/(period+1) seeded with the first value; the first
// period-1 rows are NaN.
func EMA(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if len(values) == 0 || period <= 0 {
		return out
	}
	alpha := 2.0 / (float64(period) + 1.0)
	ema := values[0]
	for i, v := range values {
		if i > 0 {
			ema = alpha*v + (1-alpha)*ema
		}
		if i >= period-1 {
			out[i] = ema
		}
	}
	return out
}

// RSI averages gains and losses with a simple rolling mean. A window without
// losses has rs 0 and reads 0.
func RSI(values []float64, period int) []float64 {
	n := len(values)
	gains := make([]float64, n)
	losses := make([]float64, n)
	for i := 1; i < n; i++ {
		change := values[i] - values[i-1]
		if change > 0 {
			gains[i] = change
		} else if change < 0 {
			losses[i] = -change
		}
	}
	avgGain := SMA(gains, period)
	avgLoss := SMA(losses, period)

	out := nanSlice(n)
	for i := range out {
		switch {
		case math.IsNaN(avgGain[i]) || math.IsNaN(avgLoss[i]):
		case avgLoss[i] == 0:
			out[i] = 0
		default:
			rs := avgGain[i] / avgLoss[i]
			out[i] = 100 - 100/(1+rs)
		}
	}
	return out
}

// TrueRange is max(high-low, |high-prevClose|, |low-prevClose|); the first
// row has no previous close and uses high-low.
func TrueRange(high, low, close []float64) []float64 {
	out := make([]float64, len(high))
	for i := range high {
		tr := high[i] - low[i]
		if i > 0 {
			tr = math.Max(tr, math.Max(math.Abs(high[i]-close[i-1]), math.Abs(low[i]-close[i-1])))
		}
		out[i] = tr
	}
	return out
}

// ATR is the rolling mean of the true range.
func ATR(high, low, close []float64, period int) []float64 {
	return SMA(TrueRange(high, low, close), period)
}

// RangeATR is the rolling mean of high-low, ignoring gaps between bars.
func RangeATR(high, low []float64, period int) []float64 {
	rng := make([]float64, len(high))
	for i := range high {
		rng[i] = high[i] - low[i]
	}
	return SMA(rng, period)
}

type Bands struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// Bollinger returns middle = SMA(period) and middle ± numStd * sample stddev.
func Bollinger(values []float64, period int, numStd float64) Bands {
	mid := SMA(values, period)
	std := RollingStd(values, period)
	b := Bands{Upper: nanSlice(len(values)), Middle: mid, Lower: nanSlice(len(values))}
	for i := range values {
		if math.IsNaN(mid[i]) || math.IsNaN(std[i]) {
			continue
		}
		b.Upper[i] = mid[i] + numStd*std[i]
		b.Lower[i] = mid[i] - numStd*std[i]
	}
	return b
}

// RollingStd is the sample (n-1) standard deviation over period values.
func RollingStd(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period < 2 {
		return out
	}
	for i := period - 1; i < len(values); i++ {
		var sum float64
		win := values[i-period+1 : i+1]
		for _, v := range win {
			sum += v
		}
		mean := sum / float64(period)
		var sq float64
		for _, v := range win {
			sq += (v - mean) * (v - mean)
		}
		out[i] = math.Sqrt(sq / float64(period-1))
	}
	return out
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
