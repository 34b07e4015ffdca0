package bars

import (
	"math"
	"time"
)

// AsOfBackward maps right values onto the left time grid using the last right
// row whose time is at or before each left time. Rows with no prior right
// value get NaN. Both time slices must be sorted ascending.
func AsOfBackward(left, right []time.Time, values []float64) []float64 {
	out := make([]float64, len(left))
	j := -1
	for i, lt := range left {
		for j+1 < len(right) && !right[j+1].After(lt) {
			j++
		}
		if j < 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = values[j]
	}
	return out
}

// Align projects a column computed on secondary onto primary's rows. Only
// secondary bars that have closed by the time a primary bar closes are
// visible, so a 1h value never leaks into the 5m bars inside that hour.
func Align(primary, secondary *Table, values []float64) []float64 {
	if primary.Timeframe() == secondary.Timeframe() && primary.Len() == len(values) {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}
	left := make([]time.Time, primary.Len())
	for i := range left {
		left[i] = primary.CloseTime(i)
	}
	right := make([]time.Time, secondary.Len())
	for i := range right {
		right[i] = secondary.CloseTime(i)
	}
	return AsOfBackward(left, right, values)
}
