package engine

import (
	"fmt"

	"github.com/nadavw1312/trading-manager-server/services/bars"
	"github.com/nadavw1312/trading-manager-server/services/conditions"
)

// evaluateAll runs every spec against ds and checks each column covers the
// n primary rows.
func evaluateAll(ds bars.Dataset, specs []conditions.Spec, n int) ([][]bool, error) {
	cols := make([][]bool, 0, len(specs))
	for _, s := range specs {
		col, err := s.Evaluate(ds)
		if err != nil {
			return nil, err
		}
		if len(col) != n {
			tf, _ := s.Timeframe()
			return nil, s.Fail(tf, -1, fmt.Errorf("%w: got %d rows, want %d", bars.ErrColumnLength, len(col), n))
		}
		cols = append(cols, col)
	}
	return cols, nil
}

func combineAll(cols [][]bool, n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = len(cols) > 0
		for _, c := range cols {
			if !c[i] {
				out[i] = false
				break
			}
		}
	}
	return out
}

func combineAny(cols [][]bool, n int) []bool {
	out := make([]bool, n)
	for _, c := range cols {
		for i, v := range c {
			if v {
				out[i] = true
			}
		}
	}
	return out
}

func combine(policy ExitCombine, cols [][]bool, n int) []bool {
	if policy == CombineAny {
		return combineAny(cols, n)
	}
	return combineAll(cols, n)
}

// risingEdges flags false->true transitions. The first row of each day counts
// as an edge when its signal is true.
func risingEdges(signal []bool, days []int) []bool {
	out := make([]bool, len(signal))
	for i, v := range signal {
		if !v {
			continue
		}
		out[i] = i == 0 || days[i] != days[i-1] || !signal[i-1]
	}
	return out
}

// candidates lists the rows allowed to open a position under s.
func candidates(s Strategy, edges []bool, days []int) []int {
	var rows []int
	seen := make(map[int]bool)
	for i, e := range edges {
		if !e {
			continue
		}
		if s == FirstDailyTrade {
			if seen[days[i]] {
				continue
			}
			seen[days[i]] = true
		}
		rows = append(rows, i)
	}
	return rows
}

func dayKeys(t *bars.Table, cfg RunConfig) []int {
	times := t.Times()
	days := make([]int, len(times))
	for i, ts := range times {
		days[i] = bars.DayKey(ts, cfg.Location)
	}
	return days
}
