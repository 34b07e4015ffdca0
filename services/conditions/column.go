package conditions

import (
	"math"

	"github.com/nadavw1312/trading-manager-server/services/bars"
)

// Column wraps a precomputed signal as a condition on tf. Used for fixtures
// and for signals computed outside the registry.
func Column(name string, role Role, tf bars.Timeframe, col []bool) Spec {
	snapshot := append([]bool(nil), col...)
	return NewSpec(name, role, Params{KeyConditionTimeframe: string(tf)}, func(ds bars.Dataset, p Params) ([]bool, error) {
		if _, err := tableFor(ds, p, KeyConditionTimeframe); err != nil {
			return nil, err
		}
		return append([]bool(nil), snapshot...), nil
	})
}

// EntryOffset exits once close has moved delta away from the carried entry
// price: up for delta > 0, down for delta < 0.
func EntryOffset(name string, tf bars.Timeframe, delta float64) Spec {
	return NewSpec(name, RoleExit, Params{KeyConditionTimeframe: string(tf), "delta": delta}, func(ds bars.Dataset, p Params) ([]bool, error) {
		tbl, err := tableFor(ds, p, KeyConditionTimeframe)
		if err != nil {
			return nil, err
		}
		pc, err := positionOf(tbl)
		if err != nil {
			return nil, err
		}
		d, err := p.Float("delta")
		if err != nil {
			return nil, err
		}
		close := tbl.Close()
		out := make([]bool, tbl.Len())
		for i := range out {
			if math.IsNaN(pc.EntryPrice[i]) {
				continue
			}
			if d >= 0 {
				out[i] = close[i] >= pc.EntryPrice[i]+d
			} else {
				out[i] = close[i] <= pc.EntryPrice[i]+d
			}
		}
		return out, nil
	})
}
