package engine

import (
	"context"

	"github.com/nadavw1312/trading-manager-server/services/bars"
)

// trackReference walks the primary rows one at a time. Each opened position
// gets its own exact exit context. Slower than trackVectorized and kept as the
// ground truth both modes are checked against.
func (r *run) trackReference(ctx context.Context, signal []bool, days []int) ([]Position, error) {
	n := r.primary.Len()
	times := r.primary.Times()

	var (
		positions []Position
		cur       *Position
		exits     []bool
	)
	seen := make(map[int]bool)
	for i := 0; i < n; i++ {
		edge := signal[i] && (i == 0 || days[i] != days[i-1] || !signal[i-1])
		if edge && r.cfg.Strategy == FirstDailyTrade {
			if seen[days[i]] {
				edge = false
			}
			seen[days[i]] = true
		}

		if cur != nil {
			if exits[i] && times[i].After(cur.EntryTime) {
				r.close(cur, i)
				positions = append(positions, *cur)
				cur = nil
			}
			continue
		}
		if !edge {
			continue
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := r.open(len(positions)+1, i)
		pc := bars.NewPositionColumns(n)
		pc.Fill(p.ID, i, n, p.EntryPrice)
		var err error
		if exits, err = r.exitSignal(pc); err != nil {
			return nil, err
		}
		cur = &p
	}
	if cur != nil {
		positions = append(positions, r.endOfData(*cur))
	}
	return positions, nil
}
