package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nadavw1312/trading-manager-server/services/bars"
	"github.com/nadavw1312/trading-manager-server/services/conditions"
)

// Position is one opened position. ExitIndex is -1 while open.
type Position struct {
	ID          int       `json:"id"`
	EntryIndex  int       `json:"entry_index"`
	EntryTime   time.Time `json:"entry_time"`
	EntryPrice  float64   `json:"entry_price"`
	ExitIndex   int       `json:"exit_index"`
	ExitTime    time.Time `json:"exit_time"`
	ExitPrice   float64   `json:"exit_price"`
	ForceClosed bool      `json:"force_closed,omitempty"`
}

func (p Position) Open() bool { return p.ExitIndex < 0 }

// run holds the state shared by both trackers for one backtest.
type run struct {
	cfg     RunConfig
	ds      bars.Dataset
	primary *bars.Table
	tf      bars.Timeframe
	exit    []conditions.Spec
	log     *zap.Logger

	exitEvals int
}

// exitSignal evaluates the combined exit column with pc attached to the
// primary table.
func (r *run) exitSignal(pc *bars.PositionColumns) ([]bool, error) {
	n := r.primary.Len()
	tbl, err := r.primary.WithPosition(pc)
	if err != nil {
		return nil, fmt.Errorf("attach position: %w", err)
	}
	r.exitEvals++
	cols, err := evaluateAll(r.ds.With(r.tf, tbl), r.exit, n)
	if err != nil {
		return nil, err
	}
	return combine(r.cfg.ExitCombine, cols, n), nil
}

func (r *run) open(id, row int) Position {
	return Position{
		ID:         id,
		EntryIndex: row,
		EntryTime:  r.primary.Times()[row],
		EntryPrice: r.primary.Close()[row],
		ExitIndex:  -1,
	}
}

func (r *run) close(p *Position, row int) {
	p.ExitIndex = row
	p.ExitTime = r.primary.Times()[row]
	p.ExitPrice = r.primary.Close()[row]
}

// firstExit returns the first row in (entry, to) whose exit fires strictly
// after the entry timestamp, or -1.
func (r *run) firstExit(exits []bool, entry, to int) int {
	times := r.primary.Times()
	for i := entry + 1; i < to; i++ {
		if exits[i] && times[i].After(times[entry]) {
			return i
		}
	}
	return -1
}

// endOfData applies the end-of-data policy to a position that never exited.
func (r *run) endOfData(p Position) Position {
	last := r.primary.Len() - 1
	if r.cfg.EndOfData == EndOfDataForceClose && r.primary.Times()[last].After(p.EntryTime) {
		r.close(&p, last)
		p.ForceClosed = true
	}
	return p
}

func segmentEnd(cands []int, k, n int) int {
	if k+1 < len(cands) {
		return cands[k+1]
	}
	return n
}

// trackVectorized resolves positions from the candidate rows. Exits are first
// evaluated once over a speculative context where every candidate owns the
// rows up to the next candidate. A position that survives its whole segment
// gets an exact context running to the end of the data.
func (r *run) trackVectorized(ctx context.Context, cands []int) ([]Position, error) {
	if len(cands) == 0 {
		return nil, nil
	}
	n := r.primary.Len()
	closes := r.primary.Close()

	speculative := bars.NewPositionColumns(n)
	for k, c := range cands {
		speculative.Fill(k+1, c, segmentEnd(cands, k, n), closes[c])
	}
	exits, err := r.exitSignal(speculative)
	if err != nil {
		return nil, err
	}

	var positions []Position
	lastExit := -1
	for k, c := range cands {
		if c <= lastExit {
			continue
		}
		p := r.open(len(positions)+1, c)
		end := segmentEnd(cands, k, n)
		x := r.firstExit(exits, c, end)
		if x < 0 && end < n {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			exact := bars.NewPositionColumns(n)
			exact.Fill(p.ID, c, n, p.EntryPrice)
			full, err := r.exitSignal(exact)
			if err != nil {
				return nil, err
			}
			x = r.firstExit(full, c, n)
			r.log.Debug("position outlived its segment", zap.Int("position", p.ID), zap.Int("entry_index", c), zap.Int("exit_index", x))
		}
		if x < 0 {
			positions = append(positions, r.endOfData(p))
			break
		}
		r.close(&p, x)
		positions = append(positions, p)
		lastExit = x
	}
	return positions, nil
}
