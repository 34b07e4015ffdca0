package bars

import (
	"fmt"
	"math"
)

// PositionColumns is the open-position context carried on the primary table
// while exit conditions are evaluated. Rows outside any position have
// PositionID 0, EntryIndex -1 and a NaN EntryPrice.
type PositionColumns struct {
	EntrySignal []bool
	PositionID  []int
	EntryIndex  []int
	EntryPrice  []float64
}

// NewPositionColumns allocates an empty context of n rows.
func NewPositionColumns(n int) *PositionColumns {
	pc := &PositionColumns{
		EntrySignal: make([]bool, n),
		PositionID:  make([]int, n),
		EntryIndex:  make([]int, n),
		EntryPrice:  make([]float64, n),
	}
	pc.Clear(0, n)
	return pc
}

// Clear resets rows [from, to) to "no position".
func (pc *PositionColumns) Clear(from, to int) {
	for i := from; i < to; i++ {
		pc.EntrySignal[i] = false
		pc.PositionID[i] = 0
		pc.EntryIndex[i] = -1
		pc.EntryPrice[i] = math.NaN()
	}
}

// Fill marks rows [entry, to) as belonging to position id opened at entry.
func (pc *PositionColumns) Fill(id, entry, to int, price float64) {
	for i := entry; i < to; i++ {
		pc.EntrySignal[i] = i == entry
		pc.PositionID[i] = id
		pc.EntryIndex[i] = entry
		pc.EntryPrice[i] = price
	}
}

func (pc *PositionColumns) Len() int { return len(pc.PositionID) }

// WithPosition returns a copy of the table carrying the position context.
// The entry price is also exposed as the "entry_price" column.
func (t *Table) WithPosition(pc *PositionColumns) (*Table, error) {
	if pc.Len() != t.Len() {
		return nil, fmt.Errorf("with position: %w (%d != %d)", ErrColumnLength, pc.Len(), t.Len())
	}
	cp, err := t.WithColumn(ColEntryPrice, pc.EntryPrice)
	if err != nil {
		return nil, err
	}
	cp.position = pc
	return cp, nil
}

// Position returns the attached position context, if any.
func (t *Table) Position() (*PositionColumns, bool) {
	return t.position, t.position != nil
}
