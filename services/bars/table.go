// Package bars holds the per-timeframe OHLCV tables consumed by the engine.
package bars

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

var (
	ErrUnsorted      = errors.New("bars: timestamps must be non-decreasing")
	ErrUnknownColumn = errors.New("bars: unknown column")
	ErrColumnLength  = errors.New("bars: column length does not match table")
)

const (
	ColOpen       = "open"
	ColHigh       = "high"
	ColLow        = "low"
	ColClose      = "close"
	ColVolume     = "volume"
	ColEntryPrice = "entry_price"
)

type Bar struct {
	RowIndex int       `json:"index"`
	Time     time.Time `json:"datetime"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Table is an immutable column-wise view of the bars of one timeframe.
// Derived columns are attached by returning a new Table that shares the
// base columns.
type Table struct {
	tf     Timeframe
	times  []time.Time
	open   []float64
	high   []float64
	low    []float64
	close  []float64
	volume []float64

	extra    map[string][]float64
	position *PositionColumns
}

// NewTable builds a table from bars ordered by time. Row indexes are
// reassigned densely from zero.
func NewTable(tf Timeframe, bars []Bar) (*Table, error) {
	if !tf.Valid() {
		return nil, fmt.Errorf("new table: unsupported timeframe %q", tf)
	}
	n := len(bars)
	t := &Table{
		tf:     tf,
		times:  make([]time.Time, n),
		open:   make([]float64, n),
		high:   make([]float64, n),
		low:    make([]float64, n),
		close:  make([]float64, n),
		volume: make([]float64, n),
	}
	for i, b := range bars {
		if i > 0 && b.Time.Before(bars[i-1].Time) {
			return nil, fmt.Errorf("new table %s row %d: %w", tf, i, ErrUnsorted)
		}
		t.times[i] = b.Time
		t.open[i] = b.Open
		t.high[i] = b.High
		t.low[i] = b.Low
		t.close[i] = b.Close
		t.volume[i] = b.Volume
	}
	return t, nil
}

// MustTable is NewTable for fixtures; it panics on invalid input.
func MustTable(tf Timeframe, bars []Bar) *Table {
	t, err := NewTable(tf, bars)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Table) Timeframe() Timeframe { return t.tf }

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.times)
}

// Times returns the bar open times. Callers must not modify the slice.
func (t *Table) Times() []time.Time { return t.times }

// CloseTime is the instant bar i becomes fully known.
func (t *Table) CloseTime(i int) time.Time { return t.times[i].Add(t.tf.Duration()) }

func (t *Table) Bar(i int) Bar {
	return Bar{
		RowIndex: i,
		Time:     t.times[i],
		Open:     t.open[i],
		High:     t.high[i],
		Low:      t.low[i],
		Close:    t.close[i],
		Volume:   t.volume[i],
	}
}

func (t *Table) Bars() []Bar {
	out := make([]Bar, t.Len())
	for i := range out {
		out[i] = t.Bar(i)
	}
	return out
}

// Column returns a float column by name (case-insensitive). Callers must not
// modify the slice.
func (t *Table) Column(name string) ([]float64, error) {
	key := strings.ToLower(name)
	switch key {
	case ColOpen:
		return t.open, nil
	case ColHigh:
		return t.high, nil
	case ColLow:
		return t.low, nil
	case ColClose:
		return t.close, nil
	case ColVolume:
		return t.volume, nil
	}
	if col, ok := t.extra[key]; ok {
		return col, nil
	}
	return nil, fmt.Errorf("%w %q in %s table", ErrUnknownColumn, name, t.tf)
}

func (t *Table) Close() []float64 { return t.close }

// WithColumn returns a copy of the table with an extra float column attached.
func (t *Table) WithColumn(name string, values []float64) (*Table, error) {
	if len(values) != t.Len() {
		return nil, fmt.Errorf("with column %q: %w (%d != %d)", name, ErrColumnLength, len(values), t.Len())
	}
	cp := *t
	cp.extra = make(map[string][]float64, len(t.extra)+1)
	for k, v := range t.extra {
		cp.extra[k] = v
	}
	cp.extra[strings.ToLower(name)] = values
	return &cp, nil
}

// Slice returns the rows whose time falls within [from, to]. A zero bound is open.
func (t *Table) Slice(from, to time.Time) *Table {
	lo := 0
	if !from.IsZero() {
		lo = sort.Search(t.Len(), func(i int) bool { return !t.times[i].Before(from) })
	}
	hi := t.Len()
	if !to.IsZero() {
		hi = sort.Search(t.Len(), func(i int) bool { return t.times[i].After(to) })
	}
	if hi < lo {
		hi = lo
	}
	return &Table{
		tf:     t.tf,
		times:  t.times[lo:hi:hi],
		open:   t.open[lo:hi:hi],
		high:   t.high[lo:hi:hi],
		low:    t.low[lo:hi:hi],
		close:  t.close[lo:hi:hi],
		volume: t.volume[lo:hi:hi],
	}
}

// Checksum is a sha256 over the base columns, used in run manifests.
func (t *Table) Checksum() string {
	h := sha256.New()
	var buf [8]byte
	h.Write([]byte(t.tf))
	for i := 0; i < t.Len(); i++ {
		binary.LittleEndian.PutUint64(buf[:], uint64(t.times[i].UnixNano()))
		h.Write(buf[:])
		for _, v := range [...]float64{t.open[i], t.high[i], t.low[i], t.close[i], t.volume[i]} {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
			h.Write(buf[:])
		}
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// DetectGaps returns the rows preceded by a jump larger than one bar.
func (t *Table) DetectGaps() (gaps []int) {
	step := t.tf.Duration()
	for i := 1; i < t.Len(); i++ {
		if t.times[i].Sub(t.times[i-1]) > step {
			gaps = append(gaps, i)
		}
	}
	return gaps
}
