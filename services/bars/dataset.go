package bars

import (
	"fmt"
	"sort"
)

// MissingTimeframeError reports a timeframe referenced by a run but absent
// from its dataset.
type MissingTimeframeError struct {
	Timeframe Timeframe
}

func (e *MissingTimeframeError) Error() string {
	return fmt.Sprintf("missing timeframe %q in dataset", string(e.Timeframe))
}

// Dataset maps timeframe labels to their tables. A Dataset passed to a run
// is never mutated; use With to derive a new one.
type Dataset map[Timeframe]*Table

func (d Dataset) Table(tf Timeframe) (*Table, error) {
	t, ok := d[tf]
	if !ok || t == nil {
		return nil, &MissingTimeframeError{Timeframe: tf}
	}
	return t, nil
}

// With returns a shallow copy of the dataset with tf replaced by t.
func (d Dataset) With(tf Timeframe, t *Table) Dataset {
	cp := make(Dataset, len(d)+1)
	for k, v := range d {
		cp[k] = v
	}
	cp[tf] = t
	return cp
}

// Require checks every timeframe is present.
func (d Dataset) Require(tfs ...Timeframe) error {
	for _, tf := range tfs {
		if _, err := d.Table(tf); err != nil {
			return err
		}
	}
	return nil
}

// Timeframes returns the keys ordered from finest to coarsest.
func (d Dataset) Timeframes() []Timeframe {
	out := make([]Timeframe, 0, len(d))
	for tf := range d {
		out = append(out, tf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Duration() < out[j].Duration() })
	return out
}

// Checksums returns a per-timeframe content hash.
func (d Dataset) Checksums() map[Timeframe]string {
	out := make(map[Timeframe]string, len(d))
	for tf, t := range d {
		out[tf] = t.Checksum()
	}
	return out
}
