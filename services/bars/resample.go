package bars

import (
	"fmt"
	"time"
)

// Resample aggregates a table into a coarser timeframe. Buckets are aligned
// to the UTC epoch: open is first, high max, low min, close last, volume sum.
func Resample(t *Table, target Timeframe) (*Table, error) {
	src, dst := t.Timeframe().Duration(), target.Duration()
	if dst == 0 {
		return nil, fmt.Errorf("resample: unsupported timeframe %q", target)
	}
	if dst < src || dst%src != 0 {
		return nil, fmt.Errorf("resample %s -> %s: target must be a multiple of source", t.Timeframe(), target)
	}

	out := make([]Bar, 0, t.Len()/int(dst/src)+1)
	for i := 0; i < t.Len(); i++ {
		b := t.Bar(i)
		bucket := b.Time.UTC().Truncate(dst)
		if n := len(out); n > 0 && out[n-1].Time.Equal(bucket) {
			agg := &out[n-1]
			if b.High > agg.High {
				agg.High = b.High
			}
			if b.Low < agg.Low {
				agg.Low = b.Low
			}
			agg.Close = b.Close
			agg.Volume += b.Volume
			continue
		}
		b.Time = bucket
		out = append(out, b)
	}
	return NewTable(target, out)
}

// ResampleDataset fills the requested timeframes that are absent from d by
// resampling the finest compatible table present.
func ResampleDataset(d Dataset, want []Timeframe) (Dataset, error) {
	out := d
	for _, tf := range want {
		if _, ok := out[tf]; ok {
			continue
		}
		var base *Table
		for _, have := range out.Timeframes() {
			if have.Duration() < tf.Duration() && tf.Duration()%have.Duration() == 0 {
				base = out[have]
				break
			}
		}
		if base == nil {
			return nil, &MissingTimeframeError{Timeframe: tf}
		}
		rt, err := Resample(base, tf)
		if err != nil {
			return nil, err
		}
		out = out.With(tf, rt)
	}
	return out, nil
}

// DayKey returns the calendar day of ts in loc as yyyymmdd.
func DayKey(ts time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := ts.In(loc).Date()
	return y*10000 + int(m)*100 + d
}
