package bars

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 9, 10, 9, 30, 0, 0, time.UTC)

func series(tf Timeframe, start time.Time, closes ...float64) []Bar {
	out := make([]Bar, len(closes))
	for i, c := range closes {
		out[i] = Bar{
			Time:   start.Add(time.Duration(i) * tf.Duration()),
			Open:   c,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 100,
		}
	}
	return out
}

func TestParseTimeframe(t *testing.T) {
	cases := map[string]Timeframe{"5m": TF5m, "60m": TF1h, "1H": TF1h, " 240m ": TF4h, "1D": TF1d, "15min": TF15m}
	for in, want := range cases {
		got, err := ParseTimeframe(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseTimeframe("3m")
	assert.Error(t, err)
}

func TestNewTableRejectsUnsorted(t *testing.T) {
	b := series(TF5m, t0, 1, 2, 3)
	b[1], b[2] = b[2], b[1]
	_, err := NewTable(TF5m, b)
	assert.ErrorIs(t, err, ErrUnsorted)
}

func TestTableRowIndexIsDense(t *testing.T) {
	tbl := MustTable(TF5m, series(TF5m, t0, 1, 2, 3))
	for i, b := range tbl.Bars() {
		assert.Equal(t, i, b.RowIndex)
	}
}

func TestColumnLookup(t *testing.T) {
	tbl := MustTable(TF5m, series(TF5m, t0, 10, 11))
	c, err := tbl.Column("Close")
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 11}, c)

	_, err = tbl.Column("vwap")
	assert.ErrorIs(t, err, ErrUnknownColumn)

	withCol, err := tbl.WithColumn("vwap", []float64{1, 2})
	require.NoError(t, err)
	v, err := withCol.Column("VWAP")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, v)

	// the original table is untouched
	_, err = tbl.Column("vwap")
	assert.ErrorIs(t, err, ErrUnknownColumn)

	_, err = tbl.WithColumn("bad", []float64{1})
	assert.ErrorIs(t, err, ErrColumnLength)
}

func TestWithPosition(t *testing.T) {
	tbl := MustTable(TF5m, series(TF5m, t0, 10, 11, 12, 13))
	pc := NewPositionColumns(4)
	pc.Fill(1, 1, 3, 11)

	pt, err := tbl.WithPosition(pc)
	require.NoError(t, err)
	ep, err := pt.Column(ColEntryPrice)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(ep[0]))
	assert.Equal(t, 11.0, ep[1])
	assert.Equal(t, 11.0, ep[2])
	assert.True(t, math.IsNaN(ep[3]))

	got, ok := pt.Position()
	require.True(t, ok)
	assert.Equal(t, []bool{false, true, false, false}, got.EntrySignal)
	assert.Equal(t, []int{-1, 1, 1, -1}, got.EntryIndex)

	_, ok = tbl.Position()
	assert.False(t, ok)
}

func TestDatasetMissingTimeframe(t *testing.T) {
	d := Dataset{TF5m: MustTable(TF5m, series(TF5m, t0, 1))}
	_, err := d.Table(TF1h)
	var mt *MissingTimeframeError
	require.True(t, errors.As(err, &mt))
	assert.Equal(t, TF1h, mt.Timeframe)
	assert.Error(t, d.Require(TF5m, TF1h))
	assert.NoError(t, d.Require(TF5m))
}

func TestDatasetWithDoesNotMutate(t *testing.T) {
	base := MustTable(TF5m, series(TF5m, t0, 1))
	d := Dataset{TF5m: base}
	other := MustTable(TF5m, series(TF5m, t0, 2))
	d2 := d.With(TF5m, other)
	assert.Same(t, base, d[TF5m])
	assert.Same(t, other, d2[TF5m])
}

func TestAsOfBackward(t *testing.T) {
	right := []time.Time{t0, t0.Add(time.Hour)}
	left := []time.Time{t0.Add(-time.Minute), t0, t0.Add(30 * time.Minute), t0.Add(time.Hour), t0.Add(2 * time.Hour)}
	got := AsOfBackward(left, right, []float64{1, 2})
	assert.True(t, math.IsNaN(got[0]))
	assert.Equal(t, []float64{1, 1, 2, 2}, got[1:])
}

func TestAlignUsesClosedBarsOnly(t *testing.T) {
	start := time.Date(2024, 9, 10, 10, 0, 0, 0, time.UTC)
	fine := MustTable(TF5m, series(TF5m, start, make([]float64, 24)...))
	coarse := MustTable(TF1h, series(TF1h, start, 100, 200))

	got := Align(fine, coarse, []float64{100, 200})
	// 10:00-10:50 bars close before the 10:00 hour bar does
	for i := 0; i < 11; i++ {
		assert.True(t, math.IsNaN(got[i]), "row %d", i)
	}
	// the 10:55 bar closes at 11:00 together with the hour bar
	assert.Equal(t, 100.0, got[11])
	assert.Equal(t, 100.0, got[22])
	assert.Equal(t, 200.0, got[23])
}

func TestResample(t *testing.T) {
	start := time.Date(2024, 9, 10, 10, 0, 0, 0, time.UTC)
	fine := MustTable(TF5m, series(TF5m, start, 1, 2, 3, 4, 5, 6))
	coarse, err := Resample(fine, TF15m)
	require.NoError(t, err)
	require.Equal(t, 2, coarse.Len())

	b := coarse.Bar(0)
	assert.Equal(t, start, b.Time)
	assert.Equal(t, 1.0, b.Open)
	assert.Equal(t, 4.0, b.High)
	assert.Equal(t, 0.0, b.Low)
	assert.Equal(t, 3.0, b.Close)
	assert.Equal(t, 300.0, b.Volume)

	_, err = Resample(coarse, TF5m)
	assert.Error(t, err)
}

func TestResampleDataset(t *testing.T) {
	start := time.Date(2024, 9, 10, 10, 0, 0, 0, time.UTC)
	d := Dataset{TF5m: MustTable(TF5m, series(TF5m, start, 1, 2, 3, 4))}
	out, err := ResampleDataset(d, []Timeframe{TF5m, TF15m})
	require.NoError(t, err)
	assert.Equal(t, 2, out[TF15m].Len())
	_, ok := d[TF15m]
	assert.False(t, ok)

	_, err = ResampleDataset(Dataset{TF1d: out[TF5m]}, []Timeframe{TF1h})
	var mt *MissingTimeframeError
	assert.True(t, errors.As(err, &mt))
}

func TestSliceAndGaps(t *testing.T) {
	b := series(TF5m, t0, 1, 2, 3, 4)
	b[3].Time = b[3].Time.Add(time.Hour)
	tbl := MustTable(TF5m, b)

	s := tbl.Slice(t0.Add(5*time.Minute), t0.Add(10*time.Minute))
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 0, s.Bar(0).RowIndex)
	assert.Equal(t, 2.0, s.Bar(0).Close)

	assert.Equal(t, []int{3}, tbl.DetectGaps())
}

func TestChecksumStable(t *testing.T) {
	a := MustTable(TF5m, series(TF5m, t0, 1, 2, 3))
	b := MustTable(TF5m, series(TF5m, t0, 1, 2, 3))
	c := MustTable(TF5m, series(TF5m, t0, 1, 2, 4))
	assert.Equal(t, a.Checksum(), b.Checksum())
	assert.NotEqual(t, a.Checksum(), c.Checksum())
}

func TestDayKey(t *testing.T) {
	ts := time.Date(2024, 9, 10, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, 20240910, DayKey(ts, nil))
	ny, err := time.LoadLocation("America/New_York")
	if err == nil {
		assert.Equal(t, 20240910, DayKey(ts, ny))
		assert.Equal(t, 20240911, DayKey(ts.Add(5*time.Hour), time.UTC))
	}
}
