package csvdata

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/text/encoding/unicode"

	"github.com/nadavw1312/trading-manager-server/services/bars"
	"github.com/nadavw1312/trading-manager-server/services/engine"
)

const sample = `timestamp,open,high,low,close,volume
1704189600000,10,11,9,10.5,100
1704189300000,9,10,8,9.5,50
1704189900000,10.5,12,10,11,70
1704189900000,10.5,12,10,11.5,80
garbage,row
`

func TestLoadSortsAndDedupes(t *testing.T) {
	tbl, err := Load(strings.NewReader(sample), bars.TF5m)
	require.NoError(t, err)
	require.Equal(t, 3, tbl.Len())
	assert.Equal(t, []float64{9.5, 10.5, 11.5}, tbl.Close())
	assert.Equal(t, time.UnixMilli(1704189300000).UTC(), tbl.Times()[0])
	assert.Equal(t, 80.0, tbl.Bar(2).Volume)
}

func TestLoadUTF16(t *testing.T) {
	enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	data, err := enc.Bytes([]byte(sample))
	require.NoError(t, err)
	require.Equal(t, []byte{0xFF, 0xFE}, data[:2])

	tbl, err := Load(bytes.NewReader(data), bars.TF5m)
	require.NoError(t, err)
	assert.Equal(t, 3, tbl.Len())
}

func TestLoadNamedColumnsAndDates(t *testing.T) {
	in := "\ufeffDate,Volume,Open,High,Low,Close\n2024-01-02,1,2,3,1,2.5\n2024-01-03 00:00:00,1,3,4,2,3.5\n"
	tbl, err := Load(strings.NewReader(in), bars.TF1d)
	require.NoError(t, err)
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, []float64{2.5, 3.5}, tbl.Close())
	assert.Equal(t, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), tbl.Times()[1])
}

func TestLoadEmpty(t *testing.T) {
	_, err := Load(strings.NewReader("timestamp,open,high,low,close\n"), bars.TF5m)
	assert.ErrorIs(t, err, ErrNoBars)
}

func TestParseTime(t *testing.T) {
	sec, err := ParseTime("1704189600")
	require.NoError(t, err)
	ms, err := ParseTime("1704189600000")
	require.NoError(t, err)
	assert.Equal(t, sec, ms)

	rfc, err := ParseTime("2024-01-02T10:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, sec, rfc)

	_, err = ParseTime("yesterday")
	assert.Error(t, err)
}

func writeBars(t *testing.T, dir, name string, tf bars.Timeframe, start time.Time, closes ...float64) {
	t.Helper()
	b := make([]bars.Bar, len(closes))
	for i, c := range closes {
		b[i] = bars.Bar{Time: start.Add(time.Duration(i) * tf.Duration()), Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 1}
	}
	var buf bytes.Buffer
	require.NoError(t, WriteBars(&buf, bars.MustTable(tf, b)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), buf.Bytes(), 0o644))
}

func TestDirProvider(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	closes := make([]float64, 36)
	for i := range closes {
		closes[i] = float64(i + 1)
	}
	writeBars(t, dir, "ABC_5m.csv", bars.TF5m, start, closes...)

	p := NewDirProvider(dir, false, nil)
	ds, err := p.GetTimeframes(context.Background(), "abc", start.Add(10*time.Minute), start.Add(time.Hour), []bars.Timeframe{bars.TF5m})
	require.NoError(t, err)
	tbl, err := ds.Table(bars.TF5m)
	require.NoError(t, err)
	assert.Equal(t, 11, tbl.Len())
	assert.Equal(t, 3.0, tbl.Close()[0])

	_, err = p.GetTimeframes(context.Background(), "abc", time.Time{}, time.Time{}, []bars.Timeframe{bars.TF5m, bars.TF1h})
	var mt *bars.MissingTimeframeError
	require.True(t, errors.As(err, &mt))
	assert.Equal(t, bars.TF1h, mt.Timeframe)

	p.Resample = true
	ds, err = p.GetTimeframes(context.Background(), "abc", time.Time{}, time.Time{}, []bars.Timeframe{bars.TF5m, bars.TF1h})
	require.NoError(t, err)
	hourly, err := ds.Table(bars.TF1h)
	require.NoError(t, err)
	require.Equal(t, 3, hourly.Len())
	assert.Equal(t, 12.0, hourly.Close()[0])
	assert.Equal(t, 13.0, hourly.Bar(1).Open)
}

func TestDirProviderLogsGaps(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	b := []bars.Bar{
		{Time: start, Open: 1, High: 1, Low: 1, Close: 1},
		{Time: start.Add(5 * time.Minute), Open: 2, High: 2, Low: 2, Close: 2},
		{Time: start.Add(30 * time.Minute), Open: 3, High: 3, Low: 3, Close: 3},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteBars(&buf, bars.MustTable(bars.TF5m, b)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ABC_5m.csv"), buf.Bytes(), 0o644))

	core, logs := observer.New(zapcore.WarnLevel)
	p := NewDirProvider(dir, false, zap.New(core))
	_, err := p.GetTimeframes(context.Background(), "ABC", time.Time{}, time.Time{}, []bars.Timeframe{bars.TF5m})
	require.NoError(t, err)

	entries := logs.FilterMessage("Gaps in bar file").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1), entries[0].ContextMap()["gaps"])
	assert.Equal(t, start.Add(30*time.Minute), entries[0].ContextMap()["first_gap"])
}

func TestWriteLedger(t *testing.T) {
	at := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	l := engine.Ledger{{PositionID: 1, Date: "2024-01-02", EntryIndex: 2, ExitIndex: 6, EntryTime: at, ExitTime: at.Add(20 * time.Minute), EntryPrice: 9, ExitPrice: 14, Profit: 5}}

	var buf bytes.Buffer
	require.NoError(t, WriteLedger(&buf, "ABC", l))
	out := buf.String()
	assert.Contains(t, out, "ABC,1,2024-01-02,2,6,2024-01-02T09:30:00Z,2024-01-02T09:50:00Z,9,14,5,false")
	assert.Contains(t, out, "# Summary")
	assert.Contains(t, out, "total_trades,1")
	assert.Contains(t, out, "net_profit,5")
}
