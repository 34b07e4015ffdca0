package clickhouse

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadavw1312/trading-manager-server/services/bars"
	"github.com/nadavw1312/trading-manager-server/services/engine"
)

func TestCandleQuery(t *testing.T) {
	q, args := candleQuery("market.candles", time.Time{}, time.Time{})
	assert.Contains(t, q, "FROM market.candles FINAL")
	assert.NotContains(t, q, "open_time_ms >=")
	assert.Empty(t, args)

	from := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	q, args = candleQuery("market.candles", from, from.Add(time.Hour))
	assert.Contains(t, q, "open_time_ms >= ? AND open_time_ms <= ? ORDER BY open_time_ms")
	assert.Equal(t, []any{uint64(from.UnixMilli()), uint64(from.Add(time.Hour).UnixMilli())}, args)
}

func TestTradeRows(t *testing.T) {
	at := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	l := engine.Ledger{
		{PositionID: 1, Date: "2024-01-02", EntryTime: at, ExitTime: at.Add(time.Hour), EntryPrice: 9, ExitPrice: 14, Profit: 5},
		{PositionID: 2, Date: "2024-01-03", EntryTime: at.Add(24 * time.Hour), ExitTime: at.Add(25 * time.Hour), EntryPrice: 10, ExitPrice: 8, Profit: -2, ForceClosed: true},
	}
	rows, err := tradeRows("job", "ABC", "e", "x", l, at)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, uint32(2), rows[1].PositionID)
	assert.Equal(t, uint8(1), rows[1].ForceClosed)
	assert.Equal(t, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), rows[1].Date)
	assert.Len(t, rows[0].values(), 13)

	l[0].Date = "bad"
	_, err = tradeRows("job", "ABC", "e", "x", l, at)
	assert.Error(t, err)
}

func TestDDL(t *testing.T) {
	assert.Contains(t, candlesDDL("m.c"), "ReplacingMergeTree(version)")
	assert.Contains(t, tradesDDL("m.t"), "ORDER BY (job_id, ticker, position_id)")
}

func TestWindowResult(t *testing.T) {
	empty := bars.MustTable(bars.TF5m, nil)

	got, err := windowResult(empty, bars.TF5m, 120)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())

	_, err = windowResult(empty, bars.TF5m, 0)
	var mt *bars.MissingTimeframeError
	require.True(t, errors.As(err, &mt))
	assert.Equal(t, bars.TF5m, mt.Timeframe)

	at := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	one := bars.MustTable(bars.TF5m, []bars.Bar{{Time: at, Open: 1, High: 1, Low: 1, Close: 1}})
	got, err = windowResult(one, bars.TF5m, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Len())

	q := countQuery("market.candles")
	assert.Equal(t, "SELECT count() FROM market.candles WHERE symbol = ? AND interval = ?", q)
	assert.NotContains(t, q, "open_time_ms")
}
