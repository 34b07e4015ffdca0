package clickhouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nadavw1312/trading-manager-server/services/bars"
)

// candleQuery selects one symbol/interval ordered by open time. FINAL
// collapses ReplacingMergeTree duplicates.
func candleQuery(table string, from, to time.Time) (string, []any) {
	q := fmt.Sprintf(`SELECT open_time_ms, open, high, low, close, volume
		FROM %s FINAL
		WHERE symbol = ? AND interval = ?`, table)
	var extra []any
	if !from.IsZero() {
		q += " AND open_time_ms >= ?"
		extra = append(extra, uint64(from.UnixMilli()))
	}
	if !to.IsZero() {
		q += " AND open_time_ms <= ?"
		extra = append(extra, uint64(to.UnixMilli()))
	}
	return q + " ORDER BY open_time_ms", extra
}

func (c *Client) loadTable(ctx context.Context, symbol string, tf bars.Timeframe, from, to time.Time) (*bars.Table, error) {
	q, extra := candleQuery(c.candles(), from, to)
	args := append([]any{strings.ToUpper(symbol), tf.String()}, extra...)

	rows, err := c.conn.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s %s: %w", symbol, tf, err)
	}
	defer rows.Close()

	var out []bars.Bar
	for rows.Next() {
		var (
			openMs                  uint64
			open, high, low, closeP float64
			volume                  float64
		)
		if err := rows.Scan(&openMs, &open, &high, &low, &closeP, &volume); err != nil {
			return nil, fmt.Errorf("scan %s %s: %w", symbol, tf, err)
		}
		out = append(out, bars.Bar{
			Time:   time.UnixMilli(int64(openMs)).UTC(),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closeP,
			Volume: volume,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return bars.NewTable(tf, out)
}

func countQuery(table string) string {
	return fmt.Sprintf("SELECT count() FROM %s WHERE symbol = ? AND interval = ?", table)
}

func (c *Client) storedCandles(ctx context.Context, symbol string, tf bars.Timeframe) (uint64, error) {
	var n uint64
	if err := c.conn.QueryRow(ctx, countQuery(c.candles()), strings.ToUpper(symbol), tf.String()).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s %s: %w", symbol, tf, err)
	}
	return n, nil
}

// windowResult keeps an empty window as an empty table; only a
// symbol/interval with nothing stored at all is missing.
func windowResult(t *bars.Table, tf bars.Timeframe, stored uint64) (*bars.Table, error) {
	if t.Len() == 0 && stored == 0 {
		return nil, &bars.MissingTimeframeError{Timeframe: tf}
	}
	return t, nil
}

// GetTimeframes loads every requested timeframe of symbol. A window without
// candles yields an empty table; a timeframe never stored for symbol is
// reported as missing.
func (c *Client) GetTimeframes(ctx context.Context, symbol string, from, to time.Time, tfs []bars.Timeframe) (bars.Dataset, error) {
	ds := make(bars.Dataset, len(tfs))
	for _, tf := range tfs {
		t, err := c.loadTable(ctx, symbol, tf, from, to)
		if err != nil {
			return nil, err
		}
		var stored uint64
		if t.Len() == 0 {
			if stored, err = c.storedCandles(ctx, symbol, tf); err != nil {
				return nil, err
			}
		}
		if ds[tf], err = windowResult(t, tf, stored); err != nil {
			return nil, err
		}
	}
	c.log.Debug("Loaded candles", zap.String("symbol", symbol), zap.Int("timeframes", len(tfs)))
	return ds, nil
}

// InsertBars writes a table of candles for symbol in one batch.
func (c *Client) InsertBars(ctx context.Context, symbol string, t *bars.Table) error {
	batch, err := c.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s SETTINGS insert_deduplicate=1", c.candles()))
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	now := time.Now().UTC()
	ver := uint64(now.UnixNano())
	for _, b := range t.Bars() {
		if err := batch.Append(
			strings.ToUpper(symbol),
			t.Timeframe().String(),
			uint64(b.Time.UnixMilli()),
			b.Open, b.High, b.Low, b.Close, b.Volume,
			now,
			ver,
		); err != nil {
			return fmt.Errorf("append: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}
