package clickhouse

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nadavw1312/trading-manager-server/services/engine"
)

type tradeRow struct {
	JobID       string
	Ticker      string
	EntryID     string
	ExitID      string
	PositionID  uint32
	Date        time.Time
	EntryTime   time.Time
	ExitTime    time.Time
	EntryPrice  float64
	ExitPrice   float64
	Profit      float64
	ForceClosed uint8
	CreatedAt   time.Time
}

func (r tradeRow) values() []any {
	return []any{
		r.JobID, r.Ticker, r.EntryID, r.ExitID, r.PositionID, r.Date,
		r.EntryTime, r.ExitTime, r.EntryPrice, r.ExitPrice, r.Profit, r.ForceClosed, r.CreatedAt,
	}
}

func tradeRows(jobID, ticker, entryID, exitID string, l engine.Ledger, now time.Time) ([]tradeRow, error) {
	rows := make([]tradeRow, 0, len(l))
	for _, t := range l {
		day, err := time.Parse("2006-01-02", t.Date)
		if err != nil {
			return nil, fmt.Errorf("trade %d date: %w", t.PositionID, err)
		}
		var forced uint8
		if t.ForceClosed {
			forced = 1
		}
		rows = append(rows, tradeRow{
			JobID:       jobID,
			Ticker:      ticker,
			EntryID:     entryID,
			ExitID:      exitID,
			PositionID:  uint32(t.PositionID),
			Date:        day,
			EntryTime:   t.EntryTime.UTC(),
			ExitTime:    t.ExitTime.UTC(),
			EntryPrice:  t.EntryPrice,
			ExitPrice:   t.ExitPrice,
			Profit:      t.Profit,
			ForceClosed: forced,
			CreatedAt:   now,
		})
	}
	return rows, nil
}

// SaveLedger appends the trades of one ticker to the ledger table.
func (c *Client) SaveLedger(ctx context.Context, jobID, ticker, entryID, exitID string, l engine.Ledger) error {
	if len(l) == 0 {
		return nil
	}
	rows, err := tradeRows(jobID, ticker, entryID, exitID, l, time.Now().UTC())
	if err != nil {
		return err
	}
	batch, err := c.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s", c.trades()))
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	for _, r := range rows {
		if err := batch.Append(r.values()...); err != nil {
			return fmt.Errorf("append: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	c.log.Info("Saved ledger",
		zap.String("job_id", jobID),
		zap.String("ticker", ticker),
		zap.Int("trades", len(rows)))
	return nil
}
