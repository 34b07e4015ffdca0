package engine

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nadavw1312/trading-manager-server/services/bars"
)

const dateLayout = "2006-01-02"

type Trade struct {
	PositionID  int       `json:"position_id"`
	Date        string    `json:"date"`
	EntryIndex  int       `json:"entry_index"`
	ExitIndex   int       `json:"exit_index"`
	EntryTime   time.Time `json:"entry_time"`
	ExitTime    time.Time `json:"exit_time"`
	EntryPrice  float64   `json:"entry_price"`
	ExitPrice   float64   `json:"exit_price"`
	Profit      float64   `json:"profit"`
	ForceClosed bool      `json:"force_closed,omitempty"`
}

// Ledger is the trade list of one run, ordered by entry time.
type Ledger []Trade

func (l Ledger) TotalProfit() decimal.Decimal {
	total := decimal.Zero
	for _, t := range l {
		total = total.Add(decimal.NewFromFloat(t.Profit))
	}
	return total
}

// compile turns closed positions into the capped, ordered ledger.
func compile(positions []Position, cfg RunConfig) Ledger {
	trades := make(Ledger, 0, len(positions))
	for _, p := range positions {
		if p.Open() {
			continue
		}
		profit := p.ExitPrice - p.EntryPrice
		if cfg.Direction == Short {
			profit = -profit
		}
		trades = append(trades, Trade{
			PositionID:  p.ID,
			Date:        p.EntryTime.In(cfg.Location).Format(dateLayout),
			EntryIndex:  p.EntryIndex,
			ExitIndex:   p.ExitIndex,
			EntryTime:   p.EntryTime,
			ExitTime:    p.ExitTime,
			EntryPrice:  p.EntryPrice,
			ExitPrice:   p.ExitPrice,
			Profit:      profit,
			ForceClosed: p.ForceClosed,
		})
	}
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].EntryTime.Before(trades[j].EntryTime)
	})

	perDay := make(map[int]int)
	kept := trades[:0]
	for _, t := range trades {
		d := bars.DayKey(t.EntryTime, cfg.Location)
		if perDay[d] >= cfg.MaxTradesPerDay {
			continue
		}
		perDay[d]++
		kept = append(kept, t)
	}
	return kept
}
