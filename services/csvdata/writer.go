package csvdata

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/nadavw1312/trading-manager-server/services/bars"
	"github.com/nadavw1312/trading-manager-server/services/engine"
)

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// WriteBars writes t with epoch-millisecond timestamps.
func WriteBars(w io.Writer, t *bars.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	for _, b := range t.Bars() {
		rec := []string{
			strconv.FormatInt(b.Time.UnixMilli(), 10),
			formatFloat(b.Open),
			formatFloat(b.High),
			formatFloat(b.Low),
			formatFloat(b.Close),
			formatFloat(b.Volume),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteLedger writes one row per trade followed by a summary block.
func WriteLedger(w io.Writer, ticker string, l engine.Ledger) error {
	cw := csv.NewWriter(w)
	header := []string{
		"ticker", "position_id", "date", "entry_index", "exit_index",
		"entry_time_utc", "exit_time_utc", "entry_price", "exit_price", "profit", "force_closed",
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, t := range l {
		rec := []string{
			ticker,
			strconv.Itoa(t.PositionID),
			t.Date,
			strconv.Itoa(t.EntryIndex),
			strconv.Itoa(t.ExitIndex),
			t.EntryTime.UTC().Format(time.RFC3339),
			t.ExitTime.UTC().Format(time.RFC3339),
			formatFloat(t.EntryPrice),
			formatFloat(t.ExitPrice),
			formatFloat(t.Profit),
			strconv.FormatBool(t.ForceClosed),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}

	s := l.Summary()
	summary := [][]string{
		{""},
		{"# Summary"},
		{"total_trades", strconv.Itoa(s.TotalTrades)},
		{"wins", strconv.Itoa(s.Wins)},
		{"losses", strconv.Itoa(s.Losses)},
		{"win_rate_pct", s.WinRate.StringFixed(2)},
		{"net_profit", s.NetProfit.String()},
		{"avg_win", s.AvgWin.StringFixed(4)},
		{"avg_loss", s.AvgLoss.StringFixed(4)},
		{"expectancy", s.Expectancy.StringFixed(4)},
		{"profit_factor", s.ProfitFactor.StringFixed(4)},
		{"avg_holding_time_hours", s.AvgHoldingTimeHours.StringFixed(2)},
	}
	if err := cw.WriteAll(summary); err != nil {
		return err
	}
	return cw.Error()
}

func ExportLedger(path, ticker string, l engine.Ledger) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()
	if err := WriteLedger(f, ticker, l); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	return f.Close()
}
