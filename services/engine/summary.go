package engine

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Summary aggregates a ledger. Trades with zero profit count as losses.
type Summary struct {
	TotalTrades         int             `json:"total_trades"`
	Wins                int             `json:"wins"`
	Losses              int             `json:"losses"`
	WinRate             decimal.Decimal `json:"win_rate"`
	NetProfit           decimal.Decimal `json:"net_profit"`
	GrossProfit         decimal.Decimal `json:"gross_profit"`
	GrossLoss           decimal.Decimal `json:"gross_loss"`
	AvgWin              decimal.Decimal `json:"avg_win"`
	AvgLoss             decimal.Decimal `json:"avg_loss"`
	Expectancy          decimal.Decimal `json:"expectancy"`
	ProfitFactor        decimal.Decimal `json:"profit_factor"`
	AvgHoldingTimeHours decimal.Decimal `json:"avg_holding_time_hours"`
}

func (l Ledger) Summary() Summary {
	if len(l) == 0 {
		return Summary{}
	}

	var wins, losses int
	var net, grossProfit, grossLoss decimal.Decimal
	var holdingMs int64
	for _, t := range l {
		p := decimal.NewFromFloat(t.Profit)
		net = net.Add(p)
		if p.GreaterThan(decimal.Zero) {
			wins++
			grossProfit = grossProfit.Add(p)
		} else {
			losses++
			grossLoss = grossLoss.Add(p.Abs())
		}
		holdingMs += t.ExitTime.Sub(t.EntryTime).Milliseconds()
	}

	total := decimal.NewFromInt(int64(len(l)))
	winRate := decimal.NewFromInt(int64(wins)).Div(total).Mul(hundred)

	var avgWin, avgLoss, profitFactor decimal.Decimal
	if wins > 0 {
		avgWin = grossProfit.Div(decimal.NewFromInt(int64(wins)))
	}
	if losses > 0 {
		avgLoss = grossLoss.Div(decimal.NewFromInt(int64(losses)))
	}
	if grossLoss.GreaterThan(decimal.Zero) {
		profitFactor = grossProfit.Div(grossLoss)
	}
	rate := winRate.Div(hundred)
	expectancy := rate.Mul(avgWin).Sub(decimal.NewFromInt(1).Sub(rate).Mul(avgLoss))

	return Summary{
		TotalTrades:         len(l),
		Wins:                wins,
		Losses:              losses,
		WinRate:             winRate,
		NetProfit:           net,
		GrossProfit:         grossProfit,
		GrossLoss:           grossLoss,
		AvgWin:              avgWin,
		AvgLoss:             avgLoss,
		Expectancy:          expectancy,
		ProfitFactor:        profitFactor,
		AvgHoldingTimeHours: decimal.NewFromInt(holdingMs).Div(total).Div(decimal.NewFromInt(3_600_000)),
	}
}
