package runner

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadavw1312/trading-manager-server/services/bars"
	"github.com/nadavw1312/trading-manager-server/services/conditions"
	"github.com/nadavw1312/trading-manager-server/services/engine"
	"github.com/nadavw1312/trading-manager-server/services/metrics"
)

var start = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func wave(phase float64, n int) bars.Dataset {
	b := make([]bars.Bar, n)
	for i := range b {
		c := 100 + 5*math.Sin(float64(i)/7+phase)
		b[i] = bars.Bar{Time: start.Add(time.Duration(i) * 5 * time.Minute), Open: c, High: c + 0.4, Low: c - 0.4, Close: c, Volume: 1000}
	}
	return bars.Dataset{bars.TF5m: bars.MustTable(bars.TF5m, b)}
}

func request(tickers ...string) Request {
	return Request{
		Tickers: tickers,
		From:    start,
		To:      start.Add(48 * time.Hour),
		EntryConditions: []ConditionRef{
			{Symbol: "smaAboveEma", Params: conditions.Params{"condition_timeframe": "5m", "sma_window": 3, "ema_window": 8}},
		},
		ExitConditions: []ConditionRef{
			{Symbol: "priceExceedsAtrExit", Params: conditions.Params{"condition_timeframe": "5m", "atr_window": 5, "atr_multiplier": 1.0}},
		},
		Type: engine.EachDay,
	}
}

type countingProvider struct {
	*MemoryProvider
	mu    sync.Mutex
	calls map[string]int
}

func (p *countingProvider) GetTimeframes(ctx context.Context, symbol string, from, to time.Time, tfs []bars.Timeframe) (bars.Dataset, error) {
	p.mu.Lock()
	p.calls[symbol]++
	p.mu.Unlock()
	return p.MemoryProvider.GetTimeframes(ctx, symbol, from, to, tfs)
}

func newProvider() *countingProvider {
	mp := NewMemoryProvider()
	mp.Add("AAA", wave(0, 576))
	mp.Add("BBB", wave(1.3, 576))
	mp.Add("CCC", wave(2.1, 576))
	return &countingProvider{MemoryProvider: mp, calls: map[string]int{}}
}

func TestRunMatchesEngine(t *testing.T) {
	reg := conditions.NewDefaultRegistry()
	p := newProvider()
	r := New(reg, p, WithPlanner(NewPlanner(2, 2)), WithMetrics(metrics.New(prometheus.NewRegistry())))

	rep, err := r.Run(context.Background(), request("AAA", "BBB", "CCC"))
	require.NoError(t, err)
	require.Len(t, rep.Results, 3)
	assert.NotEmpty(t, rep.JobID)

	req := request()
	require.NoError(t, req.Normalize())
	entry, _, err := resolve(reg, "entry", req.EntryConditions)
	require.NoError(t, err)
	exit, _, err := resolve(reg, "exit", req.ExitConditions)
	require.NoError(t, err)

	for i, ticker := range []string{"AAA", "BBB", "CCC"} {
		res := rep.Results[i]
		assert.Equal(t, ticker, res.Ticker)
		assert.Equal(t, "smaAboveEma", res.EntryConditionsID)
		assert.Equal(t, "priceExceedsAtrExit", res.ExitConditionsID)
		assert.False(t, res.Cached)

		ds, err := p.MemoryProvider.GetTimeframes(context.Background(), ticker, req.From, req.To, []bars.Timeframe{bars.TF5m})
		require.NoError(t, err)
		want, err := engine.Backtest(context.Background(), ds, entry, exit, req.RunConfig(time.UTC))
		require.NoError(t, err)
		assert.Equal(t, len(want.Trades), len(res.Trades))
		assert.True(t, want.Trades.TotalProfit().Equal(res.Profit))
		assert.Equal(t, len(res.Trades), res.Summary.TotalTrades)
	}
}

func TestRunUsesResultCache(t *testing.T) {
	r := New(conditions.NewDefaultRegistry(), newProvider())

	first, err := r.Run(context.Background(), request("AAA"))
	require.NoError(t, err)
	second, err := r.Run(context.Background(), request("AAA"))
	require.NoError(t, err)

	assert.NotEqual(t, first.JobID, second.JobID)
	assert.False(t, first.Results[0].Cached)
	assert.True(t, second.Results[0].Cached)
	assert.Equal(t, first.Results[0].Fingerprint, second.Results[0].Fingerprint)
	assert.True(t, first.Results[0].Profit.Equal(second.Results[0].Profit))
	require.Equal(t, len(first.Results[0].Trades), len(second.Results[0].Trades))
	for i := range first.Results[0].Trades {
		assert.Equal(t, first.Results[0].Trades[i].EntryIndex, second.Results[0].Trades[i].EntryIndex)
	}
}

func TestReportLookup(t *testing.T) {
	r := New(conditions.NewDefaultRegistry(), newProvider())
	rep, err := r.Run(context.Background(), request("BBB"))
	require.NoError(t, err)

	got, err := r.Report(context.Background(), rep.JobID)
	require.NoError(t, err)
	assert.Equal(t, rep.JobID, got.JobID)
	require.Len(t, got.Results, 1)
	assert.Equal(t, "BBB", got.Results[0].Ticker)

	_, err = r.Report(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestRunErrors(t *testing.T) {
	r := New(conditions.NewDefaultRegistry(), newProvider())
	var cfgErr *engine.ConfigurationError

	req := request("AAA")
	req.EntryConditions[0].Symbol = "nope"
	_, err := r.Run(context.Background(), req)
	assert.ErrorIs(t, err, conditions.ErrUnknownCondition)
	assert.Equal(t, engine.CodeUnknownCondition, engine.ErrorCode(err))

	req = request("AAA")
	req.ExitConditions[0].Params["atr_window"] = 0
	_, err = r.Run(context.Background(), req)
	assert.True(t, errors.As(err, &cfgErr))

	req = request()
	_, err = r.Run(context.Background(), req)
	assert.True(t, errors.As(err, &cfgErr))

	req = request("AAA")
	req.MaxTradesPerDay = -1
	_, err = r.Run(context.Background(), req)
	assert.True(t, errors.As(err, &cfgErr))

	req = request("AAA")
	req.EntryConditions = []ConditionRef{{Symbol: "rsiTrendEntry"}}
	_, err = r.Run(context.Background(), req)
	var mt *bars.MissingTimeframeError
	require.True(t, errors.As(err, &mt))
	assert.Equal(t, engine.CodeMissingTimeframe, engine.ErrorCode(err))

	_, err = r.Run(context.Background(), request("AAA", "ZZZ"))
	assert.Error(t, err)
}

func TestRunCancelled(t *testing.T) {
	r := New(conditions.NewDefaultRegistry(), newProvider())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Run(ctx, request("AAA", "BBB"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPlanChunks(t *testing.T) {
	p := NewPlanner(2, 1)
	chunks := p.PlanChunks([]string{"a", "b", "c", "d", "e"}, start, start.Add(time.Hour))
	require.Len(t, chunks, 3)
	assert.Equal(t, []string{"a", "b"}, chunks[0].Tickers)
	assert.Equal(t, []string{"e"}, chunks[2].Tickers)
	assert.Equal(t, start, chunks[1].From)
}

func TestBackpressure(t *testing.T) {
	bp := NewBackpressure(2)
	assert.True(t, bp.TryAccept())
	assert.True(t, bp.TryAccept())
	assert.False(t, bp.TryAccept())
	bp.Release()
	assert.Equal(t, 1, bp.Len())
	assert.True(t, bp.TryAccept())
}

func TestRequestDefaults(t *testing.T) {
	req := Request{
		Tickers:         []string{"AAA"},
		From:            start,
		To:              start.Add(time.Hour),
		EntryConditions: []ConditionRef{{Symbol: "smaAboveEma"}},
		ExitConditions:  []ConditionRef{{Symbol: "priceBelowEntryLow"}},
	}
	require.NoError(t, req.Normalize())
	assert.Equal(t, engine.FirstDailyTrade, req.Type)
	assert.Equal(t, 1, req.MaxTradesPerDay)
	assert.Equal(t, engine.CombineAll, req.ExitCombine)

	cfg := req.RunConfig(time.UTC)
	assert.Equal(t, engine.EndOfDataDrop, cfg.EndOfData)
	req.ForceClose = true
	assert.Equal(t, engine.EndOfDataForceClose, req.RunConfig(time.UTC).EndOfData)

	req.To = start.Add(-time.Hour)
	assert.Error(t, req.Normalize())
}
