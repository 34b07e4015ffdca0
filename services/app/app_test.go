package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadavw1312/trading-manager-server/services/arrowpipeline"
	"github.com/nadavw1312/trading-manager-server/services/bars"
	"github.com/nadavw1312/trading-manager-server/services/config"
	"github.com/nadavw1312/trading-manager-server/services/csvdata"
	"github.com/nadavw1312/trading-manager-server/services/runner"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Data.CSVDir = t.TempDir()
	cfg.Data.ArrowDir = t.TempDir()
	return cfg
}

func TestNewUsesCSVProvider(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	_, ok := a.Provider.(*csvdata.DirProvider)
	assert.True(t, ok)
	assert.NotNil(t, a.Runner)
	assert.NotEmpty(t, a.Registry.Definitions())
}

func TestNewUsesArrowProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.Data.Source = "arrow"
	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	_, ok := a.Provider.(*arrowpipeline.FileProvider)
	assert.True(t, ok)
}

func TestNewLoadsPresetsFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Data.PresetsFile = filepath.Join(t.TempDir(), "presets.yaml")
	doc := `
- name: house_rules
  type: each_day
  entry_conditions:
    - symbol: smaAboveEma
      params: {condition_timeframe: 5m}
  exit_conditions:
    - symbol: priceBelowEntryLow
      params: {condition_timeframe: 5m}
`
	require.NoError(t, os.WriteFile(cfg.Data.PresetsFile, []byte(doc), 0o644))

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()
	_, ok := a.Presets.Lookup("house_rules")
	assert.True(t, ok)
	_, ok = a.Presets.Lookup("rsi_trend_atr_target")
	assert.True(t, ok)

	cfg.Data.PresetsFile = filepath.Join(t.TempDir(), "absent.yaml")
	_, err = New(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestRunFromCSVDir(t *testing.T) {
	cfg := testConfig(t)
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	b := make([]bars.Bar, 288)
	for i := range b {
		c := 100 + float64(i%24)
		b[i] = bars.Bar{Time: start.Add(time.Duration(i) * 5 * time.Minute), Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 1}
	}
	var buf bytes.Buffer
	require.NoError(t, csvdata.WriteBars(&buf, bars.MustTable(bars.TF5m, b)))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Data.CSVDir, "ABC_5m.csv"), buf.Bytes(), 0o644))

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	rep, err := a.Runner.Run(context.Background(), runner.Request{
		Tickers: []string{"ABC"},
		From:    start,
		To:      start.Add(24 * time.Hour),
		EntryConditions: []runner.ConditionRef{
			{Symbol: "smaAboveEma", Params: map[string]any{"condition_timeframe": "5m", "sma_window": 3, "ema_window": 8}},
		},
		ExitConditions: []runner.ConditionRef{
			{Symbol: "priceBelowEntryLow", Params: map[string]any{"condition_timeframe": "5m"}},
		},
	})
	require.NoError(t, err)
	require.Len(t, rep.Results, 1)
	assert.Equal(t, "ABC", rep.Results[0].Ticker)
}
