package strategies

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadavw1312/trading-manager-server/services/conditions"
	"github.com/nadavw1312/trading-manager-server/services/runner"
)

func TestPresetsResolve(t *testing.T) {
	reg := conditions.NewDefaultRegistry()
	c, err := NewCatalog()
	require.NoError(t, err)
	require.Len(t, c.All(), len(builtin))
	for _, p := range c.All() {
		t.Run(p.Name, func(t *testing.T) {
			var entry, exit []conditions.Spec
			for _, ref := range p.Entry {
				s, err := reg.Resolve(ref.Symbol, ref.Params)
				require.NoError(t, err)
				entry = append(entry, s)
			}
			for _, ref := range p.Exit {
				s, err := reg.Resolve(ref.Symbol, ref.Params)
				require.NoError(t, err)
				exit = append(exit, s)
			}
			tfs, err := conditions.RequiredTimeframes(entry, exit)
			require.NoError(t, err)
			assert.NotEmpty(t, tfs)
		})
	}
}

func TestApplyClonesParams(t *testing.T) {
	c, err := NewCatalog()
	require.NoError(t, err)
	p, ok := c.Lookup("rsi_trend_atr_target")
	require.True(t, ok)

	var req runner.Request
	p.Apply(&req)
	req.EntryConditions[0].Params["rsi_period"] = 99

	again, _ := c.Lookup("rsi_trend_atr_target")
	assert.Equal(t, 14, again.Entry[0].Params["rsi_period"])
	assert.Equal(t, p.Type, req.Type)

	_, ok = c.Lookup("missing")
	assert.False(t, ok)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	doc := `
- name: custom
  type: each_day
  entry_conditions:
    - symbol: smaAboveEma
      params: {condition_timeframe: 5m, sma_window: 3}
  exit_conditions:
    - symbol: priceBelowEntryLow
      params: {condition_timeframe: 5m}
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	got, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "smaAboveEma", got[0].Entry[0].Symbol)
	assert.Equal(t, 3, got[0].Entry[0].Params["sma_window"])

	require.NoError(t, os.WriteFile(path, []byte("- name: broken\n"), 0o644))
	_, err = LoadFile(path)
	assert.Error(t, err)
}

func TestLoadCatalog(t *testing.T) {
	c, err := LoadCatalog("")
	require.NoError(t, err)
	assert.Len(t, c.All(), len(builtin))

	path := filepath.Join(t.TempDir(), "presets.yaml")
	doc := `
- name: custom
  type: each_day
  entry_conditions:
    - symbol: smaAboveEma
      params: {condition_timeframe: 5m}
  exit_conditions:
    - symbol: priceBelowEntryLow
      params: {condition_timeframe: 5m}
- name: bollinger_breakout
  description: tighter bands
  entry_conditions:
    - symbol: bollingerBreakout
      params: {condition_timeframe: 1d, num_std: 1.5}
  exit_conditions:
    - symbol: priceBelowEntryLow
      params: {condition_timeframe: 1d}
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	c, err = LoadCatalog(path)
	require.NoError(t, err)
	assert.Len(t, c.All(), len(builtin)+1)

	custom, ok := c.Lookup("custom")
	require.True(t, ok)
	assert.Equal(t, "smaAboveEma", custom.Entry[0].Symbol)

	replaced, ok := c.Lookup("bollinger_breakout")
	require.True(t, ok)
	assert.Equal(t, "tighter bands", replaced.Description)
	assert.Equal(t, 1.5, replaced.Entry[0].Params["num_std"])

	_, err = NewCatalog(custom, custom)
	assert.Error(t, err)

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
