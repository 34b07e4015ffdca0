package engine

// Golden parity suite: each fixture runs through both trackers and must give
// the same ledger and the expected entries.

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/nadavw1312/trading-manager-server/services/bars"
	"github.com/nadavw1312/trading-manager-server/services/conditions"
)

type ParityCase struct {
	Name      string
	Timeframe bars.Timeframe
	Start     time.Time
	Closes    []float64
	Entry     []bool
	Exits     [][]bool
	// Offset adds an exit on close moving Offset away from the entry price.
	Offset  float64
	Config  RunConfig
	Entries []int
}

var (
	morning = time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	evening = time.Date(2024, 1, 2, 20, 0, 0, 0, time.UTC)
)

func withConfig(fn func(*RunConfig)) RunConfig {
	c := DefaultRunConfig()
	fn(&c)
	return c
}

var GoldenCases = []ParityCase{
	{
		Name:      "first_daily_trade_single_day",
		Timeframe: bars.TF5m,
		Start:     morning,
		Closes:    []float64{10, 11, 12, 13, 14, 15},
		Entry:     []bool{false, true, true, false, true, false},
		Exits:     [][]bool{{false, false, false, true, false, true}},
		Config:    DefaultRunConfig(),
		Entries:   []int{1},
	},
	{
		Name:      "each_day_reentry",
		Timeframe: bars.TF5m,
		Start:     morning,
		Closes:    []float64{10, 11, 12, 13, 14, 15},
		Entry:     []bool{false, true, true, false, true, false},
		Exits:     [][]bool{{false, false, false, true, false, true}},
		Config:    withConfig(func(c *RunConfig) { c.Strategy = EachDay; c.MaxTradesPerDay = 5 }),
		Entries:   []int{1, 4},
	},
	{
		Name:      "candidates_while_open_are_ignored",
		Timeframe: bars.TF5m,
		Start:     morning,
		Closes:    []float64{10, 11, 12, 13, 14, 15},
		Entry:     []bool{true, false, true, false, true, false},
		Exits:     [][]bool{{false, false, false, false, false, true}},
		Config:    withConfig(func(c *RunConfig) { c.Strategy = EachDay; c.MaxTradesPerDay = 5 }),
		Entries:   []int{0},
	},
	{
		Name:      "exit_depends_on_entry_price",
		Timeframe: bars.TF5m,
		Start:     morning,
		Closes:    []float64{10, 11, 12, 9, 10, 13, 14},
		Entry:     []bool{true, false, true, false, false, false, false},
		Offset:    3,
		Config:    withConfig(func(c *RunConfig) { c.Strategy = EachDay; c.MaxTradesPerDay = 5 }),
		Entries:   []int{0},
	},
	{
		Name:      "open_position_dropped",
		Timeframe: bars.TF5m,
		Start:     morning,
		Closes:    []float64{10, 11, 12, 13},
		Entry:     []bool{false, true, false, false},
		Exits:     [][]bool{{false, false, false, false}},
		Config:    DefaultRunConfig(),
		Entries:   []int{},
	},
	{
		Name:      "open_position_force_closed",
		Timeframe: bars.TF5m,
		Start:     morning,
		Closes:    []float64{10, 11, 12, 13},
		Entry:     []bool{false, true, false, false},
		Exits:     [][]bool{{false, false, false, false}},
		Config:    withConfig(func(c *RunConfig) { c.EndOfData = EndOfDataForceClose }),
		Entries:   []int{1},
	},
	{
		Name:      "daily_cap_across_midnight",
		Timeframe: bars.TF1h,
		Start:     evening,
		Closes:    []float64{1, 2, 3, 4, 5, 6, 7, 8},
		Entry:     []bool{true, false, true, false, true, false, true, false},
		Exits:     [][]bool{{false, true, false, true, false, true, false, true}},
		Config:    withConfig(func(c *RunConfig) { c.Strategy = EachDay }),
		Entries:   []int{0, 4},
	},
	{
		Name:      "new_day_starts_an_edge",
		Timeframe: bars.TF1h,
		Start:     evening,
		Closes:    []float64{1, 2, 3, 4, 5, 6, 7, 8},
		Entry:     []bool{false, false, true, true, true, false, false, false},
		Exits:     [][]bool{{false, false, false, true, false, false, true, false}},
		Config:    DefaultRunConfig(),
		Entries:   []int{2, 4},
	},
	{
		Name:      "short_direction",
		Timeframe: bars.TF5m,
		Start:     morning,
		Closes:    []float64{10, 9, 8},
		Entry:     []bool{true, false, false},
		Exits:     [][]bool{{false, false, true}},
		Config:    withConfig(func(c *RunConfig) { c.Direction = Short }),
		Entries:   []int{0},
	},
	{
		Name:      "exit_all_requires_every_condition",
		Timeframe: bars.TF5m,
		Start:     morning,
		Closes:    []float64{10, 11, 12, 13, 14},
		Entry:     []bool{true, false, false, false, false},
		Exits:     [][]bool{{false, false, true, false, false}, {false, false, false, false, true}},
		Config:    DefaultRunConfig(),
		Entries:   []int{},
	},
	{
		Name:      "exit_any_takes_first_condition",
		Timeframe: bars.TF5m,
		Start:     morning,
		Closes:    []float64{10, 11, 12, 13, 14},
		Entry:     []bool{true, false, false, false, false},
		Exits:     [][]bool{{false, false, true, false, false}, {false, false, false, false, true}},
		Config:    withConfig(func(c *RunConfig) { c.ExitCombine = CombineAny }),
		Entries:   []int{0},
	},
}

// Dataset builds the single-timeframe fixture table.
func (tc ParityCase) Dataset() bars.Dataset {
	b := make([]bars.Bar, len(tc.Closes))
	for i, c := range tc.Closes {
		b[i] = bars.Bar{
			Time:   tc.Start.Add(time.Duration(i) * tc.Timeframe.Duration()),
			Open:   c,
			High:   c + 0.5,
			Low:    c - 0.5,
			Close:  c,
			Volume: 1000,
		}
	}
	return bars.Dataset{tc.Timeframe: bars.MustTable(tc.Timeframe, b)}
}

func (tc ParityCase) Specs() (entry, exit []conditions.Spec) {
	entry = []conditions.Spec{conditions.Column("fixture_entry", conditions.RoleEntry, tc.Timeframe, tc.Entry)}
	for i, col := range tc.Exits {
		exit = append(exit, conditions.Column(fmt.Sprintf("fixture_exit_%d", i), conditions.RoleExit, tc.Timeframe, col))
	}
	if tc.Offset != 0 {
		exit = append(exit, conditions.EntryOffset("fixture_offset", tc.Timeframe, tc.Offset))
	}
	return entry, exit
}

// RunParitySuite returns the names of failing golden cases.
func RunParitySuite(ctx context.Context) []string {
	var failures []string
	for _, tc := range GoldenCases {
		if err := checkParity(ctx, tc); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", tc.Name, err))
		}
	}
	return failures
}

func checkParity(ctx context.Context, tc ParityCase) error {
	ds := tc.Dataset()
	entry, exit := tc.Specs()

	vcfg, rcfg := tc.Config, tc.Config
	vcfg.Mode, rcfg.Mode = ModeVectorized, ModeReference
	vec, err := Backtest(ctx, ds, entry, exit, vcfg)
	if err != nil {
		return fmt.Errorf("vectorized: %w", err)
	}
	ref, err := Backtest(ctx, ds, entry, exit, rcfg)
	if err != nil {
		return fmt.Errorf("reference: %w", err)
	}
	if !reflect.DeepEqual(vec.Trades, ref.Trades) {
		return fmt.Errorf("ledgers differ: vectorized %d trades, reference %d", len(vec.Trades), len(ref.Trades))
	}
	got := make([]int, 0, len(vec.Trades))
	for _, t := range vec.Trades {
		got = append(got, t.EntryIndex)
	}
	if !reflect.DeepEqual(got, tc.Entries) {
		return fmt.Errorf("entries %v, want %v", got, tc.Entries)
	}
	return nil
}
