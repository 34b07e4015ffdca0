package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/nadavw1312/trading-manager-server/services/arrowpipeline"
	"github.com/nadavw1312/trading-manager-server/services/bars"
	"github.com/nadavw1312/trading-manager-server/services/clickhouse"
	"github.com/nadavw1312/trading-manager-server/services/conditions"
	"github.com/nadavw1312/trading-manager-server/services/config"
	"github.com/nadavw1312/trading-manager-server/services/csvdata"
	"github.com/nadavw1312/trading-manager-server/services/engine"
	"github.com/nadavw1312/trading-manager-server/services/runner"
	"github.com/nadavw1312/trading-manager-server/strategies"
)

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "run a backtest request over one or more tickers",
	ArgsUsage: "<ticker> [ticker...]",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "request", Usage: "YAML or JSON request file; tickers and flags below override it"},
		&cli.StringFlag{Name: "preset", Usage: "named condition preset, see 'conditions --presets'"},
		&cli.StringFlag{Name: "from", Usage: "start time (RFC3339, date or epoch)"},
		&cli.StringFlag{Name: "to", Usage: "end time (RFC3339, date or epoch)"},
		&cli.StringFlag{Name: "type", Usage: "first_daily_trade or each_day"},
		&cli.IntFlag{Name: "max-trades-per-day", Usage: "daily trade cap"},
		&cli.BoolFlag{Name: "force-close", Usage: "close positions still open at the last bar"},
		&cli.StringFlag{Name: "mode", Usage: "vectorized or reference"},
		&cli.StringFlag{Name: "out-dir", Usage: "write one ledger CSV per ticker into this directory"},
		&cli.StringFlag{Name: "arrow-out", Usage: "write one Arrow IPC ledger per ticker into this directory"},
	},
	Action: runBacktest,
}

func readRequest(path string) (runner.Request, error) {
	var req runner.Request
	if path == "" {
		return req, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return req, fmt.Errorf("read request: %w", err)
	}
	// yaml is a superset of json
	if err := yaml.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("parse request: %w", err)
	}
	return req, nil
}

func buildRequest(c *cli.Context, presets *strategies.Catalog) (runner.Request, error) {
	req, err := readRequest(c.String("request"))
	if err != nil {
		return req, err
	}
	if name := c.String("preset"); name != "" {
		p, ok := presets.Lookup(name)
		if !ok {
			return req, fmt.Errorf("unknown preset %q", name)
		}
		p.Apply(&req)
	}
	if c.Args().Present() {
		req.Tickers = c.Args().Slice()
	}
	for _, tf := range []struct {
		flag string
		dst  *time.Time
	}{{"from", &req.From}, {"to", &req.To}} {
		if v := c.String(tf.flag); v != "" {
			t, err := csvdata.ParseTime(v)
			if err != nil {
				return req, fmt.Errorf("--%s: %w", tf.flag, err)
			}
			*tf.dst = t
		}
	}
	if v := c.String("type"); v != "" {
		req.Type = engine.Strategy(v)
	}
	if c.IsSet("max-trades-per-day") {
		req.MaxTradesPerDay = c.Int("max-trades-per-day")
	}
	if c.Bool("force-close") {
		req.ForceClose = true
	}
	if v := c.String("mode"); v != "" {
		req.Mode = engine.Mode(v)
	}
	return req, nil
}

func runBacktest(c *cli.Context) error {
	a, err := setup(c)
	if err != nil {
		return err
	}
	defer teardown(a)
	req, err := buildRequest(c, a.Presets)
	if err != nil {
		return err
	}
	if req.Type == "" {
		req.Type = engine.Strategy(a.Config.Engine.DefaultStrategy)
	}
	if req.Mode == "" {
		req.Mode = engine.Mode(a.Config.Engine.Mode)
	}

	report, err := a.Runner.Run(c.Context, req)
	if err != nil {
		return cli.Exit(fmt.Sprintf("%s: %v", engine.ErrorCode(err), err), 1)
	}

	if dir := c.String("out-dir"); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		for _, res := range report.Results {
			path := filepath.Join(dir, fmt.Sprintf("%s_%s_%s.csv", res.Ticker, res.EntryConditionsID, res.ExitConditionsID))
			if err := csvdata.ExportLedger(path, res.Ticker, res.Trades); err != nil {
				return err
			}
			a.Logger.Info("Ledger written", zap.String("ticker", res.Ticker), zap.String("path", path))
		}
	}
	if dir := c.String("arrow-out"); dir != "" {
		fp := arrowpipeline.NewFileProvider(dir, arrowpipeline.NewPipeline(arrowpipeline.Config{}, a.Logger))
		for _, res := range report.Results {
			path, err := fp.SaveLedger(res.Ticker, res.EntryConditionsID, res.ExitConditionsID, res.Trades)
			if err != nil {
				return err
			}
			a.Logger.Info("Ledger written", zap.String("ticker", res.Ticker), zap.String("path", path))
		}
	}
	return jsonOutput(report)
}

var ledgerCommand = &cli.Command{
	Name:      "ledger",
	Usage:     "print an Arrow ledger written by 'run --arrow-out' with its summary",
	ArgsUsage: "<file.arrow>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.Exit("exactly one ledger file is required", 1)
		}
		ticker, l, err := arrowpipeline.LoadLedger(arrowpipeline.NewPipeline(arrowpipeline.Config{}, nil), c.Args().First())
		if err != nil {
			return err
		}
		return jsonOutput(ledgerView{Ticker: ticker, Summary: l.Summary(), Trades: l})
	},
}

type ledgerView struct {
	Ticker  string         `json:"ticker"`
	Summary engine.Summary `json:"summary"`
	Trades  engine.Ledger  `json:"trades"`
}

var parityCommand = &cli.Command{
	Name:  "parity",
	Usage: "check that vectorized and reference tracking agree on the golden cases",
	Action: func(c *cli.Context) error {
		failures := engine.RunParitySuite(c.Context)
		if len(failures) > 0 {
			for _, f := range failures {
				fmt.Println("FAIL", f)
			}
			return cli.Exit(fmt.Sprintf("%d of %d parity cases failed", len(failures), len(engine.GoldenCases)), 1)
		}
		fmt.Printf("all %d parity cases passed\n", len(engine.GoldenCases))
		return nil
	},
}

var conditionsCommand = &cli.Command{
	Name:  "conditions",
	Usage: "list registered conditions",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "json", Usage: "print full definitions as JSON"},
		&cli.BoolFlag{Name: "presets", Usage: "list named presets instead"},
	},
	Action: func(c *cli.Context) error {
		if c.Bool("presets") {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			presets, err := strategies.LoadCatalog(cfg.Data.PresetsFile)
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return jsonOutput(presets.All())
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tTYPE\tENTRY\tEXIT")
			for _, p := range presets.All() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Name, p.Type, refSymbols(p.Entry), refSymbols(p.Exit))
			}
			return w.Flush()
		}
		defs := conditions.NewDefaultRegistry().Definitions()
		if c.Bool("json") {
			return jsonOutput(defs)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SYMBOL\tROLE\tCATEGORY\tLOGIC")
		for _, d := range defs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.Symbol, d.Role, d.Category, d.Logic)
		}
		return w.Flush()
	},
}

func refSymbols(refs []runner.ConditionRef) string {
	s := make([]string, len(refs))
	for i, r := range refs {
		s[i] = r.Symbol
	}
	return strings.Join(s, "+")
}

var exportCommand = &cli.Command{
	Name:      "export",
	Usage:     "convert CSV bar files into Arrow IPC files",
	ArgsUsage: "<symbol> [symbol...]",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{Name: "timeframe", Aliases: []string{"tf"}, Value: cli.NewStringSlice("5m"), Usage: "timeframes to export"},
		&cli.IntFlag{Name: "batch-size", Value: 65536, Usage: "rows per Arrow record batch"},
	},
	Action: func(c *cli.Context) error {
		if !c.Args().Present() {
			return cli.Exit("at least one symbol is required", 1)
		}
		a, err := setup(c)
		if err != nil {
			return err
		}
		defer teardown(a)

		tfs, err := parseTimeframes(c.StringSlice("timeframe"))
		if err != nil {
			return err
		}
		src := csvdata.NewDirProvider(a.Config.Data.CSVDir, a.Config.Data.Resample, a.Logger)
		dst := arrowpipeline.NewFileProvider(a.Config.Data.ArrowDir, arrowpipeline.NewPipeline(arrowpipeline.Config{BatchSize: c.Int("batch-size")}, a.Logger))
		n, err := exportTables(c.Context, src, dst, c.Args().Slice(), tfs)
		if err != nil {
			return err
		}
		a.Logger.Info("Exported", zap.String("dir", dst.Dir), zap.Int("tables", n))
		return nil
	},
}

// exportTables loads each symbol's tables while dst writes the ones already
// loaded.
func exportTables(ctx context.Context, src runner.Provider, dst *arrowpipeline.FileProvider, symbols []string, tfs []bars.Timeframe) (int, error) {
	g, ctx := errgroup.WithContext(ctx)
	tables := make(chan arrowpipeline.Tables)
	g.Go(func() error {
		defer close(tables)
		for _, symbol := range symbols {
			ds, err := src.GetTimeframes(ctx, symbol, time.Time{}, time.Time{}, tfs)
			if err != nil {
				return fmt.Errorf("%s: %w", symbol, err)
			}
			for _, tf := range tfs {
				select {
				case tables <- arrowpipeline.Tables{Symbol: symbol, Table: ds[tf]}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
		return nil
	})
	var n int
	g.Go(func() error {
		var err error
		n, err = dst.SaveAll(ctx, tables)
		return err
	})
	err := g.Wait()
	return n, err
}

var ingestCommand = &cli.Command{
	Name:      "ingest",
	Usage:     "load CSV bar files into the ClickHouse candle table",
	ArgsUsage: "<symbol> [symbol...]",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{Name: "timeframe", Aliases: []string{"tf"}, Value: cli.NewStringSlice("5m"), Usage: "timeframes to ingest"},
	},
	Action: func(c *cli.Context) error {
		if !c.Args().Present() {
			return cli.Exit("at least one symbol is required", 1)
		}
		a, err := setup(c)
		if err != nil {
			return err
		}
		defer teardown(a)

		ch, ok := a.Provider.(*clickhouse.Client)
		if !ok {
			return errors.New("ingest needs data.source: clickhouse")
		}
		tfs, err := parseTimeframes(c.StringSlice("timeframe"))
		if err != nil {
			return err
		}
		src := csvdata.NewDirProvider(a.Config.Data.CSVDir, false, a.Logger)
		for _, symbol := range c.Args().Slice() {
			ds, err := src.GetTimeframes(c.Context, symbol, time.Time{}, time.Time{}, tfs)
			if err != nil {
				return fmt.Errorf("%s: %w", symbol, err)
			}
			for _, tf := range tfs {
				if err := ch.InsertBars(c.Context, symbol, ds[tf]); err != nil {
					return fmt.Errorf("%s %s: %w", symbol, tf, err)
				}
				a.Logger.Info("Ingested", zap.String("symbol", symbol), zap.String("timeframe", tf.String()), zap.Int("rows", ds[tf].Len()))
			}
		}
		return nil
	},
}

func parseTimeframes(in []string) ([]bars.Timeframe, error) {
	out := make([]bars.Timeframe, 0, len(in))
	for _, s := range in {
		tf, err := bars.ParseTimeframe(s)
		if err != nil {
			return nil, err
		}
		out = append(out, tf)
	}
	return out, nil
}
