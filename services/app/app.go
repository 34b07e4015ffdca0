// Package app assembles the runner and its backing services from a loaded
// configuration. Both binaries start from here.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/nadavw1312/trading-manager-server/services/arrowpipeline"
	"github.com/nadavw1312/trading-manager-server/services/cache"
	"github.com/nadavw1312/trading-manager-server/services/clickhouse"
	"github.com/nadavw1312/trading-manager-server/services/conditions"
	"github.com/nadavw1312/trading-manager-server/services/config"
	"github.com/nadavw1312/trading-manager-server/services/csvdata"
	"github.com/nadavw1312/trading-manager-server/services/metrics"
	"github.com/nadavw1312/trading-manager-server/services/runner"
	"github.com/nadavw1312/trading-manager-server/strategies"
)

type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Registry   *conditions.Registry
	Prometheus *prometheus.Registry
	Metrics    *metrics.Recorder
	Provider   runner.Provider
	Runner     *runner.Runner
	Presets    *strategies.Catalog

	closers []func() error
}

// New wires the configured data source, cache and optional ClickHouse
// ledger store into a Runner.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		Config:     cfg,
		Logger:     logger,
		Registry:   conditions.NewDefaultRegistry(),
		Prometheus: prometheus.NewRegistry(),
	}
	a.Prometheus.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Prometheus)

	presets, err := strategies.LoadCatalog(cfg.Data.PresetsFile)
	if err != nil {
		return nil, err
	}
	a.Presets = presets

	var ch *clickhouse.Client
	if cfg.ClickHouse.Enabled || cfg.Data.Source == "clickhouse" {
		c, err := clickhouse.NewClient(ctx,
			clickhouse.WithAddr(cfg.ClickHouse.Addr),
			clickhouse.WithAuth(cfg.ClickHouse.User, cfg.ClickHouse.Password),
			clickhouse.WithTables(cfg.ClickHouse.Database, cfg.ClickHouse.Table, cfg.ClickHouse.TradesTable),
			clickhouse.WithDialTimeout(cfg.ClickHouse.DialTimeout),
			clickhouse.WithLogger(logger.Named("clickhouse")),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create ClickHouse client: %w", err)
		}
		a.closers = append(a.closers, c.Close)
		if err := c.EnsureSchema(ctx); err != nil {
			_ = a.Close()
			return nil, err
		}
		ch = c
	}

	switch cfg.Data.Source {
	case "clickhouse":
		a.Provider = ch
	case "arrow":
		a.Provider = arrowpipeline.NewFileProvider(cfg.Data.ArrowDir, arrowpipeline.NewPipeline(arrowpipeline.Config{}, logger.Named("arrow")))
	default:
		a.Provider = csvdata.NewDirProvider(cfg.Data.CSVDir, cfg.Data.Resample, logger.Named("csv"))
	}

	store, err := a.newCache(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	opts := []runner.Option{
		runner.WithLogger(logger.Named("runner")),
		runner.WithCache(store, cfg.Cache.TTL),
		runner.WithMetrics(a.Metrics),
		runner.WithPlanner(runner.NewPlanner(cfg.Engine.MaxChunkSize, cfg.Engine.MaxWorkers)),
		runner.WithLocation(cfg.TimeLocation()),
		runner.WithTimeout(cfg.Engine.Timeout),
	}
	if ch != nil && cfg.ClickHouse.Enabled {
		opts = append(opts, runner.WithLedgerStore(ch))
	}
	a.Runner = runner.New(a.Registry, a.Provider, opts...)

	logger.Info("Backtest services ready",
		zap.String("data_source", cfg.Data.Source),
		zap.String("cache", cfg.Cache.Backend),
		zap.Bool("ledger_store", ch != nil && cfg.ClickHouse.Enabled),
		zap.Int("presets", len(presets.All())),
	)
	return a, nil
}

func (a *App) newCache(ctx context.Context) (cache.Service, error) {
	c := a.Config.Cache
	if c.Backend == "redis" {
		rc, err := cache.NewRedisCache(ctx,
			cache.WithRedisAddr(c.RedisAddr),
			cache.WithRedisAuth(c.Password, c.RedisDB),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis cache: %w", err)
		}
		a.closers = append(a.closers, rc.Close)
		return rc, nil
	}
	return cache.NewMemoryCache(cache.WithMaxSize(c.MaxSize), cache.WithDefaultTTL(c.TTL)), nil
}

// Close releases connections in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
