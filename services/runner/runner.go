// Package runner executes multi-ticker backtest jobs: it resolves condition
// references, loads each ticker's bars from a Provider and runs the engine
// in a bounded worker pool.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nadavw1312/trading-manager-server/services/bars"
	"github.com/nadavw1312/trading-manager-server/services/cache"
	"github.com/nadavw1312/trading-manager-server/services/conditions"
	"github.com/nadavw1312/trading-manager-server/services/engine"
	"github.com/nadavw1312/trading-manager-server/services/metrics"
)

var ErrJobNotFound = errors.New("job not found")

// Provider loads the bars of one symbol within [from, to] for each timeframe.
type Provider interface {
	GetTimeframes(ctx context.Context, symbol string, from, to time.Time, tfs []bars.Timeframe) (bars.Dataset, error)
}

// LedgerStore persists finished ledgers, e.g. to ClickHouse.
type LedgerStore interface {
	SaveLedger(ctx context.Context, jobID, ticker, entryID, exitID string, l engine.Ledger) error
}

type Runner struct {
	registry *conditions.Registry
	provider Provider
	planner  *Planner
	cache    cache.Service
	cacheTTL time.Duration
	metrics  *metrics.Recorder
	store    LedgerStore
	log      *zap.Logger
	loc      *time.Location
	timeout  time.Duration
}

type Option func(*Runner)

func WithLogger(l *zap.Logger) Option { return func(r *Runner) { r.log = l } }

func WithCache(c cache.Service, ttl time.Duration) Option {
	return func(r *Runner) { r.cache, r.cacheTTL = c, ttl }
}

func WithMetrics(m *metrics.Recorder) Option { return func(r *Runner) { r.metrics = m } }

func WithPlanner(p *Planner) Option { return func(r *Runner) { r.planner = p } }

func WithLedgerStore(s LedgerStore) Option { return func(r *Runner) { r.store = s } }

// WithLocation sets the timezone that defines trading days.
func WithLocation(loc *time.Location) Option { return func(r *Runner) { r.loc = loc } }

// WithTimeout bounds a whole job.
func WithTimeout(d time.Duration) Option { return func(r *Runner) { r.timeout = d } }

func New(reg *conditions.Registry, provider Provider, opts ...Option) *Runner {
	r := &Runner{
		registry: reg,
		provider: provider,
		planner:  NewPlanner(10, 4),
		log:      zap.NewNop(),
		loc:      time.UTC,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cache == nil {
		r.cache = cache.NewMemoryCache()
	}
	return r
}

func (r *Runner) Registry() *conditions.Registry { return r.registry }

// Run executes req. The first failing ticker aborts the job.
func (r *Runner) Run(ctx context.Context, req Request) (*Report, error) {
	started := time.Now()
	if err := req.Normalize(); err != nil {
		return nil, err
	}
	entry, entrySyms, err := resolve(r.registry, "entry_conditions", req.EntryConditions)
	if err != nil {
		return nil, asConfigError(err)
	}
	exit, exitSyms, err := resolve(r.registry, "exit_conditions", req.ExitConditions)
	if err != nil {
		return nil, asConfigError(err)
	}
	tfs, err := conditions.RequiredTimeframes(entry, exit)
	if err != nil {
		return nil, &engine.ConfigurationError{Field: "conditions", Reason: "bad timeframe parameter", Err: err}
	}
	cfg := req.RunConfig(r.loc)
	entryID, exitID := conditions.Signature(entrySyms), conditions.Signature(exitSyms)

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	report := &Report{JobID: uuid.NewString(), CreatedAt: started.UTC()}
	log := r.log.With(zap.String("job_id", report.JobID))
	log.Info("Starting backtest job",
		zap.Strings("tickers", req.Tickers),
		zap.Strings("timeframes", timeframeNames(tfs)),
		zap.String("entry_conditions", entryID),
		zap.String("exit_conditions", exitID),
		zap.Int("workers", r.planner.MaxWorkers),
	)

	results := make([]TickerResult, len(req.Tickers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.planner.MaxWorkers)
	offset := 0
	for ci, chunk := range r.planner.PlanChunks(req.Tickers, req.From, req.To) {
		log.Debug("Scheduling chunk", zap.Int("chunk", ci), zap.Strings("tickers", chunk.Tickers))
		for j, ticker := range chunk.Tickers {
			i := offset + j
			ticker := ticker
			g.Go(func() error {
				res, err := r.runTicker(gctx, log, ticker, req, cfg, entry, exit, tfs)
				if err != nil {
					return fmt.Errorf("ticker %s: %w", ticker, err)
				}
				res.EntryConditionsID, res.ExitConditionsID = entryID, exitID
				if r.store != nil {
					if err := r.store.SaveLedger(gctx, report.JobID, ticker, entryID, exitID, res.Trades); err != nil {
						return fmt.Errorf("ticker %s: save ledger: %w", ticker, err)
					}
				}
				results[i] = *res
				return nil
			})
		}
		offset += len(chunk.Tickers)
	}
	if err := g.Wait(); err != nil {
		log.Error("Backtest job failed", zap.Error(err))
		return nil, err
	}

	report.Results = results
	report.Duration = time.Since(started)
	if err := r.cache.Set(ctx, cache.JobKey(report.JobID), report, r.cacheTTL); err != nil {
		log.Warn("Failed to store job report", zap.Error(err))
	}
	log.Info("Backtest job completed", zap.Duration("execution_time", report.Duration), zap.Int("tickers", len(results)))
	return report, nil
}

// Report returns a finished job by id.
func (r *Runner) Report(ctx context.Context, jobID string) (*Report, error) {
	var rep Report
	if err := r.cache.Get(ctx, cache.JobKey(jobID), &rep); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return nil, err
	}
	return &rep, nil
}

func (r *Runner) runTicker(ctx context.Context, log *zap.Logger, ticker string, req Request, cfg engine.RunConfig, entry, exit []conditions.Spec, tfs []bars.Timeframe) (*TickerResult, error) {
	defer r.metrics.Track()()
	started := time.Now()
	log = log.With(zap.String("ticker", ticker))

	ds, err := r.provider.GetTimeframes(ctx, ticker, req.From, req.To, tfs)
	if err != nil {
		return nil, fmt.Errorf("load bars: %w", err)
	}
	fp, err := engine.Fingerprint(cfg, entry, exit, ds)
	if err != nil {
		return nil, err
	}
	res := &TickerResult{Ticker: ticker, From: req.From, To: req.To, Fingerprint: fp}

	var trades engine.Ledger
	err = r.cache.Get(ctx, cache.ResultKey(fp), &trades)
	switch {
	case err == nil:
		res.Cached = true
		r.metrics.RecordCacheLookup(true)
		log.Debug("Result cache hit", zap.String("fingerprint", fp))
	default:
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Warn("Result cache lookup failed", zap.Error(err))
		}
		r.metrics.RecordCacheLookup(false)
		out, err := engine.Backtest(ctx, ds, entry, exit, cfg, engine.WithLogger(log))
		if err != nil {
			r.metrics.RecordRun(string(cfg.Mode), "error", time.Since(started), 0)
			return nil, err
		}
		trades = out.Trades
		if err := r.cache.Set(ctx, cache.ResultKey(fp), trades, r.cacheTTL); err != nil {
			log.Warn("Failed to cache result", zap.Error(err))
		}
	}
	r.metrics.RecordRun(string(cfg.Mode), "ok", time.Since(started), len(trades))

	res.Trades = trades
	res.Profit = trades.TotalProfit()
	res.Summary = trades.Summary()
	return res, nil
}

// asConfigError reports parameter problems as configuration errors and
// passes anything else through.
func asConfigError(err error) error {
	var pe *conditions.ParamError
	if errors.As(err, &pe) {
		return &engine.ConfigurationError{Field: pe.Condition, Reason: "invalid parameter", Err: err}
	}
	return err
}

func timeframeNames(tfs []bars.Timeframe) []string {
	out := make([]string, len(tfs))
	for i, tf := range tfs {
		out[i] = tf.String()
	}
	return out
}
