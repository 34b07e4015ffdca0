// Package metrics exposes backtest counters and latencies to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder records run outcomes. A nil *Recorder is a no-op.
type Recorder struct {
	runs        *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	trades      prometheus.Counter
	cache       *prometheus.CounterVec
	inFlight    prometheus.Gauge
}

// New registers the backtest collectors on reg.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		runs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backtest_runs_total",
				Help: "Total number of single-ticker backtest runs",
			},
			[]string{"mode", "status"},
		),
		runDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "backtest_run_duration_seconds",
				Help:    "Duration of single-ticker backtest runs in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		trades: f.NewCounter(prometheus.CounterOpts{
			Name: "backtest_trades_total",
			Help: "Total number of trades produced",
		}),
		cache: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backtest_cache_lookups_total",
				Help: "Result cache lookups by outcome",
			},
			[]string{"result"},
		),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "backtest_runs_in_flight",
			Help: "Tickers currently being backtested",
		}),
	}
}

// RecordRun records one finished run.
func (r *Recorder) RecordRun(mode, status string, d time.Duration, trades int) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(mode, status).Inc()
	r.runDuration.WithLabelValues(mode).Observe(d.Seconds())
	r.trades.Add(float64(trades))
}

func (r *Recorder) RecordCacheLookup(hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cache.WithLabelValues(result).Inc()
}

// Track marks one run as in flight until the returned func is called.
func (r *Recorder) Track() func() {
	if r == nil {
		return func() {}
	}
	r.inFlight.Inc()
	return r.inFlight.Dec
}
