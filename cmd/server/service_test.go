package main

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nadavw1312/trading-manager-server/services/bars"
	"github.com/nadavw1312/trading-manager-server/services/conditions"
	"github.com/nadavw1312/trading-manager-server/services/engine"
	"github.com/nadavw1312/trading-manager-server/services/metrics"
	"github.com/nadavw1312/trading-manager-server/services/runner"
	"github.com/nadavw1312/trading-manager-server/strategies"
)

var start = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func newRouter(t *testing.T, maxPending int) (*gin.Engine, *BacktestService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	b := make([]bars.Bar, 576)
	for i := range b {
		c := 100 + 5*math.Sin(float64(i)/7)
		b[i] = bars.Bar{Time: start.Add(time.Duration(i) * 5 * time.Minute), Open: c, High: c + 0.4, Low: c - 0.4, Close: c, Volume: 1000}
	}
	p := runner.NewMemoryProvider()
	p.Add("AAA", bars.Dataset{bars.TF5m: bars.MustTable(bars.TF5m, b)})

	reg := prometheus.NewRegistry()
	r := runner.New(conditions.NewDefaultRegistry(), p, runner.WithMetrics(metrics.New(reg)))
	presets, err := strategies.NewCatalog(strategies.Preset{
		Name: "house_sma",
		Type: engine.EachDay,
		Entry: []runner.ConditionRef{
			{Symbol: "smaAboveEma", Params: conditions.Params{"condition_timeframe": "5m", "sma_window": 3, "ema_window": 8}},
		},
		Exit: []runner.ConditionRef{
			{Symbol: "priceBelowEntryLow", Params: conditions.Params{"condition_timeframe": "5m"}},
		},
	})
	require.NoError(t, err)
	svc := NewBacktestService(r, presets, reg, maxPending, engine.FirstDailyTrade, zap.NewNop())
	router := gin.New()
	svc.setupHTTPRoutes(router)
	return router, svc
}

func body(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func validRequest() map[string]any {
	return map[string]any{
		"tickers": []string{"AAA"},
		"from":    start,
		"to":      start.Add(48 * time.Hour),
		"entry_conditions": []map[string]any{
			{"symbol": "smaAboveEma", "params": map[string]any{"condition_timeframe": "5m", "sma_window": 3, "ema_window": 8}},
		},
		"exit_conditions": []map[string]any{
			{"symbol": "priceBelowEntryLow", "params": map[string]any{"condition_timeframe": "5m"}},
		},
	}
}

func TestBacktestAndReport(t *testing.T) {
	router, _ := newRouter(t, 2)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/backtest", body(t, validRequest())))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var rep runner.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
	require.Len(t, rep.Results, 1)
	assert.Equal(t, "AAA", rep.Results[0].Ticker)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/backtest/"+rep.JobID, nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/backtest/unknown", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBacktestErrors(t *testing.T) {
	router, _ := newRouter(t, 2)

	req := validRequest()
	req["entry_conditions"] = []map[string]any{{"symbol": "nope"}}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/backtest", body(t, req)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var apiErr engine.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	assert.Equal(t, engine.CodeUnknownCondition, apiErr.Code)

	req = validRequest()
	req["entry_conditions"] = []map[string]any{{"symbol": "smaAboveEma", "params": map[string]any{"condition_timeframe": "1h"}}}
	req["exit_conditions"] = []map[string]any{{"symbol": "priceBelowEntryLow", "params": map[string]any{"condition_timeframe": "1h"}}}
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/backtest", body(t, req)))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	assert.Equal(t, engine.CodeMissingTimeframe, apiErr.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/backtest", bytes.NewReader([]byte("{"))))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req = validRequest()
	req["preset"] = "missing"
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/backtest", body(t, req)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBacktestWithCatalogPreset(t *testing.T) {
	router, _ := newRouter(t, 2)

	req := map[string]any{
		"tickers": []string{"AAA"},
		"from":    start,
		"to":      start.Add(48 * time.Hour),
		"preset":  "house_sma",
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/backtest", body(t, req)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var rep runner.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
	require.Len(t, rep.Results, 1)
	assert.Equal(t, "AAA", rep.Results[0].Ticker)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/presets", nil))
	assert.Contains(t, w.Body.String(), "house_sma")
	assert.Contains(t, w.Body.String(), "rsi_trend_atr_target")
}

func TestBackpressureRejects(t *testing.T) {
	router, svc := newRouter(t, 1)
	require.True(t, svc.backpressure.TryAccept())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/backtest", body(t, validRequest())))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestListingsHealthAndMetrics(t *testing.T) {
	router, _ := newRouter(t, 1)

	for _, path := range []string{"/api/v1/conditions", "/api/v1/presets", "/api/v1/health"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/conditions", nil))
	assert.Contains(t, w.Body.String(), "rsiTrendEntry")

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/backtest", body(t, validRequest())))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "backtest_runs_total")
}
