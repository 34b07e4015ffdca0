package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nadavw1312/trading-manager-server/services/conditions"
	"github.com/nadavw1312/trading-manager-server/services/engine"
	"github.com/nadavw1312/trading-manager-server/services/runner"
	"github.com/nadavw1312/trading-manager-server/strategies"
)

const version = "1.0.0"

// BacktestService serves the HTTP API on top of a Runner.
type BacktestService struct {
	runner          *runner.Runner
	registry        *conditions.Registry
	presets         *strategies.Catalog
	gatherer        prometheus.Gatherer
	backpressure    *runner.Backpressure
	defaultStrategy engine.Strategy
	logger          *zap.Logger
}

func NewBacktestService(r *runner.Runner, presets *strategies.Catalog, g prometheus.Gatherer, maxPending int, defaultStrategy engine.Strategy, logger *zap.Logger) *BacktestService {
	return &BacktestService{
		runner:          r,
		registry:        r.Registry(),
		presets:         presets,
		gatherer:        g,
		backpressure:    runner.NewBackpressure(maxPending),
		defaultStrategy: defaultStrategy,
		logger:          logger,
	}
}

// backtestRequest is a runner request that may name a preset instead of
// listing conditions.
type backtestRequest struct {
	runner.Request
	Preset string `json:"preset,omitempty"`
}

func (s *BacktestService) setupHTTPRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		api.POST("/backtest", s.handleBacktestRequest)
		api.GET("/backtest/:job_id", s.handleGetBacktestResult)
		api.GET("/conditions", s.handleListConditions)
		api.GET("/presets", s.handleListPresets)
		api.GET("/health", s.handleHealthCheck)
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
}

func statusFor(code string) int {
	switch code {
	case engine.CodeInvalidParams, engine.CodeUnknownCondition:
		return http.StatusBadRequest
	case engine.CodeMissingTimeframe, engine.CodeComputation:
		return http.StatusUnprocessableEntity
	case engine.CodeTimeout:
		return http.StatusGatewayTimeout
	case engine.CodeCancelled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *BacktestService) handleBacktestRequest(c *gin.Context) {
	var req backtestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, engine.APIError{Code: engine.CodeInvalidParams, Message: "malformed request body", Details: err.Error()})
		return
	}
	if req.Preset != "" {
		p, ok := s.presets.Lookup(req.Preset)
		if !ok {
			c.JSON(http.StatusBadRequest, engine.APIError{Code: engine.CodeInvalidParams, Message: "unknown preset", Details: req.Preset})
			return
		}
		p.Apply(&req.Request)
	}
	if req.Type == "" {
		req.Type = s.defaultStrategy
	}

	if !s.backpressure.TryAccept() {
		c.JSON(http.StatusTooManyRequests, engine.APIError{Code: "TOO_MANY_JOBS", Message: "too many pending backtest jobs"})
		return
	}
	defer s.backpressure.Release()

	report, err := s.runner.Run(c.Request.Context(), req.Request)
	if err != nil {
		apiErr := engine.ToAPIError(err)
		s.logger.Error("Backtest request failed", zap.String("code", apiErr.Code), zap.Error(err))
		c.JSON(statusFor(apiErr.Code), apiErr)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *BacktestService) handleGetBacktestResult(c *gin.Context) {
	jobID := c.Param("job_id")
	report, err := s.runner.Report(c.Request.Context(), jobID)
	if errors.Is(err, runner.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, engine.APIError{Code: "NOT_FOUND", Message: "job not found", Details: jobID})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, engine.ToAPIError(err))
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *BacktestService) handleListConditions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"conditions": s.registry.Definitions()})
}

func (s *BacktestService) handleListPresets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"presets": s.presets.All()})
}

func (s *BacktestService) handleHealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"timestamp":    time.Now().Unix(),
		"version":      version,
		"pending_jobs": s.backpressure.Len(),
	})
}
