package engine

// Error taxonomy surfaced to API callers

import (
	"context"
	"errors"
	"fmt"

	"github.com/nadavw1312/trading-manager-server/services/bars"
	"github.com/nadavw1312/trading-manager-server/services/conditions"
)

// ConfigurationError rejects a run before any evaluation starts.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e APIError) Error() string { return e.Code + ": " + e.Message }

const (
	CodeMissingTimeframe = "MISSING_TIMEFRAME"
	CodeComputation      = "COMPUTATION_FAILED"
	CodeInvalidParams    = "INVALID_PARAMS"
	CodeUnknownCondition = "UNKNOWN_CONDITION"
	CodeCancelled        = "CANCELLED"
	CodeTimeout          = "TIMEOUT"
	CodeExecution        = "EXECUTION_FAILED"
)

// ErrorCode classifies err for API responses.
func ErrorCode(err error) string {
	var (
		mt *bars.MissingTimeframeError
		ce *conditions.ComputationError
		cf *ConfigurationError
		pe *conditions.ParamError
	)
	switch {
	case errors.As(err, &mt):
		return CodeMissingTimeframe
	case errors.As(err, &cf), errors.As(err, &pe):
		return CodeInvalidParams
	case errors.Is(err, conditions.ErrUnknownCondition):
		return CodeUnknownCondition
	case errors.As(err, &ce):
		return CodeComputation
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, context.Canceled):
		return CodeCancelled
	}
	return CodeExecution
}

var codeMessages = map[string]string{
	CodeMissingTimeframe: "Required timeframe not available",
	CodeComputation:      "Condition evaluation failed",
	CodeInvalidParams:    "Invalid parameters provided",
	CodeUnknownCondition: "Unknown condition",
	CodeCancelled:        "Run cancelled",
	CodeTimeout:          "Operation timed out",
	CodeExecution:        "Backtest execution failed",
}

func ToAPIError(err error) APIError {
	code := ErrorCode(err)
	return APIError{Code: code, Message: codeMessages[code], Details: err.Error()}
}
