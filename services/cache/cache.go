// Package cache stores backtest results and job reports keyed by run
// fingerprint or job id. Values are JSON-encoded in every backend.
package cache

import (
	"context"
	"errors"
	"time"
)

var ErrCacheMiss = errors.New("cache: key not found")

// Service is implemented by MemoryCache and RedisCache.
type Service interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Get decodes the stored value into dest or returns ErrCacheMiss.
	Get(ctx context.Context, key string, dest any) error
	Delete(ctx context.Context, keys ...string) error
}

const (
	resultPrefix = "result:"
	jobPrefix    = "job:"
)

func ResultKey(fingerprint string) string { return resultPrefix + fingerprint }

func JobKey(id string) string { return jobPrefix + id }
