package ratelimit

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/redis/go-redis/v9"
)

//go:embed rate_limit.lua
var rateLimitScript string

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Debug(msg string, keysAndValues ...any)
}

// RateLimitResult contains the result of a rate limit check
type RateLimitResult struct {
	Allowed           bool
	CurrentCount      int64
	Limit             int64
	RetryAfterSeconds int64 // 0 when allowed
}

// RateLimiter provides submission rate limiting using Redis + Lua.
// The Lua script keeps increment and expiry atomic under concurrency.
type RateLimiter struct {
	redis  *redis.Client
	script *redis.Script
	logger Logger
}

// NewRateLimiter creates a new rate limiter with the embedded Lua script
func NewRateLimiter(redisClient *redis.Client, logger Logger) *RateLimiter {
	return &RateLimiter{
		redis:  redisClient,
		script: redis.NewScript(rateLimitScript),
		logger: logger,
	}
}

// CheckGlobalLimit checks the service-wide submission limit
func (r *RateLimiter) CheckGlobalLimit(ctx context.Context) (*RateLimitResult, error) {
	return r.checkLimit(ctx, "conductor:ratelimit:global",
		DefaultGlobalConfig.Limit, DefaultGlobalConfig.WindowSeconds)
}

// CheckWorkflowLimit checks a per-workflow submission limit
func (r *RateLimiter) CheckWorkflowLimit(ctx context.Context, workflowID string, limit int64, windowSec int) (*RateLimitResult, error) {
	key := fmt.Sprintf("conductor:ratelimit:workflow:%s", workflowID)
	return r.checkLimit(ctx, key, limit, windowSec)
}

// CheckTieredLimit checks a workflow's submission limit for its cost tier.
// Tiers get separate counters so light workflows are never starved by
// heavy ones.
func (r *RateLimiter) CheckTieredLimit(ctx context.Context, workflowID string, tier WorkflowTier) (*RateLimitResult, error) {
	key := fmt.Sprintf("conductor:ratelimit:workflow:%s:tier:%s", workflowID, tier)
	return r.checkLimit(ctx, key, GetLimitForTier(tier), GetWindowForTier(tier))
}

// checkLimit executes the rate limit Lua script
func (r *RateLimiter) checkLimit(ctx context.Context, key string, limit int64, windowSec int) (*RateLimitResult, error) {
	result, err := r.script.Run(ctx, r.redis, []string{key}, limit, windowSec).Result()
	if err != nil {
		r.logger.Error("rate limit check failed", "key", key, "error", err)
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	// Result array: {allowed, current_count, limit, retry_after}
	resultArray, ok := result.([]any)
	if !ok || len(resultArray) != 4 {
		return nil, fmt.Errorf("unexpected script result format")
	}

	out := &RateLimitResult{
		Allowed:           resultArray[0].(int64) == 1,
		CurrentCount:      resultArray[1].(int64),
		Limit:             resultArray[2].(int64),
		RetryAfterSeconds: resultArray[3].(int64),
	}

	if !out.Allowed {
		r.logger.Warn("rate limit exceeded",
			"key", key,
			"current", out.CurrentCount,
			"limit", out.Limit,
			"retry_after", out.RetryAfterSeconds)
	}
	return out, nil
}

// GetCurrentCount returns the current count without incrementing
func (r *RateLimiter) GetCurrentCount(ctx context.Context, key string) (int64, error) {
	count, err := r.redis.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return count, err
}

// ResetLimit clears a counter (testing/admin)
func (r *RateLimiter) ResetLimit(ctx context.Context, key string) error {
	return r.redis.Del(ctx, key).Err()
}
