package cache

import (
	"context"
	"fmt"
	"time"
)

// FailMode decides what CheckRateLimit answers when the remote store is unavailable
type FailMode string

const (
	FailOpen   FailMode = "fail_open"
	FailClosed FailMode = "fail_closed"
)

// ParseFailMode validates a configured fail mode; empty means fail_open
func ParseFailMode(s string) (FailMode, error) {
	switch FailMode(s) {
	case "", FailOpen:
		return FailOpen, nil
	case FailClosed:
		return FailClosed, nil
	}
	return "", fmt.Errorf("unknown rate limit fail mode %q", s)
}

// RateLimitResult is the outcome of one rate limit check
type RateLimitResult struct {
	Allowed   bool      `json:"allowed"`
	Count     int64     `json:"count"`
	Limit     int64     `json:"limit"`
	Remaining int64     `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
	// Degraded is set when the store could not be reached and the fail mode decided
	Degraded bool `json:"degraded,omitempty"`
}

// CheckRateLimit counts one request against key in a fixed window of the given length
func (c *Cache) CheckRateLimit(ctx context.Context, key string, limit int64, window time.Duration) RateLimitResult {
	if c.remote == nil {
		return c.degraded(key, limit, window, nil)
	}

	count, resetAt, err := c.remote.Incr(ctx, "ratelimit:"+key, window)
	if err != nil {
		return c.degraded(key, limit, window, err)
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return RateLimitResult{
		Allowed:   count <= limit,
		Count:     count,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

func (c *Cache) degraded(key string, limit int64, window time.Duration, err error) RateLimitResult {
	entry := c.log.WithField("key", key).WithField("fail_mode", string(c.failMode))
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Warn("Rate limit store unavailable")

	result := RateLimitResult{
		Limit:    limit,
		ResetAt:  c.now().Add(window),
		Degraded: true,
	}
	if c.failMode == FailClosed {
		return result
	}
	result.Allowed = true
	result.Remaining = limit
	return result
}
