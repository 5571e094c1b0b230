package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ledgerbridge/banksync-core/internal/core/ports/driven"
	"github.com/redis/go-redis/v9"
)

// Verify interface compliance
var _ driven.RateLimiter = (*RateLimiter)(nil)

const (
	suspendPrefix = "banksync:ratelimit:"
	dailyPrefix   = "banksync:daily:"
	globalPrefix  = "banksync:global:"
)

const (
	// DefaultDailyLimit is the per-account provider call cap per calendar
	// day. The provider enforces single-digit quotas; four leaves headroom
	// for manual syncs.
	DefaultDailyLimit = 4

	// DefaultGlobalPerMinute caps provider calls across all accounts.
	DefaultGlobalPerMinute = 100
)

// RateLimiterConfig tunes the quota gates.
type RateLimiterConfig struct {
	DailyLimit      int
	GlobalPerMinute int
}

// RateLimiter enforces three gates in order: account suspension (set from
// provider 429s), the per-account daily cap, and the global per-minute cap.
// All counters are atomic Redis increments; the provider's own 429 remains
// authoritative and feeds back through Suspend.
type RateLimiter struct {
	client          *redis.Client
	dailyLimit      int
	globalPerMinute int
	now             func() time.Time
}

// NewRateLimiter creates a Redis-backed rate limiter.
func NewRateLimiter(client *redis.Client, cfg RateLimiterConfig) *RateLimiter {
	dailyLimit := cfg.DailyLimit
	if dailyLimit <= 0 {
		dailyLimit = DefaultDailyLimit
	}
	globalPerMinute := cfg.GlobalPerMinute
	if globalPerMinute <= 0 {
		globalPerMinute = DefaultGlobalPerMinute
	}
	return &RateLimiter{
		client:          client,
		dailyLimit:      dailyLimit,
		globalPerMinute: globalPerMinute,
		now:             time.Now,
	}
}

// Check evaluates suspension, daily and global gates in order and returns
// the first denial.
func (r *RateLimiter) Check(ctx context.Context, accountID string) (driven.Decision, error) {
	now := r.now().UTC()

	// Gate 1: provider-imposed suspension
	until, err := r.SuspendedUntil(ctx, accountID)
	if err != nil {
		return driven.Decision{}, err
	}
	if until.After(now) {
		return driven.Decision{Allowed: false, RetryAfter: until, Reason: "suspended"}, nil
	}

	// Gate 2: per-account daily cap
	dailyKey := dailyPrefix + accountID + ":" + now.Format("2006-01-02")
	count, err := r.client.Get(ctx, dailyKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return driven.Decision{}, fmt.Errorf("read daily counter %s: %w", accountID, err)
	}
	if count >= int64(r.dailyLimit) {
		midnight := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
		return driven.Decision{Allowed: false, RetryAfter: midnight, Reason: "daily"}, nil
	}

	// Gate 3: global per-minute cap
	bucket := now.Unix() / 60
	globalKey := fmt.Sprintf("%s%d", globalPrefix, bucket)
	global, err := r.client.Get(ctx, globalKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return driven.Decision{}, fmt.Errorf("read global counter: %w", err)
	}
	if global >= int64(r.globalPerMinute) {
		nextMinute := time.Unix((bucket+1)*60, 0).UTC()
		return driven.Decision{Allowed: false, RetryAfter: nextMinute, Reason: "global"}, nil
	}

	return driven.Decision{Allowed: true}, nil
}

// RecordCall counts one successful provider call. INCR + EXPIRE pipelines
// only; a read-then-write here would race across processes.
func (r *RateLimiter) RecordCall(ctx context.Context, accountID string) error {
	now := r.now().UTC()
	dailyKey := dailyPrefix + accountID + ":" + now.Format("2006-01-02")
	globalKey := fmt.Sprintf("%s%d", globalPrefix, now.Unix()/60)

	pipe := r.client.Pipeline()
	pipe.Incr(ctx, dailyKey)
	pipe.Expire(ctx, dailyKey, 24*time.Hour)
	pipe.Incr(ctx, globalKey)
	pipe.Expire(ctx, globalKey, time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record call %s: %w", accountID, err)
	}
	return nil
}

// Suspend blocks the account until the given time, keyed with a TTL so the
// suspension clears itself.
func (r *RateLimiter) Suspend(ctx context.Context, accountID string, until time.Time) error {
	ttl := until.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	err := r.client.Set(ctx, suspendPrefix+accountID, until.UTC().Format(time.RFC3339), ttl).Err()
	if err != nil {
		return fmt.Errorf("suspend %s: %w", accountID, err)
	}
	return nil
}

// SuspendedUntil returns the suspension expiry, or the zero time.
func (r *RateLimiter) SuspendedUntil(ctx context.Context, accountID string) (time.Time, error) {
	val, err := r.client.Get(ctx, suspendPrefix+accountID).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read suspension %s: %w", accountID, err)
	}
	until, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse suspension %s: %w", accountID, err)
	}
	return until, nil
}
