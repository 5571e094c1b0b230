package redis

import (
	"context"
	"testing"
	"time"
)

func fixedNow() time.Time {
	return time.Date(2026, 8, 28, 10, 30, 0, 0, time.UTC)
}

func TestRateLimiter_AllowsFreshAccount(t *testing.T) {
	_, client := setupTestRedis(t)
	limiter := NewRateLimiter(client, RateLimiterConfig{})
	limiter.now = fixedNow
	ctx := context.Background()

	decision, err := limiter.Check(ctx, "acc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !decision.Allowed {
		t.Errorf("expected allowed, got denial: %s", decision.Reason)
	}
}

func TestRateLimiter_DailyCap(t *testing.T) {
	_, client := setupTestRedis(t)
	limiter := NewRateLimiter(client, RateLimiterConfig{DailyLimit: 2})
	limiter.now = fixedNow
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := limiter.RecordCall(ctx, "acc-1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	decision, err := limiter.Check(ctx, "acc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected daily cap denial")
	}
	if decision.Reason != "daily" {
		t.Errorf("expected daily reason, got %s", decision.Reason)
	}
	midnight := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	if !decision.RetryAfter.Equal(midnight) {
		t.Errorf("expected retry at midnight %v, got %v", midnight, decision.RetryAfter)
	}

	// Another account is unaffected.
	decision, _ = limiter.Check(ctx, "acc-2")
	if !decision.Allowed {
		t.Error("expected other account unaffected by daily cap")
	}
}

func TestRateLimiter_DailyCapResetsNextDay(t *testing.T) {
	_, client := setupTestRedis(t)
	limiter := NewRateLimiter(client, RateLimiterConfig{DailyLimit: 1})
	limiter.now = fixedNow
	ctx := context.Background()

	_ = limiter.RecordCall(ctx, "acc-1")
	if decision, _ := limiter.Check(ctx, "acc-1"); decision.Allowed {
		t.Fatal("expected denial at cap")
	}

	// The daily key is date-scoped, so the next day starts clean.
	limiter.now = func() time.Time { return fixedNow().Add(24 * time.Hour) }
	if decision, _ := limiter.Check(ctx, "acc-1"); !decision.Allowed {
		t.Error("expected fresh allowance next day")
	}
}

func TestRateLimiter_GlobalPerMinute(t *testing.T) {
	_, client := setupTestRedis(t)
	limiter := NewRateLimiter(client, RateLimiterConfig{GlobalPerMinute: 3})
	limiter.now = fixedNow
	ctx := context.Background()

	// Different accounts all count against the shared bucket.
	_ = limiter.RecordCall(ctx, "acc-1")
	_ = limiter.RecordCall(ctx, "acc-2")
	_ = limiter.RecordCall(ctx, "acc-3")

	decision, err := limiter.Check(ctx, "acc-4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected global cap denial")
	}
	if decision.Reason != "global" {
		t.Errorf("expected global reason, got %s", decision.Reason)
	}
	if !decision.RetryAfter.Equal(time.Date(2026, 8, 28, 10, 31, 0, 0, time.UTC)) {
		t.Errorf("expected retry at next minute, got %v", decision.RetryAfter)
	}

	// The next minute bucket is clean.
	limiter.now = func() time.Time { return fixedNow().Add(time.Minute) }
	if decision, _ := limiter.Check(ctx, "acc-4"); !decision.Allowed {
		t.Error("expected allowance in next minute bucket")
	}
}

func TestRateLimiter_Suspension(t *testing.T) {
	_, client := setupTestRedis(t)
	limiter := NewRateLimiter(client, RateLimiterConfig{})
	limiter.now = fixedNow
	ctx := context.Background()

	until := fixedNow().Add(45 * time.Minute)
	if err := limiter.Suspend(ctx, "acc-1", until); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	decision, err := limiter.Check(ctx, "acc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected suspension denial")
	}
	if decision.Reason != "suspended" {
		t.Errorf("expected suspended reason, got %s", decision.Reason)
	}
	if !decision.RetryAfter.Equal(until) {
		t.Errorf("expected retry at %v, got %v", until, decision.RetryAfter)
	}

	stored, err := limiter.SuspendedUntil(ctx, "acc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !stored.Equal(until) {
		t.Errorf("expected stored suspension %v, got %v", until, stored)
	}
}

func TestRateLimiter_SuspensionExpires(t *testing.T) {
	mr, client := setupTestRedis(t)
	limiter := NewRateLimiter(client, RateLimiterConfig{})
	ctx := context.Background()

	if err := limiter.Suspend(ctx, "acc-1", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	until, err := limiter.SuspendedUntil(ctx, "acc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !until.IsZero() {
		t.Errorf("expected suspension cleared by TTL, got %v", until)
	}
}

func TestRateLimiter_SuspendInPastIsNoop(t *testing.T) {
	_, client := setupTestRedis(t)
	limiter := NewRateLimiter(client, RateLimiterConfig{})
	ctx := context.Background()

	if err := limiter.Suspend(ctx, "acc-1", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	until, _ := limiter.SuspendedUntil(ctx, "acc-1")
	if !until.IsZero() {
		t.Errorf("expected no suspension stored, got %v", until)
	}
}
