package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() {
		client.Del(ctx, RedisKeyRemaining, RedisKeyResetTimestamp, RedisKeyLastUpdate)
		client.Close()
	})

	return NewTracker(client, zerolog.Nop())
}

func rateLimitHeaders(remaining int, resetAt time.Time) http.Header {
	h := http.Header{}
	h.Set("RateLimit-Remaining", strconv.Itoa(remaining))
	h.Set("RateLimit-Reset", fmt.Sprintf("%d", resetAt.Unix()))
	return h
}

func TestTracker_DefaultStateIsHealthy(t *testing.T) {
	tracker := newTestTracker(t)

	state, err := tracker.GetState(context.Background())
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if !state.IsHealthy {
		t.Error("state without stored data should default to healthy")
	}
	if state.NeedsCriticalBlock() {
		t.Error("default state should not block")
	}
}

func TestTracker_UpdateFromHeadersRoundTrip(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()
	resetAt := time.Now().Add(45 * time.Second)

	if err := tracker.UpdateFromHeaders(ctx, rateLimitHeaders(42, resetAt)); err != nil {
		t.Fatalf("UpdateFromHeaders failed: %v", err)
	}

	state, err := tracker.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if state.Remaining != 42 {
		t.Errorf("Remaining = %d, want 42", state.Remaining)
	}
	if state.ResetAt.Unix() != resetAt.Unix() {
		t.Errorf("ResetAt = %v, want %v", state.ResetAt, resetAt)
	}
	if state.IsHealthy {
		t.Error("42 remaining should not be healthy")
	}
}

func TestTracker_IgnoresResponsesWithoutHeaders(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	if err := tracker.UpdateFromHeaders(ctx, http.Header{}); err != nil {
		t.Fatalf("UpdateFromHeaders failed: %v", err)
	}

	state, err := tracker.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if !state.IsHealthy {
		t.Error("state should stay at the healthy default when no headers arrive")
	}
}

func TestTracker_BlocksOnCriticalBudget(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	if err := tracker.UpdateFromHeaders(ctx, rateLimitHeaders(ThresholdCritical-1, time.Now().Add(time.Minute))); err != nil {
		t.Fatalf("UpdateFromHeaders failed: %v", err)
	}

	allowed, err := tracker.ShouldAllowRequest(ctx)
	if err != nil {
		t.Fatalf("ShouldAllowRequest failed: %v", err)
	}
	if allowed {
		t.Error("request should be blocked below the critical threshold")
	}
}

func TestTracker_AllowsHealthyBudget(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	if err := tracker.UpdateFromHeaders(ctx, rateLimitHeaders(ThresholdHealthy, time.Now().Add(time.Minute))); err != nil {
		t.Fatalf("UpdateFromHeaders failed: %v", err)
	}

	allowed, err := tracker.ShouldAllowRequest(ctx)
	if err != nil {
		t.Fatalf("ShouldAllowRequest failed: %v", err)
	}
	if !allowed {
		t.Error("request should be allowed with a healthy budget")
	}
}
