// Package ratelimit implements GitLab rate limit tracking and request
// gating. It monitors the RateLimit-Remaining and RateLimit-Reset response
// headers so that synchronization runs slow down before the instance starts
// returning 429s.
package ratelimit

import (
	"time"
)

// Redis keys for rate limit state storage.
const (
	RedisKeyRemaining      = "glsync:rate_limit:remaining"
	RedisKeyResetTimestamp = "glsync:rate_limit:reset_timestamp"
	RedisKeyLastUpdate     = "glsync:rate_limit:last_update"
)

// Thresholds for rate limit decisions.
const (
	// ThresholdCritical blocks all requests when the remaining budget falls
	// below this value, leaving headroom for other consumers of the token.
	ThresholdCritical = 10

	// ThresholdWarning applies throttling when the remaining budget falls
	// below this value.
	ThresholdWarning = 100

	// ThresholdHealthy indicates normal operation.
	ThresholdHealthy = 500
)

// State represents the current GitLab rate limit state.
// The state is shared across all client instances via Redis.
type State struct {
	// Remaining is the number of requests left in the current window.
	// Extracted from the RateLimit-Remaining header.
	Remaining int `json:"remaining"`

	// ResetAt is when the window resets, from the RateLimit-Reset header
	// (unix epoch seconds).
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was last refreshed from headers.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when Remaining >= ThresholdHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// IsStale returns true if the state data is older than the given duration.
func (s *State) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsCriticalBlock returns true if requests should be blocked.
func (s *State) NeedsCriticalBlock() bool {
	return s.Remaining < ThresholdCritical
}

// NeedsThrottling returns true if requests should be slowed down.
func (s *State) NeedsThrottling() bool {
	return s.Remaining < ThresholdWarning && !s.NeedsCriticalBlock()
}

// TimeUntilReset returns the duration until the rate limit window resets.
// Returns 0 if the reset time has already passed.
func (s *State) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth updates the IsHealthy field from the current Remaining value.
func (s *State) UpdateHealth() {
	s.IsHealthy = s.Remaining >= ThresholdHealthy
}
