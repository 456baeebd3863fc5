// Package ratelimit defines the sliding-window rate limiter port used by
// the policy engine's rateLimit match clause.
package ratelimit

import "context"

// Result is the outcome of a Check call.
type Result struct {
	// Allowed is true when current < maxCount.
	Allowed bool
	// Current is the number of events within the window, after pruning.
	Current int
	// Limit is the maxCount the check was evaluated against.
	Limit int
}

// Limiter is a per-key sliding-window counter. An event is "in window" if
// its timestamp is strictly greater than now-windowMs; equality is expired.
type Limiter interface {
	// Check lazily prunes entries older than now-windowMs for key, then
	// reports whether another event would be admitted. Check does not
	// record an event itself.
	Check(ctx context.Context, key string, maxCount int, windowMs int64) (Result, error)

	// Record unconditionally inserts one event for key at the current time.
	// It does not enforce any limit; callers call Check first to decide.
	Record(ctx context.Context, key string) error

	// Prune deletes all entries across all keys older than windowMs ago and
	// returns the number of deleted rows.
	Prune(ctx context.Context, windowMs int64) (int, error)

	// Durable reports whether this limiter is backed by a persistent sink.
	// false means the in-memory fallback is active.
	Durable() bool
}

// FormatKey builds a canonical rate-limit key, e.g.
// "ratelimit:<ruleId>:tool:<toolName>", "ratelimit:<ruleId>:category:<category>",
// or "ratelimit:<ruleId>:global".
func FormatKey(ruleID, dimension, value string) string {
	if value == "" {
		return "ratelimit:" + ruleID + ":" + dimension
	}
	return "ratelimit:" + ruleID + ":" + dimension + ":" + value
}
