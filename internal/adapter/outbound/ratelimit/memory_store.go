// Package ratelimit provides durable (sqlite) and in-memory implementations
// of the ratelimit.Limiter port.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/web4/governance/internal/domain/ratelimit"
)

// MemoryLimiter is an in-process sliding-window limiter backed by a
// map[key][]timestampMs. It is used as the fallback when the durable sink
// cannot initialize, and directly in tests.
type MemoryLimiter struct {
	mu     sync.Mutex
	events map[string][]int64
	now    func() int64
}

// NewMemoryLimiter creates an empty in-memory limiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		events: make(map[string][]int64),
		now:    nowMs,
	}
}

func nowMs() int64 { return time.Now().UnixMilli() }

func (m *MemoryLimiter) Durable() bool { return false }

func (m *MemoryLimiter) Check(_ context.Context, key string, maxCount int, windowMs int64) (ratelimit.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pruneLocked(key, windowMs)
	current := len(m.events[key])
	return ratelimit.Result{
		Allowed: current < maxCount,
		Current: current,
		Limit:   maxCount,
	}, nil
}

func (m *MemoryLimiter) Record(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[key] = append(m.events[key], m.now())
	return nil
}

func (m *MemoryLimiter) Prune(_ context.Context, windowMs int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for key := range m.events {
		before := len(m.events[key])
		m.pruneLocked(key, windowMs)
		deleted += before - len(m.events[key])
	}
	return deleted, nil
}

// pruneLocked removes timestamps older than or equal to now-windowMs for
// key. Must be called with m.mu held.
func (m *MemoryLimiter) pruneLocked(key string, windowMs int64) {
	cutoff := m.now() - windowMs
	events := m.events[key]
	if len(events) == 0 {
		return
	}

	kept := events[:0]
	for _, ts := range events {
		if ts > cutoff {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		delete(m.events, key)
	} else {
		m.events[key] = kept
	}
}
