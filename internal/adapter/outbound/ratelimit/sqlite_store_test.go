package ratelimit

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestSQLiteLimiterBoundary(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rate-limits.db")
	lim, err := NewSQLiteLimiter(path, nil)
	if err != nil {
		t.Fatalf("NewSQLiteLimiter: %v", err)
	}
	defer lim.Close()

	key := "ratelimit:r1:tool:Bash"
	const maxCount = 3
	const windowMs = 60_000

	for i := 0; i < maxCount; i++ {
		res, err := lim.Check(ctx, key, maxCount, windowMs)
		if err != nil {
			t.Fatalf("Check %d: %v", i, err)
		}
		if !res.Allowed {
			t.Fatalf("event %d: expected allowed, got %+v", i, res)
		}
		if err := lim.Record(ctx, key); err != nil {
			t.Fatalf("Record %d: %v", i, err)
		}
	}

	res, err := lim.Check(ctx, key, maxCount, windowMs)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Allowed {
		t.Fatalf("expected the %dth event to be denied, got %+v", maxCount+1, res)
	}
}

func TestSQLiteLimiterPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rate-limits.db")

	lim, err := NewSQLiteLimiter(path, nil)
	if err != nil {
		t.Fatalf("NewSQLiteLimiter: %v", err)
	}
	if err := lim.Record(ctx, "k"); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := lim.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewSQLiteLimiter(path, nil)
	if err != nil {
		t.Fatalf("reopen NewSQLiteLimiter: %v", err)
	}
	defer reopened.Close()

	res, err := reopened.Check(ctx, "k", 1, 60_000)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Current != 1 {
		t.Errorf("expected the recorded event to survive reopen, got current=%d", res.Current)
	}
}

func TestSQLiteLimiterPrune(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rate-limits.db")
	lim, err := NewSQLiteLimiter(path, nil)
	if err != nil {
		t.Fatalf("NewSQLiteLimiter: %v", err)
	}
	defer lim.Close()

	if err := lim.Record(ctx, "stale"); err != nil {
		t.Fatalf("Record: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	n, err := lim.Prune(ctx, 1)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 1 {
		t.Errorf("expected to prune 1 stale event, pruned %d", n)
	}
}

func TestSQLiteLimiterDurableFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rate-limits.db")
	lim, err := NewSQLiteLimiter(path, nil)
	if err != nil {
		t.Fatalf("NewSQLiteLimiter: %v", err)
	}
	defer lim.Close()

	if !lim.Durable() {
		t.Error("sqlite limiter must report Durable() == true")
	}
}

func TestNewLimiterFallsBackToMemoryOnUnwritablePath(t *testing.T) {
	lim := NewLimiter(string([]byte{0}), nil)
	if lim == nil {
		t.Fatal("expected a non-nil fallback limiter")
	}
	if lim.Durable() {
		t.Error("expected the fallback limiter to be the in-memory, non-durable one")
	}
}
