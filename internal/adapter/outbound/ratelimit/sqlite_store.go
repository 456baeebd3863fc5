package ratelimit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/web4/governance/internal/domain/ratelimit"
)

// SQLiteLimiter is the durable sliding-window sink: an append-only table
// (id, key, timestamp_ms) with an index on (key, timestamp_ms), as described
// in the rate limiter persistence design.
type SQLiteLimiter struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteLimiter opens (creating if necessary) a sqlite database at path
// and ensures its schema exists.
func NewSQLiteLimiter(path string, logger *slog.Logger) (*SQLiteLimiter, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create rate-limit db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open rate-limit db: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers on one handle

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS rate_limit_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			key TEXT NOT NULL,
			timestamp_ms INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_rate_limit_key_ts ON rate_limit_events(key, timestamp_ms);
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init rate-limit schema: %w", err)
	}

	return &SQLiteLimiter{db: db, logger: logger}, nil
}

func (s *SQLiteLimiter) Durable() bool { return true }

func (s *SQLiteLimiter) Close() error {
	return s.db.Close()
}

func (s *SQLiteLimiter) Check(ctx context.Context, key string, maxCount int, windowMs int64) (ratelimit.Result, error) {
	cutoff := time.Now().UnixMilli() - windowMs

	if _, err := s.db.ExecContext(ctx, `DELETE FROM rate_limit_events WHERE key = ? AND timestamp_ms <= ?`, key, cutoff); err != nil {
		return ratelimit.Result{}, fmt.Errorf("prune rate-limit events: %w", err)
	}

	var current int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rate_limit_events WHERE key = ? AND timestamp_ms > ?`, key, cutoff)
	if err := row.Scan(&current); err != nil {
		return ratelimit.Result{}, fmt.Errorf("count rate-limit events: %w", err)
	}

	return ratelimit.Result{
		Allowed: current < maxCount,
		Current: current,
		Limit:   maxCount,
	}, nil
}

func (s *SQLiteLimiter) Record(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO rate_limit_events (key, timestamp_ms) VALUES (?, ?)`, key, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("insert rate-limit event: %w", err)
	}
	return nil
}

func (s *SQLiteLimiter) Prune(ctx context.Context, windowMs int64) (int, error) {
	cutoff := time.Now().UnixMilli() - windowMs
	res, err := s.db.ExecContext(ctx, `DELETE FROM rate_limit_events WHERE timestamp_ms <= ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune rate-limit events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune rate-limit events: rows affected: %w", err)
	}
	return int(n), nil
}

// NewLimiter opens the durable sqlite sink at path, falling back to an
// in-memory limiter (with a logged warning) if the sink cannot initialize.
// This is the constructor Facade wiring should use.
func NewLimiter(path string, logger *slog.Logger) ratelimit.Limiter {
	if logger == nil {
		logger = slog.Default()
	}

	lim, err := NewSQLiteLimiter(path, logger)
	if err != nil {
		logger.Warn("rate limiter: durable sink unavailable, falling back to in-memory", "path", path, "error", err)
		return NewMemoryLimiter()
	}
	return lim
}
