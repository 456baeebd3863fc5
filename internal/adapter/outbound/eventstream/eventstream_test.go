package eventstream

import (
	"bufio"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/web4/governance/internal/domain/event"
)

func countLines(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()
	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		n++
	}
	return n
}

func TestFileStreamFiltersBelowMinLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	s, err := NewFileStream(path, event.SeverityWarn, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s.Close() }()

	_ = s.Emit(event.Event{Type: event.TypeToolCall, Severity: event.SeverityDebug})
	_ = s.Emit(event.Event{Type: event.TypeToolCall, Severity: event.SeverityInfo})
	_ = s.Emit(event.Event{Type: event.TypePolicyViolation, Severity: event.SeverityAlert})

	if got := countLines(t, path); got != 1 {
		t.Errorf("expected only the alert-level event written, got %d lines", got)
	}
}

func TestFileStreamSubscriberReceivesEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	s, err := NewFileStream(path, event.SeverityDebug, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s.Close() }()

	var count int32
	unsubscribe := s.Subscribe(func(e event.Event) {
		atomic.AddInt32(&count, 1)
	})

	_ = s.Emit(event.Event{Type: event.TypeSessionStart, Severity: event.SeverityInfo})
	_ = s.Emit(event.Event{Type: event.TypeSessionEnd, Severity: event.SeverityInfo})

	if atomic.LoadInt32(&count) != 2 {
		t.Errorf("expected subscriber to observe 2 events, got %d", count)
	}

	unsubscribe()
	_ = s.Emit(event.Event{Type: event.TypeToolCall, Severity: event.SeverityInfo})
	if atomic.LoadInt32(&count) != 2 {
		t.Error("expected unsubscribed callback to stop receiving events")
	}
}

func TestFileStreamSubscriberPanicIsRecovered(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	s, err := NewFileStream(path, event.SeverityDebug, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s.Close() }()

	s.Subscribe(func(e event.Event) { panic("boom") })

	if err := s.Emit(event.Event{Type: event.TypeSystemError, Severity: event.SeverityError}); err != nil {
		t.Errorf("expected Emit to swallow subscriber panics, got error: %v", err)
	}
}

func TestFileStreamRotatesOnSizeThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	s, err := NewFileStream(path, event.SeverityDebug, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s.Close() }()

	s.size = maxFileSize - 10
	_ = s.Emit(event.Event{Type: event.TypeToolCall, Severity: event.SeverityInfo})

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Errorf("expected a .1 backup file after crossing the size threshold, got: %v", err)
	}
	if s.size >= maxFileSize {
		t.Errorf("expected size counter to reset after rotation, got %d", s.size)
	}
}
