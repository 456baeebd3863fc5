// Package eventstream implements the governance event stream: a JSONL
// side-channel with severity filtering, size-based rotation, and
// best-effort delivery, adapted from the audit file store's size-rotation
// idiom.
package eventstream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/web4/governance/internal/domain/event"
)

// maxFileSize is the rotation threshold: 100 MiB.
const maxFileSize = 100 * 1024 * 1024

// FileStream is a best-effort JSONL event emitter. All failures (write,
// rotation, or subscriber panics) are logged and swallowed: the event
// stream is a side-channel and must never block or fail a tool call.
type FileStream struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	size     int64
	minLevel event.Severity
	logger   *slog.Logger

	subMu sync.RWMutex
	subs  map[int]func(event.Event)
	nextID int
}

// NewFileStream opens (creating if necessary) the event log at path.
// minLevel filters out events below that severity before they are written
// or dispatched to subscribers.
func NewFileStream(path string, minLevel event.Severity, logger *slog.Logger) (*FileStream, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create event stream directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("open event stream file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat event stream file: %w", err)
	}

	return &FileStream{
		path:     path,
		file:     f,
		size:     info.Size(),
		minLevel: minLevel,
		logger:   logger,
		subs:     make(map[int]func(event.Event)),
	}, nil
}

// Emit filters e by severity, stamps its timestamp, writes it as a JSONL
// line (rotating first if this line would take the file past the
// threshold), and
// dispatches it to subscribers. Any failure is logged, not returned, since
// callers must not let event-stream trouble block a tool call.
func (s *FileStream) Emit(e event.Event) error {
	if !e.Severity.AtLeast(s.minLevel) {
		return nil
	}
	e.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)

	line, err := json.Marshal(e)
	if err != nil {
		s.logger.Warn("event stream: failed to marshal event", "type", e.Type, "error", err)
		return nil
	}
	line = append(line, '\n')

	s.mu.Lock()
	if s.size+int64(len(line)) > maxFileSize {
		s.rotateLocked()
	}
	if s.file != nil {
		if n, err := s.file.Write(line); err != nil {
			s.logger.Warn("event stream: write failed", "error", err)
		} else {
			s.size += int64(n)
		}
	}
	s.mu.Unlock()

	s.dispatch(e)
	return nil
}

// rotateLocked renames the current file to path+".1" (replacing any prior
// backup) and opens a fresh file. Must be called with s.mu held. Rotation
// failures are logged and the stream keeps appending to the existing file:
// losing a rotation is preferable to blocking or dropping events.
func (s *FileStream) rotateLocked() {
	if s.file == nil {
		return
	}
	_ = s.file.Sync()
	_ = s.file.Close()

	backupPath := s.path + ".1"
	if err := os.Rename(s.path, backupPath); err != nil {
		s.logger.Warn("event stream: rotation rename failed, continuing on current file", "error", err)
		f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			s.logger.Warn("event stream: failed to reopen file after failed rotation", "error", err)
			s.file = nil
			return
		}
		s.file = f
		return
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		s.logger.Warn("event stream: failed to open file after rotation", "error", err)
		s.file = nil
		return
	}
	s.file = f
	s.size = 0
}

// Subscribe registers fn to be called for every emitted event that passes
// the severity filter. The returned func unregisters it. Panics inside fn
// are recovered and logged so one bad subscriber cannot take down emission.
func (s *FileStream) Subscribe(fn func(event.Event)) func() {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *FileStream) dispatch(e event.Event) {
	s.subMu.RLock()
	fns := make([]func(event.Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.RUnlock()

	for _, fn := range fns {
		s.safeCall(fn, e)
	}
}

func (s *FileStream) safeCall(fn func(event.Event), e event.Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("event stream: subscriber panicked, recovered", "panic", r)
		}
	}()
	fn(e)
}

// Close syncs and closes the underlying file.
func (s *FileStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	_ = s.file.Sync()
	err := s.file.Close()
	s.file = nil
	return err
}

var _ event.Stream = (*FileStream)(nil)
