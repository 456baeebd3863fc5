// Package session persists SessionState as one JSON file per session,
// overwritten atomically on every update and guarded by flock for
// cross-process safety, adapted from the governance host's state-file
// adapter.
package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/web4/governance/internal/domain/session"
	"github.com/web4/governance/internal/domain/signer"
)

// FileStore manages the sessions/<sessionId>.json files under a root
// directory. Concurrent access within one process is guarded by mu;
// concurrent processes writing the same sessionId are an unsupported
// configuration.
type FileStore struct {
	dir    string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewFileStore creates a FileStore rooted at dir (typically
// <storageRoot>/sessions).
func NewFileStore(dir string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{dir: dir, logger: logger}
}

func (s *FileStore) path(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".json")
}

// Exists reports whether a session file is already on disk.
func (s *FileStore) Exists(sessionID string) bool {
	_, err := os.Stat(s.path(sessionID))
	return err == nil
}

// Load reads sessionId's state file, creating a fresh state with a new
// signing keypair if it does not yet exist.
func (s *FileStore) Load(sessionID string) (*session.State, error) {
	path := s.path(sessionID)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s.newState(sessionID)
		}
		return nil, fmt.Errorf("read session file: %w", err)
	}

	if runtime.GOOS != "windows" {
		if info, statErr := os.Stat(path); statErr == nil {
			if mode := info.Mode().Perm(); mode&0077 != 0 {
				s.logger.Warn("session file has too-open permissions, should be 0600",
					"path", path, "current_mode", fmt.Sprintf("%04o", mode))
			}
		}
	}

	var st session.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse session file: %w", err)
	}
	return &st, nil
}

func (s *FileStore) newState(sessionID string) (*session.State, error) {
	kp, err := signer.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate session signing key: %w", err)
	}
	now := time.Now().UTC()
	return &session.State{
		SessionID:     sessionID,
		StartedAt:     now,
		PublicKeyHex:  kp.PublicKeyHex(),
		PrivateKeyHex: kp.PrivateKeyHex(),
		SigningKeyID:  kp.KeyID(),
		UpdatedAt:     now,
	}, nil
}

// Save writes state to disk atomically: marshal, write to a ".tmp" sibling,
// fsync, rename over the target, then enforce 0600 permissions.
func (s *FileStore) Save(state *session.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}

	state.UpdatedAt = time.Now().UTC()
	path := s.path(state.SessionID)

	lockPath := path + ".lock"
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open session lock file: %w", err)
	}
	defer func() { _ = lockFile.Close() }()

	if err := flockLock(lockFile.Fd()); err != nil {
		return fmt.Errorf("acquire session file lock: %w", err)
	}
	defer flockUnlock(lockFile.Fd()) //nolint:errcheck

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}
	data = append(data, '\n')

	if err := writeAtomic(path, data); err != nil {
		return err
	}

	if err := os.Chmod(path, 0600); err != nil {
		s.logger.Warn("failed to set permissions on session file", "error", err)
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := f.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp to session file: %w", err)
	}
	return nil
}
