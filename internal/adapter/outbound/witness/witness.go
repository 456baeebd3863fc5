// Package witness implements the policy-bundle witnessing ledger: an
// append-only JSONL record of every policy bundle load, so an operator can
// later prove which rule set was active at a given time. It is grounded on
// the same append-only file-write idiom as the audit chain, simplified
// since witness entries are never verified or chained.
package witness

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is one policy-bundle-load witness.
type Entry struct {
	ID             string    `json:"id"`
	PolicyEntityID string    `json:"policyEntityId"`
	LoadedAt       time.Time `json:"loadedAt"`
	RuleCount      int       `json:"ruleCount"`
	SourceHash     string    `json:"sourceHash"`
}

// Ledger appends Entry records to witnesses.jsonl.
type Ledger struct {
	mu   sync.Mutex
	path string
}

// NewLedger opens (creating the parent directory if necessary) the ledger
// file at path.
func NewLedger(path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create witness ledger directory: %w", err)
		}
	}
	return &Ledger{path: path}, nil
}

// Witness appends a new entry recording that policyEntityID was loaded with
// ruleCount rules, content-addressed by sourceHash.
func (l *Ledger) Witness(policyEntityID string, ruleCount int, sourceHash string) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := Entry{
		ID:             "witness:" + uuid.NewString()[:8],
		PolicyEntityID: policyEntityID,
		LoadedAt:       time.Now().UTC(),
		RuleCount:      ruleCount,
		SourceHash:     sourceHash,
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return Entry{}, fmt.Errorf("marshal witness entry: %w", err)
	}
	line = append(line, '\n')

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return Entry{}, fmt.Errorf("open witness ledger: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(line); err != nil {
		return Entry{}, fmt.Errorf("append witness entry: %w", err)
	}
	if err := f.Sync(); err != nil {
		return Entry{}, fmt.Errorf("fsync witness ledger: %w", err)
	}

	return entry, nil
}
