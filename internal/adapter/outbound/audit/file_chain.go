// Package audit implements a per-session, append-only, hash-linked and
// Ed25519-signed audit log: one JSONL file per session, never rotated or
// pruned, plus a ring-buffer cache of recently appended records for fast
// lastN queries, adapted from the governance host's audit file store.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/web4/governance/internal/domain/audit"
	"github.com/web4/governance/internal/domain/matcher"
	"github.com/web4/governance/internal/domain/signer"
)

const defaultCacheSize = 1000

// FileChain is one session's hash-linked, append-only audit log.
type FileChain struct {
	path   string
	mu     sync.Mutex
	file   *os.File
	prev   string
	count  int
	cache  *recordCache
	key    *signer.KeyPair
	logger *slog.Logger
}

// NewFileChain opens (creating if necessary) the session's log file at
// path, recomputing prevHash from the last line on disk, or "genesis" for
// an empty/missing file. key, if non-nil, signs every appended record.
func NewFileChain(path string, key *signer.KeyPair, logger *slog.Logger) (*FileChain, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create audit log directory: %w", err)
		}
	}

	fc := &FileChain{
		path:   path,
		prev:   audit.Genesis,
		cache:  newRecordCache(defaultCacheSize),
		key:    key,
		logger: logger,
	}

	if err := fc.bootstrap(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("open audit log for append: %w", err)
	}
	fc.file = f
	return fc, nil
}

// bootstrap reads any existing log to recompute prevHash, recordCount, and
// to prime the recent-records cache.
func (fc *FileChain) bootstrap() error {
	f, err := os.Open(fc.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open audit log for read: %w", err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 256*1024), 4*1024*1024)

	var lastLine []byte
	var recent []audit.Record
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		lastLine = append([]byte(nil), line...)
		fc.count++

		var rec audit.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			fc.logger.Warn("audit log: skipping malformed line on bootstrap", "path", fc.path, "error", err)
			continue
		}
		recent = append(recent, rec)
		if len(recent) > defaultCacheSize {
			recent = recent[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan audit log: %w", err)
	}

	for _, rec := range recent {
		fc.cache.Add(rec)
	}
	if lastLine != nil {
		fc.prev = audit.ShortHash(lastLine)
	}
	return nil
}

// Close syncs and releases the underlying file handle.
func (fc *FileChain) Close() error {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.file == nil {
		return nil
	}
	_ = fc.file.Sync()
	err := fc.file.Close()
	fc.file = nil
	return err
}

// Record appends one record: assembles it with the current prevHash, signs
// it if a key is configured, writes it as a single JSONL line with an
// fsync, and advances the chain state for the next call.
func (fc *FileChain) Record(r6ID, sessionID string, actionIndex int64, tool, category, target string, targets []string, result audit.Result) (audit.Record, error) {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	rec := audit.Record{
		RecordID:    audit.RecordIDFromR6(r6ID),
		R6RequestID: r6ID,
		Timestamp:   time.Now().UTC(),
		Tool:        tool,
		Category:    category,
		Target:      target,
		Targets:     targets,
		Result:      result,
		Provenance: audit.Provenance{
			SessionID:      sessionID,
			ActionIndex:    actionIndex,
			PrevRecordHash: fc.prev,
		},
	}

	if fc.key != nil {
		unsigned, err := json.Marshal(rec)
		if err != nil {
			return audit.Record{}, fmt.Errorf("marshal record for signing: %w", err)
		}
		rec.Signature = fc.key.Sign(unsigned)
		rec.SigningKeyID = fc.key.KeyID()
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return audit.Record{}, fmt.Errorf("marshal signed record: %w", err)
	}
	if strings.ContainsRune(string(line), '\n') {
		return audit.Record{}, fmt.Errorf("serialized record unexpectedly contains a newline")
	}

	if _, err := fc.file.Write(append(line, '\n')); err != nil {
		return audit.Record{}, fmt.Errorf("append audit record: %w", err)
	}
	if err := fc.file.Sync(); err != nil {
		return audit.Record{}, fmt.Errorf("fsync audit log: %w", err)
	}

	fc.prev = audit.ShortHash(line)
	fc.count++
	fc.cache.Add(rec)

	return rec, nil
}

// Recent returns up to n of the most recently appended records.
func (fc *FileChain) Recent(n int) []audit.Record {
	return fc.cache.Recent(n)
}

// Verify streams the log and recomputes the expected hash chain, action
// index denseness, and (where a public key is supplied) signature
// validity.
func (fc *FileChain) Verify(publicKeys map[string][]byte) (audit.VerifyResult, error) {
	f, err := os.Open(fc.path)
	if err != nil {
		if os.IsNotExist(err) {
			return audit.VerifyResult{Valid: true}, nil
		}
		return audit.VerifyResult{}, fmt.Errorf("open audit log: %w", err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 256*1024), 4*1024*1024)

	result := audit.VerifyResult{Valid: true}
	prev := audit.Genesis
	var wantIndex int64

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		lineCopy := append([]byte(nil), line...)

		var rec audit.Record
		if err := json.Unmarshal(lineCopy, &rec); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("record %d: unparsable: %v", result.RecordCount, err))
			result.RecordCount++
			continue
		}

		if rec.Provenance.PrevRecordHash != prev {
			result.Errors = append(result.Errors, fmt.Sprintf("record %d: prevRecordHash mismatch: want %q, got %q", result.RecordCount, prev, rec.Provenance.PrevRecordHash))
		}
		if rec.Provenance.ActionIndex != wantIndex {
			result.Errors = append(result.Errors, fmt.Sprintf("record %d: actionIndex not dense: want %d, got %d", result.RecordCount, wantIndex, rec.Provenance.ActionIndex))
		}

		if rec.Signature != "" {
			result.SignatureStats.Signed++
			if pub, ok := publicKeys[rec.SigningKeyID]; ok {
				unsigned := rec
				unsigned.Signature = ""
				unsigned.SigningKeyID = ""
				unsignedBytes, err := json.Marshal(unsigned)
				if err == nil && signer.Verify(pub, unsignedBytes, rec.Signature) {
					result.SignatureStats.Verified++
				} else {
					result.SignatureStats.Invalid++
					result.Errors = append(result.Errors, fmt.Sprintf("record %d: signature invalid", result.RecordCount))
				}
			} else {
				result.SignatureStats.Unverified++
			}
		}

		prev = audit.ShortHash(lineCopy)
		wantIndex++
		result.RecordCount++
	}
	if err := scanner.Err(); err != nil {
		return audit.VerifyResult{}, fmt.Errorf("scan audit log: %w", err)
	}

	result.Valid = len(result.Errors) == 0
	return result, nil
}

// Filter loads every record and returns those matching criteria.
func (fc *FileChain) Filter(criteria audit.FilterCriteria) ([]audit.Record, error) {
	f, err := os.Open(fc.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer func() { _ = f.Close() }()

	var sinceTime time.Time
	if criteria.Since != "" {
		t, err := parseSince(criteria.Since)
		if err != nil {
			return nil, fmt.Errorf("parse since: %w", err)
		}
		sinceTime = t
	}

	var targetRe *regexp.Regexp
	if criteria.TargetGlob != "" {
		re, err := matcher.CompileGlob(criteria.TargetGlob)
		if err != nil {
			return nil, fmt.Errorf("compile target glob: %w", err)
		}
		targetRe = re
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 256*1024), 4*1024*1024)

	var out []audit.Record
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec audit.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		if criteria.Tool != "" && rec.Tool != criteria.Tool {
			continue
		}
		if criteria.Category != "" && rec.Category != criteria.Category {
			continue
		}
		if criteria.Status != "" && rec.Result.Status != criteria.Status {
			continue
		}
		if !sinceTime.IsZero() && rec.Timestamp.Before(sinceTime) {
			continue
		}
		if targetRe != nil && !targetMatches(targetRe, rec) {
			continue
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan audit log: %w", err)
	}
	return out, nil
}

func targetMatches(re *regexp.Regexp, rec audit.Record) bool {
	if rec.Target != "" && re.MatchString(rec.Target) {
		return true
	}
	for _, t := range rec.Targets {
		if re.MatchString(t) {
			return true
		}
	}
	return false
}

// relativeSincePattern matches a relative duration like "30m", "2h", "7d".
var relativeSincePattern = regexp.MustCompile(`^(\d+)(s|m|h|d)$`)

func parseSince(since string) (time.Time, error) {
	if m := relativeSincePattern.FindStringSubmatch(since); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid relative since %q: %w", since, err)
		}
		var d time.Duration
		switch m[2] {
		case "s":
			d = time.Duration(n) * time.Second
		case "m":
			d = time.Duration(n) * time.Minute
		case "h":
			d = time.Duration(n) * time.Hour
		case "d":
			d = time.Duration(n) * 24 * time.Hour
		}
		return time.Now().UTC().Add(-d), nil
	}
	t, err := time.Parse(time.RFC3339, since)
	if err != nil {
		return time.Time{}, fmt.Errorf("since %q is neither ISO-8601 nor a relative N(s|m|h|d) duration: %w", since, err)
	}
	return t, nil
}

var _ audit.Chain = (*FileChain)(nil)
