// Package session contains the domain types for per-session governance
// state: identity, signing keys, and the monotonic counters that anchor the
// R6/audit chain to a session.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// State is the persisted governance state for one agent session. Exactly
// one State exists per session file; it is read-modify-written as a whole
// on every action.
type State struct {
	SessionID      string    `json:"sessionId"`
	StartedAt      time.Time `json:"startedAt"`
	ActionIndex    int64     `json:"actionIndex"`
	LastR6ID       string    `json:"lastR6Id,omitempty"`
	PolicyEntityID string    `json:"policyEntityId,omitempty"`

	// AgentID is an optional soft-LCT binding token. Nothing in this module
	// sets or hashes it; the caller-supplied agent id travels on R6 requests
	// and events instead.
	AgentID string `json:"agentId,omitempty"`

	ToolCounts     map[string]int64 `json:"toolCounts,omitempty"`
	CategoryCounts map[string]int64 `json:"categoryCounts,omitempty"`

	PublicKeyHex  string `json:"publicKeyHex"`
	PrivateKeyHex string `json:"privateKeyHex"`
	SigningKeyID  string `json:"signingKeyId"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// GenerateSessionID returns a random 128-bit session identifier, hex-encoded
// and prefixed for readability in logs and filenames.
func GenerateSessionID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return "sess_" + hex.EncodeToString(b), nil
}

// RecordAction advances the session's action index and per-tool/category
// counters. It does not persist the change; the caller's Store does that.
func (s *State) RecordAction(tool, category, r6ID string) {
	s.ActionIndex++
	s.LastR6ID = r6ID

	if s.ToolCounts == nil {
		s.ToolCounts = make(map[string]int64)
	}
	if s.CategoryCounts == nil {
		s.CategoryCounts = make(map[string]int64)
	}
	s.ToolCounts[tool]++
	s.CategoryCounts[category]++
}

// Store is the port a SessionState persistence adapter implements.
type Store interface {
	Load(sessionID string) (*State, error)
	Save(state *State) error
	Exists(sessionID string) bool
}
