// Package r6 builds the immutable R6Request issued for every proposed tool
// call: Rules, Role, Request, Reference, and Resource sections, linking a
// policy decision to a session's action sequence before the call executes.
package r6

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// AuditLevel controls how much of an R6Request's context is retained.
type AuditLevel string

const (
	AuditMinimal  AuditLevel = "minimal"
	AuditStandard AuditLevel = "standard"
	AuditVerbose  AuditLevel = "verbose"
)

// BindingSoftLCT is the only binding type this implementation produces: a
// session-scoped software identity without hardware backing.
const BindingSoftLCT = "soft-lct"

// Rules is the policy context attached to a request.
type Rules struct {
	AuditLevel     AuditLevel `json:"auditLevel"`
	Constraints    []string   `json:"constraints,omitempty"`
	PolicyEntityID string     `json:"policyEntityId,omitempty"`
}

// Role identifies who is making the request.
type Role struct {
	SessionID   string `json:"sessionId"`
	AgentID     string `json:"agentId,omitempty"`
	ActionIndex int64  `json:"actionIndex"`
	BindingType string `json:"bindingType"`
}

// Request is what is being asked: a single tool invocation.
type Request struct {
	ToolName  string   `json:"toolName"`
	Category  string   `json:"category"`
	Target    string   `json:"target,omitempty"`
	Targets   []string `json:"targets,omitempty"`
	InputHash string   `json:"inputHash"`
}

// Reference anchors this request in the session's chain.
type Reference struct {
	SessionID     string `json:"sessionId"`
	PreviousR6ID  string `json:"previousR6Id,omitempty"`
	ChainPosition int64  `json:"chainPosition"`
}

// Resource describes the expected cost/approval posture of the call.
type Resource struct {
	EstimatedTokens  *int64 `json:"estimatedTokens,omitempty"`
	ApprovalRequired bool   `json:"approvalRequired"`
}

// Request6 is the full R6-structured request envelope.
type Request6 struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Rules     Rules     `json:"rules"`
	Role      Role      `json:"role"`
	Request   Request   `json:"request"`
	Reference Reference `json:"reference"`
	Resource  Resource  `json:"resource"`
}

// Params bundles the inputs needed to build a Request6.
type Params struct {
	SessionID        string
	AgentID          string
	ActionIndex      int64
	PreviousR6ID     string
	ToolName         string
	Category         string
	Target           string
	Targets          []string
	InputHash        string
	AuditLevel       AuditLevel
	Constraints      []string
	PolicyEntityID   string
	EstimatedTokens  *int64
	ApprovalRequired bool
	Now              time.Time
}

// NewID returns a random id of the form "r6:<8 hex chars>".
func NewID() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate r6 id: %w", err)
	}
	return "r6:" + hex.EncodeToString(b), nil
}

// Build assembles a Request6 from p, generating a fresh id.
func Build(p Params) (Request6, error) {
	id, err := NewID()
	if err != nil {
		return Request6{}, err
	}

	level := p.AuditLevel
	if level == "" {
		level = AuditStandard
	}
	now := p.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	return Request6{
		ID:        id,
		Timestamp: now,
		Rules: Rules{
			AuditLevel:     level,
			Constraints:    p.Constraints,
			PolicyEntityID: p.PolicyEntityID,
		},
		Role: Role{
			SessionID:   p.SessionID,
			AgentID:     p.AgentID,
			ActionIndex: p.ActionIndex,
			BindingType: BindingSoftLCT,
		},
		Request: Request{
			ToolName:  p.ToolName,
			Category:  p.Category,
			Target:    p.Target,
			Targets:   p.Targets,
			InputHash: p.InputHash,
		},
		Reference: Reference{
			SessionID:     p.SessionID,
			PreviousR6ID:  p.PreviousR6ID,
			ChainPosition: p.ActionIndex,
		},
		Resource: Resource{
			EstimatedTokens:  p.EstimatedTokens,
			ApprovalRequired: p.ApprovalRequired,
		},
	}, nil
}
