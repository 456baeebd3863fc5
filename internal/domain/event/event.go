// Package event contains the wire schema for the governance event stream:
// the JSONL side-channel emitted alongside policy and audit decisions.
package event

// Severity is the event stream's filtering level, ordered low to high.
type Severity string

const (
	SeverityDebug Severity = "debug"
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityAlert Severity = "alert"
	SeverityError Severity = "error"
)

var severityRank = map[Severity]int{
	SeverityDebug: 0,
	SeverityInfo:  1,
	SeverityWarn:  2,
	SeverityAlert: 3,
	SeverityError: 4,
}

// AtLeast reports whether s is at or above the given floor severity. An
// unrecognized severity never passes a filter.
func (s Severity) AtLeast(floor Severity) bool {
	sr, ok := severityRank[s]
	if !ok {
		return false
	}
	fr, ok := severityRank[floor]
	if !ok {
		return false
	}
	return sr >= fr
}

// Type is one of the fixed event kinds the core emits.
type Type string

const (
	TypeSessionStart      Type = "session_start"
	TypeSessionEnd        Type = "session_end"
	TypeToolCall          Type = "tool_call"
	TypeToolResult        Type = "tool_result"
	TypePolicyDecision    Type = "policy_decision"
	TypePolicyViolation   Type = "policy_violation"
	TypeRateLimitExceeded Type = "rate_limit_exceeded"
	TypeAuditRecord       Type = "audit_record"
	TypeAuditAlert        Type = "audit_alert"
	TypeSystemError       Type = "system_error"
)

// Event is one line of the event stream. Timestamp is set by the emitter,
// not the caller, so every event reflects write-time ordering.
type Event struct {
	Type      Type     `json:"type"`
	Timestamp string   `json:"timestamp"`
	Severity  Severity `json:"severity"`

	SessionID   string         `json:"sessionId,omitempty"`
	AgentID     string         `json:"agentId,omitempty"`
	Tool        string         `json:"tool,omitempty"`
	Target      string         `json:"target,omitempty"`
	Category    string         `json:"category,omitempty"`
	Decision    string         `json:"decision,omitempty"`
	Reason      string         `json:"reason,omitempty"`
	RuleID      string         `json:"ruleId,omitempty"`
	DurationMs  *int64         `json:"durationMs,omitempty"`
	Count       *int           `json:"count,omitempty"`
	TrustBefore *float64       `json:"trustBefore,omitempty"`
	TrustAfter  *float64       `json:"trustAfter,omitempty"`
	TrustDelta  *float64       `json:"trustDelta,omitempty"`
	Error       string         `json:"error,omitempty"`
	ErrorType   string         `json:"errorType,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Stream is the port an event-stream adapter implements.
type Stream interface {
	Emit(e Event) error
	Subscribe(fn func(Event)) (unsubscribe func())
	Close() error
}
