// Package policy contains domain types for the governance rule engine:
// rule schema, match criteria, presets, and evaluation results. See
// internal/service for the PolicyEngine implementation.
package policy

// Decision is the verdict a rule or the default policy produces.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionWarn  Decision = "warn"
	DecisionDeny  Decision = "deny"
)

// TimeWindow restricts a rule to a time-of-day and day-of-week range.
type TimeWindow struct {
	// Timezone is an IANA timezone name; empty means the system timezone.
	Timezone string
	// AllowedHours is [start, end) in 24h local time. If Start > End the
	// window wraps midnight.
	AllowedHours [2]int
	// AllowedDays is the set of permitted weekdays, 0=Sunday..6=Saturday.
	// Empty means every day is allowed.
	AllowedDays []int
	// HasHours/HasDays distinguish "not configured" from a zero-value range.
	HasHours bool
	HasDays  bool
}

// RateLimitClause is the rate-limit matching clause of a rule. The clause
// matches only when the configured limit has already been exceeded (post-
// count semantics): admit up to MaxCount, the clause fires starting at the
// (MaxCount+1)-th action within WindowMs.
type RateLimitClause struct {
	MaxCount int
	WindowMs int64
	// KeyDimension selects what the rate key is scoped by: "tool",
	// "category", or "global".
	KeyDimension string
}

// Match is the AND-combined set of conditions that must all hold for a rule
// to apply. Absent (nil/zero) fields never constrain.
type Match struct {
	Tools                  []string
	Categories             []string
	TargetPatterns         []string
	TargetPatternsAreRegex bool
	RateLimit              *RateLimitClause
	TimeWindow             *TimeWindow
	// Expression is an optional CEL clause evaluated in addition to the
	// static match above (see internal/adapter/outbound/cel). Absent by
	// default; this is an expansion beyond the base match schema.
	Expression string
}

// Rule is a single, immutable policy rule.
type Rule struct {
	ID       string
	Name     string
	Priority int
	Decision Decision
	Reason   string
	Match    Match
}

// Config is the full policy configuration loaded into a PolicyEngine.
type Config struct {
	DefaultPolicy Decision
	Enforce       bool
	Rules         []Rule
	Preset        string
}

// Evaluation is the result of evaluating one tool call against a Config.
type Evaluation struct {
	Decision    Decision
	MatchedRule *Rule
	// Enforced is config.Enforce || Decision != deny: a deny decision under
	// enforce=false is logged but the gate returns allow (dry-run).
	Enforced    bool
	Reason      string
	Constraints []string
}

// EntityID builds the content-addressed policy entity identifier:
// "policy:<name>:<version>:<sha256-hex>".
func EntityID(name, version, sha256Hex string) string {
	return "policy:" + name + ":" + version + ":" + sha256Hex
}
