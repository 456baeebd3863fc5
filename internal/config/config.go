// Package config provides configuration types for the governance gate.
//
// GovernanceConfig is deliberately small: the gate has no upstream to proxy,
// no listener, and no admin UI. It configures where governance state lives
// on disk, which policy bundle to load, and the rate-limit and event-stream
// sinks.
package config

import (
	"os"
	"path/filepath"
)

// GovernanceConfig is the top-level configuration for the governance gate.
type GovernanceConfig struct {
	// Storage configures where session, audit, and witness files live.
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`

	// Policy configures the rule engine: preset, default policy, custom
	// rules, and enforcement mode.
	Policy PolicyConfig `yaml:"policy" mapstructure:"policy"`

	// RateLimit configures the durable rate-limit sink.
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`

	// EventStream configures the JSONL side-channel.
	EventStream EventStreamConfig `yaml:"event_stream" mapstructure:"event_stream"`

	// DevMode applies permissive policy defaults when no policy is
	// configured (see SetDevDefaults).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// StorageConfig configures the on-disk layout root.
type StorageConfig struct {
	// Root is the directory under which sessions/, audit/, events.jsonl,
	// and witnesses.jsonl are created.
	Root string `yaml:"root" mapstructure:"root"`
}

// PolicyConfig configures the policy engine.
type PolicyConfig struct {
	// Preset selects a built-in rule bundle: "permissive", "safety",
	// "strict", "audit-only", or empty for custom-rules-only.
	Preset string `yaml:"preset" mapstructure:"preset" validate:"omitempty,oneof=permissive safety strict audit-only"`

	// Enforce controls whether deny decisions actually block a call, or are
	// only logged (dry-run). It is used only when Preset is empty: a preset
	// brings its own enforce flag and this value is ignored.
	Enforce bool `yaml:"enforce" mapstructure:"enforce"`

	// DefaultPolicy is the decision applied when no rule matches. Like
	// Enforce, it is used only when Preset is empty; a preset brings its
	// own default policy.
	DefaultPolicy string `yaml:"default_policy" mapstructure:"default_policy" validate:"required,policyaction"`

	// Rules are custom rules appended after the preset's own rules.
	Rules []RuleConfig `yaml:"rules" mapstructure:"rules" validate:"omitempty,dive"`
}

// RuleConfig is the YAML wire format for a policy.Rule.
type RuleConfig struct {
	ID       string      `yaml:"id" mapstructure:"id" validate:"required"`
	Name     string      `yaml:"name" mapstructure:"name"`
	Priority int         `yaml:"priority" mapstructure:"priority"`
	Decision string      `yaml:"decision" mapstructure:"decision" validate:"required,policyaction"`
	Reason   string      `yaml:"reason" mapstructure:"reason"`
	Match    MatchConfig `yaml:"match" mapstructure:"match"`
}

// MatchConfig is the YAML wire format for a policy.Match.
type MatchConfig struct {
	Tools                  []string              `yaml:"tools" mapstructure:"tools"`
	Categories             []string              `yaml:"categories" mapstructure:"categories"`
	TargetPatterns         []string              `yaml:"target_patterns" mapstructure:"target_patterns" validate:"omitempty,dive,globortargetpattern"`
	TargetPatternsAreRegex bool                  `yaml:"target_patterns_are_regex" mapstructure:"target_patterns_are_regex"`
	RateLimit              *RateLimitClauseConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	TimeWindow             *TimeWindowConfig      `yaml:"time_window" mapstructure:"time_window"`
	Expression             string                `yaml:"expression" mapstructure:"expression"`
}

// RateLimitClauseConfig is the YAML wire format for a policy.RateLimitClause.
type RateLimitClauseConfig struct {
	MaxCount     int    `yaml:"max_count" mapstructure:"max_count" validate:"omitempty,min=1"`
	WindowMs     int64  `yaml:"window_ms" mapstructure:"window_ms" validate:"omitempty,min=1"`
	KeyDimension string `yaml:"key_dimension" mapstructure:"key_dimension" validate:"omitempty,oneof=tool category global"`
}

// TimeWindowConfig is the YAML wire format for a policy.TimeWindow.
type TimeWindowConfig struct {
	Timezone     string `yaml:"timezone" mapstructure:"timezone"`
	AllowedHours []int  `yaml:"allowed_hours" mapstructure:"allowed_hours" validate:"omitempty,len=2,dive,min=0,max=24"`
	AllowedDays  []int  `yaml:"allowed_days" mapstructure:"allowed_days" validate:"omitempty,dive,min=0,max=6"`
}

// RateLimitConfig configures the durable rate-limit sink.
type RateLimitConfig struct {
	// SQLitePath is the path to the sqlite database backing the rate
	// limiter. SetDefaults fills an empty value with
	// <root>/data/rate-limits.db; if the database cannot be opened, the
	// limiter falls back to in-memory.
	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// EventStreamConfig configures the JSONL event stream.
type EventStreamConfig struct {
	// MinSeverity filters out events below this level: debug, info, warn,
	// alert, or error. Defaults to "info".
	MinSeverity string `yaml:"min_severity" mapstructure:"min_severity" validate:"omitempty,oneof=debug info warn alert error"`

	// MaxSizeMB is validated and defaults to 100, but the event stream does
	// not read it: the event log rotates at a fixed 100 MiB.
	MaxSizeMB int `yaml:"max_size_mb" mapstructure:"max_size_mb" validate:"omitempty,min=1"`
}

// SetDefaults applies sensible default values to the configuration.
func (c *GovernanceConfig) SetDefaults() {
	if c.Storage.Root == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.Storage.Root = filepath.Join(home, ".claude-code", "extensions", "web4-governance")
		} else {
			c.Storage.Root = ".governance"
		}
	}
	if c.Policy.DefaultPolicy == "" {
		c.Policy.DefaultPolicy = "deny"
	}
	if c.RateLimit.SQLitePath == "" {
		c.RateLimit.SQLitePath = filepath.Join(c.Storage.Root, "data", "rate-limits.db")
	}
	if c.EventStream.MinSeverity == "" {
		c.EventStream.MinSeverity = "info"
	}
	if c.EventStream.MaxSizeMB == 0 {
		c.EventStream.MaxSizeMB = 100
	}
}

// SetDevDefaults applies permissive defaults for development mode, before
// validation, so a bare "dev_mode: true" config is enough to run.
func (c *GovernanceConfig) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	if c.Policy.Preset == "" && len(c.Policy.Rules) == 0 {
		c.Policy.Preset = "permissive"
	}
	if c.Policy.DefaultPolicy == "" {
		c.Policy.DefaultPolicy = "allow"
	}
}
