package config

import (
	"strings"
	"testing"
)

func minimalValidConfig() *GovernanceConfig {
	cfg := &GovernanceConfig{
		Policy: PolicyConfig{
			DefaultPolicy: "deny",
			Rules: []RuleConfig{
				{ID: "allow-read", Decision: "allow", Match: MatchConfig{Tools: []string{"Read"}}},
			},
		},
	}
	cfg.SetDefaults()
	return cfg
}

func TestValidateValidConfig(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}

func TestValidateRejectsUnknownDefaultPolicy(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Policy.DefaultPolicy = "maybe"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for unknown default_policy")
	}
	if !strings.Contains(err.Error(), "policyaction") && !strings.Contains(err.Error(), "allow, warn, deny") {
		t.Errorf("error = %q, want to mention the allowed values", err.Error())
	}
}

func TestValidateRejectsUnknownPreset(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Policy.Preset = "bogus"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown preset")
	}
}

func TestValidateRejectsDuplicateRuleIDs(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Policy.Rules = append(cfg.Policy.Rules, RuleConfig{
		ID: "allow-read", Decision: "deny", Match: MatchConfig{Tools: []string{"Bash"}},
	})

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for duplicate rule id")
	}
	if !strings.Contains(err.Error(), "duplicate rule id") {
		t.Errorf("error = %q, want to mention duplicate rule id", err.Error())
	}
}

func TestValidateRejectsEmptyRuleID(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Policy.Rules[0].ID = ""

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty rule id")
	}
}

func TestValidateRejectsBadRegexTargetPattern(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Policy.Rules[0].Match.TargetPatterns = []string{"(unclosed"}

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unparsable regex-looking target pattern")
	}
}

func TestValidateAcceptsPlainGlobTargetPattern(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Policy.Rules[0].Match.TargetPatterns = []string{"**/*.env"}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error for glob pattern: %v", err)
	}
}

func TestSetDefaultsFillsStorageRoot(t *testing.T) {
	t.Parallel()

	cfg := &GovernanceConfig{Policy: PolicyConfig{DefaultPolicy: "deny"}}
	cfg.SetDefaults()

	if cfg.Storage.Root == "" {
		t.Error("expected SetDefaults to fill storage.root")
	}
	if cfg.EventStream.MinSeverity != "info" {
		t.Errorf("expected default min_severity info, got %q", cfg.EventStream.MinSeverity)
	}
	if cfg.EventStream.MaxSizeMB != 100 {
		t.Errorf("expected default max_size_mb 100, got %d", cfg.EventStream.MaxSizeMB)
	}
	if cfg.RateLimit.SQLitePath == "" {
		t.Error("expected SetDefaults to derive a sqlite_path under storage.root")
	}
}

func TestSetDevDefaultsAppliesPermissivePreset(t *testing.T) {
	t.Parallel()

	cfg := &GovernanceConfig{DevMode: true}
	cfg.SetDevDefaults()

	if cfg.Policy.Preset != "permissive" {
		t.Errorf("expected dev mode to default to the permissive preset, got %q", cfg.Policy.Preset)
	}
	if cfg.Policy.DefaultPolicy != "allow" {
		t.Errorf("expected dev mode default_policy allow, got %q", cfg.Policy.DefaultPolicy)
	}
}

func TestToPolicyRulesConvertsRateLimitAndTimeWindow(t *testing.T) {
	t.Parallel()

	cfg := &GovernanceConfig{
		Policy: PolicyConfig{
			DefaultPolicy: "deny",
			Rules: []RuleConfig{
				{
					ID:       "throttled-bash",
					Decision: "deny",
					Match: MatchConfig{
						Tools:      []string{"Bash"},
						RateLimit:  &RateLimitClauseConfig{MaxCount: 5, WindowMs: 60000, KeyDimension: "tool"},
						TimeWindow: &TimeWindowConfig{Timezone: "UTC", AllowedHours: []int{9, 17}, AllowedDays: []int{1, 2, 3, 4, 5}},
					},
				},
			},
		},
	}

	rules := cfg.ToPolicyRules()
	if len(rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(rules))
	}
	rl := rules[0].Match.RateLimit
	if rl == nil || rl.MaxCount != 5 || rl.WindowMs != 60000 {
		t.Errorf("rate limit clause not converted correctly: %+v", rl)
	}
	tw := rules[0].Match.TimeWindow
	if tw == nil || !tw.HasHours || tw.AllowedHours != [2]int{9, 17} {
		t.Errorf("time window not converted correctly: %+v", tw)
	}
	if !tw.HasDays || len(tw.AllowedDays) != 5 {
		t.Errorf("expected 5 allowed days, got %+v", tw.AllowedDays)
	}
}
