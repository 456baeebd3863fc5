package config

import "github.com/web4/governance/internal/domain/policy"

// ToPolicyRules converts the YAML wire-format rules into domain policy.Rule
// values, the form PolicyEngine's constructor accepts. Validation of
// decision/pattern syntax already happened in Validate; this is a pure
// field-by-field reshape.
func (c *GovernanceConfig) ToPolicyRules() []policy.Rule {
	rules := make([]policy.Rule, 0, len(c.Policy.Rules))
	for _, rc := range c.Policy.Rules {
		rules = append(rules, policy.Rule{
			ID:       rc.ID,
			Name:     rc.Name,
			Priority: rc.Priority,
			Decision: policy.Decision(rc.Decision),
			Reason:   rc.Reason,
			Match:    rc.Match.toDomain(),
		})
	}
	return rules
}

func (mc MatchConfig) toDomain() policy.Match {
	m := policy.Match{
		Tools:                  mc.Tools,
		Categories:             mc.Categories,
		TargetPatterns:         mc.TargetPatterns,
		TargetPatternsAreRegex: mc.TargetPatternsAreRegex,
		Expression:             mc.Expression,
	}
	if mc.RateLimit != nil {
		m.RateLimit = &policy.RateLimitClause{
			MaxCount:     mc.RateLimit.MaxCount,
			WindowMs:     mc.RateLimit.WindowMs,
			KeyDimension: mc.RateLimit.KeyDimension,
		}
	}
	if mc.TimeWindow != nil {
		tw := &policy.TimeWindow{
			Timezone: mc.TimeWindow.Timezone,
			HasDays:  len(mc.TimeWindow.AllowedDays) > 0,
		}
		tw.AllowedDays = mc.TimeWindow.AllowedDays
		if len(mc.TimeWindow.AllowedHours) == 2 {
			tw.HasHours = true
			tw.AllowedHours = [2]int{mc.TimeWindow.AllowedHours[0], mc.TimeWindow.AllowedHours[1]}
		}
		m.TimeWindow = tw
	}
	return m
}
