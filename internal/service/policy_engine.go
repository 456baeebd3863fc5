// Package service implements the governance engine's application services:
// ordered policy evaluation, session lifecycle, and the facade that wires
// policy, audit, and rate-limit concerns around a tool call.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/cel-go/cel"

	celeval "github.com/web4/governance/internal/adapter/outbound/cel"
	"github.com/web4/governance/internal/domain/matcher"
	"github.com/web4/governance/internal/domain/policy"
	"github.com/web4/governance/internal/domain/ratelimit"
)

const defaultCacheSize = 1000

// compiledRule is a policy.Rule with its static matcher and optional CEL
// program pre-compiled, plus its time-window location resolved once at
// construction instead of on every Evaluate call.
type compiledRule struct {
	rule     policy.Rule
	criteria *matcher.CompiledCriteria
	program  cel.Program
	loc      *time.Location
	order    int
}

// PolicyEngine evaluates tool calls against an ordered, compiled rule set.
// Rules are tried in ascending priority order (lower number first), ties
// broken by declaration order; the first fully-matching rule wins.
type PolicyEngine struct {
	cfg       policy.Config
	rules     []compiledRule
	ruleByID  map[string]*policy.Rule
	evaluator *celeval.Evaluator
	limiter   ratelimit.Limiter
	cache     *resultCache
	logger    *slog.Logger
	now       func() time.Time
}

// NewPolicyEngine compiles cfg into a ready-to-evaluate engine. It returns
// an error wrapping ErrConfigInvalid for any bad regex, unknown time zone,
// malformed rate-limit clause, or invalid CEL expression, so that bad
// configuration fails at load time rather than on the first tool call.
func NewPolicyEngine(cfg policy.Config, limiter ratelimit.Limiter, logger *slog.Logger) (*PolicyEngine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.DefaultPolicy {
	case policy.DecisionAllow, policy.DecisionWarn, policy.DecisionDeny:
	default:
		return nil, fmt.Errorf("%w: default policy %q is not one of allow/warn/deny", ErrConfigInvalid, cfg.DefaultPolicy)
	}

	pe := &PolicyEngine{
		cfg:      cfg,
		ruleByID: make(map[string]*policy.Rule, len(cfg.Rules)),
		limiter:  limiter,
		logger:   logger,
		now:      time.Now,
	}

	hasDynamic := false
	compiled := make([]compiledRule, 0, len(cfg.Rules))

	for i, rule := range cfg.Rules {
		switch rule.Decision {
		case policy.DecisionAllow, policy.DecisionWarn, policy.DecisionDeny:
		default:
			return nil, fmt.Errorf("%w: rule %q: decision %q is not one of allow/warn/deny", ErrConfigInvalid, rule.ID, rule.Decision)
		}

		criteria, err := matcher.Compile(matcher.Criteria{
			Tools:                  rule.Match.Tools,
			Categories:             rule.Match.Categories,
			TargetPatterns:         rule.Match.TargetPatterns,
			TargetPatternsAreRegex: rule.Match.TargetPatternsAreRegex,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: rule %q: %v", ErrConfigInvalid, rule.ID, err)
		}

		cr := compiledRule{rule: rule, criteria: criteria, order: i}

		if rule.Match.RateLimit != nil {
			hasDynamic = true
			rl := rule.Match.RateLimit
			if rl.MaxCount <= 0 {
				return nil, fmt.Errorf("%w: rule %q: rateLimit.maxCount must be positive", ErrConfigInvalid, rule.ID)
			}
			if rl.WindowMs <= 0 {
				return nil, fmt.Errorf("%w: rule %q: rateLimit.windowMs must be positive", ErrConfigInvalid, rule.ID)
			}
			switch rl.KeyDimension {
			case "tool", "category", "global", "":
			default:
				return nil, fmt.Errorf("%w: rule %q: rateLimit.keyDimension %q is not one of tool/category/global", ErrConfigInvalid, rule.ID, rl.KeyDimension)
			}
		}

		if rule.Match.TimeWindow != nil {
			hasDynamic = true
			tw := rule.Match.TimeWindow
			loc := time.Local
			if tw.Timezone != "" {
				l, err := time.LoadLocation(tw.Timezone)
				if err != nil {
					return nil, fmt.Errorf("%w: rule %q: timeWindow.timezone %q: %v", ErrConfigInvalid, rule.ID, tw.Timezone, err)
				}
				loc = l
			}
			cr.loc = loc
			if tw.HasHours && (tw.AllowedHours[0] < 0 || tw.AllowedHours[0] > 24 || tw.AllowedHours[1] < 0 || tw.AllowedHours[1] > 24) {
				return nil, fmt.Errorf("%w: rule %q: timeWindow.allowedHours out of [0,24] range", ErrConfigInvalid, rule.ID)
			}
			for _, d := range tw.AllowedDays {
				if d < 0 || d > 6 {
					return nil, fmt.Errorf("%w: rule %q: timeWindow.allowedDays entry %d out of [0,6] range", ErrConfigInvalid, rule.ID, d)
				}
			}
		}

		if rule.Match.Expression != "" {
			hasDynamic = true
			if pe.evaluator == nil {
				ev, err := celeval.NewEvaluator()
				if err != nil {
					return nil, fmt.Errorf("%w: create cel evaluator: %v", ErrConfigInvalid, err)
				}
				pe.evaluator = ev
			}
			prg, err := pe.evaluator.Compile(rule.Match.Expression)
			if err != nil {
				return nil, fmt.Errorf("%w: rule %q: expression: %v", ErrConfigInvalid, rule.ID, err)
			}
			cr.program = prg
		}

		compiled = append(compiled, cr)
	}

	sort.SliceStable(compiled, func(i, j int) bool {
		if compiled[i].rule.Priority != compiled[j].rule.Priority {
			return compiled[i].rule.Priority < compiled[j].rule.Priority
		}
		return compiled[i].order < compiled[j].order
	})

	pe.rules = compiled
	for i := range pe.rules {
		pe.ruleByID[pe.rules[i].rule.ID] = &pe.rules[i].rule
	}

	if !hasDynamic {
		pe.cache = newResultCache(defaultCacheSize)
	}

	return pe, nil
}

// Evaluate decides a tool call. It tries compiled rules in priority order
// and returns the default policy if none match.
func (pe *PolicyEngine) Evaluate(ctx context.Context, tool, category, target string, params map[string]any) (policy.Evaluation, error) {
	cacheKey := cacheKeyFor(tool, category, target, params)

	if pe.cache != nil {
		if cached, ok := pe.cache.Get(cacheKey); ok {
			return pe.resolveCached(cached), nil
		}
	}

	for i := range pe.rules {
		cr := &pe.rules[i]
		if !cr.criteria.Matches(tool, category, target) {
			continue
		}

		constraints := []string{"ruleId=" + cr.rule.ID}

		if cr.rule.Match.TimeWindow != nil {
			if !timeWindowMatches(cr.rule.Match.TimeWindow, cr.loc, pe.now()) {
				continue
			}
			tw := cr.rule.Match.TimeWindow
			if tw.HasHours {
				constraints = append(constraints, fmt.Sprintf("window=[%02d,%02d]", tw.AllowedHours[0], tw.AllowedHours[1]))
			}
		}

		if cr.rule.Match.RateLimit != nil {
			rl := cr.rule.Match.RateLimit
			dim := rl.KeyDimension
			if dim == "" {
				dim = "global"
			}
			var value string
			switch dim {
			case "tool":
				value = tool
			case "category":
				value = category
			default:
				value = "global"
			}
			key := ratelimit.FormatKey(cr.rule.ID, dim, value)
			res, err := pe.limiter.Check(ctx, key, rl.MaxCount, rl.WindowMs)
			if err != nil {
				return policy.Evaluation{}, fmt.Errorf("rate limit check for rule %q: %w", cr.rule.ID, err)
			}
			if res.Allowed {
				// Clause matches only once the limit is already exceeded.
				continue
			}
			constraints = append(constraints, "rateKey="+key)
		}

		if cr.program != nil {
			matched, err := pe.evaluator.Evaluate(cr.program, celeval.Vars{
				Tool: tool, Category: category, Target: target, Params: params,
			})
			if err != nil {
				pe.logger.Warn("policy expression evaluation failed, skipping rule", "rule", cr.rule.ID, "error", err)
				continue
			}
			if !matched {
				continue
			}
		}

		eval := policy.Evaluation{
			Decision:    cr.rule.Decision,
			MatchedRule: &cr.rule,
			Enforced:    pe.cfg.Enforce || cr.rule.Decision != policy.DecisionDeny,
			Reason:      cr.rule.Reason,
			Constraints: constraints,
		}
		if pe.cache != nil {
			pe.cache.Put(cacheKey, cachedEvaluation{matchedRuleID: cr.rule.ID, matched: true})
		}
		return eval, nil
	}

	eval := policy.Evaluation{
		Decision: pe.cfg.DefaultPolicy,
		Enforced: pe.cfg.Enforce || pe.cfg.DefaultPolicy != policy.DecisionDeny,
		Reason:   "no rule matched, default policy applied",
	}
	if pe.cache != nil {
		pe.cache.Put(cacheKey, cachedEvaluation{matched: false})
	}
	return eval, nil
}

// ApplicableRateLimitKeys returns the rate-limit keys of every rule whose
// static and time-window criteria match this call and which declares a
// RateLimit clause, regardless of which rule ultimately won the decision.
// The Facade calls Record on each returned key once a call is admitted, so
// that every budget the call counts against advances exactly once.
func (pe *PolicyEngine) ApplicableRateLimitKeys(tool, category, target string) []string {
	var keys []string
	for i := range pe.rules {
		cr := &pe.rules[i]
		if cr.rule.Match.RateLimit == nil {
			continue
		}
		if !cr.criteria.Matches(tool, category, target) {
			continue
		}
		if cr.rule.Match.TimeWindow != nil && !timeWindowMatches(cr.rule.Match.TimeWindow, cr.loc, pe.now()) {
			continue
		}
		rl := cr.rule.Match.RateLimit
		dim := rl.KeyDimension
		if dim == "" {
			dim = "global"
		}
		var value string
		switch dim {
		case "tool":
			value = tool
		case "category":
			value = category
		default:
			value = "global"
		}
		keys = append(keys, ratelimit.FormatKey(cr.rule.ID, dim, value))
	}
	return keys
}

func (pe *PolicyEngine) resolveCached(c cachedEvaluation) policy.Evaluation {
	if !c.matched {
		return policy.Evaluation{
			Decision: pe.cfg.DefaultPolicy,
			Enforced: pe.cfg.Enforce || pe.cfg.DefaultPolicy != policy.DecisionDeny,
			Reason:   "no rule matched, default policy applied",
		}
	}
	rule := pe.ruleByID[c.matchedRuleID]
	return policy.Evaluation{
		Decision:    rule.Decision,
		MatchedRule: rule,
		Enforced:    pe.cfg.Enforce || rule.Decision != policy.DecisionDeny,
		Reason:      rule.Reason,
		Constraints: []string{"ruleId=" + rule.ID},
	}
}

func timeWindowMatches(tw *policy.TimeWindow, loc *time.Location, now time.Time) bool {
	now = now.In(loc)

	if tw.HasDays {
		ok := false
		day := int(now.Weekday())
		for _, d := range tw.AllowedDays {
			if d == day {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}

	if tw.HasHours {
		hour := now.Hour()
		start, end := tw.AllowedHours[0], tw.AllowedHours[1]
		if start <= end {
			if hour < start || hour >= end {
				return false
			}
		} else {
			// wraps midnight, e.g. 22..6
			if hour < start && hour >= end {
				return false
			}
		}
	}

	return true
}

func cacheKeyFor(tool, category, target string, params map[string]any) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(tool)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(category)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(target)
	_, _ = h.Write([]byte{0})
	if len(params) > 0 {
		if b, err := json.Marshal(params); err == nil {
			_, _ = h.Write(b)
		}
	}
	return h.Sum64()
}
