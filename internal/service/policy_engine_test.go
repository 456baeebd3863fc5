package service

import (
	"context"
	"testing"
	"time"

	ratelimitadapter "github.com/web4/governance/internal/adapter/outbound/ratelimit"
	"github.com/web4/governance/internal/domain/policy"
)

func TestPolicyEngineDefaultPolicyWhenNoRuleMatches(t *testing.T) {
	cfg := policy.Config{DefaultPolicy: policy.DecisionAllow, Enforce: true}
	pe, err := NewPolicyEngine(cfg, ratelimitadapter.NewMemoryLimiter(), nil)
	if err != nil {
		t.Fatal(err)
	}
	eval, err := pe.Evaluate(context.Background(), "Read", "file_read", "/tmp/x", nil)
	if err != nil {
		t.Fatal(err)
	}
	if eval.Decision != policy.DecisionAllow || eval.MatchedRule != nil {
		t.Errorf("expected unmatched default allow, got %+v", eval)
	}
}

func TestPolicyEnginePriorityOrderFirstMatchWins(t *testing.T) {
	cfg := policy.Config{
		DefaultPolicy: policy.DecisionAllow,
		Enforce:       true,
		Rules: []policy.Rule{
			{ID: "low-priority-deny", Priority: 20, Decision: policy.DecisionDeny, Match: policy.Match{Tools: []string{"Bash"}}},
			{ID: "high-priority-allow", Priority: 1, Decision: policy.DecisionAllow, Match: policy.Match{Tools: []string{"Bash"}}},
		},
	}
	pe, err := NewPolicyEngine(cfg, ratelimitadapter.NewMemoryLimiter(), nil)
	if err != nil {
		t.Fatal(err)
	}
	eval, err := pe.Evaluate(context.Background(), "Bash", "command", "ls", nil)
	if err != nil {
		t.Fatal(err)
	}
	if eval.MatchedRule == nil || eval.MatchedRule.ID != "high-priority-allow" {
		t.Fatalf("expected lowest-priority-number rule to win, got %+v", eval.MatchedRule)
	}
}

func TestPolicyEngineRejectsBadRegex(t *testing.T) {
	cfg := policy.Config{
		DefaultPolicy: policy.DecisionAllow,
		Rules: []policy.Rule{
			{ID: "bad", Priority: 1, Decision: policy.DecisionDeny, Match: policy.Match{
				TargetPatterns:         []string{"(a+)+$"},
				TargetPatternsAreRegex: true,
			}},
		},
	}
	_, err := NewPolicyEngine(cfg, ratelimitadapter.NewMemoryLimiter(), nil)
	if err == nil {
		t.Fatal("expected ReDoS-prone pattern to be rejected at construction")
	}
}

func TestPolicyEngineUnknownDefaultPolicyRejected(t *testing.T) {
	_, err := NewPolicyEngine(policy.Config{DefaultPolicy: "maybe"}, ratelimitadapter.NewMemoryLimiter(), nil)
	if err == nil {
		t.Fatal("expected unknown default policy to be rejected")
	}
}

func TestPolicyEngineRateLimitClauseFiresAfterExceeded(t *testing.T) {
	cfg := policy.Config{
		DefaultPolicy: policy.DecisionAllow,
		Enforce:       true,
		Rules: []policy.Rule{
			{ID: "rl", Priority: 1, Decision: policy.DecisionDeny, Match: policy.Match{
				Tools:     []string{"Bash"},
				RateLimit: &policy.RateLimitClause{MaxCount: 2, WindowMs: 60_000, KeyDimension: "tool"},
			}},
		},
	}
	lim := ratelimitadapter.NewMemoryLimiter()
	pe, err := NewPolicyEngine(cfg, lim, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		eval, err := pe.Evaluate(ctx, "Bash", "command", "ls", nil)
		if err != nil {
			t.Fatal(err)
		}
		if eval.MatchedRule != nil {
			t.Fatalf("call %d: expected no rule to match yet, got %+v", i, eval.MatchedRule)
		}
		if err := lim.Record(ctx, "ratelimit:rl:tool:Bash"); err != nil {
			t.Fatal(err)
		}
	}

	eval, err := pe.Evaluate(ctx, "Bash", "command", "ls", nil)
	if err != nil {
		t.Fatal(err)
	}
	if eval.MatchedRule == nil || eval.MatchedRule.ID != "rl" {
		t.Fatalf("expected rate-limit clause to fire on 3rd call, got %+v", eval)
	}
	if eval.Decision != policy.DecisionDeny {
		t.Errorf("expected deny, got %s", eval.Decision)
	}
}

func TestPolicyEngineTimeWindowWraparound(t *testing.T) {
	cfg := policy.Config{
		DefaultPolicy: policy.DecisionAllow,
		Rules: []policy.Rule{
			{ID: "night", Priority: 1, Decision: policy.DecisionDeny, Match: policy.Match{
				Tools:      []string{"Bash"},
				TimeWindow: &policy.TimeWindow{HasHours: true, AllowedHours: [2]int{22, 6}},
			}},
		},
	}
	pe, err := NewPolicyEngine(cfg, ratelimitadapter.NewMemoryLimiter(), nil)
	if err != nil {
		t.Fatal(err)
	}

	pe.now = func() time.Time { return time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC) }
	eval, err := pe.Evaluate(context.Background(), "Bash", "command", "ls", nil)
	if err != nil {
		t.Fatal(err)
	}
	if eval.MatchedRule == nil {
		t.Error("expected rule to match at 23:00 within 22..6 wraparound window")
	}

	pe.now = func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }
	eval, err = pe.Evaluate(context.Background(), "Bash", "command", "ls", nil)
	if err != nil {
		t.Fatal(err)
	}
	if eval.MatchedRule != nil {
		t.Error("expected no match at noon, outside the wraparound window")
	}
}

func TestPolicyEngineStaticCacheHit(t *testing.T) {
	cfg := policy.Config{
		DefaultPolicy: policy.DecisionDeny,
		Rules: []policy.Rule{
			{ID: "allow-reads", Priority: 1, Decision: policy.DecisionAllow, Match: policy.Match{Tools: []string{"Read"}}},
		},
	}
	pe, err := NewPolicyEngine(cfg, ratelimitadapter.NewMemoryLimiter(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if pe.cache == nil {
		t.Fatal("expected purely static rule set to enable the decision cache")
	}
	ctx := context.Background()
	first, err := pe.Evaluate(ctx, "Read", "file_read", "/tmp/a", nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := pe.Evaluate(ctx, "Read", "file_read", "/tmp/a", nil)
	if err != nil {
		t.Fatal(err)
	}
	if first.Decision != second.Decision || second.MatchedRule == nil || second.MatchedRule.ID != "allow-reads" {
		t.Errorf("expected cached evaluation to resolve identically, got %+v vs %+v", first, second)
	}
}
