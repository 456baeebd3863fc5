package service

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	auditadapter "github.com/web4/governance/internal/adapter/outbound/audit"
	"github.com/web4/governance/internal/domain/audit"
	"github.com/web4/governance/internal/domain/classifier"
	"github.com/web4/governance/internal/domain/event"
	"github.com/web4/governance/internal/domain/policy"
	"github.com/web4/governance/internal/domain/r6"
	"github.com/web4/governance/internal/domain/ratelimit"
	"github.com/web4/governance/internal/domain/session"
	"github.com/web4/governance/internal/domain/signer"
	"github.com/web4/governance/internal/telemetry"
)

var tracer = otel.Tracer("github.com/web4/governance/internal/service")

// ChainOpener creates or reopens a session's audit chain, keyed by session
// ID. The Facade caches the returned Chain for the process lifetime, since
// reopening a file chain on every call would re-walk the whole log to
// recompute prevHash.
type ChainOpener func(sessionID string, key *signer.KeyPair) (audit.Chain, error)

// Verdict is what PreCall returns to the caller: the policy decision for a
// proposed tool call, independent of whether the call is actually made.
type Verdict struct {
	Decision    policy.Decision
	Enforced    bool
	Reason      string
	RuleID      string
	Constraints []string
	// Allowed is Enforced==false or Decision!=deny: whether the caller
	// should proceed with the tool call.
	Allowed bool
}

// CallResult is what PostCall records about a tool call that was made.
type CallResult struct {
	Status       audit.Status
	OutputHash   string
	ErrorMessage string
	Duration     time.Duration
}

// pendingCall is the state PreCall stashes for the matching PostCall.
type pendingCall struct {
	r6       r6.Request6
	eval     policy.Evaluation
	ruleKeys []string
}

// Facade is the single entry point a host process calls around every tool
// invocation: PreCall before, PostCall after. It wires together policy
// evaluation, session identity, the audit chain, rate limiting, and the
// event stream.
type Facade struct {
	engine   *PolicyEngine
	sessions session.Store
	limiter  ratelimit.Limiter
	stream   event.Stream
	opener   ChainOpener
	metrics  *telemetry.Metrics
	logger   *slog.Logger

	policyEntityID string

	mu     sync.Mutex
	chains map[string]audit.Chain
	// pending holds the one in-flight call per session between PreCall and
	// PostCall. Concurrent calls within a single session are not supported,
	// matching the serialized nature of a single agent's tool-call loop.
	pending map[string]*pendingCall
}

// NewFacade builds a Facade. policyEntityID is recorded on every R6Request's
// Rules section so audit records can be tied back to the policy bundle that
// produced their decision.
func NewFacade(
	engine *PolicyEngine,
	sessions session.Store,
	limiter ratelimit.Limiter,
	stream event.Stream,
	opener ChainOpener,
	metrics *telemetry.Metrics,
	policyEntityID string,
	logger *slog.Logger,
) *Facade {
	if logger == nil {
		logger = slog.Default()
	}
	return &Facade{
		engine:         engine,
		sessions:       sessions,
		limiter:        limiter,
		stream:         stream,
		opener:         opener,
		metrics:        metrics,
		policyEntityID: policyEntityID,
		logger:         logger,
		chains:         make(map[string]audit.Chain),
		pending:        make(map[string]*pendingCall),
	}
}

// NewFileChainOpener returns a ChainOpener that opens one JSONL file per
// session under dir, named "<sessionId>.jsonl".
func NewFileChainOpener(dir string, logger *slog.Logger) ChainOpener {
	return func(sessionID string, key *signer.KeyPair) (audit.Chain, error) {
		path := filepath.Join(dir, sessionID+".jsonl")
		return auditadapter.NewFileChain(path, key, logger)
	}
}

// PreCall classifies and evaluates a proposed tool call, recording the
// pending decision so the matching PostCall can build the linked audit
// record. It does not touch the session file or audit chain: those only
// advance once the call has actually happened.
func (f *Facade) PreCall(ctx context.Context, sessionID, agentID, tool string, params map[string]any) (Verdict, error) {
	ctx, span := tracer.Start(ctx, "governance.precall", trace.WithAttributes(
		attribute.String("governance.session_id", sessionID),
		attribute.String("governance.tool", tool),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		if f.metrics != nil {
			f.metrics.PreCallDuration.Observe(time.Since(start).Seconds())
		}
	}()

	classif := classifier.Classify(tool, params)

	if classif.IsCredential || classif.IsMemory {
		f.emit(event.Event{
			Type:      event.TypeAuditAlert,
			Severity:  event.SeverityAlert,
			SessionID: sessionID,
			AgentID:   agentID,
			Tool:      tool,
			Category:  string(classif.Category),
			Target:    classif.Primary,
			Reason:    sensitivityReason(classif),
		})
	}

	target := classif.Primary
	eval, err := f.engine.Evaluate(ctx, tool, string(classif.Category), target, params)
	if err != nil {
		span.RecordError(err)
		return Verdict{}, fmt.Errorf("policy evaluation: %w", err)
	}
	if f.metrics != nil {
		f.metrics.PolicyEvaluationsTotal.WithLabelValues(string(eval.Decision)).Inc()
	}

	st, err := f.sessions.Load(sessionID)
	if err != nil {
		span.RecordError(err)
		return Verdict{}, fmt.Errorf("load session: %w", err)
	}

	req, err := r6.Build(r6.Params{
		SessionID:      sessionID,
		AgentID:        agentID,
		ActionIndex:    st.ActionIndex,
		PreviousR6ID:   st.LastR6ID,
		ToolName:       tool,
		Category:       string(classif.Category),
		Target:         classif.Primary,
		Targets:        classif.Secondary,
		InputHash:      classif.InputHash,
		Constraints:    eval.Constraints,
		PolicyEntityID: f.policyEntityID,
	})
	if err != nil {
		span.RecordError(err)
		return Verdict{}, fmt.Errorf("build r6 request: %w", err)
	}

	ruleID := ""
	if eval.MatchedRule != nil {
		ruleID = eval.MatchedRule.ID
	}

	ruleKeys := f.engine.ApplicableRateLimitKeys(tool, string(classif.Category), target)

	f.mu.Lock()
	f.pending[sessionID] = &pendingCall{r6: req, eval: eval, ruleKeys: ruleKeys}
	f.mu.Unlock()

	allowed := !eval.Enforced || eval.Decision != policy.DecisionDeny
	if eval.Decision == policy.DecisionDeny && eval.Enforced {
		f.emit(event.Event{
			Type:      event.TypePolicyViolation,
			Severity:  event.SeverityWarn,
			SessionID: sessionID,
			AgentID:   agentID,
			Tool:      tool,
			Category:  string(classif.Category),
			Target:    classif.Primary,
			Decision:  string(eval.Decision),
			Reason:    eval.Reason,
			RuleID:    ruleID,
		})
	}
	f.emit(event.Event{
		Type:      event.TypePolicyDecision,
		Severity:  event.SeverityInfo,
		SessionID: sessionID,
		AgentID:   agentID,
		Tool:      tool,
		Category:  string(classif.Category),
		Target:    classif.Primary,
		Decision:  string(eval.Decision),
		Reason:    eval.Reason,
		RuleID:    ruleID,
	})

	return Verdict{
		Decision:    eval.Decision,
		Enforced:    eval.Enforced,
		Reason:      eval.Reason,
		RuleID:      ruleID,
		Constraints: eval.Constraints,
		Allowed:     allowed,
	}, nil
}

// PostCall records the outcome of the tool call PreCall most recently
// evaluated for sessionID: it appends a signed, hash-linked audit record,
// advances every rate-limit budget the call counted against, and persists
// the session's new action index.
func (f *Facade) PostCall(ctx context.Context, sessionID string, result CallResult) (audit.Record, error) {
	ctx, span := tracer.Start(ctx, "governance.postcall", trace.WithAttributes(
		attribute.String("governance.session_id", sessionID),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		if f.metrics != nil {
			f.metrics.PostCallDuration.Observe(time.Since(start).Seconds())
		}
	}()

	f.mu.Lock()
	pc, ok := f.pending[sessionID]
	if ok {
		delete(f.pending, sessionID)
	}
	f.mu.Unlock()
	if !ok {
		return audit.Record{}, fmt.Errorf("postcall: no pending call for session %q", sessionID)
	}

	st, err := f.sessions.Load(sessionID)
	if err != nil {
		span.RecordError(err)
		return audit.Record{}, fmt.Errorf("load session: %w", err)
	}

	status := result.Status
	if status == "" {
		status = audit.StatusSuccess
		if pc.eval.Decision == policy.DecisionDeny && pc.eval.Enforced {
			status = audit.StatusBlocked
		}
	}

	var durationMs *int64
	if result.Duration > 0 {
		ms := result.Duration.Milliseconds()
		durationMs = &ms
	}

	chain, err := f.chainFor(sessionID, st)
	if err != nil {
		span.RecordError(err)
		return audit.Record{}, fmt.Errorf("open audit chain: %w", err)
	}

	rec, err := chain.Record(
		pc.r6.ID,
		sessionID,
		st.ActionIndex,
		pc.r6.Request.ToolName,
		pc.r6.Request.Category,
		pc.r6.Request.Target,
		pc.r6.Request.Targets,
		audit.Result{
			Status:       status,
			OutputHash:   result.OutputHash,
			ErrorMessage: result.ErrorMessage,
			DurationMs:   durationMs,
		},
	)
	if err != nil {
		span.RecordError(err)
		return audit.Record{}, fmt.Errorf("append audit record: %w", err)
	}
	if f.metrics != nil {
		f.metrics.AuditRecordsTotal.WithLabelValues(string(status)).Inc()
	}

	// Only count the action against its rate-limit budgets if it was
	// actually admitted; a blocked call never reached the tool.
	if status != audit.StatusBlocked {
		for _, key := range pc.ruleKeys {
			if err := f.limiter.Record(ctx, key); err != nil {
				f.logger.Warn("rate limit record failed", "key", key, "error", err)
			}
		}
	}

	st.RecordAction(pc.r6.Request.ToolName, pc.r6.Request.Category, pc.r6.ID)
	st.PolicyEntityID = f.policyEntityID
	if err := f.sessions.Save(st); err != nil {
		span.RecordError(err)
		return audit.Record{}, fmt.Errorf("save session: %w", err)
	}

	eventType := event.TypeAuditRecord
	severity := event.SeverityInfo
	if status == audit.StatusBlocked {
		eventType = event.TypeAuditAlert
		severity = event.SeverityAlert
	}
	f.emit(event.Event{
		Type:       eventType,
		Severity:   severity,
		SessionID:  sessionID,
		Tool:       rec.Tool,
		Category:   rec.Category,
		Target:     rec.Target,
		Decision:   string(pc.eval.Decision),
		DurationMs: durationMs,
	})

	return rec, nil
}

// chainFor returns the cached FileChain for sessionID, opening and caching
// one if this is the first call in this process for that session.
func (f *Facade) chainFor(sessionID string, st *session.State) (audit.Chain, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.chains[sessionID]; ok {
		return c, nil
	}

	kp, err := signer.FromHex(st.PublicKeyHex, st.PrivateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("reconstruct session signing key: %w", err)
	}
	chain, err := f.opener(sessionID, &kp)
	if err != nil {
		return nil, err
	}
	f.chains[sessionID] = chain
	if f.metrics != nil {
		f.metrics.ActiveSessions.Set(float64(len(f.chains)))
	}
	return chain, nil
}

func (f *Facade) emit(e event.Event) {
	if f.stream == nil {
		return
	}
	if err := f.stream.Emit(e); err != nil {
		f.logger.Warn("event emit failed", "type", e.Type, "error", err)
	}
}

func sensitivityReason(c classifier.Classification) string {
	switch {
	case c.IsCredential && c.IsMemory:
		return "target matches both a credential path and an agent memory path"
	case c.IsCredential:
		return "target matches a credential path pattern"
	default:
		return "target matches an agent memory path pattern"
	}
}
