// Package bootstrap wires a loaded config.GovernanceConfig into a running
// service.Facade: it is the one place that knows about every adapter and
// every concrete constructor, so the rest of the module can depend on
// interfaces only.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/web4/governance/internal/adapter/outbound/eventstream"
	ratelimitadapter "github.com/web4/governance/internal/adapter/outbound/ratelimit"
	sessionadapter "github.com/web4/governance/internal/adapter/outbound/session"
	"github.com/web4/governance/internal/adapter/outbound/witness"
	"github.com/web4/governance/internal/config"
	"github.com/web4/governance/internal/domain/event"
	"github.com/web4/governance/internal/domain/policy"
	"github.com/web4/governance/internal/service"
	"github.com/web4/governance/internal/telemetry"
)

// Governance bundles a running Facade together with the supporting
// components a host process needs to manage its lifecycle: the witness
// ledger (for inspection) and the OTel providers (for shutdown).
type Governance struct {
	Facade         *service.Facade
	Config         policy.Config
	PolicyEntityID string
	Witness        *witness.Ledger
	Providers      *telemetry.Providers

	stream  event.Stream
	limiter io.Closer
}

// Close shuts down the event stream, the durable rate-limit sink (if any),
// and the OTel providers. Session files hold no handles between calls. The
// audit chains the Facade has opened keep their log files open and are not
// closed here; every record is fsynced when it is appended.
func (g *Governance) Close(ctx context.Context) error {
	var firstErr error
	if err := g.stream.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close event stream: %w", err)
	}
	if g.limiter != nil {
		if err := g.limiter.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close rate limiter: %w", err)
		}
	}
	if err := g.Providers.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Bootstrap constructs every adapter named in cfg and wires them into a
// single service.Facade: the durable rate limiter, the file-backed session
// store, the JSONL event stream, the witness ledger, OTel tracing/metrics,
// and the policy engine built from cfg's preset and custom rules.
//
// reg may be nil, in which case prometheus.DefaultRegisterer is used.
func Bootstrap(cfg *config.GovernanceConfig, reg prometheus.Registerer, logger *slog.Logger) (*Governance, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	if err := os.MkdirAll(cfg.Storage.Root, 0700); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}

	limiter := ratelimitadapter.NewLimiter(cfg.RateLimit.SQLitePath, logger)

	engine, policyCfg, err := service.NewEngine(cfg.Policy.Preset, cfg.ToPolicyRules(), policy.Decision(cfg.Policy.DefaultPolicy), cfg.Policy.Enforce, limiter, logger)
	if err != nil {
		return nil, fmt.Errorf("build policy engine: %w", err)
	}

	policyEntityID, err := service.EntityVersion(policyCfg)
	if err != nil {
		return nil, fmt.Errorf("compute policy entity version: %w", err)
	}

	configHash, err := service.ConfigHash(policyCfg)
	if err != nil {
		return nil, fmt.Errorf("compute policy config hash: %w", err)
	}

	witnessLedger, err := witness.NewLedger(filepath.Join(cfg.Storage.Root, "witnesses.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("open witness ledger: %w", err)
	}
	if _, err := witnessLedger.Witness(policyEntityID, len(policyCfg.Rules), configHash); err != nil {
		return nil, fmt.Errorf("witness policy bundle load: %w", err)
	}

	sessions := sessionadapter.NewFileStore(filepath.Join(cfg.Storage.Root, "sessions"), logger)

	stream, err := eventstream.NewFileStream(filepath.Join(cfg.Storage.Root, "events.jsonl"), event.Severity(cfg.EventStream.MinSeverity), logger)
	if err != nil {
		return nil, fmt.Errorf("open event stream: %w", err)
	}

	providers, err := telemetry.InitStdoutTracing("governance-gate", os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	metrics := telemetry.NewMetrics(reg)

	opener := service.NewFileChainOpener(filepath.Join(cfg.Storage.Root, "audit"), logger)

	facade := service.NewFacade(engine, sessions, limiter, stream, opener, metrics, policyEntityID, logger)

	limiterCloser, _ := limiter.(io.Closer)

	return &Governance{
		Facade:         facade,
		Config:         policyCfg,
		PolicyEntityID: policyEntityID,
		Witness:        witnessLedger,
		Providers:      providers,
		stream:         stream,
		limiter:        limiterCloser,
	}, nil
}
