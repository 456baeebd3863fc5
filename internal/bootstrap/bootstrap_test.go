package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/web4/governance/internal/config"
	"github.com/web4/governance/internal/domain/audit"
	"github.com/web4/governance/internal/service"
)

func testConfig(t *testing.T) *config.GovernanceConfig {
	t.Helper()
	cfg := &config.GovernanceConfig{
		Storage: config.StorageConfig{Root: t.TempDir()},
		Policy: config.PolicyConfig{
			Preset:        "safety",
			Enforce:       true,
			DefaultPolicy: "allow",
		},
	}
	cfg.SetDefaults()
	return cfg
}

func TestBootstrapWiresFacadeAndWitnessesPolicyLoad(t *testing.T) {
	cfg := testConfig(t)
	reg := prometheus.NewRegistry()

	gov, err := Bootstrap(cfg, reg, nil)
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	defer func() { _ = gov.Close(context.Background()) }()

	if gov.Facade == nil {
		t.Fatal("expected a non-nil Facade")
	}
	if gov.PolicyEntityID == "" {
		t.Fatal("expected a non-empty policy entity id")
	}

	witnessPath := filepath.Join(cfg.Storage.Root, "witnesses.jsonl")
	data, err := os.ReadFile(witnessPath)
	if err != nil {
		t.Fatalf("read witness ledger: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected the policy bundle load to be witnessed on bootstrap")
	}
}

func TestBootstrapPreCallPostCallRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	gov, err := Bootstrap(cfg, prometheus.NewRegistry(), nil)
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	defer func() { _ = gov.Close(context.Background()) }()

	ctx := context.Background()
	verdict, err := gov.Facade.PreCall(ctx, "sess-bootstrap", "", "Glob", map[string]any{"pattern": "*.go"})
	if err != nil {
		t.Fatalf("PreCall: %v", err)
	}
	if !verdict.Allowed {
		t.Fatalf("expected Glob to be allowed under the safety preset, got %+v", verdict)
	}

	rec, err := gov.Facade.PostCall(ctx, "sess-bootstrap", service.CallResult{Status: audit.StatusSuccess})
	if err != nil {
		t.Fatalf("PostCall: %v", err)
	}
	if rec.Provenance.ActionIndex != 0 {
		t.Errorf("expected the first recorded action to have index 0, got %d", rec.Provenance.ActionIndex)
	}
}
