package r6

import (
	"strings"
	"testing"
	"time"
)

func TestBuildSetsBindingAndDefaults(t *testing.T) {
	req, err := Build(Params{
		SessionID:   "sess_1",
		ActionIndex: 3,
		ToolName:    "Bash",
		Category:    "command",
		InputHash:   "abcd1234abcd1234",
		Now:         time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}
	if req.Role.BindingType != BindingSoftLCT {
		t.Errorf("expected bindingType %q, got %q", BindingSoftLCT, req.Role.BindingType)
	}
	if req.Rules.AuditLevel != AuditStandard {
		t.Errorf("expected default audit level standard, got %q", req.Rules.AuditLevel)
	}
	if req.Reference.ChainPosition != 3 {
		t.Errorf("expected chain position to mirror actionIndex, got %d", req.Reference.ChainPosition)
	}
	if !strings.HasPrefix(req.ID, "r6:") {
		t.Errorf("expected id prefixed r6:, got %q", req.ID)
	}
	if len(req.ID) != len("r6:")+8 {
		t.Errorf("expected 8 hex char id suffix, got %q", req.ID)
	}
}

func TestNewIDIsRandomAndPrefixed(t *testing.T) {
	a, err := NewID()
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewID()
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("expected two generated ids to differ")
	}
}
