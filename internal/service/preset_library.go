package service

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/web4/governance/internal/domain/policy"
	"github.com/web4/governance/internal/domain/ratelimit"
)

// BuildConfig resolves a named preset (if any) and appends customRules after
// the preset's own rules, producing the Config a PolicyEngine is built from.
// An empty preset name yields a custom-only config using the caller's
// defaultPolicy and enforce. With a preset, the preset's own default policy
// and enforce flag are used and the caller's defaultPolicy/enforce are
// ignored.
func BuildConfig(presetName string, customRules []policy.Rule, defaultPolicy policy.Decision, enforce bool) (policy.Config, error) {
	var cfg policy.Config
	if presetName != "" {
		p, ok := policy.Preset(presetName)
		if !ok {
			return policy.Config{}, fmt.Errorf("%w: unknown preset %q", ErrConfigInvalid, presetName)
		}
		cfg = p
	} else {
		cfg = policy.Config{DefaultPolicy: defaultPolicy, Enforce: enforce}
	}
	cfg.Rules = append(append([]policy.Rule{}, cfg.Rules...), customRules...)
	return cfg, nil
}

// ConfigHash returns the sha256 hex digest of cfg's canonical JSON encoding,
// used both as part of the policy entity id and as the witness ledger's
// content-address for a bundle load.
func ConfigHash(cfg policy.Config) (string, error) {
	b, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal policy config: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// EntityVersion computes the content-addressed policy entity id for cfg:
// "policy:<preset-or-custom>:<uuid-version-suffix>:<sha256-hex-of-config>".
// The uuid suffix disambiguates reloads of an otherwise-identical config
// (e.g. after a preset's rule set is amended upstream) within one process.
func EntityVersion(cfg policy.Config) (string, error) {
	name := cfg.Preset
	if name == "" {
		name = "custom"
	}
	hash, err := ConfigHash(cfg)
	if err != nil {
		return "", err
	}
	version := uuid.New().String()[:8]
	return policy.EntityID(name, version, hash), nil
}

// NewEngine is the top-level constructor combining preset resolution,
// custom-rule merging, and PolicyEngine compilation.
func NewEngine(presetName string, customRules []policy.Rule, defaultPolicy policy.Decision, enforce bool, limiter ratelimit.Limiter, logger *slog.Logger) (*PolicyEngine, policy.Config, error) {
	cfg, err := BuildConfig(presetName, customRules, defaultPolicy, enforce)
	if err != nil {
		return nil, policy.Config{}, err
	}
	engine, err := NewPolicyEngine(cfg, limiter, logger)
	if err != nil {
		return nil, policy.Config{}, err
	}
	return engine, cfg, nil
}
