package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// RegisterCustomValidators registers governance-gate-specific validation
// rules. Must be called before validating GovernanceConfig.
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("policyaction", validatePolicyAction); err != nil {
		return fmt.Errorf("register policyaction validator: %w", err)
	}
	if err := v.RegisterValidation("globortargetpattern", validateGlobOrTargetPattern); err != nil {
		return fmt.Errorf("register globortargetpattern validator: %w", err)
	}
	return nil
}

// validatePolicyAction validates a decision string: allow, warn, or deny.
func validatePolicyAction(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "allow", "warn", "deny":
		return true
	default:
		return false
	}
}

// validateGlobOrTargetPattern rejects empty patterns and regex patterns
// that fail to compile, so a malformed rule is caught at load time instead
// of on the first tool call it's evaluated against. Glob patterns (the
// common case) are accepted as-is; they are compiled by matcher.CompileGlob
// at PolicyEngine construction, where a failure wraps ErrConfigInvalid.
func validateGlobOrTargetPattern(fl validator.FieldLevel) bool {
	pattern := fl.Field().String()
	if pattern == "" {
		return false
	}
	if looksLikeRegex(pattern) {
		_, err := regexp.Compile(pattern)
		return err == nil
	}
	return true
}

// looksLikeRegex is a light heuristic: a pattern containing characters glob
// syntax never uses (anchors, character-class quantifiers, alternation
// groups) is treated as a regex for validation purposes.
func looksLikeRegex(pattern string) bool {
	return strings.ContainsAny(pattern, "^$|()+")
}

// Validate validates the GovernanceConfig using struct tags and cross-field
// rules.
func (c *GovernanceConfig) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateRuleIDsUnique(); err != nil {
		return err
	}

	return nil
}

// validateRuleIDsUnique ensures no two custom rules share an ID, since
// PolicyEngine indexes matched rules by ID for cache resolution.
func (c *GovernanceConfig) validateRuleIDsUnique() error {
	seen := make(map[string]struct{}, len(c.Policy.Rules))
	for _, r := range c.Policy.Rules {
		if _, ok := seen[r.ID]; ok {
			return fmt.Errorf("policy.rules: duplicate rule id %q", r.ID)
		}
		seen[r.ID] = struct{}{}
	}
	return nil
}

func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		messages := make([]string, 0, len(validationErrors))
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "policyaction":
		return fmt.Sprintf("%s must be one of: allow, warn, deny", field)
	case "globortargetpattern":
		return fmt.Sprintf("%s must be a non-empty glob or valid regex pattern", field)
	case "min", "max":
		return fmt.Sprintf("%s must be %s %s", field, e.Tag(), e.Param())
	case "len":
		return fmt.Sprintf("%s must have exactly %s elements", field, e.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}
