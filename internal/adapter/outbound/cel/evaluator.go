// Package cel provides the optional CEL-expression clause evaluator used by
// policy rules that set Match.Expression, adapted from a CEL-based RBAC
// evaluator: expression-length and nesting-depth guards, a runtime cost
// budget, and a context-bound evaluation timeout.
package cel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"
)

const (
	maxExpressionLength = 1024
	maxCostBudget       = 100_000
	maxNestingDepth     = 50
	evalTimeout         = 5 * time.Second
	interruptCheckFreq  = 100
)

// Vars is the evaluation context exposed to rule expressions.
type Vars struct {
	Tool     string
	Category string
	Target   string
	Targets  []string
	Params   map[string]any
}

// Evaluator compiles and evaluates CEL expressions against Vars.
type Evaluator struct {
	env *cel.Env
}

// NewEvaluator builds the CEL environment used by the governance engine:
// tool, category, target, targets, and params variables.
func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("tool", cel.StringType),
		cel.Variable("category", cel.StringType),
		cel.Variable("target", cel.StringType),
		cel.Variable("targets", cel.ListType(cel.StringType)),
		cel.Variable("params", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel environment: %w", err)
	}
	return &Evaluator{env: env}, nil
}

// Compile parses, validates, and type-checks expr, returning a ready-to-run
// program. Validation rejects overlong or deeply nested expressions before
// attempting compilation.
func (e *Evaluator) Compile(expr string) (cel.Program, error) {
	if err := e.Validate(expr); err != nil {
		return nil, err
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compilation failed: %w", issues.Err())
	}

	prg, err := e.env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
		cel.InterruptCheckFrequency(interruptCheckFreq),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation failed: %w", err)
	}
	return prg, nil
}

// Validate applies the cheap pre-compilation guards to expr: non-empty,
// within the length limit, and within the bracket-nesting limit. It does
// not parse or type-check expr; syntax errors surface from Compile, and a
// non-boolean result surfaces from Evaluate.
func (e *Evaluator) Validate(expr string) error {
	if expr == "" {
		return errors.New("expression is empty")
	}
	if len(expr) > maxExpressionLength {
		return fmt.Errorf("expression too long: %d characters (max %d)", len(expr), maxExpressionLength)
	}
	if err := validateNesting(expr); err != nil {
		return err
	}
	return nil
}

func validateNesting(expr string) error {
	var depth, maxDepth int
	for _, ch := range expr {
		switch ch {
		case '(', '[', '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ')', ']', '}':
			depth--
		}
	}
	if maxDepth > maxNestingDepth {
		return fmt.Errorf("expression nesting too deep: %d levels (max %d)", maxDepth, maxNestingDepth)
	}
	return nil
}

// Evaluate runs prg against vars with a bounded timeout, returning the
// boolean result.
func (e *Evaluator) Evaluate(prg cel.Program, vars Vars) (bool, error) {
	params := vars.Params
	if params == nil {
		params = map[string]any{}
	}
	activation, err := cel.NewActivation(map[string]any{
		"tool":     vars.Tool,
		"category": vars.Category,
		"target":   vars.Target,
		"targets":  vars.Targets,
		"params":   params,
	})
	if err != nil {
		return false, fmt.Errorf("build activation: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
	defer cancel()

	result, _, err := prg.ContextEval(ctx, activation)
	if err != nil {
		return false, fmt.Errorf("evaluation failed: %w", err)
	}

	b, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression did not return a boolean, got %T", result.Value())
	}
	return b, nil
}
