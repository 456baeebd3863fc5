package cel

import (
	"strings"
	"testing"
)

func TestCompileAndEvaluateSimpleExpression(t *testing.T) {
	ev, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}

	prg, err := ev.Compile(`tool == "Bash" && category == "execute"`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	ok, err := ev.Evaluate(prg, Vars{Tool: "Bash", Category: "execute"})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !ok {
		t.Error("expected the expression to evaluate true for a matching Bash/execute call")
	}

	ok, err = ev.Evaluate(prg, Vars{Tool: "Read", Category: "execute"})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if ok {
		t.Error("expected the expression to evaluate false for a non-Bash tool")
	}
}

func TestEvaluateAgainstParamsAndTargets(t *testing.T) {
	ev, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}

	prg, err := ev.Compile(`"staging" in targets && params["force"] == true`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	ok, err := ev.Evaluate(prg, Vars{
		Targets: []string{"staging", "prod"},
		Params:  map[string]any{"force": true},
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !ok {
		t.Error("expected the expression to evaluate true")
	}
}

func TestValidateRejectsEmptyExpression(t *testing.T) {
	ev, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	if err := ev.Validate(""); err == nil {
		t.Error("expected an error for an empty expression")
	}
}

func TestValidateRejectsOverlongExpression(t *testing.T) {
	ev, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	expr := `tool == "Bash" || ` + strings.Repeat("x", maxExpressionLength)
	if err := ev.Validate(expr); err == nil {
		t.Error("expected an error for an overlong expression")
	}
}

func TestValidateRejectsDeeplyNestedExpression(t *testing.T) {
	ev, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	expr := strings.Repeat("(", maxNestingDepth+1) + "true" + strings.Repeat(")", maxNestingDepth+1)
	if err := ev.Validate(expr); err == nil {
		t.Error("expected an error for an expression nested beyond the depth guard")
	}
}

func TestEvaluateRejectsNonBooleanExpression(t *testing.T) {
	ev, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	prg, err := ev.Compile(`"not-a-bool"`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if _, err := ev.Evaluate(prg, Vars{}); err == nil {
		t.Error("expected evaluating a non-boolean result to error")
	}
}

func TestCompileRejectsSyntaxError(t *testing.T) {
	ev, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	if _, err := ev.Compile(`tool ==`); err == nil {
		t.Error("expected a compile error for malformed CEL syntax")
	}
}
