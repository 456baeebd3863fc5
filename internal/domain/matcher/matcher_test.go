package matcher

import (
	"strings"
	"testing"
)

func TestGlobToRegexAnchoring(t *testing.T) {
	cases := []struct {
		pattern string
		target  string
		want    bool
	}{
		{"*.env", "/home/u/.env", false}, // "*" does not cross "/", so a path with slashes does not match
		{"*.env", ".env", true},
		{"/src/*.go", "/src/main.go", true},
		{"/src/*.go", "/src/pkg/main.go", false},
		{"/src/**", "/src/pkg/main.go", true},
		{"/src/**", "/src", false},
		{"**/memory/*.md", "a/b/memory/notes.md", true},
		{"**/memory/*.md", "memory/notes.md", true},
		{"file?.txt", "file1.txt", true},
		{"file?.txt", "file12.txt", false},
		{"literal", "literalsubstring", false}, // must be full match, not substring
	}

	for _, c := range cases {
		re, err := CompileGlob(c.pattern)
		if err != nil {
			t.Fatalf("CompileGlob(%q): %v", c.pattern, err)
		}
		got := re.MatchString(c.target)
		if got != c.want {
			t.Errorf("glob %q vs %q = %v, want %v", c.pattern, c.target, got, c.want)
		}
	}
}

func TestValidateRegexPatternRejectsReDoS(t *testing.T) {
	bad := []string{
		"(.*)+",
		"(a+)+",
		"(.*|.+)+",
		"a{1,10}{1,10}",
		strings.Repeat("a", 501),
	}
	for _, p := range bad {
		if err := ValidateRegexPattern(p); err == nil {
			t.Errorf("expected ValidateRegexPattern(%q) to reject", p)
		}
	}
}

func TestValidateRegexPatternAcceptsSafe(t *testing.T) {
	good := []string{
		`^/etc/.*\.conf$`,
		`rm\s+-[a-zA-Z]+.*`,
		`[a-z]+`,
	}
	for _, p := range good {
		if err := ValidateRegexPattern(p); err != nil {
			t.Errorf("expected ValidateRegexPattern(%q) to accept, got %v", p, err)
		}
	}
}

func TestCriteriaANDCombination(t *testing.T) {
	c := Criteria{
		Tools:          []string{"Bash"},
		Categories:     []string{"command"},
		TargetPatterns: []string{"rm **"},
	}
	cc, err := Compile(c)
	if err != nil {
		t.Fatal(err)
	}

	if !cc.Matches("Bash", "command", "rm -rf /tmp") {
		t.Error("expected match")
	}
	if cc.Matches("Read", "command", "rm -rf /tmp") {
		t.Error("expected tool mismatch to fail")
	}
	if cc.Matches("Bash", "file_read", "rm -rf /tmp") {
		t.Error("expected category mismatch to fail")
	}
	if cc.Matches("Bash", "command", "ls -la") {
		t.Error("expected target mismatch to fail")
	}
}

func TestEmptyCriteriaMatchesEverything(t *testing.T) {
	cc, err := Compile(Criteria{})
	if err != nil {
		t.Fatal(err)
	}
	if !cc.Matches("AnyTool", "anything", "anything") {
		t.Error("empty criteria should match everything")
	}
}
