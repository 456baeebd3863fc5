// Package matcher converts glob patterns to anchored regular expressions and
// validates regex patterns for ReDoS-prone constructs before they are used
// to evaluate policy rules.
package matcher

import (
	"fmt"
	"regexp"
	"strings"
)

// maxPatternLength is the maximum allowed length for a regex target pattern.
const maxPatternLength = 500

// globMetaReplacer escapes regex metacharacters that are not part of glob
// syntax, so they are treated literally once the pattern is compiled.
var globMetaReplacer = strings.NewReplacer(
	".", `\.`,
	"+", `\+`,
	"^", `\^`,
	"$", `\$`,
	"{", `\{`,
	"}", `\}`,
	"(", `\(`,
	")", `\)`,
	"|", `\|`,
	"[", `\[`,
	"]", `\]`,
	`\`, `\\`,
)

// GlobToRegex converts a glob pattern to an anchored regular expression
// string. Glob syntax: "?" matches one non-"/" character, "*" matches a run
// of non-"/" characters, "**" matches a run of characters including "/"
// (optionally absorbing one trailing "/"). All other regex metacharacters
// are treated literally.
func GlobToRegex(pattern string) string {
	var b strings.Builder
	b.WriteString("^")

	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '*':
			if i+1 < len(runes) && runes[i+1] == '*' {
				i++
				// "**/" absorbs the following slash into the match.
				if i+1 < len(runes) && runes[i+1] == '/' {
					i++
					b.WriteString("(?:.*/)?")
				} else {
					b.WriteString(".*")
				}
			} else {
				b.WriteString("[^/]*")
			}
		case '?':
			b.WriteString("[^/]")
		default:
			b.WriteString(globMetaReplacer.Replace(string(runes[i])))
		}
	}

	b.WriteString("$")
	return b.String()
}

// CompileGlob compiles a glob pattern into a regexp.Regexp.
func CompileGlob(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile(GlobToRegex(pattern))
}

// nestedQuantifierPatterns detects ReDoS-prone constructs: a quantified
// group that is itself quantified ((…*)+, (…+)+, (…+)*, (…+){m,n}) and
// alternations that mix a wildcard branch with a quantified group
// ((.*|…)+, (.+|…)+). chainedQuantifier detects a bounded-repetition group
// immediately followed by another quantifier ({m,n}{…}).
var (
	nestedQuantifierPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\([^()]*[*+][^()]*\)[*+]`),
		regexp.MustCompile(`\([^()]*[*+][^()]*\)\{\d+,?\d*\}`),
	}
	overlappingAlternation = regexp.MustCompile(`\([^()]*[.*+][^()]*\|[^()]*\)[*+]`)
	chainedQuantifier      = regexp.MustCompile(`\{\d+,?\d*\}\{`)
)

// ValidateRegexPattern rejects patterns that are uncompilable, too long, or
// structurally prone to catastrophic backtracking (ReDoS). It does not
// guarantee the pattern is safe against all adversarial inputs, only that
// the specific shapes named in the rejection list are caught.
func ValidateRegexPattern(pattern string) error {
	if len(pattern) > maxPatternLength {
		return fmt.Errorf("pattern too long: %d characters (max %d)", len(pattern), maxPatternLength)
	}

	if chainedQuantifier.MatchString(pattern) {
		return fmt.Errorf("pattern rejected: chained quantifier {m,n}{...} is not allowed")
	}

	for _, re := range nestedQuantifierPatterns {
		if re.MatchString(pattern) {
			return fmt.Errorf("pattern rejected: nested quantifier is not allowed")
		}
	}

	if overlappingAlternation.MatchString(pattern) {
		return fmt.Errorf("pattern rejected: overlapping alternation with wildcard is not allowed")
	}

	if _, err := regexp.Compile(pattern); err != nil {
		return fmt.Errorf("pattern does not compile: %w", err)
	}

	return nil
}

// Criteria is the AND-combined set of match conditions for a single rule.
// A zero-value field means "not constrained" (matches everything for that
// dimension); a non-nil-but-empty slice also means unconstrained, since an
// empty criteria set matches everything per spec.
type Criteria struct {
	Tools                  []string
	Categories             []string
	TargetPatterns         []string
	TargetPatternsAreRegex bool
}

// CompiledCriteria caches compiled patterns for repeated evaluation.
type CompiledCriteria struct {
	tools      map[string]struct{}
	categories map[string]struct{}
	patterns   []*regexp.Regexp
}

// Compile validates and compiles a Criteria for repeated use. Regex-mode
// patterns are validated with ValidateRegexPattern; glob-mode patterns are
// always safe by construction (no backtracking groups are introduced).
func Compile(c Criteria) (*CompiledCriteria, error) {
	cc := &CompiledCriteria{}

	if len(c.Tools) > 0 {
		cc.tools = make(map[string]struct{}, len(c.Tools))
		for _, t := range c.Tools {
			cc.tools[t] = struct{}{}
		}
	}

	if len(c.Categories) > 0 {
		cc.categories = make(map[string]struct{}, len(c.Categories))
		for _, cat := range c.Categories {
			cc.categories[cat] = struct{}{}
		}
	}

	for _, p := range c.TargetPatterns {
		var re *regexp.Regexp
		var err error
		if c.TargetPatternsAreRegex {
			if err = ValidateRegexPattern(p); err != nil {
				return nil, fmt.Errorf("invalid target pattern %q: %w", p, err)
			}
			re, err = regexp.Compile(p)
		} else {
			re, err = CompileGlob(p)
		}
		if err != nil {
			return nil, fmt.Errorf("invalid target pattern %q: %w", p, err)
		}
		cc.patterns = append(cc.patterns, re)
	}

	return cc, nil
}

// Matches reports whether (tool, category, target) satisfies every present
// clause of the criteria (AND-combined). Absent clauses never constrain.
func (cc *CompiledCriteria) Matches(tool, category, target string) bool {
	if cc.tools != nil {
		if _, ok := cc.tools[tool]; !ok {
			return false
		}
	}

	if cc.categories != nil {
		if _, ok := cc.categories[category]; !ok {
			return false
		}
	}

	if cc.patterns != nil {
		matched := false
		for _, re := range cc.patterns {
			if re.MatchString(target) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	return true
}

// Matches is the convenience, non-caching form of criteria evaluation: it
// compiles the criteria on every call. Callers that evaluate the same
// criteria repeatedly (e.g. PolicyEngine) should use Compile once and reuse
// the *CompiledCriteria.
func Matches(tool, category, target string, c Criteria) (bool, error) {
	cc, err := Compile(c)
	if err != nil {
		return false, err
	}
	return cc.Matches(tool, category, target), nil
}
