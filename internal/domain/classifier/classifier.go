// Package classifier maps tool calls to governance categories, detects
// credential- and memory-sensitive targets, and extracts the primary and
// secondary targets a tool call touches from its untyped parameter bag.
package classifier

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"sort"
	"strings"
)

// Category is one of the fixed governance categories a tool call can fall
// into, per the classification table.
type Category string

const (
	CategoryFileRead         Category = "file_read"
	CategoryFileWrite        Category = "file_write"
	CategoryCredentialAccess Category = "credential_access"
	CategoryCommand          Category = "command"
	CategoryNetwork          Category = "network"
	CategoryDelegation       Category = "delegation"
	CategoryState            Category = "state"
	CategoryMCP              Category = "mcp"
	CategoryUnknown          Category = "unknown"
)

// baseCategoryByTool is the fixed tool-name to base-category mapping.
var baseCategoryByTool = map[string]Category{
	"Read":         CategoryFileRead,
	"Glob":         CategoryFileRead,
	"Grep":         CategoryFileRead,
	"Write":        CategoryFileWrite,
	"Edit":         CategoryFileWrite,
	"NotebookEdit": CategoryFileWrite,
	"Bash":         CategoryCommand,
	"WebFetch":     CategoryNetwork,
	"WebSearch":    CategoryNetwork,
	"Task":         CategoryDelegation,
	"TodoWrite":    CategoryState,
}

// BaseCategory returns the fixed base category for a tool name, before any
// credential-path escalation. Unknown tool names return CategoryUnknown.
func BaseCategory(tool string) Category {
	if c, ok := baseCategoryByTool[tool]; ok {
		return c
	}
	return CategoryUnknown
}

// credentialPatterns match credential-bearing paths (case-insensitive),
// evaluated against the full target string.
var credentialPatterns = compileAll([]string{
	`\.env$`, `\.env\..+$`,
	`credentials?\..+$`,
	`secrets?\..+$`,
	`\.aws/credentials$`,
	`\.ssh/id_[^/]+$`, `\.ssh/known_hosts$`,
	`\.netrc$`, `\.pgpass$`, `\.npmrc$`, `\.pypirc$`,
	`token[^/]*\.json$`, `auth[^/]*\.json$`, `apikey[^/]*`,
})

// memoryPatterns flag agent-memory paths for sensitivity alerting only;
// they never escalate the tool category.
var memoryPatterns = compileAll([]string{
	`(^|/)memory\.md$`,
	`(^|/)MEMORY\.md$`,
	`(^|/)memory/[^/]+\.md$`,
	`\.moltbot/.*memory`,
	`\.clawdbot/.*memory`,
	`\.openclaw/.*memory`,
})

func compileAll(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile("(?i)"+p))
	}
	return out
}

// IsCredentialPath reports whether target matches a credential-bearing path
// pattern.
func IsCredentialPath(target string) bool {
	return anyMatch(credentialPatterns, target)
}

// IsMemoryPath reports whether target matches an agent-memory path pattern.
func IsMemoryPath(target string) bool {
	return anyMatch(memoryPatterns, target)
}

func anyMatch(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// Classification is the result of classifying a single tool call.
type Classification struct {
	Category     Category
	Primary      string
	Secondary    []string
	IsCredential bool
	IsMemory     bool
	InputHash    string
}

// primaryKeys lists, in priority order, the parameter keys inspected for the
// primary target.
var primaryKeys = []string{"file_path", "path", "pattern", "command", "url"}

const primaryTruncateLen = 80

// absolutePathRe matches absolute paths; paths under excludedAbsPrefixes
// (/dev/, /proc/, /sys/) are dropped afterwards by extractSecondary.
var absolutePathRe = regexp.MustCompile(`(^|\s)(/[^\s;|&<>'"]+)`)

// relativeExtPathRe matches relative paths that carry a file extension.
var relativeExtPathRe = regexp.MustCompile(`(\.{0,2}/[^\s;|&<>'"]+\.[A-Za-z0-9]+)`)

// homeRelativeRe matches home-relative paths.
var homeRelativeRe = regexp.MustCompile(`(~/[^\s;|&<>'"]+)`)

// quotedPathRe matches quoted or backticked paths in free text (Task prompts).
var quotedPathRe = regexp.MustCompile("[`'\"]([/~][^`'\"]+)[`'\"]")

var excludedAbsPrefixes = []string{"/dev/", "/proc/", "/sys/"}

// Classify computes the full classification for a tool call: base category
// with credential escalation, primary/secondary targets, and an input hash
// over the canonical JSON serialization of params.
func Classify(tool string, params map[string]any) Classification {
	cat := BaseCategory(tool)

	primary := extractPrimary(params)
	secondary := extractSecondary(tool, params)

	target := primary
	if target == "" && len(secondary) > 0 {
		target = secondary[0]
	}

	isCred := IsCredentialPath(target)
	for _, s := range secondary {
		if IsCredentialPath(s) {
			isCred = true
			break
		}
	}

	if (cat == CategoryFileRead || cat == CategoryFileWrite) && isCred {
		cat = CategoryCredentialAccess
	}

	isMem := IsMemoryPath(target)
	for _, s := range secondary {
		if IsMemoryPath(s) {
			isMem = true
			break
		}
	}

	return Classification{
		Category:     cat,
		Primary:      primary,
		Secondary:    dedupAndFilter(secondary, primary),
		IsCredential: isCred,
		IsMemory:     isMem,
		InputHash:    InputHash(params),
	}
}

func extractPrimary(params map[string]any) string {
	for _, k := range primaryKeys {
		v, ok := params[k]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok || s == "" {
			continue
		}
		if k == "command" && len(s) > primaryTruncateLen {
			return s[:primaryTruncateLen] + "…"
		}
		return s
	}
	return ""
}

func extractSecondary(tool string, params map[string]any) []string {
	var out []string
	seen := map[string]struct{}{}
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		for _, p := range excludedAbsPrefixes {
			if strings.HasPrefix(s, p) {
				return
			}
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	for _, k := range []string{"file_path", "path", "pattern", "glob"} {
		if v, ok := params[k].(string); ok {
			add(v)
		}
	}

	if cmd, ok := params["command"].(string); ok {
		extractPathsFromText(cmd, add)
	}

	if tool == "Task" {
		if prompt, ok := params["prompt"].(string); ok {
			extractPathsFromText(prompt, add)
			for _, m := range quotedPathRe.FindAllStringSubmatch(prompt, -1) {
				add(m[1])
			}
		}
	}

	sort.Strings(out)
	return out
}

func extractPathsFromText(s string, add func(string)) {
	for _, m := range absolutePathRe.FindAllStringSubmatch(s, -1) {
		add(m[2])
	}
	for _, m := range relativeExtPathRe.FindAllString(s, -1) {
		add(m)
	}
	for _, m := range homeRelativeRe.FindAllString(s, -1) {
		add(m)
	}
}

// dedupAndFilter removes primary from secondary and only returns secondary
// when it differs from or exceeds the singleton {primary}.
func dedupAndFilter(secondary []string, primary string) []string {
	var filtered []string
	for _, s := range secondary {
		if s == primary {
			continue
		}
		filtered = append(filtered, s)
	}
	if len(filtered) == 0 {
		return nil
	}
	return filtered
}

// InputHash computes the first 16 hex characters of SHA-256 over the
// canonical JSON serialization of params. encoding/json sorts map[string]any
// keys when marshaling, which gives deterministic output across calls.
func InputHash(params map[string]any) string {
	canon, _ := json.Marshal(params)
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:])[:16]
}
