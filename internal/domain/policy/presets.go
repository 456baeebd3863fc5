package policy

// Preset names recognized by the PresetLibrary.
const (
	PresetPermissive = "permissive"
	PresetSafety     = "safety"
	PresetStrict     = "strict"
	PresetAuditOnly  = "audit-only"
)

// destructiveCommandPattern matches "rm" followed by one or more flags
// (e.g. "rm -rf", "rm -f"), per the stricter interpretation of the
// safety preset's destructive-command rule: any flagged rm invocation
// denies, a bare "rm <path>" only warns.
const destructiveCommandPattern = `(^|;|&&|\|\|)\s*rm\s+-[A-Za-z]+`

// mkfsCommandPattern matches any "mkfs." invocation.
const mkfsCommandPattern = `(^|;|&&|\|\|)\s*mkfs\.[A-Za-z0-9]+`

// bareRmPattern matches "rm" followed by a path with no leading flag.
const bareRmPattern = `(^|;|&&|\|\|)\s*rm\s+[^-\s]`

// memoryFileGlobs are the glob patterns used by warn-memory-write.
var memoryFileGlobs = []string{
	"MEMORY.md", "**/MEMORY.md",
	"memory.md", "**/memory.md",
	"**/memory/*.md",
}

// Preset returns the rule bundle and base config for a named preset. Custom
// rules supplied alongside a preset are concatenated after the preset's
// rules by the caller (PolicyEngine construction), not by this function.
func Preset(name string) (Config, bool) {
	switch name {
	case PresetPermissive:
		return Config{DefaultPolicy: DecisionAllow, Enforce: false, Preset: name}, true

	case PresetSafety:
		return Config{DefaultPolicy: DecisionAllow, Enforce: true, Preset: name, Rules: safetyRules()}, true

	case PresetStrict:
		return Config{
			DefaultPolicy: DecisionDeny,
			Enforce:       true,
			Preset:        name,
			Rules: []Rule{
				{
					ID: "allow-read-tools", Name: "Allow read-only tools", Priority: 1,
					Decision: DecisionAllow,
					Match:    Match{Tools: []string{"Read", "Glob", "Grep", "TodoWrite"}},
				},
			},
		}, true

	case PresetAuditOnly:
		cfg := Config{DefaultPolicy: DecisionAllow, Enforce: false, Preset: name, Rules: safetyRules()}
		return cfg, true

	default:
		return Config{}, false
	}
}

func safetyRules() []Rule {
	return []Rule{
		{
			ID: "deny-destructive-commands", Name: "Deny destructive commands", Priority: 1,
			Decision: DecisionDeny,
			Reason:   "destructive command with flags (rm -<flags> or mkfs.*) is blocked by the safety preset",
			Match: Match{
				Tools:                  []string{"Bash"},
				TargetPatterns:         []string{destructiveCommandPattern, mkfsCommandPattern},
				TargetPatternsAreRegex: true,
			},
		},
		{
			ID: "warn-file-delete", Name: "Warn on file delete", Priority: 2,
			Decision: DecisionWarn,
			Reason:   "bare rm invocation without flags",
			Match: Match{
				Tools:                  []string{"Bash"},
				TargetPatterns:         []string{bareRmPattern},
				TargetPatternsAreRegex: true,
			},
		},
		{
			// Matches on the category only. classifier.Classify sets
			// credential_access only for file_read/file_write tools whose
			// primary or secondary targets match its credentialPatterns;
			// credential-looking targets of other tools (Bash, WebFetch,
			// Task, ...) keep their base category and are not matched by
			// this rule.
			ID: "deny-secret-files", Name: "Deny secret file access", Priority: 5,
			Decision: DecisionDeny,
			Reason:   "credential-bearing file access is blocked by the safety preset",
			Match:    Match{Categories: []string{"credential_access"}},
		},
		{
			ID: "warn-memory-write", Name: "Warn on memory file write", Priority: 10,
			Decision: DecisionWarn,
			Reason:   "write to agent memory file",
			Match: Match{
				Categories:     []string{"file_write"},
				TargetPatterns: memoryFileGlobs,
			},
		},
		{
			ID: "warn-network", Name: "Warn on network access", Priority: 20,
			Decision: DecisionWarn,
			Reason:   "outbound network access",
			Match:    Match{Categories: []string{"network"}},
		},
	}
}
