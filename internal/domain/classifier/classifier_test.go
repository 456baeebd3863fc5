package classifier

import "testing"

func TestBaseCategoryMapping(t *testing.T) {
	cases := map[string]Category{
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
		"SomeMCPTool":  CategoryUnknown,
	}
	for tool, want := range cases {
		if got := BaseCategory(tool); got != want {
			t.Errorf("BaseCategory(%q) = %v, want %v", tool, got, want)
		}
	}
}

func TestCredentialEscalation(t *testing.T) {
	c := Classify("Read", map[string]any{"file_path": "/home/u/.env"})
	if c.Category != CategoryCredentialAccess {
		t.Errorf("expected credential_access, got %v", c.Category)
	}

	c2 := Classify("Read", map[string]any{"file_path": "/src/main.c"})
	if c2.Category != CategoryFileRead {
		t.Errorf("expected file_read, got %v", c2.Category)
	}
}

func TestCredentialPatterns(t *testing.T) {
	yes := []string{
		"/home/u/.env", "/home/u/.env.local", "/root/credentials.json",
		"/root/secrets.yaml", "/home/u/.aws/credentials", "/home/u/.ssh/id_rsa",
		"/home/u/.ssh/known_hosts", "/home/u/.netrc", "/home/u/.pgpass",
		"/home/u/.npmrc", "/home/u/.pypirc", "token123.json", "auth_config.json",
		"apikey.txt",
	}
	for _, p := range yes {
		if !IsCredentialPath(p) {
			t.Errorf("expected %q to be a credential path", p)
		}
	}

	no := []string{"/src/main.go", "/home/u/readme.md", "/home/u/config.json"}
	for _, p := range no {
		if IsCredentialPath(p) {
			t.Errorf("expected %q to NOT be a credential path", p)
		}
	}
}

func TestMemoryPaths(t *testing.T) {
	yes := []string{"MEMORY.md", "memory.md", "project/memory/notes.md", "/a/.moltbot/x/memory/y"}
	for _, p := range yes {
		if !IsMemoryPath(p) {
			t.Errorf("expected %q to be a memory path", p)
		}
	}
}

func TestSecondaryTargetExtractionFromBash(t *testing.T) {
	c := Classify("Bash", map[string]any{"command": "cat /etc/passwd && rm -rf ./build/out.log"})
	found := false
	for _, s := range c.Secondary {
		if s == "/etc/passwd" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected /etc/passwd in secondary targets, got %v", c.Secondary)
	}
}

func TestSecondaryExcludesDevProcSys(t *testing.T) {
	c := Classify("Bash", map[string]any{"command": "cat /dev/null /proc/cpuinfo /sys/kernel/x"})
	if len(c.Secondary) != 0 {
		t.Errorf("expected no secondary targets from /dev,/proc,/sys paths, got %v", c.Secondary)
	}
}

func TestPrimaryTruncation(t *testing.T) {
	long := ""
	for i := 0; i < 120; i++ {
		long += "a"
	}
	c := Classify("Bash", map[string]any{"command": long})
	if len(c.Primary) != primaryTruncateLen+len("…") {
		t.Errorf("expected truncated primary, got len %d", len(c.Primary))
	}
}

func TestInputHashDeterministic(t *testing.T) {
	p := map[string]any{"b": 1, "a": 2}
	h1 := InputHash(p)
	h2 := InputHash(p)
	if h1 != h2 || len(h1) != 16 {
		t.Errorf("expected deterministic 16-char hash, got %q/%q", h1, h2)
	}
}
