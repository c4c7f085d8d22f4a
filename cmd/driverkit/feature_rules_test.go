//go:build !no_rules

package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRulesCommand(t *testing.T) {
	rule := `-- {"name": "Needs capabilities", "description": "flag empty drivers"}
if #driver.capabilities == 0 then
  rule.error("no capabilities")
end
`
	// execute switches into a fresh directory, so rules are written after
	// the first call and read back by the later ones.
	out, err := execute(t, "drivers", "rules")
	if err != nil {
		t.Fatal(err)
	}
	if lines := strings.Split(strings.TrimSpace(out), "\n"); len(lines) != 1 || !strings.HasPrefix(lines[0], "RULE") {
		t.Errorf("empty rules output = %q", out)
	}

	cwd, _ := os.Getwd()
	dir := filepath.Join(cwd, "rules")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "caps.lua"), []byte(rule), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.lua"), []byte("if then"), 0o644); err != nil {
		t.Fatal(err)
	}

	list, code := newRootCmd(), new(strings.Builder)
	list.SetOut(code)
	list.SetArgs([]string{"rules"})
	err = list.Execute()
	if err == nil || !strings.Contains(err.Error(), "broken") {
		t.Errorf("list err = %v, want broken rule reported", err)
	}
	lines := strings.Split(strings.TrimSpace(code.String()), "\n")
	if len(lines) != 2 || !strings.Contains(lines[1], "caps") || !strings.Contains(lines[1], "Needs capabilities") {
		t.Errorf("rules = %q", lines)
	}

	get, src := newRootCmd(), new(strings.Builder)
	get.SetOut(src)
	get.SetArgs([]string{"rules", "caps"})
	if err := get.Execute(); err != nil {
		t.Fatal(err)
	}
	if src.String() != rule {
		t.Errorf("rule source = %q", src.String())
	}

	bad := newRootCmd()
	bad.SetOut(new(strings.Builder))
	bad.SetArgs([]string{"rules", "../driverkit"})
	if err := bad.Execute(); err == nil {
		t.Error("path-like rule id accepted")
	}
}
