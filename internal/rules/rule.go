//go:build !no_rules

package rules

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

// RuleMeta is the optional JSON header on the first line of a rule file:
//
//	-- {"name": "Capabilities present", "enabled": true}
type RuleMeta struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Enabled     *bool  `json:"enabled,omitempty"` // nil means enabled
}

// Rule is one lint script.
type Rule struct {
	ID       string   `json:"id"` // filename stem
	Meta     RuleMeta `json:"meta"`
	LuaCode  string   `json:"lua_code"`
	FilePath string   `json:"-"`

	proto *lua.FunctionProto
}

// Enabled reports whether the rule should run.
func (r *Rule) Enabled() bool {
	return r.Meta.Enabled == nil || *r.Meta.Enabled
}

// validRuleID checks that a rule ID is safe to use as a filename component.
func validRuleID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`) && !strings.Contains(id, "..")
}

// Manager loads rule scripts from a directory.
type Manager struct {
	dir    string
	logger *slog.Logger
}

// NewManager creates a manager for dir. A missing directory holds no rules.
func NewManager(dir string, logger *slog.Logger) *Manager {
	return &Manager{dir: dir, logger: logger.With("component", "rules")}
}

// List parses and compiles every *.lua file, sorted by ID. Files that fail
// to compile are returned with an error each; the rest are still loaded.
func (m *Manager) List() ([]*Rule, []error) {
	if m.dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(m.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, []error{fmt.Errorf("read rules dir: %w", err)}
	}

	var rules []*Rule
	var errs []error
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".lua") {
			continue
		}
		r, err := m.parseFile(filepath.Join(m.dir, e.Name()))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		rules = append(rules, r)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules, errs
}

// Get loads a single rule by ID.
func (m *Manager) Get(id string) (*Rule, error) {
	if !validRuleID(id) {
		return nil, fmt.Errorf("invalid rule id: %q", id)
	}
	return m.parseFile(filepath.Join(m.dir, id+".lua"))
}

func (m *Manager) parseFile(path string) (*Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	r := &Rule{
		ID:       strings.TrimSuffix(filepath.Base(path), ".lua"),
		FilePath: path,
		LuaCode:  string(data),
	}

	first, _, _ := strings.Cut(r.LuaCode, "\n")
	if strings.HasPrefix(first, "-- {") {
		if err := json.Unmarshal([]byte(strings.TrimPrefix(first, "-- ")), &r.Meta); err != nil {
			m.logger.Warn("rule metadata parse error", "file", path, "err", err)
		}
	}
	if r.Meta.Name == "" {
		r.Meta.Name = r.ID
	}

	chunk, err := parse.Parse(strings.NewReader(r.LuaCode), r.ID+".lua")
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", r.ID, err)
	}
	r.proto, err = lua.Compile(chunk, r.ID+".lua")
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", r.ID, err)
	}
	return r, nil
}
