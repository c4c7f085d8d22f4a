//go:build no_rules

package rules

import (
	"context"
	"log/slog"
	"time"

	"homey-driverkit/internal/knowledge"
	"homey-driverkit/internal/report"
)

// DefaultTimeout bounds a single rule check.
const DefaultTimeout = 2 * time.Second

// RuleMeta is the rule file header (stub).
type RuleMeta struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Enabled     *bool  `json:"enabled,omitempty"`
}

// Rule is one lint script (stub).
type Rule struct {
	ID       string   `json:"id"`
	Meta     RuleMeta `json:"meta"`
	LuaCode  string   `json:"lua_code"`
	FilePath string   `json:"-"`
}

// Enabled always reports false when rules are disabled.
func (r *Rule) Enabled() bool { return false }

// Manager is a no-op stub when rules are disabled.
type Manager struct{}

// NewManager returns a no-op manager.
func NewManager(_ string, _ *slog.Logger) *Manager { return &Manager{} }

// List returns nil.
func (m *Manager) List() ([]*Rule, []error) { return nil, nil }

// Get returns nil.
func (m *Manager) Get(_ string) (*Rule, error) { return nil, nil }

// Engine is a no-op stub when rules are disabled.
type Engine struct{}

// NewEngine returns a no-op engine.
func NewEngine(_ *Manager, _ *knowledge.Base, _ time.Duration, _ *slog.Logger) *Engine {
	return &Engine{}
}

// Check returns no findings.
func (e *Engine) Check(_ context.Context, _ Subject) []report.Finding { return nil }
