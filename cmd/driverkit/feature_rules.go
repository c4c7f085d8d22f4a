//go:build !no_rules

package main

import (
	"log/slog"

	"homey-driverkit/internal/knowledge"
	"homey-driverkit/internal/rules"
)

// initRules loads the lint rules of rules.dir. A missing directory yields
// an engine without rules.
func initRules(kb *knowledge.Base, cfg *Config, logger *slog.Logger) *rules.Engine {
	if cfg.Rules.Dir == "" {
		return nil
	}
	return rules.NewEngine(ruleManager(cfg, logger), kb, cfg.Rules.Timeout, logger)
}

// ruleManager returns the manager of rules.dir.
func ruleManager(cfg *Config, logger *slog.Logger) *rules.Manager {
	return rules.NewManager(cfg.Rules.Dir, logger)
}
