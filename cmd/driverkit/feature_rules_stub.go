//go:build no_rules

package main

import (
	"log/slog"

	"homey-driverkit/internal/knowledge"
	"homey-driverkit/internal/rules"
)

func initRules(_ *knowledge.Base, _ *Config, _ *slog.Logger) *rules.Engine {
	return nil
}

func ruleManager(_ *Config, _ *slog.Logger) *rules.Manager {
	return nil
}
