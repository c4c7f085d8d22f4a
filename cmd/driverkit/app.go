package main

import (
	"fmt"
	"log/slog"

	"homey-driverkit/internal/descriptor"
	"homey-driverkit/internal/enrich"
	"homey-driverkit/internal/knowledge"
	"homey-driverkit/internal/pipeline"
	"homey-driverkit/internal/scaffold"
	"homey-driverkit/internal/schema"
	"homey-driverkit/internal/store"
	"homey-driverkit/internal/zcl"
)

// app holds the components built from the configuration.
type app struct {
	cfg      *Config
	logger   *slog.Logger
	registry *zcl.Registry
	kb       *knowledge.Base
	engine   *enrich.Engine
	repo     *descriptor.Repository
}

func newApp(cfg *Config, logger *slog.Logger) (*app, error) {
	registry := zcl.NewStandardRegistry(logger)
	kb, err := knowledge.LoadFile(cfg.Knowledge.Path, registry, logger)
	if err != nil {
		return nil, fmt.Errorf("load knowledge base: %w", err)
	}
	engine, err := enrich.NewEngine(kb, registry, cfg.engineOptions(), logger)
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}
	logger.Debug("knowledge base ready", "products", kb.Len(), "categories", len(kb.Categories()),
		"clusters", len(registry.All()))
	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		kb:       kb,
		engine:   engine,
		repo:     descriptor.NewRepository(cfg.DriversDir, logger),
	}, nil
}

func (a *app) scaffolder() (*scaffold.Scaffolder, error) {
	return scaffold.New(a.registry, a.logger)
}

// runOptions adjusts the configured run for one command.
type runOptions struct {
	dryRun       bool
	noSynthesize bool
	noScaffold   bool
	noHistory    bool
	reportPath   *string // overrides run.report_path when set
}

// runner wires a pipeline runner. The returned close function releases the
// store and the MQTT connection.
func (a *app) runner(ro runOptions) (*pipeline.Runner, func(), error) {
	cfg := a.cfg
	deps := pipeline.Deps{
		Repo:   a.repo,
		Engine: a.engine,
		Events: pipeline.NewEventBus(a.logger),
	}
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Schema.Enabled {
		v, err := loadSchema(cfg.Schema.Path)
		if err != nil {
			return nil, nil, err
		}
		deps.Schema = v
	}
	deps.Rules = initRules(a.kb, cfg, a.logger)

	if cfg.Run.Scaffold && !ro.noScaffold {
		sc, err := a.scaffolder()
		if err != nil {
			return nil, nil, err
		}
		deps.Scaffolder = sc
	}

	if cfg.Store.Path != "" && !ro.noHistory {
		db, err := store.NewBoltStore(cfg.Store.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open store: %w", err)
		}
		deps.Store = db
		closers = append(closers, func() { db.Close() })
	}

	mqtt := initMQTT(deps.Events, cfg, a.logger)
	closers = append(closers, mqtt.Stop)

	reportPath := cfg.Run.ReportPath
	if ro.reportPath != nil {
		reportPath = *ro.reportPath
	}
	r, err := pipeline.NewRunner(deps, pipeline.Config{
		Workers:      cfg.Run.Workers,
		WriteRetries: cfg.Run.WriteRetries,
		RetryDelay:   cfg.Run.RetryDelay,
		DryRun:       ro.dryRun,
		Synthesize:   cfg.Run.Synthesize && !ro.noSynthesize,
		Scaffold:     cfg.Run.Scaffold && !ro.noScaffold,
		ReportPath:   reportPath,
		HistoryKeep:  cfg.Store.Keep,
	}, a.logger)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	return r, closeAll, nil
}

func loadSchema(path string) (*schema.Validator, error) {
	if path == "" {
		return schema.NewDefault()
	}
	return schema.Load(path)
}
