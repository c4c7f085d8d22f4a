// Package pipeline runs the maintenance pass over a drivers directory:
// read, enrich, write back, synthesize missing drivers, check and report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"homey-driverkit/internal/descriptor"
	"homey-driverkit/internal/enrich"
	"homey-driverkit/internal/report"
	"homey-driverkit/internal/rules"
	"homey-driverkit/internal/scaffold"
	"homey-driverkit/internal/schema"
	"homey-driverkit/internal/store"
)

// Config controls a Runner.
type Config struct {
	Workers      int           // concurrent per-driver units, default 4
	WriteRetries int           // extra attempts after a failed write
	RetryDelay   time.Duration // pause between write attempts
	DryRun       bool          // never touch the drivers directory or the history
	Synthesize   bool          // create drivers for knowledge base entries without one
	Scaffold     bool          // write device.js, driver.js and icons for synthesized drivers
	ReportPath   string        // report file, empty for none
	HistoryKeep  int           // stored runs to keep, 0 keeps all
}

// Deps are the collaborators of a Runner. Schema, Rules, Scaffolder, Store
// and Events may be nil.
type Deps struct {
	Repo       *descriptor.Repository
	Engine     *enrich.Engine
	Schema     *schema.Validator
	Rules      *rules.Engine
	Scaffolder *scaffold.Scaffolder
	Store      store.Store
	Events     *EventBus
}

// Runner executes maintenance runs. Runs must not overlap.
type Runner struct {
	deps   Deps
	cfg    Config
	clock  func() time.Time
	save   func(name string, rec *descriptor.Record) error
	logger *slog.Logger
}

// NewRunner checks deps and fills config defaults.
func NewRunner(deps Deps, cfg Config, logger *slog.Logger) (*Runner, error) {
	if deps.Repo == nil || deps.Engine == nil {
		return nil, fmt.Errorf("runner needs a repository and an engine")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.WriteRetries < 0 {
		cfg.WriteRetries = 0
	}
	if deps.Events == nil {
		deps.Events = NewEventBus(logger)
	}
	return &Runner{
		deps:   deps,
		cfg:    cfg,
		clock:  time.Now,
		save:   deps.Repo.Write,
		logger: logger.With("component", "pipeline"),
	}, nil
}

// Events returns the bus the runner emits on.
func (r *Runner) Events() *EventBus { return r.deps.Events }

// item is the outcome of one driver directory.
type item struct {
	result  report.RecordResult
	record  *descriptor.Record // state after the run, nil when unreadable or not written
	failure *report.Failure
	skip    bool
}

// Run performs one pass. It fails only when the drivers directory cannot be
// scanned or ctx is cancelled; per-driver problems end up in the report.
func (r *Runner) Run(ctx context.Context) (*report.Report, error) {
	start := r.clock()
	runID := store.NewRunID(start)
	r.emit(EventRunStarted, RunStarted{RunID: runID, DriversDir: r.deps.Repo.Root(), DryRun: r.cfg.DryRun})

	names, err := r.deps.Repo.Scan()
	if err != nil {
		return nil, err
	}
	r.logger.Info("run started", "run", runID, "drivers", len(names), "dry_run", r.cfg.DryRun)

	items := make([]item, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for i, name := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			items[i] = r.process(gctx, name)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}

	rep := &report.Report{
		RunID:      runID,
		DryRun:     r.cfg.DryRun,
		DriversDir: r.deps.Repo.Root(),
		Records:    []report.RecordResult{},
		Failures:   []report.Failure{},
	}
	var records []*descriptor.Record
	existing := make(map[string]bool, len(names))
	for _, it := range items {
		if it.skip {
			continue
		}
		existing[it.result.Driver] = true
		rep.Records = append(rep.Records, it.result)
		if it.failure != nil {
			rep.Failures = append(rep.Failures, *it.failure)
		}
		if it.record != nil {
			records = append(records, it.record)
		}
	}

	if r.cfg.Synthesize {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run %s: %w", runID, err)
		}
		for _, it := range r.synthesize(ctx, existing) {
			rep.Records = append(rep.Records, it.result)
			if it.failure != nil {
				rep.Failures = append(rep.Failures, *it.failure)
			}
			if it.record != nil {
				records = append(records, it.record)
			}
		}
	}

	rep.Summary = enrich.ValidateAll(records)
	rep.Tally()
	finished := r.clock()
	rep.GeneratedAt = finished.UTC()
	rep.Duration = finished.Sub(start).Round(time.Millisecond).String()

	r.record(rep, start, finished)

	if r.cfg.ReportPath != "" {
		if err := report.WriteFile(r.cfg.ReportPath, rep); err != nil {
			r.logger.Error("write report", "path", r.cfg.ReportPath, "err", err)
		}
	}

	r.logger.Info("run completed",
		"run", runID,
		"enriched", rep.Counts.Enriched,
		"synthesized", rep.Counts.Synthesized,
		"unchanged", rep.Counts.Unchanged,
		"failed", rep.Counts.Failed,
		"valid", rep.Summary.ValidCount,
		"total", rep.Summary.TotalCount,
		"average_score", rep.Summary.AverageScore,
		"duration", rep.Duration,
	)
	r.emit(EventRunCompleted, rep)
	return rep, nil
}

// process reads one driver, enriches it when needed and checks the result.
func (r *Runner) process(ctx context.Context, name string) item {
	rec, err := r.deps.Repo.Read(name)
	if errors.Is(err, descriptor.ErrNotFound) {
		r.logger.Debug("no descriptor, skipping", "driver", name)
		return item{skip: true}
	}
	if err != nil {
		r.logger.Warn("unreadable descriptor", "driver", name, "err", err)
		res := report.RecordResult{Driver: name, Outcome: report.OutcomeFailed, Reason: err.Error()}
		r.emit(EventRecordFailed, res)
		return item{
			result:  res,
			failure: &report.Failure{Driver: name, Kind: report.FailureMalformed, Error: err.Error()},
		}
	}

	it := item{result: report.RecordResult{Driver: name, Outcome: report.OutcomeValid}, record: rec}
	event := EventRecordValid
	if enrich.NeedsEnrichment(rec) {
		res := r.deps.Engine.Enrich(rec)
		it.result.ProductID = res.ProductID
		switch res.Outcome {
		case enrich.Enriched:
			it.result.Outcome = report.OutcomeEnriched
			event = EventRecordEnriched
			if err := r.write(ctx, name, res.Record); err != nil {
				r.logger.Error("write descriptor", "driver", name, "err", err)
				it.result.Outcome = report.OutcomeFailed
				it.result.Reason = err.Error()
				it.failure = &report.Failure{Driver: name, Kind: report.FailureWriteFailed, Error: err.Error()}
				it.record = nil
				event = EventRecordFailed
			} else {
				it.record = res.Record
			}
		default:
			r.logger.Debug("driver unchanged", "driver", name, "reason", res.Reason, "product_id", res.ProductID)
			it.result.Outcome = report.OutcomeUnchanged
			it.result.Reason = res.Reason
			event = EventRecordUnchanged
		}
	}

	r.describe(ctx, &it.result, it.record)
	r.emit(event, it.result)
	return it
}

// write stores rec, retrying failed attempts. Writes are idempotent.
func (r *Runner) write(ctx context.Context, name string, rec *descriptor.Record) error {
	if r.cfg.DryRun {
		return nil
	}
	var err error
	for attempt := 0; attempt <= r.cfg.WriteRetries; attempt++ {
		if attempt > 0 {
			r.logger.Warn("retrying write", "driver", name, "attempt", attempt, "err", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.cfg.RetryDelay):
			}
		}
		if err = r.save(name, rec); err == nil {
			return nil
		}
	}
	return fmt.Errorf("after %d attempts: %w", r.cfg.WriteRetries+1, err)
}

// synthesize creates a driver for every knowledge base entry whose
// directory does not exist yet, in table order.
func (r *Runner) synthesize(ctx context.Context, existing map[string]bool) []item {
	var out []item
	for _, entry := range r.deps.Engine.Knowledge().Entries() {
		name := entry.DriverID()
		if existing[name] || r.deps.Repo.Exists(name) {
			continue
		}
		existing[name] = true

		rec, err := r.deps.Engine.Synthesize(entry)
		if err != nil {
			r.logger.Error("synthesize driver", "driver", name, "err", err)
			res := report.RecordResult{Driver: name, Outcome: report.OutcomeFailed, ProductID: entry.ProductID, Reason: err.Error()}
			out = append(out, item{
				result:  res,
				failure: &report.Failure{Driver: name, Kind: report.FailureWriteFailed, Error: err.Error()},
			})
			r.emit(EventRecordFailed, res)
			continue
		}

		it := item{
			result: report.RecordResult{Driver: name, Outcome: report.OutcomeSynthesized, ProductID: entry.ProductID},
			record: rec,
		}
		event := EventRecordSynthesized
		if !r.cfg.DryRun {
			if err := r.deps.Repo.Create(name, rec); err != nil {
				r.logger.Error("create driver", "driver", name, "err", err)
				it.result.Outcome = report.OutcomeFailed
				it.result.Reason = err.Error()
				it.failure = &report.Failure{Driver: name, Kind: report.FailureWriteFailed, Error: err.Error()}
				it.record = nil
				event = EventRecordFailed
			} else if r.cfg.Scaffold && r.deps.Scaffolder != nil {
				sc := r.deps.Scaffolder
				files, err := sc.Write(r.deps.Repo.Dir(name), sc.DriverFor(name, rec))
				it.result.Scaffolded = files
				if err != nil {
					r.logger.Error("scaffold driver", "driver", name, "err", err)
					it.failure = &report.Failure{Driver: name, Kind: report.FailureScaffold, Error: err.Error()}
				}
			}
		}
		if it.failure == nil || it.failure.Kind == report.FailureScaffold {
			r.logger.Info("driver synthesized", "driver", name, "dry_run", r.cfg.DryRun)
		}
		r.describe(ctx, &it.result, it.record)
		r.emit(event, it.result)
		out = append(out, it)
	}
	return out
}

// describe fills score, validity and findings of res from rec. rec may be
// nil for a failed synthesis.
func (r *Runner) describe(ctx context.Context, res *report.RecordResult, rec *descriptor.Record) {
	if rec == nil {
		return
	}
	res.Score = enrich.Score(rec)
	res.Valid = !enrich.NeedsEnrichment(rec)
	res.Resolved = enrich.IsResolved(rec)

	if r.deps.Schema != nil {
		violations, err := r.deps.Schema.Validate(rec)
		if err != nil {
			res.Findings = append(res.Findings, report.Finding{
				Source: "schema", Severity: report.SeverityError, Message: err.Error(),
			})
		}
		for _, v := range violations {
			res.Findings = append(res.Findings, report.Finding{
				Source: "schema", Severity: report.SeverityError, Message: v.String(),
			})
		}
	}
	if r.deps.Rules != nil {
		res.Findings = append(res.Findings, r.deps.Rules.Check(ctx, rules.SubjectFor(res.Driver, rec))...)
	}
}

// record compares rep with the previous stored run and stores it.
func (r *Runner) record(rep *report.Report, start, finished time.Time) {
	st := r.deps.Store
	if st == nil {
		return
	}
	prev, err := st.LatestRun()
	switch {
	case err == nil:
		rep.Delta = &report.Delta{
			PreviousRunID: prev.ID,
			ValidCount:    rep.Summary.ValidCount - prev.Valid,
			CompleteCount: rep.Summary.CompleteCount - prev.Complete,
			AverageScore:  rep.Summary.AverageScore - prev.AverageScore,
		}
	case !errors.Is(err, store.ErrNotFound):
		r.logger.Warn("read previous run", "err", err)
	}
	if r.cfg.DryRun {
		return
	}

	run := &store.Run{
		ID:           rep.RunID,
		StartedAt:    start.UTC(),
		FinishedAt:   finished.UTC(),
		DriversDir:   rep.DriversDir,
		Total:        rep.Summary.TotalCount,
		Valid:        rep.Summary.ValidCount,
		Complete:     rep.Summary.CompleteCount,
		AverageScore: rep.Summary.AverageScore,
		Enriched:     rep.Counts.Enriched,
		Synthesized:  rep.Counts.Synthesized,
		Unchanged:    rep.Counts.Unchanged,
		Failed:       rep.Counts.Failed,
		Errors:       rep.FindingCount(report.SeverityError),
		Warnings:     rep.FindingCount(report.SeverityWarning),
	}
	if err := st.SaveRun(run); err != nil {
		r.logger.Error("save run", "run", run.ID, "err", err)
		return
	}
	states := make([]*store.DriverState, 0, len(rep.Records))
	for _, res := range rep.Records {
		states = append(states, &store.DriverState{
			Driver:  res.Driver,
			RunID:   rep.RunID,
			Outcome: string(res.Outcome),
			Score:   res.Score,
			Valid:   res.Valid,
		})
	}
	if err := st.SaveDriverStates(states); err != nil {
		r.logger.Error("save driver states", "run", run.ID, "err", err)
	}
	if r.cfg.HistoryKeep > 0 {
		if n, err := st.Prune(r.cfg.HistoryKeep); err != nil {
			r.logger.Error("prune history", "err", err)
		} else if n > 0 {
			r.logger.Debug("history pruned", "deleted", n)
		}
	}
}

func (r *Runner) emit(eventType string, data any) {
	r.deps.Events.Emit(Event{Type: eventType, Data: data})
}
