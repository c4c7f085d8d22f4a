package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"homey-driverkit/internal/descriptor"
	"homey-driverkit/internal/enrich"
	"homey-driverkit/internal/knowledge"
	"homey-driverkit/internal/report"
	"homey-driverkit/internal/scaffold"
	"homey-driverkit/internal/schema"
	"homey-driverkit/internal/store"
	"homey-driverkit/internal/zcl"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

const validDriver = `{
  "id": "switches-done",
  "name": {"en": "Done"},
  "class": "switch",
  "capabilities": ["onoff"],
  "zigbee": {
    "manufacturerName": "_TZ3000_8kzqqzu4",
    "productId": "TS0001",
    "endpoints": {"1": {"clusters": [6], "bindings": [6]}}
  }
}
`

// writeDrivers lays out a drivers directory from name -> descriptor text.
// An empty text makes a directory without descriptor.
func writeDrivers(t *testing.T, drivers map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, doc := range drivers {
		dir := filepath.Join(root, name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if doc == "" {
			continue
		}
		if err := os.WriteFile(filepath.Join(dir, descriptor.FileName), []byte(doc), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func testDeps(t *testing.T, root string) Deps {
	t.Helper()
	logger := testLogger()
	registry := zcl.NewStandardRegistry(logger)
	kb, err := knowledge.New([]knowledge.Category{
		{Name: "plugs", Entries: []knowledge.Entry{{
			ProductID:      "TS011F",
			DeviceType:     knowledge.TypeSocket,
			Capabilities:   []string{"onoff", "measure_power"},
			Clusters:       []string{"genBasic", "genOnOff", "genElectricalMeasurement"},
			ManufacturerID: "_TZ3000_b28wrpvx",
		}}},
		{Name: "switches", Entries: []knowledge.Entry{{
			ProductID:      "TS0001",
			DeviceType:     knowledge.TypeSwitch,
			Capabilities:   []string{"onoff"},
			Clusters:       []string{"genBasic", "genOnOff"},
			ManufacturerID: "_TZ3000_8kzqqzu4",
		}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	opts := enrich.DefaultOptions()
	opts.Clock = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	engine, err := enrich.NewEngine(kb, registry, opts, logger)
	if err != nil {
		t.Fatal(err)
	}
	validator, err := schema.NewDefault()
	if err != nil {
		t.Fatal(err)
	}
	sc, err := scaffold.New(registry, logger)
	if err != nil {
		t.Fatal(err)
	}
	return Deps{
		Repo:       descriptor.NewRepository(root, logger),
		Engine:     engine,
		Schema:     validator,
		Scaffolder: sc,
	}
}

func newTestRunner(t *testing.T, deps Deps, cfg Config) *Runner {
	t.Helper()
	r, err := NewRunner(deps, cfg, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func fixture() map[string]string {
	return map[string]string{
		"plugs-TS011F":  `{"id": "plugs-TS011F", "name": {"en": "Plug"}, "class": "socket", "learnmode": {"instruction": {"en": "hold"}}}`,
		"custom":        `{"id": "custom", "name": "Custom", "class": "other"}`,
		"broken":        `{"id": "broken",`,
		"switches-done": validDriver,
		"notes":         "",
	}
}

func resultFor(t *testing.T, rep *report.Report, driver string) report.RecordResult {
	t.Helper()
	for _, r := range rep.Records {
		if r.Driver == driver {
			return r
		}
	}
	t.Fatalf("no record for %s in %+v", driver, rep.Records)
	return report.RecordResult{}
}

func TestRun(t *testing.T) {
	root := writeDrivers(t, fixture())
	deps := testDeps(t, root)
	reportPath := filepath.Join(t.TempDir(), "report.json")
	r := newTestRunner(t, deps, Config{Workers: 2, Synthesize: true, Scaffold: true, ReportPath: reportPath})

	rep, err := r.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	want := report.Counts{Enriched: 1, Unchanged: 1, Valid: 1, Synthesized: 1, Failed: 1}
	if rep.Counts != want {
		t.Errorf("counts = %+v, want %+v", rep.Counts, want)
	}
	if len(rep.Records) != 5 {
		t.Errorf("records = %d, want 5", len(rep.Records))
	}
	if len(rep.Failures) != 1 || rep.Failures[0].Driver != "broken" || rep.Failures[0].Kind != report.FailureMalformed {
		t.Errorf("failures = %+v", rep.Failures)
	}

	plug := resultFor(t, rep, "plugs-TS011F")
	if plug.Outcome != report.OutcomeEnriched || plug.ProductID != "TS011F" || plug.Score != 100 || !plug.Valid {
		t.Errorf("plug = %+v", plug)
	}
	custom := resultFor(t, rep, "custom")
	if custom.Outcome != report.OutcomeUnchanged || custom.Reason == "" {
		t.Errorf("custom = %+v", custom)
	}
	if len(custom.Findings) == 0 || custom.Findings[0].Source != "schema" {
		t.Errorf("custom findings = %+v", custom.Findings)
	}
	synth := resultFor(t, rep, "switches-TS0001")
	if synth.Outcome != report.OutcomeSynthesized || len(synth.Scaffolded) != 4 {
		t.Errorf("synthesized = %+v", synth)
	}
	if len(synth.Findings) != 0 {
		t.Errorf("synthesized findings = %+v", synth.Findings)
	}

	// broken is not part of the summary; the synthesized driver is.
	if rep.Summary.TotalCount != 4 || rep.Summary.ValidCount != 3 {
		t.Errorf("summary = %+v", rep.Summary)
	}

	// The enriched descriptor was written back with its unknown keys.
	data, err := os.ReadFile(filepath.Join(root, "plugs-TS011F", descriptor.FileName))
	if err != nil {
		t.Fatal(err)
	}
	var onDisk map[string]json.RawMessage
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatal(err)
	}
	if _, ok := onDisk["zigbee"]; !ok {
		t.Error("zigbee not written")
	}
	if _, ok := onDisk["learnmode"]; !ok {
		t.Error("learnmode lost")
	}

	for _, f := range []string{descriptor.FileName, "device.js", "driver.js", filepath.Join("assets", "small.svg")} {
		if _, err := os.Stat(filepath.Join(root, "switches-TS0001", f)); err != nil {
			t.Errorf("synthesized file %s: %v", f, err)
		}
	}
	if _, err := os.Stat(reportPath); err != nil {
		t.Errorf("report not written: %v", err)
	}
}

func TestRunIdempotent(t *testing.T) {
	root := writeDrivers(t, fixture())
	r := newTestRunner(t, testDeps(t, root), Config{Synthesize: true})

	if _, err := r.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	before, _ := os.ReadFile(filepath.Join(root, "plugs-TS011F", descriptor.FileName))

	rep, err := r.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Counts.Enriched != 0 || rep.Counts.Synthesized != 0 {
		t.Errorf("second run counts = %+v", rep.Counts)
	}
	if rep.Counts.Valid != 3 {
		t.Errorf("valid = %d, want 3", rep.Counts.Valid)
	}
	after, _ := os.ReadFile(filepath.Join(root, "plugs-TS011F", descriptor.FileName))
	if string(before) != string(after) {
		t.Error("second run rewrote an enriched descriptor")
	}
}

func TestRunDryRun(t *testing.T) {
	root := writeDrivers(t, fixture())
	deps := testDeps(t, root)
	st, err := store.NewBoltStore(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	deps.Store = st

	r := newTestRunner(t, deps, Config{DryRun: true, Synthesize: true, Scaffold: true})
	rep, err := r.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Counts.Enriched != 1 || rep.Counts.Synthesized != 1 {
		t.Errorf("counts = %+v", rep.Counts)
	}

	data, _ := os.ReadFile(filepath.Join(root, "plugs-TS011F", descriptor.FileName))
	if strings.Contains(string(data), "zigbee") {
		t.Error("dry run wrote a descriptor")
	}
	if _, err := os.Stat(filepath.Join(root, "switches-TS0001")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("dry run created a driver: %v", err)
	}
	if _, err := st.LatestRun(); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("dry run stored history: %v", err)
	}
}

func TestRunHistoryDelta(t *testing.T) {
	root := writeDrivers(t, fixture())
	deps := testDeps(t, root)
	st, err := store.NewBoltStore(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	deps.Store = st

	r := newTestRunner(t, deps, Config{HistoryKeep: 1})
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	r.clock = func() time.Time { return now }

	first, err := r.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if first.Delta != nil {
		t.Errorf("first run delta = %+v", first.Delta)
	}

	// Fix the custom driver by hand, then run again.
	fixed := strings.Replace(validDriver, "switches-done", "custom", 1)
	os.WriteFile(filepath.Join(root, "custom", descriptor.FileName), []byte(fixed), 0o644)
	now = now.Add(time.Minute)

	second, err := r.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if second.Delta == nil || second.Delta.PreviousRunID != first.RunID || second.Delta.ValidCount != 1 {
		t.Errorf("delta = %+v", second.Delta)
	}

	runs, _ := st.ListRuns(0)
	if len(runs) != 1 || runs[0].ID != second.RunID {
		t.Errorf("history = %+v", runs)
	}
	state, err := st.GetDriverState("custom")
	if err != nil {
		t.Fatal(err)
	}
	if !state.Valid || state.Outcome != string(report.OutcomeValid) {
		t.Errorf("custom state = %+v", state)
	}
}

func TestRunScanFailure(t *testing.T) {
	deps := testDeps(t, filepath.Join(t.TempDir(), "missing"))
	r := newTestRunner(t, deps, Config{})
	if _, err := r.Run(context.Background()); err == nil {
		t.Fatal("expected scan error")
	}
}

func TestRunCancelled(t *testing.T) {
	root := writeDrivers(t, fixture())
	r := newTestRunner(t, testDeps(t, root), Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestWriteRetries(t *testing.T) {
	root := writeDrivers(t, nil)
	r := newTestRunner(t, testDeps(t, root), Config{WriteRetries: 2, RetryDelay: time.Millisecond})

	// The driver directory does not exist, so every attempt fails.
	err := r.write(context.Background(), "ghost", &descriptor.Record{ID: "ghost"})
	if err == nil || !strings.Contains(err.Error(), "after 3 attempts") {
		t.Errorf("err = %v", err)
	}
}

func TestRunWriteFailureLeftOutOfSummary(t *testing.T) {
	root := writeDrivers(t, map[string]string{
		"plugs-TS011F":  `{"id": "plugs-TS011F", "name": {"en": "Plug"}, "class": "socket"}`,
		"switches-done": validDriver,
	})
	r := newTestRunner(t, testDeps(t, root), Config{WriteRetries: 1, RetryDelay: time.Millisecond})
	r.save = func(string, *descriptor.Record) error { return errors.New("disk full") }

	rep, err := r.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	plug := resultFor(t, rep, "plugs-TS011F")
	if plug.Outcome != report.OutcomeFailed || plug.Score != 0 || plug.Valid {
		t.Errorf("plug = %+v", plug)
	}
	if len(rep.Failures) != 1 || rep.Failures[0].Kind != report.FailureWriteFailed {
		t.Errorf("failures = %+v", rep.Failures)
	}
	if rep.Summary.TotalCount != 1 || rep.Summary.ValidCount != 1 {
		t.Errorf("summary = %+v", rep.Summary)
	}
}

func TestRunEvents(t *testing.T) {
	root := writeDrivers(t, fixture())
	r := newTestRunner(t, testDeps(t, root), Config{Workers: 3, Synthesize: true})

	var mu sync.Mutex
	counts := map[string]int{}
	r.Events().OnAll(func(ev Event) {
		mu.Lock()
		counts[ev.Type]++
		mu.Unlock()
	})
	var completed *report.Report
	r.Events().On(EventRunCompleted, func(ev Event) {
		completed = ev.Data.(*report.Report)
	})

	rep, err := r.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if completed != rep {
		t.Error("run_completed did not carry the report")
	}
	want := map[string]int{
		EventRunStarted:        1,
		EventRecordEnriched:    1,
		EventRecordUnchanged:   1,
		EventRecordValid:       1,
		EventRecordFailed:      1,
		EventRecordSynthesized: 1,
		EventRunCompleted:      1,
	}
	for typ, n := range want {
		if counts[typ] != n {
			t.Errorf("%s events = %d, want %d", typ, counts[typ], n)
		}
	}
}

func TestEventBusRecoversPanics(t *testing.T) {
	bus := NewEventBus(testLogger())
	called := 0
	bus.On("x", func(Event) { panic("boom") })
	unsub := bus.OnAll(func(Event) { called++ })

	bus.Emit(Event{Type: "x"})
	if called != 1 {
		t.Errorf("called = %d, want 1", called)
	}
	unsub()
	bus.Emit(Event{Type: "x"})
	if called != 1 {
		t.Errorf("called after unsubscribe = %d, want 1", called)
	}
}
