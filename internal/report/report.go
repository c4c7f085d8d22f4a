// Package report holds the result model of a maintenance run and writes it
// as JSON.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"homey-driverkit/internal/enrich"
)

// Severity of a finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Finding is a check result attached to a record.
type Finding struct {
	Source   string   `json:"source"` // "schema" or "rule:<id>"
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Outcome of one driver in a run.
type Outcome string

const (
	OutcomeEnriched    Outcome = "enriched"
	OutcomeUnchanged   Outcome = "unchanged"   // needed enrichment, could not resolve
	OutcomeValid       Outcome = "valid"       // nothing to do
	OutcomeSynthesized Outcome = "synthesized" // created from the knowledge base
	OutcomeFailed      Outcome = "failed"
)

// FailureKind classifies a per-driver failure.
type FailureKind string

const (
	FailureMalformed   FailureKind = "malformed"
	FailureWriteFailed FailureKind = "write_failed"
	FailureScaffold    FailureKind = "scaffold_failed"
)

// Failure is a driver the run could not process fully.
type Failure struct {
	Driver string      `json:"driver"`
	Kind   FailureKind `json:"kind"`
	Error  string      `json:"error"`
}

// RecordResult is the per-driver section of a report.
type RecordResult struct {
	Driver     string    `json:"driver"`
	Outcome    Outcome   `json:"outcome"`
	ProductID  string    `json:"product_id,omitempty"`
	Score      int       `json:"score"`
	Valid      bool      `json:"valid"`
	Resolved   bool      `json:"resolved"`
	Reason     string    `json:"reason,omitempty"`
	Scaffolded []string  `json:"scaffolded,omitempty"`
	Findings   []Finding `json:"findings,omitempty"`
}

// Counts tallies record outcomes.
type Counts struct {
	Enriched    int `json:"enriched"`
	Unchanged   int `json:"unchanged"`
	Valid       int `json:"valid"`
	Synthesized int `json:"synthesized"`
	Failed      int `json:"failed"`
}

// Delta compares a run with the previous stored run.
type Delta struct {
	PreviousRunID string `json:"previous_run_id"`
	ValidCount    int    `json:"valid_count"`
	CompleteCount int    `json:"complete_count"`
	AverageScore  int    `json:"average_score"`
}

// Report is the outcome of one run. It is always produced once the drivers
// directory could be scanned.
type Report struct {
	RunID       string         `json:"run_id"`
	GeneratedAt time.Time      `json:"generated_at"`
	Duration    string         `json:"duration"`
	DryRun      bool           `json:"dry_run"`
	DriversDir  string         `json:"drivers_dir"`
	Summary     enrich.Summary `json:"summary"`
	Counts      Counts         `json:"counts"`
	Delta       *Delta         `json:"delta,omitempty"`
	Records     []RecordResult `json:"records"`
	Failures    []Failure      `json:"failures"`
}

// Tally recomputes Counts from Records.
func (r *Report) Tally() {
	var c Counts
	for _, rec := range r.Records {
		switch rec.Outcome {
		case OutcomeEnriched:
			c.Enriched++
		case OutcomeUnchanged:
			c.Unchanged++
		case OutcomeValid:
			c.Valid++
		case OutcomeSynthesized:
			c.Synthesized++
		case OutcomeFailed:
			c.Failed++
		}
	}
	r.Counts = c
}

// FindingCount returns the number of findings with the given severity.
func (r *Report) FindingCount(sev Severity) int {
	n := 0
	for _, rec := range r.Records {
		for _, f := range rec.Findings {
			if f.Severity == sev {
				n++
			}
		}
	}
	return n
}

// Encode renders the report as indented JSON.
func (r *Report) Encode() ([]byte, error) {
	if r.Records == nil {
		r.Records = []RecordResult{}
	}
	if r.Failures == nil {
		r.Failures = []Failure{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFile writes the report to path, creating parent directories.
func WriteFile(path string, r *Report) error {
	data, err := r.Encode()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
