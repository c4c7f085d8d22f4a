package store

import "time"

// RunIDLayout formats run IDs. IDs sort in time order.
const RunIDLayout = "20060102T150405.000Z"

// NewRunID returns the run ID for a start time.
func NewRunID(t time.Time) string {
	return t.UTC().Format(RunIDLayout)
}

// Run is the stored summary of one maintenance run.
type Run struct {
	ID           string    `json:"id"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	DriversDir   string    `json:"drivers_dir"`
	Total        int       `json:"total"`
	Valid        int       `json:"valid"`
	Complete     int       `json:"complete"`
	AverageScore int       `json:"average_score"`
	Enriched     int       `json:"enriched"`
	Synthesized  int       `json:"synthesized"`
	Unchanged    int       `json:"unchanged"`
	Failed       int       `json:"failed"`
	Errors       int       `json:"errors"`   // error findings
	Warnings     int       `json:"warnings"` // warning findings
}

// DriverState is the last known state of one driver.
type DriverState struct {
	Driver  string `json:"driver"`
	RunID   string `json:"run_id"`
	Outcome string `json:"outcome"`
	Score   int    `json:"score"`
	Valid   bool   `json:"valid"`
}
