package store

import "errors"

// ErrNotFound is returned when a requested entity does not exist in the store.
var ErrNotFound = errors.New("not found")

// Store defines the run history persistence interface.
type Store interface {
	// Run operations
	SaveRun(run *Run) error
	GetRun(id string) (*Run, error)
	// ListRuns returns up to limit runs, newest first. limit <= 0 means all.
	ListRuns(limit int) ([]*Run, error)
	LatestRun() (*Run, error)
	// Prune keeps the newest keep runs and deletes the rest.
	Prune(keep int) (int, error)

	// Per-driver state of the latest run
	SaveDriverStates(states []*DriverState) error
	GetDriverState(driver string) (*DriverState, error)
	ListDriverStates() ([]*DriverState, error)

	// Close the store
	Close() error
}
