// Package lineage persists the run ledger: one row per pipeline run with
// its state transitions and per-layer results, plus the lineage events
// emitted by storage writes. The ledger survives process restarts and backs
// the runs CLI command.
package lineage

import (
	"context"
	"errors"

	"github.com/bhtransit/mobility-pipeline/internal/model"
)

// ErrRunNotFound is returned when a run id has no ledger row.
var ErrRunNotFound = errors.New("lineage: run not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	State  model.RunState `json:"state,omitempty"`
	Limit  int            `json:"limit,omitempty"`
	Offset int            `json:"offset,omitempty"`
}

// Store defines the persistence interface for the run ledger.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run *model.Run) error
	UpdateRunState(ctx context.Context, runID string, state model.RunState) error
	CompleteRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Lineage events
	RecordEvent(ctx context.Context, runID string, ev model.LineageEvent) error
	ListEvents(ctx context.Context, runID string) ([]model.LineageEvent, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
