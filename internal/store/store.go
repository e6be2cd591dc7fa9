// Package store provides run persistence for the analysis pipeline.
// Two backends exist: in-memory maps with optional JSON snapshots
// (default, tests) and SQLite (durable single-node deployments).
package store

import (
	"context"
	"time"

	"github.com/causekit/causekit/pkg/models"
)

// Store is the persistence interface the engine and API depend on.
// Both implementations return copies, so callers may mutate results
// freely.
type Store interface {
	RunStore

	// Ping checks if the backing storage is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error
}

// RunFilter defines optional filters for listing runs.
type RunFilter struct {
	Status     models.RunStatus // exact match on status
	TemplateID string           // exact match on template_id
	Limit      int              // max results (default 100)
}

// RunStore manages analysis run records.
type RunStore interface {
	CreateRun(ctx context.Context, run *models.AnalysisRun) error
	UpdateRun(ctx context.Context, run *models.AnalysisRun) error
	GetRun(ctx context.Context, id string) (*models.AnalysisRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]models.AnalysisRun, error)
	DeleteRun(ctx context.Context, id string) error

	// ListRunsCompletedBefore returns terminal runs whose completion time
	// is older than cutoff, oldest first. Used by the retention janitor.
	ListRunsCompletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.AnalysisRun, error)
}

const defaultListLimit = 100

// ── Errors ──────────────────────────────────────────────────

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}
