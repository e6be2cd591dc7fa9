// Package engine manages the lifecycle of analysis runs: submission,
// background execution, cancellation, and persistence of outcomes.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/causekit/causekit/internal/store"
	"github.com/causekit/causekit/pkg/contracts"
	"github.com/causekit/causekit/pkg/models"
)

// Engine turns submitted requests into background analysis runs. The
// store is the source of truth for run state; the engine only tracks
// cancel funcs for runs that are still in flight.
type Engine struct {
	store    store.Store
	analyzer contracts.AnalysisService

	// Running executions: runID → cancel func
	runsMu sync.RWMutex
	runs   map[string]context.CancelFunc
}

// New creates a run engine on top of the given store and analyzer.
func New(s store.Store, analyzer contracts.AnalysisService) *Engine {
	return &Engine{
		store:    s,
		analyzer: analyzer,
		runs:     make(map[string]context.CancelFunc),
	}
}

// Submit starts an async analysis run. It returns the run ID
// immediately; execution happens in the background.
func (e *Engine) Submit(ctx context.Context, req *models.AnalysisRequest) (string, error) {
	if req == nil {
		return "", fmt.Errorf("submit: nil request")
	}

	runID := uuid.New().String()
	run := &models.AnalysisRun{
		ID:         runID,
		Status:     models.RunSubmitted,
		TemplateID: req.TemplateID,
		Request:    req,
		StartedAt:  time.Now().UTC(),
	}
	if err := e.store.CreateRun(ctx, run); err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}

	// The run outlives the submit request, so it gets its own context.
	execCtx, cancel := context.WithCancel(context.Background())
	e.runsMu.Lock()
	e.runs[runID] = cancel
	e.runsMu.Unlock()

	log.Info().
		Str("run_id", runID).
		Str("template_id", req.TemplateID).
		Int("evidence", len(req.Evidence)).
		Msg("🔬 Analysis run submitted")

	go e.execute(execCtx, run)

	return runID, nil
}

// RunSync executes an analysis inline and returns the run once it has
// reached a terminal status. The run is registered like any other, so
// it shows up in listings and can be canceled while in flight.
func (e *Engine) RunSync(ctx context.Context, req *models.AnalysisRequest) (*models.AnalysisRun, error) {
	if req == nil {
		return nil, fmt.Errorf("run: nil request")
	}

	runID := uuid.New().String()
	run := &models.AnalysisRun{
		ID:         runID,
		Status:     models.RunSubmitted,
		TemplateID: req.TemplateID,
		Request:    req,
		StartedAt:  time.Now().UTC(),
	}
	if err := e.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	execCtx, cancel := context.WithCancel(ctx)
	e.runsMu.Lock()
	e.runs[runID] = cancel
	e.runsMu.Unlock()

	e.execute(execCtx, run)
	return run, nil
}

// Cancel stops a run that is still in flight. It reports whether a
// live run was found; terminal runs cannot be canceled.
func (e *Engine) Cancel(runID string) bool {
	e.runsMu.Lock()
	cancel, ok := e.runs[runID]
	if ok {
		cancel()
		delete(e.runs, runID)
	}
	e.runsMu.Unlock()
	return ok
}

// ActiveRuns returns the IDs of runs that have not reached a terminal
// status yet.
func (e *Engine) ActiveRuns() []string {
	e.runsMu.RLock()
	defer e.runsMu.RUnlock()
	ids := make([]string, 0, len(e.runs))
	for id := range e.runs {
		ids = append(ids, id)
	}
	return ids
}

// Shutdown cancels every active run. Called when the server stops.
func (e *Engine) Shutdown() {
	e.runsMu.Lock()
	defer e.runsMu.Unlock()
	for id, cancel := range e.runs {
		cancel()
		delete(e.runs, id)
	}
}

func (e *Engine) execute(ctx context.Context, run *models.AnalysisRun) {
	defer func() {
		e.runsMu.Lock()
		if cancel, ok := e.runs[run.ID]; ok {
			cancel()
			delete(e.runs, run.ID)
		}
		e.runsMu.Unlock()
	}()

	run.Status = models.RunRunning
	if err := e.store.UpdateRun(context.Background(), run); err != nil {
		log.Error().Err(err).Str("run_id", run.ID).Msg("Failed to mark run running")
	}

	outcome := e.analyzer.Run(ctx, run.Request)

	now := time.Now().UTC()
	run.CompletedAt = &now
	run.DurationMs = now.Sub(run.StartedAt).Milliseconds()
	run.Outcome = outcome

	switch {
	case ctx.Err() != nil:
		run.Status = models.RunCanceled
		run.Error = "canceled by user"
	case outcome.Status == models.OutcomeFailure:
		run.Status = models.RunFailed
		run.Error = outcome.Error
	default:
		// Success and partial failure both count as completed; the
		// outcome carries the distinction.
		run.Status = models.RunCompleted
	}
	if outcome.Result != nil {
		run.ProviderUsed = outcome.Result.ProviderUsed
	}

	// The store write uses a fresh context: a canceled run still needs
	// its terminal state recorded.
	if err := e.store.UpdateRun(context.Background(), run); err != nil {
		log.Error().Err(err).Str("run_id", run.ID).Msg("Failed to update finished run")
	}

	switch run.Status {
	case models.RunCanceled:
		log.Warn().
			Str("run_id", run.ID).
			Msg("🛑 Analysis run canceled")
	case models.RunFailed:
		log.Error().
			Str("run_id", run.ID).
			Str("error_kind", string(outcome.ErrorKind)).
			Str("error", run.Error).
			Msg("💥 Analysis run failed")
	default:
		log.Info().
			Str("run_id", run.ID).
			Str("outcome", string(outcome.Status)).
			Int64("duration_ms", run.DurationMs).
			Msg("🎉 Analysis run completed")
	}
}

var _ contracts.EngineService = (*Engine)(nil)
