package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/causekit/causekit/internal/engine"
	"github.com/causekit/causekit/internal/store"
	"github.com/causekit/causekit/pkg/models"
)

// stubAnalyzer returns a scripted outcome. With block set it parks
// until the channel closes or the run context is canceled.
type stubAnalyzer struct {
	outcome *models.Outcome
	block   chan struct{}
}

func (a *stubAnalyzer) Run(ctx context.Context, req *models.AnalysisRequest) *models.Outcome {
	if a.block != nil {
		select {
		case <-a.block:
		case <-ctx.Done():
			return models.FailureOutcome(models.ErrKindProviderUnavailable, "run canceled before provider invocation")
		}
	}
	if a.outcome != nil {
		return a.outcome
	}
	return models.SuccessOutcome(&models.AnalysisResult{ProviderUsed: "openai", RawText: "done"})
}

func newEngine(t *testing.T, analyzer *stubAnalyzer) (*engine.Engine, store.Store) {
	t.Helper()
	s := store.NewMemoryStore("")
	t.Cleanup(func() { s.Close() })
	return engine.New(s, analyzer), s
}

func waitForTerminal(t *testing.T, s store.Store, id string) *models.AnalysisRun {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		run, err := s.GetRun(context.Background(), id)
		if err == nil {
			switch run.Status {
			case models.RunCompleted, models.RunFailed, models.RunCanceled:
				return run
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("run %s never reached a terminal status", id)
	return nil
}

func TestSubmitAndComplete(t *testing.T) {
	e, s := newEngine(t, &stubAnalyzer{})

	id, err := e.Submit(context.Background(), &models.AnalysisRequest{IssueDescription: "pods flapping"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if id == "" {
		t.Fatal("Submit() returned an empty run ID")
	}

	run := waitForTerminal(t, s, id)
	if run.Status != models.RunCompleted {
		t.Errorf("Status = %s, want completed", run.Status)
	}
	if run.Outcome == nil || run.Outcome.Status != models.OutcomeSuccess {
		t.Errorf("Outcome = %+v", run.Outcome)
	}
	if run.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
	if run.ProviderUsed != "openai" {
		t.Errorf("ProviderUsed = %q, want openai", run.ProviderUsed)
	}
}

func TestSubmitFailureOutcome(t *testing.T) {
	e, s := newEngine(t, &stubAnalyzer{
		outcome: models.FailureOutcome(models.ErrKindProviderUnavailable, "all providers failed, last error: 503"),
	})

	id, err := e.Submit(context.Background(), &models.AnalysisRequest{IssueDescription: "x"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	run := waitForTerminal(t, s, id)
	if run.Status != models.RunFailed {
		t.Errorf("Status = %s, want failed", run.Status)
	}
	if run.Error != "all providers failed, last error: 503" {
		t.Errorf("Error = %q", run.Error)
	}
}

func TestSubmitPartialFailureIsCompleted(t *testing.T) {
	e, s := newEngine(t, &stubAnalyzer{
		outcome: models.PartialOutcome(&models.AnalysisResult{RawText: "x"}, []string{"evidence a.log dropped"}),
	})

	id, err := e.Submit(context.Background(), &models.AnalysisRequest{IssueDescription: "x"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	run := waitForTerminal(t, s, id)
	if run.Status != models.RunCompleted {
		t.Errorf("Status = %s, want completed for a partial failure", run.Status)
	}
	if run.Outcome.Status != models.OutcomePartialFailure {
		t.Errorf("Outcome.Status = %s, want partial_failure", run.Outcome.Status)
	}
}

func TestRunSyncBlocksUntilTerminal(t *testing.T) {
	e, s := newEngine(t, &stubAnalyzer{})

	run, err := e.RunSync(context.Background(), &models.AnalysisRequest{IssueDescription: "disk full"})
	if err != nil {
		t.Fatalf("RunSync() error = %v", err)
	}
	if run.Status != models.RunCompleted {
		t.Errorf("Status = %s, want completed", run.Status)
	}
	if run.Outcome == nil || run.Outcome.Status != models.OutcomeSuccess {
		t.Errorf("Outcome = %+v", run.Outcome)
	}

	stored, err := s.GetRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if stored.Status != models.RunCompleted {
		t.Errorf("stored Status = %s, want completed", stored.Status)
	}
	if got := len(e.ActiveRuns()); got != 0 {
		t.Errorf("ActiveRuns() = %d after sync run, want 0", got)
	}
}

func TestSubmitNilRequest(t *testing.T) {
	e, _ := newEngine(t, &stubAnalyzer{})
	if _, err := e.Submit(context.Background(), nil); err == nil {
		t.Fatal("Submit(nil) did not error")
	}
}

func TestCancelRun(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	e, s := newEngine(t, &stubAnalyzer{block: block})

	id, err := e.Submit(context.Background(), &models.AnalysisRequest{IssueDescription: "x"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if !e.Cancel(id) {
		t.Fatal("Cancel() = false, want true for an in-flight run")
	}
	run := waitForTerminal(t, s, id)
	if run.Status != models.RunCanceled {
		t.Errorf("Status = %s, want canceled", run.Status)
	}
	if run.Error != "canceled by user" {
		t.Errorf("Error = %q", run.Error)
	}

	if e.Cancel(id) {
		t.Error("Cancel() = true on a terminal run")
	}
}

func TestCancelUnknownRun(t *testing.T) {
	e, _ := newEngine(t, &stubAnalyzer{})
	if e.Cancel("no-such-run") {
		t.Error("Cancel() = true for an unknown run ID")
	}
}

func TestShutdownCancelsActiveRuns(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	e, s := newEngine(t, &stubAnalyzer{block: block})

	ids := make([]string, 0, 2)
	for i := 0; i < 2; i++ {
		id, err := e.Submit(context.Background(), &models.AnalysisRequest{IssueDescription: "x"})
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		ids = append(ids, id)
	}
	if got := len(e.ActiveRuns()); got != 2 {
		t.Fatalf("ActiveRuns() = %d, want 2", got)
	}

	e.Shutdown()

	for _, id := range ids {
		if run := waitForTerminal(t, s, id); run.Status != models.RunCanceled {
			t.Errorf("run %s status = %s, want canceled", id, run.Status)
		}
	}
	if got := len(e.ActiveRuns()); got != 0 {
		t.Errorf("ActiveRuns() = %d after shutdown, want 0", got)
	}
}
