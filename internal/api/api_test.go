package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/causekit/causekit/internal/api"
	"github.com/causekit/causekit/internal/api/handlers"
	"github.com/causekit/causekit/internal/config"
	"github.com/causekit/causekit/internal/metrics"
	"github.com/causekit/causekit/internal/store"
	"github.com/causekit/causekit/pkg/models"
)

// ── Stubs ───────────────────────────────────────────────────

type stubEngine struct {
	submitted  *models.AnalysisRequest
	cancelOK   bool
	cancelSeen string
}

func (e *stubEngine) Submit(ctx context.Context, req *models.AnalysisRequest) (string, error) {
	e.submitted = req
	return "run-123", nil
}

func (e *stubEngine) Cancel(runID string) bool {
	e.cancelSeen = runID
	return e.cancelOK
}

func (e *stubEngine) ActiveRuns() []string { return nil }

type stubCatalog struct{}

func (c *stubCatalog) Lookup(id string) (*models.Template, error) {
	if id == "kt-analysis" {
		return &models.Template{ID: id, Title: "Kepner-Tregoe Analysis"}, nil
	}
	return nil, fmt.Errorf("unknown template %q", id)
}

func (c *stubCatalog) List() []*models.Template {
	return []*models.Template{
		{ID: "kt-analysis", Title: "Kepner-Tregoe Analysis"},
		{ID: "formal-rca", Title: "Formal RCA Report"},
	}
}

type stubGateway struct{}

func (g *stubGateway) Invoke(ctx context.Context, prompt string, preference []string, opts models.CallOptions) (*models.RawModelReply, error) {
	return nil, fmt.Errorf("not used")
}

func (g *stubGateway) HealthCheck(ctx context.Context) []models.ProviderStatus {
	return []models.ProviderStatus{
		{Name: "openai", Kind: models.ProviderOpenAI, Healthy: true, LatencyMs: 42},
		{Name: "anthropic", Kind: models.ProviderAnthropic, Healthy: false, Error: "401 from provider"},
	}
}

func (g *stubGateway) Providers() []string { return []string{"openai", "anthropic"} }

type fixture struct {
	store  store.Store
	engine *stubEngine
	router http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := store.NewMemoryStore("")
	t.Cleanup(func() { s.Close() })

	cfg := config.Defaults()
	cfg.Providers[0].APIKey = "sk-live-secret-value"

	e := &stubEngine{}
	h := handlers.New(s, e, &stubCatalog{}, &stubGateway{}, cfg)
	return &fixture{store: s, engine: e, router: api.NewRouter(h, nil)}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func seedRun(t *testing.T, s store.Store, id string, status models.RunStatus) {
	t.Helper()
	run := &models.AnalysisRun{
		ID:         id,
		Status:     status,
		TemplateID: "kt-analysis",
		StartedAt:  time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC),
	}
	if status == models.RunCompleted {
		done := run.StartedAt.Add(30 * time.Second)
		run.CompletedAt = &done
		run.Outcome = models.SuccessOutcome(&models.AnalysisResult{
			RawText:      "full reply text",
			ProviderUsed: "openai",
		})
	}
	if err := s.CreateRun(context.Background(), run); err != nil {
		t.Fatalf("CreateRun(%s) error = %v", id, err)
	}
}

// ── Analyses ────────────────────────────────────────────────

func TestSubmitAnalysis(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/analyses",
		`{"issue_description": "checkout 502s", "template_id": "kt-analysis"}`)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (body: %s)", rec.Code, rec.Body)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if resp["run_id"] != "run-123" || resp["status"] != "submitted" {
		t.Errorf("response = %v", resp)
	}
	if f.engine.submitted == nil || f.engine.submitted.IssueDescription != "checkout 502s" {
		t.Errorf("engine saw %+v", f.engine.submitted)
	}
}

func TestSubmitAnalysisBadBody(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/analyses", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetAnalysis(t *testing.T) {
	f := newFixture(t)
	seedRun(t, f.store, "run-9", models.RunCompleted)

	rec := f.do(t, http.MethodGet, "/api/v1/analyses/run-9", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var run models.AnalysisRun
	if err := json.Unmarshal(rec.Body.Bytes(), &run); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if run.ID != "run-9" || run.Outcome == nil || run.Outcome.Result.RawText != "full reply text" {
		t.Errorf("run = %+v, full record expected", run)
	}
}

func TestGetAnalysisNotFound(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/analyses/ghost", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestListAnalysesSummaries(t *testing.T) {
	f := newFixture(t)
	seedRun(t, f.store, "done-1", models.RunCompleted)
	seedRun(t, f.store, "done-2", models.RunCompleted)
	seedRun(t, f.store, "live-1", models.RunRunning)

	rec := f.do(t, http.MethodGet, "/api/v1/analyses?status=completed", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var got []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("list has %d entries, want 2", len(got))
	}
	if got[0]["outcome"] != "success" {
		t.Errorf("outcome = %v", got[0]["outcome"])
	}
	if strings.Contains(rec.Body.String(), "full reply text") {
		t.Error("list response leaks the raw reply, summaries expected")
	}
}

func TestListAnalysesBadLimit(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/analyses?limit=abc", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCancelAnalysis(t *testing.T) {
	f := newFixture(t)
	f.engine.cancelOK = true
	seedRun(t, f.store, "live-1", models.RunRunning)

	rec := f.do(t, http.MethodPost, "/api/v1/analyses/live-1/cancel", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (body: %s)", rec.Code, rec.Body)
	}
	if f.engine.cancelSeen != "live-1" {
		t.Errorf("engine canceled %q", f.engine.cancelSeen)
	}
}

func TestCancelAnalysisTerminal(t *testing.T) {
	f := newFixture(t)
	f.engine.cancelOK = false
	seedRun(t, f.store, "done-1", models.RunCompleted)

	rec := f.do(t, http.MethodPost, "/api/v1/analyses/done-1/cancel", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestCancelAnalysisNotFound(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/analyses/ghost/cancel", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

// ── Templates & Providers ───────────────────────────────────

func TestListTemplates(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/templates", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got []models.Template
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != "kt-analysis" {
		t.Errorf("templates = %+v", got)
	}
}

func TestListProvidersMasksKeys(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/providers", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "sk-live-secret-value") {
		t.Fatal("provider listing leaks an API key")
	}

	var got []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(got) == 0 {
		t.Fatal("no providers listed")
	}
	if got[0]["name"] != "openai" || got[0]["configured"] != true {
		t.Errorf("first provider = %v", got[0])
	}
}

func TestProviderHealth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/providers/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got []models.ProviderStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(got) != 2 || !got[0].Healthy || got[1].Error == "" {
		t.Errorf("statuses = %+v", got)
	}
}

// ── Health, version, metrics ────────────────────────────────

func TestHealth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"healthy"`) {
		t.Errorf("body = %s", rec.Body)
	}
}

func TestVersion(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/version", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got["service"] != "causekit" || got["version"] == "" {
		t.Errorf("version payload = %v", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := store.NewMemoryStore("")
	t.Cleanup(func() { s.Close() })

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	m.ObserveRun("success", 1.5)

	h := handlers.New(s, &stubEngine{}, &stubCatalog{}, &stubGateway{}, config.Defaults())
	router := api.NewRouter(h, registry)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "causekit_runs_total") {
		t.Error("metrics output missing causekit_runs_total")
	}
}
