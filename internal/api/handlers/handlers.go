// Package handlers implements the HTTP handlers for the analysis API.
// Submission is asynchronous: POST /api/v1/analyses returns a run ID
// and the caller polls the run endpoint for the outcome.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/causekit/causekit/internal/config"
	"github.com/causekit/causekit/internal/store"
	"github.com/causekit/causekit/pkg/contracts"
	"github.com/causekit/causekit/pkg/models"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Store   store.Store
	Engine  contracts.EngineService
	Catalog contracts.TemplateCatalog
	Gateway contracts.GatewayService
	Config  *config.Config
}

// New creates a Handlers instance with all dependencies.
func New(s store.Store, e contracts.EngineService, cat contracts.TemplateCatalog, gw contracts.GatewayService, cfg *config.Config) *Handlers {
	return &Handlers{Store: s, Engine: e, Catalog: cat, Gateway: gw, Config: cfg}
}

// ── Analysis Handlers ────────────────────────────────────────

func (h *Handlers) SubmitAnalysis(w http.ResponseWriter, r *http.Request) {
	var req models.AnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	runID, err := h.Engine.Submit(r.Context(), &req)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{
		"run_id": runID,
		"status": string(models.RunSubmitted),
	})
}

func (h *Handlers) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	filter := store.RunFilter{
		Status:     models.RunStatus(r.URL.Query().Get("status")),
		TemplateID: r.URL.Query().Get("template"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}

	runs, err := h.Store.ListRuns(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	summaries := make([]runSummary, 0, len(runs))
	for i := range runs {
		summaries = append(summaries, summarize(&runs[i]))
	}
	respondJSON(w, http.StatusOK, summaries)
}

func (h *Handlers) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	run, err := h.Store.GetRun(r.Context(), runID)
	if err != nil {
		if _, ok := err.(*store.ErrNotFound); ok {
			respondError(w, http.StatusNotFound, err.Error())
		} else {
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	respondJSON(w, http.StatusOK, run)
}

func (h *Handlers) CancelAnalysis(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	if _, err := h.Store.GetRun(r.Context(), runID); err != nil {
		if _, ok := err.(*store.ErrNotFound); ok {
			respondError(w, http.StatusNotFound, err.Error())
		} else {
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	if !h.Engine.Cancel(runID) {
		respondError(w, http.StatusConflict, "run is not active")
		return
	}

	log.Info().Str("run_id", runID).Msg("Cancel requested")
	respondJSON(w, http.StatusAccepted, map[string]string{
		"run_id": runID,
		"status": "canceling",
	})
}

// ── Template & Provider Handlers ─────────────────────────────

func (h *Handlers) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates := h.Catalog.List()
	if templates == nil {
		templates = []*models.Template{}
	}
	respondJSON(w, http.StatusOK, templates)
}

func (h *Handlers) ListProviders(w http.ResponseWriter, r *http.Request) {
	views := make([]providerView, 0, len(h.Config.Providers))
	for i := range h.Config.Providers {
		p := &h.Config.Providers[i]
		views = append(views, providerView{
			Name:       p.Name,
			Kind:       p.Kind,
			Model:      p.Model,
			BaseURL:    p.BaseURL,
			Configured: p.Configured(),
		})
	}
	respondJSON(w, http.StatusOK, views)
}

func (h *Handlers) ProviderHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Gateway.HealthCheck(r.Context()))
}

// ── Health & Info ────────────────────────────────────────────

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if err := h.Store.Ping(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, code, map[string]interface{}{
		"status":      status,
		"service":     "causekit",
		"active_runs": len(h.Engine.ActiveRuns()),
	})
}

func (h *Handlers) Version(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"version": h.Config.Version,
		"service": "causekit",
	})
}

// ── Wire shapes ──────────────────────────────────────────────

// runSummary is the list-view projection of a run. The full record,
// including the raw model reply, is served by the single-run endpoint.
type runSummary struct {
	ID           string               `json:"id"`
	Status       models.RunStatus     `json:"status"`
	TemplateID   string               `json:"template_id,omitempty"`
	Outcome      models.OutcomeStatus `json:"outcome,omitempty"`
	ErrorKind    models.ErrorKind     `json:"error_kind,omitempty"`
	Error        string               `json:"error,omitempty"`
	ProviderUsed string               `json:"provider_used,omitempty"`
	Warnings     int                  `json:"warnings,omitempty"`
	StartedAt    time.Time            `json:"started_at"`
	CompletedAt  *time.Time           `json:"completed_at,omitempty"`
	DurationMs   int64                `json:"duration_ms,omitempty"`
}

func summarize(run *models.AnalysisRun) runSummary {
	s := runSummary{
		ID:           run.ID,
		Status:       run.Status,
		TemplateID:   run.TemplateID,
		Error:        run.Error,
		ProviderUsed: run.ProviderUsed,
		StartedAt:    run.StartedAt,
		CompletedAt:  run.CompletedAt,
		DurationMs:   run.DurationMs,
	}
	if run.Outcome != nil {
		s.Outcome = run.Outcome.Status
		s.ErrorKind = run.Outcome.ErrorKind
		s.Warnings = len(run.Outcome.Warnings)
	}
	return s
}

// providerView is the key-masked projection of a provider config.
// Credentials never leave the process; only their presence does.
type providerView struct {
	Name       string              `json:"name"`
	Kind       models.ProviderKind `json:"kind"`
	Model      string              `json:"model,omitempty"`
	BaseURL    string              `json:"base_url,omitempty"`
	Configured bool                `json:"configured"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
