// Package contracts defines the service interfaces of the causekit
// pipeline.
//
// The HTTP handlers, the CLI, and the MCP server all depend on these
// interfaces rather than on the concrete implementations, so a component
// can be swapped in the wiring code (pkg/server) without touching any
// surface.
package contracts

import (
	"context"

	"github.com/causekit/causekit/internal/config"
	"github.com/causekit/causekit/internal/store"
	"github.com/causekit/causekit/pkg/models"
)

// Store is a type alias for the internal Store interface, exposed so
// embedding applications can reference it without importing internal/.
type Store = store.Store

// ErrNotFound is a type alias for the internal ErrNotFound error.
type ErrNotFound = store.ErrNotFound

// ── Gateway Service ─────────────────────────────────────────

// GatewayService invokes language-model providers with ordered fallback.
// Implementation: internal/gateway.Gateway
type GatewayService interface {
	// Invoke tries the named providers strictly in order and returns the
	// first successful reply, or the record of the last failed attempt.
	Invoke(ctx context.Context, prompt string, preference []string, opts models.CallOptions) (*models.RawModelReply, error)

	// HealthCheck pings every configured provider.
	HealthCheck(ctx context.Context) []models.ProviderStatus

	// Providers lists the configured provider names in default order.
	Providers() []string
}

// ── Provider Driver ─────────────────────────────────────────

// Driver is the interface one provider integration implements. Drivers
// are registered on the gateway by kind; several configured providers may
// share a driver (the OpenAI-compatible kinds).
type Driver interface {
	// Kind returns the provider kind this driver serves.
	Kind() models.ProviderKind

	// Call sends one completion request to the provider. Errors must be
	// classified (models.ClassifiedError) so the gateway can decide
	// between failing over and retrying.
	Call(ctx context.Context, provider *config.Provider, prompt string, opts models.CallOptions) (*models.RawModelReply, error)

	// HealthCheck verifies the provider is reachable with the configured
	// credentials.
	HealthCheck(ctx context.Context, provider *config.Provider) error
}

// ── Analysis Service ────────────────────────────────────────

// AnalysisService runs the full pipeline for one request. The returned
// Outcome encodes success, partial failure, and failure; Run never
// returns a Go error.
// Implementation: internal/orchestrator.Orchestrator
type AnalysisService interface {
	Run(ctx context.Context, req *models.AnalysisRequest) *models.Outcome
}

// ── Engine Service ──────────────────────────────────────────

// EngineService manages asynchronous analysis runs for the HTTP API.
// Implementation: internal/engine.Engine
type EngineService interface {
	// Submit starts an async run and returns its ID immediately.
	Submit(ctx context.Context, req *models.AnalysisRequest) (string, error)

	// Cancel aborts a run at its next stage boundary. It reports whether
	// a live run was found; terminal runs cannot be canceled.
	Cancel(runID string) bool

	// ActiveRuns lists the IDs of runs still in flight.
	ActiveRuns() []string
}

// ── Evidence Source ─────────────────────────────────────────

// Source resolves evidence identifiers of one kind into text. Sources are
// registered on the collector; a fetch failure drops the single item with
// a warning and never aborts the run.
type Source interface {
	Kind() models.SourceKind
	Fetch(ctx context.Context, identifier string) (*models.EvidenceItem, error)
}

// ── Ticketing ───────────────────────────────────────────────

// TicketDriver creates follow-up tickets in one external tracker.
// Implementation: internal/ticketing.JiraDriver
type TicketDriver interface {
	Name() string
	Create(ctx context.Context, req *models.TicketRequest) (key string, err error)
}

// TicketingService dispatches ticket requests and reports per-ticket
// results. Fire-and-forget with reporting; failures are never retried.
type TicketingService interface {
	CreateTickets(ctx context.Context, reqs []models.TicketRequest) []models.TicketResult
}

// ── Template Catalog ────────────────────────────────────────

// TemplateCatalog resolves analysis template IDs.
// Implementation: internal/prompt.Catalog
type TemplateCatalog interface {
	Lookup(id string) (*models.Template, error)
	List() []*models.Template
}
