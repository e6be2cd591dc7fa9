// Package server wires the causekit components into a runnable service.
//
// This package lives in pkg/ (not internal/) so embedding applications
// can compose the pipeline themselves and mount the HTTP handler behind
// their own middleware.
//
// Usage:
//
//	srv, err := server.New("causekit.yaml")
//	http.ListenAndServe(fmt.Sprintf(":%d", srv.Port), srv.Handler)
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/causekit/causekit/internal/api"
	"github.com/causekit/causekit/internal/api/handlers"
	"github.com/causekit/causekit/internal/archive"
	"github.com/causekit/causekit/internal/config"
	"github.com/causekit/causekit/internal/engine"
	"github.com/causekit/causekit/internal/evidence"
	"github.com/causekit/causekit/internal/gateway"
	"github.com/causekit/causekit/internal/jira"
	"github.com/causekit/causekit/internal/mcpserver"
	"github.com/causekit/causekit/internal/metrics"
	"github.com/causekit/causekit/internal/orchestrator"
	"github.com/causekit/causekit/internal/prompt"
	"github.com/causekit/causekit/internal/store"
	"github.com/causekit/causekit/internal/telemetry"
	"github.com/causekit/causekit/internal/ticketing"
	"github.com/causekit/causekit/pkg/contracts"
)

// Server holds the composed causekit service.
type Server struct {
	// Handler serves the HTTP API, including /health and /metrics.
	Handler http.Handler

	// MCP serves the same pipeline as MCP tools over stdio.
	MCP *mcpserver.Server

	// Engine runs analyses in the background for the HTTP API.
	Engine *engine.Engine

	// Store is the run store; exposed for embedding applications.
	Store store.Store

	// Config is the effective configuration.
	Config *config.Config

	// Port is the HTTP port from the configuration.
	Port int

	// ShutdownFunc stops background work and flushes telemetry. Call it
	// after the HTTP server has stopped accepting requests.
	ShutdownFunc func(context.Context) error
}

// New loads configuration from path (and the environment) and composes
// the full service.
func New(configPath string) (*Server, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return NewWithConfig(cfg)
}

// NewWithConfig composes the service from an explicit configuration.
func NewWithConfig(cfg *config.Config) (*Server, error) {
	shutdownTelemetry, err := telemetry.Init(cfg.Telemetry, cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	dataStore, err := openStore(cfg.Store)
	if err != nil {
		return nil, err
	}
	log.Info().Str("backend", cfg.Store.Backend).Msg("✅ Run store initialized")

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	gw := gateway.New(cfg, m)
	log.Info().Int("providers", len(cfg.Providers)).Msg("✅ Provider gateway initialized")

	catalog, err := prompt.NewCatalog(cfg.Templates.Dir)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	log.Info().Int("templates", len(catalog.List())).Msg("✅ Template catalog loaded")

	analyzer, err := buildAnalyzer(cfg, gw, catalog, m)
	if err != nil {
		return nil, err
	}
	eng := engine.New(dataStore, analyzer)
	log.Info().Msg("✅ Analysis engine initialized")

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	if cfg.Archive.Enabled {
		jan := archive.NewJanitor(dataStore, archive.NewArchiver(cfg.Archive), cfg.Archive)
		go jan.Start(janitorCtx)
	}

	h := handlers.New(dataStore, eng, catalog, gw, cfg)
	router := api.NewRouter(h, registry)
	mcp := mcpserver.NewServer(eng, dataStore, catalog, cfg)

	shutdownFunc := func(ctx context.Context) error {
		eng.Shutdown()
		stopJanitor()
		if err := dataStore.Close(); err != nil {
			log.Warn().Err(err).Msg("Store close failed")
		}
		return shutdownTelemetry(ctx)
	}

	return &Server{
		Handler:      router,
		MCP:          mcp,
		Engine:       eng,
		Store:        dataStore,
		Config:       cfg,
		Port:         cfg.Port,
		ShutdownFunc: shutdownFunc,
	}, nil
}

// NewAnalyzer composes just the single-run pipeline, without the store,
// engine, or HTTP surface. The one-shot CLI uses this.
func NewAnalyzer(cfg *config.Config) (contracts.AnalysisService, error) {
	gw := gateway.New(cfg, nil)
	catalog, err := prompt.NewCatalog(cfg.Templates.Dir)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	return buildAnalyzer(cfg, gw, catalog, nil)
}

func buildAnalyzer(cfg *config.Config, gw contracts.GatewayService, catalog contracts.TemplateCatalog, m *metrics.Metrics) (*orchestrator.Orchestrator, error) {
	sources := []contracts.Source{
		evidence.NewFileSource(cfg.Evidence),
		evidence.NewURLSource(cfg.Evidence),
	}

	var tickets contracts.TicketingService
	if cfg.Jira.Configured() {
		jc := jira.NewClient(cfg.Jira)
		sources = append(sources, evidence.NewTicketSource(jc))
		tickets = ticketing.NewService(ticketing.NewJiraDriver(jc, cfg.Jira), m)
		log.Info().Str("project", cfg.Jira.ProjectKey).Msg("✅ Jira ticketing enabled")
	} else {
		log.Info().Msg("Jira not configured, ticket evidence and escalation tickets are disabled")
	}

	collector := evidence.NewCollector(cfg, m, sources...)
	assembler := prompt.NewAssembler(cfg)

	return orchestrator.New(cfg, catalog, collector, assembler, gw, tickets, m)
}

func openStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case "sqlite":
		s, err := store.NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, nil
	default:
		return store.NewMemoryStore(cfg.Path), nil
	}
}
