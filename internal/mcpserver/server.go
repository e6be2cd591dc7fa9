// Package mcpserver exposes the analysis pipeline as MCP tools over
// stdio, so editor agents and other MCP clients can run analyses
// without going through the HTTP API.
package mcpserver

import (
	"context"
	"fmt"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/causekit/causekit/internal/config"
	"github.com/causekit/causekit/internal/engine"
	"github.com/causekit/causekit/internal/store"
	"github.com/causekit/causekit/pkg/contracts"
	"github.com/causekit/causekit/pkg/models"
)

// Server wraps the MCP SDK server around the run engine.
type Server struct {
	MCPServer *sdkmcp.Server

	engine  *engine.Engine
	store   store.Store
	catalog contracts.TemplateCatalog
	cfg     *config.Config
}

// NewServer creates an MCP server with the analysis tools registered.
func NewServer(e *engine.Engine, s store.Store, cat contracts.TemplateCatalog, cfg *config.Config) *Server {
	srv := &Server{engine: e, store: s, catalog: cat, cfg: cfg}
	srv.MCPServer = sdkmcp.NewServer(
		&sdkmcp.Implementation{Name: "causekit", Version: cfg.Version},
		nil,
	)
	srv.registerTools()
	return srv
}

// Run serves MCP over stdin/stdout until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	return s.MCPServer.Run(ctx, &sdkmcp.StdioTransport{})
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "run_analysis",
		Description: "Run a root cause analysis over the given evidence. Blocks until the run finishes and returns the structured result.",
	}, s.handleRunAnalysis)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_run",
		Description: "Fetch a stored analysis run by ID, including its outcome and warnings.",
	}, s.handleGetRun)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "list_templates",
		Description: "List the available analysis templates.",
	}, s.handleListTemplates)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "list_providers",
		Description: "List the configured model providers in fallback order. API keys are never included.",
	}, s.handleListProviders)
}

// ── Tool input/output types ─────────────────────────────────

type runAnalysisInput struct {
	Description string   `json:"description,omitempty" jsonschema:"free-form description of the issue"`
	TemplateID  string   `json:"template_id,omitempty" jsonschema:"analysis template ID (defaults to the configured template)"`
	Files       []string `json:"files,omitempty" jsonschema:"file paths to read as evidence"`
	URLs        []string `json:"urls,omitempty" jsonschema:"web pages to fetch as evidence"`
	Tickets     []string `json:"tickets,omitempty" jsonschema:"issue tracker keys to pull as evidence"`
	Providers   []string `json:"providers,omitempty" jsonschema:"provider preference order, overrides the configured fallback"`
}

type runAnalysisOutput struct {
	RunID     string                 `json:"run_id"`
	Outcome   string                 `json:"outcome"`
	ErrorKind string                 `json:"error_kind,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Provider  string                 `json:"provider,omitempty"`
	Model     string                 `json:"model,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Sections  []string               `json:"sections,omitempty"`
	Warnings  []string               `json:"warnings,omitempty"`
	Report    string                 `json:"report,omitempty"`
	Tickets   []models.TicketResult  `json:"tickets,omitempty"`
}

type getRunInput struct {
	RunID string `json:"run_id" jsonschema:"run ID returned by run_analysis or the HTTP API"`
}

type getRunOutput struct {
	Run *models.AnalysisRun `json:"run"`
}

type listTemplatesInput struct{}

type templateInfo struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type listTemplatesOutput struct {
	Templates []templateInfo `json:"templates"`
}

type listProvidersInput struct{}

type providerInfo struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Model      string `json:"model,omitempty"`
	Configured bool   `json:"configured"`
}

type listProvidersOutput struct {
	Providers []providerInfo `json:"providers"`
}

// ── Tool handlers ───────────────────────────────────────────

func (s *Server) handleRunAnalysis(ctx context.Context, _ *sdkmcp.CallToolRequest, input runAnalysisInput) (*sdkmcp.CallToolResult, runAnalysisOutput, error) {
	req := &models.AnalysisRequest{
		IssueDescription: input.Description,
		TemplateID:       input.TemplateID,
		Providers:        input.Providers,
	}
	for _, f := range input.Files {
		req.Evidence = append(req.Evidence, models.EvidenceItem{SourceKind: models.SourceFile, Identifier: f})
	}
	for _, u := range input.URLs {
		req.Evidence = append(req.Evidence, models.EvidenceItem{SourceKind: models.SourceURL, Identifier: u})
	}
	for _, k := range input.Tickets {
		req.Evidence = append(req.Evidence, models.EvidenceItem{SourceKind: models.SourceTicket, Identifier: k})
	}

	run, err := s.engine.RunSync(ctx, req)
	if err != nil {
		return nil, runAnalysisOutput{}, fmt.Errorf("run_analysis: %w", err)
	}

	out := runAnalysisOutput{
		RunID:   run.ID,
		Outcome: string(run.Outcome.Status),
	}
	if run.Outcome.Status == models.OutcomeFailure {
		out.ErrorKind = string(run.Outcome.ErrorKind)
		out.Error = run.Outcome.Error
		return nil, out, nil
	}

	result := run.Outcome.Result
	out.Provider = result.ProviderUsed
	out.Model = result.Model
	out.Fields = result.StructuredFields
	for _, sec := range result.Sections {
		out.Sections = append(out.Sections, sec.Title)
	}
	out.Warnings = append(out.Warnings, run.Outcome.Warnings...)
	out.Warnings = append(out.Warnings, result.Warnings...)
	out.Report = result.RawText
	out.Tickets = run.Outcome.Tickets
	return nil, out, nil
}

func (s *Server) handleGetRun(ctx context.Context, _ *sdkmcp.CallToolRequest, input getRunInput) (*sdkmcp.CallToolResult, getRunOutput, error) {
	if input.RunID == "" {
		return nil, getRunOutput{}, fmt.Errorf("run_id is required")
	}
	run, err := s.store.GetRun(ctx, input.RunID)
	if err != nil {
		return nil, getRunOutput{}, err
	}
	return nil, getRunOutput{Run: run}, nil
}

func (s *Server) handleListTemplates(ctx context.Context, _ *sdkmcp.CallToolRequest, _ listTemplatesInput) (*sdkmcp.CallToolResult, listTemplatesOutput, error) {
	var out listTemplatesOutput
	for _, tpl := range s.catalog.List() {
		out.Templates = append(out.Templates, templateInfo{
			ID:          tpl.ID,
			Title:       tpl.Title,
			Description: tpl.Description,
		})
	}
	return nil, out, nil
}

func (s *Server) handleListProviders(ctx context.Context, _ *sdkmcp.CallToolRequest, _ listProvidersInput) (*sdkmcp.CallToolResult, listProvidersOutput, error) {
	var out listProvidersOutput
	for i := range s.cfg.Providers {
		p := &s.cfg.Providers[i]
		out.Providers = append(out.Providers, providerInfo{
			Name:       p.Name,
			Kind:       string(p.Kind),
			Model:      p.Model,
			Configured: p.Configured(),
		})
	}
	return nil, out, nil
}
