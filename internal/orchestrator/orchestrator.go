// Package orchestrator drives one analysis end to end: collect
// evidence, assemble the prompt, invoke the gateway, parse the reply,
// apply ticket policy. Stages run strictly forward and there is no
// retry loop across them; the gateway's single transient retry is the
// only retry anywhere in the pipeline.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/causekit/causekit/internal/config"
	"github.com/causekit/causekit/internal/evidence"
	"github.com/causekit/causekit/internal/metrics"
	"github.com/causekit/causekit/internal/parser"
	"github.com/causekit/causekit/internal/prompt"
	"github.com/causekit/causekit/pkg/contracts"
	"github.com/causekit/causekit/pkg/models"
)

var tracer = otel.Tracer("causekit")

// Orchestrator coordinates the pipeline components for single runs. It
// holds no per-run state; concurrent Run calls share only configuration
// and the (stateless) collaborators.
type Orchestrator struct {
	cfg       *config.Config
	catalog   contracts.TemplateCatalog
	collector *evidence.Collector
	assembler *prompt.Assembler
	gateway   contracts.GatewayService
	policy    *Policy
	tickets   contracts.TicketingService
	metrics   *metrics.Metrics
}

// New builds the orchestrator and compiles the ticket policy rules.
// tickets and m may be nil.
func New(cfg *config.Config, catalog contracts.TemplateCatalog, collector *evidence.Collector,
	assembler *prompt.Assembler, gw contracts.GatewayService, tickets contracts.TicketingService,
	m *metrics.Metrics) (*Orchestrator, error) {

	policy, err := NewPolicy(cfg.Escalation)
	if err != nil {
		return nil, fmt.Errorf("escalation policy: %w", err)
	}
	return &Orchestrator{
		cfg:       cfg,
		catalog:   catalog,
		collector: collector,
		assembler: assembler,
		gateway:   gw,
		policy:    policy,
		tickets:   tickets,
		metrics:   m,
	}, nil
}

// Run executes one analysis. The returned Outcome encodes every way a
// run can end; Run itself never fails. Cancellation is honored at stage
// boundaries; in-flight I/O runs to completion or timeout.
func (o *Orchestrator) Run(ctx context.Context, req *models.AnalysisRequest) (out *models.Outcome) {
	start := time.Now()
	templateID := req.TemplateID
	if templateID == "" {
		templateID = o.cfg.DefaultTemplate
	}

	ctx, span := tracer.Start(ctx, "analysis.run",
		trace.WithAttributes(attribute.String("template_id", templateID)))
	defer span.End()
	defer func() {
		if out == nil {
			return
		}
		o.metrics.ObserveRun(string(out.Status), time.Since(start).Seconds())
		span.SetAttributes(attribute.String("outcome", string(out.Status)))
		log.Info().
			Str("template_id", templateID).
			Str("outcome", string(out.Status)).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("Analysis run finished")
	}()

	// Collecting
	collectCtx, collectSpan := tracer.Start(ctx, "analysis.collect")
	col := o.collector.Collect(collectCtx, req.Evidence)
	collectSpan.SetAttributes(
		attribute.Int("evidence.resolved", len(col.Items)),
		attribute.Int("evidence.dropped", len(col.Dropped)),
	)
	collectSpan.End()

	if len(col.Items) == 0 && strings.TrimSpace(req.IssueDescription) == "" {
		return models.FailureOutcome(models.ErrKindInsufficientInput,
			"no evidence resolved and no issue description was provided")
	}
	if ctx.Err() != nil {
		return models.FailureOutcome(models.ErrKindProviderUnavailable,
			"run canceled before provider invocation")
	}

	// Prompting
	tpl, err := o.catalog.Lookup(templateID)
	if err != nil {
		return models.FailureOutcome(models.ErrKindConfiguration,
			fmt.Sprintf("unknown template %q", templateID))
	}
	promptText := o.assembler.Build(req, tpl, col.Items)

	// Invoking
	invokeCtx, invokeSpan := tracer.Start(ctx, "analysis.invoke")
	reply, err := o.gateway.Invoke(invokeCtx, promptText, req.Providers, models.CallOptions{})
	invokeSpan.End()
	if err != nil {
		if models.KindOf(err) == models.ErrKindConfiguration {
			return models.FailureOutcome(models.ErrKindConfiguration, err.Error())
		}
		return models.FailureOutcome(models.ErrKindProviderUnavailable, err.Error())
	}
	if strings.TrimSpace(reply.Text) == "" {
		return models.FailureOutcome(models.ErrKindMalformedResponse,
			fmt.Sprintf("provider %s returned an empty reply", reply.Provider))
	}

	// Parsing
	parsed := parser.Parse(reply.Text)
	warnings := make([]string, 0, len(col.Notes)+len(parsed.Warnings))
	warnings = append(warnings, col.Notes...)
	warnings = append(warnings, parsed.Warnings...)
	result := &models.AnalysisResult{
		StructuredFields: parsed.StructuredFields,
		Sections:         parsed.Sections,
		RawText:          reply.Text,
		ProviderUsed:     reply.Provider,
		Model:            reply.Model,
		Usage:            reply.Usage,
		LatencyMs:        reply.LatencyMs,
		Warnings:         warnings,
	}

	// PostProcessing. The analysis is complete at this point: ticket
	// trouble can only downgrade the outcome, never void the result.
	runWarnings := append([]string(nil), col.Dropped...)
	var ticketResults []models.TicketResult
	if ctx.Err() == nil && o.tickets != nil {
		if ticketReqs := o.policy.Decide(result, req); len(ticketReqs) > 0 {
			ticketCtx, ticketSpan := tracer.Start(ctx, "analysis.tickets")
			ticketResults = o.tickets.CreateTickets(ticketCtx, ticketReqs)
			ticketSpan.SetAttributes(attribute.Int("tickets.requested", len(ticketReqs)))
			ticketSpan.End()
			for _, tr := range ticketResults {
				if !tr.Success {
					runWarnings = append(runWarnings,
						fmt.Sprintf("%s ticket not created: %s", tr.Kind, tr.Error))
				}
			}
		}
	}

	if len(runWarnings) > 0 {
		out = models.PartialOutcome(result, runWarnings)
	} else {
		out = models.SuccessOutcome(result)
	}
	out.Tickets = ticketResults
	return out
}

var _ contracts.AnalysisService = (*Orchestrator)(nil)
