package orchestrator_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/causekit/causekit/internal/config"
	"github.com/causekit/causekit/internal/evidence"
	"github.com/causekit/causekit/internal/orchestrator"
	"github.com/causekit/causekit/internal/prompt"
	"github.com/causekit/causekit/pkg/contracts"
	"github.com/causekit/causekit/pkg/models"
)

// ── Stubs ───────────────────────────────────────────────────

type stubGateway struct {
	reply     *models.RawModelReply
	err       error
	gotPrompt string
	gotPref   []string
}

func (g *stubGateway) Invoke(ctx context.Context, prompt string, preference []string, opts models.CallOptions) (*models.RawModelReply, error) {
	g.gotPrompt = prompt
	g.gotPref = preference
	return g.reply, g.err
}

func (g *stubGateway) HealthCheck(ctx context.Context) []models.ProviderStatus { return nil }

func (g *stubGateway) Providers() []string { return []string{"openai"} }

type stubTickets struct {
	results []models.TicketResult
	got     []models.TicketRequest
}

func (s *stubTickets) CreateTickets(ctx context.Context, reqs []models.TicketRequest) []models.TicketResult {
	s.got = reqs
	if s.results != nil {
		return s.results
	}
	out := make([]models.TicketResult, len(reqs))
	for i, r := range reqs {
		out[i] = models.TicketResult{Kind: r.Kind, Key: fmt.Sprintf("T-%d", i+1), Success: true, Timestamp: time.Now()}
	}
	return out
}

type stubSource struct {
	kind  models.SourceKind
	fetch func(ctx context.Context, id string) (*models.EvidenceItem, error)
}

func (s *stubSource) Kind() models.SourceKind { return s.kind }

func (s *stubSource) Fetch(ctx context.Context, id string) (*models.EvidenceItem, error) {
	return s.fetch(ctx, id)
}

func echoSource(kind models.SourceKind) *stubSource {
	return &stubSource{kind: kind, fetch: func(ctx context.Context, id string) (*models.EvidenceItem, error) {
		return &models.EvidenceItem{SourceKind: kind, Identifier: id, Text: "content of " + id}, nil
	}}
}

func failSource(kind models.SourceKind) *stubSource {
	return &stubSource{kind: kind, fetch: func(ctx context.Context, id string) (*models.EvidenceItem, error) {
		return nil, fmt.Errorf("connection refused")
	}}
}

func newOrchestrator(t *testing.T, gw contracts.GatewayService, tickets contracts.TicketingService, sources ...contracts.Source) *orchestrator.Orchestrator {
	t.Helper()
	cfg := config.Defaults()
	catalog, err := prompt.NewCatalog("")
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}
	collector := evidence.NewCollector(cfg, nil, sources...)
	o, err := orchestrator.New(cfg, catalog, collector, prompt.NewAssembler(cfg), gw, tickets, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return o
}

// reply constructs a successful gateway record around the given text.
func reply(text string) *models.RawModelReply {
	return &models.RawModelReply{
		Provider:  "openai",
		Model:     "gpt-4o",
		Text:      text,
		LatencyMs: 1200,
		Succeeded: true,
		Usage:     models.TokenUsage{InputTokens: 900, OutputTokens: 400, TotalTokens: 1300},
	}
}

func analysisReply(severity, escalationNeeded, defectNeeded string) string {
	return fmt.Sprintf(`{
  "executive_summary": "Heartbeat loss after the config rollout.",
  "problem_statement": "Cluster nodes dropped out of quorum.",
  "root_cause": "MTU mismatch on the replication VLAN.",
  "impact_assessment": "Writes stalled for 40 minutes.",
  "severity": %q,
  "priority": "P2",
  "escalation_needed": %q,
  "defect_tickets_needed": %q
}

### a) Kepner-Tregoe Problem Analysis Template

#### 1. Problem Statement
Cluster nodes dropped out of quorum after the rollout.

### b) Problem Assessment

| Problem Assessment | IS | IS NOT |
|---|---|---|
| What | Quorum loss | Disk failure |
`, severity, escalationNeeded, defectNeeded)
}

func fileItem(id string) models.EvidenceItem {
	return models.EvidenceItem{SourceKind: models.SourceFile, Identifier: id}
}

// ── Runs ────────────────────────────────────────────────────

func TestRunSuccess(t *testing.T) {
	gw := &stubGateway{reply: reply(analysisReply("Low", "false", "false"))}
	o := newOrchestrator(t, gw, &stubTickets{}, echoSource(models.SourceFile))

	out := o.Run(context.Background(), &models.AnalysisRequest{
		IssueDescription: "nodes dropped out of quorum",
		Evidence:         []models.EvidenceItem{fileItem("events.log")},
	})

	if out.Status != models.OutcomeSuccess {
		t.Fatalf("Status = %s, want success (outcome: %+v)", out.Status, out)
	}
	if out.Result == nil {
		t.Fatal("Result is nil")
	}
	if got := out.Result.Field("root_cause"); got != "MTU mismatch on the replication VLAN." {
		t.Errorf("Field(root_cause) = %q", got)
	}
	if len(out.Result.Sections) == 0 {
		t.Error("Sections is empty, heading scan lost the formatted part")
	}
	if out.Result.ProviderUsed != "openai" || out.Result.Model != "gpt-4o" {
		t.Errorf("provider/model = %s/%s", out.Result.ProviderUsed, out.Result.Model)
	}
	if out.Result.RawText == "" {
		t.Error("RawText not carried through")
	}
	if !strings.Contains(gw.gotPrompt, "## Issue Description:") {
		t.Error("prompt missing issue description header")
	}
	if !strings.Contains(gw.gotPrompt, "content of events.log") {
		t.Error("prompt missing evidence text")
	}
}

func TestRunPartialOnDroppedEvidence(t *testing.T) {
	gw := &stubGateway{reply: reply(analysisReply("Low", "false", "false"))}
	o := newOrchestrator(t, gw, &stubTickets{}, echoSource(models.SourceFile), failSource(models.SourceURL))

	out := o.Run(context.Background(), &models.AnalysisRequest{
		Evidence: []models.EvidenceItem{
			fileItem("events.log"),
			{SourceKind: models.SourceURL, Identifier: "https://dead.example.com"},
		},
	})

	if out.Status != models.OutcomePartialFailure {
		t.Fatalf("Status = %s, want partial_failure", out.Status)
	}
	if out.Result == nil {
		t.Fatal("Result is nil, partial failure must still carry the analysis")
	}
	if len(out.Warnings) != 1 || !strings.Contains(out.Warnings[0], "dropped") {
		t.Errorf("Warnings = %v, want one dropped-evidence warning", out.Warnings)
	}
}

func TestRunInsufficientInput(t *testing.T) {
	gw := &stubGateway{reply: reply("unused")}
	o := newOrchestrator(t, gw, &stubTickets{}, failSource(models.SourceFile))

	out := o.Run(context.Background(), &models.AnalysisRequest{
		Evidence: []models.EvidenceItem{fileItem("gone.log")},
	})

	if out.Status != models.OutcomeFailure {
		t.Fatalf("Status = %s, want failure", out.Status)
	}
	if out.ErrorKind != models.ErrKindInsufficientInput {
		t.Errorf("ErrorKind = %s, want insufficient_input", out.ErrorKind)
	}
	if gw.gotPrompt != "" {
		t.Error("gateway should not have been invoked")
	}
}

func TestRunDescriptionOnly(t *testing.T) {
	gw := &stubGateway{reply: reply(analysisReply("Low", "false", "false"))}
	o := newOrchestrator(t, gw, &stubTickets{})

	out := o.Run(context.Background(), &models.AnalysisRequest{
		IssueDescription: "intermittent 502s from the edge proxy",
	})

	if out.Status != models.OutcomeSuccess {
		t.Fatalf("Status = %s, want success", out.Status)
	}
}

func TestRunUnknownTemplate(t *testing.T) {
	gw := &stubGateway{reply: reply("unused")}
	o := newOrchestrator(t, gw, &stubTickets{}, echoSource(models.SourceFile))

	out := o.Run(context.Background(), &models.AnalysisRequest{
		Evidence:   []models.EvidenceItem{fileItem("events.log")},
		TemplateID: "five-whys",
	})

	if out.Status != models.OutcomeFailure || out.ErrorKind != models.ErrKindConfiguration {
		t.Fatalf("outcome = %s/%s, want failure/configuration_error", out.Status, out.ErrorKind)
	}
	if !strings.Contains(out.Error, "five-whys") {
		t.Errorf("Error = %q, want template id in detail", out.Error)
	}
}

func TestRunGatewayFailure(t *testing.T) {
	lastAttempt := &models.RawModelReply{
		Provider: "anthropic", Succeeded: false,
		ErrorKind: models.ErrKindProviderTimeout, Error: "deadline exceeded",
	}
	gw := &stubGateway{
		reply: lastAttempt,
		err: models.NewClassifiedError(models.ErrKindProviderTimeout, "anthropic",
			fmt.Errorf("all providers failed, last error: deadline exceeded")),
	}
	o := newOrchestrator(t, gw, &stubTickets{}, echoSource(models.SourceFile))

	out := o.Run(context.Background(), &models.AnalysisRequest{
		Evidence: []models.EvidenceItem{fileItem("events.log")},
	})

	if out.Status != models.OutcomeFailure {
		t.Fatalf("Status = %s, want failure", out.Status)
	}
	if out.ErrorKind != models.ErrKindProviderUnavailable {
		t.Errorf("ErrorKind = %s, want provider_unavailable", out.ErrorKind)
	}
	if !strings.Contains(out.Error, "all providers failed, last error: deadline exceeded") {
		t.Errorf("Error = %q, want last attempt detail", out.Error)
	}
}

func TestRunEmptyReply(t *testing.T) {
	gw := &stubGateway{reply: reply("   \n")}
	o := newOrchestrator(t, gw, &stubTickets{}, echoSource(models.SourceFile))

	out := o.Run(context.Background(), &models.AnalysisRequest{
		Evidence: []models.EvidenceItem{fileItem("events.log")},
	})

	if out.Status != models.OutcomeFailure || out.ErrorKind != models.ErrKindMalformedResponse {
		t.Fatalf("outcome = %s/%s, want failure/malformed_provider_response", out.Status, out.ErrorKind)
	}
}

func TestRunParserWarningsStaySuccess(t *testing.T) {
	raw := "{\"severity\": \"Low\",}\n\n## Recommendations\nReplace the flapping switch.\n"
	gw := &stubGateway{reply: reply(raw)}
	o := newOrchestrator(t, gw, &stubTickets{}, echoSource(models.SourceFile))

	out := o.Run(context.Background(), &models.AnalysisRequest{
		Evidence: []models.EvidenceItem{fileItem("events.log")},
	})

	if out.Status != models.OutcomeSuccess {
		t.Fatalf("Status = %s, want success despite parser warnings", out.Status)
	}
	if len(out.Result.StructuredFields) != 0 {
		t.Errorf("StructuredFields = %v, want empty for malformed JSON", out.Result.StructuredFields)
	}
	if len(out.Result.Warnings) == 0 {
		t.Error("Result.Warnings empty, JSON failure should be recorded")
	}
	found := false
	for _, s := range out.Result.Sections {
		if s.Key == "recommendations" {
			found = true
		}
	}
	if !found {
		t.Error("sections missing recommendations heading")
	}
}

func TestRunTicketsCreated(t *testing.T) {
	tickets := &stubTickets{}
	gw := &stubGateway{reply: reply(analysisReply("Critical", "true", "true"))}
	o := newOrchestrator(t, gw, tickets, echoSource(models.SourceFile))

	out := o.Run(context.Background(), &models.AnalysisRequest{
		Evidence: []models.EvidenceItem{fileItem("events.log")},
	})

	if out.Status != models.OutcomeSuccess {
		t.Fatalf("Status = %s, want success", out.Status)
	}
	if len(tickets.got) != 2 {
		t.Fatalf("ticket requests = %d, want escalation and defect", len(tickets.got))
	}
	if tickets.got[0].Kind != models.TicketEscalation || tickets.got[1].Kind != models.TicketDefect {
		t.Errorf("ticket order = %s, %s", tickets.got[0].Kind, tickets.got[1].Kind)
	}
	if tickets.got[0].Priority != "Highest" {
		t.Errorf("escalation priority = %q, want Highest for Critical severity", tickets.got[0].Priority)
	}
	if len(out.Tickets) != 2 || !out.Tickets[0].Success {
		t.Errorf("outcome tickets = %+v", out.Tickets)
	}
}

func TestRunTicketFailureDowngrades(t *testing.T) {
	tickets := &stubTickets{results: []models.TicketResult{
		{Kind: models.TicketEscalation, Success: false, Error: "jira HTTP 503", Timestamp: time.Now()},
	}}
	gw := &stubGateway{reply: reply(analysisReply("Critical", "true", "false"))}
	o := newOrchestrator(t, gw, tickets, echoSource(models.SourceFile))

	out := o.Run(context.Background(), &models.AnalysisRequest{
		Evidence: []models.EvidenceItem{fileItem("events.log")},
	})

	if out.Status != models.OutcomePartialFailure {
		t.Fatalf("Status = %s, want partial_failure", out.Status)
	}
	if out.Result == nil {
		t.Fatal("Result nulled out by ticket failure")
	}
	if len(out.Warnings) != 1 || !strings.Contains(out.Warnings[0], "ticket not created") {
		t.Errorf("Warnings = %v", out.Warnings)
	}
	if len(out.Tickets) != 1 || out.Tickets[0].Success {
		t.Errorf("Tickets = %+v, want the failed attempt on record", out.Tickets)
	}
}

func TestRunProviderPreferencePassthrough(t *testing.T) {
	gw := &stubGateway{reply: reply(analysisReply("Low", "false", "false"))}
	o := newOrchestrator(t, gw, &stubTickets{}, echoSource(models.SourceFile))

	o.Run(context.Background(), &models.AnalysisRequest{
		Evidence:  []models.EvidenceItem{fileItem("events.log")},
		Providers: []string{"anthropic", "openai"},
	})

	if len(gw.gotPref) != 2 || gw.gotPref[0] != "anthropic" || gw.gotPref[1] != "openai" {
		t.Errorf("preference = %v, want caller order untouched", gw.gotPref)
	}
}

func TestRunCanceledBeforeInvoke(t *testing.T) {
	gw := &stubGateway{reply: reply("unused")}
	o := newOrchestrator(t, gw, &stubTickets{}, echoSource(models.SourceFile))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := o.Run(ctx, &models.AnalysisRequest{
		IssueDescription: "canceled before start",
		Evidence:         []models.EvidenceItem{fileItem("events.log")},
	})

	if out.Status != models.OutcomeFailure {
		t.Fatalf("Status = %s, want failure", out.Status)
	}
	if !strings.Contains(out.Error, "canceled") {
		t.Errorf("Error = %q", out.Error)
	}
	if gw.gotPrompt != "" {
		t.Error("gateway invoked after cancellation")
	}
}
