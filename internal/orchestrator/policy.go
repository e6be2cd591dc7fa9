package orchestrator

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog/log"

	"github.com/causekit/causekit/internal/config"
	"github.com/causekit/causekit/pkg/models"
)

// Policy decides which follow-up tickets a completed analysis warrants.
// The escalate and defect rules are boolean expressions over the
// analysis's structured fields, compiled once at startup.
type Policy struct {
	enabled     bool
	escalate    *vm.Program
	defect      *vm.Program
	priorityMap map[string]string
}

// NewPolicy compiles the configured rules. An invalid rule is a startup
// error, not a per-run one.
func NewPolicy(cfg config.EscalationConfig) (*Policy, error) {
	p := &Policy{enabled: cfg.Enabled, priorityMap: cfg.PriorityMap}
	if !cfg.Enabled {
		return p, nil
	}

	var err error
	if cfg.EscalateRule != "" {
		if p.escalate, err = compileRule(cfg.EscalateRule); err != nil {
			return nil, fmt.Errorf("escalate rule: %w", err)
		}
	}
	if cfg.DefectRule != "" {
		if p.defect, err = compileRule(cfg.DefectRule); err != nil {
			return nil, fmt.Errorf("defect rule: %w", err)
		}
	}
	return p, nil
}

func compileRule(rule string) (*vm.Program, error) {
	return expr.Compile(rule, expr.AsBool(), expr.AllowUndefinedVariables())
}

// Decide evaluates both rules against the result and returns the ticket
// requests to create, escalation before defect.
func (p *Policy) Decide(result *models.AnalysisResult, req *models.AnalysisRequest) []models.TicketRequest {
	if p == nil || !p.enabled || result == nil {
		return nil
	}

	env := ruleEnv(result)
	var out []models.TicketRequest
	if p.evalRule(p.escalate, env, "escalate") {
		out = append(out, p.buildRequest(models.TicketEscalation, result, req))
	}
	if p.evalRule(p.defect, env, "defect") {
		out = append(out, p.buildRequest(models.TicketDefect, result, req))
	}
	return out
}

func (p *Policy) evalRule(prog *vm.Program, env map[string]interface{}, name string) bool {
	if prog == nil {
		return false
	}
	out, err := expr.Run(prog, env)
	if err != nil {
		log.Warn().Err(err).Str("rule", name).Msg("Ticket rule evaluation failed")
		return false
	}
	matched, _ := out.(bool)
	return matched
}

// ruleEnv flattens the structured fields into strings. The decision
// fields are always present so rules never trip over a model that
// omitted one.
func ruleEnv(result *models.AnalysisResult) map[string]interface{} {
	env := map[string]interface{}{
		"severity":              "",
		"priority":              "",
		"escalation_needed":     "",
		"defect_tickets_needed": "",
	}
	for k := range result.StructuredFields {
		env[k] = result.Field(k)
	}
	return env
}

func (p *Policy) buildRequest(kind models.TicketKind, result *models.AnalysisResult, req *models.AnalysisRequest) models.TicketRequest {
	labels := make([]string, 0, len(req.Evidence))
	for _, item := range req.Evidence {
		labels = append(labels, item.Label())
	}

	var prefix string
	switch kind {
	case models.TicketEscalation:
		prefix = "Escalation: "
	case models.TicketDefect:
		prefix = "Defect: "
	}

	subject := firstNonEmpty(result.Field("problem_statement"), req.IssueDescription, "follow-up from automated analysis")

	var body strings.Builder
	if s := result.Field("executive_summary"); s != "" {
		body.WriteString(s + "\n\n")
	}
	if s := result.Field("root_cause"); s != "" {
		body.WriteString("Root cause: " + s + "\n")
	}
	if s := result.Field("impact_assessment"); s != "" {
		body.WriteString("Impact: " + s + "\n")
	}
	if s := result.Field("severity"); s != "" {
		body.WriteString("Severity: " + s + "\n")
	}

	return models.TicketRequest{
		Kind:        kind,
		Summary:     prefix + summaryLine(subject, 160),
		Description: strings.TrimRight(body.String(), "\n"),
		Priority:    p.priorityMap[result.Field("severity")],
		Evidence:    labels,
	}
}

func firstNonEmpty(candidates ...string) string {
	for _, c := range candidates {
		if strings.TrimSpace(c) != "" {
			return c
		}
	}
	return ""
}

// summaryLine flattens text onto one line and truncates it to at most
// limit runes.
func summaryLine(text string, limit int) string {
	line := strings.Join(strings.Fields(text), " ")
	runes := []rune(line)
	if len(runes) <= limit {
		return line
	}
	return strings.TrimRight(string(runes[:limit-3]), " ") + "..."
}
