// Package prompt turns an analysis request into the final model prompt:
// a template from the catalog, the issue description, and the collected
// evidence under per-source character budgets.
package prompt

import (
	"strings"

	"github.com/causekit/causekit/internal/config"
	"github.com/causekit/causekit/pkg/models"
)

// truncationMarker is appended wherever evidence text was cut to fit
// its budget, so the model and the reader both see the gap.
const truncationMarker = "[...truncated...]"

const noSourceData = "No source data available for analysis."

// Assembler builds prompts. Stateless apart from the configured
// per-source budgets.
type Assembler struct {
	budgets config.PromptConfig
}

func NewAssembler(cfg *config.Config) *Assembler {
	return &Assembler{budgets: cfg.Prompt}
}

// Build renders the full prompt: template body, issue description,
// domain context, source data (one block per evidence item, in request
// order), and the response format instructions.
func (a *Assembler) Build(req *models.AnalysisRequest, tpl *models.Template, evidence []models.EvidenceItem) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(tpl.Body, "\n"))

	if issue := strings.TrimSpace(req.IssueDescription); issue != "" {
		b.WriteString("\n\n## Issue Description:\n")
		b.WriteString(issue)
	}

	if domain := strings.TrimSpace(tpl.Context); domain != "" {
		b.WriteString("\n\n## Domain Context:\n")
		b.WriteString(domain)
	}

	b.WriteString("\n\n## Source Data for Analysis:\n")
	if len(evidence) == 0 {
		b.WriteString(noSourceData)
		b.WriteString("\n")
	}
	for _, item := range evidence {
		text, truncated := truncate(item.Text, a.budgets.Budget(item.SourceKind))
		b.WriteString("\n## ")
		b.WriteString(item.Label())
		b.WriteString("\n")
		b.WriteString(text)
		if truncated {
			b.WriteString("\n")
			b.WriteString(truncationMarker)
		}
		b.WriteString("\n")
	}

	if len(tpl.ResponseFields) > 0 {
		b.WriteString(formatInstructions(tpl.ResponseFields))
	}

	return b.String()
}

func formatInstructions(fields []string) string {
	var b strings.Builder
	b.WriteString("\n## Response Format Instructions:\n\n")
	b.WriteString("Provide your response in TWO parts:\n\n")
	b.WriteString("1. A JSON object containing these fields:\n")
	for _, f := range fields {
		b.WriteString("   - ")
		b.WriteString(f)
		b.WriteString("\n")
	}
	b.WriteString("\n2. The formatted markdown sections the template describes, after the JSON.\n")
	return b.String()
}

// truncate cuts text to at most budget characters. budget <= 0 means
// unlimited. Cuts land on rune boundaries.
func truncate(text string, budget int) (string, bool) {
	if budget <= 0 || len(text) <= budget {
		return text, false
	}
	count := 0
	for i := range text {
		if count == budget {
			return text[:i], true
		}
		count++
	}
	return text, false
}
