package evidence

import (
	"context"
	"errors"
	"strings"

	"github.com/causekit/causekit/internal/jira"
	"github.com/causekit/causekit/pkg/models"
)

// IssueReader is the slice of the Jira client that ticket evidence
// needs.
type IssueReader interface {
	GetIssue(ctx context.Context, key string) (*jira.Issue, error)
}

// TicketSource resolves Jira issue keys into rendered issue text. A nil
// reader makes every fetch fail, which surfaces as a per-item warning
// when Jira is not configured.
type TicketSource struct {
	reader IssueReader
}

func NewTicketSource(reader IssueReader) *TicketSource {
	return &TicketSource{reader: reader}
}

func (s *TicketSource) Kind() models.SourceKind { return models.SourceTicket }

func (s *TicketSource) Fetch(ctx context.Context, identifier string) (*models.EvidenceItem, error) {
	if s.reader == nil {
		return nil, errors.New("jira is not configured")
	}
	issue, err := s.reader.GetIssue(ctx, identifier)
	if err != nil {
		return nil, err
	}

	meta := map[string]string{"status": issue.Status}
	if issue.Priority != "" {
		meta["priority"] = issue.Priority
	}

	return &models.EvidenceItem{
		SourceKind: models.SourceTicket,
		Identifier: identifier,
		Text:       renderIssue(issue),
		Metadata:   meta,
	}, nil
}

// renderIssue flattens an issue into the line format the analysis
// prompt carries for ticket evidence.
func renderIssue(issue *jira.Issue) string {
	var b strings.Builder
	b.WriteString("Summary: " + issue.Summary + "\n")
	b.WriteString("Status: " + issue.Status + "\n")
	if issue.Priority != "" {
		b.WriteString("Priority: " + issue.Priority + "\n")
	}
	if issue.IssueType != "" {
		b.WriteString("Type: " + issue.IssueType + "\n")
	}
	if issue.Assignee != "" {
		b.WriteString("Assignee: " + issue.Assignee + "\n")
	}
	b.WriteString("Description: " + issue.Description)
	return strings.TrimSpace(b.String())
}
