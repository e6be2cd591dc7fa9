package ticketing

import (
	"context"
	"strings"

	"github.com/causekit/causekit/internal/config"
	"github.com/causekit/causekit/internal/jira"
	"github.com/causekit/causekit/pkg/contracts"
	"github.com/causekit/causekit/pkg/models"
)

// IssueCreator is the slice of the Jira client the driver needs.
type IssueCreator interface {
	CreateIssue(ctx context.Context, req jira.CreateRequest) (string, error)
}

// JiraDriver files tickets in Jira. Escalations and defects can land in
// separate projects; both fall back to the default project key.
type JiraDriver struct {
	creator IssueCreator
	cfg     config.JiraConfig
}

func NewJiraDriver(creator IssueCreator, cfg config.JiraConfig) *JiraDriver {
	return &JiraDriver{creator: creator, cfg: cfg}
}

func (d *JiraDriver) Name() string { return "jira" }

func (d *JiraDriver) Create(ctx context.Context, req *models.TicketRequest) (string, error) {
	return d.creator.CreateIssue(ctx, jira.CreateRequest{
		Project:     d.projectFor(req.Kind),
		Summary:     req.Summary,
		Description: buildDescription(req),
		IssueType:   d.cfg.IssueType,
		Priority:    req.Priority,
	})
}

func (d *JiraDriver) projectFor(kind models.TicketKind) string {
	switch kind {
	case models.TicketEscalation:
		if d.cfg.EscalationProject != "" {
			return d.cfg.EscalationProject
		}
	case models.TicketDefect:
		if d.cfg.DefectProject != "" {
			return d.cfg.DefectProject
		}
	}
	return d.cfg.ProjectKey
}

func buildDescription(req *models.TicketRequest) string {
	if len(req.Evidence) == 0 {
		return req.Description
	}
	var b strings.Builder
	b.WriteString(req.Description)
	b.WriteString("\n\nEvidence:\n")
	for _, label := range req.Evidence {
		b.WriteString("- " + label + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

var _ contracts.TicketDriver = (*JiraDriver)(nil)
