// Package jira is a minimal REST client for the pieces of the Jira API
// the pipeline touches: reading issues as evidence, JQL search, and
// creating escalation and defect tickets.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/causekit/causekit/internal/config"
)

const issueFieldList = "summary,description,status,assignee,created,updated,priority,issuetype"

const defaultSearchLimit = 50

// Issue is the subset of Jira issue fields the pipeline reads.
type Issue struct {
	Key         string `json:"key"`
	Summary     string `json:"summary"`
	Status      string `json:"status"`
	Assignee    string `json:"assignee,omitempty"`
	Priority    string `json:"priority,omitempty"`
	IssueType   string `json:"issue_type"`
	Created     string `json:"created"`
	Updated     string `json:"updated"`
	Description string `json:"description"`
}

// CreateRequest describes a new Jira issue.
type CreateRequest struct {
	Project     string
	Summary     string
	Description string
	IssueType   string
	Priority    string
}

// Client talks to one Jira instance with basic auth (account email +
// API token).
type Client struct {
	baseURL  string
	username string
	apiToken string
	client   *http.Client
}

func NewClient(cfg config.JiraConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.URL, "/"),
		username: cfg.Username,
		apiToken: cfg.APIToken,
		client:   &http.Client{Timeout: timeout},
	}
}

// GetIssue fetches one issue by key.
func (c *Client) GetIssue(ctx context.Context, key string) (*Issue, error) {
	endpoint := fmt.Sprintf("%s/rest/api/2/issue/%s?fields=%s", c.baseURL, url.PathEscape(key), issueFieldList)
	var payload issuePayload
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &payload); err != nil {
		return nil, err
	}
	return payload.toIssue(), nil
}

// Search runs a JQL query and returns up to maxResults issues.
func (c *Client) Search(ctx context.Context, jql string, maxResults int) ([]Issue, error) {
	if maxResults <= 0 {
		maxResults = defaultSearchLimit
	}
	body := map[string]interface{}{
		"jql":        jql,
		"maxResults": maxResults,
		"fields":     strings.Split(issueFieldList, ","),
	}
	var payload struct {
		Issues []issuePayload `json:"issues"`
	}
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/rest/api/2/search", body, &payload); err != nil {
		return nil, err
	}
	issues := make([]Issue, 0, len(payload.Issues))
	for _, p := range payload.Issues {
		issues = append(issues, *p.toIssue())
	}
	return issues, nil
}

// CreateIssue creates an issue and returns its key.
func (c *Client) CreateIssue(ctx context.Context, req CreateRequest) (string, error) {
	fields := map[string]interface{}{
		"project":     map[string]string{"key": req.Project},
		"summary":     req.Summary,
		"description": req.Description,
		"issuetype":   map[string]string{"name": req.IssueType},
	}
	if req.Priority != "" {
		fields["priority"] = map[string]string{"name": req.Priority}
	}

	var payload struct {
		Key string `json:"key"`
	}
	err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/rest/api/2/issue",
		map[string]interface{}{"fields": fields}, &payload)
	if err != nil {
		return "", err
	}
	return payload.Key, nil
}

// ── Transport ────────────────────────────────────────────────

func (c *Client) doJSON(ctx context.Context, method, endpoint string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(c.username, c.apiToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("jira request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("jira HTTP %d from %s: %s", resp.StatusCode, endpoint, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode jira response: %w", err)
	}
	return nil
}

// ── Wire shapes ──────────────────────────────────────────────

type issuePayload struct {
	Key    string      `json:"key"`
	Fields issueFields `json:"fields"`
}

type issueFields struct {
	Summary     string         `json:"summary"`
	Description string         `json:"description"`
	Created     string         `json:"created"`
	Updated     string         `json:"updated"`
	Status      *namedField    `json:"status"`
	Priority    *namedField    `json:"priority"`
	IssueType   *namedField    `json:"issuetype"`
	Assignee    *assigneeField `json:"assignee"`
}

type namedField struct {
	Name string `json:"name"`
}

type assigneeField struct {
	DisplayName string `json:"displayName"`
}

func (p *issuePayload) toIssue() *Issue {
	issue := &Issue{
		Key:         p.Key,
		Summary:     p.Fields.Summary,
		Description: p.Fields.Description,
		Created:     p.Fields.Created,
		Updated:     p.Fields.Updated,
	}
	if p.Fields.Status != nil {
		issue.Status = p.Fields.Status.Name
	}
	if p.Fields.Priority != nil {
		issue.Priority = p.Fields.Priority.Name
	}
	if p.Fields.IssueType != nil {
		issue.IssueType = p.Fields.IssueType.Name
	}
	if p.Fields.Assignee != nil {
		issue.Assignee = p.Fields.Assignee.DisplayName
	}
	return issue
}
