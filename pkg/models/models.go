package models

import (
	"errors"
	"fmt"
	"time"
)

// ── Error Kinds ──────────────────────────────────────────────

// ErrorKind classifies every failure the pipeline can surface. Handlers,
// the gateway, and the orchestrator all speak this vocabulary; a generic
// untyped error for a known condition is a bug.
type ErrorKind string

const (
	ErrKindInsufficientInput   ErrorKind = "insufficient_input"
	ErrKindConfiguration       ErrorKind = "configuration_error"
	ErrKindProviderAuth        ErrorKind = "provider_auth"
	ErrKindProviderQuota       ErrorKind = "provider_quota"
	ErrKindProviderTimeout     ErrorKind = "provider_timeout"
	ErrKindProviderUnavailable ErrorKind = "provider_unavailable"
	ErrKindMalformedResponse   ErrorKind = "malformed_provider_response"
	ErrKindTicketing           ErrorKind = "ticketing_error"
	// ErrKindParseWarning is never fatal; parser findings are collected
	// into result warnings instead of aborting the run.
	ErrKindParseWarning ErrorKind = "parse_warning"
)

// ClassifiedError attaches an ErrorKind (and optionally the provider that
// produced it) to an underlying error.
type ClassifiedError struct {
	Kind     ErrorKind
	Provider string
	Err      error
}

func (e *ClassifiedError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// NewClassifiedError wraps err with a kind and the provider it came from.
func NewClassifiedError(kind ErrorKind, provider string, err error) *ClassifiedError {
	return &ClassifiedError{Kind: kind, Provider: provider, Err: err}
}

// KindOf extracts the ErrorKind from an error chain. Unclassified errors
// report ErrKindProviderUnavailable so callers always get a usable kind.
func KindOf(err error) ErrorKind {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ErrKindProviderUnavailable
}

// ── Evidence ─────────────────────────────────────────────────

type SourceKind string

const (
	SourceFile   SourceKind = "file"
	SourceURL    SourceKind = "url"
	SourceTicket SourceKind = "ticket"
)

// EvidenceItem is one unit of input material. A request carries items with
// only SourceKind+Identifier set; the collecting stage fills Text and
// Metadata. Items are never mutated after collection.
type EvidenceItem struct {
	SourceKind SourceKind        `json:"source_kind"`
	Identifier string            `json:"identifier"`
	Text       string            `json:"text,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Label renders the evidence item for prompt headers and ticket bodies,
// e.g. "File: server.log" or "Ticket: CPE-9659".
func (e EvidenceItem) Label() string {
	switch e.SourceKind {
	case SourceFile:
		return "File: " + e.Identifier
	case SourceURL:
		return "URL: " + e.Identifier
	case SourceTicket:
		return "Ticket: " + e.Identifier
	default:
		return string(e.SourceKind) + ": " + e.Identifier
	}
}

// ── Analysis Request ─────────────────────────────────────────

// AnalysisRequest describes one analysis run. Read-only once submitted.
// Providers is an ordered preference list over configured provider names;
// empty means "use the configured default order".
type AnalysisRequest struct {
	IssueDescription string         `json:"issue_description,omitempty"`
	Evidence         []EvidenceItem `json:"evidence,omitempty"`
	TemplateID       string         `json:"template_id"`
	Providers        []string       `json:"providers,omitempty"`
}

// ── Model Invocation ─────────────────────────────────────────

type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

// CallOptions tunes a single gateway invocation. Nil pointer fields fall
// back to per-provider configuration.
type CallOptions struct {
	SystemPrompt string   `json:"system_prompt,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	MaxTokens    *int     `json:"max_tokens,omitempty"`
}

// RawModelReply is the record of one provider attempt. The gateway keeps
// the first successful reply, or the last failed one when every provider
// in the preference order has been exhausted.
type RawModelReply struct {
	Provider  string     `json:"provider"`
	Model     string     `json:"model,omitempty"`
	Text      string     `json:"text,omitempty"`
	LatencyMs int64      `json:"latency_ms"`
	Succeeded bool       `json:"succeeded"`
	ErrorKind ErrorKind  `json:"error_kind,omitempty"`
	Error     string     `json:"error,omitempty"`
	Usage     TokenUsage `json:"usage"`
}

// ── Structured Sections ──────────────────────────────────────

type SectionKind string

const (
	SectionNarrative SectionKind = "narrative"
	SectionTable     SectionKind = "table"
	SectionList      SectionKind = "list"
)

// TableContent holds a reconstructed markdown table. Every row has
// exactly len(Headers) cells; rows that did not are dropped at parse time
// with a recorded warning.
type TableContent struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// StructuredSection is one heading-delimited block of the model reply.
// Key is the normalized heading (lowercase, single spaces, punctuation
// stripped); Title preserves the original heading text.
type StructuredSection struct {
	Key   string        `json:"key"`
	Title string        `json:"title"`
	Kind  SectionKind   `json:"kind"`
	Text  string        `json:"text,omitempty"`
	Table *TableContent `json:"table,omitempty"`
}

// ParsedReply is the parser's output: the first top-level JSON object (if
// one parsed), the ordered sections, and any non-fatal findings.
type ParsedReply struct {
	StructuredFields map[string]interface{} `json:"structured_fields,omitempty"`
	Sections         []StructuredSection    `json:"sections,omitempty"`
	Warnings         []string               `json:"warnings,omitempty"`
}

// ── Analysis Result ──────────────────────────────────────────

// AnalysisResult is the definitive output of one completed run.
type AnalysisResult struct {
	StructuredFields map[string]interface{} `json:"structured_fields,omitempty"`
	Sections         []StructuredSection    `json:"sections,omitempty"`
	RawText          string                 `json:"raw_text"`
	ProviderUsed     string                 `json:"provider_used"`
	Model            string                 `json:"model,omitempty"`
	Usage            TokenUsage             `json:"usage"`
	LatencyMs        int64                  `json:"latency_ms"`
	Warnings         []string               `json:"warnings,omitempty"`
}

// Field returns the string form of a structured field, or "" when the
// field is absent. Non-string JSON values are formatted with fmt.
func (r *AnalysisResult) Field(key string) string {
	if r == nil || r.StructuredFields == nil {
		return ""
	}
	v, ok := r.StructuredFields[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// ── Outcome ──────────────────────────────────────────────────

type OutcomeStatus string

const (
	OutcomeSuccess        OutcomeStatus = "success"
	OutcomePartialFailure OutcomeStatus = "partial_failure"
	OutcomeFailure        OutcomeStatus = "failure"
)

// Outcome is the tagged result of a run. Success and PartialFailure carry
// a Result; Failure carries an ErrorKind and detail instead. Warnings are
// run-level (dropped evidence, ticket failures) as opposed to the
// parser-level warnings inside Result.
type Outcome struct {
	Status    OutcomeStatus   `json:"status"`
	Result    *AnalysisResult `json:"result,omitempty"`
	Warnings  []string        `json:"warnings,omitempty"`
	ErrorKind ErrorKind       `json:"error_kind,omitempty"`
	Error     string          `json:"error,omitempty"`
	Tickets   []TicketResult  `json:"tickets,omitempty"`
}

func SuccessOutcome(result *AnalysisResult) *Outcome {
	return &Outcome{Status: OutcomeSuccess, Result: result}
}

func PartialOutcome(result *AnalysisResult, warnings []string) *Outcome {
	return &Outcome{Status: OutcomePartialFailure, Result: result, Warnings: warnings}
}

func FailureOutcome(kind ErrorKind, detail string) *Outcome {
	return &Outcome{Status: OutcomeFailure, ErrorKind: kind, Error: detail}
}

// ── Analysis Run ─────────────────────────────────────────────

type RunStatus string

const (
	RunSubmitted RunStatus = "submitted"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCanceled  RunStatus = "canceled"
)

// AnalysisRun is the stored lifecycle record of one request.
type AnalysisRun struct {
	ID           string           `json:"id" db:"id"`
	Status       RunStatus        `json:"status" db:"status"`
	TemplateID   string           `json:"template_id" db:"template_id"`
	Request      *AnalysisRequest `json:"request,omitempty"`
	Outcome      *Outcome         `json:"outcome,omitempty"`
	ProviderUsed string           `json:"provider_used,omitempty" db:"provider_used"`
	Error        string           `json:"error,omitempty" db:"error"`
	StartedAt    time.Time        `json:"started_at" db:"started_at"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty" db:"completed_at"`
	DurationMs   int64            `json:"duration_ms,omitempty" db:"duration_ms"`
}

// ── Tickets ──────────────────────────────────────────────────

type TicketKind string

const (
	TicketEscalation TicketKind = "escalation"
	TicketDefect     TicketKind = "defect"
)

// TicketRequest is what post-processing hands to the ticketing service.
type TicketRequest struct {
	Kind        TicketKind `json:"kind"`
	Summary     string     `json:"summary"`
	Description string     `json:"description"`
	Priority    string     `json:"priority,omitempty"`
	Evidence    []string   `json:"evidence,omitempty"`
}

// TicketResult records one ticket-creation attempt. Failures are reported,
// never retried.
type TicketResult struct {
	Kind      TicketKind `json:"kind"`
	Key       string     `json:"key,omitempty"`
	Success   bool       `json:"success"`
	Error     string     `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// ── Providers ────────────────────────────────────────────────

// ProviderKind selects the driver implementation. Provider names are free
// configuration keys; several names may share one kind (the
// OpenAI-compatible kinds differ only in base URL and defaults).
type ProviderKind string

const (
	ProviderOpenAI     ProviderKind = "openai"
	ProviderAnthropic  ProviderKind = "anthropic"
	ProviderOpenRouter ProviderKind = "openrouter"
	ProviderLLMProxy   ProviderKind = "llmproxy"
	ProviderOllama     ProviderKind = "ollama"
)

// ProviderStatus is returned by the provider health endpoint.
type ProviderStatus struct {
	Name      string       `json:"name"`
	Kind      ProviderKind `json:"kind"`
	Model     string       `json:"model,omitempty"`
	Healthy   bool         `json:"healthy"`
	LatencyMs int64        `json:"latency_ms"`
	Error     string       `json:"error,omitempty"`
}

// ── Templates ────────────────────────────────────────────────

// Template is one analysis prompt template from the catalog. Body and
// Context are opaque text; ResponseFields lists the JSON keys the model
// is instructed to emit, used by the format instructions and surfaced to
// clients for display.
type Template struct {
	ID             string   `json:"id" yaml:"id"`
	Title          string   `json:"title" yaml:"title"`
	Description    string   `json:"description,omitempty" yaml:"description"`
	Body           string   `json:"body" yaml:"body"`
	Context        string   `json:"context,omitempty" yaml:"context"`
	ResponseFields []string `json:"response_fields,omitempty" yaml:"response_fields"`
}
