// Package config loads the immutable runtime configuration: a YAML file
// (optional), environment overrides, and per-provider defaults. Components
// never read files or environment variables themselves; the resolved
// Config is threaded through constructors.
package config

import (
	"fmt"
	"os"
	"strconv"

	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/causekit/causekit/pkg/models"
)

// Config holds all configuration for the causekit service.
type Config struct {
	Port            int    `yaml:"port"`
	Version         string `yaml:"version"`
	DefaultTemplate string `yaml:"default_template"`
	DefaultProvider string `yaml:"default_provider"`

	Providers  []Provider       `yaml:"providers"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Templates  TemplatesConfig  `yaml:"templates"`
	Prompt     PromptConfig     `yaml:"prompt"`
	Evidence   EvidenceConfig   `yaml:"evidence"`
	Jira       JiraConfig       `yaml:"jira"`
	Escalation EscalationConfig `yaml:"escalation"`
	Store      StoreConfig      `yaml:"store"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// Provider configures one model provider. Name is the key used in request
// preference lists; Kind selects the driver.
type Provider struct {
	Name        string              `yaml:"name"`
	Kind        models.ProviderKind `yaml:"kind"`
	Model       string              `yaml:"model"`
	APIKey      string              `yaml:"api_key"`
	APIKeyEnv   string              `yaml:"api_key_env"`
	BaseURL     string              `yaml:"base_url"`
	TimeoutSecs int                 `yaml:"timeout_secs"`
	MaxTokens   int                 `yaml:"max_tokens"`
	Temperature float64             `yaml:"temperature"`
}

// Configured reports whether the provider has enough settings to be
// callable. Unconfigured providers are skipped at gateway construction.
func (p *Provider) Configured() bool {
	switch p.Kind {
	case models.ProviderOllama:
		return p.BaseURL != ""
	case models.ProviderLLMProxy:
		return p.APIKey != "" && p.BaseURL != ""
	default:
		return p.APIKey != ""
	}
}

type GatewayConfig struct {
	SystemPrompt    string `yaml:"system_prompt"`
	CallTimeoutSecs int    `yaml:"call_timeout_secs"`
	RetryBackoffMs  int    `yaml:"retry_backoff_ms"`
}

type TemplatesConfig struct {
	// Dir holds additional template YAML files; built-in templates are
	// always available and a file with a matching id overrides them.
	Dir string `yaml:"dir"`
}

// PromptConfig bounds how much evidence text goes into one prompt. Text
// over budget is cut with a visible truncation marker.
type PromptConfig struct {
	FileCharBudget   int `yaml:"file_char_budget"`
	URLCharBudget    int `yaml:"url_char_budget"`
	TicketCharBudget int `yaml:"ticket_char_budget"`
}

// Budget returns the per-item character budget for a source kind.
func (p PromptConfig) Budget(kind models.SourceKind) int {
	switch kind {
	case models.SourceFile:
		return p.FileCharBudget
	case models.SourceURL:
		return p.URLCharBudget
	case models.SourceTicket:
		return p.TicketCharBudget
	default:
		return p.FileCharBudget
	}
}

type EvidenceConfig struct {
	MaxFileBytes      int64    `yaml:"max_file_bytes"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
	FetchTimeoutSecs  int      `yaml:"fetch_timeout_secs"`
	MaxConcurrent     int      `yaml:"max_concurrent"`
	Scrub             bool     `yaml:"scrub"`
}

type JiraConfig struct {
	URL               string `yaml:"url"`
	Username          string `yaml:"username"`
	APIToken          string `yaml:"api_token"`
	APITokenEnv       string `yaml:"api_token_env"`
	ProjectKey        string `yaml:"project_key"`
	EscalationProject string `yaml:"escalation_project"`
	DefectProject     string `yaml:"defect_project"`
	IssueType         string `yaml:"issue_type"`
	TimeoutSecs       int    `yaml:"timeout_secs"`
}

// Configured reports whether ticket creation and ticket evidence reads
// can work at all.
func (j *JiraConfig) Configured() bool {
	return j.URL != "" && j.Username != "" && j.APIToken != ""
}

// EscalationConfig controls post-analysis ticket automation. The rules
// are expression strings evaluated against the structured fields of a
// completed analysis.
type EscalationConfig struct {
	Enabled      bool              `yaml:"enabled"`
	EscalateRule string            `yaml:"escalate_rule"`
	DefectRule   string            `yaml:"defect_rule"`
	PriorityMap  map[string]string `yaml:"priority_map"`
}

type StoreConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `yaml:"backend"`
	// Path is the snapshot file (memory) or database file (sqlite).
	// Empty means no persistence.
	Path string `yaml:"path"`
}

type ArchiveConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Dir               string `yaml:"dir"`
	Compress          bool   `yaml:"compress"`
	RetentionDays     int    `yaml:"retention_days"`
	SweepIntervalMins int    `yaml:"sweep_interval_mins"`
}

type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

// Defaults returns the baseline configuration: the standard provider set
// keyed to conventional environment variables, conservative budgets, and
// a memory store.
func Defaults() *Config {
	return &Config{
		Port:            8085,
		Version:         "0.4.0",
		DefaultTemplate: "kt-analysis",
		DefaultProvider: "openai",
		Providers: []Provider{
			{Name: "openai", Kind: models.ProviderOpenAI, APIKeyEnv: "OPENAI_API_KEY"},
			{Name: "anthropic", Kind: models.ProviderAnthropic, APIKeyEnv: "ANTHROPIC_API_KEY"},
			{Name: "openrouter", Kind: models.ProviderOpenRouter, APIKeyEnv: "OPENROUTER_API_KEY"},
			{Name: "llmproxy", Kind: models.ProviderLLMProxy, APIKeyEnv: "LLMPROXY_API_KEY"},
			{Name: "ollama", Kind: models.ProviderOllama},
		},
		Gateway: GatewayConfig{
			SystemPrompt:    "You are an expert technical analyst specializing in root cause analysis.",
			CallTimeoutSecs: 90,
			RetryBackoffMs:  500,
		},
		Prompt: PromptConfig{
			FileCharBudget:   20000,
			URLCharBudget:    10000,
			TicketCharBudget: 10000,
		},
		Evidence: EvidenceConfig{
			MaxFileBytes:      50 * 1024 * 1024,
			AllowedExtensions: []string{".txt", ".log", ".md", ".json", ".yaml", ".yml", ".csv", ".out"},
			FetchTimeoutSecs:  15,
			MaxConcurrent:     4,
			Scrub:             true,
		},
		Jira: JiraConfig{
			APITokenEnv: "JIRA_API_TOKEN",
			ProjectKey:  "CPE",
			IssueType:   "Task",
			TimeoutSecs: 20,
		},
		Escalation: EscalationConfig{
			Enabled:      true,
			EscalateRule: `severity in ["Critical", "High"] or lower(escalation_needed) in ["true", "yes"]`,
			DefectRule:   `lower(defect_tickets_needed) in ["true", "yes"]`,
			PriorityMap: map[string]string{
				"Critical": "Highest",
				"High":     "High",
				"Medium":   "Medium",
				"Low":      "Low",
			},
		},
		Store: StoreConfig{Backend: "memory"},
		Archive: ArchiveConfig{
			Enabled:           true,
			Dir:               "./reports",
			RetentionDays:     30,
			SweepIntervalMins: 60,
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			OTLPEndpoint: "localhost:4317",
			ServiceName:  "causekit",
		},
	}
}

// Load builds the effective configuration: defaults, then the YAML file
// at path (if non-empty), then environment overrides, then provider
// defaulting and key resolution.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		k := koanf.New(".")
		if err := k.Load(file.Provider(path), kyaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
		if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.resolveProviders()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Port = envInt("CAUSEKIT_PORT", c.Port)
	c.Version = envStr("CAUSEKIT_VERSION", c.Version)
	c.DefaultTemplate = envStr("CAUSEKIT_DEFAULT_TEMPLATE", c.DefaultTemplate)
	c.DefaultProvider = envStr("CAUSEKIT_DEFAULT_PROVIDER", c.DefaultProvider)
	c.Templates.Dir = envStr("CAUSEKIT_TEMPLATES_DIR", c.Templates.Dir)
	c.Store.Backend = envStr("CAUSEKIT_STORE_BACKEND", c.Store.Backend)
	c.Store.Path = envStr("CAUSEKIT_STORE_PATH", c.Store.Path)
	c.Archive.Dir = envStr("CAUSEKIT_ARCHIVE_DIR", c.Archive.Dir)
	c.Jira.URL = envStr("JIRA_URL", c.Jira.URL)
	c.Jira.Username = envStr("JIRA_USERNAME", c.Jira.Username)
	c.Telemetry.Enabled = envBool("OTEL_ENABLED", c.Telemetry.Enabled)
	c.Telemetry.OTLPEndpoint = envStr("OTEL_EXPORTER_OTLP_ENDPOINT", c.Telemetry.OTLPEndpoint)
	c.Telemetry.ServiceName = envStr("OTEL_SERVICE_NAME", c.Telemetry.ServiceName)
}

// resolveProviders fills per-kind defaults and pulls API keys out of the
// environment variables the entries name.
func (c *Config) resolveProviders() {
	for i := range c.Providers {
		p := &c.Providers[i]
		if p.APIKey == "" && p.APIKeyEnv != "" {
			p.APIKey = os.Getenv(p.APIKeyEnv)
		}
		if p.Model == "" {
			p.Model = defaultModel(p.Kind)
		}
		if p.BaseURL == "" {
			p.BaseURL = defaultBaseURL(p.Kind)
		}
		if p.TimeoutSecs <= 0 {
			p.TimeoutSecs = 60
		}
		if p.MaxTokens <= 0 {
			p.MaxTokens = 4000
		}
		if p.Temperature <= 0 {
			p.Temperature = 0.3
		}
	}
	if c.Jira.APIToken == "" && c.Jira.APITokenEnv != "" {
		c.Jira.APIToken = os.Getenv(c.Jira.APITokenEnv)
	}
}

func defaultModel(kind models.ProviderKind) string {
	switch kind {
	case models.ProviderAnthropic:
		return "claude-3-5-sonnet-20241022"
	case models.ProviderOpenRouter:
		return "anthropic/claude-3.5-sonnet"
	case models.ProviderOllama:
		return "llama3.2"
	default:
		return "gpt-4o"
	}
}

func defaultBaseURL(kind models.ProviderKind) string {
	switch kind {
	case models.ProviderOpenRouter:
		return "https://openrouter.ai/api/v1"
	case models.ProviderOllama:
		return "http://localhost:11434"
	default:
		return ""
	}
}

// Validate rejects configurations the pipeline cannot start with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Store.Backend != "memory" && c.Store.Backend != "sqlite" {
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	seen := map[string]bool{}
	for i := range c.Providers {
		p := &c.Providers[i]
		if p.Name == "" {
			return fmt.Errorf("provider %d: name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate provider name %q", p.Name)
		}
		seen[p.Name] = true
		switch p.Kind {
		case models.ProviderOpenAI, models.ProviderAnthropic, models.ProviderOpenRouter,
			models.ProviderLLMProxy, models.ProviderOllama:
		default:
			return fmt.Errorf("provider %q: unknown kind %q", p.Name, p.Kind)
		}
	}
	return nil
}

// FindProvider returns the configuration entry for a provider name.
func (c *Config) FindProvider(name string) (*Provider, bool) {
	for i := range c.Providers {
		if c.Providers[i].Name == name {
			return &c.Providers[i], true
		}
	}
	return nil, false
}

// ProviderOrder returns the callable provider names: the default provider
// first, then the rest in configuration order.
func (c *Config) ProviderOrder() []string {
	var order []string
	if p, ok := c.FindProvider(c.DefaultProvider); ok && p.Configured() {
		order = append(order, p.Name)
	}
	for i := range c.Providers {
		p := &c.Providers[i]
		if p.Name == c.DefaultProvider || !p.Configured() {
			continue
		}
		order = append(order, p.Name)
	}
	return order
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
