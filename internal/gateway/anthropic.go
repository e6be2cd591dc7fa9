package gateway

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	aoption "github.com/anthropics/anthropic-sdk-go/option"

	"github.com/causekit/causekit/internal/config"
	"github.com/causekit/causekit/pkg/models"
)

// AnthropicDriver calls the Anthropic Messages API, non-streaming.
type AnthropicDriver struct{}

func NewAnthropicDriver() *AnthropicDriver { return &AnthropicDriver{} }

func (d *AnthropicDriver) Kind() models.ProviderKind { return models.ProviderAnthropic }

func (d *AnthropicDriver) client(provider *config.Provider) anthropic.Client {
	reqOpts := []aoption.RequestOption{aoption.WithAPIKey(provider.APIKey)}
	if provider.BaseURL != "" {
		reqOpts = append(reqOpts, aoption.WithBaseURL(provider.BaseURL))
	}
	return anthropic.NewClient(reqOpts...)
}

func (d *AnthropicDriver) Call(ctx context.Context, provider *config.Provider, prompt string, opts models.CallOptions) (*models.RawModelReply, error) {
	client := d.client(provider)
	maxTokens, temperature := resolveTuning(provider, opts)

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(provider.Model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if opts.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: opts.SystemPrompt}}
	}

	msg, err := client.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyAnthropic(provider.Name, err)
	}

	var parts []string
	for _, block := range msg.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	text := strings.Join(parts, "")
	if text == "" {
		return nil, models.NewClassifiedError(models.ErrKindMalformedResponse, provider.Name,
			errors.New("reply carries no text blocks"))
	}

	return &models.RawModelReply{
		Provider: provider.Name,
		Model:    provider.Model,
		Text:     text,
		Usage: models.TokenUsage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
			TotalTokens:  msg.Usage.InputTokens + msg.Usage.OutputTokens,
		},
	}, nil
}

// HealthCheck validates credentials with a 1-token message.
func (d *AnthropicDriver) HealthCheck(ctx context.Context, provider *config.Provider) error {
	client := d.client(provider)
	_, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(provider.Model),
		MaxTokens: 1,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("Say OK")),
		},
	})
	if err != nil {
		return classifyAnthropic(provider.Name, err)
	}
	return nil
}

func classifyAnthropic(provider string, err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		return classifyStatus(provider, apierr.StatusCode, err)
	}
	return classifyTransport(provider, err)
}
