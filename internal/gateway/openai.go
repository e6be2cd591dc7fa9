package gateway

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	ooption "github.com/openai/openai-go/option"

	"github.com/causekit/causekit/internal/config"
	"github.com/causekit/causekit/pkg/models"
)

// OpenAIDriver serves every OpenAI-compatible provider kind. The
// openrouter and llmproxy kinds reuse it with a different base URL.
type OpenAIDriver struct {
	kind models.ProviderKind
}

func NewOpenAIDriver(kind models.ProviderKind) *OpenAIDriver {
	return &OpenAIDriver{kind: kind}
}

func (d *OpenAIDriver) Kind() models.ProviderKind { return d.kind }

func (d *OpenAIDriver) client(provider *config.Provider) openai.Client {
	reqOpts := []ooption.RequestOption{ooption.WithAPIKey(provider.APIKey)}
	if provider.BaseURL != "" {
		reqOpts = append(reqOpts, ooption.WithBaseURL(provider.BaseURL))
	}
	return openai.NewClient(reqOpts...)
}

func (d *OpenAIDriver) Call(ctx context.Context, provider *config.Provider, prompt string, opts models.CallOptions) (*models.RawModelReply, error) {
	client := d.client(provider)
	maxTokens, temperature := resolveTuning(provider, opts)

	messages := []openai.ChatCompletionMessageParamUnion{}
	if opts.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(opts.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(prompt))

	completion, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(provider.Model),
		Messages:    messages,
		MaxTokens:   openai.Int(int64(maxTokens)),
		Temperature: openai.Float(temperature),
	})
	if err != nil {
		return nil, classifyOpenAI(provider.Name, err)
	}
	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		return nil, models.NewClassifiedError(models.ErrKindMalformedResponse, provider.Name,
			errors.New("reply carries no content"))
	}

	return &models.RawModelReply{
		Provider: provider.Name,
		Model:    provider.Model,
		Text:     completion.Choices[0].Message.Content,
		Usage: models.TokenUsage{
			InputTokens:  completion.Usage.PromptTokens,
			OutputTokens: completion.Usage.CompletionTokens,
			TotalTokens:  completion.Usage.TotalTokens,
		},
	}, nil
}

// HealthCheck validates credentials with the cheapest possible call.
func (d *OpenAIDriver) HealthCheck(ctx context.Context, provider *config.Provider) error {
	client := d.client(provider)
	_, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(provider.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage("Say OK"),
		},
		MaxTokens: openai.Int(1),
	})
	if err != nil {
		return classifyOpenAI(provider.Name, err)
	}
	return nil
}

func classifyOpenAI(provider string, err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return classifyStatus(provider, apierr.StatusCode, err)
	}
	return classifyTransport(provider, err)
}
