package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/causekit/causekit/internal/config"
	"github.com/causekit/causekit/pkg/models"
)

// OllamaDriver talks to a local Ollama instance over its
// OpenAI-compatible HTTP endpoint. No SDK, no credentials.
type OllamaDriver struct {
	client *http.Client
}

func NewOllamaDriver() *OllamaDriver {
	return &OllamaDriver{client: &http.Client{Timeout: 120 * time.Second}}
}

func (d *OllamaDriver) Kind() models.ProviderKind { return models.ProviderOllama }

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model       string              `json:"model"`
	Messages    []ollamaChatMessage `json:"messages"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Temperature float64             `json:"temperature,omitempty"`
}

type ollamaChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
}

func (d *OllamaDriver) Call(ctx context.Context, provider *config.Provider, prompt string, opts models.CallOptions) (*models.RawModelReply, error) {
	maxTokens, temperature := resolveTuning(provider, opts)

	messages := []ollamaChatMessage{}
	if opts.SystemPrompt != "" {
		messages = append(messages, ollamaChatMessage{Role: "system", Content: opts.SystemPrompt})
	}
	messages = append(messages, ollamaChatMessage{Role: "user", Content: prompt})

	body, _ := json.Marshal(ollamaChatRequest{
		Model:       provider.Model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})

	url := provider.BaseURL + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, models.NewClassifiedError(models.ErrKindConfiguration, provider.Name,
			fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransport(provider.Name, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		return nil, classifyStatus(provider.Name, httpResp.StatusCode,
			fmt.Errorf("status %d: %s", httpResp.StatusCode, string(respBody)))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&chatResp); err != nil {
		return nil, models.NewClassifiedError(models.ErrKindMalformedResponse, provider.Name,
			fmt.Errorf("decode response: %w", err))
	}
	if len(chatResp.Choices) == 0 || chatResp.Choices[0].Message.Content == "" {
		return nil, models.NewClassifiedError(models.ErrKindMalformedResponse, provider.Name,
			errors.New("reply carries no content"))
	}

	return &models.RawModelReply{
		Provider: provider.Name,
		Model:    provider.Model,
		Text:     chatResp.Choices[0].Message.Content,
		Usage: models.TokenUsage{
			InputTokens:  chatResp.Usage.PromptTokens,
			OutputTokens: chatResp.Usage.CompletionTokens,
			TotalTokens:  chatResp.Usage.TotalTokens,
		},
	}, nil
}

// HealthCheck lists the instance's models instead of generating, which
// confirms reachability without touching a model.
func (d *OllamaDriver) HealthCheck(ctx context.Context, provider *config.Provider) error {
	url := provider.BaseURL + "/api/tags"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	httpResp, err := d.client.Do(httpReq)
	if err != nil {
		return classifyTransport(provider.Name, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		return classifyStatus(provider.Name, httpResp.StatusCode,
			fmt.Errorf("status %d: %s", httpResp.StatusCode, string(respBody)))
	}

	var tagsResp struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&tagsResp); err != nil {
		return models.NewClassifiedError(models.ErrKindMalformedResponse, provider.Name,
			fmt.Errorf("decode response: %w", err))
	}
	return nil
}
