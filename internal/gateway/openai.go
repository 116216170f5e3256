package gateway

import (
	"context"
	"errors"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/motiongranted/draftengine/internal/core"
)

// OpenAIBackend services model calls through the OpenAI API.
type OpenAIBackend struct {
	client *openai.Client
}

// NewOpenAIBackend creates a backend with the given API key.
func NewOpenAIBackend(apiKey string) *OpenAIBackend {
	return &OpenAIBackend{client: openai.NewClient(apiKey)}
}

// NewOpenAIBackendWithBaseURL points the client at an alternate
// endpoint, used for proxies and tests.
func NewOpenAIBackendWithBaseURL(apiKey, baseURL string) *OpenAIBackend {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &OpenAIBackend{client: openai.NewClientWithConfig(cfg)}
}

// Vendor identifies the backend.
func (b *OpenAIBackend) Vendor() core.Vendor {
	return core.VendorOpenAI
}

// Complete executes one chat completion.
func (b *OpenAIBackend) Complete(ctx context.Context, req core.ModelRequest) (*core.ModelResult, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	creq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		creq.MaxCompletionTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		creq.Temperature = float32(req.Temperature)
	}
	if req.JSONOutput {
		creq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	if req.ExtendedReasoning {
		creq.ReasoningEffort = "high"
	}

	start := time.Now()
	resp, err := b.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, core.ErrExecution("EMPTY_RESPONSE", "openai returned no choices")
	}

	return &core.ModelResult{
		Text:      resp.Choices[0].Message.Content,
		TokensIn:  resp.Usage.PromptTokens,
		TokensOut: resp.Usage.CompletionTokens,
		Model:     req.Model,
		Duration:  time.Since(start),
	}, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429:
			return core.ErrRateLimit(apiErr.Message).WithCause(err)
		case apiErr.HTTPStatusCode >= 500:
			return core.ErrExecution("UPSTREAM_5XX", apiErr.Message).WithCause(err)
		case apiErr.HTTPStatusCode >= 400:
			return core.ErrValidation("UPSTREAM_4XX", apiErr.Message).WithCause(err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "timeout") {
		return core.ErrTimeout(err.Error()).WithCause(err)
	}
	return core.ErrNetwork(err.Error()).WithCause(err)
}
