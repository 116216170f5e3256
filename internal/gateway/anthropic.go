package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/motiongranted/draftengine/internal/core"
)

const (
	anthropicAPIVersion     = "2023-06-01"
	anthropicDefaultBaseURL = "https://api.anthropic.com/v1/messages"

	// extendedThinkingBudget is the token budget handed to the model
	// when a phase requests the extended reasoning path.
	extendedThinkingBudget = 16384
)

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
	Thinking    *thinkingParams    `json:"thinking,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type thinkingParams struct {
	Type         string `json:"type"` // must be "enabled"
	BudgetTokens int    `json:"budget_tokens"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
	Usage   anthropicUsage     `json:"usage"`
	Error   *anthropicError    `json:"error,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// AnthropicBackend services model calls through the Anthropic Messages
// API with a plain HTTP client.
type AnthropicBackend struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewAnthropicBackend creates a backend with the given API key.
func NewAnthropicBackend(apiKey string) *AnthropicBackend {
	return &AnthropicBackend{
		apiKey:     apiKey,
		baseURL:    anthropicDefaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Minute},
	}
}

// WithBaseURL points the backend at an alternate endpoint, used in tests.
func (b *AnthropicBackend) WithBaseURL(url string) *AnthropicBackend {
	b.baseURL = url
	return b
}

// Vendor identifies the backend.
func (b *AnthropicBackend) Vendor() core.Vendor {
	return core.VendorAnthropic
}

// Complete executes one messages call.
func (b *AnthropicBackend) Complete(ctx context.Context, req core.ModelRequest) (*core.ModelResult, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	areq := anthropicRequest{
		Model:     req.Model,
		Messages:  []anthropicMessage{{Role: "user", Content: req.Prompt}},
		System:    req.System,
		MaxTokens: maxTokens,
	}
	if req.Temperature > 0 {
		areq.Temperature = &req.Temperature
	}
	if req.ExtendedReasoning {
		areq.Thinking = &thinkingParams{Type: "enabled", BudgetTokens: extendedThinkingBudget}
	}

	body, err := json.Marshal(areq)
	if err != nil {
		return nil, core.ErrInternal(fmt.Sprintf("marshaling anthropic request: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, core.ErrInternal(fmt.Sprintf("building anthropic request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", b.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	start := time.Now()
	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, core.ErrTimeout("anthropic call cancelled or timed out").WithCause(err)
		}
		return nil, core.ErrNetwork(err.Error()).WithCause(err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.ErrNetwork(fmt.Sprintf("reading anthropic response: %v", err))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, core.ErrRateLimit("anthropic rate limited")
	case resp.StatusCode == 529: // vendor overload status
		return nil, core.ErrRateLimit("anthropic overloaded")
	case resp.StatusCode >= 500:
		return nil, core.ErrExecution("UPSTREAM_5XX", fmt.Sprintf("anthropic status %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		return nil, core.ErrValidation("UPSTREAM_4XX", fmt.Sprintf("anthropic status %d: %s", resp.StatusCode, respBody))
	}

	var aresp anthropicResponse
	if err := json.Unmarshal(respBody, &aresp); err != nil {
		return nil, core.ErrExecution("BAD_RESPONSE", fmt.Sprintf("decoding anthropic response: %v", err))
	}
	if aresp.Error != nil {
		return nil, core.ErrExecution("UPSTREAM_ERROR", aresp.Error.Message)
	}

	var text string
	for _, c := range aresp.Content {
		if c.Type == "text" {
			text += c.Text
		}
	}
	if text == "" {
		return nil, core.ErrExecution("EMPTY_RESPONSE", "anthropic returned no text content")
	}

	return &core.ModelResult{
		Text:      text,
		TokensIn:  aresp.Usage.InputTokens,
		TokensOut: aresp.Usage.OutputTokens,
		Model:     req.Model,
		Duration:  time.Since(start),
	}, nil
}
