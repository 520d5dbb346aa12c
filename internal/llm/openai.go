// Package llm generates reply suggestions with a chat completion model.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"github.com/lexiqai/wa-assistant/internal/errorsx"
	"github.com/lexiqai/wa-assistant/internal/observability"
	"github.com/lexiqai/wa-assistant/internal/resilience"
)

const (
	DefaultModel       = "gpt-4o"
	DefaultMaxTokens   = 300
	DefaultTemperature = 0.7
)

// ErrEmptyCompletion is returned when the model answers with no text
var ErrEmptyCompletion = errors.New("empty completion returned by the model")

// OpenAIClient sends single-turn chat completions
type OpenAIClient struct {
	Client      *openai.Client
	MaxTokens   int
	Temperature float32

	breaker *resilience.CircuitBreaker
	retry   *resilience.RetryConfig
	logger  zerolog.Logger
}

// NewOpenAIClient creates a completion client. breaker and retry may be nil.
func NewOpenAIClient(client *openai.Client, breaker *resilience.CircuitBreaker, retry *resilience.RetryConfig) *OpenAIClient {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker("openai_chat", 5, 30*time.Second)
	}
	return &OpenAIClient{
		Client:      client,
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
		breaker:     breaker,
		retry:       retry,
		logger:      observability.Component("llm"),
	}
}

// Complete returns the model's trimmed answer to prompt
func (c *OpenAIClient) Complete(ctx context.Context, prompt, model string) (string, error) {
	if model == "" {
		model = DefaultModel
	}
	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
	}

	var content string
	err := c.breaker.Call(ctx, func(ctx context.Context) error {
		return resilience.Retry(ctx, func(ctx context.Context) error {
			resp, err := c.Client.CreateChatCompletion(ctx, req)
			if err != nil {
				return classify(err)
			}
			if len(resp.Choices) > 0 {
				content = resp.Choices[0].Message.Content
			}
			return nil
		}, c.retry, func(err error) bool {
			return errorsx.Reason(err) == errorsx.ReasonUnknown && resilience.IsRetryableNetworkError(err)
		})
	})
	observability.RecordProviderRequest("openai", "completion", err == nil)
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return "", errorsx.Wrap(fmt.Errorf("%s: %w", c.breaker.Name(), err), errorsx.ReasonProviderCircuit)
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("model", model).Msg("Completion failed")
		return "", err
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}

func classify(err error) error {
	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	wrapped := fmt.Errorf("OpenAI %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
	switch {
	case apiErr.HTTPStatusCode == http.StatusUnauthorized:
		return errorsx.Wrap(wrapped, errorsx.ReasonProviderAuth)
	case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
		return errorsx.Wrap(wrapped, errorsx.ReasonProviderRateLimit)
	case apiErr.HTTPStatusCode >= 500:
		return resilience.NewRetryableError(wrapped)
	}
	return errorsx.Wrap(wrapped, errorsx.ReasonProviderRejected)
}
