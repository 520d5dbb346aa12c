package stt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"github.com/lexiqai/wa-assistant/internal/errorsx"
	"github.com/lexiqai/wa-assistant/internal/media"
	"github.com/lexiqai/wa-assistant/internal/observability"
	"github.com/lexiqai/wa-assistant/internal/resilience"
)

// WhisperTranscriber transcribes through the OpenAI audio transcription endpoint
type WhisperTranscriber struct {
	client  *openai.Client
	model   string
	breaker *resilience.CircuitBreaker
	retry   *resilience.RetryConfig
	logger  zerolog.Logger
}

// NewWhisperTranscriber creates a transcriber using client. breaker and retry may be nil.
func NewWhisperTranscriber(client *openai.Client, model string, breaker *resilience.CircuitBreaker, retry *resilience.RetryConfig) *WhisperTranscriber {
	if model == "" {
		model = openai.Whisper1
	}
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker("openai_whisper", 5, defaultResetTimeout)
	}
	return &WhisperTranscriber{
		client:  client,
		model:   model,
		breaker: breaker,
		retry:   retry,
		logger:  observability.Component("whisper"),
	}
}

// Name implements Transcriber
func (w *WhisperTranscriber) Name() string { return "openai" }

// Transcribe implements Transcriber
func (w *WhisperTranscriber) Transcribe(ctx context.Context, audio Audio) (string, error) {
	if len(audio.Data) == 0 {
		return "", errorsx.Wrap(media.ErrEmptyPayload, errorsx.ReasonPayloadInvalid)
	}
	fileName := media.FileNameFor(audio.MIMEType, audio.FileName)

	var text string
	err := guard(ctx, w.breaker, w.retry, func(ctx context.Context) error {
		resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
			Model:    w.model,
			FilePath: fileName,
			Reader:   bytes.NewReader(audio.Data),
			Language: audio.Language,
			Format:   openai.AudioResponseFormatJSON,
		})
		if err != nil {
			return classifyOpenAIError(err)
		}
		text = resp.Text
		return nil
	})
	observability.RecordProviderRequest("openai", "transcription", err == nil)
	if err != nil {
		w.logger.Warn().Err(err).Int("bytes", len(audio.Data)).Str("file", fileName).Msg("Transcription failed")
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", errorsx.Wrap(ErrEmptyTranscript, errorsx.ReasonTranscriptionFailed)
	}
	return text, nil
}

// classifyOpenAIError maps provider status codes to the user-facing errors. Server
// errors are marked retryable.
func classifyOpenAIError(err error) error {
	status := 0
	message := err.Error()

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
		message = apiErr.Message
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch {
	case status == http.StatusUnauthorized:
		return errorsx.Wrap(ErrInvalidKey, errorsx.ReasonProviderAuth)
	case status == http.StatusTooManyRequests:
		return errorsx.Wrap(ErrRateLimited, errorsx.ReasonProviderRateLimit)
	case status == http.StatusBadRequest:
		return errorsx.Wrap(ErrUnsupportedFormat, errorsx.ReasonPayloadInvalid)
	case status >= 500:
		return resilience.NewRetryableError(fmt.Errorf("provider error %d: %s", status, message))
	case status > 0:
		return errorsx.Wrap(fmt.Errorf("provider error %d: %s", status, message), errorsx.ReasonProviderRejected)
	}
	return err
}
