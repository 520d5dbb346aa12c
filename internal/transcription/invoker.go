// Package transcription hands normalized audio to the background process and
// surfaces its answer.
package transcription

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lexiqai/wa-assistant/internal/errorsx"
	"github.com/lexiqai/wa-assistant/internal/media"
	"github.com/lexiqai/wa-assistant/internal/observability"
	"github.com/lexiqai/wa-assistant/internal/runtime"
)

// ErrEmptyTranscript is returned when the service succeeds without text
var ErrEmptyTranscript = errors.New("empty transcript returned by the service")

// ServiceError carries the background process's error message unchanged
type ServiceError struct {
	Message string
}

func (e *ServiceError) Error() string {
	return e.Message
}

// Invoker sends transcription and completion requests. It performs exactly one
// request per call.
type Invoker struct {
	rt     runtime.Sender
	logger zerolog.Logger
}

// NewInvoker creates an invoker over rt
func NewInvoker(rt runtime.Sender) *Invoker {
	return &Invoker{rt: rt, logger: observability.Component("transcription")}
}

// Transcribe returns the transcript of p
func (i *Invoker) Transcribe(ctx context.Context, p media.AudioPayload, meta runtime.Metadata) (string, error) {
	if p.Size() == 0 {
		return "", errorsx.Wrap(media.ErrEmptyPayload, errorsx.ReasonPayloadInvalid)
	}
	if meta.FileName == "" {
		meta.FileName = p.FileName
	}

	resp, err := i.rt.Send(ctx, runtime.Request{
		Type:        runtime.TypeTranscribeAudio,
		ArrayBuffer: p.Blob.Data,
		Mime:        p.MIMEType,
		Metadata:    &meta,
	})
	if err != nil {
		return "", errorsx.Wrap(fmt.Errorf("send transcription request: %w", err), errorsx.ReasonTranscriptionFailed)
	}
	if !resp.OK {
		i.logger.Warn().Str("error", resp.Error).Int("bytes", p.Size()).Msg("Transcription rejected")
		return "", errorsx.Wrap(&ServiceError{Message: resp.Error}, errorsx.ReasonTranscriptionFailed)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", errorsx.Wrap(ErrEmptyTranscript, errorsx.ReasonTranscriptionFailed)
	}
	return text, nil
}

// Complete asks the background process for a chat completion of prompt
func (i *Invoker) Complete(ctx context.Context, prompt, model string) (string, error) {
	resp, err := i.rt.Send(ctx, runtime.Request{
		Type:   runtime.TypeGenerateCompletion,
		Prompt: prompt,
		Model:  model,
	})
	if err != nil {
		return "", fmt.Errorf("send completion request: %w", err)
	}
	if !resp.OK {
		return "", &ServiceError{Message: resp.Error}
	}
	return strings.TrimSpace(resp.Text), nil
}

// Settings fetches the stored assistant settings
func (i *Invoker) Settings(ctx context.Context) (map[string]string, error) {
	resp, err := i.rt.Send(ctx, runtime.Request{Type: runtime.TypeGetSettings})
	if err != nil {
		return nil, fmt.Errorf("send settings request: %w", err)
	}
	if !resp.OK {
		return nil, &ServiceError{Message: resp.Error}
	}
	return resp.Settings, nil
}

// KeyConfigured reports whether the background process has an API key
func (i *Invoker) KeyConfigured(ctx context.Context) (bool, error) {
	resp, err := i.rt.Send(ctx, runtime.Request{Type: runtime.TypeCheckAPIKey})
	if err != nil {
		return false, fmt.Errorf("send key check: %w", err)
	}
	if !resp.OK {
		return false, &ServiceError{Message: resp.Error}
	}
	return resp.Configured != nil && *resp.Configured, nil
}
