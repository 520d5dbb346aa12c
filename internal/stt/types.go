// Package stt turns recorded voice notes into text through a speech-to-text provider.
package stt

import (
	"context"
	"errors"
)

// Provider error messages are user-facing and surfaced verbatim by the content side.
var (
	ErrInvalidKey        = errors.New("invalid API key or no permission for transcription")
	ErrRateLimited       = errors.New("rate limit reached - try again in a few minutes")
	ErrUnsupportedFormat = errors.New("audio format not supported by the transcription service")
	ErrEmptyTranscript   = errors.New("empty transcript returned by the service")
)

// Audio is one recorded voice note
type Audio struct {
	Data     []byte
	MIMEType string
	FileName string
	Language string // ISO-639-1; empty lets the provider detect it
}

// Transcriber converts a complete recording to text
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, audio Audio) (string, error)
}
