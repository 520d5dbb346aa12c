// Package assistant reads the open conversation, transcribing its voice messages,
// and asks the background process for a suggested reply.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/lexiqai/wa-assistant/internal/dom"
	"github.com/lexiqai/wa-assistant/internal/errorsx"
	"github.com/lexiqai/wa-assistant/internal/observability"
	"github.com/lexiqai/wa-assistant/internal/settings"
)

// DefaultHistory is how many of the last messages feed a suggestion
const DefaultHistory = 8

// Placeholders for voice messages that could not be transcribed
const (
	AudioKeyError           = "[ÁUDIO - erro na API Key]"
	AudioTranscriptionError = "[ÁUDIO - erro na transcrição]"
	transcribedSuffix       = " (mensagem transcrita de áudio)"
)

// ErrNoMessages is returned when the page shows no conversation
var ErrNoMessages = errors.New("no messages found in the conversation")

var (
	labelPattern  = regexp.MustCompile(`(?i)^(Resposta:|Response:|Resposta da IA:|AI:|IA:)`)
	leaderPattern = regexp.MustCompile(`^[\s\-:]+`)
)

// Transcriber transcribes the voice message rendered by an element
type Transcriber interface {
	TranscribeAudio(ctx context.Context, msg dom.Element) (string, error)
}

// Backend is the background process as seen by the assistant
type Backend interface {
	Complete(ctx context.Context, prompt, model string) (string, error)
	Settings(ctx context.Context) (map[string]string, error)
}

// Line is one message of the conversation history
type Line struct {
	Text     string
	Outgoing bool
	IsAudio  bool
	Failed   bool
}

// Sender names the author the way the prompt does
func (l Line) Sender() string {
	if l.Outgoing {
		return "Você"
	}
	return "Contato"
}

// Assistant suggests replies for one page
type Assistant struct {
	transcriber Transcriber
	backend     Backend
	logger      zerolog.Logger
}

// New creates an assistant
func New(transcriber Transcriber, backend Backend) *Assistant {
	return &Assistant{
		transcriber: transcriber,
		backend:     backend,
		logger:      observability.Component("assistant"),
	}
}

// Collect returns the last limit messages of doc, voice messages transcribed.
// Transcription failures become placeholder lines instead of errors.
func (a *Assistant) Collect(ctx context.Context, doc dom.Document, limit int) ([]Line, error) {
	if limit <= 0 {
		limit = DefaultHistory
	}

	var lines []Line
	for _, msg := range dom.Messages(doc, limit) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		outgoing := dom.IsOutgoing(msg)

		if dom.HasAudio(msg) {
			text, err := a.transcriber.TranscribeAudio(ctx, msg)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				a.logger.Warn().Err(err).Str("message_id", dom.MessageID(msg)).Msg("Voice message transcription failed")
				lines = append(lines, Line{Text: placeholderFor(err), Outgoing: outgoing, IsAudio: true, Failed: true})
				continue
			}
			lines = append(lines, Line{Text: text + transcribedSuffix, Outgoing: outgoing, IsAudio: true})
			continue
		}

		text := dom.MessageText(msg)
		if text == "" {
			if fallback := strings.TrimSpace(msg.Text()); !strings.Contains(fallback, "WhatsApp") {
				text = fallback
			}
		}
		if text != "" {
			lines = append(lines, Line{Text: text, Outgoing: outgoing})
		}
	}

	a.logger.Debug().
		Int("lines", len(lines)).
		Int("audio", lo.CountBy(lines, func(l Line) bool { return l.IsAudio })).
		Msg("Conversation collected")
	return lines, nil
}

func placeholderFor(err error) string {
	msg := err.Error()
	if errorsx.HasReason(err, errorsx.ReasonProviderAuth) ||
		errorsx.HasReason(err, errorsx.ReasonNotConfigured) ||
		strings.Contains(msg, "API key") ||
		strings.Contains(msg, "OpenAI key") {
		return AudioKeyError
	}
	return AudioTranscriptionError
}

// BuildPrompt renders the completion prompt for lines in the given response style
func BuildPrompt(style string, lines []Line) string {
	if style == "" {
		style = settings.DefaultResponseStyle
	}
	history := strings.Join(lo.Map(lines, func(l Line, _ int) string {
		return l.Sender() + ": " + l.Text
	}), "\n")

	return fmt.Sprintf(`%s

Você é um assistente que gera respostas para conversas no WhatsApp.

Histórico da conversa:
%s

IMPORTANTE: Responda APENAS com a mensagem que deveria ser enviada. Não inclua explicações, contexto ou identificações como "Resposta:" ou similar. Apenas a resposta natural em português brasileiro:`, style, history)
}

// CleanResponse strips labels the model sometimes puts before the reply
func CleanResponse(s string) string {
	s = labelPattern.ReplaceAllString(s, "")
	s = leaderPattern.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Suggest asks for a reply to the conversation in lines
func (a *Assistant) Suggest(ctx context.Context, lines []Line) (string, error) {
	if len(lines) == 0 {
		return "", ErrNoMessages
	}

	prefs, err := a.backend.Settings(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Settings unavailable, using defaults")
		prefs = nil
	}
	model := lo.ValueOr(prefs, settings.KeyModel, "")
	style := lo.ValueOr(prefs, settings.KeyResponseStyle, "")

	reply, err := a.backend.Complete(ctx, BuildPrompt(style, lines), model)
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}

	reply = CleanResponse(reply)
	if reply == "" {
		return "", errors.New("empty reply generated")
	}
	return reply, nil
}

// SuggestFor collects the conversation in doc and suggests a reply to it
func (a *Assistant) SuggestFor(ctx context.Context, doc dom.Document) (string, []Line, error) {
	lines, err := a.Collect(ctx, doc, DefaultHistory)
	if err != nil {
		return "", nil, err
	}
	reply, err := a.Suggest(ctx, lines)
	return reply, lines, err
}
