// Package pipeline locates the audio of a voice message and transcribes it. It
// tries a fixed sequence of strategies, from the message's own audio element to
// the page-side store and forced materialization, and fails only when all of them
// come up empty.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/wa-assistant/internal/bridge"
	"github.com/lexiqai/wa-assistant/internal/dom"
	"github.com/lexiqai/wa-assistant/internal/errorsx"
	"github.com/lexiqai/wa-assistant/internal/media"
	"github.com/lexiqai/wa-assistant/internal/observability"
	"github.com/lexiqai/wa-assistant/internal/runtime"
)

var (
	// ErrNoAudioSource means every strategy was exhausted without a payload
	ErrNoAudioSource = errors.New("no audio source found")
	// ErrTranscriptionFailed means a payload was found but the service rejected it
	ErrTranscriptionFailed = errors.New("audio found but transcription failed")
	// ErrBridgeUnavailable is returned under the fatal policy when the page side never became ready
	ErrBridgeUnavailable = errors.New("page store unavailable")
)

// Strategy names, used in logs and metrics
const (
	StrategyMessageAudio = "message_audio"
	StrategyBridge       = "bridge"
	StrategyLastSource   = "last_source"
	StrategyPageScan     = "page_scan"
	StrategyMaterialize  = "materialize"
)

// Bridge is the content-side end of the page store channel
type Bridge interface {
	EnsureReady(ctx context.Context, timeout time.Duration) (bool, error)
	Call(ctx context.Context, action bridge.Action, messageID string, timeout time.Duration) (*bridge.Response, error)
	Policy() bridge.Policy
}

// Transcriber submits a normalized payload for transcription
type Transcriber interface {
	Transcribe(ctx context.Context, p media.AudioPayload, meta runtime.Metadata) (string, error)
}

// Options tune the pipeline's waits
type Options struct {
	ReadyTimeout     time.Duration
	RequestTimeout   time.Duration
	MaterializeDelay time.Duration
	ObjectURLTTL     time.Duration
}

// DefaultOptions mirrors the configuration defaults
func DefaultOptions() Options {
	return Options{
		ReadyTimeout:     4 * time.Second,
		RequestTimeout:   8 * time.Second,
		MaterializeDelay: 600 * time.Millisecond,
		ObjectURLTTL:     5 * time.Second,
	}
}

// Pipeline resolves and transcribes voice messages of one page
type Pipeline struct {
	doc         dom.Document
	bridge      Bridge
	transcriber Transcriber
	fetcher     media.URLFetcher
	urls        *media.ObjectURLs
	opts        Options
	logger      zerolog.Logger

	mu         sync.Mutex
	lastSource string
}

// New creates a pipeline. br may be nil when no page side is available; urls
// receives the object URLs minted for bridge payloads and must be the registry
// fetcher resolves blob: URLs through.
func New(doc dom.Document, br Bridge, transcriber Transcriber, fetcher media.URLFetcher, urls *media.ObjectURLs, opts Options) *Pipeline {
	if urls == nil {
		urls = media.NewObjectURLs("")
	}
	return &Pipeline{
		doc:         doc,
		bridge:      br,
		transcriber: transcriber,
		fetcher:     fetcher,
		urls:        urls,
		opts:        opts,
		logger:      observability.Component("pipeline"),
	}
}

// LastSource returns the most recent source that produced a payload
func (p *Pipeline) LastSource() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSource
}

func (p *Pipeline) remember(src string) {
	p.mu.Lock()
	p.lastSource = src
	p.mu.Unlock()
}

// TranscribeAudio transcribes the voice message rendered by msg
func (p *Pipeline) TranscribeAudio(ctx context.Context, msg dom.Element) (string, error) {
	return p.transcribe(ctx, msg)
}

// TranscribeLatest transcribes the most recent voice message of the active chat
func (p *Pipeline) TranscribeLatest(ctx context.Context) (string, error) {
	return p.transcribe(ctx, nil)
}

func (p *Pipeline) transcribe(ctx context.Context, msg dom.Element) (string, error) {
	correlationID := observability.NewCorrelationID()
	logger := p.logger.With().Str("correlation_id", correlationID).Logger()
	ctx = logger.WithContext(ctx)

	timer := observability.StartTranscription()

	res, err := p.Resolve(ctx, msg)
	if err != nil {
		timer.Done(false)
		return "", err
	}

	text, err := p.transcriber.Transcribe(ctx, res.Payload, runtime.Metadata{
		FileName:  res.Payload.FileName,
		MessageID: res.MessageID,
		Source:    res.Strategy,
	})
	if err != nil {
		timer.Done(false)
		logger.Error().Err(err).Str("strategy", res.Strategy).Msg("Transcription failed")
		return "", errorsx.Wrap(fmt.Errorf("%w: %w", ErrTranscriptionFailed, err), errorsx.ReasonTranscriptionFailed)
	}

	timer.Done(true)
	logger.Info().Str("strategy", res.Strategy).Int("chars", len(text)).Msg("Voice message transcribed")
	return text, nil
}

// Resolution is a payload together with the strategy that produced it
type Resolution struct {
	Payload   media.AudioPayload
	Strategy  string
	Source    string
	MessageID string
}

type strategy struct {
	name string
	run  func(ctx context.Context) (*Resolution, error)
}

// Resolve runs the strategies in order and returns the first payload found. A nil
// msg resolves the most recent voice message.
func (p *Pipeline) Resolve(ctx context.Context, msg dom.Element) (*Resolution, error) {
	logger := zerolog.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		l := p.logger
		logger = &l
	}

	messageID := ""
	if msg != nil {
		messageID = dom.MessageID(msg)
	}

	for _, s := range p.strategies(msg, messageID) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res, err := s.run(ctx)
		switch {
		case err == nil && res != nil:
			observability.RecordStrategy(s.name, "success")
			logger.Debug().Str("strategy", s.name).Int("bytes", res.Payload.Size()).Msg("Audio resolved")
			res.Strategy = s.name
			if res.MessageID == "" {
				res.MessageID = messageID
			}
			if res.Source != "" {
				p.remember(res.Source)
			}
			return res, nil
		case isFatal(ctx, err):
			observability.RecordStrategy(s.name, "error")
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		case err != nil:
			observability.RecordStrategy(s.name, "error")
			logger.Debug().Err(err).Str("strategy", s.name).Msg("Strategy failed")
		default:
			observability.RecordStrategy(s.name, "skipped")
		}
	}

	observability.RecordError(string(errorsx.ReasonNoAudioSource), "pipeline")
	logger.Warn().Str("message_id", messageID).Msg("No audio source found")
	return nil, errorsx.Wrap(ErrNoAudioSource, errorsx.ReasonNoAudioSource)
}

// isFatal reports errors that end the resolution instead of moving to the next
// strategy. Timeouts a strategy sets on its own work are not fatal; only the
// caller's ctx ending is.
func isFatal(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	return ctx.Err() != nil ||
		errors.Is(err, ErrBridgeUnavailable) ||
		errors.Is(err, bridge.ErrInjection)
}

func (p *Pipeline) strategies(msg dom.Element, messageID string) []strategy {
	if msg == nil {
		return []strategy{
			{StrategyBridge, func(ctx context.Context) (*Resolution, error) { return p.fromBridge(ctx, "") }},
			{StrategyLastSource, p.fromLastSource},
			{StrategyPageScan, p.fromPageScan},
		}
	}
	return []strategy{
		{StrategyMessageAudio, func(ctx context.Context) (*Resolution, error) { return p.fromMessageAudio(ctx, msg) }},
		{StrategyBridge, func(ctx context.Context) (*Resolution, error) { return p.fromBridge(ctx, messageID) }},
		{StrategyLastSource, p.fromLastSource},
		{StrategyPageScan, p.fromPageScan},
		{StrategyMaterialize, func(ctx context.Context) (*Resolution, error) { return p.materialize(ctx, msg) }},
	}
}
