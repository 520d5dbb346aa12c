package stt

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/lexiqai/wa-assistant/internal/errorsx"
	"github.com/lexiqai/wa-assistant/internal/media"
	"github.com/lexiqai/wa-assistant/internal/observability"
	"github.com/lexiqai/wa-assistant/internal/resilience"
)

// DeepgramConfig configures the streaming transcriber
type DeepgramConfig struct {
	APIKey   string
	Model    string
	Language string
	Idle     time.Duration // Close the session this long after the last result
	Timeout  time.Duration // Upper bound for one transcription
}

// DeepgramTranscriber streams a complete recording over Deepgram's live websocket
// and collects the final transcripts
type DeepgramTranscriber struct {
	cfg     DeepgramConfig
	breaker *resilience.CircuitBreaker
	logger  zerolog.Logger
}

// NewDeepgramTranscriber creates a transcriber. breaker may be nil.
func NewDeepgramTranscriber(cfg DeepgramConfig, breaker *resilience.CircuitBreaker) *DeepgramTranscriber {
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.Idle <= 0 {
		cfg.Idle = 1500 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker("deepgram", 5, defaultResetTimeout)
	}
	return &DeepgramTranscriber{
		cfg:     cfg,
		breaker: breaker,
		logger:  observability.Component("deepgram"),
	}
}

// Name implements Transcriber
func (d *DeepgramTranscriber) Name() string { return "deepgram" }

// Transcribe implements Transcriber
func (d *DeepgramTranscriber) Transcribe(ctx context.Context, audio Audio) (string, error) {
	if len(audio.Data) == 0 {
		return "", errorsx.Wrap(media.ErrEmptyPayload, errorsx.ReasonPayloadInvalid)
	}

	var text string
	err := guard(ctx, d.breaker, nil, func(ctx context.Context) error {
		var err error
		text, err = d.stream(ctx, audio)
		return err
	})
	observability.RecordProviderRequest("deepgram", "transcription", err == nil)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", errorsx.Wrap(ErrEmptyTranscript, errorsx.ReasonTranscriptionFailed)
	}
	return text, nil
}

func (d *DeepgramTranscriber) stream(ctx context.Context, audio Audio) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	language := audio.Language
	if language == "" {
		language = d.cfg.Language
	}

	// Containerized audio (ogg/opus, webm, mp4) is detected by the service, so no
	// encoding or sample rate is sent.
	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          d.cfg.Model,
		Language:       language,
		Punctuate:      true,
		SmartFormat:    true,
		InterimResults: true,
		UtteranceEndMs: "1000",
		VadEvents:      true,
	}

	session := newDeepgramSession()
	cb := &deepgramCallback{session: session, logger: d.logger}

	client, err := listenClient.NewWSUsingCallback(ctx, d.cfg.APIKey, &interfaces.ClientOptions{EnableKeepAlive: true}, tOptions, cb)
	if err != nil {
		return "", resilience.NewRetryableError(fmt.Errorf("failed to create Deepgram client: %w", err))
	}
	if connected := client.Connect(); !connected {
		return "", resilience.NewRetryableError(fmt.Errorf("deepgram connection failed"))
	}
	defer client.Stop()

	streamed := make(chan error, 1)
	go func() {
		streamed <- client.Stream(bytes.NewReader(audio.Data))
	}()

	select {
	case err := <-streamed:
		if err != nil && ctx.Err() == nil {
			return "", fmt.Errorf("failed to send audio to Deepgram: %w", err)
		}
	case <-ctx.Done():
		return "", ctx.Err()
	}

	return session.wait(ctx, d.cfg.Idle)
}

// deepgramSession accumulates final transcripts for one recording
type deepgramSession struct {
	mu       sync.Mutex
	finals   []string
	activity chan struct{}
	done     chan struct{}
	doneOnce sync.Once
	err      error
}

func newDeepgramSession() *deepgramSession {
	return &deepgramSession{
		activity: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

func (s *deepgramSession) touch() {
	select {
	case s.activity <- struct{}{}:
	default:
	}
}

func (s *deepgramSession) addFinal(text string) {
	s.mu.Lock()
	s.finals = append(s.finals, text)
	s.mu.Unlock()
	s.touch()
}

func (s *deepgramSession) finish(err error) {
	s.doneOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *deepgramSession) transcript() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.TrimSpace(strings.Join(s.finals, " ")), s.err
}

// wait returns once the connection closes or no event arrives for idle after the
// audio was sent
func (s *deepgramSession) wait(ctx context.Context, idle time.Duration) (string, error) {
	timer := time.NewTimer(idle)
	defer timer.Stop()

	for {
		select {
		case <-s.done:
			return s.transcript()
		case <-s.activity:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(idle)
		case <-timer.C:
			return s.transcript()
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// deepgramCallback implements the live message callback for one session
type deepgramCallback struct {
	session *deepgramSession
	logger  zerolog.Logger
}

func (c *deepgramCallback) Open(or *msginterfaces.OpenResponse) error {
	c.logger.Debug().Msg("Deepgram connection opened")
	return nil
}

func (c *deepgramCallback) Message(mr *msginterfaces.MessageResponse) error {
	if mr == nil || len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	transcript := strings.TrimSpace(mr.Channel.Alternatives[0].Transcript)
	if transcript == "" {
		c.session.touch()
		return nil
	}
	if mr.IsFinal {
		c.session.addFinal(transcript)
		return nil
	}
	c.session.touch()
	return nil
}

func (c *deepgramCallback) Metadata(md *msginterfaces.MetadataResponse) error {
	c.logger.Debug().Str("request_id", md.RequestID).Msg("Deepgram metadata received")
	return nil
}

func (c *deepgramCallback) SpeechStarted(ssr *msginterfaces.SpeechStartedResponse) error {
	c.session.touch()
	return nil
}

// UtteranceEnd marks a pause inside the recording; more speech may follow
func (c *deepgramCallback) UtteranceEnd(ur *msginterfaces.UtteranceEndResponse) error {
	c.session.touch()
	return nil
}

func (c *deepgramCallback) Close(cr *msginterfaces.CloseResponse) error {
	c.session.finish(nil)
	return nil
}

func (c *deepgramCallback) Error(er *msginterfaces.ErrorResponse) error {
	c.logger.Error().Str("error_code", er.ErrCode).Str("error_message", er.ErrMsg).Msg("Deepgram error")
	c.session.finish(fmt.Errorf("deepgram error %s: %s", er.ErrCode, er.ErrMsg))
	return nil
}

func (c *deepgramCallback) UnhandledEvent(byData []byte) error {
	c.logger.Debug().Int("bytes", len(byData)).Msg("Deepgram unhandled event")
	return nil
}
