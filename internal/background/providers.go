package background

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/sashabaranov/go-openai"

	"github.com/lexiqai/wa-assistant/internal/config"
	"github.com/lexiqai/wa-assistant/internal/llm"
	"github.com/lexiqai/wa-assistant/internal/resilience"
	"github.com/lexiqai/wa-assistant/internal/settings"
	"github.com/lexiqai/wa-assistant/internal/stt"
)

// Breakers guard the provider clients. They are shared by every client built for a
// key and reset when the key changes.
type Breakers struct {
	Transcription *resilience.CircuitBreaker
	Completion    *resilience.CircuitBreaker
}

// NewBreakers creates the provider breakers from cfg
func NewBreakers(cfg *config.Config) Breakers {
	reset := time.Duration(cfg.CircuitBreakerResetTimeout) * time.Second
	name := "openai_whisper"
	if cfg.TranscriptionProvider == config.ProviderDeepgram {
		name = "deepgram"
	}
	return Breakers{
		Transcription: resilience.NewCircuitBreaker(name, cfg.CircuitBreakerMaxFailures, reset),
		Completion:    resilience.NewCircuitBreaker("openai_chat", cfg.CircuitBreakerMaxFailures, reset),
	}
}

// Check reports a closed or half-open transcription and completion circuit
func (b Breakers) Check(ctx context.Context) (bool, error) {
	for _, cb := range b.all() {
		state, _, failures, _ := cb.GetStats()
		if state == resilience.StateOpen {
			return false, fmt.Errorf("%s circuit is open after %d failures", cb.Name(), failures)
		}
	}
	return true, nil
}

// Reset closes every circuit
func (b Breakers) Reset() {
	for _, cb := range b.all() {
		cb.Reset()
	}
}

func (b Breakers) all() []*resilience.CircuitBreaker {
	return lo.Compact([]*resilience.CircuitBreaker{b.Transcription, b.Completion})
}

// RetryConfig derives the provider retry policy from cfg
func RetryConfig(cfg *config.Config) *resilience.RetryConfig {
	rc := resilience.DefaultRetryConfig()
	rc.MaxAttempts = cfg.RetryMaxAttempts
	rc.InitialBackoff = time.Duration(cfg.RetryInitialBackoff) * time.Millisecond
	return rc
}

// OpenAIFactory builds Whisper and chat clients against the configured endpoint
func OpenAIFactory(cfg *config.Config, breakers Breakers) ProviderFactory {
	retry := RetryConfig(cfg)
	return func(apiKey string) Providers {
		clientCfg := openai.DefaultConfig(apiKey)
		if cfg.OpenAIBaseURL != "" {
			clientCfg.BaseURL = cfg.OpenAIBaseURL
		}
		client := openai.NewClientWithConfig(clientCfg)

		return Providers{
			Transcriber: stt.NewWhisperTranscriber(client, cfg.WhisperModel, breakers.Transcription, retry),
			Completer:   llm.NewOpenAIClient(client, breakers.Completion, retry),
		}
	}
}

// KeylessTranscriber returns the transcriber that does not depend on the OpenAI key,
// or nil when transcription goes through OpenAI
func KeylessTranscriber(cfg *config.Config, breakers Breakers) stt.Transcriber {
	if cfg.TranscriptionProvider != config.ProviderDeepgram {
		return nil
	}
	return stt.NewDeepgramTranscriber(stt.DeepgramConfig{
		APIKey:   cfg.DeepgramAPIKey,
		Model:    cfg.DeepgramModel,
		Language: cfg.DeepgramLanguage,
		Idle:     time.Duration(cfg.DeepgramIdleMs) * time.Millisecond,
	}, breakers.Transcription)
}

// Setup wires a router from cfg: settings file, key store and providers
func Setup(cfg *config.Config) (*Router, Breakers, *settings.KeyStore, error) {
	store, err := settings.Open(cfg.SettingsFile)
	if err != nil {
		return nil, Breakers{}, nil, err
	}
	keys := settings.NewKeyStore(cfg.KeyringService, cfg.OpenAIAPIKey)
	breakers := NewBreakers(cfg)

	router := NewRouter(Options{
		Keys:        keys,
		Settings:    store,
		Factory:     OpenAIFactory(cfg, breakers),
		Transcriber: KeylessTranscriber(cfg, breakers),
		Breakers:    breakers,
	})
	return router, breakers, keys, nil
}
