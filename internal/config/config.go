package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Timeout policies for a bridge that never signals readiness.
const (
	PolicySoft  = "soft"
	PolicyFatal = "fatal"
)

// Transcription providers.
const (
	ProviderOpenAI   = "openai"
	ProviderDeepgram = "deepgram"
)

// Config holds all configuration for the assistant service and its content-side agent
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Base URL of a running server, used by the CLI to reach /runtime and /bridge
	ServerURL string `envconfig:"SERVER_URL" default:"http://localhost:8080"`

	// OpenAI configuration. The key may also live in the OS keyring (see KeyringService).
	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY" default:""`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL" default:""`
	WhisperModel  string `envconfig:"WHISPER_MODEL" default:"whisper-1"`

	// Transcription provider: openai or deepgram
	TranscriptionProvider string `envconfig:"TRANSCRIPTION_PROVIDER" default:"openai"`

	// Deepgram STT API configuration (only when TranscriptionProvider=deepgram)
	DeepgramAPIKey   string `envconfig:"DEEPGRAM_API_KEY" default:""`
	DeepgramModel    string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`
	DeepgramLanguage string `envconfig:"DEEPGRAM_LANGUAGE" default:"pt"`
	DeepgramIdleMs   int    `envconfig:"DEEPGRAM_IDLE_MS" default:"1500"` // Silence after last result before closing

	// Settings and credentials
	SettingsFile   string `envconfig:"SETTINGS_FILE" default:"settings.yaml"`
	KeyringService string `envconfig:"KEYRING_SERVICE" default:"wa-assistant"`

	// Bridge configuration
	BridgeReadyTimeoutMs   int    `envconfig:"BRIDGE_READY_TIMEOUT_MS" default:"4000"`
	BridgeRequestTimeoutMs int    `envconfig:"BRIDGE_REQUEST_TIMEOUT_MS" default:"8000"`
	BridgeTimeoutPolicy    string `envconfig:"BRIDGE_TIMEOUT_POLICY" default:"soft"` // soft or fatal

	// Audio resolution
	MaterializeDelayMs int `envconfig:"MATERIALIZE_DELAY_MS" default:"600"` // Wait after clicking a play control
	ObjectURLTTLMs     int `envconfig:"OBJECT_URL_TTL_MS" default:"5000"`   // Revocation delay for temporary object URLs
	FetchTimeoutMs     int `envconfig:"FETCH_TIMEOUT_MS" default:"15000"`  // Per-fetch timeout for audio URLs

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Maximum retry attempts
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds
	ReconnectMaxAttempts       int `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"5"`         // Maximum reconnection attempts
	ReconnectBackoff           int `envconfig:"RECONNECT_BACKOFF" default:"1000"`           // Reconnection backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field constraints that envconfig cannot express
func (c *Config) Validate() error {
	switch c.TranscriptionProvider {
	case ProviderOpenAI:
	case ProviderDeepgram:
		if c.DeepgramAPIKey == "" {
			return fmt.Errorf("DEEPGRAM_API_KEY is required when TRANSCRIPTION_PROVIDER=deepgram")
		}
	default:
		return fmt.Errorf("unknown TRANSCRIPTION_PROVIDER %q", c.TranscriptionProvider)
	}

	if c.BridgeTimeoutPolicy != PolicySoft && c.BridgeTimeoutPolicy != PolicyFatal {
		return fmt.Errorf("BRIDGE_TIMEOUT_POLICY must be %q or %q, got %q", PolicySoft, PolicyFatal, c.BridgeTimeoutPolicy)
	}
	if c.BridgeReadyTimeoutMs <= 0 || c.BridgeRequestTimeoutMs <= 0 {
		return fmt.Errorf("bridge timeouts must be positive")
	}

	return nil
}

// ReadyTimeout is the bounded wait for the page-side readiness signal
func (c *Config) ReadyTimeout() time.Duration {
	return time.Duration(c.BridgeReadyTimeoutMs) * time.Millisecond
}

// RequestTimeout is the per-request bridge timeout
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.BridgeRequestTimeoutMs) * time.Millisecond
}

// MaterializeDelay is how long to wait for the host UI after a simulated click
func (c *Config) MaterializeDelay() time.Duration {
	return time.Duration(c.MaterializeDelayMs) * time.Millisecond
}

// ObjectURLTTL is the bounded delay before temporary object URLs are revoked
func (c *Config) ObjectURLTTL() time.Duration {
	return time.Duration(c.ObjectURLTTLMs) * time.Millisecond
}

// FetchTimeout bounds every network fetch of audio data
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutMs) * time.Millisecond
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
