package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	// Bridge
	ReasonReadinessTimeout ReasonCode = "readiness_timeout"
	ReasonRequestTimeout   ReasonCode = "request_timeout"
	ReasonInjectionFailed  ReasonCode = "injection_failed"
	ReasonBridgeSend       ReasonCode = "bridge_send"

	// Page store
	ReasonNotFound       ReasonCode = "not_found"
	ReasonPayloadInvalid ReasonCode = "payload_invalid"

	// Pipeline
	ReasonNoAudioSource       ReasonCode = "no_audio_source"
	ReasonTranscriptionFailed ReasonCode = "transcription_failed"

	// Providers
	ReasonProviderAuth      ReasonCode = "provider_auth"
	ReasonProviderRateLimit ReasonCode = "provider_rate_limit"
	ReasonProviderCircuit   ReasonCode = "provider_circuit_open"
	ReasonProviderRejected  ReasonCode = "provider_rejected"
	ReasonNotConfigured     ReasonCode = "not_configured"
)
