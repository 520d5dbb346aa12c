package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline metrics
	strategyAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wa_assistant_strategy_attempts_total",
		Help: "Audio resolution strategy attempts by outcome",
	}, []string{"strategy", "outcome"}) // outcome: success, error, skipped

	transcriptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wa_assistant_transcriptions_total",
		Help: "Voice message transcriptions by status",
	}, []string{"status"})

	transcriptionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wa_assistant_transcription_latency_seconds",
		Help:    "End-to-end transcription latency in seconds",
		Buckets: []float64{0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	})

	// Bridge metrics
	bridgeRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wa_assistant_bridge_requests_total",
		Help: "Cross-realm bridge requests by action and status",
	}, []string{"action", "status"}) // status: success, error, timeout

	bridgePending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wa_assistant_bridge_pending_requests",
		Help: "Bridge requests awaiting a response",
	})

	readinessWait = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wa_assistant_bridge_readiness_wait_seconds",
		Help:    "Time spent waiting for the page store readiness signal",
		Buckets: []float64{0.01, 0.1, 0.5, 1.0, 2.0, 4.0, 8.0},
	}, []string{"outcome"}) // outcome: ready, timeout, error

	// Provider metrics
	providerRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wa_assistant_provider_requests_total",
		Help: "Requests to AI providers",
	}, []string{"provider", "kind", "status"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wa_assistant_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wa_assistant_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wa_assistant_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wa_assistant_audio_bytes_total",
		Help: "Total audio bytes resolved",
	}, []string{"source"})
)

// TranscriptionTimer measures one transcription from request to transcript
type TranscriptionTimer struct {
	start time.Time
}

// StartTranscription starts timing a transcription
func StartTranscription() *TranscriptionTimer {
	return &TranscriptionTimer{start: time.Now()}
}

// Done records the transcription outcome and latency
func (t *TranscriptionTimer) Done(success bool) {
	transcriptionLatency.Observe(time.Since(t.start).Seconds())
	transcriptions.WithLabelValues(status(success)).Inc()
}

// RecordStrategy records the outcome of one audio resolution strategy
func RecordStrategy(strategy, outcome string) {
	strategyAttempts.WithLabelValues(strategy, outcome).Inc()
}

// RecordBridgeRequest records a bridge round trip outcome
func RecordBridgeRequest(action, status string) {
	bridgeRequests.WithLabelValues(action, status).Inc()
}

// SetBridgePending publishes the size of the pending request map
func SetBridgePending(n int) {
	bridgePending.Set(float64(n))
}

// RecordReadinessWait records how long a readiness wait took
func RecordReadinessWait(outcome string, d time.Duration) {
	readinessWait.WithLabelValues(outcome).Observe(d.Seconds())
}

// RecordProviderRequest records a provider call
func RecordProviderRequest(provider, kind string, success bool) {
	providerRequests.WithLabelValues(provider, kind, status(success)).Inc()
}

// RecordError records an error
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordAudioBytes records resolved audio bytes by source
func RecordAudioBytes(source string, bytes int) {
	audioBytesProcessed.WithLabelValues(source).Add(float64(bytes))
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
