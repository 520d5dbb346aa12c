package stt

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiqai/wa-assistant/internal/errorsx"
	"github.com/lexiqai/wa-assistant/internal/resilience"
)

func fastRetry() *resilience.RetryConfig {
	return &resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, BackoffMultiplier: 2}
}

func newWhisper(t *testing.T, handler http.HandlerFunc) (*WhisperTranscriber, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := openai.DefaultConfig("sk-test")
	cfg.BaseURL = srv.URL + "/v1"
	breaker := resilience.NewCircuitBreaker("whisper_test", 2, time.Minute)
	return NewWhisperTranscriber(openai.NewClientWithConfig(cfg), "", breaker, fastRetry()), srv
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, `{"error":{"message":"`+message+`","type":"invalid_request_error"}}`)
}

func TestWhisper_Transcribe(t *testing.T) {
	w, _ := newWhisper(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "pt", r.FormValue("language"))
		assert.Equal(t, "json", r.FormValue("response_format"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "audio.webm", header.Filename)
		body, _ := io.ReadAll(file)
		assert.Equal(t, "voice", string(body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":"  olá, tudo bem?  "}`)
	})

	text, err := w.Transcribe(context.Background(), Audio{Data: []byte("voice"), MIMEType: "audio/webm", Language: "pt"})
	require.NoError(t, err)
	assert.Equal(t, "olá, tudo bem?", text)
}

func TestWhisper_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
		reason errorsx.ReasonCode
	}{
		{http.StatusUnauthorized, ErrInvalidKey, errorsx.ReasonProviderAuth},
		{http.StatusTooManyRequests, ErrRateLimited, errorsx.ReasonProviderRateLimit},
		{http.StatusBadRequest, ErrUnsupportedFormat, errorsx.ReasonPayloadInvalid},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var calls int32
			w, _ := newWhisper(t, func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				writeError(w, tt.status, "rejected")
			})

			_, err := w.Transcribe(context.Background(), Audio{Data: []byte("voice")})
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, errorsx.HasReason(err, tt.reason))
			assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
		})
	}
}

func TestWhisper_RetriesServerErrors(t *testing.T) {
	var calls int32
	w, _ := newWhisper(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			writeError(w, http.StatusBadGateway, "upstream")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":"ok"}`)
	})

	text, err := w.Transcribe(context.Background(), Audio{Data: []byte("voice")})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestWhisper_EmptyTranscript(t *testing.T) {
	w, _ := newWhisper(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":"   "}`)
	})

	_, err := w.Transcribe(context.Background(), Audio{Data: []byte("voice")})
	assert.ErrorIs(t, err, ErrEmptyTranscript)
}

func TestWhisper_CircuitOpens(t *testing.T) {
	var calls int32
	w, _ := newWhisper(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeError(w, http.StatusUnauthorized, "bad key")
	})

	for i := 0; i < 2; i++ {
		_, err := w.Transcribe(context.Background(), Audio{Data: []byte("voice")})
		require.ErrorIs(t, err, ErrInvalidKey)
	}

	_, err := w.Transcribe(context.Background(), Audio{Data: []byte("voice")})
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.True(t, errorsx.HasReason(err, errorsx.ReasonProviderCircuit))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestWhisper_EmptyAudio(t *testing.T) {
	w, _ := newWhisper(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	_, err := w.Transcribe(context.Background(), Audio{})
	assert.True(t, errorsx.HasReason(err, errorsx.ReasonPayloadInvalid))
}
