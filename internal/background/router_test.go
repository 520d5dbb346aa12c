package background

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/lexiqai/wa-assistant/internal/config"
	"github.com/lexiqai/wa-assistant/internal/resilience"
	"github.com/lexiqai/wa-assistant/internal/runtime"
	"github.com/lexiqai/wa-assistant/internal/settings"
	"github.com/lexiqai/wa-assistant/internal/stt"
)

type fakeOpenAI struct {
	transcriptions atomic.Int32
	completions    atomic.Int32
	lastAuth       atomic.Value
	lastLanguage   atomic.Value
}

func (f *fakeOpenAI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.lastAuth.Store(r.Header.Get("Authorization"))
	w.Header().Set("Content-Type", "application/json")

	switch r.URL.Path {
	case "/v1/audio/transcriptions":
		f.transcriptions.Add(1)
		_ = r.ParseMultipartForm(1 << 20)
		f.lastLanguage.Store(r.FormValue("language"))
		_, _ = io.WriteString(w, `{"text":"bom dia"}`)
	case "/v1/chat/completions":
		f.completions.Add(1)
		_, _ = io.WriteString(w, `{"choices":[{"index":0,"message":{"role":"assistant","content":"  Bom dia! "}}]}`)
	default:
		http.NotFound(w, r)
	}
}

type testEnv struct {
	router *Router
	openai *fakeOpenAI
	keys   *settings.KeyStore
	store  *settings.Store
	built  *atomic.Int32
}

func newTestEnv(t *testing.T, withKey bool) *testEnv {
	t.Helper()
	keyring.MockInit()

	fake := &fakeOpenAI{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		OpenAIBaseURL:              srv.URL + "/v1",
		WhisperModel:               "whisper-1",
		TranscriptionProvider:      config.ProviderOpenAI,
		CircuitBreakerMaxFailures:  3,
		CircuitBreakerResetTimeout: 30,
		RetryMaxAttempts:           1,
		RetryInitialBackoff:        1,
	}

	keys := settings.NewKeyStore("wa-assistant-test", "")
	if withKey {
		require.NoError(t, keys.Set("sk-router"))
	}
	store, err := settings.Open(filepath.Join(t.TempDir(), "settings.yaml"))
	require.NoError(t, err)

	built := &atomic.Int32{}
	factory := OpenAIFactory(cfg, NewBreakers(cfg))
	router := NewRouter(Options{
		Keys:     keys,
		Settings: store,
		Factory: func(key string) Providers {
			built.Add(1)
			return factory(key)
		},
	})
	return &testEnv{router: router, openai: fake, keys: keys, store: store, built: built}
}

func TestRouter_Transcribe(t *testing.T) {
	env := newTestEnv(t, true)
	require.NoError(t, env.store.Save(settings.Settings{Language: "es"}))

	resp, err := env.router.Send(context.Background(), runtime.Request{
		Type:        runtime.TypeTranscribeAudio,
		ArrayBuffer: []byte("ogg-bytes"),
		Mime:        "audio/ogg",
		Metadata:    &runtime.Metadata{FileName: "voice.ogg"},
	})
	require.NoError(t, err)
	assert.True(t, resp.OK, resp.Error)
	assert.Equal(t, "bom dia", resp.Text)
	assert.Equal(t, "Bearer sk-router", env.openai.lastAuth.Load())
	assert.Equal(t, "es", env.openai.lastLanguage.Load())
}

func TestRouter_Complete(t *testing.T) {
	env := newTestEnv(t, true)

	resp, err := env.router.Send(context.Background(), runtime.Request{Type: runtime.TypeGenerateCompletion, Prompt: "oi"})
	require.NoError(t, err)
	assert.True(t, resp.OK, resp.Error)
	assert.Equal(t, "Bom dia!", resp.Text)

	_, _ = env.router.Send(context.Background(), runtime.Request{Type: runtime.TypeGenerateCompletion, Prompt: "de novo"})
	assert.Equal(t, int32(2), env.openai.completions.Load())
	assert.Equal(t, int32(1), env.built.Load(), "providers are reused while the key is unchanged")

	require.NoError(t, env.keys.Set("sk-rotated"))
	_, _ = env.router.Send(context.Background(), runtime.Request{Type: runtime.TypeGenerateCompletion, Prompt: "nova chave"})
	assert.Equal(t, int32(2), env.built.Load())
	assert.Equal(t, "Bearer sk-rotated", env.openai.lastAuth.Load())
}

func TestRouter_MissingKey(t *testing.T) {
	env := newTestEnv(t, false)

	for _, typ := range []string{runtime.TypeTranscribeAudio, runtime.TypeGenerateCompletion} {
		resp, err := env.router.Send(context.Background(), runtime.Request{Type: typ, ArrayBuffer: []byte("x"), Prompt: "x"})
		require.NoError(t, err)
		assert.False(t, resp.OK)
		assert.Equal(t, settings.ErrNoAPIKey.Error(), resp.Error)
	}
	assert.Equal(t, int32(0), env.openai.transcriptions.Load()+env.openai.completions.Load())
}

func TestRouter_SettingsAndKeyCheck(t *testing.T) {
	env := newTestEnv(t, false)

	resp, _ := env.router.Send(context.Background(), runtime.Request{Type: runtime.TypeCheckAPIKey})
	require.True(t, resp.OK)
	require.NotNil(t, resp.Configured)
	assert.False(t, *resp.Configured)

	require.NoError(t, env.keys.Set("sk-later"))
	resp, _ = env.router.Send(context.Background(), runtime.Request{Type: runtime.TypeCheckAPIKey})
	assert.True(t, *resp.Configured)

	resp, _ = env.router.Send(context.Background(), runtime.Request{Type: runtime.TypeGetSettings})
	require.True(t, resp.OK)
	assert.Equal(t, settings.DefaultModel, resp.Settings[settings.KeyModel])
	assert.Equal(t, settings.DefaultLanguage, resp.Settings[settings.KeyLanguage])
}

func TestRouter_RejectsBadRequests(t *testing.T) {
	env := newTestEnv(t, true)

	resp, _ := env.router.Send(context.Background(), runtime.Request{Type: "SELF_DESTRUCT"})
	assert.False(t, resp.OK)
	assert.Equal(t, "unsupported action", resp.Error)

	resp, _ = env.router.Send(context.Background(), runtime.Request{Type: runtime.TypeTranscribeAudio})
	assert.False(t, resp.OK)
	assert.Equal(t, int32(0), env.openai.transcriptions.Load())
}

type staticTranscriber struct{ calls int }

func (s *staticTranscriber) Name() string { return "static" }

func (s *staticTranscriber) Transcribe(ctx context.Context, audio stt.Audio) (string, error) {
	s.calls++
	return "sem chave", nil
}

func TestRouter_KeylessTranscriber(t *testing.T) {
	keyring.MockInit()
	tr := &staticTranscriber{}
	router := NewRouter(Options{Keys: settings.NewKeyStore("wa-assistant-keyless", ""), Transcriber: tr})

	resp, _ := router.Send(context.Background(), runtime.Request{Type: runtime.TypeTranscribeAudio, ArrayBuffer: []byte("x")})
	assert.True(t, resp.OK, resp.Error)
	assert.Equal(t, "sem chave", resp.Text)
	assert.Equal(t, 1, tr.calls)
}

func TestRouter_ServeHTTP(t *testing.T) {
	env := newTestEnv(t, true)
	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	client := runtime.NewHTTPClient(srv.URL, 0)
	resp, err := client.Send(context.Background(), runtime.Request{Type: runtime.TypeTranscribeAudio, ArrayBuffer: []byte("voice")})
	require.NoError(t, err)
	assert.True(t, resp.OK, resp.Error)
	assert.Equal(t, "bom dia", resp.Text)

	t.Run("bad json", func(t *testing.T) {
		r, err := http.Post(srv.URL, "application/json", strings.NewReader("{"))
		require.NoError(t, err)
		defer r.Body.Close()
		assert.Equal(t, http.StatusBadRequest, r.StatusCode)

		var out runtime.Response
		require.NoError(t, json.NewDecoder(r.Body).Decode(&out))
		assert.False(t, out.OK)
	})

	t.Run("wrong method", func(t *testing.T) {
		r, err := http.Get(srv.URL)
		require.NoError(t, err)
		defer r.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, r.StatusCode)
	})

	t.Run("base64 audio in JSON", func(t *testing.T) {
		body, _ := json.Marshal(runtime.Request{Type: runtime.TypeTranscribeAudio, ArrayBuffer: []byte{0x4f, 0x67, 0x67, 0x53}})
		assert.Contains(t, string(body), `"arrayBuffer":"T2dnUw=="`)
		r, err := http.Post(srv.URL, "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		r.Body.Close()
		assert.Equal(t, http.StatusOK, r.StatusCode)
	})
}

func TestBreakers_Check(t *testing.T) {
	cfg := &config.Config{TranscriptionProvider: config.ProviderOpenAI, CircuitBreakerMaxFailures: 1, CircuitBreakerResetTimeout: 60}
	b := NewBreakers(cfg)

	ok, err := b.Check(context.Background())
	assert.True(t, ok)
	assert.NoError(t, err)

	b.Completion.RecordResult(false)
	assert.Equal(t, resilience.StateOpen, b.Completion.GetState())
	ok, err = b.Check(context.Background())
	assert.False(t, ok)
	assert.ErrorContains(t, err, "openai_chat")
}
