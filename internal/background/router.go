// Package background is the privileged process: it owns the API key and the AI
// providers and answers runtime messages from the content side.
package background

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/wa-assistant/internal/errorsx"
	"github.com/lexiqai/wa-assistant/internal/media"
	"github.com/lexiqai/wa-assistant/internal/observability"
	"github.com/lexiqai/wa-assistant/internal/runtime"
	"github.com/lexiqai/wa-assistant/internal/settings"
	"github.com/lexiqai/wa-assistant/internal/stt"
)

// MaxRequestBytes bounds a runtime message body, base64 audio included
const MaxRequestBytes = 96 << 20

// ErrUnsupportedAction answers unknown message types
var ErrUnsupportedAction = errors.New("unsupported action")

// Completer generates chat completions
type Completer interface {
	Complete(ctx context.Context, prompt, model string) (string, error)
}

// KeySource supplies the OpenAI API key
type KeySource interface {
	Get() (string, error)
	Configured() bool
}

// Providers are the AI clients bound to one API key
type Providers struct {
	Transcriber stt.Transcriber
	Completer   Completer
}

// ProviderFactory builds providers for an API key
type ProviderFactory func(apiKey string) Providers

// Options configure a Router
type Options struct {
	Keys     KeySource
	Settings *settings.Store
	Factory  ProviderFactory
	// Transcriber, when set, serves transcriptions without an OpenAI key
	Transcriber stt.Transcriber
	// Breakers are reset when the API key changes
	Breakers Breakers
	Timeout  time.Duration
}

// Router dispatches runtime messages
type Router struct {
	opts   Options
	logger zerolog.Logger

	mu         sync.Mutex
	cachedKey  string
	cachedProv Providers
}

// NewRouter creates a router
func NewRouter(opts Options) *Router {
	if opts.Timeout <= 0 {
		opts.Timeout = 90 * time.Second
	}
	return &Router{opts: opts, logger: observability.Component("background")}
}

var _ runtime.Sender = (*Router)(nil)

// Send implements runtime.Sender. Failures are reported in the response; the error
// return is always nil.
func (r *Router) Send(ctx context.Context, req runtime.Request) (runtime.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	logger := r.logger.With().Str("type", req.Type).Logger()
	start := time.Now()

	resp, err := r.dispatch(ctx, req)
	if err != nil {
		observability.RecordError(string(errorsx.Reason(err)), "background")
		logger.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("Runtime request failed")
		return runtime.Failure(err), nil
	}
	logger.Debug().Dur("elapsed", time.Since(start)).Msg("Runtime request served")
	return resp, nil
}

func (r *Router) dispatch(ctx context.Context, req runtime.Request) (runtime.Response, error) {
	switch req.Type {
	case runtime.TypeGetSettings:
		s, err := r.settings()
		if err != nil {
			return runtime.Response{}, err
		}
		return runtime.Response{OK: true, Settings: s.Map()}, nil

	case runtime.TypeCheckAPIKey:
		configured := r.opts.Keys != nil && r.opts.Keys.Configured()
		return runtime.Response{OK: true, Configured: &configured}, nil

	case runtime.TypeGenerateCompletion:
		prov, err := r.providers()
		if err != nil {
			return runtime.Response{}, err
		}
		model := req.Model
		if model == "" {
			if s, err := r.settings(); err == nil {
				model = s.Model
			}
		}
		text, err := prov.Completer.Complete(ctx, req.Prompt, model)
		if err != nil {
			return runtime.Response{}, err
		}
		return runtime.Response{OK: true, Text: text}, nil

	case runtime.TypeTranscribeAudio:
		return r.transcribe(ctx, req)
	}
	return runtime.Response{}, ErrUnsupportedAction
}

func (r *Router) transcribe(ctx context.Context, req runtime.Request) (runtime.Response, error) {
	if len(req.ArrayBuffer) == 0 {
		return runtime.Response{}, errorsx.Wrap(media.ErrEmptyPayload, errorsx.ReasonPayloadInvalid)
	}

	transcriber := r.opts.Transcriber
	if transcriber == nil {
		prov, err := r.providers()
		if err != nil {
			return runtime.Response{}, err
		}
		transcriber = prov.Transcriber
	}

	audio := stt.Audio{Data: req.ArrayBuffer, MIMEType: media.ResolveMIME(req.Mime, "", "")}
	if req.Metadata != nil {
		audio.FileName = req.Metadata.FileName
	}
	if s, err := r.settings(); err == nil {
		audio.Language = s.Language
	}

	text, err := transcriber.Transcribe(ctx, audio)
	if err != nil {
		return runtime.Response{}, err
	}
	return runtime.Response{OK: true, Text: text}, nil
}

func (r *Router) settings() (settings.Settings, error) {
	if r.opts.Settings == nil {
		return settings.Settings{
			Model:         settings.DefaultModel,
			ResponseStyle: settings.DefaultResponseStyle,
			Language:      settings.DefaultLanguage,
		}, nil
	}
	return r.opts.Settings.Load()
}

// providers returns the clients for the current key, rebuilding them when the key
// changes
func (r *Router) providers() (Providers, error) {
	if r.opts.Keys == nil || r.opts.Factory == nil {
		return Providers{}, errorsx.Wrap(settings.ErrNoAPIKey, errorsx.ReasonNotConfigured)
	}
	key, err := r.opts.Keys.Get()
	if err != nil {
		return Providers{}, errorsx.Wrap(err, errorsx.ReasonNotConfigured)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if key != r.cachedKey {
		if r.cachedKey != "" {
			r.opts.Breakers.Reset()
			r.logger.Info().Msg("API key changed, provider clients rebuilt")
		}
		r.cachedProv = r.opts.Factory(key)
		r.cachedKey = key
	}
	return r.cachedProv, nil
}

// ServeHTTP accepts a JSON runtime.Request and answers with a runtime.Response
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, runtime.Response{Error: "method not allowed"})
		return
	}

	var in runtime.Request
	body := http.MaxBytesReader(w, req.Body, MaxRequestBytes)
	if err := json.NewDecoder(body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, runtime.Response{Error: "invalid request: " + err.Error()})
		return
	}

	resp, _ := r.Send(req.Context(), in)
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
