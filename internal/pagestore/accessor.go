package pagestore

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/lexiqai/wa-assistant/internal/bridge"
	"github.com/lexiqai/wa-assistant/internal/media"
	"github.com/lexiqai/wa-assistant/internal/observability"
)

// Options tune store discovery
type Options struct {
	RetryInterval    time.Duration // Delay between registry probes
	DiscoveryTimeout time.Duration // Give up waiting for the registry after this long
	PushTimeout      time.Duration // Wait for the pushed chunk's loader to run
}

// DefaultOptions returns the discovery timings. The discovery timeout is longer than
// the content side's readiness wait so that one is the binding constraint.
func DefaultOptions() Options {
	return Options{
		RetryInterval:    250 * time.Millisecond,
		DiscoveryTimeout: 8 * time.Second,
		PushTimeout:      5 * time.Second,
	}
}

// Accessor answers store queries for one page
type Accessor struct {
	scope   Scope
	bus     bridge.Bus
	fetcher media.URLFetcher
	opts    Options
	logger  zerolog.Logger

	mu        sync.Mutex
	store     Store
	discovery singleflight.Group
	readyOnce sync.Once
}

// NewAccessor creates an accessor over scope answering on bus. fetcher resolves
// media URLs found on messages.
func NewAccessor(scope Scope, bus bridge.Bus, fetcher media.URLFetcher, opts Options) *Accessor {
	def := DefaultOptions()
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = def.RetryInterval
	}
	if opts.DiscoveryTimeout <= 0 {
		opts.DiscoveryTimeout = def.DiscoveryTimeout
	}
	if opts.PushTimeout <= 0 {
		opts.PushTimeout = def.PushTimeout
	}
	return &Accessor{
		scope:   scope,
		bus:     bus,
		fetcher: fetcher,
		opts:    opts,
		logger:  observability.Component("pagestore"),
	}
}

// EnsureStore succeeds once the store has been discovered
func (a *Accessor) EnsureStore(ctx context.Context) error {
	_, err := a.ensureStore(ctx)
	return err
}

// markDiscovered broadcasts readiness the first time the store is available
func (a *Accessor) markDiscovered() {
	a.readyOnce.Do(func() {
		if err := a.bus.Post(context.Background(), bridge.NewReady()); err != nil {
			a.logger.Error().Err(err).Msg("Failed to broadcast readiness")
		}
	})
}

// Start subscribes to the bus and kicks off discovery. The returned func stops
// answering requests.
func (a *Accessor) Start(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)
	unsubscribe := a.bus.Subscribe(func(ev bridge.Event) {
		a.handle(ctx, ev)
	})

	go func() {
		if err := a.EnsureStore(ctx); err != nil && ctx.Err() == nil {
			a.logger.Warn().Err(err).Msg("Initial store discovery failed")
		}
	}()

	return func() {
		unsubscribe()
		cancel()
	}
}

// Serve answers requests until ctx is done
func (a *Accessor) Serve(ctx context.Context) error {
	stop := a.Start(ctx)
	defer stop()
	<-ctx.Done()
	return nil
}

func (a *Accessor) handle(ctx context.Context, ev bridge.Event) {
	if !bridge.FromSelf(a.bus, ev) {
		return
	}
	env, err := bridge.Decode(ev.Data)
	if err != nil {
		return
	}
	req, ok := env.(bridge.Request)
	if !ok {
		return
	}
	a.answer(ctx, req)
}

func (a *Accessor) answer(ctx context.Context, req bridge.Request) {
	logger := a.logger.With().Str("action", string(req.Action)).Str("request_id", req.RequestID).Logger()

	var resp bridge.Response
	switch req.Action {
	case bridge.ActionEnsureStore:
		if err := a.EnsureStore(ctx); err != nil {
			resp = bridge.Fail(req, err)
		} else {
			resp = bridge.Succeed(req, nil, nil)
		}

	case bridge.ActionGetAudioBlob, bridge.ActionGetLastAudioBlob:
		var (
			res *Result
			err error
		)
		if req.Action == bridge.ActionGetAudioBlob {
			res, err = a.GetAudioBlob(ctx, req.MessageID)
		} else {
			res, err = a.GetLastAudioBlob(ctx)
		}
		if err != nil {
			resp = bridge.Fail(req, err)
		} else {
			meta := res.Metadata
			resp = bridge.Succeed(req, res.Blob.Data, &meta)
		}
	}

	if !resp.Success {
		logger.Debug().Str("error", resp.Error).Msg("Store query failed")
	}
	if err := a.bus.Post(context.WithoutCancel(ctx), resp); err != nil {
		logger.Error().Err(err).Msg("Failed to post response")
	}
}
