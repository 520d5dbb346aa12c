package pagestore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/lexiqai/wa-assistant/internal/bridge"
	"github.com/lexiqai/wa-assistant/internal/errorsx"
)

// LegacyRegistryName is probed directly when the scope does not enumerate it
const LegacyRegistryName = "webpackChunkwhatsapp_web_client"

// PublishedStoreName is where a discovered store is published on the scope
const PublishedStoreName = "Store"

var registryNamePattern = regexp.MustCompile(`(?i)webpackChunk`)

var (
	errRegistryTimeout = errors.New("timed out waiting for module registry")
	errStoreTimeout    = errors.New("timed out locating message store")
	errStoreNotFound   = errors.New("no module exposes a message store")
)

// ErrStoreUnavailable wraps every discovery failure
var ErrStoreUnavailable = errors.New(bridge.TextStoreUnavailable)

func isStore(v any) (Store, bool) {
	s, ok := v.(Store)
	if !ok || s == nil {
		return nil, false
	}
	return s, s.Messages() != nil
}

// publishedStore returns a store some earlier run already put on the scope
func (a *Accessor) publishedStore() (Store, bool) {
	v, ok := a.scope.Lookup(PublishedStoreName)
	if !ok {
		return nil, false
	}
	return isStore(v)
}

func (a *Accessor) findRegistry() (ModuleRegistry, bool) {
	for _, name := range a.scope.Names() {
		if !registryNamePattern.MatchString(name) {
			continue
		}
		v, ok := a.scope.Lookup(name)
		if !ok {
			continue
		}
		if reg, ok := v.(ModuleRegistry); ok {
			return reg, true
		}
	}

	if v, ok := a.scope.Lookup(LegacyRegistryName); ok {
		if reg, ok := v.(ModuleRegistry); ok {
			return reg, true
		}
	}
	return nil, false
}

// ensureStore returns the cached store or runs discovery. Concurrent callers share
// one discovery; a failed discovery is forgotten so the next query retries.
func (a *Accessor) ensureStore(ctx context.Context) (Store, error) {
	if s, ok := a.publishedStore(); ok {
		a.markDiscovered()
		return s, nil
	}

	a.mu.Lock()
	cached := a.store
	a.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	v, err, _ := a.discovery.Do("store", func() (any, error) {
		return a.discover(context.WithoutCancel(ctx))
	})
	if err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("%w: %v", ErrStoreUnavailable, err), errorsx.ReasonNotFound)
	}
	return v.(Store), nil
}

func (a *Accessor) discover(ctx context.Context) (Store, error) {
	start := time.Now()

	var reg ModuleRegistry
	for {
		if r, ok := a.findRegistry(); ok {
			reg = r
			break
		}
		if time.Since(start) >= a.opts.DiscoveryTimeout {
			return nil, errRegistryTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(a.opts.RetryInterval):
		}
	}

	type result struct {
		store Store
		err   error
	}
	found := make(chan result, 1)
	send := func(r result) {
		select {
		case found <- r:
		default:
		}
	}

	moduleID := fmt.Sprintf("__wa_store_%d", time.Now().UnixMilli())
	err := reg.Push(Chunk{
		ModuleIDs: []string{moduleID},
		Loader: func(req Require) {
			if s, ok := a.findStoreInModules(req); ok {
				send(result{store: s})
				return
			}
			send(result{err: errStoreNotFound})
		},
	})
	if err != nil {
		return nil, fmt.Errorf("push module chunk: %w", err)
	}

	timer := time.NewTimer(a.opts.PushTimeout)
	defer timer.Stop()

	select {
	case r := <-found:
		if r.err != nil {
			return nil, r.err
		}
		a.mu.Lock()
		a.store = r.store
		a.mu.Unlock()
		if setter, ok := a.scope.(ScopeSetter); ok {
			setter.Set(PublishedStoreName, r.store)
		}
		a.logger.Info().Dur("elapsed", time.Since(start)).Msg("Message store discovered")
		a.markDiscovered()
		return r.store, nil
	case <-timer.C:
		return nil, errStoreTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// findStoreInModules evaluates every module and returns the first one, or its
// default export, that is a store
func (a *Accessor) findStoreInModules(req Require) (Store, bool) {
	for _, id := range req.ModuleIDs() {
		mod, err := req.Load(id)
		if err != nil {
			a.logger.Debug().Err(err).Str("module", id).Msg("Module evaluation failed")
			continue
		}
		if d, ok := mod.(Defaulter); ok {
			if s, ok := isStore(d.Default()); ok {
				return s, true
			}
		}
		if s, ok := isStore(mod); ok {
			return s, true
		}
	}
	return nil, false
}
