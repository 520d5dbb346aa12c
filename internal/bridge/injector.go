package bridge

import (
	"context"
	"sync"
	"sync/atomic"
)

// Injector loads the page-side accessor into the page
type Injector interface {
	// Inject loads the accessor; it may be called again after a failure
	Inject(ctx context.Context) error
	// Injected reports whether the accessor is already present on the page
	Injected() bool
}

// ScriptInjector runs a load function and records a marker once it succeeds
type ScriptInjector struct {
	load   func(ctx context.Context) error
	marker atomic.Bool
	mu     sync.Mutex
	loads  int
}

// NewScriptInjector wraps load, the action that starts the page-side accessor
func NewScriptInjector(load func(ctx context.Context) error) *ScriptInjector {
	return &ScriptInjector{load: load}
}

// Inject implements Injector
func (s *ScriptInjector) Inject(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.marker.Load() {
		return nil
	}
	s.loads++
	if err := s.load(ctx); err != nil {
		return err
	}
	s.marker.Store(true)
	return nil
}

// Injected implements Injector
func (s *ScriptInjector) Injected() bool {
	return s.marker.Load()
}

// Loads returns how many times the load function ran
func (s *ScriptInjector) Loads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

// PresentInjector is used when the host environment already loaded the accessor
type PresentInjector struct{}

func (PresentInjector) Inject(context.Context) error { return nil }
func (PresentInjector) Injected() bool               { return true }
