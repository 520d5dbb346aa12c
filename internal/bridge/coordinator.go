package bridge

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/lexiqai/wa-assistant/internal/errorsx"
	"github.com/lexiqai/wa-assistant/internal/observability"
)

var (
	// ErrInjection means the page-side accessor could not be loaded
	ErrInjection = errors.New("failed to inject page store accessor")
	// ErrRequestTimeout means no matching response arrived in time
	ErrRequestTimeout = errors.New("bridge request timed out")
)

// Policy decides what a readiness timeout means to callers
type Policy string

const (
	// PolicySoft continues with page-independent strategies
	PolicySoft Policy = "soft"
	// PolicyFatal aborts the operation that needed the bridge
	PolicyFatal Policy = "fatal"
)

// ParsePolicy maps a configuration value to a Policy, defaulting to soft
func ParsePolicy(s string) Policy {
	if Policy(s) == PolicyFatal {
		return PolicyFatal
	}
	return PolicySoft
}

type pendingRequest struct {
	ch chan Response
}

// Coordinator is the content-side end of the bridge. It is created once per page
// and owns the readiness state and the table of in-flight requests.
type Coordinator struct {
	bus      Bus
	injector Injector
	policy   Policy
	logger   zerolog.Logger

	ready     atomic.Bool
	readyOnce sync.Once
	readyCh   chan struct{}

	injected atomic.Bool
	inject   singleflight.Group

	mu      sync.Mutex
	pending map[string]*pendingRequest

	unsubscribe func()
}

// NewCoordinator subscribes to bus and returns a coordinator that is not ready yet
func NewCoordinator(bus Bus, injector Injector, policy Policy) *Coordinator {
	if injector == nil {
		injector = PresentInjector{}
	}
	c := &Coordinator{
		bus:      bus,
		injector: injector,
		policy:   policy,
		logger:   observability.Component("bridge"),
		readyCh:  make(chan struct{}),
		pending:  make(map[string]*pendingRequest),
	}
	c.unsubscribe = bus.Subscribe(c.handle)
	return c
}

// Close stops listening; in-flight calls run into their timeouts
func (c *Coordinator) Close() {
	c.unsubscribe()
}

// Policy returns the readiness timeout policy
func (c *Coordinator) Policy() Policy {
	return c.policy
}

// Ready reports whether the page side has been seen
func (c *Coordinator) Ready() bool {
	return c.ready.Load()
}

// Pending returns the number of in-flight requests
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Coordinator) handle(ev Event) {
	if !FromSelf(c.bus, ev) {
		return
	}

	env, err := Decode(ev.Data)
	if err != nil {
		if !errors.Is(err, ErrUnknownEnvelope) {
			c.logger.Debug().Err(err).Msg("Ignoring invalid envelope")
		}
		return
	}

	switch msg := env.(type) {
	case Ready:
		c.markReady()
	case Response:
		c.settle(msg)
	}
}

func (c *Coordinator) markReady() {
	c.readyOnce.Do(func() {
		c.ready.Store(true)
		close(c.readyCh)
		c.logger.Info().Msg("Page store ready")
	})
}

// EnsureReady makes sure the page-side accessor is loaded and has signalled readiness.
// It injects the accessor at most once however many callers race, and returns false
// without error when the signal does not arrive within timeout. Injection failures
// are returned as errors wrapping ErrInjection and leave the next call free to retry.
func (c *Coordinator) EnsureReady(ctx context.Context, timeout time.Duration) (bool, error) {
	if c.ready.Load() {
		return true, nil
	}
	start := time.Now()

	if err := c.ensureInjected(ctx); err != nil {
		observability.RecordReadinessWait("error", time.Since(start))
		c.logger.Error().Err(err).Msg("Page store injection failed")
		return false, errorsx.Wrap(fmt.Errorf("%w: %v", ErrInjection, err), errorsx.ReasonInjectionFailed)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-c.readyCh:
		observability.RecordReadinessWait("ready", time.Since(start))
		return true, nil
	case <-timer.C:
		observability.RecordReadinessWait("timeout", time.Since(start))
		c.logger.Warn().Dur("timeout", timeout).Msg("Page store readiness timed out")
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (c *Coordinator) ensureInjected(ctx context.Context) error {
	if c.injected.Load() {
		return nil
	}
	if c.injector.Injected() {
		c.injected.Store(true)
		return nil
	}

	// Concurrent callers share the first caller's injection; a failure is not
	// remembered, so the next caller starts a fresh attempt.
	_, err, _ := c.inject.Do("inject", func() (any, error) {
		if c.injected.Load() || c.injector.Injected() {
			c.injected.Store(true)
			return nil, nil
		}
		if err := c.injector.Inject(context.WithoutCancel(ctx)); err != nil {
			return nil, err
		}
		c.injected.Store(true)
		return nil, nil
	})
	return err
}

// Call sends one request and waits for its response. The pending entry is removed
// by whichever of response, timeout, cancellation or post failure happens first; a
// response arriving afterwards is dropped. Failed responses become errors carrying
// the page-side text.
func (c *Coordinator) Call(ctx context.Context, action Action, messageID string, timeout time.Duration) (*Response, error) {
	id := newRequestID()
	p := &pendingRequest{ch: make(chan Response, 1)}

	c.mu.Lock()
	c.pending[id] = p
	observability.SetBridgePending(len(c.pending))
	c.mu.Unlock()

	logger := c.logger.With().Str("action", string(action)).Str("request_id", id).Logger()

	if err := c.bus.Post(ctx, NewRequest(action, id, messageID)); err != nil {
		c.take(id)
		observability.RecordBridgeRequest(string(action), "error")
		return nil, errorsx.Wrap(fmt.Errorf("post %s: %w", action, err), errorsx.ReasonBridgeSend)
	}
	logger.Debug().Str("message_id", messageID).Msg("Bridge request sent")

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var resp Response
	select {
	case resp = <-p.ch:
	case <-timer.C:
		if c.take(id) {
			observability.RecordBridgeRequest(string(action), "timeout")
			logger.Warn().Dur("timeout", timeout).Msg("Bridge request timed out")
			return nil, errorsx.Wrap(fmt.Errorf("%w: %s after %s", ErrRequestTimeout, action, timeout), errorsx.ReasonRequestTimeout)
		}
		// The response claimed the entry first
		resp = <-p.ch
	case <-ctx.Done():
		if c.take(id) {
			observability.RecordBridgeRequest(string(action), "cancelled")
			return nil, ctx.Err()
		}
		resp = <-p.ch
	}

	if !resp.Success {
		observability.RecordBridgeRequest(string(action), "error")
		remote := &RemoteError{Action: action, Message: resp.Error}
		return nil, errorsx.Wrap(remote, reasonForText(resp.Error))
	}

	// A successful answer proves the store is reachable
	c.markReady()
	observability.RecordBridgeRequest(string(action), "success")
	return &resp, nil
}

// take removes a pending entry and reports whether it was still present
func (c *Coordinator) take(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[id]; !ok {
		return false
	}
	delete(c.pending, id)
	observability.SetBridgePending(len(c.pending))
	return true
}

func (c *Coordinator) settle(resp Response) {
	c.mu.Lock()
	p, ok := c.pending[resp.RequestID]
	if ok {
		delete(c.pending, resp.RequestID)
		observability.SetBridgePending(len(c.pending))
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug().Str("request_id", resp.RequestID).Msg("Dropping response without pending request")
		return
	}
	p.ch <- resp
}

func newRequestID() string {
	var b [6]byte
	_, _ = rand.Read(b[:])
	return strconv.FormatInt(time.Now().UnixMilli(), 10) + "-" + hex.EncodeToString(b[:])
}
