package bridge

import (
	"context"
	"sync"
)

// Event is one posted message together with the origin that posted it
type Event struct {
	Origin string
	Data   any
}

// Bus is an asynchronous, unordered broadcast channel shared by both sides of a page.
// Every subscriber sees every event, including the ones it posted itself.
type Bus interface {
	// Post broadcasts data stamped with the bus origin
	Post(ctx context.Context, data any) error
	// Subscribe registers fn for every event; the returned func removes it
	Subscribe(fn func(Event)) (cancel func())
	// Origin is the origin listeners accept events from
	Origin() string
}

// FromSelf reports whether ev was posted on bus's own origin
func FromSelf(bus Bus, ev Event) bool {
	return ev.Origin == bus.Origin()
}

type subscribers struct {
	mu   sync.RWMutex
	next int
	fns  map[int]func(Event)
}

func newSubscribers() *subscribers {
	return &subscribers{fns: make(map[int]func(Event))}
}

func (s *subscribers) add(fn func(Event)) func() {
	s.mu.Lock()
	id := s.next
	s.next++
	s.fns[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.fns, id)
			s.mu.Unlock()
		})
	}
}

// dispatch delivers ev to every subscriber on its own goroutine
func (s *subscribers) dispatch(ev Event) {
	s.mu.RLock()
	fns := make([]func(Event), 0, len(s.fns))
	for _, fn := range s.fns {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		go fn(ev)
	}
}

// MemoryBus is an in-process Bus
type MemoryBus struct {
	origin string
	subs   *subscribers
}

// NewMemoryBus creates a bus for origin
func NewMemoryBus(origin string) *MemoryBus {
	return &MemoryBus{origin: origin, subs: newSubscribers()}
}

// Post implements Bus
func (b *MemoryBus) Post(ctx context.Context, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.subs.dispatch(Event{Origin: b.origin, Data: data})
	return nil
}

// Publish delivers an event with an arbitrary origin, as a foreign frame would
func (b *MemoryBus) Publish(ev Event) {
	b.subs.dispatch(ev)
}

// Subscribe implements Bus
func (b *MemoryBus) Subscribe(fn func(Event)) func() {
	return b.subs.add(fn)
}

// Origin implements Bus
func (b *MemoryBus) Origin() string {
	return b.origin
}
