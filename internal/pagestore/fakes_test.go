package pagestore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lexiqai/wa-assistant/internal/bridge"
	"github.com/lexiqai/wa-assistant/internal/media"
)

const testOrigin = "https://web.whatsapp.com"

type fakeMessage struct {
	id        MessageID
	typ       string
	mediaType string
	md        *MediaData
}

func (m *fakeMessage) ID() MessageID         { return m.id }
func (m *fakeMessage) Type() string          { return m.typ }
func (m *fakeMessage) MediaType() string     { return m.mediaType }
func (m *fakeMessage) MediaData() *MediaData { return m.md }

type fakeDownloadable struct {
	*fakeMessage
	calls  int32
	result *DownloadResult
	err    error
}

func (m *fakeDownloadable) DownloadMedia(ctx context.Context) (*DownloadResult, error) {
	atomic.AddInt32(&m.calls, 1)
	return m.result, m.err
}

func (m *fakeDownloadable) Calls() int {
	return int(atomic.LoadInt32(&m.calls))
}

type fakeMessages struct {
	byID map[string]Message
	all  []Message
}

func newFakeMessages(msgs ...Message) *fakeMessages {
	f := &fakeMessages{byID: make(map[string]Message)}
	for _, m := range msgs {
		f.byID[m.ID().ID] = m
		f.all = append(f.all, m)
	}
	return f
}

func (f *fakeMessages) Get(id string) (Message, bool) {
	m, ok := f.byID[id]
	return m, ok
}

func (f *fakeMessages) Find(pred func(Message) bool) (Message, bool) {
	for _, m := range f.all {
		if pred(m) {
			return m, true
		}
	}
	return nil, false
}

type fakeChat struct {
	msgs any
}

func (c *fakeChat) Msgs() any { return c.msgs }

type fakeChats struct {
	active Chat
}

func (c *fakeChats) GetActive() (Chat, bool) {
	return c.active, c.active != nil
}

type fakeStore struct {
	msgs  *fakeMessages
	chats *fakeChats
}

func (s *fakeStore) Messages() MessageCollection {
	if s.msgs == nil {
		return newFakeMessages()
	}
	return s.msgs
}

func (s *fakeStore) Chats() ChatCollection {
	if s.chats == nil {
		return &fakeChats{}
	}
	return s.chats
}

type stubFetcher struct {
	mu    sync.Mutex
	urls  []string
	blobs map[string]media.Blob
}

func (f *stubFetcher) Fetch(ctx context.Context, url string) (media.Blob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	if b, ok := f.blobs[url]; ok {
		return b, nil
	}
	return media.Blob{}, errors.New("HTTP 404")
}

func (f *stubFetcher) Fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.urls...)
}

func fastOptions() Options {
	return Options{RetryInterval: 5 * time.Millisecond, DiscoveryTimeout: 100 * time.Millisecond, PushTimeout: 100 * time.Millisecond}
}

// scopeWithStore publishes store behind a module registry the way the host does
func scopeWithStore(store Store) (*MapScope, *ChunkRegistry) {
	registry := NewChunkRegistry()
	registry.DefineValue("1", map[string]any{"unrelated": true})
	registry.DefineValue("2", DefaultExport{Value: store})

	scope := NewMapScope()
	scope.Set("webpackChunkwhatsapp_web_client", registry)
	return scope, registry
}

func newTestAccessor(t *testing.T, store Store, fetcher media.URLFetcher) (*Accessor, *bridge.MemoryBus) {
	t.Helper()
	scope, _ := scopeWithStore(store)
	bus := bridge.NewMemoryBus(testOrigin)
	return NewAccessor(scope, bus, fetcher, fastOptions()), bus
}

func tenBytes() []byte {
	return []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
}
