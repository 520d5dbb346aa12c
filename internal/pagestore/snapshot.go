package pagestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/samber/lo"

	"github.com/lexiqai/wa-assistant/internal/media"
)

// Snapshot is a serialized copy of a page's conversations, used to stand in for a
// live host application
type Snapshot struct {
	Chats []SnapshotChat `json:"chats"`
}

// SnapshotChat is one conversation
type SnapshotChat struct {
	ID       string            `json:"id"`
	Active   bool              `json:"active"`
	Messages []SnapshotMessage `json:"messages"`
}

// SnapshotMessage is one message. Audio may be inline (Data), only reachable through
// the download capability (Download), or referenced by URL.
type SnapshotMessage struct {
	ID         string `json:"id"`
	Serialized string `json:"serialized,omitempty"`
	Type       string `json:"type"`
	MediaType  string `json:"mediaType,omitempty"`
	MIMEType   string `json:"mimetype,omitempty"`
	Filename   string `json:"filename,omitempty"`
	Data       string `json:"data,omitempty"`     // base64 or data URI
	Download   string `json:"download,omitempty"` // base64 returned by the download capability
	URL        string `json:"url,omitempty"`
	DirectPath string `json:"directPath,omitempty"`
	Body       string `json:"body,omitempty"`
}

// LoadSnapshot reads a snapshot from a JSON file
func LoadSnapshot(path string) (*Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	return &s, nil
}

// Scope builds a page scope whose module registry exposes the snapshot as a store
func (s *Snapshot) Scope() *MapScope {
	registry := NewChunkRegistry()
	registry.DefineValue("1001", map[string]any{"version": "2.3000"})
	registry.Define("1002", func() (any, error) { return nil, fmt.Errorf("module requires a live page") })
	registry.DefineValue("1003", DefaultExport{Value: s.Store()})

	scope := NewMapScope()
	scope.Set("document", struct{}{})
	scope.Set(LegacyRegistryName, registry)
	return scope
}

// Store builds the store view of the snapshot
func (s *Snapshot) Store() Store {
	st := &snapshotStore{byID: make(map[string]Message)}
	for _, c := range s.Chats {
		chat := &snapshotChat{id: c.ID}
		for _, m := range c.Messages {
			msg := newSnapshotMessage(m)
			chat.msgs = append(chat.msgs, msg)
			st.all = append(st.all, msg)
			st.byID[m.ID] = msg
		}
		st.chats = append(st.chats, chat)
		if c.Active {
			st.active = chat
		}
	}
	return st
}

type snapshotStore struct {
	all    []Message
	byID   map[string]Message
	chats  []*snapshotChat
	active *snapshotChat
}

func (s *snapshotStore) Messages() MessageCollection { return s }
func (s *snapshotStore) Chats() ChatCollection       { return s }

func (s *snapshotStore) Get(id string) (Message, bool) {
	m, ok := s.byID[id]
	return m, ok
}

func (s *snapshotStore) Find(pred func(Message) bool) (Message, bool) {
	return lo.Find(s.all, pred)
}

func (s *snapshotStore) GetActive() (Chat, bool) {
	if s.active == nil {
		return nil, false
	}
	return s.active, true
}

type snapshotChat struct {
	id   string
	msgs []Message
}

// Msgs mirrors the host's collection wrapper
func (c *snapshotChat) Msgs() any { return modelList(c.msgs) }

type modelList []Message

func (l modelList) GetModelsArray() any { return []Message(l) }

type snapshotMessage struct {
	raw SnapshotMessage
	md  *MediaData
}

type downloadableMessage struct {
	*snapshotMessage
}

func newSnapshotMessage(m SnapshotMessage) Message {
	msg := &snapshotMessage{raw: m}
	if m.Data != "" || m.Download != "" || m.URL != "" || m.DirectPath != "" || m.MIMEType != "" {
		msg.md = &MediaData{
			Data:       m.Data,
			Type:       m.MediaType,
			MIMEType:   m.MIMEType,
			Filename:   m.Filename,
			URL:        m.URL,
			DirectPath: m.DirectPath,
		}
	}
	if m.Download != "" {
		return downloadableMessage{msg}
	}
	return msg
}

func (m *snapshotMessage) ID() MessageID {
	return MessageID{ID: m.raw.ID, Serialized: m.raw.Serialized}
}
func (m *snapshotMessage) Type() string          { return m.raw.Type }
func (m *snapshotMessage) MediaType() string     { return m.raw.MediaType }
func (m *snapshotMessage) MediaData() *MediaData { return m.md }

func (m downloadableMessage) DownloadMedia(ctx context.Context) (*DownloadResult, error) {
	mime := m.raw.MIMEType
	if mime == "" {
		mime = media.DefaultMIMEType
	}
	blob, err := media.DecodeDataURI(m.raw.Download, mime)
	if err != nil {
		return nil, fmt.Errorf("download media: %w", err)
	}
	return &DownloadResult{Blob: media.BlobPayload{Blob: blob}, MIMEType: blob.Type}, nil
}
