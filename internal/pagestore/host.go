// Package pagestore is the page-side end of the bridge. It discovers the host
// application's internal message store through its module registry and answers
// audio lookups posted on the bridge bus.
package pagestore

import (
	"context"

	"github.com/lexiqai/wa-assistant/internal/media"
)

// Scope is the page's global namespace
type Scope interface {
	Names() []string
	Lookup(name string) (any, bool)
}

// ScopeSetter is implemented by scopes that accept new globals
type ScopeSetter interface {
	Set(name string, v any)
}

// Chunk is a module bundle pushed into a registry. Loader is invoked with the
// registry's resolver once the chunk is installed.
type Chunk struct {
	ModuleIDs []string
	Loader    func(Require)
}

// ModuleRegistry is the host's array-like, push-capable module loader registry
type ModuleRegistry interface {
	Push(chunk Chunk) error
}

// Require resolves host modules by id
type Require interface {
	ModuleIDs() []string
	Load(id string) (any, error)
}

// Defaulter is implemented by modules exposing a default export
type Defaulter interface {
	Default() any
}

// Store is the host's internal registry of messages
type Store interface {
	Messages() MessageCollection
}

// ChatStore is implemented by stores that also expose conversations
type ChatStore interface {
	Chats() ChatCollection
}

// MessageCollection looks messages up by identifier
type MessageCollection interface {
	Get(id string) (Message, bool)
}

// MessageFinder is implemented by collections supporting a linear scan
type MessageFinder interface {
	Find(pred func(Message) bool) (Message, bool)
}

// ChatCollection exposes the conversation currently open in the UI
type ChatCollection interface {
	GetActive() (Chat, bool)
}

// Chat is a conversation. Msgs returns the host's message collection in whatever
// shape the host uses.
type Chat interface {
	Msgs() any
}

// MessageID is a host message identifier in its raw and serialized forms
type MessageID struct {
	ID         string
	Serialized string
}

// String returns the serialized form when known
func (id MessageID) String() string {
	if id.Serialized != "" {
		return id.Serialized
	}
	return id.ID
}

// Matches reports whether s names this message in any form
func (id MessageID) Matches(s string) bool {
	return s != "" && (s == id.ID || s == id.Serialized)
}

// Message is a host message model
type Message interface {
	ID() MessageID
	Type() string
	MediaType() string
	MediaData() *MediaData
}

// MediaDownloader is implemented by messages that can materialize their media
type MediaDownloader interface {
	DownloadMedia(ctx context.Context) (*DownloadResult, error)
}

// MediaData is the media part of a message. Inline fields hold blob or wrapped-blob
// payloads; other representations are ignored there.
type MediaData struct {
	MediaBlob        media.Payload // mediaBlob
	PrivateMediaBlob media.Payload // _mediaBlob
	Blob             media.Payload
	File             media.Payload

	Data string // base64 or data URI

	Type     string
	MIMEType string
	Filename string

	MediaBlobURL  string
	MediaURL      string
	URL           string
	ClientURL     string
	DirectPath    string
	StreamableURL string
	RenderableURL string
}

// DownloadResult is what a message's download capability yields
type DownloadResult struct {
	MediaBlob        media.Payload
	PrivateMediaBlob media.Payload
	Blob             media.Payload
	File             media.Payload
	Data             media.Payload // blob, wrapped blob or data URI
	Buffer           []byte

	MIMEType string

	MediaBlobURL string
	URL          string
	DirectPath   string
	ClientURL    string
}
