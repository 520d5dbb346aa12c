package media

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ObjectURLs is a registry of temporary blob: URLs pointing at in-memory blobs.
// Every URL handed out must be revoked, immediately or after a bounded delay.
type ObjectURLs struct {
	origin string

	mu    sync.Mutex
	blobs map[string]Blob
}

// NewObjectURLs creates a registry whose URLs are scoped to origin
func NewObjectURLs(origin string) *ObjectURLs {
	return &ObjectURLs{
		origin: strings.TrimRight(origin, "/"),
		blobs:  make(map[string]Blob),
	}
}

// Create registers blob and returns its blob: URL
func (o *ObjectURLs) Create(blob Blob) string {
	url := "blob:" + o.origin + "/" + uuid.New().String()

	o.mu.Lock()
	o.blobs[url] = blob
	o.mu.Unlock()

	return url
}

// Resolve returns the blob behind a live URL
func (o *ObjectURLs) Resolve(url string) (Blob, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	b, ok := o.blobs[url]
	return b, ok
}

// Revoke releases url; revoking an unknown URL is a no-op
func (o *ObjectURLs) Revoke(url string) {
	o.mu.Lock()
	delete(o.blobs, url)
	o.mu.Unlock()
}

// RevokeAfter releases url once d has elapsed
func (o *ObjectURLs) RevokeAfter(url string, d time.Duration) {
	if d <= 0 {
		o.Revoke(url)
		return
	}
	time.AfterFunc(d, func() { o.Revoke(url) })
}

// Len returns the number of live URLs
func (o *ObjectURLs) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.blobs)
}
