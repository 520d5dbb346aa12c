// Package media holds the audio payload value types and the normalization of every
// representation a voice message can arrive in (live blob, wrapped blob, raw buffer,
// URL, data URI) into a single AudioPayload.
package media

import "errors"

// DefaultMIMEType is used when neither a hint, metadata nor the blob declares a type
const DefaultMIMEType = "audio/ogg"

var (
	// ErrEmptyPayload means a payload was located but holds zero bytes; it counts as absence
	ErrEmptyPayload = errors.New("audio payload is empty")
	// ErrInvalidSource means the value handed to normalization is neither a URL nor blob-like
	ErrInvalidSource = errors.New("invalid audio source")
)

// Blob is an opaque sized byte sequence with the MIME type it declares
type Blob struct {
	Data []byte
	Type string
}

// Size returns the number of bytes held
func (b Blob) Size() int {
	return len(b.Data)
}

// Empty reports whether the blob should be treated as absent
func (b Blob) Empty() bool {
	return len(b.Data) == 0
}

// AudioPayload is a normalized, transcribable audio blob
type AudioPayload struct {
	Blob     Blob
	MIMEType string
	FileName string
}

// Size returns the payload size in bytes
func (p AudioPayload) Size() int {
	return p.Blob.Size()
}
