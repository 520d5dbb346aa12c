package media

import (
	"context"
	"fmt"
	"strings"

	"github.com/lexiqai/wa-assistant/internal/errorsx"
	"github.com/lexiqai/wa-assistant/internal/observability"
)

// Kind tags a Payload variant
type Kind int

const (
	KindBlob Kind = iota + 1
	KindWrapped
	KindBuffer
	KindURL
	KindDataURI
)

func (k Kind) String() string {
	switch k {
	case KindBlob:
		return "blob"
	case KindWrapped:
		return "wrapped"
	case KindBuffer:
		return "buffer"
	case KindURL:
		return "url"
	case KindDataURI:
		return "data_uri"
	}
	return "unknown"
}

// Payload is one of the supported audio payload representations
type Payload interface {
	Kind() Kind
}

// BlobPayload is a live binary blob
type BlobPayload struct {
	Blob Blob
}

// WrappedPayload is an object holding the blob under one of its known fields
type WrappedPayload struct {
	Blob    *Blob // .blob
	AltBlob *Blob // ._blob
	Data    *Blob // .data
}

// BufferPayload is a raw byte buffer or a view over one
type BufferPayload struct {
	Data []byte
}

// URLPayload is a blob:, https: or http: URL to fetch
type URLPayload struct {
	URL string
}

// DataURIPayload is a data: URI, or a bare base64 string
type DataURIPayload struct {
	URI string
}

func (BlobPayload) Kind() Kind    { return KindBlob }
func (WrappedPayload) Kind() Kind { return KindWrapped }
func (BufferPayload) Kind() Kind  { return KindBuffer }
func (URLPayload) Kind() Kind     { return KindURL }
func (DataURIPayload) Kind() Kind { return KindDataURI }

// Unwrap returns the first non-empty nested blob in .blob, ._blob, .data order
func (w WrappedPayload) Unwrap() (Blob, bool) {
	for _, b := range []*Blob{w.Blob, w.AltBlob, w.Data} {
		if b != nil && !b.Empty() {
			return *b, true
		}
	}
	return Blob{}, false
}

// FromString classifies a string source as a data URI or a fetchable URL
func FromString(s string) Payload {
	if strings.HasPrefix(s, "data:") {
		return DataURIPayload{URI: s}
	}
	return URLPayload{URL: s}
}

// URLFetcher retrieves the bytes behind a URL
type URLFetcher interface {
	Fetch(ctx context.Context, url string) (Blob, error)
}

// Hints carry what the caller already knows about a payload
type Hints struct {
	MIMEType     string // explicit hint, highest priority
	MetadataMIME string // type reported alongside the payload
	FileName     string // name supplied by the page side, wins over the derived one
}

// ToBlob resolves a payload to raw bytes without deriving MIME or file name.
// fallbackMIME is the type assumed for representations that carry none.
func ToBlob(ctx context.Context, p Payload, fetcher URLFetcher, fallbackMIME string) (Blob, error) {
	var blob Blob

	switch v := p.(type) {
	case BlobPayload:
		blob = v.Blob
	case WrappedPayload:
		inner, ok := v.Unwrap()
		if !ok {
			return Blob{}, errorsx.Wrap(ErrEmptyPayload, errorsx.ReasonPayloadInvalid)
		}
		blob = inner
	case BufferPayload:
		blob = Blob{Data: v.Data, Type: fallbackMIME}
	case DataURIPayload:
		decoded, err := DecodeDataURI(v.URI, fallbackMIME)
		if err != nil {
			return Blob{}, err
		}
		blob = decoded
	case URLPayload:
		if fetcher == nil {
			return Blob{}, errorsx.Wrap(fmt.Errorf("no fetcher for %s", v.URL), errorsx.ReasonPayloadInvalid)
		}
		fetched, err := fetcher.Fetch(ctx, v.URL)
		if err != nil {
			return Blob{}, err
		}
		blob = fetched
	case nil:
		return Blob{}, errorsx.Wrap(ErrInvalidSource, errorsx.ReasonPayloadInvalid)
	default:
		return Blob{}, errorsx.Wrap(fmt.Errorf("%w: unsupported payload %T", ErrInvalidSource, p), errorsx.ReasonPayloadInvalid)
	}

	if blob.Empty() {
		return Blob{}, errorsx.Wrap(ErrEmptyPayload, errorsx.ReasonPayloadInvalid)
	}
	return blob, nil
}

// Normalize resolves any payload variant into an AudioPayload with resolved MIME type
// and file name. Zero-byte payloads are rejected.
func Normalize(ctx context.Context, p Payload, fetcher URLFetcher, hints Hints) (AudioPayload, error) {
	fallback := ResolveMIME(hints.MIMEType, hints.MetadataMIME, "")
	blob, err := ToBlob(ctx, p, fetcher, fallback)
	if err != nil {
		return AudioPayload{}, err
	}

	mime := ResolveMIME(hints.MIMEType, hints.MetadataMIME, blob.Type)
	blob.Type = mime
	observability.RecordAudioBytes(p.Kind().String(), blob.Size())

	return AudioPayload{
		Blob:     blob,
		MIMEType: mime,
		FileName: FileNameFor(mime, hints.FileName),
	}, nil
}

// ProcessAudioSource accepts a URL string or a blob-like value and normalizes it.
// Anything else is rejected as an invalid source.
func ProcessAudioSource(ctx context.Context, src any, fetcher URLFetcher, hints Hints) (AudioPayload, error) {
	switch v := src.(type) {
	case string:
		if v == "" {
			return AudioPayload{}, errorsx.Wrap(ErrInvalidSource, errorsx.ReasonPayloadInvalid)
		}
		return Normalize(ctx, FromString(v), fetcher, hints)
	case Blob:
		return Normalize(ctx, BlobPayload{Blob: v}, fetcher, hints)
	case *Blob:
		if v == nil {
			return AudioPayload{}, errorsx.Wrap(ErrInvalidSource, errorsx.ReasonPayloadInvalid)
		}
		return Normalize(ctx, BlobPayload{Blob: *v}, fetcher, hints)
	case AudioPayload:
		if hints.FileName == "" {
			hints.FileName = v.FileName
		}
		if hints.MetadataMIME == "" {
			hints.MetadataMIME = v.MIMEType
		}
		return Normalize(ctx, BlobPayload{Blob: v.Blob}, fetcher, hints)
	case Payload:
		return Normalize(ctx, v, fetcher, hints)
	}
	return AudioPayload{}, errorsx.Wrap(fmt.Errorf("%w: %T", ErrInvalidSource, src), errorsx.ReasonPayloadInvalid)
}
