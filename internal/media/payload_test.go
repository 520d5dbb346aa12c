package media

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiqai/wa-assistant/internal/errorsx"
)

type stubFetcher struct {
	blob  Blob
	err   error
	calls []string
}

func (s *stubFetcher) Fetch(ctx context.Context, url string) (Blob, error) {
	s.calls = append(s.calls, url)
	return s.blob, s.err
}

func TestNormalize_DataURIRoundTrip(t *testing.T) {
	ctx := context.Background()

	for _, size := range []int{1, 10000} {
		data := make([]byte, size)
		for i := range data {
			data[i] = byte(i*31 + 7)
		}

		p, err := Normalize(ctx, DataURIPayload{URI: EncodeDataURI(data, "audio/ogg")}, nil, Hints{})
		require.NoError(t, err, "size %d", size)
		assert.True(t, bytes.Equal(data, p.Blob.Data), "size %d: bytes differ", size)
		assert.Equal(t, "audio/ogg", p.MIMEType)
		assert.Equal(t, "audio.ogg", p.FileName)
	}
}

func TestNormalize_EmptyDataURIRejected(t *testing.T) {
	_, err := Normalize(context.Background(), DataURIPayload{URI: EncodeDataURI(nil, "audio/ogg")}, nil, Hints{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptyPayload))
	assert.Equal(t, errorsx.ReasonPayloadInvalid, errorsx.Reason(err))
}

func TestNormalize_Blob(t *testing.T) {
	p, err := Normalize(context.Background(), BlobPayload{Blob: Blob{Data: []byte{1, 2, 3}, Type: "audio/webm"}}, nil, Hints{})
	require.NoError(t, err)
	assert.Equal(t, 3, p.Size())
	assert.Equal(t, "audio/webm", p.MIMEType)
	assert.Equal(t, "audio.webm", p.FileName)
}

func TestNormalize_EmptyBlobRejected(t *testing.T) {
	_, err := Normalize(context.Background(), BlobPayload{}, nil, Hints{})
	assert.True(t, errors.Is(err, ErrEmptyPayload))
}

func TestNormalize_WrappedOrder(t *testing.T) {
	w := WrappedPayload{
		Blob:    &Blob{},
		AltBlob: &Blob{Data: []byte("alt"), Type: "audio/mp4"},
		Data:    &Blob{Data: []byte("data")},
	}
	p, err := Normalize(context.Background(), w, nil, Hints{})
	require.NoError(t, err)
	assert.Equal(t, []byte("alt"), p.Blob.Data)
	assert.Equal(t, "audio.mp4", p.FileName)

	_, err = Normalize(context.Background(), WrappedPayload{}, nil, Hints{})
	assert.True(t, errors.Is(err, ErrEmptyPayload))
}

func TestNormalize_BufferUsesHint(t *testing.T) {
	p, err := Normalize(context.Background(), BufferPayload{Data: []byte{9, 9}}, nil, Hints{MetadataMIME: "audio/mpeg"})
	require.NoError(t, err)
	assert.Equal(t, "audio/mpeg", p.MIMEType)
	assert.Equal(t, "audio.mp3", p.FileName)
}

func TestNormalize_URLFetches(t *testing.T) {
	f := &stubFetcher{blob: Blob{Data: []byte("abc"), Type: "audio/ogg; codecs=opus"}}
	p, err := Normalize(context.Background(), URLPayload{URL: "https://example.test/a"}, f, Hints{FileName: "voice.ogg"})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.test/a"}, f.calls)
	assert.Equal(t, "audio/ogg; codecs=opus", p.MIMEType)
	assert.Equal(t, "voice.ogg", p.FileName)
}

func TestNormalize_URLWithoutFetcher(t *testing.T) {
	_, err := Normalize(context.Background(), URLPayload{URL: "https://example.test/a"}, nil, Hints{})
	assert.Error(t, err)
}

func TestProcessAudioSource(t *testing.T) {
	ctx := context.Background()
	f := &stubFetcher{blob: Blob{Data: []byte("x")}}

	p, err := ProcessAudioSource(ctx, "blob:https://web.whatsapp.com/1", f, Hints{})
	require.NoError(t, err)
	assert.Equal(t, DefaultMIMEType, p.MIMEType)

	p, err = ProcessAudioSource(ctx, Blob{Data: []byte("y"), Type: "audio/webm"}, nil, Hints{MIMEType: "audio/mp4"})
	require.NoError(t, err)
	assert.Equal(t, "audio/mp4", p.MIMEType, "explicit hint wins over blob type")

	p, err = ProcessAudioSource(ctx, AudioPayload{Blob: Blob{Data: []byte("z")}, MIMEType: "audio/webm", FileName: "a.webm"}, nil, Hints{})
	require.NoError(t, err)
	assert.Equal(t, "a.webm", p.FileName)
	assert.Equal(t, "audio/webm", p.MIMEType)

	_, err = ProcessAudioSource(ctx, 42, nil, Hints{})
	assert.True(t, errors.Is(err, ErrInvalidSource))

	_, err = ProcessAudioSource(ctx, "", nil, Hints{})
	assert.True(t, errors.Is(err, ErrInvalidSource))
}

func TestFromString(t *testing.T) {
	assert.Equal(t, KindDataURI, FromString("data:audio/ogg;base64,AA==").Kind())
	assert.Equal(t, KindURL, FromString("blob:https://x/1").Kind())
}
