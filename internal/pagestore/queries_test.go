package pagestore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiqai/wa-assistant/internal/errorsx"
	"github.com/lexiqai/wa-assistant/internal/media"
)

func voiceMessage(id string, md *MediaData) *fakeMessage {
	return &fakeMessage{id: MessageID{ID: id, Serialized: "false_5511@c.us_" + id}, typ: "ptt", mediaType: "audio", md: md}
}

func TestGetAudioBlob_DownloadsWhenNoInlineBlob(t *testing.T) {
	msg := &fakeDownloadable{
		fakeMessage: voiceMessage("m1", &MediaData{MIMEType: "audio/ogg; codecs=opus"}),
		result:      &DownloadResult{MediaBlob: media.BlobPayload{Blob: media.Blob{Data: tenBytes()}}},
	}
	store := &fakeStore{msgs: newFakeMessages(msg)}
	a, _ := newTestAccessor(t, store, nil)

	res, err := a.GetAudioBlob(context.Background(), "m1")
	require.NoError(t, err)

	assert.Equal(t, 1, msg.Calls())
	assert.Equal(t, tenBytes(), res.Blob.Data)
	assert.Equal(t, "audio/ogg; codecs=opus", res.Metadata.MIMEType)
	assert.Equal(t, DefaultFileName, res.Metadata.FileName)
	assert.Equal(t, "false_5511@c.us_m1", res.Metadata.MessageID)
}

func TestGetAudioBlob_InlineBlobSkipsDownload(t *testing.T) {
	msg := &fakeDownloadable{
		fakeMessage: voiceMessage("m1", &MediaData{
			Filename:  "note.ogg",
			MediaBlob: media.WrappedPayload{Blob: &media.Blob{Data: []byte("inline"), Type: "audio/mpeg"}},
		}),
		result: &DownloadResult{Buffer: []byte("downloaded")},
	}
	a, _ := newTestAccessor(t, &fakeStore{msgs: newFakeMessages(msg)}, nil)

	res, err := a.GetAudioBlob(context.Background(), "m1")
	require.NoError(t, err)

	assert.Zero(t, msg.Calls())
	assert.Equal(t, []byte("inline"), res.Blob.Data)
	assert.Equal(t, "audio/mpeg", res.Metadata.MIMEType)
	assert.Equal(t, "note.ogg", res.Metadata.FileName)
}

func TestGetAudioBlob_FindsBySerializedID(t *testing.T) {
	msg := voiceMessage("m1", &MediaData{Data: media.EncodeDataURI([]byte("abc"), "audio/ogg")})
	a, _ := newTestAccessor(t, &fakeStore{msgs: newFakeMessages(msg)}, nil)

	res, err := a.GetAudioBlob(context.Background(), "false_5511@c.us_m1")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), res.Blob.Data)
}

func TestGetAudioBlob_CandidateOrder(t *testing.T) {
	tests := []struct {
		name     string
		md       *MediaData
		download *DownloadResult
		want     string
	}{
		{
			name:     "download blob before media data",
			md:       &MediaData{Data: media.EncodeDataURI([]byte("data"), "audio/ogg")},
			download: &DownloadResult{Blob: media.BlobPayload{Blob: media.Blob{Data: []byte("download")}}},
			want:     "download",
		},
		{
			name:     "media data before download buffer",
			md:       &MediaData{Data: media.EncodeDataURI([]byte("data"), "audio/ogg")},
			download: &DownloadResult{Buffer: []byte("buffer")},
			want:     "data",
		},
		{
			name:     "download data uri before buffer",
			md:       &MediaData{},
			download: &DownloadResult{Data: media.DataURIPayload{URI: media.EncodeDataURI([]byte("uri"), "audio/ogg")}, Buffer: []byte("buffer")},
			want:     "uri",
		},
		{
			name:     "buffer",
			md:       &MediaData{},
			download: &DownloadResult{Buffer: []byte("buffer")},
			want:     "buffer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &fakeDownloadable{fakeMessage: voiceMessage("m1", tt.md), result: tt.download}
			a, _ := newTestAccessor(t, &fakeStore{msgs: newFakeMessages(msg)}, nil)

			res, err := a.GetAudioBlob(context.Background(), "m1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(res.Blob.Data))
			assert.Equal(t, media.DefaultMIMEType, res.Blob.Type)
		})
	}
}

func TestGetAudioBlob_FallsBackToMediaURLs(t *testing.T) {
	fetcher := &stubFetcher{blobs: map[string]media.Blob{
		MediaHost + "/v/t62/abc": {Data: []byte("remote")},
	}}
	msg := &fakeDownloadable{
		fakeMessage: voiceMessage("m1", &MediaData{URL: "https://expired.example/a", DirectPath: "/v/t62/abc"}),
		err:         errors.New("media key expired"),
	}
	a, _ := newTestAccessor(t, &fakeStore{msgs: newFakeMessages(msg)}, fetcher)

	res, err := a.GetAudioBlob(context.Background(), "m1")
	require.NoError(t, err)

	assert.Equal(t, []byte("remote"), res.Blob.Data)
	assert.Equal(t, media.DefaultMIMEType, res.Metadata.MIMEType)
	assert.Equal(t, []string{"https://expired.example/a", MediaHost + "/v/t62/abc"}, fetcher.Fetched())
}

func TestGetAudioBlob_Errors(t *testing.T) {
	noMedia := &fakeMessage{id: MessageID{ID: "text"}, typ: "chat"}
	empty := voiceMessage("empty", &MediaData{})
	a, _ := newTestAccessor(t, &fakeStore{msgs: newFakeMessages(noMedia, empty)}, nil)
	ctx := context.Background()

	_, err := a.GetAudioBlob(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidMessageID)
	assert.True(t, errorsx.HasReason(err, errorsx.ReasonPayloadInvalid))

	_, err = a.GetAudioBlob(ctx, "missing")
	assert.ErrorIs(t, err, ErrMessageNotFound)
	assert.True(t, errorsx.HasReason(err, errorsx.ReasonNotFound))

	_, err = a.GetAudioBlob(ctx, "text")
	assert.ErrorIs(t, err, ErrBlobUnavailable)

	_, err = a.GetAudioBlob(ctx, "empty")
	assert.ErrorIs(t, err, ErrBlobUnavailable)
}

func TestGetLastAudioBlob_SkipsTextMessages(t *testing.T) {
	voice := &fakeDownloadable{
		fakeMessage: voiceMessage("voice", &MediaData{}),
		result:      &DownloadResult{Buffer: tenBytes()},
	}
	text := &fakeDownloadable{
		fakeMessage: &fakeMessage{id: MessageID{ID: "text"}, typ: "chat"},
		result:      &DownloadResult{Buffer: []byte("never")},
	}
	chat := &fakeChat{msgs: []Message{voice, text}}
	store := &fakeStore{msgs: newFakeMessages(voice, text), chats: &fakeChats{active: chat}}
	a, _ := newTestAccessor(t, store, nil)

	res, err := a.GetLastAudioBlob(context.Background())
	require.NoError(t, err)

	assert.Equal(t, tenBytes(), res.Blob.Data)
	assert.Equal(t, "false_5511@c.us_voice", res.Metadata.MessageID)
	assert.Zero(t, text.Calls())
	assert.Equal(t, 1, voice.Calls())
}

func TestGetLastAudioBlob_SkipsVoiceMessageWithoutMedia(t *testing.T) {
	older := voiceMessage("older", &MediaData{Data: media.EncodeDataURI([]byte("older"), "audio/ogg")})
	broken := &fakeDownloadable{fakeMessage: voiceMessage("broken", &MediaData{}), err: errors.New("gone")}
	chat := &fakeChat{msgs: []any{older, broken, "not a message"}}
	a, _ := newTestAccessor(t, &fakeStore{chats: &fakeChats{active: chat}}, nil)

	res, err := a.GetLastAudioBlob(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "older", string(res.Blob.Data))
}

func TestGetLastAudioBlob_Errors(t *testing.T) {
	ctx := context.Background()

	a, _ := newTestAccessor(t, &fakeStore{}, nil)
	_, err := a.GetLastAudioBlob(ctx)
	assert.ErrorIs(t, err, ErrNoActiveChat)

	a, _ = newTestAccessor(t, &fakeStore{chats: &fakeChats{active: &fakeChat{}}}, nil)
	_, err = a.GetLastAudioBlob(ctx)
	assert.ErrorIs(t, err, ErrNoActiveChat)
	assert.Contains(t, err.Error(), "no messages loaded")

	text := &fakeMessage{id: MessageID{ID: "text"}, typ: "chat"}
	a, _ = newTestAccessor(t, &fakeStore{chats: &fakeChats{active: &fakeChat{msgs: []Message{text}}}}, nil)
	_, err = a.GetLastAudioBlob(ctx)
	assert.ErrorIs(t, err, ErrNoVoiceMessage)
	assert.True(t, errorsx.HasReason(err, errorsx.ReasonNotFound))
}

type arrayCollection []Message

func (c arrayCollection) ToArray() []Message { return c }

type modelsCollection struct{ models any }

func (c modelsCollection) GetModelsArray() any { return nil }
func (c modelsCollection) Models() any         { return c.models }

type eachCollection []Message

func (c eachCollection) ForEach(fn func(Message)) {
	for _, m := range c {
		fn(m)
	}
}

func TestResolveMessageModels(t *testing.T) {
	a := &fakeMessage{id: MessageID{ID: "a"}}
	b := &fakeMessage{id: MessageID{ID: "b"}}

	tests := []struct {
		name       string
		collection any
		want       []string
	}{
		{"nil", nil, nil},
		{"slice", []Message{a, b}, []string{"a", "b"}},
		{"mixed slice", []any{a, 42, nil, b}, []string{"a", "b"}},
		{"to array", arrayCollection{a, b}, []string{"a", "b"}},
		{"accessor falls through empty result", modelsCollection{models: []Message{b}}, []string{"b"}},
		{"for each", eachCollection{a, nil, b}, []string{"a", "b"}},
		{"keyed", map[string]Message{"2": b, "1": a}, []string{"a", "b"}},
		{"unsupported", "messages", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, m := range resolveMessageModels(tt.collection) {
				got = append(got, m.ID().ID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
