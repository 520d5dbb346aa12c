package pagestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/lexiqai/wa-assistant/internal/bridge"
	"github.com/lexiqai/wa-assistant/internal/errorsx"
	"github.com/lexiqai/wa-assistant/internal/media"
)

// DefaultFileName names audio when the message carries no file name
const DefaultFileName = "whatsapp-audio.ogg"

// MediaHost prefixes relative media paths
const MediaHost = "https://mmg.whatsapp.net"

var (
	ErrMessageNotFound  = errors.New(bridge.TextMessageNotFound)
	ErrBlobUnavailable  = errors.New(bridge.TextBlobUnavailable)
	ErrNoActiveChat     = errors.New(bridge.TextNoActiveChat)
	ErrNoVoiceMessage   = errors.New(bridge.TextNoVoiceMessage)
	ErrInvalidMessageID = errors.New(bridge.TextInvalidMessageID)
)

// Result is a resolved voice message
type Result struct {
	Blob     media.Blob
	Metadata bridge.Metadata
}

// GetAudioBlob resolves the audio of the message identified by messageID
func (a *Accessor) GetAudioBlob(ctx context.Context, messageID string) (*Result, error) {
	if messageID == "" {
		return nil, errorsx.Wrap(ErrInvalidMessageID, errorsx.ReasonPayloadInvalid)
	}

	store, err := a.ensureStore(ctx)
	if err != nil {
		return nil, err
	}

	msg, ok := lookupMessage(store.Messages(), messageID)
	if !ok {
		return nil, errorsx.Wrap(ErrMessageNotFound, errorsx.ReasonNotFound)
	}

	blob, mime, err := a.ensureMessageMediaBlob(ctx, msg)
	if err != nil {
		return nil, err
	}

	return &Result{
		Blob: blob,
		Metadata: bridge.Metadata{
			MIMEType:  mime,
			FileName:  fileNameOf(msg),
			MessageID: msg.ID().String(),
		},
	}, nil
}

// GetLastAudioBlob resolves the most recent voice message of the active chat
func (a *Accessor) GetLastAudioBlob(ctx context.Context) (*Result, error) {
	store, err := a.ensureStore(ctx)
	if err != nil {
		return nil, err
	}

	chats, ok := store.(ChatStore)
	if !ok || chats.Chats() == nil {
		return nil, errorsx.Wrap(ErrNoActiveChat, errorsx.ReasonNotFound)
	}
	chat, ok := chats.Chats().GetActive()
	if !ok || chat == nil {
		return nil, errorsx.Wrap(ErrNoActiveChat, errorsx.ReasonNotFound)
	}

	msgs := resolveMessageModels(chat.Msgs())
	if len(msgs) == 0 {
		return nil, errorsx.Wrap(fmt.Errorf("%w: no messages loaded", ErrNoActiveChat), errorsx.ReasonNotFound)
	}

	for i := len(msgs) - 1; i >= 0; i-- {
		msg := msgs[i]
		if !isVoiceMessage(msg) {
			continue
		}

		blob, mime, err := a.ensureMessageMediaBlob(ctx, msg)
		if err != nil {
			a.logger.Debug().Err(err).Str("message_id", msg.ID().String()).Msg("Skipping voice message without media")
			continue
		}

		return &Result{
			Blob: blob,
			Metadata: bridge.Metadata{
				MIMEType:  mime,
				FileName:  fileNameOf(msg),
				MessageID: msg.ID().String(),
			},
		}, nil
	}

	return nil, errorsx.Wrap(ErrNoVoiceMessage, errorsx.ReasonNotFound)
}

func lookupMessage(msgs MessageCollection, id string) (Message, bool) {
	if msgs == nil {
		return nil, false
	}
	if m, ok := msgs.Get(id); ok && m != nil {
		return m, true
	}
	if finder, ok := msgs.(MessageFinder); ok {
		return finder.Find(func(m Message) bool {
			return m != nil && m.ID().Matches(id)
		})
	}
	return nil, false
}

func isVoiceMessage(m Message) bool {
	if m == nil || m.MediaData() == nil {
		return false
	}
	mediaType := m.MediaType()
	if mediaType == "" {
		mediaType = m.MediaData().Type
	}
	return m.Type() == "ptt" || mediaType == "audio"
}

func fileNameOf(m Message) string {
	if md := m.MediaData(); md != nil && md.Filename != "" {
		return md.Filename
	}
	return DefaultFileName
}

// unwrapInline accepts only blob and wrapped-blob payloads
func unwrapInline(p media.Payload) (media.Blob, bool) {
	switch v := p.(type) {
	case media.BlobPayload:
		return v.Blob, !v.Blob.Empty()
	case media.WrappedPayload:
		return v.Unwrap()
	}
	return media.Blob{}, false
}

func firstInline(candidates ...media.Payload) (media.Blob, bool) {
	for _, c := range candidates {
		if b, ok := unwrapInline(c); ok {
			return b, true
		}
	}
	return media.Blob{}, false
}

// ensureMessageMediaBlob turns a message's media into bytes, materializing it through
// the message's download capability only when no inline blob exists
func (a *Accessor) ensureMessageMediaBlob(ctx context.Context, m Message) (media.Blob, string, error) {
	md := m.MediaData()
	if md == nil {
		return media.Blob{}, "", errorsx.Wrap(fmt.Errorf("%w: message has no media", ErrBlobUnavailable), errorsx.ReasonPayloadInvalid)
	}

	inline, hasInline := firstInline(md.MediaBlob, md.PrivateMediaBlob, md.Blob, md.File)

	var dl *DownloadResult
	if !hasInline {
		if d, ok := m.(MediaDownloader); ok {
			res, err := d.DownloadMedia(ctx)
			if err != nil {
				a.logger.Debug().Err(err).Str("message_id", m.ID().String()).Msg("Media download failed")
			} else {
				dl = res
			}
		}
	}

	preferred := md.MIMEType
	if preferred == "" && dl != nil {
		preferred = dl.MIMEType
	}
	if preferred == "" {
		preferred = media.DefaultMIMEType
	}

	withType := func(b media.Blob) (media.Blob, string, error) {
		if b.Type == "" {
			b.Type = preferred
		}
		return b, b.Type, nil
	}

	if hasInline {
		return withType(inline)
	}
	if dl != nil {
		if b, ok := firstInline(dl.MediaBlob, dl.PrivateMediaBlob, dl.Blob, dl.File, dl.Data); ok {
			return withType(b)
		}
	}
	if md.Data != "" {
		if b, err := media.DecodeDataURI(md.Data, preferred); err == nil {
			return withType(b)
		}
	}
	if dl != nil {
		if d, ok := dl.Data.(media.DataURIPayload); ok {
			if b, err := media.DecodeDataURI(d.URI, preferred); err == nil {
				return withType(b)
			}
		}
		if len(dl.Buffer) > 0 {
			return withType(media.Blob{Data: dl.Buffer, Type: preferred})
		}
	}

	for _, u := range resolveMediaURLs(md, dl) {
		b, err := media.ToBlob(ctx, media.FromString(u), a.fetcher, preferred)
		if err != nil {
			a.logger.Debug().Err(err).Str("url", u).Msg("Media URL unusable")
			continue
		}
		return withType(b)
	}

	return media.Blob{}, "", errorsx.Wrap(ErrBlobUnavailable, errorsx.ReasonPayloadInvalid)
}

func resolveMediaURLs(md *MediaData, dl *DownloadResult) []string {
	var urls []string
	add := func(values ...string) {
		for _, v := range values {
			if v != "" {
				urls = append(urls, v)
			}
		}
	}
	direct := func(path string) string {
		if path == "" {
			return ""
		}
		return MediaHost + path
	}

	if md != nil {
		add(md.MediaBlobURL, md.MediaURL, md.URL, md.ClientURL, direct(md.DirectPath), md.StreamableURL, md.RenderableURL)
	}
	if dl != nil {
		add(dl.MediaBlobURL, dl.URL, direct(dl.DirectPath), dl.ClientURL)
	}
	return urls
}
