package stt

import (
	"context"
	"testing"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func result(text string, final bool) *msginterfaces.MessageResponse {
	return &msginterfaces.MessageResponse{
		IsFinal: final,
		Channel: msginterfaces.Channel{
			Alternatives: []msginterfaces.Alternative{{Transcript: text}},
		},
	}
}

func TestDeepgramSession_CollectsFinalsUntilClose(t *testing.T) {
	s := newDeepgramSession()
	cb := &deepgramCallback{session: s, logger: zerolog.Nop()}

	go func() {
		_ = cb.Message(result("bom", false))
		_ = cb.Message(result("bom dia", true))
		_ = cb.Message(result("", false))
		_ = cb.Message(result("tudo bem?", true))
		_ = cb.Close(&msginterfaces.CloseResponse{})
	}()

	text, err := s.wait(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "bom dia tudo bem?", text)
}

func TestDeepgramSession_KeepsUtterancesAfterPause(t *testing.T) {
	s := newDeepgramSession()
	cb := &deepgramCallback{session: s, logger: zerolog.Nop()}

	go func() {
		_ = cb.Message(result("primeira frase", true))
		_ = cb.UtteranceEnd(&msginterfaces.UtteranceEndResponse{})
		time.Sleep(20 * time.Millisecond)
		_ = cb.SpeechStarted(&msginterfaces.SpeechStartedResponse{})
		_ = cb.Message(result("segunda frase", true))
		_ = cb.UtteranceEnd(&msginterfaces.UtteranceEndResponse{})
	}()

	text, err := s.wait(context.Background(), 200*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "primeira frase segunda frase", text)
}

func TestDeepgramSession_IdleEndsWait(t *testing.T) {
	s := newDeepgramSession()
	cb := &deepgramCallback{session: s, logger: zerolog.Nop()}
	_ = cb.Message(result("olá", true))

	start := time.Now()
	text, err := s.wait(context.Background(), 30*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "olá", text)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDeepgramSession_Error(t *testing.T) {
	s := newDeepgramSession()
	cb := &deepgramCallback{session: s, logger: zerolog.Nop()}
	_ = cb.Error(&msginterfaces.ErrorResponse{ErrCode: "INVALID_AUTH", ErrMsg: "bad key"})

	_, err := s.wait(context.Background(), time.Second)
	assert.ErrorContains(t, err, "INVALID_AUTH")
}

func TestDeepgramTranscriber_EmptyAudio(t *testing.T) {
	d := NewDeepgramTranscriber(DeepgramConfig{APIKey: "key"}, nil)
	_, err := d.Transcribe(context.Background(), Audio{})
	assert.Error(t, err)
	assert.Equal(t, "deepgram", d.Name())
}
