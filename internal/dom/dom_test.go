package dom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chatPage = `<html><body><div id="main"><div data-testid="conversation-panel-messages">
  <div data-testid="msg-container" class="message-in" data-id="false_5511@c.us_A1">
    <div data-testid="audio-play-button"></div>
    <div class="audio-wrapper"><audio><source src="blob:https://web.whatsapp.com/one"></audio></div>
  </div>
  <div data-testid="msg-container" class="message-out">
    <div data-id="true_5511@c.us_T1"><span data-testid="selectable-text"> hello there </span></div>
    <span data-testid="tail-out"></span>
  </div>
  <div data-testid="msg-container" aria-owns="false_5511@c.us_V2">
    <button aria-label="Play voice message"></button>
  </div>
</div></div></body></html>`

func mustSnapshot(t *testing.T, html string) *Snapshot {
	t.Helper()
	s, err := NewSnapshot(html)
	require.NoError(t, err)
	return s
}

func TestMessageID(t *testing.T) {
	s := mustSnapshot(t, chatPage)
	msgs := Messages(s, 0)
	require.Len(t, msgs, 3)

	assert.Equal(t, "false_5511@c.us_A1", MessageID(msgs[0]))
	assert.Equal(t, "true_5511@c.us_T1", MessageID(msgs[1]))
	assert.Equal(t, "false_5511@c.us_V2", MessageID(msgs[2]))

	audio, ok := msgs[0].Query("audio")
	require.True(t, ok)
	assert.Equal(t, "false_5511@c.us_A1", MessageID(audio))

	assert.Empty(t, MessageID(nil))
}

func TestMessages_Limit(t *testing.T) {
	s := mustSnapshot(t, chatPage)
	msgs := Messages(s, 2)
	require.Len(t, msgs, 2)
	assert.Equal(t, "true_5511@c.us_T1", MessageID(msgs[0]))
}

func TestMessages_ChatAreaFallback(t *testing.T) {
	s := mustSnapshot(t, `<div id="main"><div data-id="a"></div><div data-id="b"></div></div>`)
	msgs := Messages(s, 0)
	require.Len(t, msgs, 2)
	assert.Equal(t, "b", MessageID(msgs[1]))
}

func TestIsOutgoingAndText(t *testing.T) {
	s := mustSnapshot(t, chatPage)
	msgs := Messages(s, 0)

	assert.False(t, IsOutgoing(msgs[0]))
	assert.True(t, IsOutgoing(msgs[1]))
	assert.Equal(t, "hello there", MessageText(msgs[1]))
	assert.Empty(t, MessageText(msgs[2]))
}

func TestAudioSource(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
		ok   bool
	}{
		{"src attribute", `<audio src="blob:x"></audio>`, "blob:x", true},
		{"nested source", `<audio><source src="https://cdn/a.ogg"></audio>`, "https://cdn/a.ogg", true},
		{"anchor", `<audio><a href="data:audio/ogg;base64,AA=="></a></audio>`, "data:audio/ogg;base64,AA==", true},
		{"nothing", `<audio></audio>`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := mustSnapshot(t, tt.html)
			el, ok := Query(s, "audio")
			require.True(t, ok)
			got, ok := AudioSource(el)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMessageAudioAndPlayControl(t *testing.T) {
	s := mustSnapshot(t, chatPage)
	msgs := Messages(s, 0)

	src, ok := MessageAudio(msgs[0])
	require.True(t, ok)
	assert.Equal(t, "blob:https://web.whatsapp.com/one", src)

	_, ok = MessageAudio(msgs[2])
	assert.False(t, ok)

	assert.True(t, HasAudio(msgs[0]))
	assert.True(t, HasAudio(msgs[2]))
	assert.False(t, HasAudio(msgs[1]))

	play, ok := PlayControl(msgs[2])
	require.True(t, ok)
	assert.Equal(t, "button", play.Tag())
}

func TestScanAudio_NewestFirst(t *testing.T) {
	s := mustSnapshot(t, `<div>
  <audio src="blob:first"></audio>
  <div class="message"><span data-icon="audio-play"></span><div><a href="blob:near"></a></div></div>
  <audio src="blob:second"></audio>
  <audio src="blob:first"></audio>
</div>`)

	assert.Equal(t, []string{"blob:first", "blob:second", "blob:near"}, ScanAudio(s))
}

func TestClick_RunsHandler(t *testing.T) {
	s := mustSnapshot(t, chatPage)
	msgs := Messages(s, 0)
	play, ok := PlayControl(msgs[2])
	require.True(t, ok)

	s.OnClick(func(s *Snapshot, el Element) error {
		msg, ok := el.Closest(`[data-testid="msg-container"]`)
		require.True(t, ok)
		return s.Append(msg, `<audio src="blob:materialized"></audio>`)
	})

	require.NoError(t, s.Click(play))
	assert.Equal(t, 1, s.Clicks())

	src, ok := MessageAudio(msgs[2])
	require.True(t, ok)
	assert.Equal(t, "blob:materialized", src)
}

func TestClick_Detached(t *testing.T) {
	a := mustSnapshot(t, chatPage)
	b := mustSnapshot(t, chatPage)
	el, ok := Query(a, "audio")
	require.True(t, ok)

	assert.ErrorIs(t, b.Click(el), ErrDetached)
}

func TestReload(t *testing.T) {
	s := mustSnapshot(t, `<p></p>`)
	assert.Empty(t, s.QueryAll("audio"))

	require.NoError(t, s.Reload(`<audio src="blob:y"></audio>`))
	assert.Equal(t, []string{"blob:y"}, ScanAudio(s))
}
