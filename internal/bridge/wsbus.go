package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/wa-assistant/internal/observability"
	"github.com/lexiqai/wa-assistant/internal/resilience"
)

const writeWait = 10 * time.Second

// wireEvent is the frame exchanged with the Hub
type wireEvent struct {
	Origin string          `json:"origin"`
	Data   json.RawMessage `json:"data"`
}

// WSBus is a Bus relayed through a Hub over a websocket. Frames from the hub are
// decoded back into free-form maps, so receivers must go through Decode.
type WSBus struct {
	url       string
	origin    string
	dialer    *websocket.Dialer
	reconnect *resilience.ReconnectConfig
	logger    zerolog.Logger

	mu      sync.RWMutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	subs   *subscribers
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// HubURL builds the /bridge websocket URL for page on a server base URL
func HubURL(serverURL, page string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = "/bridge"
	q := u.Query()
	q.Set("page", page)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// DialWSBus connects to a Hub at wsURL and starts the read loop. A dropped connection
// is re-dialed with rc; the bus stops delivering once reconnection gives up.
func DialWSBus(ctx context.Context, wsURL, origin string, rc *resilience.ReconnectConfig) (*WSBus, error) {
	busCtx, cancel := context.WithCancel(context.Background())
	b := &WSBus{
		url:       wsURL,
		origin:    origin,
		dialer:    websocket.DefaultDialer,
		reconnect: rc,
		logger:    observability.Component("bridge_ws").With().Str("origin", origin).Logger(),
		subs:      newSubscribers(),
		ctx:       busCtx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	if err := b.dial(ctx); err != nil {
		cancel()
		return nil, err
	}

	go b.readLoop()
	return b, nil
}

func (b *WSBus) dial(ctx context.Context) error {
	conn, _, err := b.dialer.DialContext(ctx, b.url, nil)
	if err != nil {
		return fmt.Errorf("dial bridge hub: %w", err)
	}

	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()

	b.logger.Info().Str("url", b.url).Msg("Connected to bridge hub")
	return nil
}

func (b *WSBus) readLoop() {
	defer close(b.done)

	for {
		b.mu.RLock()
		conn := b.conn
		b.mu.RUnlock()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			if b.ctx.Err() != nil {
				return
			}
			b.logger.Warn().Err(err).Msg("Bridge hub connection lost")
			_ = conn.Close()

			if err := resilience.Reconnect(b.ctx, "bridge_hub", b.dial, b.reconnect); err != nil {
				b.logger.Error().Err(err).Msg("Giving up on bridge hub")
				return
			}
			continue
		}

		var frame wireEvent
		if err := json.Unmarshal(msg, &frame); err != nil {
			b.logger.Debug().Err(err).Msg("Ignoring malformed frame")
			continue
		}

		var data map[string]any
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			continue
		}
		b.subs.dispatch(Event{Origin: frame.Origin, Data: data})
	}
}

// Post implements Bus
func (b *WSBus) Post(ctx context.Context, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	frame, err := json.Marshal(wireEvent{Origin: b.origin, Data: raw})
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	b.mu.RLock()
	conn := b.conn
	b.mu.RUnlock()

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("post to bridge hub: %w", err)
	}
	return nil
}

// Subscribe implements Bus
func (b *WSBus) Subscribe(fn func(Event)) func() {
	return b.subs.add(fn)
}

// Origin implements Bus
func (b *WSBus) Origin() string {
	return b.origin
}

// Close stops the read loop and closes the connection
func (b *WSBus) Close() error {
	b.cancel()

	b.mu.RLock()
	conn := b.conn
	b.mu.RUnlock()

	b.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	b.writeMu.Unlock()

	err := conn.Close()
	<-b.done
	return err
}
