package bridge

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/wa-assistant/internal/observability"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Both sides of a page connect from local agents; origin filtering happens on the envelope
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

const maxFrameBytes = 96 << 20

type hubClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *hubClient) write(msg []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

// Hub relays bridge frames between every connection of the same page. A frame is
// delivered to all clients of the room, its sender included.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*hubClient]struct{}
	logger zerolog.Logger
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		rooms:  make(map[string]map[*hubClient]struct{}),
		logger: observability.Component("bridge_hub"),
	}
}

// ServeHTTP upgrades the request and joins the room named by the page query parameter
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	page := r.URL.Query().Get("page")
	if page == "" {
		page = "default"
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade bridge connection")
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	client := &hubClient{conn: conn}
	h.join(page, client)
	defer h.leave(page, client)

	logger := h.logger.With().Str("page", page).Logger()
	logger.Info().Msg("Bridge client joined")

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn().Err(err).Msg("Bridge client read error")
			}
			return
		}
		if !json.Valid(msg) {
			logger.Debug().Msg("Dropping non-JSON frame")
			continue
		}
		h.broadcast(page, msg)
	}
}

func (h *Hub) join(page string, c *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[page]
	if !ok {
		room = make(map[*hubClient]struct{})
		h.rooms[page] = room
	}
	room[c] = struct{}{}
}

func (h *Hub) leave(page string, c *hubClient) {
	h.mu.Lock()
	room := h.rooms[page]
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, page)
	}
	h.mu.Unlock()

	_ = c.conn.Close()
}

func (h *Hub) broadcast(page string, msg []byte) {
	h.mu.RLock()
	clients := make([]*hubClient, 0, len(h.rooms[page]))
	for c := range h.rooms[page] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.write(msg); err != nil {
			h.logger.Warn().Err(err).Str("page", page).Msg("Failed to relay frame")
		}
	}
}

// Clients returns the number of connections joined to page
func (h *Hub) Clients(page string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[page])
}
