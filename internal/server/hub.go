package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/questsync/internal/events"
)

// FeedEvent is one frame on the presentation event feed.
type FeedEvent struct {
	Type          string    `json:"type"`
	UserID        string    `json:"user_id,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	AppliedCount  int       `json:"applied_count,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Hub fans save events out to connected presentation clients. Delivery
// is best-effort: a client that cannot keep up is dropped.
type Hub struct {
	logger   *events.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]chan FeedEvent
}

// NewHub creates an empty hub.
func NewHub(logger *events.Logger) *Hub {
	return &Hub{
		logger: logger.WithField("component", "event_hub"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]chan FeedEvent),
	}
}

// Broadcast queues an event for every connected client.
func (h *Hub) Broadcast(event FeedEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn, send := range h.clients {
		select {
		case send <- event:
		default:
			h.logger.Warn("Dropping slow event feed client")
			close(send)
			delete(h.clients, conn)
			_ = conn.Close()
		}
	}
}

func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	send := make(chan FeedEvent, 32)
	h.mu.Lock()
	h.clients[conn] = send
	h.mu.Unlock()

	h.logger.WithField("remote", conn.RemoteAddr().String()).Debug("Event feed client connected")

	go h.writeLoop(conn, send)
	h.readLoop(conn)
}

// writeLoop pushes events until the send channel closes.
func (h *Hub) writeLoop(conn *websocket.Conn, send <-chan FeedEvent) {
	for event := range send {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(event); err != nil {
			h.drop(conn)
			return
		}
	}
}

// readLoop exists to notice disconnects; clients never send frames.
func (h *Hub) readLoop(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.drop(conn)
			return
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	if send, ok := h.clients[conn]; ok {
		close(send)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
	_ = conn.Close()
}
