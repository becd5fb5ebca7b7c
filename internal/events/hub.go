package events

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/ziadkadry99/lifeos-notify/internal/logger"
)

const (
	writeWait  = 5 * time.Second
	clientSend = 32
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type client struct {
	userID string
	send   chan Event
}

// Hub broadcasts events to connected websocket clients. A client may
// restrict itself to one user with ?user_id=.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	log     *logger.Logger
}

func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{clients: make(map[*client]struct{}), log: log}
}

// Publish queues e for every matching client. Slow clients drop events
// rather than block the publisher.
func (h *Hub) Publish(_ context.Context, e Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.userID != "" && c.userID != e.UserID {
			continue
		}
		select {
		case c.send <- e:
		default:
			h.log.Warn("websocket client too slow, dropping event", "type", string(e.Type))
		}
	}
	return nil
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RegisterRoutes mounts the event stream at /api/events/ws.
func RegisterRoutes(r chi.Router, h *Hub) {
	r.Get("/api/events/ws", h.handleWebSocket)
}

func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err.Error())
		return
	}
	defer conn.Close()

	c := &client{userID: r.URL.Query().Get("user_id"), send: make(chan Event, clientSend)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
	}()

	// The reader only watches for the close frame.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.log.Debug("websocket read", "error", err.Error())
				}
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case e := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(e); err != nil {
				h.log.Debug("websocket write", "error", err.Error())
				return
			}
		}
	}
}
