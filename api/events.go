package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/warp/kudobank/kudos"
)

const (
	subscriberBuffer = 16
	writeWait        = 10 * time.Second
)

// Hub fans kudo events out to websocket subscribers. It implements
// kudos.Observer; slow subscribers miss events rather than block a credit.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[chan []byte]struct{}),
	}
}

func (h *Hub) register() chan []byte {
	client := make(chan []byte, subscriberBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = struct{}{}
	return client
}

func (h *Hub) unregister(client chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client)
	}
}

// Subscribers returns the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client <- data:
		default:
			// Client is slow/blocked, skip
		}
	}
}

// KudoGiven implements kudos.Observer.
func (h *Hub) KudoGiven(_ context.Context, e kudos.Event) {
	data, err := json.Marshal(eventDTO(e))
	if err != nil {
		log.Printf("Warning: failed to encode kudo event: %v", err)
		return
	}
	h.broadcast(data)
}

// ServeEvents returns the /api/events handler. Browser handshakes must
// carry an Origin in allowedOrigins ("*" allows any); requests without an
// Origin header are not from a browser and are accepted.
func (h *Hub) ServeEvents(allowedOrigins []string) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(r.Header.Get("Origin"), allowedOrigins)
		},
	}
	return func(w http.ResponseWriter, r *http.Request) {
		h.serve(w, r, &upgrader)
	}
}

func originAllowed(origin string, allowed []string) bool {
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

// serve upgrades the connection and streams events until the client goes
// away.
func (h *Hub) serve(w http.ResponseWriter, r *http.Request, upgrader *websocket.Upgrader) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	client := h.register()
	defer h.unregister(client)

	// Reads only detect the close; subscribers never send anything.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			return
		case data, ok := <-client:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}
