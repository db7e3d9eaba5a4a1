// Package monitor is a read-only fan-out of PhysicsState/RegimeState
// updates to connected websocket clients. It never mutates the pipeline;
// the Sampler hands it retired and evicted records purely for display.
// Grounded on the teacher's internal/session package: two-level locking
// (hub-level RWMutex for registration, per-client buffered channel for
// delivery), lazy encode-once-broadcast-many, drop-on-backpressure.
package monitor

import (
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// Hub tracks connected monitor clients and fans out encoded updates.
type Hub struct {
	mu      sync.RWMutex
	clients map[uint64]*Client

	bufferSize int
}

// NewHub creates an empty Hub. bufferSize sets each client's outbound
// channel capacity.
func NewHub(bufferSize int) *Hub {
	return &Hub{
		clients:    make(map[uint64]*Client),
		bufferSize: bufferSize,
	}
}

// Register wraps conn in a Client and tracks it.
func (h *Hub) Register(conn *websocket.Conn) *Client {
	c := NewClient(conn, h.bufferSize)

	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()

	log.Printf("monitor: client %d connected (%s)", c.ID, conn.RemoteAddr())
	return c
}

// Unregister drops a client and closes its connection.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.ID)
	h.mu.Unlock()

	c.Close()
	log.Printf("monitor: client %d disconnected", c.ID)
}

// Broadcast sends each update to every client subscribed to its symbol.
// Each update is JSON-encoded at most once regardless of how many
// clients receive it.
func (h *Hub) Broadcast(updates []TickUpdate) {
	if len(updates) == 0 {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.clients) == 0 {
		return
	}

	for _, u := range updates {
		data, err := encodeTickUpdate(u)
		if err != nil {
			log.Printf("monitor: encode update for %s: %v", u.Symbol, err)
			continue
		}

		for _, c := range h.clients {
			if !c.IsSubscribed(u.Symbol) {
				continue
			}
			c.Send(data)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
