// Package wsmodule implements the realtime WebSocket broadcaster. Every
// observable state change emitted on the event bus is fanned out to connected
// clients as a pure cache-invalidation message; clients re-read the REST
// surface on receipt.
package wsmodule

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/curatarr/curatarr/internal/events"
	"github.com/curatarr/curatarr/internal/logger"
)

// Message is one frame in either direction.
type Message struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp,omitempty"`
}

// Server -> client message types beyond the bus event names.
const (
	msgWelcome  = "welcome"
	msgPong     = "pong"
	msgAck      = "ack"
	msgConflict = "conflict"
	msgError    = "error"
	msgResync   = "resync:data"
)

// Hub tracks connected clients and fans broadcast messages out to them.
// The subscriber map is guarded by a RWMutex; the actual socket writes happen
// on each client's writer goroutine, so broadcast never blocks on a slow peer.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	logger.Debug("WebSocket client connected", "client_id", c.id, "total", h.Count())
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if existing, ok := h.clients[c.id]; ok && existing == c {
		delete(h.clients, c.id)
	}
	h.mu.Unlock()
	logger.Debug("WebSocket client disconnected", "client_id", c.id, "total", h.Count())
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends the message to every connected client, best effort. Clients
// whose send buffer is full are dropped: a peer that cannot keep up with
// invalidations must reconnect and resync.
func (h *Hub) Broadcast(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Warn("Failed to encode broadcast message: %v", err)
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.trySend(data) {
			logger.Warn("Dropping slow WebSocket client", "client_id", c.id)
			c.close()
		}
	}
}

// BroadcastEvent forwards a bus event to all clients with the event type as
// the message type.
func (h *Hub) BroadcastEvent(event events.Event) {
	h.Broadcast(Message{
		Type:      string(event.Type),
		Data:      event.Data,
		Timestamp: event.Timestamp,
	})
}

// CloseAll disconnects every client, used at shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]*Client)
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}
