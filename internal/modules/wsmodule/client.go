package wsmodule

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/curatarr/curatarr/internal/logger"
)

const (
	// writeWait bounds a single socket write.
	writeWait = 10 * time.Second
	// pongWait is the heartbeat window: a client that neither pings nor
	// answers our pings within it is considered gone.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// sendBufferSize is the per-client outbound queue.
	sendBufferSize = 64

	maxMessageSize = 64 * 1024
)

// MutationHandler executes one of the narrow idempotent client mutations that
// mirror the REST surface. It returns an error with a kind the dispatcher
// maps to ack/conflict/error frames.
type MutationHandler func(clientID string, msg Message) error

// Client is one connected WebSocket session.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn

	send     chan []byte
	closed   chan struct{}
	onClient MutationHandler
}

func newClient(hub *Hub, conn *websocket.Conn, onClient MutationHandler) *Client {
	return &Client{
		id:       uuid.NewString(),
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		closed:   make(chan struct{}),
		onClient: onClient,
	}
}

// run registers the client, sends the hello frame and starts both pumps.
// It returns when the connection is gone.
func (c *Client) run() {
	c.hub.add(c)
	defer c.hub.remove(c)

	c.sendMessage(Message{
		Type: msgWelcome,
		Data: map[string]interface{}{"client_id": c.id},
	})

	go c.writePump()
	c.readPump()
}

// trySend queues a frame without blocking. Returns false when the buffer is
// full or the client is closed.
func (c *Client) trySend(data []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) sendMessage(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *Client) close() {
	select {
	case <-c.closed:
		return
	default:
		close(c.closed)
	}
	_ = c.conn.Close()
}

// readPump consumes client frames: ping, resync requests, and the mutation
// set. It enforces the heartbeat read deadline.
func (c *Client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("WebSocket read error", "client_id", c.id, "error", err.Error())
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendMessage(Message{Type: msgError, Data: map[string]interface{}{"error": "invalid message"}})
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg Message) {
	switch msg.Type {
	case "ping":
		c.sendMessage(Message{Type: msgPong})
	default:
		if c.onClient == nil {
			c.sendMessage(Message{Type: msgError, Data: map[string]interface{}{
				"error": "unsupported message type", "request": msg.Type,
			}})
			return
		}
		if err := c.onClient(c.id, msg); err != nil {
			c.sendMessage(Message{Type: msgConflict, Data: map[string]interface{}{
				"request": msg.Type, "error": err.Error(),
			}})
			return
		}
		c.sendMessage(Message{Type: msgAck, Data: map[string]interface{}{"request": msg.Type}})
	}
}

// writePump drains the send channel onto the socket and keeps the heartbeat
// pings flowing.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.closed:
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
