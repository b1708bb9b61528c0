package wsmodule

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"

	"github.com/curatarr/curatarr/internal/events"
	"github.com/curatarr/curatarr/internal/logger"
	"github.com/curatarr/curatarr/internal/modules/modulemanager"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The API is same-host or reverse-proxied; origin policy belongs to the
	// proxy layer.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Module bridges the in-process event bus onto WebSocket clients.
type Module struct {
	hub       *Hub
	bus       events.EventBus
	mutations MutationHandler

	subscription *events.Subscription
}

// NewModule creates the broadcaster module.
func NewModule(bus events.EventBus) *Module {
	return &Module{hub: NewHub(), bus: bus}
}

// Register adds the module to the global registry.
func Register(bus events.EventBus) *Module {
	m := NewModule(bus)
	modulemanager.Register(m)
	return m
}

func (m *Module) ID() string   { return "system.websocket" }
func (m *Module) Name() string { return "WebSocket Broadcaster" }
func (m *Module) Core() bool   { return true }

func (m *Module) Migrate(db *gorm.DB) error { return nil }

func (m *Module) Init() error { return nil }

// Hub returns the client hub.
func (m *Module) Hub() *Hub { return m.hub }

// SetMutationHandler installs the handler for the idempotent client-side
// mutation messages. The server wires this after its REST services exist.
func (m *Module) SetMutationHandler(fn MutationHandler) {
	m.mutations = fn
}

// Start subscribes the hub to every bus event. Events are published after the
// DB commit that caused them, so a client re-reading on receipt always sees
// the new state.
func (m *Module) Start() error {
	sub, err := m.bus.Subscribe(events.EventFilter{}, func(event events.Event) error {
		m.hub.BroadcastEvent(event)
		return nil
	})
	if err != nil {
		return err
	}
	m.subscription = sub
	return nil
}

// Stop unsubscribes and disconnects all clients.
func (m *Module) Stop() {
	if m.subscription != nil {
		_ = m.bus.Unsubscribe(m.subscription.ID)
		m.subscription = nil
	}
	m.hub.CloseAll()
}

// RegisterRoutes exposes the /ws endpoint.
func (m *Module) RegisterRoutes(router *gin.Engine) {
	router.GET("/ws", m.handleConnection)
}

func (m *Module) handleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed: %v", err)
		return
	}

	client := newClient(m.hub, conn, m.dispatchClientMessage)
	go client.run()
}

// dispatchClientMessage handles resync requests locally and forwards the
// mutation set to the installed handler.
func (m *Module) dispatchClientMessage(clientID string, msg Message) error {
	if msg.Type == "resync" {
		scope, _ := msg.Data["scope"].(string)
		m.hub.Broadcast(Message{
			Type: msgResync,
			Data: map[string]interface{}{"scope": scope},
		})
		return nil
	}
	if m.mutations == nil {
		return errUnsupported(msg.Type)
	}
	return m.mutations(clientID, msg)
}

type unsupportedError struct{ msgType string }

func (e unsupportedError) Error() string { return "unsupported message type: " + e.msgType }

func errUnsupported(msgType string) error { return unsupportedError{msgType: msgType} }
