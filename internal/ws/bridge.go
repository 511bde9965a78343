package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/nfrund/pulse/internal/domain"
	"github.com/nfrund/pulse/internal/middleware"
	"github.com/nfrund/pulse/internal/presence"
	"github.com/nfrund/pulse/internal/pubsub"
)

// Bridge is the connection lifecycle manager. It upgrades authenticated HTTP
// requests to websocket connections, walks each connection through
// Connecting -> Identified -> Closed, and is the only component that mutates
// the presence registry.
//
// Identification happens before the upgrade completes: the session cookie is
// resolved to a user by the auth middleware, so the bridge never accepts a
// client-claimed identity from a query parameter.
type Bridge struct {
	registry  *presence.Registry
	publisher pubsub.Publisher

	register   chan *Client
	unregister chan *Client
	stop       chan struct{}
}

// NewBridge creates a bridge that registers connections into the given
// registry and publishes inbound socket frames to the bus.
func NewBridge(registry *presence.Registry, publisher pubsub.Publisher) *Bridge {
	return &Bridge{
		registry:   registry,
		publisher:  publisher,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
	}
}

// Run starts the lifecycle loop. It must run in its own goroutine. Register
// and deregister are serialized here, so a presence broadcast always reflects
// a consistent registry snapshot.
func (b *Bridge) Run() {
	slog.Info("WebSocket bridge runner started")
	for {
		select {
		case client := <-b.register:
			b.registry.Register(client.userID, client)
			slog.Info("Client identified", "connID", client.id, "userID", client.userID)

			if frame, err := Marshal(EventConnectionReady, ConnectionReadyPayload{ConnectionID: client.id}); err == nil {
				client.Push(frame)
			}
			b.broadcastPresence()

		case client := <-b.unregister:
			b.registry.Deregister(client)
			close(client.send)
			slog.Info("Client closed", "connID", client.id, "userID", client.userID)
			b.broadcastPresence()

		case <-b.stop:
			return
		}
	}
}

// Shutdown stops the lifecycle loop. Open connections are torn down by the
// HTTP server closing underneath them.
func (b *Bridge) Shutdown() {
	close(b.stop)
}

// enqueueRegister hands a client to the lifecycle loop. It reports false
// when the bridge has shut down, so a late upgrade does not block on a loop
// that is no longer draining the channel.
func (b *Bridge) enqueueRegister(client *Client) bool {
	select {
	case b.register <- client:
		return true
	case <-b.stop:
		return false
	}
}

// enqueueDeregister hands a closing client to the lifecycle loop. After
// shutdown the loop is gone, so the send channel is closed here instead to
// release the client's write pump.
func (b *Bridge) enqueueDeregister(client *Client) {
	select {
	case b.unregister <- client:
	case <-b.stop:
		close(client.send)
	}
}

// Handler returns the echo handler for the websocket endpoint. It requires
// the auth middleware to have resolved the session to a user already.
func (b *Bridge) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		user, ok := c.Get(middleware.UserContextKey).(*domain.User)
		if !ok || user == nil {
			slog.Error("WebSocket upgrade without authenticated user")
			return c.String(http.StatusUnauthorized, "User not authenticated")
		}

		conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
			InsecureSkipVerify: true, // In production, check origin.
		})
		if err != nil {
			slog.Error("Failed to upgrade connection to WebSocket", "error", err)
			return err
		}

		client := &Client{
			id:     uuid.NewString(),
			userID: user.ID,
			conn:   conn,
			send:   make(chan []byte, 256),
			bridge: b,
		}

		go client.writePump()
		go client.readPump()

		if !b.enqueueRegister(client) {
			conn.Close(websocket.StatusGoingAway, "Server shutting down")
		}
		return nil
	}
}

// broadcastPresence pushes the current online-user snapshot to every live
// connection, including the one that just changed state.
func (b *Bridge) broadcastPresence() {
	online := b.registry.OnlineUserIDs()
	frame, err := Marshal(EventPresenceChanged, PresenceChangedPayload{UserIDs: online})
	if err != nil {
		slog.Error("Failed to marshal presence event", "error", err)
		return
	}

	for _, userID := range online {
		for _, conn := range b.registry.ConnectionsFor(userID) {
			if client, ok := conn.(*Client); ok {
				client.Push(frame)
			}
		}
	}
}

// relayTyping forwards a typing frame to the bus. The sender identity comes
// from the connection's verified user, never from the frame itself.
func (b *Bridge) relayTyping(c *Client, frame TypingFrame) {
	payload, err := json.Marshal(struct {
		SenderID   string `json:"senderId"`
		ReceiverID string `json:"receiverId"`
		IsTyping   bool   `json:"isTyping"`
	}{
		SenderID:   c.userID,
		ReceiverID: frame.ReceiverID,
		IsTyping:   frame.IsTyping,
	})
	if err != nil {
		return
	}

	msg := pubsub.Message{
		Topic:   TopicTyping,
		UserID:  c.userID,
		Payload: payload,
	}
	if err := b.publisher.Publish(context.Background(), msg); err != nil {
		slog.Error("Failed to publish typing event", "userID", c.userID, "error", err)
	}
}
