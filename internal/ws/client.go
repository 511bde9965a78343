package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"github.com/coder/websocket"
)

// Client is a single live connection handle. It is tagged with exactly one
// verified user identity for its whole lifetime; a user may own any number
// of clients at once.
type Client struct {
	id     string
	userID string
	conn   *websocket.Conn

	// send is a buffered channel of outbound event frames.
	send chan []byte

	bridge *Bridge
}

// ID returns the connection id. It satisfies presence.Conn.
func (c *Client) ID() string { return c.id }

// UserID returns the identity the connection was registered under.
func (c *Client) UserID() string { return c.userID }

// Push queues an event frame for delivery. If the client's buffer is full the
// frame is dropped rather than blocking the dispatcher; a lagging client is
// expected to refetch state after it catches up or reconnects.
func (c *Client) Push(frame []byte) {
	select {
	case c.send <- frame:
	default:
		slog.Warn("Client send channel full, dropping event", "connID", c.id, "userID", c.userID)
	}
}

// readPump pumps inbound frames from the connection until it closes, then
// hands the client to the bridge for deregistration. The transport reporting
// closure is the only signal that a connection is dead.
func (c *Client) readPump() {
	defer func() {
		c.bridge.enqueueDeregister(c)
		c.conn.Close(websocket.StatusNormalClosure, "Client disconnected")
	}()

	for {
		_, frame, err := c.conn.Read(context.Background())
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || websocket.CloseStatus(err) == websocket.StatusGoingAway {
				slog.Info("WebSocket closed normally by client", "connID", c.id, "userID", c.userID)
			} else if err != io.EOF {
				slog.Error("WebSocket read error", "connID", c.id, "userID", c.userID, "error", err)
			}
			return
		}

		var typing TypingFrame
		if err := json.Unmarshal(frame, &typing); err != nil || typing.Type != EventTyping {
			slog.Debug("Ignoring unrecognized inbound frame", "connID", c.id)
			continue
		}
		c.bridge.relayTyping(c, typing)
	}
}

// writePump pumps frames from the send channel to the connection. It exits
// when the bridge closes the channel during deregistration.
func (c *Client) writePump() {
	defer func() {
		c.conn.Close(websocket.StatusNormalClosure, "Server-side cleanup")
	}()

	for frame := range c.send {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.conn.Write(ctx, websocket.MessageText, frame)
		cancel()
		if err != nil {
			slog.Error("WebSocket write error", "connID", c.id, "userID", c.userID, "error", err)
			return
		}
	}
}
