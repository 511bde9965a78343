package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/nfrund/pulse/internal/ws"
)

// Socket is the client side of the real-time channel. It dials the server,
// learns its assigned connection id from the connection_ready event, and
// feeds every later event into the reconciliation store.
//
// Events emitted while disconnected are gone for good; after a reconnect the
// caller refetches the conversation and Resets the store.
type Socket struct {
	conn  *websocket.Conn
	store *Store

	mu     sync.Mutex
	connID string

	// OnTyping, when set, receives relayed typing indicators.
	OnTyping func(senderID string, isTyping bool)
}

// Dial connects to the server's websocket endpoint. The header must carry
// the session cookie; the server rejects unauthenticated upgrades.
func Dial(ctx context.Context, url string, header http.Header, store *Store) (*Socket, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return &Socket{conn: conn, store: store}, nil
}

// ConnectionID returns the server-assigned connection id, or "" before the
// connection_ready event arrived. Requests include it as X-Connection-ID so
// the fan-out can skip this connection's own echo.
func (s *Socket) ConnectionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connID
}

// SendTyping reports the local typing state to the peer.
func (s *Socket) SendTyping(receiverID string, isTyping bool) error {
	frame := ws.TypingFrame{
		Type:       ws.EventTyping,
		ReceiverID: receiverID,
		IsTyping:   isTyping,
	}
	return s.conn.WriteJSON(frame)
}

// Close tears the connection down.
func (s *Socket) Close() error {
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return s.conn.Close()
}

// Listen consumes events until the connection closes or ctx is canceled.
// It always returns a non-nil error; a clean peer close yields net.ErrClosed
// semantics from the underlying read.
func (s *Socket) Listen(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			return err
		}
		s.dispatch(frame)
	}
}

// dispatch routes one event frame into the store. Malformed frames are
// logged and dropped; the next full fetch repairs any resulting gap.
func (s *Socket) dispatch(frame []byte) {
	var env ws.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		slog.Debug("Dropping malformed event frame", "error", err)
		return
	}

	switch env.Type {
	case ws.EventConnectionReady:
		var p ws.ConnectionReadyPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		s.mu.Lock()
		s.connID = p.ConnectionID
		s.mu.Unlock()

	case ws.EventPresenceChanged:
		var p ws.PresenceChangedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		s.store.SetOnlineUsers(p.UserIDs)

	case ws.EventMessageCreated:
		var p ws.MessageCreatedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.Message == nil {
			return
		}
		s.store.ApplyCreated(p.Message, p.TempID)

	case ws.EventMessageReacted:
		var p ws.MessageReactedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		s.store.ApplyReacted(p.MessageID, p.Reactions)

	case ws.EventMessageDeleted:
		var p ws.MessageDeletedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.Message == nil {
			return
		}
		s.store.ApplyDeleted(p.MessageID, p.Message)

	case ws.EventTyping:
		var p ws.TypingPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		if s.OnTyping != nil {
			s.OnTyping(p.SenderID, p.IsTyping)
		}

	default:
		slog.Debug("Ignoring unknown event type", "type", env.Type)
	}
}
