package ws

import (
	"encoding/json"

	"github.com/nfrund/pulse/internal/domain"
)

// Server-to-client event types carried on the real-time channel.
const (
	EventConnectionReady = "connection_ready"
	EventPresenceChanged = "presence_changed"
	EventMessageCreated  = "message_created"
	EventMessageReacted  = "message_reacted"
	EventMessageDeleted  = "message_deleted"
	EventTyping          = "typing"
)

// TopicTyping carries typing indicator frames from the bridge to the router.
// Typing state is ephemeral and never persisted.
const TopicTyping = "chat.typing"

// Envelope is the wire format for every event pushed over the socket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ConnectionReadyPayload tells a freshly identified client which connection
// id the server assigned it. The client sends the id back on HTTP requests so
// the fan-out can skip the originating connection.
type ConnectionReadyPayload struct {
	ConnectionID string `json:"connectionId"`
}

// PresenceChangedPayload is broadcast to every live connection whenever a
// user comes online or goes offline.
type PresenceChangedPayload struct {
	UserIDs []string `json:"userIds"`
}

// MessageCreatedPayload delivers a freshly persisted message, with the
// sender's correlation id echoed for optimistic reconciliation.
type MessageCreatedPayload struct {
	Message *domain.Message `json:"message"`
	TempID  string          `json:"tempId,omitempty"`
}

// MessageReactedPayload carries the authoritative reactions set of a message.
type MessageReactedPayload struct {
	MessageID string            `json:"messageId"`
	Reactions []domain.Reaction `json:"reactions"`
}

// MessageDeletedPayload carries the redacted shape of a deleted message.
type MessageDeletedPayload struct {
	MessageID string          `json:"messageId"`
	Message   *domain.Message `json:"message"`
}

// TypingPayload relays a typing indicator to the receiving party.
type TypingPayload struct {
	SenderID string `json:"senderId"`
	IsTyping bool   `json:"isTyping"`
}

// TypingFrame is the only client-to-server frame the socket accepts.
type TypingFrame struct {
	Type       string `json:"type"`
	ReceiverID string `json:"receiverId"`
	IsTyping   bool   `json:"isTyping"`
}

// Marshal wraps a payload in the event envelope.
func Marshal(eventType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: eventType, Payload: raw})
}
