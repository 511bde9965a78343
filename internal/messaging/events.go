package messaging

import "github.com/nfrund/pulse/internal/domain"

// Topics carrying message lifecycle events from the HTTP handlers to the
// websocket fan-out. All payloads are JSON-encoded event structs below.
const (
	TopicMessageCreated = "chat.message.created"
	TopicMessageReacted = "chat.message.reacted"
	TopicMessageDeleted = "chat.message.deleted"
)

// MessageCreatedEvent is published after a message has been persisted.
type MessageCreatedEvent struct {
	Message *domain.Message `json:"message"`
	// TempID is the client-generated correlation id, echoed verbatim so the
	// sender's other tabs can reconcile their optimistic entries exactly.
	TempID string `json:"tempId,omitempty"`
	// OriginConnID identifies the connection whose HTTP request created the
	// message. That connection already holds the confirmed response and is
	// excluded from the sender-side fan-out.
	OriginConnID string `json:"originConnId,omitempty"`
}

// MessageReactedEvent is published after a reaction toggle has been persisted.
// It carries the full authoritative reactions set, never a delta.
type MessageReactedEvent struct {
	MessageID  string            `json:"messageId"`
	SenderID   string            `json:"senderId"`
	ReceiverID string            `json:"receiverId"`
	Reactions  []domain.Reaction `json:"reactions"`
}

// MessageDeletedEvent is published after a soft delete. Message is the
// redacted shape; pre-deletion content must never travel in this event.
type MessageDeletedEvent struct {
	MessageID  string          `json:"messageId"`
	SenderID   string          `json:"senderId"`
	ReceiverID string          `json:"receiverId"`
	Message    *domain.Message `json:"message"`
}
