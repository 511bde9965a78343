package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nfrund/pulse/internal/messaging"
	"github.com/nfrund/pulse/internal/presence"
	"github.com/nfrund/pulse/internal/pubsub"
)

// Router is the event fan-out router: it consumes message lifecycle events
// from the bus, resolves the live connections of each logical recipient
// through the presence registry, and pushes the wire envelope to every
// matching connection.
//
// Dispatch per topic is single-goroutine, so deliveries to one recipient
// preserve the order the events were published in. No ordering is guaranteed
// across topics.
type Router struct {
	registry *presence.Registry
}

// NewRouter creates a router reading from the given registry.
func NewRouter(registry *presence.Registry) *Router {
	return &Router{registry: registry}
}

// Deliver pushes an event frame to every live connection of the recipient,
// except excludeConnID when non-empty. An offline recipient is not an error;
// the event is simply not delivered.
func (r *Router) Deliver(recipientUserID string, frame []byte, excludeConnID string) {
	for _, conn := range r.registry.ConnectionsFor(recipientUserID) {
		if excludeConnID != "" && conn.ID() == excludeConnID {
			continue
		}
		if client, ok := conn.(*Client); ok {
			client.Push(frame)
		}
	}
}

// Attach subscribes the router to every message lifecycle topic. It returns
// once the subscriptions are active; dispatch happens on the subscriber's
// goroutines until ctx is canceled.
func (r *Router) Attach(ctx context.Context, subscriber pubsub.Subscriber) error {
	subscriptions := map[string]pubsub.Handler{
		messaging.TopicMessageCreated: r.handleMessageCreated,
		messaging.TopicMessageReacted: r.handleMessageReacted,
		messaging.TopicMessageDeleted: r.handleMessageDeleted,
		TopicTyping:                   r.handleTyping,
	}

	for topic, handler := range subscriptions {
		if err := subscriber.Subscribe(ctx, topic, handler); err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}
	return nil
}

// handleMessageCreated fans a new message out to the receiver's connections
// and to the sender's other connections. The originating connection already
// holds the confirmed HTTP response and is skipped.
func (r *Router) handleMessageCreated(ctx context.Context, msg pubsub.Message) error {
	var event messaging.MessageCreatedEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return fmt.Errorf("unmarshal message created event: %w", err)
	}

	frame, err := Marshal(EventMessageCreated, MessageCreatedPayload{
		Message: event.Message,
		TempID:  event.TempID,
	})
	if err != nil {
		return err
	}

	r.Deliver(event.Message.ReceiverID, frame, "")
	r.Deliver(event.Message.SenderID, frame, event.OriginConnID)
	return nil
}

// handleMessageReacted fans the authoritative reactions set out to both
// participants. Nobody is excluded: reactions can be placed by either party
// and both sides must see every one, including their own.
func (r *Router) handleMessageReacted(ctx context.Context, msg pubsub.Message) error {
	var event messaging.MessageReactedEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return fmt.Errorf("unmarshal message reacted event: %w", err)
	}

	frame, err := Marshal(EventMessageReacted, MessageReactedPayload{
		MessageID: event.MessageID,
		Reactions: event.Reactions,
	})
	if err != nil {
		return err
	}

	r.Deliver(event.SenderID, frame, "")
	r.Deliver(event.ReceiverID, frame, "")
	return nil
}

// handleMessageDeleted fans the redacted shape out to both participants. The
// event never carries pre-deletion content, so a client that missed earlier
// state cannot reconstruct what was deleted.
func (r *Router) handleMessageDeleted(ctx context.Context, msg pubsub.Message) error {
	var event messaging.MessageDeletedEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return fmt.Errorf("unmarshal message deleted event: %w", err)
	}

	frame, err := Marshal(EventMessageDeleted, MessageDeletedPayload{
		MessageID: event.MessageID,
		Message:   event.Message,
	})
	if err != nil {
		return err
	}

	r.Deliver(event.SenderID, frame, "")
	r.Deliver(event.ReceiverID, frame, "")
	return nil
}

// handleTyping relays a typing indicator to the receiver only.
func (r *Router) handleTyping(ctx context.Context, msg pubsub.Message) error {
	var event struct {
		SenderID   string `json:"senderId"`
		ReceiverID string `json:"receiverId"`
		IsTyping   bool   `json:"isTyping"`
	}
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		slog.Debug("Dropping malformed typing event", "error", err)
		return nil
	}

	frame, err := Marshal(EventTyping, TypingPayload{
		SenderID: event.SenderID,
		IsTyping: event.IsTyping,
	})
	if err != nil {
		return err
	}

	r.Deliver(event.ReceiverID, frame, "")
	return nil
}
