// Package messaging implements the message lifecycle: sending, listing,
// reacting and soft deletion. Each successful mutation is persisted first and
// then published to the bus, where the websocket fan-out picks it up.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nfrund/pulse/internal/domain"
	"github.com/nfrund/pulse/internal/middleware"
	"github.com/nfrund/pulse/internal/pubsub"
)

// casRetries bounds how often a reaction or delete is re-applied after losing
// the version check to a concurrent writer.
const casRetries = 3

// Service coordinates the persistence, media and pub/sub collaborators.
type Service struct {
	messages  domain.MessageRepository
	users     domain.UserRepository
	media     domain.MediaUploader
	publisher pubsub.Publisher
}

// NewService wires a messaging service from its collaborators.
func NewService(messages domain.MessageRepository, users domain.UserRepository, media domain.MediaUploader, publisher pubsub.Publisher) *Service {
	return &Service{
		messages:  messages,
		users:     users,
		media:     media,
		publisher: publisher,
	}
}

// log resolves the request-scoped logger injected by the HTTP middleware.
func (s *Service) log(ctx context.Context) *slog.Logger {
	return middleware.FromContext(ctx).With("service", "messaging")
}

// SendInput is everything a send operation may carry. At most one of Image,
// Video, StickerURL and GifURL may be set; Text may accompany any of them.
type SendInput struct {
	SenderID   string
	ReceiverID string
	Text       string
	StickerURL string
	GifURL     string

	// Image and Video hold raw upload bytes; they are pushed to the media
	// host before the message is persisted.
	Image []byte
	Video []byte

	// TempID is the client-generated correlation id, echoed in the response
	// and the broadcast so optimistic entries reconcile exactly.
	TempID string
	// OriginConnID is the sender connection that issued the request; its
	// broadcast is suppressed because it gets the HTTP response instead.
	OriginConnID string
}

func (in *SendInput) mediaKinds() int {
	n := 0
	if len(in.Image) > 0 {
		n++
	}
	if len(in.Video) > 0 {
		n++
	}
	if in.StickerURL != "" {
		n++
	}
	if in.GifURL != "" {
		n++
	}
	return n
}

// Send persists a new message and announces it on the bus. A media upload
// failure aborts the whole operation; no partially created message remains.
func (s *Service) Send(ctx context.Context, in SendInput) (*domain.Message, error) {
	if in.Text == "" && in.mediaKinds() == 0 {
		return nil, domain.ErrEmptyMessage
	}
	if in.mediaKinds() > 1 {
		return nil, fmt.Errorf("%w: at most one media kind per message", domain.ErrEmptyMessage)
	}

	receiver, err := s.users.FindByID(ctx, in.ReceiverID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve receiver: %w", err)
	}
	if receiver == nil {
		return nil, fmt.Errorf("%w: unknown receiver", domain.ErrNotFound)
	}

	msg := &domain.Message{
		SenderID:   in.SenderID,
		ReceiverID: in.ReceiverID,
		Text:       in.Text,
		StickerURL: in.StickerURL,
		GifURL:     in.GifURL,
		Reactions:  []domain.Reaction{},
	}

	if len(in.Image) > 0 {
		url, err := s.media.Upload(ctx, in.Image, domain.MediaImage)
		if err != nil {
			return nil, fmt.Errorf("image upload failed: %w", err)
		}
		msg.ImageURL = url
	}
	if len(in.Video) > 0 {
		url, err := s.media.Upload(ctx, in.Video, domain.MediaVideo)
		if err != nil {
			return nil, fmt.Errorf("video upload failed: %w", err)
		}
		msg.VideoURL = url
	}

	created, err := s.messages.Create(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	s.publish(ctx, TopicMessageCreated, created.SenderID, MessageCreatedEvent{
		Message:      created,
		TempID:       in.TempID,
		OriginConnID: in.OriginConnID,
	})
	return created, nil
}

// React toggles the caller's reaction on a message: same emoji removes it, a
// different emoji replaces it, none adds it. A user holds at most one
// reaction per message. Concurrent toggles are serialized by the version
// check on the store; a lost race is retried against fresh state.
func (s *Service) React(ctx context.Context, userID, messageID, emoji string) (*domain.Message, error) {
	var updated *domain.Message

	for attempt := 0; ; attempt++ {
		msg, err := s.messages.GetByID(ctx, messageID)
		if err != nil {
			return nil, err
		}
		if msg == nil {
			return nil, domain.ErrNotFound
		}
		if !msg.IsParticipant(userID) {
			return nil, domain.ErrForbidden
		}

		reactions := toggleReaction(msg.Reactions, userID, emoji)

		updated, err = s.messages.UpdateReactions(ctx, messageID, reactions, msg.Version)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrStaleVersion) || attempt >= casRetries {
			return nil, err
		}
		s.log(ctx).Debug("Reaction update lost version race, retrying", "messageID", messageID, "attempt", attempt+1)
	}

	s.publish(ctx, TopicMessageReacted, userID, MessageReactedEvent{
		MessageID:  updated.ID,
		SenderID:   updated.SenderID,
		ReceiverID: updated.ReceiverID,
		Reactions:  updated.Reactions,
	})
	return updated, nil
}

// toggleReaction returns a new reactions set with the user's reaction
// applied, replaced or removed.
func toggleReaction(reactions []domain.Reaction, userID, emoji string) []domain.Reaction {
	out := make([]domain.Reaction, 0, len(reactions)+1)
	seen := false
	for _, r := range reactions {
		if r.UserID != userID {
			out = append(out, r)
			continue
		}
		seen = true
		if r.Emoji != emoji {
			out = append(out, domain.Reaction{UserID: userID, Emoji: emoji})
		}
		// Same emoji: drop it (toggle off).
	}
	if !seen {
		out = append(out, domain.Reaction{UserID: userID, Emoji: emoji})
	}
	return out
}

// Delete soft-deletes a message. Only the sender may delete. The operation is
// idempotent: an unknown id and an already-deleted message both return the
// redacted shape without error and without emitting a second event.
func (s *Service) Delete(ctx context.Context, userID, messageID string) (*domain.Message, error) {
	var deleted *domain.Message

	for attempt := 0; ; attempt++ {
		msg, err := s.messages.GetByID(ctx, messageID)
		if err != nil {
			return nil, err
		}
		if msg == nil {
			// Already gone; answer with the redacted shape.
			gone := &domain.Message{ID: messageID}
			gone.Redact()
			return gone, nil
		}
		if msg.SenderID != userID {
			return nil, domain.ErrForbidden
		}
		if msg.Deleted {
			return msg, nil
		}

		deleted, err = s.messages.MarkDeleted(ctx, messageID, msg.Version)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrStaleVersion) || attempt >= casRetries {
			return nil, err
		}
		s.log(ctx).Debug("Delete lost version race, retrying", "messageID", messageID, "attempt", attempt+1)
	}

	s.publish(ctx, TopicMessageDeleted, userID, MessageDeletedEvent{
		MessageID:  deleted.ID,
		SenderID:   deleted.SenderID,
		ReceiverID: deleted.ReceiverID,
		Message:    deleted,
	})
	return deleted, nil
}

// List returns the conversation between the caller and a peer, oldest first.
func (s *Service) List(ctx context.Context, userID, peerID string) ([]*domain.Message, error) {
	return s.messages.ListBetween(ctx, userID, peerID)
}

// ListUsers returns every user except the caller, for the sidebar.
func (s *Service) ListUsers(ctx context.Context, userID string) ([]domain.UserSummary, error) {
	return s.users.ListExcept(ctx, userID)
}

// publish serializes and publishes an event, logging instead of failing the
// request: the mutation is already durable, and clients that miss the event
// recover on their next fetch.
func (s *Service) publish(ctx context.Context, topic, userID string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.log(ctx).Error("Failed to marshal event", "topic", topic, "error", err)
		return
	}
	msg := pubsub.Message{
		Topic:   topic,
		UserID:  userID,
		Payload: payload,
	}
	if err := s.publisher.Publish(ctx, msg); err != nil {
		s.log(ctx).Error("Failed to publish event", "topic", topic, "error", err)
	}
}
