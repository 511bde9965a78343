package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nfrund/pulse/internal/domain"
	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/models"
)

// MessageStore implements domain.MessageRepository on SurrealDB.
type MessageStore struct {
	db *surrealdb.DB
}

// NewMessageStore creates a new MessageStore.
func NewMessageStore(db *surrealdb.DB) *MessageStore {
	return &MessageStore{db: db}
}

// normalizeMessageID makes sure the id carries the message table prefix.
// Queries address records through type::thing, which takes the full
// "table:identifier" form.
func normalizeMessageID(id string) string {
	if !strings.HasPrefix(id, "message:") {
		return "message:" + id
	}
	return id
}

// Create persists a new message and returns the authoritative record,
// including the server-assigned id, timestamp and initial version.
func (s *MessageStore) Create(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	query := `
		CREATE message CONTENT {
			senderId: $sender,
			receiverId: $receiver,
			text: $text,
			image: $image,
			video: $video,
			sticker: $sticker,
			gif: $gif,
			deleted: false,
			reactions: [],
			version: 0,
			createdAt: $created_at
		} RETURN AFTER
	`
	params := map[string]any{
		"sender":     msg.SenderID,
		"receiver":   msg.ReceiverID,
		"text":       msg.Text,
		"image":      msg.ImageURL,
		"video":      msg.VideoURL,
		"sticker":    msg.StickerURL,
		"gif":        msg.GifURL,
		"created_at": models.CustomDateTime{Time: time.Now().UTC()},
	}

	created, err := QueryOne[messageRecord](ctx, s.db, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	if created == nil {
		return nil, fmt.Errorf("message was not created")
	}
	return created.toDomain(), nil
}

// GetByID fetches a single message, or nil when it does not exist.
func (s *MessageStore) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	query := `SELECT * FROM type::thing($id)`
	params := map[string]any{"id": normalizeMessageID(id)}

	msg, err := QueryOne[messageRecord](ctx, s.db, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to query message: %w", err)
	}
	if msg == nil {
		return nil, nil
	}
	return msg.toDomain(), nil
}

// ListBetween returns every message exchanged between the two users, oldest
// first.
func (s *MessageStore) ListBetween(ctx context.Context, userA, userB string) ([]*domain.Message, error) {
	query := `
		SELECT * FROM message
		WHERE (senderId = $a AND receiverId = $b)
		   OR (senderId = $b AND receiverId = $a)
		ORDER BY createdAt ASC
	`
	params := map[string]any{"a": userA, "b": userB}

	result, err := Query[messageRecord](ctx, s.db, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	messages := make([]*domain.Message, len(result))
	for i := range result {
		messages[i] = result[i].toDomain()
	}
	return messages, nil
}

// UpdateReactions replaces the reactions set if and only if the stored
// version still matches. A lost race yields domain.ErrStaleVersion so the
// caller can re-read and re-apply its toggle.
func (s *MessageStore) UpdateReactions(ctx context.Context, id string, reactions []domain.Reaction, version int64) (*domain.Message, error) {
	query := `
		UPDATE type::thing($id) SET
			reactions = $reactions,
			version = version + 1
		WHERE version = $version
		RETURN AFTER
	`
	params := map[string]any{
		"id":        normalizeMessageID(id),
		"reactions": reactions,
		"version":   version,
	}

	updated, err := QueryOne[messageRecord](ctx, s.db, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to update reactions: %w", err)
	}
	if updated == nil {
		return nil, s.staleOrMissing(ctx, id)
	}
	return updated.toDomain(), nil
}

// MarkDeleted redacts the message in place, guarded by the version check.
// Content fields are cleared in the database itself so no later read can
// resurrect them.
func (s *MessageStore) MarkDeleted(ctx context.Context, id string, version int64) (*domain.Message, error) {
	query := `
		UPDATE type::thing($id) SET
			text = NONE,
			image = NONE,
			video = NONE,
			sticker = NONE,
			gif = NONE,
			reactions = [],
			deleted = true,
			version = version + 1
		WHERE version = $version
		RETURN AFTER
	`
	params := map[string]any{
		"id":      normalizeMessageID(id),
		"version": version,
	}

	deleted, err := QueryOne[messageRecord](ctx, s.db, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to mark message deleted: %w", err)
	}
	if deleted == nil {
		return nil, s.staleOrMissing(ctx, id)
	}
	return deleted.toDomain(), nil
}

// staleOrMissing disambiguates an empty UPDATE result: the record either
// moved past the expected version or never existed.
func (s *MessageStore) staleOrMissing(ctx context.Context, id string) error {
	current, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return domain.ErrNotFound
	}
	return domain.ErrStaleVersion
}
