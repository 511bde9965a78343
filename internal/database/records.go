package database

import (
	"github.com/nfrund/pulse/internal/domain"
	"github.com/surrealdb/surrealdb.go/pkg/models"
)

// The wire shapes of the rows this package reads and writes. SurrealDB
// transports record ids as CBOR RecordID values and datetimes as CBOR
// datetimes, never as plain strings, so the row types carry the SDK's
// models. Conversion to the string-id domain shapes happens here and
// nowhere else.

type messageRecord struct {
	ID         *models.RecordID       `json:"id,omitempty"`
	SenderID   string                 `json:"senderId"`
	ReceiverID string                 `json:"receiverId"`
	Text       string                 `json:"text,omitempty"`
	ImageURL   string                 `json:"image,omitempty"`
	VideoURL   string                 `json:"video,omitempty"`
	StickerURL string                 `json:"sticker,omitempty"`
	GifURL     string                 `json:"gif,omitempty"`
	Deleted    bool                   `json:"deleted"`
	Reactions  []domain.Reaction      `json:"reactions"`
	CreatedAt  *models.CustomDateTime `json:"createdAt,omitempty"`
	Version    int64                  `json:"version"`
}

func (r *messageRecord) toDomain() *domain.Message {
	msg := &domain.Message{
		SenderID:   r.SenderID,
		ReceiverID: r.ReceiverID,
		Text:       r.Text,
		ImageURL:   r.ImageURL,
		VideoURL:   r.VideoURL,
		StickerURL: r.StickerURL,
		GifURL:     r.GifURL,
		Deleted:    r.Deleted,
		Reactions:  r.Reactions,
		Version:    r.Version,
	}
	if r.ID != nil {
		msg.ID = r.ID.String()
	}
	if r.CreatedAt != nil {
		msg.CreatedAt = r.CreatedAt.Time
	}
	if msg.Reactions == nil {
		msg.Reactions = []domain.Reaction{}
	}
	return msg
}

type userRecord struct {
	ID        *models.RecordID `json:"id,omitempty"`
	Username  string           `json:"username"`
	FullName  string           `json:"fullName,omitempty"`
	AvatarURL *string          `json:"avatarUrl,omitempty"`
}

func (r *userRecord) toDomain() *domain.User {
	user := &domain.User{
		Username:  r.Username,
		FullName:  r.FullName,
		AvatarURL: r.AvatarURL,
	}
	if r.ID != nil {
		user.ID = r.ID.String()
	}
	return user
}

func (r *userRecord) toSummary() domain.UserSummary {
	summary := domain.UserSummary{
		Username:  r.Username,
		FullName:  r.FullName,
		AvatarURL: r.AvatarURL,
	}
	if r.ID != nil {
		summary.ID = r.ID.String()
	}
	return summary
}
