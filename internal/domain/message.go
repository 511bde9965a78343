package domain

import (
	"context"
	"time"
)

// Reaction is a single user's emoji reaction to a message. A user holds at
// most one reaction per message; reacting again with the same emoji removes
// it, a different emoji replaces it.
type Reaction struct {
	UserID string `json:"userId"`
	Emoji  string `json:"emoji"`
}

// Message represents a direct message between two users.
//
// At most one media field (ImageURL, VideoURL, StickerURL, GifURL) is
// populated; Text may accompany media. Once Deleted is set, all content
// fields are cleared and never restored.
type Message struct {
	ID         string     `json:"id,omitempty"`
	SenderID   string     `json:"senderId"`
	ReceiverID string     `json:"receiverId"`
	Text       string     `json:"text,omitempty"`
	ImageURL   string     `json:"image,omitempty"`
	VideoURL   string     `json:"video,omitempty"`
	StickerURL string     `json:"sticker,omitempty"`
	GifURL     string     `json:"gif,omitempty"`
	Deleted    bool       `json:"deleted"`
	Reactions  []Reaction `json:"reactions"`
	CreatedAt  time.Time  `json:"createdAt"`

	// Version increments on every mutation and backs the compare-and-swap
	// discipline in the message store.
	Version int64 `json:"version"`
}

// HasContent reports whether the message carries anything worth persisting.
func (m *Message) HasContent() bool {
	return m.Text != "" || m.ImageURL != "" || m.VideoURL != "" || m.StickerURL != "" || m.GifURL != ""
}

// IsParticipant reports whether userID is the sender or the receiver.
func (m *Message) IsParticipant(userID string) bool {
	return m.SenderID == userID || m.ReceiverID == userID
}

// Redact clears every content field and marks the message deleted. The
// redacted shape is the only form a delete event may carry on the wire.
func (m *Message) Redact() {
	m.Text = ""
	m.ImageURL = ""
	m.VideoURL = ""
	m.StickerURL = ""
	m.GifURL = ""
	m.Reactions = nil
	m.Deleted = true
}

// ReactionOf returns the index of userID's reaction, or -1.
func (m *Message) ReactionOf(userID string) int {
	for i, r := range m.Reactions {
		if r.UserID == userID {
			return i
		}
	}
	return -1
}

// MessageRepository defines the contract for message persistence. It lives in
// the domain because it is a requirement OF the domain, not of the database
// implementation.
type MessageRepository interface {
	Create(ctx context.Context, msg *Message) (*Message, error)
	GetByID(ctx context.Context, id string) (*Message, error)
	// ListBetween returns every message exchanged between the two users,
	// ordered by creation time ascending.
	ListBetween(ctx context.Context, userA, userB string) ([]*Message, error)
	// UpdateReactions replaces the reactions set, guarded by the message
	// version; returns ErrStaleVersion when the stored version has moved.
	UpdateReactions(ctx context.Context, id string, reactions []Reaction, version int64) (*Message, error)
	// MarkDeleted redacts the message in place, guarded by the message
	// version; returns ErrStaleVersion when the stored version has moved.
	MarkDeleted(ctx context.Context, id string, version int64) (*Message, error)
}

// MediaUploader is the media-hosting collaborator: it accepts raw bytes and
// returns a permanent URL. An upload failure must surface as a send failure,
// never as a partially created message.
type MediaUploader interface {
	Upload(ctx context.Context, data []byte, kind MediaKind) (string, error)
}

// MediaKind discriminates the two uploadable media types.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)
