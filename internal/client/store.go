// Package client holds the client-side state for an open conversation: an
// ordered message log that merges locally-originated optimistic entries with
// server-confirmed responses and peer broadcasts, without duplication.
//
// Socket event handlers and HTTP response handlers run on different
// goroutines and both mutate the log, so every merge is by correlation id or
// permanent id, never by position.
package client

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nfrund/pulse/internal/domain"
)

// DefaultSendTimeout bounds how long an in-flight send or delete may stay
// pending before it is marked failed and surfaced as retryable.
const DefaultSendTimeout = 15 * time.Second

// Entry is one message in the conversation log, plus the transient
// client-only reconciliation state.
type Entry struct {
	domain.Message

	// TempID is the client-generated correlation id. It is set for entries
	// this client originated and empty for peer messages.
	TempID string
	// IsOptimistic marks an entry the server has not confirmed yet.
	IsOptimistic bool
	// IsSending and IsDeleting mark in-flight operations.
	IsSending  bool
	IsDeleting bool
	// Failed marks an entry whose in-flight operation timed out or errored;
	// the UI offers a retry for it.
	Failed bool
}

// Store is the reconciliation store for one conversation.
type Store struct {
	mu sync.Mutex

	selfID string
	peerID string

	entries []*Entry

	onlineUsers []string

	sendTimeout time.Duration
	timers      map[string]*time.Timer
}

// Option configures a Store.
type Option func(*Store)

// WithSendTimeout overrides the in-flight timeout. Zero disables it.
func WithSendTimeout(d time.Duration) Option {
	return func(s *Store) { s.sendTimeout = d }
}

// NewStore creates a store for the conversation between selfID and peerID.
func NewStore(selfID, peerID string, opts ...Option) *Store {
	s := &Store{
		selfID:      selfID,
		peerID:      peerID,
		sendTimeout: DefaultSendTimeout,
		timers:      make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reset replaces the whole log with an authoritative fetch. Pending
// optimistic entries are discarded: Reset is both the initial load and the
// rollback path after a failed react/delete.
func (s *Store) Reset(messages []*domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopAllTimersLocked()
	s.entries = make([]*Entry, 0, len(messages))
	for _, m := range messages {
		s.entries = append(s.entries, &Entry{Message: *m})
	}
}

// BeginSend appends an optimistic entry for a locally-initiated send and
// returns the correlation id to thread through the persist request. The
// entry turns Failed if neither ConfirmSend nor FailSend arrives within the
// send timeout.
func (s *Store) BeginSend(msg domain.Message) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	tempID := uuid.NewString()
	msg.SenderID = s.selfID
	msg.ReceiverID = s.peerID
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	s.entries = append(s.entries, &Entry{
		Message:      msg,
		TempID:       tempID,
		IsOptimistic: true,
		IsSending:    true,
	})
	s.armTimerLocked(tempID)
	return tempID
}

// ConfirmSend reconciles the optimistic entry with the server's response.
// The entry is replaced in place, keyed by correlation id, so the later
// broadcast echo for the same permanent id becomes a no-op instead of a
// duplicate. An unknown tempID falls back to ApplyCreated semantics.
func (s *Store) ConfirmSend(tempID string, confirmed *domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.disarmTimerLocked(tempID)

	if e := s.byTempIDLocked(tempID); e != nil {
		e.Message = *confirmed
		e.IsOptimistic = false
		e.IsSending = false
		e.Failed = false
		return
	}
	s.appendIfAbsentLocked(confirmed)
}

// FailSend removes the optimistic entry after a failed persist request. A
// failed send leaves no trace in the log.
func (s *Store) FailSend(tempID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.disarmTimerLocked(tempID)
	for i, e := range s.entries {
		if e.TempID == tempID && e.IsOptimistic {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return
		}
	}
}

// Retry flips a Failed entry back to in-flight under a fresh correlation id
// and returns that id, or "" if the entry is unknown or not failed.
func (s *Store) Retry(tempID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.byTempIDLocked(tempID)
	if e == nil || !e.Failed {
		return ""
	}

	fresh := uuid.NewString()
	e.TempID = fresh
	e.Failed = false
	e.IsSending = true
	e.IsOptimistic = true
	s.armTimerLocked(fresh)
	return fresh
}

// ApplyCreated merges a message_created broadcast. A matching correlation id
// reconciles the optimistic entry (this covers the race where the broadcast
// overtakes the HTTP response); a known permanent id is a no-op; anything
// else is appended.
func (s *Store) ApplyCreated(msg *domain.Message, tempID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tempID != "" {
		if e := s.byTempIDLocked(tempID); e != nil {
			s.disarmTimerLocked(tempID)
			e.Message = *msg
			e.IsOptimistic = false
			e.IsSending = false
			e.Failed = false
			return
		}
	}
	s.appendIfAbsentLocked(msg)
}

// BeginReact applies a reaction toggle locally before the request resolves.
// Same emoji removes, different emoji replaces, none adds. Rollback is a
// full Reset from a refetch, not a precise undo.
func (s *Store) BeginReact(messageID, emoji string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.byIDLocked(messageID)
	if e == nil {
		return
	}

	if i := e.ReactionOf(s.selfID); i >= 0 {
		if e.Reactions[i].Emoji == emoji {
			e.Reactions = append(e.Reactions[:i], e.Reactions[i+1:]...)
		} else {
			e.Reactions[i].Emoji = emoji
		}
		return
	}
	e.Reactions = append(e.Reactions, domain.Reaction{UserID: s.selfID, Emoji: emoji})
}

// ApplyReacted merges a message_reacted event: the authoritative reactions
// set replaces the local one in place. Events for ids not in the log are
// dropped; the next full fetch carries the correct state.
func (s *Store) ApplyReacted(messageID string, reactions []domain.Reaction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e := s.byIDLocked(messageID); e != nil {
		e.Reactions = reactions
	}
}

// BeginDelete marks an entry as having a delete in flight. The content stays
// visible until the server confirms; only the pending indicator changes.
func (s *Store) BeginDelete(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e := s.byIDLocked(messageID); e != nil {
		e.IsDeleting = true
	}
}

// FailDelete clears the pending indicator after a failed delete request.
// The caller follows up with a refetch-and-Reset for authoritative state.
func (s *Store) FailDelete(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e := s.byIDLocked(messageID); e != nil {
		e.IsDeleting = false
	}
}

// ApplyDeleted merges a message_deleted event: the redacted shape replaces
// the entry's message in place, regardless of how the entry got here.
// Unknown ids are dropped.
func (s *Store) ApplyDeleted(messageID string, redacted *domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e := s.byIDLocked(messageID); e != nil {
		e.Message = *redacted
		e.IsDeleting = false
	}
}

// SetOnlineUsers records the latest presence snapshot.
func (s *Store) SetOnlineUsers(userIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onlineUsers = append([]string(nil), userIDs...)
}

// OnlineUsers returns the latest presence snapshot.
func (s *Store) OnlineUsers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.onlineUsers...)
}

// PeerOnline reports whether the conversation peer is currently online.
func (s *Store) PeerOnline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.onlineUsers {
		if id == s.peerID {
			return true
		}
	}
	return false
}

// Messages returns a snapshot of the log in order.
func (s *Store) Messages() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, len(s.entries))
	for i, e := range s.entries {
		out[i] = *e
	}
	return out
}

// Len returns the number of log entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) byTempIDLocked(tempID string) *Entry {
	if tempID == "" {
		return nil
	}
	for _, e := range s.entries {
		if e.TempID == tempID {
			return e
		}
	}
	return nil
}

func (s *Store) byIDLocked(id string) *Entry {
	if id == "" {
		return nil
	}
	for _, e := range s.entries {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func (s *Store) appendIfAbsentLocked(msg *domain.Message) {
	if s.byIDLocked(msg.ID) != nil {
		return
	}
	s.entries = append(s.entries, &Entry{Message: *msg})
}

func (s *Store) armTimerLocked(tempID string) {
	if s.sendTimeout <= 0 {
		return
	}
	s.timers[tempID] = time.AfterFunc(s.sendTimeout, func() {
		s.expire(tempID)
	})
}

func (s *Store) disarmTimerLocked(tempID string) {
	if t, ok := s.timers[tempID]; ok {
		t.Stop()
		delete(s.timers, tempID)
	}
}

func (s *Store) stopAllTimersLocked() {
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

// expire marks a still-pending entry as failed after the send timeout.
func (s *Store) expire(tempID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.timers, tempID)
	if e := s.byTempIDLocked(tempID); e != nil && e.IsOptimistic {
		e.IsSending = false
		e.Failed = true
	}
}
