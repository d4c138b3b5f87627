package domain

import "time"

type ChatKind string

const (
	ChatKindDirect ChatKind = "direct"
	ChatKindGroup  ChatKind = "group"
)

func (k ChatKind) Valid() bool {
	return k == ChatKindDirect || k == ChatKindGroup
}

type Chat struct {
	ID             string    `json:"id" db:"id"`
	Kind           ChatKind  `json:"kind" db:"kind"`
	ParticipantIDs []string  `json:"participant_ids" db:"-"`
	LastActivityAt time.Time `json:"last_activity_at" db:"last_activity_at"`
	HasUnread      bool      `json:"has_unread" db:"has_unread"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// ChatMessage is append-only; only IsRead ever changes after insert.
type ChatMessage struct {
	ID        string    `json:"id" db:"id"`
	ChatID    string    `json:"chat_id" db:"chat_id"`
	SenderID  string    `json:"sender_id" db:"sender_id"`
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	IsRead    bool      `json:"is_read" db:"is_read"`
}

// PersistResult is what a successful send hands back to the gateway.
type PersistResult struct {
	MessageID string    `json:"message_id"`
	CreatedAt time.Time `json:"created_at"`
	Attempts  int       `json:"-"`
}
