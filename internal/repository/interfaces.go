//go:generate go run go.uber.org/mock/mockgen -source=interfaces.go -destination=../mocks/mock_repository.go -package=mocks
package repository

import (
	"context"

	"bsn-realtime/internal/domain"
)

type ChatRepository interface {
	IsParticipant(ctx context.Context, userID, chatID string) (bool, error)
	// PersistMessage inserts the message and bumps the chat in one transaction.
	PersistMessage(ctx context.Context, chatID, senderID, content string) (domain.PersistResult, error)
	GetChat(ctx context.Context, chatID string) (domain.Chat, error)
	GetMessages(ctx context.Context, chatID string, limit int) ([]domain.ChatMessage, error)
	MarkRead(ctx context.Context, chatID, readerID string) (int64, error)
	CreateChat(ctx context.Context, c *domain.Chat) error
}

type UserRepository interface {
	GetUser(ctx context.Context, id string) (domain.User, error)
	Upsert(ctx context.Context, u *domain.User) error
}
