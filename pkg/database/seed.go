package database

import (
	"context"
	"errors"
	"fmt"

	"bsn-realtime/internal/domain"
	"bsn-realtime/internal/repository"
	bsn_errors "bsn-realtime/pkg/errors"
)

// SeedResult holds what SeedDevelopment wrote.
type SeedResult struct {
	Users    []domain.User
	Chats    []domain.Chat
	Messages int
}

var devUsers = []domain.User{
	{ID: "u-alice", Username: "alice", DisplayName: "Alice"},
	{ID: "u-bob", Username: "bob", DisplayName: "Bob"},
	{ID: "u-carol", Username: "carol", DisplayName: "Carol"},
}

// SeedDevelopment writes a small fixed data set: three users, a direct chat
// between alice and bob and a group chat with all three. Re-running it is safe.
func SeedDevelopment(ctx context.Context, users repository.UserRepository, chats repository.ChatRepository) (*SeedResult, error) {
	result := &SeedResult{}

	for _, u := range devUsers {
		u := u
		if err := users.Upsert(ctx, &u); err != nil {
			return nil, fmt.Errorf("seed user %s: %w", u.Username, err)
		}
		result.Users = append(result.Users, u)
	}

	seeded := []domain.Chat{
		{ID: "c-alice-bob", Kind: domain.ChatKindDirect, ParticipantIDs: []string{"u-alice", "u-bob"}},
		{ID: "c-team", Kind: domain.ChatKindGroup, ParticipantIDs: []string{"u-alice", "u-bob", "u-carol"}},
	}
	for i := range seeded {
		err := chats.CreateChat(ctx, &seeded[i])
		switch {
		case err == nil:
			if _, err := chats.PersistMessage(ctx, seeded[i].ID, "u-alice", "welcome to "+seeded[i].ID); err != nil {
				return nil, fmt.Errorf("seed message: %w", err)
			}
			result.Messages++
		case errors.Is(err, bsn_errors.ErrConflict):
			// already seeded
		default:
			return nil, fmt.Errorf("seed chat %s: %w", seeded[i].ID, err)
		}
		result.Chats = append(result.Chats, seeded[i])
	}
	return result, nil
}
