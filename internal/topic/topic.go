//go:generate go run go.uber.org/mock/mockgen -source=topic.go -destination=../mocks/mock_topic.go -package=mocks
package topic

import (
	"context"
	"fmt"
	"strings"

	bsn_errors "bsn-realtime/pkg/errors"
)

// Kind is the family a delivery group belongs to.
type Kind string

const (
	KindChat          Kind = "chat"
	KindFeed          Kind = "feed"
	KindNotifications Kind = "notifications"
)

// Group name prefixes
const (
	PrefixChat  = "chat:"
	PrefixFeed  = "feed:"
	PrefixNotif = "notif:"
)

// Resolve maps a topic kind and resource id to its canonical group name.
func Resolve(kind Kind, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" || strings.ContainsAny(id, ": \t\r\n*?[]>") {
		return "", fmt.Errorf("%w: topic id %q", bsn_errors.ErrInvalidInput, id)
	}
	switch kind {
	case KindChat:
		return PrefixChat + id, nil
	case KindFeed:
		return PrefixFeed + id, nil
	case KindNotifications:
		return PrefixNotif + id, nil
	default:
		return "", fmt.Errorf("%w: topic kind %q", bsn_errors.ErrInvalidInput, kind)
	}
}

// Chat is shorthand for Resolve(KindChat, chatID) on ids already validated.
func Chat(chatID string) string { return PrefixChat + chatID }

func Feed(userID string) string { return PrefixFeed + userID }

func Notifications(userID string) string { return PrefixNotif + userID }

// Parse is the inverse of Resolve.
func Parse(group string) (Kind, string, error) {
	var kind Kind
	var id string
	switch {
	case strings.HasPrefix(group, PrefixChat):
		kind, id = KindChat, strings.TrimPrefix(group, PrefixChat)
	case strings.HasPrefix(group, PrefixFeed):
		kind, id = KindFeed, strings.TrimPrefix(group, PrefixFeed)
	case strings.HasPrefix(group, PrefixNotif):
		kind, id = KindNotifications, strings.TrimPrefix(group, PrefixNotif)
	default:
		return "", "", fmt.Errorf("%w: group %q", bsn_errors.ErrInvalidInput, group)
	}
	if _, err := Resolve(kind, id); err != nil {
		return "", "", err
	}
	return kind, id, nil
}

// ParticipantChecker answers chat membership questions. Implemented by the
// chat repository.
type ParticipantChecker interface {
	IsParticipant(ctx context.Context, userID, chatID string) (bool, error)
}

// Policy decides whether a user may receive a group's events.
type Policy struct {
	participants ParticipantChecker
}

func NewPolicy(participants ParticipantChecker) *Policy {
	return &Policy{participants: participants}
}

// Authorise reports whether userID may join group. Chat groups consult the
// store on every call; feed and notification groups are owned by exactly one
// user. Unknown groups are denied.
func (p *Policy) Authorise(ctx context.Context, userID, group string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	kind, id, err := Parse(group)
	if err != nil {
		return false, nil
	}
	switch kind {
	case KindFeed, KindNotifications:
		return id == userID, nil
	case KindChat:
		return p.participants.IsParticipant(ctx, userID, id)
	}
	return false, nil
}
