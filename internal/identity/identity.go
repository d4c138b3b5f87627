//go:generate go run go.uber.org/mock/mockgen -source=identity.go -destination=../mocks/mock_identity.go -package=mocks
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bsn-realtime/internal/domain"
	bsn_errors "bsn-realtime/pkg/errors"
)

// Identity is an authenticated user as the gateway sees it.
type Identity struct {
	UserID      string
	Username    string
	DisplayName string
	AvatarURL   string
	ExpiresAt   time.Time
}

// Verifier turns a bearer token into an Identity. Every failure is a
// *Rejection or a transient error; callers treat both as "not authenticated".
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, token string) (Identity, error)

func (f VerifierFunc) Verify(ctx context.Context, token string) (Identity, error) {
	return f(ctx, token)
}

// UserLookup resolves a token subject to a profile.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (domain.User, error)
}

type Reason string

const (
	ReasonMalformed      Reason = "malformed"
	ReasonExpired        Reason = "expired"
	ReasonUnknownSubject Reason = "unknown_subject"
)

// Rejection is a definitive refusal of a token.
type Rejection struct {
	Reason Reason
	Err    error
}

func Reject(reason Reason, err error) *Rejection {
	return &Rejection{Reason: reason, Err: err}
}

func (r *Rejection) Error() string {
	if r.Err == nil {
		return fmt.Sprintf("token rejected: %s", r.Reason)
	}
	return fmt.Sprintf("token rejected: %s: %v", r.Reason, r.Err)
}

func (r *Rejection) Unwrap() error { return r.Err }

// Is lets errors.Is(err, ErrUnauthorized) match every rejection.
func (r *Rejection) Is(target error) bool {
	return target == bsn_errors.ErrUnauthorized
}

// ReasonOf returns the rejection reason carried by err, if any.
func ReasonOf(err error) (Reason, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej.Reason, true
	}
	return "", false
}
