package identity_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"bsn-realtime/internal/domain"
	"bsn-realtime/internal/identity"
	"bsn-realtime/internal/mocks"
	bsn_errors "bsn-realtime/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const secret = "test-secret"

func sign(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func validClaims(sub string, ttl time.Duration) identity.Claims {
	return identity.Claims{
		Username: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
}

func TestJWTVerifier_Valid(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	users := mocks.NewMockUserLookup(ctrl)
	v := identity.NewJWTVerifier(secret, users)

	users.EXPECT().GetUser(gomock.Any(), "u1").
		Return(domain.User{ID: "u1", Username: "alice", DisplayName: "Alice"}, nil).
		Times(1)

	token := sign(t, jwt.SigningMethodHS256, []byte(secret), validClaims("u1", time.Hour))

	id, err := v.Verify(context.Background(), token)
	req.NoError(err)
	req.Equal("u1", id.UserID)
	req.Equal("alice", id.Username)
	req.Equal("Alice", id.DisplayName)

	// second call is served from the cache, GetUser is expected only once
	again, err := v.Verify(context.Background(), token)
	req.NoError(err)
	req.Equal(id, again)
}

func TestJWTVerifier_Rejections(t *testing.T) {
	other := sign(t, jwt.SigningMethodHS256, []byte("another-secret"), validClaims("u1", time.Hour))
	expired := sign(t, jwt.SigningMethodHS256, []byte(secret), validClaims("u1", -time.Minute))
	noExp := sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.RegisteredClaims{Subject: "u1"})
	noSub := sign(t, jwt.SigningMethodHS256, []byte(secret), validClaims("", time.Hour))
	hs512 := sign(t, jwt.SigningMethodHS512, []byte(secret), validClaims("u1", time.Hour))
	unsigned := sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, validClaims("u1", time.Hour))

	tests := []struct {
		name   string
		token  string
		reason identity.Reason
	}{
		{"empty", "", identity.ReasonMalformed},
		{"garbage", "not-a-jwt", identity.ReasonMalformed},
		{"wrong secret", other, identity.ReasonMalformed},
		{"expired", expired, identity.ReasonExpired},
		{"missing exp", noExp, identity.ReasonMalformed},
		{"missing sub", noSub, identity.ReasonMalformed},
		{"other hmac alg", hs512, identity.ReasonMalformed},
		{"alg none", unsigned, identity.ReasonMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			ctrl := gomock.NewController(t)
			v := identity.NewJWTVerifier(secret, mocks.NewMockUserLookup(ctrl))

			_, err := v.Verify(context.Background(), tt.token)
			req.Error(err)
			req.ErrorIs(err, bsn_errors.ErrUnauthorized)
			reason, ok := identity.ReasonOf(err)
			req.True(ok)
			req.Equal(tt.reason, reason)
		})
	}
}

func TestJWTVerifier_UnknownSubject(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	users := mocks.NewMockUserLookup(ctrl)
	v := identity.NewJWTVerifier(secret, users)

	users.EXPECT().GetUser(gomock.Any(), "ghost").Return(domain.User{}, bsn_errors.ErrNotFound)

	_, err := v.Verify(context.Background(), sign(t, jwt.SigningMethodHS256, []byte(secret), validClaims("ghost", time.Hour)))
	reason, ok := identity.ReasonOf(err)
	req.True(ok)
	req.Equal(identity.ReasonUnknownSubject, reason)
}

func TestJWTVerifier_LookupFailureIsNotCached(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	users := mocks.NewMockUserLookup(ctrl)
	v := identity.NewJWTVerifier(secret, users)
	token := sign(t, jwt.SigningMethodHS256, []byte(secret), validClaims("u1", time.Hour))

	gomock.InOrder(
		users.EXPECT().GetUser(gomock.Any(), "u1").Return(domain.User{}, errors.New("connection refused")),
		users.EXPECT().GetUser(gomock.Any(), "u1").Return(domain.User{ID: "u1", Username: "alice"}, nil),
	)

	_, err := v.Verify(context.Background(), token)
	req.ErrorIs(err, bsn_errors.ErrServiceUnavailable)
	_, isRejection := identity.ReasonOf(err)
	req.False(isRejection)

	id, err := v.Verify(context.Background(), token)
	req.NoError(err)
	req.Equal("u1", id.UserID)
}

func TestVerifierFunc(t *testing.T) {
	v := identity.VerifierFunc(func(_ context.Context, token string) (identity.Identity, error) {
		return identity.Identity{UserID: token}, nil
	})
	id, err := v.Verify(context.Background(), "bob")
	require.NoError(t, err)
	require.Equal(t, "bob", id.UserID)
}
