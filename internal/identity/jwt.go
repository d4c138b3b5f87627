package identity

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"bsn-realtime/internal/domain"
	bsn_errors "bsn-realtime/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/patrickmn/go-cache"
	"golang.org/x/crypto/blake2b"
)

const (
	maxCacheTTL     = 5 * time.Minute
	cleanupInterval = 10 * time.Minute
)

// Claims is the access token payload issued by the auth service.
type Claims struct {
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256 access tokens and resolves their subject.
// Positive results are cached per token until the token itself expires.
type JWTVerifier struct {
	secret []byte
	users  UserLookup
	cache  *cache.Cache
	now    func() time.Time
}

func NewJWTVerifier(secret string, users UserLookup) *JWTVerifier {
	return &JWTVerifier{
		secret: []byte(secret),
		users:  users,
		cache:  cache.New(maxCacheTTL, cleanupInterval),
		now:    time.Now,
	}
}

func (v *JWTVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, Reject(ReasonMalformed, errors.New("empty token"))
	}

	key := cacheKey(token)
	if cached, ok := v.cache.Get(key); ok {
		id := cached.(Identity)
		if v.now().Before(id.ExpiresAt) {
			return id, nil
		}
		v.cache.Delete(key)
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, Reject(ReasonExpired, err)
		}
		return Identity{}, Reject(ReasonMalformed, err)
	}
	if claims.Subject == "" {
		return Identity{}, Reject(ReasonMalformed, errors.New("missing subject"))
	}

	user, err := v.users.GetUser(ctx, claims.Subject)
	if errors.Is(err, bsn_errors.ErrNotFound) {
		return Identity{}, Reject(ReasonUnknownSubject, err)
	}
	if err != nil {
		return Identity{}, fmt.Errorf("%w: resolve subject: %v", bsn_errors.ErrServiceUnavailable, err)
	}

	id := fromUser(user, claims.ExpiresAt.Time)
	if ttl := id.ExpiresAt.Sub(v.now()); ttl > 0 {
		if ttl > maxCacheTTL {
			ttl = maxCacheTTL
		}
		v.cache.Set(key, id, ttl)
	}
	return id, nil
}

func fromUser(u domain.User, exp time.Time) Identity {
	return Identity{
		UserID:      u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		ExpiresAt:   exp,
	}
}

// cacheKey keeps raw tokens out of process memory maps.
func cacheKey(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
