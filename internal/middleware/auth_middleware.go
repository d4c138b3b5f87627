package middleware

import (
	"net/http"
	"strings"

	"bsn-realtime/internal/identity"
	"bsn-realtime/internal/transport/httpdto"
	"bsn-realtime/pkg/logger"

	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// AuthMiddleware verifies the bearer token with the same verifier the
// websocket gateway uses.
func AuthMiddleware(verifier identity.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearer(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpdto.Failure("unauthorized", httpdto.CodeUnauthorized))
			return
		}

		id, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpdto.Failure("unauthorized", httpdto.CodeUnauthorized))
			return
		}

		c.Set(identityKey, id)
		ctx := logger.ContextWithUserID(c.Request.Context(), id.UserID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// IdentityFrom returns the identity stored by AuthMiddleware.
func IdentityFrom(c *gin.Context) (identity.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return identity.Identity{}, false
	}
	id, ok := v.(identity.Identity)
	return id, ok
}

func extractBearer(c *gin.Context) string {
	value := c.GetHeader("Authorization")
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
