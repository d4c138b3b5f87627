package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"bsn-realtime/internal/redis"
	"bsn-realtime/internal/transport/httpdto"
	bsn_errors "bsn-realtime/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

const maxPresenceIDs = 100

// PresenceReader is implemented by redis.PresenceStore.
type PresenceReader interface {
	Status(ctx context.Context, userIDs []string) ([]redis.Presence, error)
}

type PresenceHandler struct {
	presence PresenceReader
}

func NewPresenceHandler(presence PresenceReader) *PresenceHandler {
	return &PresenceHandler{presence: presence}
}

// Status answers GET /v1/presence?user_ids=a,b,c in request order.
func (h *PresenceHandler) Status(c *gin.Context) {
	var q httpdto.PresenceQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.Error(fmt.Errorf("%w: user_ids is required", bsn_errors.ErrInvalidInput))
		return
	}

	ids := lo.Compact(lo.Map(strings.Split(q.UserIDs, ","), func(s string, _ int) string {
		return strings.TrimSpace(s)
	}))
	if len(ids) == 0 || len(ids) > maxPresenceIDs {
		c.Error(fmt.Errorf("%w: between 1 and %d user ids", bsn_errors.ErrInvalidInput, maxPresenceIDs))
		return
	}

	statuses, err := h.presence.Status(c.Request.Context(), ids)
	if err != nil {
		c.Error(fmt.Errorf("%w: %v", bsn_errors.ErrServiceUnavailable, err))
		return
	}

	c.JSON(http.StatusOK, httpdto.OK(httpdto.PresenceResponse{
		Users: lo.Map(statuses, func(p redis.Presence, _ int) httpdto.PresenceStatus {
			return httpdto.PresenceStatus{UserID: p.UserID, Online: p.Online}
		}),
	}))
}
