package middleware

import (
	"net/http"

	"bsn-realtime/internal/transport/httpdto"
	bsn_errors "bsn-realtime/pkg/errors"
	"bsn-realtime/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandler renders the last error attached with c.Error. The status and
// code follow the same taxonomy as websocket error frames.
func ErrorHandler(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		code := bsn_errors.FrameCode(err)
		if l != nil && code == bsn_errors.CodeInternal {
			l.WithContext(c.Request.Context()).Error("request failed", zap.Error(err))
		}
		c.JSON(StatusFor(code), httpdto.FailureFrom(err).WithRequestID(c.Writer.Header().Get(RequestIDHeader)))
	}
}

// StatusFor maps an error frame code onto an HTTP status.
func StatusFor(code string) int {
	switch code {
	case bsn_errors.CodeForbidden:
		return http.StatusForbidden
	case bsn_errors.CodeInvalid:
		return http.StatusBadRequest
	case bsn_errors.CodeNotFound:
		return http.StatusNotFound
	case bsn_errors.CodeRateLimited:
		return http.StatusTooManyRequests
	case bsn_errors.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
