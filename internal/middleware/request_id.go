package middleware

import (
	"user-directory/internal/logging"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderRequestID = "X-Request-ID"

	ctxRequestID = "request_id"
	ctxLogger    = "logger"
)

// RequestID echoes the caller's X-Request-ID or assigns a new one, and stores
// a logger tagged with it on the context.
func RequestID(log logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}

		c.Set(ctxRequestID, id)
		c.Set(ctxLogger, log.With("request_id", id))
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// Logger returns the request-scoped logger, or fallback outside RequestID.
func Logger(c *gin.Context, fallback logging.Logger) logging.Logger {
	if v, ok := c.Get(ctxLogger); ok {
		if l, ok := v.(logging.Logger); ok {
			return l
		}
	}
	return fallback
}
