package handlers

import (
	"context"
	"errors"
	"net/http"

	"user-directory/internal/directory"
	"user-directory/internal/logging"
	"user-directory/internal/middleware"
	"user-directory/internal/models"

	"github.com/gin-gonic/gin"
)

type AuditLister interface {
	Recent(ctx context.Context, limit int) ([]models.AuditLog, error)
}

// Pinger reports whether the backing store answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	svc   *directory.Service
	audit AuditLister
	store Pinger
	log   logging.Logger
}

func New(svc *directory.Service, audit AuditLister, store Pinger, log logging.Logger) *Handler {
	return &Handler{svc: svc, audit: audit, store: store, log: log}
}

// Health answers ok while the store is reachable and 503 otherwise.
func (h *Handler) Health(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.store.Ping(ctx); err != nil {
		h.logger(c).Warn(ctx, "health check: store unreachable", "error", err)
		c.String(http.StatusServiceUnavailable, "store unavailable")
		return
	}
	c.String(http.StatusOK, "ok")
}

func (h *Handler) logger(c *gin.Context) logging.Logger {
	return middleware.Logger(c, h.log)
}

// fail maps directory errors to a status and a {"message"} body. generic is
// shown for anything unexpected; the detail was already logged by the service.
func fail(c *gin.Context, err error, generic string) {
	var verr *directory.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"message": verr.Message})
	case errors.Is(err, directory.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid user id or password"})
	case errors.Is(err, directory.ErrUserIDConflict):
		c.JSON(http.StatusConflict, gin.H{"message": "user id already taken, please retry"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"message": generic})
	}
}

func badBody(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{"message": "malformed request body"})
}
