package handlers

import (
	"net/http"

	"user-directory/internal/directory"
	"user-directory/internal/models"

	"github.com/gin-gonic/gin"
)

const auditPageSize = 200

func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.svc.List(c.Request.Context())
	if err != nil {
		fail(c, err, "server error")
		return
	}
	if users == nil {
		users = []models.User{}
	}
	c.JSON(http.StatusOK, users)
}

type createUserRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (h *Handler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c)
		return
	}

	user, err := h.svc.Create(c.Request.Context(), directory.CreateUserInput{
		Name:     req.Name,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		fail(c, err, "server error while adding the user")
		return
	}

	// Password is tagged json:"-", the hash stays server-side.
	c.JSON(http.StatusCreated, user)
}

func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		fail(c, err, "server error while loading statistics")
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) ListAuditLogs(c *gin.Context) {
	ctx := c.Request.Context()
	logs, err := h.audit.Recent(ctx, auditPageSize)
	if err != nil {
		h.logger(c).Error(ctx, "list audit log failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "server error"})
		return
	}
	if logs == nil {
		logs = []models.AuditLog{}
	}
	c.JSON(http.StatusOK, logs)
}
