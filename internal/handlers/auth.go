package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"

	"user-directory/internal/directory"
	"user-directory/internal/middleware"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// flexibleID accepts the user id as a JSON string or number; the frontend
// sends whatever the input field holds.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexibleID(n.String())
	return nil
}

type loginRequest struct {
	UserID   flexibleID `json:"userId"`
	Password string     `json:"password"`
}

type loginResponse struct {
	Message string               `json:"message"`
	User    *directory.Principal `json:"user"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c)
		return
	}

	p, err := h.svc.Authenticate(c.Request.Context(), string(req.UserID), req.Password)
	if err != nil {
		fail(c, err, "server error, please try again")
		return
	}

	sess := sessions.Default(c)
	sess.Set(middleware.SessionUserID, p.UserID)
	sess.Set(middleware.SessionRole, string(p.Role))
	if err := sess.Save(); err != nil {
		h.logger(c).Warn(c.Request.Context(), "save session failed", "user_id", p.UserID, "error", err)
	}

	c.JSON(http.StatusOK, loginResponse{Message: "login successful", User: p})
}

func (h *Handler) Logout(c *gin.Context) {
	sess := sessions.Default(c)
	sess.Clear()
	sess.Options(sessions.Options{Path: "/", MaxAge: -1})
	_ = sess.Save()
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}
