package middleware

import (
	"net/http"

	"user-directory/internal/models"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const (
	SessionUserID = "user_id"
	SessionRole   = "role"
)

// RequireRole rejects requests whose session has no role in roles.
func RequireRole(roles ...models.UserRole) gin.HandlerFunc {
	roleSet := map[models.UserRole]struct{}{}
	for _, r := range roles {
		roleSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		sess := sessions.Default(c)
		roleStr, ok := sess.Get(SessionRole).(string)
		if !ok || sess.Get(SessionUserID) == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "login required"})
			return
		}

		if _, ok := roleSet[models.UserRole(roleStr)]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "access denied"})
			return
		}
		c.Next()
	}
}

// Optional returns h when enabled and a pass-through otherwise.
func Optional(enabled bool, h gin.HandlerFunc) gin.HandlerFunc {
	if enabled {
		return h
	}
	return func(c *gin.Context) { c.Next() }
}
