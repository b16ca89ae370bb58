package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/saedlagr/foodio-beta-sub000/internal/logger"
)

const userIDKey = "user_id"

// UserIdentity trusts the user id set by the fronting auth proxy in header.
// Requests without one are rejected.
func UserIdentity(header string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(header))
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing user identity",
			})
			return
		}

		ctx := logger.SetUserID(c.Request.Context(), userID)
		c.Request = c.Request.WithContext(ctx)
		c.Set(userIDKey, userID)
		c.Set("logger", logger.FromContext(ctx))
		c.Next()
	}
}

// UserID returns the identity set by UserIdentity.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
