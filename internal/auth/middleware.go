package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/avenika/study-helper/internal/models"
)

// userKey is the gin context key RequireAuth stores the user under.
const userKey = "auth.user"

// RequireAuth rejects requests without a valid bearer token and stashes the
// authenticated user on the gin context for handlers to pick up.
func RequireAuth(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		user, err := svc.Authenticate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// UserFromContext returns the user RequireAuth authenticated.
func UserFromContext(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok
}
