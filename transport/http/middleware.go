package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/phishguard/aegis/service"
)

// userIDKey is the gin context key the middleware stores the subject under.
const userIDKey = "userID"

// AuthMiddleware creates middleware that validates access tokens and puts
// the authenticated user id on the request context.
func AuthMiddleware(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")

		if !strings.HasPrefix(auth, "Bearer ") {
			abortError(c, http.StatusUnauthorized, "missing or malformed authorization header")
			return
		}

		token := strings.TrimPrefix(auth, "Bearer ")

		userID, err := authService.VerifyAccess(token)
		if err != nil {
			abortError(c, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

// currentUserID pulls the authenticated subject set by AuthMiddleware.
func currentUserID(c *gin.Context) (string, bool) {
	id, ok := c.Get(userIDKey)
	if !ok {
		return "", false
	}
	userID, ok := id.(string)
	return userID, ok
}
