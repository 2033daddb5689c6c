package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"autocare/internal/models"
)

func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	roleSet := make(map[models.UserRole]struct{}, len(roles))
	for _, role := range roles {
		roleSet[role] = struct{}{}
	}

	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			AbortJSON(c, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}

		if _, ok := roleSet[user.Role]; !ok {
			AbortJSON(c, http.StatusForbidden, "forbidden", "insufficient role")
			return
		}

		c.Next()
	}
}
