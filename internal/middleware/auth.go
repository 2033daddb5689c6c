package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"autocare/internal/models"
	"autocare/internal/security"
	"autocare/internal/service"
)

const (
	principalKey   = "principal"
	currentUserKey = "current_user"
	claimsKey      = "access_claims"
	tokenKey       = "access_token"
)

type Authenticator interface {
	Authenticate(ctx context.Context, token, ip, userAgent string) (service.Principal, error)
}

func Auth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, ok := BearerToken(c.GetHeader("Authorization"))
		if !ok {
			AbortJSON(c, http.StatusUnauthorized, "missing_token", "bearer token required")
			return
		}

		principal, err := auth.Authenticate(c.Request.Context(), tokenStr, c.ClientIP(), c.GetHeader("User-Agent"))
		if err != nil {
			switch {
			case errors.Is(err, security.ErrInvalidToken):
				AbortJSON(c, http.StatusUnauthorized, "invalid_token", "invalid or expired token")
			case errors.Is(err, service.ErrSessionRevoked):
				AbortJSON(c, http.StatusUnauthorized, "session_not_found", "session has ended")
			case errors.Is(err, service.ErrUserSuspended):
				AbortJSON(c, http.StatusForbidden, "user_inactive", "user is not active")
			default:
				AbortJSON(c, http.StatusUnauthorized, "unauthorized", "could not authenticate")
			}
			return
		}

		c.Set(principalKey, principal)
		c.Set(tokenKey, principal.Token)
		c.Set(claimsKey, principal.Claims)
		c.Set(currentUserKey, principal.User)

		c.Next()
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

func CurrentPrincipal(c *gin.Context) (service.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return service.Principal{}, false
	}
	p, ok := v.(service.Principal)
	return p, ok
}

func CurrentUser(c *gin.Context) (models.User, bool) {
	v, ok := c.Get(currentUserKey)
	if !ok {
		return models.User{}, false
	}
	u, ok := v.(models.User)
	return u, ok
}

// AbortJSON stops the chain with the standard error body.
func AbortJSON(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": code, "message": message})
}
