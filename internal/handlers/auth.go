package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"autocare/internal/middleware"
	"autocare/internal/service"
)

type signUpRequest struct {
	Email      string         `json:"email" binding:"required"`
	Password   string         `json:"password" binding:"required"`
	Data       map[string]any `json:"data"`
	DeviceID   string         `json:"device_id"`
	DeviceName string         `json:"device_name"`
}

func (h HandlerSet) SignUp(c *gin.Context) {
	var req signUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.auth.SignUp(c.Request.Context(), service.SignUpInput{
		Email:    req.Email,
		Password: req.Password,
		Metadata: req.Data,
		Device:   h.device(c, req.DeviceID, req.DeviceName),
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, result.Response())
}

type passwordGrantRequest struct {
	Email      string `json:"email" binding:"required"`
	Password   string `json:"password" binding:"required"`
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
}

type refreshGrantRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Token issues sessions for the password and refresh_token grants.
func (h HandlerSet) Token(c *gin.Context) {
	var (
		result service.AuthResult
		err    error
	)

	switch grant := c.Query("grant_type"); grant {
	case "password":
		var req passwordGrantRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		result, err = h.auth.SignInWithPassword(c.Request.Context(), service.PasswordInput{
			Email:    req.Email,
			Password: req.Password,
			Device:   h.device(c, req.DeviceID, req.DeviceName),
		})
	case "refresh_token":
		var req refreshGrantRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		result, err = h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	default:
		middleware.AbortJSON(c, http.StatusBadRequest, "unsupported_grant_type", "unsupported grant_type "+grant)
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, result.Response())
}

func (h HandlerSet) device(c *gin.Context, id, name string) service.Device {
	return service.Device{
		ID:        id,
		Name:      name,
		IPAddress: c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
	}
}

func (h HandlerSet) Logout(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}

	scope, err := service.ParseScope(c.Query("scope"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.auth.Logout(c.Request.Context(), principal, scope); err != nil {
		h.fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h HandlerSet) User(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, service.PublicUser(principal.User))
}

func (h HandlerSet) Sessions(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}

	sessions, err := h.auth.Sessions(c.Request.Context(), principal)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sessions)
}

func (h HandlerSet) principal(c *gin.Context) (service.Principal, bool) {
	principal, ok := middleware.CurrentPrincipal(c)
	if !ok {
		middleware.AbortJSON(c, http.StatusUnauthorized, "unauthorized", "authentication required")
	}
	return principal, ok
}
