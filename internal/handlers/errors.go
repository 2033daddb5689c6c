package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"autocare/internal/media/sniffer"
	"autocare/internal/middleware"
	"autocare/internal/repository"
	"autocare/internal/service"
)

type apiError struct {
	status  int
	code    string
	message string
}

var errorTable = []struct {
	target error
	apiError
}{
	{service.ErrInvalidCredentials, apiError{http.StatusBadRequest, "invalid_grant", ""}},
	{service.ErrInvalidRefreshToken, apiError{http.StatusBadRequest, "refresh_token_not_found", ""}},
	{service.ErrTooManyAttempts, apiError{http.StatusTooManyRequests, "over_request_rate_limit", ""}},
	{service.ErrUserSuspended, apiError{http.StatusForbidden, "user_banned", ""}},
	{service.ErrInvalidEmail, apiError{http.StatusBadRequest, "validation_failed", ""}},
	{service.ErrWeakPassword, apiError{http.StatusUnprocessableEntity, "weak_password", ""}},
	{repository.ErrEmailTaken, apiError{http.StatusUnprocessableEntity, "user_already_exists", "User already registered"}},
	{service.ErrInvalidScope, apiError{http.StatusBadRequest, "bad_request", ""}},
	{service.ErrForbidden, apiError{http.StatusForbidden, "forbidden", ""}},
	{repository.ErrProfileExists, apiError{http.StatusConflict, "conflict", "duplicate key value violates unique constraint \"profiles_pkey\""}},
	{repository.ErrProfileNotFound, apiError{http.StatusNotFound, "not_found", ""}},
	{repository.ErrDiagnosticNotFound, apiError{http.StatusNotFound, "not_found", ""}},
	{repository.ErrUserNotFound, apiError{http.StatusNotFound, "user_not_found", ""}},
	{service.ErrPastDate, apiError{http.StatusUnprocessableEntity, "past_date", ""}},
	{service.ErrUnknownService, apiError{http.StatusUnprocessableEntity, "invalid_reference", ""}},
	{service.ErrUnknownVehicle, apiError{http.StatusUnprocessableEntity, "invalid_reference", ""}},
	{repository.ErrInvalidReference, apiError{http.StatusUnprocessableEntity, "invalid_reference", ""}},
	{service.ErrMediaTooLarge, apiError{http.StatusRequestEntityTooLarge, "payload_too_large", ""}},
	{service.ErrMIMEMismatch, apiError{http.StatusUnsupportedMediaType, "unsupported_media_type", ""}},
	{sniffer.ErrUnknownType, apiError{http.StatusUnsupportedMediaType, "unsupported_media_type", ""}},
}

// fail writes the error body for err. Unknown errors are logged and hidden.
func (h HandlerSet) fail(c *gin.Context, err error) {
	for _, e := range errorTable {
		if errors.Is(err, e.target) {
			message := e.message
			if message == "" {
				message = err.Error()
			}
			middleware.AbortJSON(c, e.status, e.code, message)
			return
		}
	}

	var verr *service.ValidationError
	if errors.As(err, &verr) {
		middleware.AbortJSON(c, http.StatusBadRequest, "validation_failed", verr.Error())
		return
	}

	_ = c.Error(err)
	h.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	middleware.AbortJSON(c, http.StatusInternalServerError, "internal_error", "internal server error")
}

func badRequest(c *gin.Context, err error) {
	middleware.AbortJSON(c, http.StatusBadRequest, "bad_json", err.Error())
}
