package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error is an error response from the backend.
type Error struct {
	StatusCode int    `json:"-"`
	Code       string `json:"error"`
	Message    string `json:"message"`
}

func (e *Error) Error() string {
	if e.Code != "" && e.Message != "" && e.Message != e.Code {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

func (e *Error) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound || e.Code == "not_found"
}

func (e *Error) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.Code == "unauthorized"
}

func (e *Error) IsForbidden() bool {
	return e.StatusCode == http.StatusForbidden || e.Code == "forbidden"
}

// ErrNoSession is returned by calls that need a signed-in user.
var ErrNoSession = errors.New("no active session")

func parseError(statusCode int, body []byte) error {
	var apiErr Error
	if err := json.Unmarshal(body, &apiErr); err == nil && (apiErr.Code != "" || apiErr.Message != "") {
		apiErr.StatusCode = statusCode
		return &apiErr
	}

	return &Error{
		StatusCode: statusCode,
		Code:       http.StatusText(statusCode),
		Message:    string(body),
	}
}

// AsError reports whether err is (or wraps) a backend error response.
func AsError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
