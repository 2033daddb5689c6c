package ids

import (
	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

// New returns a sortable identifier for sessions, devices and diagnostics.
func New() string {
	return ksuid.New().String()
}

// NewUserID returns the identifier of a new auth identity. Profiles share it.
func NewUserID() string {
	return uuid.NewString()
}
