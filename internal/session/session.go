// Package session keeps track of who the current user is. A Manager mirrors
// the remote auth service's session into a single in-memory profile and keeps
// it in sync with the service's session-change notifications.
package session

import (
	"context"
	"errors"

	"autocare/internal/models"
)

var (
	ErrAlreadyStarted = errors.New("session manager already started")
	ErrClosed         = errors.New("session manager closed")
	ErrNoProfile      = errors.New("no profile loaded")
	ErrNoUser         = errors.New("sign up returned no user")
)

// Subscription is a standing registration for session-change notifications.
// Unsubscribe must be safe to call more than once.
type Subscription interface {
	Events() <-chan models.AuthEvent
	Unsubscribe()
}

// Auth is the remote auth service.
type Auth interface {
	GetSession(ctx context.Context) (*models.AuthSession, error)
	OnAuthStateChange(ctx context.Context) (Subscription, error)
	SignInWithPassword(ctx context.Context, email, password string) (models.AuthResponse, error)
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (models.AuthResponse, error)
	SignOut(ctx context.Context) error
}

// Profiles is the remote profiles table, keyed by auth user id.
type Profiles interface {
	Get(ctx context.Context, id string) (models.Profile, error)
	Insert(ctx context.Context, profile models.Profile) (models.Profile, error)
	Update(ctx context.Context, id string, update models.ProfileUpdate) (models.Profile, error)
}

type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseLoading       Phase = "loading"
	PhaseAuthenticated Phase = "authenticated"
	PhaseAnonymous     Phase = "anonymous"
)

// State is a snapshot of what the manager exposes to its consumers.
type State struct {
	Phase   Phase
	Profile *models.Profile
	Loading bool
}
