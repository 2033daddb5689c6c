package models

import "time"

// AuthUser is the public view of an auth identity.
type AuthUser struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	Role         string         `json:"role"`
	UserMetadata map[string]any `json:"user_metadata"`
	CreatedAt    time.Time      `json:"created_at"`
}

// MetadataString returns a string value from the user metadata, or "".
func (u AuthUser) MetadataString(key string) string {
	if u.UserMetadata == nil {
		return ""
	}
	s, _ := u.UserMetadata[key].(string)
	return s
}

// AuthSession is the credential handed to clients. Clients treat the tokens as opaque.
type AuthSession struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int64    `json:"expires_in"`
	ExpiresAt    int64    `json:"expires_at"`
	DeviceID     string   `json:"device_id"`
	User         AuthUser `json:"user"`
}

func (s AuthSession) Expiry() time.Time {
	return time.Unix(s.ExpiresAt, 0)
}

type AuthResponse struct {
	User    *AuthUser    `json:"user"`
	Session *AuthSession `json:"session"`
}

type AuthEventType string

const (
	EventInitialSession AuthEventType = "INITIAL_SESSION"
	EventSignedIn       AuthEventType = "SIGNED_IN"
	EventSignedOut      AuthEventType = "SIGNED_OUT"
	EventTokenRefreshed AuthEventType = "TOKEN_REFRESHED"
	EventUserUpdated    AuthEventType = "USER_UPDATED"
)

// AuthEvent is a session-change notification as seen by a client.
// Session is nil when no session is active.
type AuthEvent struct {
	Event   AuthEventType
	Session *AuthSession
}

type SignOutScope string

const (
	SignOutGlobal SignOutScope = "global"
	SignOutLocal  SignOutScope = "local"
)

// AuthEventMessage is the server-side form of a session-change event,
// published on the event bus and relayed over the events websocket.
type AuthEventMessage struct {
	Event     AuthEventType `json:"event"`
	UserID    string        `json:"user_id"`
	SessionID string        `json:"session_id,omitempty"`
	Scope     SignOutScope  `json:"scope,omitempty"`
	At        time.Time     `json:"at"`
}

// DeviceSession is the public view of one signed-in device.
type DeviceSession struct {
	ID         string    `json:"id"`
	DeviceID   string    `json:"device_id"`
	DeviceName string    `json:"device_name"`
	IPAddress  string    `json:"ip_address"`
	UserAgent  string    `json:"user_agent"`
	Current    bool      `json:"current"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}
