package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"autocare/internal/config"
	"autocare/internal/events"
	"autocare/internal/ids"
	"autocare/internal/metrics"
	"autocare/internal/models"
	"autocare/internal/repository"
	"autocare/internal/security"
)

const minPasswordLength = 6

var (
	ErrInvalidCredentials  = errors.New("invalid login credentials")
	ErrUserSuspended       = errors.New("user suspended")
	ErrTooManyAttempts     = errors.New("too many login attempts")
	ErrInvalidEmail        = errors.New("invalid email address")
	ErrWeakPassword        = errors.New("password should be at least 6 characters")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrInvalidScope        = errors.New("invalid sign-out scope")
	ErrSessionRevoked      = errors.New("session revoked")
)

type UserStore interface {
	Create(ctx context.Context, user models.User) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
}

type SessionStore interface {
	Create(ctx context.Context, session models.Session) error
	Rotate(ctx context.Context, id string, oldHash, newHash []byte, expiresAt time.Time) error
	CountByUser(ctx context.Context, userID string) (int, error)
	DeleteOldestSessions(ctx context.Context, userID string, keepLatest int) error
	GetByID(ctx context.Context, id string) (models.Session, error)
	FindByRefreshHash(ctx context.Context, refreshHash []byte) (models.Session, error)
	ListByUser(ctx context.Context, userID string) ([]models.Session, error)
	DeleteByID(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID string) (int64, error)
	Touch(ctx context.Context, sessionID string, ip string, userAgent string) error
}

// LoginLimiter throttles password attempts per key.
type LoginLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Reset(ctx context.Context, key string) error
}

type AuthService struct {
	users    UserStore
	sessions SessionStore
	limiter  LoginLimiter
	events   events.Publisher
	cfg      config.SecurityConfig
	log      zerolog.Logger
}

func NewAuthService(
	users UserStore,
	sessions SessionStore,
	limiter LoginLimiter,
	publisher events.Publisher,
	cfg config.SecurityConfig,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		limiter:  limiter,
		events:   publisher,
		cfg:      cfg,
		log:      log.With().Str("component", "auth_service").Logger(),
	}
}

// AuthResult is a freshly issued session.
type AuthResult struct {
	User         models.User
	Session      models.Session
	AccessToken  security.AccessToken
	RefreshToken string
}

// Response renders the result the way clients receive it.
func (r AuthResult) Response() models.AuthResponse {
	user := PublicUser(r.User)
	expiresIn := int64(time.Until(r.AccessToken.ExpiresAt).Round(time.Second).Seconds())
	return models.AuthResponse{
		User: &user,
		Session: &models.AuthSession{
			AccessToken:  r.AccessToken.Token,
			RefreshToken: r.RefreshToken,
			TokenType:    "bearer",
			ExpiresIn:    expiresIn,
			ExpiresAt:    r.AccessToken.ExpiresAt.Unix(),
			DeviceID:     r.Session.DeviceID,
			User:         user,
		},
	}
}

func PublicUser(u models.User) models.AuthUser {
	metadata := u.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return models.AuthUser{
		ID:           u.ID,
		Email:        u.Email,
		Role:         string(u.Role),
		UserMetadata: metadata,
		CreatedAt:    u.CreatedAt,
	}
}

// Device describes where a sign-in comes from.
type Device struct {
	ID        string
	Name      string
	IPAddress string
	UserAgent string
}

type SignUpInput struct {
	Email    string
	Password string
	Metadata map[string]any
	Device   Device
}

// SignUp creates an identity and signs it in.
func (s *AuthService) SignUp(ctx context.Context, input SignUpInput) (AuthResult, error) {
	email := normalizeEmail(input.Email)
	if !validEmail(email) {
		return AuthResult{}, ErrInvalidEmail
	}
	if len(input.Password) < minPasswordLength {
		return AuthResult{}, ErrWeakPassword
	}

	passwordHash, err := security.HashPassword(input.Password)
	if err != nil {
		return AuthResult{}, err
	}

	user, err := s.users.Create(ctx, models.User{
		ID:           ids.NewUserID(),
		Email:        email,
		PasswordHash: passwordHash,
		Metadata:     input.Metadata,
		Role:         models.UserRoleUser,
		Status:       models.UserStatusActive,
	})
	if err != nil {
		return AuthResult{}, err
	}
	s.log.Info().Str("user_id", user.ID).Msg("user signed up")

	return s.createSession(ctx, user, input.Device)
}

type PasswordInput struct {
	Email    string
	Password string
	Device   Device
}

func (s *AuthService) SignInWithPassword(ctx context.Context, input PasswordInput) (AuthResult, error) {
	email := normalizeEmail(input.Email)

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, email)
		if err != nil {
			s.log.Warn().Err(err).Msg("login limiter unavailable")
		} else if !allowed {
			return AuthResult{}, ErrTooManyAttempts
		}
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, err
	}

	ok, err := security.VerifyPassword(input.Password, user.PasswordHash)
	if err != nil || !ok {
		return AuthResult{}, ErrInvalidCredentials
	}
	if user.Status != models.UserStatusActive {
		return AuthResult{}, ErrUserSuspended
	}

	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, email); err != nil {
			s.log.Warn().Err(err).Msg("reset login limiter failed")
		}
	}

	return s.createSession(ctx, user, input.Device)
}

func (s *AuthService) createSession(ctx context.Context, user models.User, device Device) (AuthResult, error) {
	if device.ID == "" {
		device.ID = ids.New()
	}
	if device.Name == "" {
		device.Name = "Unknown Device"
	}

	refreshToken, refreshHash, err := security.GenerateRefreshToken(64)
	if err != nil {
		return AuthResult{}, err
	}

	session := models.Session{
		ID:               ids.New(),
		UserID:           user.ID,
		DeviceID:         device.ID,
		DeviceName:       device.Name,
		RefreshTokenHash: refreshHash,
		IPAddress:        device.IPAddress,
		UserAgent:        device.UserAgent,
		ExpiresAt:        time.Now().Add(s.cfg.JWTRefreshTTL),
	}

	access, err := security.GenerateAccessToken(
		s.cfg.JWTAccessSecret,
		user.ID,
		session.ID,
		session.DeviceID,
		string(user.Role),
		s.cfg.JWTAccessTTL,
	)
	if err != nil {
		return AuthResult{}, err
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return AuthResult{}, fmt.Errorf("store session: %w", err)
	}

	if err := s.enforceSessionLimit(ctx, user.ID); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("enforce session limit failed")
	}

	s.publish(ctx, models.AuthEventMessage{Event: models.EventSignedIn, UserID: user.ID, SessionID: session.ID})

	return AuthResult{
		User:         user,
		Session:      session,
		AccessToken:  access,
		RefreshToken: refreshToken,
	}, nil
}

func (s *AuthService) enforceSessionLimit(ctx context.Context, userID string) error {
	if s.cfg.MaxSessions <= 0 {
		return nil
	}
	count, err := s.sessions.CountByUser(ctx, userID)
	if err != nil {
		return err
	}
	if count <= s.cfg.MaxSessions {
		return nil
	}

	return s.sessions.DeleteOldestSessions(ctx, userID, s.cfg.MaxSessions)
}

// Refresh rotates the refresh token of a session and issues a new access
// token. Each refresh token can be used once.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (AuthResult, error) {
	if refreshToken == "" {
		return AuthResult{}, ErrInvalidRefreshToken
	}
	oldHash := security.HashRefreshToken(refreshToken)

	session, err := s.sessions.FindByRefreshHash(ctx, oldHash)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return AuthResult{}, ErrInvalidRefreshToken
		}
		return AuthResult{}, err
	}

	if session.ExpiresAt.Before(time.Now()) {
		if err := s.sessions.DeleteByID(ctx, session.ID); err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
			s.log.Warn().Err(err).Str("session_id", session.ID).Msg("delete expired session failed")
		}
		return AuthResult{}, ErrInvalidRefreshToken
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		return AuthResult{}, err
	}
	if user.Status != models.UserStatusActive {
		return AuthResult{}, ErrUserSuspended
	}

	newToken, newHash, err := security.GenerateRefreshToken(64)
	if err != nil {
		return AuthResult{}, err
	}
	session.RefreshTokenHash = newHash
	session.ExpiresAt = time.Now().Add(s.cfg.JWTRefreshTTL)

	if err := s.sessions.Rotate(ctx, session.ID, oldHash, newHash, session.ExpiresAt); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return AuthResult{}, ErrInvalidRefreshToken
		}
		return AuthResult{}, err
	}

	access, err := security.GenerateAccessToken(
		s.cfg.JWTAccessSecret,
		user.ID,
		session.ID,
		session.DeviceID,
		string(user.Role),
		s.cfg.JWTAccessTTL,
	)
	if err != nil {
		return AuthResult{}, err
	}

	s.publish(ctx, models.AuthEventMessage{Event: models.EventTokenRefreshed, UserID: user.ID, SessionID: session.ID})

	return AuthResult{
		User:         user,
		Session:      session,
		AccessToken:  access,
		RefreshToken: newToken,
	}, nil
}

// ParseScope maps the logout scope parameter. Empty means global.
func ParseScope(raw string) (models.SignOutScope, error) {
	switch models.SignOutScope(strings.ToLower(raw)) {
	case "", models.SignOutGlobal:
		return models.SignOutGlobal, nil
	case models.SignOutLocal:
		return models.SignOutLocal, nil
	}
	return "", ErrInvalidScope
}

// Logout ends the caller's session, or every session of the user for the
// global scope.
func (s *AuthService) Logout(ctx context.Context, principal Principal, scope models.SignOutScope) error {
	userID := principal.User.ID
	sessionID := principal.Claims.SessionID

	switch scope {
	case models.SignOutGlobal:
		if _, err := s.sessions.DeleteByUser(ctx, userID); err != nil {
			return err
		}
	case models.SignOutLocal:
		if err := s.sessions.DeleteByID(ctx, sessionID); err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
			return err
		}
	default:
		return ErrInvalidScope
	}

	s.publish(ctx, models.AuthEventMessage{
		Event:     models.EventSignedOut,
		UserID:    userID,
		SessionID: sessionID,
		Scope:     scope,
	})
	return nil
}

// Principal is an authenticated caller.
type Principal struct {
	User   models.User
	Claims security.AccessClaims
	Token  string
}

// Authenticate checks an access token and the session behind it.
func (s *AuthService) Authenticate(ctx context.Context, token, ip, userAgent string) (Principal, error) {
	claims, err := security.ParseAccessToken(token, s.cfg.JWTAccessSecret)
	if err != nil {
		return Principal{}, err
	}

	session, err := s.sessions.GetByID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return Principal{}, ErrSessionRevoked
		}
		return Principal{}, err
	}
	if session.UserID != claims.UserID || session.DeviceID != claims.DeviceID {
		return Principal{}, ErrSessionRevoked
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return Principal{}, err
	}
	if user.Status != models.UserStatusActive {
		return Principal{}, ErrUserSuspended
	}

	if err := s.sessions.Touch(ctx, session.ID, ip, userAgent); err != nil {
		s.log.Debug().Err(err).Str("session_id", session.ID).Msg("touch session failed")
	}

	return Principal{User: user, Claims: *claims, Token: token}, nil
}

func (s *AuthService) Sessions(ctx context.Context, principal Principal) ([]models.DeviceSession, error) {
	sessions, err := s.sessions.ListByUser(ctx, principal.User.ID)
	if err != nil {
		return nil, err
	}

	out := make([]models.DeviceSession, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, models.DeviceSession{
			ID:         session.ID,
			DeviceID:   session.DeviceID,
			DeviceName: session.DeviceName,
			IPAddress:  session.IPAddress,
			UserAgent:  session.UserAgent,
			Current:    session.ID == principal.Claims.SessionID,
			CreatedAt:  session.CreatedAt,
			LastSeenAt: session.LastSeenAt,
			ExpiresAt:  session.ExpiresAt,
		})
	}
	return out, nil
}

func (s *AuthService) publish(ctx context.Context, msg models.AuthEventMessage) {
	metrics.AuthEvent(msg.Event)
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, msg); err != nil {
		s.log.Error().Err(err).Str("event", string(msg.Event)).Str("user_id", msg.UserID).Msg("publish auth event failed")
	}
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func validEmail(email string) bool {
	at := strings.Index(email, "@")
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t")
}
