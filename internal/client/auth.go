package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"autocare/internal/models"
	"autocare/internal/session"
)

const subscriberBuffer = 16

var (
	ErrClientClosed    = errors.New("client closed")
	errNoSessionIssued = errors.New("server returned no session")
)

var _ session.Auth = (*AuthClient)(nil)

// AuthClient owns the current session. The session lives in memory only.
//
// Every change to it is published to subscribers registered through
// OnAuthStateChange. While signed in, the client also listens on the
// backend's event stream so sign-outs from other devices take effect here.
type AuthClient struct {
	client *Client
	log    zerolog.Logger

	mu        sync.Mutex
	session   *models.AuthSession
	gen       uint64
	subs      map[int]*subscription
	nextSub   int
	refresh   *time.Timer
	stopRelay context.CancelFunc
	closed    bool
}

func newAuthClient(c *Client) *AuthClient {
	return &AuthClient{
		client: c,
		log:    c.log.With().Str("component", "auth_client").Logger(),
		subs:   make(map[int]*subscription),
	}
}

type signUpRequest struct {
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Data     map[string]any `json:"data,omitempty"`
}

type passwordRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// SignUp creates an account. metadata is stored as the user's metadata.
func (a *AuthClient) SignUp(ctx context.Context, email, password string, metadata map[string]any) (models.AuthResponse, error) {
	var resp models.AuthResponse
	err := a.client.doRequest(ctx, http.MethodPost, "/auth/v1/signup", "", signUpRequest{
		Email:    email,
		Password: password,
		Data:     metadata,
	}, &resp)
	if err != nil {
		return models.AuthResponse{}, err
	}
	if resp.Session != nil {
		a.establish(resp.Session)
	}
	return resp, nil
}

func (a *AuthClient) SignInWithPassword(ctx context.Context, email, password string) (models.AuthResponse, error) {
	var resp models.AuthResponse
	err := a.client.doRequest(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "", passwordRequest{
		Email:    email,
		Password: password,
	}, &resp)
	if err != nil {
		return models.AuthResponse{}, err
	}
	if resp.Session == nil {
		return models.AuthResponse{}, errNoSessionIssued
	}
	a.establish(resp.Session)
	return resp, nil
}

// SignOut ends the session on every device.
func (a *AuthClient) SignOut(ctx context.Context) error {
	return a.SignOutScope(ctx, models.SignOutGlobal)
}

// SignOutScope ends the session remotely, then locally. A session the
// backend no longer knows is still cleared locally.
func (a *AuthClient) SignOutScope(ctx context.Context, scope models.SignOutScope) error {
	a.mu.Lock()
	sess := a.session
	gen := a.gen
	a.mu.Unlock()

	if sess != nil {
		err := a.client.doRequest(ctx, http.MethodPost, "/auth/v1/logout?scope="+string(scope), sess.AccessToken, nil, nil)
		if err != nil {
			apiErr, ok := AsError(err)
			if !ok || !(apiErr.IsUnauthorized() || apiErr.IsForbidden() || apiErr.IsNotFound()) {
				return fmt.Errorf("sign out: %w", err)
			}
		}
	}

	a.mu.Lock()
	if a.gen != gen {
		// The event stream got there first.
		a.mu.Unlock()
		return nil
	}
	a.stopLocked()
	a.session = nil
	a.gen++
	a.mu.Unlock()

	a.emit(models.AuthEvent{Event: models.EventSignedOut})
	return nil
}

// GetSession returns the current session, refreshing it first if the
// access token has expired. It returns nil without error when signed out.
func (a *AuthClient) GetSession(ctx context.Context) (*models.AuthSession, error) {
	a.mu.Lock()
	var sess *models.AuthSession
	if a.session != nil {
		s := *a.session
		sess = &s
	}
	a.mu.Unlock()

	if sess == nil {
		return nil, nil
	}
	if sess.ExpiresAt != 0 && !time.Now().Before(sess.Expiry()) {
		return a.RefreshSession(ctx)
	}
	return sess, nil
}

// RefreshSession trades the refresh token for a new session.
func (a *AuthClient) RefreshSession(ctx context.Context) (*models.AuthSession, error) {
	a.mu.Lock()
	sess := a.session
	gen := a.gen
	a.mu.Unlock()
	if sess == nil {
		return nil, ErrNoSession
	}

	var resp models.AuthResponse
	err := a.client.doRequest(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "", refreshRequest{
		RefreshToken: sess.RefreshToken,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("refresh session: %w", err)
	}
	if resp.Session == nil {
		return nil, errNoSessionIssued
	}

	refreshed, ok := a.replace(gen, resp.Session)
	if !ok {
		return nil, ErrNoSession
	}
	return refreshed, nil
}

func (a *AuthClient) GetUser(ctx context.Context) (*models.AuthUser, error) {
	token := a.accessToken()
	if token == "" {
		return nil, ErrNoSession
	}
	var user models.AuthUser
	if err := a.client.doRequest(ctx, http.MethodGet, "/auth/v1/user", token, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Sessions lists the devices signed in to the current account.
func (a *AuthClient) Sessions(ctx context.Context) ([]models.DeviceSession, error) {
	token := a.accessToken()
	if token == "" {
		return nil, ErrNoSession
	}
	var out []models.DeviceSession
	if err := a.client.doRequest(ctx, http.MethodGet, "/auth/v1/sessions", token, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// OnAuthStateChange registers for session-change events. The first event is
// always INITIAL_SESSION carrying the current session.
func (a *AuthClient) OnAuthStateChange(ctx context.Context) (session.Subscription, error) {
	sub := &subscription{
		events: make(chan models.AuthEvent, subscriberBuffer),
		done:   make(chan struct{}),
		owner:  a,
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrClientClosed
	}
	sub.id = a.nextSub
	a.nextSub++
	a.subs[sub.id] = sub
	sub.events <- models.AuthEvent{Event: models.EventInitialSession, Session: a.snapshotLocked()}

	return sub, nil
}

// Close stops the refresh timer and the event stream and drops every
// subscriber. The session itself is kept.
func (a *AuthClient) Close() {
	a.mu.Lock()
	a.closed = true
	a.stopLocked()
	subs := make([]*subscription, 0, len(a.subs))
	for _, s := range a.subs {
		subs = append(subs, s)
	}
	a.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
}

func (a *AuthClient) accessToken() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return ""
	}
	return a.session.AccessToken
}

// establish installs a freshly issued session and announces SIGNED_IN.
func (a *AuthClient) establish(issued *models.AuthSession) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.stopLocked()
	a.gen++
	s := *issued
	a.session = &s
	a.scheduleRefreshLocked(a.gen)
	a.startRelayLocked(a.gen)
	snapshot := a.snapshotLocked()
	a.mu.Unlock()

	a.emit(models.AuthEvent{Event: models.EventSignedIn, Session: snapshot})
}

// replace swaps in a refreshed session, unless the session it was refreshed
// from has ended in the meantime.
func (a *AuthClient) replace(gen uint64, refreshed *models.AuthSession) (*models.AuthSession, bool) {
	a.mu.Lock()
	if a.gen != gen || a.session == nil {
		a.mu.Unlock()
		return nil, false
	}
	s := *refreshed
	a.session = &s
	a.scheduleRefreshLocked(gen)
	snapshot := a.snapshotLocked()
	a.mu.Unlock()

	a.emit(models.AuthEvent{Event: models.EventTokenRefreshed, Session: snapshot})
	return a.copyOf(snapshot), true
}

// clearSession ends session gen locally and announces SIGNED_OUT. It does
// nothing if gen is no longer current.
func (a *AuthClient) clearSession(gen uint64) bool {
	a.mu.Lock()
	if a.gen != gen || a.session == nil {
		a.mu.Unlock()
		return false
	}
	a.stopLocked()
	a.session = nil
	a.gen++
	a.mu.Unlock()

	a.emit(models.AuthEvent{Event: models.EventSignedOut})
	return true
}

func (a *AuthClient) scheduleRefreshLocked(gen uint64) {
	if a.refresh != nil {
		a.refresh.Stop()
		a.refresh = nil
	}
	if a.session == nil || a.session.ExpiresAt == 0 {
		return
	}

	remaining := time.Until(a.session.Expiry())
	delay := remaining - a.client.refreshMargin
	if delay <= 0 {
		delay = remaining / 2
	}
	if delay < 0 {
		delay = 0
	}
	a.refresh = time.AfterFunc(delay, func() { a.autoRefresh(gen) })
}

func (a *AuthClient) autoRefresh(gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()

	a.mu.Lock()
	current := a.gen == gen && a.session != nil
	a.mu.Unlock()
	if !current {
		return
	}

	if _, err := a.RefreshSession(ctx); err != nil {
		a.log.Warn().Err(err).Msg("session refresh failed, signing out")
		a.clearSession(gen)
	}
}

func (a *AuthClient) stopLocked() {
	if a.refresh != nil {
		a.refresh.Stop()
		a.refresh = nil
	}
	if a.stopRelay != nil {
		a.stopRelay()
		a.stopRelay = nil
	}
}

func (a *AuthClient) snapshotLocked() *models.AuthSession {
	if a.session == nil {
		return nil
	}
	s := *a.session
	return &s
}

func (a *AuthClient) copyOf(s *models.AuthSession) *models.AuthSession {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func (a *AuthClient) emit(ev models.AuthEvent) {
	a.mu.Lock()
	subs := make([]*subscription, 0, len(a.subs))
	for _, s := range a.subs {
		subs = append(subs, s)
	}
	a.mu.Unlock()

	a.log.Debug().Str("event", string(ev.Event)).Int("subscribers", len(subs)).Msg("auth state change")
	for _, s := range subs {
		s.deliver(ev)
	}
}

func (a *AuthClient) remove(id int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.subs, id)
}

type subscription struct {
	id     int
	events chan models.AuthEvent
	done   chan struct{}
	once   sync.Once
	owner  *AuthClient
}

func (s *subscription) Events() <-chan models.AuthEvent {
	return s.events
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.owner.remove(s.id)
		close(s.done)
	})
}

func (s *subscription) deliver(ev models.AuthEvent) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}
