package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"autocare/internal/models"
)

const (
	eventsPath      = "/auth/v1/events"
	relayMinBackoff = time.Second
	relayMaxBackoff = 30 * time.Second
)

func (a *AuthClient) startRelayLocked(gen uint64) {
	ctx, cancel := context.WithCancel(context.Background())
	a.stopRelay = cancel
	go a.runRelay(ctx, gen)
}

// runRelay keeps the event stream for session gen open until it is stopped.
func (a *AuthClient) runRelay(ctx context.Context, gen uint64) {
	backoff := relayMinBackoff
	for {
		connected, err := a.relayOnce(ctx, gen)
		if ctx.Err() != nil {
			return
		}
		if connected {
			backoff = relayMinBackoff
		}
		a.log.Warn().Err(err).Dur("retry_in", backoff).Msg("auth event stream interrupted")

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		backoff = min(backoff*2, relayMaxBackoff)
	}
}

func (a *AuthClient) relayOnce(ctx context.Context, gen uint64) (bool, error) {
	token := a.tokenFor(gen)
	if token == "" {
		return false, ErrNoSession
	}
	target, err := eventsURL(a.client.baseURL)
	if err != nil {
		return false, err
	}

	header := http.Header{}
	header.Set(headerAPIKey, a.client.apiKey)
	header.Set(headerAuthorization, "Bearer "+token)
	header.Set(headerUserAgent, sdkUserAgent)

	conn, _, err := a.client.dialer.DialContext(ctx, target, header)
	if err != nil {
		return false, fmt.Errorf("dial events: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	a.log.Debug().Msg("auth event stream connected")
	for {
		var msg models.AuthEventMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return true, fmt.Errorf("read event: %w", err)
		}
		a.handleRemote(gen, msg)
	}
}

func (a *AuthClient) handleRemote(gen uint64, msg models.AuthEventMessage) {
	switch msg.Event {
	case models.EventSignedOut:
		if a.clearSession(gen) {
			a.log.Info().Str("scope", string(msg.Scope)).Msg("session ended remotely")
		}
	case models.EventUserUpdated:
		a.mu.Lock()
		if a.gen != gen || a.session == nil {
			a.mu.Unlock()
			return
		}
		snapshot := a.snapshotLocked()
		a.mu.Unlock()
		a.emit(models.AuthEvent{Event: models.EventUserUpdated, Session: snapshot})
	default:
		// SIGNED_IN and TOKEN_REFRESHED for this session were already emitted locally.
		a.log.Debug().Str("event", string(msg.Event)).Msg("remote auth event ignored")
	}
}

func (a *AuthClient) tokenFor(gen uint64) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.gen != gen || a.session == nil {
		return ""
	}
	return a.session.AccessToken
}

func eventsURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + eventsPath
	return u.String(), nil
}
