package handlers

import (
	"bytes"
	"context"
	"sync"
	"time"

	"autocare/internal/events"
	"autocare/internal/models"
	"autocare/internal/repository"
)

type memUsers struct {
	mu   sync.Mutex
	byID map[string]models.User
}

func (m *memUsers) Create(_ context.Context, user models.User) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == user.Email {
			return models.User{}, repository.ErrEmailTaken
		}
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	m.byID[user.ID] = user
	return user, nil
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (m *memUsers) GetByID(_ context.Context, id string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return u, nil
}

type memSessions struct {
	mu   sync.Mutex
	byID map[string]models.Session
}

func (m *memSessions) Create(_ context.Context, s models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, old := range m.byID {
		if old.UserID == s.UserID && old.DeviceID == s.DeviceID {
			delete(m.byID, id)
		}
	}
	s.CreatedAt = time.Now()
	s.LastSeenAt = s.CreatedAt
	m.byID[s.ID] = s
	return nil
}

func (m *memSessions) Rotate(_ context.Context, id string, oldHash, newHash []byte, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok || !bytes.Equal(s.RefreshTokenHash, oldHash) {
		return repository.ErrSessionNotFound
	}
	s.RefreshTokenHash = newHash
	s.ExpiresAt = expiresAt
	m.byID[id] = s
	return nil
}

func (m *memSessions) CountByUser(_ context.Context, userID string) (int, error) {
	return len(m.forUser(userID)), nil
}

func (m *memSessions) DeleteOldestSessions(context.Context, string, int) error { return nil }

func (m *memSessions) GetByID(_ context.Context, id string) (models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return models.Session{}, repository.ErrSessionNotFound
	}
	return s, nil
}

func (m *memSessions) FindByRefreshHash(_ context.Context, hash []byte) (models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.byID {
		if bytes.Equal(s.RefreshTokenHash, hash) {
			return s, nil
		}
	}
	return models.Session{}, repository.ErrSessionNotFound
}

func (m *memSessions) ListByUser(_ context.Context, userID string) ([]models.Session, error) {
	return m.forUser(userID), nil
}

func (m *memSessions) DeleteByID(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return repository.ErrSessionNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *memSessions) DeleteByUser(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.byID {
		if s.UserID == userID {
			delete(m.byID, id)
			n++
		}
	}
	return n, nil
}

func (m *memSessions) Touch(context.Context, string, string, string) error { return nil }

func (m *memSessions) forUser(userID string) []models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Session
	for _, s := range m.byID {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out
}

type memProfiles struct {
	mu   sync.Mutex
	byID map[string]models.Profile
}

func (m *memProfiles) Get(_ context.Context, id string) (models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return models.Profile{}, repository.ErrProfileNotFound
	}
	return p, nil
}

func (m *memProfiles) Insert(_ context.Context, p models.Profile) (models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[p.ID]; ok {
		return models.Profile{}, repository.ErrProfileExists
	}
	m.byID[p.ID] = p
	return p, nil
}

func (m *memProfiles) Update(_ context.Context, id string, u models.ProfileUpdate) (models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return models.Profile{}, repository.ErrProfileNotFound
	}
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Phone != nil {
		p.Phone = u.Phone
	}
	if u.Bio != nil {
		p.Bio = u.Bio
	}
	m.byID[id] = p
	return p, nil
}

// hub is an in-process event bus.
type hub struct {
	mu   sync.Mutex
	subs map[string]map[*hubStream]struct{}
}

func newHub() *hub {
	return &hub{subs: map[string]map[*hubStream]struct{}{}}
}

func (h *hub) Publish(_ context.Context, msg models.AuthEventMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs[msg.UserID] {
		select {
		case s.ch <- msg:
		default:
		}
	}
	return nil
}

func (h *hub) Subscribe(_ context.Context, userID string) (events.Stream, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := &hubStream{hub: h, userID: userID, ch: make(chan models.AuthEventMessage, 16)}
	if h.subs[userID] == nil {
		h.subs[userID] = map[*hubStream]struct{}{}
	}
	h.subs[userID][s] = struct{}{}
	return s, nil
}

func (h *hub) subscribers(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[userID])
}

type hubStream struct {
	hub    *hub
	userID string
	ch     chan models.AuthEventMessage
	once   sync.Once
}

func (s *hubStream) Messages() <-chan models.AuthEventMessage { return s.ch }

func (s *hubStream) Close() error {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs[s.userID], s)
		s.hub.mu.Unlock()
	})
	return nil
}
