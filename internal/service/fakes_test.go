package service

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"autocare/internal/models"
	"autocare/internal/repository"
)

type memUsers struct {
	mu   sync.Mutex
	byID map[string]models.User
}

func newMemUsers() *memUsers {
	return &memUsers{byID: map[string]models.User{}}
}

func (m *memUsers) Create(ctx context.Context, user models.User) (models.User, error) {
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

func (m *memUsers) FindByEmail(ctx context.Context, email string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (m *memUsers) GetByID(ctx context.Context, id string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return u, nil
}

func (m *memUsers) setStatus(id string, status models.UserStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.byID[id]
	u.Status = status
	m.byID[id] = u
}

type memSessions struct {
	mu      sync.Mutex
	byID    map[string]models.Session
	clock   time.Time
	touched []string
}

func newMemSessions() *memSessions {
	return &memSessions{byID: map[string]models.Session{}, clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (m *memSessions) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *memSessions) Create(ctx context.Context, session models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.byID {
		if s.UserID == session.UserID && s.DeviceID == session.DeviceID {
			delete(m.byID, id)
		}
	}
	session.CreatedAt = m.tick()
	session.LastSeenAt = session.CreatedAt
	m.byID[session.ID] = session
	return nil
}

func (m *memSessions) Rotate(ctx context.Context, id string, oldHash, newHash []byte, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok || !bytes.Equal(s.RefreshTokenHash, oldHash) {
		return repository.ErrSessionNotFound
	}
	s.RefreshTokenHash = newHash
	s.ExpiresAt = expiresAt
	s.LastSeenAt = m.tick()
	m.byID[id] = s
	return nil
}

func (m *memSessions) CountByUser(ctx context.Context, userID string) (int, error) {
	return len(m.forUser(userID)), nil
}

func (m *memSessions) DeleteOldestSessions(ctx context.Context, userID string, keepLatest int) error {
	list := m.forUser(userID)
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := keepLatest; i < len(list); i++ {
		delete(m.byID, list[i].ID)
	}
	return nil
}

func (m *memSessions) GetByID(ctx context.Context, id string) (models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return models.Session{}, repository.ErrSessionNotFound
	}
	return s, nil
}

func (m *memSessions) FindByRefreshHash(ctx context.Context, refreshHash []byte) (models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.byID {
		if bytes.Equal(s.RefreshTokenHash, refreshHash) {
			return s, nil
		}
	}
	return models.Session{}, repository.ErrSessionNotFound
}

func (m *memSessions) ListByUser(ctx context.Context, userID string) ([]models.Session, error) {
	return m.forUser(userID), nil
}

func (m *memSessions) DeleteByID(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return repository.ErrSessionNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *memSessions) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	list := m.forUser(userID)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range list {
		delete(m.byID, s.ID)
	}
	return int64(len(list)), nil
}

func (m *memSessions) Touch(ctx context.Context, sessionID string, ip string, userAgent string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched = append(m.touched, sessionID)
	return nil
}

// forUser returns the user's sessions, most recently seen first.
func (m *memSessions) forUser(userID string) []models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Session
	for _, s := range m.byID {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeenAt.After(out[j].LastSeenAt) })
	return out
}

func (m *memSessions) expire(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.byID[id]
	s.ExpiresAt = time.Now().Add(-time.Minute)
	m.byID[id] = s
}

type countingLimiter struct {
	max    int
	counts map[string]int
	resets int
}

func (l *countingLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.counts == nil {
		l.counts = map[string]int{}
	}
	l.counts[key]++
	return l.counts[key] <= l.max, nil
}

func (l *countingLimiter) Reset(ctx context.Context, key string) error {
	delete(l.counts, key)
	l.resets++
	return nil
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []models.AuthEventMessage
}

func (p *recordingPublisher) Publish(ctx context.Context, msg models.AuthEventMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *recordingPublisher) events() []models.AuthEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.AuthEventType, 0, len(p.msgs))
	for _, m := range p.msgs {
		out = append(out, m.Event)
	}
	return out
}

func (p *recordingPublisher) last() models.AuthEventMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.msgs[len(p.msgs)-1]
}

type memProfiles struct {
	rows map[string]models.Profile
}

func (m *memProfiles) Get(ctx context.Context, id string) (models.Profile, error) {
	p, ok := m.rows[id]
	if !ok {
		return models.Profile{}, repository.ErrProfileNotFound
	}
	return p, nil
}

func (m *memProfiles) Insert(ctx context.Context, p models.Profile) (models.Profile, error) {
	if _, ok := m.rows[p.ID]; ok {
		return models.Profile{}, repository.ErrProfileExists
	}
	m.rows[p.ID] = p
	return p, nil
}

func (m *memProfiles) Update(ctx context.Context, id string, u models.ProfileUpdate) (models.Profile, error) {
	p, ok := m.rows[id]
	if !ok {
		return models.Profile{}, repository.ErrProfileNotFound
	}
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Bio != nil {
		p.Bio = u.Bio
	}
	if u.Phone != nil {
		p.Phone = u.Phone
	}
	m.rows[id] = p
	return p, nil
}

type memVehicles struct {
	rows []models.Vehicle
}

func (m *memVehicles) ListByOwner(ctx context.Context, ownerID string) ([]models.Vehicle, error) {
	var out []models.Vehicle
	for _, v := range m.rows {
		if v.OwnerID == ownerID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *memVehicles) Create(ctx context.Context, ownerID string, in models.VehicleInput) (models.Vehicle, error) {
	v := models.Vehicle{
		ID:       int64(len(m.rows) + 1),
		OwnerID:  ownerID,
		Make:     in.Make,
		Brand:    in.Brand,
		Model:    in.Model,
		Year:     in.Year,
		Odometer: in.Odometer,
		Km:       in.Km,
	}
	m.rows = append(m.rows, v)
	return v, nil
}

func (m *memVehicles) OwnedBy(ctx context.Context, id int64, ownerID string) (bool, error) {
	for _, v := range m.rows {
		if v.ID == id && v.OwnerID == ownerID {
			return true, nil
		}
	}
	return false, nil
}

type memAppointments struct {
	got []models.AppointmentInput
}

func (m *memAppointments) ListByUser(ctx context.Context, userID string) ([]models.Appointment, error) {
	return nil, nil
}

func (m *memAppointments) Create(ctx context.Context, userID string, in models.AppointmentInput) (models.Appointment, error) {
	m.got = append(m.got, in)
	return models.Appointment{
		ID:            int64(len(m.got)),
		UserID:        userID,
		VehicleID:     in.VehicleID,
		ServiceID:     in.ServiceID,
		ScheduledFrom: in.ScheduledFrom,
		ScheduledTo:   in.ScheduledTo,
		Notes:         in.Notes,
		Status:        models.AppointmentPending,
	}, nil
}

type memExpenses struct {
	got []models.ExpenseInput
}

func (m *memExpenses) ListByUser(ctx context.Context, userID string) ([]models.Expense, error) {
	return nil, nil
}

func (m *memExpenses) Create(ctx context.Context, userID string, in models.ExpenseInput) (models.Expense, error) {
	m.got = append(m.got, in)
	return models.Expense{ID: int64(len(m.got)), UserID: userID, Amount: in.Amount, Description: in.Description}, nil
}

type memCatalog struct {
	rows     []models.Service
	upserted []models.Service
}

func (m *memCatalog) List(ctx context.Context) ([]models.Service, error) {
	return m.rows, nil
}

func (m *memCatalog) GetByID(ctx context.Context, id int64) (models.Service, error) {
	for _, s := range m.rows {
		if s.ID == id {
			return s, nil
		}
	}
	return models.Service{}, repository.ErrServiceNotFound
}

func (m *memCatalog) Upsert(ctx context.Context, services []models.Service) ([]models.Service, error) {
	m.upserted = append(m.upserted, services...)
	return services, nil
}

type memDiagnostics struct {
	rows map[string]models.Diagnostic
}

func (m *memDiagnostics) Create(ctx context.Context, d models.Diagnostic) (models.Diagnostic, error) {
	if m.rows == nil {
		m.rows = map[string]models.Diagnostic{}
	}
	m.rows[d.ID] = d
	return d, nil
}

func (m *memDiagnostics) GetByID(ctx context.Context, id string) (models.Diagnostic, error) {
	d, ok := m.rows[id]
	if !ok {
		return models.Diagnostic{}, repository.ErrDiagnosticNotFound
	}
	return d, nil
}

type memMedia struct {
	objects map[string][]byte
	types   map[string]string
}

func (m *memMedia) Put(ctx context.Context, key, contentType string, r io.Reader, size int64) (int64, error) {
	if m.objects == nil {
		m.objects = map[string][]byte{}
		m.types = map[string]string{}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	m.objects[key] = data
	m.types[key] = contentType
	return int64(len(data)), nil
}

type memQueue struct {
	tasks []map[string]any
	err   error
}

func (m *memQueue) Enqueue(ctx context.Context, values map[string]any) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.tasks = append(m.tasks, values)
	return "1-0", nil
}
