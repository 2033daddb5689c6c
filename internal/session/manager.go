package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"autocare/internal/models"
)

type opKind int

const (
	opLogin opKind = iota
	opRegister
	opLogout
	opUpdate
)

func (k opKind) String() string {
	switch k {
	case opLogin:
		return "login"
	case opRegister:
		return "register"
	case opLogout:
		return "logout"
	default:
		return "update_user"
	}
}

func (k opKind) showsLoading() bool {
	return k == opLogin || k == opLogout
}

// Manager owns the current user's profile.
//
// Every pass that resolves the profile (startup check, a notification, an
// explicit operation) takes a ticket when it starts and only commits if no
// newer pass committed first. Notifications that arrive while an explicit
// operation is running are held back until the operation settles. The
// listener goroutine is the only reader of the subscription; operations
// settle on it so that everything the auth client queued before the call
// returned is accounted for before the operation does.
type Manager struct {
	auth     Auth
	profiles Profiles
	log      zerolog.Logger

	mu          sync.Mutex
	profile     *models.Profile
	started     bool
	closed      bool
	initialized bool
	loadingOps  int
	ops         int
	established bool
	deferred    []models.AuthEvent
	cut         int
	listening   bool
	issued      uint64
	committed   uint64
	watchers    map[int]chan State
	nextWatcher int
	sub         Subscription

	calls   chan listenerCall
	stopped chan struct{}

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func New(auth Auth, profiles Profiles, log zerolog.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		auth:     auth,
		profiles: profiles,
		log:      log.With().Str("component", "session").Logger(),
		watchers: make(map[int]chan State),
		calls:    make(chan listenerCall),
		stopped:  make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to session changes and resolves the current session.
// It returns once the initial state is known; failures while resolving are
// logged and leave the manager anonymous.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()
	m.notify()

	sub, err := m.auth.OnAuthStateChange(ctx)
	if err != nil {
		m.mu.Lock()
		m.started = false
		m.mu.Unlock()
		return fmt.Errorf("subscribe to auth state: %w", err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		sub.Unsubscribe()
		return ErrClosed
	}
	m.sub = sub
	m.listening = true
	m.wg.Add(1)
	m.mu.Unlock()

	go m.listen(sub)

	m.initialize(ctx)
	return nil
}

// Close releases the subscription and closes every watch channel.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		sub := m.sub
		m.sub = nil
		m.mu.Unlock()

		m.cancel()
		if sub != nil {
			sub.Unsubscribe()
		}
		m.wg.Wait()

		m.mu.Lock()
		for id, ch := range m.watchers {
			close(ch)
			delete(m.watchers, id)
		}
		m.mu.Unlock()
	})
}

func (m *Manager) initialize(ctx context.Context) {
	m.mu.Lock()
	ticket := m.nextTicketLocked()
	m.mu.Unlock()

	var profile *models.Profile
	sess, err := m.auth.GetSession(ctx)
	if err != nil {
		m.log.Error().Err(err).Msg("get session failed")
	} else {
		profile = m.resolve(ctx, sess)
	}

	m.mu.Lock()
	m.commitLocked(ticket, profile)
	m.initialized = true
	m.mu.Unlock()
	m.notify()
}

type listenerCall struct {
	fn   func()
	done chan struct{}
}

func (m *Manager) listen(sub Subscription) {
	defer m.wg.Done()
	defer close(m.stopped)
	events := sub.Events()
	for {
		select {
		case <-m.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.handle(ev)
		case call := <-m.calls:
			m.drain(events)
			call.fn()
			close(call.done)
		}
	}
}

// drain handles every event already queued on the subscription.
func (m *Manager) drain(events <-chan models.AuthEvent) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.handle(ev)
		default:
			return
		}
	}
}

// settle runs fn on the listener after the events queued so far. Without a
// running listener fn runs inline.
func (m *Manager) settle(fn func()) {
	m.mu.Lock()
	listening := m.listening
	m.mu.Unlock()
	if !listening {
		fn()
		return
	}

	call := listenerCall{fn: fn, done: make(chan struct{})}
	select {
	case m.calls <- call:
		<-call.done
	case <-m.stopped:
		fn()
	}
}

func (m *Manager) handle(ev models.AuthEvent) {
	if ev.Event == models.EventInitialSession {
		// Start resolves the session itself after subscribing.
		m.log.Debug().Msg("initial session event skipped")
		return
	}

	m.mu.Lock()
	if m.ops > 0 {
		m.deferred = append(m.deferred, ev)
		m.mu.Unlock()
		m.log.Debug().Str("event", string(ev.Event)).Msg("auth event deferred")
		return
	}
	ticket := m.nextTicketLocked()
	m.mu.Unlock()

	m.log.Debug().Str("event", string(ev.Event)).Bool("session", ev.Session != nil).Msg("auth event")
	profile := m.resolve(m.ctx, ev.Session)

	m.mu.Lock()
	m.commitLocked(ticket, profile)
	m.initialized = true
	m.mu.Unlock()
	m.notify()
}

// resolve fetches the profile for an active session. A failed lookup is not
// distinguished from a missing profile.
func (m *Manager) resolve(ctx context.Context, sess *models.AuthSession) *models.Profile {
	if sess == nil || sess.User.ID == "" {
		return nil
	}
	profile, err := m.profiles.Get(ctx, sess.User.ID)
	if err != nil {
		m.log.Warn().Err(err).Str("user_id", sess.User.ID).Msg("profile lookup failed")
		return nil
	}
	return profile.Clone()
}

// Login signs in with email and password. It reports failure through the
// return value only.
func (m *Manager) Login(ctx context.Context, email, password string) bool {
	ticket := m.begin(opLogin)
	established := false
	mark := 0
	defer func() { m.end(opLogin, established, mark) }()

	resp, err := m.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		m.log.Error().Err(err).Msg("login failed")
		return false
	}
	if resp.User == nil || resp.User.ID == "" {
		m.log.Error().Msg("login returned no user")
		return false
	}
	mark = m.mark()

	user := *resp.User
	var profile *models.Profile
	row, err := m.profiles.Get(ctx, user.ID)
	if err != nil {
		m.log.Warn().Err(err).Str("user_id", user.ID).Msg("profile fetch failed, using account data")
		profile = accountProfile(user, email)
	} else {
		profile = row.Clone()
	}

	m.commit(ticket, profile)
	established = true
	return true
}

func accountProfile(user models.AuthUser, email string) *models.Profile {
	address := user.Email
	if address == "" {
		address = email
	}
	name := user.MetadataString("name")
	if name == "" {
		name = models.EmailLocalPart(address)
	}
	return &models.Profile{
		ID:    user.ID,
		Email: address,
		Name:  name,
	}
}

// Register creates the auth identity and its profile row. A failed profile
// insert leaves the identity in place without a profile.
func (m *Manager) Register(ctx context.Context, name, email, password string) error {
	ticket := m.begin(opRegister)
	established := false
	mark := 0
	defer func() { m.end(opRegister, established, mark) }()

	resp, err := m.auth.SignUp(ctx, email, password, map[string]any{"name": name})
	if err != nil {
		m.log.Error().Err(err).Msg("registration failed")
		return fmt.Errorf("sign up: %w", err)
	}
	if resp.User == nil || resp.User.ID == "" {
		return ErrNoUser
	}
	mark = m.mark()

	user := *resp.User
	username := models.EmailLocalPart(email)
	if _, err := m.profiles.Insert(ctx, models.Profile{
		ID:       user.ID,
		Email:    email,
		Name:     name,
		Username: &username,
	}); err != nil {
		m.log.Error().Err(err).Str("user_id", user.ID).Msg("profile creation failed, auth identity has no profile")
		return fmt.Errorf("create profile: %w", err)
	}

	address := user.Email
	if address == "" {
		address = email
	}
	m.commit(ticket, &models.Profile{
		ID:    user.ID,
		Email: address,
		Name:  name,
	})
	established = true
	return nil
}

// Logout ends the remote session. The profile is cleared by the sign-out
// notification, which is handled before Logout returns.
func (m *Manager) Logout(ctx context.Context) error {
	m.begin(opLogout)
	defer m.end(opLogout, false, 0)

	if err := m.auth.SignOut(ctx); err != nil {
		m.log.Error().Err(err).Msg("logout failed")
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// UpdateUser applies a partial update to the current profile and replaces
// the local copy with the row the server returns. It needs a loaded profile.
func (m *Manager) UpdateUser(ctx context.Context, update models.ProfileUpdate) bool {
	m.mu.Lock()
	current := m.profile
	m.mu.Unlock()
	if current == nil {
		m.log.Warn().Err(ErrNoProfile).Msg("update user rejected")
		return false
	}

	ticket := m.begin(opUpdate)
	defer m.end(opUpdate, false, 0)

	row, err := m.profiles.Update(ctx, current.ID, update)
	if err != nil {
		m.log.Error().Err(err).Str("user_id", current.ID).Msg("profile update failed")
		return false
	}

	m.commit(ticket, row.Clone())
	return true
}

func (m *Manager) begin(kind opKind) uint64 {
	m.mu.Lock()
	m.ops++
	if kind.showsLoading() {
		m.loadingOps++
	}
	ticket := m.nextTicketLocked()
	m.mu.Unlock()

	m.log.Debug().Str("op", kind.String()).Msg("operation started")
	m.notify()
	return ticket
}

// mark returns how many notifications are held back once the listener has
// caught up. Everything before the mark was queued before the auth call
// returned.
func (m *Manager) mark() int {
	n := 0
	m.settle(func() {
		m.mu.Lock()
		n = len(m.deferred)
		m.mu.Unlock()
	})
	return n
}

func (m *Manager) end(kind opKind, established bool, mark int) {
	m.settle(func() {
		m.mu.Lock()
		m.ops--
		if kind.showsLoading() {
			m.loadingOps--
		}
		if established {
			m.established = true
			if mark > m.cut {
				m.cut = mark
			}
		}
		var replay []models.AuthEvent
		if m.ops == 0 {
			replay = pending(m.deferred, m.cut, m.established)
			m.deferred = nil
			m.cut = 0
			m.established = false
		}
		m.mu.Unlock()

		m.notify()
		for _, ev := range replay {
			m.handle(ev)
		}
	})
}

// pending filters held-back notifications. Once an operation established a
// session, everything queued before its auth call returned is stale, and
// later notifications carrying a session only echo it.
func pending(events []models.AuthEvent, cut int, established bool) []models.AuthEvent {
	if !established {
		return events
	}
	var out []models.AuthEvent
	for i, ev := range events {
		if i >= cut && ev.Session == nil {
			out = append(out, ev)
		}
	}
	return out
}

func (m *Manager) nextTicketLocked() uint64 {
	m.issued++
	return m.issued
}

func (m *Manager) commitLocked(ticket uint64, profile *models.Profile) bool {
	if ticket <= m.committed {
		return false
	}
	m.committed = ticket
	m.profile = profile
	return true
}

func (m *Manager) commit(ticket uint64, profile *models.Profile) {
	m.mu.Lock()
	ok := m.commitLocked(ticket, profile)
	m.mu.Unlock()
	if !ok {
		m.log.Debug().Uint64("ticket", ticket).Msg("stale profile write dropped")
		return
	}
	m.notify()
}

func (m *Manager) Profile() *models.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.profile == nil {
		return nil
	}
	return m.profile.Clone()
}

func (m *Manager) IsLoading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadingLocked()
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

// Watch streams state snapshots. A slow reader only sees the latest one.
// The channel is closed by the returned cancel func or by Close.
func (m *Manager) Watch() (<-chan State, func()) {
	ch := make(chan State, 1)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		close(ch)
		return ch, func() {}
	}

	id := m.nextWatcher
	m.nextWatcher++
	m.watchers[id] = ch
	ch <- m.stateLocked()

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if w, ok := m.watchers[id]; ok {
			delete(m.watchers, id)
			close(w)
		}
	}
}

func (m *Manager) loadingLocked() bool {
	return !m.initialized || m.loadingOps > 0
}

func (m *Manager) stateLocked() State {
	st := State{Loading: m.loadingLocked()}
	if m.profile != nil {
		st.Profile = m.profile.Clone()
	}
	switch {
	case !m.started && !m.initialized:
		st.Phase = PhaseUninitialized
	case st.Loading:
		st.Phase = PhaseLoading
	case st.Profile != nil:
		st.Phase = PhaseAuthenticated
	default:
		st.Phase = PhaseAnonymous
	}
	return st
}

func (m *Manager) notify() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.watchers) == 0 {
		return
	}
	st := m.stateLocked()
	for _, ch := range m.watchers {
		select {
		case ch <- st:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- st:
			default:
			}
		}
	}
}
