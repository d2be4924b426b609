// Package session owns the authentication lifecycle of each browser session:
// hydration from the persisted token, login, registration, logout and the
// forced demotion that follows any 401 from the API.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"wanderplan/internal/apiclient"
	"wanderplan/internal/database"
	"wanderplan/internal/logger"
	"wanderplan/internal/models"

	"github.com/google/uuid"
)

type State int

const (
	StateUnknown State = iota
	StateAuthenticated
	StateAnonymous
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// TokenStore is the durable side of a session.
type TokenStore interface {
	SaveToken(sessionID, token string) error
	LoadToken(sessionID string) (string, error)
	ClearToken(sessionID string) error
	ClearTokenValue(token string) ([]string, error)
}

// Authenticator is the remote half of the auth lifecycle.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*models.AuthResult, error)
	Register(ctx context.Context, name, email, password string) (*models.AuthResult, error)
	CurrentUser(ctx context.Context) (*models.User, error)
	Logout(ctx context.Context) error
}

// Session is a snapshot of one browser session. Values returned by the
// Manager are copies; mutate through the Manager.
type Session struct {
	ID    string
	State State
	User  *models.User
	token string

	lastSeen time.Time
}

func (s *Session) Authenticated() bool {
	return s.State == StateAuthenticated && s.User != nil
}

// Context returns ctx carrying this session's bearer token, if any.
func (s *Session) Context(ctx context.Context) context.Context {
	if s.token == "" {
		return ctx
	}
	return apiclient.WithToken(ctx, s.token)
}

// Result is the outcome of Login and Register. Failures carry a message
// suitable for the form; they are never returned as errors. On success
// SessionID is the freshly issued id that replaces the pre-login one.
type Result struct {
	OK        bool
	Message   string
	User      *models.User
	SessionID string
}

type Manager struct {
	store TokenStore
	auth  Authenticator

	mu       sync.Mutex
	sessions map[string]*Session
	hydrate  map[string]*sync.Mutex
	now      func() time.Time
}

func NewManager(store TokenStore, auth Authenticator) *Manager {
	return &Manager{
		store:    store,
		auth:     auth,
		sessions: make(map[string]*Session),
		hydrate:  make(map[string]*sync.Mutex),
		now:      time.Now,
	}
}

// Subscribe attaches the manager to the API client's unauthorized events and
// returns the unsubscribe function.
func (m *Manager) Subscribe(events *apiclient.Notifier) func() {
	return events.Subscribe(func(e apiclient.UnauthorizedEvent) {
		m.HandleUnauthorized(e.Token)
	})
}

// Resolve returns the session for id, hydrating it from the persisted token
// the first time it is seen by this process.
func (m *Manager) Resolve(ctx context.Context, id string) Session {
	lock := m.hydrationLock(id)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	if s, ok := m.sessions[id]; ok && s.State != StateUnknown {
		s.lastSeen = m.now()
		snapshot := *s
		m.mu.Unlock()
		return snapshot
	}
	m.sessions[id] = &Session{ID: id, State: StateUnknown, lastSeen: m.now()}
	m.mu.Unlock()

	token, err := m.store.LoadToken(id)
	if err != nil {
		if !errors.Is(err, database.ErrNoToken) {
			logger.Warn("Failed to load persisted token", "session_id", id, "error", err)
		}
		return m.settle(id, StateAnonymous, nil, "")
	}

	user, err := m.auth.CurrentUser(apiclient.WithToken(ctx, token))
	if err != nil {
		logger.Debug("Session hydration failed, continuing as guest", "session_id", id, "error", err)
		if clearErr := m.store.ClearToken(id); clearErr != nil {
			logger.Warn("Failed to clear persisted token", "session_id", id, "error", clearErr)
		}
		return m.settle(id, StateAnonymous, nil, "")
	}

	return m.settle(id, StateAuthenticated, user, token)
}

func (m *Manager) Login(ctx context.Context, id, email, password string) Result {
	result, err := m.auth.Login(ctx, email, password)
	if err != nil {
		return Result{Message: failureMessage(err, "Invalid email or password")}
	}
	return m.establish(id, result)
}

func (m *Manager) Register(ctx context.Context, id, name, email, password string) Result {
	result, err := m.auth.Register(ctx, name, email, password)
	if err != nil {
		return Result{Message: failureMessage(err, "Registration failed. Please try again.")}
	}
	return m.establish(id, result)
}

// Logout tells the API to drop the token, then clears local state whatever
// the API answered.
func (m *Manager) Logout(ctx context.Context, id string) {
	m.mu.Lock()
	var token string
	if s, ok := m.sessions[id]; ok {
		token = s.token
	}
	m.mu.Unlock()

	if token != "" {
		if err := m.auth.Logout(apiclient.WithToken(ctx, token)); err != nil {
			logger.Debug("Server logout failed, clearing session anyway", "session_id", id, "error", err)
		}
	}

	if err := m.store.ClearToken(id); err != nil {
		logger.Warn("Failed to clear persisted token", "session_id", id, "error", err)
	}
	m.settle(id, StateAnonymous, nil, "")
}

// HandleUnauthorized demotes every session that holds token.
func (m *Manager) HandleUnauthorized(token string) {
	if token == "" {
		return
	}

	ids, err := m.store.ClearTokenValue(token)
	if err != nil {
		logger.Warn("Failed to clear rejected token", "error", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	demoted := 0
	for _, s := range m.sessions {
		if s.token == token {
			s.State = StateAnonymous
			s.User = nil
			s.token = ""
			demoted++
		}
	}
	logger.Info("Token rejected by API, session cleared", "sessions", demoted, "persisted", len(ids))
}

// Prune forgets in-memory sessions idle for longer than maxIdle. Their
// persisted tokens remain and are rehydrated on the next visit.
func (m *Manager) Prune(maxIdle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-maxIdle)
	removed := 0
	for id, s := range m.sessions {
		if s.lastSeen.Before(cutoff) {
			delete(m.sessions, id)
			delete(m.hydrate, id)
			removed++
		}
	}
	return removed
}

// establish binds the token to a new session id and retires previousID, so
// an id handed out before sign-in never becomes authenticated.
func (m *Manager) establish(previousID string, result *models.AuthResult) Result {
	id := uuid.NewString()
	if err := m.store.SaveToken(id, result.Token); err != nil {
		logger.Error("Failed to persist token", "session_id", id, "error", err)
		return Result{Message: "Unable to start your session. Please try again."}
	}
	if previousID != "" {
		if err := m.store.ClearToken(previousID); err != nil {
			logger.Warn("Failed to clear previous session", "session_id", previousID, "error", err)
		}
		m.forget(previousID)
	}

	user := result.User
	m.settle(id, StateAuthenticated, &user, result.Token)
	logger.Info("User signed in", "user_id", user.ID, "session_id", id)
	return Result{OK: true, User: &user, SessionID: id}
}

func (m *Manager) forget(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	delete(m.hydrate, id)
}

func (m *Manager) settle(id string, state State, user *models.User, token string) Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		s = &Session{ID: id}
		m.sessions[id] = s
	}
	s.State = state
	s.User = user
	s.token = token
	s.lastSeen = m.now()
	return *s
}

func (m *Manager) hydrationLock(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.hydrate[id]
	if !ok {
		lock = &sync.Mutex{}
		m.hydrate[id] = lock
	}
	return lock
}

func failureMessage(err error, fallback string) string {
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		if msg := apiErr.Flatten(); msg != "" {
			return msg
		}
	}
	return fallback
}
