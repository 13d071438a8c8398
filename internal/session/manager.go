// Package session owns the authentication lifecycle: loading a persisted
// session at startup, logging in or registering, and logging out.
//
// State machine:
//
//	Unknown ──Start──▶ Anonymous ◀──Logout── Authenticated
//	                       │                      ▲
//	                       └──Login / Register────┘
//
// Start reads the store exactly once. Login and Register persist the token and
// identity together or not at all. Logout drops the in-memory session before
// touching the store, so a failing store never keeps an abandoned token alive.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/oauth2"

	"todo/internal/kvstore"
	"todo/internal/service"
)

// Persisted keys.
const (
	KeyToken = "auth_token"
	KeyUser  = "auth_user"
)

// State is the authentication state.
type State int

const (
	// StateUnknown is the state before Start has read the store.
	StateUnknown State = iota
	// StateAnonymous means there is no valid session.
	StateAnonymous
	// StateAuthenticated means a token and identity are held.
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Session is an authenticated identity and its credential.
type Session struct {
	Identity string
	Token    string
}

// Listener is notified after every state transition.
type Listener func(State, Session)

// Manager owns the current session. It is safe for concurrent use.
type Manager struct {
	store  kvstore.Store
	auth   service.Authenticator
	logger *slog.Logger

	startOnce sync.Once
	startErr  error

	mu        sync.RWMutex
	state     State
	session   Session
	listeners map[int]Listener
	nextID    int
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a Manager in StateUnknown.
func NewManager(store kvstore.Store, auth service.Authenticator, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		auth:      auth,
		logger:    slog.New(slog.DiscardHandler),
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start loads the persisted session. Only the first call reads the store;
// later calls return the first result. A storage failure leaves the manager
// Anonymous and is returned so the caller can report it. The store is local
// and synchronous, so the context is not consulted.
func (m *Manager) Start(_ context.Context) error {
	m.startOnce.Do(func() {
		m.startErr = m.load()
	})
	return m.startErr
}

func (m *Manager) load() error {
	token, tokOK, err := m.store.Get(KeyToken)
	if err == nil && tokOK {
		var user string
		var userOK bool
		user, userOK, err = m.store.Get(KeyUser)
		if err == nil && userOK && token != "" && user != "" {
			m.transition(StateAuthenticated, Session{Identity: user, Token: token})
			m.logger.Debug("session restored", "identity", user)
			return nil
		}
	}

	m.transition(StateAnonymous, Session{})
	if err != nil {
		m.logger.Warn("failed to read session", "err", err)
		return err
	}
	if tokOK {
		m.logger.Debug("ignoring incomplete persisted session")
	}
	return nil
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Current returns the session and whether one is held.
func (m *Manager) Current() (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session, m.state == StateAuthenticated
}

// Login authenticates and persists the new session.
// On any failure the state is unchanged.
func (m *Manager) Login(ctx context.Context, identity, secret string) (Session, error) {
	return m.authenticate(ctx, "login", identity, secret, m.auth.Login)
}

// Register creates an account and persists the new session.
// On any failure the state is unchanged.
func (m *Manager) Register(ctx context.Context, identity, secret string) (Session, error) {
	return m.authenticate(ctx, "register", identity, secret, m.auth.Register)
}

type authFunc func(ctx context.Context, identity, secret string) (service.AuthResult, error)

func (m *Manager) authenticate(ctx context.Context, op, identity, secret string, call authFunc) (Session, error) {
	if identity == "" || secret == "" {
		return Session{}, service.Validation(op, "identity and secret required")
	}

	res, err := call(ctx, identity, secret)
	if err != nil {
		m.logger.Warn(op+" failed", "identity", identity, "err", err)
		return Session{}, err
	}

	s := Session{Identity: res.Identity, Token: res.Token}
	if s.Identity == "" {
		s.Identity = identity
	}

	if err := m.persist(s); err != nil {
		m.logger.Warn("failed to persist session", "err", err)
		return Session{}, err
	}

	m.transition(StateAuthenticated, s)
	m.logger.Debug(op+" succeeded", "identity", s.Identity)
	return s, nil
}

// persist writes both keys or neither.
func (m *Manager) persist(s Session) error {
	if b, ok := m.store.(kvstore.Batcher); ok {
		return b.SetAll(map[string]string{KeyToken: s.Token, KeyUser: s.Identity})
	}

	prevToken, hadToken, err := m.store.Get(KeyToken)
	if err != nil {
		return err
	}
	if err := m.store.Set(KeyToken, s.Token); err != nil {
		return err
	}
	if err := m.store.Set(KeyUser, s.Identity); err != nil {
		// Put the previous token back so the store keeps a whole session
		var rbErr error
		if hadToken {
			rbErr = m.store.Set(KeyToken, prevToken)
		} else {
			rbErr = m.store.Remove(KeyToken)
		}
		if rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return nil
}

// Logout clears the session. The in-memory state is cleared first and always;
// a failure to clear the store is returned afterwards.
func (m *Manager) Logout(ctx context.Context) error {
	m.transition(StateAnonymous, Session{})

	var err error
	if b, ok := m.store.(kvstore.Batcher); ok {
		err = b.RemoveAll(KeyToken, KeyUser)
	} else {
		err = errors.Join(m.store.Remove(KeyToken), m.store.Remove(KeyUser))
	}
	if err != nil {
		m.logger.Warn("failed to clear persisted session", "err", err)
		return err
	}
	m.logger.Debug("logged out")
	return nil
}

// Subscribe registers l for state transitions and returns a function that
// removes it.
func (m *Manager) Subscribe(l Listener) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = l
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// TokenSource exposes the current token to HTTP transports. When anonymous it
// yields an empty token, which transports send without an Authorization header.
func (m *Manager) TokenSource() oauth2.TokenSource {
	return tokenSource{m}
}

type tokenSource struct{ m *Manager }

func (ts tokenSource) Token() (*oauth2.Token, error) {
	s, ok := ts.m.Current()
	if !ok {
		return &oauth2.Token{}, nil
	}
	return &oauth2.Token{AccessToken: s.Token, TokenType: "Bearer"}, nil
}

func (m *Manager) transition(state State, s Session) {
	m.mu.Lock()
	m.state = state
	m.session = s
	listeners := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.Unlock()

	for _, l := range listeners {
		l(state, s)
	}
}
