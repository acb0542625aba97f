// Package session owns the dashboard's authenticated identity. It is the
// only writer of the bearer token.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pmsystem/pmdash/internal/dashboard/api"
	"github.com/pmsystem/pmdash/internal/logger"
	"github.com/pmsystem/pmdash/internal/projects/domain"
)

// Session is the authenticated identity. For clients Subject is the
// project id, for admins the username.
type Session struct {
	Token    string      `json:"token"`
	Role     domain.Role `json:"role"`
	Subject  string      `json:"subject_id"`
	IssuedAt time.Time   `json:"issued_at"`
}

// Credentials are an admin username or a project id, plus a password.
type Credentials struct {
	ID       string
	Password string
}

// Authenticator is the part of the backend client the manager uses.
type Authenticator interface {
	LoginAdmin(ctx context.Context, username, password string) (*api.LoginResult, error)
	LoginClient(ctx context.Context, projectID, password string) (*api.LoginResult, error)
	Logout(ctx context.Context, token string) error
}

// Store persists the session between runs.
type Store interface {
	Save(s Session) error
	Load() (*Session, error)
	Clear() error
}

type Manager struct {
	mu        sync.Mutex
	auth      Authenticator
	store     Store
	now       func() time.Time
	current   *Session
	teardowns []func()
}

// NewManager returns a manager without a session. store may be nil.
func NewManager(auth Authenticator, store Store) *Manager {
	return &Manager{
		auth:  auth,
		store: store,
		now:   time.Now,
	}
}

// Login authenticates and replaces the current session. A session that is
// replaced is torn down first. On failure the existing session is left as
// it was.
func (m *Manager) Login(ctx context.Context, role domain.Role, creds Credentials) (*Session, error) {
	id := strings.TrimSpace(creds.ID)
	if id == "" || creds.Password == "" {
		return nil, &api.ValidationError{Message: "id and password are required"}
	}

	var (
		res *api.LoginResult
		err error
	)
	switch role {
	case domain.RoleAdmin:
		res, err = m.auth.LoginAdmin(ctx, id, creds.Password)
	case domain.RoleClient:
		res, err = m.auth.LoginClient(ctx, id, creds.Password)
	default:
		return nil, &api.ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q", role)}
	}
	if err != nil {
		return nil, err
	}

	s := Session{
		Token:    res.Token,
		Role:     res.Role,
		Subject:  res.Subject,
		IssuedAt: m.now(),
	}
	if s.Role == "" {
		s.Role = role
	}
	if s.Subject == "" {
		s.Subject = id
	}

	// The previous identity's caches must not survive into the new one.
	if prev, ok := m.Current(); ok {
		m.teardown(prev.Token)
	}

	m.mu.Lock()
	m.current = &s
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.Save(s); err != nil {
			logger.Zlog.Warn("persist session", zap.Error(err))
		}
	}

	out := s
	return &out, nil
}

// Current returns a copy of the session, if any.
func (m *Manager) Current() (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil, false
	}
	s := *m.current
	return &s, true
}

// OnTeardown registers a hook that runs whenever the session ends.
func (m *Manager) OnTeardown(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardowns = append(m.teardowns, fn)
}

// Logout revokes the token on the backend (best effort), clears the session
// and runs the teardown hooks. Calling it without a session is a no-op.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	cur := m.current
	m.mu.Unlock()
	if cur == nil {
		return nil
	}

	if err := m.auth.Logout(ctx, cur.Token); err != nil && !errors.Is(err, api.ErrUnauthorized) {
		logger.Zlog.Warn("revoke token", zap.Error(err))
	}
	m.teardown(cur.Token)
	return nil
}

// Call runs fn with the current token. A 401 from fn ends the session and
// every teardown hook has run by the time ErrSessionExpired is returned.
func (m *Manager) Call(ctx context.Context, fn func(ctx context.Context, token string) error) error {
	cur, ok := m.Current()
	if !ok {
		return api.ErrNoSession
	}

	err := fn(ctx, cur.Token)
	if !errors.Is(err, api.ErrUnauthorized) {
		return err
	}

	// A re-login happened while fn was in flight. The 401 belongs to the
	// old token, so retry once with the live one.
	if live, ok := m.Current(); ok && live.Token != cur.Token {
		cur = live
		err = fn(ctx, cur.Token)
		if !errors.Is(err, api.ErrUnauthorized) {
			return err
		}
	}

	logger.Zlog.Info("session rejected by server",
		zap.String("role", string(cur.Role)),
		zap.String("subject", cur.Subject),
	)
	m.teardown(cur.Token)
	return api.ErrSessionExpired
}

// teardown ends the session if it still holds token. A stale 401 from a
// request issued before a re-login leaves the new session alone.
func (m *Manager) teardown(token string) {
	m.mu.Lock()
	if m.current == nil || m.current.Token != token {
		m.mu.Unlock()
		return
	}
	m.current = nil
	hooks := append([]func(){}, m.teardowns...)
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.Clear(); err != nil {
			logger.Zlog.Warn("clear persisted session", zap.Error(err))
		}
	}
	for _, fn := range hooks {
		fn()
	}
}

// Restore loads a persisted session. It reports whether one was found.
func (m *Manager) Restore() (bool, error) {
	if m.store == nil {
		return false, nil
	}
	s, err := m.store.Load()
	if err != nil {
		return false, err
	}
	if s == nil || s.Token == "" || !s.Role.Valid() {
		return false, nil
	}

	m.mu.Lock()
	m.current = s
	m.mu.Unlock()
	return true, nil
}
