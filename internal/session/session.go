package session

import (
	"context"
	"fmt"
	"sync"

	"meater_sync/internal/logger"
	"meater_sync/internal/meater"

	"golang.org/x/sync/singleflight"
)

// Authenticator performs the vendor login call.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (string, error)
}

// TokenStore persists a freshly obtained token.
type TokenStore interface {
	SaveToken(token string) error
}

// Credentials are the account secrets the manager logs in with.
type Credentials struct {
	Email    string
	Password string
	Token    string
}

// Manager owns the process-wide session. It is the only writer of the token;
// every poller goes through EnsureSession and Invalidate.
type Manager struct {
	auth  Authenticator
	store TokenStore
	log   *logger.Logger

	mu    sync.Mutex
	creds Credentials

	logins  singleflight.Group
	onLogin func(token string)

	// life bounds shared logins; it ends with Close, not with any caller.
	life context.Context
	stop context.CancelFunc
}

func NewManager(creds Credentials, auth Authenticator, store TokenStore, log *logger.Logger) *Manager {
	life, cancel := context.WithCancel(context.Background())
	return &Manager{creds: creds, auth: auth, store: store, log: log, life: life, stop: cancel}
}

// Close aborts a login in flight. Later logins fail with context.Canceled.
func (m *Manager) Close() {
	m.stop()
}

// OnLogin registers a hook run after every successful login.
func (m *Manager) OnLogin(fn func(token string)) {
	m.mu.Lock()
	m.onLogin = fn
	m.mu.Unlock()
}

// Token returns the cached token, or "" when a login is needed.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds.Token
}

// EnsureSession returns the cached token, logging in first if there is none.
func (m *Manager) EnsureSession(ctx context.Context) (string, error) {
	if tok := m.Token(); tok != "" {
		return tok, nil
	}
	return m.Login(ctx)
}

// Invalidate drops token after the API rejected it. A token that has already
// been replaced by a newer login is left alone; "" drops whatever is cached.
func (m *Manager) Invalidate(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if token == "" || m.creds.Token == token {
		m.creds.Token = ""
	}
}

// Login exchanges the configured credentials for a new token. Concurrent
// callers share a single in-flight login and its result. A caller whose ctx
// ends stops waiting, but the shared login carries on for the others.
func (m *Manager) Login(ctx context.Context) (string, error) {
	m.mu.Lock()
	email, password := m.creds.Email, m.creds.Password
	m.mu.Unlock()

	if email == "" || password == "" {
		missing := "email"
		if email != "" {
			missing = "password"
		}
		return "", &meater.Error{
			Op:    "login",
			Class: meater.ClassConfig,
			Kind:  meater.KindMissingCredentials,
			Err:   fmt.Errorf("%s not provided", missing),
		}
	}

	flight := m.logins.DoChan("login", func() (any, error) {
		return m.login(m.life, email, password)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-flight:
		if res.Shared {
			m.log.Debugw("session_login_shared")
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (m *Manager) login(ctx context.Context, email, password string) (string, error) {
	token, err := m.auth.Login(ctx, email, password)
	if err != nil {
		m.log.Errorw("session_login_failed", "err", err)
		return "", err
	}

	m.mu.Lock()
	m.creds.Token = token
	hook := m.onLogin
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.SaveToken(token); err != nil {
			// The session is usable even if the file could not be rewritten.
			m.log.Errorw("session_persist_token_failed", "err", err)
		}
	}
	m.log.Infow("session_login_succeeded")
	if hook != nil {
		hook(token)
	}
	return token, nil
}
