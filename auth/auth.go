// Package auth manages the authenticated session: sign-in against the real
// identity provider, a local HS256 stand-in when none is configured, and
// the persisted token/user state.
package auth

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"wolfpack-sync/client"
	"wolfpack-sync/domain"
)

const (
	defaultInitTimeout = 5 * time.Second

	envInitTimeout     = "AUTH_INIT_TIMEOUT"
	envLocalAuthSecret = "LOCAL_AUTH_SECRET"
)

// ErrInitTimeout is returned when session initialization does not complete
// within the deadline. It is distinct from a clean signed-out start so
// callers can tell a backend outage from an empty session.
var ErrInitTimeout = errors.New("auth: initialization timed out")

// ErrSignedOut is returned by operations that need a session when none is
// active.
var ErrSignedOut = errors.New("auth: not signed in")

// API is the subset of the REST client the session manager uses.
type API interface {
	SignIn(ctx context.Context, creds client.Credentials) (client.SignInResponse, error)
	SignOut(ctx context.Context) error
	Me(ctx context.Context) (domain.User, error)
}

// Session is the active identity and bearer credential.
type Session struct {
	Token string
	User  domain.User
	Local bool
}

// Manager owns the session lifecycle: created at sign-in, destroyed at
// sign-out, restored from the persisted store at startup.
type Manager struct {
	api     API
	store   *Store
	log     *log.Logger
	timeout time.Duration
	secret  []byte

	mu  sync.Mutex
	cur *Session
}

// NewManager creates a session manager. The init deadline comes from
// AUTH_INIT_TIMEOUT, defaulting to five seconds.
func NewManager(api API, store *Store, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.StandardLogger()
	}
	timeout := defaultInitTimeout
	if raw := os.Getenv(envInitTimeout); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			timeout = d
		}
	}
	secret := []byte(os.Getenv(envLocalAuthSecret))
	if len(secret) == 0 {
		secret = []byte("wolfpack-local-dev")
	}
	return &Manager{api: api, store: store, log: logger, timeout: timeout, secret: secret}
}

// Init restores the persisted session and refreshes the user record. The
// whole attempt is bounded by the init deadline and cancelled when it
// expires; expiry surfaces as ErrInitTimeout, never as a silently empty
// session. A nil session with a nil error means cleanly signed out.
func (m *Manager) Init(ctx context.Context) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	st, err := m.store.Load()
	if err != nil {
		return nil, err
	}
	if st.Token == "" {
		return nil, nil
	}
	sess := &Session{Token: st.Token, User: st.User, Local: st.LocalUser}
	if !st.LocalUser {
		user, err := m.api.Me(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, ErrInitTimeout
			}
			m.log.WithError(err).Warn("auth: stored session rejected, clearing")
			if err := m.store.Clear(); err != nil {
				m.log.WithError(err).Error("auth: clearing stored session failed")
			}
			return nil, nil
		}
		sess.User = user
	}
	m.mu.Lock()
	m.cur = sess
	m.mu.Unlock()
	return sess, nil
}

// SignIn authenticates against the identity provider and persists the
// resulting session.
func (m *Manager) SignIn(ctx context.Context, email, password string) (*Session, error) {
	resp, err := m.api.SignIn(ctx, client.Credentials{Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	sess := &Session{Token: resp.Token, User: resp.User}
	if err := m.persist(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// SignInLocal mints a local stand-in session when no identity provider is
// configured: an HS256 token signed with the local secret, with a fresh
// user id as the subject.
func (m *Manager) SignInLocal(name string) (*Session, error) {
	userID := uuid.NewString()
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID,
		"name": name,
		"iat":  now.Unix(),
		"exp":  now.Add(30 * 24 * time.Hour).Unix(),
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return nil, err
	}
	sess := &Session{
		Token: signed,
		User:  domain.User{ID: userID, Name: name},
		Local: true,
	}
	if err := m.persist(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (m *Manager) persist(sess *Session) error {
	st, err := m.store.Load()
	if err != nil {
		st = State{}
	}
	st.Token = sess.Token
	st.User = sess.User
	st.LocalUser = sess.Local
	if err := m.store.Save(st); err != nil {
		return err
	}
	m.mu.Lock()
	m.cur = sess
	m.mu.Unlock()
	return nil
}

// SignOut destroys the session locally and best-effort server-side.
func (m *Manager) SignOut(ctx context.Context) error {
	m.mu.Lock()
	sess := m.cur
	m.cur = nil
	m.mu.Unlock()
	if sess == nil {
		return ErrSignedOut
	}
	if !sess.Local {
		if err := m.api.SignOut(ctx); err != nil {
			m.log.WithError(err).Warn("auth: server sign-out failed")
		}
	}
	return m.store.Clear()
}

// Session returns the active session, nil when signed out.
func (m *Manager) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur
}

// Token yields the current bearer token for the REST client.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return ""
	}
	return m.cur.Token
}

// TourSeen reports whether the onboarding tour was completed.
func (m *Manager) TourSeen() bool {
	st, err := m.store.Load()
	if err != nil {
		return false
	}
	return st.TourSeen
}

// SetTourSeen persists the onboarding tour flag.
func (m *Manager) SetTourSeen() error {
	st, err := m.store.Load()
	if err != nil {
		return err
	}
	st.TourSeen = true
	return m.store.Save(st)
}

// UserIDFromToken extracts the subject claim from a bearer token without
// verifying the signature. The stream connection key only needs the id.
func UserIDFromToken(token string) (string, error) {
	parser := jwt.NewParser()
	t, _, err := parser.ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return "", err
	}
	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("auth: invalid claims")
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.New("auth: missing sub")
	}
	return sub, nil
}
