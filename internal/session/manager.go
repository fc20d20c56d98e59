package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"ava-gateway/internal/token"
)

// ErrNoSession is returned by Refresh when no session is active (or when a
// logout won a race against an in-flight refresh).
var ErrNoSession = errors.New("session: no active session")

type Options struct {
	// RefreshInterval is the background refresh cadence. Default 5 minutes.
	RefreshInterval time.Duration

	Logger *slog.Logger
}

// Manager owns the single source of truth for "who is logged in": the
// access/refresh token pair, the cached profile, and the background refresh
// loop. It is the only writer to the Store.
//
// Concurrency: login, logout and refresh may be called from any goroutine.
// A logout invoked mid-refresh wins; refresh results are checked against the
// session generation before they are applied, so a response from a cleared
// session can never resurrect it.
type Manager struct {
	api      AuthAPI
	store    Store
	interval time.Duration
	log      *slog.Logger
	watch    *Watch

	mu         sync.Mutex
	gen        uint64
	cancelLoop context.CancelFunc

	clock func() time.Time
}

func NewManager(api AuthAPI, store Store, opts Options) (*Manager, error) {
	if api == nil {
		return nil, errors.New("session: auth api is required")
	}
	if store == nil {
		return nil, errors.New("session: store is required")
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = 5 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	m := &Manager{
		api:      api,
		store:    store,
		interval: opts.RefreshInterval,
		log:      opts.Logger,
		watch:    NewWatch(),
		clock:    time.Now,
	}
	m.resume()
	return m, nil
}

// resume adopts tokens already present in the store, so a fresh process in
// an authenticated browser session does not force a re-login.
func (m *Manager) resume() {
	access, ok := m.store.Get(keyAccessToken)
	if !ok || access == "" {
		return
	}
	raw, ok := m.store.Get(keyCurrentUser)
	if !ok || raw == "" {
		return
	}
	var u User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		m.log.Warn("stored profile unreadable, discarding session", "err", err)
		m.clearStore()
		return
	}
	if len(u.Roles) == 0 {
		if roles := tokenRoles(access); len(roles) > 0 {
			u.Roles = roles
			m.persistUser(u)
		}
	}

	m.mu.Lock()
	m.startLoopLocked()
	m.mu.Unlock()
	m.watch.publish(&u)
}

// Login authenticates, stores the token pair and profile atomically,
// publishes the new identity, and (re)starts the refresh loop. Any previous
// session's timer is cancelled first; there is never more than one.
func (m *Manager) Login(ctx context.Context, creds Credentials) (*User, error) {
	res, err := m.api.Login(ctx, creds)
	if err != nil {
		return nil, err
	}

	u := res.User
	if len(u.Roles) == 0 {
		if roles := tokenRoles(res.Access); len(roles) > 0 {
			u.Roles = roles
		}
	}

	m.mu.Lock()
	m.gen++
	m.store.Set(keyAccessToken, res.Access)
	m.store.Set(keyRefreshToken, res.Refresh)
	m.persistUser(u)
	m.startLoopLocked()
	m.mu.Unlock()

	m.watch.publish(&u)
	return &u, nil
}

// Logout clears all session state and stops the refresh loop. Idempotent:
// a second call changes nothing and publishes nothing.
func (m *Manager) Logout() {
	m.mu.Lock()
	m.gen++
	if m.cancelLoop != nil {
		m.cancelLoop()
		m.cancelLoop = nil
	}
	m.clearStore()
	m.mu.Unlock()

	m.watch.publish(nil)
}

// Refresh exchanges the refresh token for a new access token. On success
// only the access token is replaced. A terminal failure (the refresh token
// itself rejected) destroys the session; a transient failure leaves the
// current access token in place until it naturally expires.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	gen := m.gen
	refresh, ok := m.store.Get(keyRefreshToken)
	m.mu.Unlock()
	if !ok || refresh == "" {
		return ErrNoSession
	}

	access, err := m.api.Refresh(ctx, refresh)
	if err != nil {
		if errors.Is(err, ErrRefreshTokenInvalid) {
			m.mu.Lock()
			still := m.gen == gen
			m.mu.Unlock()
			if still {
				m.Logout()
			}
		}
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		// Logged out (or re-logged-in) while the exchange was in flight;
		// the stale result must not be applied.
		return ErrNoSession
	}
	m.store.Set(keyAccessToken, access)
	return nil
}

// IsAuthenticated reports whether an access token is present and unexpired,
// read locally from the token without a network call.
func (m *Manager) IsAuthenticated() bool {
	access, ok := m.store.Get(keyAccessToken)
	if !ok || access == "" {
		return false
	}
	exp, ok := tokenExpiry(access)
	return ok && exp.After(m.clock())
}

// EffectiveRoles returns the stored roles, falling back to the token's
// roles claim, falling back to student. Never empty.
func (m *Manager) EffectiveRoles() []string {
	if u, _ := m.watch.Current(); u != nil && len(u.Roles) > 0 {
		out := make([]string, len(u.Roles))
		copy(out, u.Roles)
		return out
	}
	if access, ok := m.store.Get(keyAccessToken); ok {
		if roles := tokenRoles(access); len(roles) > 0 {
			return roles
		}
	}
	return []string{token.DefaultRole}
}

// CurrentUser returns the published identity, nil when logged out.
func (m *Manager) CurrentUser() *User {
	u, _ := m.watch.Current()
	return u
}

// Watch exposes the identity stream for subscribers.
func (m *Manager) Watch() *Watch {
	return m.watch
}

// AccessToken returns the current access token for attaching to requests.
func (m *Manager) AccessToken() string {
	access, _ := m.store.Get(keyAccessToken)
	return access
}

func (m *Manager) persistUser(u User) {
	if raw, err := json.Marshal(u); err == nil {
		m.store.Set(keyCurrentUser, string(raw))
	}
}

func (m *Manager) clearStore() {
	m.store.Delete(keyAccessToken)
	m.store.Delete(keyRefreshToken)
	m.store.Delete(keyCurrentUser)
}

// startLoopLocked replaces any running refresh loop with a fresh one.
// Callers must hold m.mu.
func (m *Manager) startLoopLocked() {
	if m.cancelLoop != nil {
		m.cancelLoop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelLoop = cancel
	go m.runLoop(ctx)
}

func (m *Manager) runLoop(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Refresh(ctx); err != nil && !errors.Is(err, ErrNoSession) {
				m.log.Warn("background token refresh failed", "err", err)
			}
		}
	}
}
