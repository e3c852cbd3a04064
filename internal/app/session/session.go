// Package session owns the bearer token lifecycle: acquisition,
// expiry tracking, proactive refresh, and single-flight
// re-authentication on 401/403, following communicator.cpp's
// SendAuthenticationRequest / GetTokenRemainingSecs /
// WaitForTokenExpirationAndAuthenticate / TryReAuthenticate.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/JakeHuneau/wazuh-agent/internal/domain"
	"github.com/JakeHuneau/wazuh-agent/internal/ports"
)

// Holder is a lock-free snapshot-and-replace wrapper around the
// current token, implementing ports.TokenSource. Writes are whole
// pointer replacements, so readers never observe a torn token.
type Holder struct {
	ptr atomic.Pointer[domain.Token]
}

// NewHolder returns a Holder starting from an empty token.
func NewHolder() *Holder {
	h := &Holder{}
	h.ptr.Store(&domain.Token{})
	return h
}

// Snapshot returns the current token value, implementing ports.TokenSource.
func (h *Holder) Snapshot() string {
	return h.ptr.Load().Value
}

// Current returns the full current token.
func (h *Holder) Current() domain.Token {
	return *h.ptr.Load()
}

func (h *Holder) set(tok domain.Token) {
	h.ptr.Store(&tok)
}

var _ ports.TokenSource = (*Holder)(nil)

// Authenticator is the subset of transport.HttpTransport the
// SessionManager needs: a single UUID+key authentication call.
type Authenticator interface {
	AuthenticateWithUUIDAndKey(ctx context.Context, host, userAgent, uuid, key string) (string, bool)
}

// Manager owns the bearer token shared by reference with every
// RequestLoop.
type Manager struct {
	auth      Authenticator
	obs       ports.Observability
	holder    *Holder
	host      string
	userAgent string
	uuid      string
	key       string

	reauthMu  sync.Mutex
	sleepMu   sync.Mutex
	sleepStop chan struct{}

	running atomic.Bool
}

// NewManager constructs a SessionManager. host/userAgent/uuid/key are
// the fixed parameters of every authentication attempt.
func NewManager(auth Authenticator, obs ports.Observability, host, userAgent, uuid, key string) *Manager {
	return &Manager{
		auth:      auth,
		obs:       obs,
		holder:    NewHolder(),
		host:      host,
		userAgent: userAgent,
		uuid:      uuid,
		key:       key,
	}
}

// Token returns the shared TokenSource read by every RequestLoop.
func (m *Manager) Token() *Holder { return m.holder }

// authenticate calls the UUID+key authenticator; on success stores the
// token and parses the exp claim into expiresAtEpochSeconds. On
// failure, or a token with no exp claim, clears the token and forces
// an immediate retry.
func (m *Manager) authenticate(ctx context.Context) error {
	value, ok := m.auth.AuthenticateWithUUIDAndKey(ctx, m.host, m.userAgent, m.uuid, m.key)
	if !ok {
		m.holder.set(domain.Token{ExpiresAtEpochSeconds: 1})
		m.obs.LogError("authentication failed", errUnauthorized)
		return errUnauthorized
	}

	exp, ok := parseExpClaim(value)
	if !ok {
		m.holder.set(domain.Token{ExpiresAtEpochSeconds: 1})
		m.obs.LogError("authentication response missing exp claim", errUnauthorized)
		return errUnauthorized
	}

	m.holder.set(domain.Token{Value: value, ExpiresAtEpochSeconds: exp})
	m.obs.LogInfo("authenticated", ports.Field{Key: "expires_at", Value: exp})
	return nil
}

func parseExpClaim(tokenValue string) (int64, bool) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenValue, claims); err != nil {
		return 0, false
	}
	expFloat, ok := claims["exp"].(float64)
	if !ok {
		return 0, false
	}
	return int64(expFloat), true
}

// remainingSeconds returns max(0, exp - now).
func (m *Manager) remainingSeconds(now time.Time) int64 {
	exp := m.holder.Current().ExpiresAtEpochSeconds
	remaining := exp - now.Unix()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RemainingSeconds is the exported form used by RequestLoops/metrics.
func (m *Manager) RemainingSeconds() int64 {
	return m.remainingSeconds(time.Now())
}

// WaitAndReauthenticate is the cooperative loop: authenticate, sleep
// remainingSeconds-2 on success (or 1s on failure), repeat until ctx
// is cancelled. The sleep is cancellable by TryReAuthenticate, which
// causes immediate re-authentication on the next iteration.
func (m *Manager) WaitAndReauthenticate(ctx context.Context) {
	m.running.Store(true)
	defer m.running.Store(false)

	for ctx.Err() == nil {
		err := m.authenticate(ctx)

		var sleepFor time.Duration
		if err == nil {
			remaining := m.remainingSeconds(time.Now()) - 2
			if remaining < 1 {
				remaining = 1
			}
			sleepFor = time.Duration(remaining) * time.Second
		} else {
			sleepFor = 1 * time.Second
		}

		if !m.cancellableSleep(ctx, sleepFor) {
			return
		}
	}
}

// cancellableSleep waits for d, ctx cancellation, or an interrupt from
// TryReAuthenticate, whichever comes first. It returns false if ctx is
// done (caller should stop the loop).
func (m *Manager) cancellableSleep(ctx context.Context, d time.Duration) bool {
	m.sleepMu.Lock()
	stop := make(chan struct{})
	m.sleepStop = stop
	m.sleepMu.Unlock()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	case <-stop:
		return true
	}
}

// TryReAuthenticate is the best-effort single-flight re-auth trigger
// used by RequestLoop's onUnauthorized callback: if a re-auth is
// already in flight, this call is a no-op, mirroring the C++
// original's std::unique_lock<std::mutex>(m, std::try_to_lock).
func (m *Manager) TryReAuthenticate() {
	if !m.reauthMu.TryLock() {
		return
	}
	defer m.reauthMu.Unlock()

	m.sleepMu.Lock()
	stop := m.sleepStop
	m.sleepMu.Unlock()
	if stop != nil {
		select {
		case <-stop:
		default:
			close(stop)
		}
	}
}

var errUnauthorized = unauthorizedError{}

type unauthorizedError struct{}

func (unauthorizedError) Error() string { return "session: unauthorized" }
