// Package auth implements the OAuth device-authorization handshake and the
// short-lived bearer credential used for chat-completion calls.
package auth

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ZanzyTHEbar/suite-pilot/pilot"
)

// Session holds the current service bearer token and its expiry. It is pure
// in-memory state owned by the caller's process container and injected into
// whatever needs it; it is never persisted.
type Session struct {
	mu        sync.RWMutex
	clock     clockwork.Clock
	token     string
	expiresAt time.Time
}

// NewSession creates an empty session. A nil clock means the real clock.
func NewSession(clk clockwork.Clock) *Session {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Session{clock: clk}
}

// IsValid reports whether a token is present and not yet expired.
func (s *Session) IsValid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != "" && s.clock.Now().Before(s.expiresAt)
}

// Set overwrites the token. A non-positive ttl falls back to
// pilot.DefaultTokenTTL. The token format is not validated.
func (s *Session) Set(token string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = pilot.DefaultTokenTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.expiresAt = s.clock.Now().Add(ttl)
}

// Clear wipes the token and expiry.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.expiresAt = time.Time{}
}

// Token returns the bearer token while the session is valid.
func (s *Session) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" || !s.clock.Now().Before(s.expiresAt) {
		return "", false
	}
	return s.token, true
}

// ExpiresAt returns the expiry of the current token, zero when empty.
func (s *Session) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt
}
