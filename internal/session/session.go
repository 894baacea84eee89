// Package session holds the ambient session token and hands it to
// transport components on demand.  Injecting Store.Token as a provider
// keeps the stream client and the REST client free of globals.
package session

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Store is a concurrency-safe container for the current session JWT.
// The zero value is an anonymous session.
type Store struct {
	mu    sync.RWMutex
	token string
	now   func() time.Time
}

// NewStore builds a Store, optionally seeded with a pre-issued token.
func NewStore(token string) *Store {
	return &Store{token: token, now: time.Now}
}

// SetToken replaces the session token, e.g. after a login or refresh.
func (s *Store) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// Clear drops the session token.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
}

// Token returns the current token, or "" when none is set or the one
// on hand is already expired.  Expiry is read from the JWT's exp claim
// without verifying the signature: verification is the backend's job,
// the client only avoids sending a token it knows to be dead.
func (s *Store) Token() string {
	s.mu.RLock()
	token := s.token
	now := s.now
	s.mu.RUnlock()
	if token == "" {
		return ""
	}
	if now == nil {
		now = time.Now
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		// Opaque (non-JWT) tokens pass through untouched.
		return token
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return token
	}
	if !exp.After(now()) {
		return ""
	}
	return token
}
