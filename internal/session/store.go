// Package session provides client-local storage for anonymous cart session
// tokens. A token addresses the visitor's anonymous cart until it either
// expires or is retired by a successful merge at login.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is an in-memory token store with per-token expiry.
type Store struct {
	mu     sync.RWMutex
	tokens map[string]time.Time
	ttl    time.Duration
	now    func() time.Time
}

// NewStore creates a session token store whose tokens expire after ttl.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		tokens: make(map[string]time.Time),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue creates a new opaque session token and records its expiry.
func (s *Store) Issue() string {
	token := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = s.now().Add(s.ttl)
	return token
}

// Valid reports whether the token exists and has not expired.
func (s *Store) Valid(token string) bool {
	if token == "" {
		return false
	}
	s.mu.RLock()
	expiry, ok := s.tokens[token]
	s.mu.RUnlock()
	return ok && s.now().Before(expiry)
}

// Delete removes the token. Called after a successful merge so the token is
// never reused, and by the janitor for expired tokens.
func (s *Store) Delete(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

// Sweep removes expired tokens and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	now := s.now()
	for token, expiry := range s.tokens {
		if !now.Before(expiry) {
			delete(s.tokens, token)
			removed++
		}
	}
	return removed
}

// StartJanitor sweeps expired tokens at the given interval until ctx is done.
func (s *Store) StartJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
