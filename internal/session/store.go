package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ansibot/ansibot/internal/controller"
)

// Session token verification errors.
var (
	ErrInvalid = errors.New("invalid session token")
	ErrExpired = errors.New("session expired")
)

type entry struct {
	creds     controller.Credentials
	expiresAt time.Time
}

// Store holds controller credentials keyed by opaque session tokens. Entries
// expire after the configured TTL; expired entries are rejected on Verify and
// swept in the background. The store is an explicit dependency of its
// callers, never a package global.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
}

// NewStore creates a credential store with the given TTL.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{
		entries: make(map[string]entry),
		ttl:     ttl,
	}
}

// Create stores credentials and returns a fresh session token.
func (s *Store) Create(creds controller.Credentials) string {
	token := newSessionToken()
	s.mu.Lock()
	s.entries[token] = entry{
		creds:     creds,
		expiresAt: time.Now().Add(s.ttl),
	}
	s.mu.Unlock()
	return token
}

// Verify returns the credentials behind a token. An expired entry is removed
// and reported as ErrExpired; an unknown token is ErrInvalid.
func (s *Store) Verify(token string) (controller.Credentials, error) {
	s.mu.RLock()
	e, ok := s.entries[token]
	s.mu.RUnlock()
	if !ok {
		return controller.Credentials{}, ErrInvalid
	}
	if time.Now().After(e.expiresAt) {
		s.mu.Lock()
		delete(s.entries, token)
		s.mu.Unlock()
		return controller.Credentials{}, ErrExpired
	}
	return e.creds, nil
}

// Delete removes a session (logout).
func (s *Store) Delete(token string) {
	s.mu.Lock()
	delete(s.entries, token)
	s.mu.Unlock()
}

// Len returns the number of live entries, expired ones included until swept.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// StartSweeper runs background expiry until the context is cancelled.
// This should be run as a goroutine.
func (s *Store) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.sweep(); n > 0 {
				slog.Debug("swept expired sessions", "count", n)
			}
		}
	}
}

func (s *Store) sweep() int {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for token, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, token)
			removed++
		}
	}
	return removed
}

func newSessionToken() string {
	var b [24]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand never fails on supported platforms.
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(b[:])
}
