package server

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"sync"
)

var ErrUserExists = errors.New("user already registered")

// UserRegistry is the in-memory account table backing the auth routes.
// The real user store lives in the survey backend; this one exists so the
// coordinator is self-sufficient for benches and tests.
type UserRegistry struct {
	users map[string][32]byte
	mu    sync.RWMutex
}

func NewUserRegistry() *UserRegistry {
	return &UserRegistry{users: make(map[string][32]byte)}
}

func (r *UserRegistry) Register(email, password string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[email]; ok {
		return ErrUserExists
	}
	r.users[email] = sha256.Sum256([]byte(password))
	return nil
}

func (r *UserRegistry) Authenticate(email, password string) bool {
	r.mu.RLock()
	stored, ok := r.users[email]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	given := sha256.Sum256([]byte(password))
	return subtle.ConstantTimeCompare(stored[:], given[:]) == 1
}
