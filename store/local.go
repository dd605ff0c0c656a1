package store

import (
	"context"
	"sync"
)

type LocalStore struct {
	sessions map[string]map[string]struct{}
	owners   map[string]string
	mu       sync.RWMutex
}

func NewLocal() *LocalStore {
	return &LocalStore{
		sessions: make(map[string]map[string]struct{}),
		owners:   make(map[string]string),
	}
}

func (s *LocalStore) Join(_ context.Context, joinCode, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	users, ok := s.sessions[joinCode]
	if !ok {
		users = make(map[string]struct{})
		s.sessions[joinCode] = users
	}
	users[email] = struct{}{}
	return nil
}

func (s *LocalStore) Leave(_ context.Context, joinCode, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if users, ok := s.sessions[joinCode]; ok {
		delete(users, email)
	}
	return nil
}

func (s *LocalStore) IsJoined(_ context.Context, joinCode, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users, ok := s.sessions[joinCode]
	if !ok {
		return false, nil
	}
	_, joined := users[email]
	return joined, nil
}

func (s *LocalStore) Count(_ context.Context, joinCode string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions[joinCode]), nil
}

func (s *LocalStore) SetOwner(_ context.Context, joinCode, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owners[joinCode] = ownerID
	return nil
}

func (s *LocalStore) Owner(_ context.Context, joinCode string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owners[joinCode], nil
}

func (s *LocalStore) Clear(_ context.Context, joinCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, joinCode)
	delete(s.owners, joinCode)
	return nil
}

func (s *LocalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]map[string]struct{})
	s.owners = make(map[string]string)
	return nil
}
