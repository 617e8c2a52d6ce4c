// Package storage provides session-storage backends for the container:
// the OS keyring for desktop hosts, a bbolt file for headless hosts, and an
// in-memory store for tests and ephemeral sessions.
package storage

import "sync"

// MemoryStore keeps refresh tokens and anonymous key IDs in process memory.
// Sessions stored here do not survive a restart.
type MemoryStore struct {
	mu              sync.RWMutex
	refreshTokens   map[string]string
	anonymousKeyIDs map[string]string
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		refreshTokens:   make(map[string]string),
		anonymousKeyIDs: make(map[string]string),
	}
}

func (s *MemoryStore) RefreshToken(namespace string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshTokens[namespace], nil
}

func (s *MemoryStore) SetRefreshToken(namespace, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshTokens[namespace] = token
	return nil
}

func (s *MemoryStore) DelRefreshToken(namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.refreshTokens, namespace)
	return nil
}

func (s *MemoryStore) AnonymousKeyID(namespace string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.anonymousKeyIDs[namespace], nil
}

func (s *MemoryStore) SetAnonymousKeyID(namespace, keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anonymousKeyIDs[namespace] = keyID
	return nil
}

func (s *MemoryStore) DelAnonymousKeyID(namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.anonymousKeyIDs, namespace)
	return nil
}
