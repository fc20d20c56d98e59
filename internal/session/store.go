package session

import "sync"

// Storage keys. Matches what the browser client keeps in session-scoped
// storage; nothing here survives the end of a session.
const (
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
	keyCurrentUser  = "current_user"
)

// Store is session-scoped string storage. The Manager is its only writer.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
}

// MemoryStore is the in-process Store. Contents vanish with the process,
// which is exactly the session-scoped lifetime the tokens want.
type MemoryStore struct {
	mu sync.RWMutex
	m  map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]string)}
}

func (s *MemoryStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok
}

func (s *MemoryStore) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
}

func (s *MemoryStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
}
