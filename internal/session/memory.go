package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryStore keeps JSON snapshots of cart state in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Get decodes the snapshot stored under key into dst.
func (s *MemoryStore) Get(_ context.Context, key string, dst any) (bool, error) {
	defer observe("memory", "get", time.Now())
	s.mu.RLock()
	data, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// Put replaces the snapshot stored under key.
func (s *MemoryStore) Put(_ context.Context, key string, value any) error {
	defer observe("memory", "put", time.Now())
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		s.data = make(map[string][]byte)
	}
	s.data[key] = data
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Keys returns the number of stored keys.
func (s *MemoryStore) Keys() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
