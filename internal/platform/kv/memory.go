package kv

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var ErrInjected = errors.New("injected store failure")

// MemoryStore keeps values in a map. FailWrites and FailReads make the next n
// calls fail, which is how tests drive the retry and rollback paths.
type MemoryStore struct {
	Feed

	mu         sync.RWMutex
	values     map[string][]byte
	failWrites int
	failReads  int
	writes     int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]byte)}
}

func (s *MemoryStore) FailWrites(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrites = n
}

func (s *MemoryStore) FailReads(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failReads = n
}

// Writes reports how many Set and Delete calls succeeded.
func (s *MemoryStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failReads > 0 {
		s.failReads--
		return nil, false, ErrInjected
	}
	v, ok := s.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *MemoryStore) Set(_ context.Context, entries map[string][]byte) error {
	s.mu.Lock()
	if s.failWrites > 0 {
		s.failWrites--
		s.mu.Unlock()
		return ErrInjected
	}
	changes := make([]Change, 0, len(entries))
	for k, v := range entries {
		s.values[k] = append([]byte(nil), v...)
		changes = append(changes, Change{Key: k, Value: v})
	}
	s.writes++
	s.mu.Unlock()
	s.Publish(changes...)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	if s.failWrites > 0 {
		s.failWrites--
		s.mu.Unlock()
		return ErrInjected
	}
	changes := make([]Change, 0, len(keys))
	for _, k := range keys {
		if _, ok := s.values[k]; ok {
			delete(s.values, k)
			changes = append(changes, Change{Key: k, Deleted: true})
		}
	}
	s.writes++
	s.mu.Unlock()
	s.Publish(changes...)
	return nil
}

func (s *MemoryStore) Keys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
