// Package expiry provides a time-keyed store for short-lived per-key state
// such as sessions and password-reset codes. The Store interface is the
// contract; the in-memory implementation is suitable for a single process
// and can be swapped for a shared cache in a multi-instance deployment.
package expiry

import (
	"sync"
	"time"
)

// Store holds string values that vanish after their TTL.
type Store interface {
	Set(key, value string, ttl time.Duration)
	Get(key string) (string, bool)
	Delete(key string)
}

type entry struct {
	value     string
	expiresAt time.Time
}

// MemoryStore is an in-process Store backed by a map with a janitor
// goroutine sweeping expired entries.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]entry
	done    chan struct{}
}

// NewMemoryStore creates a MemoryStore sweeping at the given interval.
func NewMemoryStore(sweepInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]entry),
		done:    make(chan struct{}),
	}
	go s.janitor(sweepInterval)
	return s
}

// Set stores value under key for ttl.
func (s *MemoryStore) Set(key, value string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry{value: value, expiresAt: time.Now().Add(ttl)}
}

// Get returns the value for key if it has not expired.
func (s *MemoryStore) Get(key string) (string, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok || time.Now().After(e.expiresAt) {
		return "", false
	}
	return e.value, true
}

// Delete removes key.
func (s *MemoryStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Close stops the janitor.
func (s *MemoryStore) Close() {
	close(s.done)
}

func (s *MemoryStore) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for k, e := range s.entries {
				if now.After(e.expiresAt) {
					delete(s.entries, k)
				}
			}
			s.mu.Unlock()
		}
	}
}
