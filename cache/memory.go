// Package cache provides a small in-memory TTL cache used to absorb
// checkpoint status polling from the operator surface.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/root-sector/customer-data-protection-module-encryption/interfaces"
)

// ErrCacheMiss is returned when a key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

const defaultJanitorInterval = time.Minute

type entry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStorage implements interfaces.Storage with an in-process map.
// Values are stored as JSON so cached entries never share mutable state
// with callers.
type MemoryStorage struct {
	mu   sync.RWMutex
	data map[string]entry
	done chan struct{}
	once sync.Once
}

// NewMemoryStorage creates a memory cache with a background janitor that
// evicts expired entries.
func NewMemoryStorage() *MemoryStorage {
	s := &MemoryStorage{
		data: make(map[string]entry),
		done: make(chan struct{}),
	}
	go s.janitor()
	return s
}

var _ interfaces.Storage = (*MemoryStorage)(nil)

func (s *MemoryStorage) janitor() {
	ticker := time.NewTicker(defaultJanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evictExpired()
		case <-s.done:
			return
		}
	}
}

func (s *MemoryStorage) evictExpired() {
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for key, e := range s.data {
		if now.After(e.expiresAt) {
			delete(s.data, key)
			evicted++
		}
	}
	if evicted > 0 {
		log.Debug().Int("evicted", evicted).Msg("Expired cache entries removed")
	}
}

// Get unmarshals the cached entry into value, or returns ErrCacheMiss.
func (s *MemoryStorage) Get(ctx context.Context, key string, value interface{}) error {
	s.mu.RLock()
	e, ok := s.data[key]
	s.mu.RUnlock()

	if !ok || time.Now().UTC().After(e.expiresAt) {
		return ErrCacheMiss
	}
	return json.Unmarshal(e.data, value)
}

// Set stores value under key for the given ttl.
func (s *MemoryStorage) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.data[key] = entry{data: data, expiresAt: time.Now().UTC().Add(ttl)}
	s.mu.Unlock()
	return nil
}

// Delete removes a key.
func (s *MemoryStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

// Clear removes every entry.
func (s *MemoryStorage) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.data = make(map[string]entry)
	s.mu.Unlock()
	return nil
}

// Close stops the janitor.
func (s *MemoryStorage) Close() {
	s.once.Do(func() { close(s.done) })
}
