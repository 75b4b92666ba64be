// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package cache provides the byte-oriented stores backing the catalog cache.
package cache

import (
	"context"
	"sync"
	"time"
)

// Store holds encoded values by key. A ttl of zero keeps the value until it
// is replaced or deleted.
type Store interface {
	// Get retrieves a value. The bool is false when the key is missing or expired.
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set stores a value with the specified TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	// Delete removes a value.
	Delete(ctx context.Context, key string)
	// Stats returns store statistics.
	Stats() Stats
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
	// Close releases background resources.
	Close() error
}

// Stats holds store performance counters.
type Stats struct {
	Hits        int64 // successful Get operations
	Misses      int64 // Get operations that found nothing (missing or expired)
	Sets        int64
	Evictions   int64 // expired entries cleaned up
	CurrentSize int
}

type entry struct {
	value      []byte
	expiration time.Time // zero means no expiry
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiration.IsZero() && now.After(e.expiration)
}

// memoryStore is an in-memory implementation of Store.
type memoryStore struct {
	mu      sync.RWMutex
	entries map[string]*entry
	stats   Stats
	stop    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

// NewMemoryStore creates an in-memory store. When cleanupInterval > 0 a
// janitor goroutine removes expired entries until Close is called.
func NewMemoryStore(cleanupInterval time.Duration) Store {
	s := &memoryStore{
		entries: make(map[string]*entry),
		stop:    make(chan struct{}),
	}
	if cleanupInterval > 0 {
		s.wg.Add(1)
		go s.janitor(cleanupInterval)
	}
	return s
}

func (s *memoryStore) Get(_ context.Context, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, found := s.entries[key]
	if !found || e.expired(time.Now()) {
		s.stats.Misses++
		return nil, false
	}
	s.stats.Hits++
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true
}

func (s *memoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	v := make([]byte, len(value))
	copy(v, value)

	e := &entry{value: v}
	if ttl > 0 {
		e.expiration = time.Now().Add(ttl)
	}

	s.mu.Lock()
	s.entries[key] = e
	s.stats.Sets++
	s.mu.Unlock()
}

func (s *memoryStore) Delete(_ context.Context, key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

func (s *memoryStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := s.stats
	stats.CurrentSize = len(s.entries)
	return stats
}

func (s *memoryStore) Ping(context.Context) error { return nil }

func (s *memoryStore) Close() error {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
	return nil
}

// deleteExpired removes all expired entries and returns how many were dropped.
func (s *memoryStore) deleteExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	count := 0
	for key, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, key)
			count++
		}
	}
	s.stats.Evictions += int64(count)
	return count
}

func (s *memoryStore) janitor(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.deleteExpired()
		case <-s.stop:
			return
		}
	}
}
