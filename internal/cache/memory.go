package cache

import (
	"context"
	"fmt"
	"path"
	"sync"
	"time"
)

// memoryStore is the in-process Store driver used for the local build
// target and by tests. Entries carry an absolute expiry and are evicted
// lazily on access.
type memoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// NewMemoryStore returns an empty in-process Store.
func NewMemoryStore() Store {
	return &memoryStore{entries: make(map[string]memoryEntry)}
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

func (s *memoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return "", false, nil
	}
	if e.expired(time.Now()) {
		delete(s.entries, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (s *memoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	s.entries[key] = memoryEntry{value: value, expiresAt: exp}
	return nil
}

func (s *memoryStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok && !e.expired(time.Now()) {
		return false, nil
	}
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	s.entries[key] = memoryEntry{value: value, expiresAt: exp}
	return true, nil
}

func (s *memoryStore) Del(ctx context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var n int64
	for _, k := range keys {
		if e, ok := s.entries[k]; ok {
			if !e.expired(now) {
				n++
			}
			delete(s.entries, k)
		}
	}
	return n, nil
}

func (s *memoryStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var out []string
	for k, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, k)
			continue
		}
		ok, err := path.Match(pattern, k)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		if ok {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *memoryStore) TTL(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	now := time.Now()
	if !ok || e.expired(now) {
		delete(s.entries, key)
		return TTLMissing, nil
	}
	if e.expiresAt.IsZero() {
		return TTLNoExpiry, nil
	}
	secs := int64(e.expiresAt.Sub(now) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs, nil
}

func (s *memoryStore) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

func (s *memoryStore) DBSize(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var n int64
	for k, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, k)
			continue
		}
		n++
	}
	return n, nil
}

func (s *memoryStore) Info(ctx context.Context, section string) (string, error) {
	s.mu.RLock()
	var bytes int
	for k, e := range s.entries {
		bytes += len(k) + len(e.value)
	}
	n := len(s.entries)
	s.mu.RUnlock()
	return fmt.Sprintf("# %s\r\nused_memory:%d\r\nused_memory_human:%dB\r\nkeys:%d\r\n", section, bytes, bytes, n), nil
}

func (s *memoryStore) HealthPing(ctx context.Context) error { return nil }

func (s *memoryStore) Close() error { return nil }
