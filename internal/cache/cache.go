// Package cache holds short-lived string-set lookups, such as the clients a
// KAM manages. Entries expire after a TTL; a miss means "recompute".
package cache

import (
	"context"
	"sync"
	"time"
)

// SetCache stores string sets by key with a TTL.
type SetCache interface {
	Get(ctx context.Context, key string) ([]string, bool, error)
	Set(ctx context.Context, key string, values []string, ttl time.Duration) error
}

type memoryEntry struct {
	values    []string
	expiresAt time.Time
}

// Memory is the in-process SetCache used when no Redis is configured.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry), now: time.Now}
}

// WithClock replaces the clock used for expiry. Tests only.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
	return m
}

func (m *Memory) Get(_ context.Context, key string) ([]string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(entry.expiresAt) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return append([]string(nil), entry.values...), true, nil
}

func (m *Memory) Set(_ context.Context, key string, values []string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{
		values:    append([]string(nil), values...),
		expiresAt: m.now().Add(ttl),
	}
	return nil
}
