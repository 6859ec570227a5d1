// Package cache provides the response cache used to skip repeated generator
// calls for identical questions.
//
// Two backends are available: Memory, a process-local map guarded by a mutex,
// and Redis, which lets several ShopAssist instances share cached replies.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// DefaultTTL is applied when Set is called with a non-positive ttl.
const DefaultTTL = 24 * time.Hour

// Cache stores reply strings with a per-entry time to live.
type Cache interface {
	// Get returns the value if it has not expired. Expired entries are removed.
	Get(ctx context.Context, key string) (string, bool)
	// Set stores value under key, overwriting any previous entry.
	Set(ctx context.Context, key, value string, ttl time.Duration)
	// Clear drops every entry.
	Clear(ctx context.Context) error
}

// Key joins parts into a deterministic cache key separated by underscores.
func Key(parts ...string) string {
	return strings.Join(parts, "_")
}

// LogKey returns a short digest of key for log lines. Keys can embed shopper
// emails and must not be logged raw.
func LogKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:8])
}

type entry struct {
	value     string
	createdAt time.Time
	ttl       time.Duration
}

// Memory is an in-process Cache. Eviction is lazy: entries are only removed
// when a Get finds them expired.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// MemoryOption configures a Memory cache.
type MemoryOption func(*Memory)

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemory creates an empty in-process cache.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries: make(map[string]entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Get(_ context.Context, key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return "", false
	}
	if m.now().Sub(e.createdAt) > e.ttl {
		delete(m.entries, key)
		return "", false
	}
	return e.value, true
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m.mu.Lock()
	m.entries[key] = entry{value: value, createdAt: m.now(), ttl: ttl}
	m.mu.Unlock()
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	m.entries = make(map[string]entry)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
