// Package lock serialises mutations of a single order across concurrent
// requests and, with the Redis backend, across ShopAssist instances.
package lock

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL bounds how long a crashed holder can block an order. It covers
// the longest mutation, an outbound call awaited up to five minutes.
const DefaultTTL = 6 * time.Minute

// ReleaseFunc releases a held lock. Calling it more than once is harmless.
type ReleaseFunc func()

// Locker grants non-blocking exclusive locks keyed by string.
type Locker interface {
	// TryLock acquires key for ttl. ok is false when another holder has it.
	TryLock(ctx context.Context, key string, ttl time.Duration) (release ReleaseFunc, ok bool, err error)
}

// Key returns the lock key for an order.
func Key(orderNumber string) string {
	return "order:" + orderNumber
}

// Memory is a process-local Locker.
type Memory struct {
	mu   sync.Mutex
	held map[string]memoryLease
	now  func() time.Time
	seq  uint64
}

type memoryLease struct {
	id      uint64
	expires time.Time
}

// NewMemory creates an empty in-process locker.
func NewMemory() *Memory {
	return &Memory{held: make(map[string]memoryLease), now: time.Now}
}

func (m *Memory) TryLock(_ context.Context, key string, ttl time.Duration) (ReleaseFunc, bool, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if lease, ok := m.held[key]; ok && now.Before(lease.expires) {
		return nil, false, nil
	}
	m.seq++
	id := m.seq
	m.held[key] = memoryLease{id: id, expires: now.Add(ttl)}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if lease, ok := m.held[key]; ok && lease.id == id {
				delete(m.held, key)
			}
		})
	}, true, nil
}
