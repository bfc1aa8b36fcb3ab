package kvstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"horse.fit/chatsense/internal/globaltime"
)

type memoryItem struct {
	value     []byte
	expiresAt *time.Time
}

// Memory is an in-process Store, used by tests and when STORE_BACKEND=memory.
type Memory struct {
	mu     sync.RWMutex
	clock  globaltime.Clock
	items  map[string]memoryItem
	closed bool
}

func NewMemory(clock globaltime.Clock) *Memory {
	return &Memory{
		clock: globaltime.OrSystem(clock),
		items: make(map[string]memoryItem),
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, false, ErrClosed
	}
	item, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}
	if item.expiresAt != nil && !m.clock.Now().Before(*item.expiresAt) {
		return nil, false, nil
	}
	return append([]byte(nil), item.value...), true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.items[key] = memoryItem{
		value:     append([]byte(nil), value...),
		expiresAt: expiryFor(m.clock.Now(), ttl),
	}
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.items, key)
	return nil
}

func (m *Memory) DeletePrefix(_ context.Context, prefix string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	var removed int64
	for key := range m.items {
		if strings.HasPrefix(key, prefix) {
			delete(m.items, key)
			removed++
		}
	}
	return removed, nil
}

func (m *Memory) PurgeExpired(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	now := m.clock.Now()
	var removed int64
	for key, item := range m.items {
		if item.expiresAt != nil && !now.Before(*item.expiresAt) {
			delete(m.items, key)
			removed++
		}
	}
	return removed, nil
}

// Len counts stored keys, including expired ones not yet purged.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
