package kvstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/yndnr/storyline-go/pkg/cmap"
)

// Memory is an in-process Store backed by a sharded map.
type Memory struct {
	data  *cmap.Map[[]byte]
	quota int64

	mu   sync.Mutex // serializes writes for quota accounting
	used int64
}

// NewMemory creates a memory store. quota <= 0 means unbounded.
func NewMemory(quota int64) *Memory {
	if quota < 0 {
		quota = 0
	}
	return &Memory{
		data:  cmap.New[[]byte](),
		quota: quota,
	}
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.data.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set implements Store.
func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	used := m.used + entrySize(key, value)
	if old, ok := m.data.Get(key); ok {
		used -= entrySize(key, old)
	}
	if m.quota > 0 && used > m.quota {
		return ErrQuotaExceeded.WithDetails(fmt.Sprintf("key %q needs %d bytes, quota %d", key, used, m.quota))
	}
	m.data.Set(key, append([]byte(nil), value...))
	m.used = used
	return nil
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.data.Pop(key); ok {
		m.used -= entrySize(key, old)
	}
	return nil
}

// Keys implements Store.
func (m *Memory) Keys(_ context.Context) ([]string, error) {
	return m.data.Keys(), nil
}

// Clear implements Store.
func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.Clear()
	m.used = 0
	return nil
}

// Used implements Usage.
func (m *Memory) Used() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used
}

// Quota implements Usage.
func (m *Memory) Quota() int64 { return m.quota }
