// Package storage provides the key/value backends cells persist into.
package storage

import (
	"errors"
	"maps"
	"sync"

	"github.com/delaneyj/cdom/cdom"
)

var (
	ErrEmptyName = errors.New("storage: empty item name")
	ErrClosed    = errors.New("storage: closed")
)

var (
	_ cdom.Storage = (*Memory)(nil)
	_ cdom.Storage = (*File)(nil)
	_ cdom.Storage = (*SQL)(nil)
	_ cdom.Storage = (*S3)(nil)
)

// Memory keeps items in a map. Safe for concurrent use.
type Memory struct {
	mu    sync.RWMutex
	items map[string]string
}

func NewMemory() *Memory {
	return &Memory{items: map[string]string{}}
}

func (m *Memory) GetItem(name string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[name]
	return v, ok, nil
}

func (m *Memory) SetItem(name, value string) error {
	if name == "" {
		return ErrEmptyName
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[name] = value
	return nil
}

// Snapshot copies the current contents.
func (m *Memory) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.items)
}
