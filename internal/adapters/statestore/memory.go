package statestore

import (
	"context"
	"sync"
)

type entry struct {
	doc     []byte
	version int64
}

// Memory is an in-process Store.
type Memory struct {
	mu   sync.Mutex
	docs map[string]entry
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string]entry)}
}

// Load implements Store.
func (m *Memory) Load(_ context.Context, key string) ([]byte, int64, error) {
	if err := validateKey(key); err != nil {
		return nil, 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.docs[key]
	if !ok {
		return nil, 0, nil
	}
	return append([]byte(nil), e.doc...), e.version, nil
}

// Save implements Store.
func (m *Memory) Save(_ context.Context, key string, doc []byte, expected int64) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.docs[key].version != expected {
		return false, nil
	}
	m.docs[key] = entry{doc: append([]byte(nil), doc...), version: expected + 1}
	return true, nil
}
