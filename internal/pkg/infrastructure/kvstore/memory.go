package kvstore

import (
	"context"
	"fmt"
	"sync"
)

type memoryStore struct {
	mu     sync.Mutex
	schema int
	values map[string][]byte
}

func NewMemoryStore(schema int) Store {
	return &memoryStore{
		schema: schema,
		values: make(map[string][]byte),
	}
}

func (m *memoryStore) Get(ctx context.Context, key string, v any) (Meta, error) {
	m.mu.Lock()
	b, ok := m.values[key]
	m.mu.Unlock()

	if !ok {
		return Meta{}, ErrNotFound
	}

	return open(m.schema, b, v)
}

func (m *memoryStore) Put(ctx context.Context, key string, v any, expectedRevision uint64) (Meta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := uint64(0)
	if b, ok := m.values[key]; ok {
		current = revisionOf(b)
	}

	if current != expectedRevision {
		return Meta{}, fmt.Errorf("%w: %s is at revision %d, not %d", ErrRevisionConflict, key, current, expectedRevision)
	}

	b, meta, err := seal(m.schema, current, v)
	if err != nil {
		return Meta{}, err
	}

	m.values[key] = b
	return meta, nil
}

func (m *memoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)
	return nil
}
