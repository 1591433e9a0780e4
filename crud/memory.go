// Package crud holds state-based stores for aggregates that do not need
// history replay.
package crud

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/terraskye/eventkernel"
)

// Entity is anything with a stable identity.
type Entity[ID comparable] interface {
	ID() ID
}

// MemoryRepository is an in-process CrudRepository. Entities are kept by
// reference, so callers own synchronization of the entities themselves.
type MemoryRepository[ID comparable, A Entity[ID]] struct {
	mu       sync.RWMutex
	entities map[ID]A
	order    []ID
}

var _ eventkernel.CrudRepository[string, Entity[string]] = (*MemoryRepository[string, Entity[string]])(nil)

func NewMemoryRepository[ID comparable, A Entity[ID]]() *MemoryRepository[ID, A] {
	return &MemoryRepository[ID, A]{
		entities: make(map[ID]A),
	}
}

// FindByID returns the entity with the given identity or eventkernel.ErrNotFound.
func (m *MemoryRepository[ID, A]) FindByID(ctx context.Context, id ID) (A, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entity, ok := m.entities[id]
	if !ok {
		var zero A
		return zero, fmt.Errorf("find entity %v: %w", id, eventkernel.ErrNotFound)
	}
	return entity, nil
}

// Save inserts or replaces entity.
func (m *MemoryRepository[ID, A]) Save(ctx context.Context, entity A) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := entity.ID()
	if _, exists := m.entities[id]; !exists {
		m.order = append(m.order, id)
	}
	m.entities[id] = entity
	return nil
}

// Delete removes the entity with the given identity or returns eventkernel.ErrNotFound.
func (m *MemoryRepository[ID, A]) Delete(ctx context.Context, id ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entities[id]; !exists {
		return fmt.Errorf("delete entity %v: %w", id, eventkernel.ErrNotFound)
	}
	delete(m.entities, id)
	m.order = slices.DeleteFunc(m.order, func(v ID) bool { return v == id })
	return nil
}

// FindAll returns every entity in insertion order.
func (m *MemoryRepository[ID, A]) FindAll(ctx context.Context) ([]A, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]A, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.entities[id])
	}
	return out, nil
}
