package entity

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownEntity is returned for ids the registry has never seen.
	ErrUnknownEntity = errors.New("entity: unknown id")
	// ErrIDsExhausted is returned once every id below InvalidID has been handed out.
	ErrIDsExhausted = errors.New("entity: ids exhausted")
)

// Registry owns the dense list of entity records and the stable id-to-index mapping.
// Records are appended and never removed, so an index stays valid for the process lifetime.
type Registry[T any] struct {
	records []T
	ids     []ID
	index   map[ID]int
	nextID  ID
}

// NewRegistry creates an empty registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{index: make(map[ID]int)}
}

// Len returns the number of records.
func (r *Registry[T]) Len() int {
	return len(r.records)
}

// NextID reserves the next monotonically increasing id. Ids are never reused, so the counter
// stops at InvalidID instead of wrapping onto live entities.
func (r *Registry[T]) NextID() (ID, error) {
	if r.nextID == InvalidID {
		return InvalidID, ErrIDsExhausted
	}
	id := r.nextID
	r.nextID++
	return id, nil
}

// Add stores record under id. It reports false when the id is already registered or is
// InvalidID.
func (r *Registry[T]) Add(id ID, record T) bool {
	if id == InvalidID {
		return false
	}
	if _, ok := r.index[id]; ok {
		return false
	}
	r.index[id] = len(r.records)
	r.records = append(r.records, record)
	r.ids = append(r.ids, id)
	if id >= r.nextID {
		r.nextID = id + 1
	}
	return true
}

// Has reports whether id is registered.
func (r *Registry[T]) Has(id ID) bool {
	_, ok := r.index[id]
	return ok
}

// Get returns a pointer to the record for id. The pointer is invalidated by the next Add.
func (r *Registry[T]) Get(id ID) (*T, error) {
	idx, ok := r.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownEntity, id)
	}
	return &r.records[idx], nil
}

// At returns the record at a dense index.
func (r *Registry[T]) At(i int) *T {
	return &r.records[i]
}

// IDAt returns the id of the record at a dense index.
func (r *Registry[T]) IDAt(i int) ID {
	return r.ids[i]
}

// Each visits every record in insertion order.
func (r *Registry[T]) Each(fn func(id ID, record *T)) {
	for i := range r.records {
		fn(r.ids[i], &r.records[i])
	}
}
