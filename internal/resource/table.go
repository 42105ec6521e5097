package resource

import (
	"errors"
	"fmt"
	"iter"
)

var (
	// ErrNotFound is returned for names or ids that were never registered.
	ErrNotFound = errors.New("resource: not found")

	// ErrDuplicateName is returned when registering a name twice.
	ErrDuplicateName = errors.New("resource: duplicate name")
)

// Table indexes values by unique name and by a dense id. Ids start at 1,
// are assigned in registration order and are never reused.
//
// Table is not safe for concurrent use; caches mutate it from their owner
// goroutine only.
type Table[T any] struct {
	byName map[string]T
	byID   []T
}

// NewTable creates an empty table.
func NewTable[T any]() *Table[T] {
	return &Table[T]{byName: make(map[string]T)}
}

// Lookup returns the value registered under name.
func (t *Table[T]) Lookup(name string) (T, bool) {
	v, ok := t.byName[name]
	return v, ok
}

// Register assigns the next id and stores the value built by create.
func (t *Table[T]) Register(name string, create func(id int) T) (T, error) {
	if _, exists := t.byName[name]; exists {
		var zero T
		return zero, fmt.Errorf("resource: register %s: %w", name, ErrDuplicateName)
	}
	id := len(t.byID) + 1
	v := create(id)
	t.byID = append(t.byID, v)
	t.byName[name] = v
	return v, nil
}

// ByID returns the value with the given id.
func (t *Table[T]) ByID(id int) (T, error) {
	if id < 1 || id > len(t.byID) {
		var zero T
		return zero, fmt.Errorf("resource: id %d: %w", id, ErrNotFound)
	}
	return t.byID[id-1], nil
}

// Len returns the number of registered values.
func (t *Table[T]) Len() int { return len(t.byID) }

// All yields every value in id order.
func (t *Table[T]) All() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		for i, v := range t.byID {
			if !yield(i+1, v) {
				return
			}
		}
	}
}
