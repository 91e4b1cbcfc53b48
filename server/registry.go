package server

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"sync"
)

// registryEntry pairs a key with its registered value.
type registryEntry[T any] struct {
	key   string
	value T
}

// registry is an insertion-ordered concurrent table. Listing follows
// registration order; re-registering a key replaces the value in place and
// keeps its slot. Lookups take the read side of the lock only.
type registry[T any] struct {
	mu      sync.RWMutex
	entries []registryEntry[T]
	index   map[string]int

	// onChange runs after every successful mutation, outside the lock.
	onChange func()
}

func newRegistry[T any]() *registry[T] {
	return &registry[T]{
		index: make(map[string]int),
	}
}

// add registers value under key. The last registration wins.
func (r *registry[T]) add(key string, value T) {
	r.mu.Lock()
	if i, ok := r.index[key]; ok {
		r.entries[i].value = value
	} else {
		r.index[key] = len(r.entries)
		r.entries = append(r.entries, registryEntry[T]{key: key, value: value})
	}
	onChange := r.onChange
	r.mu.Unlock()

	if onChange != nil {
		onChange()
	}
}

// remove deletes key. Removing an absent key is a no-op and fires no change
// event.
func (r *registry[T]) remove(key string) bool {
	r.mu.Lock()
	i, ok := r.index[key]
	if !ok {
		r.mu.Unlock()
		return false
	}
	r.entries = append(r.entries[:i], r.entries[i+1:]...)
	delete(r.index, key)
	for j := i; j < len(r.entries); j++ {
		r.index[r.entries[j].key] = j
	}
	onChange := r.onChange
	r.mu.Unlock()

	if onChange != nil {
		onChange()
	}
	return true
}

// get resolves key for dispatch.
func (r *registry[T]) get(key string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if i, ok := r.index[key]; ok {
		return r.entries[i].value, true
	}
	var zero T
	return zero, false
}

// snapshot returns a copy of all entries in registration order.
func (r *registry[T]) snapshot() []registryEntry[T] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]registryEntry[T], len(r.entries))
	copy(out, r.entries)
	return out
}

// page returns one snapshot-consistent page of values starting at cursor.
// nextCursor is empty on the final page.
func (r *registry[T]) page(cursor string, size int) (values []T, nextCursor string, err error) {
	offset := 0
	if cursor != "" {
		offset, err = decodeCursor(cursor)
		if err != nil {
			return nil, "", err
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if offset > len(r.entries) {
		return nil, "", fmt.Errorf("stale cursor")
	}

	end := offset + size
	if end > len(r.entries) {
		end = len(r.entries)
	}

	values = make([]T, 0, end-offset)
	for _, e := range r.entries[offset:end] {
		values = append(values, e.value)
	}

	if end < len(r.entries) {
		nextCursor = encodeCursor(end)
	}
	return values, nextCursor, nil
}

func (r *registry[T]) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// encodeCursor renders a list offset as an opaque cursor.
func encodeCursor(offset int) string {
	return base64.StdEncoding.EncodeToString([]byte(strconv.Itoa(offset)))
}

// decodeCursor parses an opaque cursor back into a list offset.
func decodeCursor(cursor string) (int, error) {
	raw, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return 0, fmt.Errorf("malformed cursor")
	}
	offset, err := strconv.Atoi(string(raw))
	if err != nil || offset < 0 {
		return 0, fmt.Errorf("malformed cursor")
	}
	return offset, nil
}
