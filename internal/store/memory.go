// Package store provides storage backends for StepUp.
//
// This file implements the in-memory reactive store. It is the authoritative
// implementation of the merge and subscription semantics; the persistent
// backends embed it and add write-through.
package store

import (
	"log/slog"
	"sync"
)

// MemoryStore is an in-memory reactive key-value store.
type MemoryStore struct {
	mu          sync.Mutex
	values      map[Key]any
	subscribers map[Key]map[int]func(value any)
	nextSubID   int
	// onCommit, when set, is invoked with the committed value while the
	// store lock is held. Persistent backends use it for write-through.
	onCommit func(key Key, value any)
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	slog.Debug("Creating MemoryStore")
	return &MemoryStore{
		values:      make(map[Key]any),
		subscribers: make(map[Key]map[int]func(value any)),
	}
}

// Get returns the value at key and whether it has ever been written.
func (s *MemoryStore) Get(key Key) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Set replaces the value at key and notifies subscribers.
func (s *MemoryStore) Set(key Key, value any) error {
	s.mu.Lock()
	s.values[key] = value
	if s.onCommit != nil {
		s.onCommit(key, value)
	}
	fns := s.snapshotSubscribers(key)
	s.mu.Unlock()

	s.notify(key, value, fns)
	return nil
}

// Merge applies patch into the map held at key. Entries patched to nil are
// deleted; merging into an unset key starts from an empty map. The patched
// map replaces the stored value as a whole, so subscribers always observe a
// complete snapshot.
func (s *MemoryStore) Merge(key Key, patch map[string]any) error {
	s.mu.Lock()
	merged := make(map[string]any)
	if existing, ok := s.values[key].(map[string]any); ok {
		for k, v := range existing {
			merged[k] = v
		}
	}
	for k, v := range patch {
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}
	s.values[key] = merged
	if s.onCommit != nil {
		s.onCommit(key, merged)
	}
	fns := s.snapshotSubscribers(key)
	s.mu.Unlock()

	s.notify(key, merged, fns)
	return nil
}

// Subscribe registers fn for changes to key.
func (s *MemoryStore) Subscribe(key Key, fn func(value any)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subscribers[key] == nil {
		s.subscribers[key] = make(map[int]func(value any))
	}
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[key][id] = fn
	slog.Debug("MemoryStore subscription added", "key", key, "subscriberID", id)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers[key], id)
		slog.Debug("MemoryStore subscription removed", "key", key, "subscriberID", id)
	}
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// snapshotSubscribers copies the subscriber set for key. Caller must hold mu.
func (s *MemoryStore) snapshotSubscribers(key Key) []func(value any) {
	subs := s.subscribers[key]
	if len(subs) == 0 {
		return nil
	}
	fns := make([]func(value any), 0, len(subs))
	for _, fn := range subs {
		fns = append(fns, fn)
	}
	return fns
}

// notify delivers the committed value outside the store lock, so subscriber
// callbacks may read from or write back into the store.
func (s *MemoryStore) notify(key Key, value any, fns []func(value any)) {
	for _, fn := range fns {
		fn(value)
	}
	if len(fns) > 0 {
		slog.Debug("MemoryStore notified subscribers", "key", key, "count", len(fns))
	}
}
