package storage

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type memoryWatcher struct {
	origin string
	fn     func(ChangeEvent)
}

// MemoryBackend is an in-process storage area shared by any number of tabs.
//
// It stands in for browser localStorage in tests and single-process hosts.
type MemoryBackend struct {
	mu       sync.RWMutex
	data     map[string]string
	watchers map[uint64]memoryWatcher
	nextID   uint64
}

// NewMemoryBackend returns an empty shared storage area.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		data:     make(map[string]string),
		watchers: make(map[uint64]memoryWatcher),
	}
}

// Tab returns a new store view with its own origin.
func (b *MemoryBackend) Tab() *MemoryStore {
	return &MemoryStore{
		backend: b,
		origin:  uuid.NewString(),
	}
}

// Len returns the number of stored keys.
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.data)
}

// MemoryStore is one tab's view of a [MemoryBackend].
type MemoryStore struct {
	backend *MemoryBackend
	origin  string
}

// Origin returns the tab identifier used in change events.
func (s *MemoryStore) Origin() string {
	return s.origin
}

// Get returns the value stored under key.
func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.backend.mu.RLock()
	defer s.backend.mu.RUnlock()

	v, ok := s.backend.data[key]
	return v, ok, nil
}

// Set stores value under key and notifies the other tabs when the value changed.
func (s *MemoryStore) Set(ctx context.Context, key, value string) error {
	if value == "" {
		return s.Delete(ctx, key)
	}

	b := s.backend
	b.mu.Lock()
	prev, existed := b.data[key]
	b.data[key] = value
	var targets []func(ChangeEvent)
	if !existed || prev != value {
		targets = b.targetsLocked(s.origin)
	}
	b.mu.Unlock()

	dispatch(targets, ChangeEvent{Key: key, NewValue: value, Origin: s.origin})
	return nil
}

// Delete removes key. Removing an absent key notifies nobody.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	b := s.backend
	b.mu.Lock()
	_, existed := b.data[key]
	delete(b.data, key)
	var targets []func(ChangeEvent)
	if existed {
		targets = b.targetsLocked(s.origin)
	}
	b.mu.Unlock()

	dispatch(targets, ChangeEvent{Key: key, Origin: s.origin})
	return nil
}

// Watch registers fn for writes made by other tabs. Events are delivered on
// the writer's goroutine after the write is visible.
func (s *MemoryStore) Watch(ctx context.Context, fn func(ChangeEvent)) (func(), error) {
	b := s.backend
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.watchers[id] = memoryWatcher{origin: s.origin, fn: fn}
	b.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.watchers, id)
			b.mu.Unlock()
		})
	}
	if ctx != nil {
		context.AfterFunc(ctx, stop)
	}
	return stop, nil
}

func (b *MemoryBackend) targetsLocked(origin string) []func(ChangeEvent) {
	targets := make([]func(ChangeEvent), 0, len(b.watchers))
	for _, w := range b.watchers {
		if w.origin == origin {
			continue
		}
		targets = append(targets, w.fn)
	}
	return targets
}

func dispatch(targets []func(ChangeEvent), ev ChangeEvent) {
	for _, fn := range targets {
		fn(ev)
	}
}
