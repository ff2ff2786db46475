package storage

import (
	"context"
	"errors"
)

// ErrStorageUnavailable wraps any failure of the underlying storage backend.
var ErrStorageUnavailable = errors.New("storage unavailable")

// ChangeEvent describes a write observed on shared storage.
//
// An empty NewValue means the key was removed.
type ChangeEvent struct {
	Key      string `json:"key"`
	NewValue string `json:"value"`
	Origin   string `json:"origin"`
}

// Removed reports whether the event is a key removal.
func (e ChangeEvent) Removed() bool {
	return e.NewValue == ""
}

// Store is a string key/value store with whole-value overwrite semantics.
type Store interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Watcher delivers change events written by other origins.
//
// The returned stop function is idempotent. Cancelling ctx has the same
// effect as calling stop.
type Watcher interface {
	Watch(ctx context.Context, fn func(ChangeEvent)) (stop func(), err error)
}

// SharedStore is a store whose contents are visible to sibling tabs.
type SharedStore interface {
	Store
	Watcher
	// Origin identifies this store instance in change events.
	Origin() string
}
