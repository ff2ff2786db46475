package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/paifgx/quizdom-sub000/storage"
)

// ErrRecordCorrupt is returned by [Store.LoadRecord] when the persisted value
// cannot be decoded. The corrupt value has already been removed.
var ErrRecordCorrupt = errors.New("persisted session record corrupt")

// Keys names the storage keys owned by a [Store].
type Keys struct {
	Record string
	Token  string
}

// Store reads and writes the session cache through a key/value port.
type Store struct {
	kv   storage.Store
	keys Keys
}

// NewStore creates a record store over kv using the given key names.
func NewStore(kv storage.Store, keys Keys) *Store {
	return &Store{
		kv:   kv,
		keys: keys,
	}
}

// SaveRecord overwrites the persisted record.
func (s *Store) SaveRecord(ctx context.Context, r *Record) error {
	encoded, err := EncodeString(r)
	if err != nil {
		return fmt.Errorf("encode session record: %w", err)
	}
	return s.kv.Set(ctx, s.keys.Record, encoded)
}

// LoadRecord returns the persisted record, or nil when none exists.
//
// A value that fails to decode is deleted and reported as [ErrRecordCorrupt].
func (s *Store) LoadRecord(ctx context.Context) (*Record, error) {
	raw, ok, err := s.kv.Get(ctx, s.keys.Record)
	if err != nil {
		return nil, err
	}
	if !ok || raw == "" {
		return nil, nil
	}

	r, decErr := DecodeString(raw)
	if decErr != nil {
		if err := s.kv.Delete(ctx, s.keys.Record); err != nil {
			return nil, errors.Join(ErrRecordCorrupt, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrRecordCorrupt, decErr)
	}
	return r, nil
}

// Token returns the stored bearer token, or "" when none exists.
func (s *Store) Token(ctx context.Context) (string, error) {
	token, _, err := s.kv.Get(ctx, s.keys.Token)
	if err != nil {
		return "", err
	}
	return token, nil
}

// SaveToken overwrites the stored bearer token.
func (s *Store) SaveToken(ctx context.Context, token string) error {
	return s.kv.Set(ctx, s.keys.Token, token)
}

// Clear removes the record and the token. Both deletions are attempted even
// when the first fails.
func (s *Store) Clear(ctx context.Context) error {
	return errors.Join(
		s.kv.Delete(ctx, s.keys.Record),
		s.kv.Delete(ctx, s.keys.Token),
	)
}

// Broadcast writes a marker value under key so watchers in sibling tabs
// observe a change. stamp must differ between broadcasts.
func (s *Store) Broadcast(ctx context.Context, key, stamp string) error {
	if stamp == "" {
		return errors.New("broadcast stamp must not be empty")
	}
	return s.kv.Set(ctx, key, stamp)
}
