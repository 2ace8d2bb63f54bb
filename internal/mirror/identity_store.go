// Visitormap - Real-Time Visitor Map and Presence Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visitormap

package mirror

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const identityKey = "identity:visitor_id"

// IdentityStore remembers which visitor id this client resolved to, across
// restarts, so a returning client presents a stable identity instead of
// re-resolving blind.
type IdentityStore struct {
	db *badger.DB
}

// NewIdentityStore wraps an open badger database.
func NewIdentityStore(db *badger.DB) *IdentityStore {
	return &IdentityStore{db: db}
}

// OpenIdentityStore opens (or creates) a badger database at path and wraps
// it. An empty path opens an in-memory store that lasts for the process.
func OpenIdentityStore(path string) (*IdentityStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open identity store: %w", err)
	}
	return &IdentityStore{db: db}, nil
}

// Save persists the resolved visitor id.
func (s *IdentityStore) Save(id uuid.UUID) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(identityKey), []byte(id.String()))
	})
	if err != nil {
		return fmt.Errorf("failed to save identity: %w", err)
	}
	return nil
}

// Load returns the remembered visitor id, with ok=false when none is stored.
func (s *IdentityStore) Load() (uuid.UUID, bool, error) {
	var raw []byte

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(identityKey))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to load identity: %w", err)
	}

	id, err := uuid.Parse(string(raw))
	if err != nil {
		// A corrupt value is as good as no value; drop it.
		_ = s.Clear()
		return uuid.Nil, false, nil
	}
	return id, true, nil
}

// Clear forgets the remembered identity.
func (s *IdentityStore) Clear() error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(identityKey))
	})
	if err != nil {
		return fmt.Errorf("failed to clear identity: %w", err)
	}
	return nil
}

// Close releases the underlying database.
func (s *IdentityStore) Close() error {
	return s.db.Close()
}
