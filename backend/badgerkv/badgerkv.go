// Copyright 2016 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package badgerkv is the production backend.KV implementation, built on
// github.com/dgraph-io/badger/v4 (shruggr-inspiration's kvstore/badger
// adapter is the template this follows). BadgerDB gives us the
// snapshot-isolated (SSI) transactions the backend contract requires for
// free, and an LSM tree with ordered iteration.
//
// Badger has no native notion of column families, so columns are
// implemented as a one-byte key prefix, the same trick erigon's MDBX-backed
// kv package documents for engines without native table support.
package badgerkv

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/hads-project/hads/backend"
)

func columnPrefix(col backend.Column) byte {
	switch col {
	case backend.Data:
		return 0x01
	case backend.Aux:
		return 0x02
	case backend.Roots:
		return 0x03
	default:
		// Unknown columns are still namespaced, just outside the reserved
		// range, so a caller-defined column never collides with the three
		// required ones.
		return 0xFF
	}
}

func columnKey(col backend.Column, key []byte) []byte {
	out := make([]byte, 1+len(key))
	out[0] = columnPrefix(col)
	copy(out[1:], key)
	return out
}

// Store is a BadgerDB-backed backend.KV.
type Store struct {
	db *badger.DB
}

// Options configures Open.
type Options struct {
	// Dir is the directory BadgerDB stores its LSM tree and value log in.
	Dir string
	// InMemory runs BadgerDB purely in memory, ignoring Dir. Useful for
	// tests that want the production code path without touching disk.
	InMemory bool
}

// Open creates or opens a BadgerDB-backed backend.KV.
func Open(opts Options) (*Store, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Dir == "" {
			return nil, fmt.Errorf("badgerkv: Dir is required unless InMemory is set")
		}
		bopts = badger.DefaultOptions(opts.Dir)
	}
	bopts = bopts.WithLogger(nil)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("badgerkv: open: %w", err)
	}
	return &Store{db: db}, nil
}

// Get implements backend.Reader.
func (s *Store) Get(col backend.Column, key []byte) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(columnKey(col, key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = append([]byte{}, val...)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, backend.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badgerkv: get: %w", err)
	}
	return out, nil
}

// RawIterator implements backend.Reader.
func (s *Store) RawIterator(col backend.Column, prefix []byte) backend.RawIterator {
	txn := s.db.NewTransaction(false)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = columnKey(col, prefix)
	it := txn.NewIterator(opts)
	return &iterator{txn: txn, it: it, prefix: []byte{columnPrefix(col)}}
}

// NewBatch implements backend.KV using BadgerDB's WriteBatch, which applies
// atomically on Flush/Commit.
func (s *Store) NewBatch() backend.Batch {
	return &wbatch{wb: s.db.NewWriteBatch()}
}

// Begin implements backend.KV, starting a Badger SSI read-write transaction.
func (s *Store) Begin() (backend.Transaction, error) {
	return &txn{db: s.db, txn: s.db.NewTransaction(true)}, nil
}

// Close implements backend.KV.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ backend.KV = (*Store)(nil)
