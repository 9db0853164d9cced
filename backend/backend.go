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

// Package backend declares the transactional storage adapter contract that
// the engine assumes (spec.md §1, §6): a scoped, prefixed view over an
// ordered key-value store with atomic multi-column batches. The engine
// treats concrete backend implementations (backend/badgerkv,
// backend/memkv) as external collaborators reachable only through this
// contract, the same separation trillian draws between its merkle package
// and its storage.NodeStorage interface.
package backend

import "errors"

// Column names a logical column family. Implementations must support at
// least Data, Aux and Roots (spec.md §6).
type Column string

const (
	Data  Column = "data"
	Aux   Column = "aux"
	Roots Column = "roots"
)

// ErrNotFound is returned by Get when the key is absent from the column.
var ErrNotFound = errors.New("backend: key not found")

// Reader is the read-only half of the backend contract, shared by KV and
// Transaction.
type Reader interface {
	// Get performs a point read. It returns ErrNotFound if the key is absent.
	Get(col Column, key []byte) ([]byte, error)

	// RawIterator returns an ordered iterator over col, optionally restricted
	// to keys with the given prefix.
	RawIterator(col Column, prefix []byte) RawIterator
}

// KV is a point-access, ordered key-value store exposing the capabilities
// listed in spec.md §6.
type KV interface {
	Reader

	// NewBatch returns a Batch that buffers puts/deletes across columns;
	// Commit applies them atomically.
	NewBatch() Batch

	// Begin starts a snapshot-isolated Transaction. Backends that cannot
	// offer true snapshot isolation must still serialize concurrent
	// transactions so that spec.md §5's ordering guarantees hold.
	Begin() (Transaction, error)

	// Close releases backend resources.
	Close() error
}

// RawIterator provides ordered iteration with seek-first/last/key, next,
// prev, valid, key, value, matching spec.md §6's raw_iter capability and
// grovedb's RawIterator trait.
type RawIterator interface {
	SeekToFirst()
	SeekToLast()
	Seek(key []byte)
	Next()
	Prev()
	Valid() bool
	Key() []byte
	Value() []byte
	// Close releases any resources held by the iterator (e.g. a badger
	// snapshot). Safe to call multiple times.
	Close()
}

// Batch buffers put/delete operations across columns for atomic commit.
type Batch interface {
	Put(col Column, key, value []byte)
	Delete(col Column, key []byte)
	// Commit applies all buffered operations atomically. A Batch must not be
	// reused after Commit.
	Commit() error
}

// Transaction is a snapshot-isolated view with its own batch semantics; see
// spec.md §5 "A read under a transaction view observes exactly the writes
// performed under that transaction plus the snapshot taken at
// start_transaction."
type Transaction interface {
	Reader
	// NewBatch returns a Batch scoped to this transaction; its Commit buffers
	// into the transaction rather than the backend directly.
	NewBatch() Batch
	// Commit makes all writes performed under the transaction visible
	// unconditionally, in the order Commit returns (spec.md §5).
	Commit() error
	// Rollback discards all writes performed under the transaction. Partial
	// effects are never observable (spec.md §5, §7).
	Rollback() error
}
