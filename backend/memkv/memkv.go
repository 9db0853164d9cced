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

// Package memkv is an in-process backend.KV implementation backed by
// github.com/google/btree (a dependency pphaneuf-trillian's own go.mod
// already carries but never exercises directly). It is used by the engine's
// own tests, and is a reasonable reference/embedded backend for callers who
// don't need on-disk persistence. Snapshot isolation for transactions comes
// for free from btree.BTree's copy-on-write Clone.
package memkv

import (
	"bytes"
	"sync"

	"github.com/google/btree"

	"github.com/hads-project/hads/backend"
)

const btreeDegree = 32

type kvItem struct {
	key, value []byte
}

func (a kvItem) Less(than btree.Item) bool {
	return bytes.Compare(a.key, than.(kvItem).key) < 0
}

// DB is an in-memory ordered KV store with one btree per column.
type DB struct {
	mu      sync.RWMutex
	columns map[backend.Column]*btree.BTree
}

// New returns an empty in-memory backend.KV.
func New() *DB {
	return &DB{columns: map[backend.Column]*btree.BTree{
		backend.Data:  btree.New(btreeDegree),
		backend.Aux:   btree.New(btreeDegree),
		backend.Roots: btree.New(btreeDegree),
	}}
}

func (db *DB) tree(col backend.Column) *btree.BTree {
	t, ok := db.columns[col]
	if !ok {
		t = btree.New(btreeDegree)
		db.columns[col] = t
	}
	return t
}

// Get implements backend.Reader.
func (db *DB) Get(col backend.Column, key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	item := db.tree(col).Get(kvItem{key: key})
	if item == nil {
		return nil, backend.ErrNotFound
	}
	v := item.(kvItem).value
	return append([]byte(nil), v...), nil
}

// RawIterator implements backend.Reader.
func (db *DB) RawIterator(col backend.Column, prefix []byte) backend.RawIterator {
	db.mu.RLock()
	snapshot := db.tree(col).Clone()
	db.mu.RUnlock()
	return newIterator(snapshot, prefix)
}

// NewBatch implements backend.KV.
func (db *DB) NewBatch() backend.Batch {
	return &memBatch{db: db}
}

// Begin implements backend.KV, returning a snapshot-isolated transaction
// backed by a copy-on-write clone of every column's btree.
func (db *DB) Begin() (backend.Transaction, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	snapshot := make(map[backend.Column]*btree.BTree, len(db.columns))
	for col, t := range db.columns {
		snapshot[col] = t.Clone()
	}
	return &txn{db: db, view: snapshot}, nil
}

// Close implements backend.KV.
func (db *DB) Close() error { return nil }

type memBatch struct {
	db      *DB
	txn     *txn
	puts    []kvPut
	deletes []kvDelete
}

type kvPut struct {
	col        backend.Column
	key, value []byte
}

type kvDelete struct {
	col backend.Column
	key []byte
}

func (b *memBatch) Put(col backend.Column, key, value []byte) {
	b.puts = append(b.puts, kvPut{col, append([]byte(nil), key...), append([]byte(nil), value...)})
}

func (b *memBatch) Delete(col backend.Column, key []byte) {
	b.deletes = append(b.deletes, kvDelete{col, append([]byte(nil), key...)})
}

func (b *memBatch) Commit() error {
	if b.txn != nil {
		return b.commitToTxn()
	}
	b.db.mu.Lock()
	defer b.db.mu.Unlock()
	for _, p := range b.puts {
		b.db.tree(p.col).ReplaceOrInsert(kvItem{key: p.key, value: p.value})
	}
	for _, d := range b.deletes {
		b.db.tree(d.col).Delete(kvItem{key: d.key})
	}
	return nil
}

func (b *memBatch) commitToTxn() error {
	b.txn.mu.Lock()
	defer b.txn.mu.Unlock()
	for _, p := range b.puts {
		b.txn.tree(p.col).ReplaceOrInsert(kvItem{key: p.key, value: p.value})
	}
	for _, d := range b.deletes {
		b.txn.tree(d.col).Delete(kvItem{key: d.key})
	}
	return nil
}

// txn is a snapshot-isolated transaction: view holds one mutable clone per
// column, seeded at Begin() time and mutated only by this transaction's own
// batches. Commit installs view as db's columns, replacing them wholesale,
// so any write that reached db after Begin() is not kept.
type txn struct {
	mu   sync.RWMutex
	db   *DB
	view map[backend.Column]*btree.BTree
}

func (t *txn) tree(col backend.Column) *btree.BTree {
	bt, ok := t.view[col]
	if !ok {
		bt = btree.New(btreeDegree)
		t.view[col] = bt
	}
	return bt
}

func (t *txn) Get(col backend.Column, key []byte) ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	item := t.tree(col).Get(kvItem{key: key})
	if item == nil {
		return nil, backend.ErrNotFound
	}
	return append([]byte(nil), item.(kvItem).value...), nil
}

func (t *txn) RawIterator(col backend.Column, prefix []byte) backend.RawIterator {
	t.mu.RLock()
	snapshot := t.tree(col).Clone()
	t.mu.RUnlock()
	return newIterator(snapshot, prefix)
}

func (t *txn) NewBatch() backend.Batch {
	return &memBatch{db: t.db, txn: t}
}

func (t *txn) Commit() error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	for col, bt := range t.view {
		t.db.columns[col] = bt
	}
	return nil
}

func (t *txn) Rollback() error {
	return nil
}

var _ backend.KV = (*DB)(nil)
var _ backend.Transaction = (*txn)(nil)
