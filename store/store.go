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

// Package store is the top-level façade of spec.md §4: it wires the merk
// authenticated-subtree engine, hierarchical composition (propagation of a
// child's root hash into its parent, and of a top-level subtree's root hash
// into the root-leaves map), reference resolution, the batch engine, and
// cost accounting behind a single API, the way trillian's LogStorage ties
// together its merkle, storage and hasher packages behind one interface.
package store

import (
	"context"

	"github.com/golang/glog"
	"github.com/google/uuid"

	"github.com/hads-project/hads/backend"
	"github.com/hads-project/hads/batch"
	"github.com/hads-project/hads/cost"
	"github.com/hads-project/hads/element"
	"github.com/hads-project/hads/errs"
	"github.com/hads-project/hads/hashutil"
	"github.com/hads-project/hads/merk"
	"github.com/hads-project/hads/roots"
	"github.com/hads-project/hads/scope"
)

// Store is a hierarchical authenticated key-value store over a single
// backend.KV.
type Store struct {
	kv      backend.KV
	hasher  hashutil.Hasher
	metrics *cost.Metrics
}

// Option configures Open.
type Option func(*Store)

// WithHasher overrides the default SHA256 hasher.
func WithHasher(h hashutil.Hasher) Option {
	return func(s *Store) { s.hasher = h }
}

// WithMetrics attaches a cost.Metrics sink; every Store operation's
// accumulated cost.Cost is observed through it. Operations run through a
// Txn are not observed.
func WithMetrics(m *cost.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// Open returns a Store backed by kv.
func Open(kv backend.KV, opts ...Option) *Store {
	s := &Store{kv: kv, hasher: hashutil.SHA256}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close releases the underlying backend.
func (s *Store) Close() error {
	return s.kv.Close()
}

func (s *Store) observe(c cost.Cost) {
	if s.metrics != nil {
		s.metrics.Observe(c)
	}
}

// openSubtree opens the Merk engine scoped to path against reader.
func (s *Store) openSubtree(reader backend.Reader, path scope.Path) (*merk.Merk, *scope.Context, error) {
	ctx, err := scope.New(reader, s.hasher, path)
	if err != nil {
		return nil, nil, errs.Wrap(errs.InvalidPath, err)
	}
	m, err := merk.Open(ctx, s.hasher)
	if err != nil {
		return nil, nil, errs.Wrap(errs.StorageError, err)
	}
	return m, ctx, nil
}

// RootHash returns the root hash of the subtree at path, or the overall
// root commitment (spec.md §4.2's root Merkle tree over every top-level
// subtree) when path is empty.
func (s *Store) RootHash(path scope.Path) ([32]byte, error) {
	if len(path) == 0 {
		rl, err := roots.Load(s.kv)
		if err != nil {
			return hashutil.ZeroHash, errs.Wrap(errs.StorageError, err)
		}
		return rl.Commitment(s.hasher), nil
	}
	m, _, err := s.openSubtree(s.kv, path)
	if err != nil {
		return hashutil.ZeroHash, err
	}
	return m.RootHash(), nil
}

// IsEmptyTree reports whether the subtree at path currently holds no
// entries (SPEC_FULL.md's supplemented is_empty_tree operation).
func (s *Store) IsEmptyTree(ctx context.Context, path scope.Path) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m, _, err := s.openSubtree(s.kv, path)
	if err != nil {
		return false, err
	}
	return m.IsEmpty(), nil
}

// Get reads the value stored at path/key, following Reference elements (up
// to MAX_REF_HOPS) to their final Item. It returns InvalidQuery if the
// resolved element is a Tree (a Tree is navigated via path, not read via
// Get).
func (s *Store) Get(ctx context.Context, path scope.Path, key []byte) (cost.Context[[]byte], error) {
	if err := ctx.Err(); err != nil {
		return cost.Context[[]byte]{}, err
	}
	acc := cost.Context[[]byte]{}
	val, c, err := s.resolve(s.kv, path, key)
	acc.Cost = acc.Cost.Add(c)
	s.observe(acc.Cost)
	if err != nil {
		return acc, err
	}
	acc.Value = val
	return acc, nil
}

// Insert writes el at path/key, then propagates the subtree's new root hash
// up through every ancestor (spec.md §4.2).
func (s *Store) Insert(ctx context.Context, path scope.Path, key []byte, el element.Element) (cost.Cost, error) {
	return s.insert(ctx, path, key, el, false)
}

// InsertIfNotExists is Insert but fails with errs.InvalidQuery when key
// already exists in the subtree at path.
func (s *Store) InsertIfNotExists(ctx context.Context, path scope.Path, key []byte, el element.Element) (cost.Cost, error) {
	return s.insert(ctx, path, key, el, true)
}

func (s *Store) insert(ctx context.Context, path scope.Path, key []byte, el element.Element, onlyIfAbsent bool) (cost.Cost, error) {
	if err := ctx.Err(); err != nil {
		return cost.Cost{}, err
	}
	var acc cost.Cost
	m, _, err := s.openSubtree(s.kv, path)
	if err != nil {
		return acc, err
	}

	if onlyIfAbsent {
		has, err := m.Has(key)
		if err != nil {
			return acc, errs.Wrap(errs.StorageError, err)
		}
		if has {
			return acc, errs.New(errs.InvalidQuery, "store: key %x already exists at %v", key, path)
		}
	}

	c, err := m.Apply([]merk.KeyOp{{Key: key, Kind: applyKind(el), Element: el}})
	acc = acc.Add(c)
	if err != nil {
		return acc, errs.Wrap(errs.StorageError, err)
	}

	b := s.kv.NewBatch()
	if err := m.Commit(b); err != nil {
		return acc, errs.Wrap(errs.StorageError, err)
	}
	if err := b.Commit(); err != nil {
		return acc, errs.Wrap(errs.StorageError, err)
	}

	if err := s.propagate(s.kv, path, m.RootHash()); err != nil {
		return acc, err
	}
	s.observe(acc)
	glog.V(2).Infof("store: inserted %x at %v", key, path)
	return acc, nil
}

func applyKind(el element.Element) merk.OpKind {
	if el.Kind == element.Reference {
		return merk.OpPutReference
	}
	return merk.OpPut
}

// Delete removes key from the subtree at path and propagates the resulting
// root hash.
func (s *Store) Delete(ctx context.Context, path scope.Path, key []byte) (cost.Cost, error) {
	if err := ctx.Err(); err != nil {
		return cost.Cost{}, err
	}
	var acc cost.Cost
	m, _, err := s.openSubtree(s.kv, path)
	if err != nil {
		return acc, err
	}

	c, err := m.Apply([]merk.KeyOp{{Key: key, Kind: merk.OpDelete}})
	acc = acc.Add(c)
	if err != nil {
		if errs.Is(err, errs.PathKeyNotFound) {
			return acc, err
		}
		return acc, errs.Wrap(errs.StorageError, err)
	}

	b := s.kv.NewBatch()
	if err := m.Commit(b); err != nil {
		return acc, errs.Wrap(errs.StorageError, err)
	}
	if err := b.Commit(); err != nil {
		return acc, errs.Wrap(errs.StorageError, err)
	}

	if err := s.propagate(s.kv, path, m.RootHash()); err != nil {
		return acc, err
	}
	s.observe(acc)
	return acc, nil
}

// ApplyBatch executes ops as one cross-subtree batch (spec.md §4.3): sort,
// dedupe, delete-expansion, validation and deepest-first execution all land
// in a single atomic commit against the backend.
func (s *Store) ApplyBatch(ctx context.Context, ops []batch.Op) (cost.Cost, error) {
	if err := ctx.Err(); err != nil {
		return cost.Cost{}, err
	}
	c, err := batch.Apply(s.kv, s.hasher, ops)
	s.observe(c)
	return c, err
}

// StartTransaction begins a snapshot-isolated Txn over the store.
func (s *Store) StartTransaction() (*Txn, error) {
	tx, err := s.kv.Begin()
	if err != nil {
		return nil, errs.Wrap(errs.StorageError, err)
	}
	id := uuid.New()
	glog.V(2).Infof("store: txn %s started", id)
	return &Txn{store: s, tx: tx, id: id}, nil
}

// Txn is a Store bound to an in-flight backend.Transaction; every method of
// Store that accepts a reader uses tx's snapshot view instead of the
// backend directly, per spec.md §5. id is a process-local identifier used
// only for log correlation, not persisted anywhere.
type Txn struct {
	store *Store
	tx    backend.Transaction
	id    uuid.UUID
}

// Commit makes every write performed through t visible.
func (t *Txn) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return errs.Wrap(errs.StorageError, err)
	}
	glog.V(2).Infof("store: txn %s committed", t.id)
	return nil
}

// Rollback discards every write performed through t.
func (t *Txn) Rollback() error {
	if err := t.tx.Rollback(); err != nil {
		return errs.Wrap(errs.StorageError, err)
	}
	glog.V(2).Infof("store: txn %s rolled back", t.id)
	return nil
}

// Get reads through the transaction's snapshot view.
func (t *Txn) Get(ctx context.Context, path scope.Path, key []byte) (cost.Context[[]byte], error) {
	if err := ctx.Err(); err != nil {
		return cost.Context[[]byte]{}, err
	}
	acc := cost.Context[[]byte]{}
	val, c, err := t.store.resolve(t.tx, path, key)
	acc.Cost = acc.Cost.Add(c)
	if err != nil {
		return acc, err
	}
	acc.Value = val
	return acc, nil
}

// Insert writes through the transaction, propagating root hashes using the
// transaction's own batches so nothing escapes until Commit.
func (t *Txn) Insert(ctx context.Context, path scope.Path, key []byte, el element.Element) (cost.Cost, error) {
	if err := ctx.Err(); err != nil {
		return cost.Cost{}, err
	}
	var acc cost.Cost
	m, _, err := t.store.openSubtree(t.tx, path)
	if err != nil {
		return acc, err
	}
	c, err := m.Apply([]merk.KeyOp{{Key: key, Kind: applyKind(el), Element: el}})
	acc = acc.Add(c)
	if err != nil {
		return acc, errs.Wrap(errs.StorageError, err)
	}
	b := t.tx.NewBatch()
	if err := m.Commit(b); err != nil {
		return acc, errs.Wrap(errs.StorageError, err)
	}
	if err := b.Commit(); err != nil {
		return acc, errs.Wrap(errs.StorageError, err)
	}
	return acc, t.store.propagate(t.tx, path, m.RootHash())
}

// ApplyBatch executes ops as one cross-subtree batch through the
// transaction's snapshot view; nothing is visible to other readers until
// Commit.
func (t *Txn) ApplyBatch(ctx context.Context, ops []batch.Op) (cost.Cost, error) {
	if err := ctx.Err(); err != nil {
		return cost.Cost{}, err
	}
	return batch.Apply(t.tx, t.store.hasher, ops)
}

// Delete removes key through the transaction's snapshot view.
func (t *Txn) Delete(ctx context.Context, path scope.Path, key []byte) (cost.Cost, error) {
	if err := ctx.Err(); err != nil {
		return cost.Cost{}, err
	}
	var acc cost.Cost
	m, _, err := t.store.openSubtree(t.tx, path)
	if err != nil {
		return acc, err
	}
	c, err := m.Apply([]merk.KeyOp{{Key: key, Kind: merk.OpDelete}})
	acc = acc.Add(c)
	if err != nil {
		return acc, errs.Wrap(errs.StorageError, err)
	}
	b := t.tx.NewBatch()
	if err := m.Commit(b); err != nil {
		return acc, errs.Wrap(errs.StorageError, err)
	}
	if err := b.Commit(); err != nil {
		return acc, errs.Wrap(errs.StorageError, err)
	}
	return acc, t.store.propagate(t.tx, path, m.RootHash())
}
