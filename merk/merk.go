package merk

import (
	"bytes"
	"fmt"

	"github.com/hads-project/hads/backend"
	"github.com/hads-project/hads/cost"
	"github.com/hads-project/hads/hashutil"
	"github.com/hads-project/hads/scope"
)

// Two single-byte tags partition the roots column's key-space (itself
// already scoped to one subtree by scope.Context) so that the root pointer
// entry can never collide with a node keyed by user bytes.
const (
	tagNode    = 0x01
	tagRootPtr = 0x00
)

var rootPtrKey = []byte{tagRootPtr}

func nodeStorageKey(userKey []byte) []byte {
	out := make([]byte, 1+len(userKey))
	out[0] = tagNode
	copy(out[1:], userKey)
	return out
}

// State is the lifecycle described in spec.md §4.1: Open → Modified* →
// Committed → Open. A Merk cannot be queried while an apply is mid-flight;
// callers serialize.
type State int

const (
	StateOpen State = iota
	StateModified
	StateCommitted
)

// Merk is the authenticated subtree engine of spec.md §4.1.
type Merk struct {
	ctx    *scope.Context
	hasher hashutil.Hasher
	state  State

	rootKey []byte // nil => empty tree

	// dirty holds nodes created or modified since the last commit, keyed by
	// string(userKey). deleted tracks tombstoned user keys. Both are
	// flushed to the backend by Commit and cleared.
	dirty   map[string]*Node
	deleted map[string]bool

	// dataPuts/dataDeletes mirror the same operations against the data
	// column (spec.md §6's persisted layout: data holds the serialized
	// Element, roots holds only node/link metadata).
	dataPuts    map[string][]byte
	dataDeletes map[string]bool
}

// Open loads (or initializes) the Merk authenticated map scoped by ctx.
func Open(ctx *scope.Context, hasher hashutil.Hasher) (*Merk, error) {
	m := &Merk{ctx: ctx, hasher: hasher, state: StateOpen}
	raw, err := ctx.GetRoots(rootPtrKey)
	if err != nil {
		if err == backend.ErrNotFound {
			return m, nil
		}
		return nil, fmt.Errorf("merk: load root pointer: %w", err)
	}
	if len(raw) > 0 {
		m.rootKey = append([]byte(nil), raw...)
	}
	return m, nil
}

func (m *Merk) resetPending() {
	m.dirty = nil
	m.deleted = nil
	m.dataPuts = nil
	m.dataDeletes = nil
}

func (m *Merk) markModified() {
	if m.state == StateOpen || m.state == StateCommitted {
		m.state = StateModified
	}
	if m.dirty == nil {
		m.dirty = make(map[string]*Node)
		m.deleted = make(map[string]bool)
		m.dataPuts = make(map[string][]byte)
		m.dataDeletes = make(map[string]bool)
	}
}

// IsEmpty reports whether the subtree currently has no entries.
func (m *Merk) IsEmpty() bool {
	return m.rootKey == nil
}

// RootHash returns the current Merkle root, or the zero hash if empty
// (spec.md §4.1).
func (m *Merk) RootHash() [32]byte {
	if m.rootKey == nil {
		return hashutil.ZeroHash
	}
	n, err := m.loadNode(m.rootKey)
	if err != nil {
		// A corrupt pointer with no backing node is a backend contract
		// violation; the caller-visible root hash degrades to the zero
		// hash rather than panicking.
		return hashutil.ZeroHash
	}
	return n.NodeHash
}

// loadNode fetches a node by user key, preferring the in-flight dirty set.
func (m *Merk) loadNode(key []byte) (*Node, error) {
	ks := string(key)
	if m.dirty != nil {
		if n, ok := m.dirty[ks]; ok {
			return n, nil
		}
		if m.deleted[ks] {
			return nil, fmt.Errorf("merk: node %x was deleted in this apply", key)
		}
	}
	raw, err := m.ctx.GetRoots(nodeStorageKey(key))
	if err != nil {
		return nil, err
	}
	return decodeNode(key, raw)
}

func (m *Merk) putNode(n *Node) {
	m.dirty[string(n.Key)] = n
	delete(m.deleted, string(n.Key))
}

func (m *Merk) removeNode(key []byte) {
	delete(m.dirty, string(key))
	m.deleted[string(key)] = true
}

// Get returns the raw value bytes stored at key, with accumulated cost. The
// data column is authoritative for point reads (it is written and deleted
// in lockstep with the Merk node on every mutation, see Apply), so Get does
// not need to walk the AVL tree.
func (m *Merk) Get(key []byte) (cost.Context[[]byte], error) {
	c, err := m.ctx.Get(key)
	if err == backend.ErrNotFound {
		return c, backend.ErrNotFound
	}
	return c, err
}

// Has reports whether key is present in the tree, by walking the AVL
// structure rather than the data column; used by proof generation, which
// must not assume the data column exists.
func (m *Merk) Has(key []byte) (bool, error) {
	cur := m.rootKey
	for cur != nil {
		n, err := m.loadNode(cur)
		if err != nil {
			return false, err
		}
		switch c := bytes.Compare(key, n.Key); {
		case c == 0:
			return true, nil
		case c < 0:
			if n.Left == nil {
				return false, nil
			}
			cur = n.Left.Key
		default:
			if n.Right == nil {
				return false, nil
			}
			cur = n.Right.Key
		}
	}
	return false, nil
}

// Commit flushes every dirty/deleted node and data entry to the backend in
// a single atomic batch, persists the new root pointer, and transitions the
// Merk back to StateOpen (spec.md §4.1's "Commit writes each modified node
// exactly once to the backend").
func (m *Merk) Commit(b backend.Batch) error {
	for key, n := range m.dirty {
		_ = key
		b.Put(backend.Roots, m.scopedRootsKey(nodeStorageKey(n.Key)), encodeNode(n))
	}
	for key := range m.deleted {
		b.Delete(backend.Roots, m.scopedRootsKey(nodeStorageKey([]byte(key))))
	}
	for key, v := range m.dataPuts {
		b.Put(backend.Data, m.scopedDataKey([]byte(key)), v)
	}
	for key := range m.dataDeletes {
		b.Delete(backend.Data, m.scopedDataKey([]byte(key)))
	}
	if m.rootKey == nil {
		b.Delete(backend.Roots, m.scopedRootsKey(rootPtrKey))
	} else {
		b.Put(backend.Roots, m.scopedRootsKey(rootPtrKey), m.rootKey)
	}
	m.resetPending()
	m.state = StateCommitted
	return nil
}

// scopedRootsKey/scopedDataKey let Commit write through the batch directly
// (bypassing scope.Context's Reader-only surface) while still respecting
// this subtree's path prefix.
func (m *Merk) scopedRootsKey(k []byte) []byte { return m.ctx.ScopedKey(k) }
func (m *Merk) scopedDataKey(k []byte) []byte  { return m.ctx.ScopedKey(k) }
