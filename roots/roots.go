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

// Package roots implements the root-leaves map of spec.md §3/§6: an
// ordered name→root_hash mapping for every top-level subtree, and the
// fixed-arity binary root Merkle tree built over it that yields the
// store's single overall root commitment (spec.md §4.2).
package roots

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/hads-project/hads/backend"
	"github.com/hads-project/hads/hashutil"
	"github.com/hads-project/hads/scope"
)

// Leaves is the ordered name→root_hash map, kept sorted by name so both its
// encoding and the root commitment computed over it are deterministic
// regardless of registration order.
type Leaves struct {
	names  [][]byte
	hashes [][32]byte
}

// Load reads and decodes the root-leaves map from r, returning an empty map
// if it has never been written.
func Load(r backend.Reader) (*Leaves, error) {
	raw, err := r.Get(backend.Data, scope.MetaRootLeavesKey)
	if err == backend.ErrNotFound {
		return &Leaves{}, nil
	}
	if err != nil {
		return nil, err
	}
	return Decode(raw)
}

// Decode parses the wire encoding Load/Encode uses.
func Decode(raw []byte) (*Leaves, error) {
	rl := &Leaves{}
	buf := bytes.NewReader(raw)
	count, err := binary.ReadUvarint(buf)
	if err != nil {
		return nil, fmt.Errorf("roots: decode count: %w", err)
	}
	for i := uint64(0); i < count; i++ {
		nlen, err := binary.ReadUvarint(buf)
		if err != nil {
			return nil, fmt.Errorf("roots: decode leaf %d name length: %w", i, err)
		}
		name := make([]byte, nlen)
		if _, err := buf.Read(name); err != nil {
			return nil, fmt.Errorf("roots: decode leaf %d name: %w", i, err)
		}
		var hash [32]byte
		if _, err := buf.Read(hash[:]); err != nil {
			return nil, fmt.Errorf("roots: decode leaf %d hash: %w", i, err)
		}
		rl.names = append(rl.names, name)
		rl.hashes = append(rl.hashes, hash)
	}
	return rl, nil
}

// Encode serializes rl: varint count, then per leaf (varint name length,
// name, 32-byte hash), in sorted-by-name order.
func (rl *Leaves) Encode() []byte {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	n := binary.PutUvarint(tmp[:], uint64(len(rl.names)))
	buf.Write(tmp[:n])
	for i, name := range rl.names {
		n := binary.PutUvarint(tmp[:], uint64(len(name)))
		buf.Write(tmp[:n])
		buf.Write(name)
		buf.Write(rl.hashes[i][:])
	}
	return buf.Bytes()
}

func (rl *Leaves) indexOf(name []byte) int {
	return sort.Search(len(rl.names), func(i int) bool { return bytes.Compare(rl.names[i], name) >= 0 })
}

// Set inserts or updates the root hash registered for name, preserving sort
// order.
func (rl *Leaves) Set(name []byte, hash [32]byte) {
	i := rl.indexOf(name)
	if i < len(rl.names) && bytes.Equal(rl.names[i], name) {
		rl.hashes[i] = hash
		return
	}
	rl.names = append(rl.names, nil)
	rl.hashes = append(rl.hashes, [32]byte{})
	copy(rl.names[i+1:], rl.names[i:])
	copy(rl.hashes[i+1:], rl.hashes[i:])
	rl.names[i] = append([]byte(nil), name...)
	rl.hashes[i] = hash
}

// Get returns the root hash registered for name and whether it exists.
func (rl *Leaves) Get(name []byte) ([32]byte, bool) {
	i := rl.indexOf(name)
	if i < len(rl.names) && bytes.Equal(rl.names[i], name) {
		return rl.hashes[i], true
	}
	return hashutil.ZeroHash, false
}

// Remove deletes name from the map, if present.
func (rl *Leaves) Remove(name []byte) {
	i := rl.indexOf(name)
	if i < len(rl.names) && bytes.Equal(rl.names[i], name) {
		rl.names = append(rl.names[:i], rl.names[i+1:]...)
		rl.hashes = append(rl.hashes[:i], rl.hashes[i+1:]...)
	}
}

// Names returns the sorted leaf names currently registered.
func (rl *Leaves) Names() [][]byte {
	return rl.names
}

// Commitment computes the fixed-arity binary root Merkle tree over the
// leaves' (name, hash) commitments, duplicating the last leaf when a level
// has an odd count (SPEC_FULL.md §4.2).
func (rl *Leaves) Commitment(h hashutil.Hasher) [32]byte {
	if len(rl.names) == 0 {
		return hashutil.ZeroHash
	}
	level := make([][32]byte, len(rl.names))
	for i, name := range rl.names {
		level[i] = h.Hash(name, rl.hashes[i][:])
	}
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([][32]byte, len(level)/2)
		for i := range next {
			next[i] = h.Hash(level[2*i][:], level[2*i+1][:])
		}
		level = next
	}
	return level[0]
}
