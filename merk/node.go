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

// Package merk implements the authenticated subtree engine of spec.md §4.1:
// an AVL-balanced, incrementally-hashed map keyed by arbitrary byte strings,
// persisted through a scope.Context. It is the core of the hierarchical
// store, the Go counterpart of dashevo/grovedb's merk crate, written in
// trillian's own style of explicit node structs plus a storage-backed
// loader rather than an in-memory pointer tree.
package merk

import (
	"github.com/hads-project/hads/hashutil"
)

// Link carries a child's hash and height without requiring the child node
// itself to be loaded (spec.md §3 "Merk node"): {child_hash, child_height,
// child_key}.
type Link struct {
	Key    []byte
	Hash   [32]byte
	Height int
}

func linkHeight(l *Link) int {
	if l == nil {
		return 0
	}
	return l.Height
}

func linkHash(l *Link) [32]byte {
	if l == nil {
		return hashutil.ZeroHash
	}
	return l.Hash
}

// Node is the persisted AVL node of spec.md §3. The raw value bytes live in
// the backend's data column; Node carries only the hashes and link metadata
// needed to verify and rebalance the tree.
type Node struct {
	Key       []byte
	ValueHash [32]byte
	KVHash    [32]byte
	NodeHash  [32]byte
	Left      *Link
	Right     *Link
}

// Height returns this node's height: 1 + max(left, right) child height, or 0
// for a nil node.
func (n *Node) Height() int {
	if n == nil {
		return 0
	}
	lh, rh := linkHeight(n.Left), linkHeight(n.Right)
	if lh > rh {
		return lh + 1
	}
	return rh + 1
}

// balanceFactor is left height minus right height; AVL requires it stay in
// [-1, 1].
func (n *Node) balanceFactor() int {
	return linkHeight(n.Left) - linkHeight(n.Right)
}

// rehash recomputes kv_hash and node_hash from n's key, value hash, and its
// children's (possibly stale-cached) link hashes, per spec.md §3:
//
//	value_hash = H(value_bytes)
//	kv_hash = H(key ‖ value_hash)
//	node_hash = H(kv_hash ‖ left_hash_or_zero ‖ right_hash_or_zero)
func (n *Node) rehash(h hashutil.Hasher) {
	n.KVHash = hashutil.KVHash(h, n.Key, n.ValueHash)
	n.NodeHash = hashutil.NodeHash(h, n.KVHash, linkHash(n.Left), linkHash(n.Right))
}

// selfLink returns the Link another node should use to point at n.
func (n *Node) selfLink() *Link {
	return &Link{Key: append([]byte(nil), n.Key...), Hash: n.NodeHash, Height: n.Height()}
}
