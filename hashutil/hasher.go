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

// Package hashutil provides the pluggable hash function used for the
// value_hash/kv_hash/node_hash computations of spec.md §3, and for the
// prefix digest of §3a. It mirrors trillian's pattern of hiding the concrete
// hash behind a small interface (see merkle/hashers) rather than calling
// crypto/sha256 directly from every package.
package hashutil

import (
	"crypto/sha256"

	"lukechampine.com/blake3"
)

// ZeroHash is the 32-byte all-zero hash denoting an empty subtree (spec.md
// §3).
var ZeroHash [32]byte

// Hasher computes the node/kv/value hash function H used throughout the
// Merk tree.
type Hasher interface {
	// Hash returns H(data).
	Hash(data ...[]byte) [32]byte
	// Name identifies the hasher, used in the multihash prefix code table.
	Name() string
}

// SHA256 is the default Hasher, trillian's own default for its log and map
// hashers.
var SHA256 Hasher = sha256Hasher{}

type sha256Hasher struct{}

func (sha256Hasher) Hash(data ...[]byte) [32]byte {
	h := sha256.New()
	for _, d := range data {
		h.Write(d)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func (sha256Hasher) Name() string { return "sha2-256" }

// BLAKE3 is an optional high-throughput Hasher (lukechampine.com/blake3),
// selectable at store-open time as an alternative to SHA256 per
// SPEC_FULL.md's DOMAIN STACK.
var BLAKE3 Hasher = blake3Hasher{}

type blake3Hasher struct{}

func (blake3Hasher) Hash(data ...[]byte) [32]byte {
	hasher := blake3.New(32, nil)
	for _, d := range data {
		hasher.Write(d)
	}
	var out [32]byte
	copy(out[:], hasher.Sum(nil))
	return out
}

func (blake3Hasher) Name() string { return "blake3" }

// ValueHash computes value_hash = H(value_bytes).
func ValueHash(h Hasher, value []byte) [32]byte {
	return h.Hash(value)
}

// KVHash computes kv_hash = H(key ‖ value_hash).
func KVHash(h Hasher, key []byte, valueHash [32]byte) [32]byte {
	return h.Hash(key, valueHash[:])
}

// NodeHash computes node_hash = H(kv_hash ‖ left_hash_or_zero ‖
// right_hash_or_zero).
func NodeHash(h Hasher, kvHash, left, right [32]byte) [32]byte {
	return h.Hash(kvHash[:], left[:], right[:])
}

// IsZero reports whether h is the all-zero hash.
func IsZero(h [32]byte) bool {
	return h == ZeroHash
}
