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

// Package scope implements the prefixed scoped context of spec.md §4.2: a
// path is mapped to a collision-free digest used to isolate one subtree's
// key-space inside the backend, and three logical key spaces (data, aux,
// roots) are exposed through it.
package scope

import (
	"bytes"
	"encoding/binary"

	mh "github.com/multiformats/go-multihash"

	"github.com/hads-project/hads/hashutil"
)

// Path is an ordered sequence of byte segments (spec.md §3). The empty path
// (len 0) denotes the root.
type Path [][]byte

// Clone returns a deep copy of p.
func (p Path) Clone() Path {
	out := make(Path, len(p))
	for i, s := range p {
		out[i] = append([]byte(nil), s...)
	}
	return out
}

// Child returns a new Path with segment appended.
func (p Path) Child(segment []byte) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = append([]byte(nil), segment...)
	return out
}

// Parent returns p with its last segment removed, and the removed segment.
// Parent panics if p is empty; callers must check len(p) > 0 first.
func (p Path) Parent() (Path, []byte) {
	return p[:len(p)-1], p[len(p)-1]
}

// Equal reports whether p and q name the same path.
func (p Path) Equal(q Path) bool {
	if len(p) != len(q) {
		return false
	}
	for i := range p {
		if !bytes.Equal(p[i], q[i]) {
			return false
		}
	}
	return true
}

func hasherCode(h hashutil.Hasher) uint64 {
	switch h.Name() {
	case "blake3":
		return mh.BLAKE3
	default:
		return mh.SHA2_256
	}
}

// Prefix computes prefix(p): a deterministic, collision-free digest of the
// path, emitted as a self-describing multihash (SPEC_FULL.md §3a). Encoding
// each segment's length before its bytes prevents the ["ab","c"] vs
// ["a","bc"] collision.
func Prefix(h hashutil.Hasher, p Path) ([]byte, error) {
	var buf bytes.Buffer
	var lenBuf [binary.MaxVarintLen64]byte

	n := binary.PutUvarint(lenBuf[:], uint64(len(p)))
	buf.Write(lenBuf[:n])
	for _, seg := range p {
		n := binary.PutUvarint(lenBuf[:], uint64(len(seg)))
		buf.Write(lenBuf[:n])
		buf.Write(seg)
	}
	digest := h.Hash(buf.Bytes())
	return mh.Encode(digest[:], hasherCode(h))
}

// MetaRootLeavesKey is the reserved key under backend.Data, outside any path's
// prefix, holding the serialized root-leaves map (spec.md §3, §6).
var MetaRootLeavesKey = []byte("rootLeafsSerialized")
