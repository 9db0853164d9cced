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

// Package element implements the tagged Element value variants of
// spec.md §3 — {Item, Reference, Tree} — and their wire serialization
// (spec.md §6). Grounded on dashevo/grovedb's subtree.rs Element enum,
// re-expressed as a Go tagged struct the way trillian represents its own
// storage primitives (plain structs with a discriminant field, rather than
// an interface hierarchy) for cheap copying and easy (de)serialization.
package element

import (
	"encoding/binary"
	"fmt"
)

// Kind discriminates the Element variants.
type Kind uint8

const (
	Item Kind = iota
	Reference
	Tree
)

func (k Kind) String() string {
	switch k {
	case Item:
		return "Item"
	case Reference:
		return "Reference"
	case Tree:
		return "Tree"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Flag is the optional single-byte metadata carried by every variant
// (spec.md §3). A nil Flag is distinct from a zero-valued flag byte.
type Flag = *byte

// NewFlag returns a Flag wrapping b.
func NewFlag(b byte) Flag { return &b }

// Element is the tagged union described in spec.md §3.
type Element struct {
	Kind Kind

	// Item holds the opaque payload when Kind == Item.
	ItemValue []byte

	// ReferencePath holds the path to the target entry when Kind ==
	// Reference. Each segment is a raw byte string.
	ReferencePath [][]byte

	// TreeRootHash holds the child subtree's root hash when Kind == Tree.
	TreeRootHash [32]byte

	Flag Flag
}

// NewItem constructs an Item element.
func NewItem(value []byte, flag Flag) Element {
	return Element{Kind: Item, ItemValue: append([]byte(nil), value...), Flag: flag}
}

// NewReference constructs a Reference element.
func NewReference(path [][]byte, flag Flag) Element {
	cp := make([][]byte, len(path))
	for i, s := range path {
		cp[i] = append([]byte(nil), s...)
	}
	return Element{Kind: Reference, ReferencePath: cp, Flag: flag}
}

// NewTree constructs a Tree element pointing at the given child subtree
// root hash.
func NewTree(rootHash [32]byte, flag Flag) Element {
	return Element{Kind: Tree, TreeRootHash: rootHash, Flag: flag}
}

// EmptyTree constructs a Tree element for a not-yet-populated child
// subtree, whose root hash is the zero hash.
func EmptyTree(flag Flag) Element {
	return Element{Kind: Tree, Flag: flag}
}

// WithFlag returns a copy of e carrying the given flag, preserving its
// variant payload — used by hierarchical composition (spec.md §4.2 step 2)
// to rewrite a Tree element's hash while keeping its original flag.
func (e Element) WithFlag(flag Flag) Element {
	e.Flag = flag
	return e
}

// ByteSize approximates the serialized size of e, mirroring grovedb's
// Element::byte_size, used by cost estimation.
func (e Element) ByteSize() int {
	const flagByte = 1
	switch e.Kind {
	case Item:
		return len(e.ItemValue) + flagByte
	case Reference:
		n := flagByte
		for _, seg := range e.ReferencePath {
			n += len(seg) + binary.MaxVarintLen64
		}
		return n
	case Tree:
		return 32 + flagByte
	default:
		return 0
	}
}
