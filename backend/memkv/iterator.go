package memkv

import (
	"bytes"

	"github.com/google/btree"
)

// iterator is a snapshot-stable ordered iterator over a single btree clone,
// restricted to keys carrying the given prefix.
type iterator struct {
	tree   *btree.BTree
	prefix []byte
	keys   [][]byte
	vals   [][]byte
	pos    int
}

func newIterator(t *btree.BTree, prefix []byte) *iterator {
	it := &iterator{tree: t, prefix: prefix, pos: -1}
	t.AscendGreaterOrEqual(kvItem{key: prefix}, func(i btree.Item) bool {
		kv := i.(kvItem)
		if !bytes.HasPrefix(kv.key, prefix) {
			return false
		}
		it.keys = append(it.keys, kv.key)
		it.vals = append(it.vals, kv.value)
		return true
	})
	return it
}

func (it *iterator) SeekToFirst() { it.pos = 0 }

func (it *iterator) SeekToLast() { it.pos = len(it.keys) - 1 }

// Seek positions at the first key >= prefix+key; key is relative to the
// iterator's prefix, as in badgerkv.
func (it *iterator) Seek(key []byte) {
	full := append(append([]byte(nil), it.prefix...), key...)
	lo, hi := 0, len(it.keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if bytes.Compare(it.keys[mid], full) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	it.pos = lo
}

func (it *iterator) Next() {
	if it.pos < len(it.keys) {
		it.pos++
	}
}

func (it *iterator) Prev() {
	if it.pos >= 0 {
		it.pos--
	}
}

func (it *iterator) Valid() bool {
	return it.pos >= 0 && it.pos < len(it.keys)
}

func (it *iterator) Key() []byte {
	if !it.Valid() {
		return nil
	}
	return it.keys[it.pos]
}

func (it *iterator) Value() []byte {
	if !it.Valid() {
		return nil
	}
	return it.vals[it.pos]
}

func (it *iterator) Close() {}
