package badgerkv

import (
	"bytes"

	"github.com/dgraph-io/badger/v4"
)

// iterator adapts a badger.Iterator to backend.RawIterator. BadgerDB's
// iterator is forward-only by construction (opts.Reverse picks a direction
// at creation time), so Prev() re-seeks a second, reverse-direction
// iterator lazily the first time it's needed.
type iterator struct {
	txn       *badger.Txn
	it        *badger.Iterator
	revIt     *badger.Iterator
	reverse   bool
	prefix    []byte
	lastKey   []byte
	hasLast   bool
}

func (it *iterator) current() *badger.Iterator {
	if it.reverse {
		return it.revIt
	}
	return it.it
}

func (it *iterator) SeekToFirst() {
	it.reverse = false
	it.it.Rewind()
}

func (it *iterator) SeekToLast() {
	it.ensureReverse()
	it.reverse = true
	it.revIt.Rewind()
}

func (it *iterator) ensureReverse() {
	if it.revIt != nil {
		return
	}
	opts := badger.DefaultIteratorOptions
	opts.Reverse = true
	opts.Prefix = append([]byte(nil), it.prefix...)
	it.revIt = it.txn.NewIterator(opts)
}

func (it *iterator) Seek(key []byte) {
	it.reverse = false
	full := append(append([]byte(nil), it.prefix...), key...)
	it.it.Seek(full)
}

func (it *iterator) Next() {
	it.current().Next()
}

func (it *iterator) Prev() {
	// Badger iterators are single-direction; emulate Prev by switching to a
	// reverse iterator seeded at the current key.
	cur := it.Key()
	it.ensureReverse()
	it.reverse = true
	full := append(append([]byte(nil), it.prefix...), cur...)
	it.revIt.Seek(full)
	if it.revIt.Valid() {
		it.revIt.Next() // skip current key itself
	}
}

func (it *iterator) Valid() bool {
	return it.current().ValidForPrefix(it.prefix)
}

func (it *iterator) Key() []byte {
	if !it.Valid() {
		return nil
	}
	k := it.current().Item().KeyCopy(nil)
	return bytes.TrimPrefix(k, it.prefix)
}

func (it *iterator) Value() []byte {
	if !it.Valid() {
		return nil
	}
	v, err := it.current().Item().ValueCopy(nil)
	if err != nil {
		return nil
	}
	return v
}

func (it *iterator) Close() {
	it.it.Close()
	if it.revIt != nil {
		it.revIt.Close()
	}
	// it.txn is nil when the iterator is scoped to a caller-owned
	// transaction (badgerkv.txn.RawIterator); only discard a txn this
	// iterator opened for itself (badgerkv.Store.RawIterator).
	if it.txn != nil {
		it.txn.Discard()
	}
}
