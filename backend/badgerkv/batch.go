package badgerkv

import (
	"github.com/dgraph-io/badger/v4"

	"github.com/hads-project/hads/backend"
)

// wbatch implements backend.Batch on top of badger.WriteBatch, which is
// Badger's own mechanism for large atomic multi-key writes.
type wbatch struct {
	wb *badger.WriteBatch
}

func (b *wbatch) Put(col backend.Column, key, value []byte) {
	_ = b.wb.Set(columnKey(col, key), value)
}

func (b *wbatch) Delete(col backend.Column, key []byte) {
	_ = b.wb.Delete(columnKey(col, key))
}

func (b *wbatch) Commit() error {
	return b.wb.Flush()
}

// txn implements backend.Transaction over a badger.Txn, whose default mode
// is already Badger's SSI (serializable snapshot isolation).
type txn struct {
	db  *badger.DB
	txn *badger.Txn
}

func (t *txn) Get(col backend.Column, key []byte) ([]byte, error) {
	item, err := t.txn.Get(columnKey(col, key))
	if err == badger.ErrKeyNotFound {
		return nil, backend.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var out []byte
	err = item.Value(func(val []byte) error {
		out = append([]byte{}, val...)
		return nil
	})
	return out, err
}

func (t *txn) RawIterator(col backend.Column, prefix []byte) backend.RawIterator {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = columnKey(col, prefix)
	it := t.txn.NewIterator(opts)
	return &iterator{txn: nil, it: it, prefix: []byte{columnPrefix(col)}}
}

// txnBatch buffers puts/deletes directly against the parent badger.Txn,
// since badger.Txn already buffers writes until Commit.
type txnBatch struct {
	t *txn
}

func (b *txnBatch) Put(col backend.Column, key, value []byte) {
	_ = b.t.txn.Set(columnKey(col, key), value)
}

func (b *txnBatch) Delete(col backend.Column, key []byte) {
	_ = b.t.txn.Delete(columnKey(col, key))
}

func (b *txnBatch) Commit() error {
	return nil // writes are already visible within t.txn; Transaction.Commit persists them.
}

func (t *txn) NewBatch() backend.Batch {
	return &txnBatch{t: t}
}

func (t *txn) Commit() error {
	return t.txn.Commit()
}

func (t *txn) Rollback() error {
	t.txn.Discard()
	return nil
}

var _ backend.Transaction = (*txn)(nil)
