package merk

import (
	"bytes"
	"fmt"

	"github.com/hads-project/hads/cost"
	"github.com/hads-project/hads/element"
	"github.com/hads-project/hads/hashutil"
)

// OpKind discriminates the per-key operations accepted by Apply (spec.md
// §4.1).
type OpKind int

const (
	OpPut OpKind = iota
	OpDelete
	OpPutReference
)

// KeyOp is one entry of the batch_ops sequence Apply consumes. Element holds
// the Element to store for OpPut/OpPutReference; Apply encodes it.
type KeyOp struct {
	Key     []byte
	Kind    OpKind
	Element element.Element
}

// Apply performs the batch described by spec.md §4.1's `apply` operation:
// ops must already be sorted ascending by Key. Changes are held in this
// Merk's in-memory pending state: RootHash and Has reflect them at once,
// while Get (which reads the data column) sees them only after Commit has
// been called and its batch committed. One Apply may span many AVL
// rotations.
func (m *Merk) Apply(ops []KeyOp) (cost.Cost, error) {
	m.markModified()
	var acc cost.Cost

	var prevKey []byte
	for _, op := range ops {
		if prevKey != nil && bytes.Compare(op.Key, prevKey) <= 0 {
			return acc, fmt.Errorf("merk: apply: keys must be strictly ascending, got %x after %x", op.Key, prevKey)
		}
		prevKey = op.Key

		switch op.Kind {
		case OpPut, OpPutReference:
			encoded := element.Encode(op.Element)
			valueHash := hashutil.ValueHash(m.hasher, encoded)
			acc = acc.AddHashNode(len(encoded))

			newRoot, err := m.insert(m.rootKey, op.Key, valueHash)
			if err != nil {
				return acc, fmt.Errorf("merk: insert %x: %w", op.Key, err)
			}
			m.rootKey = newRoot
			m.dataPuts[string(op.Key)] = encoded
			delete(m.dataDeletes, string(op.Key))
			acc = acc.Add(cost.Cost{StorageWrittenBytes: uint32(len(encoded))})

		case OpDelete:
			newRoot, found, err := m.remove(m.rootKey, op.Key)
			if err != nil {
				return acc, fmt.Errorf("merk: delete %x: %w", op.Key, err)
			}
			if !found {
				return acc, fmt.Errorf("%w: key %x", ErrPathKeyNotFound, op.Key)
			}
			m.rootKey = newRoot
			m.dataDeletes[string(op.Key)] = true
			delete(m.dataPuts, string(op.Key))

		default:
			return acc, fmt.Errorf("merk: unknown op kind %d", op.Kind)
		}
		acc = acc.AddSeek()
	}

	return acc, nil
}
