package store

import (
	"bytes"
	"encoding/binary"

	"github.com/hads-project/hads/backend"
	"github.com/hads-project/hads/cost"
	"github.com/hads-project/hads/element"
	"github.com/hads-project/hads/errs"
	"github.com/hads-project/hads/scope"
)

// MaxRefHops bounds reference-chasing (spec.md §4.1's reference resolution):
// a chain of more than this many hops is rejected rather than followed
// indefinitely.
const MaxRefHops = 10

// resolve follows path/key to its final Item value, chasing Reference
// elements up to MaxRefHops and detecting cycles by the set of (path, key)
// pairs visited.
func (s *Store) resolve(reader backend.Reader, path scope.Path, key []byte) ([]byte, cost.Cost, error) {
	var acc cost.Cost
	curPath := path
	curKey := key
	visited := map[string]bool{}

	for hops := 0; hops <= MaxRefHops; hops++ {
		m, _, err := s.openSubtree(reader, curPath)
		if err != nil {
			return nil, acc, err
		}

		raw, err := m.Get(curKey)
		acc = acc.Add(raw.Cost)
		if err == backend.ErrNotFound {
			return nil, acc, errs.New(errs.PathKeyNotFound, "store: %x not found at %v", curKey, curPath)
		}
		if err != nil {
			return nil, acc, errs.Wrap(errs.StorageError, err)
		}

		el, err := element.Decode(raw.Value)
		if err != nil {
			return nil, acc, errs.Wrap(errs.CorruptedData, err)
		}

		switch el.Kind {
		case element.Item:
			return el.ItemValue, acc, nil

		case element.Tree:
			return nil, acc, errs.New(errs.InvalidQuery, "store: %x at %v is a subtree, not a value", curKey, curPath)

		case element.Reference:
			if len(el.ReferencePath) == 0 {
				return nil, acc, errs.New(errs.InvalidPath, "store: reference at %v/%x has an empty target path", curPath, curKey)
			}
			targetPath := scope.Path(el.ReferencePath[:len(el.ReferencePath)-1])
			targetKey := el.ReferencePath[len(el.ReferencePath)-1]

			visitKey := pathKeyToken(targetPath, targetKey)
			if visited[visitKey] {
				return nil, acc, errs.New(errs.CyclicReference, "store: reference cycle detected at %v/%x", targetPath, targetKey)
			}
			visited[visitKey] = true

			curPath, curKey = targetPath, targetKey

		default:
			return nil, acc, errs.New(errs.CorruptedData, "store: unknown element kind %v", el.Kind)
		}
	}

	return nil, acc, errs.New(errs.ReferenceLimit, "store: reference chain exceeded %d hops", MaxRefHops)
}

// pathKeyToken builds a collision-free string key for the visited-set,
// length-prefixing every segment the same way scope.Prefix does.
func pathKeyToken(path scope.Path, key []byte) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte
	for _, seg := range path {
		n := binary.PutUvarint(tmp[:], uint64(len(seg)))
		buf.Write(tmp[:n])
		buf.Write(seg)
	}
	n := binary.PutUvarint(tmp[:], uint64(len(key)))
	buf.Write(tmp[:n])
	buf.Write(key)
	return buf.String()
}
