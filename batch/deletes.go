package batch

import (
	"github.com/hads-project/hads/backend"
	"github.com/hads-project/hads/element"
	"github.com/hads-project/hads/hashutil"
	"github.com/hads-project/hads/scope"
)

// expandDeletes walks every Delete op whose target is currently a Tree
// element and appends a Delete for each of its descendants, recursively,
// so tearing down a subtree in one batch entry removes everything it
// contains (spec.md §4.3 "delete expansion"). Grounded on grovedb's
// apply.rs descendant cleanup, re-expressed as a direct scan of the data
// column rather than walking an in-memory TreeCache.
func expandDeletes(rw readWriter, hasher hashutil.Hasher, ops []Op) ([]Op, error) {
	out := make([]Op, 0, len(ops))
	for _, op := range ops {
		out = append(out, op)
		if op.Kind != Delete {
			continue
		}
		m, _, err := openSubtree(rw, hasher, op.Path)
		if err != nil {
			return nil, err
		}
		raw, err := m.Get(op.Key)
		if err == backend.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		el, err := element.Decode(raw.Value)
		if err != nil {
			return nil, err
		}
		if el.Kind != element.Tree {
			continue
		}
		if err := collectDescendants(rw, hasher, op.Path.Child(op.Key), &out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// expandOverwrites walks every non-Delete op that targets a (path, key)
// currently holding a Tree element in the pre-batch store and appends a
// Delete for each of that Tree's descendants, so replacing it — with an
// Item, a Reference, or a fresh Tree — never leaves orphaned descendant
// data reachable by a later prefix scan (spec.md §4.3 V3: "the engine must
// first recursively clear the former subtree"). Grounded on grovedb's
// apply.rs apply_body, which does the equivalent Element::get + sub.clear()
// before any overwrite.
func expandOverwrites(rw readWriter, hasher hashutil.Hasher, ops []Op) ([]Op, error) {
	out := make([]Op, 0, len(ops))
	for _, op := range ops {
		out = append(out, op)
		if op.Kind == Delete {
			continue
		}
		m, _, err := openSubtree(rw, hasher, op.Path)
		if err != nil {
			return nil, err
		}
		raw, err := m.Get(op.Key)
		if err == backend.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		el, err := element.Decode(raw.Value)
		if err != nil {
			return nil, err
		}
		if el.Kind != element.Tree {
			continue
		}
		if err := collectDescendants(rw, hasher, op.Path.Child(op.Key), &out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// dropNetNoOps removes any (path, key) whose deduplicated op is a Delete
// but which had no element before this batch, together with every op whose
// path descends through it. A create-then-delete sequence confined to a
// single batch (spec.md §8 scenario 5) nets out to nothing ever having
// happened, not a delete of a nonexistent key.
func dropNetNoOps(rw readWriter, hasher hashutil.Hasher, ops []Op) ([]Op, error) {
	vacuous := map[string]bool{}
	for _, op := range ops {
		if op.Kind != Delete {
			continue
		}
		exists, err := elementExists(rw, hasher, op.Path, op.Key)
		if err != nil {
			return nil, err
		}
		if !exists {
			vacuous[pathKeyString(op.Path, op.Key)] = true
		}
	}
	if len(vacuous) == 0 {
		return ops, nil
	}

	out := make([]Op, 0, len(ops))
	for _, op := range ops {
		if vacuous[pathKeyString(op.Path, op.Key)] {
			continue
		}
		descendsFromVacuous := false
		for i := 1; i <= len(op.Path); i++ {
			if vacuous[pathKeyString(op.Path[:i-1], op.Path[i-1])] {
				descendsFromVacuous = true
				break
			}
		}
		if !descendsFromVacuous {
			out = append(out, op)
		}
	}
	return out, nil
}

func elementExists(rw backend.Reader, hasher hashutil.Hasher, path scope.Path, key []byte) (bool, error) {
	ctx, err := scope.New(rw, hasher, path)
	if err != nil {
		return false, err
	}
	if _, err := ctx.Get(key); err != nil {
		if err == backend.ErrNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// collectDescendants appends a Delete op for every entry of the subtree at
// path, recursing into any entry whose element is itself a Tree.
func collectDescendants(rw readWriter, hasher hashutil.Hasher, path scope.Path, out *[]Op) error {
	ctx, err := scope.New(rw, hasher, path)
	if err != nil {
		return err
	}
	it := ctx.Iterator(backend.Data, nil)
	defer it.Close()

	var children [][]byte
	for it.SeekToFirst(); it.Valid(); it.Next() {
		key := append([]byte(nil), it.Key()...)
		el, err := element.Decode(it.Value())
		if err != nil {
			return err
		}
		*out = append(*out, Op{Path: path, Key: key, Kind: Delete})
		if el.Kind == element.Tree {
			children = append(children, key)
		}
	}
	for _, key := range children {
		if err := collectDescendants(rw, hasher, path.Child(key), out); err != nil {
			return err
		}
	}
	return nil
}
