package store

import (
	"github.com/hads-project/hads/backend"
	"github.com/hads-project/hads/element"
	"github.com/hads-project/hads/errs"
	"github.com/hads-project/hads/merk"
	"github.com/hads-project/hads/roots"
	"github.com/hads-project/hads/scope"
)

// readWriter is the subset of backend.KV/backend.Transaction propagate
// needs: point reads plus one-shot atomic batches.
type readWriter interface {
	backend.Reader
	NewBatch() backend.Batch
}

// propagate carries newHash, the just-committed root hash of the subtree at
// path, up through every ancestor subtree (updating the Tree element that
// names path's last segment inside its parent), and finally into the
// top-level root-leaves map once path is reduced to a single segment
// (spec.md §4.2).
func (s *Store) propagate(rw readWriter, path scope.Path, newHash [32]byte) error {
	cur := path
	for len(cur) > 1 {
		parentPath, seg := cur.Parent()

		parentMerk, _, err := s.openSubtree(rw, parentPath)
		if err != nil {
			return err
		}

		existing, err := parentMerk.Get(seg)
		if err == backend.ErrNotFound {
			return errs.New(errs.PathNotFound, "parent %v has no entry %q to propagate into", parentPath, seg)
		}
		if err != nil {
			return errs.Wrap(errs.StorageError, err)
		}
		e, err := element.Decode(existing.Value)
		if err != nil {
			return errs.Wrap(errs.StorageError, err)
		}
		if e.Kind != element.Tree {
			return errs.New(errs.PathNotFound, "parent %v entry %q is not a Tree", parentPath, seg)
		}
		flag := e.Flag

		treeEl := element.NewTree(newHash, flag)
		if _, err := parentMerk.Apply([]merk.KeyOp{{Key: seg, Kind: merk.OpPut, Element: treeEl}}); err != nil {
			return errs.Wrap(errs.StorageError, err)
		}

		b := rw.NewBatch()
		if err := parentMerk.Commit(b); err != nil {
			return errs.Wrap(errs.StorageError, err)
		}
		if err := b.Commit(); err != nil {
			return errs.Wrap(errs.StorageError, err)
		}

		newHash = parentMerk.RootHash()
		cur = parentPath
	}

	if len(cur) == 0 {
		return nil
	}

	rl, err := roots.Load(rw)
	if err != nil {
		return errs.Wrap(errs.StorageError, err)
	}
	rl.Set(cur[0], newHash)

	b := rw.NewBatch()
	b.Put(backend.Data, scope.MetaRootLeavesKey, rl.Encode())
	if err := b.Commit(); err != nil {
		return errs.Wrap(errs.StorageError, err)
	}
	return nil
}
