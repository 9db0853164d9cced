package batch

import (
	"fmt"

	"github.com/hads-project/hads/backend"
	"github.com/hads-project/hads/element"
	"github.com/hads-project/hads/hashutil"
	"github.com/hads-project/hads/scope"
)

// validate runs spec.md §4.3's five structural checks (V1-V5), plus two
// unconditional structural sanity checks this engine additionally enforces,
// over an already sorted, deduplicated, delete/overwrite-expanded op list,
// returning the first violation found. ops must be sorted by (depth
// ascending, path, key, op_tag): v1 and v2 rely on that ordering to see
// every ancestor-establishing op before the descendants that depend on it.
func validate(rw backend.Reader, hasher hashutil.Hasher, ops []Op) error {
	if err := nonEmptyKeys(ops); err != nil {
		return err
	}
	if err := elementKindMatchesOpKind(ops); err != nil {
		return err
	}
	if err := v1ParentMustBeTree(rw, hasher, ops); err != nil {
		return err
	}
	if err := v2NoInsertUnderScheduledDelete(ops); err != nil {
		return err
	}
	// V3 ("inserting a Tree over an existing key overwrites; the engine
	// must first recursively clear the former subtree") is not a rejection
	// rule and has no validate function: it is satisfied procedurally by
	// expandOverwrites (deletes.go), which runs before validate and turns
	// every such op into explicit descendant-clearing Deletes ahead of it.
	if err := v4NoRootLevelOps(ops); err != nil {
		return err
	}
	if err := v5UniqueAfterDedupe(ops); err != nil {
		return err
	}
	return nil
}

// nonEmptyKeys is an additional structural check beyond spec.md's V1-V5:
// every op must name a non-empty key, since an empty key has no
// well-defined position in Merk's ordered key space.
func nonEmptyKeys(ops []Op) error {
	for _, op := range ops {
		if len(op.Key) == 0 {
			return fmt.Errorf("batch: empty key at path %v", op.Path)
		}
	}
	return nil
}

// elementKindMatchesOpKind is an additional structural check beyond
// spec.md's V1-V5: Put must carry an Item or Tree element, PutReference a
// Reference element, and Delete carries none.
func elementKindMatchesOpKind(ops []Op) error {
	for _, op := range ops {
		switch op.Kind {
		case Put:
			if op.Element.Kind == element.Reference {
				return fmt.Errorf("batch: Put at %v/%x carries a Reference element, want PutReference", op.Path, op.Key)
			}
		case PutReference:
			if op.Element.Kind != element.Reference {
				return fmt.Errorf("batch: PutReference at %v/%x carries a %v element", op.Path, op.Key, op.Element.Kind)
			}
		case Delete:
		default:
			return fmt.Errorf("batch: unknown op kind %v at %v/%x", op.Kind, op.Path, op.Key)
		}
	}
	return nil
}

// v1ParentMustBeTree enforces spec.md §4.3 V1: for every op at a path of
// depth >= 2, the parent entry (parentPath, lastSegment) must be a Tree,
// either already committed to rw before this batch or established by an
// earlier (shallower) op in this same batch. Depth-1 ops need no such
// check: a brand-new top-level subtree is always free to register itself
// in the root-leaves map, which has no non-Tree entries to conflict with.
// Grounded on grovedb's apply.rs validate_batch, which looks up
// self.get(parent_path, parent_key, transaction) against pre-batch state.
func v1ParentMustBeTree(rw backend.Reader, hasher hashutil.Hasher, ops []Op) error {
	createdTrees := map[string]bool{}
	isTreeCache := map[string]bool{}
	for _, op := range ops {
		if len(op.Path) >= 2 {
			parentPath, seg := op.Path[:len(op.Path)-1], op.Path[len(op.Path)-1]
			pk := pathKeyString(parentPath, seg)
			if !createdTrees[pk] {
				isTree, ok := isTreeCache[pk]
				if !ok {
					var err error
					isTree, err = parentIsTree(rw, hasher, parentPath, seg)
					if err != nil {
						return err
					}
					isTreeCache[pk] = isTree
				}
				if !isTree {
					return fmt.Errorf("batch: V1: %v/%x has no Tree parent at %v/%x in the pre-batch store or earlier in this batch", op.Path, op.Key, parentPath, seg)
				}
			}
		}
		if op.Kind != Delete && op.Element.Kind == element.Tree {
			createdTrees[pathKeyString(op.Path, op.Key)] = true
		}
	}
	return nil
}

func parentIsTree(rw backend.Reader, hasher hashutil.Hasher, path scope.Path, key []byte) (bool, error) {
	ctx, err := scope.New(rw, hasher, path)
	if err != nil {
		return false, fmt.Errorf("batch: V1: %w", err)
	}
	raw, err := ctx.Get(key)
	if err == backend.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("batch: V1: %w", err)
	}
	el, err := element.Decode(raw.Value)
	if err != nil {
		return false, fmt.Errorf("batch: V1: %w", err)
	}
	return el.Kind == element.Tree, nil
}

// v2NoInsertUnderScheduledDelete enforces spec.md §4.3 V2: inserting into a
// path that is being deleted by this batch (and not re-created) is
// rejected. dedupe already collapses a delete that is re-created by a
// later op at the exact same (path, key), so the only remaining violation
// is an op whose path descends through some still-scheduled deletion.
func v2NoInsertUnderScheduledDelete(ops []Op) error {
	deletedSubtrees := map[string]bool{}
	for _, op := range ops {
		if op.Kind == Delete {
			deletedSubtrees[pathKeyString(op.Path, op.Key)] = true
		}
	}
	if len(deletedSubtrees) == 0 {
		return nil
	}
	for _, op := range ops {
		if op.Kind == Delete {
			continue
		}
		for i := 1; i <= len(op.Path); i++ {
			ancestorPath, seg := op.Path[:i-1], op.Path[i-1]
			if deletedSubtrees[pathKeyString(ancestorPath, seg)] {
				return fmt.Errorf("batch: V2: %v/%x is written to after %v/%x is scheduled for deletion", op.Path, op.Key, ancestorPath, seg)
			}
		}
	}
	return nil
}

// v4NoRootLevelOps enforces spec.md §4.3 V4: root-leaf deletions are
// rejected; roots can only be created or overwritten in place. This engine
// has no operation that targets the root-leaves map directly — every op
// must name a subtree (depth >= 1), and propagation only ever calls
// roots.Leaves.Set, never Remove — so the rule already holds structurally.
// This check catches the one way a caller could try to go around that:
// submitting an op at the implicit root itself.
func v4NoRootLevelOps(ops []Op) error {
	for _, op := range ops {
		if len(op.Path) == 0 {
			return fmt.Errorf("batch: V4: op on empty path (key %x) targets the root-leaves map directly, which has no addressable entry of its own", op.Key)
		}
	}
	return nil
}

// v5UniqueAfterDedupe enforces spec.md §4.3 V5: each (path, key, op) triple
// is unique after deduplication. dedupe already guarantees at most one op
// survives per (path, key); this is a defensive check that the invariant
// held going into validate.
func v5UniqueAfterDedupe(ops []Op) error {
	seen := make(map[string]bool, len(ops))
	for _, op := range ops {
		pk := pathKeyString(op.Path, op.Key)
		if seen[pk] {
			return fmt.Errorf("batch: V5: %v/%x appears more than once after deduplication", op.Path, op.Key)
		}
		seen[pk] = true
	}
	return nil
}
