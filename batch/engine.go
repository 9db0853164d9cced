package batch

import (
	"bytes"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/hads-project/hads/backend"
	"github.com/hads-project/hads/cost"
	"github.com/hads-project/hads/element"
	"github.com/hads-project/hads/errs"
	"github.com/hads-project/hads/hashutil"
	"github.com/hads-project/hads/merk"
	"github.com/hads-project/hads/roots"
	"github.com/hads-project/hads/scope"
)

// readWriter is the subset of backend.KV/backend.Transaction the batch
// engine needs: point reads, prefix iteration, and one-shot atomic
// batches.
type readWriter interface {
	backend.Reader
	NewBatch() backend.Batch
}

// openSubtreesCacheSize bounds the number of concurrently open merk.Merk
// handles the engine keeps outside the level currently being processed
// (SPEC_FULL.md's DOMAIN STACK "batch: open_subtrees local cache"); an
// entry evicted before Apply finishes is flushed immediately, so bounding
// this never loses writes, only reuse.
const openSubtreesCacheSize = 256

func openSubtree(rw readWriter, hasher hashutil.Hasher, path scope.Path) (*merk.Merk, *scope.Context, error) {
	ctx, err := scope.New(rw, hasher, path)
	if err != nil {
		return nil, nil, errs.Wrap(errs.InvalidPath, err)
	}
	m, err := merk.Open(ctx, hasher)
	if err != nil {
		return nil, nil, errs.Wrap(errs.StorageError, err)
	}
	return m, ctx, nil
}

func pathKey(path scope.Path) string {
	return pathKeyString(path, nil)
}

// engine holds the mutable state threaded through one Apply call.
type engine struct {
	rw     readWriter
	hasher hashutil.Hasher

	mu         sync.Mutex
	cache      *lru.Cache[string, *merk.Merk]
	finalBatch backend.Batch
	evictErr   error

	groups    map[string][]Op
	pathOf    map[string]scope.Path
	topHashes map[string][32]byte
}

// Apply expands deletes and Tree overwrites into explicit descendant
// Deletes, deduplicates and sorts ops, prunes any batch-local
// create-then-delete sequence that nets out to nothing, validates what
// remains, then executes deepest-subtree-first: each touched subtree's new
// root hash is re-inserted as a synthetic Put into its parent's own group
// (or, for a top-level subtree, folded into the root-leaves map), before
// that shallower group runs. Every write lands in a single atomic backend
// batch committed once at the end (spec.md §4.3).
func Apply(rw readWriter, hasher hashutil.Hasher, ops []Op) (cost.Cost, error) {
	if len(ops) == 0 {
		return cost.Cost{}, nil
	}

	expanded, err := expandDeletes(rw, hasher, ops)
	if err != nil {
		return cost.Cost{}, errs.Wrap(errs.StorageError, err)
	}
	expanded, err = expandOverwrites(rw, hasher, expanded)
	if err != nil {
		return cost.Cost{}, errs.Wrap(errs.StorageError, err)
	}
	deduped := dedupe(expanded)
	sort.Slice(deduped, func(i, j int) bool { return compare(deduped[i], deduped[j]) < 0 })

	pruned, err := dropNetNoOps(rw, hasher, deduped)
	if err != nil {
		return cost.Cost{}, errs.Wrap(errs.StorageError, err)
	}
	if len(pruned) == 0 {
		return cost.Cost{}, nil
	}
	if err := validate(rw, hasher, pruned); err != nil {
		return cost.Cost{}, errs.Wrap(errs.InvalidQuery, err)
	}

	e := &engine{
		rw:         rw,
		hasher:     hasher,
		finalBatch: rw.NewBatch(),
		groups:     map[string][]Op{},
		pathOf:     map[string]scope.Path{},
		topHashes:  map[string][32]byte{},
	}
	e.cache, _ = lru.NewWithEvict[string, *merk.Merk](openSubtreesCacheSize, e.onEvict)

	for _, op := range pruned {
		k := pathKey(op.Path)
		if _, ok := e.groups[k]; !ok {
			e.pathOf[k] = op.Path
		}
		e.groups[k] = append(e.groups[k], op)
	}

	// Execution is a work queue, not a one-shot depth partition: processGroup
	// can create a brand-new parent group (always at a strictly shallower
	// depth than the group that spawned it) that had no op of its own in the
	// batch, and that group must still be picked up and run. Each round
	// recomputes the deepest not-yet-run depth directly from the live
	// e.groups map, so newly created groups are never missed (spec.md §4.3:
	// "Continue until empty").
	var acc cost.Cost
	done := map[string]bool{}
	for {
		maxDepth := -1
		for k := range e.groups {
			if done[k] {
				continue
			}
			if d := len(e.pathOf[k]); d > maxDepth {
				maxDepth = d
			}
		}
		if maxDepth == -1 {
			break
		}
		var level []string
		for k := range e.groups {
			if !done[k] && len(e.pathOf[k]) == maxDepth {
				level = append(level, k)
			}
		}

		var g errgroup.Group
		for _, k := range level {
			k := k
			g.Go(func() error {
				c, err := e.processGroup(k)
				e.mu.Lock()
				acc = acc.Add(c)
				e.mu.Unlock()
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return acc, err
		}
		for _, k := range level {
			done[k] = true
		}
	}

	e.cache.Purge()
	if e.evictErr != nil {
		return acc, errs.Wrap(errs.StorageError, e.evictErr)
	}

	rl, err := roots.Load(rw)
	if err != nil {
		return acc, errs.Wrap(errs.StorageError, err)
	}
	for name, hash := range e.topHashes {
		rl.Set([]byte(name), hash)
	}
	e.finalBatch.Put(backend.Data, scope.MetaRootLeavesKey, rl.Encode())

	if err := e.finalBatch.Commit(); err != nil {
		return acc, errs.Wrap(errs.StorageError, err)
	}
	return acc, nil
}

// processGroup applies one path's queued ops to its Merk handle (opened
// fresh or reused from the cache), then either schedules a synthetic Put
// into the parent group (nested subtree) or records the new root hash for
// the root-leaves map (top-level subtree).
func (e *engine) processGroup(key string) (cost.Cost, error) {
	path := e.pathOf[key]

	m, err := e.getMerk(path)
	if err != nil {
		return cost.Cost{}, err
	}

	e.mu.Lock()
	keyOps := dedupe(append([]Op(nil), e.groups[key]...))
	e.mu.Unlock()
	sort.Slice(keyOps, func(i, j int) bool { return bytes.Compare(keyOps[i].Key, keyOps[j].Key) < 0 })

	c, err := m.Apply(toMerkOps(keyOps))
	if err != nil {
		return c, err
	}
	newHash := m.RootHash()

	if len(path) == 1 {
		e.mu.Lock()
		e.topHashes[string(path[0])] = newHash
		e.mu.Unlock()
		return c, nil
	}

	parentPath, seg := path.Parent()
	parentMerk, err := e.getMerk(parentPath)
	if err != nil {
		return c, err
	}
	var flag element.Flag
	if existing, err := parentMerk.Get(seg); err == nil {
		if ex, decErr := element.Decode(existing.Value); decErr == nil {
			flag = ex.Flag
		}
	} else if err != backend.ErrNotFound {
		return c, err
	}

	e.mu.Lock()
	pk := pathKey(parentPath)
	for _, op := range e.groups[pk] {
		if op.Kind == Delete && bytes.Equal(op.Key, seg) {
			// The batch deletes this subtree's own Tree element; keep the Delete.
			e.mu.Unlock()
			return c, nil
		}
	}
	if _, ok := e.groups[pk]; !ok {
		e.pathOf[pk] = parentPath
	}
	e.groups[pk] = append(e.groups[pk], Op{Path: parentPath, Key: seg, Kind: Put, Element: element.NewTree(newHash, flag)})
	e.mu.Unlock()

	return c, nil
}

func toMerkOps(ops []Op) []merk.KeyOp {
	out := make([]merk.KeyOp, len(ops))
	for i, op := range ops {
		kind := merk.OpPut
		switch op.Kind {
		case PutReference:
			kind = merk.OpPutReference
		case Delete:
			kind = merk.OpDelete
		}
		out[i] = merk.KeyOp{Key: op.Key, Kind: kind, Element: op.Element}
	}
	return out
}

// getMerk returns the cached handle for path, opening and caching one if
// necessary.
func (e *engine) getMerk(path scope.Path) (*merk.Merk, error) {
	k := pathKey(path)
	if m, ok := e.cache.Get(k); ok {
		return m, nil
	}
	m, _, err := openSubtree(e.rw, e.hasher, path)
	if err != nil {
		return nil, err
	}
	e.cache.Add(k, m)
	return m, nil
}

// onEvict flushes a handle's pending writes into the shared final batch the
// instant it leaves the cache, so bounding cache size never loses writes.
func (e *engine) onEvict(_ string, m *merk.Merk) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.evictErr != nil {
		return
	}
	if err := m.Commit(e.finalBatch); err != nil {
		e.evictErr = err
	}
}
