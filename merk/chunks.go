package merk

import "fmt"

// ChunkProducer implements the chunked replication proof of spec.md §4.3,
// grounded on dashevo/grovedb's merk/src/merk/chunks.rs and
// merk/src/proofs/chunk.rs: a "trunk" chunk discloses the tree down to a
// bounded height, each node it cannot afford to disclose in full becomes a
// boundary whose subtree is shipped separately as one "leaf" chunk.
type ChunkProducer struct {
	m          *Merk
	height     int
	trunk      int
	boundaries [][]byte
	trunkOps   []ProofOp
}

// MinTrunkHeight is the minimum depth a trunk chunk descends to before
// cutting off into leaf chunks, matching grovedb's chunk.rs constant.
const MinTrunkHeight = 5

// NewChunkProducer computes the trunk/leaf split for m's current state and
// eagerly builds the trunk chunk (it is always chunk 0 of a replication
// session).
func NewChunkProducer(m *Merk) (*ChunkProducer, error) {
	cp := &ChunkProducer{m: m}
	if m.rootKey == nil {
		return cp, nil
	}
	root, err := m.loadNode(m.rootKey)
	if err != nil {
		return nil, err
	}
	cp.height = root.Height()
	cp.trunk = chooseTrunkHeight(cp.height)

	ops, err := m.buildTrunk(m.rootKey, cp.trunk, &cp.boundaries)
	if err != nil {
		return nil, err
	}
	cp.trunkOps = ops
	return cp, nil
}

func chooseTrunkHeight(treeHeight int) int {
	if treeHeight <= MinTrunkHeight*2 {
		return treeHeight
	}
	return treeHeight / 2
}

// TrunkChunk returns the trunk op-stream: every node down to the chosen
// trunk height in full (NodeKV), every node exactly at that height abridged
// to its hash (a chunk boundary).
func (cp *ChunkProducer) TrunkChunk() []ProofOp {
	return cp.trunkOps
}

// ChunkCount returns the number of leaf chunks beyond the trunk.
func (cp *ChunkProducer) ChunkCount() int {
	return len(cp.boundaries)
}

// LeafChunk returns the full op-stream (every node disclosed) for the
// subtree rooted at boundary index i, to be verified against the abridged
// hash the trunk chunk pushed at that position.
func (cp *ChunkProducer) LeafChunk(i int) ([]ProofOp, error) {
	if i < 0 || i >= len(cp.boundaries) {
		return nil, fmt.Errorf("merk: leaf chunk index %d out of range [0,%d)", i, len(cp.boundaries))
	}
	return cp.m.buildFullSubtree(cp.boundaries[i])
}

// buildTrunk recursively discloses nodes down to remainingHeight, recording
// a boundary (and pushing its hash, abridged) for every node it stops at.
func (m *Merk) buildTrunk(key []byte, remainingHeight int, boundaries *[][]byte) ([]ProofOp, error) {
	if key == nil {
		return nil, nil
	}
	n, err := m.loadNode(key)
	if err != nil {
		return nil, err
	}

	if remainingHeight <= 0 {
		*boundaries = append(*boundaries, append([]byte(nil), n.Key...))
		return []ProofOp{{Op: OpPush, Node: ProofNode{Kind: NodeHash, Hash: n.NodeHash}}}, nil
	}

	var ops []ProofOp
	if n.Left != nil {
		leftOps, err := m.buildTrunk(n.Left.Key, remainingHeight-1, boundaries)
		if err != nil {
			return nil, err
		}
		ops = append(ops, leftOps...)
	}

	value, err := m.dataValue(n.Key)
	if err != nil {
		return nil, err
	}
	ops = append(ops, ProofOp{Op: OpPush, Node: ProofNode{Kind: NodeKV, Key: append([]byte(nil), n.Key...), Value: value}})
	if n.Left != nil {
		ops = append(ops, ProofOp{Op: OpParent})
	}

	if n.Right != nil {
		rightOps, err := m.buildTrunk(n.Right.Key, remainingHeight-1, boundaries)
		if err != nil {
			return nil, err
		}
		ops = append(ops, rightOps...)
		ops = append(ops, ProofOp{Op: OpChild})
	}

	return ops, nil
}

// buildFullSubtree discloses every node of the subtree rooted at key.
func (m *Merk) buildFullSubtree(key []byte) ([]ProofOp, error) {
	if key == nil {
		return nil, nil
	}
	n, err := m.loadNode(key)
	if err != nil {
		return nil, err
	}

	var ops []ProofOp
	if n.Left != nil {
		leftOps, err := m.buildFullSubtree(n.Left.Key)
		if err != nil {
			return nil, err
		}
		ops = append(ops, leftOps...)
	}

	value, err := m.dataValue(n.Key)
	if err != nil {
		return nil, err
	}
	ops = append(ops, ProofOp{Op: OpPush, Node: ProofNode{Kind: NodeKV, Key: append([]byte(nil), n.Key...), Value: value}})
	if n.Left != nil {
		ops = append(ops, ProofOp{Op: OpParent})
	}

	if n.Right != nil {
		rightOps, err := m.buildFullSubtree(n.Right.Key)
		if err != nil {
			return nil, err
		}
		ops = append(ops, rightOps...)
		ops = append(ops, ProofOp{Op: OpChild})
	}

	return ops, nil
}

func (m *Merk) dataValue(key []byte) ([]byte, error) {
	c, err := m.ctx.Get(key)
	if err != nil {
		return nil, fmt.Errorf("merk: chunk: load value for %x: %w", key, err)
	}
	return c.Value, nil
}
