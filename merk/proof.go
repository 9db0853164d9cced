package merk

import (
	"bytes"
	"fmt"

	"github.com/hads-project/hads/hashutil"
	"github.com/hads-project/hads/query"
)

// NodeKind discriminates the three shapes a proof op can push, mirroring
// dashevo/grovedb's merk/src/proofs/tree.rs Node enum.
type NodeKind int

const (
	// NodeHash is an opaque child: only its node_hash is revealed.
	NodeHash NodeKind = iota
	// NodeKVHash reveals a node's kv_hash but not its key/value.
	NodeKVHash
	// NodeKV reveals a node's full key and value bytes.
	NodeKV
)

// ProofNode is the payload of a Push op.
type ProofNode struct {
	Kind  NodeKind
	Hash  [32]byte // valid for NodeHash, NodeKVHash
	Key   []byte   // valid for NodeKV
	Value []byte   // valid for NodeKV
}

// Op enumerates the proof op-stream instructions of spec.md §4.3/§4.4: a
// post-order stack machine over pushed nodes.
type Op int

const (
	OpPush Op = iota
	OpParent
	OpChild
)

// ProofOp is one instruction of a proof's op-stream.
type ProofOp struct {
	Op   Op
	Node ProofNode
}

// executedNode is the stack-machine's operand: a partially or fully
// reconstructed subtree, carrying enough to (a) recompute its own node_hash
// once children attach and (b) surface every disclosed KV pair to the
// caller.
type executedNode struct {
	hash      [32]byte
	kvHash    [32]byte
	kvKnown   bool
	key       []byte
	value     []byte
	haveKV    bool
	left      *executedNode
	right     *executedNode
}

func (n *executedNode) recompute(h hashutil.Hasher) error {
	if !n.kvKnown {
		return fmt.Errorf("merk: proof attaches a child to an opaque Hash node")
	}
	var lh, rh [32]byte
	if n.left != nil {
		lh = n.left.hash
	} else {
		lh = hashutil.ZeroHash
	}
	if n.right != nil {
		rh = n.right.hash
	} else {
		rh = hashutil.ZeroHash
	}
	n.hash = hashutil.NodeHash(h, n.kvHash, lh, rh)
	return nil
}

// Execute replays a proof op-stream against h, invoking collect for every
// disclosed key/value pair (in the order pushed), and returns the
// reconstructed root hash.
func Execute(ops []ProofOp, h hashutil.Hasher, collect func(key, value []byte)) ([32]byte, error) {
	var stack []*executedNode

	for _, op := range ops {
		switch op.Op {
		case OpPush:
			n := &executedNode{}
			switch op.Node.Kind {
			case NodeHash:
				n.hash = op.Node.Hash
			case NodeKVHash:
				n.kvHash = op.Node.Hash
				n.kvKnown = true
				n.hash = hashutil.NodeHash(h, n.kvHash, hashutil.ZeroHash, hashutil.ZeroHash)
			case NodeKV:
				valueHash := hashutil.ValueHash(h, op.Node.Value)
				n.kvHash = hashutil.KVHash(h, op.Node.Key, valueHash)
				n.kvKnown = true
				n.key = op.Node.Key
				n.value = op.Node.Value
				n.haveKV = true
				n.hash = hashutil.NodeHash(h, n.kvHash, hashutil.ZeroHash, hashutil.ZeroHash)
				if collect != nil {
					collect(op.Node.Key, op.Node.Value)
				}
			default:
				return hashutil.ZeroHash, fmt.Errorf("merk: unknown proof node kind %d", op.Node.Kind)
			}
			stack = append(stack, n)

		case OpParent:
			if len(stack) < 2 {
				return hashutil.ZeroHash, fmt.Errorf("merk: proof Parent op on stack of size %d", len(stack))
			}
			top := stack[len(stack)-1]
			parent := stack[len(stack)-2]
			parent.left = top
			if err := parent.recompute(h); err != nil {
				return hashutil.ZeroHash, err
			}
			stack = stack[:len(stack)-1]
			stack[len(stack)-1] = parent

		case OpChild:
			if len(stack) < 2 {
				return hashutil.ZeroHash, fmt.Errorf("merk: proof Child op on stack of size %d", len(stack))
			}
			top := stack[len(stack)-1]
			parent := stack[len(stack)-2]
			parent.right = top
			if err := parent.recompute(h); err != nil {
				return hashutil.ZeroHash, err
			}
			stack = stack[:len(stack)-1]
			stack[len(stack)-1] = parent

		default:
			return hashutil.ZeroHash, fmt.Errorf("merk: unknown proof op %d", op.Op)
		}
	}

	if len(stack) != 1 {
		return hashutil.ZeroHash, fmt.Errorf("merk: proof op-stream left %d items on the stack, want 1", len(stack))
	}
	return stack[0].hash, nil
}

// limitState tracks the shared offset/limit window across a recursive Prove
// call, following grovedb subtree.rs's query-with-limit handling.
type limitState struct {
	offset *int
	limit  *int
}

func (s *limitState) admit() bool {
	if s.offset != nil && *s.offset > 0 {
		*s.offset--
		return false
	}
	if s.limit != nil {
		if *s.limit <= 0 {
			return false
		}
	}
	return true
}

func (s *limitState) record() {
	if s.limit != nil {
		*s.limit--
	}
}

func (s *limitState) exhausted() bool {
	return s.limit != nil && *s.limit <= 0
}

// Prove builds an op-stream proving q's result set against m's current
// state, fetching matched values from the data column. It is the
// single-subtree half of spec.md §4.4's path-query proof.
func (m *Merk) Prove(q *query.Query, limit, offset *int) ([]ProofOp, error) {
	ls := &limitState{offset: cloneIntPtr(offset), limit: cloneIntPtr(limit)}
	ops, err := m.buildProof(m.rootKey, q, ls)
	if err != nil {
		return nil, err
	}
	return ops, nil
}

func cloneIntPtr(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func (m *Merk) buildProof(key []byte, q *query.Query, ls *limitState) ([]ProofOp, error) {
	if key == nil {
		return nil, nil
	}
	n, err := m.loadNode(key)
	if err != nil {
		return nil, err
	}

	var ops []ProofOp

	if n.Left != nil {
		if mayIntersectLeft(n.Key, q) {
			leftOps, err := m.buildProof(n.Left.Key, q, ls)
			if err != nil {
				return nil, err
			}
			ops = append(ops, leftOps...)
		} else {
			ops = append(ops, ProofOp{Op: OpPush, Node: ProofNode{Kind: NodeHash, Hash: n.Left.Hash}})
		}
	}

	ops = append(ops, m.selfOp(n, q, ls))
	if n.Left != nil {
		ops = append(ops, ProofOp{Op: OpParent})
	}

	if n.Right != nil {
		if mayIntersectRight(n.Key, q) {
			rightOps, err := m.buildProof(n.Right.Key, q, ls)
			if err != nil {
				return nil, err
			}
			ops = append(ops, rightOps...)
		} else {
			ops = append(ops, ProofOp{Op: OpPush, Node: ProofNode{Kind: NodeHash, Hash: n.Right.Hash}})
		}
		ops = append(ops, ProofOp{Op: OpChild})
	}

	return ops, nil
}

func (m *Merk) selfOp(n *Node, q *query.Query, ls *limitState) ProofOp {
	if q.Matches(n.Key) && ls.admit() {
		raw, err := m.ctx.Get(n.Key)
		if err == nil {
			ls.record()
			return ProofOp{Op: OpPush, Node: ProofNode{Kind: NodeKV, Key: append([]byte(nil), n.Key...), Value: raw.Value}}
		}
	}
	return ProofOp{Op: OpPush, Node: ProofNode{Kind: NodeKVHash, Hash: n.KVHash}}
}

// mayIntersectLeft/mayIntersectRight conservatively decide whether a child
// subtree might contain a matching key, erring towards "yes" (a wider than
// strictly necessary proof is still valid, only larger).
func mayIntersectLeft(pivot []byte, q *query.Query) bool {
	for _, it := range q.Items {
		if it.Lower == nil || bytes.Compare(it.Lower, pivot) < 0 {
			return true
		}
	}
	return false
}

func mayIntersectRight(pivot []byte, q *query.Query) bool {
	for _, it := range q.Items {
		if it.Upper == nil || bytes.Compare(pivot, it.Upper) < 0 {
			return true
		}
	}
	return false
}
