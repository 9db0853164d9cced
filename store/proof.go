package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"

	"github.com/hads-project/hads/backend"
	"github.com/hads-project/hads/element"
	"github.com/hads-project/hads/errs"
	"github.com/hads-project/hads/hashutil"
	"github.com/hads-project/hads/merk"
	"github.com/hads-project/hads/query"
	"github.com/hads-project/hads/roots"
	"github.com/hads-project/hads/scope"
)

// Proof wire format: a sequence of tag(1 byte) + length(8 bytes, big
// endian) + payload frames (spec.md §4.4's "path query proof"). tagRootProof
// carries the encoded root-leaves map; tagMerkProof/tagSizedMerkProof carry
// an encoded merk op-stream (spec.md §4.3's Push/Parent/Child proof
// instructions), the Sized variant marking the one frame Limit/Offset
// actually bounds.
const (
	tagMerkProof      byte = 0x01
	tagSizedMerkProof byte = 0x02
	tagRootProof      byte = 0x03
)

func writeFrame(buf *bytes.Buffer, tag byte, payload []byte) {
	buf.WriteByte(tag)
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(payload)))
	buf.Write(lenBuf[:])
	buf.Write(payload)
}

func readFrame(r *bytes.Reader) (tag byte, payload []byte, err error) {
	tag, err = r.ReadByte()
	if err != nil {
		return 0, nil, err
	}
	var lenBuf [8]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return 0, nil, err
	}
	n := binary.BigEndian.Uint64(lenBuf[:])
	payload = make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	return tag, payload, nil
}

// encodeProofOps/decodeProofOps give merk.ProofOp a wire form: per op, one
// opcode byte, and for OpPush one NodeKind byte followed by either a 32-byte
// hash (NodeHash/NodeKVHash) or a varint-length-prefixed key and value
// (NodeKV).
func encodeProofOps(ops []merk.ProofOp) ([]byte, error) {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte
	for _, op := range ops {
		buf.WriteByte(byte(op.Op))
		if op.Op != merk.OpPush {
			continue
		}
		buf.WriteByte(byte(op.Node.Kind))
		switch op.Node.Kind {
		case merk.NodeHash, merk.NodeKVHash:
			buf.Write(op.Node.Hash[:])
		case merk.NodeKV:
			n := binary.PutUvarint(tmp[:], uint64(len(op.Node.Key)))
			buf.Write(tmp[:n])
			buf.Write(op.Node.Key)
			n = binary.PutUvarint(tmp[:], uint64(len(op.Node.Value)))
			buf.Write(tmp[:n])
			buf.Write(op.Node.Value)
		default:
			return nil, errs.New(errs.InvalidProof, "store: unknown proof node kind %d", op.Node.Kind)
		}
	}
	return buf.Bytes(), nil
}

func decodeProofOps(raw []byte) ([]merk.ProofOp, error) {
	r := bytes.NewReader(raw)
	var ops []merk.ProofOp
	for {
		opByte, err := r.ReadByte()
		if err == io.EOF {
			return ops, nil
		}
		if err != nil {
			return nil, errs.Wrap(errs.InvalidProof, err)
		}
		op := merk.Op(opByte)
		if op != merk.OpPush {
			ops = append(ops, merk.ProofOp{Op: op})
			continue
		}
		kindByte, err := r.ReadByte()
		if err != nil {
			return nil, errs.Wrap(errs.InvalidProof, err)
		}
		kind := merk.NodeKind(kindByte)
		switch kind {
		case merk.NodeHash, merk.NodeKVHash:
			var hash [32]byte
			if _, err := io.ReadFull(r, hash[:]); err != nil {
				return nil, errs.Wrap(errs.InvalidProof, err)
			}
			ops = append(ops, merk.ProofOp{Op: merk.OpPush, Node: merk.ProofNode{Kind: kind, Hash: hash}})
		case merk.NodeKV:
			key, err := readVarBytes(r)
			if err != nil {
				return nil, errs.Wrap(errs.InvalidProof, err)
			}
			value, err := readVarBytes(r)
			if err != nil {
				return nil, errs.Wrap(errs.InvalidProof, err)
			}
			ops = append(ops, merk.ProofOp{Op: merk.OpPush, Node: merk.ProofNode{Kind: merk.NodeKV, Key: key, Value: value}})
		default:
			return nil, errs.New(errs.InvalidProof, "store: unknown proof node kind %d", kindByte)
		}
	}
}

func readVarBytes(r *bytes.Reader) ([]byte, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Prove builds a proof (spec.md §4.4) that pq's query, answered against the
// store's current state, produces the results VerifyProof will recompute.
// It chains: the root-leaves map, a single-key ancestor proof per path
// segment down to pq.Path, and finally the query proof for pq.Path itself
// (recursing into any matched Tree elements that carry a subquery).
func (s *Store) Prove(ctx context.Context, pq *query.PathQuery) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := scope.Path(pq.Path)
	if len(path) == 0 {
		return nil, errs.New(errs.InvalidQuery, "store: path query must target a subtree")
	}

	var buf bytes.Buffer
	rl, err := roots.Load(s.kv)
	if err != nil {
		return nil, errs.Wrap(errs.StorageError, err)
	}
	writeFrame(&buf, tagRootProof, rl.Encode())

	for i := 1; i < len(path); i++ {
		ancestor := path[:i]
		seg := path[i]
		m, _, err := s.openSubtree(s.kv, ancestor)
		if err != nil {
			return nil, err
		}
		ops, err := m.Prove(query.NewQuery(query.Key(seg)), nil, nil)
		if err != nil {
			return nil, errs.Wrap(errs.StorageError, err)
		}
		encoded, err := encodeProofOps(ops)
		if err != nil {
			return nil, err
		}
		writeFrame(&buf, tagMerkProof, encoded)
	}

	if err := s.writeQueryProof(&buf, s.kv, path, pq.Query, pq, pq.Limit, pq.Offset, true); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeQueryProof writes one proof frame for q against the subtree at path,
// sized by limit/offset only when sized is true. Limit/Offset bound only
// the top-level Query; every
// subquery level below it discloses its full matching set. It then recurses
// into every matched Tree element that carries a subquery, writing further
// frames in the depth-first order Execute() will later replay them in.
func (s *Store) writeQueryProof(buf *bytes.Buffer, reader backend.Reader, path scope.Path, q *query.Query, pq *query.PathQuery, limit, offset *int, sized bool) error {
	m, _, err := s.openSubtree(reader, path)
	if err != nil {
		return err
	}
	ops, err := m.Prove(q, limit, offset)
	if err != nil {
		return errs.Wrap(errs.StorageError, err)
	}
	encoded, err := encodeProofOps(ops)
	if err != nil {
		return err
	}
	tag := tagMerkProof
	if sized {
		tag = tagSizedMerkProof
	}
	writeFrame(buf, tag, encoded)

	var walkErr error
	_, execErr := merk.Execute(ops, s.hasher, func(key, value []byte) {
		if walkErr != nil {
			return
		}
		el, err := element.Decode(value)
		if err != nil {
			walkErr = err
			return
		}
		if el.Kind != element.Tree {
			return
		}
		sub := subqueryFor(q, pq, key)
		if sub == nil && len(q.SubqueryKey) == 0 {
			return
		}
		childPath := path.Child(key)
		if len(q.SubqueryKey) > 0 {
			if err := s.writeQueryProof(buf, reader, childPath, query.NewQuery(query.Key(q.SubqueryKey)), pq, nil, nil, false); err != nil {
				walkErr = err
			}
			return
		}
		if err := s.writeQueryProof(buf, reader, childPath, sub, pq, nil, nil, false); err != nil {
			walkErr = err
		}
	})
	if execErr != nil {
		return errs.Wrap(errs.InvalidProof, execErr)
	}
	return walkErr
}

func subqueryFor(q *query.Query, pq *query.PathQuery, key []byte) *query.Query {
	for _, it := range q.Items {
		if it.Matches(key) {
			return pq.ConditionalSubqueryFor(it)
		}
	}
	return nil
}

// VerifyProof is the pure counterpart to Prove: given the wire bytes and the
// PathQuery that produced them, it replays every frame, checking that each
// level's reconstructed hash matches the Tree element (or root-leaves entry)
// that names it, and returns the overall root commitment together with the
// disclosed results.
func VerifyProof(wire []byte, pq *query.PathQuery, hasher hashutil.Hasher) ([32]byte, query.Results, error) {
	path := scope.Path(pq.Path)
	if len(path) == 0 {
		return hashutil.ZeroHash, nil, errs.New(errs.InvalidQuery, "store: path query must target a subtree")
	}

	r := bytes.NewReader(wire)
	tag, payload, err := readFrame(r)
	if err != nil || tag != tagRootProof {
		return hashutil.ZeroHash, nil, errs.New(errs.InvalidProof, "store: expected root proof frame")
	}
	rl, err := roots.Decode(payload)
	if err != nil {
		return hashutil.ZeroHash, nil, errs.Wrap(errs.InvalidProof, err)
	}
	rootHash := rl.Commitment(hasher)

	expected, ok := rl.Get(path[0])
	if !ok {
		return hashutil.ZeroHash, nil, errs.New(errs.PathNotFound, "store: %x not registered at the top level", path[0])
	}

	for i := 1; i < len(path); i++ {
		tag, payload, err := readFrame(r)
		if err != nil || tag != tagMerkProof {
			return hashutil.ZeroHash, nil, errs.New(errs.InvalidProof, "store: expected ancestor proof frame at depth %d", i)
		}
		ops, err := decodeProofOps(payload)
		if err != nil {
			return hashutil.ZeroHash, nil, err
		}
		var gotKey, gotValue []byte
		h, err := merk.Execute(ops, hasher, func(k, v []byte) { gotKey, gotValue = k, v })
		if err != nil {
			return hashutil.ZeroHash, nil, errs.Wrap(errs.InvalidProof, err)
		}
		if h != expected {
			return hashutil.ZeroHash, nil, errs.New(errs.InvalidProof, "store: ancestor proof at depth %d does not match", i)
		}
		if !bytes.Equal(gotKey, path[i]) {
			return hashutil.ZeroHash, nil, errs.New(errs.InvalidProof, "store: ancestor proof at depth %d discloses the wrong key", i)
		}
		el, err := element.Decode(gotValue)
		if err != nil || el.Kind != element.Tree {
			return hashutil.ZeroHash, nil, errs.New(errs.InvalidProof, "store: ancestor at depth %d is not a Tree element", i)
		}
		expected = el.TreeRootHash
	}

	tag, payload, err = readFrame(r)
	if err != nil || tag != tagSizedMerkProof {
		return hashutil.ZeroHash, nil, errs.New(errs.InvalidProof, "store: expected the sized query proof frame")
	}
	results, h, err := verifyQueryFrame(r, payload, path, pq.Query, pq, hasher)
	if err != nil {
		return hashutil.ZeroHash, nil, err
	}
	if h != expected {
		return hashutil.ZeroHash, nil, errs.New(errs.InvalidProof, "store: query subtree hash does not match its parent")
	}
	return rootHash, results, nil
}

// verifyQueryFrame replays one query proof frame, recursing into nested
// tagMerkProof frames for every matched Tree element that carries a
// subquery — mirroring writeQueryProof's traversal order exactly.
func verifyQueryFrame(r *bytes.Reader, payload []byte, path scope.Path, q *query.Query, pq *query.PathQuery, hasher hashutil.Hasher) (query.Results, [32]byte, error) {
	ops, err := decodeProofOps(payload)
	if err != nil {
		return nil, hashutil.ZeroHash, err
	}

	var out query.Results
	var walkErr error
	h, execErr := merk.Execute(ops, hasher, func(key, value []byte) {
		if walkErr != nil {
			return
		}
		el, err := element.Decode(value)
		if err != nil {
			walkErr = err
			return
		}
		if el.Kind == element.Tree {
			sub := subqueryFor(q, pq, key)
			wantSubqueryKey := len(q.SubqueryKey) > 0
			if sub == nil && !wantSubqueryKey {
				out = append(out, makeResult(path, key, value, pq.ResultType))
				return
			}
			nestedQ := sub
			if wantSubqueryKey {
				nestedQ = query.NewQuery(query.Key(q.SubqueryKey))
			}
			tag, nestedPayload, err := readFrame(r)
			if err != nil || tag != tagMerkProof {
				walkErr = errs.New(errs.InvalidProof, "store: expected nested proof frame under %x", key)
				return
			}
			nested, childHash, err := verifyQueryFrame(r, nestedPayload, path.Child(key), nestedQ, pq, hasher)
			if err != nil {
				walkErr = err
				return
			}
			if childHash != el.TreeRootHash {
				walkErr = errs.New(errs.InvalidProof, "store: subquery under %x does not match its Tree element", key)
				return
			}
			out = append(out, nested...)
			return
		}
		out = append(out, makeResult(path, key, value, pq.ResultType))
	})
	if execErr != nil {
		return nil, hashutil.ZeroHash, errs.Wrap(errs.InvalidProof, execErr)
	}
	if walkErr != nil {
		return nil, hashutil.ZeroHash, walkErr
	}
	return out, h, nil
}
