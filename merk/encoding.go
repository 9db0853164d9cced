package merk

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// encodeNode serializes a Node for the roots column. Format:
//
//	value_hash(32) ‖ kv_hash(32) ‖ node_hash(32) ‖ left_link? ‖ right_link?
//
// where a link is encoded as a presence byte, and if present:
// height(varint) ‖ hash(32) ‖ len-prefixed key.
func encodeNode(n *Node) []byte {
	var buf bytes.Buffer
	buf.Write(n.ValueHash[:])
	buf.Write(n.KVHash[:])
	buf.Write(n.NodeHash[:])
	encodeLink(&buf, n.Left)
	encodeLink(&buf, n.Right)
	return buf.Bytes()
}

func encodeLink(buf *bytes.Buffer, l *Link) {
	if l == nil {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(l.Height))
	buf.Write(tmp[:n])
	buf.Write(l.Hash[:])
	n = binary.PutUvarint(tmp[:], uint64(len(l.Key)))
	buf.Write(tmp[:n])
	buf.Write(l.Key)
}

// decodeNode parses a Node previously written by encodeNode. key is the
// node's own key (not stored in the encoding, since it's the backend key it
// was read from).
func decodeNode(key, raw []byte) (*Node, error) {
	r := bytes.NewReader(raw)
	n := &Node{Key: append([]byte(nil), key...)}

	if _, err := readExact(r, n.ValueHash[:]); err != nil {
		return nil, fmt.Errorf("merk: decode value_hash: %w", err)
	}
	if _, err := readExact(r, n.KVHash[:]); err != nil {
		return nil, fmt.Errorf("merk: decode kv_hash: %w", err)
	}
	if _, err := readExact(r, n.NodeHash[:]); err != nil {
		return nil, fmt.Errorf("merk: decode node_hash: %w", err)
	}
	left, err := decodeLink(r)
	if err != nil {
		return nil, fmt.Errorf("merk: decode left link: %w", err)
	}
	right, err := decodeLink(r)
	if err != nil {
		return nil, fmt.Errorf("merk: decode right link: %w", err)
	}
	n.Left, n.Right = left, right

	if r.Len() != 0 {
		return nil, fmt.Errorf("merk: %d trailing byte(s) in node encoding", r.Len())
	}
	return n, nil
}

func decodeLink(r *bytes.Reader) (*Link, error) {
	present, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	height, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	l := &Link{Height: int(height)}
	if _, err := readExact(r, l.Hash[:]); err != nil {
		return nil, err
	}
	keyLen, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	l.Key = make([]byte, keyLen)
	if keyLen > 0 {
		if _, err := readExact(r, l.Key); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func readExact(r *bytes.Reader, out []byte) (int, error) {
	n, err := r.Read(out)
	if err != nil {
		return n, err
	}
	if n != len(out) {
		return n, fmt.Errorf("short read: got %d want %d", n, len(out))
	}
	return n, nil
}
