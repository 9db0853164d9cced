package element

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Encode serializes e per spec.md §6:
//
//	tag byte selects the variant;
//	Item is (len-prefix, bytes, flag_byte);
//	Reference is (len-prefix path count, [len-prefix segment]*, flag_byte);
//	Tree is (32 bytes, flag_byte).
//
// Lengths use variable-length unsigned integer encoding (encoding/binary's
// Uvarint), chosen over a general serialization library because spec.md §6
// mandates this exact byte-for-byte framing — see DESIGN.md.
func Encode(e Element) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(e.Kind))

	switch e.Kind {
	case Item:
		writeUvarintBytes(&buf, e.ItemValue)
	case Reference:
		writeUvarint(&buf, uint64(len(e.ReferencePath)))
		for _, seg := range e.ReferencePath {
			writeUvarintBytes(&buf, seg)
		}
	case Tree:
		buf.Write(e.TreeRootHash[:])
	}

	writeFlag(&buf, e.Flag)
	return buf.Bytes()
}

// Decode deserializes an Element from exactly buf's bytes. Trailing bytes
// are rejected (spec.md §6).
func Decode(buf []byte) (Element, error) {
	r := bytes.NewReader(buf)

	tagByte, err := r.ReadByte()
	if err != nil {
		return Element{}, fmt.Errorf("element: read tag: %w", err)
	}
	kind := Kind(tagByte)

	var e Element
	e.Kind = kind

	switch kind {
	case Item:
		v, err := readUvarintBytes(r)
		if err != nil {
			return Element{}, fmt.Errorf("element: read item value: %w", err)
		}
		e.ItemValue = v
	case Reference:
		count, err := binary.ReadUvarint(r)
		if err != nil {
			return Element{}, fmt.Errorf("element: read reference path count: %w", err)
		}
		path := make([][]byte, 0, count)
		for i := uint64(0); i < count; i++ {
			seg, err := readUvarintBytes(r)
			if err != nil {
				return Element{}, fmt.Errorf("element: read reference segment %d: %w", i, err)
			}
			path = append(path, seg)
		}
		e.ReferencePath = path
	case Tree:
		var hash [32]byte
		if _, err := r.Read(hash[:]); err != nil {
			return Element{}, fmt.Errorf("element: read tree root hash: %w", err)
		}
		e.TreeRootHash = hash
	default:
		return Element{}, fmt.Errorf("element: unknown kind tag %d", tagByte)
	}

	flag, err := readFlag(r)
	if err != nil {
		return Element{}, fmt.Errorf("element: read flag: %w", err)
	}
	e.Flag = flag

	if r.Len() != 0 {
		return Element{}, fmt.Errorf("element: %d trailing byte(s) after decode", r.Len())
	}
	return e, nil
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func writeUvarintBytes(buf *bytes.Buffer, b []byte) {
	writeUvarint(buf, uint64(len(b)))
	buf.Write(b)
}

func readUvarintBytes(r *bytes.Reader) ([]byte, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	if n == 0 {
		return out, nil
	}
	if _, err := r.Read(out); err != nil {
		return nil, err
	}
	return out, nil
}

// writeFlag encodes an optional flag as a presence byte followed by the
// flag value if present, so the flag is unambiguous at the tail of the
// encoding (there is no trailing length to disambiguate "absent" from a
// zero-valued flag).
func writeFlag(buf *bytes.Buffer, flag Flag) {
	if flag == nil {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	buf.WriteByte(*flag)
}

func readFlag(r *bytes.Reader) (Flag, error) {
	present, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	b, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	return NewFlag(b), nil
}
