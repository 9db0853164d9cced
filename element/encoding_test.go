package element

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func roundTrip(t *testing.T, e Element) Element {
	t.Helper()
	enc := Encode(e)
	got, err := Decode(enc)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return got
}

func TestRoundTripItem(t *testing.T) {
	e := NewItem([]byte("value1"), NewFlag(7))
	got := roundTrip(t, e)
	if diff := cmp.Diff(e, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundTripItemNoFlag(t *testing.T) {
	e := NewItem([]byte(""), nil)
	got := roundTrip(t, e)
	if diff := cmp.Diff(e, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundTripReference(t *testing.T) {
	e := NewReference([][]byte{[]byte("test_leaf"), []byte("innertree")}, nil)
	got := roundTrip(t, e)
	if diff := cmp.Diff(e, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundTripTree(t *testing.T) {
	var hash [32]byte
	for i := range hash {
		hash[i] = byte(i)
	}
	e := NewTree(hash, NewFlag(1))
	got := roundTrip(t, e)
	if diff := cmp.Diff(e, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	enc := Encode(NewItem([]byte("x"), nil))
	enc = append(enc, 0xFF)
	if _, err := Decode(enc); err == nil {
		t.Fatal("expected error decoding element with trailing bytes")
	}
}

func TestDecodeRejectsUnknownKind(t *testing.T) {
	if _, err := Decode([]byte{0xFF}); err == nil {
		t.Fatal("expected error decoding unknown element kind")
	}
}
