package roots

import (
	"bytes"
	"testing"

	"github.com/hads-project/hads/backend"
	"github.com/hads-project/hads/backend/memkv"
	"github.com/hads-project/hads/hashutil"
)

func TestSetGetRemove(t *testing.T) {
	rl := &Leaves{}
	rl.Set([]byte("users"), hashutil.SHA256.Hash([]byte("u")))
	rl.Set([]byte("orders"), hashutil.SHA256.Hash([]byte("o")))

	if got, ok := rl.Get([]byte("users")); !ok || got != hashutil.SHA256.Hash([]byte("u")) {
		t.Fatalf("Get(users) = %x, %v", got, ok)
	}
	if _, ok := rl.Get([]byte("missing")); ok {
		t.Fatal("Get(missing) reported present")
	}

	want := [][]byte{[]byte("orders"), []byte("users")}
	for i, name := range rl.Names() {
		if !bytes.Equal(name, want[i]) {
			t.Fatalf("Names()[%d] = %q, want %q", i, name, want[i])
		}
	}

	rl.Remove([]byte("orders"))
	if _, ok := rl.Get([]byte("orders")); ok {
		t.Fatal("Get(orders) still present after Remove")
	}
	if len(rl.Names()) != 1 {
		t.Fatalf("Names() = %v, want 1 entry", rl.Names())
	}
}

func TestSetOverwritesExisting(t *testing.T) {
	rl := &Leaves{}
	h1 := hashutil.SHA256.Hash([]byte("v1"))
	h2 := hashutil.SHA256.Hash([]byte("v2"))
	rl.Set([]byte("k"), h1)
	rl.Set([]byte("k"), h2)

	got, ok := rl.Get([]byte("k"))
	if !ok || got != h2 {
		t.Fatalf("Get(k) = %x, %v, want %x", got, ok, h2)
	}
	if len(rl.Names()) != 1 {
		t.Fatalf("Names() = %v, want 1 entry (overwrite, not append)", rl.Names())
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	rl := &Leaves{}
	rl.Set([]byte("b"), hashutil.SHA256.Hash([]byte("1")))
	rl.Set([]byte("a"), hashutil.SHA256.Hash([]byte("2")))
	rl.Set([]byte("c"), hashutil.SHA256.Hash([]byte("3")))

	got, err := Decode(rl.Encode())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(got.Encode(), rl.Encode()) {
		t.Fatalf("round trip mismatch: got %x, want %x", got.Encode(), rl.Encode())
	}
}

func TestLoadEmptyWhenNeverWritten(t *testing.T) {
	db := memkv.New()
	rl, err := Load(db)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(rl.Names()) != 0 {
		t.Fatalf("Load on empty backend returned %d leaves, want 0", len(rl.Names()))
	}
	if rl.Commitment(hashutil.SHA256) != hashutil.ZeroHash {
		t.Fatal("Commitment of empty Leaves should be the zero hash")
	}
}

func TestLoadRoundTripsThroughBackend(t *testing.T) {
	db := memkv.New()
	rl := &Leaves{}
	rl.Set([]byte("users"), hashutil.SHA256.Hash([]byte("u")))

	b := db.NewBatch()
	b.Put(backend.Data, []byte("rootLeafsSerialized"), rl.Encode())
	if err := b.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, err := Load(db)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if hash, ok := got.Get([]byte("users")); !ok || hash != hashutil.SHA256.Hash([]byte("u")) {
		t.Fatalf("Load round trip mismatch: %x, %v", hash, ok)
	}
}

func TestCommitmentDuplicatesLastLeafOnOddCount(t *testing.T) {
	rl := &Leaves{}
	rl.Set([]byte("a"), hashutil.SHA256.Hash([]byte("1")))
	rl.Set([]byte("b"), hashutil.SHA256.Hash([]byte("2")))
	rl.Set([]byte("c"), hashutil.SHA256.Hash([]byte("3")))

	h := hashutil.SHA256
	leafA := h.Hash([]byte("a"), rl.hashes[0][:])
	leafB := h.Hash([]byte("b"), rl.hashes[1][:])
	leafC := h.Hash([]byte("c"), rl.hashes[2][:])
	left := h.Hash(leafA[:], leafB[:])
	right := h.Hash(leafC[:], leafC[:])
	want := h.Hash(left[:], right[:])

	if got := rl.Commitment(h); got != want {
		t.Fatalf("Commitment() = %x, want %x", got, want)
	}
}

func TestCommitmentIsOrderIndependent(t *testing.T) {
	a := &Leaves{}
	a.Set([]byte("x"), hashutil.SHA256.Hash([]byte("1")))
	a.Set([]byte("y"), hashutil.SHA256.Hash([]byte("2")))

	b := &Leaves{}
	b.Set([]byte("y"), hashutil.SHA256.Hash([]byte("2")))
	b.Set([]byte("x"), hashutil.SHA256.Hash([]byte("1")))

	if a.Commitment(hashutil.SHA256) != b.Commitment(hashutil.SHA256) {
		t.Fatal("Commitment depends on registration order, want name-sorted determinism")
	}
}
