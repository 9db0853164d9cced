package merk

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hads-project/hads/backend/memkv"
	"github.com/hads-project/hads/element"
	"github.com/hads-project/hads/hashutil"
	"github.com/hads-project/hads/query"
	"github.com/hads-project/hads/scope"
)

func openMerk(t *testing.T, path scope.Path) (*memkv.DB, *Merk) {
	t.Helper()
	db := memkv.New()
	ctx, err := scope.New(db, hashutil.SHA256, path)
	if err != nil {
		t.Fatalf("scope.New: %v", err)
	}
	m, err := Open(ctx, hashutil.SHA256)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return db, m
}

func putItems(t *testing.T, m *Merk, kvs ...[2]string) {
	t.Helper()
	ops := make([]KeyOp, len(kvs))
	for i, kv := range kvs {
		ops[i] = KeyOp{Key: []byte(kv[0]), Kind: OpPut, Element: element.NewItem([]byte(kv[1]), nil)}
	}
	if _, err := m.Apply(ops); err != nil {
		t.Fatalf("Apply: %v", err)
	}
}

func commit(t *testing.T, db *memkv.DB, m *Merk) {
	t.Helper()
	b := db.NewBatch()
	if err := m.Commit(b); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := b.Commit(); err != nil {
		t.Fatalf("batch Commit: %v", err)
	}
}

func TestPutGetDelete(t *testing.T) {
	db, m := openMerk(t, scope.Path{})
	putItems(t, m, [2]string{"a", "1"}, [2]string{"b", "2"}, [2]string{"c", "3"})
	commit(t, db, m)

	got, err := m.Get([]byte("b"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := element.Encode(element.NewItem([]byte("2"), nil))
	if !bytes.Equal(got.Value, want) {
		t.Fatalf("Get(b) = %x, want %x", got.Value, want)
	}

	ops := []KeyOp{{Key: []byte("b"), Kind: OpDelete}}
	if _, err := m.Apply(ops); err != nil {
		t.Fatalf("Apply delete: %v", err)
	}
	commit(t, db, m)

	if _, err := m.Get([]byte("b")); err == nil {
		t.Fatalf("Get(b) after delete: want error, got nil")
	}
	has, err := m.Has([]byte("a"))
	if err != nil || !has {
		t.Fatalf("Has(a) = %v, %v, want true, nil", has, err)
	}
}

func TestDeleteUnknownKeyRejectsWholeApply(t *testing.T) {
	_, m := openMerk(t, scope.Path{})
	putItems(t, m, [2]string{"a", "1"})

	ops := []KeyOp{{Key: []byte("missing"), Kind: OpDelete}}
	if _, err := m.Apply(ops); err == nil {
		t.Fatalf("Apply delete of missing key: want error, got nil")
	}
}

func TestApplyRejectsUnsortedKeys(t *testing.T) {
	_, m := openMerk(t, scope.Path{})
	ops := []KeyOp{
		{Key: []byte("b"), Kind: OpPut, Element: element.NewItem([]byte("1"), nil)},
		{Key: []byte("a"), Kind: OpPut, Element: element.NewItem([]byte("2"), nil)},
	}
	if _, err := m.Apply(ops); err == nil {
		t.Fatalf("Apply with descending keys: want error, got nil")
	}
}

// TestRootHashDeterministic checks that the resulting root hash does not
// depend on insertion order, only on the final key/value set.
func TestRootHashDeterministic(t *testing.T) {
	keys := [][2]string{{"m", "1"}, {"a", "2"}, {"z", "3"}, {"d", "4"}, {"q", "5"}, {"b", "6"}, {"y", "7"}}

	hash := func(order []int) [32]byte {
		_, m := openMerk(t, scope.Path{})
		for _, i := range order {
			putItems(t, m, keys[i])
		}
		return m.RootHash()
	}

	orderA := []int{0, 1, 2, 3, 4, 5, 6}
	orderB := []int{6, 5, 4, 3, 2, 1, 0}
	orderC := []int{3, 0, 6, 1, 5, 2, 4}

	hA, hB, hC := hash(orderA), hash(orderB), hash(orderC)
	if hA != hB || hA != hC {
		t.Fatalf("root hash depends on insertion order: %x, %x, %x", hA, hB, hC)
	}
}

func TestRebalanceKeepsAVLInvariant(t *testing.T) {
	_, m := openMerk(t, scope.Path{})
	// Strictly ascending inserts force a worst-case rotation chain.
	var kvs [][2]string
	for i := 0; i < 64; i++ {
		k := string([]byte{byte(i)})
		kvs = append(kvs, [2]string{k, k})
	}
	putItems(t, m, kvs...)

	n, err := m.loadNode(m.rootKey)
	if err != nil {
		t.Fatalf("loadNode(root): %v", err)
	}
	var checkBalanced func(*Node) int
	checkBalanced = func(n *Node) int {
		if n == nil {
			return 0
		}
		bf := n.balanceFactor()
		if bf < -1 || bf > 1 {
			t.Fatalf("node %x unbalanced: balance factor %d", n.Key, bf)
		}
		for _, l := range []*Link{n.Left, n.Right} {
			if l == nil {
				continue
			}
			child, err := m.loadNode(l.Key)
			if err != nil {
				t.Fatalf("loadNode(%x): %v", l.Key, err)
			}
			checkBalanced(child)
		}
		return n.Height()
	}
	checkBalanced(n)
}

func TestProveRoundTrip(t *testing.T) {
	db, m := openMerk(t, scope.Path{})
	putItems(t, m, [2]string{"a", "1"}, [2]string{"b", "2"}, [2]string{"c", "3"}, [2]string{"d", "4"}, [2]string{"e", "5"})
	commit(t, db, m)

	q := query.NewQuery(query.Range([]byte("b"), []byte("d")))
	ops, err := m.Prove(q, nil, nil)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}

	var got [][2]string
	root, err := Execute(ops, hashutil.SHA256, func(k, v []byte) {
		var e element.Element
		e, err := element.Decode(v)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		got = append(got, [2]string{string(k), string(e.ItemValue)})
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if root != m.RootHash() {
		t.Fatalf("Execute root = %x, want %x", root, m.RootHash())
	}

	want := [][2]string{{"b", "2"}, {"c", "3"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("proved KVs mismatch (-want +got):\n%s", diff)
	}
}

func TestChunkProducerRoundTrip(t *testing.T) {
	db, m := openMerk(t, scope.Path{})
	var kvs [][2]string
	for i := 0; i < 40; i++ {
		k := string([]byte{byte(i)})
		kvs = append(kvs, [2]string{k, k})
	}
	putItems(t, m, kvs...)
	commit(t, db, m)

	cp, err := NewChunkProducer(m)
	if err != nil {
		t.Fatalf("NewChunkProducer: %v", err)
	}

	collected := map[string]string{}
	collect := func(k, v []byte) {
		e, err := element.Decode(v)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		collected[string(k)] = string(e.ItemValue)
	}

	root, err := Execute(cp.TrunkChunk(), hashutil.SHA256, collect)
	if err != nil {
		t.Fatalf("Execute(trunk): %v", err)
	}

	for i := 0; i < cp.ChunkCount(); i++ {
		leaf, err := cp.LeafChunk(i)
		if err != nil {
			t.Fatalf("LeafChunk(%d): %v", i, err)
		}
		if _, err := Execute(leaf, hashutil.SHA256, collect); err != nil {
			t.Fatalf("Execute(leaf %d): %v", i, err)
		}
	}

	if root != m.RootHash() {
		t.Fatalf("trunk root = %x, want %x", root, m.RootHash())
	}
	for _, kv := range kvs {
		if collected[kv[0]] != kv[1] {
			t.Fatalf("chunk round trip missing/mismatched %q: got %q", kv[0], collected[kv[0]])
		}
	}
}
