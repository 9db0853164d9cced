package store_test

import (
	"context"
	"testing"

	"github.com/hads-project/hads/backend/memkv"
	"github.com/hads-project/hads/batch"
	"github.com/hads-project/hads/element"
	"github.com/hads-project/hads/errs"
	"github.com/hads-project/hads/hashutil"
	"github.com/hads-project/hads/query"
	"github.com/hads-project/hads/scope"
	"github.com/hads-project/hads/store"
)

func TestInsertGetDelete(t *testing.T) {
	s := store.Open(memkv.New())
	ctx := context.Background()
	path := scope.Path{[]byte("users")}

	if _, err := s.Insert(ctx, path, []byte("alice"), element.NewItem([]byte("1"), nil)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, err := s.Get(ctx, path, []byte("alice"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got.Value) != "1" {
		t.Fatalf("Get = %q, want %q", got.Value, "1")
	}

	if _, err := s.Delete(ctx, path, []byte("alice")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, path, []byte("alice")); !errs.Is(err, errs.PathKeyNotFound) {
		t.Fatalf("Get after Delete = %v, want PathKeyNotFound", err)
	}
}

func TestInsertIfNotExistsRejectsDuplicate(t *testing.T) {
	s := store.Open(memkv.New())
	ctx := context.Background()
	path := scope.Path{[]byte("users")}

	if _, err := s.InsertIfNotExists(ctx, path, []byte("alice"), element.NewItem([]byte("1"), nil)); err != nil {
		t.Fatalf("first InsertIfNotExists: %v", err)
	}
	if _, err := s.InsertIfNotExists(ctx, path, []byte("alice"), element.NewItem([]byte("2"), nil)); err == nil {
		t.Fatal("second InsertIfNotExists on the same key should fail")
	}
	got, err := s.Get(ctx, path, []byte("alice"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got.Value) != "1" {
		t.Fatalf("Get = %q, want the original value %q", got.Value, "1")
	}
}

func TestNestedInsertPropagatesRootHash(t *testing.T) {
	s := store.Open(memkv.New())
	ctx := context.Background()

	if _, err := s.Insert(ctx, scope.Path{[]byte("root")}, []byte("child"), element.EmptyTree(nil)); err != nil {
		t.Fatalf("Insert placeholder: %v", err)
	}
	childPath := scope.Path{[]byte("root"), []byte("child")}
	if _, err := s.Insert(ctx, childPath, []byte("leaf"), element.NewItem([]byte("v"), nil)); err != nil {
		t.Fatalf("Insert leaf: %v", err)
	}

	childHash, err := s.RootHash(childPath)
	if err != nil {
		t.Fatalf("RootHash(child): %v", err)
	}

	_, err = s.Get(ctx, scope.Path{[]byte("root")}, []byte("child"))
	if err == nil {
		t.Fatal("Get on a Tree element should fail with InvalidQuery")
	}
	if !errs.Is(err, errs.InvalidQuery) {
		t.Fatalf("Get(child) = %v, want InvalidQuery", err)
	}

	overall, err := s.RootHash(scope.Path{})
	if err != nil {
		t.Fatalf("RootHash(root): %v", err)
	}
	if hashutil.IsZero(overall) {
		t.Fatal("overall root commitment should not be the zero hash once a top-level subtree has content")
	}
	if hashutil.IsZero(childHash) {
		t.Fatal("child subtree root hash should not be zero once it has content")
	}
}

func TestIsEmptyTree(t *testing.T) {
	s := store.Open(memkv.New())
	ctx := context.Background()
	path := scope.Path{[]byte("users")}

	empty, err := s.IsEmptyTree(ctx, path)
	if err != nil {
		t.Fatalf("IsEmptyTree: %v", err)
	}
	if !empty {
		t.Fatal("a never-written subtree should be empty")
	}

	if _, err := s.Insert(ctx, path, []byte("alice"), element.NewItem([]byte("1"), nil)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	empty, err = s.IsEmptyTree(ctx, path)
	if err != nil {
		t.Fatalf("IsEmptyTree: %v", err)
	}
	if empty {
		t.Fatal("a subtree with content should not be empty")
	}
}

func TestReferenceResolution(t *testing.T) {
	s := store.Open(memkv.New())
	ctx := context.Background()
	path := scope.Path{[]byte("users")}

	if _, err := s.Insert(ctx, path, []byte("alice"), element.NewItem([]byte("1"), nil)); err != nil {
		t.Fatalf("Insert alice: %v", err)
	}
	ref := element.NewReference([][]byte{[]byte("users"), []byte("alice")}, nil)
	if _, err := s.Insert(ctx, path, []byte("alice-alias"), ref); err != nil {
		t.Fatalf("Insert reference: %v", err)
	}

	got, err := s.Get(ctx, path, []byte("alice-alias"))
	if err != nil {
		t.Fatalf("Get(alias): %v", err)
	}
	if string(got.Value) != "1" {
		t.Fatalf("Get(alias) = %q, want %q", got.Value, "1")
	}
}

func TestReferenceCycleDetected(t *testing.T) {
	s := store.Open(memkv.New())
	ctx := context.Background()
	path := scope.Path{[]byte("users")}

	a := element.NewReference([][]byte{[]byte("users"), []byte("b")}, nil)
	b := element.NewReference([][]byte{[]byte("users"), []byte("a")}, nil)
	if _, err := s.Insert(ctx, path, []byte("a"), a); err != nil {
		t.Fatalf("Insert a: %v", err)
	}
	if _, err := s.Insert(ctx, path, []byte("b"), b); err != nil {
		t.Fatalf("Insert b: %v", err)
	}

	if _, err := s.Get(ctx, path, []byte("a")); !errs.Is(err, errs.CyclicReference) {
		t.Fatalf("Get(a) = %v, want CyclicReference", err)
	}
}

func TestTransactionIsolatedUntilCommit(t *testing.T) {
	s := store.Open(memkv.New())
	ctx := context.Background()
	path := scope.Path{[]byte("users")}

	txn, err := s.StartTransaction()
	if err != nil {
		t.Fatalf("StartTransaction: %v", err)
	}
	if _, err := txn.Insert(ctx, path, []byte("alice"), element.NewItem([]byte("1"), nil)); err != nil {
		t.Fatalf("txn.Insert: %v", err)
	}

	if _, err := s.Get(ctx, path, []byte("alice")); !errs.Is(err, errs.PathKeyNotFound) {
		t.Fatalf("uncommitted write visible outside the transaction: %v", err)
	}

	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if _, err := s.Get(ctx, path, []byte("alice")); err != nil {
		t.Fatalf("Get after Commit: %v", err)
	}
}

func TestQueryRangeWithLimit(t *testing.T) {
	s := store.Open(memkv.New())
	ctx := context.Background()
	path := scope.Path{[]byte("users")}

	for _, k := range []string{"a", "b", "c", "d"} {
		if _, err := s.Insert(ctx, path, []byte(k), element.NewItem([]byte(k), nil)); err != nil {
			t.Fatalf("Insert(%s): %v", k, err)
		}
	}

	limit := 2
	pq := &query.PathQuery{
		Path:  [][]byte{[]byte("users")},
		Query: query.NewQuery(query.All()),
		Limit: &limit,
	}
	results, _, err := s.Query(ctx, pq)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if string(results[0].Key) != "a" || string(results[1].Key) != "b" {
		t.Fatalf("results = %v, want [a b]", results)
	}
}

func TestProveAndVerifyRoundTrip(t *testing.T) {
	s := store.Open(memkv.New())
	ctx := context.Background()
	path := scope.Path{[]byte("users")}

	for _, k := range []string{"alice", "bob", "carol"} {
		if _, err := s.Insert(ctx, path, []byte(k), element.NewItem([]byte(k), nil)); err != nil {
			t.Fatalf("Insert(%s): %v", k, err)
		}
	}

	pq := &query.PathQuery{
		Path:  [][]byte{[]byte("users")},
		Query: query.NewQuery(query.All()),
	}
	wire, err := s.Prove(ctx, pq)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}

	rootHash, results, err := store.VerifyProof(wire, pq, hashutil.SHA256)
	if err != nil {
		t.Fatalf("VerifyProof: %v", err)
	}
	want, err := s.RootHash(scope.Path{})
	if err != nil {
		t.Fatalf("RootHash: %v", err)
	}
	if rootHash != want {
		t.Fatalf("VerifyProof root = %x, want %x", rootHash, want)
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
}

func TestApplyBatchUpdatesDeepPathWithoutExplicitAncestorOps(t *testing.T) {
	s := store.Open(memkv.New())
	ctx := context.Background()

	if _, err := s.Insert(ctx, scope.Path{[]byte("root")}, []byte("child"), element.EmptyTree(nil)); err != nil {
		t.Fatalf("Insert placeholder: %v", err)
	}
	childPath := scope.Path{[]byte("root"), []byte("child")}
	if _, err := s.Insert(ctx, childPath, []byte("leaf"), element.NewItem([]byte("v1"), nil)); err != nil {
		t.Fatalf("Insert leaf: %v", err)
	}

	before, err := s.RootHash(scope.Path{})
	if err != nil {
		t.Fatalf("RootHash before: %v", err)
	}

	ops := []batch.Op{
		{Path: childPath, Key: []byte("leaf2"), Kind: batch.Put, Element: element.NewItem([]byte("v2"), nil)},
	}
	if _, err := s.ApplyBatch(ctx, ops); err != nil {
		t.Fatalf("ApplyBatch: %v", err)
	}

	after, err := s.RootHash(scope.Path{})
	if err != nil {
		t.Fatalf("RootHash after: %v", err)
	}
	if after == before {
		t.Fatal("overall root hash did not change after a deep, ancestor-implicit ApplyBatch")
	}

	got, err := s.Get(ctx, childPath, []byte("leaf2"))
	if err != nil {
		t.Fatalf("Get(leaf2): %v", err)
	}
	if string(got.Value) != "v2" {
		t.Fatalf("Get(leaf2) = %q, want %q", got.Value, "v2")
	}
}

func TestApplyBatchCreateInsertDeleteInSameBatchIsNetNoop(t *testing.T) {
	s := store.Open(memkv.New())
	ctx := context.Background()
	testLeaf := scope.Path{[]byte("test_leaf")}

	before, err := s.RootHash(scope.Path{})
	if err != nil {
		t.Fatalf("RootHash before: %v", err)
	}

	ops := []batch.Op{
		{Path: testLeaf, Key: []byte("a"), Kind: batch.Put, Element: element.EmptyTree(nil)},
		{Path: testLeaf.Child([]byte("a")), Key: []byte("b"), Kind: batch.Put, Element: element.NewItem([]byte("x"), nil)},
		{Path: testLeaf, Key: []byte("a"), Kind: batch.Delete},
	}
	if _, err := s.ApplyBatch(ctx, ops); err != nil {
		t.Fatalf("ApplyBatch: %v", err)
	}

	if _, err := s.Get(ctx, testLeaf, []byte("a")); err == nil {
		t.Fatal("Get(test_leaf, a) should fail after a create-insert-delete batch")
	}
	if _, err := s.Get(ctx, testLeaf.Child([]byte("a")), []byte("b")); err == nil {
		t.Fatal("Get(test_leaf/a, b) should fail after a create-insert-delete batch")
	}

	after, err := s.RootHash(scope.Path{})
	if err != nil {
		t.Fatalf("RootHash after: %v", err)
	}
	if after != before {
		t.Fatalf("overall root hash changed after a net-no-op batch: before=%x after=%x", before, after)
	}
}
