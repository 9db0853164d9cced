package memkv

import (
	"testing"

	"github.com/hads-project/hads/backend"
)

func TestPutGetDelete(t *testing.T) {
	db := New()
	b := db.NewBatch()
	b.Put(backend.Data, []byte("a"), []byte("1"))
	b.Put(backend.Data, []byte("b"), []byte("2"))
	if err := b.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	v, err := db.Get(backend.Data, []byte("a"))
	if err != nil || string(v) != "1" {
		t.Fatalf("Get(a) = %q, %v, want 1, nil", v, err)
	}

	b = db.NewBatch()
	b.Delete(backend.Data, []byte("a"))
	if err := b.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if _, err := db.Get(backend.Data, []byte("a")); err != backend.ErrNotFound {
		t.Fatalf("Get(a) after delete = %v, want ErrNotFound", err)
	}
}

func TestIteratorOrderAndPrefix(t *testing.T) {
	db := New()
	b := db.NewBatch()
	for _, k := range []string{"p/1", "p/2", "p/3", "q/1"} {
		b.Put(backend.Data, []byte(k), []byte(k))
	}
	if err := b.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	it := db.RawIterator(backend.Data, []byte("p/"))
	defer it.Close()
	var got []string
	for it.SeekToFirst(); it.Valid(); it.Next() {
		got = append(got, string(it.Key()))
	}
	want := []string{"p/1", "p/2", "p/3"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestTransactionIsolation(t *testing.T) {
	db := New()
	b := db.NewBatch()
	b.Put(backend.Data, []byte("x"), []byte("0"))
	if err := b.Commit(); err != nil {
		t.Fatal(err)
	}

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	tb := tx.NewBatch()
	tb.Put(backend.Data, []byte("x"), []byte("1"))
	if err := tb.Commit(); err != nil {
		t.Fatal(err)
	}

	// Uncommitted write is invisible outside the transaction.
	if v, _ := db.Get(backend.Data, []byte("x")); string(v) != "0" {
		t.Fatalf("db.Get(x) = %q before commit, want 0", v)
	}
	// But visible within the transaction's own view.
	if v, _ := tx.Get(backend.Data, []byte("x")); string(v) != "1" {
		t.Fatalf("tx.Get(x) = %q, want 1", v)
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if v, _ := db.Get(backend.Data, []byte("x")); string(v) != "1" {
		t.Fatalf("db.Get(x) = %q after commit, want 1", v)
	}
}

func TestRollbackDiscardsWrites(t *testing.T) {
	db := New()
	tx, err := db.Begin()
	if err != nil {
		t.Fatal(err)
	}
	tb := tx.NewBatch()
	tb.Put(backend.Data, []byte("y"), []byte("z"))
	if err := tb.Commit(); err != nil {
		t.Fatal(err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if _, err := db.Get(backend.Data, []byte("y")); err != backend.ErrNotFound {
		t.Fatalf("Get(y) after rollback = %v, want ErrNotFound", err)
	}
}
