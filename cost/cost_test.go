package cost

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestAddSaturates(t *testing.T) {
	c := Cost{SeekCount: math.MaxUint16, HashNodeCalls: math.MaxUint16}
	got := c.Add(Cost{SeekCount: 1, HashNodeCalls: 1})
	want := Cost{SeekCount: math.MaxUint16, HashNodeCalls: math.MaxUint16}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Add() saturation mismatch (-want +got):\n%s", diff)
	}
}

func TestMonadicComposition(t *testing.T) {
	base := WrapCost(3, Cost{SeekCount: 1}, nil)
	doubled := Map(base, func(v int) int { return v * 2 })
	if doubled.Value != 6 || doubled.Cost.SeekCount != 1 {
		t.Fatalf("Map() = %+v, want value 6 cost seek 1", doubled)
	}

	chained := FlatMap(doubled, func(v int) Context[int] {
		return WrapCost(v+1, Cost{SeekCount: 2}, nil)
	})
	if chained.Value != 7 || chained.Cost.SeekCount != 3 {
		t.Fatalf("FlatMap() = %+v, want value 7 cost seek 3", chained)
	}
}

func TestFlatMapShortCircuitsOnError(t *testing.T) {
	errCtx := WrapCost(0, Cost{SeekCount: 5}, errors.New("boom"))
	called := false
	result := FlatMap(errCtx, func(int) Context[int] {
		called = true
		return WrapCost(1, Cost{SeekCount: 100}, nil)
	})
	if called {
		t.Fatal("FlatMap invoked f despite upstream error")
	}
	if result.Cost.SeekCount != 5 || result.Err == nil {
		t.Fatalf("result = %+v, want cost preserved and error propagated", result)
	}
}

func TestUnwrapAccumulates(t *testing.T) {
	var acc Cost
	v, err := Unwrap(&acc, WrapCost(42, Cost{SeekCount: 2}, nil))
	if err != nil || v != 42 || acc.SeekCount != 2 {
		t.Fatalf("Unwrap() = %v, %v, acc=%+v", v, err, acc)
	}
	_, err = Unwrap(&acc, WrapCost(0, Cost{SeekCount: 3}, errors.New("fail")))
	if err == nil {
		t.Fatal("expected error to propagate")
	}
	if acc.SeekCount != 5 {
		t.Fatalf("acc.SeekCount = %d, want 5 (cost accumulated despite error)", acc.SeekCount)
	}
}

func TestWorstCaseEstimatorsMonotonic(t *testing.T) {
	small := EstimateTreeInsert(8, 32, 10)
	big := EstimateTreeInsert(8, 32, 100000)
	if big.SeekCount <= small.SeekCount {
		t.Fatalf("expected larger tree to cost more seeks: small=%d big=%d", small.SeekCount, big.SeekCount)
	}
}

func TestEstimateReferenceInsertIncludesHops(t *testing.T) {
	insert := EstimateTreeInsert(8, 32, 100)
	ref := EstimateReferenceInsert(8, 32, 100)
	if ref.SeekCount <= insert.SeekCount {
		t.Fatalf("reference insert should cost more seeks than a plain insert: insert=%d ref=%d", insert.SeekCount, ref.SeekCount)
	}
}
