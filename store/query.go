package store

import (
	"bytes"
	"context"

	"github.com/hads-project/hads/backend"
	"github.com/hads-project/hads/cost"
	"github.com/hads-project/hads/element"
	"github.com/hads-project/hads/errs"
	"github.com/hads-project/hads/query"
	"github.com/hads-project/hads/scope"
)

// queryState tracks the single offset/limit budget shared across every
// Item and every level of subquery recursion within one PathQuery
// (spec.md §4.4: "Limit and Offset apply to the path query as a whole").
type queryState struct {
	offset int
	limit  *int // nil means unbounded
}

func newQueryState(pq *query.PathQuery) *queryState {
	st := &queryState{}
	if pq.Offset != nil {
		st.offset = *pq.Offset
	}
	if pq.Limit != nil {
		l := *pq.Limit
		st.limit = &l
	}
	return st
}

func (st *queryState) exhausted() bool {
	return st.limit != nil && *st.limit <= 0
}

// admit reports whether the next matched entry should be materialized
// (false while the offset budget is still being consumed), and records
// its consumption against the limit budget otherwise.
func (st *queryState) admit() bool {
	if st.offset > 0 {
		st.offset--
		return false
	}
	if st.limit != nil {
		*st.limit--
	}
	return true
}

// Query executes pq against the store, recursing into Tree elements
// according to pq.Query.Subquery / pq.ConditionalSubqueries / SubqueryKey
// (SPEC_FULL.md supplemented feature 3, grounded on grovedb's
// subtree.rs::query and query_result_type.rs). The returned Results are in
// the order Query.Items and their matches were visited.
func (s *Store) Query(ctx context.Context, pq *query.PathQuery) (query.Results, cost.Cost, error) {
	if err := ctx.Err(); err != nil {
		return nil, cost.Cost{}, err
	}
	st := newQueryState(pq)
	var acc cost.Cost
	results, err := s.runQuery(s.kv, scope.Path(pq.Path), pq.Query, pq, st, &acc)
	s.observe(acc)
	return results, acc, err
}

func (s *Store) runQuery(reader backend.Reader, path scope.Path, q *query.Query, pq *query.PathQuery, st *queryState, acc *cost.Cost) (query.Results, error) {
	if q == nil || st.exhausted() {
		return nil, nil
	}
	sc, err := scope.New(reader, s.hasher, path)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidPath, err)
	}

	var out query.Results
	for _, item := range q.Items {
		if st.exhausted() {
			break
		}
		matches, err := scanItem(sc, item)
		if err != nil {
			return nil, errs.Wrap(errs.StorageError, err)
		}
		if !q.LeftToRight {
			for i, j := 0, len(matches)-1; i < j; i, j = i+1, j-1 {
				matches[i], matches[j] = matches[j], matches[i]
			}
		}

		for _, kv := range matches {
			if st.exhausted() {
				break
			}
			acc.SeekCount++
			acc.LoadedBytes += uint32(len(kv.value))

			el, err := element.Decode(kv.value)
			if err != nil {
				return nil, errs.Wrap(errs.CorruptedData, err)
			}

			sub := pq.ConditionalSubqueryFor(item)
			if el.Kind == element.Tree && (sub != nil || len(q.SubqueryKey) > 0) {
				childPath := path.Child(kv.key)
				if len(q.SubqueryKey) > 0 {
					nested, err := s.runQuery(reader, childPath, query.NewQuery(query.Key(q.SubqueryKey)), pq, st, acc)
					if err != nil {
						return nil, err
					}
					out = append(out, nested...)
					continue
				}
				nested, err := s.runQuery(reader, childPath, sub, pq, st, acc)
				if err != nil {
					return nil, err
				}
				out = append(out, nested...)
				continue
			}

			if !st.admit() {
				continue
			}
			out = append(out, makeResult(path, kv.key, kv.value, pq.ResultType))
		}
	}
	return out, nil
}

func makeResult(path scope.Path, key, value []byte, rt query.ResultType) query.Result {
	r := query.Result{Key: append([]byte(nil), key...)}
	if rt == query.PathKeyValue {
		r.Path = [][]byte(path.Clone())
	}
	if rt != query.KeysOnly {
		r.Value = append([]byte(nil), value...)
	}
	return r
}

type kvPair struct {
	key   []byte
	value []byte
}

// scanItem collects every (key, value) pair of the data column matching
// item, in ascending key order. Queries are not assumed to be large enough
// to warrant a bounded-seek fast path; this always walks forward from
// item's lower bound (or the start of the column) until it passes the
// upper bound.
func scanItem(sc *scope.Context, item query.Item) ([]kvPair, error) {
	it := sc.Iterator(backend.Data, nil)
	defer it.Close()

	if item.Lower != nil {
		it.Seek(item.Lower)
	} else {
		it.SeekToFirst()
	}

	var out []kvPair
	for ; it.Valid(); it.Next() {
		key := it.Key()
		if !item.Matches(key) {
			if item.Upper != nil {
				c := bytes.Compare(key, item.Upper)
				if c > 0 || (c == 0 && !item.UpperInclusive) {
					break
				}
			}
			continue
		}
		out = append(out, kvPair{key: append([]byte(nil), key...), value: append([]byte(nil), it.Value()...)})
	}
	return out, nil
}
