package query

import "testing"

func TestItemMatches(t *testing.T) {
	tests := []struct {
		name string
		item Item
		key  string
		want bool
	}{
		{"single key hit", Key([]byte("b")), "b", true},
		{"single key miss", Key([]byte("b")), "c", false},
		{"half-open excludes upper", Range([]byte("a"), []byte("c")), "c", false},
		{"half-open includes lower", Range([]byte("a"), []byte("c")), "a", true},
		{"inclusive includes upper", RangeInclusive([]byte("a"), []byte("c")), "c", true},
		{"all matches anything", All(), "zzz", true},
		{"below lower bound", Range([]byte("m"), []byte("z")), "a", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.item.Matches([]byte(tt.key)); got != tt.want {
				t.Errorf("Matches(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestQueryMatchesAnyItem(t *testing.T) {
	q := NewQuery(Key([]byte("a")), Key([]byte("c")))
	if !q.Matches([]byte("a")) {
		t.Error("expected match on \"a\"")
	}
	if q.Matches([]byte("b")) {
		t.Error("unexpected match on \"b\"")
	}
	if !q.LeftToRight {
		t.Error("NewQuery should default to ascending iteration")
	}
}

func TestConditionalSubqueryForPrefersConditionalEntry(t *testing.T) {
	cond := NewQuery(Key([]byte("x")))
	def := NewQuery(Key([]byte("y")))
	fallback := NewQuery(Key([]byte("z")))

	item := Key([]byte("a"))
	pq := &PathQuery{
		Query:                 &Query{Subquery: fallback},
		DefaultSubquery:       def,
		ConditionalSubqueries: map[string]*Query{string(item.lowerBoundKey()): cond},
	}

	if got := pq.ConditionalSubqueryFor(item); got != cond {
		t.Error("expected the conditional subquery to win over DefaultSubquery and Query.Subquery")
	}
}

func TestConditionalSubqueryForFallsBackToDefaultThenSubquery(t *testing.T) {
	fallback := NewQuery(Key([]byte("z")))
	def := NewQuery(Key([]byte("y")))
	item := Key([]byte("a"))

	pqWithDefault := &PathQuery{Query: &Query{Subquery: fallback}, DefaultSubquery: def}
	if got := pqWithDefault.ConditionalSubqueryFor(item); got != def {
		t.Error("expected DefaultSubquery to win over Query.Subquery")
	}

	pqNoDefault := &PathQuery{Query: &Query{Subquery: fallback}}
	if got := pqNoDefault.ConditionalSubqueryFor(item); got != fallback {
		t.Error("expected Query.Subquery as the last resort")
	}

	pqEmpty := &PathQuery{}
	if got := pqEmpty.ConditionalSubqueryFor(item); got != nil {
		t.Errorf("expected nil subquery, got %v", got)
	}
}
