package facets

import (
	"fmt"
	"reflect"
	"sync"
	"time"
)

// Source is a row model whose column values can be faceted.
// Version must change whenever the rows behind ColumnValues change.
type Source interface {
	Version() uint64
	ColumnValues(columnID string) []any
}

// Range holds the smallest and largest non-null value of a column
type Range struct {
	Min any `json:"min"`
	Max any `json:"max"`
}

type memoKey struct {
	source Source
	column string
}

type uniqueEntry struct {
	version uint64
	counts  map[any]int
}

type rangeEntry struct {
	version uint64
	rng     Range
	ok      bool
}

// Aggregator computes per-column facets and memoizes them on the identity
// and version of the source row model.
type Aggregator struct {
	mu     sync.Mutex
	unique map[memoKey]uniqueEntry
	ranges map[memoKey]rangeEntry
}

// NewAggregator creates an empty aggregator
func NewAggregator() *Aggregator {
	return &Aggregator{
		unique: make(map[memoKey]uniqueEntry),
		ranges: make(map[memoKey]rangeEntry),
	}
}

// UniqueValues maps every distinct cell value of column to its number of
// occurrences. Array cells contribute one count per element.
// The returned map is shared with the cache and must not be modified.
func (a *Aggregator) UniqueValues(src Source, column string) map[any]int {
	key := memoKey{source: src, column: column}
	version := src.Version()

	a.mu.Lock()
	defer a.mu.Unlock()

	if entry, ok := a.unique[key]; ok && entry.version == version {
		return entry.counts
	}

	counts := make(map[any]int)
	for _, v := range src.ColumnValues(column) {
		if elems, ok := asSlice(v); ok {
			for _, e := range elems {
				counts[facetKey(e)]++
			}
			continue
		}
		counts[facetKey(v)]++
	}

	a.unique[key] = uniqueEntry{version: version, counts: counts}
	return counts
}

// MinMax returns the smallest and largest non-null distinct value of column.
// ok is false when the column holds no comparable values.
func (a *Aggregator) MinMax(src Source, column string) (Range, bool) {
	key := memoKey{source: src, column: column}
	version := src.Version()

	a.mu.Lock()
	defer a.mu.Unlock()

	if entry, ok := a.ranges[key]; ok && entry.version == version {
		return entry.rng, entry.ok
	}

	var rng Range
	found := false
	for _, v := range src.ColumnValues(column) {
		if v == nil {
			continue
		}
		if !found {
			if _, comparable := orderKey(v); !comparable {
				continue
			}
			rng = Range{Min: v, Max: v}
			found = true
			continue
		}
		if c, ok := Compare(v, rng.Min); ok && c < 0 {
			rng.Min = v
		}
		if c, ok := Compare(v, rng.Max); ok && c > 0 {
			rng.Max = v
		}
	}

	a.ranges[key] = rangeEntry{version: version, rng: rng, ok: found}
	return rng, found
}

// Forget drops every memoized facet for src
func (a *Aggregator) Forget(src Source) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for k := range a.unique {
		if k.source == src {
			delete(a.unique, k)
		}
	}
	for k := range a.ranges {
		if k.source == src {
			delete(a.ranges, k)
		}
	}
}

// Compare orders two cell values of the same kind. Numbers compare
// numerically, times chronologically and strings lexicographically.
// ok is false when the values are not mutually comparable.
func Compare(a, b any) (int, bool) {
	ka, okA := orderKey(a)
	kb, okB := orderKey(b)
	if !okA || !okB {
		return 0, false
	}

	switch x := ka.(type) {
	case float64:
		y, ok := kb.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case time.Time:
		y, ok := kb.(time.Time)
		if !ok {
			return 0, false
		}
		return x.Compare(y), true
	case string:
		y, ok := kb.(string)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// orderKey normalizes a value into float64, time.Time or string
func orderKey(v any) (any, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint64:
		return float64(x), true
	case time.Time:
		return x, true
	case string:
		return x, true
	}
	return nil, false
}

func asSlice(v any) ([]any, bool) {
	switch x := v.(type) {
	case []any:
		return x, true
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

// facetKey returns v itself when it can key a map, otherwise its rendering
func facetKey(v any) any {
	if v == nil {
		return nil
	}
	if reflect.TypeOf(v).Comparable() {
		return v
	}
	return fmt.Sprint(v)
}
