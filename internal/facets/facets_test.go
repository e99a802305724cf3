package facets

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	version uint64
	values  map[string][]any
	calls   int
}

func (f *fakeSource) Version() uint64 { return f.version }

func (f *fakeSource) ColumnValues(columnID string) []any {
	f.calls++
	return f.values[columnID]
}

func TestUniqueValues_CountsArrayElements(t *testing.T) {
	src := &fakeSource{values: map[string][]any{
		"tag": {"A", "B", "A", []any{"C", "B"}},
	}}

	got := NewAggregator().UniqueValues(src, "tag")

	assert.Equal(t, map[any]int{"A": 2, "B": 2, "C": 1}, got)
}

func TestUniqueValues_NonComparableValues(t *testing.T) {
	src := &fakeSource{values: map[string][]any{
		"meta": {map[string]any{"k": 1}, map[string]any{"k": 1}, nil},
	}}

	got := NewAggregator().UniqueValues(src, "meta")

	assert.Equal(t, 2, got["map[k:1]"])
	assert.Equal(t, 1, got[nil])
}

func TestUniqueValues_Memoized(t *testing.T) {
	src := &fakeSource{version: 1, values: map[string][]any{"f": {"A"}}}
	agg := NewAggregator()

	agg.UniqueValues(src, "f")
	agg.UniqueValues(src, "f")
	assert.Equal(t, 1, src.calls, "unchanged row model should not be rescanned")

	src.version = 2
	src.values["f"] = []any{"A", "B"}
	got := agg.UniqueValues(src, "f")
	assert.Equal(t, 2, src.calls)
	assert.Equal(t, map[any]int{"A": 1, "B": 1}, got)
}

func TestMinMax_IgnoresNull(t *testing.T) {
	src := &fakeSource{values: map[string][]any{
		"score": {5, 1, 9, nil, 3},
	}}

	rng, ok := NewAggregator().MinMax(src, "score")

	require.True(t, ok)
	assert.Equal(t, 1, rng.Min)
	assert.Equal(t, 9, rng.Max)
}

func TestMinMax_Times(t *testing.T) {
	early := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{values: map[string][]any{
		"date": {late, nil, early},
	}}

	rng, ok := NewAggregator().MinMax(src, "date")

	require.True(t, ok)
	assert.Equal(t, early, rng.Min)
	assert.Equal(t, late, rng.Max)
}

func TestMinMax_EmptyColumn(t *testing.T) {
	src := &fakeSource{values: map[string][]any{"x": {nil, nil}}}

	_, ok := NewAggregator().MinMax(src, "x")

	assert.False(t, ok)
}

func TestMinMax_Memoized(t *testing.T) {
	src := &fakeSource{version: 7, values: map[string][]any{"n": {2.5, 1.5}}}
	agg := NewAggregator()

	agg.MinMax(src, "n")
	agg.MinMax(src, "n")
	assert.Equal(t, 1, src.calls)

	agg.Forget(src)
	agg.MinMax(src, "n")
	assert.Equal(t, 2, src.calls)
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name   string
		a, b   any
		want   int
		wantOK bool
	}{
		{name: "ints", a: 1, b: 2, want: -1, wantOK: true},
		{name: "mixed numbers", a: 2.0, b: 2, want: 0, wantOK: true},
		{name: "strings", a: "b", b: "a", want: 1, wantOK: true},
		{name: "string vs number", a: "1", b: 1, wantOK: false},
		{name: "bool", a: true, b: false, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Compare(tt.a, tt.b)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
