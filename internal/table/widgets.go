package table

import (
	"sort"
	"time"

	"github.com/noah-analytics/noah-server/internal/facets"
)

// Variant selects tenant-specific defaults
type Variant string

const (
	VariantStandard Variant = "standard"
	// VariantRealtime tenants review the last day rather than the last week
	VariantRealtime Variant = "realtime"
)

const (
	standardWindow = 7 * 24 * time.Hour
	realtimeWindow = 24 * time.Hour

	// TextDebounce is how long a text widget waits after the last keystroke
	TextDebounce = 300 * time.Millisecond
)

// DefaultDateWindow picks the initial date filter for a column whose values
// span bounds: the last week (or day, for realtime tenants) up to the latest
// value, or the whole span when history is requested.
func DefaultDateWindow(bounds facets.Range, variant Variant, history bool) (DateRangeValue, bool) {
	lo, okLo := ParseTime(bounds.Min)
	hi, okHi := ParseTime(bounds.Max)
	if !okLo || !okHi {
		return DateRangeValue{}, false
	}
	if history {
		return DateRangeValue{From: lo, To: hi}, true
	}

	window := standardWindow
	if variant == VariantRealtime {
		window = realtimeWindow
	}
	from := hi.Add(-window)
	if from.Before(lo) {
		from = lo
	}
	return DateRangeValue{From: from, To: hi}, true
}

// Option is one choice of a categorical widget
type Option struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Widget describes the filter control of one column, ready for the client
type Widget struct {
	Column     string          `json:"column"`
	Header     string          `json:"header"`
	Kind       FilterKind      `json:"kind"`
	Options    []Option        `json:"options,omitempty"`     // categorical
	DebounceMS int64           `json:"debounce_ms,omitempty"` // text
	Bounds     *DateRangeValue `json:"bounds,omitempty"`      // daterange
	Value      FilterValue     `json:"value,omitempty"`
	// Default is set when Value is the default window, not a user choice
	Default bool `json:"default,omitempty"`
}

// Widgets builds the filter controls for every visible filterable column.
// Options and bounds of a column ignore that column's own filter.
func (t *Table) Widgets(agg *facets.Aggregator) []Widget {
	var out []Widget
	for _, col := range t.Columns() {
		if col.Filter == NoFilter || !t.IsVisible(col.ID) {
			continue
		}

		w := Widget{Column: col.ID, Header: col.Header, Kind: col.Filter}
		if v, ok := t.ColumnFilter(col.ID); ok {
			w.Value = v
			w.Default = t.IsDefaultFilter(col.ID)
		}

		src := t.FacetSource(col.ID)
		switch col.Filter {
		case Categorical:
			w.Options = options(agg.UniqueValues(src, col.ID))
		case Text:
			w.DebounceMS = TextDebounce.Milliseconds()
		case DateRange:
			if rng, ok := agg.MinMax(src, col.ID); ok {
				lo, okLo := ParseTime(rng.Min)
				hi, okHi := ParseTime(rng.Max)
				if okLo && okHi {
					w.Bounds = &DateRangeValue{From: lo, To: hi}
				}
			}
		case NoFilter:
		}
		out = append(out, w)
	}
	return out
}

// ApplyDefaultDateFilters sets the default window on every date-range
// column that has no filter yet. Default windows stay out of EncodeQuery;
// a history request is mirrored instead.
func (t *Table) ApplyDefaultDateFilters(agg *facets.Aggregator, variant Variant, history bool) {
	t.mu.Lock()
	t.history = history
	t.mu.Unlock()

	for _, col := range t.Columns() {
		if col.Filter != DateRange {
			continue
		}
		if _, ok := t.ColumnFilter(col.ID); ok {
			continue
		}
		rng, ok := agg.MinMax(t.FacetSource(col.ID), col.ID)
		if !ok {
			continue
		}
		if window, ok := DefaultDateWindow(rng, variant, history); ok {
			t.mu.Lock()
			t.setFilterLocked(col.ID, window)
			t.defaults[col.ID] = true
			t.mu.Unlock()
		}
	}
}

func options(counts map[any]int) []Option {
	out := make([]Option, 0, len(counts))
	for v, n := range counts {
		if v == nil {
			continue
		}
		out = append(out, Option{Value: CellString(v), Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out
}
