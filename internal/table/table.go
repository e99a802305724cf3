package table

import (
	"fmt"
	"sync"

	"github.com/noah-analytics/noah-server/internal/facets"
)

// DefaultPageSize is the page size a new table starts with
const DefaultPageSize = 10

// Row is one record as decoded from the data service
type Row map[string]any

// Pagination is the current page window
type Pagination struct {
	PageIndex int `json:"page_index"`
	PageSize  int `json:"page_size"`
}

// Table wires column metadata, filter state, pagination and column
// visibility over a set of rows. It is safe for concurrent use.
type Table struct {
	mu sync.Mutex

	columns []ColumnDef
	byID    map[string]int
	rows    []Row

	filters    map[string]FilterValue
	global     string
	pagination Pagination
	visibility map[string]bool

	// defaults marks filters set by ApplyDefaultDateFilters rather than
	// the user; they stay out of the URL
	defaults map[string]bool
	history  bool

	// version changes whenever the filtered row model may change
	version       uint64
	filtered      []Row
	filteredValid bool

	facetSources map[string]*facetSource
	facetRows    map[string]facetRows

	persist *visibilityPersistence
}

// New creates a table over rows with the given columns
func New(columns []ColumnDef, rows []Row) *Table {
	t := &Table{
		columns:    append([]ColumnDef(nil), columns...),
		byID:       make(map[string]int, len(columns)),
		rows:       rows,
		filters:    make(map[string]FilterValue),
		defaults:   make(map[string]bool),
		pagination: Pagination{PageSize: DefaultPageSize},
		visibility: make(map[string]bool, len(columns)),
		version:    1,
	}
	for i, c := range t.columns {
		t.byID[c.ID] = i
		t.visibility[c.ID] = !c.Hidden
	}
	return t
}

// Columns returns every column definition in display order
func (t *Table) Columns() []ColumnDef {
	return append([]ColumnDef(nil), t.columns...)
}

// Column looks up a column by id
func (t *Table) Column(id string) (ColumnDef, bool) {
	i, ok := t.byID[id]
	if !ok {
		return ColumnDef{}, false
	}
	return t.columns[i], true
}

// SetData replaces the rows, keeping filters and pagination
func (t *Table) SetData(rows []Row) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rows = rows
	t.invalidateLocked()
	t.clampPageLocked()
}

// CoreRows returns the unfiltered rows
func (t *Table) CoreRows() []Row {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rows
}

// SetColumnFilter sets or clears (nil or inactive value) the filter of a
// column and returns to the first page.
func (t *Table) SetColumnFilter(id string, v FilterValue) error {
	col, ok := t.Column(id)
	if !ok {
		return fmt.Errorf("unknown column %q", id)
	}
	if v != nil && v.Kind() != col.Filter {
		return fmt.Errorf("column %q takes a %s filter, got %s", id, col.Filter, v.Kind())
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.setFilterLocked(id, v)
	delete(t.defaults, id)
	return nil
}

func (t *Table) setFilterLocked(id string, v FilterValue) {
	if v == nil || !v.Active() {
		delete(t.filters, id)
	} else {
		t.filters[id] = v
	}
	t.pagination.PageIndex = 0
	t.invalidateLocked()
}

// IsDefaultFilter reports whether the filter of a column is a default the
// user has not touched.
func (t *Table) IsDefaultFilter(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.defaults[id]
}

// ColumnFilter returns the active filter of a column
func (t *Table) ColumnFilter(id string) (FilterValue, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	v, ok := t.filters[id]
	return v, ok
}

// ColumnFilters returns a copy of every active column filter
func (t *Table) ColumnFilters() map[string]FilterValue {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]FilterValue, len(t.filters))
	for k, v := range t.filters {
		out[k] = v
	}
	return out
}

// ResetFilters clears every column filter and the global search
func (t *Table) ResetFilters() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.filters = make(map[string]FilterValue)
	t.defaults = make(map[string]bool)
	t.history = false
	t.global = ""
	t.pagination.PageIndex = 0
	t.invalidateLocked()
}

// SetGlobalFilter sets the free-text search across visible columns and
// returns to the first page.
func (t *Table) SetGlobalFilter(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.global = s
	t.pagination.PageIndex = 0
	t.invalidateLocked()
}

// GlobalFilter returns the global search text
func (t *Table) GlobalFilter() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.global
}

// Pagination returns the current page window
func (t *Table) Pagination() Pagination {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pagination
}

// SetPageIndex moves to page i, clamped to the available pages
func (t *Table) SetPageIndex(i int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pagination.PageIndex = i
	t.clampPageLocked()
}

// SetPageSize changes the page size, keeping the first visible row on screen
func (t *Table) SetPageSize(n int) {
	if n <= 0 {
		n = DefaultPageSize
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	first := t.pagination.PageIndex * t.pagination.PageSize
	t.pagination.PageSize = n
	t.pagination.PageIndex = first / n
	t.clampPageLocked()
}

// PageCount returns the number of pages of filtered rows (at least 1)
func (t *Table) PageCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pageCountLocked()
}

// FilteredRows returns the rows passing every column filter and the global
// search. The result is memoized until the row model changes.
func (t *Table) FilteredRows() []Row {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.filteredLocked()
}

// PageRows returns the filtered rows of the current page
func (t *Table) PageRows() []Row {
	t.mu.Lock()
	defer t.mu.Unlock()

	rows := t.filteredLocked()
	start := t.pagination.PageIndex * t.pagination.PageSize
	if start >= len(rows) {
		return []Row{}
	}
	end := min(start+t.pagination.PageSize, len(rows))
	return rows[start:end]
}

// Version identifies the current filtered row model
func (t *Table) Version() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.version
}

// ColumnValues returns the cell values of a column across the filtered rows
func (t *Table) ColumnValues(columnID string) []any {
	col, ok := t.Column(columnID)
	if !ok {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	rows := t.filteredLocked()
	values := make([]any, len(rows))
	for i, r := range rows {
		values[i] = r[col.key()]
	}
	return values
}

// Cell returns the value of a column in row
func (t *Table) Cell(r Row, columnID string) any {
	col, ok := t.Column(columnID)
	if !ok {
		return nil
	}
	return r[col.key()]
}

func (t *Table) invalidateLocked() {
	t.version++
	t.filteredValid = false
}

func (t *Table) filteredLocked() []Row {
	if t.filteredValid {
		return t.filtered
	}

	out := make([]Row, 0, len(t.rows))
	for _, r := range t.rows {
		if t.rowMatchesLocked(r, "") {
			out = append(out, r)
		}
	}
	t.filtered = out
	t.filteredValid = true
	return out
}

type facetRows struct {
	version uint64
	rows    []Row
}

// facetSource is the row model a column's widget is faceted on: every
// filter applies except the column's own, so selecting a value never hides
// the other choices.
type facetSource struct {
	t      *Table
	column string
}

func (s *facetSource) Version() uint64 { return s.t.Version() }

func (s *facetSource) ColumnValues(columnID string) []any {
	return s.t.facetValues(s.column, columnID)
}

// FacetSource returns the faceted row model of a column. The same source is
// returned for the same column so facets memoized on it are reused.
func (t *Table) FacetSource(column string) facets.Source {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.facetSources == nil {
		t.facetSources = make(map[string]*facetSource)
	}
	src, ok := t.facetSources[column]
	if !ok {
		src = &facetSource{t: t, column: column}
		t.facetSources[column] = src
	}
	return src
}

// ForgetFacets drops everything agg memoized for the table and its faceted
// row models.
func (t *Table) ForgetFacets(agg *facets.Aggregator) {
	t.mu.Lock()
	sources := make([]facets.Source, 0, len(t.facetSources)+1)
	sources = append(sources, t)
	for _, src := range t.facetSources {
		sources = append(sources, src)
	}
	t.mu.Unlock()

	for _, src := range sources {
		agg.Forget(src)
	}
}

func (t *Table) facetValues(skip, columnID string) []any {
	col, ok := t.Column(columnID)
	if !ok {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	rows := t.facetRowsLocked(skip)
	values := make([]any, len(rows))
	for i, r := range rows {
		values[i] = r[col.key()]
	}
	return values
}

func (t *Table) facetRowsLocked(skip string) []Row {
	if _, filtered := t.filters[skip]; !filtered {
		return t.filteredLocked()
	}
	if entry, ok := t.facetRows[skip]; ok && entry.version == t.version {
		return entry.rows
	}

	out := make([]Row, 0, len(t.rows))
	for _, r := range t.rows {
		if t.rowMatchesLocked(r, skip) {
			out = append(out, r)
		}
	}
	if t.facetRows == nil {
		t.facetRows = make(map[string]facetRows)
	}
	t.facetRows[skip] = facetRows{version: t.version, rows: out}
	return out
}

func (t *Table) pageCountLocked() int {
	n := len(t.filteredLocked())
	if n == 0 || t.pagination.PageSize <= 0 {
		return 1
	}
	return (n + t.pagination.PageSize - 1) / t.pagination.PageSize
}

func (t *Table) clampPageLocked() {
	if t.pagination.PageIndex < 0 {
		t.pagination.PageIndex = 0
	}
	if last := t.pageCountLocked() - 1; t.pagination.PageIndex > last {
		t.pagination.PageIndex = last
	}
}
