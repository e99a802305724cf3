// Package pages implements the dashboard's feature pages: each page fetches
// its data through the query cache, exposes it as a filterable table and
// offers the page's derived views and mutations.
package pages

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"

	"go.uber.org/zap"

	"github.com/noah-analytics/noah-server/internal/api"
	"github.com/noah-analytics/noah-server/internal/facets"
	"github.com/noah-analytics/noah-server/internal/notify"
	"github.com/noah-analytics/noah-server/internal/prefs"
	"github.com/noah-analytics/noah-server/internal/query"
	"github.com/noah-analytics/noah-server/internal/table"
)

// Page ids. Each id is also the invalidation topic of the page's data.
const (
	NHQI         = "nhqi"
	TriggerWords = "triggerwords"
	MDS          = "mds"
	Cashflow     = "cashflow"
	Access       = "access"
	Events       = "events"
	Apps         = "apps"
)

var (
	// ErrUnknownPage is returned for page ids without a definition
	ErrUnknownPage = errors.New("unknown page")
	// ErrNotFound is returned when a mutation names a missing item
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput is returned for mutations with malformed arguments
	ErrInvalidInput = errors.New("invalid input")
)

// Backend is the data service as the pages use it. *api.Client implements it.
type Backend interface {
	QualityMeasures(ctx context.Context, facility string) ([]api.QualityMeasure, error)
	TriggerReviews(ctx context.Context, window api.DateWindow) ([]api.TriggerReview, error)
	SubmitTriggerFeedback(ctx context.Context, id string, fb api.TriggerFeedback) error
	MDSSuggestions(ctx context.Context) ([]api.MDSSuggestion, error)
	SubmitMDSReview(ctx context.Context, id string, review api.MDSReview) error
	CashflowForecast(ctx context.Context, facility string) ([]api.CashflowPoint, error)
	AccessList(ctx context.Context) ([]api.AccessEntry, error)
	UpdateAccess(ctx context.Context, email string, update api.AccessUpdate) (*api.AccessEntry, error)
	UploadPhoto(ctx context.Context, filename string, content io.Reader) (*api.User, error)
	Impersonate(ctx context.Context, email string) (*api.User, error)
	StopImpersonating(ctx context.Context) error
	Events(ctx context.Context, window api.DateWindow) ([]api.Event, error)
	AuthorizedApps(ctx context.Context) ([]api.App, error)
	StarApp(ctx context.Context, id string) error
	UnstarApp(ctx context.Context, id string) error
}

type pageDef struct {
	title string
	fetch query.Fetcher
	rows  func(data any) []table.Row
}

// define binds a typed list fetch and row mapper into a pageDef
func define[T any](title string, fetch func(context.Context, Backend) ([]T, error), row func(T) table.Row, b Backend) pageDef {
	return pageDef{
		title: title,
		fetch: func(ctx context.Context) (any, error) {
			return fetch(ctx, b)
		},
		rows: func(data any) []table.Row {
			items, _ := data.([]T)
			out := make([]table.Row, len(items))
			for i, it := range items {
				out[i] = row(it)
			}
			return out
		},
	}
}

// Config wires a Service
type Config struct {
	Backend  Backend
	Cache    *query.Cache
	Notifier notify.Notifier
	// Data defaults to the embedded page definitions
	Data DataProvider
	// Prefs, when set, persists column visibility per page
	Prefs   prefs.Store
	Variant table.Variant
	Logger  *zap.Logger
}

// Service serves every feature page
type Service struct {
	backend  Backend
	cache    *query.Cache
	notifier notify.Notifier
	prefs    prefs.Store
	variant  table.Variant
	logger   *zap.Logger

	agg     *facets.Aggregator
	columns map[string][]table.ColumnDef
	pages   map[string]pageDef
}

// NewService loads the page definitions and creates the service
func NewService(cfg Config) (*Service, error) {
	if cfg.Backend == nil || cfg.Cache == nil {
		return nil, errors.New("pages: backend and cache are required")
	}
	if cfg.Data == nil {
		cfg.Data = NewEmbeddedDataProvider()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.NewCenter()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Variant == "" {
		cfg.Variant = table.VariantStandard
	}

	columns, err := LoadColumnSets(cfg.Data)
	if err != nil {
		return nil, err
	}

	b := cfg.Backend
	defs := map[string]pageDef{
		NHQI:         define("NHQI Quality Measures", fetchMeasures, measureRow, b),
		TriggerWords: define("Trigger Words", fetchTriggerReviews, triggerRow, b),
		MDS:          define("MDS / PDPM Suggestions", fetchMDS, mdsRow, b),
		Cashflow:     define("Cashflow Forecast", fetchCashflow, cashflowRow, b),
		Access:       define("Account Access", fetchAccess, accessRow, b),
		Events:       define("Event & Incident Tracker", fetchEvents, eventRow, b),
		Apps:         define("Applications", fetchApps, appRow, b),
	}
	for id := range defs {
		if _, ok := columns[id]; !ok {
			return nil, fmt.Errorf("page %q has no column definitions", id)
		}
	}

	if cfg.Prefs != nil {
		ids := make([]string, 0, len(defs))
		for id := range defs {
			ids = append(ids, id)
		}
		if _, err := table.MigrateVisibility(cfg.Prefs, ids); err != nil {
			cfg.Logger.Warn("failed to migrate column visibility", zap.Error(err))
		}
	}

	return &Service{
		backend:  b,
		cache:    cfg.Cache,
		notifier: cfg.Notifier,
		prefs:    cfg.Prefs,
		variant:  cfg.Variant,
		logger:   cfg.Logger,
		agg:      facets.NewAggregator(),
		columns:  columns,
		pages:    defs,
	}, nil
}

// DataKey is the query key of a page's data, nested under the page topic
func DataKey(page string) string {
	return page + "/data"
}

// Pages lists the page ids in order
func (s *Service) Pages() []string {
	ids := make([]string, 0, len(s.pages))
	for id := range s.pages {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Title returns the display title of a page
func (s *Service) Title(page string) (string, error) {
	def, ok := s.pages[page]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPage, page)
	}
	return def.title, nil
}

// Columns returns the column definitions of a page
func (s *Service) Columns(page string) ([]table.ColumnDef, error) {
	cols, ok := s.columns[page]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPage, page)
	}
	return cols, nil
}

// Aggregator is the facet aggregator shared by the page tables
func (s *Service) Aggregator() *facets.Aggregator {
	return s.agg
}

// Notifier receives the pages' toasts
func (s *Service) Notifier() notify.Notifier {
	return s.notifier
}

// Rows fetches a page's data through the cache and returns it as table rows
func (s *Service) Rows(ctx context.Context, page string) ([]table.Row, error) {
	def, ok := s.pages[page]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPage, page)
	}
	data, err := s.cache.Fetch(ctx, DataKey(page), def.fetch)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", page, err)
	}
	return def.rows(data), nil
}

// Table builds the page table with the filters of q applied. Date columns
// without a filter in q get the default window, widened to the whole data
// range when q carries the history flag.
func (s *Service) Table(ctx context.Context, page string, q url.Values) (*table.Table, error) {
	cols, err := s.Columns(page)
	if err != nil {
		return nil, err
	}
	rows, err := s.Rows(ctx, page)
	if err != nil {
		return nil, err
	}

	t := table.New(cols, rows)
	if s.prefs != nil {
		if err := t.BindVisibility(s.prefs, page); err != nil {
			s.logger.Warn("failed to restore column visibility", zap.String("page", page), zap.Error(err))
		}
	}

	filterErr := t.ApplyQuery(q)
	t.ApplyDefaultDateFilters(s.agg, s.variant, q.Has(table.HistoryParam))
	if filterErr != nil {
		return t, fmt.Errorf("%w: %w", ErrInvalidFilter, filterErr)
	}
	return t, nil
}

// Release drops the facets memoized for a table returned by Table
func (s *Service) Release(t *table.Table) {
	t.ForgetFacets(s.agg)
}

// ErrInvalidFilter wraps malformed filter parameters. Table still returns
// the table with every valid filter applied.
var ErrInvalidFilter = errors.New("invalid filter")

// View is one rendered page of a table
type View struct {
	Page       string            `json:"page"`
	Title      string            `json:"title"`
	Columns    []table.ColumnDef `json:"columns"`
	Rows       []table.Row       `json:"rows"`
	Total      int               `json:"total"`
	Pagination table.Pagination  `json:"pagination"`
	PageCount  int               `json:"page_count"`
	Widgets    []table.Widget    `json:"widgets"`
	Query      string            `json:"query"`
}

// View builds the table of page for q and renders the page window p
func (s *Service) View(ctx context.Context, page string, q url.Values, p table.Pagination) (*View, error) {
	t, err := s.Table(ctx, page, q)
	if err != nil && !errors.Is(err, ErrInvalidFilter) {
		return nil, err
	}
	defer s.Release(t)

	if p.PageSize > 0 {
		t.SetPageSize(p.PageSize)
	}
	t.SetPageIndex(p.PageIndex)
	return s.Render(page, t), err
}

// Render snapshots the current page window of t. Query mirrors only the
// filters the user chose.
func (s *Service) Render(page string, t *table.Table) *View {
	title, _ := s.Title(page)
	return &View{
		Page:       page,
		Title:      title,
		Columns:    t.VisibleColumns(),
		Rows:       t.PageRows(),
		Total:      len(t.FilteredRows()),
		Pagination: t.Pagination(),
		PageCount:  t.PageCount(),
		Widgets:    t.Widgets(s.agg),
		Query:      t.QueryString(),
	}
}

// data returns the cached typed data of a page
func data[T any](ctx context.Context, s *Service, page string) ([]T, error) {
	def, ok := s.pages[page]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPage, page)
	}
	v, err := s.cache.Fetch(ctx, DataKey(page), def.fetch)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", page, err)
	}
	items, ok := v.([]T)
	if !ok {
		return nil, fmt.Errorf("%s data has type %T", page, v)
	}
	return items, nil
}

// replace returns a copy of items with every element matching pick passed
// through change. Cached slices are never modified in place.
func replace[T any](items []T, pick func(T) bool, change func(T) T) []T {
	out := make([]T, len(items))
	for i, it := range items {
		if pick(it) {
			it = change(it)
		}
		out[i] = it
	}
	return out
}
