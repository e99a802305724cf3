package pages

import (
	"context"
	"errors"
	"io"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-analytics/noah-server/internal/api"
	"github.com/noah-analytics/noah-server/internal/notify"
	"github.com/noah-analytics/noah-server/internal/prefs"
	"github.com/noah-analytics/noah-server/internal/query"
	"github.com/noah-analytics/noah-server/internal/table"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr[T any](v T) *T { return &v }

type fakeBackend struct {
	mu       sync.Mutex
	measures []api.QualityMeasure
	reviews  []api.TriggerReview
	mds      []api.MDSSuggestion
	cashflow []api.CashflowPoint
	access   []api.AccessEntry
	events   []api.Event
	apps     []api.App

	commitErr  error
	fetchCalls map[string]*atomic.Int32
	feedback   map[string]api.TriggerFeedback
	starred    []string
}

func newFakeBackend() *fakeBackend {
	b := &fakeBackend{
		fetchCalls: make(map[string]*atomic.Int32),
		feedback:   make(map[string]api.TriggerFeedback),
		measures: []api.QualityMeasure{
			{Facility: "A", State: "OH", Measure: "Falls with major injury", MeasureType: "long_stay", Quarter: "2024Q1", Score: 2.1, NationalAverage: 3.4, LowerIsBetter: true},
			{Facility: "A", State: "OH", Measure: "Improved function", MeasureType: "short_stay", Quarter: "2024Q1", Score: 60, NationalAverage: 70},
			{Facility: "B", State: "PA", Measure: "Falls with major injury", MeasureType: "long_stay", Quarter: "2024Q1", Score: 3.4, NationalAverage: 3.4, LowerIsBetter: true},
		},
		reviews: []api.TriggerReview{
			{ID: "r1", Facility: "A", Patient: "Ann", NoteDate: day("2024-03-01"), NoteText: "Resident fell in hallway.", TriggerWords: []string{"fell"}},
			{ID: "r2", Facility: "A", Patient: "Bob", NoteDate: day("2024-03-05"), NoteText: "Complains of chest pain.", TriggerWords: []string{"chest pain"}},
			{ID: "r3", Facility: "B", Patient: "Cy", NoteDate: day("2024-03-09"), NoteText: "Refused meds, then fell.", TriggerWords: []string{"refused", "fell"}},
		},
		mds: []api.MDSSuggestion{
			{ID: "m1", Facility: "A", Section: "GG", PDPMImpact: 40, Status: StatusOpen},
			{ID: "m2", Facility: "A", Section: "I", PDPMImpact: 25.5, Status: StatusAccepted},
			{ID: "m3", Facility: "B", Section: "K", PDPMImpact: 10, Status: StatusRejected},
		},
		cashflow: []api.CashflowPoint{
			{Facility: "A", Date: day("2024-03-04"), Actual: ptr(100.0), Predicted: 90},
			{Facility: "A", Date: day("2024-03-10"), Actual: ptr(50.0), Predicted: 60},
			{Facility: "A", Date: day("2024-03-11"), Predicted: 80},
			{Facility: "B", Date: day("2024-03-11"), Predicted: 1000},
		},
		access: []api.AccessEntry{
			{Email: "nurse@example.com", Name: "Nurse", Role: "viewer", Active: true},
			{Email: "admin@example.com", Name: "Admin", Role: "admin", Active: true, LastLogin: day("2024-03-01")},
		},
		events: []api.Event{
			{ID: "e1", Facility: "A", Type: "fall", Severity: "high", OccurredAt: day("2024-03-08")},
			{ID: "e2", Facility: "A", Type: "fall", Severity: "low", OccurredAt: day("2024-03-09")},
			{ID: "e3", Facility: "B", Type: "infection", Severity: "high", OccurredAt: day("2024-03-09")},
		},
		apps: []api.App{
			{ID: "nhqi", Name: "NHQI", Path: "/nhqi"},
			{ID: "mds", Name: "MDS", Path: "/mds", Starred: true},
		},
	}
	for _, page := range []string{NHQI, TriggerWords, MDS, Cashflow, Access, Events, Apps} {
		b.fetchCalls[page] = &atomic.Int32{}
	}
	return b
}

func (b *fakeBackend) calls(page string) int { return int(b.fetchCalls[page].Load()) }

func (b *fakeBackend) QualityMeasures(ctx context.Context, facility string) ([]api.QualityMeasure, error) {
	b.fetchCalls[NHQI].Add(1)
	return b.measures, nil
}

func (b *fakeBackend) TriggerReviews(ctx context.Context, window api.DateWindow) ([]api.TriggerReview, error) {
	b.fetchCalls[TriggerWords].Add(1)
	return b.reviews, nil
}

func (b *fakeBackend) SubmitTriggerFeedback(ctx context.Context, id string, fb api.TriggerFeedback) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.commitErr != nil {
		return b.commitErr
	}
	b.feedback[id] = fb
	return nil
}

func (b *fakeBackend) MDSSuggestions(ctx context.Context) ([]api.MDSSuggestion, error) {
	b.fetchCalls[MDS].Add(1)
	return b.mds, nil
}

func (b *fakeBackend) SubmitMDSReview(ctx context.Context, id string, review api.MDSReview) error {
	return b.commitErr
}

func (b *fakeBackend) CashflowForecast(ctx context.Context, facility string) ([]api.CashflowPoint, error) {
	b.fetchCalls[Cashflow].Add(1)
	return b.cashflow, nil
}

func (b *fakeBackend) AccessList(ctx context.Context) ([]api.AccessEntry, error) {
	b.fetchCalls[Access].Add(1)
	return b.access, nil
}

func (b *fakeBackend) UpdateAccess(ctx context.Context, email string, update api.AccessUpdate) (*api.AccessEntry, error) {
	if b.commitErr != nil {
		return nil, b.commitErr
	}
	return &api.AccessEntry{Email: email}, nil
}

func (b *fakeBackend) UploadPhoto(ctx context.Context, filename string, content io.Reader) (*api.User, error) {
	if b.commitErr != nil {
		return nil, b.commitErr
	}
	return &api.User{Email: "nurse@example.com", PhotoURL: "/photos/" + filename}, nil
}

func (b *fakeBackend) Impersonate(ctx context.Context, email string) (*api.User, error) {
	return &api.User{Email: email, ImpersonatedBy: "admin@example.com"}, nil
}

func (b *fakeBackend) StopImpersonating(ctx context.Context) error { return nil }

func (b *fakeBackend) Events(ctx context.Context, window api.DateWindow) ([]api.Event, error) {
	b.fetchCalls[Events].Add(1)
	return b.events, nil
}

func (b *fakeBackend) AuthorizedApps(ctx context.Context) ([]api.App, error) {
	b.fetchCalls[Apps].Add(1)
	return b.apps, nil
}

func (b *fakeBackend) StarApp(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.commitErr != nil {
		return b.commitErr
	}
	b.starred = append(b.starred, id)
	return nil
}

func (b *fakeBackend) UnstarApp(ctx context.Context, id string) error { return b.commitErr }

func newService(t *testing.T, b *fakeBackend) (*Service, *notify.Center) {
	t.Helper()
	cache, err := query.New(64, query.WithRetryPolicy(query.RetryPolicy{}))
	require.NoError(t, err)
	t.Cleanup(cache.Close)

	toasts := notify.NewCenter()
	s, err := NewService(Config{Backend: b, Cache: cache, Notifier: toasts, Prefs: prefs.NewMemoryStore()})
	require.NoError(t, err)
	return s, toasts
}

func TestEmbeddedColumnSets(t *testing.T) {
	sets, err := LoadColumnSets(NewEmbeddedDataProvider())
	require.NoError(t, err)

	for _, page := range []string{NHQI, TriggerWords, MDS, Cashflow, Access, Events, Apps} {
		assert.NotEmpty(t, sets[page], "page %s", page)
	}
}

func TestNewService_MissingColumns(t *testing.T) {
	cache, err := query.New(8)
	require.NoError(t, err)
	defer cache.Close()

	dp := NewMockDataProvider()
	dp.AddFile("data/columns/nhqi.json", []byte(`[{"id":"facility","header":"Facility"}]`))

	_, err = NewService(Config{Backend: newFakeBackend(), Cache: cache, Data: dp})
	assert.ErrorContains(t, err, "has no column definitions")
}

func TestNewService_InvalidColumns(t *testing.T) {
	cache, err := query.New(8)
	require.NoError(t, err)
	defer cache.Close()

	dp := NewMockDataProvider()
	dp.AddFile("data/columns/nhqi.json", []byte(`[{"id":"facility"}]`))

	_, err = NewService(Config{Backend: newFakeBackend(), Cache: cache, Data: dp})
	var invalid *table.InvalidColumnsError
	assert.ErrorAs(t, err, &invalid)
}

func TestView_DefaultDateWindow(t *testing.T) {
	s, _ := newService(t, newFakeBackend())
	ctx := context.Background()

	v, err := s.View(ctx, TriggerWords, url.Values{}, table.Pagination{PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, v.Total, "notes older than a week before the latest are hidden")
	assert.Empty(t, v.Query, "the default window is not mirrored")

	v, err = s.View(ctx, TriggerWords, url.Values{table.HistoryParam: {"1"}}, table.Pagination{PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, v.Total)
	assert.Equal(t, "history=1", v.Query)

	v, err = s.View(ctx, TriggerWords, url.Values{"facility": {"[A]"}, table.HistoryParam: {"1"}}, table.Pagination{PageSize: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, v.Total)
	assert.Len(t, v.Rows, 1)
	assert.Equal(t, 2, v.PageCount)
	assert.Equal(t, "Trigger Words", v.Title)
	assert.Contains(t, v.Query, "facility=%5BA%5D")
}

func TestView_InvalidFilterStillRenders(t *testing.T) {
	s, _ := newService(t, newFakeBackend())

	v, err := s.View(context.Background(), Events, url.Values{"occurred_at": {"not-a-date"}}, table.Pagination{})
	assert.ErrorIs(t, err, ErrInvalidFilter)
	require.NotNil(t, v)
	assert.NotEmpty(t, v.Rows)
}

func TestView_UnknownPage(t *testing.T) {
	s, _ := newService(t, newFakeBackend())
	_, err := s.View(context.Background(), "payroll", nil, table.Pagination{})
	assert.ErrorIs(t, err, ErrUnknownPage)
}

func TestRows_SharedThroughCache(t *testing.T) {
	b := newFakeBackend()
	s, _ := newService(t, b)

	for range 3 {
		_, err := s.Rows(context.Background(), NHQI)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, b.calls(NHQI))
}

func TestCompareMeasure(t *testing.T) {
	tests := []struct {
		name string
		m    api.QualityMeasure
		want string
	}{
		{"lower is better and below", api.QualityMeasure{Score: 1, NationalAverage: 2, LowerIsBetter: true}, Better},
		{"lower is better and above", api.QualityMeasure{Score: 3, NationalAverage: 2, LowerIsBetter: true}, Worse},
		{"higher is better and above", api.QualityMeasure{Score: 80, NationalAverage: 70}, Better},
		{"higher is better and below", api.QualityMeasure{Score: 60, NationalAverage: 70}, Worse},
		{"equal", api.QualityMeasure{Score: 3.4, NationalAverage: 3.4}, Same},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CompareMeasure(tt.m))
		})
	}
}

func TestSummarizeMeasures(t *testing.T) {
	s, _ := newService(t, newFakeBackend())

	sum, err := s.SummarizeMeasures(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, MeasureSummary{Facility: "A", Better: 1, Worse: 1}, sum)

	sum, err = s.SummarizeMeasures(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Same)
}

func TestSubmitTriggerFeedback(t *testing.T) {
	b := newFakeBackend()
	s, _ := newService(t, b)
	ctx := context.Background()

	require.NoError(t, s.SubmitTriggerFeedback(ctx, "r2", api.TriggerFeedback{Comment: "true positive", Thumb: 1}))
	assert.Equal(t, api.TriggerFeedback{Comment: "true positive", Thumb: 1}, b.feedback["r2"])

	items, err := data[api.TriggerReview](ctx, s, TriggerWords)
	require.NoError(t, err)
	assert.Equal(t, 1, items[1].Thumb)
	assert.Equal(t, "true positive", items[1].Comment)
	assert.Zero(t, b.reviews[1].Thumb, "backend data is never modified in place")

	assert.Error(t, s.SubmitTriggerFeedback(ctx, "r2", api.TriggerFeedback{Thumb: 2}))
	assert.Error(t, s.SubmitTriggerFeedback(ctx, "missing", api.TriggerFeedback{Thumb: 1}))
}

func TestHighlightReview(t *testing.T) {
	s, _ := newService(t, newFakeBackend())

	segs, err := s.HighlightReview(context.Background(), "r3")
	require.NoError(t, err)

	var matched []string
	for _, seg := range segs {
		if seg.IsMatch {
			matched = append(matched, seg.Text)
		}
	}
	assert.Equal(t, []string{"Refused", "fell"}, matched)
}

func TestReviewMDSSuggestion_RollsBack(t *testing.T) {
	b := newFakeBackend()
	b.commitErr = errors.New("503 service unavailable")
	s, toasts := newService(t, b)
	ctx := context.Background()

	err := s.ReviewMDSSuggestion(ctx, "m1", api.MDSReview{Decision: StatusAccepted})
	require.Error(t, err)

	items, err := data[api.MDSSuggestion](ctx, s, MDS)
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, items[0].Status)

	active := toasts.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "Failed to review suggestion: 503 service unavailable", active[0].Message)

	assert.Error(t, s.ReviewMDSSuggestion(ctx, "m1", api.MDSReview{Decision: "maybe"}))
}

func TestPDPMTotals(t *testing.T) {
	s, _ := newService(t, newFakeBackend())
	ctx := context.Background()

	require.NoError(t, s.ReviewMDSSuggestion(ctx, "m1", api.MDSReview{Decision: StatusAccepted}))

	sum, err := s.PDPMTotals(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, PDPMSummary{Accepted: 65.5}, sum)

	sum, err = s.PDPMTotals(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, PDPMSummary{Accepted: 65.5, Rejected: 10}, sum)
}

func TestWeeklyTotals(t *testing.T) {
	s, _ := newService(t, newFakeBackend())

	weeks, err := s.WeeklyTotals(context.Background(), "A")
	require.NoError(t, err)
	require.Len(t, weeks, 2)

	assert.Equal(t, day("2024-03-04"), weeks[0].WeekStart)
	assert.Equal(t, 150.0, weeks[0].Actual)
	assert.Equal(t, 2, weeks[0].ActualDays)
	assert.Equal(t, 150.0, weeks[0].Predicted)

	assert.Equal(t, day("2024-03-11"), weeks[1].WeekStart)
	assert.Zero(t, weeks[1].ActualDays)
	assert.Equal(t, 80.0, weeks[1].Predicted)
}

func TestUpdateAccess_RefetchesAfterCommit(t *testing.T) {
	b := newFakeBackend()
	s, _ := newService(t, b)
	ctx := context.Background()

	err := s.UpdateAccess(ctx, "nurse@example.com", api.AccessUpdate{Role: "editor", Active: ptr(false)})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return b.calls(Access) == 2 }, time.Second, time.Millisecond)

	assert.Error(t, s.UpdateAccess(ctx, "nobody@example.com", api.AccessUpdate{Role: "editor"}))
}

func TestApplyAccessUpdate(t *testing.T) {
	e := api.AccessEntry{Email: "a@example.com", Role: "viewer", Apps: []string{"nhqi"}, Active: true}

	got := applyAccessUpdate(e, api.AccessUpdate{Apps: []string{"nhqi", "mds"}, Active: ptr(false)})
	assert.Equal(t, "viewer", got.Role)
	assert.Equal(t, []string{"nhqi", "mds"}, got.Apps)
	assert.False(t, got.Active)
	assert.Equal(t, []string{"nhqi"}, e.Apps)
}

func TestUploadPhoto(t *testing.T) {
	b := newFakeBackend()
	s, toasts := newService(t, b)

	u, err := s.UploadPhoto(context.Background(), "me.png", nil)
	require.NoError(t, err)
	assert.Equal(t, "/photos/me.png", u.PhotoURL)
	require.Len(t, toasts.Active(), 1)
	assert.Equal(t, notify.Success, toasts.Active()[0].Severity)

	b.commitErr = errors.New("file too large")
	_, err = s.UploadPhoto(context.Background(), "me.png", nil)
	assert.ErrorContains(t, err, "file too large")
}

func TestImpersonate_RefetchesEveryPage(t *testing.T) {
	b := newFakeBackend()
	s, toasts := newService(t, b)
	ctx := context.Background()

	_, err := s.Rows(ctx, Apps)
	require.NoError(t, err)
	_, err = s.Rows(ctx, Events)
	require.NoError(t, err)

	u, err := s.Impersonate(ctx, "nurse@example.com")
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", u.ImpersonatedBy)
	assert.Equal(t, "Now acting as nurse@example.com", toasts.Active()[0].Message)

	require.Eventually(t, func() bool {
		return b.calls(Apps) == 2 && b.calls(Events) == 2
	}, time.Second, time.Millisecond)

	_, err = s.Impersonate(ctx, "")
	assert.Error(t, err)
}

func TestEventCounts(t *testing.T) {
	s, _ := newService(t, newFakeBackend())

	counts, err := s.EventCounts(context.Background(), url.Values{table.HistoryParam: {"1"}})
	require.NoError(t, err)
	assert.Equal(t, []EventCount{{Type: "fall", Count: 2}, {Type: "infection", Count: 1}}, counts)

	counts, err = s.EventCounts(context.Background(), url.Values{"severity": {"[high]"}, table.HistoryParam: {"1"}})
	require.NoError(t, err)
	assert.Equal(t, []EventCount{{Type: "fall", Count: 1}, {Type: "infection", Count: 1}}, counts)
}

func TestSetStarred(t *testing.T) {
	b := newFakeBackend()
	s, toasts := newService(t, b)
	ctx := context.Background()

	require.NoError(t, s.SetStarred(ctx, "nhqi", true))
	assert.Equal(t, []string{"nhqi"}, b.starred)
	starred, err := s.StarredApps(ctx)
	require.NoError(t, err)
	assert.Len(t, starred, 2)

	b.commitErr = errors.New("boom")
	require.Error(t, s.SetStarred(ctx, "mds", false))
	starred, err = s.StarredApps(ctx)
	require.NoError(t, err)
	assert.Len(t, starred, 2, "failed unstar rolls back")
	assert.Equal(t, "Failed to unstar application: boom", toasts.Active()[0].Message)

	assert.Error(t, s.SetStarred(ctx, "payroll", true))
}

func TestTable_RestoresVisibility(t *testing.T) {
	s, _ := newService(t, newFakeBackend())
	ctx := context.Background()

	tbl, err := s.Table(ctx, NHQI, nil)
	require.NoError(t, err)
	require.NoError(t, tbl.SetColumnVisibility("state", false))
	s.Release(tbl)

	tbl, err = s.Table(ctx, NHQI, nil)
	require.NoError(t, err)
	defer s.Release(tbl)
	assert.False(t, tbl.IsVisible("state"))
	assert.False(t, tbl.IsVisible("state_average"))
}

func TestNewService_MigratesLegacyVisibility(t *testing.T) {
	cache, err := query.New(8)
	require.NoError(t, err)
	defer cache.Close()

	store := prefs.NewMemoryStore()
	require.NoError(t, prefs.PutJSON(store, "nhqiHiddenColumns", []string{"facility"}))

	s, err := NewService(Config{Backend: newFakeBackend(), Cache: cache, Prefs: store})
	require.NoError(t, err)

	tbl, err := s.Table(context.Background(), NHQI, nil)
	require.NoError(t, err)
	defer s.Release(tbl)
	assert.False(t, tbl.IsVisible("facility"))
}
