package tools

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/blevesearch/bleve/v2"
	"go.uber.org/zap"

	"github.com/noah-analytics/noah-server/internal/api"
	"github.com/noah-analytics/noah-server/internal/notes"
	"github.com/noah-analytics/noah-server/internal/pages"
	"github.com/noah-analytics/noah-server/internal/query"
)

// eventsBackend serves only the events page; other calls panic
type eventsBackend struct {
	pages.Backend
	events []api.Event
}

func (b *eventsBackend) Events(ctx context.Context, window api.DateWindow) ([]api.Event, error) {
	return b.events, nil
}

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func newTableTools(t *testing.T) *TableTools {
	t.Helper()

	cache, err := query.New(16, query.WithRetryPolicy(query.RetryPolicy{}))
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	t.Cleanup(cache.Close)

	svc, err := pages.NewService(pages.Config{
		Backend: &eventsBackend{events: []api.Event{
			{ID: "e1", Facility: "A", Type: "fall", Severity: "high", OccurredAt: day("2024-03-08")},
			{ID: "e2", Facility: "A", Type: "fall", Severity: "low", OccurredAt: day("2024-03-09")},
			{ID: "e3", Facility: "B", Type: "infection", Severity: "high", OccurredAt: day("2024-03-09")},
		}},
		Cache: cache,
	})
	if err != nil {
		t.Fatalf("Failed to create page service: %v", err)
	}
	return NewTableTools(svc)
}

func TestHighlightText(t *testing.T) {
	_, out, err := HighlightText(context.Background(), nil, HighlightTextInput{
		Text:  "Resident refused meds and refuses lunch",
		Terms: []string{"refuse", " "},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if out.Matches != 2 {
		t.Errorf("Expected 2 matches, got %d", out.Matches)
	}

	var joined string
	for _, s := range out.Segments {
		joined += s.Text
	}
	if joined != "Resident refused meds and refuses lunch" {
		t.Errorf("Segments do not rebuild the text: %q", joined)
	}
}

func TestMatchStem(t *testing.T) {
	tests := []struct {
		value, filter string
		want          bool
	}{
		{"Resident fell twice", "", true},
		{"Chest pains reported", "chest pain", true},
		{"Pain in chest", "chest pain", false},
		{"Refusing medication", "refused", true},
		{"Refusing medication", "fall", false},
	}

	for _, tt := range tests {
		_, out, err := MatchStem(context.Background(), nil, MatchStemInput{Value: tt.value, Filter: tt.filter})
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if out.Match != tt.want {
			t.Errorf("MatchStem(%q, %q) = %v, want %v", tt.value, tt.filter, out.Match, tt.want)
		}
	}
}

func TestQueryTable(t *testing.T) {
	tt := newTableTools(t)

	_, out, err := tt.QueryTable(context.Background(), nil, QueryTableInput{
		Page:     pages.Events,
		Filters:  map[string]string{"facility": "[A]"},
		PageSize: 1,
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if out.Total != 2 {
		t.Errorf("Expected 2 filtered rows, got %d", out.Total)
	}
	if len(out.Rows) != 1 {
		t.Errorf("Expected 1 row on the page, got %d", len(out.Rows))
	}
	if out.Warning != "" {
		t.Errorf("Unexpected warning: %s", out.Warning)
	}

	_, out, err = tt.QueryTable(context.Background(), nil, QueryTableInput{
		Page:    pages.Events,
		Filters: map[string]string{"occurred_at": "last week"},
	})
	if err != nil {
		t.Fatalf("Malformed filter should not fail the query: %v", err)
	}
	if out.Warning == "" {
		t.Error("Expected a warning for the malformed filter")
	}

	if _, _, err := tt.QueryTable(context.Background(), nil, QueryTableInput{Page: "payroll"}); err == nil {
		t.Error("Expected error for unknown page")
	}
}

func TestFacetValues(t *testing.T) {
	tt := newTableTools(t)

	_, out, err := tt.FacetValues(context.Background(), nil, FacetValuesInput{Page: pages.Events, Column: "type"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	want := []FacetValue{{Value: "fall", Count: 2}, {Value: "infection", Count: 1}}
	if len(out.Values) != len(want) {
		t.Fatalf("Expected %d values, got %v", len(want), out.Values)
	}
	for i := range want {
		if out.Values[i] != want[i] {
			t.Errorf("Value %d: expected %v, got %v", i, want[i], out.Values[i])
		}
	}

	_, out, err = tt.FacetValues(context.Background(), nil, FacetValuesInput{Page: pages.Events, Column: "occurred_at"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if out.Range == nil {
		t.Fatal("Expected a range for the date column")
	}
	if !out.Range.Min.(time.Time).Equal(day("2024-03-08")) || !out.Range.Max.(time.Time).Equal(day("2024-03-09")) {
		t.Errorf("Unexpected range %v", out.Range)
	}

	_, out, err = tt.FacetValues(context.Background(), nil, FacetValuesInput{
		Page:    pages.Events,
		Column:  "type",
		Filters: map[string]string{"type": "[fall]", "facility": "[A]"},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(out.Values) != 1 || out.Values[0] != (FacetValue{Value: "fall", Count: 2}) {
		t.Errorf("Expected only the facility filter to narrow the types, got %v", out.Values)
	}

	_, out, err = tt.FacetValues(context.Background(), nil, FacetValuesInput{
		Page:    pages.Events,
		Column:  "type",
		Filters: map[string]string{"type": "[fall]"},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(out.Values) != 2 {
		t.Errorf("Expected the type filter to leave both types on offer, got %v", out.Values)
	}

	if _, _, err := tt.FacetValues(context.Background(), nil, FacetValuesInput{Page: pages.Events, Column: "nope"}); err == nil {
		t.Error("Expected error for unknown column")
	}
}

func TestSearchNotes(t *testing.T) {
	index, err := bleve.NewMemOnly(notes.NewMapping())
	if err != nil {
		t.Fatalf("Failed to create index: %v", err)
	}
	_, err = notes.IndexPassages(index, []notes.Note{
		{ID: "n1", Facility: "A", NoteType: "nursing", NoteDate: day("2024-03-01"), Text: "Resident refused dinner."},
		{ID: "n2", Facility: "B", NoteType: "nursing", NoteDate: day("2024-03-05"), Text: "Resident was refusing all care."},
		{ID: "n3", Facility: "A", NoteType: "therapy", NoteDate: day("2024-03-07"), Text: "Walked 50 feet with walker."},
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to index notes: %v", err)
	}

	searcher := notes.NewSearcher(t.TempDir(), nil)
	searcher.Swap(notes.WrapIndex(index))
	defer searcher.Close()
	nt := NewNoteTools(searcher)

	_, out, err := nt.SearchNotes(context.Background(), nil, SearchNotesInput{Terms: []string{"refuse"}})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if out.Total != 2 {
		t.Errorf("Expected 2 hits, got %d", out.Total)
	}

	_, out, err = nt.SearchNotes(context.Background(), nil, SearchNotesInput{Terms: []string{"refuse"}, To: "2024-03-01"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if out.Total != 1 || out.Hits[0].NoteID != "n1" {
		t.Errorf("Expected only n1 up to 2024-03-01, got %+v", out.Hits)
	}

	if _, _, err := nt.SearchNotes(context.Background(), nil, SearchNotesInput{Terms: []string{"refuse"}, From: "March"}); err == nil {
		t.Error("Expected error for malformed date")
	}
	if _, _, err := nt.SearchNotes(context.Background(), nil, SearchNotesInput{}); err == nil {
		t.Error("Expected error for missing terms")
	}
}

func TestRefreshNotesIndex(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "index")
	searcher := notes.NewSearcher(dir, nil)
	defer searcher.Close()
	nt := NewNoteTools(searcher)

	if _, _, err := nt.RefreshNotesIndex(context.Background(), nil, RefreshNotesIndexInput{}); err == nil {
		t.Error("Expected error before any index was built")
	}

	err := notes.Build(dir, []notes.Note{
		{ID: "n1", Facility: "A", NoteType: "nursing", NoteDate: day("2024-03-01"), Text: "Resident refused dinner."},
		{ID: "n2", Facility: "B", NoteType: "nursing", NoteDate: day("2024-03-05"), Text: "Resident was refusing all care."},
	}, nil)
	if err != nil {
		t.Fatalf("Failed to build index: %v", err)
	}

	_, out, err := nt.RefreshNotesIndex(context.Background(), nil, RefreshNotesIndexInput{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if out.Passages != 2 {
		t.Errorf("Expected 2 passages, got %d", out.Passages)
	}

	_, found, err := nt.SearchNotes(context.Background(), nil, SearchNotesInput{Terms: []string{"refuse"}})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if found.Total != 2 {
		t.Errorf("Expected 2 hits after refresh, got %d", found.Total)
	}
}
