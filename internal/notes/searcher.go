package notes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"
	"go.uber.org/zap"

	"github.com/noah-analytics/noah-server/internal/textmatch"
)

const (
	DefaultLimit = 10
	MaxLimit     = 50
)

var (
	// ErrNoTerms is returned for a search without any non-blank term
	ErrNoTerms = errors.New("no search terms")
	// ErrNotLoaded is returned by searches before an index is loaded
	ErrNotLoaded = errors.New("notes index not loaded")
)

// SearchOptions narrow a search
type SearchOptions struct {
	Facility string
	NoteType string
	// From and To bound the note date; zero bounds are open
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

// Hit is one matching passage with its text split on the search terms
type Hit struct {
	Passage
	Score    float64             `json:"score"`
	Segments []textmatch.Segment `json:"segments"`
}

// Results of one search
type Results struct {
	Terms []string `json:"terms"`
	Total uint64   `json:"total"`
	Hits  []Hit    `json:"hits"`
}

// Searcher serves searches from the current index. Rebuilds swap in a new
// index without blocking searches; the old index is closed once the
// searches using it have finished.
type Searcher struct {
	dir    string
	logger *zap.Logger

	current atomic.Pointer[Index]
	// rebuildMu serializes rebuilds; searches never take it
	rebuildMu sync.Mutex
	// inflight tracks running searches
	inflight sync.WaitGroup
	// closers tracks background closes of swapped-out indexes
	closers sync.WaitGroup
}

// NewSearcher creates a searcher for the index at dir. Call Load or
// Rebuild before searching.
func NewSearcher(dir string, logger *zap.Logger) *Searcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Searcher{dir: dir, logger: logger}
}

// Load opens the index on disk
func (s *Searcher) Load() error {
	idx, err := Open(s.dir)
	if err != nil {
		return err
	}
	count, _ := idx.DocCount()
	s.logger.Info("notes index loaded", zap.String("dir", s.dir), zap.Uint64("passages", count))
	s.Swap(idx)
	return nil
}

// Rebuild indexes notes from scratch and swaps the new index in. Other
// processes rebuilding the same directory are held off with a lock file.
func (s *Searcher) Rebuild(notes []Note) error {
	return s.locked(func() error {
		if err := Build(s.dir, notes, s.logger); err != nil {
			return err
		}
		return s.Load()
	})
}

// Reload reopens the index on disk, picking up a rebuild made by another
// process, and returns the passage count of the new index. It waits for a
// rebuild in progress to finish first.
func (s *Searcher) Reload() (uint64, error) {
	if err := s.locked(s.Load); err != nil {
		return 0, err
	}
	return s.DocCount()
}

// locked runs fn holding the index lock, after the current index let go of
// its files.
func (s *Searcher) locked(fn func() error) error {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()

	lock := newFileLock(s.dir, s.logger)
	if err := lock.acquire(); err != nil {
		return fmt.Errorf("failed to acquire index lock: %w", err)
	}
	defer func() {
		if err := lock.release(); err != nil {
			s.logger.Warn("failed to release index lock", zap.Error(err))
		}
	}()

	s.retire(s.current.Swap(nil))
	s.closers.Wait()
	return fn()
}

// Swap makes idx the current index and closes the previous one in the
// background once no search uses it.
func (s *Searcher) Swap(idx Index) {
	s.retire(s.current.Swap(&idx))
}

func (s *Searcher) retire(old *Index) {
	if old == nil {
		return
	}
	s.closers.Add(1)
	go func() {
		defer s.closers.Done()
		s.inflight.Wait()
		if err := (*old).Close(); err != nil {
			s.logger.Warn("failed to close old notes index", zap.Error(err))
		}
	}()
}

// Close closes the current index and waits for pending closes
func (s *Searcher) Close() error {
	old := s.current.Swap(nil)
	s.closers.Wait()
	if old == nil {
		return nil
	}
	s.inflight.Wait()
	return (*old).Close()
}

// DocCount returns the number of passages in the current index
func (s *Searcher) DocCount() (uint64, error) {
	s.inflight.Add(1)
	defer s.inflight.Done()

	ptr := s.current.Load()
	if ptr == nil {
		return 0, ErrNotLoaded
	}
	return (*ptr).DocCount()
}

// Search finds passages containing any of terms. Single words match their
// inflected forms; multi-word terms match as phrases.
func (s *Searcher) Search(ctx context.Context, terms []string, opts SearchOptions) (*Results, error) {
	s.inflight.Add(1)
	defer s.inflight.Done()

	ptr := s.current.Load()
	if ptr == nil {
		return nil, ErrNotLoaded
	}
	idx := *ptr

	terms = cleanTerms(terms)
	if len(terms) == 0 {
		return nil, ErrNoTerms
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	req := bleve.NewSearchRequestOptions(buildQuery(terms, opts), limit, max(opts.Offset, 0), false)
	req.Fields = []string{"*"}

	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("notes search failed: %w", err)
	}

	out := &Results{Terms: terms, Total: res.Total, Hits: make([]Hit, 0, len(res.Hits))}
	for _, h := range res.Hits {
		p := passageFromHit(h)
		out.Hits = append(out.Hits, Hit{
			Passage:  p,
			Score:    h.Score,
			Segments: textmatch.Highlight(p.Text, terms),
		})
	}
	return out, nil
}

func cleanTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.Join(strings.Fields(t), " "); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func buildQuery(terms []string, opts SearchOptions) query.Query {
	anyTerm := make([]query.Query, 0, len(terms))
	for _, t := range terms {
		if strings.Contains(t, " ") {
			q := bleve.NewMatchPhraseQuery(t)
			q.SetField("text")
			anyTerm = append(anyTerm, q)
			continue
		}
		q := bleve.NewMatchQuery(t)
		q.SetField("text")
		anyTerm = append(anyTerm, q)
	}

	must := []query.Query{bleve.NewDisjunctionQuery(anyTerm...)}
	if opts.Facility != "" {
		q := bleve.NewTermQuery(opts.Facility)
		q.SetField("facility")
		must = append(must, q)
	}
	if opts.NoteType != "" {
		q := bleve.NewTermQuery(opts.NoteType)
		q.SetField("note_type")
		must = append(must, q)
	}
	if !opts.From.IsZero() || !opts.To.IsZero() {
		inclusive := true
		q := bleve.NewDateRangeInclusiveQuery(opts.From, opts.To, &inclusive, &inclusive)
		q.SetField("note_date")
		must = append(must, q)
	}
	if len(must) == 1 {
		return must[0]
	}
	return bleve.NewConjunctionQuery(must...)
}

func passageFromHit(h *search.DocumentMatch) Passage {
	p := Passage{ID: h.ID}
	if v, ok := h.Fields["note_id"].(string); ok {
		p.NoteID = v
	}
	if v, ok := h.Fields["part"].(float64); ok {
		p.Part = int(v)
	}
	if v, ok := h.Fields["patient"].(string); ok {
		p.Patient = v
	}
	if v, ok := h.Fields["facility"].(string); ok {
		p.Facility = v
	}
	if v, ok := h.Fields["author"].(string); ok {
		p.Author = v
	}
	if v, ok := h.Fields["note_type"].(string); ok {
		p.NoteType = v
	}
	if v, ok := h.Fields["note_date"].(string); ok {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			p.NoteDate = ts
		}
	}
	if v, ok := h.Fields["text"].(string); ok {
		p.Text = v
	}
	switch v := h.Fields["keywords"].(type) {
	case string:
		p.Keywords = []string{v}
	case []interface{}:
		for _, kw := range v {
			if s, ok := kw.(string); ok {
				p.Keywords = append(p.Keywords, s)
			}
		}
	}
	return p
}
