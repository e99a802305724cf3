package notes

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
	"go.uber.org/zap"
)

const (
	// SchemaVersion increments whenever the mapping or passage layout changes
	SchemaVersion = 1

	versionFile = ".index_version"
	batchSize   = 100
)

// Index abstracts the bleve index so the searcher can be tested with mocks
type Index interface {
	// SearchInContext executes a search request
	SearchInContext(ctx context.Context, req *bleve.SearchRequest) (*bleve.SearchResult, error)

	// DocCount returns the number of documents in the index
	DocCount() (uint64, error)

	// Close closes the index
	Close() error
}

type bleveIndex struct {
	index bleve.Index
}

// WrapIndex adapts a bleve.Index to Index
func WrapIndex(index bleve.Index) Index {
	return &bleveIndex{index: index}
}

func (w *bleveIndex) SearchInContext(ctx context.Context, req *bleve.SearchRequest) (*bleve.SearchResult, error) {
	return w.index.SearchInContext(ctx, req)
}

func (w *bleveIndex) DocCount() (uint64, error) {
	return w.index.DocCount()
}

func (w *bleveIndex) Close() error {
	return w.index.Close()
}

// NewMapping maps passages: the note text is analyzed with the English
// analyzer so searches match inflected forms, while ids, facility and note
// type are kept as exact keywords.
func NewMapping() mapping.IndexMapping {
	text := bleve.NewTextFieldMapping()
	text.Analyzer = en.AnalyzerName

	keyword := bleve.NewKeywordFieldMapping()

	date := bleve.NewDateTimeFieldMapping()

	stored := bleve.NewTextFieldMapping()
	stored.Index = false

	part := bleve.NewNumericFieldMapping()
	part.Index = false

	doc := bleve.NewDocumentMapping()
	doc.Dynamic = false
	doc.AddFieldMappingsAt("text", text)
	doc.AddFieldMappingsAt("keywords", keyword)
	doc.AddFieldMappingsAt("note_id", keyword)
	doc.AddFieldMappingsAt("facility", keyword)
	doc.AddFieldMappingsAt("note_type", keyword)
	doc.AddFieldMappingsAt("patient", stored)
	doc.AddFieldMappingsAt("author", stored)
	doc.AddFieldMappingsAt("note_date", date)
	doc.AddFieldMappingsAt("part", part)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	m.DefaultAnalyzer = en.AnalyzerName
	return m
}

// IndexPassages adds the passages of every note to index in batches and
// returns how many passages were indexed.
func IndexPassages(index bleve.Index, notes []Note, logger *zap.Logger) (int, error) {
	batch := index.NewBatch()
	count := 0
	for _, n := range notes {
		for _, p := range Passages(n) {
			if err := batch.Index(p.ID, p); err != nil {
				return count, fmt.Errorf("failed to add passage %s to batch: %w", p.ID, err)
			}
			count++
			if batch.Size() >= batchSize {
				if err := index.Batch(batch); err != nil {
					return count, fmt.Errorf("failed to index batch: %w", err)
				}
				batch = index.NewBatch()
				logger.Debug("indexed passages", zap.Int("count", count))
			}
		}
	}
	if batch.Size() > 0 {
		if err := index.Batch(batch); err != nil {
			return count, fmt.Errorf("failed to index final batch: %w", err)
		}
	}
	return count, nil
}

// Build creates a fresh index of notes at dir. The index is built next to
// dir and renamed into place, so a reader never sees a partial index.
func Build(dir string, notes []Note, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	start := time.Now()
	tmp := dir + ".tmp"

	// leftover from a crashed build
	os.RemoveAll(tmp)
	if err := os.MkdirAll(filepath.Dir(tmp), 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	index, err := bleve.New(tmp, NewMapping())
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	count, err := IndexPassages(index, notes, logger)
	if err != nil {
		index.Close()
		os.RemoveAll(tmp)
		return err
	}
	if err := index.Close(); err != nil {
		os.RemoveAll(tmp)
		return fmt.Errorf("failed to close new index: %w", err)
	}

	if err := os.RemoveAll(dir); err != nil {
		os.RemoveAll(tmp)
		return fmt.Errorf("failed to remove old index: %w", err)
	}
	if err := os.Rename(tmp, dir); err != nil {
		os.RemoveAll(tmp)
		return fmt.Errorf("failed to move index into place: %w", err)
	}
	if err := writeVersion(dir); err != nil {
		logger.Warn("failed to write index version", zap.Error(err))
	}

	logger.Info("notes index built",
		zap.String("dir", dir),
		zap.Int("notes", len(notes)),
		zap.Int("passages", count),
		zap.Duration("elapsed", time.Since(start).Round(time.Millisecond)))
	return nil
}

// ErrSchemaVersion is returned by Open for an index built by an older layout
var ErrSchemaVersion = fmt.Errorf("notes index schema is not v%d", SchemaVersion)

// Open opens the index at dir, refusing one with another schema version
func Open(dir string) (Index, error) {
	if v := readVersion(dir); v != SchemaVersion {
		return nil, fmt.Errorf("%w (found v%d), rebuild it", ErrSchemaVersion, v)
	}
	index, err := bleve.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open notes index: %w", err)
	}
	return WrapIndex(index), nil
}

func versionPath(dir string) string {
	return filepath.Join(filepath.Dir(dir), filepath.Base(dir)+versionFile)
}

func readVersion(dir string) int {
	data, err := os.ReadFile(versionPath(dir))
	if err != nil {
		return 0
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return v
}

func writeVersion(dir string) error {
	return os.WriteFile(versionPath(dir), []byte(strconv.Itoa(SchemaVersion)), 0o644)
}
