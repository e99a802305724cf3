package pages

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/noah-analytics/noah-server/internal/table"
)

// DataProvider gives access to the page definitions shipped with the
// binary. Tests swap in MockDataProvider.
type DataProvider interface {
	// ReadFile reads a file relative to the data root, e.g. "data/columns/nhqi.json"
	ReadFile(name string) ([]byte, error)

	// ReadDir lists a directory relative to the data root
	ReadDir(name string) ([]fs.DirEntry, error)
}

// ColumnsDir holds one column definition file per page
const ColumnsDir = "data/columns"

//go:embed data/columns/*.json
var embeddedFS embed.FS

type embeddedDataProvider struct {
	fs embed.FS
}

// NewEmbeddedDataProvider returns the DataProvider backed by the embedded files
func NewEmbeddedDataProvider() DataProvider {
	return &embeddedDataProvider{fs: embeddedFS}
}

func (p *embeddedDataProvider) ReadFile(name string) ([]byte, error) {
	return p.fs.ReadFile(name)
}

func (p *embeddedDataProvider) ReadDir(name string) ([]fs.DirEntry, error) {
	return p.fs.ReadDir(name)
}

// LoadColumnSets reads and validates the column definitions of every page,
// keyed by page id (the file name without .json).
func LoadColumnSets(dp DataProvider) (map[string][]table.ColumnDef, error) {
	entries, err := dp.ReadDir(ColumnsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list column definitions: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	sets := make(map[string][]table.ColumnDef, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := dp.ReadFile(path.Join(ColumnsDir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", e.Name(), err)
		}
		cols, err := table.LoadColumns(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		sets[strings.TrimSuffix(e.Name(), ".json")] = cols
	}
	return sets, nil
}
