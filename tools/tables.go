package tools

import (
	"context"
	"fmt"
	"net/url"
	"sort"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/noah-analytics/noah-server/internal/facets"
	"github.com/noah-analytics/noah-server/internal/pages"
	"github.com/noah-analytics/noah-server/internal/table"
)

// TableTools exposes the dashboard tables
type TableTools struct {
	pages *pages.Service
}

// NewTableTools creates the table tools over svc
func NewTableTools(svc *pages.Service) *TableTools {
	return &TableTools{pages: svc}
}

// QueryTableInput defines input for query_table tool
type QueryTableInput struct {
	Page      string            `json:"page" jsonschema:"Page id: nhqi, triggerwords, mds, cashflow, access, events or apps"`
	Filters   map[string]string `json:"filters,omitempty" jsonschema:"Column filters in URL form, e.g. {\"facility\": \"[A,B]\", \"occurred_at\": \"2024-03-01~2024-03-09\"}; q is the global search (optional)"`
	PageIndex int               `json:"page_index,omitempty" jsonschema:"Zero-based page (optional)"`
	PageSize  int               `json:"page_size,omitempty" jsonschema:"Rows per page (optional, defaults to 10)"`
}

// QueryTableOutput defines output for query_table tool
type QueryTableOutput struct {
	*pages.View
	Warning string `json:"warning,omitempty"`
}

func filterQuery(filters map[string]string) url.Values {
	q := url.Values{}
	for k, v := range filters {
		q.Set(k, v)
	}
	return q
}

// QueryTable renders one page of a dashboard table
func (tt *TableTools) QueryTable(ctx context.Context, req *mcp.CallToolRequest, input QueryTableInput) (*mcp.CallToolResult, QueryTableOutput, error) {
	if input.PageIndex < 0 || input.PageSize < 0 {
		return nil, QueryTableOutput{}, fmt.Errorf("page_index and page_size must not be negative")
	}
	p := table.Pagination{PageIndex: input.PageIndex, PageSize: input.PageSize}

	view, err := tt.pages.View(ctx, input.Page, filterQuery(input.Filters), p)
	if view == nil {
		return nil, QueryTableOutput{}, fmt.Errorf("failed to query %s: %w", input.Page, err)
	}
	out := QueryTableOutput{View: view}
	if err != nil {
		out.Warning = err.Error()
	}
	return nil, out, nil
}

// FacetValuesInput defines input for facet_values tool
type FacetValuesInput struct {
	Page    string            `json:"page" jsonschema:"Page id"`
	Column  string            `json:"column" jsonschema:"Column id"`
	Filters map[string]string `json:"filters,omitempty" jsonschema:"Column filters in URL form (optional)"`
}

// FacetValue is one distinct value of a column
type FacetValue struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// FacetValuesOutput defines output for facet_values tool
type FacetValuesOutput struct {
	Column string        `json:"column"`
	Values []FacetValue  `json:"values"`
	Range  *facets.Range `json:"range,omitempty"`
}

// FacetValues lists the distinct values of a column over the rows passing
// every filter but the column's own, with the value range when the column
// is ordered.
func (tt *TableTools) FacetValues(ctx context.Context, req *mcp.CallToolRequest, input FacetValuesInput) (*mcp.CallToolResult, FacetValuesOutput, error) {
	t, err := tt.pages.Table(ctx, input.Page, filterQuery(input.Filters))
	if t == nil {
		return nil, FacetValuesOutput{}, fmt.Errorf("failed to load %s: %w", input.Page, err)
	}
	defer tt.pages.Release(t)

	if _, ok := t.Column(input.Column); !ok {
		return nil, FacetValuesOutput{}, fmt.Errorf("page %s has no column %q", input.Page, input.Column)
	}

	agg := tt.pages.Aggregator()
	src := t.FacetSource(input.Column)
	out := FacetValuesOutput{Column: input.Column}
	for v, n := range agg.UniqueValues(src, input.Column) {
		out.Values = append(out.Values, FacetValue{Value: table.CellString(v), Count: n})
	}
	sort.Slice(out.Values, func(i, j int) bool {
		if out.Values[i].Count != out.Values[j].Count {
			return out.Values[i].Count > out.Values[j].Count
		}
		return out.Values[i].Value < out.Values[j].Value
	})
	if rng, ok := agg.MinMax(src, input.Column); ok {
		out.Range = &rng
	}
	return nil, out, nil
}

// RegisterTableTools registers the dashboard table tools
func RegisterTableTools(server *mcp.Server, svc *pages.Service) {
	tt := NewTableTools(svc)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "query_table",
			Description: "Query a dashboard table with the same URL filter syntax as the browser. Returns the visible columns, one page of rows, totals and the canonical query string.",
		},
		tt.QueryTable,
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "facet_values",
			Description: "List the distinct values of a table column with their counts, and its min/max for dates and numbers. Every filter applies except the one on the column itself.",
		},
		tt.FacetValues,
	)
}
