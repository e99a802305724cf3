package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/noah-analytics/noah-server/internal/textmatch"
)

// HighlightTextInput defines input for highlight_text tool
type HighlightTextInput struct {
	Text  string   `json:"text" jsonschema:"Text to highlight"`
	Terms []string `json:"terms" jsonschema:"Search terms; each matches its inflections (fall matches falls and falling)"`
}

// HighlightTextOutput defines output for highlight_text tool
type HighlightTextOutput struct {
	Segments []textmatch.Segment `json:"segments"`
	Matches  int                 `json:"matches"`
}

// HighlightText splits text into matched and unmatched segments
func HighlightText(ctx context.Context, req *mcp.CallToolRequest, input HighlightTextInput) (*mcp.CallToolResult, HighlightTextOutput, error) {
	segs := textmatch.Highlight(input.Text, input.Terms)
	out := HighlightTextOutput{Segments: segs}
	for _, s := range segs {
		if s.IsMatch {
			out.Matches++
		}
	}
	return nil, out, nil
}

// MatchStemInput defines input for match_stem tool
type MatchStemInput struct {
	Value  string `json:"value" jsonschema:"Cell text to test"`
	Filter string `json:"filter" jsonschema:"Filter word or phrase"`
}

// MatchStemOutput defines output for match_stem tool
type MatchStemOutput struct {
	Match       bool     `json:"match"`
	ValueStems  []string `json:"value_stems"`
	FilterStems []string `json:"filter_stems"`
}

// MatchStem reports whether value passes a stemmed text filter
func MatchStem(ctx context.Context, req *mcp.CallToolRequest, input MatchStemInput) (*mcp.CallToolResult, MatchStemOutput, error) {
	return nil, MatchStemOutput{
		Match:       textmatch.StemMatch(input.Value, input.Filter),
		ValueStems:  textmatch.Stems(input.Value),
		FilterStems: textmatch.Stems(input.Filter),
	}, nil
}

// RegisterTextTools registers the text matching tools
func RegisterTextTools(server *mcp.Server) {
	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "highlight_text",
			Description: "Split text into segments marking every word whose stem matches one of the terms. Earlier terms win where matches overlap.",
		},
		HighlightText,
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "match_stem",
			Description: "Test a value against a dashboard text filter. Words are compared by stem; phrases must appear in order.",
		},
		MatchStem,
	)
}
