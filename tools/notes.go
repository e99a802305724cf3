package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/noah-analytics/noah-server/internal/notes"
)

// SearchNotesInput defines input for search_notes tool
type SearchNotesInput struct {
	Terms    []string `json:"terms" jsonschema:"Trigger words or phrases; inflections match"`
	Facility string   `json:"facility,omitempty" jsonschema:"Only notes of this facility (optional)"`
	NoteType string   `json:"note_type,omitempty" jsonschema:"Only notes of this type (optional)"`
	From     string   `json:"from,omitempty" jsonschema:"Earliest note date, YYYY-MM-DD (optional)"`
	To       string   `json:"to,omitempty" jsonschema:"Latest note date, YYYY-MM-DD (optional)"`
	Limit    int      `json:"limit,omitempty" jsonschema:"Maximum number of notes (optional, defaults to 10, max 50)"`
}

// SearchNotesOutput defines output for search_notes tool
type SearchNotesOutput struct {
	*notes.Results
}

// NoteTools searches the progress note index
type NoteTools struct {
	searcher *notes.Searcher
}

// NewNoteTools creates the note tools over searcher
func NewNoteTools(searcher *notes.Searcher) *NoteTools {
	return &NoteTools{searcher: searcher}
}

// SearchNotes finds progress notes mentioning any of the terms
func (nt *NoteTools) SearchNotes(ctx context.Context, req *mcp.CallToolRequest, input SearchNotesInput) (*mcp.CallToolResult, SearchNotesOutput, error) {
	opts := notes.SearchOptions{
		Facility: input.Facility,
		NoteType: input.NoteType,
		Limit:    input.Limit,
	}
	var err error
	if input.From != "" {
		if opts.From, err = time.Parse(time.DateOnly, input.From); err != nil {
			return nil, SearchNotesOutput{}, fmt.Errorf("invalid from date: %w", err)
		}
	}
	if input.To != "" {
		if opts.To, err = time.Parse(time.DateOnly, input.To); err != nil {
			return nil, SearchNotesOutput{}, fmt.Errorf("invalid to date: %w", err)
		}
		opts.To = opts.To.Add(24*time.Hour - time.Nanosecond)
	}

	res, err := nt.searcher.Search(ctx, input.Terms, opts)
	if err != nil {
		return nil, SearchNotesOutput{}, fmt.Errorf("note search failed: %w", err)
	}
	return nil, SearchNotesOutput{Results: res}, nil
}

// RefreshNotesIndexInput defines input for refresh_notes_index tool
type RefreshNotesIndexInput struct{}

// RefreshNotesIndexOutput defines output for refresh_notes_index tool
type RefreshNotesIndexOutput struct {
	Passages uint64 `json:"passages"`
}

// RefreshNotesIndex reopens the index after the indexer rebuilt it
func (nt *NoteTools) RefreshNotesIndex(ctx context.Context, req *mcp.CallToolRequest, input RefreshNotesIndexInput) (*mcp.CallToolResult, RefreshNotesIndexOutput, error) {
	count, err := nt.searcher.Reload()
	if err != nil {
		return nil, RefreshNotesIndexOutput{}, fmt.Errorf("failed to reload notes index: %w", err)
	}
	return nil, RefreshNotesIndexOutput{Passages: count}, nil
}

// RegisterNoteTools registers the progress note tools
func RegisterNoteTools(server *mcp.Server, searcher *notes.Searcher) {
	nt := NewNoteTools(searcher)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "search_notes",
			Description: "Full-text search of resident progress notes for trigger words. Returns the best matching note passages with highlighted segments.",
		},
		nt.SearchNotes,
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "refresh_notes_index",
			Description: "Reopen the progress note index after it was rebuilt with the indexer. Returns the number of indexed passages.",
		},
		nt.RefreshNotesIndex,
	)
}
