// Package notes indexes progress notes with bleve and searches them by
// trigger words, returning each hit with its highlighted segments.
package notes

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// MaxPassageChars is the longest passage indexed as one document
	MaxPassageChars = 3200

	// OverlapChars is repeated between consecutive passages of a long note
	OverlapChars = 400

	// maxKeywords caps the keywords stored per passage
	maxKeywords = 10
)

// Note is one progress note of the notes export
type Note struct {
	ID       string    `json:"id"`
	Patient  string    `json:"patient"`
	Facility string    `json:"facility"`
	Author   string    `json:"author"`
	NoteType string    `json:"note_type"`
	NoteDate time.Time `json:"note_date"`
	Text     string    `json:"text"`
}

// Passage is the indexed unit: a note, or part of a long one
type Passage struct {
	ID       string    `json:"id"`
	NoteID   string    `json:"note_id"`
	Part     int       `json:"part"`
	Patient  string    `json:"patient"`
	Facility string    `json:"facility"`
	Author   string    `json:"author"`
	NoteType string    `json:"note_type"`
	NoteDate time.Time `json:"note_date"`
	Text     string    `json:"text"`
	Keywords []string  `json:"keywords,omitempty"`
}

// ReadExport decodes a JSON array of notes
func ReadExport(r io.Reader) ([]Note, error) {
	var notes []Note
	if err := json.NewDecoder(r).Decode(&notes); err != nil {
		return nil, fmt.Errorf("failed to decode notes: %w", err)
	}
	for i, n := range notes {
		if n.ID == "" {
			return nil, fmt.Errorf("note %d has no id", i)
		}
	}
	return notes, nil
}

// LoadExport reads the notes export at path
func LoadExport(path string) ([]Note, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open notes export: %w", err)
	}
	defer f.Close()
	return ReadExport(f)
}

// Passages splits a note into the documents that get indexed. Short notes
// yield a single passage with the note's id.
func Passages(n Note) []Passage {
	parts := splitText(n.Text, MaxPassageChars, OverlapChars)
	out := make([]Passage, len(parts))
	for i, text := range parts {
		id := n.ID
		if len(parts) > 1 {
			id = fmt.Sprintf("%s#%d", n.ID, i+1)
		}
		out[i] = Passage{
			ID:       id,
			NoteID:   n.ID,
			Part:     i + 1,
			Patient:  n.Patient,
			Facility: n.Facility,
			Author:   n.Author,
			NoteType: n.NoteType,
			NoteDate: n.NoteDate,
			Text:     text,
			Keywords: Keywords(text),
		}
	}
	return out
}

// splitText cuts text into pieces of at most maxChars bytes, preferring
// whitespace boundaries, with overlapChars repeated between pieces.
func splitText(text string, maxChars, overlapChars int) []string {
	if len(text) <= maxChars {
		return []string{text}
	}

	var parts []string
	for len(text) > 0 {
		size := min(maxChars, len(text))
		if size < len(text) {
			for i := size; i > size-100 && i > 0; i-- {
				if text[i] == ' ' || text[i] == '\n' {
					size = i
					break
				}
			}
			for size > 0 && !utf8.RuneStart(text[size]) {
				size--
			}
		}

		parts = append(parts, text[:size])
		if size == len(text) {
			break
		}

		next := size
		if size+overlapChars < len(text) && size > overlapChars {
			next = size - overlapChars
			for next > 0 && !utf8.RuneStart(text[next]) {
				next--
			}
		}
		text = text[next:]
	}
	return parts
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "of": true, "as": true, "by": true, "is": true,
	"it": true, "be": true, "with": true, "from": true, "that": true,
	"was": true, "has": true, "had": true, "per": true, "pt": true,
}

// Keywords returns up to ten significant words of text in order of first
// appearance.
func Keywords(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.TrimFunc(word, func(r rune) bool {
			return !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'))
		})
		if len(word) <= 2 || stopWords[word] || seen[word] {
			continue
		}
		seen[word] = true
		out = append(out, word)
		if len(out) == maxKeywords {
			break
		}
	}
	return out
}
