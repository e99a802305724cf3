package textmatch

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Segment is a contiguous slice of highlighted text
type Segment struct {
	Text      string `json:"text"`
	IsMatch   bool   `json:"is_match"`
	Term      string `json:"term,omitempty"`
	TermIndex int    `json:"term_index"` // -1 when unmatched
}

func unmatched(text string) Segment {
	return Segment{Text: text, TermIndex: -1}
}

// Highlight splits text into matched and unmatched segments for the given
// search terms. Terms are applied in order and only ever subdivide segments
// that no earlier term claimed, so on overlap the earlier term wins.
// Concatenating the Text of the returned segments yields text unchanged.
func Highlight(text string, terms []string) []Segment {
	segments := []Segment{unmatched(text)}

	for i, term := range terms {
		re := termPattern(term)
		if re == nil {
			continue
		}

		next := make([]Segment, 0, len(segments))
		for _, seg := range segments {
			if seg.IsMatch || seg.Text == "" {
				next = append(next, seg)
				continue
			}
			next = append(next, splitSegment(seg.Text, re, term, i)...)
		}
		segments = next
	}

	return segments
}

// termPattern builds a case-insensitive pattern for term, tolerating any run
// of whitespace between its words. Blank terms yield nil.
func termPattern(term string) *regexp.Regexp {
	words := strings.Fields(term)
	if len(words) == 0 {
		return nil
	}
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)` + strings.Join(words, `\s+`))
}

// splitSegment scans one unmatched segment for hits of re. A hit is widened
// to whole words and kept only if the widened text stem-matches term.
func splitSegment(text string, re *regexp.Regexp, term string, termIndex int) []Segment {
	var out []Segment
	last := 0
	pos := 0

	for pos < len(text) {
		loc := re.FindStringIndex(text[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]

		if start == end {
			_, size := utf8.DecodeRuneInString(text[end:])
			if size == 0 {
				size = 1
			}
			pos = end + size
			continue
		}

		ws, we := widen(text, start, end, last)
		if !StemMatch(text[ws:we], term) {
			pos = end
			continue
		}

		if ws > last {
			out = append(out, unmatched(text[last:ws]))
		}
		out = append(out, Segment{
			Text:      text[ws:we],
			IsMatch:   true,
			Term:      term,
			TermIndex: termIndex,
		})
		last, pos = we, we
	}

	if last < len(text) {
		out = append(out, unmatched(text[last:]))
	}
	return out
}

// widen grows [start, end) outward to word boundaries, never crossing floor.
func widen(text string, start, end, floor int) (int, int) {
	for start > floor {
		r, size := utf8.DecodeLastRuneInString(text[floor:start])
		if !isWordRune(r) {
			break
		}
		start -= size
	}
	for end < len(text) {
		r, size := utf8.DecodeRuneInString(text[end:])
		if !isWordRune(r) {
			break
		}
		end += size
	}
	return start, end
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '\''
}
