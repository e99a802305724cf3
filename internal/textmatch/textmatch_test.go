package textmatch_test

import (
	"reflect"
	"strings"
	"testing"

	"github.com/noah-analytics/noah-server/internal/textmatch"
)

func joinSegments(segments []textmatch.Segment) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteString(s.Text)
	}
	return b.String()
}

func matchedTexts(segments []textmatch.Segment) []string {
	var out []string
	for _, s := range segments {
		if s.IsMatch {
			out = append(out, s.Text)
		}
	}
	return out
}

func TestStems(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "plural", input: "Falls", want: []string{"fall"}},
		{name: "punctuation stripped", input: "fall, again!", want: []string{"fall", "again"}},
		{name: "gerund", input: "running", want: []string{"run"}},
		{name: "empty", input: "   ", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := textmatch.Stems(tt.input)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Stems(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestStemMatch(t *testing.T) {
	tests := []struct {
		name   string
		value  string
		filter string
		want   bool
	}{
		{name: "single word plural", value: "Resident falls often", filter: "fall", want: true},
		{name: "single word no stem agreement", value: "has fallen", filter: "fall", want: false},
		{name: "single word absent", value: "no incidents", filter: "fall", want: false},
		{name: "phrase inside value", value: "patient fell down the stairs", filter: "fell down", want: true},
		{name: "phrase order matters", value: "down fell", filter: "fell down", want: false},
		{name: "value shorter than phrase", value: "fell", filter: "fell down", want: false},
		{name: "phrase inside words", value: "heart rates", filter: "art rat", want: false},
		{name: "phrase at the end", value: "checked heart rates", filter: "heart rate", want: true},
		{name: "empty filter matches", value: "anything", filter: "  ", want: true},
		{name: "case insensitive", value: "RUNNING late", filter: "run", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := textmatch.StemMatch(tt.value, tt.filter); got != tt.want {
				t.Errorf("StemMatch(%q, %q) = %v, want %v", tt.value, tt.filter, got, tt.want)
			}
		})
	}
}

func TestHighlight_RoundTrip(t *testing.T) {
	texts := []string{
		"",
		"hello world",
		"Patient fell down the stairs.  Fell   down again at 3pm; falls risk high.",
		"Résident a chuté — fall reported",
		"aaa aaa aaa",
	}
	termSets := [][]string{
		nil,
		{""},
		{"fell down", "fall", "down"},
		{"aaa", "aa"},
		{"(risk)", "3pm;", "[x]"},
	}

	for _, text := range texts {
		for _, terms := range termSets {
			segments := textmatch.Highlight(text, terms)
			if got := joinSegments(segments); got != text {
				t.Errorf("Highlight(%q, %q) joined = %q, want original", text, terms, got)
			}
		}
	}
}

func TestHighlight_TermPriority(t *testing.T) {
	segments := textmatch.Highlight("patient fell down stairs", []string{"fell down", "down stairs"})

	want := []textmatch.Segment{
		{Text: "patient ", TermIndex: -1},
		{Text: "fell down", IsMatch: true, Term: "fell down", TermIndex: 0},
		{Text: " stairs", TermIndex: -1},
	}
	if !reflect.DeepEqual(segments, want) {
		t.Errorf("Highlight() = %+v, want %+v", segments, want)
	}
}

func TestHighlight_MatchedSpanNeverResplit(t *testing.T) {
	segments := textmatch.Highlight("high fall risk", []string{"fall", "fall risk", "risk"})

	for _, s := range segments {
		if s.IsMatch && s.Text == "fall" && s.TermIndex != 0 {
			t.Errorf("fall attributed to term %d, want 0", s.TermIndex)
		}
	}
	got := matchedTexts(segments)
	want := []string{"fall", "risk"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("matched = %v, want %v", got, want)
	}
	if segments[len(segments)-1].TermIndex != 2 {
		t.Errorf("risk attributed to term %d, want 2", segments[len(segments)-1].TermIndex)
	}
}

func TestHighlight_StemRejection(t *testing.T) {
	segments := textmatch.Highlight("she has fallen twice", []string{"fall"})

	if got := matchedTexts(segments); len(got) != 0 {
		t.Errorf("expected no matches, got %v", got)
	}
	if len(segments) != 1 || segments[0].Text != "she has fallen twice" {
		t.Errorf("expected one unmatched segment, got %+v", segments)
	}
}

func TestHighlight_PhraseInsideWordsRejected(t *testing.T) {
	segments := textmatch.Highlight("Heart rates stable", []string{"art rat"})

	if got := matchedTexts(segments); len(got) != 0 {
		t.Errorf("expected no matches, got %v", got)
	}
}

func TestHighlight_StemAcceptsInflection(t *testing.T) {
	segments := textmatch.Highlight("Two falls this week", []string{"fall"})

	got := matchedTexts(segments)
	if !reflect.DeepEqual(got, []string{"falls"}) {
		t.Errorf("matched = %v, want [falls]", got)
	}
}

func TestHighlight_BlankTermsIgnored(t *testing.T) {
	segments := textmatch.Highlight("hello world", []string{"", "  "})

	want := []textmatch.Segment{{Text: "hello world", TermIndex: -1}}
	if !reflect.DeepEqual(segments, want) {
		t.Errorf("Highlight() = %+v, want %+v", segments, want)
	}
}

func TestHighlight_WhitespaceTolerantPhrase(t *testing.T) {
	segments := textmatch.Highlight("Fell   Down twice", []string{"fell down"})

	got := matchedTexts(segments)
	if !reflect.DeepEqual(got, []string{"Fell   Down"}) {
		t.Errorf("matched = %v, want [Fell   Down]", got)
	}
}

func TestHighlight_MetacharactersQuoted(t *testing.T) {
	segments := textmatch.Highlight("took b12 (daily) with food", []string{"b12 (daily)"})

	got := matchedTexts(segments)
	if !reflect.DeepEqual(got, []string{"b12 (daily)"}) {
		t.Errorf("matched = %v, want [b12 (daily)]", got)
	}
}
