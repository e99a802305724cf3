package textmatch

import (
	"strings"
	"unicode"

	porterstemmer "github.com/blevesearch/go-porterstemmer"
)

// Stems lowercases s, strips punctuation and symbols, splits on whitespace
// and reduces every token to its Porter stem.
func Stems(s string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)

	tokens := strings.Fields(cleaned)
	for i, tok := range tokens {
		tokens[i] = porterstemmer.StemString(tok)
	}
	return tokens
}

// StemMatch reports whether value matches filter once both are stemmed.
//
// A single-word filter matches when any stemmed word of value equals it.
// A phrase filter matches when its stemmed words appear, in order and
// adjacent, inside the stemmed words of value. An empty filter matches
// everything.
func StemMatch(value, filter string) bool {
	filterStems := Stems(filter)
	if len(filterStems) == 0 {
		return true
	}

	valueStems := Stems(value)
	if len(filterStems) == 1 {
		for _, stem := range valueStems {
			if stem == filterStems[0] {
				return true
			}
		}
		return false
	}

	// padding keeps the match on word boundaries
	return strings.Contains(" "+strings.Join(valueStems, " ")+" ", " "+strings.Join(filterStems, " ")+" ")
}
