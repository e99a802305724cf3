package table

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// FilterKind selects the filter widget a column exposes
type FilterKind int

const (
	NoFilter FilterKind = iota
	Categorical
	Text
	DateRange
)

var filterKindNames = map[FilterKind]string{
	NoFilter:    "",
	Categorical: "categorical",
	Text:        "text",
	DateRange:   "daterange",
}

func (k FilterKind) String() string {
	if name, ok := filterKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("FilterKind(%d)", int(k))
}

// ParseFilterKind maps a column metadata string onto a FilterKind
func ParseFilterKind(s string) (FilterKind, error) {
	for k, name := range filterKindNames {
		if name == s {
			return k, nil
		}
	}
	return NoFilter, fmt.Errorf("unknown filter type %q", s)
}

func (k FilterKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *FilterKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseFilterKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ColumnDef describes one table column
type ColumnDef struct {
	ID        string     `json:"id"`
	Header    string     `json:"header"`
	Accessor  string     `json:"accessor,omitempty"` // row key, defaults to ID
	Filter    FilterKind `json:"filter,omitempty"`
	Download  bool       `json:"download,omitempty"`   // included in Excel export
	Hidden    bool       `json:"hidden,omitempty"`     // hidden until the user shows it
	URLExempt bool       `json:"url_exempt,omitempty"` // never mirrored into the query string
	Width     int        `json:"width,omitempty"`
}

func (c ColumnDef) key() string {
	if c.Accessor != "" {
		return c.Accessor
	}
	return c.ID
}

// FilterValue is the state of one column filter. It is implemented only by
// CategoricalValue, TextValue and DateRangeValue.
type FilterValue interface {
	Kind() FilterKind
	Active() bool
	isFilterValue()
}

// CategoricalValue selects rows whose cell equals one of the values
type CategoricalValue []string

func (CategoricalValue) Kind() FilterKind { return Categorical }
func (v CategoricalValue) Active() bool   { return len(v) > 0 }
func (CategoricalValue) isFilterValue()   {}

// Contains reports whether s is one of the selected values
func (v CategoricalValue) Contains(s string) bool {
	return slices.Contains(v, s)
}

// TextValue selects rows whose cell stem-matches the text
type TextValue string

func (TextValue) Kind() FilterKind { return Text }
func (v TextValue) Active() bool   { return v != "" }
func (TextValue) isFilterValue()   {}

// DateRangeValue selects rows whose cell date falls inside [From, To].
// A zero bound is open. A To at midnight includes that whole day.
type DateRangeValue struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (DateRangeValue) Kind() FilterKind { return DateRange }
func (v DateRangeValue) Active() bool   { return !v.From.IsZero() || !v.To.IsZero() }
func (DateRangeValue) isFilterValue()   {}

// Includes reports whether t lies inside the range
func (v DateRangeValue) Includes(t time.Time) bool {
	if !v.From.IsZero() && t.Before(v.From) {
		return false
	}
	if v.To.IsZero() {
		return true
	}
	if h, m, s := v.To.Clock(); h == 0 && m == 0 && s == 0 && v.To.Nanosecond() == 0 {
		return t.Before(v.To.AddDate(0, 0, 1))
	}
	return !t.After(v.To)
}
