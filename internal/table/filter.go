package table

import (
	"strings"

	"github.com/noah-analytics/noah-server/internal/textmatch"
)

// rowMatchesLocked applies every filter except the one of column skip
func (t *Table) rowMatchesLocked(r Row, skip string) bool {
	for id, v := range t.filters {
		if id == skip {
			continue
		}
		col := t.columns[t.byID[id]]
		if !MatchFilter(v, r[col.key()]) {
			return false
		}
	}

	if t.global == "" {
		return true
	}
	for _, col := range t.columns {
		if !t.visibility[col.ID] {
			continue
		}
		if matchText(CellString(r[col.key()]), t.global) {
			return true
		}
	}
	return false
}

// MatchFilter reports whether a cell passes a filter value
func MatchFilter(v FilterValue, cell any) bool {
	switch fv := v.(type) {
	case CategoricalValue:
		if elems, ok := cell.([]any); ok {
			for _, e := range elems {
				if fv.Contains(CellString(e)) {
					return true
				}
			}
			return false
		}
		if elems, ok := cell.([]string); ok {
			for _, e := range elems {
				if fv.Contains(e) {
					return true
				}
			}
			return false
		}
		return fv.Contains(CellString(cell))
	case TextValue:
		return matchText(CellString(cell), string(fv))
	case DateRangeValue:
		ts, ok := ParseTime(cell)
		if !ok {
			return false
		}
		return fv.Includes(ts)
	case nil:
		return true
	}
	panic("table: unhandled filter value type")
}

// matchText accepts a plain case-insensitive substring hit or a stem match
func matchText(value, query string) bool {
	if strings.Contains(strings.ToLower(value), strings.ToLower(strings.TrimSpace(query))) {
		return true
	}
	return textmatch.StemMatch(value, query)
}
