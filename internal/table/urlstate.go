package table

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// GlobalSearchParam carries the global search text
	GlobalSearchParam = "q"

	// OTPParam pre-selects the passwordless login flow
	OTPParam = "otp"

	// HistoryParam widens the default date window to the whole data range
	HistoryParam = "history"

	dateLayout     = "2006-01-02"
	rangeSeparator = "~"
)

var reservedParams = map[string]bool{
	GlobalSearchParam: true,
	OTPParam:          true,
	HistoryParam:      true,
}

// EncodeQuery mirrors the active filters into query parameters so a
// filtered view can be shared. URL-exempt columns and default windows are
// left out; the history flag is kept so the defaults come back the same.
func (t *Table) EncodeQuery() url.Values {
	t.mu.Lock()
	filters := make(map[string]FilterValue, len(t.filters))
	for id, v := range t.filters {
		if !t.defaults[id] {
			filters[id] = v
		}
	}
	global, history := t.global, t.history
	t.mu.Unlock()

	q := url.Values{}
	for id, v := range filters {
		col, _ := t.Column(id)
		if col.URLExempt {
			continue
		}
		q.Set(id, EncodeFilterValue(v))
	}
	if global != "" {
		q.Set(GlobalSearchParam, global)
	}
	if history {
		q.Set(HistoryParam, "1")
	}
	return q
}

// QueryString returns EncodeQuery in its encoded form
func (t *Table) QueryString() string {
	return t.EncodeQuery().Encode()
}

// ApplyQuery restores filters from query parameters. Reserved parameters,
// unknown or URL-exempt columns and columns without a filter are ignored;
// malformed values are reported after every valid one is applied.
func (t *Table) ApplyQuery(q url.Values) error {
	var problems []string

	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		raw := q.Get(key)
		if key == GlobalSearchParam {
			t.SetGlobalFilter(raw)
			continue
		}
		if reservedParams[key] {
			continue
		}

		col, ok := t.Column(key)
		if !ok || col.URLExempt || col.Filter == NoFilter {
			continue
		}

		v, err := DecodeFilterValue(col.Filter, raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", key, err))
			continue
		}
		if err := t.SetColumnFilter(key, v); err != nil {
			problems = append(problems, err.Error())
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid filter parameters: %s", strings.Join(problems, "; "))
	}
	return nil
}

// EncodeFilterValue renders a filter value for the query string.
// Categorical values become "[A,B]", quoting values that contain list
// syntax; text is verbatim; date ranges are "from~to" with open ends blank.
// Date bounds are YYYY-MM-DD when they fall on UTC midnight and RFC 3339
// otherwise, so a window with a time of day survives the round trip.
func EncodeFilterValue(v FilterValue) string {
	switch fv := v.(type) {
	case CategoricalValue:
		parts := make([]string, len(fv))
		for i, s := range fv {
			if strings.ContainsAny(s, `,[]"`) {
				s = strconv.Quote(s)
			}
			parts[i] = s
		}
		return "[" + strings.Join(parts, ",") + "]"
	case TextValue:
		return string(fv)
	case DateRangeValue:
		return formatDate(fv.From) + rangeSeparator + formatDate(fv.To)
	}
	return ""
}

// DecodeFilterValue parses a query-string value for a column of kind
func DecodeFilterValue(kind FilterKind, raw string) (FilterValue, error) {
	switch kind {
	case Categorical:
		values, err := parseList(raw)
		if err != nil {
			return nil, err
		}
		return CategoricalValue(values), nil
	case Text:
		return TextValue(raw), nil
	case DateRange:
		from, to, found := strings.Cut(raw, rangeSeparator)
		if !found {
			return nil, fmt.Errorf("date range %q lacks %q", raw, rangeSeparator)
		}
		var v DateRangeValue
		var err error
		if v.From, err = parseDate(from); err != nil {
			return nil, err
		}
		if v.To, err = parseDate(to); err != nil {
			return nil, err
		}
		return v, nil
	case NoFilter:
		return nil, fmt.Errorf("column has no filter")
	}
	return nil, fmt.Errorf("unknown filter kind %s", kind)
}

func parseList(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "[") || !strings.HasSuffix(raw, "]") {
		// A bare value selects just that value
		if raw == "" {
			return nil, nil
		}
		return []string{raw}, nil
	}
	body := raw[1 : len(raw)-1]

	var out []string
	for len(body) > 0 {
		if body[0] == '"' {
			quoted, err := strconv.QuotedPrefix(body)
			if err != nil {
				return nil, fmt.Errorf("bad quoted value in %q: %w", raw, err)
			}
			s, _ := strconv.Unquote(quoted)
			out = append(out, s)
			body = body[len(quoted):]
		} else {
			item, _, _ := strings.Cut(body, ",")
			out = append(out, item)
			body = body[len(item):]
		}
		if len(body) > 0 {
			if body[0] != ',' {
				return nil, fmt.Errorf("expected ',' in %q", raw)
			}
			body = body[1:]
		}
	}
	return out, nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	if t.Location() == time.UTC && t.Equal(t.Truncate(24*time.Hour)) {
		return t.Format(dateLayout)
	}
	return t.Format(time.RFC3339Nano)
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if len(s) == len(dateLayout) {
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("bad date %q: %w", s, err)
		}
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad date %q: %w", s, err)
	}
	return t, nil
}
