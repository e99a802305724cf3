package pages

import (
	"context"
	"net/url"
	"sort"

	"github.com/noah-analytics/noah-server/internal/api"
	"github.com/noah-analytics/noah-server/internal/table"
)

func fetchEvents(ctx context.Context, b Backend) ([]api.Event, error) {
	return b.Events(ctx, api.DateWindow{})
}

func eventRow(e api.Event) table.Row {
	return table.Row{
		"id":          e.ID,
		"facility":    e.Facility,
		"occurred_at": e.OccurredAt,
		"type":        e.Type,
		"severity":    e.Severity,
		"patient":     e.Patient,
		"description": e.Description,
		"status":      e.Status,
	}
}

// EventCount is the number of filtered events of one type
type EventCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// EventCounts counts the events passing the filters of q by type, most
// frequent first.
func (s *Service) EventCounts(ctx context.Context, q url.Values) ([]EventCount, error) {
	t, err := s.Table(ctx, Events, q)
	if t == nil {
		return nil, err
	}
	defer s.Release(t)

	counts := s.agg.UniqueValues(t, "type")
	out := make([]EventCount, 0, len(counts))
	for v, n := range counts {
		if v == nil {
			continue
		}
		out = append(out, EventCount{Type: table.CellString(v), Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Type < out[j].Type
	})
	return out, err
}
