package pages

import (
	"context"
	"fmt"

	"github.com/noah-analytics/noah-server/internal/api"
	"github.com/noah-analytics/noah-server/internal/optimistic"
	"github.com/noah-analytics/noah-server/internal/table"
)

// Suggestion statuses
const (
	StatusOpen     = "open"
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
)

func fetchMDS(ctx context.Context, b Backend) ([]api.MDSSuggestion, error) {
	return b.MDSSuggestions(ctx)
}

func mdsRow(m api.MDSSuggestion) table.Row {
	return table.Row{
		"id":              m.ID,
		"facility":        m.Facility,
		"patient":         m.Patient,
		"assessment_date": m.AssessmentDate,
		"section":         m.Section,
		"item":            m.Item,
		"current":         m.Current,
		"suggested":       m.Suggested,
		"pdpm_impact":     m.PDPMImpact,
		"evidence":        m.Evidence,
		"status":          m.Status,
	}
}

// ReviewMDSSuggestion accepts or rejects a suggestion optimistically
func (s *Service) ReviewMDSSuggestion(ctx context.Context, id string, review api.MDSReview) error {
	if review.Decision != StatusAccepted && review.Decision != StatusRejected {
		return fmt.Errorf("%w: decision must be %q or %q, got %q", ErrInvalidInput, StatusAccepted, StatusRejected, review.Decision)
	}
	items, err := data[api.MDSSuggestion](ctx, s, MDS)
	if err != nil {
		return err
	}
	found := false
	for _, m := range items {
		if m.ID == id {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("suggestion %q: %w", id, ErrNotFound)
	}

	return optimistic.Update(ctx, s.cache, DataKey(MDS),
		func(items []api.MDSSuggestion) []api.MDSSuggestion {
			return replace(items,
				func(m api.MDSSuggestion) bool { return m.ID == id },
				func(m api.MDSSuggestion) api.MDSSuggestion {
					m.Status = review.Decision
					return m
				})
		},
		func(ctx context.Context) error {
			return s.backend.SubmitMDSReview(ctx, id, review)
		},
		optimistic.Options{Notifier: s.notifier, Action: "review suggestion"})
}

// PDPMSummary totals the daily PDPM impact of suggestions by status
type PDPMSummary struct {
	Open     float64 `json:"open"`
	Accepted float64 `json:"accepted"`
	Rejected float64 `json:"rejected"`
}

// PDPMTotals sums the PDPM impact of the suggestions, optionally for one
// facility.
func (s *Service) PDPMTotals(ctx context.Context, facility string) (PDPMSummary, error) {
	items, err := data[api.MDSSuggestion](ctx, s, MDS)
	if err != nil {
		return PDPMSummary{}, err
	}
	var sum PDPMSummary
	for _, m := range items {
		if facility != "" && m.Facility != facility {
			continue
		}
		switch m.Status {
		case StatusAccepted:
			sum.Accepted += m.PDPMImpact
		case StatusRejected:
			sum.Rejected += m.PDPMImpact
		default:
			sum.Open += m.PDPMImpact
		}
	}
	return sum, nil
}
