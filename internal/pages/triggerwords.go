package pages

import (
	"context"
	"fmt"

	"github.com/noah-analytics/noah-server/internal/api"
	"github.com/noah-analytics/noah-server/internal/optimistic"
	"github.com/noah-analytics/noah-server/internal/table"
	"github.com/noah-analytics/noah-server/internal/textmatch"
)

func fetchTriggerReviews(ctx context.Context, b Backend) ([]api.TriggerReview, error) {
	return b.TriggerReviews(ctx, api.DateWindow{})
}

func thumbLabel(thumb int) string {
	switch {
	case thumb > 0:
		return "up"
	case thumb < 0:
		return "down"
	}
	return ""
}

func triggerRow(r api.TriggerReview) table.Row {
	return table.Row{
		"id":            r.ID,
		"facility":      r.Facility,
		"patient":       r.Patient,
		"note_date":     r.NoteDate,
		"note_type":     r.NoteType,
		"category":      r.Category,
		"trigger_words": r.TriggerWords,
		"note_text":     r.NoteText,
		"author":        r.Author,
		"comment":       r.Comment,
		"thumb":         thumbLabel(r.Thumb),
	}
}

func (s *Service) triggerReview(ctx context.Context, id string) (api.TriggerReview, error) {
	items, err := data[api.TriggerReview](ctx, s, TriggerWords)
	if err != nil {
		return api.TriggerReview{}, err
	}
	for _, r := range items {
		if r.ID == id {
			return r, nil
		}
	}
	return api.TriggerReview{}, fmt.Errorf("trigger review %q: %w", id, ErrNotFound)
}

// HighlightReview splits a review's note text on its trigger words
func (s *Service) HighlightReview(ctx context.Context, id string) ([]textmatch.Segment, error) {
	r, err := s.triggerReview(ctx, id)
	if err != nil {
		return nil, err
	}
	return textmatch.Highlight(r.NoteText, r.TriggerWords), nil
}

// SubmitTriggerFeedback shows the reviewer's verdict right away and rolls
// it back when the data service refuses it.
func (s *Service) SubmitTriggerFeedback(ctx context.Context, id string, fb api.TriggerFeedback) error {
	if fb.Thumb < -1 || fb.Thumb > 1 {
		return fmt.Errorf("%w: thumb must be -1, 0 or 1, got %d", ErrInvalidInput, fb.Thumb)
	}
	if _, err := s.triggerReview(ctx, id); err != nil {
		return err
	}

	return optimistic.Update(ctx, s.cache, DataKey(TriggerWords),
		func(items []api.TriggerReview) []api.TriggerReview {
			return replace(items,
				func(r api.TriggerReview) bool { return r.ID == id },
				func(r api.TriggerReview) api.TriggerReview {
					r.Comment = fb.Comment
					r.Thumb = fb.Thumb
					return r
				})
		},
		func(ctx context.Context) error {
			return s.backend.SubmitTriggerFeedback(ctx, id, fb)
		},
		optimistic.Options{Notifier: s.notifier, Action: "save feedback"})
}
