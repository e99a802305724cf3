package pages

import (
	"context"
	"sort"
	"time"

	"github.com/noah-analytics/noah-server/internal/api"
	"github.com/noah-analytics/noah-server/internal/table"
)

func fetchCashflow(ctx context.Context, b Backend) ([]api.CashflowPoint, error) {
	return b.CashflowForecast(ctx, "")
}

func cashflowRow(p api.CashflowPoint) table.Row {
	var actual any
	if p.Actual != nil {
		actual = *p.Actual
	}
	return table.Row{
		"facility":  p.Facility,
		"date":      p.Date,
		"actual":    actual,
		"predicted": p.Predicted,
		"lower":     p.Lower,
		"upper":     p.Upper,
	}
}

// WeeklyTotal sums one week of the forecast. Actual covers only the days
// that already have an actual value.
type WeeklyTotal struct {
	WeekStart  time.Time `json:"week_start"`
	Actual     float64   `json:"actual"`
	ActualDays int       `json:"actual_days"`
	Predicted  float64   `json:"predicted"`
}

// weekStart returns the Monday starting the week of t
func weekStart(t time.Time) time.Time {
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// WeeklyTotals groups the forecast of facility (all facilities when empty)
// into weeks starting on Monday, oldest first.
func (s *Service) WeeklyTotals(ctx context.Context, facility string) ([]WeeklyTotal, error) {
	points, err := data[api.CashflowPoint](ctx, s, Cashflow)
	if err != nil {
		return nil, err
	}

	weeks := make(map[time.Time]*WeeklyTotal)
	for _, p := range points {
		if facility != "" && p.Facility != facility {
			continue
		}
		start := weekStart(p.Date)
		w, ok := weeks[start]
		if !ok {
			w = &WeeklyTotal{WeekStart: start}
			weeks[start] = w
		}
		w.Predicted += p.Predicted
		if p.Actual != nil {
			w.Actual += *p.Actual
			w.ActualDays++
		}
	}

	out := make([]WeeklyTotal, 0, len(weeks))
	for _, w := range weeks {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WeekStart.Before(out[j].WeekStart) })
	return out, nil
}
