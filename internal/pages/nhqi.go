package pages

import (
	"context"
	"math"

	"github.com/noah-analytics/noah-server/internal/api"
	"github.com/noah-analytics/noah-server/internal/table"
)

// Comparison of a measure score against the national average
const (
	Better = "better"
	Worse  = "worse"
	Same   = "same"
)

// comparisonTolerance treats scores this close to the average as equal
const comparisonTolerance = 0.005

func fetchMeasures(ctx context.Context, b Backend) ([]api.QualityMeasure, error) {
	return b.QualityMeasures(ctx, "")
}

// CompareMeasure rates a measure score against the national average,
// honoring measures where a lower score is better.
func CompareMeasure(m api.QualityMeasure) string {
	diff := m.Score - m.NationalAverage
	if math.Abs(diff) < comparisonTolerance {
		return Same
	}
	if (diff < 0) == m.LowerIsBetter {
		return Better
	}
	return Worse
}

func measureRow(m api.QualityMeasure) table.Row {
	return table.Row{
		"facility":         m.Facility,
		"state":            m.State,
		"measure":          m.Measure,
		"measure_type":     m.MeasureType,
		"quarter":          m.Quarter,
		"score":            m.Score,
		"national_average": m.NationalAverage,
		"state_average":    m.StateAverage,
		"comparison":       CompareMeasure(m),
	}
}

// MeasureSummary counts a facility's measures by comparison
type MeasureSummary struct {
	Facility string `json:"facility"`
	Better   int    `json:"better"`
	Worse    int    `json:"worse"`
	Same     int    `json:"same"`
}

// SummarizeMeasures counts how many of the facility's measures beat the
// national average. An empty facility summarizes every facility.
func (s *Service) SummarizeMeasures(ctx context.Context, facility string) (MeasureSummary, error) {
	items, err := data[api.QualityMeasure](ctx, s, NHQI)
	if err != nil {
		return MeasureSummary{}, err
	}

	sum := MeasureSummary{Facility: facility}
	for _, m := range items {
		if facility != "" && m.Facility != facility {
			continue
		}
		switch CompareMeasure(m) {
		case Better:
			sum.Better++
		case Worse:
			sum.Worse++
		default:
			sum.Same++
		}
	}
	return sum, nil
}
