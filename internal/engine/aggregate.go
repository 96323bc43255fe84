package engine

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"foldcast/internal/domain"
	"foldcast/internal/metric"
)

// combine reduces per-fold metric values. weights are the evaluated point
// counts and are only used by AggregateWeighted.
func combine(values, weights []float64, agg domain.Aggregation) float64 {
	switch agg {
	case domain.AggregateMedian:
		return median(values)
	case domain.AggregateWeighted:
		return stat.Mean(values, weights)
	default:
		return stat.Mean(values, nil)
	}
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// aggregateFolds combines the metrics of the successful folds in results.
// It returns an empty map when no fold succeeded.
func aggregateFolds(results []domain.FoldResult, metrics []metric.Named, agg domain.Aggregation) map[string]float64 {
	out := make(map[string]float64, len(metrics))
	var weights []float64
	for _, r := range results {
		if r.OK() {
			weights = append(weights, float64(r.Evaluated))
		}
	}
	if len(weights) == 0 {
		return out
	}
	for _, m := range metrics {
		values := make([]float64, 0, len(weights))
		for _, r := range results {
			if r.OK() {
				values = append(values, r.Metrics[m.Name])
			}
		}
		out[m.Name] = combine(values, weights, agg)
	}
	return out
}

// summarize builds one SeriesSummary per id, in the order given.
func summarize(ids []string, results []domain.FoldResult, metrics []metric.Named, agg domain.Aggregation) []domain.SeriesSummary {
	bySeries := make(map[string][]domain.FoldResult, len(ids))
	for _, r := range results {
		bySeries[r.SeriesID] = append(bySeries[r.SeriesID], r)
	}
	out := make([]domain.SeriesSummary, 0, len(ids))
	for _, id := range ids {
		folds := bySeries[id]
		failed := 0
		for _, r := range folds {
			if !r.OK() {
				failed++
			}
		}
		out = append(out, domain.SeriesSummary{
			SeriesID:    id,
			Folds:       len(folds),
			FailedFolds: failed,
			Metrics:     aggregateFolds(folds, metrics, agg),
		})
	}
	return out
}

// pooled recomputes every metric once over the observed test points of all
// successful folds, concatenated in result order. Metrics that fail on the
// pooled input are left out.
func pooled(results []domain.FoldResult, metrics []metric.Named) map[string]float64 {
	var yTrue, yPred []float64
	for _, r := range results {
		if !r.OK() {
			continue
		}
		for i, v := range r.YTrue {
			if math.IsNaN(v) {
				continue
			}
			yTrue = append(yTrue, v)
			yPred = append(yPred, r.YPred[i])
		}
	}
	out := make(map[string]float64, len(metrics))
	if len(yTrue) == 0 {
		return out
	}
	for _, m := range metrics {
		if v, err := m.Fn(yTrue, yPred); err == nil {
			out[m.Name] = v
		}
	}
	return out
}
