package estimator

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Compile-time interface checks.
var (
	_ Estimator = (*NaiveEstimator)(nil)
	_ Estimator = (*MeanEstimator)(nil)
	_ Estimator = (*SeasonalNaiveEstimator)(nil)
)

// NaiveEstimator repeats the last observed value.
type NaiveEstimator struct {
	last   float64
	fitted bool
}

// Fit implements Estimator. Exog is ignored.
func (e *NaiveEstimator) Fit(ctx context.Context, y []float64, _ [][]float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for i := len(y) - 1; i >= 0; i-- {
		if !math.IsNaN(y[i]) {
			e.last, e.fitted = y[i], true
			return nil
		}
	}
	return errNoObservations
}

// Predict implements Estimator.
func (e *NaiveEstimator) Predict(ctx context.Context, horizon int, _ [][]float64) ([]float64, error) {
	if err := checkPredict(ctx, e.fitted, horizon); err != nil {
		return nil, err
	}
	return repeat(e.last, horizon), nil
}

// MeanEstimator forecasts the mean of the last Window observed values, or of
// every observed value when Window is 0.
type MeanEstimator struct {
	Window int

	mean   float64
	fitted bool
}

// Fit implements Estimator. Exog is ignored.
func (e *MeanEstimator) Fit(ctx context.Context, y []float64, _ [][]float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	observed := make([]float64, 0, len(y))
	for i := len(y) - 1; i >= 0; i-- {
		if math.IsNaN(y[i]) {
			continue
		}
		observed = append(observed, y[i])
		if e.Window > 0 && len(observed) == e.Window {
			break
		}
	}
	if len(observed) == 0 {
		return errNoObservations
	}
	e.mean, e.fitted = stat.Mean(observed, nil), true
	return nil
}

// Predict implements Estimator.
func (e *MeanEstimator) Predict(ctx context.Context, horizon int, _ [][]float64) ([]float64, error) {
	if err := checkPredict(ctx, e.fitted, horizon); err != nil {
		return nil, err
	}
	return repeat(e.mean, horizon), nil
}

// SeasonalNaiveEstimator repeats the value observed one Period earlier. When
// that value is missing it walks back whole periods until it finds one.
type SeasonalNaiveEstimator struct {
	Period int

	history []float64
}

// Fit implements Estimator. Exog is ignored.
func (e *SeasonalNaiveEstimator) Fit(ctx context.Context, y []float64, _ [][]float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.Period < 1 {
		return fmt.Errorf("seasonal period must be >= 1, got %d", e.Period)
	}
	if len(y) < e.Period {
		return fmt.Errorf("need at least one full period (%d) of history, got %d", e.Period, len(y))
	}
	e.history = append([]float64(nil), y...)
	return nil
}

// Predict implements Estimator.
func (e *SeasonalNaiveEstimator) Predict(ctx context.Context, horizon int, _ [][]float64) ([]float64, error) {
	if err := checkPredict(ctx, e.history != nil, horizon); err != nil {
		return nil, err
	}
	n := len(e.history)
	out := make([]float64, horizon)
	for h := range out {
		// Position of the same season in the last observed period.
		p := n - e.Period + h%e.Period
		for p >= 0 && math.IsNaN(e.history[p]) {
			p -= e.Period
		}
		if p < 0 {
			return nil, fmt.Errorf("no observed value for season %d", h%e.Period)
		}
		out[h] = e.history[p]
	}
	return out, nil
}

func checkPredict(ctx context.Context, fitted bool, horizon int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !fitted {
		return fmt.Errorf("predict called before fit")
	}
	if horizon < 1 {
		return fmt.Errorf("horizon must be >= 1, got %d", horizon)
	}
	return nil
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
