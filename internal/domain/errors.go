package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors. Callers match them with errors.Is; producers wrap them
// with fmt.Errorf("...: %w", Err...) to add detail.
var (
	// ErrConfiguration reports invalid planner or run parameters. Always
	// raised before any fold runs.
	ErrConfiguration = errors.New("configuration error")

	// ErrMisalignedSeries reports input series or exogenous data that cannot
	// be aligned on a common index.
	ErrMisalignedSeries = errors.New("misaligned series")

	// ErrInsufficientData reports a fold whose train or test window holds
	// too few observed points.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrFoldTimeout reports a fold that exceeded the per-fold deadline.
	ErrFoldTimeout = errors.New("fold timeout")

	// ErrEstimator wraps any failure of an estimator's Fit or Predict.
	ErrEstimator = errors.New("estimator error")

	// ErrMetric reports a metric that could not score a fold's forecast.
	ErrMetric = errors.New("metric error")
)

// FoldError attaches fold context to a per-fold failure.
type FoldError struct {
	SeriesID string
	Fold     int
	Err      error
}

func (e *FoldError) Error() string {
	return fmt.Sprintf("series %q fold %d: %v", e.SeriesID, e.Fold, e.Err)
}

func (e *FoldError) Unwrap() error { return e.Err }

// KindOf maps a per-fold error to its ErrorKind. Errors outside the per-fold
// taxonomy are reported as estimator failures.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrorKindNone
	case errors.Is(err, ErrFoldTimeout):
		return ErrorKindFoldTimeout
	case errors.Is(err, ErrInsufficientData):
		return ErrorKindInsufficientData
	case errors.Is(err, ErrMetric):
		return ErrorKindMetric
	default:
		return ErrorKindEstimator
	}
}
