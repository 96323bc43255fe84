package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestTypesExist(t *testing.T) {
	// Verify Fold can be instantiated with zero values.
	f := Fold{}
	if f.TrainSize() != 0 || f.TestSize() != 0 {
		t.Error("expected zero sizes for zero-value Fold")
	}

	f = Fold{Index: 1, TrainStart: 5, TrainEnd: 45, TestStart: 45, TestEnd: 50}
	if f.TrainSize() != 40 {
		t.Errorf("TrainSize() = %d, want %d", f.TrainSize(), 40)
	}
	if f.TestSize() != 5 {
		t.Errorf("TestSize() = %d, want %d", f.TestSize(), 5)
	}

	// Verify enum constants are defined correctly.
	if FoldStatusOK != "ok" || FoldStatusFailed != "failed" {
		t.Error("FoldStatus constants have unexpected values")
	}
	if AggregateMean != "mean" || AggregateMedian != "median" || AggregateWeighted != "weighted" {
		t.Error("Aggregation constants have unexpected values")
	}
	if !AggregateWeighted.Valid() {
		t.Error("AggregateWeighted should be valid")
	}
	if Aggregation("mode").Valid() {
		t.Error(`Aggregation("mode") should not be valid`)
	}
}

func TestBacktestResultHelpers(t *testing.T) {
	r := &BacktestResult{
		Folds: []FoldResult{
			{SeriesID: "l1", Status: FoldStatusOK},
			{SeriesID: "l1", Status: FoldStatusFailed, ErrorKind: ErrorKindEstimator},
			{SeriesID: "l2", Status: FoldStatusOK},
		},
		Series: []SeriesSummary{
			{SeriesID: "l1", Folds: 2, FailedFolds: 1},
			{SeriesID: "l2", Folds: 1},
		},
	}

	if got := r.FailedFolds(); got != 1 {
		t.Errorf("FailedFolds() = %d, want %d", got, 1)
	}

	s, ok := r.Summary("l1")
	if !ok {
		t.Fatal("Summary(l1) not found")
	}
	if s.FailedFolds != 1 {
		t.Errorf("Summary(l1).FailedFolds = %d, want %d", s.FailedFolds, 1)
	}
	if _, ok := r.Summary("l3"); ok {
		t.Error("Summary(l3) should not be found")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{nil, ErrorKindNone},
		{fmt.Errorf("train window: %w", ErrInsufficientData), ErrorKindInsufficientData},
		{fmt.Errorf("after 1s: %w", ErrFoldTimeout), ErrorKindFoldTimeout},
		{fmt.Errorf("fit: %w", ErrEstimator), ErrorKindEstimator},
		{fmt.Errorf("%w: mean_absolute_error: empty input", ErrMetric), ErrorKindMetric},
		{context.Canceled, ErrorKindEstimator},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestFoldErrorUnwrap(t *testing.T) {
	err := error(&FoldError{SeriesID: "l2", Fold: 3, Err: fmt.Errorf("fit: %w", ErrEstimator)})

	if !errors.Is(err, ErrEstimator) {
		t.Error("FoldError should unwrap to ErrEstimator")
	}
	var fe *FoldError
	if !errors.As(err, &fe) {
		t.Fatal("errors.As failed for *FoldError")
	}
	if fe.SeriesID != "l2" || fe.Fold != 3 {
		t.Errorf("FoldError = %+v, want series l2 fold 3", fe)
	}
	want := `series "l2" fold 3: fit: estimator error`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
