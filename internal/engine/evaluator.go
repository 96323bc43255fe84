package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"foldcast/internal/domain"
	"foldcast/internal/estimator"
	"foldcast/internal/metric"
	"foldcast/internal/series"
)

// Evaluator fits and scores a single (series, fold) pair. It holds no state
// between calls and is safe for concurrent use.
type Evaluator struct {
	// MinTrainSize is the minimum number of observed training values. Values
	// below 1 are treated as 1.
	MinTrainSize int
	// ExogLag shifts exog rows back by this many positions relative to the
	// target.
	ExogLag int
	// Timeout bounds Fit plus Predict. Zero disables it.
	Timeout time.Duration
}

// Evaluate trains a fresh estimator on the fold's training window and scores
// its forecast over the test window. Test positions with a missing true
// value are excluded from the metrics.
//
// On failure the returned FoldResult is already marked failed and the error
// wraps ErrInsufficientData, ErrFoldTimeout, ErrEstimator or ErrMetric.
// Cancellation of ctx itself is returned unwrapped.
func (ev *Evaluator) Evaluate(
	ctx context.Context,
	set *series.Set,
	seriesID string,
	fold domain.Fold,
	factory estimator.Factory,
	metrics []metric.Named,
) (domain.FoldResult, error) {
	res, err := ev.evaluate(ctx, set, seriesID, fold, factory, metrics)
	if err != nil {
		return failedResult(seriesID, fold, err), err
	}
	return res, nil
}

func (ev *Evaluator) evaluate(
	ctx context.Context,
	set *series.Set,
	seriesID string,
	fold domain.Fold,
	factory estimator.Factory,
	metrics []metric.Named,
) (domain.FoldResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.FoldResult{}, err
	}

	yTrain, err := set.Slice(seriesID, fold.TrainStart, fold.TrainEnd)
	if err != nil {
		return domain.FoldResult{}, fmt.Errorf("%w: %v", domain.ErrInsufficientData, err)
	}
	yTest, err := set.Slice(seriesID, fold.TestStart, fold.TestEnd)
	if err != nil {
		return domain.FoldResult{}, fmt.Errorf("%w: %v", domain.ErrInsufficientData, err)
	}

	minTrain := max(ev.MinTrainSize, 1)
	if n := series.CountObserved(yTrain); n < minTrain {
		return domain.FoldResult{}, fmt.Errorf("%w: %d observed training values, need %d",
			domain.ErrInsufficientData, n, minTrain)
	}
	if series.CountObserved(yTest) == 0 {
		return domain.FoldResult{}, fmt.Errorf("%w: no observed test values", domain.ErrInsufficientData)
	}

	xTrain, err := set.SliceExog(fold.TrainStart, fold.TrainEnd, ev.ExogLag)
	if err != nil {
		return domain.FoldResult{}, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	// With a gap the estimator forecasts from the end of training through the
	// test window; the gap steps are dropped before scoring.
	gap := fold.TestStart - fold.TrainEnd
	xFuture, err := set.SliceExog(fold.TrainEnd, fold.TestEnd, ev.ExogLag)
	if err != nil {
		return domain.FoldResult{}, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}

	full, err := ev.forecast(ctx, factory, yTrain, xTrain, xFuture, gap+len(yTest))
	if err != nil {
		return domain.FoldResult{}, err
	}
	yPred := full[gap:]

	trueObs := make([]float64, 0, len(yTest))
	predObs := make([]float64, 0, len(yTest))
	for i, v := range yTest {
		if math.IsNaN(v) {
			continue
		}
		if math.IsNaN(yPred[i]) {
			return domain.FoldResult{}, fmt.Errorf("%w: prediction %d is NaN", domain.ErrEstimator, i)
		}
		trueObs = append(trueObs, v)
		predObs = append(predObs, yPred[i])
	}

	scores := make(map[string]float64, len(metrics))
	for _, m := range metrics {
		v, err := m.Fn(trueObs, predObs)
		if err != nil {
			return domain.FoldResult{}, fmt.Errorf("%w: %s: %w", domain.ErrMetric, m.Name, err)
		}
		scores[m.Name] = v
	}

	return domain.FoldResult{
		SeriesID:  seriesID,
		Fold:      fold,
		Status:    domain.FoldStatusOK,
		YTrue:     yTest,
		YPred:     yPred,
		Metrics:   scores,
		Evaluated: len(trueObs),
	}, nil
}

type forecastResult struct {
	pred []float64
	err  error
}

// forecast runs Fit and Predict under the per-fold deadline. The estimator
// receives the deadline through its context; an estimator that ignores it
// is abandoned once the deadline passes.
func (ev *Evaluator) forecast(
	ctx context.Context,
	factory estimator.Factory,
	yTrain []float64,
	xTrain, xTest [][]float64,
	horizon int,
) ([]float64, error) {
	fctx := ctx
	if ev.Timeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, ev.Timeout)
		defer cancel()
	}

	done := make(chan forecastResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- forecastResult{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		est := factory()
		if err := est.Fit(fctx, yTrain, xTrain); err != nil {
			done <- forecastResult{err: fmt.Errorf("fit: %w", err)}
			return
		}
		pred, err := est.Predict(fctx, horizon, xTest)
		if err != nil {
			err = fmt.Errorf("predict: %w", err)
		}
		done <- forecastResult{pred: pred, err: err}
	}()

	var out forecastResult
	select {
	case out = <-done:
		if out.err == nil {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if errors.Is(fctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: exceeded %s", domain.ErrFoldTimeout, ev.Timeout)
		}
	case <-fctx.Done():
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: exceeded %s", domain.ErrFoldTimeout, ev.Timeout)
	}

	if out.err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEstimator, out.err)
	}
	if len(out.pred) != horizon {
		return nil, fmt.Errorf("%w: predicted %d values for a horizon of %d",
			domain.ErrEstimator, len(out.pred), horizon)
	}
	return out.pred, nil
}

func failedResult(seriesID string, fold domain.Fold, err error) domain.FoldResult {
	return domain.FoldResult{
		SeriesID:  seriesID,
		Fold:      fold,
		Status:    domain.FoldStatusFailed,
		ErrorKind: domain.KindOf(err),
		Error:     err.Error(),
	}
}
