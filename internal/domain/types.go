// Package domain defines the core value types shared across the backtesting
// system: folds, per-fold results, and aggregated backtest results.
package domain

// Fold is one train/test split expressed as half-open positions into the
// master index of a series set. Train covers [TrainStart, TrainEnd) and test
// covers [TestStart, TestEnd).
type Fold struct {
	Index      int `json:"index"`
	TrainStart int `json:"train_start"`
	TrainEnd   int `json:"train_end"`
	TestStart  int `json:"test_start"`
	TestEnd    int `json:"test_end"`
}

// TrainSize returns the number of positions in the training window.
func (f Fold) TrainSize() int { return f.TrainEnd - f.TrainStart }

// TestSize returns the number of positions in the test window.
func (f Fold) TestSize() int { return f.TestEnd - f.TestStart }

// FoldStatus marks whether a fold produced usable metrics.
type FoldStatus string

const (
	FoldStatusOK     FoldStatus = "ok"
	FoldStatusFailed FoldStatus = "failed"
)

// ErrorKind classifies a per-fold failure.
type ErrorKind string

const (
	ErrorKindNone             ErrorKind = ""
	ErrorKindInsufficientData ErrorKind = "insufficient_data"
	ErrorKindFoldTimeout      ErrorKind = "fold_timeout"
	ErrorKindEstimator        ErrorKind = "estimator"
	ErrorKindMetric           ErrorKind = "metric"
)

// FoldResult is the outcome of evaluating one series on one fold. Missing
// true values are NaN. Failed folds carry no metrics.
type FoldResult struct {
	SeriesID  string             `json:"series_id"`
	Fold      Fold               `json:"fold"`
	Status    FoldStatus         `json:"status"`
	YTrue     []float64          `json:"y_true,omitempty"`
	YPred     []float64          `json:"y_pred,omitempty"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
	Evaluated int                `json:"evaluated"` // observed test points scored
	ErrorKind ErrorKind          `json:"error_kind,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// OK reports whether the fold was evaluated successfully.
func (r FoldResult) OK() bool { return r.Status == FoldStatusOK }

// Aggregation selects how fold metrics are combined.
type Aggregation string

const (
	AggregateMean     Aggregation = "mean"
	AggregateMedian   Aggregation = "median"
	AggregateWeighted Aggregation = "weighted" // weighted by evaluated test points
)

// Valid reports whether a is a known aggregation mode.
func (a Aggregation) Valid() bool {
	switch a {
	case AggregateMean, AggregateMedian, AggregateWeighted:
		return true
	}
	return false
}

// SeriesSummary aggregates the fold metrics of a single series.
type SeriesSummary struct {
	SeriesID    string             `json:"series_id"`
	Folds       int                `json:"folds"`
	FailedFolds int                `json:"failed_folds"`
	Metrics     map[string]float64 `json:"metrics"`
}

// BacktestResult is the full output of a backtest run. Folds are ordered by
// series insertion order and then by fold index.
type BacktestResult struct {
	MetricNames []string           `json:"metric_names"`
	Aggregation Aggregation        `json:"aggregation"`
	Folds       []FoldResult       `json:"folds"`
	Series      []SeriesSummary    `json:"series"`
	Global      map[string]float64 `json:"global"`
	Pooled      map[string]float64 `json:"pooled"`
}

// FailedFolds returns the number of failed folds across all series.
func (r *BacktestResult) FailedFolds() int {
	n := 0
	for _, f := range r.Folds {
		if !f.OK() {
			n++
		}
	}
	return n
}

// Summary returns the summary for series id, if present.
func (r *BacktestResult) Summary(id string) (SeriesSummary, bool) {
	for _, s := range r.Series {
		if s.SeriesID == id {
			return s, true
		}
	}
	return SeriesSummary{}, false
}
