// Package estimator defines the Estimator interface used by the backtest
// engine and provides a Registry of the built-in forecasting models.
package estimator

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"foldcast/internal/domain"
)

// Estimator is the interface that every forecasting model must implement.
// A value is used for exactly one fold: Fit once, then Predict.
type Estimator interface {
	// Fit trains on target values y. X holds one exog row per element of y,
	// or is nil when the run carries no exogenous features. Missing values
	// are NaN.
	Fit(ctx context.Context, y []float64, X [][]float64) error

	// Predict forecasts the next horizon steps after the training window.
	// X holds one exog row per step, or is nil.
	Predict(ctx context.Context, horizon int, X [][]float64) ([]float64, error)
}

// Factory returns a fresh, unfitted Estimator.
type Factory func() Estimator

// Params carries the tunables shared by the built-in estimators. Each
// estimator reads only the fields it needs.
type Params struct {
	Lags   int     `yaml:"lags"   json:"lags"`
	Alpha  float64 `yaml:"alpha"  json:"alpha"`
	Window int     `yaml:"window" json:"window"`
	Period int     `yaml:"period" json:"period"`
}

// Builder validates params and returns a Factory.
type Builder func(p Params) (Factory, error)

// Names of the built-in estimators.
const (
	Naive         = "naive"
	Mean          = "mean"
	SeasonalNaive = "seasonal-naive"
	LinearAR      = "linear-ar"
)

// ErrUnknown is returned by Build for a name that is not registered.
var ErrUnknown = fmt.Errorf("%w: unknown estimator", domain.ErrConfiguration)

// errNoObservations is returned by Fit when y has no observed values.
var errNoObservations = errors.New("no observed values to fit on")

// Registry holds a named collection of estimator builders for lookup and
// enumeration.
type Registry struct {
	builders map[string]Builder
}

// NewRegistry creates an empty estimator Registry.
func NewRegistry() *Registry {
	return &Registry{
		builders: make(map[string]Builder),
	}
}

// DefaultRegistry returns a new Registry holding the built-in estimators.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(Naive, func(Params) (Factory, error) {
		return func() Estimator { return &NaiveEstimator{} }, nil
	})
	r.Register(Mean, func(p Params) (Factory, error) {
		if p.Window < 0 {
			return nil, fmt.Errorf("%w: mean window must be >= 0, got %d", domain.ErrConfiguration, p.Window)
		}
		return func() Estimator { return &MeanEstimator{Window: p.Window} }, nil
	})
	r.Register(SeasonalNaive, func(p Params) (Factory, error) {
		if p.Period < 1 {
			return nil, fmt.Errorf("%w: seasonal period must be >= 1, got %d", domain.ErrConfiguration, p.Period)
		}
		return func() Estimator { return &SeasonalNaiveEstimator{Period: p.Period} }, nil
	})
	r.Register(LinearAR, func(p Params) (Factory, error) {
		if p.Lags < 1 {
			return nil, fmt.Errorf("%w: linear-ar lags must be >= 1, got %d", domain.ErrConfiguration, p.Lags)
		}
		if p.Alpha < 0 {
			return nil, fmt.Errorf("%w: linear-ar alpha must be >= 0, got %v", domain.ErrConfiguration, p.Alpha)
		}
		return func() Estimator { return &LinearAREstimator{Lags: p.Lags, Alpha: p.Alpha} }, nil
	})
	return r
}

// Register adds or replaces the builder stored under name.
func (r *Registry) Register(name string, b Builder) {
	r.builders[name] = b
}

// Get retrieves a builder by name. The second return value indicates whether
// the builder was found.
func (r *Registry) Get(name string) (Builder, bool) {
	b, ok := r.builders[name]
	return b, ok
}

// List returns a sorted slice of all registered estimator names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build looks up name and applies params.
func (r *Registry) Build(name string, p Params) (Factory, error) {
	b, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w %q (known: %v)", ErrUnknown, name, r.List())
	}
	return b(p)
}
