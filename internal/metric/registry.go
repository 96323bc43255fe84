package metric

import (
	"fmt"
	"sort"

	"foldcast/internal/domain"
)

// Names of the built-in metrics.
const (
	MAE    = "mean_absolute_error"
	MSE    = "mean_squared_error"
	RMSE   = "root_mean_squared_error"
	MAPE   = "mean_absolute_percentage_error"
	SMAPE  = "symmetric_mean_absolute_percentage_error"
	MaxAbs = "max_error"
)

// ErrUnknown is returned by Resolve for a name that is not registered.
var ErrUnknown = fmt.Errorf("%w: unknown metric", domain.ErrConfiguration)

// Registry holds a named collection of metrics for lookup and enumeration.
type Registry struct {
	metrics map[string]Func
}

// NewRegistry creates an empty metric Registry.
func NewRegistry() *Registry {
	return &Registry{
		metrics: make(map[string]Func),
	}
}

// DefaultRegistry returns a new Registry holding the built-in metrics.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(MAE, MeanAbsoluteError)
	r.Register(MSE, MeanSquaredError)
	r.Register(RMSE, RootMeanSquaredError)
	r.Register(MAPE, MeanAbsolutePercentageError)
	r.Register(SMAPE, SymmetricMeanAbsolutePercentageError)
	r.Register(MaxAbs, MaxError)
	return r
}

// Register adds or replaces the metric stored under name.
func (r *Registry) Register(name string, fn Func) {
	r.metrics[name] = fn
}

// Get retrieves a metric by name. The second return value indicates whether
// the metric was found.
func (r *Registry) Get(name string) (Func, bool) {
	fn, ok := r.metrics[name]
	return fn, ok
}

// List returns a sorted slice of all registered metric names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.metrics))
	for name := range r.metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve looks up names in order. Unknown or repeated names are
// configuration errors.
func (r *Registry) Resolve(names []string) ([]Named, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: at least one metric is required", domain.ErrConfiguration)
	}
	out := make([]Named, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: metric %q listed twice", domain.ErrConfiguration, name)
		}
		seen[name] = struct{}{}
		fn, ok := r.Get(name)
		if !ok {
			return nil, fmt.Errorf("%w %q (known: %v)", ErrUnknown, name, r.List())
		}
		out = append(out, Named{Name: name, Fn: fn})
	}
	return out, nil
}
