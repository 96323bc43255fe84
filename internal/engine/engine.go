// Package engine runs walk-forward backtests: it plans folds over an aligned
// series set, evaluates every (series, fold) pair and aggregates the
// resulting metrics.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"foldcast/internal/domain"
	"foldcast/internal/estimator"
	"foldcast/internal/metric"
	"foldcast/internal/planner"
	"foldcast/internal/series"
	"foldcast/internal/telemetry"
)

// Config describes one backtest run.
type Config struct {
	InitialTrainSize int
	TestSize         int
	Step             int
	Refit            bool
	Gap              int

	ExogLag      int
	MinTrainSize int

	Estimator   estimator.Factory
	Metrics     []metric.Named
	Aggregation domain.Aggregation

	// ContinueOnError records failed folds and keeps going. When false the
	// first failure in (series, fold) order aborts the run.
	ContinueOnError bool
	// Workers > 1 evaluates folds concurrently. The result is identical to
	// a sequential run.
	Workers int
	// FoldTimeout bounds each fold. Zero disables it.
	FoldTimeout time.Duration
}

// Validate checks run parameters that do not depend on the data.
func (c Config) Validate() error {
	switch {
	case c.Estimator == nil:
		return fmt.Errorf("%w: no estimator factory", domain.ErrConfiguration)
	case len(c.Metrics) == 0:
		return fmt.Errorf("%w: at least one metric is required", domain.ErrConfiguration)
	case c.Aggregation != "" && !c.Aggregation.Valid():
		return fmt.Errorf("%w: unknown aggregation %q", domain.ErrConfiguration, c.Aggregation)
	case c.ExogLag < 0:
		return fmt.Errorf("%w: exog_lag must be >= 0, got %d", domain.ErrConfiguration, c.ExogLag)
	case c.MinTrainSize < 0:
		return fmt.Errorf("%w: min_train_size must be >= 0, got %d", domain.ErrConfiguration, c.MinTrainSize)
	case c.Workers < 0:
		return fmt.Errorf("%w: workers must be >= 0, got %d", domain.ErrConfiguration, c.Workers)
	case c.FoldTimeout < 0:
		return fmt.Errorf("%w: fold_timeout must be >= 0, got %s", domain.ErrConfiguration, c.FoldTimeout)
	}
	seen := make(map[string]struct{}, len(c.Metrics))
	for _, m := range c.Metrics {
		if m.Name == "" || m.Fn == nil {
			return fmt.Errorf("%w: metric %q is incomplete", domain.ErrConfiguration, m.Name)
		}
		if _, dup := seen[m.Name]; dup {
			return fmt.Errorf("%w: metric %q listed twice", domain.ErrConfiguration, m.Name)
		}
		seen[m.Name] = struct{}{}
	}
	return nil
}

func (c Config) planParams(total int) planner.Params {
	return planner.Params{
		TotalLength:      total,
		InitialTrainSize: c.InitialTrainSize,
		TestSize:         c.TestSize,
		Step:             c.Step,
		Refit:            c.Refit,
		Gap:              c.Gap,
	}
}

// Engine runs backtests. It holds no per-run state and may be shared.
type Engine struct {
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics records fold and run telemetry.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates an Engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		logger: slog.Default().With("component", "engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Plan returns the folds a run of cfg over set would evaluate.
func (e *Engine) Plan(set *series.Set, cfg Config) ([]domain.Fold, error) {
	return planner.PlanWith(cfg.planParams(set.Len()))
}

type task struct {
	seriesID string
	fold     domain.Fold
}

// Run evaluates every series of set on every planned fold and aggregates
// the metrics. Configuration errors are returned before any fold runs. With
// ContinueOnError false the first failing fold is returned as a
// *domain.FoldError. Cancelling ctx stops scheduling, waits for in-flight
// folds and returns the context error.
func (e *Engine) Run(ctx context.Context, set *series.Set, cfg Config) (result *domain.BacktestResult, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Aggregation == "" {
		cfg.Aggregation = domain.AggregateMean
	}
	folds, err := planner.PlanWith(cfg.planParams(set.Len()))
	if err != nil {
		return nil, err
	}

	ids := set.IDs()
	tasks := make([]task, 0, len(ids)*len(folds))
	for _, id := range ids {
		for _, f := range folds {
			tasks = append(tasks, task{seriesID: id, fold: f})
		}
	}

	started := time.Now()
	defer func() { e.metrics.ObserveRun(err, time.Since(started)) }()

	e.logger.Info("backtest starting",
		"series", len(ids),
		"folds", len(folds),
		"workers", max(cfg.Workers, 1),
		"refit", cfg.Refit,
	)

	ev := &Evaluator{
		MinTrainSize: cfg.MinTrainSize,
		ExogLag:      cfg.ExogLag,
		Timeout:      cfg.FoldTimeout,
	}
	results := make([]domain.FoldResult, len(tasks))
	errs := make([]error, len(tasks))

	if cfg.Workers <= 1 {
		err = e.runSequential(ctx, ev, set, cfg, tasks, results, errs)
	} else {
		err = e.runParallel(ctx, ev, set, cfg, tasks, results, errs)
	}
	if err != nil {
		return nil, err
	}

	out := &domain.BacktestResult{
		MetricNames: metricNames(cfg.Metrics),
		Aggregation: cfg.Aggregation,
		Folds:       results,
		Series:      summarize(ids, results, cfg.Metrics, cfg.Aggregation),
		Global:      aggregateFolds(results, cfg.Metrics, cfg.Aggregation),
		Pooled:      pooled(results, cfg.Metrics),
	}
	e.logger.Info("backtest finished",
		"folds", len(results),
		"failed", out.FailedFolds(),
		"elapsed", time.Since(started),
	)
	return out, nil
}

func (e *Engine) runSequential(
	ctx context.Context,
	ev *Evaluator,
	set *series.Set,
	cfg Config,
	tasks []task,
	results []domain.FoldResult,
	errs []error,
) error {
	for i, t := range tasks {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.evaluate(ctx, ev, set, cfg, t, &results[i], &errs[i])
		if err := ctx.Err(); err != nil {
			return err
		}
		if errs[i] != nil && !cfg.ContinueOnError {
			return &domain.FoldError{SeriesID: t.seriesID, Fold: t.fold.Index, Err: errs[i]}
		}
	}
	return nil
}

// runParallel evaluates tasks on a bounded pool. Without ContinueOnError,
// tasks after the earliest known failure are not scheduled; every task
// before it still runs so the reported failure matches a sequential run.
func (e *Engine) runParallel(
	ctx context.Context,
	ev *Evaluator,
	set *series.Set,
	cfg Config,
	tasks []task,
	results []domain.FoldResult,
	errs []error,
) error {
	var firstFailure atomic.Int64
	firstFailure.Store(int64(len(tasks)))

	var g errgroup.Group
	g.SetLimit(cfg.Workers)
	for i := range tasks {
		if ctx.Err() != nil || int64(i) > firstFailure.Load() {
			break
		}
		g.Go(func() error {
			if int64(i) > firstFailure.Load() {
				return nil
			}
			e.evaluate(ctx, ev, set, cfg, tasks[i], &results[i], &errs[i])
			if errs[i] != nil && !cfg.ContinueOnError {
				for {
					cur := firstFailure.Load()
					if int64(i) >= cur || firstFailure.CompareAndSwap(cur, int64(i)) {
						break
					}
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	if !cfg.ContinueOnError {
		for i, err := range errs {
			if err != nil {
				return &domain.FoldError{SeriesID: tasks[i].seriesID, Fold: tasks[i].fold.Index, Err: err}
			}
		}
	}
	return nil
}

func (e *Engine) evaluate(
	ctx context.Context,
	ev *Evaluator,
	set *series.Set,
	cfg Config,
	t task,
	res *domain.FoldResult,
	errp *error,
) {
	start := time.Now()
	*res, *errp = ev.Evaluate(ctx, set, t.seriesID, t.fold, cfg.Estimator, cfg.Metrics)
	if ctx.Err() != nil {
		return
	}
	e.metrics.ObserveFold(*res, time.Since(start))
	if *errp != nil {
		e.logger.Warn("fold failed",
			"series", t.seriesID,
			"fold", t.fold.Index,
			"kind", res.ErrorKind,
			"err", *errp,
		)
		return
	}
	e.logger.Debug("fold evaluated",
		"series", t.seriesID,
		"fold", t.fold.Index,
		"evaluated", res.Evaluated,
	)
}

func metricNames(metrics []metric.Named) []string {
	names := make([]string, len(metrics))
	for i, m := range metrics {
		names[i] = m.Name
	}
	return names
}
