package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"foldcast/internal/domain"
	"foldcast/internal/engine"
	"foldcast/internal/estimator"
	"foldcast/internal/fixture"
	"foldcast/internal/gather"
	"foldcast/internal/metric"
	"foldcast/internal/series"
	"foldcast/internal/store"
)

// FixtureDataset names the built-in fixture, served when no stored dataset
// of that name exists.
const FixtureDataset = "fixture"

// inlineDataset is recorded as the dataset name of runs over inline series.
const inlineDataset = "inline"

// Service resolves requests into aligned series and engine configurations,
// runs them and records the results. It is shared by the HTTP and gRPC
// surfaces and by the CLI.
type Service struct {
	engine     *engine.Engine
	datasets   store.DatasetStore
	runs       store.RunStore
	folds      store.FoldStore
	metrics    *metric.Registry
	estimators *estimator.Registry
	log        *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithDatasets enables named datasets.
func WithDatasets(ds store.DatasetStore) ServiceOption {
	return func(s *Service) { s.datasets = ds }
}

// WithRunStore records persisted runs.
func WithRunStore(rs store.RunStore) ServiceOption {
	return func(s *Service) { s.runs = rs }
}

// WithFoldStore exports the folds of persisted runs.
func WithFoldStore(fs store.FoldStore) ServiceOption {
	return func(s *Service) { s.folds = fs }
}

// WithMetricRegistry replaces the metric registry.
func WithMetricRegistry(r *metric.Registry) ServiceOption {
	return func(s *Service) { s.metrics = r }
}

// WithEstimatorRegistry replaces the estimator registry.
func WithEstimatorRegistry(r *estimator.Registry) ServiceOption {
	return func(s *Service) { s.estimators = r }
}

// NewService creates a Service around eng. The default metric registry
// holds the built-in metrics plus the fixture's custom metric.
func NewService(eng *engine.Engine, opts ...ServiceOption) *Service {
	metrics := metric.DefaultRegistry()
	fixture.Register(metrics)
	s := &Service{
		engine:     eng,
		metrics:    metrics,
		estimators: estimator.DefaultRegistry(),
		log:        slog.Default().With("component", "service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Outcome is the result of Service.Run.
type Outcome struct {
	RunID   string
	Dataset string
	Length  int
	Result  *domain.BacktestResult
}

// View converts o for JSON encoding.
func (o *Outcome) View() ResultView {
	v := NewResultView(o.Result)
	v.RunID = o.RunID
	v.Dataset = o.Dataset
	v.Length = o.Length
	return v
}

// Run executes the backtest described by req. With req.Persist set and a
// RunStore configured, the run is recorded and its folds exported.
func (s *Service) Run(ctx context.Context, req Request) (*Outcome, error) {
	name, set, err := s.load(ctx, req)
	if err != nil {
		return nil, err
	}
	cfg, err := s.engineConfig(req)
	if err != nil {
		return nil, err
	}

	res, err := s.engine.Run(ctx, set, cfg)
	if err != nil {
		return nil, err
	}
	out := &Outcome{Dataset: name, Length: set.Len(), Result: res}

	if req.Persist && s.runs != nil {
		run := &store.Run{
			Dataset:   name,
			Estimator: req.Estimator.Name,
			Config:    req.settings(),
			Result:    res,
		}
		if err := s.runs.SaveRun(ctx, run); err != nil {
			return nil, fmt.Errorf("saving run: %w", err)
		}
		out.RunID = run.ID
		if s.folds != nil {
			if err := s.folds.WriteFolds(ctx, run.ID, res.Folds); err != nil {
				return nil, fmt.Errorf("exporting folds: %w", err)
			}
		}
		s.log.Info("run saved", "run", run.ID, "dataset", name, "folds", len(res.Folds))
	}
	return out, nil
}

// Plan returns the folds req would evaluate without running anything.
func (s *Service) Plan(ctx context.Context, req Request) (*PlanView, error) {
	_, set, err := s.load(ctx, req)
	if err != nil {
		return nil, err
	}
	b := req.Backtest
	folds, err := s.engine.Plan(set, engine.Config{
		InitialTrainSize: b.InitialTrainSize,
		TestSize:         b.TestSize,
		Step:             b.Step,
		Refit:            b.Refit,
		Gap:              b.Gap,
	})
	if err != nil {
		return nil, err
	}
	return &PlanView{Length: set.Len(), Series: set.IDs(), Folds: folds}, nil
}

// ListRuns returns recent runs, newest first.
func (s *Service) ListRuns(ctx context.Context, limit int) ([]store.Run, error) {
	if s.runs == nil {
		return nil, nil
	}
	return s.runs.ListRuns(ctx, limit)
}

// GetRun returns a stored run with its summaries and, when exported, its
// folds.
func (s *Service) GetRun(ctx context.Context, id string) (*store.Run, error) {
	if s.runs == nil {
		return nil, fmt.Errorf("run %s: %w", id, store.ErrNotFound)
	}
	run, err := s.runs.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.folds != nil {
		folds, err := s.folds.ReadFolds(ctx, id)
		switch {
		case err == nil:
			run.Result.Folds = folds
		case !errors.Is(err, store.ErrNotFound):
			return nil, err
		}
	}
	return run, nil
}

// Datasets lists the stored datasets.
func (s *Service) Datasets(ctx context.Context) ([]string, error) {
	if s.datasets == nil {
		return nil, nil
	}
	return s.datasets.ListDatasets(ctx)
}

// source picks where the series of req come from.
func (s *Service) source(ctx context.Context, req Request) (string, gather.Source, error) {
	switch {
	case req.Dataset != "" && len(req.Series) > 0:
		return "", nil, fmt.Errorf("%w: dataset and inline series are mutually exclusive", domain.ErrConfiguration)
	case len(req.Series) > 0:
		return inlineDataset, inlineSource{req}, nil
	case req.Dataset == "":
		return "", nil, fmt.Errorf("%w: no dataset or series given", domain.ErrConfiguration)
	}

	if s.datasets != nil {
		names, err := s.datasets.ListDatasets(ctx)
		if err != nil {
			return "", nil, err
		}
		for _, n := range names {
			if n == req.Dataset {
				return n, &gather.StoreSource{Store: s.datasets, Dataset: n}, nil
			}
		}
	}
	if req.Dataset == FixtureDataset {
		return FixtureDataset, gather.FixtureSource{}, nil
	}
	return "", nil, fmt.Errorf("dataset %q: %w", req.Dataset, store.ErrNotFound)
}

func (s *Service) load(ctx context.Context, req Request) (string, *series.Set, error) {
	name, src, err := s.source(ctx, req)
	if err != nil {
		return "", nil, err
	}
	ds, err := src.Fetch(ctx)
	if err != nil {
		return "", nil, err
	}
	// An intersection shorter than the first training window is a misalignment.
	set, err := series.Align(ds.Series, ds.Exog, series.AlignOptions{
		Mode:      series.AlignMode(req.Align.Mode),
		Frequency: req.Align.Frequency,
		MinLength: max(req.Align.MinLength, req.Backtest.InitialTrainSize),
		MaxLength: req.Align.MaxLength,
		Impute:    series.Impute(req.Align.Impute),
	})
	if err != nil {
		return "", nil, err
	}
	return name, set, nil
}

func (s *Service) engineConfig(req Request) (engine.Config, error) {
	b := req.Backtest
	if err := b.Validate(); err != nil {
		return engine.Config{}, err
	}
	timeout, err := b.Timeout()
	if err != nil {
		return engine.Config{}, err
	}
	metrics, err := s.metrics.Resolve(b.Metrics)
	if err != nil {
		return engine.Config{}, err
	}
	e := req.Estimator
	factory, err := s.estimators.Build(e.Name, estimator.Params{
		Lags:   e.Lags,
		Alpha:  e.Alpha,
		Window: e.Window,
		Period: e.Period,
	})
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		InitialTrainSize: b.InitialTrainSize,
		TestSize:         b.TestSize,
		Step:             b.Step,
		Refit:            b.Refit,
		Gap:              b.Gap,
		ExogLag:          b.ExogLag,
		MinTrainSize:     b.MinTrainSize,
		Estimator:        factory,
		Metrics:          metrics,
		Aggregation:      domain.Aggregation(b.Aggregation),
		ContinueOnError:  b.ContinueOnError,
		Workers:          b.Workers,
		FoldTimeout:      timeout,
	}, nil
}

// inlineSource serves the series carried by a request.
type inlineSource struct {
	req Request
}

func (inlineSource) Name() string { return inlineDataset }

func (s inlineSource) Fetch(_ context.Context) (*store.Dataset, error) {
	ds := &store.Dataset{}
	for _, in := range s.req.Series {
		vals := floats(in.Values)
		if len(in.Index) == 0 {
			ds.Series = append(ds.Series, series.FromValues(in.ID, vals))
			continue
		}
		ds.Series = append(ds.Series, series.Series{ID: in.ID, Index: append([]int64(nil), in.Index...), Values: vals})
	}
	if x := s.req.Exog; x != nil {
		cols := make([][]float64, len(x.Columns))
		for j, c := range x.Columns {
			cols[j] = floats(c)
		}
		var (
			table *series.ExogTable
			err   error
		)
		if len(x.Index) == 0 {
			table, err = series.PositionalExog(x.Names, cols)
		} else {
			table, err = series.NewExogTable(x.Index, x.Names, cols)
		}
		if err != nil {
			return nil, err
		}
		ds.Exog = table
	}
	return ds, nil
}
