// Package store defines storage interfaces for datasets, backtest runs and
// per-fold results, with Parquet and SQLite implementations.
package store

import (
	"context"
	"errors"
	"time"

	"foldcast/internal/domain"
	"foldcast/internal/series"
)

// ErrNotFound is returned when a dataset or run does not exist.
var ErrNotFound = errors.New("not found")

// Dataset is a set of target series plus optional shared exog features.
type Dataset struct {
	Series []series.Series
	Exog   *series.ExogTable
}

// DatasetStore persists and retrieves named datasets.
type DatasetStore interface {
	// WriteDataset replaces the dataset stored under name.
	WriteDataset(ctx context.Context, name string, ds Dataset) error

	// ReadDataset returns the dataset stored under name, or ErrNotFound.
	ReadDataset(ctx context.Context, name string) (*Dataset, error)

	// ListDatasets returns the names of all stored datasets, sorted.
	ListDatasets(ctx context.Context) ([]string, error)
}

// FoldStore persists the per-fold results of a run.
type FoldStore interface {
	// WriteFolds stores the fold results of runID.
	WriteFolds(ctx context.Context, runID string, folds []domain.FoldResult) error

	// ReadFolds returns the fold results of runID in their original order.
	ReadFolds(ctx context.Context, runID string) ([]domain.FoldResult, error)
}

// Run is one recorded backtest.
type Run struct {
	ID        string
	CreatedAt time.Time
	Dataset   string
	Estimator string
	// Config is the JSON encoding of the request that produced the run.
	Config string
	// Result holds the summaries; Folds is not persisted by RunStore.
	Result *domain.BacktestResult
}

// RunStore persists backtest runs and their aggregated metrics.
type RunStore interface {
	// SaveRun inserts run. An empty ID is replaced with a new UUID.
	SaveRun(ctx context.Context, run *Run) error

	// GetRun retrieves a run by ID, or ErrNotFound.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns the most recent runs first, up to limit.
	ListRuns(ctx context.Context, limit int) ([]Run, error)
}
