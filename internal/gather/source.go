package gather

import (
	"context"

	"foldcast/internal/fixture"
	"foldcast/internal/store"
)

var _ Source = (*StoreSource)(nil)
var _ Source = FixtureSource{}

// StoreSource reads a previously imported dataset.
type StoreSource struct {
	Store   store.DatasetStore
	Dataset string
}

// Name returns the source identifier.
func (s *StoreSource) Name() string { return "store:" + s.Dataset }

// Fetch reads the dataset from the store.
func (s *StoreSource) Fetch(ctx context.Context) (*store.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Store.ReadDataset(ctx, s.Dataset)
}

// FixtureSource serves the built-in two-series fixture with its exog
// columns.
type FixtureSource struct{}

// Name returns the source identifier.
func (FixtureSource) Name() string { return "fixture" }

// Fetch returns fresh copies of the fixture data.
func (FixtureSource) Fetch(ctx context.Context) (*store.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &store.Dataset{Series: fixture.Series(), Exog: fixture.Exog()}, nil
}
