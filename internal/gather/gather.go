// Package gather produces datasets for backtesting from external sources and
// imports them into a DatasetStore.
package gather

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"foldcast/internal/store"
)

// Source is the interface for all dataset sources.
type Source interface {
	// Name returns the source identifier.
	Name() string
	// Fetch loads the complete dataset. It respects ctx cancellation.
	Fetch(ctx context.Context) (*store.Dataset, error)
}

// DateRange represents a time range for data fetching.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// ParseDateRange parses YYYY-MM-DD dates. An empty end means today (UTC).
func ParseDateRange(start, end string) (DateRange, error) {
	var r DateRange
	s, err := time.Parse("2006-01-02", start)
	if err != nil {
		return r, fmt.Errorf("parsing start date %q: %w", start, err)
	}
	r.Start = s
	if end == "" {
		r.End = time.Now().UTC().Truncate(24 * time.Hour)
	} else {
		e, err := time.Parse("2006-01-02", end)
		if err != nil {
			return r, fmt.Errorf("parsing end date %q: %w", end, err)
		}
		r.End = e
	}
	if !r.End.After(r.Start) {
		return r, fmt.Errorf("end date %s is not after start date %s",
			r.End.Format("2006-01-02"), r.Start.Format("2006-01-02"))
	}
	return r, nil
}

// Import fetches a dataset from src and writes it to dst under name.
func Import(ctx context.Context, src Source, dst store.DatasetStore, name string) (*store.Dataset, error) {
	log := slog.Default().With("source", src.Name(), "dataset", name)
	start := time.Now()

	ds, err := src.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching from %s: %w", src.Name(), err)
	}
	if err := dst.WriteDataset(ctx, name, *ds); err != nil {
		return nil, fmt.Errorf("storing dataset %s: %w", name, err)
	}

	points := 0
	for _, s := range ds.Series {
		points += s.Len()
	}
	log.Info("dataset imported",
		"series", len(ds.Series),
		"points", points,
		"exog", ds.Exog != nil,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return ds, nil
}
