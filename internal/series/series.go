// Package series holds the normalized, read-only representation of a set of
// related time series and their shared exogenous features.
package series

import (
	"fmt"
	"math"

	"foldcast/internal/domain"
)

// Series is one input time series. Index values are positions or Unix
// timestamps and must be strictly increasing. Missing values are NaN.
type Series struct {
	ID     string
	Index  []int64
	Values []float64
}

// FromValues builds a series with a positional index 0..len(values)-1.
func FromValues(id string, values []float64) Series {
	return Series{
		ID:     id,
		Index:  PositionalIndex(len(values)),
		Values: append([]float64(nil), values...),
	}
}

// PositionalIndex returns the index 0..n-1.
func PositionalIndex(n int) []int64 {
	idx := make([]int64, n)
	for i := range idx {
		idx[i] = int64(i)
	}
	return idx
}

// Len returns the number of points in the series.
func (s Series) Len() int { return len(s.Values) }

// ExogTable holds exogenous feature columns aligned 1:1 with Index.
// Columns[j][i] is feature Names[j] at Index[i].
type ExogTable struct {
	Index   []int64
	Names   []string
	Columns [][]float64
}

// NewExogTable validates and copies the given columns.
func NewExogTable(index []int64, names []string, columns [][]float64) (*ExogTable, error) {
	t := &ExogTable{
		Index:   append([]int64(nil), index...),
		Names:   append([]string(nil), names...),
		Columns: make([][]float64, len(columns)),
	}
	for j, col := range columns {
		t.Columns[j] = append([]float64(nil), col...)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// PositionalExog builds an exog table with a positional index. All columns
// must have the same length.
func PositionalExog(names []string, columns [][]float64) (*ExogTable, error) {
	n := 0
	if len(columns) > 0 {
		n = len(columns[0])
	}
	return NewExogTable(PositionalIndex(n), names, columns)
}

// Width returns the number of feature columns.
func (t *ExogTable) Width() int { return len(t.Names) }

func (t *ExogTable) validate() error {
	if len(t.Names) != len(t.Columns) {
		return fmt.Errorf("%w: exog has %d names but %d columns", domain.ErrMisalignedSeries, len(t.Names), len(t.Columns))
	}
	seen := make(map[string]struct{}, len(t.Names))
	for j, name := range t.Names {
		if name == "" {
			return fmt.Errorf("%w: exog column %d has an empty name", domain.ErrMisalignedSeries, j)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: duplicate exog column %q", domain.ErrMisalignedSeries, name)
		}
		seen[name] = struct{}{}
		if len(t.Columns[j]) != len(t.Index) {
			return fmt.Errorf("%w: exog column %q has %d values, index has %d",
				domain.ErrMisalignedSeries, name, len(t.Columns[j]), len(t.Index))
		}
	}
	return nil
}

// CountObserved returns the number of non-missing values.
func CountObserved(values []float64) int {
	n := 0
	for _, v := range values {
		if !math.IsNaN(v) {
			n++
		}
	}
	return n
}

// Missing reports whether v marks a missing value.
func Missing(v float64) bool { return math.IsNaN(v) }
