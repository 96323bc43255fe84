package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/parquet-go/parquet-go"

	"foldcast/internal/domain"
	"foldcast/internal/series"
)

// Compile-time interface checks.
var _ DatasetStore = (*ParquetStore)(nil)
var _ FoldStore = (*ParquetStore)(nil)

// ParquetStore implements DatasetStore and FoldStore using Parquet files on
// disk.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// SeriesRecord is one observation of a target series in long format. A nil
// Value marks a missing observation.
type SeriesRecord struct {
	SeriesID string   `parquet:"series_id"`
	Index    int64    `parquet:"index"`
	Value    *float64 `parquet:"value,optional"`
}

// ExogRecord is one value of an exog column in long format.
type ExogRecord struct {
	Column string   `parquet:"column"`
	Index  int64    `parquet:"index"`
	Value  *float64 `parquet:"value,optional"`
}

// FoldRecord is the Parquet schema for one evaluated fold.
type FoldRecord struct {
	SeriesID     string    `parquet:"series_id"`
	Fold         int64     `parquet:"fold"`
	TrainStart   int64     `parquet:"train_start"`
	TrainEnd     int64     `parquet:"train_end"`
	TestStart    int64     `parquet:"test_start"`
	TestEnd      int64     `parquet:"test_end"`
	Status       string    `parquet:"status"`
	Evaluated    int64     `parquet:"evaluated"`
	ErrorKind    string    `parquet:"error_kind"`
	Error        string    `parquet:"error"`
	YTrue        []float64 `parquet:"y_true"`
	YPred        []float64 `parquet:"y_pred"`
	MetricNames  []string  `parquet:"metric_names"`
	MetricValues []float64 `parquet:"metric_values"`
}

// ---------------------------------------------------------------------------
// DatasetStore implementation
// ---------------------------------------------------------------------------

// WriteDataset writes the dataset to:
//
//	<DataDir>/datasets/<name>/series.parquet
//	<DataDir>/datasets/<name>/exog.parquet (only when ds.Exog is set)
func (s *ParquetStore) WriteDataset(_ context.Context, name string, ds Dataset) error {
	if err := checkName(name); err != nil {
		return err
	}
	if len(ds.Series) == 0 {
		return fmt.Errorf("dataset %q has no series", name)
	}

	var records []SeriesRecord
	for _, sr := range ds.Series {
		if len(sr.Index) != len(sr.Values) {
			return fmt.Errorf("%w: series %q has %d index values and %d values",
				domain.ErrMisalignedSeries, sr.ID, len(sr.Index), len(sr.Values))
		}
		for i, v := range sr.Values {
			records = append(records, SeriesRecord{SeriesID: sr.ID, Index: sr.Index[i], Value: optional(v)})
		}
	}
	dir := s.datasetDir(name)
	if err := writeParquetFile(filepath.Join(dir, "series.parquet"), records); err != nil {
		return fmt.Errorf("writing series for %s: %w", name, err)
	}

	exogPath := filepath.Join(dir, "exog.parquet")
	if ds.Exog == nil {
		if err := os.Remove(exogPath); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	var exog []ExogRecord
	for j, col := range ds.Exog.Columns {
		for i, v := range col {
			exog = append(exog, ExogRecord{Column: ds.Exog.Names[j], Index: ds.Exog.Index[i], Value: optional(v)})
		}
	}
	if err := writeParquetFile(exogPath, exog); err != nil {
		return fmt.Errorf("writing exog for %s: %w", name, err)
	}
	return nil
}

// ReadDataset reads a dataset written by WriteDataset. Series and exog
// columns keep the order they were written in.
func (s *ParquetStore) ReadDataset(_ context.Context, name string) (*Dataset, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	dir := s.datasetDir(name)

	records, err := readParquetFile[SeriesRecord](filepath.Join(dir, "series.parquet"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("dataset %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("reading series for %s: %w", name, err)
	}

	ds := &Dataset{}
	pos := make(map[string]int)
	for _, r := range records {
		i, ok := pos[r.SeriesID]
		if !ok {
			i = len(ds.Series)
			pos[r.SeriesID] = i
			ds.Series = append(ds.Series, series.Series{ID: r.SeriesID})
		}
		ds.Series[i].Index = append(ds.Series[i].Index, r.Index)
		ds.Series[i].Values = append(ds.Series[i].Values, value(r.Value))
	}

	exog, err := readParquetFile[ExogRecord](filepath.Join(dir, "exog.parquet"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ds, nil
		}
		return nil, fmt.Errorf("reading exog for %s: %w", name, err)
	}

	var names []string
	var index []int64
	cols := make(map[string][]float64)
	for _, r := range exog {
		if _, ok := cols[r.Column]; !ok {
			names = append(names, r.Column)
		}
		if len(names) == 1 {
			index = append(index, r.Index)
		}
		cols[r.Column] = append(cols[r.Column], value(r.Value))
	}
	columns := make([][]float64, len(names))
	for j, n := range names {
		columns[j] = cols[n]
	}
	table, err := series.NewExogTable(index, names, columns)
	if err != nil {
		return nil, fmt.Errorf("exog for %s: %w", name, err)
	}
	ds.Exog = table
	return ds, nil
}

// ListDatasets returns the names of all stored datasets, sorted.
func (s *ParquetStore) ListDatasets(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.DataDir, "datasets"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.datasetDir(e.Name()), "series.parquet")); err == nil {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// ---------------------------------------------------------------------------
// FoldStore implementation
// ---------------------------------------------------------------------------

// WriteFolds writes fold results to <DataDir>/runs/<runID>/folds.parquet.
func (s *ParquetStore) WriteFolds(_ context.Context, runID string, folds []domain.FoldResult) error {
	if err := checkName(runID); err != nil {
		return err
	}
	records := make([]FoldRecord, len(folds))
	for i, f := range folds {
		rec := FoldRecord{
			SeriesID:   f.SeriesID,
			Fold:       int64(f.Fold.Index),
			TrainStart: int64(f.Fold.TrainStart),
			TrainEnd:   int64(f.Fold.TrainEnd),
			TestStart:  int64(f.Fold.TestStart),
			TestEnd:    int64(f.Fold.TestEnd),
			Status:     string(f.Status),
			Evaluated:  int64(f.Evaluated),
			ErrorKind:  string(f.ErrorKind),
			Error:      f.Error,
			YTrue:      f.YTrue,
			YPred:      f.YPred,
		}
		for _, name := range sortedKeys(f.Metrics) {
			rec.MetricNames = append(rec.MetricNames, name)
			rec.MetricValues = append(rec.MetricValues, f.Metrics[name])
		}
		records[i] = rec
	}
	if err := writeParquetFile(s.foldsPath(runID), records); err != nil {
		return fmt.Errorf("writing folds for run %s: %w", runID, err)
	}
	return nil
}

// ReadFolds reads the fold results written by WriteFolds.
func (s *ParquetStore) ReadFolds(_ context.Context, runID string) ([]domain.FoldResult, error) {
	if err := checkName(runID); err != nil {
		return nil, err
	}
	records, err := readParquetFile[FoldRecord](s.foldsPath(runID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("folds of run %s: %w", runID, ErrNotFound)
		}
		return nil, err
	}

	out := make([]domain.FoldResult, len(records))
	for i, r := range records {
		res := domain.FoldResult{
			SeriesID: r.SeriesID,
			Fold: domain.Fold{
				Index:      int(r.Fold),
				TrainStart: int(r.TrainStart),
				TrainEnd:   int(r.TrainEnd),
				TestStart:  int(r.TestStart),
				TestEnd:    int(r.TestEnd),
			},
			Status:    domain.FoldStatus(r.Status),
			Evaluated: int(r.Evaluated),
			ErrorKind: domain.ErrorKind(r.ErrorKind),
			Error:     r.Error,
			YTrue:     r.YTrue,
			YPred:     r.YPred,
		}
		if len(r.MetricNames) > 0 {
			res.Metrics = make(map[string]float64, len(r.MetricNames))
			for j, name := range r.MetricNames {
				res.Metrics[name] = r.MetricValues[j]
			}
		}
		out[i] = res
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (s *ParquetStore) datasetDir(name string) string {
	return filepath.Join(s.DataDir, "datasets", name)
}

func (s *ParquetStore) foldsPath(runID string) string {
	return filepath.Join(s.DataDir, "runs", runID, "folds.parquet")
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid name %q", name)
	}
	return nil
}

func optional(v float64) *float64 {
	if series.Missing(v) {
		return nil
	}
	return &v
}

func value(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
