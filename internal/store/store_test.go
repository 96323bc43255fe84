package store

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"foldcast/internal/domain"
	"foldcast/internal/series"
)

func TestParquetStorePaths(t *testing.T) {
	ps := NewParquetStore("/data")

	if got, want := ps.datasetDir("retail"), filepath.Join("/data", "datasets", "retail"); got != want {
		t.Errorf("datasetDir = %s, want %s", got, want)
	}
	if got, want := ps.foldsPath("abc"), filepath.Join("/data", "runs", "abc", "folds.parquet"); got != want {
		t.Errorf("foldsPath = %s, want %s", got, want)
	}

	for _, bad := range []string{"", ".", "..", "a/b", `a\b`} {
		if err := checkName(bad); err == nil {
			t.Errorf("checkName(%q) should fail", bad)
		}
	}
}

func TestParquetStoreWriteReadDataset(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	exog, err := series.NewExogTable([]int64{0, 1, 2}, []string{"temp", "promo"}, [][]float64{
		{20.5, math.NaN(), 22},
		{0, 1, 0},
	})
	if err != nil {
		t.Fatalf("NewExogTable: %v", err)
	}
	ds := Dataset{
		Series: []series.Series{
			{ID: "b", Index: []int64{0, 1, 2}, Values: []float64{1, math.NaN(), 3}},
			{ID: "a", Index: []int64{1, 2}, Values: []float64{10, 20}},
		},
		Exog: exog,
	}
	if err := ps.WriteDataset(ctx, "shop", ds); err != nil {
		t.Fatalf("WriteDataset: %v", err)
	}

	got, err := ps.ReadDataset(ctx, "shop")
	if err != nil {
		t.Fatalf("ReadDataset: %v", err)
	}
	if len(got.Series) != 2 || got.Series[0].ID != "b" || got.Series[1].ID != "a" {
		t.Fatalf("series order not kept: %+v", got.Series)
	}
	if !reflect.DeepEqual(got.Series[1].Index, []int64{1, 2}) || got.Series[1].Values[1] != 20 {
		t.Errorf("series a = %+v", got.Series[1])
	}
	if !math.IsNaN(got.Series[0].Values[1]) {
		t.Errorf("missing value should read back as NaN, got %v", got.Series[0].Values)
	}
	if got.Exog == nil || !reflect.DeepEqual(got.Exog.Names, []string{"temp", "promo"}) {
		t.Fatalf("exog = %+v", got.Exog)
	}
	if !reflect.DeepEqual(got.Exog.Index, []int64{0, 1, 2}) || !math.IsNaN(got.Exog.Columns[0][1]) || got.Exog.Columns[1][1] != 1 {
		t.Errorf("exog columns = %v", got.Exog.Columns)
	}

	// Rewriting without exog removes the exog file.
	ds.Exog = nil
	if err := ps.WriteDataset(ctx, "shop", ds); err != nil {
		t.Fatalf("WriteDataset: %v", err)
	}
	got, err = ps.ReadDataset(ctx, "shop")
	if err != nil {
		t.Fatalf("ReadDataset: %v", err)
	}
	if got.Exog != nil {
		t.Errorf("exog should be gone, got %+v", got.Exog)
	}

	names, err := ps.ListDatasets(ctx)
	if err != nil {
		t.Fatalf("ListDatasets: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"shop"}) {
		t.Errorf("ListDatasets = %v, want [shop]", names)
	}

	if _, err := ps.ReadDataset(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ReadDataset(missing) error = %v, want ErrNotFound", err)
	}
}

func TestParquetStoreFolds(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	folds := []domain.FoldResult{
		{
			SeriesID:  "l1",
			Fold:      domain.Fold{Index: 0, TrainStart: 0, TrainEnd: 45, TestStart: 45, TestEnd: 50},
			Status:    domain.FoldStatusOK,
			YTrue:     []float64{1, 2, 3},
			YPred:     []float64{1.5, 2, 2.5},
			Metrics:   map[string]float64{"mean_absolute_error": 1.0 / 3, "max_error": 0.5},
			Evaluated: 3,
		},
		{
			SeriesID:  "l2",
			Fold:      domain.Fold{Index: 0, TrainStart: 0, TrainEnd: 45, TestStart: 45, TestEnd: 50},
			Status:    domain.FoldStatusFailed,
			ErrorKind: domain.ErrorKindEstimator,
			Error:     "estimator error: boom",
		},
	}
	if err := ps.WriteFolds(ctx, "run-1", folds); err != nil {
		t.Fatalf("WriteFolds: %v", err)
	}
	got, err := ps.ReadFolds(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadFolds: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadFolds returned %d folds, want 2", len(got))
	}
	if got[0].Fold != folds[0].Fold || !reflect.DeepEqual(got[0].Metrics, folds[0].Metrics) ||
		!reflect.DeepEqual(got[0].YPred, folds[0].YPred) || got[0].Evaluated != 3 {
		t.Errorf("fold 0 = %+v, want %+v", got[0], folds[0])
	}
	if got[1].OK() || got[1].ErrorKind != domain.ErrorKindEstimator || got[1].Error != folds[1].Error || got[1].Metrics != nil {
		t.Errorf("fold 1 = %+v, want %+v", got[1], folds[1])
	}

	if _, err := ps.ReadFolds(ctx, "run-2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ReadFolds(run-2) error = %v, want ErrNotFound", err)
	}
}

func sampleResult() *domain.BacktestResult {
	return &domain.BacktestResult{
		MetricNames: []string{"mean_absolute_error"},
		Aggregation: domain.AggregateMedian,
		Folds: []domain.FoldResult{
			{SeriesID: "l1", Status: domain.FoldStatusOK},
			{SeriesID: "l2", Status: domain.FoldStatusFailed},
		},
		Series: []domain.SeriesSummary{
			{SeriesID: "l2", Folds: 1, FailedFolds: 1, Metrics: map[string]float64{}},
			{SeriesID: "l1", Folds: 1, Metrics: map[string]float64{"mean_absolute_error": 0.25}},
		},
		Global: map[string]float64{"mean_absolute_error": 0.25},
		Pooled: map[string]float64{"mean_absolute_error": 0.25},
	}
}

func TestSQLiteStoreRuns(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "foldcast.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	first := &Run{
		Dataset:   "fixture",
		Estimator: "naive",
		Config:    `{"initial_train_size":45}`,
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Result:    sampleResult(),
	}
	if err := s.SaveRun(ctx, first); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if first.ID == "" {
		t.Fatal("SaveRun should assign an ID")
	}

	got, err := s.GetRun(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Dataset != "fixture" || got.Estimator != "naive" || got.Config != first.Config || !got.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("GetRun = %+v", got)
	}
	want := sampleResult()
	want.Folds = nil
	if !reflect.DeepEqual(got.Result, want) {
		t.Errorf("GetRun result = %+v\nwant %+v", got.Result, want)
	}

	second := &Run{
		Dataset:   "fixture",
		Estimator: "linear-ar",
		Config:    "{}",
		CreatedAt: first.CreatedAt.Add(time.Hour),
		Result:    sampleResult(),
	}
	if err := s.SaveRun(ctx, second); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	runs, err := s.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != second.ID || runs[1].ID != first.ID {
		t.Errorf("ListRuns order wrong: %+v", runs)
	}
	runs, err = s.ListRuns(ctx, 1)
	if err != nil || len(runs) != 1 {
		t.Errorf("ListRuns(1) = %d runs, %v", len(runs), err)
	}

	if _, err := s.GetRun(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRun(nope) error = %v, want ErrNotFound", err)
	}
	if err := s.SaveRun(ctx, &Run{ID: first.ID, Result: sampleResult()}); err == nil {
		t.Error("saving a duplicate ID should fail")
	}
}
