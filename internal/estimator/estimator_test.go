package estimator

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"foldcast/internal/domain"
)

func near(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestNaive(t *testing.T) {
	ctx := context.Background()
	e := &NaiveEstimator{}
	if _, err := e.Predict(ctx, 2, nil); err == nil {
		t.Error("Predict before Fit should fail")
	}
	if err := e.Fit(ctx, []float64{1, 2, math.NaN()}, nil); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	got, err := e.Predict(ctx, 3, nil)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if !reflect.DeepEqual(got, []float64{2, 2, 2}) {
		t.Errorf("Predict = %v, want [2 2 2]", got)
	}
	if err := (&NaiveEstimator{}).Fit(ctx, []float64{math.NaN()}, nil); err == nil {
		t.Error("Fit on all-missing input should fail")
	}
}

func TestMean(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		window int
		want   float64
	}{
		{0, 2.5},
		{2, 3.5},
	}
	for _, tt := range tests {
		e := &MeanEstimator{Window: tt.window}
		if err := e.Fit(ctx, []float64{1, 2, math.NaN(), 3, 4}, nil); err != nil {
			t.Fatalf("Fit: %v", err)
		}
		got, err := e.Predict(ctx, 2, nil)
		if err != nil {
			t.Fatalf("Predict: %v", err)
		}
		if got[0] != tt.want || got[1] != tt.want {
			t.Errorf("window %d: Predict = %v, want %v", tt.window, got, tt.want)
		}
	}
}

func TestSeasonalNaive(t *testing.T) {
	ctx := context.Background()
	e := &SeasonalNaiveEstimator{Period: 3}
	if err := e.Fit(ctx, []float64{1, 2, 3, 4, math.NaN(), 6}, nil); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	got, err := e.Predict(ctx, 5, nil)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	// The missing 5 falls back to one period earlier.
	if want := []float64{4, 2, 6, 4, 2}; !reflect.DeepEqual(got, want) {
		t.Errorf("Predict = %v, want %v", got, want)
	}

	if err := (&SeasonalNaiveEstimator{Period: 4}).Fit(ctx, []float64{1, 2}, nil); err == nil {
		t.Error("Fit with less than one period should fail")
	}
}

func TestLinearARRecoversAutoregression(t *testing.T) {
	ctx := context.Background()
	y := make([]float64, 30)
	for i := 1; i < len(y); i++ {
		y[i] = 0.5*y[i-1] + 1
	}

	e := &LinearAREstimator{Lags: 1}
	if err := e.Fit(ctx, y[:25], nil); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	got, err := e.Predict(ctx, 5, nil)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	for h := range got {
		if !near(got[h], y[25+h], 1e-6) {
			t.Errorf("step %d = %v, want %v", h, got[h], y[25+h])
		}
	}
}

func TestLinearARUsesExog(t *testing.T) {
	ctx := context.Background()
	n := 40
	y := make([]float64, n)
	X := make([][]float64, n)
	for i := range y {
		x := math.Sin(float64(i))
		X[i] = []float64{x}
		y[i] = 2*x + 3
	}

	e := &LinearAREstimator{Lags: 1}
	if err := e.Fit(ctx, y[:35], X[:35]); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	got, err := e.Predict(ctx, 5, X[35:])
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	for h := range got {
		if !near(got[h], y[35+h], 1e-6) {
			t.Errorf("step %d = %v, want %v", h, got[h], y[35+h])
		}
	}

	if _, err := e.Predict(ctx, 5, X[35:38]); err == nil {
		t.Error("Predict with too few exog rows should fail")
	}
	missing := [][]float64{{0.1}, {math.NaN()}}
	if _, err := e.Predict(ctx, 2, missing); err == nil {
		t.Error("Predict with missing exog should fail")
	}
}

func TestLinearARSkipsMissingRows(t *testing.T) {
	ctx := context.Background()
	y := []float64{1, 2, math.NaN(), 4, 5, 6, 7, 8, 9, 10}
	e := &LinearAREstimator{Lags: 1, Alpha: 0.1}
	if err := e.Fit(ctx, y, nil); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	got, err := e.Predict(ctx, 1, nil)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if math.IsNaN(got[0]) {
		t.Errorf("Predict = %v, want a finite value", got)
	}

	tailMissing := []float64{1, 2, 3, 4, 5, math.NaN()}
	e = &LinearAREstimator{Lags: 1, Alpha: 0.1}
	if err := e.Fit(ctx, tailMissing, nil); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if _, err := e.Predict(ctx, 1, nil); err == nil {
		t.Error("Predict with a missing last lag should fail")
	}
}

func TestLinearARUnderdetermined(t *testing.T) {
	e := &LinearAREstimator{Lags: 3}
	if err := e.Fit(context.Background(), []float64{1, 2, 3, 4, 5}, nil); err == nil {
		t.Error("Fit with fewer rows than coefficients and no alpha should fail")
	}
}

func TestEstimatorsHonorContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, e := range []Estimator{
		&NaiveEstimator{},
		&MeanEstimator{},
		&SeasonalNaiveEstimator{Period: 1},
		&LinearAREstimator{Lags: 1, Alpha: 1},
	} {
		if err := e.Fit(ctx, []float64{1, 2, 3, 4}, nil); !errors.Is(err, context.Canceled) {
			t.Errorf("%T.Fit with cancelled context = %v, want context.Canceled", e, err)
		}
	}
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	want := []string{LinearAR, Mean, Naive, SeasonalNaive}
	if got := r.List(); !reflect.DeepEqual(got, want) {
		t.Errorf("List() = %v, want %v", got, want)
	}

	factory, err := r.Build(LinearAR, Params{Lags: 2, Alpha: 1})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	a, b := factory(), factory()
	if a == b {
		t.Error("factory should return a fresh estimator on every call")
	}

	if _, err := r.Build("prophet", Params{}); !errors.Is(err, ErrUnknown) || !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("Build(prophet) error = %v, want ErrUnknown wrapping ErrConfiguration", err)
	}

	bad := []struct {
		name string
		p    Params
	}{
		{LinearAR, Params{Lags: 0}},
		{LinearAR, Params{Lags: 1, Alpha: -1}},
		{SeasonalNaive, Params{Period: 0}},
		{Mean, Params{Window: -1}},
	}
	for _, tt := range bad {
		if _, err := r.Build(tt.name, tt.p); !errors.Is(err, domain.ErrConfiguration) {
			t.Errorf("Build(%s, %+v) error = %v, want ErrConfiguration", tt.name, tt.p, err)
		}
	}
}
