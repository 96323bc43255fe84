package estimator

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var _ Estimator = (*LinearAREstimator)(nil)

// LinearAREstimator is a ridge-regularized linear autoregression on the last
// Lags target values plus the exog row of the step being predicted. Training
// rows with any missing value are skipped. Multi-step forecasts are
// recursive: each prediction feeds the next step's lags.
type LinearAREstimator struct {
	Lags  int
	Alpha float64

	// coef is [intercept, lag 1..Lags, exog 0..width-1].
	coef  []float64
	width int
	tail  []float64
}

// Fit implements Estimator.
func (e *LinearAREstimator) Fit(ctx context.Context, y []float64, X [][]float64) error {
	if e.Lags < 1 {
		return fmt.Errorf("lags must be >= 1, got %d", e.Lags)
	}
	if X != nil && len(X) != len(y) {
		return fmt.Errorf("exog has %d rows, target has %d", len(X), len(y))
	}
	if len(y) <= e.Lags {
		return fmt.Errorf("need more than %d values to fit %d lags, got %d", e.Lags, e.Lags, len(y))
	}
	width := 0
	if len(X) > 0 {
		width = len(X[0])
	}
	cols := 1 + e.Lags + width

	var data, target []float64
	row := make([]float64, cols)
	for t := e.Lags; t < len(y); t++ {
		if t%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if math.IsNaN(y[t]) {
			continue
		}
		var xt []float64
		if width > 0 {
			xt = X[t]
			if len(xt) != width {
				return fmt.Errorf("exog row %d has %d columns, want %d", t, len(xt), width)
			}
		}
		if !features(row, y[:t], xt, e.Lags) {
			continue
		}
		data = append(data, row...)
		target = append(target, y[t])
	}
	m := len(target)
	if m == 0 {
		return errors.New("no complete training rows after dropping missing values")
	}
	if e.Alpha == 0 && m < cols {
		return fmt.Errorf("%d training rows cannot determine %d coefficients without regularization", m, cols)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	A := mat.NewDense(m, cols, data)
	b := mat.NewVecDense(m, target)

	var ata mat.Dense
	ata.Mul(A.T(), A)
	// The intercept is not penalized.
	for j := 1; j < cols; j++ {
		ata.Set(j, j, ata.At(j, j)+e.Alpha)
	}
	var atb mat.VecDense
	atb.MulVec(A.T(), b)

	var beta mat.VecDense
	if err := beta.SolveVec(&ata, &atb); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return fmt.Errorf("solving normal equations: %w", err)
		}
	}

	e.coef = make([]float64, cols)
	for j := range e.coef {
		e.coef[j] = beta.AtVec(j)
	}
	e.width = width
	e.tail = append([]float64(nil), y[len(y)-e.Lags:]...)
	return nil
}

// Predict implements Estimator.
func (e *LinearAREstimator) Predict(ctx context.Context, horizon int, X [][]float64) ([]float64, error) {
	if err := checkPredict(ctx, e.coef != nil, horizon); err != nil {
		return nil, err
	}
	if e.width > 0 && len(X) != horizon {
		return nil, fmt.Errorf("exog has %d rows, horizon is %d", len(X), horizon)
	}
	for _, v := range e.tail {
		if math.IsNaN(v) {
			return nil, fmt.Errorf("last %d training values contain missing data", e.Lags)
		}
	}

	hist := make([]float64, 0, e.Lags+horizon)
	hist = append(hist, e.tail...)
	row := make([]float64, len(e.coef))
	out := make([]float64, horizon)
	for h := range out {
		var xh []float64
		if e.width > 0 {
			xh = X[h]
			if len(xh) != e.width {
				return nil, fmt.Errorf("exog row %d has %d columns, want %d", h, len(xh), e.width)
			}
		}
		if !features(row, hist, xh, e.Lags) {
			return nil, fmt.Errorf("missing exog value at forecast step %d", h)
		}
		var f float64
		for j, c := range e.coef {
			f += c * row[j]
		}
		out[h] = f
		hist = append(hist, f)
	}
	return out, nil
}

// features fills row with [1, past[-1], ..., past[-lags], exog...] and
// reports whether every value is observed.
func features(row, past, exog []float64, lags int) bool {
	row[0] = 1
	n := len(past)
	for k := 1; k <= lags; k++ {
		v := past[n-k]
		if math.IsNaN(v) {
			return false
		}
		row[k] = v
	}
	for j, v := range exog {
		if math.IsNaN(v) {
			return false
		}
		row[1+lags+j] = v
	}
	return true
}
