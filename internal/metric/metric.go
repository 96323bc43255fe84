// Package metric defines the error-metric contract used to score forecasts
// and provides the built-in metrics.
package metric

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ErrInput reports empty or length-mismatched metric input.
var ErrInput = errors.New("invalid metric input")

// Func scores predictions against true values. Implementations are pure,
// return exactly 0 when yPred equals yTrue, and fail with ErrInput on empty
// or length-mismatched input.
type Func func(yTrue, yPred []float64) (float64, error)

// Named pairs a metric with the name it is reported under.
type Named struct {
	Name string
	Fn   Func
}

// epsilon guards percentage errors against division by zero.
const epsilon = 2.220446049250313e-16

func check(yTrue, yPred []float64) error {
	if len(yTrue) == 0 {
		return fmt.Errorf("%w: empty input", ErrInput)
	}
	if len(yTrue) != len(yPred) {
		return fmt.Errorf("%w: %d true values, %d predictions", ErrInput, len(yTrue), len(yPred))
	}
	return nil
}

// MeanAbsoluteError returns mean(|yTrue - yPred|).
func MeanAbsoluteError(yTrue, yPred []float64) (float64, error) {
	if err := check(yTrue, yPred); err != nil {
		return 0, err
	}
	return floats.Distance(yTrue, yPred, 1) / float64(len(yTrue)), nil
}

// MeanSquaredError returns mean((yTrue - yPred)^2).
func MeanSquaredError(yTrue, yPred []float64) (float64, error) {
	if err := check(yTrue, yPred); err != nil {
		return 0, err
	}
	var sum float64
	for i := range yTrue {
		d := yTrue[i] - yPred[i]
		sum += d * d
	}
	return sum / float64(len(yTrue)), nil
}

// RootMeanSquaredError returns sqrt(MeanSquaredError).
func RootMeanSquaredError(yTrue, yPred []float64) (float64, error) {
	if err := check(yTrue, yPred); err != nil {
		return 0, err
	}
	return floats.Distance(yTrue, yPred, 2) / math.Sqrt(float64(len(yTrue))), nil
}

// MeanAbsolutePercentageError returns mean(|yTrue - yPred| / max(|yTrue|, eps))
// as a fraction.
func MeanAbsolutePercentageError(yTrue, yPred []float64) (float64, error) {
	if err := check(yTrue, yPred); err != nil {
		return 0, err
	}
	var sum float64
	for i := range yTrue {
		sum += math.Abs(yTrue[i]-yPred[i]) / math.Max(math.Abs(yTrue[i]), epsilon)
	}
	return sum / float64(len(yTrue)), nil
}

// SymmetricMeanAbsolutePercentageError returns
// mean(2|yTrue - yPred| / (|yTrue| + |yPred|)) as a fraction; terms where
// both values are zero contribute 0.
func SymmetricMeanAbsolutePercentageError(yTrue, yPred []float64) (float64, error) {
	if err := check(yTrue, yPred); err != nil {
		return 0, err
	}
	var sum float64
	for i := range yTrue {
		den := math.Abs(yTrue[i]) + math.Abs(yPred[i])
		if den == 0 {
			continue
		}
		sum += 2 * math.Abs(yTrue[i]-yPred[i]) / den
	}
	return sum / float64(len(yTrue)), nil
}

// MaxError returns max(|yTrue - yPred|).
func MaxError(yTrue, yPred []float64) (float64, error) {
	if err := check(yTrue, yPred); err != nil {
		return 0, err
	}
	return floats.Distance(yTrue, yPred, math.Inf(1)), nil
}
