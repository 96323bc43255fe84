// Package planner computes walk-forward fold boundaries over a shared time
// axis.
package planner

import (
	"fmt"

	"foldcast/internal/domain"
)

// Params configures fold generation.
type Params struct {
	TotalLength      int
	InitialTrainSize int
	TestSize         int
	Step             int
	// Refit selects an expanding training window. When false the window
	// rolls forward and keeps InitialTrainSize positions.
	Refit bool
	// Gap is the number of positions skipped between the end of training and
	// the start of the test window.
	Gap int
}

// Validate checks that at least one fold fits.
func (p Params) Validate() error {
	switch {
	case p.InitialTrainSize <= 0:
		return fmt.Errorf("%w: initial_train_size must be > 0, got %d", domain.ErrConfiguration, p.InitialTrainSize)
	case p.TestSize <= 0:
		return fmt.Errorf("%w: test_size must be > 0, got %d", domain.ErrConfiguration, p.TestSize)
	case p.Step <= 0:
		return fmt.Errorf("%w: step must be > 0, got %d", domain.ErrConfiguration, p.Step)
	case p.Gap < 0:
		return fmt.Errorf("%w: gap must be >= 0, got %d", domain.ErrConfiguration, p.Gap)
	case p.InitialTrainSize+p.Gap+p.TestSize > p.TotalLength:
		return fmt.Errorf("%w: initial_train_size (%d) + gap (%d) + test_size (%d) exceeds total length %d",
			domain.ErrConfiguration, p.InitialTrainSize, p.Gap, p.TestSize, p.TotalLength)
	}
	return nil
}

// Plan returns the folds for the given window parameters with no gap.
func Plan(totalLength, initialTrainSize, testSize, step int, refit bool) ([]domain.Fold, error) {
	return PlanWith(Params{
		TotalLength:      totalLength,
		InitialTrainSize: initialTrainSize,
		TestSize:         testSize,
		Step:             step,
		Refit:            refit,
	})
}

// PlanWith returns folds ordered by ascending test start. The test window
// advances by Step until it would run past TotalLength; a trailing partial
// fold is dropped rather than shortened.
func PlanWith(p Params) ([]domain.Fold, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	folds := make([]domain.Fold, 0, (p.TotalLength-p.InitialTrainSize-p.Gap-p.TestSize)/p.Step+1)
	for k := 0; ; k++ {
		trainEnd := p.InitialTrainSize + k*p.Step
		testStart := trainEnd + p.Gap
		testEnd := testStart + p.TestSize
		if testEnd > p.TotalLength {
			break
		}

		trainStart := 0
		if !p.Refit {
			trainStart = k * p.Step
		}

		folds = append(folds, domain.Fold{
			Index:      k,
			TrainStart: trainStart,
			TrainEnd:   trainEnd,
			TestStart:  testStart,
			TestEnd:    testEnd,
		})
	}
	return folds, nil
}
