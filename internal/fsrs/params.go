package fsrs

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidParams reports FSRS weights outside their allowed bounds.
var ErrInvalidParams = errors.New("fsrs: parameters out of bounds")

// Params configures the scheduler. The zero value is not usable; start from
// DefaultParams and override as needed.
type Params struct {
	// Weights are the 21 FSRS-6 model weights.
	Weights [21]float64
	// DesiredRetention is the target recall probability at the due date.
	DesiredRetention float64
	// MaximumInterval caps the scheduled interval in days.
	MaximumInterval int
	// LearningSteps are the sub-day intervals a New card walks through
	// before graduating to Review.
	LearningSteps []time.Duration
	// RelearningSteps are the intervals a lapsed card walks through.
	RelearningSteps []time.Duration
	// DisableFuzz turns off interval randomization, for deterministic tests.
	DisableFuzz bool
}

// DefaultWeights are the FSRS-6 default weights published with py-fsrs.
var DefaultWeights = [21]float64{
	0.212, 1.2931, 2.3065, 8.2956,
	6.4133, 0.8334, 3.0194, 0.001,
	1.8722, 0.1666, 0.796, 1.4835,
	0.0614, 0.2629, 1.6483, 0.6014,
	1.8729, 0.5425, 0.0912, 0.0658,
	0.1542,
}

var lowerBounds = [21]float64{
	0.001, 0.001, 0.001, 0.001,
	1.0, 0.001, 0.001, 0.001,
	0.0, 0.0, 0.001, 0.001,
	0.001, 0.001, 0.0, 0.0,
	1.0, 0.0, 0.0, 0.0,
	0.1,
}

var upperBounds = [21]float64{
	100.0, 100.0, 100.0, 100.0,
	10.0, 4.0, 4.0, 0.75,
	4.5, 0.8, 3.5, 5.0,
	0.25, 0.9, 4.0, 1.0,
	6.0, 2.0, 2.0, 0.8,
	0.8,
}

// DefaultParams provides the stock FSRS-6 configuration: 90% retention,
// 100-year interval cap, [1m 10m] learning steps and a [10m] relearning step.
func DefaultParams() Params {
	return Params{
		Weights:          DefaultWeights,
		DesiredRetention: 0.9,
		MaximumInterval:  36500,
		LearningSteps:    []time.Duration{time.Minute, 10 * time.Minute},
		RelearningSteps:  []time.Duration{10 * time.Minute},
	}
}

// Validate checks weights and scalar fields against their bounds.
func (p Params) Validate() error {
	for i := range p.Weights {
		if p.Weights[i] < lowerBounds[i] || p.Weights[i] > upperBounds[i] {
			return fmt.Errorf("%w: w[%d] = %f, bounds [%f, %f]",
				ErrInvalidParams, i, p.Weights[i], lowerBounds[i], upperBounds[i])
		}
	}
	if p.DesiredRetention <= 0 || p.DesiredRetention > 1 {
		return fmt.Errorf("%w: desired retention %f out of range (0, 1]", ErrInvalidParams, p.DesiredRetention)
	}
	if p.MaximumInterval < 1 {
		return fmt.Errorf("%w: maximum interval %d must be positive", ErrInvalidParams, p.MaximumInterval)
	}
	return nil
}
