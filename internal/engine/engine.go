// Package engine simulates continuous-time Markov jump processes over a
// finite set of compartments and transitions.
//
// Two steppers are provided behind the same interface:
//
//   - Direct: Gillespie's exact stochastic simulation algorithm. Every event
//     is drawn individually, so the produced trajectory is statistically exact.
//   - TauLeap: adaptive tau-leaping. Many events are batched into one Poisson
//     leap whose length bounds the expected relative change in rates, with
//     exact fallback whenever a compartment nears exhaustion.
//
// Both steppers draw exclusively from the caller-supplied random source, so a
// fixed seed reproduces a bit-identical trajectory.
package engine

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/exp/rand"

	"github.com/epistoch/seirsweep/internal/model"
)

// Domain errors for simulation runs.
var (
	// ErrRateMismatch indicates the rate function returned a vector whose
	// length differs from the transition count. Configuration error.
	ErrRateMismatch = errors.New("engine: rate vector length does not match transition count")

	// ErrNegativeRate indicates the rate function returned a negative rate.
	ErrNegativeRate = errors.New("engine: negative transition rate")

	// ErrStepLimit indicates a run exceeded the step safety bound.
	ErrStepLimit = errors.New("engine: step safety limit exceeded")
)

// DefaultMaxSteps bounds the number of stepper iterations per run.
const DefaultMaxSteps = 100_000_000

// Stepper advances a jump process from an initial state to the first of
// {tf, absorption}. Implementations must treat transitions, the rate
// function, and params as read-only and must draw randomness only from src.
type Stepper interface {
	Advance(ctx context.Context, init model.State, transitions []model.Transition, rateFn model.RateFunc, p model.Params, tf float64, src rand.Source) (model.Trajectory, error)
}

// evalRates evaluates the rate function and validates the result against the
// transition list. Returns the rate vector and its sum.
func evalRates(s model.State, p model.Params, t float64, rateFn model.RateFunc, transitions []model.Transition) ([]float64, float64, error) {
	rates := rateFn(s, p, t)
	if len(rates) != len(transitions) {
		return nil, 0, fmt.Errorf("%w: %d rates for %d transitions", ErrRateMismatch, len(rates), len(transitions))
	}
	var total float64
	for j, r := range rates {
		if r < 0 {
			return nil, 0, fmt.Errorf("%w: rate %g for transition %s", ErrNegativeRate, r, transitions[j].Name)
		}
		total += r
	}
	return rates, total, nil
}

// pick selects a transition index with probability proportional to its rate.
// total must be the positive sum of rates.
func pick(rates []float64, total float64, rng *rand.Rand) int {
	u := rng.Float64() * total
	last := 0
	for j, r := range rates {
		if r == 0 {
			continue
		}
		last = j
		u -= r
		if u < 0 {
			return j
		}
	}
	// Floating-point underflow in the cumulative sum: fall back to the last
	// transition with positive rate.
	return last
}

// checkCancel polls ctx without blocking.
func checkCancel(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
