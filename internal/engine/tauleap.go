package engine

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/epistoch/seirsweep/internal/model"
)

// TauLeap is an adaptive tau-leaping approximation of the jump process.
// Each leap batches the events of an interval tau into per-transition
// Poisson counts, where tau is chosen so the expected relative change of
// every compartment stays within Epsilon (the tau-selection bound of Cao,
// Gillespie and Petzold). Whenever a leap would carry too few events to be
// worth approximating, or would drive a compartment negative even after
// halving, the stepper falls back to a burst of exact SSA steps.
type TauLeap struct {
	// Epsilon is the relative rate-change tolerance; zero means DefaultEpsilon.
	Epsilon float64
	// CriticalEvents is the minimum expected event count per leap; below it
	// the stepper takes exact steps instead. Zero means DefaultCriticalEvents.
	CriticalEvents float64
	// ExactBurst is the number of exact steps taken per fallback; zero means
	// DefaultExactBurst.
	ExactBurst int
	// MaxSteps bounds the number of stepper iterations; zero means DefaultMaxSteps.
	MaxSteps int
}

// Tau-leaping defaults.
const (
	DefaultEpsilon        = 0.03
	DefaultCriticalEvents = 10
	DefaultExactBurst     = 100

	// maxLeapRetries bounds tau halving when a leap overshoots a compartment.
	maxLeapRetries = 10
)

// Advance runs the adaptive leaping algorithm from init until tf or
// absorption. The trajectory contains one point per leap (or per exact step
// during fallback bursts) plus the initial point.
func (d TauLeap) Advance(ctx context.Context, init model.State, transitions []model.Transition, rateFn model.RateFunc, p model.Params, tf float64, src rand.Source) (model.Trajectory, error) {
	traj := model.Trajectory{{Time: 0, State: init}}
	if tf <= 0 {
		return traj, nil
	}

	epsilon := d.Epsilon
	if epsilon <= 0 {
		epsilon = DefaultEpsilon
	}
	critical := d.CriticalEvents
	if critical <= 0 {
		critical = DefaultCriticalEvents
	}
	maxSteps := d.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}

	rng := rand.New(src)
	t := 0.0
	state := init

	for step := 0; ; step++ {
		if step >= maxSteps {
			return traj, fmt.Errorf("%w: %d leaps before t=%g", ErrStepLimit, step, tf)
		}
		if step&cancelMask == 0 {
			if err := checkCancel(ctx); err != nil {
				return traj, err
			}
		}

		rates, total, err := evalRates(state, p, t, rateFn, transitions)
		if err != nil {
			return traj, err
		}
		if total == 0 {
			return traj, nil
		}

		tau := leapInterval(state, transitions, rates, epsilon, tf-t)

		if total*tau < critical {
			var done bool
			state, t, traj, done, err = d.burst(rng, state, t, tf, transitions, rateFn, p, traj)
			if err != nil || done {
				return traj, err
			}
			continue
		}

		next, ok := leap(rng, state, transitions, rates, &tau, critical/total)
		if !ok {
			// Halving collapsed the leap; resynchronize with exact steps.
			var done bool
			state, t, traj, done, err = d.burst(rng, state, t, tf, transitions, rateFn, p, traj)
			if err != nil || done {
				return traj, err
			}
			continue
		}

		t += tau
		state = next
		traj = append(traj, model.Point{Time: t, State: state})
		if t >= tf {
			return traj, nil
		}
	}
}

// leap samples Poisson event counts for one interval and applies them.
// When the sampled counts would drive a compartment negative, tau is halved
// and the counts resampled, down to minTau; ok=false reports collapse.
// On success tau holds the interval actually used.
func leap(rng *rand.Rand, state model.State, transitions []model.Transition, rates []float64, tau *float64, minTau float64) (model.State, bool) {
	for attempt := 0; attempt < maxLeapRetries; attempt++ {
		next := state
		valid := true
		for j, r := range rates {
			if r == 0 {
				continue
			}
			count := int64(distuv.Poisson{Lambda: r * *tau, Src: rng}.Rand())
			if count == 0 {
				continue
			}
			applied, err := next.ApplyN(transitions[j], count)
			if err != nil {
				valid = false
				break
			}
			next = applied
		}
		if valid {
			return next, true
		}
		*tau /= 2
		if *tau < minTau {
			return state, false
		}
	}
	return state, false
}

// burst takes up to ExactBurst exact SSA steps. done reports that the run
// finished (absorption or horizon) during the burst.
func (d TauLeap) burst(rng *rand.Rand, state model.State, t, tf float64, transitions []model.Transition, rateFn model.RateFunc, p model.Params, traj model.Trajectory) (model.State, float64, model.Trajectory, bool, error) {
	burst := d.ExactBurst
	if burst <= 0 {
		burst = DefaultExactBurst
	}

	for i := 0; i < burst; i++ {
		rates, total, err := evalRates(state, p, t, rateFn, transitions)
		if err != nil {
			return state, t, traj, false, err
		}
		if total == 0 {
			return state, t, traj, true, nil
		}

		t += distuv.Exponential{Rate: total, Src: rng}.Rand()
		if t > tf {
			return state, t, traj, true, nil
		}

		state, err = state.Apply(transitions[pick(rates, total, rng)])
		if err != nil {
			return state, t, traj, false, err
		}
		traj = append(traj, model.Point{Time: t, State: state})
	}
	return state, t, traj, false, nil
}

// leapInterval returns the tau-selection bound: the largest tau for which the
// expected and fluctuating change of every compartment stays within
// max(epsilon·count, 1), capped at the remaining time.
func leapInterval(state model.State, transitions []model.Transition, rates []float64, epsilon, remaining float64) float64 {
	tau := remaining

	for c := model.Compartment(0); c < model.NumCompartments; c++ {
		var mu, sigma2 float64
		for j, tr := range transitions {
			d := float64(tr.Delta[c])
			if d == 0 {
				continue
			}
			mu += d * rates[j]
			sigma2 += d * d * rates[j]
		}

		bound := math.Max(epsilon*float64(state[c]), 1)
		if mu != 0 {
			tau = math.Min(tau, bound/math.Abs(mu))
		}
		if sigma2 != 0 {
			tau = math.Min(tau, bound*bound/sigma2)
		}
	}

	return tau
}
