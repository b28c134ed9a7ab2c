package engine

import (
	"context"
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/epistoch/seirsweep/internal/model"
)

// Direct is Gillespie's exact stochastic simulation algorithm. At every step
// the waiting time to the next event is exponential with the total rate, and
// the firing transition is chosen proportionally to its individual rate.
type Direct struct {
	// MaxSteps bounds the number of events per run; zero means DefaultMaxSteps.
	MaxSteps int
}

// cancelMask controls how often the step loops poll for cancellation.
const cancelMask = 0x3fff

// Advance runs the exact SSA from init until tf or absorption (zero total
// rate). The returned trajectory contains one point per fired event plus the
// initial point.
func (d Direct) Advance(ctx context.Context, init model.State, transitions []model.Transition, rateFn model.RateFunc, p model.Params, tf float64, src rand.Source) (model.Trajectory, error) {
	traj := model.Trajectory{{Time: 0, State: init}}
	if tf <= 0 {
		return traj, nil
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
			return traj, fmt.Errorf("%w: %d events before t=%g", ErrStepLimit, step, tf)
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
			// Absorbed: no transition can fire for the remaining time.
			return traj, nil
		}

		t += distuv.Exponential{Rate: total, Src: rng}.Rand()
		if t > tf {
			return traj, nil
		}

		state, err = state.Apply(transitions[pick(rates, total, rng)])
		if err != nil {
			return traj, err
		}
		traj = append(traj, model.Point{Time: t, State: state})
	}
}
