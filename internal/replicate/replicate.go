// Package replicate executes independent realizations of one SEIR setting.
//
// Each replication is a pure function of the driver's inputs plus its own
// random draws: workers share no mutable state, and every replication owns an
// independently seeded generator, so results are reproducible from the base
// seed and insensitive to completion order.
package replicate

import (
	"context"
	"fmt"

	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"

	"github.com/epistoch/seirsweep/internal/engine"
	"github.com/epistoch/seirsweep/internal/model"
)

// Driver wires the generic engine to one fixed SEIR setting. It retains no
// state between runs; every Run call is fully independent.
type Driver struct {
	Params   model.Params
	I0       int64
	Coverage float64
	Horizon  float64
	Stepper  engine.Stepper
}

// Validate checks the driver's preconditions before any simulation work.
func (d Driver) Validate() error {
	if err := d.Params.Validate(); err != nil {
		return err
	}
	if d.Stepper == nil {
		return fmt.Errorf("no stepper configured")
	}
	if _, err := model.InitialState(d.Params, d.I0, d.Coverage); err != nil {
		return err
	}
	return nil
}

// Vaccinated returns the initial Recovered count implied by the coverage.
func (d Driver) Vaccinated() int64 {
	return model.Vaccinated(d.Coverage, d.Params.N)
}

// Run executes a single realization drawing from src.
func (d Driver) Run(ctx context.Context, src rand.Source) (model.Trajectory, error) {
	init, err := model.InitialState(d.Params, d.I0, d.Coverage)
	if err != nil {
		return nil, err
	}
	return d.Stepper.Advance(ctx, init, model.Transitions(), model.Rates, d.Params, d.Horizon, src)
}

// RunError records the failure of a single replication.
type RunError struct {
	Index int
	Err   error
}

func (e RunError) Error() string {
	return fmt.Sprintf("replication %d: %v", e.Index, e.Err)
}

func (e RunError) Unwrap() error {
	return e.Err
}

// Batch runs n independent replications of the driver with at most
// parallelism concurrent workers. Replication r draws from a generator
// seeded seedBase+r, so a fixed seedBase reproduces the batch exactly.
//
// Only terminal trajectory points are retained. Failed replications are
// returned as RunError records, never silently dropped; the error return is
// reserved for invalid configuration and cancellation.
func Batch(ctx context.Context, d Driver, n, parallelism int, seedBase uint64) ([]model.Point, []RunError, error) {
	if n < 1 {
		return nil, nil, fmt.Errorf("replication count must be at least 1, got %d", n)
	}
	if parallelism < 1 {
		return nil, nil, fmt.Errorf("parallelism must be at least 1, got %d", parallelism)
	}
	if err := d.Validate(); err != nil {
		return nil, nil, err
	}

	finals := make([]model.Point, n)
	errs := make([]error, n)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for r := 0; r < n; r++ {
		g.Go(func() error {
			src := rand.NewSource(seedBase + uint64(r))
			traj, err := d.Run(ctx, src)
			if err != nil {
				// Cancellation aborts the whole batch; anything else is an
				// isolated per-replication failure.
				if ctx.Err() != nil {
					return ctx.Err()
				}
				errs[r] = err
				return nil
			}
			finals[r] = traj.Final()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var failures []RunError
	ok := finals[:0]
	for r := 0; r < n; r++ {
		if errs[r] != nil {
			failures = append(failures, RunError{Index: r, Err: errs[r]})
			continue
		}
		ok = append(ok, finals[r])
	}
	return ok, failures, nil
}
