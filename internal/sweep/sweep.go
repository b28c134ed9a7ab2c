// Package sweep drives the Monte-Carlo vaccination-coverage study: for each
// coverage value it runs a batch of independent SEIR realizations, classifies
// each run as epidemic or fade-out against a size threshold, and reduces the
// batch to one summary row.
package sweep

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/epistoch/seirsweep/internal/engine"
	"github.com/epistoch/seirsweep/internal/logger"
	"github.com/epistoch/seirsweep/internal/model"
	"github.com/epistoch/seirsweep/internal/replicate"
)

// Config holds one sweep study's settings.
type Config struct {
	Params       model.Params
	I0           int64
	Horizon      float64
	Replications int
	// Threshold classifies a run as an epidemic iff its size is strictly
	// greater than this value.
	Threshold int64
	Coverages []float64
	// Parallelism bounds concurrent replications. The coverage loop itself is
	// sequential, so the replication pool is the only source of concurrency
	// and the machine is never oversubscribed by nesting.
	Parallelism int
	// Seed is the base of the deterministic seed schedule: replication r at
	// coverage index i draws from seed Seed + i·Replications + r.
	Seed uint64
}

// Validate checks the sweep configuration before any simulation work.
func (c Config) Validate() error {
	if err := c.Params.Validate(); err != nil {
		return err
	}
	if c.Replications < 1 {
		return fmt.Errorf("replications must be at least 1, got %d", c.Replications)
	}
	if c.Parallelism < 1 {
		return fmt.Errorf("parallelism must be at least 1, got %d", c.Parallelism)
	}
	if c.Threshold < 0 {
		return fmt.Errorf("epidemic threshold must be non-negative, got %d", c.Threshold)
	}
	if len(c.Coverages) == 0 {
		return fmt.Errorf("at least one coverage value is required")
	}
	for _, p := range c.Coverages {
		if p < 0 || p > 1 {
			return fmt.Errorf("vaccination coverage must be in [0, 1], got %g", p)
		}
	}
	if _, err := model.InitialState(c.Params, c.I0, c.Coverages[0]); err != nil {
		return err
	}
	return nil
}

// Row is the summary for one coverage value.
type Row struct {
	// Coverage is the vaccination coverage p.
	Coverage float64
	// Probability is the fraction of surviving replications classified as
	// epidemics.
	Probability float64
	// MeanSize is the mean epidemic size over the epidemic subset. It is NaN
	// when no replication exceeded the threshold; a zero here would be
	// mistaken for "epidemics of negligible size occur with certainty".
	MeanSize float64
	// Epidemics is the number of replications above the threshold.
	Epidemics int
	// Failures is the number of replications that errored and were excluded
	// from the aggregate.
	Failures int
	// Replications is the attempted replication count n.
	Replications int
}

// Checkpointer persists completed rows so a long sweep survives partial
// failure without re-running finished coverage values.
type Checkpointer interface {
	// Lookup returns the previously completed row for a coverage value.
	Lookup(coverage float64) (Row, bool, error)
	// Save persists a completed row.
	Save(Row) error
}

// Pipeline runs one sweep study.
type Pipeline struct {
	cfg     Config
	stepper engine.Stepper
	store   Checkpointer
}

// New builds a pipeline. store may be nil to disable checkpointing.
func New(cfg Config, stepper engine.Stepper, store Checkpointer) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sweep config: %w", err)
	}
	if stepper == nil {
		return nil, fmt.Errorf("invalid sweep config: no stepper")
	}
	return &Pipeline{cfg: cfg, stepper: stepper, store: store}, nil
}

// Run executes the study and returns one row per coverage value, sorted by
// coverage. Rows restored from the checkpoint store are not re-run.
func (p *Pipeline) Run(ctx context.Context) ([]Row, error) {
	coverages := append([]float64(nil), p.cfg.Coverages...)
	sort.Float64s(coverages)

	rows := make([]Row, 0, len(coverages))
	for i, coverage := range coverages {
		if p.store != nil {
			row, found, err := p.store.Lookup(coverage)
			if err != nil {
				return rows, fmt.Errorf("checkpoint lookup for p=%g: %w", coverage, err)
			}
			if found {
				logger.Info("coverage p=%.4f restored from checkpoint", coverage)
				rows = append(rows, row)
				continue
			}
		}

		row, err := p.runLevel(ctx, i, coverage)
		if err != nil {
			return rows, err
		}
		rows = append(rows, row)

		if p.store != nil {
			if err := p.store.Save(row); err != nil {
				return rows, fmt.Errorf("checkpoint save for p=%g: %w", coverage, err)
			}
		}
	}
	return rows, nil
}

// runLevel simulates one coverage value and aggregates its batch.
func (p *Pipeline) runLevel(ctx context.Context, index int, coverage float64) (Row, error) {
	driver := replicate.Driver{
		Params:   p.cfg.Params,
		I0:       p.cfg.I0,
		Coverage: coverage,
		Horizon:  p.cfg.Horizon,
		Stepper:  p.stepper,
	}

	started := time.Now()
	seedBase := p.cfg.Seed + uint64(index)*uint64(p.cfg.Replications)
	finals, failures, err := replicate.Batch(ctx, driver, p.cfg.Replications, p.cfg.Parallelism, seedBase)
	if err != nil {
		return Row{}, fmt.Errorf("coverage p=%g: %w", coverage, err)
	}
	for _, f := range failures {
		logger.Warn("coverage p=%.4f: %v", coverage, f)
	}

	row := Aggregate(coverage, finals, driver.Vaccinated(), p.cfg.Threshold, p.cfg.Replications)
	logger.Info("coverage p=%.4f done in %s: prob=%.4f epidemics=%d failures=%d",
		coverage, time.Since(started).Round(time.Millisecond), row.Probability, row.Epidemics, row.Failures)
	return row, nil
}

// Aggregate reduces the terminal points of one batch to a summary row.
// n is the attempted replication count; len(finals) may be smaller when
// replications failed. The epidemic probability is taken over the surviving
// replications, and MeanSize is NaN when the epidemic subset is empty.
func Aggregate(coverage float64, finals []model.Point, vaccinated, threshold int64, n int) Row {
	row := Row{
		Coverage:     coverage,
		MeanSize:     math.NaN(),
		Failures:     n - len(finals),
		Replications: n,
	}
	if len(finals) == 0 {
		return row
	}

	var sizeSum int64
	for _, final := range finals {
		size := model.EpidemicSize(final, vaccinated)
		if size > threshold {
			row.Epidemics++
			sizeSum += size
		}
	}

	row.Probability = float64(row.Epidemics) / float64(len(finals))
	if row.Epidemics > 0 {
		row.MeanSize = float64(sizeSum) / float64(row.Epidemics)
	}
	return row
}
