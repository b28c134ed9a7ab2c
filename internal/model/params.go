package model

import (
	"errors"
	"fmt"
)

// Params is the immutable SEIR parameter set for one sweep.
type Params struct {
	// Beta is the contact (transmission) rate.
	Beta float64
	// Sigma is the progression rate, 1 / mean latency period.
	Sigma float64
	// Gamma is the recovery rate.
	Gamma float64
	// N is the total (closed) population size.
	N int64
}

// R0 returns the basic reproduction number beta / (sigma + gamma).
func (p Params) R0() float64 {
	return p.Beta / (p.Sigma + p.Gamma)
}

// CriticalCoverage returns the critical vaccination threshold 1 - 1/R0,
// above which a fully mixed deterministic model predicts no sustained spread.
// Negative values (R0 < 1) mean no vaccination is needed at all.
func (p Params) CriticalCoverage() float64 {
	return 1 - 1/p.R0()
}

// Validate checks the parameter set for configuration errors.
func (p Params) Validate() error {
	if p.N < 1 {
		return fmt.Errorf("population size must be at least 1, got %d", p.N)
	}
	if p.Beta < 0 {
		return fmt.Errorf("beta must be non-negative, got %g", p.Beta)
	}
	if p.Sigma < 0 {
		return fmt.Errorf("sigma must be non-negative, got %g", p.Sigma)
	}
	if p.Gamma < 0 {
		return fmt.Errorf("gamma must be non-negative, got %g", p.Gamma)
	}
	if p.Sigma+p.Gamma == 0 {
		return errors.New("sigma and gamma must not both be zero")
	}
	return nil
}
