package model

import (
	"errors"
	"fmt"
)

// Compartment indexes a position in a State vector and in Transition deltas.
type Compartment int

// The four SEIR compartments, in vector order.
const (
	Susceptible Compartment = iota
	Exposed
	Infectious
	Recovered

	NumCompartments
)

var compartmentNames = [NumCompartments]string{"S", "E", "I", "R"}

// String returns the single-letter compartment name.
func (c Compartment) String() string {
	if c < 0 || c >= NumCompartments {
		return fmt.Sprintf("Compartment(%d)", int(c))
	}
	return compartmentNames[c]
}

// ErrNegativeCount indicates a transition would drive a compartment below zero.
var ErrNegativeCount = errors.New("transition would produce a negative compartment count")

// State holds the population count of each compartment at one instant.
type State [NumCompartments]int64

// Total returns the summed population across all compartments.
func (s State) Total() int64 {
	var total int64
	for _, count := range s {
		total += count
	}
	return total
}

// Apply returns the state after firing one occurrence of the transition.
// Counts must stay non-negative; a violation is an engine invariant failure.
func (s State) Apply(tr Transition) (State, error) {
	return s.ApplyN(tr, 1)
}

// ApplyN returns the state after firing n occurrences of the transition.
func (s State) ApplyN(tr Transition, n int64) (State, error) {
	next := s
	for c := Compartment(0); c < NumCompartments; c++ {
		next[c] += n * tr.Delta[c]
		if next[c] < 0 {
			return s, fmt.Errorf("%w: %s fired %d times from %v", ErrNegativeCount, tr.Name, n, s)
		}
	}
	return next, nil
}

// Transition is an immutable delta vector over compartments. Deltas sum to
// zero so every transition conserves the total population.
type Transition struct {
	Name  string
	Delta [NumCompartments]int64
}

// Validate checks that the transition conserves population.
func (tr Transition) Validate() error {
	var sum int64
	for _, d := range tr.Delta {
		sum += d
	}
	if sum != 0 {
		return fmt.Errorf("transition %s does not conserve population: deltas sum to %d", tr.Name, sum)
	}
	return nil
}

// RateFunc maps the current state, parameters, and time to one instantaneous
// rate per transition, in the same order as the transition list. Rates must
// be non-negative and must be zero whenever the transition's source
// compartment is exhausted.
type RateFunc func(s State, p Params, t float64) []float64
