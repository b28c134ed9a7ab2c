package model

import (
	"fmt"
	"math"
)

// Transitions returns the three SEIR transitions in rate order:
// infection (S-1, E+1), progression (E-1, I+1), recovery (I-1, R+1).
func Transitions() []Transition {
	return []Transition{
		{Name: "infection", Delta: [NumCompartments]int64{Susceptible: -1, Exposed: +1}},
		{Name: "progression", Delta: [NumCompartments]int64{Exposed: -1, Infectious: +1}},
		{Name: "recovery", Delta: [NumCompartments]int64{Infectious: -1, Recovered: +1}},
	}
}

// Rates is the SEIR rate function: (beta·S·I/N, sigma·E, gamma·I).
// Each rate is zero exactly when its source compartment is exhausted, so no
// transition that would produce a negative count carries positive rate.
func Rates(s State, p Params, _ float64) []float64 {
	return []float64{
		p.Beta * float64(s[Susceptible]) * float64(s[Infectious]) / float64(p.N),
		p.Sigma * float64(s[Exposed]),
		p.Gamma * float64(s[Infectious]),
	}
}

// Vaccinated returns the number of individuals removed to the Recovered
// compartment at t=0 for coverage p: round(p × (N−1)).
func Vaccinated(coverage float64, n int64) int64 {
	return int64(math.Round(coverage * float64(n-1)))
}

// InitialState builds the t=0 compartment state for one run:
// S = N − I0 − vaccinated, E = 0, I = I0, R = vaccinated.
func InitialState(p Params, i0 int64, coverage float64) (State, error) {
	if coverage < 0 || coverage > 1 {
		return State{}, fmt.Errorf("vaccination coverage must be in [0, 1], got %g", coverage)
	}
	if i0 < 0 {
		return State{}, fmt.Errorf("initial infectious count must be non-negative, got %d", i0)
	}
	if p.N < i0+1 {
		return State{}, fmt.Errorf("population %d too small for %d initial infectious", p.N, i0)
	}

	vaccinated := Vaccinated(coverage, p.N)
	susceptible := p.N - i0 - vaccinated
	if susceptible < 0 {
		// Full coverage with I0 > 1 can round past the remaining pool.
		vaccinated += susceptible
		susceptible = 0
	}

	return State{
		Susceptible: susceptible,
		Exposed:     0,
		Infectious:  i0,
		Recovered:   vaccinated,
	}, nil
}
