package model

// Point is one sample of a trajectory: the compartment counts at a time.
type Point struct {
	Time  float64
	State State
}

// Trajectory is an ordered sequence of samples, time strictly increasing,
// first entry at t=0. It is owned by the run that produced it.
type Trajectory []Point

// Final returns the last sample of the trajectory.
// The engine never produces an empty trajectory.
func (tr Trajectory) Final() Point {
	return tr[len(tr)-1]
}

// EpidemicSize returns the net number of secondary infections of a finished
// run: the final Recovered count minus the count vaccinated at t=0.
func EpidemicSize(final Point, vaccinated int64) int64 {
	return final.State[Recovered] - vaccinated
}
