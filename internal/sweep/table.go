package sweep

import (
	"fmt"
	"math"
	"strings"
)

// Coverages builds the sequence from, from+step, … capped at to inclusive.
// Accumulated floating-point error is absorbed by rounding each value to the
// step's precision, so 0→1 by 0.1 yields exactly 0.1·k.
func Coverages(from, to, step float64) []float64 {
	if step <= 0 || to < from {
		return nil
	}
	var seq []float64
	for k := 0; ; k++ {
		p := from + float64(k)*step
		if p > to+step/2 {
			break
		}
		seq = append(seq, math.Min(math.Round(p/step)*step, to))
	}
	return seq
}

// FormatTable renders rows as a fixed-width text table. An undefined mean
// size (empty epidemic subset) is rendered as "n/a"; the underlying row
// keeps its NaN.
func FormatTable(rows []Row) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-10s %-14s %-16s %-10s %-9s\n", "coverage", "prob_epidemic", "mean_epi_size", "epidemics", "failures")
	fmt.Fprintf(&b, "%s\n", strings.Repeat("-", 62))
	for _, row := range rows {
		meanSize := "n/a"
		if !math.IsNaN(row.MeanSize) {
			meanSize = fmt.Sprintf("%.1f", row.MeanSize)
		}
		fmt.Fprintf(&b, "%-10.4f %-14.4f %-16s %-10d %-9d\n",
			row.Coverage, row.Probability, meanSize, row.Epidemics, row.Failures)
	}
	return b.String()
}
