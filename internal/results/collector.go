// Package results reduces per-round measurements into a ranked table.
package results

import (
	"math"

	"github.com/chkao831/Autotuning/internal/ctest"
	"github.com/chkao831/Autotuning/internal/sweep"
)

// Collector accumulates measurements per experiment id across rounds.
type Collector struct {
	samples map[int][]ctest.Measurement
}

func NewCollector() *Collector {
	return &Collector{samples: make(map[int][]ctest.Measurement)}
}

// Add records one round's measurement for id.
func (c *Collector) Add(id int, m ctest.Measurement) {
	c.samples[id] = append(c.samples[id], m)
}

// Samples returns the measurements recorded for id in round order.
func (c *Collector) Samples(id int) []ctest.Measurement {
	return c.samples[id]
}

// Reduce merges assignments with their measurements. Each duration is the
// median across rounds rounded to 4 decimal places; an experiment passes
// when its median primary duration is finite. Experiments with no samples
// are failed. The returned table is in experiment order; call Sort to rank.
func Reduce(experiments []sweep.Experiment, c *Collector) *Table {
	t := &Table{}
	seen := make(map[string]bool)
	for _, e := range experiments {
		for _, col := range e.Assignment.Columns() {
			if !seen[col] {
				seen[col] = true
				t.Columns = append(t.Columns, col)
			}
		}

		samples := c.Samples(e.ID)
		row := Row{
			ID:         e.ID,
			Assignment: e.Assignment,
			Primary:    math.Inf(1),
			Total:      math.Inf(1),
			Rounds:     len(samples),
		}
		if len(samples) > 0 {
			primary := make([]float64, len(samples))
			total := make([]float64, len(samples))
			for i, m := range samples {
				primary[i] = m.Primary
				total[i] = m.Total
			}
			row.Primary = sweep.Round4(sweep.Median(primary))
			row.Total = sweep.Round4(sweep.Median(total))
		}
		row.Passed = !math.IsInf(row.Primary, 0) && !math.IsNaN(row.Primary)
		t.Rows = append(t.Rows, row)
	}
	return t
}
