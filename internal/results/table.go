package results

import (
	"cmp"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"

	"github.com/chkao831/Autotuning/internal/sweep"
)

// Output column names.
const (
	ColumnID      = "iter_id"
	ColumnPrimary = "time_NOX"
	ColumnTotal   = "time_AlbanyTotal"
	ColumnPassed  = "passed"
)

// Row is one experiment's reduced result.
type Row struct {
	ID         int
	Assignment sweep.Assignment
	Primary    float64
	Total      float64
	Passed     bool
	Rounds     int
	// Pending rows have been run but not yet evaluated.
	Pending bool
}

// Table is the flat, exportable result set.
type Table struct {
	// Columns are the parameter columns in first-seen order.
	Columns []string
	Rows    []Row
}

// Sort ranks rows by ascending primary duration, ties broken by id. Failed
// rows (+Inf) sort after every passed row. Sorting a sorted table is a no-op.
func (t *Table) Sort() {
	slices.SortStableFunc(t.Rows, func(a, b Row) int {
		if c := compareDuration(a, b); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func compareDuration(a, b Row) int {
	// pending rows have no duration yet and rank last
	if a.Pending != b.Pending {
		if a.Pending {
			return 1
		}
		return -1
	}
	// failed rows rank after passed ones whatever their durations hold
	if a.Passed != b.Passed {
		if a.Passed {
			return -1
		}
		return 1
	}
	if !a.Passed {
		return 0
	}
	return cmp.Compare(a.Primary, b.Primary)
}

// Best returns the fastest passed row.
func (t *Table) Best() (Row, bool) {
	var best Row
	found := false
	for _, r := range t.Rows {
		if !r.Passed || r.Pending {
			continue
		}
		if !found || r.Primary < best.Primary || (r.Primary == best.Primary && r.ID < best.ID) {
			best, found = r, true
		}
	}
	return best, found
}

// Summary describes a table for logging.
type Summary struct {
	Experiments int
	Passed      int
	Failed      int
	Mean        float64
	Stddev      float64
}

// Summarize counts outcomes and reports the spread of passed durations.
func (t *Table) Summarize() Summary {
	s := Summary{}
	var times []float64
	for _, r := range t.Rows {
		if r.Pending {
			continue
		}
		s.Experiments++
		if r.Passed {
			s.Passed++
			times = append(times, r.Primary)
		} else {
			s.Failed++
		}
	}
	s.Mean, s.Stddev = sweep.MeanStddev(times)
	return s
}

// Header returns the CSV header row.
func (t *Table) Header() []string {
	header := []string{ColumnID}
	header = append(header, t.Columns...)
	return append(header, ColumnPrimary, ColumnTotal, ColumnPassed)
}

// Records flattens the table to CSV records, header first.
func (t *Table) Records() [][]string {
	records := [][]string{t.Header()}
	for _, r := range t.Rows {
		rec := []string{strconv.Itoa(r.ID)}
		for _, col := range t.Columns {
			v, ok := r.Assignment.Lookup(col)
			if !ok {
				rec = append(rec, "")
				continue
			}
			rec = append(rec, v.String())
		}
		if r.Pending {
			rec = append(rec, "", "", "")
		} else {
			rec = append(rec, FormatSeconds(r.Primary), FormatSeconds(r.Total), formatBool(r.Passed))
		}
		records = append(records, rec)
	}
	return records
}

// WriteCSV writes the table to w.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(t.Records()); err != nil {
		return fmt.Errorf("write results csv: %w", err)
	}
	return nil
}

// FormatSeconds renders a duration for output; +Inf is written as "inf".
func FormatSeconds(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "inf"
	case math.IsNaN(v):
		return "nan"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
