package ctest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"strconv"
	"strings"

	"github.com/chkao831/Autotuning/internal/fsutil"
)

var (
	// ErrReportMissing is returned by LoadReport when no report file exists.
	ErrReportMissing = errors.New("report not found")
	// ErrCaseNotFound is returned by Measure when the case is absent.
	ErrCaseNotFound = errors.New("case not found in report")
)

// Timer names written by Albany into ctest reports.
const (
	TimerLinearSolve  = "NOX Total Linear Solve:"
	TimerPrecondition = "NOX Total Preconditioner Construction:"
	TimerAlbanyTotal  = "Albany Total Time:"
)

const maxReportSize = 16 * 1024 * 1024

// Seconds is a timer reading. Reports may carry it as a number or a string.
type Seconds float64

func (s *Seconds) UnmarshalJSON(data []byte) error {
	text := strings.TrimSpace(string(data))
	if strings.HasPrefix(text, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		text = strings.TrimSpace(str)
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return fmt.Errorf("invalid timer value %s: %w", data, err)
	}
	*s = Seconds(v)
	return nil
}

// CaseReport is one case's outcome within a report.
type CaseReport struct {
	Passed *bool              `json:"passed"`
	Timers map[string]Seconds `json:"timers"`
}

// Report maps case names to their outcome for a single experiment.
type Report map[string]CaseReport

// ParseReport decodes a JSON report.
func ParseReport(data []byte) (Report, error) {
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse report: %w", err)
	}
	return r, nil
}

// LoadReport reads the report at path. A missing file yields an error
// wrapping ErrReportMissing.
func LoadReport(fsys fsutil.FileSystem, path string) (Report, error) {
	if info, err := fsys.Stat(path); err == nil && info.Size() > maxReportSize {
		return nil, fmt.Errorf("report %s too large (%d bytes)", path, info.Size())
	}
	data, err := fsys.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrReportMissing)
		}
		return nil, fmt.Errorf("read report %s: %w", path, err)
	}
	r, err := ParseReport(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// Metric names the timers that make up a measurement. Primary timers are
// summed to give the ranking duration.
type Metric struct {
	Primary []string
	Total   string
}

// DefaultMetric ranks by linear solve plus preconditioner construction.
var DefaultMetric = Metric{
	Primary: []string{TimerLinearSolve, TimerPrecondition},
	Total:   TimerAlbanyTotal,
}

// Measurement is the outcome of one experiment in one round. A failed or
// incomplete run has Primary = +Inf.
type Measurement struct {
	Passed  bool
	Primary float64
	// Total is reported even for failed runs when the harness wrote it,
	// and is +Inf otherwise.
	Total float64
}

// Failed is the measurement recorded when no usable report exists.
func Failed() Measurement {
	return Measurement{Primary: math.Inf(1), Total: math.Inf(1)}
}

// Measure extracts the measurement for caseName. A case absent from the
// report is an error; a failed case or a missing or non-finite primary
// timer is not.
func (r Report) Measure(caseName string, m Metric) (Measurement, error) {
	cr, ok := r[caseName]
	if !ok {
		return Measurement{}, fmt.Errorf("%w: %q", ErrCaseNotFound, caseName)
	}

	out := Failed()
	if t, ok := cr.Timers[m.Total]; ok && m.Total != "" && isFinite(float64(t)) {
		out.Total = float64(t)
	}
	if cr.Passed == nil || !*cr.Passed {
		return out, nil
	}

	var sum float64
	for _, name := range m.Primary {
		t, ok := cr.Timers[name]
		if !ok {
			return out, nil
		}
		sum += float64(t)
	}
	// nan or inf timers are as unusable as missing ones
	if !isFinite(sum) {
		return out, nil
	}
	out.Primary = sum
	out.Passed = true
	return out, nil
}

func isFinite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}
