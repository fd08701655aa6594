// Package tuner drives the offline sweep and the nightly incremental search
// on top of the deck editor, the ctest harness and the results table.
package tuner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/chkao831/Autotuning/internal/chart"
	"github.com/chkao831/Autotuning/internal/ctest"
	"github.com/chkao831/Autotuning/internal/deck"
	"github.com/chkao831/Autotuning/internal/fsutil"
	"github.com/chkao831/Autotuning/internal/monitoring"
	"github.com/chkao831/Autotuning/internal/results"
	"github.com/chkao831/Autotuning/internal/sweep"
	"github.com/chkao831/Autotuning/internal/timeutil"
)

// Sweep modes.
const (
	ModeGrid   = "grid"
	ModeRandom = "random"
)

// Sweep runs every experiment of a parameter space against the harness,
// Rounds times, and ranks the reduced results.
type Sweep struct {
	FS      fsutil.FileSystem
	Harness *ctest.Harness
	Clock   timeutil.Clock

	// DeckPath is the input deck the harness reads. It is overwritten per
	// experiment and restored when the sweep ends.
	DeckPath  string
	Factories deck.Path
	Groups    []sweep.Group

	Mode    string
	Samples int
	Seed    *uint64
	Rounds  int

	// CaseName is resolved from Metadata when empty.
	CaseName string
	Metadata string
	Metric   ctest.Metric

	Output    string
	ChartHTML string
	ChartPNG  string
}

// Experiments generates the sweep's experiment list.
func (s *Sweep) Experiments() ([]sweep.Experiment, error) {
	switch s.Mode {
	case ModeGrid, "":
		return sweep.Grid(s.Groups)
	case ModeRandom:
		return sweep.Random(s.Groups, s.Samples, sweep.NewRand(s.Seed))
	}
	return nil, fmt.Errorf("unknown sweep mode %q", s.Mode)
}

// Run executes the sweep and returns the ranked table. Per-experiment
// harness failures only mark that experiment failed; deck, report-format
// and output errors stop the sweep.
func (s *Sweep) Run(ctx context.Context) (*results.Table, error) {
	if s.Rounds < 1 {
		return nil, fmt.Errorf("rounds must be positive, got %d", s.Rounds)
	}
	clock := s.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	start := clock.Now()

	original, err := s.FS.ReadFile(s.DeckPath)
	if err != nil {
		return nil, fmt.Errorf("read deck: %w", err)
	}
	base, err := deck.Parse(original)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.DeckPath, err)
	}

	caseName, err := s.caseName()
	if err != nil {
		return nil, err
	}

	experiments, err := s.Experiments()
	if err != nil {
		return nil, fmt.Errorf("generate experiments: %w", err)
	}

	runID := uuid.New().String()
	monitoring.Logf("sweep %s: case %s, %d experiments x %d rounds (%s)",
		runID, caseName, len(experiments), s.Rounds, s.modeName())

	defer func() {
		if err := s.FS.WriteFile(s.DeckPath, original, 0644); err != nil {
			monitoring.Errorf("restore deck %s: %v", s.DeckPath, err)
		}
	}()

	artifacts := s.Harness.Artifacts
	collector := results.NewCollector()
	for round := 0; round < s.Rounds; round++ {
		monitoring.Logf("==================== CASE %d ====================", round)
		if n := artifacts.Cleanup(s.FS); n > 0 {
			monitoring.Logf("removed %d artifacts from previous runs", n)
		}

		for _, exp := range experiments {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := s.runOne(ctx, base, exp, round); err != nil {
				return nil, err
			}
		}

		if err := s.Harness.Convert(ctx); err != nil {
			monitoring.Warnf("convert: %v", err)
		}

		for _, exp := range experiments {
			m, err := s.measure(caseName, artifacts.ReportPath(exp.ID))
			if err != nil {
				return nil, fmt.Errorf("experiment %d: %w", exp.ID, err)
			}
			collector.Add(exp.ID, m)
			monitoring.Logf("round %d experiment %d: time_NOX=%s passed=%v",
				round, exp.ID, results.FormatSeconds(m.Primary), m.Passed)
		}
	}

	table := results.Reduce(experiments, collector)
	table.Sort()

	summary := table.Summarize()
	monitoring.Logf("sweep %s finished in %s: %d experiments, %d passed, %d failed, mean %.4fs, stddev %.4fs",
		runID, clock.Since(start).Round(time.Millisecond), summary.Experiments, summary.Passed, summary.Failed, summary.Mean, summary.Stddev)
	if best, ok := table.Best(); ok {
		monitoring.Logf("best experiment %d: %s (%ss)", best.ID, best.Assignment, results.FormatSeconds(best.Primary))
	} else {
		monitoring.Warnf("no experiment passed")
	}

	if err := s.writeOutputs(table, caseName); err != nil {
		return table, err
	}
	return table, nil
}

func (s *Sweep) runOne(ctx context.Context, base *deck.Deck, exp sweep.Experiment, round int) error {
	monitoring.Logf("******************** SIMULATION %d ********************", exp.ID)

	applied, ignored, err := base.Apply(s.Factories, exp.Assignment)
	if err != nil {
		return fmt.Errorf("experiment %d: %w", exp.ID, err)
	}
	for _, set := range ignored {
		monitoring.Warnf("%s has no key %q, setting ignored", set.Group, set.Name)
	}
	for _, g := range s.Groups {
		monitoring.Logf("[%s] %s", g.Smoother, exp.Assignment.ForGroup(g.Smoother))
	}

	if err := applied.Save(s.FS, s.DeckPath); err != nil {
		return fmt.Errorf("experiment %d: %w", exp.ID, err)
	}
	if err := s.Harness.RunExperiment(ctx, exp.ID, round, s.DeckPath); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		monitoring.Warnf("experiment %d: %v", exp.ID, err)
	}
	return nil
}

// measure reads one experiment's report. A missing report or case marks the
// experiment failed; an unreadable report is an error.
func (s *Sweep) measure(caseName, path string) (ctest.Measurement, error) {
	report, err := ctest.LoadReport(s.FS, path)
	if errors.Is(err, ctest.ErrReportMissing) {
		monitoring.Warnf("%v, counting as failed", err)
		return ctest.Failed(), nil
	}
	if err != nil {
		return ctest.Measurement{}, err
	}
	m, err := report.Measure(caseName, s.Metric)
	if errors.Is(err, ctest.ErrCaseNotFound) {
		monitoring.Warnf("%s: %v, counting as failed", path, err)
		return ctest.Failed(), nil
	}
	return m, err
}

func (s *Sweep) writeOutputs(table *results.Table, caseName string) error {
	output := s.Output
	if output == "" {
		output = filepath.Join(filepath.Dir(s.DeckPath), deck.Stem(s.DeckPath)+".csv")
	}
	var buf bytes.Buffer
	if err := results.WriteCSV(&buf, table); err != nil {
		return err
	}
	if err := s.FS.WriteFile(output, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write results %s: %w", output, err)
	}
	monitoring.Logf("wrote %d results to %s", len(table.Rows), output)

	title := fmt.Sprintf("%s %s sweep", caseName, s.modeName())
	if s.ChartHTML != "" {
		if err := chart.SaveHTML(s.FS, s.ChartHTML, table, title); err != nil {
			if !errors.Is(err, chart.ErrNoData) {
				return err
			}
			monitoring.Warnf("skipping %s: %v", s.ChartHTML, err)
		}
	}
	if s.ChartPNG != "" {
		if err := chart.WritePNG(s.FS, s.ChartPNG, table, title); err != nil {
			if !errors.Is(err, chart.ErrNoData) {
				return err
			}
			monitoring.Warnf("skipping %s: %v", s.ChartPNG, err)
		}
	}
	return nil
}

func (s *Sweep) caseName() (string, error) {
	if s.CaseName != "" {
		return s.CaseName, nil
	}
	if s.Metadata == "" {
		return "", fmt.Errorf("case name or ctest metadata is required")
	}
	return ctest.LoadCaseName(s.FS, s.Metadata, filepath.Base(s.DeckPath))
}

func (s *Sweep) modeName() string {
	if s.Mode == "" {
		return ModeGrid
	}
	return s.Mode
}
