package tuner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/chkao831/Autotuning/internal/ctest"
	"github.com/chkao831/Autotuning/internal/deck"
	"github.com/chkao831/Autotuning/internal/fsutil"
	"github.com/chkao831/Autotuning/internal/history"
	"github.com/chkao831/Autotuning/internal/monitoring"
	"github.com/chkao831/Autotuning/internal/sweep"
)

// Nightly advances the incremental search by one candidate per invocation:
// it scores the candidate written by the previous invocation against the
// night's report, refreshes the best deck, and writes the next candidate.
type Nightly struct {
	FS    fsutil.FileSystem
	Store *history.Store

	DeckPath  string
	Factories deck.Path
	Groups    []sweep.Group
	// Seed, when set, makes candidate n reproducible: it is drawn with
	// seed+n.
	Seed *uint64

	CaseName  string
	Metric    ctest.Metric
	Artifacts ctest.Artifacts

	// HistoryCSV defaults to <case>_hist.csv next to the deck.
	HistoryCSV string
}

// Step runs one nightly invocation and returns the newly appended candidate.
// A missing report or a report without the case is an error and leaves the
// history untouched.
func (n *Nightly) Step(ctx context.Context, reportPath string) (*history.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n.CaseName == "" {
		return nil, fmt.Errorf("case name is required")
	}

	base, err := deck.Load(n.FS, n.DeckPath)
	if err != nil {
		return nil, err
	}

	iterID := 0
	first := false
	latest, err := n.Store.Latest(n.CaseName)
	switch {
	case errors.Is(err, history.ErrEmpty):
		first = true
		monitoring.Logf("no history for %s, starting a new search", n.CaseName)
	case err != nil:
		return nil, err
	default:
		if err := n.evaluate(latest, reportPath); err != nil {
			return nil, err
		}
		if err := n.refreshBest(); err != nil {
			return nil, err
		}
		iterID = latest.IterID + 1
	}

	next, err := n.candidate(iterID)
	if err != nil {
		return nil, err
	}
	applied, ignored, err := base.Apply(n.Factories, next)
	if err != nil {
		return nil, fmt.Errorf("candidate %d: %w", iterID, err)
	}
	for _, set := range ignored {
		monitoring.Warnf("%s has no key %q, setting ignored", set.Group, set.Name)
	}
	for _, g := range n.Groups {
		monitoring.Logf("[%s] %s", g.Smoother, next.ForGroup(g.Smoother))
	}

	if err := applied.Save(n.FS, n.DeckPath); err != nil {
		return nil, err
	}
	if err := fsutil.Copy(n.FS, n.DeckPath, n.Artifacts.DeckCopyPath(iterID)); err != nil {
		return nil, err
	}
	if first {
		if err := fsutil.Copy(n.FS, n.DeckPath, n.Artifacts.BestPath()); err != nil {
			return nil, err
		}
	}

	rec := &history.Record{CaseName: n.CaseName, IterID: iterID, Assignment: next}
	if err := n.Store.Append(rec); err != nil {
		return nil, err
	}
	monitoring.Logf("candidate %d of %s written to %s (run %s)", iterID, n.CaseName, n.DeckPath, rec.RunID)

	if err := n.exportCSV(); err != nil {
		return rec, err
	}
	return rec, nil
}

// evaluate records the night's outcome for latest. A latest row that is
// already evaluated is left alone so a rerun after a crash can continue.
func (n *Nightly) evaluate(latest *history.Record, reportPath string) error {
	if !latest.Pending() {
		monitoring.Warnf("candidate %d of %s already evaluated, skipping report", latest.IterID, n.CaseName)
		return nil
	}
	report, err := ctest.LoadReport(n.FS, reportPath)
	if err != nil {
		return err
	}
	m, err := report.Measure(n.CaseName, n.Metric)
	if err != nil {
		return fmt.Errorf("%s: %w", reportPath, err)
	}
	if !m.Passed {
		m = ctest.Failed()
	}
	if err := n.Store.RecordOutcome(n.CaseName, latest.IterID, m); err != nil {
		return err
	}
	monitoring.Logf("candidate %d of %s: time_NOX=%v passed=%v", latest.IterID, n.CaseName, m.Primary, m.Passed)
	return nil
}

// refreshBest copies the fastest passed candidate's deck to the best deck.
// With no passed candidate the best deck keeps its previous content.
func (n *Nightly) refreshBest() error {
	best, err := n.Store.Best(n.CaseName)
	if errors.Is(err, history.ErrNoPassed) {
		monitoring.Warnf("no passed candidate for %s yet, keeping %s", n.CaseName, n.Artifacts.BestPath())
		return nil
	}
	if err != nil {
		return err
	}
	if err := fsutil.Copy(n.FS, n.Artifacts.DeckCopyPath(best.IterID), n.Artifacts.BestPath()); err != nil {
		return fmt.Errorf("update best deck: %w", err)
	}
	monitoring.Logf("best candidate for %s is %d (%vs)", n.CaseName, best.IterID, best.Outcome.Primary)
	return nil
}

func (n *Nightly) candidate(iterID int) (sweep.Assignment, error) {
	var seed *uint64
	if n.Seed != nil {
		s := *n.Seed + uint64(iterID)
		seed = &s
	}
	exps, err := sweep.Random(n.Groups, 1, sweep.NewRand(seed))
	if err != nil {
		return nil, fmt.Errorf("draw candidate %d: %w", iterID, err)
	}
	return exps[0].Assignment, nil
}

func (n *Nightly) exportCSV() error {
	path := n.HistoryCSV
	if path == "" {
		path = filepath.Join(filepath.Dir(n.DeckPath), fsutil.SanitizeName(n.CaseName)+"_hist.csv")
	}
	var buf bytes.Buffer
	if err := n.Store.ExportCSV(&buf, n.CaseName); err != nil {
		return err
	}
	if err := n.FS.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write history %s: %w", path, err)
	}
	return nil
}
