package ctest

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chkao831/Autotuning/internal/fsutil"
	"github.com/chkao831/Autotuning/internal/monitoring"
)

// Default artifact name patterns. {id} is the experiment id, {round} the
// zero-based round and {stem} the deck name without extension.
const (
	DefaultReportPattern   = "ctest-{id}.json"
	DefaultLogPattern      = "LastTest_{id}-0.log"
	DefaultDeckCopyPattern = "{stem}_{id}.yaml"
	DefaultBestPattern     = "{stem}_Best.yaml"
)

// Artifacts maps experiment ids to the files produced for them. Every
// per-experiment path is derived here; ids are never parsed out of names.
type Artifacts struct {
	Dir      string
	Stem     string
	Report   string
	Log      string
	DeckCopy string
	Best     string
}

// NewArtifacts returns the default layout for a deck stem in dir.
func NewArtifacts(dir, stem string) Artifacts {
	return Artifacts{
		Dir:      dir,
		Stem:     stem,
		Report:   DefaultReportPattern,
		Log:      DefaultLogPattern,
		DeckCopy: DefaultDeckCopyPattern,
		Best:     DefaultBestPattern,
	}
}

// Validate checks that every per-experiment pattern is keyed by {id}.
func (a Artifacts) Validate() error {
	if a.Stem == "" {
		return fmt.Errorf("artifacts: deck stem is required")
	}
	for name, p := range map[string]string{"report": a.Report, "log": a.Log, "deck_copy": a.DeckCopy} {
		if !strings.Contains(p, "{id}") {
			return fmt.Errorf("artifacts: %s pattern %q must contain {id}", name, p)
		}
		if strings.ContainsAny(p, `/\`) {
			return fmt.Errorf("artifacts: %s pattern %q must be a bare file name", name, p)
		}
	}
	if a.Best == "" || strings.Contains(a.Best, "{id}") {
		return fmt.Errorf("artifacts: best pattern %q must be a fixed name", a.Best)
	}
	return nil
}

func (a Artifacts) ReportPath(id int) string { return a.path(a.Report, id, 0) }

func (a Artifacts) LogPath(id, round int) string { return a.path(a.Log, id, round) }

func (a Artifacts) DeckCopyPath(id int) string { return a.path(a.DeckCopy, id, 0) }

func (a Artifacts) BestPath() string { return a.path(a.Best, 0, 0) }

// CleanupGlobs lists the globs matching every per-experiment artifact left
// by a previous sweep.
func (a Artifacts) CleanupGlobs() []string {
	wild := strings.NewReplacer("{id}", "*", "{round}", "*", "{stem}", a.Stem)
	var globs []string
	for _, p := range []string{a.DeckCopy, a.Log, a.Report} {
		globs = append(globs, filepath.Join(a.Dir, wild.Replace(p)))
	}
	return globs
}

// Cleanup removes everything matched by CleanupGlobs. Failures are logged and
// skipped. It returns the number of files removed.
func (a Artifacts) Cleanup(fsys fsutil.FileSystem) int {
	removed := 0
	for _, pattern := range a.CleanupGlobs() {
		matches, err := fsys.Glob(pattern)
		if err != nil {
			monitoring.Errorf("cleanup %s: %v", pattern, err)
			continue
		}
		for _, path := range matches {
			if err := fsys.Remove(path); err != nil {
				monitoring.Errorf("while deleting %s: %v", path, err)
				continue
			}
			removed++
		}
	}
	return removed
}

func (a Artifacts) path(pattern string, id, round int) string {
	name := strings.NewReplacer(
		"{id}", strconv.Itoa(id),
		"{round}", strconv.Itoa(round),
		"{stem}", a.Stem,
	).Replace(pattern)
	return filepath.Join(a.Dir, name)
}
