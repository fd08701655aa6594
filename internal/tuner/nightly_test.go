package tuner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chkao831/Autotuning/internal/ctest"
	"github.com/chkao831/Autotuning/internal/deck"
	"github.com/chkao831/Autotuning/internal/fsutil"
	"github.com/chkao831/Autotuning/internal/history"
)

const reportPath = "/build/ctest-nightly.json"

func newNightly(t *testing.T) (*Nightly, *fsutil.MemoryFileSystem) {
	t.Helper()
	mfs, _, _ := newFixture(t)
	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	seed := uint64(99)
	return &Nightly{
		FS:        mfs,
		Store:     store,
		DeckPath:  deckPath,
		Factories: deck.DefaultFactoriesPath,
		Groups:    dampingGroups(t, 0.8, 0.9, 1.0),
		Seed:      &seed,
		CaseName:  caseName,
		Metric:    ctest.DefaultMetric,
		Artifacts: ctest.NewArtifacts(buildDir, "input"),
	}, mfs
}

func writeReport(t *testing.T, mfs *fsutil.MemoryFileSystem, passed bool, primary float64) {
	t.Helper()
	report := fmt.Sprintf(`{%q: {"passed": %v, "timers": {
		"NOX Total Linear Solve:": %v,
		"NOX Total Preconditioner Construction:": 0,
		"Albany Total Time:": 9.5}}}`, caseName, passed, primary)
	require.NoError(t, mfs.WriteFile(reportPath, []byte(report), 0644))
}

func readFile(t *testing.T, mfs *fsutil.MemoryFileSystem, path string) string {
	t.Helper()
	data, err := mfs.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestNightly_FirstStep(t *testing.T) {
	n, mfs := newNightly(t)

	rec, err := n.Step(context.Background(), reportPath)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.IterID)
	assert.True(t, rec.Pending())

	current := readFile(t, mfs, deckPath)
	assert.NotEqual(t, sampleDeck, current)
	assert.Equal(t, current, readFile(t, mfs, "/build/input_0.yaml"))
	assert.Equal(t, current, readFile(t, mfs, "/build/input_Best.yaml"))

	hist := readFile(t, mfs, "/build/"+caseName+"_hist.csv")
	lines := strings.Split(strings.TrimSpace(hist), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "0,"))
	assert.True(t, strings.HasSuffix(lines[1], ",,,"))
}

func TestNightly_EvaluatesAndTracksBest(t *testing.T) {
	n, mfs := newNightly(t)
	ctx := context.Background()

	_, err := n.Step(ctx, reportPath)
	require.NoError(t, err)
	deck0 := readFile(t, mfs, "/build/input_0.yaml")

	writeReport(t, mfs, true, 2.5)
	rec, err := n.Step(ctx, reportPath)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.IterID)
	assert.Equal(t, deck0, readFile(t, mfs, "/build/input_Best.yaml"))

	writeReport(t, mfs, true, 1.5)
	_, err = n.Step(ctx, reportPath)
	require.NoError(t, err)
	assert.Equal(t, readFile(t, mfs, "/build/input_1.yaml"), readFile(t, mfs, "/build/input_Best.yaml"))

	writeReport(t, mfs, false, 0.1)
	rec, err = n.Step(ctx, reportPath)
	require.NoError(t, err)
	assert.Equal(t, 3, rec.IterID)
	assert.Equal(t, readFile(t, mfs, "/build/input_1.yaml"), readFile(t, mfs, "/build/input_Best.yaml"))

	records, err := n.Store.List(caseName)
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.False(t, records[2].Outcome.Passed)
	assert.True(t, records[3].Pending())

	hist := readFile(t, mfs, "/build/"+caseName+"_hist.csv")
	assert.Contains(t, hist, ",2.5,9.5,True\n")
	assert.Contains(t, hist, ",inf,inf,False\n")
}

func TestNightly_ReportErrors(t *testing.T) {
	n, mfs := newNightly(t)
	ctx := context.Background()
	_, err := n.Step(ctx, reportPath)
	require.NoError(t, err)

	_, err = n.Step(ctx, reportPath)
	assert.True(t, errors.Is(err, ctest.ErrReportMissing), "got %v", err)

	require.NoError(t, mfs.WriteFile(reportPath, []byte(`{"OtherCase": {"passed": true}}`), 0644))
	_, err = n.Step(ctx, reportPath)
	assert.True(t, errors.Is(err, ctest.ErrCaseNotFound), "got %v", err)

	latest, err := n.Store.Latest(caseName)
	require.NoError(t, err)
	assert.Equal(t, 0, latest.IterID)
	assert.True(t, latest.Pending())
}

func TestNightly_SeededCandidatesAreReproducible(t *testing.T) {
	a, _ := newNightly(t)
	b, _ := newNightly(t)

	for iter := 0; iter < 3; iter++ {
		ca, err := a.candidate(iter)
		require.NoError(t, err)
		cb, err := b.candidate(iter)
		require.NoError(t, err)
		assert.Equal(t, ca.String(), cb.String())
	}
}
