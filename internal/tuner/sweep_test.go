package tuner

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chkao831/Autotuning/internal/ctest"
	"github.com/chkao831/Autotuning/internal/deck"
	"github.com/chkao831/Autotuning/internal/sweep"
)

func newSweep(t *testing.T, groups []sweep.Group) (*Sweep, *fakeCTest) {
	t.Helper()
	mfs, builder, fake := newFixture(t)
	return &Sweep{
		FS:        mfs,
		Harness:   newHarness(mfs, builder),
		DeckPath:  deckPath,
		Factories: deck.DefaultFactoriesPath,
		Groups:    groups,
		Mode:      ModeGrid,
		Rounds:    1,
		Metadata:  "/build/CTestTestfile.cmake",
		Metric:    ctest.DefaultMetric,
	}, fake
}

func TestSweep_GridEndToEnd(t *testing.T) {
	s, fake := newSweep(t, dampingGroups(t, 0.8, 0.9))
	s.Rounds = 2
	s.ChartHTML = "/build/input.html"

	table, err := s.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, table.Rows, 2)
	assert.Equal(t, 0, table.Rows[0].ID)
	assert.True(t, table.Rows[0].Passed)
	assert.Equal(t, 1.2, table.Rows[0].Primary)
	assert.Equal(t, 4.2, table.Rows[0].Total)
	assert.Equal(t, 2, table.Rows[0].Rounds)

	assert.Equal(t, 1, table.Rows[1].ID)
	assert.False(t, table.Rows[1].Passed)
	assert.True(t, math.IsInf(table.Rows[1].Primary, 1))
	assert.Equal(t, 3.0, table.Rows[1].Total)

	csv, err := fake.fs.ReadFile("/build/input.csv")
	require.NoError(t, err)
	want := "iter_id,mS1::relaxation: damping factor,mS1::relaxation: sweeps,time_NOX,time_AlbanyTotal,passed\n" +
		"0,0.8,1,1.2,4.2,True\n" +
		"1,0.9,1,inf,3,False\n"
	if diff := cmp.Diff(want, string(csv)); diff != "" {
		t.Errorf("results csv mismatch (-want +got):\n%s", diff)
	}

	restored, err := fake.fs.ReadFile(deckPath)
	require.NoError(t, err)
	assert.Equal(t, sampleDeck, string(restored))

	assert.True(t, fake.fs.Exists("/build/input.html"))
	assert.True(t, fake.fs.Exists("/build/input_0.yaml"))
	assert.True(t, fake.fs.Exists("/build/input_1.yaml"))
	assert.Equal(t, 4, fake.runs)
}

func TestSweep_HarnessCommands(t *testing.T) {
	s, _ := newSweep(t, dampingGroups(t, 0.8, 0.9))
	builder := s.Harness.Builder.(interface{ Lines() []string })

	_, err := s.Run(context.Background())
	require.NoError(t, err)

	want := []string{
		"ctest -L tune --timeout 90",
		"ctest -L tune --timeout 90",
		"sh -c python ctest2json.py",
	}
	if diff := cmp.Diff(want, builder.Lines()); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestSweep_FailedRunContinues(t *testing.T) {
	s, fake := newSweep(t, dampingGroups(t, 0.8, 0.8, 0.9))
	fake.failRun = map[int]bool{0: true}

	table, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, table.Rows, 3)

	// the failed first run left no log, so only experiment 1 has a report
	assert.Equal(t, 1, table.Rows[0].ID)
	assert.True(t, table.Rows[0].Passed)
	ids := []int{table.Rows[1].ID, table.Rows[2].ID}
	assert.ElementsMatch(t, []int{0, 2}, ids)
	assert.False(t, table.Rows[1].Passed)
	assert.False(t, table.Rows[2].Passed)
}

func TestSweep_RandomIsReproducible(t *testing.T) {
	groups, err := sweep.CompileGroups([]sweep.GroupSpec{{
		Smoother: "mySmoother1",
		Prefix:   "mS1",
		Params: []sweep.ParamSpec{
			{Name: "relaxation: damping factor", Dist: &sweep.DistSpec{Kind: "uniform", Low: 0.7, High: 1.3}},
			{Name: "relaxation: sweeps", Type: "int", Range: "1:4:1"},
		},
	}})
	require.NoError(t, err)

	seed := uint64(1234)
	s1, _ := newSweep(t, groups)
	s1.Mode, s1.Samples, s1.Seed = ModeRandom, 5, &seed
	s2, _ := newSweep(t, groups)
	s2.Mode, s2.Samples, s2.Seed = ModeRandom, 5, &seed

	a, err := s1.Experiments()
	require.NoError(t, err)
	b, err := s2.Experiments()
	require.NoError(t, err)
	require.Len(t, a, 5)
	for i := range a {
		assert.Equal(t, a[i].Assignment.String(), b[i].Assignment.String())
	}

	s1.Mode = ModeGrid
	_, err = s1.Experiments()
	assert.Error(t, err, "grid mode cannot enumerate a distribution")
}

func TestSweep_MissingSmootherRestoresDeck(t *testing.T) {
	groups, err := sweep.CompileGroups([]sweep.GroupSpec{{
		Smoother: "mySmoother9",
		Params:   []sweep.ParamSpec{{Name: "relaxation: sweeps", Type: "int", Values: []interface{}{1}}},
	}})
	require.NoError(t, err)
	s, fake := newSweep(t, groups)

	_, err = s.Run(context.Background())
	var pathErr *deck.PathError
	require.True(t, errors.As(err, &pathErr), "got %v", err)

	restored, err := fake.fs.ReadFile(deckPath)
	require.NoError(t, err)
	assert.Equal(t, sampleDeck, string(restored))
	assert.Equal(t, 0, fake.runs)
}

func TestSweep_CaseNameResolution(t *testing.T) {
	s, _ := newSweep(t, dampingGroups(t, 0.8))
	name, err := s.caseName()
	require.NoError(t, err)
	assert.Equal(t, caseName, name)

	s.CaseName = "explicit"
	name, err = s.caseName()
	require.NoError(t, err)
	assert.Equal(t, "explicit", name)

	s.CaseName, s.Metadata = "", ""
	_, err = s.caseName()
	assert.Error(t, err)
}

func TestSweep_Cancelled(t *testing.T) {
	s, fake := newSweep(t, dampingGroups(t, 0.8, 0.9))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, fake.runs)
	assert.False(t, fake.fs.Exists("/build/input.csv"))
}
