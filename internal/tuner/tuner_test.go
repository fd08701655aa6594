package tuner

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chkao831/Autotuning/internal/command"
	"github.com/chkao831/Autotuning/internal/ctest"
	"github.com/chkao831/Autotuning/internal/deck"
	"github.com/chkao831/Autotuning/internal/fsutil"
	"github.com/chkao831/Autotuning/internal/monitoring"
	"github.com/chkao831/Autotuning/internal/sweep"
)

const (
	buildDir = "/build"
	deckPath = "/build/input.yaml"
	caseName = "Velocity_MueLu_Wedge_Tune"
)

const sampleDeck = `ANONYMOUS:
  Problem:
    Name: Heat 3D
  Piro:
    NOX:
      Direction:
        Method: Newton
        Newton:
          Stratimikos Linear Solver:
            Stratimikos:
              Preconditioner Type: MueLu
              Preconditioner Types:
                MueLu:
                  Factories:
                    mySmoother1:
                      factory: TrilinosSmoother
                      type: RELAXATION
                      ParameterList:
                        'relaxation: type': Two-stage Gauss-Seidel
                        'relaxation: sweeps': 2
                        'relaxation: damping factor': 1.0
                    mySmoother4:
                      factory: TrilinosSmoother
                      ParameterList:
                        'relaxation: type': MT Gauss-Seidel
                        'relaxation: sweeps': 1
...
`

const ctestMetadata = `# CMake generated Testfile
add_test(velocity_tune "/opt/albany/bin/Albany" "input.yaml")
set_tests_properties(Velocity_MueLu_Wedge_Tune PROPERTIES LABELS "tune")
add_test(velocity_pop "/opt/albany/bin/Albany" "input_pop.yaml")
set_tests_properties(Velocity_Pop PROPERTIES LABELS "pop")
`

func init() {
	monitoring.SetLogger(nil)
}

// fakeCTest simulates the solver: a run with damping 0.8 passes in 1.2s,
// anything else fails. Each run leaves its damping factor in the last log
// and the conversion step turns copied logs into reports.
type fakeCTest struct {
	fs      *fsutil.MemoryFileSystem
	runs    int
	failRun map[int]bool
}

func (f *fakeCTest) factory(cmd command.BuiltCommand) *command.MockExecutor {
	switch {
	case cmd.IsShell:
		return &command.MockExecutor{Effect: f.convert}
	case len(cmd.Args) > 1 && cmd.Args[1] == "tune":
		run := f.runs
		f.runs++
		if f.failRun[run] {
			return &command.MockExecutor{Err: &command.ExitError{Code: 8}}
		}
		return &command.MockExecutor{Effect: f.solve}
	}
	return nil
}

func (f *fakeCTest) solve() {
	d, err := deck.Load(f.fs, deckPath)
	if err != nil {
		panic(err)
	}
	params, err := d.Params(deck.DefaultFactoriesPath, "mySmoother1")
	if err != nil {
		panic(err)
	}
	log := "damping=" + params["relaxation: damping factor"]
	_ = f.fs.WriteFile(filepath.Join(buildDir, "Testing/Temporary/LastTest.log"), []byte(log), 0644)
}

func (f *fakeCTest) convert() {
	logs, _ := f.fs.Glob(filepath.Join(buildDir, "LastTest_*-0.log"))
	for _, path := range logs {
		id := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), "LastTest_"), "-0.log")
		data, _ := f.fs.ReadFile(path)
		report := fmt.Sprintf(`{%q: {"passed": false, "timers": {"Albany Total Time:": 3.0}}}`, caseName)
		if string(data) == "damping=0.8" {
			report = fmt.Sprintf(`{%q: {"passed": true, "timers": {
				"NOX Total Linear Solve:": 0.7,
				"NOX Total Preconditioner Construction:": "0.5",
				"Albany Total Time:": 4.2}}}`, caseName)
		}
		_ = f.fs.WriteFile(filepath.Join(buildDir, "ctest-"+id+".json"), []byte(report), 0644)
	}
}

func newFixture(t *testing.T) (*fsutil.MemoryFileSystem, *command.MockBuilder, *fakeCTest) {
	t.Helper()
	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, mfs.WriteFile(deckPath, []byte(sampleDeck), 0644))
	require.NoError(t, mfs.WriteFile(filepath.Join(buildDir, "CTestTestfile.cmake"), []byte(ctestMetadata), 0644))
	require.NoError(t, mfs.MkdirAll(filepath.Join(buildDir, "mesh-pop-wdg"), 0755))

	fake := &fakeCTest{fs: mfs}
	builder := command.NewMockBuilder()
	builder.ExecutorFactory = fake.factory
	return mfs, builder, fake
}

func newHarness(mfs *fsutil.MemoryFileSystem, builder *command.MockBuilder) *ctest.Harness {
	return &ctest.Harness{
		Builder:        builder,
		FS:             mfs,
		Dir:            buildDir,
		Command:        "ctest",
		Label:          "tune",
		Timeout:        90 * time.Second,
		SetupLabel:     "pop",
		SetupMarker:    "mesh-pop-wdg",
		LastLog:        "Testing/Temporary/LastTest.log",
		ConvertCommand: "python ctest2json.py",
		Artifacts:      ctest.NewArtifacts(buildDir, "input"),
	}
}

func dampingGroups(t *testing.T, damping ...interface{}) []sweep.Group {
	t.Helper()
	groups, err := sweep.CompileGroups([]sweep.GroupSpec{{
		Smoother: "mySmoother1",
		Prefix:   "mS1",
		Params: []sweep.ParamSpec{
			{Name: "relaxation: damping factor", Type: "float64", Values: damping},
			{Name: "relaxation: sweeps", Type: "int", Values: []interface{}{1}},
		},
	}})
	require.NoError(t, err)
	return groups
}
