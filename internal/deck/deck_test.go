package deck

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chkao831/Autotuning/internal/fsutil"
	"github.com/chkao831/Autotuning/internal/sweep"
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
                  # smoother factories tuned nightly
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

func mustParse(t *testing.T) *Deck {
	t.Helper()
	d, err := Parse([]byte(sampleDeck))
	require.NoError(t, err)
	return d
}

func TestLookup(t *testing.T) {
	d := mustParse(t)

	node, err := d.Lookup(SmootherPath(DefaultFactoriesPath, "mySmoother1"))
	require.NoError(t, err)
	assert.Len(t, node.Content, 6)

	_, err = d.Lookup(SmootherPath(DefaultFactoriesPath, "mySmoother9"))
	var pathErr *PathError
	require.True(t, errors.As(err, &pathErr))
	assert.Equal(t, len(DefaultFactoriesPath), pathErr.Segment)
	assert.Contains(t, err.Error(), `missing key "mySmoother9"`)

	_, err = d.Lookup(Path{"ANONYMOUS", "Problem", "Name", "Deeper"})
	require.True(t, errors.As(err, &pathErr))
	assert.Equal(t, 3, pathErr.Segment)
}

func TestApply_ReturnsNewDeck(t *testing.T) {
	d := mustParse(t)
	a := sweep.Assignment{
		{Group: "mySmoother1", Name: "relaxation: damping factor", Value: sweep.Float(0.8)},
		{Group: "mySmoother1", Name: "relaxation: sweeps", Value: sweep.Int(3)},
		{Group: "mySmoother4", Prefix: "4", Name: "relaxation: type", Value: sweep.String("Two-stage Gauss-Seidel")},
	}

	applied, ignored, err := d.Apply(DefaultFactoriesPath, a)
	require.NoError(t, err)
	assert.Empty(t, ignored)

	got, err := applied.Params(DefaultFactoriesPath, "mySmoother1")
	require.NoError(t, err)
	assert.Equal(t, "0.8", got["relaxation: damping factor"])
	assert.Equal(t, "3", got["relaxation: sweeps"])
	assert.Equal(t, "Two-stage Gauss-Seidel", got["relaxation: type"])

	got4, err := applied.Params(DefaultFactoriesPath, "mySmoother4")
	require.NoError(t, err)
	assert.Equal(t, "Two-stage Gauss-Seidel", got4["relaxation: type"])
	assert.Equal(t, "1", got4["relaxation: sweeps"])

	original, err := d.Params(DefaultFactoriesPath, "mySmoother1")
	require.NoError(t, err)
	assert.Equal(t, "1.0", original["relaxation: damping factor"], "receiver must not change")
	assert.Equal(t, "2", original["relaxation: sweeps"])
}

func TestApply_IgnoresUnknownKeys(t *testing.T) {
	d := mustParse(t)
	a := sweep.Assignment{
		{Group: "mySmoother4", Name: "relaxation: inner damping factor", Value: sweep.Float(0.4)},
		{Group: "mySmoother4", Name: "relaxation: sweeps", Value: sweep.Int(4)},
	}

	applied, ignored, err := d.Apply(DefaultFactoriesPath, a)
	require.NoError(t, err)
	require.Len(t, ignored, 1)
	assert.Equal(t, "relaxation: inner damping factor", ignored[0].Name)

	got, _ := applied.Params(DefaultFactoriesPath, "mySmoother4")
	_, present := got["relaxation: inner damping factor"]
	assert.False(t, present)
	assert.Equal(t, "4", got["relaxation: sweeps"])
}

func TestApply_MissingSmootherFails(t *testing.T) {
	d := mustParse(t)
	_, _, err := d.Apply(DefaultFactoriesPath, sweep.Assignment{
		{Group: "mySmoother2", Name: "relaxation: sweeps", Value: sweep.Int(1)},
	})
	var pathErr *PathError
	assert.True(t, errors.As(err, &pathErr))
}

func TestSaveAndReload(t *testing.T) {
	d := mustParse(t)
	applied, _, err := d.Apply(DefaultFactoriesPath, sweep.Assignment{
		{Group: "mySmoother1", Name: "relaxation: damping factor", Value: sweep.Float(1)},
		{Group: "mySmoother1", Name: "relaxation: sweeps", Value: sweep.Int(1)},
	})
	require.NoError(t, err)

	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, applied.Save(mfs, "/build/input.yaml"))

	raw, err := mfs.ReadFile("/build/input.yaml")
	require.NoError(t, err)
	text := string(raw)
	assert.True(t, strings.HasSuffix(text, "\n...\n"), "deck must end with a document end marker")
	assert.Contains(t, text, "'relaxation: damping factor': 1.0\n")
	assert.Contains(t, text, "# smoother factories tuned nightly")
	assert.Contains(t, text, "\n  Problem:\n    Name: Heat 3D\n")

	reloaded, err := Load(mfs, "/build/input.yaml")
	require.NoError(t, err)
	got, err := reloaded.Params(DefaultFactoriesPath, "mySmoother1")
	require.NoError(t, err)
	assert.Equal(t, "1.0", got["relaxation: damping factor"])
	assert.Equal(t, "1", got["relaxation: sweeps"])
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte("- a\n- b\n"))
	assert.Error(t, err)
	_, err = Parse([]byte("a: [b\n"))
	assert.Error(t, err)

	_, err = Load(fsutil.NewMemoryFileSystem(), "/missing.yaml")
	assert.Error(t, err)
}

func TestParsePath(t *testing.T) {
	p, err := ParsePath("/ANONYMOUS/Piro/NOX/")
	require.NoError(t, err)
	assert.Equal(t, Path{"ANONYMOUS", "Piro", "NOX"}, p)
	assert.Equal(t, "ANONYMOUS/Piro/NOX/x/ParameterList", SmootherPath(p, "x").String())

	_, err = ParsePath("")
	assert.Error(t, err)
	_, err = ParsePath("a//b")
	assert.Error(t, err)
}

func TestStem(t *testing.T) {
	assert.Equal(t, "input_albany_Muelu", Stem("/build/tests/input_albany_Muelu.yaml"))
	assert.Equal(t, "deck", Stem("deck"))
}
