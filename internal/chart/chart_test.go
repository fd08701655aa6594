package chart

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chkao831/Autotuning/internal/fsutil"
	"github.com/chkao831/Autotuning/internal/results"
	"github.com/chkao831/Autotuning/internal/sweep"
)

func rankedTable() *results.Table {
	damping := func(v float64) sweep.Assignment {
		return sweep.Assignment{{Group: "myRelaxation", Prefix: "mS1", Name: "relaxation: damping factor", Value: sweep.Float(v)}}
	}
	return &results.Table{
		Columns: []string{"mS1::relaxation: damping factor"},
		Rows: []results.Row{
			{ID: 3, Assignment: damping(0.9), Primary: 1.1, Total: 4, Passed: true, Rounds: 1},
			{ID: 0, Assignment: damping(0.8), Primary: 1.2, Total: 4.2, Passed: true, Rounds: 1},
			{ID: 1, Assignment: damping(0.7), Primary: math.Inf(1), Total: math.Inf(1), Rounds: 1},
		},
	}
}

func TestBars_SkipsFailedAndPending(t *testing.T) {
	tbl := rankedTable()
	tbl.Rows = append(tbl.Rows, results.Row{ID: 7, Pending: true})

	got := bars(tbl)
	require.Len(t, got, 2)
	assert.Equal(t, "3", got[0].label)
	assert.Equal(t, "0", got[1].label)
	assert.Equal(t, 1.2, got[1].primary)
}

func TestWriteHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, rankedTable(), "smoother sweep"))

	out := buf.String()
	assert.True(t, strings.Contains(out, "smoother sweep"))
	assert.True(t, strings.Contains(out, "time_NOX"))
}

func TestWritePNG(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, WritePNG(mfs, "/out/sweep.png", rankedTable(), "smoother sweep"))

	data, err := mfs.ReadFile("/out/sweep.png")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")))
}

func TestNoPassedRows(t *testing.T) {
	tbl := &results.Table{Rows: []results.Row{{ID: 0, Primary: math.Inf(1), Total: math.Inf(1)}}}
	mfs := fsutil.NewMemoryFileSystem()

	assert.True(t, errors.Is(WriteHTML(&bytes.Buffer{}, tbl, "x"), ErrNoData))
	assert.True(t, errors.Is(WritePNG(mfs, "/x.png", tbl, "x"), ErrNoData))
	assert.True(t, errors.Is(SaveHTML(mfs, "/x.html", tbl, "x"), ErrNoData))
	assert.Empty(t, mfs.Files())
}
