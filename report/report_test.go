package report

import (
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lstmvision/classifier/layer/dropout"
	"github.com/lstmvision/classifier/layer/linear"
	"github.com/lstmvision/classifier/layer/lstm"
	"github.com/lstmvision/classifier/net/sequence"
)

func TestSummary(t *testing.T) {
	rng := rand.New(rand.NewSource(0))
	var net sequence.Network
	net.AddLayer(lstm.MustNew(28, 8, true, rng))
	net.AddLayer(dropout.MustNew(0.5))
	net.AddLayer(linear.MustNew(16, 10, rng))

	s := Summary(&net, 28, 28)
	assert.Contains(t, s, "lstm.LSTM")
	assert.Contains(t, s, "dropout.Dropout")
	assert.Contains(t, s, "linear.Linear")
	assert.Contains(t, s, "[28, 16]")
	assert.Contains(t, s, "[1, 10]")
	assert.Contains(t, s, "Total params")
	assert.NotContains(t, s, "*lstm", "pointer stars are trimmed")
}

func TestAccuracyTable(t *testing.T) {
	s := AccuracyTable([]float64{1, 0.5}, 9550, 10000)
	assert.Contains(t, s, "100.00 %")
	assert.Contains(t, s, "50.00 %")
	assert.Contains(t, s, "95.50 % (9550/10000)")
}

func TestWriteTex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "out.tex")
	m := Metrics{
		TrainLosses: []float64{2.3, 0.6},
		ValLosses:   []float64{2.2, 0.7},
		TrainAccs:   []float64{0.2, 0.9},
		ValAccs:     []float64{0.25, 0.85},
	}
	confusion := [][]int{{5, 1}, {0, 4}}
	require.NoError(t, WriteTex(path, m, confusion))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	doc := string(raw)

	assert.True(t, strings.HasPrefix(doc, "\\documentclass{article}"))
	assert.Contains(t, doc, "\\usepackage{pgfplots}")
	assert.Contains(t, doc, "\\begin{document}")
	assert.Contains(t, doc, "\\end{document}")
	assert.Contains(t, doc, "(0,2.300000) (1,0.600000)")
	assert.Contains(t, doc, "\\addlegendentry{val}")
	assert.Contains(t, doc, "\\begin{tabular}{r|rr}")
	assert.Contains(t, doc, "0 & 5 & 1")
	assert.Equal(t, 2, strings.Count(doc, "\\begin{tikzpicture}"))
}

func TestWriteTexNoConfusion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "o.tex")
	require.NoError(t, WriteTex(path, Metrics{}, nil))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "tabular")
}
