package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Metrics carries the per-epoch curves of a finished run.
type Metrics struct {
	TrainLosses []float64
	ValLosses   []float64
	TrainAccs   []float64
	ValAccs     []float64
}

// WriteTex writes a compilable LaTeX document with the loss and
// accuracy curves and the confusion matrix to path, creating parent
// directories as needed.
func WriteTex(path string, m Metrics, confusion [][]int) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrap(err, "create artifact directory")
		}
	}

	var b strings.Builder
	b.WriteString("\\documentclass{article}\n")
	b.WriteString("\\usepackage{pgfplots}\n")
	b.WriteString("\\pgfplotsset{compat=1.18}\n")
	b.WriteString("\\begin{document}\n\n")

	b.WriteString("\\section*{Loss}\n")
	writeAxis(&b, "epoch", "loss", [][]float64{m.TrainLosses, m.ValLosses}, []string{"train", "val"})

	b.WriteString("\\section*{Accuracy}\n")
	writeAxis(&b, "epoch", "accuracy", [][]float64{m.TrainAccs, m.ValAccs}, []string{"train", "val"})

	if len(confusion) > 0 {
		b.WriteString("\\section*{Confusion matrix}\n")
		writeConfusion(&b, confusion)
	}

	b.WriteString("\\end{document}\n")

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return errors.Wrap(err, "write artifact")
	}
	return nil
}

func writeAxis(b *strings.Builder, xlabel, ylabel string, series [][]float64, legends []string) {
	b.WriteString("\\begin{tikzpicture}\n")
	fmt.Fprintf(b, "\\begin{axis}[xlabel=%s, ylabel=%s, legend pos=north east]\n", xlabel, ylabel)
	for i, s := range series {
		b.WriteString("\\addplot coordinates {")
		for epoch, v := range s {
			fmt.Fprintf(b, " (%d,%.6f)", epoch, v)
		}
		b.WriteString(" };\n")
		fmt.Fprintf(b, "\\addlegendentry{%s}\n", legends[i])
	}
	b.WriteString("\\end{axis}\n\\end{tikzpicture}\n\n")
}

func writeConfusion(b *strings.Builder, confusion [][]int) {
	n := len(confusion)
	fmt.Fprintf(b, "\\begin{tabular}{r|%s}\n", strings.Repeat("r", n))
	for j := 0; j < n; j++ {
		fmt.Fprintf(b, " & %d", j)
	}
	b.WriteString(" \\\\\n\\hline\n")
	for i, row := range confusion {
		fmt.Fprintf(b, "%d", i)
		for _, v := range row {
			fmt.Fprintf(b, " & %d", v)
		}
		b.WriteString(" \\\\\n")
	}
	b.WriteString("\\end{tabular}\n\n")
}
