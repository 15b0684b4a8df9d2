// Package report renders human readable summaries of networks and
// training runs: console tables and the LaTeX artifact with the loss
// and accuracy curves.
package report

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/lstmvision/classifier/net/sequence"
)

// Summary renders a per-layer table of output shapes and parameter
// counts for a network fed with [seqLen × inputSize] sequences.
func Summary(net *sequence.Network, seqLen, inputSize int) string {
	t := table.NewWriter()
	t.SetTitle("LSTM classifier")
	t.AppendHeader(table.Row{"#", "Layer", "Output shape", "Params"})

	rows, cols := seqLen, inputSize
	var total int
	for i, l := range net.Layers() {
		var params int
		for _, p := range l.Params() {
			params += p.Size()
		}
		total += params
		rows, cols = l.OutputShape(rows, cols)
		t.AppendRow(table.Row{
			i + 1,
			strings.TrimPrefix(fmt.Sprintf("%T", l), "*"),
			fmt.Sprintf("[%d, %d]", rows, cols),
			params,
		})
	}
	t.AppendFooter(table.Row{"", "", "Total params", total})
	return t.Render()
}

// AccuracyTable renders per-class accuracies next to the overall rate.
func AccuracyTable(perClass []float64, correct, total int) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Digit", "Accuracy"})
	for digit, acc := range perClass {
		t.AppendRow(table.Row{digit, fmt.Sprintf("%.2f %%", 100*acc)})
	}
	t.AppendFooter(table.Row{"Overall", fmt.Sprintf("%.2f %% (%d/%d)", 100*float64(correct)/float64(total), correct, total)})
	return t.Render()
}
