// Package evaluate measures trained networks: set accuracy and the
// confusion matrix.
package evaluate

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/lstmvision/classifier/datasets"
	"github.com/lstmvision/classifier/net/sequence"
	"github.com/lstmvision/classifier/parallel"
)

// CheckAccuracy classifies every sample of the set on all cores and
// logs the tally. mode labels the output ("train", "test").
func CheckAccuracy(log *zap.SugaredLogger, net *sequence.Network, set datasets.Set, workers int, halve bool, mode string) (correct, total int) {
	var hits atomic.Int64
	parallel.ForEach(set.Len(), workers, func(j int) {
		s := set.Samples[j]
		if net.Infer(s.Seq, halve) == s.Label {
			hits.Add(1)
		}
	})
	correct = int(hits.Load())
	total = set.Len()
	log.Infof("%s data: Got %d/%d with accuracy %.2f %%",
		mode, correct, total, 100*float64(correct)/float64(total))
	return correct, total
}

// ConfusionMatrix returns counts[actual][predicted] over the set.
func ConfusionMatrix(net *sequence.Network, set datasets.Set, workers int, halve bool) [][]int {
	counts := make([][]atomic.Int64, set.Classes)
	for i := range counts {
		counts[i] = make([]atomic.Int64, set.Classes)
	}
	parallel.ForEach(set.Len(), workers, func(j int) {
		s := set.Samples[j]
		predicted := net.Infer(s.Seq, halve)
		counts[s.Label][predicted].Add(1)
	})

	out := make([][]int, set.Classes)
	for i := range out {
		out[i] = make([]int, set.Classes)
		for j := range out[i] {
			out[i][j] = int(counts[i][j].Load())
		}
	}
	return out
}

// PerClassAccuracy returns the per-class hit rate from a confusion
// matrix, NaN-free: classes with no samples report zero.
func PerClassAccuracy(confusion [][]int) []float64 {
	out := make([]float64, len(confusion))
	for i, row := range confusion {
		var total int
		for _, v := range row {
			total += v
		}
		if total > 0 {
			out[i] = float64(row[i]) / float64(total)
		}
	}
	return out
}
