// Package learning implements the gradient descent stage of the
// classifier: the cross entropy objective and the Adam family of
// optimizers.
package learning

import (
	"log"
	"os"
)

// SetLogger sets the output logger file where per-epoch metric lines
// are appended.
func (h *HyperParameters) SetLogger(filename string) {
	outfile, _ := os.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	h.l = log.New(outfile, "", 0)
}

// Logf writes one line to the metrics file, if one was set.
func (h *HyperParameters) Logf(format string, args ...interface{}) {
	if h.l != nil {
		h.l.Printf(format, args...)
	}
}

type HyperParameters struct {
	LearningRate float32 // Adam step size
	Beta1        float32 // first moment decay
	Beta2        float32 // second moment decay
	Eps          float32 // Adam epsilon

	WeightDecay float32 // decoupled weight decay; nonzero selects AdamW

	MaxNorm        float32 // global gradient norm clip, 0 disables
	LabelSmoothing float32 // cross entropy label smoothing

	GradAccumSteps int // batches accumulated per optimizer step

	l *log.Logger
}
