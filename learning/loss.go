package learning

import (
	"math"

	"github.com/lstmvision/classifier/tensor"
)

// CrossEntropy computes the softmax cross entropy of one logits row
// against an integer label, with optional label smoothing. It returns
// the loss and the gradient with respect to the logits. The gradient of
// a smoothed target still sums to zero across classes.
func CrossEntropy(logits []float32, label int, smoothing float32) (float32, []float32) {
	p := Softmax(logits)
	k := float32(len(logits))

	// target distribution under smoothing: 1-s+s/K on the label,
	// s/K elsewhere
	var loss float64
	dlogits := make([]float32, len(logits))
	for j := range logits {
		target := smoothing / k
		if j == label {
			target += 1 - smoothing
		}
		if target > 0 {
			loss -= float64(target) * math.Log(math.Max(float64(p[j]), 1e-45))
		}
		dlogits[j] = p[j] - target
	}
	return float32(loss), dlogits
}

// Softmax returns the softmax distribution of a logits row.
func Softmax(logits []float32) []float32 {
	max := logits[0]
	for _, v := range logits[1:] {
		if v > max {
			max = v
		}
	}
	p := make([]float32, len(logits))
	var sum float64
	for j, v := range logits {
		e := math.Exp(float64(v - max))
		p[j] = float32(e)
		sum += e
	}
	inv := float32(1 / sum)
	tensor.Scale(inv, p)
	return p
}
