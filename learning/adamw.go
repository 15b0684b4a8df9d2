package learning

import (
	"math"

	"github.com/lstmvision/classifier/layer"
	"github.com/lstmvision/classifier/tensor"
)

// Adam applies bias-corrected Adam updates with decoupled weight decay
// (AdamW when WeightDecay is nonzero). Moments are kept per parameter
// in Params() order so they round-trip through checkpoints.
type Adam struct {
	h      *HyperParameters
	params []*layer.Param
	m, v   [][]float32
	step   int
}

// NewAdam creates an optimizer over the given parameters.
func NewAdam(h *HyperParameters, params []*layer.Param) *Adam {
	o := &Adam{h: h, params: params}
	o.m = make([][]float32, len(params))
	o.v = make([][]float32, len(params))
	for i, p := range params {
		o.m[i] = make([]float32, len(p.Value))
		o.v[i] = make([]float32, len(p.Value))
	}
	return o
}

// StepCount returns the number of applied optimizer steps.
func (o *Adam) StepCount() int {
	return o.step
}

// State exposes the moments for checkpointing.
func (o *Adam) State() (m, v [][]float32, step int) {
	return o.m, o.v, o.step
}

// SetState restores moments from a checkpoint. Mismatched shapes are
// ignored silently only when empty; otherwise they must match.
func (o *Adam) SetState(m, v [][]float32, step int) bool {
	if len(m) == 0 && len(v) == 0 {
		return true
	}
	if len(m) != len(o.m) || len(v) != len(o.v) {
		return false
	}
	for i := range m {
		if len(m[i]) != len(o.m[i]) || len(v[i]) != len(o.v[i]) {
			return false
		}
		copy(o.m[i], m[i])
		copy(o.v[i], v[i])
	}
	o.step = step
	return true
}

// GradNorm returns the global euclidean norm over all gradients.
func GradNorm(params []*layer.Param, grads map[*layer.Param][]float32) float32 {
	var sum float64
	for _, p := range params {
		g := grads[p]
		if g == nil {
			continue
		}
		n := float64(tensor.Norm(g))
		sum += n * n
	}
	return float32(math.Sqrt(sum))
}

// Step applies one optimizer update. Gradients are clipped to MaxNorm
// first when configured.
func (o *Adam) Step(grads map[*layer.Param][]float32) {
	if o.h.MaxNorm > 0 {
		norm := GradNorm(o.params, grads)
		if norm > o.h.MaxNorm {
			scale := o.h.MaxNorm / norm
			for _, g := range grads {
				tensor.Scale(scale, g)
			}
		}
	}

	o.step++
	c1 := 1 - float32(math.Pow(float64(o.h.Beta1), float64(o.step)))
	c2 := 1 - float32(math.Pow(float64(o.h.Beta2), float64(o.step)))

	for i, p := range o.params {
		g := grads[p]
		if g == nil {
			continue
		}
		m, v := o.m[i], o.v[i]
		for j := range p.Value {
			m[j] = o.h.Beta1*m[j] + (1-o.h.Beta1)*g[j]
			v[j] = o.h.Beta2*v[j] + (1-o.h.Beta2)*g[j]*g[j]
			mhat := m[j] / c1
			vhat := v[j] / c2
			upd := o.h.LearningRate * mhat / (float32(math.Sqrt(float64(vhat))) + o.h.Eps)
			if o.h.WeightDecay > 0 {
				upd += o.h.LearningRate * o.h.WeightDecay * p.Value[j]
			}
			p.Value[j] -= upd
		}
	}
}
