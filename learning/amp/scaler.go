// Package amp implements automatic mixed precision: the gradient
// scaler paired with the binary16 forward rounding in package tensor.
package amp

import (
	"github.com/lstmvision/classifier/layer"
	"github.com/lstmvision/classifier/tensor"
)

// Scaler grows the loss scale while steps stay finite and backs off
// when scaled gradients overflow, in which case the step is skipped.
type Scaler struct {
	enabled bool

	scale    float32
	growth   float32
	backoff  float32
	interval int
	good     int
}

// NewScaler creates a gradient scaler. When disabled every method is a
// pass-through with scale 1.
func NewScaler(enabled bool) *Scaler {
	return &Scaler{
		enabled:  enabled,
		scale:    65536,
		growth:   2,
		backoff:  0.5,
		interval: 2000,
	}
}

// Enabled reports whether mixed precision is active.
func (s *Scaler) Enabled() bool {
	return s.enabled
}

// Scale returns the current loss scale.
func (s *Scaler) Scale() float32 {
	if !s.enabled {
		return 1
	}
	return s.scale
}

// Unscale divides the gradients by the loss scale in place and reports
// whether all of them are finite. A false return means the optimizer
// step must be skipped. Disabled scalers never skip: overflow tracking
// belongs to mixed precision only.
func (s *Scaler) Unscale(grads map[*layer.Param][]float32) bool {
	if !s.enabled {
		return true
	}
	inv := 1 / s.scale
	finite := true
	for _, g := range grads {
		tensor.Scale(inv, g)
		if !tensor.IsFinite(g) {
			finite = false
		}
	}
	return finite
}

// Update adjusts the loss scale after a step: backoff on overflow,
// growth after a run of good steps.
func (s *Scaler) Update(finite bool) {
	if !s.enabled {
		return
	}
	if !finite {
		s.scale *= s.backoff
		s.good = 0
		return
	}
	s.good++
	if s.good >= s.interval {
		s.scale *= s.growth
		s.good = 0
	}
}
