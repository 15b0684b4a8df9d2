// Package dropout implements inverted dropout between stacked layers.
package dropout

import (
	"github.com/pkg/errors"

	"github.com/lstmvision/classifier/layer"
)

// Dropout zeroes activations with probability Rate during training and
// rescales the survivors by 1/(1-Rate). Evaluation passes through.
type Dropout struct {
	rate float32
}

// MustNew creates a new Dropout layer or panics on an invalid rate.
func MustNew(rate float64) *Dropout {
	o, err := New(rate)
	if err != nil {
		panic(err.Error())
	}
	return o
}

// New creates a new Dropout layer.
func New(rate float64) (*Dropout, error) {
	if rate < 0 || rate >= 1 {
		return nil, errors.Errorf("dropout: rate %v outside [0, 1)", rate)
	}
	return &Dropout{rate: float32(rate)}, nil
}

// Params returns nothing; dropout is parameterless.
func (d *Dropout) Params() []*layer.Param {
	return nil
}

// OutputShape is the identity.
func (d *Dropout) OutputShape(t, in int) (int, int) {
	return t, in
}

// Forward samples a fresh mask per pass from the context rng.
func (d *Dropout) Forward(ctx *layer.Ctx, in [][]float32) [][]float32 {
	if !ctx.Train || d.rate == 0 {
		ctx.Push([][]float32(nil))
		return in
	}
	keep := 1 - d.rate
	mask := make([][]float32, len(in))
	out := make([][]float32, len(in))
	for t := range in {
		mask[t] = make([]float32, len(in[t]))
		out[t] = make([]float32, len(in[t]))
		for j := range in[t] {
			if ctx.Rand.Float32() < keep {
				mask[t][j] = 1 / keep
				out[t][j] = in[t][j] * mask[t][j]
			}
		}
	}
	ctx.Push(mask)
	return out
}

// Backward applies the cached mask to the gradient.
func (d *Dropout) Backward(ctx *layer.Ctx, dout [][]float32) [][]float32 {
	mask := ctx.Pop().([][]float32)
	if mask == nil {
		return dout
	}
	din := make([][]float32, len(dout))
	for t := range dout {
		din[t] = make([]float32, len(dout[t]))
		for j := range dout[t] {
			din[t][j] = dout[t][j] * mask[t][j]
		}
	}
	return din
}
