// Package linear implements the affine classifier head. It reads the
// final timestep of the incoming sequence and produces one row of
// class logits.
package linear

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"

	"github.com/lstmvision/classifier/layer"
	"github.com/lstmvision/classifier/tensor"
)

// Linear maps the last row of a [T×I] sequence to [1×C] logits.
type Linear struct {
	inSize, classes int
	w               *layer.Param // [C×I]
	b               *layer.Param // [C]
}

// MustNew creates a new Linear head or panics on invalid sizes.
func MustNew(inputSize, classes int, rng *rand.Rand) *Linear {
	o, err := New(inputSize, classes, rng)
	if err != nil {
		panic(err.Error())
	}
	return o
}

// New creates a new Linear head. Weights are initialized from
// U(-1/sqrt(I), 1/sqrt(I)).
func New(inputSize, classes int, rng *rand.Rand) (*Linear, error) {
	if inputSize <= 0 || classes <= 0 {
		return nil, errors.Errorf("linear: invalid sizes input=%d classes=%d", inputSize, classes)
	}
	l := &Linear{
		inSize:  inputSize,
		classes: classes,
		w:       layer.NewParam("linear.w", classes, inputSize),
		b:       layer.NewParam("linear.b", classes, 1),
	}
	limit := 1 / math.Sqrt(float64(inputSize))
	l.w.InitUniform(rng, limit)
	l.b.InitUniform(rng, limit)
	return l, nil
}

// Params returns the weight matrix and bias.
func (l *Linear) Params() []*layer.Param {
	return []*layer.Param{l.w, l.b}
}

// OutputShape reports a single logits row.
func (l *Linear) OutputShape(t, in int) (int, int) {
	return 1, l.classes
}

type cache struct {
	x []float32 // final timestep row
	t int
	w int // input row width
}

// Forward computes w·x + b on the final timestep.
func (l *Linear) Forward(ctx *layer.Ctx, in [][]float32) [][]float32 {
	x := in[len(in)-1]
	y := make([]float32, l.classes)
	tensor.MatVecInto(denseOf(l.w), x, y, ctx.Halve)
	for j := range y {
		y[j] += l.b.Value[j]
	}
	ctx.Push(&cache{x: x, t: len(in), w: len(x)})
	return [][]float32{y}
}

// Backward routes the logits gradient to the final timestep.
func (l *Linear) Backward(ctx *layer.Ctx, dout [][]float32) [][]float32 {
	c := ctx.Pop().(*cache)
	dy := dout[0]

	tensor.OuterAddInto(ctx.Grad(l.w), dy, c.x)
	tensor.Axpy(1, dy, ctx.Grad(l.b))

	din := make([][]float32, c.t)
	for i := range din {
		din[i] = make([]float32, c.w)
	}
	tensor.MatTVecAddInto(denseOf(l.w), dy, din[c.t-1])
	return din
}

func denseOf(p *layer.Param) *tensor.Dense {
	return &tensor.Dense{Rows: p.Rows, Cols: p.Cols, Data: p.Value}
}
