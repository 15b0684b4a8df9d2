// Package layer defines the differentiable layer type shared by the
// sequence network layers.
package layer

import "math/rand"

// Param is one learnable tensor of a layer. Value is row-major when the
// parameter is a matrix; Cols is 1 for biases.
type Param struct {
	Name       string
	Rows, Cols int
	Value      []float32
}

// Size returns the number of elements of the parameter.
func (p *Param) Size() int {
	return len(p.Value)
}

// NewParam allocates a zeroed parameter.
func NewParam(name string, rows, cols int) *Param {
	return &Param{Name: name, Rows: rows, Cols: cols, Value: make([]float32, rows*cols)}
}

// InitUniform fills the parameter from U(-limit, limit).
func (p *Param) InitUniform(rng *rand.Rand, limit float64) {
	for i := range p.Value {
		p.Value[i] = float32((rng.Float64()*2 - 1) * limit)
	}
}

// Layer is a differentiable layer operating on a sequence of feature
// rows. Forward consumes a [T][in] sequence and produces a [T'][out]
// sequence; Backward consumes the gradient of the output and returns
// the gradient of the input. Caches recorded by Forward live on the
// Ctx, so a single Layer value can serve concurrent passes.
type Layer interface {
	Forward(ctx *Ctx, in [][]float32) [][]float32
	Backward(ctx *Ctx, dout [][]float32) [][]float32
	Params() []*Param

	// OutputShape maps an input shape (timesteps, features) to the
	// output shape of the layer.
	OutputShape(t, in int) (int, int)
}

// Ctx is a per-pass context. Forward pushes layer caches, Backward pops
// them in reverse order, and parameter gradients accumulate into
// buffers local to the context, so batch chunks parallelize without
// locking. Gradients persist across samples of the same context until
// ResetGrads.
type Ctx struct {
	Train bool
	Halve bool // mixed precision forward
	Rand  *rand.Rand

	stack []interface{}
	grads map[*Param][]float32
}

// NewCtx creates a pass context. The seed feeds the context-local rng
// used by stochastic layers such as dropout.
func NewCtx(train, halve bool, seed int64) *Ctx {
	return &Ctx{
		Train: train,
		Halve: halve,
		Rand:  rand.New(rand.NewSource(seed)),
		grads: make(map[*Param][]float32),
	}
}

// Push records a layer cache for the matching Backward.
func (c *Ctx) Push(v interface{}) {
	c.stack = append(c.stack, v)
}

// Pop returns the most recent cache.
func (c *Ctx) Pop() interface{} {
	v := c.stack[len(c.stack)-1]
	c.stack = c.stack[:len(c.stack)-1]
	return v
}

// Grad returns the context-local gradient buffer of p.
func (c *Ctx) Grad(p *Param) []float32 {
	g, ok := c.grads[p]
	if !ok {
		g = make([]float32, len(p.Value))
		c.grads[p] = g
	}
	return g
}

// Grads exposes the accumulated gradients of the context.
func (c *Ctx) Grads() map[*Param][]float32 {
	return c.grads
}

// ResetGrads clears the accumulated gradients, keeping the buffers.
func (c *Ctx) ResetGrads() {
	for _, g := range c.grads {
		for i := range g {
			g[i] = 0
		}
	}
}
