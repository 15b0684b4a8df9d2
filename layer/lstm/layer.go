// Package lstm implements a long short-term memory layer with optional
// bidirectional scanning.
package lstm

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"

	"github.com/lstmvision/classifier/layer"
	"github.com/lstmvision/classifier/tensor"
)

// LSTM is one (optionally bidirectional) LSTM layer. The gate
// concatenation order is input, forget, cell, output.
type LSTM struct {
	inSize, hidden int
	bidi           bool

	fwd *direction
	bwd *direction // nil unless bidirectional
}

type direction struct {
	hidden   int
	wih, whh *layer.Param // [4H×I], [4H×H]
	bih, bhh *layer.Param // [4H]
}

// MustNew creates a new LSTM layer or panics on invalid sizes.
func MustNew(inputSize, hiddenSize int, bidirectional bool, rng *rand.Rand) *LSTM {
	o, err := New(inputSize, hiddenSize, bidirectional, rng)
	if err != nil {
		panic(err.Error())
	}
	return o
}

// New creates a new LSTM layer. Weights are initialized from
// U(-1/sqrt(H), 1/sqrt(H)).
func New(inputSize, hiddenSize int, bidirectional bool, rng *rand.Rand) (*LSTM, error) {
	if inputSize <= 0 || hiddenSize <= 0 {
		return nil, errors.Errorf("lstm: invalid sizes input=%d hidden=%d", inputSize, hiddenSize)
	}
	l := &LSTM{inSize: inputSize, hidden: hiddenSize, bidi: bidirectional}
	l.fwd = newDirection("fwd", inputSize, hiddenSize, rng)
	if bidirectional {
		l.bwd = newDirection("bwd", inputSize, hiddenSize, rng)
	}
	return l, nil
}

func newDirection(tag string, inSize, hidden int, rng *rand.Rand) *direction {
	d := &direction{
		hidden: hidden,
		wih:    layer.NewParam("lstm.wih."+tag, 4*hidden, inSize),
		whh:    layer.NewParam("lstm.whh."+tag, 4*hidden, hidden),
		bih:    layer.NewParam("lstm.bih."+tag, 4*hidden, 1),
		bhh:    layer.NewParam("lstm.bhh."+tag, 4*hidden, 1),
	}
	limit := 1 / math.Sqrt(float64(hidden))
	d.wih.InitUniform(rng, limit)
	d.whh.InitUniform(rng, limit)
	d.bih.InitUniform(rng, limit)
	d.bhh.InitUniform(rng, limit)
	return d
}

// Params returns the weights of both directions, forward first.
func (l *LSTM) Params() []*layer.Param {
	ps := []*layer.Param{l.fwd.wih, l.fwd.whh, l.fwd.bih, l.fwd.bhh}
	if l.bidi {
		ps = append(ps, l.bwd.wih, l.bwd.whh, l.bwd.bih, l.bwd.bhh)
	}
	return ps
}

// OutputShape reports (t, H) or (t, 2H) when bidirectional.
func (l *LSTM) OutputShape(t, in int) (int, int) {
	if l.bidi {
		return t, 2 * l.hidden
	}
	return t, l.hidden
}

// Hidden returns the per-direction hidden size.
func (l *LSTM) Hidden() int {
	return l.hidden
}

// Bidirectional reports whether the layer scans both ways.
func (l *LSTM) Bidirectional() bool {
	return l.bidi
}

type cache struct {
	in       [][]float32
	fwd, bwd *dirCache
}

// dirCache keeps per-step state in walk order. For the reverse
// direction walk step k visits input position T-1-k.
type dirCache struct {
	hs    [][]float32 // len T+1, hs[0] is the zero initial hidden
	cs    [][]float32 // len T+1, cell states
	gates [][]float32 // len T, activated gates [4H]: i, f, g, o
}

// Forward scans the sequence and emits, per input position, the hidden
// state (both directions concatenated when bidirectional).
func (l *LSTM) Forward(ctx *layer.Ctx, in [][]float32) [][]float32 {
	t := len(in)
	h := l.hidden
	width := h
	if l.bidi {
		width = 2 * h
	}
	out := make([][]float32, t)
	for i := range out {
		out[i] = make([]float32, width)
	}

	c := &cache{in: in}
	c.fwd = l.fwd.run(ctx, in, false)
	for k := 0; k < t; k++ {
		copy(out[k][:h], c.fwd.hs[k+1])
	}
	if l.bidi {
		c.bwd = l.bwd.run(ctx, in, true)
		for k := 0; k < t; k++ {
			copy(out[t-1-k][h:], c.bwd.hs[k+1])
		}
	}
	ctx.Push(c)
	return out
}

func (d *direction) run(ctx *layer.Ctx, in [][]float32, reverse bool) *dirCache {
	t := len(in)
	h := d.hidden
	wih := denseOf(d.wih)
	whh := denseOf(d.whh)

	c := &dirCache{
		hs:    make([][]float32, t+1),
		cs:    make([][]float32, t+1),
		gates: make([][]float32, t),
	}
	c.hs[0] = make([]float32, h)
	c.cs[0] = make([]float32, h)

	for k := 0; k < t; k++ {
		pos := k
		if reverse {
			pos = t - 1 - k
		}
		x := in[pos]

		g := make([]float32, 4*h)
		tensor.MatVecInto(wih, x, g, ctx.Halve)
		tensor.MatVecAddInto(whh, c.hs[k], g, ctx.Halve)
		for j := range g {
			g[j] += d.bih.Value[j] + d.bhh.Value[j]
		}
		for j := 0; j < h; j++ {
			g[j] = tensor.Sigmoid(g[j])         // input gate
			g[h+j] = tensor.Sigmoid(g[h+j])     // forget gate
			g[2*h+j] = tensor.Tanh(g[2*h+j])    // cell candidate
			g[3*h+j] = tensor.Sigmoid(g[3*h+j]) // output gate
		}

		cn := make([]float32, h)
		hn := make([]float32, h)
		for j := 0; j < h; j++ {
			cn[j] = g[h+j]*c.cs[k][j] + g[j]*g[2*h+j]
			hn[j] = g[3*h+j] * tensor.Tanh(cn[j])
		}
		c.gates[k] = g
		c.cs[k+1] = cn
		c.hs[k+1] = hn
	}
	return c
}

// Backward runs truncation-free BPTT over the cached scan.
func (l *LSTM) Backward(ctx *layer.Ctx, dout [][]float32) [][]float32 {
	c := ctx.Pop().(*cache)
	t := len(c.in)
	din := make([][]float32, t)
	for i := range din {
		din[i] = make([]float32, len(c.in[i]))
	}

	l.fwd.backprop(ctx, c.in, c.fwd, dout, 0, din, false)
	if l.bidi {
		l.bwd.backprop(ctx, c.in, c.bwd, dout, l.hidden, din, true)
	}
	return din
}

func (d *direction) backprop(ctx *layer.Ctx, in [][]float32, c *dirCache, dout [][]float32, off int, din [][]float32, reverse bool) {
	t := len(in)
	h := d.hidden
	wih := denseOf(d.wih)
	whh := denseOf(d.whh)

	gWih := ctx.Grad(d.wih)
	gWhh := ctx.Grad(d.whh)
	gBih := ctx.Grad(d.bih)
	gBhh := ctx.Grad(d.bhh)

	dh := make([]float32, h) // carry from step k+1
	dc := make([]float32, h)
	dg := make([]float32, 4*h)

	for k := t - 1; k >= 0; k-- {
		pos := k
		if reverse {
			pos = t - 1 - k
		}
		g := c.gates[k]

		for j := 0; j < h; j++ {
			dhj := dh[j] + dout[pos][off+j]
			i := g[j]
			f := g[h+j]
			gg := g[2*h+j]
			o := g[3*h+j]
			tc := tensor.Tanh(c.cs[k+1][j])

			do := dhj * tc
			dcj := dc[j] + dhj*o*(1-tc*tc)

			dg[j] = dcj * gg * i * (1 - i)
			dg[h+j] = dcj * c.cs[k][j] * f * (1 - f)
			dg[2*h+j] = dcj * i * (1 - gg*gg)
			dg[3*h+j] = do * o * (1 - o)

			dc[j] = dcj * f // carry to step k-1
		}

		tensor.OuterAddInto(gWih, dg, in[pos])
		tensor.OuterAddInto(gWhh, dg, c.hs[k])
		tensor.Axpy(1, dg, gBih)
		tensor.Axpy(1, dg, gBhh)

		tensor.MatTVecAddInto(wih, dg, din[pos])
		tensor.Zero(dh)
		tensor.MatTVecAddInto(whh, dg, dh)
	}
}

func denseOf(p *layer.Param) *tensor.Dense {
	return &tensor.Dense{Rows: p.Rows, Cols: p.Cols, Data: p.Value}
}
