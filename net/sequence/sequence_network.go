// Package sequence implements the sequence network type: an ordered
// stack of differentiable layers ending in a classifier head.
package sequence

import (
	"github.com/lstmvision/classifier/layer"
)

// Network is the sequence network.
type Network struct {
	layers []layer.Layer
}

// AddLayer appends a layer to the network.
func (n *Network) AddLayer(l layer.Layer) {
	n.layers = append(n.layers, l)
}

// Len returns the number of layers.
func (n *Network) Len() int {
	return len(n.layers)
}

// Layers returns the layer stack in forward order.
func (n *Network) Layers() []layer.Layer {
	return n.layers
}

// Params returns every learnable parameter in a stable order.
func (n *Network) Params() (ps []*layer.Param) {
	for _, l := range n.layers {
		ps = append(ps, l.Params()...)
	}
	return ps
}

// NumParams returns the total number of learnable scalars.
func (n *Network) NumParams() (o int) {
	for _, p := range n.Params() {
		o += p.Size()
	}
	return
}

// Forward runs the sample through every layer, recording caches on ctx.
func (n *Network) Forward(ctx *layer.Ctx, in [][]float32) [][]float32 {
	for _, l := range n.layers {
		in = l.Forward(ctx, in)
	}
	return in
}

// Backward pops the caches in reverse layer order and accumulates
// parameter gradients into ctx.
func (n *Network) Backward(ctx *layer.Ctx, dout [][]float32) [][]float32 {
	for i := len(n.layers) - 1; i >= 0; i-- {
		dout = n.layers[i].Backward(ctx, dout)
	}
	return dout
}

// Logits runs an evaluation forward pass and returns the logits row.
func (n *Network) Logits(in [][]float32, halve bool) []float32 {
	ctx := layer.NewCtx(false, halve, 0)
	out := n.Forward(ctx, in)
	return out[len(out)-1]
}

// Infer returns the argmax class of the sample.
func (n *Network) Infer(in [][]float32, halve bool) int {
	logits := n.Logits(in, halve)
	best := 0
	for j := 1; j < len(logits); j++ {
		if logits[j] > logits[best] {
			best = j
		}
	}
	return best
}
