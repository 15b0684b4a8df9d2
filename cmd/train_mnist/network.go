package main

import (
	"math/rand"

	"github.com/lstmvision/classifier/layer/dropout"
	"github.com/lstmvision/classifier/layer/linear"
	"github.com/lstmvision/classifier/layer/lstm"
	"github.com/lstmvision/classifier/net/sequence"
)

// buildNetwork assembles the stacked LSTM classifier described by arch.
// Dropout sits between stacked LSTM layers, never after the last one.
func buildNetwork(arch sequence.Arch, rng *rand.Rand) *sequence.Network {
	var net sequence.Network
	in := arch.InputSize
	for l := 0; l < arch.NumLayers; l++ {
		net.AddLayer(lstm.MustNew(in, arch.HiddenSize, arch.Bidirectional, rng))
		in = arch.HiddenSize
		if arch.Bidirectional {
			in *= 2
		}
		if arch.Dropout > 0 && l != arch.NumLayers-1 {
			net.AddLayer(dropout.MustNew(arch.Dropout))
		}
	}
	net.AddLayer(linear.MustNew(in, arch.NumClasses, rng))
	return &net
}
