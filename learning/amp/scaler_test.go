package amp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lstmvision/classifier/layer"
)

func TestDisabledScalerIsPassThrough(t *testing.T) {
	s := NewScaler(false)
	assert.False(t, s.Enabled())
	assert.Equal(t, float32(1), s.Scale())

	p := layer.NewParam("p", 2, 1)
	grads := map[*layer.Param][]float32{p: {4, 8}}
	assert.True(t, s.Unscale(grads))
	assert.Equal(t, []float32{4, 8}, grads[p])

	s.Update(true)
	s.Update(false)
	assert.Equal(t, float32(1), s.Scale())
}

func TestDisabledScalerNeverSkips(t *testing.T) {
	s := NewScaler(false)
	p := layer.NewParam("p", 2, 1)
	grads := map[*layer.Param][]float32{p: {1, float32(math.NaN())}}

	// without mixed precision a bad gradient is the optimizer's
	// problem, not the scaler's
	assert.True(t, s.Unscale(grads))
}

func TestUnscaleDividesByScale(t *testing.T) {
	s := NewScaler(true)
	assert.Equal(t, float32(65536), s.Scale())

	p := layer.NewParam("p", 2, 1)
	grads := map[*layer.Param][]float32{p: {65536, -131072}}
	assert.True(t, s.Unscale(grads))
	assert.Equal(t, []float32{1, -2}, grads[p])
}

func TestUnscaleDetectsOverflow(t *testing.T) {
	s := NewScaler(true)
	p := layer.NewParam("p", 2, 1)
	grads := map[*layer.Param][]float32{p: {1, float32(math.Inf(1))}}
	assert.False(t, s.Unscale(grads))
}

func TestBackoffOnOverflow(t *testing.T) {
	s := NewScaler(true)
	s.Update(false)
	assert.Equal(t, float32(32768), s.Scale())
	s.Update(false)
	assert.Equal(t, float32(16384), s.Scale())
}

func TestGrowthAfterGoodRun(t *testing.T) {
	s := NewScaler(true)
	for i := 0; i < 1999; i++ {
		s.Update(true)
	}
	assert.Equal(t, float32(65536), s.Scale())
	s.Update(true)
	assert.Equal(t, float32(131072), s.Scale())

	// an overflow resets the good step counter
	for i := 0; i < 1999; i++ {
		s.Update(true)
	}
	s.Update(false)
	assert.Equal(t, float32(65536), s.Scale())
	s.Update(true)
	assert.Equal(t, float32(65536), s.Scale())
}
