package datasets

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numbered(n int) Set {
	s := Set{Classes: n}
	for i := 0; i < n; i++ {
		s.Samples = append(s.Samples, Sample{Label: i})
	}
	return s
}

func TestSplitSizesAndCoverage(t *testing.T) {
	s := numbered(10)
	a, b := s.Split(7, rand.New(rand.NewSource(1)))
	require.Equal(t, 7, a.Len())
	require.Equal(t, 3, b.Len())
	assert.Equal(t, 10, a.Classes)

	seen := make(map[int]bool)
	for _, sm := range append(a.Samples, b.Samples...) {
		assert.False(t, seen[sm.Label], "sample %d appears twice", sm.Label)
		seen[sm.Label] = true
	}
	assert.Len(t, seen, 10)
}

func TestSplitIsSeedReproducible(t *testing.T) {
	s := numbered(20)
	a1, _ := s.Split(12, rand.New(rand.NewSource(42)))
	a2, _ := s.Split(12, rand.New(rand.NewSource(42)))
	assert.Equal(t, a1.Samples, a2.Samples)
}

func TestSplitClampsOversizedRequest(t *testing.T) {
	s := numbered(4)
	a, b := s.Split(100, rand.New(rand.NewSource(0)))
	assert.Equal(t, 4, a.Len())
	assert.Equal(t, 0, b.Len())
}

func TestShuffleKeepsMultiset(t *testing.T) {
	s := numbered(50)
	s.Shuffle(rand.New(rand.NewSource(3)))
	require.Equal(t, 50, s.Len())

	seen := make(map[int]bool)
	for _, sm := range s.Samples {
		seen[sm.Label] = true
	}
	assert.Len(t, seen, 50)
}
