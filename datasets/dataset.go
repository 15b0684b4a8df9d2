// Package datasets implements the labeled sequence dataset type shared
// by the loaders, the trainer and the evaluators.
package datasets

import "math/rand"

// Sample is one labeled sequence: T rows of features.
type Sample struct {
	Seq   [][]float32
	Label int
}

// Set is an ordered collection of samples.
type Set struct {
	Samples []Sample
	Classes int
}

// Len returns the number of samples.
func (s *Set) Len() int {
	return len(s.Samples)
}

// Shuffle permutes the samples in place.
func (s *Set) Shuffle(rng *rand.Rand) {
	rng.Shuffle(len(s.Samples), func(i, j int) {
		s.Samples[i], s.Samples[j] = s.Samples[j], s.Samples[i]
	})
}

// Split partitions the set into a random subset of n samples and the
// remainder, drawn with the given rng so a seed reproduces the split.
func (s *Set) Split(n int, rng *rand.Rand) (Set, Set) {
	if n > len(s.Samples) {
		n = len(s.Samples)
	}
	perm := rng.Perm(len(s.Samples))
	a := Set{Classes: s.Classes, Samples: make([]Sample, 0, n)}
	b := Set{Classes: s.Classes, Samples: make([]Sample, 0, len(s.Samples)-n)}
	for i, idx := range perm {
		if i < n {
			a.Samples = append(a.Samples, s.Samples[idx])
		} else {
			b.Samples = append(b.Samples, s.Samples[idx])
		}
	}
	return a, b
}
