// Package parallel provides the worker helpers used by training and
// evaluation.
package parallel

import "sync"

// ForEach executes a for loop with a limited number of concurrent
// goroutines. Each goroutine processes one integer, from 0 to length.
func ForEach(length, limit int, body func(i int)) {
	if limit <= 0 {
		limit = 1
	}
	if length <= 0 {
		return
	}

	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	wg.Add(length)

	for i := 0; i < length; i++ {
		sem <- struct{}{} // acquire
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			body(i)
		}(i)
	}

	wg.Wait()
}

// Range is a half-open index interval.
type Range struct {
	Lo, Hi int
}

// Chunks splits [0, length) into at most n near-equal ranges, never
// returning an empty one. Batch workers each take one chunk so their
// per-chunk accumulators stay goroutine-local.
func Chunks(length, n int) []Range {
	if length <= 0 {
		return nil
	}
	if n <= 0 {
		n = 1
	}
	if n > length {
		n = length
	}
	out := make([]Range, 0, n)
	size := length / n
	rem := length % n
	lo := 0
	for i := 0; i < n; i++ {
		hi := lo + size
		if i < rem {
			hi++
		}
		out = append(out, Range{Lo: lo, Hi: hi})
		lo = hi
	}
	return out
}
