package tensor

import "github.com/klauspost/cpuid/v2"

// dotProduct is the full precision dot product kernel. The wide variant
// is selected at init when the CPU carries FMA capable vector units,
// which lets the compiler keep four independent accumulator chains in
// registers.
var dotProduct func(a, b []float32) float32

func init() {
	if cpuid.CPU.Supports(cpuid.AVX2, cpuid.FMA3) {
		dotProduct = dotUnrolled
	} else {
		dotProduct = dotGeneric
	}
}

func dotGeneric(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func dotUnrolled(a, b []float32) (sum float32) {
	var s0, s1, s2, s3 float32
	n := len(a) &^ 3
	for i := 0; i < n; i += 4 {
		s0 += a[i] * b[i]
		s1 += a[i+1] * b[i+1]
		s2 += a[i+2] * b[i+2]
		s3 += a[i+3] * b[i+3]
	}
	for i := n; i < len(a); i++ {
		sum += a[i] * b[i]
	}
	return sum + s0 + s1 + s2 + s3
}
