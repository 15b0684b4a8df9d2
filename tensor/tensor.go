// Package tensor implements the float32 math used by the sequence networks.
package tensor

import "math"

// Dense is a row-major float32 matrix.
type Dense struct {
	Rows, Cols int
	Data       []float32
}

// NewDense creates a zeroed matrix.
func NewDense(rows, cols int) *Dense {
	return &Dense{Rows: rows, Cols: cols, Data: make([]float32, rows*cols)}
}

// Row returns the r-th row as a slice aliasing the matrix storage.
func (d *Dense) Row(r int) []float32 {
	return d.Data[r*d.Cols : (r+1)*d.Cols]
}

// At returns the element at row r, column c.
func (d *Dense) At(r, c int) float32 {
	return d.Data[r*d.Cols+c]
}

// Set stores v at row r, column c.
func (d *Dense) Set(r, c int, v float32) {
	d.Data[r*d.Cols+c] = v
}

// MatVecInto computes dst = m·x. When halve is set the products are
// rounded through binary16 precision (float16 multiply, float32
// accumulate, matching the mixed precision forward pass).
func MatVecInto(m *Dense, x, dst []float32, halve bool) {
	for r := 0; r < m.Rows; r++ {
		dst[r] = dot(m.Row(r), x, halve)
	}
}

// MatVecAddInto computes dst += m·x.
func MatVecAddInto(m *Dense, x, dst []float32, halve bool) {
	for r := 0; r < m.Rows; r++ {
		dst[r] += dot(m.Row(r), x, halve)
	}
}

// MatTVecAddInto computes dst += mᵀ·x.
func MatTVecAddInto(m *Dense, x, dst []float32) {
	for r := 0; r < m.Rows; r++ {
		a := x[r]
		if a == 0 {
			continue
		}
		row := m.Row(r)
		for c := range row {
			dst[c] += a * row[c]
		}
	}
}

// OuterAddInto computes g += a⊗b where g is a flat buffer of
// len(a)*len(b) elements in row-major order.
func OuterAddInto(g, a, b []float32) {
	for i := range a {
		v := a[i]
		if v == 0 {
			continue
		}
		row := g[i*len(b) : (i+1)*len(b)]
		for j := range b {
			row[j] += v * b[j]
		}
	}
}

// Dot returns the float32 dot product of a and b.
func Dot(a, b []float32) float32 {
	return dot(a, b, false)
}

func dot(a, b []float32, halve bool) float32 {
	if halve {
		return dotHalf(a, b)
	}
	return dotProduct(a, b)
}

// dotHalf rounds both operands through binary16 before multiplying,
// accumulating in float32.
func dotHalf(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += HalfToFloat(FloatToHalf(a[i])) * HalfToFloat(FloatToHalf(b[i]))
	}
	return sum
}

// Axpy computes y += alpha*x.
func Axpy(alpha float32, x, y []float32) {
	for i := range x {
		y[i] += alpha * x[i]
	}
}

// Scale multiplies x by alpha in place.
func Scale(alpha float32, x []float32) {
	for i := range x {
		x[i] *= alpha
	}
}

// Zero clears x.
func Zero(x []float32) {
	for i := range x {
		x[i] = 0
	}
}

// Sigmoid is the logistic function.
func Sigmoid(x float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(x))))
}

// Tanh is the hyperbolic tangent.
func Tanh(x float32) float32 {
	return float32(math.Tanh(float64(x)))
}

// Norm returns the euclidean norm of x.
func Norm(x []float32) float32 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return float32(math.Sqrt(sum))
}

// IsFinite reports whether every element of x is a finite number.
func IsFinite(x []float32) bool {
	for _, v := range x {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return false
		}
	}
	return true
}
