package layer

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Tensor is a dense 4D array in NCHW order (batch, channels, height, width).
// Data is row-major: element (n, c, h, w) lives at ((n*C+c)*H+h)*W+w.
//
// Tensor is not safe for concurrent use.
type Tensor struct {
	Data []float64
	N    int
	C    int
	H    int
	W    int
}

// NewTensor allocates a zero tensor of the given shape.
// Panics if any dimension is not positive.
func NewTensor(n, c, h, w int) *Tensor {
	if n <= 0 || c <= 0 || h <= 0 || w <= 0 {
		panic(fmt.Sprintf("tensor: dimensions must be positive, got (%d, %d, %d, %d)", n, c, h, w))
	}
	return &Tensor{
		Data: make([]float64, n*c*h*w),
		N:    n,
		C:    c,
		H:    h,
		W:    w,
	}
}

// FromData wraps data as a tensor without copying.
// Panics if len(data) does not match the shape.
func FromData(data []float64, n, c, h, w int) *Tensor {
	if len(data) != n*c*h*w {
		panic(fmt.Sprintf("tensor: data length %d does not match shape (%d, %d, %d, %d)", len(data), n, c, h, w))
	}
	return &Tensor{Data: data, N: n, C: c, H: h, W: w}
}

// Len returns the number of elements.
func (t *Tensor) Len() int {
	return len(t.Data)
}

// Shape returns the dimensions as (N, C, H, W).
func (t *Tensor) Shape() [4]int {
	return [4]int{t.N, t.C, t.H, t.W}
}

// SameShape reports whether t and o have identical dimensions.
func (t *Tensor) SameShape(o *Tensor) bool {
	return t.N == o.N && t.C == o.C && t.H == o.H && t.W == o.W
}

// Index returns the flat offset of (n, c, h, w).
func (t *Tensor) Index(n, c, h, w int) int {
	return ((n*t.C+c)*t.H+h)*t.W + w
}

// At returns the element at (n, c, h, w).
func (t *Tensor) At(n, c, h, w int) float64 {
	return t.Data[t.Index(n, c, h, w)]
}

// Set stores v at (n, c, h, w).
func (t *Tensor) Set(n, c, h, w int, v float64) {
	t.Data[t.Index(n, c, h, w)] = v
}

// Plane returns the H*W slice holding channel c of sample n.
// The slice aliases t.Data.
func (t *Tensor) Plane(n, c int) []float64 {
	size := t.H * t.W
	off := (n*t.C + c) * size
	return t.Data[off : off+size]
}

// Sample returns the C*H*W slice of sample n. The slice aliases t.Data.
func (t *Tensor) Sample(n int) []float64 {
	size := t.C * t.H * t.W
	return t.Data[n*size : (n+1)*size]
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	data := make([]float64, len(t.Data))
	copy(data, t.Data)
	return &Tensor{Data: data, N: t.N, C: t.C, H: t.H, W: t.W}
}

// ZerosLike allocates a zero tensor with t's shape.
func ZerosLike(t *Tensor) *Tensor {
	return NewTensor(t.N, t.C, t.H, t.W)
}

// Add returns a + b elementwise. Panics on shape mismatch.
func Add(a, b *Tensor) *Tensor {
	mustSameShape("Add", a, b)
	out := a.Clone()
	floats.Add(out.Data, b.Data)
	return out
}

// AddInPlace accumulates src into dst. Panics on shape mismatch.
func AddInPlace(dst, src *Tensor) {
	mustSameShape("AddInPlace", dst, src)
	floats.Add(dst.Data, src.Data)
}

func mustSameShape(op string, a, b *Tensor) {
	if !a.SameShape(b) {
		panic(fmt.Sprintf("%s: shape mismatch %v vs %v", op, a.Shape(), b.Shape()))
	}
}
