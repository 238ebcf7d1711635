// Package layer provides neural network layer implementations.
//
// Every layer consumes and produces NCHW tensors. Forward caches what the
// matching Backward needs, so calls must alternate Forward, Backward on the
// same layer; Backward accumulates parameter gradients until ClearGradients.
package layer

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Layer is a neural network layer.
type Layer interface {
	Forward(x *Tensor) *Tensor
	Backward(grad *Tensor) *Tensor
	NamedParams() []NamedParam
	ClearGradients()
}

// TrainingSetter is implemented by layers whose forward pass differs
// between training and inference.
type TrainingSetter interface {
	SetTraining(training bool)
}

// NamedParam exposes one tensor of a layer.
// Data and Grad alias the layer's own storage, so updates are visible
// immediately. Grad is nil for non-trainable buffers such as running
// statistics.
type NamedParam struct {
	Name  string
	Shape []int
	Data  []float64
	Grad  []float64
}

// Trainable reports whether the parameter receives gradients.
func (p NamedParam) Trainable() bool {
	return p.Grad != nil
}

// Prefix returns params with prefix + "." prepended to every name.
func Prefix(prefix string, params []NamedParam) []NamedParam {
	for i := range params {
		params[i].Name = prefix + "." + params[i].Name
	}
	return params
}

// CountParams returns the number of trainable scalars in params.
func CountParams(params []NamedParam) int {
	total := 0
	for _, p := range params {
		if p.Trainable() {
			total += len(p.Data)
		}
	}
	return total
}

// RNG is a seeded random source used for reproducible initialization.
type RNG struct {
	r *rand.Rand
}

// NewRNG creates a generator seeded with seed.
func NewRNG(seed int64) *RNG {
	return &RNG{r: rand.New(rand.NewSource(seed))}
}

// RandFloat returns a value in [0, 1).
func (g *RNG) RandFloat() float64 {
	return g.r.Float64()
}

// Uniform returns a value in [lo, hi).
func (g *RNG) Uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*g.r.Float64()
}

// Normal returns a sample from N(mean, std^2).
func (g *RNG) Normal(mean, std float64) float64 {
	return mean + std*g.r.NormFloat64()
}

// Dense is a fully connected layer over the flattened C*H*W features of
// each sample. Output shape is (N, out, 1, 1).
type Dense struct {
	// Shape: [out * in] where weight for output i, input j is at weights[i*in + j]
	weights []float64
	biases  []float64
	outSize int
	inSize  int

	gradWBuf []float64
	gradBBuf []float64

	savedInput *Tensor
}

// NewDense creates a dense layer initialized like torch.nn.Linear:
// weights and biases drawn from U(-1/sqrt(in), 1/sqrt(in)).
func NewDense(in, out int, rng *RNG) *Dense {
	weights := make([]float64, out*in)
	biases := make([]float64, out)

	bound := 1 / math.Sqrt(float64(in))
	for i := range weights {
		weights[i] = rng.Uniform(-bound, bound)
	}
	for i := range biases {
		biases[i] = rng.Uniform(-bound, bound)
	}

	return &Dense{
		weights:  weights,
		biases:   biases,
		outSize:  out,
		inSize:   in,
		gradWBuf: make([]float64, out*in),
		gradBBuf: make([]float64, out),
	}
}

// Forward computes x W^T + b for every sample.
func (d *Dense) Forward(x *Tensor) *Tensor {
	if features := x.C * x.H * x.W; features != d.inSize {
		panic(fmt.Sprintf("Dense: expected %d input features, got %d", d.inSize, features))
	}
	d.savedInput = x

	xm := mat.NewDense(x.N, d.inSize, x.Data)
	wm := mat.NewDense(d.outSize, d.inSize, d.weights)

	out := NewTensor(x.N, d.outSize, 1, 1)
	ym := mat.NewDense(x.N, d.outSize, out.Data)
	ym.Mul(xm, wm.T())

	for n := 0; n < x.N; n++ {
		floats.Add(out.Sample(n), d.biases)
	}
	return out
}

// Backward accumulates dW = G^T X and db = sum_n G, and returns G W
// reshaped to the input's shape.
func (d *Dense) Backward(grad *Tensor) *Tensor {
	x := d.savedInput
	if x == nil {
		panic("Dense: Backward called before Forward")
	}
	gm := mat.NewDense(grad.N, d.outSize, grad.Data)
	xm := mat.NewDense(x.N, d.inSize, x.Data)
	wm := mat.NewDense(d.outSize, d.inSize, d.weights)

	var gw mat.Dense
	gw.Mul(gm.T(), xm)
	floats.Add(d.gradWBuf, gw.RawMatrix().Data)

	for n := 0; n < grad.N; n++ {
		floats.Add(d.gradBBuf, grad.Sample(n))
	}

	gradIn := ZerosLike(x)
	gx := mat.NewDense(x.N, d.inSize, gradIn.Data)
	gx.Mul(gm, wm)
	return gradIn
}

// NamedParams returns weight [out, in] and bias [out].
func (d *Dense) NamedParams() []NamedParam {
	return []NamedParam{
		{Name: "weight", Shape: []int{d.outSize, d.inSize}, Data: d.weights, Grad: d.gradWBuf},
		{Name: "bias", Shape: []int{d.outSize}, Data: d.biases, Grad: d.gradBBuf},
	}
}

// ClearGradients zeroes out the accumulated gradients.
func (d *Dense) ClearGradients() {
	zero(d.gradWBuf)
	zero(d.gradBBuf)
}

// InSize returns the input size of the layer.
func (d *Dense) InSize() int {
	return d.inSize
}

// OutSize returns the output size of the layer.
func (d *Dense) OutSize() int {
	return d.outSize
}

func zero(s []float64) {
	for i := range s {
		s[i] = 0
	}
}
