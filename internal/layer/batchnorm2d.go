package layer

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// BatchNorm2D implements 2D batch normalization.
// Normalizes across batch and spatial dimensions, learns scale/shift per channel.
type BatchNorm2D struct {
	numFeatures int
	eps         float64
	momentum    float64

	training bool

	// Learnable parameters
	gamma []float64
	beta  []float64

	// Running statistics (for inference)
	runningMean []float64
	runningVar  []float64

	gradGamma []float64
	gradBeta  []float64

	// Saved state for backward pass
	savedInput     *Tensor
	savedMean      []float64
	savedStd       []float64
	savedTraining  bool
	channelScratch []float64
}

// NewBatchNorm2D creates a new 2D batch normalization layer in training mode.
func NewBatchNorm2D(numFeatures int, eps, momentum float64) *BatchNorm2D {
	b := &BatchNorm2D{
		numFeatures: numFeatures,
		eps:         eps,
		momentum:    momentum,
		training:    true,
		gamma:       make([]float64, numFeatures),
		beta:        make([]float64, numFeatures),
		runningMean: make([]float64, numFeatures),
		runningVar:  make([]float64, numFeatures),
		gradGamma:   make([]float64, numFeatures),
		gradBeta:    make([]float64, numFeatures),
		savedMean:   make([]float64, numFeatures),
		savedStd:    make([]float64, numFeatures),
	}
	b.ResetParameters()
	for i := range b.runningVar {
		b.runningVar[i] = 1.0
	}
	return b
}

// ResetParameters sets gamma to 1 and beta to 0.
func (b *BatchNorm2D) ResetParameters() {
	for i := 0; i < b.numFeatures; i++ {
		b.gamma[i] = 1.0
		b.beta[i] = 0.0
	}
}

// gather copies channel f of every sample into a contiguous scratch buffer.
func (b *BatchNorm2D) gather(x *Tensor, f int) []float64 {
	m := x.N * x.H * x.W
	if cap(b.channelScratch) < m {
		b.channelScratch = make([]float64, m)
	}
	buf := b.channelScratch[:m]
	plane := x.H * x.W
	for n := 0; n < x.N; n++ {
		copy(buf[n*plane:(n+1)*plane], x.Plane(n, f))
	}
	return buf
}

// Forward normalizes x with batch statistics in training mode and with
// running statistics otherwise.
func (b *BatchNorm2D) Forward(x *Tensor) *Tensor {
	if x.C != b.numFeatures {
		panic(fmt.Sprintf("BatchNorm2D: expected %d channels, got %d", b.numFeatures, x.C))
	}
	b.savedInput = x
	b.savedTraining = b.training

	out := ZerosLike(x)
	m := x.N * x.H * x.W

	for f := 0; f < b.numFeatures; f++ {
		var mean, variance float64
		if b.training {
			var unbiased float64
			mean, unbiased = stat.MeanVariance(b.gather(x, f), nil)
			if m > 1 {
				variance = unbiased * float64(m-1) / float64(m)
			} else {
				unbiased = 0
			}
			b.runningMean[f] = (1-b.momentum)*b.runningMean[f] + b.momentum*mean
			b.runningVar[f] = (1-b.momentum)*b.runningVar[f] + b.momentum*unbiased
		} else {
			mean = b.runningMean[f]
			variance = b.runningVar[f]
		}
		std := math.Sqrt(variance + b.eps)
		b.savedMean[f] = mean
		b.savedStd[f] = std

		scale := b.gamma[f] / std
		shift := b.beta[f] - mean*scale
		for n := 0; n < x.N; n++ {
			in := x.Plane(n, f)
			o := out.Plane(n, f)
			for s, v := range in {
				o[s] = v*scale + shift
			}
		}
	}
	return out
}

// Backward returns the input gradient and accumulates gamma/beta gradients.
func (b *BatchNorm2D) Backward(grad *Tensor) *Tensor {
	x := b.savedInput
	if x == nil {
		panic("BatchNorm2D: Backward called before Forward")
	}
	gradIn := ZerosLike(x)
	m := float64(x.N * x.H * x.W)

	for f := 0; f < b.numFeatures; f++ {
		mean := b.savedMean[f]
		std := b.savedStd[f]
		g := b.gamma[f]

		sumGrad := 0.0
		sumGradXHat := 0.0
		for n := 0; n < x.N; n++ {
			in := x.Plane(n, f)
			gp := grad.Plane(n, f)
			for s := range in {
				xHat := (in[s] - mean) / std
				sumGrad += gp[s]
				sumGradXHat += gp[s] * xHat
			}
		}
		b.gradGamma[f] += sumGradXHat
		b.gradBeta[f] += sumGrad

		for n := 0; n < x.N; n++ {
			in := x.Plane(n, f)
			gp := grad.Plane(n, f)
			gi := gradIn.Plane(n, f)
			if !b.savedTraining {
				// Running statistics are constants
				for s := range in {
					gi[s] = gp[s] * g / std
				}
				continue
			}
			for s := range in {
				xHat := (in[s] - mean) / std
				gi[s] = g / std * (gp[s] - sumGrad/m - xHat*sumGradXHat/m)
			}
		}
	}
	return gradIn
}

// NamedParams returns weight (gamma) and bias (beta) plus the running
// statistics as non-trainable buffers.
func (b *BatchNorm2D) NamedParams() []NamedParam {
	shape := []int{b.numFeatures}
	return []NamedParam{
		{Name: "weight", Shape: shape, Data: b.gamma, Grad: b.gradGamma},
		{Name: "bias", Shape: shape, Data: b.beta, Grad: b.gradBeta},
		{Name: "running_mean", Shape: shape, Data: b.runningMean},
		{Name: "running_var", Shape: shape, Data: b.runningVar},
	}
}

// ClearGradients zeroes out the accumulated gradients.
func (b *BatchNorm2D) ClearGradients() {
	zero(b.gradGamma)
	zero(b.gradBeta)
}

func (b *BatchNorm2D) NumFeatures() int          { return b.numFeatures }
func (b *BatchNorm2D) Gamma() []float64          { return b.gamma }
func (b *BatchNorm2D) Beta() []float64           { return b.beta }
func (b *BatchNorm2D) RunningMean() []float64    { return b.runningMean }
func (b *BatchNorm2D) RunningVar() []float64     { return b.runningVar }
func (b *BatchNorm2D) Eps() float64              { return b.eps }
func (b *BatchNorm2D) Momentum() float64         { return b.momentum }
func (b *BatchNorm2D) SetTraining(training bool) { b.training = training }
func (b *BatchNorm2D) IsTraining() bool          { return b.training }
