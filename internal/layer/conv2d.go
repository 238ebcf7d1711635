package layer

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Conv2D implements a 2D convolutional layer over NCHW batches.
// Uses direct convolution computation for correctness.
type Conv2D struct {
	inChannels  int
	outChannels int
	kernelSize  int
	stride      int
	padding     int
	hasBias     bool

	// Weights: [outChannels, inChannels, kernelSize, kernelSize]
	// Stored as contiguous slice for cache efficiency
	weights []float64
	biases  []float64

	gradWeights []float64
	gradBiases  []float64

	// Saved input for backward pass
	savedInput *Tensor
}

// NewConv2D creates a new 2D convolutional layer.
// inChannels: number of input channels
// outChannels: number of output feature maps
// kernelSize: size of convolutional kernel (square)
// stride: stride for convolution
// padding: zero padding size
// bias: whether a per-channel bias is added
//
// Weights start with He uniform initialization scaled by fan-in; callers
// that need a different scheme use InitNormal.
func NewConv2D(inChannels, outChannels, kernelSize, stride, padding int, bias bool, rng *RNG) *Conv2D {
	if stride <= 0 {
		panic(fmt.Sprintf("Conv2D: stride must be positive, got %d", stride))
	}
	scale := math.Sqrt(2.0 / float64(inChannels*kernelSize*kernelSize))

	weights := make([]float64, outChannels*inChannels*kernelSize*kernelSize)
	for i := range weights {
		weights[i] = rng.Uniform(-scale, scale)
	}

	c := &Conv2D{
		inChannels:  inChannels,
		outChannels: outChannels,
		kernelSize:  kernelSize,
		stride:      stride,
		padding:     padding,
		hasBias:     bias,
		weights:     weights,
		gradWeights: make([]float64, len(weights)),
	}
	if bias {
		c.biases = make([]float64, outChannels)
		c.gradBiases = make([]float64, outChannels)
	}
	return c
}

// InitNormal redraws every weight from N(mean, std^2) and zeroes the bias.
func (c *Conv2D) InitNormal(mean, std float64, rng *RNG) {
	for i := range c.weights {
		c.weights[i] = rng.Normal(mean, std)
	}
	zero(c.biases)
}

// OutputSize calculates the output spatial dimensions
func (c *Conv2D) OutputSize(inputHeight, inputWidth int) (int, int) {
	outH := (inputHeight+2*c.padding-c.kernelSize)/c.stride + 1
	outW := (inputWidth+2*c.padding-c.kernelSize)/c.stride + 1
	return outH, outW
}

// Forward performs a forward pass through the convolutional layer.
// input: [N, inChannels, H, W]
// Returns: [N, outChannels, outH, outW]
func (c *Conv2D) Forward(x *Tensor) *Tensor {
	if x.C != c.inChannels {
		panic(fmt.Sprintf("Conv2D: expected %d input channels, got %d", c.inChannels, x.C))
	}
	outH, outW := c.OutputSize(x.H, x.W)
	if outH <= 0 || outW <= 0 {
		panic(fmt.Sprintf("Conv2D: input %dx%d too small for kernel %d", x.H, x.W, c.kernelSize))
	}
	c.savedInput = x

	out := NewTensor(x.N, c.outChannels, outH, outW)

	kernelSize := c.kernelSize
	stride := c.stride
	padding := c.padding
	inputHeight := x.H
	inputWidth := x.W

	// Pre-compute weight stride values
	icWeightStride := kernelSize * kernelSize
	ocWeightStride := c.inChannels * icWeightStride

	for n := 0; n < x.N; n++ {
		for oc := 0; oc < c.outChannels; oc++ {
			ocWeightBase := oc * ocWeightStride
			outPlane := out.Plane(n, oc)

			for ic := 0; ic < c.inChannels; ic++ {
				icWeightBase := ocWeightBase + ic*icWeightStride
				inPlane := x.Plane(n, ic)

				for kh := 0; kh < kernelSize; kh++ {
					khWeightBase := icWeightBase + kh*kernelSize

					for kw := 0; kw < kernelSize; kw++ {
						wVal := c.weights[khWeightBase+kw]
						if wVal == 0 {
							continue
						}

						for oh := 0; oh < outH; oh++ {
							inH := oh*stride + kh - padding
							if inH < 0 || inH >= inputHeight {
								continue
							}
							inRow := inPlane[inH*inputWidth : (inH+1)*inputWidth]
							outRow := outPlane[oh*outW : (oh+1)*outW]

							if stride == 1 {
								// Contiguous span of valid output columns
								lo, hi := validSpan(outW, kw-padding, inputWidth)
								if lo < hi {
									floats.AddScaled(outRow[lo:hi], wVal, inRow[lo+kw-padding:hi+kw-padding])
								}
								continue
							}
							for ow := 0; ow < outW; ow++ {
								inW := ow*stride + kw - padding
								if inW >= 0 && inW < inputWidth {
									outRow[ow] += wVal * inRow[inW]
								}
							}
						}
					}
				}
			}

			if c.hasBias {
				biasVal := c.biases[oc]
				for i := range outPlane {
					outPlane[i] += biasVal
				}
			}
		}
	}

	return out
}

// validSpan returns the output column range [lo, hi) for which
// ow + shift falls inside [0, width) with unit stride.
func validSpan(outW, shift, width int) (int, int) {
	lo := 0
	if shift < 0 {
		lo = -shift
	}
	hi := outW
	if hi+shift > width {
		hi = width - shift
	}
	return lo, hi
}

// Backward performs backpropagation through the convolutional layer.
// grad: gradient of loss w.r.t. output [N, outChannels, outH, outW]
// Returns: gradient of loss w.r.t. input
func (c *Conv2D) Backward(grad *Tensor) *Tensor {
	x := c.savedInput
	if x == nil {
		panic("Conv2D: Backward called before Forward")
	}
	outH, outW := grad.H, grad.W

	kernelSize := c.kernelSize
	stride := c.stride
	padding := c.padding
	inputHeight := x.H
	inputWidth := x.W

	gradInput := ZerosLike(x)

	icWeightStride := kernelSize * kernelSize
	ocWeightStride := c.inChannels * icWeightStride

	for n := 0; n < x.N; n++ {
		for oc := 0; oc < c.outChannels; oc++ {
			ocWeightBase := oc * ocWeightStride
			gradPlane := grad.Plane(n, oc)

			if c.hasBias {
				c.gradBiases[oc] += floats.Sum(gradPlane)
			}

			for ic := 0; ic < c.inChannels; ic++ {
				icWeightBase := ocWeightBase + ic*icWeightStride
				inPlane := x.Plane(n, ic)
				gradInPlane := gradInput.Plane(n, ic)

				for kh := 0; kh < kernelSize; kh++ {
					khWeightBase := icWeightBase + kh*kernelSize

					for kw := 0; kw < kernelSize; kw++ {
						weightIdx := khWeightBase + kw
						wVal := c.weights[weightIdx]
						gw := 0.0

						for oh := 0; oh < outH; oh++ {
							inH := oh*stride + kh - padding
							if inH < 0 || inH >= inputHeight {
								continue
							}
							inOff := inH * inputWidth
							gRow := gradPlane[oh*outW : (oh+1)*outW]

							for ow := 0; ow < outW; ow++ {
								inW := ow*stride + kw - padding
								if inW >= 0 && inW < inputWidth {
									g := gRow[ow]
									gw += g * inPlane[inOff+inW]
									gradInPlane[inOff+inW] += g * wVal
								}
							}
						}
						c.gradWeights[weightIdx] += gw
					}
				}
			}
		}
	}

	return gradInput
}

// NamedParams returns weight [out, in, k, k] and, when present, bias [out].
func (c *Conv2D) NamedParams() []NamedParam {
	params := []NamedParam{{
		Name:  "weight",
		Shape: []int{c.outChannels, c.inChannels, c.kernelSize, c.kernelSize},
		Data:  c.weights,
		Grad:  c.gradWeights,
	}}
	if c.hasBias {
		params = append(params, NamedParam{Name: "bias", Shape: []int{c.outChannels}, Data: c.biases, Grad: c.gradBiases})
	}
	return params
}

// ClearGradients zeroes out the accumulated gradients.
func (c *Conv2D) ClearGradients() {
	zero(c.gradWeights)
	zero(c.gradBiases)
}

// InChannels returns the number of input channels.
func (c *Conv2D) InChannels() int {
	return c.inChannels
}

// OutChannels returns the number of output channels.
func (c *Conv2D) OutChannels() int {
	return c.outChannels
}

// KernelSize returns the kernel size.
func (c *Conv2D) KernelSize() int {
	return c.kernelSize
}

// Stride returns the stride.
func (c *Conv2D) Stride() int {
	return c.stride
}

// Padding returns the padding.
func (c *Conv2D) Padding() int {
	return c.padding
}
