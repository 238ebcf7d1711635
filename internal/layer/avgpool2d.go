package layer

import "fmt"

// AvgPool2D implements 2D average pooling without padding.
// Downsamples by taking the average over sliding windows; partial windows
// are dropped.
type AvgPool2D struct {
	kernelSize int
	stride     int

	inShape [4]int
}

// NewAvgPool2D creates a new 2D average pooling layer.
// kernelSize: size of pooling window (square)
// stride: stride for pooling; 0 defaults to kernelSize
func NewAvgPool2D(kernelSize, stride int) *AvgPool2D {
	if stride == 0 {
		stride = kernelSize
	}
	return &AvgPool2D{kernelSize: kernelSize, stride: stride}
}

// OutputSize calculates the output spatial dimensions
func (a *AvgPool2D) OutputSize(inputHeight, inputWidth int) (int, int) {
	outH := (inputHeight-a.kernelSize)/a.stride + 1
	outW := (inputWidth-a.kernelSize)/a.stride + 1
	return outH, outW
}

// Forward averages every kernelSize x kernelSize window.
func (a *AvgPool2D) Forward(x *Tensor) *Tensor {
	if x.H < a.kernelSize || x.W < a.kernelSize {
		panic(fmt.Sprintf("AvgPool2D: input %dx%d smaller than kernel %d", x.H, x.W, a.kernelSize))
	}
	a.inShape = x.Shape()
	outH, outW := a.OutputSize(x.H, x.W)
	out := NewTensor(x.N, x.C, outH, outW)
	invCount := 1.0 / float64(a.kernelSize*a.kernelSize)

	for n := 0; n < x.N; n++ {
		for c := 0; c < x.C; c++ {
			in := x.Plane(n, c)
			o := out.Plane(n, c)
			for oh := 0; oh < outH; oh++ {
				for ow := 0; ow < outW; ow++ {
					sum := 0.0
					for kh := 0; kh < a.kernelSize; kh++ {
						row := (oh*a.stride + kh) * x.W
						for kw := 0; kw < a.kernelSize; kw++ {
							sum += in[row+ow*a.stride+kw]
						}
					}
					o[oh*outW+ow] = sum * invCount
				}
			}
		}
	}
	return out
}

// Backward spreads each output gradient evenly across its window.
func (a *AvgPool2D) Backward(grad *Tensor) *Tensor {
	s := a.inShape
	if s[0] == 0 {
		panic("AvgPool2D: Backward called before Forward")
	}
	gradIn := NewTensor(s[0], s[1], s[2], s[3])
	invCount := 1.0 / float64(a.kernelSize*a.kernelSize)

	for n := 0; n < grad.N; n++ {
		for c := 0; c < grad.C; c++ {
			g := grad.Plane(n, c)
			gi := gradIn.Plane(n, c)
			for oh := 0; oh < grad.H; oh++ {
				for ow := 0; ow < grad.W; ow++ {
					share := g[oh*grad.W+ow] * invCount
					for kh := 0; kh < a.kernelSize; kh++ {
						row := (oh*a.stride + kh) * gradIn.W
						for kw := 0; kw < a.kernelSize; kw++ {
							gi[row+ow*a.stride+kw] += share
						}
					}
				}
			}
		}
	}
	return gradIn
}

func (a *AvgPool2D) NamedParams() []NamedParam { return nil }
func (a *AvgPool2D) ClearGradients()           {}

// KernelSize returns the pooling window size.
func (a *AvgPool2D) KernelSize() int {
	return a.kernelSize
}
