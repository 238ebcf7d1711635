package layer

import "gonum.org/v1/gonum/floats"

// PoolMode selects the reduction used by GlobalPool2D.
type PoolMode int

const (
	PoolMax PoolMode = iota
	PoolMin
)

// String returns the mode name.
func (m PoolMode) String() string {
	switch m {
	case PoolMax:
		return "max"
	case PoolMin:
		return "min"
	default:
		return "unknown"
	}
}

// GlobalPool2D reduces every channel plane to a single value, producing
// (N, C, 1, 1). The winning position of each plane is kept so Backward
// routes the gradient to it; on ties the first position wins.
type GlobalPool2D struct {
	mode    PoolMode
	inShape [4]int
	argIdx  []int
}

// NewGlobalPool2D creates a global max or min pooling layer.
func NewGlobalPool2D(mode PoolMode) *GlobalPool2D {
	return &GlobalPool2D{mode: mode}
}

// Forward takes the max (or min) over H*W for each sample and channel.
func (g *GlobalPool2D) Forward(x *Tensor) *Tensor {
	g.inShape = x.Shape()
	planes := x.N * x.C
	if cap(g.argIdx) < planes {
		g.argIdx = make([]int, planes)
	}
	g.argIdx = g.argIdx[:planes]

	out := NewTensor(x.N, x.C, 1, 1)
	for n := 0; n < x.N; n++ {
		for c := 0; c < x.C; c++ {
			plane := x.Plane(n, c)
			var idx int
			if g.mode == PoolMin {
				idx = floats.MinIdx(plane)
			} else {
				idx = floats.MaxIdx(plane)
			}
			k := n*x.C + c
			g.argIdx[k] = idx
			out.Data[k] = plane[idx]
		}
	}
	return out
}

// Backward places each gradient at the recorded extremum position.
func (g *GlobalPool2D) Backward(grad *Tensor) *Tensor {
	s := g.inShape
	if s[0] == 0 {
		panic("GlobalPool2D: Backward called before Forward")
	}
	gradIn := NewTensor(s[0], s[1], s[2], s[3])
	for n := 0; n < s[0]; n++ {
		for c := 0; c < s[1]; c++ {
			k := n*s[1] + c
			gradIn.Plane(n, c)[g.argIdx[k]] = grad.Data[k]
		}
	}
	return gradIn
}

func (g *GlobalPool2D) NamedParams() []NamedParam { return nil }
func (g *GlobalPool2D) ClearGradients()           {}

// Mode returns the reduction mode.
func (g *GlobalPool2D) Mode() PoolMode {
	return g.mode
}
