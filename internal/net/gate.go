package net

import (
	"fmt"

	"github.com/FlavioCFOliveira/spem/internal/activations"
	"github.com/FlavioCFOliveira/spem/internal/layer"
	"gonum.org/v1/gonum/floats"
)

// ExtremaGate scales every channel of a feature map by a gate derived from
// the channel's global maximum and minimum:
//
//	max' = max*w2 + b2, min' = min*w2 + b2
//	r    = p*p / sum(p*p)
//	mix' = (r0*max' + r1*min')*w1 + b1
//	gate = sigmoid(max' + min') * sigmoid(mix')
//
// w1, b1, w2 and b2 are per channel; p is shared by all channels.
type ExtremaGate struct {
	channels int

	w1, b1, w2, b2 []float64
	p              []float64

	gradW1, gradB1, gradW2, gradB2 []float64
	gradP                          []float64

	maxPool *layer.GlobalPool2D
	minPool *layer.GlobalPool2D

	savedInput *layer.Tensor
	savedMix   [2]float64
	savedQSum  float64
	stats      []gateStats
}

// gateStats holds the forward intermediates of one (sample, channel) pair.
type gateStats struct {
	max, min   float64
	maxP, minP float64
	mix, mixP  float64
	a, b       float64 // sigmoid(max'+min'), sigmoid(mix')
}

// NewExtremaGate creates a gate for the given channel count with
// w1 = w2 = 0, b1 = b2 = -1 and p = [0.5, 0.5].
func NewExtremaGate(channels int) *ExtremaGate {
	g := &ExtremaGate{
		channels: channels,
		w1:       make([]float64, channels),
		b1:       make([]float64, channels),
		w2:       make([]float64, channels),
		b2:       make([]float64, channels),
		p:        []float64{0.5, 0.5},
		gradW1:   make([]float64, channels),
		gradB1:   make([]float64, channels),
		gradW2:   make([]float64, channels),
		gradB2:   make([]float64, channels),
		gradP:    make([]float64, 2),
		maxPool:  layer.NewGlobalPool2D(layer.PoolMax),
		minPool:  layer.NewGlobalPool2D(layer.PoolMin),
	}
	for c := 0; c < channels; c++ {
		g.b1[c] = -1
		g.b2[c] = -1
	}
	return g
}

// MixWeights returns p squared and normalized to sum to one, and the sum of
// squares before normalization. When both entries of p are zero the mix
// falls back to an equal blend.
func (g *ExtremaGate) MixWeights() (r [2]float64, energy float64) {
	q := [2]float64{g.p[0] * g.p[0], g.p[1] * g.p[1]}
	energy = floats.Sum(q[:])
	if energy == 0 {
		return [2]float64{0.5, 0.5}, 0
	}
	return [2]float64{q[0] / energy, q[1] / energy}, energy
}

// Forward returns the gated map and this gate's contribution to PMSum.
func (g *ExtremaGate) Forward(o *layer.Tensor) (*layer.Tensor, float64) {
	if o.C != g.channels {
		panic(fmt.Sprintf("ExtremaGate: expected %d channels, got %d", g.channels, o.C))
	}
	mx := g.maxPool.Forward(o)
	mn := g.minPool.Forward(o)
	r, energy := g.MixWeights()

	g.savedInput = o
	g.savedMix = r
	g.savedQSum = energy
	if cap(g.stats) < o.N*o.C {
		g.stats = make([]gateStats, o.N*o.C)
	}
	g.stats = g.stats[:o.N*o.C]

	out := layer.ZerosLike(o)
	for n := 0; n < o.N; n++ {
		for c := 0; c < o.C; c++ {
			k := n*o.C + c
			st := gateStats{max: mx.Data[k], min: mn.Data[k]}
			st.maxP = st.max*g.w2[c] + g.b2[c]
			st.minP = st.min*g.w2[c] + g.b2[c]
			st.mix = r[0]*st.maxP + r[1]*st.minP
			st.mixP = st.mix*g.w1[c] + g.b1[c]
			st.a = activations.Logistic(st.maxP + st.minP)
			st.b = activations.Logistic(st.mixP)
			g.stats[k] = st

			floats.ScaleTo(out.Plane(n, c), st.a*st.b, o.Plane(n, c))
		}
	}
	return out, energy
}

// Backward takes the gradient of the gated map and of PMSum, accumulates
// parameter gradients and returns the gradient with respect to the input map.
func (g *ExtremaGate) Backward(grad *layer.Tensor, gradPM float64) *layer.Tensor {
	o := g.savedInput
	if o == nil {
		panic("ExtremaGate: Backward called before Forward")
	}
	r := g.savedMix

	gradIn := layer.ZerosLike(o)
	gradMax := layer.NewTensor(o.N, o.C, 1, 1)
	gradMin := layer.NewTensor(o.N, o.C, 1, 1)
	var gradR [2]float64

	for n := 0; n < o.N; n++ {
		for c := 0; c < o.C; c++ {
			k := n*o.C + c
			st := g.stats[k]
			gp := grad.Plane(n, c)

			floats.ScaleTo(gradIn.Plane(n, c), st.a*st.b, gp)

			gGate := floats.Dot(gp, o.Plane(n, c))
			gSumP := gGate * st.a * (1 - st.a) * st.b
			gMixP := gGate * st.a * st.b * (1 - st.b)

			g.gradW1[c] += gMixP * st.mix
			g.gradB1[c] += gMixP
			gMix := gMixP * g.w1[c]

			gMaxP := gSumP + gMix*r[0]
			gMinP := gSumP + gMix*r[1]
			gradR[0] += gMix * st.maxP
			gradR[1] += gMix * st.minP

			g.gradW2[c] += gMaxP*st.max + gMinP*st.min
			g.gradB2[c] += gMaxP + gMinP

			gradMax.Data[k] = gMaxP * g.w2[c]
			gradMin.Data[k] = gMinP * g.w2[c]
		}
	}
	layer.AddInPlace(gradIn, g.maxPool.Backward(gradMax))
	layer.AddInPlace(gradIn, g.minPool.Backward(gradMin))

	// r_j = q_j / S, so dL/dq_j = (dL/dr_j - sum_i dL/dr_i r_i) / S
	var gradQ [2]float64
	if s := g.savedQSum; s > 0 {
		dot := gradR[0]*r[0] + gradR[1]*r[1]
		gradQ[0] = (gradR[0] - dot) / s
		gradQ[1] = (gradR[1] - dot) / s
	}
	for j := range g.p {
		g.gradP[j] += 2 * g.p[j] * (gradQ[j] + gradPM)
	}
	return gradIn
}

// Gate returns the multiplier applied to channel c of sample n by the
// last Forward.
func (g *ExtremaGate) Gate(n, c int) float64 {
	st := g.stats[n*g.channels+c]
	return st.a * st.b
}

// NamedParams returns w1, b1, w2, b2 as [1, C, 1, 1] and p as [2].
func (g *ExtremaGate) NamedParams() []layer.NamedParam {
	shape := []int{1, g.channels, 1, 1}
	return []layer.NamedParam{
		{Name: "w1", Shape: shape, Data: g.w1, Grad: g.gradW1},
		{Name: "b1", Shape: shape, Data: g.b1, Grad: g.gradB1},
		{Name: "w2", Shape: shape, Data: g.w2, Grad: g.gradW2},
		{Name: "b2", Shape: shape, Data: g.b2, Grad: g.gradB2},
		{Name: "p", Shape: []int{2}, Data: g.p, Grad: g.gradP},
	}
}

// ClearGradients zeroes out the accumulated gradients.
func (g *ExtremaGate) ClearGradients() {
	for _, s := range [][]float64{g.gradW1, g.gradB1, g.gradW2, g.gradB2, g.gradP} {
		for i := range s {
			s[i] = 0
		}
	}
}

// Channels returns the number of gated channels.
func (g *ExtremaGate) Channels() int {
	return g.channels
}
