package net

import "github.com/FlavioCFOliveira/spem/internal/layer"

// Bottleneck is the 1x1-3x3-1x1 residual block whose expanded output is
// scaled by an ExtremaGate before the shortcut is added. Each block adds
// the gate's squared mixing weights to PMSum.
type Bottleneck struct {
	info string

	conv1 *layer.Conv2D
	bn1   *layer.BatchNorm2D
	relu1 *layer.Activation
	conv2 *layer.Conv2D
	bn2   *layer.BatchNorm2D
	relu2 *layer.Activation
	conv3 *layer.Conv2D
	bn3   *layer.BatchNorm2D
	gate  *ExtremaGate
	relu3 *layer.Activation

	downsample *layer.Sequential
	stride     int
}

func newBottleneck(inplanes, planes, stride int, downsample *layer.Sequential, info string, rng *layer.RNG) *Bottleneck {
	expanded := planes * KindBottleneck.Expansion()
	return &Bottleneck{
		info:       info,
		conv1:      layer.NewConv2D(inplanes, planes, 1, 1, 0, false, rng),
		bn1:        newBatchNorm(planes),
		relu1:      layer.NewReLU(),
		conv2:      conv3x3(planes, planes, stride, rng),
		bn2:        newBatchNorm(planes),
		relu2:      layer.NewReLU(),
		conv3:      layer.NewConv2D(planes, expanded, 1, 1, 0, false, rng),
		bn3:        newBatchNorm(expanded),
		gate:       NewExtremaGate(expanded),
		relu3:      layer.NewReLU(),
		downsample: downsample,
		stride:     stride,
	}
}

// Forward runs the block on s.X and adds the gate energy to s.PMSum.
func (b *Bottleneck) Forward(s State) State {
	x := s.X
	out := b.relu1.Forward(b.bn1.Forward(b.conv1.Forward(x)))
	out = b.relu2.Forward(b.bn2.Forward(b.conv2.Forward(out)))
	out = b.bn3.Forward(b.conv3.Forward(out))

	residual := x
	if b.downsample != nil {
		residual = b.downsample.Forward(x)
	}

	gated, energy := b.gate.Forward(out)
	return State{
		X:     b.relu3.Forward(layer.Add(gated, residual)),
		PMSum: s.PMSum + energy,
	}
}

// Backward propagates g through the block and accumulates parameter
// gradients, including the PMSum contribution to p.
func (b *Bottleneck) Backward(g State) State {
	gSum := b.relu3.Backward(g.X)

	gx := b.gate.Backward(gSum, g.PMSum)
	gx = b.bn3.Backward(gx)
	gx = b.conv3.Backward(gx)
	gx = b.relu2.Backward(gx)
	gx = b.bn2.Backward(gx)
	gx = b.conv2.Backward(gx)
	gx = b.relu1.Backward(gx)
	gx = b.bn1.Backward(gx)
	gx = b.conv1.Backward(gx)

	if b.downsample != nil {
		layer.AddInPlace(gx, b.downsample.Backward(gSum))
	} else {
		layer.AddInPlace(gx, gSum)
	}
	return State{X: gx, PMSum: g.PMSum}
}

// NamedParams lists the gate tensors followed by the convolution,
// normalization and downsample tensors.
func (b *Bottleneck) NamedParams() []layer.NamedParam {
	params := b.gate.NamedParams()
	params = append(params, layer.Prefix("conv1", b.conv1.NamedParams())...)
	params = append(params, layer.Prefix("bn1", b.bn1.NamedParams())...)
	params = append(params, layer.Prefix("conv2", b.conv2.NamedParams())...)
	params = append(params, layer.Prefix("bn2", b.bn2.NamedParams())...)
	params = append(params, layer.Prefix("conv3", b.conv3.NamedParams())...)
	params = append(params, layer.Prefix("bn3", b.bn3.NamedParams())...)
	if b.downsample != nil {
		params = append(params, layer.Prefix("downsample", b.downsample.NamedParams())...)
	}
	return params
}

func (b *Bottleneck) walk(fn func(layer.Layer)) {
	for _, l := range []layer.Layer{
		b.conv1, b.bn1, b.relu1,
		b.conv2, b.bn2, b.relu2,
		b.conv3, b.bn3, b.relu3,
	} {
		fn(l)
	}
	if b.downsample != nil {
		for _, l := range b.downsample.Layers() {
			fn(l)
		}
	}
}

// Gate returns the block's extrema gate.
func (b *Bottleneck) Gate() *ExtremaGate {
	return b.gate
}

// Info returns the tag given at construction.
func (b *Bottleneck) Info() string {
	return b.info
}

// Stride returns the stride of the 3x3 convolution.
func (b *Bottleneck) Stride() int {
	return b.stride
}

// HasDownsample reports whether the shortcut is a projection.
func (b *Bottleneck) HasDownsample() bool {
	return b.downsample != nil
}

// ClearGradients zeroes the gradients of every layer and of the gate.
func (b *Bottleneck) ClearGradients() {
	b.walk(func(l layer.Layer) { l.ClearGradients() })
	b.gate.ClearGradients()
}

// SetTraining switches the block's batch normalization layers.
func (b *Bottleneck) SetTraining(training bool) {
	b.walk(func(l layer.Layer) { setTraining(l, training) })
}
