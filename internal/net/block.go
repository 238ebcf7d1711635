package net

import "github.com/FlavioCFOliveira/spem/internal/layer"

const (
	bnEps      = 1e-5
	bnMomentum = 0.1
)

// conv3x3 is a 3x3 convolution with padding 1 and no bias.
func conv3x3(in, out, stride int, rng *layer.RNG) *layer.Conv2D {
	return layer.NewConv2D(in, out, 3, stride, 1, false, rng)
}

func newBatchNorm(features int) *layer.BatchNorm2D {
	return layer.NewBatchNorm2D(features, bnEps, bnMomentum)
}

// BasicBlock computes ReLU(BN(conv(ReLU(BN(conv(x))))) + shortcut(x)).
// PMSum passes through unchanged.
type BasicBlock struct {
	conv1 *layer.Conv2D
	bn1   *layer.BatchNorm2D
	relu1 *layer.Activation
	conv2 *layer.Conv2D
	bn2   *layer.BatchNorm2D
	relu2 *layer.Activation

	// nil means identity
	downsample *layer.Sequential
	stride     int
}

func newBasicBlock(inplanes, planes, stride int, downsample *layer.Sequential, rng *layer.RNG) *BasicBlock {
	return &BasicBlock{
		conv1:      conv3x3(inplanes, planes, stride, rng),
		bn1:        newBatchNorm(planes),
		relu1:      layer.NewReLU(),
		conv2:      conv3x3(planes, planes, 1, rng),
		bn2:        newBatchNorm(planes),
		relu2:      layer.NewReLU(),
		downsample: downsample,
		stride:     stride,
	}
}

// Forward runs the block on s.X.
func (b *BasicBlock) Forward(s State) State {
	x := s.X
	out := b.relu1.Forward(b.bn1.Forward(b.conv1.Forward(x)))
	out = b.bn2.Forward(b.conv2.Forward(out))

	residual := x
	if b.downsample != nil {
		residual = b.downsample.Forward(x)
	}
	return State{X: b.relu2.Forward(layer.Add(out, residual)), PMSum: s.PMSum}
}

// Backward propagates g through the block and accumulates parameter gradients.
func (b *BasicBlock) Backward(g State) State {
	gSum := b.relu2.Backward(g.X)

	gx := b.bn2.Backward(gSum)
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

// NamedParams lists conv1, bn1, conv2, bn2 and downsample tensors.
func (b *BasicBlock) NamedParams() []layer.NamedParam {
	var params []layer.NamedParam
	params = append(params, layer.Prefix("conv1", b.conv1.NamedParams())...)
	params = append(params, layer.Prefix("bn1", b.bn1.NamedParams())...)
	params = append(params, layer.Prefix("conv2", b.conv2.NamedParams())...)
	params = append(params, layer.Prefix("bn2", b.bn2.NamedParams())...)
	if b.downsample != nil {
		params = append(params, layer.Prefix("downsample", b.downsample.NamedParams())...)
	}
	return params
}

// walk visits every leaf layer of the block.
func (b *BasicBlock) walk(fn func(layer.Layer)) {
	for _, l := range []layer.Layer{b.conv1, b.bn1, b.relu1, b.conv2, b.bn2, b.relu2} {
		fn(l)
	}
	if b.downsample != nil {
		for _, l := range b.downsample.Layers() {
			fn(l)
		}
	}
}

// Stride returns the stride of the first convolution.
func (b *BasicBlock) Stride() int {
	return b.stride
}

// HasDownsample reports whether the shortcut is a projection.
func (b *BasicBlock) HasDownsample() bool {
	return b.downsample != nil
}

// ClearGradients zeroes the gradients of every layer in the block.
func (b *BasicBlock) ClearGradients() {
	b.walk(func(l layer.Layer) { l.ClearGradients() })
}

// SetTraining switches the block's batch normalization layers.
func (b *BasicBlock) SetTraining(training bool) {
	b.walk(func(l layer.Layer) { setTraining(l, training) })
}

func setTraining(l layer.Layer, training bool) {
	if ts, ok := l.(layer.TrainingSetter); ok {
		ts.SetTraining(training)
	}
}
