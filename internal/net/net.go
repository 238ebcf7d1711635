// Package net assembles the SPEM residual network: a CIFAR-style ResNet
// whose bottleneck blocks gate their output with learned statistics of
// each channel's global maximum and minimum.
package net

import (
	"math"
	"strconv"

	"github.com/FlavioCFOliveira/spem/internal/layer"
)

// Output is the result of a forward pass.
type Output struct {
	// Logits has shape (N, NumClasses, 1, 1).
	Logits *layer.Tensor
	// PMSum is the sum over all bottleneck gates of sum(p*p). It is 0 for
	// BasicBlock networks.
	PMSum float64
}

// Network is the full model: stem, three stages, average pool and a
// linear classifier. It is not safe for concurrent use.
type Network struct {
	cfg  Config
	kind BlockKind

	conv1 *layer.Conv2D
	bn1   *layer.BatchNorm2D
	relu  *layer.Activation

	stages [3]*Stage

	avgpool *layer.AvgPool2D
	fc      *layer.Dense
}

// New builds and initializes a network for 3x32x32 inputs.
func New(cfg Config) (*Network, error) {
	kind, n, err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	rng := layer.NewRNG(cfg.Seed)

	net := &Network{
		cfg:     cfg,
		kind:    kind,
		conv1:   conv3x3(3, 16, 1, rng),
		bn1:     newBatchNorm(16),
		relu:    layer.NewReLU(),
		avgpool: layer.NewAvgPool2D(8, 0),
	}

	b := &builder{kind: kind, inplanes: 16, info: cfg.Info, rng: rng}
	net.stages[0] = b.makeStage(16, n, 1)
	net.stages[1] = b.makeStage(32, n, 2)
	net.stages[2] = b.makeStage(64, n, 2)

	net.fc = layer.NewDense(64*kind.Expansion(), cfg.NumClasses, rng)

	net.walk(func(l layer.Layer) {
		switch m := l.(type) {
		case *layer.Conv2D:
			fan := m.KernelSize() * m.KernelSize() * m.OutChannels()
			m.InitNormal(0, math.Sqrt(2.0/float64(fan)), rng)
		case *layer.BatchNorm2D:
			m.ResetParameters()
		}
	})
	return net, nil
}

// walk visits every leaf layer in construction order.
func (n *Network) walk(fn func(layer.Layer)) {
	fn(n.conv1)
	fn(n.bn1)
	fn(n.relu)
	for _, st := range n.stages {
		st.walk(fn)
	}
	fn(n.avgpool)
	fn(n.fc)
}

// Forward runs a batch of shape (N, 3, 32, 32) through the network.
func (n *Network) Forward(x *layer.Tensor) Output {
	out := n.relu.Forward(n.bn1.Forward(n.conv1.Forward(x)))

	s := State{X: out}
	for _, st := range n.stages {
		s = st.Forward(s)
	}

	logits := n.fc.Forward(n.avgpool.Forward(s.X))
	return Output{Logits: logits, PMSum: s.PMSum}
}

// Backward takes the gradients of the loss with respect to the logits and
// to PMSum, accumulates every parameter gradient and returns the gradient
// with respect to the input batch.
func (n *Network) Backward(gradLogits *layer.Tensor, gradPM float64) *layer.Tensor {
	g := n.avgpool.Backward(n.fc.Backward(gradLogits))

	s := State{X: g, PMSum: gradPM}
	for i := len(n.stages) - 1; i >= 0; i-- {
		s = n.stages[i].Backward(s)
	}
	return n.conv1.Backward(n.bn1.Backward(n.relu.Backward(s.X)))
}

// NamedParams returns every tensor of the network with its dotted path,
// e.g. "conv1.weight", "layer2.0.downsample.1.running_var", "fc.bias".
// Data and Grad alias the network's storage.
func (n *Network) NamedParams() []layer.NamedParam {
	var params []layer.NamedParam
	params = append(params, layer.Prefix("conv1", n.conv1.NamedParams())...)
	params = append(params, layer.Prefix("bn1", n.bn1.NamedParams())...)
	for i, st := range n.stages {
		params = append(params, layer.Prefix(stageName(i), st.NamedParams())...)
	}
	params = append(params, layer.Prefix("fc", n.fc.NamedParams())...)
	return params
}

func stageName(i int) string {
	return "layer" + strconv.Itoa(i+1)
}

// ClearGradients zeroes all accumulated gradients.
func (n *Network) ClearGradients() {
	n.walk(func(l layer.Layer) { l.ClearGradients() })
	for _, st := range n.stages {
		for _, b := range st.bottlenecks {
			b.gate.ClearGradients()
		}
	}
}

// SetTraining switches batch normalization between batch statistics
// (training) and running statistics (inference).
func (n *Network) SetTraining(training bool) {
	n.walk(func(l layer.Layer) { setTraining(l, training) })
}

// NumBlocks returns the number of residual blocks across all stages.
func (n *Network) NumBlocks() int {
	total := 0
	for _, st := range n.stages {
		total += st.Len()
	}
	return total
}

// Stages returns the three stages in order.
func (n *Network) Stages() []*Stage {
	return n.stages[:]
}

// Config returns the configuration the network was built from.
func (n *Network) Config() Config {
	return n.cfg
}

// Kind returns the block kind.
func (n *Network) Kind() BlockKind {
	return n.kind
}
