// Package spem is the public entry point to the SPEM residual network.
package spem

import (
	"github.com/FlavioCFOliveira/spem/internal/layer"
	"github.com/FlavioCFOliveira/spem/internal/loss"
	"github.com/FlavioCFOliveira/spem/internal/net"
	"github.com/FlavioCFOliveira/spem/internal/opt"
)

// Re-export common types and functions for easier access
type (
	Network    = net.Network
	Config     = net.Config
	Output     = net.Output
	State      = net.State
	BlockKind  = net.BlockKind
	Tensor     = layer.Tensor
	NamedParam = layer.NamedParam
	Optimizer  = opt.Optimizer
	Loss       = loss.Loss
)

// Block kinds
const (
	BasicBlock = net.KindBasic
	Bottleneck = net.KindBottleneck
)

// Configuration errors
var (
	ErrUnknownBlock   = net.ErrUnknownBlock
	ErrInvalidDepth   = net.ErrInvalidDepth
	ErrInvalidClasses = net.ErrInvalidClasses
	ErrCheckpoint     = net.ErrCheckpoint
)

// New builds a network from cfg.
func New(cfg Config) (*Network, error) {
	return net.New(cfg)
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return net.DefaultConfig()
}

// Load reads a network saved with Network.Save.
func Load(filename string) (*Network, error) {
	return net.Load(filename)
}

// NewTensor allocates a zero (N, C, H, W) tensor.
func NewTensor(n, c, h, w int) *Tensor {
	return layer.NewTensor(n, c, h, w)
}

// NewSGD creates an SGD optimizer with momentum and weight decay.
func NewSGD(learningRate, momentum, weightDecay float64) *opt.SGD {
	return opt.NewSGD(learningRate, momentum, weightDecay)
}

// CrossEntropy is softmax cross-entropy on logits.
var CrossEntropy = loss.CrossEntropy{}
