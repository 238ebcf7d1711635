package layer

import "strconv"

// Sequential chains layers, feeding each output into the next.
// Parameter names are prefixed with the layer's position, matching
// torch.nn.Sequential ("0.weight", "1.running_mean", ...).
type Sequential struct {
	layers []Layer
}

// NewSequential creates a Sequential container.
func NewSequential(layers ...Layer) *Sequential {
	return &Sequential{layers: layers}
}

// Forward performs a forward pass through all layers.
func (s *Sequential) Forward(x *Tensor) *Tensor {
	curr := x
	for _, l := range s.layers {
		curr = l.Forward(curr)
	}
	return curr
}

// Backward performs a backward pass through all layers in reverse.
func (s *Sequential) Backward(grad *Tensor) *Tensor {
	curr := grad
	for i := len(s.layers) - 1; i >= 0; i-- {
		curr = s.layers[i].Backward(curr)
	}
	return curr
}

// NamedParams returns the parameters of every layer, prefixed by index.
func (s *Sequential) NamedParams() []NamedParam {
	var params []NamedParam
	for i, l := range s.layers {
		params = append(params, Prefix(strconv.Itoa(i), l.NamedParams())...)
	}
	return params
}

// ClearGradients clears the gradients of every layer.
func (s *Sequential) ClearGradients() {
	for _, l := range s.layers {
		l.ClearGradients()
	}
}

// SetTraining forwards the mode to every layer that supports it.
func (s *Sequential) SetTraining(training bool) {
	for _, l := range s.layers {
		if ts, ok := l.(TrainingSetter); ok {
			ts.SetTraining(training)
		}
	}
}

// Layers returns the contained layers.
func (s *Sequential) Layers() []Layer {
	return s.layers
}

// Len returns the number of contained layers.
func (s *Sequential) Len() int {
	return len(s.layers)
}
