package net

import "github.com/FlavioCFOliveira/spem/internal/layer"

// State is the pair threaded through every block and stage: the feature
// map and the running sum of squared gate mixing weights. On the way back
// it carries the gradients of the same two values.
type State struct {
	X     *layer.Tensor
	PMSum float64
}
