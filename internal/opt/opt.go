// Package opt provides optimization algorithms.
package opt

import (
	"github.com/FlavioCFOliveira/spem/internal/layer"
	"gonum.org/v1/gonum/floats"
)

// Optimizer updates network parameters based on gradients.
type Optimizer interface {
	// Update applies one step to every trainable parameter in place.
	// Buffers (parameters with a nil Grad) are left untouched.
	Update(params []layer.NamedParam)
}

// SGD is stochastic gradient descent with optional momentum and L2 weight
// decay, following torch.optim.SGD:
//
//	d = grad + WeightDecay*param
//	v = Momentum*v + d   (v = d on the first step)
//	param -= LearningRate * v
//
// Velocity is tracked per parameter name, so the same parameter slice must
// be passed on every call.
type SGD struct {
	LearningRate float64
	Momentum     float64
	WeightDecay  float64

	velocity map[string][]float64
	scratch  []float64
}

// NewSGD creates an SGD optimizer.
func NewSGD(learningRate, momentum, weightDecay float64) *SGD {
	return &SGD{
		LearningRate: learningRate,
		Momentum:     momentum,
		WeightDecay:  weightDecay,
	}
}

// StepInPlace updates params in-place: params = params - lr * gradients
func (s *SGD) StepInPlace(params, gradients []float64) {
	floats.AddScaled(params, -s.LearningRate, gradients)
}

// Update applies one SGD step to every trainable parameter.
func (s *SGD) Update(params []layer.NamedParam) {
	for _, p := range params {
		if !p.Trainable() {
			continue
		}
		s.StepInPlace(p.Data, s.direction(p))
	}
}

// direction returns the update direction for p before scaling by the
// learning rate.
func (s *SGD) direction(p layer.NamedParam) []float64 {
	d := p.Grad
	if s.WeightDecay != 0 {
		if cap(s.scratch) < len(d) {
			s.scratch = make([]float64, len(d))
		}
		d = floats.AddScaledTo(s.scratch[:len(d)], p.Grad, s.WeightDecay, p.Data)
	}
	if s.Momentum == 0 {
		return d
	}

	if s.velocity == nil {
		s.velocity = make(map[string][]float64)
	}
	v, ok := s.velocity[p.Name]
	if !ok {
		v = append([]float64(nil), d...)
		s.velocity[p.Name] = v
		return v
	}
	floats.Scale(s.Momentum, v)
	floats.Add(v, d)
	return v
}

// Velocity returns the momentum buffer for the named parameter, or nil.
func (s *SGD) Velocity(name string) []float64 {
	return s.velocity[name]
}

// Reset drops all momentum state.
func (s *SGD) Reset() {
	s.velocity = nil
}
