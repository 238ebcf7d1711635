package layer

import "github.com/FlavioCFOliveira/spem/internal/activations"

// Activation applies an elementwise activation function.
type Activation struct {
	act        activations.Activation
	savedInput *Tensor
}

// NewActivation wraps act as a parameter-free layer.
func NewActivation(act activations.Activation) *Activation {
	return &Activation{act: act}
}

// NewReLU is shorthand for NewActivation(activations.ReLU{}).
func NewReLU() *Activation {
	return NewActivation(activations.ReLU{})
}

// Forward applies the activation to every element.
func (a *Activation) Forward(x *Tensor) *Tensor {
	a.savedInput = x
	out := ZerosLike(x)
	for i, v := range x.Data {
		out.Data[i] = a.act.Activate(v)
	}
	return out
}

// Backward multiplies grad by the activation derivative at the saved input.
func (a *Activation) Backward(grad *Tensor) *Tensor {
	if a.savedInput == nil {
		panic("Activation: Backward called before Forward")
	}
	gradIn := ZerosLike(grad)
	for i, v := range a.savedInput.Data {
		gradIn.Data[i] = grad.Data[i] * a.act.Derivative(v)
	}
	return gradIn
}

func (a *Activation) NamedParams() []NamedParam { return nil }
func (a *Activation) ClearGradients()           {}

// Func returns the wrapped activation function.
func (a *Activation) Func() activations.Activation {
	return a.act
}
