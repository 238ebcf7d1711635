// Package activations provides activation functions optimized for performance.
package activations

import "math"

// Activation is an activation function with derivative.
type Activation interface {
	// Activate computes f(x)
	Activate(x float64) float64

	// Derivative computes f'(x)
	Derivative(x float64) float64
}

// ReLU activation function.
type ReLU struct{}

// Activate computes max(0, x)
func (r ReLU) Activate(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

// Derivative returns 1 if x > 0, else 0
func (r ReLU) Derivative(x float64) float64 {
	if x > 0 {
		return 1
	}
	return 0
}

// Sigmoid activation function.
type Sigmoid struct{}

// Logistic computes 1 / (1 + exp(-x)).
// Split on the sign of x so neither branch overflows exp.
func Logistic(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// Activate computes sigmoid(x)
func (s Sigmoid) Activate(x float64) float64 {
	return Logistic(x)
}

// Derivative computes sigmoid(x) * (1 - sigmoid(x))
func (s Sigmoid) Derivative(x float64) float64 {
	sigma := Logistic(x)
	return sigma * (1 - sigma)
}

// Linear is the identity activation.
type Linear struct{}

// Activate returns x unchanged.
func (l Linear) Activate(x float64) float64 {
	return x
}

// Derivative is always 1.
func (l Linear) Derivative(x float64) float64 {
	return 1
}

// Softmax normalizes a vector into a probability distribution.
// It has no scalar form, so it does not implement Activation.
type Softmax struct{}

// ActivateBatch computes softmax of x into dst and returns dst.
// dst may alias x.
func (s Softmax) ActivateBatch(dst, x []float64) []float64 {
	if len(x) == 0 {
		return dst[:0]
	}

	// Shift by the max for numerical stability
	maxVal := x[0]
	for i := 1; i < len(x); i++ {
		if x[i] > maxVal {
			maxVal = x[i]
		}
	}

	sum := 0.0
	for i := range x {
		dst[i] = math.Exp(x[i] - maxVal)
		sum += dst[i]
	}
	for i := range x {
		dst[i] /= sum
	}
	return dst[:len(x)]
}
