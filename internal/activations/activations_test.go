// Package activations provides unit tests for activation functions.
package activations

import (
	"math"
	"testing"
)

func float64Near(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestReLU(t *testing.T) {
	relu := ReLU{}

	tests := []struct {
		x        float64
		expected float64
		deriv    float64
	}{
		{-2.0, 0.0, 0.0},
		{-0.5, 0.0, 0.0},
		{0.0, 0.0, 0.0},
		{0.5, 0.5, 1.0},
		{3.0, 3.0, 1.0},
	}

	for _, tt := range tests {
		if got := relu.Activate(tt.x); got != tt.expected {
			t.Errorf("ReLU.Activate(%v) = %v, want %v", tt.x, got, tt.expected)
		}
		if got := relu.Derivative(tt.x); got != tt.deriv {
			t.Errorf("ReLU.Derivative(%v) = %v, want %v", tt.x, got, tt.deriv)
		}
	}
}

// Values from PyTorch: torch.sigmoid(torch.tensor(x, dtype=torch.float64))
func TestSigmoidAgainstPyTorchReference(t *testing.T) {
	sig := Sigmoid{}

	tests := []struct {
		x        float64
		expected float64
	}{
		{-2.0, 0.11920292202211755},
		{-1.0, 0.2689414213699951},
		{0.0, 0.5},
		{1.0, 0.7310585786300049},
		{2.0, 0.8807970779778823},
	}

	for _, tt := range tests {
		got := sig.Activate(tt.x)
		if !float64Near(got, tt.expected, 1e-12) {
			t.Errorf("Sigmoid.Activate(%v) = %v, PyTorch would give %v", tt.x, got, tt.expected)
		}
	}
}

func TestSigmoidDerivativeMatchesFiniteDifference(t *testing.T) {
	sig := Sigmoid{}
	const h = 1e-6
	for _, x := range []float64{-4, -1, -0.3, 0, 0.7, 2.5} {
		numeric := (sig.Activate(x+h) - sig.Activate(x-h)) / (2 * h)
		if got := sig.Derivative(x); !float64Near(got, numeric, 1e-8) {
			t.Errorf("Sigmoid.Derivative(%v) = %v, finite difference %v", x, got, numeric)
		}
	}
}

func TestLogisticExtremes(t *testing.T) {
	if got := Logistic(-1000); got != 0 || math.IsNaN(got) {
		t.Errorf("Logistic(-1000) = %v, want 0", got)
	}
	if got := Logistic(1000); got != 1 {
		t.Errorf("Logistic(1000) = %v, want 1", got)
	}
}

func TestLinear(t *testing.T) {
	l := Linear{}
	if l.Activate(-3.5) != -3.5 || l.Derivative(-3.5) != 1 {
		t.Error("Linear should be the identity with unit derivative")
	}
}

func TestSoftmaxActivateBatch(t *testing.T) {
	x := []float64{1, 2, 3}
	out := Softmax{}.ActivateBatch(make([]float64, 3), x)

	// PyTorch: torch.softmax(torch.tensor([1., 2., 3.]), 0)
	expected := []float64{0.09003057317038046, 0.24472847105479764, 0.6652409557748219}
	sum := 0.0
	for i := range out {
		sum += out[i]
		if !float64Near(out[i], expected[i], 1e-12) {
			t.Errorf("softmax[%d] = %v, want %v", i, out[i], expected[i])
		}
	}
	if !float64Near(sum, 1, 1e-12) {
		t.Errorf("softmax sums to %v, want 1", sum)
	}
	if x[0] != 1 {
		t.Error("ActivateBatch must not modify x when dst is distinct")
	}
}

func TestSoftmaxInPlaceLargeValues(t *testing.T) {
	x := []float64{1000, 1000}
	Softmax{}.ActivateBatch(x, x)
	if !float64Near(x[0], 0.5, 1e-12) || !float64Near(x[1], 0.5, 1e-12) {
		t.Errorf("softmax of equal large logits = %v, want [0.5 0.5]", x)
	}
}
