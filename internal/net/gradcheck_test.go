package net

import (
	"math"
	"testing"

	"github.com/FlavioCFOliveira/spem/internal/layer"
)

func randomTensor(rng *layer.RNG, n, c, h, w int) *layer.Tensor {
	t := layer.NewTensor(n, c, h, w)
	for i := range t.Data {
		t.Data[i] = rng.Normal(0, 1)
	}
	return t
}

// stateModule is anything that maps a State forward and its gradient back.
type stateModule interface {
	Forward(State) State
	Backward(State) State
	NamedParams() []layer.NamedParam
	ClearGradients()
}

func gradsClose(analytic, numeric float64) bool {
	diff := math.Abs(analytic - numeric)
	scale := math.Max(math.Abs(analytic), math.Abs(numeric))
	return diff <= 1e-6+1e-4*scale
}

// numericDerivative is the central difference of eval in *v, with ok false
// when a ReLU kink or an extremum switch falls inside the step.
func numericDerivative(eval func() float64, v *float64, base float64) (float64, bool) {
	const h = 1e-6
	orig := *v
	*v = orig + h
	plus := eval()
	*v = orig - h
	minus := eval()
	*v = orig

	forward := (plus - base) / h
	backward := (base - minus) / h
	central := (plus - minus) / (2 * h)
	return central, math.Abs(forward-backward) <= 1e-6+1e-4*math.Abs(central)
}

func spread(n, k int) []int {
	if n <= k {
		k = n
	}
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i * n / k
	}
	return idx
}

// checkStateGradients checks m.Backward against central differences of
// sum(r * out.X) + c * out.PMSum for the input map and every trainable
// parameter.
func checkStateGradients(t *testing.T, m stateModule, x *layer.Tensor, rng *layer.RNG) {
	t.Helper()

	m.ClearGradients()
	out := m.Forward(State{X: x, PMSum: 0.25})
	r := randomTensor(rng, out.X.N, out.X.C, out.X.H, out.X.W)
	c := rng.Normal(0, 1)
	grad := m.Backward(State{X: r, PMSum: c})
	if grad.PMSum != c {
		t.Errorf("PMSum gradient = %v, want %v", grad.PMSum, c)
	}

	params := m.NamedParams()
	analytic := make([][]float64, len(params))
	for i, p := range params {
		if p.Trainable() {
			analytic[i] = append([]float64(nil), p.Grad...)
		}
	}

	eval := func() float64 {
		o := m.Forward(State{X: x, PMSum: 0.25})
		sum := c * o.PMSum
		for i, v := range o.X.Data {
			sum += r.Data[i] * v
		}
		return sum
	}
	base := eval()

	checked := 0
	for _, i := range spread(x.Len(), 24) {
		numeric, ok := numericDerivative(eval, &x.Data[i], base)
		if !ok {
			continue
		}
		checked++
		if !gradsClose(grad.X.Data[i], numeric) {
			t.Errorf("input[%d]: analytic %v, numeric %v", i, grad.X.Data[i], numeric)
		}
	}
	for pi, p := range params {
		if !p.Trainable() {
			continue
		}
		for _, i := range spread(len(p.Data), 8) {
			numeric, ok := numericDerivative(eval, &p.Data[i], base)
			if !ok {
				continue
			}
			checked++
			if !gradsClose(analytic[pi][i], numeric) {
				t.Errorf("%s[%d]: analytic %v, numeric %v", p.Name, i, analytic[pi][i], numeric)
			}
		}
	}
	if checked == 0 {
		t.Fatal("no smooth points to check")
	}
}
