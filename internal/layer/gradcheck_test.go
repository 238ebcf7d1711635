package layer

import (
	"math"
	"testing"
)

// randomTensor fills a new tensor with N(0, 1) samples.
func randomTensor(rng *RNG, n, c, h, w int) *Tensor {
	t := NewTensor(n, c, h, w)
	for i := range t.Data {
		t.Data[i] = rng.Normal(0, 1)
	}
	return t
}

// projectedLoss is sum(r * y), whose gradient w.r.t. y is r.
func projectedLoss(y, r *Tensor) float64 {
	sum := 0.0
	for i := range y.Data {
		sum += y.Data[i] * r.Data[i]
	}
	return sum
}

func gradsClose(analytic, numeric float64) bool {
	diff := math.Abs(analytic - numeric)
	scale := math.Max(math.Abs(analytic), math.Abs(numeric))
	return diff <= 1e-6+1e-4*scale
}

// sampleIndices picks up to k indices spread across [0, n).
func sampleIndices(n, k int) []int {
	if n <= k {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i * n / k
	}
	return idx
}

// numericDerivative returns the central difference of eval with respect
// to *v. ok is false when the one-sided slopes disagree, which means a
// ReLU kink or an arg-max switch lies inside the step.
func numericDerivative(eval func() float64, v *float64, base float64) (float64, bool) {
	const h = 1e-5
	orig := *v
	*v = orig + h
	plus := eval()
	*v = orig - h
	minus := eval()
	*v = orig

	forward := (plus - base) / h
	backward := (base - minus) / h
	central := (plus - minus) / (2 * h)
	if math.Abs(forward-backward) > 1e-6+1e-4*math.Abs(central) {
		return central, false
	}
	return central, true
}

// checkGradients compares l.Backward against central differences of
// sum(r * l.Forward(x)) for the input and every trainable parameter.
func checkGradients(t *testing.T, l Layer, x *Tensor, rng *RNG) {
	t.Helper()

	l.ClearGradients()
	y := l.Forward(x)
	r := randomTensor(rng, y.N, y.C, y.H, y.W)
	gradIn := l.Backward(r)
	if !gradIn.SameShape(x) {
		t.Fatalf("input gradient shape %v, want %v", gradIn.Shape(), x.Shape())
	}

	params := l.NamedParams()
	analyticParams := make([][]float64, len(params))
	for i, p := range params {
		if p.Trainable() {
			analyticParams[i] = append([]float64(nil), p.Grad...)
		}
	}

	eval := func() float64 { return projectedLoss(l.Forward(x), r) }
	base := eval()

	for _, i := range sampleIndices(x.Len(), 24) {
		numeric, ok := numericDerivative(eval, &x.Data[i], base)
		if ok && !gradsClose(gradIn.Data[i], numeric) {
			t.Errorf("input[%d]: analytic %v, numeric %v", i, gradIn.Data[i], numeric)
		}
	}

	for pi, p := range params {
		if !p.Trainable() {
			continue
		}
		for _, i := range sampleIndices(len(p.Data), 16) {
			numeric, ok := numericDerivative(eval, &p.Data[i], base)
			if ok && !gradsClose(analyticParams[pi][i], numeric) {
				t.Errorf("%s[%d]: analytic %v, numeric %v", p.Name, i, analyticParams[pi][i], numeric)
			}
		}
	}
}
