package layer

import (
	"math"
	"testing"
)

func TestConv2DForwardKnownValues(t *testing.T) {
	conv := NewConv2D(1, 1, 3, 1, 1, false, NewRNG(1))
	w := conv.NamedParams()[0].Data
	for i := range w {
		w[i] = 1
	}

	// 1 2 3
	// 4 5 6
	// 7 8 9
	x := FromData([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9}, 1, 1, 3, 3)
	out := conv.Forward(x)

	// Sum of each zero-padded 3x3 neighbourhood
	expected := []float64{
		12, 21, 16,
		27, 45, 33,
		24, 39, 28,
	}
	if out.H != 3 || out.W != 3 {
		t.Fatalf("output %dx%d, want 3x3", out.H, out.W)
	}
	for i := range expected {
		if math.Abs(out.Data[i]-expected[i]) > 1e-12 {
			t.Errorf("out[%d] = %v, want %v", i, out.Data[i], expected[i])
		}
	}
}

func TestConv2DStrideAndBias(t *testing.T) {
	conv := NewConv2D(1, 2, 1, 2, 0, true, NewRNG(1))
	params := conv.NamedParams()
	copy(params[0].Data, []float64{2, -1})
	copy(params[1].Data, []float64{0.5, 0})

	x := FromData([]float64{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
		13, 14, 15, 16,
	}, 1, 1, 4, 4)
	out := conv.Forward(x)

	if out.C != 2 || out.H != 2 || out.W != 2 {
		t.Fatalf("output shape %v, want [1 2 2 2]", out.Shape())
	}
	// 1x1 stride 2 picks 1, 3, 9, 11
	want := []float64{2.5, 6.5, 18.5, 22.5, -1, -3, -9, -11}
	for i := range want {
		if math.Abs(out.Data[i]-want[i]) > 1e-12 {
			t.Errorf("out[%d] = %v, want %v", i, out.Data[i], want[i])
		}
	}
}

func TestConv2DOutputSize(t *testing.T) {
	tests := []struct {
		kernel, stride, padding int
		in                      int
		want                    int
	}{
		{3, 1, 1, 32, 32},
		{3, 2, 1, 32, 16},
		{3, 2, 1, 16, 8},
		{1, 2, 0, 32, 16},
		{1, 1, 0, 8, 8},
	}
	for _, tt := range tests {
		conv := NewConv2D(1, 1, tt.kernel, tt.stride, tt.padding, false, NewRNG(1))
		h, w := conv.OutputSize(tt.in, tt.in)
		if h != tt.want || w != tt.want {
			t.Errorf("k=%d s=%d p=%d in=%d: got %dx%d, want %d", tt.kernel, tt.stride, tt.padding, tt.in, h, w, tt.want)
		}
	}
}

func TestConv2DNoBiasParams(t *testing.T) {
	conv := NewConv2D(3, 16, 3, 1, 1, false, NewRNG(1))
	params := conv.NamedParams()
	if len(params) != 1 {
		t.Fatalf("got %d params, want weight only", len(params))
	}
	if got := params[0].Shape; len(got) != 4 || got[0] != 16 || got[1] != 3 || got[2] != 3 || got[3] != 3 {
		t.Errorf("weight shape = %v, want [16 3 3 3]", got)
	}
}

func TestConv2DInitNormal(t *testing.T) {
	conv := NewConv2D(16, 64, 3, 1, 1, false, NewRNG(1))
	std := math.Sqrt(2.0 / float64(3*3*64))
	conv.InitNormal(0, std, NewRNG(2))

	w := conv.NamedParams()[0].Data
	mean, sq := 0.0, 0.0
	for _, v := range w {
		mean += v
		sq += v * v
	}
	mean /= float64(len(w))
	gotStd := math.Sqrt(sq/float64(len(w)) - mean*mean)

	if math.Abs(mean) > 0.01 {
		t.Errorf("mean = %v, want ~0", mean)
	}
	if math.Abs(gotStd-std)/std > 0.05 {
		t.Errorf("std = %v, want ~%v", gotStd, std)
	}
}

func TestConv2DGradients(t *testing.T) {
	tests := []struct {
		name                    string
		in, out                 int
		kernel, stride, padding int
		bias                    bool
		size                    int
	}{
		{"3x3 same", 2, 3, 3, 1, 1, false, 5},
		{"3x3 stride 2", 3, 2, 3, 2, 1, false, 6},
		{"1x1 projection", 4, 3, 1, 2, 0, false, 4},
		{"with bias", 2, 2, 3, 1, 0, true, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rng := NewRNG(11)
			conv := NewConv2D(tt.in, tt.out, tt.kernel, tt.stride, tt.padding, tt.bias, rng)
			checkGradients(t, conv, randomTensor(rng, 2, tt.in, tt.size, tt.size), rng)
		})
	}
}

func TestConv2DRejectsWrongChannels(t *testing.T) {
	conv := NewConv2D(3, 4, 3, 1, 1, false, NewRNG(1))
	defer func() {
		if recover() == nil {
			t.Error("expected panic for mismatched channels")
		}
	}()
	conv.Forward(NewTensor(1, 2, 4, 4))
}
