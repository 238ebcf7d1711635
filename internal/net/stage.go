package net

import (
	"strconv"

	"github.com/FlavioCFOliveira/spem/internal/layer"
)

// Stage is an ordered run of blocks of a single kind. Exactly one of the
// block slices is populated, selected by the kind.
type Stage struct {
	kind        BlockKind
	basic       []*BasicBlock
	bottlenecks []*Bottleneck
}

// Forward threads s through every block in order.
func (st *Stage) Forward(s State) State {
	switch st.kind {
	case KindBottleneck:
		for _, b := range st.bottlenecks {
			s = b.Forward(s)
		}
	default:
		for _, b := range st.basic {
			s = b.Forward(s)
		}
	}
	return s
}

// Backward threads g through the blocks in reverse order.
func (st *Stage) Backward(g State) State {
	switch st.kind {
	case KindBottleneck:
		for i := len(st.bottlenecks) - 1; i >= 0; i-- {
			g = st.bottlenecks[i].Backward(g)
		}
	default:
		for i := len(st.basic) - 1; i >= 0; i-- {
			g = st.basic[i].Backward(g)
		}
	}
	return g
}

// NamedParams returns every block's tensors prefixed by its index.
func (st *Stage) NamedParams() []layer.NamedParam {
	var params []layer.NamedParam
	for i := 0; i < st.Len(); i++ {
		var bp []layer.NamedParam
		if st.kind == KindBottleneck {
			bp = st.bottlenecks[i].NamedParams()
		} else {
			bp = st.basic[i].NamedParams()
		}
		params = append(params, layer.Prefix(strconv.Itoa(i), bp)...)
	}
	return params
}

// ClearGradients clears the gradients of every block.
func (st *Stage) ClearGradients() {
	for _, b := range st.basic {
		b.ClearGradients()
	}
	for _, b := range st.bottlenecks {
		b.ClearGradients()
	}
}

// SetTraining switches every block between training and inference.
func (st *Stage) SetTraining(training bool) {
	for _, b := range st.basic {
		b.SetTraining(training)
	}
	for _, b := range st.bottlenecks {
		b.SetTraining(training)
	}
}

func (st *Stage) walk(fn func(layer.Layer)) {
	for _, b := range st.basic {
		b.walk(fn)
	}
	for _, b := range st.bottlenecks {
		b.walk(fn)
	}
}

// Len returns the number of blocks.
func (st *Stage) Len() int {
	if st.kind == KindBottleneck {
		return len(st.bottlenecks)
	}
	return len(st.basic)
}

// Kind returns the block kind of the stage.
func (st *Stage) Kind() BlockKind {
	return st.kind
}

// BasicBlocks returns the blocks of a KindBasic stage.
func (st *Stage) BasicBlocks() []*BasicBlock {
	return st.basic
}

// Bottlenecks returns the blocks of a KindBottleneck stage.
func (st *Stage) Bottlenecks() []*Bottleneck {
	return st.bottlenecks
}

// builder constructs stages and tracks the channel count entering the
// next block.
type builder struct {
	kind     BlockKind
	inplanes int
	info     string
	rng      *layer.RNG
}

// makeStage builds blocks blocks at planes width. The first block gets the
// stride and, when the shape changes, a 1x1 projection shortcut.
func (b *builder) makeStage(planes, blocks, stride int) *Stage {
	out := planes * b.kind.Expansion()

	var downsample *layer.Sequential
	if stride != 1 || b.inplanes != out {
		downsample = layer.NewSequential(
			layer.NewConv2D(b.inplanes, out, 1, stride, 0, false, b.rng),
			newBatchNorm(out),
		)
	}

	st := &Stage{kind: b.kind}
	for i := 0; i < blocks; i++ {
		s, ds := 1, (*layer.Sequential)(nil)
		if i == 0 {
			s, ds = stride, downsample
		}
		if b.kind == KindBottleneck {
			st.bottlenecks = append(st.bottlenecks, newBottleneck(b.inplanes, planes, s, ds, b.info, b.rng))
		} else {
			st.basic = append(st.basic, newBasicBlock(b.inplanes, planes, s, ds, b.rng))
		}
		b.inplanes = out
	}
	return st
}
