package net

import (
	"fmt"
	"io"

	"github.com/FlavioCFOliveira/spem/internal/layer"
)

// Summary writes a table of the network's stages and parameter counts to w.
func (n *Network) Summary(w io.Writer) error {
	const rule = "_________________________________________________________________"
	const double = "================================================================="

	var lines []string
	add := func(format string, args ...any) {
		lines = append(lines, fmt.Sprintf(format, args...))
	}

	add("Model: SPEM-%d (%s)", n.cfg.Depth, n.kind)
	add(rule)
	add("%-25s %-20s %-10s", "Layer (type)", "Output Shape", "Param #")
	add(double)

	add("%-25s %-20s %-10d", "conv1 (Conv2D)", "(16, 32, 32)", layer.CountParams(n.conv1.NamedParams()))
	add("%-25s %-20s %-10d", "bn1 (BatchNorm2D)", "(16, 32, 32)", layer.CountParams(n.bn1.NamedParams()))

	size := 32
	for i, st := range n.stages {
		if i > 0 {
			size /= 2
		}
		channels := (16 << i) * n.kind.Expansion()
		name := fmt.Sprintf("%s (%d x %s)", stageName(i), st.Len(), st.Kind())
		add("%-25s %-20s %-10d", name, fmt.Sprintf("(%d, %d, %d)", channels, size, size), layer.CountParams(st.NamedParams()))
	}

	add("%-25s %-20s %-10d", "avgpool (AvgPool2D)", fmt.Sprintf("(%d, 1, 1)", 64*n.kind.Expansion()), 0)
	add("%-25s %-20s %-10d", "fc (Dense)", fmt.Sprintf("(%d)", n.fc.OutSize()), layer.CountParams(n.fc.NamedParams()))
	add(double)
	add("Total params: %d", layer.CountParams(n.NamedParams()))
	add("Residual blocks: %d", n.NumBlocks())
	add(rule)

	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
