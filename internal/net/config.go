package net

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownBlock is returned when Config.BlockName names no known block.
	ErrUnknownBlock = errors.New("net: unknown block name")
	// ErrInvalidDepth is returned when Config.Depth does not fit the block's
	// depth formula.
	ErrInvalidDepth = errors.New("net: invalid depth")
	// ErrInvalidClasses is returned when Config.NumClasses is not positive.
	ErrInvalidClasses = errors.New("net: invalid number of classes")
)

// BlockKind selects the residual block used by every stage.
type BlockKind int

const (
	// KindBasic is the two 3x3 convolution block with expansion 1.
	KindBasic BlockKind = iota
	// KindBottleneck is the 1x1-3x3-1x1 block with expansion 4 and an
	// extrema gate.
	KindBottleneck
)

// ParseBlockKind maps "basicblock" or "bottleneck" (any case) to a kind.
func ParseBlockKind(name string) (BlockKind, error) {
	switch strings.ToLower(name) {
	case "basicblock":
		return KindBasic, nil
	case "bottleneck":
		return KindBottleneck, nil
	}
	return 0, fmt.Errorf("%w: %q (want BasicBlock or Bottleneck)", ErrUnknownBlock, name)
}

// String returns the canonical block name.
func (k BlockKind) String() string {
	switch k {
	case KindBasic:
		return "BasicBlock"
	case KindBottleneck:
		return "Bottleneck"
	default:
		return fmt.Sprintf("BlockKind(%d)", int(k))
	}
}

// Expansion is the ratio between a block's output channels and its planes.
func (k BlockKind) Expansion() int {
	if k == KindBottleneck {
		return 4
	}
	return 1
}

// layersPerBlock is the number of weighted layers one block adds to the depth.
func (k BlockKind) layersPerBlock() int {
	if k == KindBottleneck {
		return 9
	}
	return 6
}

// BlocksPerStage returns n for the given depth, which must be
// layersPerBlock*n + 2 with n >= 1.
func (k BlockKind) BlocksPerStage(depth int) (int, error) {
	per := k.layersPerBlock()
	if depth < 2 || (depth-2)%per != 0 || (depth-2)/per < 1 {
		return 0, fmt.Errorf("%w: %d for %s, want %dn+2 with n >= 1 (e.g. %d, %d)",
			ErrInvalidDepth, depth, k, per, per+2, 3*per+2)
	}
	return (depth - 2) / per, nil
}

// Config describes a network to build.
type Config struct {
	// Depth is the number of weighted layers: 6n+2 for BasicBlock,
	// 9n+2 for Bottleneck.
	Depth      int
	NumClasses int
	// BlockName is "BasicBlock" or "Bottleneck", matched case-insensitively.
	BlockName string
	// Info is a free-form tag handed to every bottleneck. It does not
	// change the computation.
	Info string
	// Seed drives weight initialization.
	Seed int64
}

// DefaultConfig returns the smallest BasicBlock network for 1000 classes.
func DefaultConfig() Config {
	return Config{
		Depth:      20,
		NumClasses: 1000,
		BlockName:  "BasicBlock",
		Info:       "normal",
		Seed:       42,
	}
}

// Validate checks the configuration and returns the block kind and the
// number of blocks per stage.
func (c Config) Validate() (BlockKind, int, error) {
	kind, err := ParseBlockKind(c.BlockName)
	if err != nil {
		return 0, 0, err
	}
	n, err := kind.BlocksPerStage(c.Depth)
	if err != nil {
		return 0, 0, err
	}
	if c.NumClasses <= 0 {
		return 0, 0, fmt.Errorf("%w: %d", ErrInvalidClasses, c.NumClasses)
	}
	return kind, n, nil
}
