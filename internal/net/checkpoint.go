package net

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrCheckpoint is returned when a checkpoint does not match the network
// described by its own configuration.
var ErrCheckpoint = errors.New("net: invalid checkpoint")

// checkpointVersion is bumped whenever the stream layout changes.
const checkpointVersion = 1

// tensorRecord is one named tensor in a checkpoint.
type tensorRecord struct {
	Name  string
	Shape []int
	Data  []float64
}

// Save writes the network to a file using gob encoding.
func (n *Network) Save(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := n.Encode(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// Load reads a network written by Save.
func Load(filename string) (*Network, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return Decode(file)
}

// Encode writes the configuration followed by every named tensor,
// including batch normalization running statistics.
func (n *Network) Encode(w io.Writer) error {
	encoder := gob.NewEncoder(w)

	if err := encoder.Encode(int32(checkpointVersion)); err != nil {
		return fmt.Errorf("failed to encode version: %w", err)
	}
	if err := encoder.Encode(n.cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	params := n.NamedParams()
	if err := encoder.Encode(int32(len(params))); err != nil {
		return fmt.Errorf("failed to encode tensor count: %w", err)
	}
	for _, p := range params {
		rec := tensorRecord{Name: p.Name, Shape: p.Shape, Data: p.Data}
		if err := encoder.Encode(rec); err != nil {
			return fmt.Errorf("failed to encode %s: %w", p.Name, err)
		}
	}
	return nil
}

// Decode rebuilds a network from its configuration and restores every
// tensor. Unknown, duplicate or missing names and shape mismatches are
// reported as ErrCheckpoint.
func Decode(r io.Reader) (*Network, error) {
	decoder := gob.NewDecoder(r)

	var version int32
	if err := decoder.Decode(&version); err != nil {
		return nil, fmt.Errorf("failed to read version: %w", err)
	}
	if version != checkpointVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCheckpoint, version)
	}

	var cfg Config
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	net, err := New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild network: %w", err)
	}

	var count int32
	if err := decoder.Decode(&count); err != nil {
		return nil, fmt.Errorf("failed to read tensor count: %w", err)
	}

	params := net.NamedParams()
	index := make(map[string]int, len(params))
	for i, p := range params {
		index[p.Name] = i
	}
	seen := make([]bool, len(params))

	for i := 0; i < int(count); i++ {
		var rec tensorRecord
		if err := decoder.Decode(&rec); err != nil {
			return nil, fmt.Errorf("failed to read tensor %d: %w", i, err)
		}
		j, ok := index[rec.Name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown tensor %q", ErrCheckpoint, rec.Name)
		}
		if seen[j] {
			return nil, fmt.Errorf("%w: duplicate tensor %q", ErrCheckpoint, rec.Name)
		}
		p := params[j]
		if !sameShape(p.Shape, rec.Shape) || len(rec.Data) != len(p.Data) {
			return nil, fmt.Errorf("%w: %s has shape %v, want %v", ErrCheckpoint, rec.Name, rec.Shape, p.Shape)
		}
		copy(p.Data, rec.Data)
		seen[j] = true
	}

	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("%w: missing tensor %q", ErrCheckpoint, params[i].Name)
		}
	}
	return net, nil
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
