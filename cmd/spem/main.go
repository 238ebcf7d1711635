// Command spem builds a SPEM network, prints its summary and runs a
// forward pass on a synthetic CIFAR-sized batch.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/FlavioCFOliveira/spem/internal/layer"
	"github.com/FlavioCFOliveira/spem/internal/loss"
	"github.com/FlavioCFOliveira/spem/internal/net"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("spem: ")

	defaults := net.DefaultConfig()
	fs := flag.NewFlagSet("spem", flag.ExitOnError)
	depth := fs.Int("depth", defaults.Depth, "network depth (6n+2 for BasicBlock, 9n+2 for Bottleneck)")
	block := fs.String("block", defaults.BlockName, "block type: BasicBlock or Bottleneck")
	classes := fs.Int("classes", defaults.NumClasses, "number of output classes")
	batch := fs.Int("batch", 2, "synthetic batch size")
	seed := fs.Int64("seed", defaults.Seed, "initialization seed")
	eval := fs.Bool("eval", false, "use running batch-norm statistics")
	save := fs.String("save", "", "write a checkpoint to this file")
	load := fs.String("load", "", "read the network from this checkpoint instead of building one")
	fs.Parse(os.Args[1:])

	if *batch <= 0 {
		log.Fatalf("batch must be positive, got %d", *batch)
	}

	var model *net.Network
	var err error
	if *load != "" {
		model, err = net.Load(*load)
	} else {
		model, err = net.New(net.Config{
			Depth:      *depth,
			NumClasses: *classes,
			BlockName:  *block,
			Info:       defaults.Info,
			Seed:       *seed,
		})
	}
	if err != nil {
		log.Fatal(err)
	}

	if err := model.Summary(os.Stdout); err != nil {
		log.Fatal(err)
	}

	model.SetTraining(!*eval)
	rng := layer.NewRNG(*seed + 1)
	x := layer.NewTensor(*batch, 3, 32, 32)
	for i := range x.Data {
		x.Data[i] = rng.Normal(0, 1)
	}
	labels := make([]int, *batch)
	for i := range labels {
		labels[i] = i % model.Config().NumClasses
	}

	out := model.Forward(x)
	fmt.Printf("Logits shape: %v\n", out.Logits.Shape())
	fmt.Printf("PMSum: %.6f\n", out.PMSum)
	fmt.Printf("Cross-entropy vs synthetic labels: %.6f\n", loss.CrossEntropy{}.Forward(out.Logits, labels))
	fmt.Printf("Accuracy vs synthetic labels: %.2f\n", loss.Accuracy(out.Logits, labels))

	if *save != "" {
		if err := model.Save(*save); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Saved checkpoint to %s\n", *save)
	}
}
