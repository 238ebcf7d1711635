// Package loss provides classification losses over network logits.
package loss

import (
	"fmt"
	"math"

	"github.com/FlavioCFOliveira/spem/internal/activations"
	"github.com/FlavioCFOliveira/spem/internal/layer"
)

// Loss is a loss function over a batch of logits with integer labels.
type Loss interface {
	// Forward computes the mean loss over the batch.
	Forward(logits *layer.Tensor, labels []int) float64

	// Backward computes the gradient of the mean loss w.r.t. the logits.
	Backward(logits *layer.Tensor, labels []int) *layer.Tensor
}

// CrossEntropy is softmax cross-entropy on raw logits, averaged over the
// batch. The class axis is C*H*W of each sample.
type CrossEntropy struct{}

// Forward computes mean(-log softmax(logits)[label]).
func (c CrossEntropy) Forward(logits *layer.Tensor, labels []int) float64 {
	checkLabels("CrossEntropy", logits, labels)

	var sum float64
	for n := 0; n < logits.N; n++ {
		row := logits.Sample(n)
		sum += logSumExp(row) - row[labels[n]]
	}
	return sum / float64(logits.N)
}

// Backward computes (softmax(logits) - onehot(labels)) / N.
func (c CrossEntropy) Backward(logits *layer.Tensor, labels []int) *layer.Tensor {
	checkLabels("CrossEntropy", logits, labels)

	grad := layer.ZerosLike(logits)
	inv := 1 / float64(logits.N)
	for n := 0; n < logits.N; n++ {
		g := activations.Softmax{}.ActivateBatch(grad.Sample(n), logits.Sample(n))
		g[labels[n]] -= 1
		for i := range g {
			g[i] *= inv
		}
	}
	return grad
}

// logSumExp computes log(sum(exp(x))) shifted by the maximum.
func logSumExp(x []float64) float64 {
	maxVal := x[0]
	for _, v := range x[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	var sum float64
	for _, v := range x {
		sum += math.Exp(v - maxVal)
	}
	return maxVal + math.Log(sum)
}

func checkLabels(name string, logits *layer.Tensor, labels []int) {
	if len(labels) != logits.N {
		panic(fmt.Sprintf("%s: %d labels for batch of %d", name, len(labels), logits.N))
	}
	classes := logits.C * logits.H * logits.W
	for i, l := range labels {
		if l < 0 || l >= classes {
			panic(fmt.Sprintf("%s: label %d at %d out of range [0, %d)", name, l, i, classes))
		}
	}
}

// Accuracy returns the fraction of samples whose largest logit is the label.
func Accuracy(logits *layer.Tensor, labels []int) float64 {
	checkLabels("Accuracy", logits, labels)

	correct := 0
	for n := 0; n < logits.N; n++ {
		row := logits.Sample(n)
		best := 0
		for i, v := range row {
			if v > row[best] {
				best = i
			}
		}
		if best == labels[n] {
			correct++
		}
	}
	return float64(correct) / float64(logits.N)
}

// PMPenalty adds Lambda times the network's accumulated gate energy to a
// base loss.
type PMPenalty struct {
	Lambda float64
}

// Forward returns Lambda * pmSum.
func (p PMPenalty) Forward(pmSum float64) float64 {
	return p.Lambda * pmSum
}

// Backward returns the gradient w.r.t. pmSum, which is Lambda.
func (p PMPenalty) Backward() float64 {
	return p.Lambda
}
