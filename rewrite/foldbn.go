// foldbn.go - BatchNorm-Folding in vorangehende Linear/Conv-Layer
//
// Dieses Modul enthaelt:
// - foldBatchNorm: Pass, der BN-Nodes wegfaltet und Gewichte umrechnet
//
// Mathematik: fuer y = gamma*(Wx+b-mean)/sqrt(var+eps) + beta gilt
// W' = s*W und b' = s*(b-mean) + beta mit s = gamma/sqrt(var+eps),
// per Output-Kanal. Die Umformung ist exakt, keine Approximation.
package rewrite

import (
	"fmt"
	"math"

	"github.com/7blacky7/quantkit/graph"
)

type foldBatchNorm struct{}

func (foldBatchNorm) Name() string { return "fold-batchnorm" }

func (foldBatchNorm) Apply(g *graph.Graph) error {
	for _, bn := range g.Nodes() {
		if bn.Kind != graph.OpBatchNorm {
			continue
		}
		if len(bn.Inputs) != 1 {
			continue
		}
		prev := g.Node(bn.Inputs[0])
		if prev == nil || (prev.Kind != graph.OpLinear && prev.Kind != graph.OpConv2D) {
			continue
		}
		// Nur falten, wenn der BN der einzige Konsument ist
		if cons := g.Consumers(prev.ID); len(cons) != 1 {
			continue
		}
		if err := foldInto(prev, bn); err != nil {
			return fmt.Errorf("folding %q into %q: %w", bn.Name, prev.Name, err)
		}

		// BN entfernen und Konsumenten auf den gefalteten Layer umhaengen
		for _, cid := range g.Consumers(bn.ID) {
			c := g.Node(cid)
			for i, in := range c.Inputs {
				if in == bn.ID {
					c.Inputs[i] = prev.ID
				}
			}
		}
		bn.Removed = true
	}
	return nil
}

// foldInto rechnet die BN-Statistiken in Gewichte und Bias des
// vorangehenden Layers ein. BN-Statistiken liegen gepackt als [4][C]
// vor (gamma, beta, mean, var).
func foldInto(prev, bn *graph.Node) error {
	if bn.Weights == nil || len(bn.Weights.Shape) != 2 || bn.Weights.Shape[0] != 4 {
		return fmt.Errorf("batchnorm statistics must be packed as [4][C]")
	}
	c := bn.Weights.Shape[1]
	if prev.Weights == nil || len(prev.Weights.Shape) < 2 || prev.Weights.Shape[0] != c {
		return fmt.Errorf("channel mismatch: %d batchnorm channels vs weights %v", c, prev.Weights)
	}
	eps := 1e-5
	if v, ok := bn.Attrs["epsilon"]; ok {
		eps = v
	}

	gamma := bn.Weights.Data[0:c]
	beta := bn.Weights.Data[c : 2*c]
	mean := bn.Weights.Data[2*c : 3*c]
	variance := bn.Weights.Data[3*c : 4*c]

	if prev.Bias == nil {
		prev.Bias = graph.NewTensor(c)
	}

	perChannel := len(prev.Weights.Data) / c
	for o := 0; o < c; o++ {
		s := float32(float64(gamma[o]) / math.Sqrt(float64(variance[o])+eps))
		row := prev.Weights.Data[o*perChannel : (o+1)*perChannel]
		for i := range row {
			row[i] *= s
		}
		prev.Bias.Data[o] = s*(prev.Bias.Data[o]-mean[o]) + beta[o]
	}
	return nil
}
