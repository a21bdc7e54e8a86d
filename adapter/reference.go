// reference.go - Referenz-Framework mit CPU-Executor
//
// Dieses Modul enthaelt:
// - referenceFramework: eingebautes Host-Framework fuer Kalibrierung
// - referenceExecutor: fuehrt Input/Linear/Conv-frei Graphen auf der CPU aus
// - Registrierung via init() in der globalen Registry
//
// BatchNorm-Nodes packen ihre Statistiken als Weights der Shape [4][C]:
// Zeile 0 gamma, Zeile 1 beta, Zeile 2 running mean, Zeile 3 running var.
package adapter

import (
	"fmt"
	"math"

	"github.com/7blacky7/quantkit/graph"
)

// defaultEpsilon is the batch-norm epsilon used when a node carries no
// "epsilon" attribute. Set by ApplyDefaults.
var defaultEpsilon = 1e-5

type referenceFramework struct{}

func (referenceFramework) Name() string { return "reference" }

func (referenceFramework) Executor() Executor { return referenceExecutor{} }

func (referenceFramework) ApplyDefaults() {
	defaultEpsilon = 1e-5
}

func init() {
	Register(referenceFramework{})
}

type referenceExecutor struct{}

// Run executes the graph batch-sequentially on the CPU and returns the
// output tensor of every live node.
func (referenceExecutor) Run(g *graph.Graph, inputs []*graph.Tensor) (map[graph.NodeID]*graph.Tensor, error) {
	inputIDs := g.InputNodes()
	if len(inputs) != len(inputIDs) {
		return nil, fmt.Errorf("adapter: graph %q expects %d inputs, got %d", g.Name, len(inputIDs), len(inputs))
	}

	out := make(map[graph.NodeID]*graph.Tensor, g.Len())
	nextInput := 0
	for _, id := range g.TopoOrder() {
		n := g.Node(id)
		var y *graph.Tensor
		var err error
		switch n.Kind {
		case graph.OpInput:
			y = inputs[nextInput].Clone()
			nextInput++
		case graph.OpLinear:
			y, err = runLinear(n, out[n.Inputs[0]])
		case graph.OpBatchNorm:
			y, err = runBatchNorm(n, out[n.Inputs[0]])
		case graph.OpReLU:
			y = runReLU(out[n.Inputs[0]])
		case graph.OpAdd:
			y, err = runAdd(out[n.Inputs[0]], out[n.Inputs[1]])
		case graph.OpIdentity:
			y = out[n.Inputs[0]].Clone()
		default:
			err = fmt.Errorf("adapter: reference executor does not support %s", n.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("adapter: node %q: %w", n.Name, err)
		}
		out[id] = y
	}
	return out, nil
}

// runLinear berechnet y = x * W^T + b fuer x [N, in], W [out, in].
func runLinear(n *graph.Node, x *graph.Tensor) (*graph.Tensor, error) {
	if n.Weights == nil || len(n.Weights.Shape) != 2 {
		return nil, fmt.Errorf("linear weights must be 2D")
	}
	outF, inF := n.Weights.Shape[0], n.Weights.Shape[1]
	if len(x.Shape) != 2 || x.Shape[1] != inF {
		return nil, fmt.Errorf("input shape %v incompatible with weights %v", x.Shape, n.Weights.Shape)
	}
	batch := x.Shape[0]
	y := graph.NewTensor(batch, outF)
	for b := 0; b < batch; b++ {
		for o := 0; o < outF; o++ {
			var acc float32
			row := n.Weights.Data[o*inF : (o+1)*inF]
			xrow := x.Data[b*inF : (b+1)*inF]
			for i := 0; i < inF; i++ {
				acc += row[i] * xrow[i]
			}
			if n.Bias != nil {
				acc += n.Bias.Data[o]
			}
			y.Data[b*outF+o] = acc
		}
	}
	return y, nil
}

func runBatchNorm(n *graph.Node, x *graph.Tensor) (*graph.Tensor, error) {
	if n.Weights == nil || len(n.Weights.Shape) != 2 || n.Weights.Shape[0] != 4 {
		return nil, fmt.Errorf("batchnorm expects packed [4][C] statistics")
	}
	c := n.Weights.Shape[1]
	if len(x.Shape) != 2 || x.Shape[1] != c {
		return nil, fmt.Errorf("input shape %v incompatible with %d channels", x.Shape, c)
	}
	eps := defaultEpsilon
	if v, ok := n.Attrs["epsilon"]; ok {
		eps = v
	}
	gamma := n.Weights.Data[0:c]
	beta := n.Weights.Data[c : 2*c]
	mean := n.Weights.Data[2*c : 3*c]
	variance := n.Weights.Data[3*c : 4*c]

	y := graph.NewTensor(x.Shape...)
	batch := x.Shape[0]
	for b := 0; b < batch; b++ {
		for i := 0; i < c; i++ {
			inv := float32(1 / math.Sqrt(float64(variance[i])+eps))
			y.Data[b*c+i] = gamma[i]*(x.Data[b*c+i]-mean[i])*inv + beta[i]
		}
	}
	return y, nil
}

func runReLU(x *graph.Tensor) *graph.Tensor {
	y := graph.NewTensor(x.Shape...)
	for i, v := range x.Data {
		if v > 0 {
			y.Data[i] = v
		}
	}
	return y
}

func runAdd(a, b *graph.Tensor) (*graph.Tensor, error) {
	if len(a.Data) != len(b.Data) {
		return nil, fmt.Errorf("add operands differ in size: %d vs %d", len(a.Data), len(b.Data))
	}
	y := graph.NewTensor(a.Shape...)
	for i := range a.Data {
		y.Data[i] = a.Data[i] + b.Data[i]
	}
	return y, nil
}
