// Package graph - Interner Berechnungsgraph
//
// Dieses Modul definiert die Kernstrukturen:
// - Graph: Arena von Nodes mit stabilen Indizes
// - Node: Operator mit Gewichten, Attributen und Quantisierungs-Annotationen
// - Tensor: Flacher float32-Tensor mit Shape
// - Add/Node/TopoOrder/CheckAcyclic: Aufbau und Validierung
package graph

import (
	"errors"
	"fmt"
)

// NodeID identifies a node inside its graph. IDs are stable across
// substitution passes and deep copies so that a float baseline and a
// quantized graph stay structurally comparable.
type NodeID int

// OpKind names the operator a node computes.
type OpKind string

const (
	OpInput     OpKind = "input"
	OpLinear    OpKind = "linear"
	OpConv2D    OpKind = "conv2d"
	OpBatchNorm OpKind = "batchnorm"
	OpReLU      OpKind = "relu"
	OpAdd       OpKind = "add"
	OpIdentity  OpKind = "identity"
)

// Tensor ist ein flacher float32-Tensor mit expliziter Shape.
type Tensor struct {
	Shape []int
	Data  []float32
}

// NewTensor allocates a zero tensor of the given shape.
func NewTensor(shape ...int) *Tensor {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return &Tensor{Shape: append([]int{}, shape...), Data: make([]float32, n)}
}

// Elements returns the number of scalar elements.
func (t *Tensor) Elements() int64 {
	if t == nil {
		return 0
	}
	n := int64(1)
	for _, d := range t.Shape {
		n *= int64(d)
	}
	return n
}

// Clone returns an independent copy of the tensor.
func (t *Tensor) Clone() *Tensor {
	if t == nil {
		return nil
	}
	c := &Tensor{
		Shape: append([]int{}, t.Shape...),
		Data:  append([]float32{}, t.Data...),
	}
	return c
}

// QuantParams holds the quantization parameters chosen for one tensor.
// Threshold is a power of two covering the observed range, Bits the
// selected bitwidth. Symmetric quantization keeps ZeroPoint at zero.
type QuantParams struct {
	Threshold  float64
	ZeroPoint  int32
	Bits       int
	Symmetric  bool
	PerChannel bool
}

// Valid reports whether the parameters satisfy their invariants.
func (p QuantParams) Valid() bool {
	return p.Threshold > 0 && p.Bits > 0
}

// Node ist ein Operator im Graphen. Inputs referenzieren ausschliesslich
// bereits definierte Nodes (kleinere IDs), damit bleibt der Graph azyklisch.
type Node struct {
	ID     NodeID
	Name   string
	Kind   OpKind
	Inputs []NodeID

	Weights *Tensor
	Bias    *Tensor
	Attrs   map[string]float64

	// Quantisierungs-Annotationen, gesetzt von den Pipeline-Stufen
	Quantizable bool
	Candidates  []PrecisionConfig
	Params      QuantParams

	// Removed markiert weggefaltete Nodes (Tombstone, Index bleibt stabil)
	Removed bool
}

// PrecisionConfig is one precision configuration permitted for a node,
// mirrored from the capability spec so the graph package stays a leaf.
type PrecisionConfig struct {
	WeightBits     int
	ActivationBits int
	Symmetric      bool
	PerChannel     bool
}

// Graph ist eine Arena von Nodes; der Slice-Index ist die NodeID.
type Graph struct {
	Name  string
	nodes []*Node
}

// ErrBadInputRef wird gemeldet, wenn ein Node einen nicht definierten
// oder stromabwaerts liegenden Input referenziert.
var ErrBadInputRef = errors.New("graph: input references undefined node")

// New creates an empty graph.
func New(name string) *Graph {
	return &Graph{Name: name}
}

// Add appends a node and assigns its ID. Inputs must reference nodes
// that were added earlier; this keeps the arena topologically sorted
// by construction.
func (g *Graph) Add(n *Node) (NodeID, error) {
	id := NodeID(len(g.nodes))
	for _, in := range n.Inputs {
		if in < 0 || in >= id {
			return -1, fmt.Errorf("%w: node %q input %d", ErrBadInputRef, n.Name, in)
		}
	}
	n.ID = id
	if n.Attrs == nil {
		n.Attrs = map[string]float64{}
	}
	g.nodes = append(g.nodes, n)
	return id, nil
}

// MustAdd ist Add fuer programmatisch aufgebaute Graphen (Tests, Adapter).
func (g *Graph) MustAdd(n *Node) NodeID {
	id, err := g.Add(n)
	if err != nil {
		panic(err)
	}
	return id
}

// Node returns the node with the given ID, nil if out of range.
func (g *Graph) Node(id NodeID) *Node {
	if id < 0 || int(id) >= len(g.nodes) {
		return nil
	}
	return g.nodes[id]
}

// Len returns the arena size including removed tombstones.
func (g *Graph) Len() int { return len(g.nodes) }

// Nodes returns all live nodes in topological (arena) order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		if !n.Removed {
			out = append(out, n)
		}
	}
	return out
}

// TopoOrder returns the IDs of all live nodes in topological order.
func (g *Graph) TopoOrder() []NodeID {
	out := make([]NodeID, 0, len(g.nodes))
	for _, n := range g.nodes {
		if !n.Removed {
			out = append(out, n.ID)
		}
	}
	return out
}

// Consumers returns the IDs of live nodes reading the given node's output.
func (g *Graph) Consumers(id NodeID) []NodeID {
	var out []NodeID
	for _, n := range g.nodes {
		if n.Removed {
			continue
		}
		for _, in := range n.Inputs {
			if in == id {
				out = append(out, n.ID)
				break
			}
		}
	}
	return out
}

// Outputs returns the live nodes no other node consumes.
func (g *Graph) Outputs() []NodeID {
	consumed := make(map[NodeID]bool)
	for _, n := range g.nodes {
		if n.Removed {
			continue
		}
		for _, in := range n.Inputs {
			consumed[in] = true
		}
	}
	var out []NodeID
	for _, n := range g.nodes {
		if !n.Removed && !consumed[n.ID] {
			out = append(out, n.ID)
		}
	}
	return out
}

// InputNodes returns the live nodes of kind OpInput in arena order.
func (g *Graph) InputNodes() []NodeID {
	var out []NodeID
	for _, n := range g.nodes {
		if !n.Removed && n.Kind == OpInput {
			out = append(out, n.ID)
		}
	}
	return out
}

// CheckAcyclic verifies the construction invariant after substitution
// passes rewired edges: every live node must only read smaller IDs.
func (g *Graph) CheckAcyclic() error {
	for _, n := range g.nodes {
		if n.Removed {
			continue
		}
		for _, in := range n.Inputs {
			if in < 0 || in >= n.ID {
				return fmt.Errorf("%w: node %q (id %d) reads id %d", ErrBadInputRef, n.Name, n.ID, in)
			}
			if g.nodes[in].Removed {
				return fmt.Errorf("graph: node %q reads removed node %d", n.Name, in)
			}
		}
	}
	return nil
}
