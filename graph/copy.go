// copy.go - Index-erhaltende Tiefenkopie des Graphen
// Enthaelt: DeepCopy
package graph

// DeepCopy returns an independent copy of the graph. Node IDs are
// preserved, including removed tombstones, so comparison points found
// in the copy map one-to-one onto the original.
func (g *Graph) DeepCopy() *Graph {
	c := &Graph{
		Name:  g.Name,
		nodes: make([]*Node, len(g.nodes)),
	}
	for i, n := range g.nodes {
		nn := &Node{
			ID:          n.ID,
			Name:        n.Name,
			Kind:        n.Kind,
			Inputs:      append([]NodeID{}, n.Inputs...),
			Weights:     n.Weights.Clone(),
			Bias:        n.Bias.Clone(),
			Attrs:       make(map[string]float64, len(n.Attrs)),
			Quantizable: n.Quantizable,
			Candidates:  append([]PrecisionConfig{}, n.Candidates...),
			Params:      n.Params,
			Removed:     n.Removed,
		}
		for k, v := range n.Attrs {
			nn.Attrs[k] = v
		}
		c.nodes[i] = nn
	}
	return c
}
