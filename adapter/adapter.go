// Package adapter - Module-Adapter: trainiertes Modell -> interner Graph
//
// MODUL: adapter
// ZWECK: Wrappt ein trainiertes Modul als graph.Graph fuer die Pipeline
// INPUT: Module (Layer-Liste mit Gewichten), Layer-Referenzen per Name
// OUTPUT: graph.Graph mit stabilen NodeIDs in Layer-Reihenfolge
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: graph
package adapter

import (
	"fmt"

	"github.com/7blacky7/quantkit/graph"
)

// Layer is one operator of a trained module, described in the module's
// own terms: layers reference their inputs by name.
type Layer struct {
	Name    string
	Kind    graph.OpKind
	Inputs  []string
	Weights *graph.Tensor
	Bias    *graph.Tensor
	Attrs   map[string]float64
}

// Module is the boundary to the host framework: a trained model that
// exposes its layer graph. Layers must be listed in execution order.
type Module interface {
	Name() string
	Layers() []Layer
}

// Adapt wraps a trained module as an internal computation graph. Layer
// order is preserved, names become the node names, and name references
// are resolved to node IDs.
func Adapt(m Module) (*graph.Graph, error) {
	g := graph.New(m.Name())
	ids := make(map[string]graph.NodeID)
	for _, l := range m.Layers() {
		if _, ok := ids[l.Name]; ok {
			return nil, fmt.Errorf("adapter: duplicate layer name %q", l.Name)
		}
		inputs := make([]graph.NodeID, 0, len(l.Inputs))
		for _, in := range l.Inputs {
			id, ok := ids[in]
			if !ok {
				return nil, fmt.Errorf("adapter: layer %q references unknown input %q", l.Name, in)
			}
			inputs = append(inputs, id)
		}
		attrs := make(map[string]float64, len(l.Attrs))
		for k, v := range l.Attrs {
			attrs[k] = v
		}
		id, err := g.Add(&graph.Node{
			Name:    l.Name,
			Kind:    l.Kind,
			Inputs:  inputs,
			Weights: l.Weights.Clone(),
			Bias:    l.Bias.Clone(),
			Attrs:   attrs,
		})
		if err != nil {
			return nil, fmt.Errorf("adapter: %w", err)
		}
		ids[l.Name] = id
	}
	if g.Len() == 0 {
		return nil, fmt.Errorf("adapter: module %q has no layers", m.Name())
	}
	return g, nil
}
