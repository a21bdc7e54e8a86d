// Package rewrite - Graph-Substitutionen vor der Quantisierung
//
// Dieses Modul definiert die Kernstrukturen:
// - Pass: eine einzelne Graph-Substitution
// - Pipeline: geordnete Liste von Passes (arraylist)
// - Run: Standard-Pipeline (BatchNorm-Folding, Kandidaten-Annotation)
package rewrite

import (
	"fmt"
	"log/slog"

	"github.com/emirpasic/gods/v2/lists/arraylist"

	"github.com/7blacky7/quantkit/graph"
	"github.com/7blacky7/quantkit/tpc"
)

// Pass is one in-place graph substitution.
type Pass interface {
	Name() string
	Apply(g *graph.Graph) error
}

// Pipeline fuehrt Passes in Registrierungs-Reihenfolge aus.
type Pipeline struct {
	passes *arraylist.List[Pass]
}

// NewPipeline creates an empty substitution pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{passes: arraylist.New[Pass]()}
}

// Register appends a pass to the pipeline.
func (p *Pipeline) Register(pass Pass) {
	p.passes.Add(pass)
}

// Apply runs all passes in order and re-validates the graph invariant
// after every mutation.
func (p *Pipeline) Apply(g *graph.Graph) error {
	for i := 0; i < p.passes.Size(); i++ {
		pass, _ := p.passes.Get(i)
		if err := pass.Apply(g); err != nil {
			return fmt.Errorf("rewrite: pass %s: %w", pass.Name(), err)
		}
		if err := g.CheckAcyclic(); err != nil {
			return fmt.Errorf("rewrite: pass %s broke the graph: %w", pass.Name(), err)
		}
		slog.Debug("substitution pass applied", "pass", pass.Name(), "nodes", len(g.Nodes()))
	}
	return nil
}

// Run applies the default substitution pipeline: fold batch norms into
// preceding weighted layers, then annotate every remaining quantizable
// node with its permitted precision configurations. The graph is
// mutated in place and is the sole graph used downstream.
func Run(g *graph.Graph, spec *tpc.CapabilitySpec, overrides map[string][]tpc.PrecisionConfig) error {
	restricted, err := spec.Restrict(overrides)
	if err != nil {
		return fmt.Errorf("rewrite: %w", err)
	}

	p := NewPipeline()
	p.Register(foldBatchNorm{})
	p.Register(annotateCandidates{spec: restricted})
	return p.Apply(g)
}
