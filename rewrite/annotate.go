// annotate.go - Kandidaten-Annotation aus der Capability-Spec
//
// Dieses Modul enthaelt:
// - annotateCandidates: Pass, der quantisierbare Nodes markiert und
//   ihre erlaubten Precision-Configs anheftet
// - ErrNoCandidates: fataler Fehler bei leerer Kandidatenmenge
package rewrite

import (
	"errors"
	"fmt"

	"github.com/7blacky7/quantkit/graph"
	"github.com/7blacky7/quantkit/tpc"
)

// ErrNoCandidates wird gemeldet, wenn ein quantisierbarer Node keine
// einzige erlaubte Precision-Config hat. Der Run bricht dann ab statt
// einen inkonsistent quantisierbaren Graphen zu liefern.
var ErrNoCandidates = errors.New("rewrite: node has no valid precision configuration")

type annotateCandidates struct {
	spec *tpc.CapabilitySpec
}

func (annotateCandidates) Name() string { return "annotate-candidates" }

func (a annotateCandidates) Apply(g *graph.Graph) error {
	for _, n := range g.Nodes() {
		switch n.Kind {
		case graph.OpInput, graph.OpIdentity:
			// Datenzufuhr und Passthrough werden nie quantisiert
			continue
		}
		configs := a.spec.Configs(n.Kind)
		if len(configs) == 0 {
			return fmt.Errorf("%w: node %q (%s) on platform %q", ErrNoCandidates, n.Name, n.Kind, a.spec.Name())
		}
		n.Quantizable = true
		n.Candidates = n.Candidates[:0]
		for _, c := range configs {
			n.Candidates = append(n.Candidates, c.Graph())
		}
	}
	return nil
}
