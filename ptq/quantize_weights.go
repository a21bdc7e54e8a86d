// quantize_weights.go - Materialisierung quantisierter Gewichte
//
// Dieses Modul enthaelt:
// - QuantizeGraphWeights: Tiefenkopie mit echt quantisierten Gewichten
//
// Fuer die Aehnlichkeits-Analyse reicht die Annotation nicht: der
// Vergleichsgraph muss mit den Werten rechnen, die das quantisierte
// Modell tatsaechlich haelt.
package ptq

import (
	"github.com/7blacky7/quantkit/graph"
	"github.com/7blacky7/quantkit/thresholds"
)

// QuantizeGraphWeights returns an index-preserving deep copy of the
// graph in which every quantizable weighted node carries its weights
// snapped onto the quantization grid.
func QuantizeGraphWeights(g *graph.Graph) *graph.Graph {
	q := g.DeepCopy()
	for _, n := range q.Nodes() {
		if !n.Quantizable || n.Weights == nil || !n.Params.Valid() {
			continue
		}
		th := thresholds.WeightThreshold(n.Weights.Data)
		n.Weights.Data = thresholds.QuantizeSymmetric(n.Weights.Data, th, n.Params.Bits)
	}
	return q
}
