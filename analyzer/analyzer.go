// Package analyzer - Aehnlichkeits-Analyse Float vs. quantisiert
//
// MODUL: analyzer
// ZWECK: Vergleicht Float-Baseline und quantisierten Graphen an
//        uebereinstimmenden Punkten und meldet Divergenz-Metriken
// INPUT: Baseline-Graph, quantisierter Graph, Daten-Generator
// OUTPUT: Report pro Vergleichspunkt (Kosinus-Aehnlichkeit, MSE)
// NEBENEFFEKTE: keine am Graphen; rein diagnostisch
// ABHAENGIGKEITEN: adapter, calibration, graph, gonum/floats
// HINWEISE: Fehler hier duerfen die Pipeline nie abbrechen; der
// Aufrufer loggt sie und faehrt fort.
package analyzer

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/7blacky7/quantkit/adapter"
	"github.com/7blacky7/quantkit/calibration"
	"github.com/7blacky7/quantkit/graph"
)

// Report is the divergence measurement at one comparison point.
type Report struct {
	Node   graph.NodeID
	Name   string
	Cosine float64
	MSE    float64
}

// ErrNoComparePoints wird gemeldet, wenn die Graphen keine
// gemeinsamen quantisierbaren Punkte haben.
var ErrNoComparePoints = errors.New("analyzer: graphs share no comparison points")

// Compare executes both graphs over the generator and measures the
// divergence at every quantizable node. The graphs must be
// index-compatible (one a deep copy of the other's topology).
func Compare(baseline, quantized *graph.Graph, gen calibration.DataGenerator, exec adapter.Executor) ([]Report, error) {
	points := comparePoints(baseline, quantized)
	if len(points) == 0 {
		return nil, ErrNoComparePoints
	}

	type acc struct {
		dot, na, nb, sq float64
		n               int
	}
	sums := make(map[graph.NodeID]*acc, len(points))
	for _, id := range points {
		sums[id] = &acc{}
	}

	batches := 0
	for batch := range gen() {
		fOut, err := exec.Run(baseline, batch)
		if err != nil {
			return nil, fmt.Errorf("analyzer: baseline batch %d: %w", batches, err)
		}
		qOut, err := exec.Run(quantized, batch)
		if err != nil {
			return nil, fmt.Errorf("analyzer: quantized batch %d: %w", batches, err)
		}
		for _, id := range points {
			f, q := fOut[id], qOut[id]
			if f == nil || q == nil || len(f.Data) != len(q.Data) {
				return nil, fmt.Errorf("analyzer: comparison point %d has mismatched outputs", id)
			}
			a := sums[id]
			for i := range f.Data {
				x, y := float64(f.Data[i]), float64(q.Data[i])
				a.dot += x * y
				a.na += x * x
				a.nb += y * y
				a.sq += (x - y) * (x - y)
				a.n++
			}
		}
		batches++
	}
	if batches == 0 {
		return nil, calibration.ErrNoData
	}

	reports := make([]Report, 0, len(points))
	for _, id := range points {
		a := sums[id]
		r := Report{Node: id, Name: baseline.Node(id).Name}
		if a.n > 0 {
			r.MSE = a.sq / float64(a.n)
			if denom := math.Sqrt(a.na) * math.Sqrt(a.nb); denom > 0 {
				r.Cosine = a.dot / denom
			}
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// comparePoints returns the node IDs quantizable in both graphs, in
// topological order.
func comparePoints(a, b *graph.Graph) []graph.NodeID {
	var out []graph.NodeID
	for _, n := range a.Nodes() {
		other := b.Node(n.ID)
		if other == nil || other.Removed {
			continue
		}
		if n.Quantizable || other.Quantizable {
			out = append(out, n.ID)
		}
	}
	return out
}

// MeanCosine aggregates reports into one scalar for logging.
func MeanCosine(reports []Report) float64 {
	if len(reports) == 0 {
		return 0
	}
	vals := make([]float64, len(reports))
	for i, r := range reports {
		vals[i] = r.Cosine
	}
	return floats.Sum(vals) / float64(len(vals))
}
