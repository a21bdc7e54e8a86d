// Package ptq - Post-Training-Quantisierung: Korrektur-Pass und Facade
//
// MODUL: runner
// ZWECK: Bias-Korrektur nach der Kalibrierung
// INPUT: Graph des Core Runners, Daten-Generator (erneut abgespielt)
// OUTPUT: korrigierter Graph; Topologie und Bitbreiten unveraendert
// NEBENEFFEKTE: mutiert Bias-Tensoren in place
// ABHAENGIGKEITEN: adapter, calibration, graph, thresholds, gonum
// HINWEISE: Die Gewichts-Quantisierung verschiebt den Erwartungswert
// der Layer-Ausgabe. Der Pass misst die mittlere Eingabe jedes
// gewichteten Nodes ueber die Kalibrierungsdaten und kompensiert die
// Verschiebung exakt im Bias: b[o] += sum_i (W - Wq)[o,i] * E[x[i]].
package ptq

import (
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/floats"

	"github.com/7blacky7/quantkit/adapter"
	"github.com/7blacky7/quantkit/calibration"
	"github.com/7blacky7/quantkit/graph"
	"github.com/7blacky7/quantkit/thresholds"
)

// Correct runs the bias-correction pass over the replayed calibration
// data. Quantization parameters, topology and chosen bitwidths stay
// untouched; only bias values move.
func Correct(g *graph.Graph, gen calibration.DataGenerator, exec adapter.Executor) error {
	targets := correctionTargets(g)
	if len(targets) == 0 {
		return nil
	}

	means, batches, err := inputMeans(g, gen, exec, targets)
	if err != nil {
		return err
	}
	if batches == 0 {
		return calibration.ErrNoData
	}

	for _, n := range targets {
		mean := means[n.ID]
		if mean == nil {
			continue
		}
		applyBiasCorrection(n, mean)
	}
	slog.Info("bias correction applied", "nodes", len(targets), "batches", batches)
	return nil
}

// correctionTargets returns the quantizable weighted nodes in
// topological order.
func correctionTargets(g *graph.Graph) []*graph.Node {
	var out []*graph.Node
	for _, n := range g.Nodes() {
		if n.Quantizable && n.Kind == graph.OpLinear && n.Weights != nil && len(n.Inputs) == 1 {
			out = append(out, n)
		}
	}
	return out
}

// inputMeans replays the generator and accumulates the mean input
// vector of every correction target, in generator order.
func inputMeans(g *graph.Graph, gen calibration.DataGenerator, exec adapter.Executor, targets []*graph.Node) (map[graph.NodeID][]float64, int, error) {
	sums := make(map[graph.NodeID][]float64, len(targets))
	counts := make(map[graph.NodeID]int, len(targets))

	batches := 0
	for batch := range gen() {
		out, err := exec.Run(g, batch)
		if err != nil {
			return nil, 0, fmt.Errorf("ptq: correction batch %d: %w", batches, err)
		}
		for _, n := range targets {
			x := out[n.Inputs[0]]
			if x == nil || len(x.Shape) != 2 {
				continue
			}
			features := x.Shape[1]
			if sums[n.ID] == nil {
				sums[n.ID] = make([]float64, features)
			}
			rows := x.Shape[0]
			for b := 0; b < rows; b++ {
				for i := 0; i < features; i++ {
					sums[n.ID][i] += float64(x.Data[b*features+i])
				}
			}
			counts[n.ID] += rows
		}
		batches++
	}

	for id, s := range sums {
		if c := counts[id]; c > 0 {
			floats.Scale(1/float64(c), s)
		}
	}
	return sums, batches, nil
}

// applyBiasCorrection compensates the expected output shift of
// quantizing the node's weights.
func applyBiasCorrection(n *graph.Node, mean []float64) {
	outF := n.Weights.Shape[0]
	inF := n.Weights.Shape[1]
	if len(mean) != inF {
		return
	}
	th := thresholds.WeightThreshold(n.Weights.Data)
	q := thresholds.QuantizeSymmetric(n.Weights.Data, th, n.Params.Bits)

	if n.Bias == nil {
		n.Bias = graph.NewTensor(outF)
	}
	diff := make([]float64, inF)
	for o := 0; o < outF; o++ {
		row := n.Weights.Data[o*inF : (o+1)*inF]
		qrow := q[o*inF : (o+1)*inF]
		for i := range diff {
			diff[i] = float64(row[i] - qrow[i])
		}
		n.Bias.Data[o] += float32(floats.Dot(diff, mean))
	}
}
