// collector.go - Statistik-Sammlung ueber den Graphen
//
// Dieses Modul enthaelt:
// - Collect: fuehrt den Graphen batch-sequentiell aus und fuellt pro
//   quantisierbarem Node einen Stats-Akkumulator mit dessen Output
// - ErrNoData: leerer Generator ist ein Datenfehler
package calibration

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/7blacky7/quantkit/adapter"
	"github.com/7blacky7/quantkit/graph"
)

// ErrNoData wird gemeldet, wenn der Generator keine Batches liefert.
var ErrNoData = errors.New("calibration: representative data generator yielded no batches")

// Result holds the finalized statistics of all quantizable nodes plus
// how many batches produced them.
type Result struct {
	Stats   map[graph.NodeID]*Stats
	Batches int
}

// Collect runs the graph over every batch of the generator in order
// and folds each quantizable node's output tensor into its
// accumulator. All accumulators are finalized before returning.
func Collect(g *graph.Graph, gen DataGenerator, exec adapter.Executor, bins int) (*Result, error) {
	stats := make(map[graph.NodeID]*Stats)
	for _, n := range g.Nodes() {
		if n.Quantizable {
			stats[n.ID] = NewStats(bins)
		}
	}

	batches := 0
	for batch := range gen() {
		out, err := exec.Run(g, batch)
		if err != nil {
			return nil, fmt.Errorf("calibration: batch %d: %w", batches, err)
		}
		for id, acc := range stats {
			t, ok := out[id]
			if !ok {
				continue
			}
			if err := acc.Update(t.Data); err != nil {
				return nil, fmt.Errorf("calibration: node %d: %w", id, err)
			}
		}
		batches++
	}
	if batches == 0 {
		return nil, ErrNoData
	}

	for _, acc := range stats {
		acc.Finalize()
	}
	slog.Info("calibration complete", "batches", batches, "tensors", len(stats))
	return &Result{Stats: stats, Batches: batches}, nil
}
