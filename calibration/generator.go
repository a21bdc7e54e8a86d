// Package calibration - Kalibrierungs-Statistiken ueber repraesentative Daten
//
// MODUL: generator
// ZWECK: Kontrakt fuer den repraesentativen Daten-Generator
// INPUT: -
// OUTPUT: Batches als Tensor-Listen
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: iter, graph
// HINWEISE: Jeder Aufruf des Generators liefert eine frische, endliche
// Iteration; die Pipeline ruft ihn fuer Statistik- und Korrektur-Pass
// jeweils neu auf.
package calibration

import (
	"iter"

	"github.com/7blacky7/quantkit/graph"
)

// Batch is one representative input batch, one tensor per graph input.
type Batch []*graph.Tensor

// DataGenerator produces a finite, restartable sequence of input
// batches. Calling the generator again must yield a fresh iteration
// from the start; the pipeline replays it for the correction pass.
type DataGenerator func() iter.Seq[Batch]

// FromSlice wraps fixed in-memory batches as a DataGenerator. Mostly
// used by tests and the CLI.
func FromSlice(batches []Batch) DataGenerator {
	return func() iter.Seq[Batch] {
		return func(yield func(Batch) bool) {
			for _, b := range batches {
				if !yield(b) {
					return
				}
			}
		}
	}
}
