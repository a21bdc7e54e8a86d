// stats.go - Per-Tensor Statistik-Akkumulator
//
// Dieses Modul enthaelt:
// - Stats: laufendes Min/Max plus Histogramm fester Aufloesung
// - Update/Finalize: Batch-weises Fuellen, danach eingefroren
//
// Das Histogramm ist symmetrisch um Null. Waechst der beobachtete
// Bereich ueber das aktuelle Limit hinaus, wird das Limit verdoppelt
// und benachbarte Bins werden paarweise zusammengelegt. Das haelt die
// Aufloesung konstant und ist deterministisch in der Datenreihenfolge.
package calibration

import (
	"errors"
	"math"
)

// DefaultBins is the default histogram resolution.
const DefaultBins = 2048

// ErrFinalized wird gemeldet, wenn ein eingefrorener Akkumulator noch
// einmal beschrieben wird.
var ErrFinalized = errors.New("calibration: stats already finalized")

// Stats accumulates per-tensor calibration statistics: running min and
// max plus a fixed-resolution symmetric histogram.
type Stats struct {
	Min, Max float64
	Count    int64

	bins      []float64
	limit     float64
	finalized bool
}

// NewStats creates an accumulator with the given histogram resolution.
// The bin count must be even so the histogram stays symmetric.
func NewStats(bins int) *Stats {
	if bins <= 0 {
		bins = DefaultBins
	}
	if bins%2 != 0 {
		bins++
	}
	return &Stats{
		Min:  math.Inf(1),
		Max:  math.Inf(-1),
		bins: make([]float64, bins),
	}
}

// Update folds one observed tensor into the accumulator.
func (s *Stats) Update(data []float32) error {
	if s.finalized {
		return ErrFinalized
	}
	for _, f := range data {
		v := float64(f)
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
		s.insert(v)
	}
	s.Count += int64(len(data))
	return nil
}

func (s *Stats) insert(v float64) {
	a := math.Abs(v)
	if s.limit == 0 {
		// Startlimit: kleinste Zweierpotenz, die den ersten Wert abdeckt
		s.limit = 1
		for s.limit <= a {
			s.limit *= 2
		}
	}
	for a >= s.limit {
		s.grow()
	}
	n := len(s.bins)
	idx := int((v + s.limit) / (2 * s.limit) * float64(n))
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	s.bins[idx]++
}

// grow verdoppelt das Limit und legt benachbarte Bins paarweise zusammen.
func (s *Stats) grow() {
	n := len(s.bins)
	merged := make([]float64, n)
	// alte Bins decken [-limit, limit) ab und landen in der Mitte
	for i := 0; i < n; i += 2 {
		merged[n/4+i/2] = s.bins[i] + s.bins[i+1]
	}
	s.bins = merged
	s.limit *= 2
}

// Finalize freezes the accumulator. Further updates fail.
func (s *Stats) Finalize() { s.finalized = true }

// Finalized reports whether the accumulator is frozen.
func (s *Stats) Finalized() bool { return s.finalized }

// AbsMax returns the largest observed magnitude.
func (s *Stats) AbsMax() float64 {
	return math.Max(math.Abs(s.Min), math.Abs(s.Max))
}

// Histogram returns the bin counts and the symmetric range limit. The
// i-th bin covers [-limit + i*w, -limit + (i+1)*w) with
// w = 2*limit/len(bins). The returned slice is a copy.
func (s *Stats) Histogram() ([]float64, float64) {
	return append([]float64{}, s.bins...), s.limit
}

// Equal reports whether two accumulators hold identical statistics.
// Used by determinism checks.
func (s *Stats) Equal(o *Stats) bool {
	if s.Min != o.Min || s.Max != o.Max || s.Count != o.Count || s.limit != o.limit {
		return false
	}
	if len(s.bins) != len(o.bins) {
		return false
	}
	for i := range s.bins {
		if s.bins[i] != o.bins[i] {
			return false
		}
	}
	return true
}
