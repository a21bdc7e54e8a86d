// Package thresholds - Berechnung der Quantisierungs-Parameter
//
// Dieses Modul definiert die Kernstrukturen:
// - Metric: Fehlermass fuer die Threshold-Wahl (NoClipping, MSE)
// - MissingStatsPolicy: Verhalten bei Nodes ohne Kalibrierungsdaten
// - Compute: Threshold pro quantisierbarem Node aus den Statistiken
//
// Standard-Politik ist symmetrische Quantisierung mit Zweierpotenz-
// Thresholds. Bei gleichem Fehler gewinnt der kleinere Threshold
// (engere Skala, weniger Quantisierungsrauschen).
package thresholds

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/7blacky7/quantkit/calibration"
	"github.com/7blacky7/quantkit/graph"
)

// Metric selects the error measure driving the threshold choice.
type Metric string

const (
	// MetricNoClipping picks the smallest power of two covering the
	// observed range.
	MetricNoClipping Metric = "no-clipping"
	// MetricMSE minimizes the estimated mean-square quantization
	// error over the calibration histogram; clipping is allowed when
	// it pays off.
	MetricMSE Metric = "mse"
)

// MissingStatsPolicy decides what happens when calibration never
// touched a quantizable node (e.g., a dead branch).
type MissingStatsPolicy string

const (
	// PolicyFatal aborts the run. Default.
	PolicyFatal MissingStatsPolicy = "fatal"
	// PolicySkip leaves the node unquantized and continues.
	PolicySkip MissingStatsPolicy = "skip"
)

// ErrMissingStats wird gemeldet, wenn ein quantisierbarer Node keine
// Kalibrierungs-Statistik besitzt und die Politik fatal ist.
var ErrMissingStats = errors.New("thresholds: quantizable node has no calibration statistics")

// mseSearchSteps is how many shrinking power-of-two candidates the MSE
// metric evaluates below the covering threshold.
const mseSearchSteps = 8

// PowerOfTwoCover returns the smallest power of two strictly greater
// than or equal to x. For x <= 0 it returns 1 so thresholds stay
// positive even for all-zero tensors.
func PowerOfTwoCover(x float64) float64 {
	if x <= 0 {
		return 1
	}
	return math.Pow(2, math.Ceil(math.Log2(x)))
}

// SelectThreshold computes the power-of-two threshold for one
// finalized accumulator under the given metric. The computation is
// pure: running it twice on the same statistics yields the same
// threshold.
func SelectThreshold(s *calibration.Stats, metric Metric, bits int) (float64, error) {
	if !s.Finalized() {
		return 0, fmt.Errorf("thresholds: statistics not finalized")
	}
	cover := PowerOfTwoCover(s.AbsMax())
	switch metric {
	case MetricNoClipping, "":
		return cover, nil
	case MetricMSE:
		return mseThreshold(s, cover, bits), nil
	default:
		return 0, fmt.Errorf("thresholds: unknown metric %q", metric)
	}
}

// mseThreshold evaluates shrinking power-of-two candidates and keeps
// the one with the smallest estimated quantization error. Candidates
// are visited from the smallest upward, and a larger threshold only
// wins with a strictly smaller error; ties therefore resolve to the
// smaller threshold.
func mseThreshold(s *calibration.Stats, cover float64, bits int) float64 {
	bins, limit := s.Histogram()
	if limit == 0 {
		return cover
	}
	centers := binCenters(len(bins), limit)

	best := cover
	bestErr := math.Inf(1)
	for k := mseSearchSteps - 1; k >= 0; k-- {
		cand := cover * math.Pow(2, -float64(k))
		e := quantError(bins, centers, cand, bits)
		if e < bestErr {
			bestErr = e
			best = cand
		}
	}
	return best
}

// binCenters returns the histogram bin centers for a symmetric range.
func binCenters(n int, limit float64) []float64 {
	w := 2 * limit / float64(n)
	return floats.Span(make([]float64, n), -limit+w/2, limit-w/2)
}

// quantError estimates the mean-square quantization error of the
// histogram under a symmetric quantizer with the given threshold.
func quantError(bins, centers []float64, threshold float64, bits int) float64 {
	scale := threshold / math.Pow(2, float64(bits-1))
	qmin := -math.Pow(2, float64(bits-1))
	qmax := math.Pow(2, float64(bits-1)) - 1

	var errSum, total float64
	for i, count := range bins {
		if count == 0 {
			continue
		}
		v := centers[i]
		q := math.Round(v / scale)
		if q < qmin {
			q = qmin
		}
		if q > qmax {
			q = qmax
		}
		d := v - q*scale
		errSum += count * d * d
		total += count
	}
	if total == 0 {
		return 0
	}
	return errSum / total
}

// Compute derives per-node quantization parameters from finalized
// statistics. Bitwidths are assigned afterwards by the fixed or
// mixed-precision selection; thresholds are independent of them except
// through the MSE error model, which uses the node's widest candidate.
func Compute(g *graph.Graph, stats *calibration.Result, metric Metric, policy MissingStatsPolicy) (map[graph.NodeID]graph.QuantParams, error) {
	out := make(map[graph.NodeID]graph.QuantParams)
	for _, n := range g.Nodes() {
		if !n.Quantizable {
			continue
		}
		s, ok := stats.Stats[n.ID]
		if !ok || s.Count == 0 {
			if policy == PolicySkip {
				n.Quantizable = false
				continue
			}
			return nil, fmt.Errorf("%w: node %q", ErrMissingStats, n.Name)
		}
		bits := maxActivationBits(n.Candidates)
		th, err := SelectThreshold(s, metric, bits)
		if err != nil {
			return nil, fmt.Errorf("thresholds: node %q: %w", n.Name, err)
		}
		out[n.ID] = graph.QuantParams{
			Threshold: th,
			Symmetric: true,
		}
	}
	return out, nil
}

func maxActivationBits(candidates []graph.PrecisionConfig) int {
	bits := 8
	for _, c := range candidates {
		if c.ActivationBits > bits {
			bits = c.ActivationBits
		}
	}
	return bits
}
