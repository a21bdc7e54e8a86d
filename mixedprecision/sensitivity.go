// sensitivity.go - Sensitivitaets-Schaetzung pro Precision-Kandidat
//
// Dieses Modul enthaelt:
// - estimate: geschaetzter Genauigkeitsverlust eines Kandidaten,
//   getrieben von den Kalibrierungs-Daten
//
// Der Schaetzer kombiniert den Gewichts-Quantisierungsfehler (exakt
// auf den echten Gewichten gerechnet) mit dem Aktivierungsfehler aus
// dem Kalibrierungs-Histogramm. Beides haengt nur von den Eingaben ab,
// die Schaetzung ist deterministisch.
package mixedprecision

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/7blacky7/quantkit/calibration"
	"github.com/7blacky7/quantkit/graph"
	"github.com/7blacky7/quantkit/thresholds"
)

// estimate returns the sensitivity loss proxy of quantizing one node
// with the given candidate.
func estimate(n *graph.Node, s *calibration.Stats, cfg graph.PrecisionConfig) float64 {
	var loss float64
	if n.Weights != nil && len(n.Weights.Data) > 0 {
		loss += weightError(n.Weights.Data, cfg.WeightBits)
	}
	if s != nil {
		loss += activationError(s, cfg.ActivationBits)
	}
	return loss
}

// weightError is the mean-square error of fake-quantizing the weights
// at the given bitwidth, with a power-of-two threshold covering them.
func weightError(w []float32, bits int) float64 {
	th := thresholds.WeightThreshold(w)
	q := thresholds.QuantizeSymmetric(w, th, bits)

	diff := make([]float64, len(w))
	for i := range w {
		diff[i] = float64(w[i] - q[i])
	}
	return floats.Dot(diff, diff) / float64(len(w))
}

// activationError estimates the quantization error of the node's
// output distribution at the given bitwidth from its histogram.
func activationError(s *calibration.Stats, bits int) float64 {
	bins, limit := s.Histogram()
	if limit == 0 || s.Count == 0 {
		return 0
	}
	th := thresholds.PowerOfTwoCover(s.AbsMax())
	scale := thresholds.Scale(th, bits)
	qmax := math.Pow(2, float64(bits-1)) - 1

	w := 2 * limit / float64(len(bins))
	var errSum, total float64
	for i, count := range bins {
		if count == 0 {
			continue
		}
		v := -limit + (float64(i)+0.5)*w
		q := math.Round(v / scale)
		if q > qmax {
			q = qmax
		}
		if q < -qmax-1 {
			q = -qmax - 1
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
