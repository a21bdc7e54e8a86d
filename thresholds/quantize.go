// quantize.go - Symmetrische Quantisierungs-Kernel
//
// Dieses Modul enthaelt:
// - Scale: Skala aus Threshold und Bitbreite
// - QuantizeSymmetric: Fake-Quantisierung (float -> Gitter -> float)
// - QuantizeSymmetricInt8: echte int8-Werte plus Skala fuer den Export
//
// q = clamp(round(x/scale), -2^(b-1), 2^(b-1)-1), dequant x' = q*scale.
// Null wird exakt erhalten.
package thresholds

import "math"

// Scale returns the quantization step for a symmetric quantizer.
func Scale(threshold float64, bits int) float64 {
	return threshold / math.Pow(2, float64(bits-1))
}

// WeightThreshold returns the power-of-two threshold covering a weight
// tensor. Weight thresholds come from the weights themselves, not from
// activation statistics.
func WeightThreshold(data []float32) float64 {
	absMax := 0.0
	for _, v := range data {
		if a := math.Abs(float64(v)); a > absMax {
			absMax = a
		}
	}
	return PowerOfTwoCover(absMax)
}

// QuantizeSymmetric maps every value onto the symmetric quantization
// grid and back, returning the values the quantized model would
// compute with.
func QuantizeSymmetric(data []float32, threshold float64, bits int) []float32 {
	scale := Scale(threshold, bits)
	qmin := -math.Pow(2, float64(bits-1))
	qmax := math.Pow(2, float64(bits-1)) - 1

	out := make([]float32, len(data))
	for i, v := range data {
		q := math.Round(float64(v) / scale)
		if q < qmin {
			q = qmin
		}
		if q > qmax {
			q = qmax
		}
		out[i] = float32(q * scale)
	}
	return out
}

// QuantizeSymmetricInt8 quantizes to true int8 values plus the scale,
// for materializing 8-bit weights at export time.
func QuantizeSymmetricInt8(data []float32, threshold float64) ([]int8, float32) {
	scale := Scale(threshold, 8)
	out := make([]int8, len(data))
	for i, v := range data {
		q := math.Round(float64(v) / scale)
		if q < -128 {
			q = -128
		}
		if q > 127 {
			q = 127
		}
		out[i] = int8(q)
	}
	return out, float32(scale)
}
