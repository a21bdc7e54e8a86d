// Package core - Konfiguration und Orchestrierung des Quantisierungs-Laufs
//
// MODUL: config
// ZWECK: CoreConfig-Buendel fuer alle Pipeline-Stufen
// INPUT: -
// OUTPUT: validierte Konfiguration
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: thresholds, tpc
// HINWEISE: MixedPrecision ist bewusst ein any-Feld; der Runner prueft
// den konkreten Typ und bricht bei Fremd-Typen fatal ab.
package core

import (
	"errors"
	"fmt"

	"github.com/7blacky7/quantkit/calibration"
	"github.com/7blacky7/quantkit/thresholds"
	"github.com/7blacky7/quantkit/tpc"
)

// MixedPrecisionConfig is the structured mixed-precision configuration
// the runner expects when mixed precision is enabled.
type MixedPrecisionConfig struct {
	// NumInterestPoints limits how many comparison points the
	// sensitivity estimation uses; 0 means all quantizable nodes.
	NumInterestPoints int
}

// QuantizationConfig steuert Threshold-Berechnung und Annotation.
type QuantizationConfig struct {
	// Metric waehlt das Fehlermass der Threshold-Wahl.
	Metric thresholds.Metric
	// MissingStats entscheidet ueber Nodes ohne Kalibrierung.
	MissingStats thresholds.MissingStatsPolicy
	// CustomOpsetToLayer schraenkt die Kandidaten pro Operator ein.
	CustomOpsetToLayer map[string][]tpc.PrecisionConfig
	// HistogramBins ist die Histogramm-Aufloesung der Kalibrierung.
	HistogramBins int
}

// DebugConfig sammelt die Debug-Schalter.
type DebugConfig struct {
	// Bypass skips the whole pipeline and returns the module
	// unchanged. Escape hatch for A/B baseline comparisons.
	Bypass bool
	// AnalyzeSimilarity runs the float/quantized similarity report
	// after correction. Off the critical path.
	AnalyzeSimilarity bool
}

// CoreConfig is the configuration bundle of one quantization run.
type CoreConfig struct {
	Quantization QuantizationConfig
	// MixedPrecision must be *MixedPrecisionConfig (or nil to disable
	// mixed precision).
	MixedPrecision any
	Debug          DebugConfig
}

// ErrBadMixedPrecisionConfig wird gemeldet, wenn das MixedPrecision-
// Feld nicht den erwarteten strukturierten Typ hat.
var ErrBadMixedPrecisionConfig = errors.New("core: mixed precision config is not of type *MixedPrecisionConfig")

// DefaultCoreConfig returns the configuration used when the caller
// passes nil: no-clipping thresholds, fatal missing-stats policy,
// default histogram resolution, mixed precision disabled.
func DefaultCoreConfig() *CoreConfig {
	return &CoreConfig{
		Quantization: QuantizationConfig{
			Metric:        thresholds.MetricNoClipping,
			MissingStats:  thresholds.PolicyFatal,
			HistogramBins: calibration.DefaultBins,
		},
	}
}

// MixedPrecisionEnabled reports whether mixed precision is configured.
func (c *CoreConfig) MixedPrecisionEnabled() bool {
	return c.MixedPrecision != nil
}

// MixedPrecisionConfigTyped validates and returns the structured
// mixed-precision configuration.
func (c *CoreConfig) MixedPrecisionConfigTyped() (*MixedPrecisionConfig, error) {
	mp, ok := c.MixedPrecision.(*MixedPrecisionConfig)
	if !ok || mp == nil {
		return nil, fmt.Errorf("%w: got %T", ErrBadMixedPrecisionConfig, c.MixedPrecision)
	}
	return mp, nil
}

// Validate checks the configuration before any calibration work
// begins, so misconfiguration fails early instead of after an
// expensive data pass.
func (c *CoreConfig) Validate() error {
	if c.MixedPrecisionEnabled() {
		if _, err := c.MixedPrecisionConfigTyped(); err != nil {
			return err
		}
	}
	switch c.Quantization.Metric {
	case "", thresholds.MetricNoClipping, thresholds.MetricMSE:
	default:
		return fmt.Errorf("core: unknown threshold metric %q", c.Quantization.Metric)
	}
	switch c.Quantization.MissingStats {
	case "", thresholds.PolicyFatal, thresholds.PolicySkip:
	default:
		return fmt.Errorf("core: unknown missing-stats policy %q", c.Quantization.MissingStats)
	}
	return nil
}
