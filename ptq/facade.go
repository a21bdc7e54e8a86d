// facade.go - Oeffentlicher Einstiegspunkt der Quantisierungs-Pipeline
//
// Dieses Modul enthaelt:
// - PostTrainingQuantization: validiert die Konfiguration, verdrahtet
//   Core Runner, Korrektur-Pass, optionale Aehnlichkeits-Analyse und
//   Exporter und liefert (Modul, UserInformation)
//
// Ablauf: Bypass-Check -> Mixed-Precision-Typpruefung -> Framework-
// Setup -> Capability-Spec laden -> Core Runner -> Baseline-Kopie ->
// Bias-Korrektur -> optionale Analyse -> Export -> Metadaten.
package ptq

import (
	"fmt"
	"log/slog"

	"github.com/7blacky7/quantkit/adapter"
	"github.com/7blacky7/quantkit/analyzer"
	"github.com/7blacky7/quantkit/calibration"
	"github.com/7blacky7/quantkit/core"
	"github.com/7blacky7/quantkit/export"
	"github.com/7blacky7/quantkit/mixedprecision"
	"github.com/7blacky7/quantkit/tpc"
)

// PostTrainingQuantization quantizes a trained module using
// post-training quantization. By default the module is quantized with
// symmetric power-of-two thresholds as defined by the default
// capability spec. The module first runs through graph substitutions
// (batch-norm folding into preceding layers), then statistics are
// collected per layer output over the representative dataset,
// thresholds are computed, bitwidths are assigned (uniform, or via the
// resource-constrained mixed-precision search when configured), and a
// bias-correction pass compensates the quantization shift.
//
// capabilities accepts a *tpc.CapabilitySpec, a YAML path, or nil for
// the built-in default platform. A nil budget disables mixed
// precision. With cfg.Debug.Bypass the original module is returned
// unchanged and no user information is produced.
func PostTrainingQuantization(module adapter.Module, gen calibration.DataGenerator,
	budget *mixedprecision.ResourceUtilization, cfg *core.CoreConfig,
	capabilities any) (adapter.Module, *core.UserInformation, error) {

	if cfg == nil {
		cfg = core.DefaultCoreConfig()
	}
	if cfg.Debug.Bypass {
		return module, nil, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	fw, err := adapter.Setup()
	if err != nil {
		return nil, nil, fmt.Errorf("ptq: %w", err)
	}

	spec, err := tpc.Load(capabilities)
	if err != nil {
		return nil, nil, err
	}

	res, err := core.Run(module, gen, cfg, fw, spec, budget)
	if err != nil {
		return nil, nil, err
	}

	// Der Graph ist substituiert und traegt Parameter, die Gewichte
	// sind aber noch float: die Kopie dient als Float-Baseline mit
	// identischer Architektur fuer die Vergleichspunkte.
	similarityBaseline := res.Graph.DeepCopy()

	if err := Correct(res.Graph, gen, fw.Executor()); err != nil {
		return nil, nil, err
	}

	if cfg.Debug.AnalyzeSimilarity {
		quantized := QuantizeGraphWeights(res.Graph)
		reports, aerr := analyzer.Compare(similarityBaseline, quantized, gen, fw.Executor())
		if aerr != nil {
			// Diagnostik bricht die Pipeline nie ab
			slog.Warn("similarity analysis failed", "error", aerr)
		} else {
			slog.Info("similarity analysis",
				"points", len(reports),
				"mean_cosine", analyzer.MeanCosine(reports))
		}
	}

	info := core.NewUserInformation(res)

	exporter := export.New(spec)
	model, err := exporter.Export(res.Graph, info)
	if err != nil {
		return nil, nil, err
	}
	if spec.AddMetadata() {
		if err := export.Attach(model, export.NewMetadata(spec, info)); err != nil {
			return nil, nil, err
		}
	}
	return model, info, nil
}
