// runner.go - Core Runner: Substitution, Kalibrierung, Parameter, Suche
//
// Dieses Modul enthaelt:
// - Run: fuehrt die Stufen 1-4 der Pipeline sequentiell aus
// - RunResult: Graph mit Parametern, Bitbreiten-Config, Scheduling-Info
//
// Reihenfolge: Modul adaptieren -> Substitutionen -> Statistiken
// sammeln -> Thresholds berechnen -> Bitbreiten waehlen (Suche oder
// uniform). Der Graph gehoert exklusiv dem Lauf und wird in place
// mutiert.
package core

import (
	"fmt"
	"log/slog"

	"github.com/7blacky7/quantkit/adapter"
	"github.com/7blacky7/quantkit/calibration"
	"github.com/7blacky7/quantkit/graph"
	"github.com/7blacky7/quantkit/mixedprecision"
	"github.com/7blacky7/quantkit/rewrite"
	"github.com/7blacky7/quantkit/thresholds"
	"github.com/7blacky7/quantkit/tpc"
)

// RunResult is the Core Runner's output: the substituted,
// parameter-annotated graph plus the chosen bitwidth configuration
// and scheduling metadata.
type RunResult struct {
	Graph      *graph.Graph
	BitWidths  *mixedprecision.BitwidthConfig
	Scheduling mixedprecision.SchedulingInfo
	Stats      *calibration.Result
}

// Run executes the core pipeline on one module.
func Run(m adapter.Module, gen calibration.DataGenerator, cfg *CoreConfig, fw adapter.Framework,
	spec *tpc.CapabilitySpec, budget *mixedprecision.ResourceUtilization) (*RunResult, error) {

	if cfg == nil {
		cfg = DefaultCoreConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	g, err := adapter.Adapt(m)
	if err != nil {
		return nil, err
	}
	slog.Info("module adapted", "module", m.Name(), "nodes", g.Len())

	if err := rewrite.Run(g, spec, cfg.Quantization.CustomOpsetToLayer); err != nil {
		return nil, err
	}

	stats, err := calibration.Collect(g, gen, fw.Executor(), cfg.Quantization.HistogramBins)
	if err != nil {
		return nil, err
	}

	params, err := thresholds.Compute(g, stats, cfg.Quantization.Metric, cfg.Quantization.MissingStats)
	if err != nil {
		return nil, err
	}

	var (
		bitWidths  *mixedprecision.BitwidthConfig
		scheduling mixedprecision.SchedulingInfo
	)
	// Ohne Budget gibt es nichts zu optimieren: die Suche laeuft nur,
	// wenn Mixed Precision konfiguriert ist UND ein Budget vorliegt.
	if cfg.MixedPrecisionEnabled() {
		if _, err := cfg.MixedPrecisionConfigTyped(); err != nil {
			return nil, err
		}
	}
	if cfg.MixedPrecisionEnabled() && budget != nil {
		bitWidths, scheduling, err = mixedprecision.Search(g, stats, *budget)
		if err != nil {
			return nil, err
		}
		if err := mixedprecision.Validate(g, stats, bitWidths, *budget); err != nil {
			return nil, err
		}
	} else {
		// Keine Suche: jeder Node bekommt seinen breitesten Kandidaten
		bitWidths, scheduling = uniformConfig(g)
	}

	if err := applyParams(g, params, bitWidths); err != nil {
		return nil, err
	}

	return &RunResult{Graph: g, BitWidths: bitWidths, Scheduling: scheduling, Stats: stats}, nil
}

// uniformConfig assigns every quantizable node its widest candidate
// without running any search. With a single-config capability spec
// this is the fixed uniform bitwidth.
func uniformConfig(g *graph.Graph) (*mixedprecision.BitwidthConfig, mixedprecision.SchedulingInfo) {
	cfg := mixedprecision.NewBitwidthConfig()
	for _, n := range g.Nodes() {
		if !n.Quantizable {
			continue
		}
		best := n.Candidates[0]
		for _, c := range n.Candidates[1:] {
			if c.WeightBits > best.WeightBits {
				best = c
			}
		}
		cfg.Set(n.ID, best)
	}
	return cfg, mixedprecision.SchedulingInfo{Strategy: "uniform"}
}

// applyParams merges thresholds and chosen bitwidths into the nodes'
// quantization parameters and checks their invariants.
func applyParams(g *graph.Graph, params map[graph.NodeID]graph.QuantParams, bits *mixedprecision.BitwidthConfig) error {
	for _, n := range g.Nodes() {
		if !n.Quantizable {
			continue
		}
		p, ok := params[n.ID]
		if !ok {
			return fmt.Errorf("core: node %q has no quantization parameters", n.Name)
		}
		c, ok := bits.Get(n.ID)
		if !ok {
			return fmt.Errorf("core: node %q has no bitwidth assignment", n.Name)
		}
		p.Bits = c.WeightBits
		if n.Weights == nil {
			p.Bits = c.ActivationBits
		}
		p.Symmetric = c.Symmetric
		p.PerChannel = c.PerChannel
		if !p.Valid() {
			return fmt.Errorf("core: node %q has invalid parameters %+v", n.Name, p)
		}
		n.Params = p
	}
	return nil
}
