// search.go - Greedy-Suche ueber Bitbreiten-Kandidaten
//
// Dieses Modul enthaelt:
// - Search: waehlt pro Node genau eine Precision-Config unter Budget
//
// Strategie: alle Nodes starten auf ihrem breitesten Kandidaten.
// Solange das Budget verletzt ist, wird der Schritt auf den naechst
// schmaleren Kandidaten gewaehlt, der pro eingespartem Byte den
// kleinsten Sensitivitaets-Zuwachs kostet. Gleichstand loest die
// kleinere NodeID auf; die Suche ist damit deterministisch. Bleibt
// keine budgetsenkende Abstufung uebrig, schlaegt die Suche mit
// ErrInfeasible fehl statt das Budget zu verletzen.
package mixedprecision

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/7blacky7/quantkit/calibration"
	"github.com/7blacky7/quantkit/graph"
)

type searchNode struct {
	node       *graph.Node
	candidates []graph.PrecisionConfig // absteigend nach Bitbreite
	sens       []float64               // Sensitivitaet pro Kandidat
	cur        int
	actElems   int64 // Aktivierungs-Elemente pro Batch
}

// Search chooses one precision configuration per quantizable node so
// that the summed weight memory and the peak activation memory stay
// within the budget while the aggregate sensitivity loss is minimized.
func Search(g *graph.Graph, stats *calibration.Result, budget ResourceUtilization) (*BitwidthConfig, SchedulingInfo, error) {
	nodes := buildSearchNodes(g, stats)
	if len(nodes) == 0 {
		return nil, SchedulingInfo{}, fmt.Errorf("mixedprecision: graph has no quantizable nodes")
	}

	info := SchedulingInfo{Strategy: "greedy-sensitivity"}
	weightTotal, actPeak := totals(nodes)

	for violated(weightTotal, actPeak, budget) {
		best := -1
		bestScore := 0.0
		for i, sn := range nodes {
			if sn.cur+1 >= len(sn.candidates) {
				continue
			}
			newW := weightTotal - weightCost(sn, sn.cur) + weightCost(sn, sn.cur+1)
			newPeak := peakWith(nodes, i, sn.cur+1)

			improves := (budget.WeightsMemory > 0 && weightTotal > budget.WeightsMemory && newW < weightTotal) ||
				(budget.ActivationMemory > 0 && actPeak > budget.ActivationMemory && newPeak < actPeak)
			if !improves {
				continue
			}
			saved := (weightTotal - newW) + (actPeak - newPeak)
			if saved <= 0 {
				continue
			}
			deltaSens := sn.sens[sn.cur+1] - sn.sens[sn.cur]
			score := deltaSens / float64(saved)
			if best == -1 || score < bestScore {
				best = i
				bestScore = score
			}
		}
		if best == -1 {
			return nil, SchedulingInfo{}, fmt.Errorf("%w: weights %d, activation peak %d, budget %+v",
				ErrInfeasible, weightTotal, actPeak, budget)
		}
		nodes[best].cur++
		info.Iterations++
		weightTotal, actPeak = totals(nodes)
	}

	cfg := NewBitwidthConfig()
	for _, sn := range nodes {
		cfg.Set(sn.node.ID, sn.candidates[sn.cur])
		info.SensitivityLoss += sn.sens[sn.cur]
	}
	info.WeightsMemory = weightTotal
	info.ActivationPeak = actPeak
	slog.Info("mixed precision search complete",
		"strategy", info.Strategy,
		"iterations", info.Iterations,
		"weights_memory", weightTotal,
		"activation_peak", actPeak)
	return cfg, info, nil
}

func buildSearchNodes(g *graph.Graph, stats *calibration.Result) []*searchNode {
	var out []*searchNode
	for _, n := range g.Nodes() {
		if !n.Quantizable {
			continue
		}
		cands := append([]graph.PrecisionConfig{}, n.Candidates...)
		sort.SliceStable(cands, func(i, j int) bool {
			if cands[i].WeightBits != cands[j].WeightBits {
				return cands[i].WeightBits > cands[j].WeightBits
			}
			return cands[i].ActivationBits > cands[j].ActivationBits
		})

		var s *calibration.Stats
		var actElems int64
		if stats != nil {
			s = stats.Stats[n.ID]
			if s != nil && stats.Batches > 0 {
				actElems = s.Count / int64(stats.Batches)
			}
		}
		sn := &searchNode{node: n, candidates: cands, actElems: actElems}
		for _, c := range cands {
			sn.sens = append(sn.sens, estimate(n, s, c))
		}
		out = append(out, sn)
	}
	return out
}

func weightCost(sn *searchNode, idx int) int64 {
	elems := sn.node.Weights.Elements()
	bits := int64(sn.candidates[idx].WeightBits)
	return (elems*bits + 7) / 8
}

func actCost(sn *searchNode, idx int) int64 {
	bits := int64(sn.candidates[idx].ActivationBits)
	return (sn.actElems*bits + 7) / 8
}

func totals(nodes []*searchNode) (weights, peak int64) {
	for _, sn := range nodes {
		weights += weightCost(sn, sn.cur)
		if a := actCost(sn, sn.cur); a > peak {
			peak = a
		}
	}
	return weights, peak
}

// peakWith returns the activation peak if node i moved to candidate idx.
func peakWith(nodes []*searchNode, i, idx int) int64 {
	var peak int64
	for j, sn := range nodes {
		cur := sn.cur
		if j == i {
			cur = idx
		}
		if a := actCost(sn, cur); a > peak {
			peak = a
		}
	}
	return peak
}

func violated(weights, peak int64, b ResourceUtilization) bool {
	if b.WeightsMemory > 0 && weights > b.WeightsMemory {
		return true
	}
	if b.ActivationMemory > 0 && peak > b.ActivationMemory {
		return true
	}
	return false
}

// Validate checks a chosen configuration against the budget. Exported
// so the core runner can assert the invariant before exporting.
func Validate(g *graph.Graph, stats *calibration.Result, cfg *BitwidthConfig, budget ResourceUtilization) error {
	var weights, peak int64
	for _, n := range g.Nodes() {
		if !n.Quantizable {
			continue
		}
		c, ok := cfg.Get(n.ID)
		if !ok {
			return fmt.Errorf("mixedprecision: node %q has no chosen configuration", n.Name)
		}
		weights += (n.Weights.Elements()*int64(c.WeightBits) + 7) / 8
		if stats != nil && stats.Batches > 0 {
			if s := stats.Stats[n.ID]; s != nil {
				a := (s.Count / int64(stats.Batches) * int64(c.ActivationBits) + 7) / 8
				if a > peak {
					peak = a
				}
			}
		}
	}
	if violated(weights, peak, budget) {
		return fmt.Errorf("%w: weights %d, activation peak %d, budget %+v", ErrInfeasible, weights, peak, budget)
	}
	return nil
}
