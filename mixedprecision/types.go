// Package mixedprecision - Bitbreiten-Suche unter Ressourcen-Budget
//
// Dieses Modul definiert die Kernstrukturen:
// - ResourceUtilization: Budget fuer Gewichts- und Aktivierungs-Speicher
// - BitwidthConfig: Node -> gewaehlte Precision-Config (geordnet)
// - SchedulingInfo: Strategie und Trade-offs der Suche fuer Metadaten
package mixedprecision

import (
	"errors"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/7blacky7/quantkit/graph"
)

// ResourceUtilization is the caller-imposed budget. A zero field means
// that dimension is unconstrained.
type ResourceUtilization struct {
	// WeightsMemory limits the summed byte size of all quantized
	// weight tensors.
	WeightsMemory int64
	// ActivationMemory limits the byte size of the largest single
	// activation tensor per batch element.
	ActivationMemory int64
}

// Unconstrained reports whether the budget imposes no limit at all.
func (r ResourceUtilization) Unconstrained() bool {
	return r.WeightsMemory <= 0 && r.ActivationMemory <= 0
}

// BitwidthConfig assigns exactly one precision configuration per
// quantizable node. Iteration order is node ID order, kept stable by
// the ordered map so downstream reporting is deterministic.
type BitwidthConfig struct {
	m *orderedmap.OrderedMap[graph.NodeID, graph.PrecisionConfig]
}

// NewBitwidthConfig creates an empty configuration.
func NewBitwidthConfig() *BitwidthConfig {
	return &BitwidthConfig{m: orderedmap.New[graph.NodeID, graph.PrecisionConfig]()}
}

// Set assigns a node's configuration.
func (c *BitwidthConfig) Set(id graph.NodeID, cfg graph.PrecisionConfig) {
	c.m.Set(id, cfg)
}

// Get returns a node's configuration.
func (c *BitwidthConfig) Get(id graph.NodeID) (graph.PrecisionConfig, bool) {
	return c.m.Get(id)
}

// Len returns the number of configured nodes.
func (c *BitwidthConfig) Len() int { return c.m.Len() }

// All iterates node/config pairs in insertion (node ID) order.
func (c *BitwidthConfig) All(f func(graph.NodeID, graph.PrecisionConfig) bool) {
	for pair := c.m.Oldest(); pair != nil; pair = pair.Next() {
		if !f(pair.Key, pair.Value) {
			return
		}
	}
}

// SchedulingInfo describes how and why the bitwidth configuration was
// chosen. Threaded through to metadata attachment, opaque to the core.
type SchedulingInfo struct {
	Strategy        string
	Iterations      int
	WeightsMemory   int64
	ActivationPeak  int64
	SensitivityLoss float64
}

// ErrInfeasible wird gemeldet, wenn keine Konfiguration das Budget
// einhaelt. Die Suche verletzt das Budget nie stillschweigend.
var ErrInfeasible = errors.New("mixedprecision: no bitwidth configuration satisfies the resource budget")
