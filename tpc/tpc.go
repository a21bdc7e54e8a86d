// Package tpc - Target-Platform-Capabilities
//
// Dieses Modul definiert die Kernstrukturen:
// - CapabilitySpec: Operator-Kind -> erlaubte Precision-Configs
// - PrecisionConfig: Bitbreiten, symmetrisch/asymmetrisch, per-channel
// - Default: 8-bit symmetrisches Power-of-Two Standardmodell
// Die Spec ist nach dem Laden unveraenderlich und darf ueber Runs
// hinweg read-only geteilt werden.
package tpc

import (
	"errors"
	"fmt"

	"github.com/7blacky7/quantkit/graph"
)

// PrecisionConfig is one precision configuration a platform operator
// supports.
type PrecisionConfig struct {
	WeightBits     int    `yaml:"weight_bits"`
	ActivationBits int    `yaml:"activation_bits"`
	Symmetric      bool   `yaml:"symmetric"`
	PerChannel     bool   `yaml:"per_channel"`
}

// Graph converts the config into the graph-level annotation form.
func (p PrecisionConfig) Graph() graph.PrecisionConfig {
	return graph.PrecisionConfig{
		WeightBits:     p.WeightBits,
		ActivationBits: p.ActivationBits,
		Symmetric:      p.Symmetric,
		PerChannel:     p.PerChannel,
	}
}

// CapabilitySpec describes which precision configurations the target
// platform supports per operator kind. Immutable once loaded.
type CapabilitySpec struct {
	name        string
	ops         map[string][]PrecisionConfig
	addMetadata bool
}

// ErrNoConfigs wird gemeldet, wenn ein Operator keine einzige gueltige
// Precision-Config besitzt.
var ErrNoConfigs = errors.New("tpc: operator has no precision configurations")

// Name returns the platform model name.
func (s *CapabilitySpec) Name() string { return s.name }

// AddMetadata reports whether the platform asks for metadata embedding
// in exported models.
func (s *CapabilitySpec) AddMetadata() bool { return s.addMetadata }

// Configs returns a copy of the precision configurations permitted for
// the given operator kind. An empty result means the operator is not
// quantizable on this platform.
func (s *CapabilitySpec) Configs(kind graph.OpKind) []PrecisionConfig {
	return append([]PrecisionConfig{}, s.ops[string(kind)]...)
}

// Supports reports whether the operator kind has at least one config.
func (s *CapabilitySpec) Supports(kind graph.OpKind) bool {
	return len(s.ops[string(kind)]) > 0
}

// Restrict derives a new spec whose candidate sets are narrowed by the
// given per-operator overrides. Override configs must be a subset of
// what the platform allows; anything else is a configuration error.
func (s *CapabilitySpec) Restrict(overrides map[string][]PrecisionConfig) (*CapabilitySpec, error) {
	if len(overrides) == 0 {
		return s, nil
	}
	out := &CapabilitySpec{
		name:        s.name,
		ops:         make(map[string][]PrecisionConfig, len(s.ops)),
		addMetadata: s.addMetadata,
	}
	for k, v := range s.ops {
		out.ops[k] = append([]PrecisionConfig{}, v...)
	}
	for kind, configs := range overrides {
		allowed, ok := s.ops[kind]
		if !ok {
			return nil, fmt.Errorf("tpc: override for unknown operator %q", kind)
		}
		var kept []PrecisionConfig
		for _, c := range configs {
			if !containsConfig(allowed, c) {
				return nil, fmt.Errorf("tpc: override config %+v not permitted for operator %q", c, kind)
			}
			kept = append(kept, c)
		}
		if len(kept) == 0 {
			return nil, fmt.Errorf("%w: override emptied operator %q", ErrNoConfigs, kind)
		}
		out.ops[kind] = kept
	}
	return out, nil
}

func containsConfig(list []PrecisionConfig, c PrecisionConfig) bool {
	for _, x := range list {
		if x == c {
			return true
		}
	}
	return false
}

// Default returns the built-in platform model: 8-bit symmetric
// power-of-two quantization for all standard weighted and activation
// operators, metadata embedding enabled.
func Default() *CapabilitySpec {
	int8sym := PrecisionConfig{WeightBits: 8, ActivationBits: 8, Symmetric: true}
	return &CapabilitySpec{
		name:        "default",
		addMetadata: true,
		ops: map[string][]PrecisionConfig{
			string(graph.OpLinear): {int8sym},
			string(graph.OpConv2D): {int8sym},
			string(graph.OpReLU):   {int8sym},
			string(graph.OpAdd):    {int8sym},
		},
	}
}

// New builds a spec from an explicit operator table. Used by tests and
// by callers constructing platform models in memory.
func New(name string, ops map[string][]PrecisionConfig, addMetadata bool) (*CapabilitySpec, error) {
	if len(ops) == 0 {
		return nil, fmt.Errorf("%w: empty operator table", ErrNoConfigs)
	}
	s := &CapabilitySpec{
		name:        name,
		ops:         make(map[string][]PrecisionConfig, len(ops)),
		addMetadata: addMetadata,
	}
	for k, v := range ops {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: operator %q", ErrNoConfigs, k)
		}
		s.ops[k] = append([]PrecisionConfig{}, v...)
	}
	return s, nil
}
