// load.go - Laden von Capability-Specs
//
// Dieses Modul enthaelt:
// - Load: Aufloesen einer Spec-Referenz (in-memory Objekt oder YAML-Pfad)
// - yamlSpec: Wire-Format fuer YAML-Dateien
package tpc

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// yamlSpec ist das Datei-Format einer Capability-Spec.
type yamlSpec struct {
	Name        string                       `yaml:"name"`
	AddMetadata bool                         `yaml:"add_metadata"`
	Operators   map[string][]PrecisionConfig `yaml:"operators"`
}

// Load resolves a capability spec reference. Accepted forms:
// an in-memory *CapabilitySpec (returned as-is), a string path to a
// YAML platform model, or nil for the built-in default.
func Load(ref any) (*CapabilitySpec, error) {
	switch v := ref.(type) {
	case nil:
		return Default(), nil
	case *CapabilitySpec:
		if v == nil {
			return Default(), nil
		}
		return v, nil
	case string:
		return loadFile(v)
	default:
		return nil, fmt.Errorf("tpc: unsupported capability spec reference %T", ref)
	}
}

func loadFile(path string) (*CapabilitySpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tpc: reading platform model: %w", err)
	}
	var ys yamlSpec
	if err := yaml.Unmarshal(data, &ys); err != nil {
		return nil, fmt.Errorf("tpc: parsing platform model %s: %w", path, err)
	}
	name := ys.Name
	if name == "" {
		name = path
	}
	spec, err := New(name, ys.Operators, ys.AddMetadata)
	if err != nil {
		return nil, fmt.Errorf("tpc: platform model %s: %w", path, err)
	}
	return spec, nil
}
