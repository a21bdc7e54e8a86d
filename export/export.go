// Package export - Materialisierung des quantisierten Modells
//
// Dieses Modul definiert die Kernstrukturen:
// - Exporter: Boundary zum Host-Framework
// - ModelExporter: Standard-Implementierung
// - QuantizedModule: exportiertes Modul mit echten int-Gewichten
//
// Quantisierte Gewichte werden als int8-Werte plus Skala abgelegt,
// nicht quantisierte Tensoren (Bias, uebersprungene Layer) als
// float16. Die Layer-Sicht liefert dequantisierte float32-Werte,
// damit das Modul im Host-Framework lauffaehig bleibt.
package export

import (
	"fmt"
	"maps"

	"github.com/x448/float16"

	"github.com/7blacky7/quantkit/adapter"
	"github.com/7blacky7/quantkit/core"
	"github.com/7blacky7/quantkit/graph"
	"github.com/7blacky7/quantkit/thresholds"
	"github.com/7blacky7/quantkit/tpc"
)

// Exporter hands a finalized, corrected graph to the host framework
// and returns a usable model instance.
type Exporter interface {
	Export(g *graph.Graph, info *core.UserInformation) (adapter.Module, error)
}

// QuantTensor is one materialized weight tensor: true quantized
// integer values plus the dequantization scale.
type QuantTensor struct {
	Shape  []int
	Values []int8
	Scale  float32
	Bits   int
}

// QuantizedModule is the exported model: an adapter.Module whose
// quantized layers carry dequantized weights, plus the raw quantized
// tensors and optional metadata.
type QuantizedModule struct {
	name    string
	layers  []adapter.Layer
	tensors map[string]*QuantTensor
	meta    *Metadata
}

func (m *QuantizedModule) Name() string            { return m.name }
func (m *QuantizedModule) Layers() []adapter.Layer { return m.layers }

// QuantTensors returns the raw quantized weight tensors by layer name.
func (m *QuantizedModule) QuantTensors() map[string]*QuantTensor { return m.tensors }

// Metadata returns the attached metadata, nil if none was embedded.
func (m *QuantizedModule) Metadata() *Metadata { return m.meta }

// ModelExporter is the default exporter.
type ModelExporter struct {
	spec *tpc.CapabilitySpec
}

// New creates an exporter for the given platform.
func New(spec *tpc.CapabilitySpec) *ModelExporter {
	return &ModelExporter{spec: spec}
}

// Export materializes the corrected graph as a quantized module.
// Weighted quantizable nodes are stored as int8 plus scale; every
// other tensor makes a float16 round trip so the export matches what
// reduced-precision storage will actually hold.
func (e *ModelExporter) Export(g *graph.Graph, info *core.UserInformation) (adapter.Module, error) {
	m := &QuantizedModule{
		name:    g.Name,
		tensors: make(map[string]*QuantTensor),
	}
	names := make(map[graph.NodeID]string, g.Len())

	for _, n := range g.Nodes() {
		layer := adapter.Layer{
			Name:  n.Name,
			Kind:  n.Kind,
			Attrs: maps.Clone(n.Attrs),
		}
		for _, in := range n.Inputs {
			name, ok := names[in]
			if !ok {
				return nil, fmt.Errorf("export: node %q reads unexported node %d", n.Name, in)
			}
			layer.Inputs = append(layer.Inputs, name)
		}

		if n.Weights != nil {
			if n.Quantizable {
				if !n.Params.Valid() {
					return nil, fmt.Errorf("export: node %q has invalid quantization parameters", n.Name)
				}
				qt, deq := quantizeTensor(n.Weights, n.Params.Bits)
				m.tensors[n.Name] = qt
				layer.Weights = deq
			} else {
				layer.Weights = halfRoundTrip(n.Weights)
			}
		}
		if n.Bias != nil {
			layer.Bias = halfRoundTrip(n.Bias)
		}

		m.layers = append(m.layers, layer)
		names[n.ID] = n.Name
	}
	if info != nil {
		m.name = fmt.Sprintf("%s-quantized", g.Name)
	}
	return m, nil
}

// quantizeTensor materializes genuinely quantized values plus the
// dequantized layer view.
func quantizeTensor(t *graph.Tensor, bits int) (*QuantTensor, *graph.Tensor) {
	th := thresholds.WeightThreshold(t.Data)
	values, scale := thresholds.QuantizeSymmetricInt8(t.Data, th)
	qt := &QuantTensor{
		Shape:  append([]int{}, t.Shape...),
		Values: values,
		Scale:  scale,
		Bits:   bits,
	}
	deq := graph.NewTensor(t.Shape...)
	fake := thresholds.QuantizeSymmetric(t.Data, th, bits)
	copy(deq.Data, fake)
	return qt, deq
}

// halfRoundTrip stores a tensor at float16 precision.
func halfRoundTrip(t *graph.Tensor) *graph.Tensor {
	out := graph.NewTensor(t.Shape...)
	for i, v := range t.Data {
		out.Data[i] = float16.Fromfloat32(v).Float32()
	}
	return out
}
