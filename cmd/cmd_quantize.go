// cmd_quantize.go - Quantize Command
// Hauptfunktionen: QuantizeHandler, loadManifest, loadCalibration
package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/7blacky7/quantkit/adapter"
	"github.com/7blacky7/quantkit/calibration"
	"github.com/7blacky7/quantkit/core"
	"github.com/7blacky7/quantkit/envconfig"
	"github.com/7blacky7/quantkit/export"
	"github.com/7blacky7/quantkit/graph"
	"github.com/7blacky7/quantkit/mixedprecision"
	"github.com/7blacky7/quantkit/ptq"
	"github.com/7blacky7/quantkit/thresholds"
)

// ============================================================================
// Manifest-Format
// ============================================================================

// tensorJSON ist die Drahtform eines Tensors im Manifest
type tensorJSON struct {
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

func (t *tensorJSON) tensor() *graph.Tensor {
	if t == nil {
		return nil
	}
	return &graph.Tensor{Shape: t.Shape, Data: t.Data}
}

// layerJSON ist die Drahtform einer Schicht im Manifest
type layerJSON struct {
	Name    string             `json:"name"`
	Kind    string             `json:"kind"`
	Inputs  []string           `json:"inputs,omitempty"`
	Weights *tensorJSON        `json:"weights,omitempty"`
	Bias    *tensorJSON        `json:"bias,omitempty"`
	Attrs   map[string]float64 `json:"attrs,omitempty"`
}

// manifestModule ist ein aus JSON geladenes Modell
type manifestModule struct {
	ModelName   string      `json:"name"`
	ModelLayers []layerJSON `json:"layers"`
}

func (m *manifestModule) Name() string { return m.ModelName }

func (m *manifestModule) Layers() []adapter.Layer {
	layers := make([]adapter.Layer, 0, len(m.ModelLayers))
	for _, l := range m.ModelLayers {
		layers = append(layers, adapter.Layer{
			Name:    l.Name,
			Kind:    graph.OpKind(l.Kind),
			Inputs:  l.Inputs,
			Weights: l.Weights.tensor(),
			Bias:    l.Bias.tensor(),
			Attrs:   l.Attrs,
		})
	}
	return layers
}

// loadManifest laedt ein Modell-Manifest aus einer JSON-Datei
func loadManifest(path string) (*manifestModule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model manifest: %w", err)
	}

	var m manifestModule
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing model manifest %s: %w", path, err)
	}
	if m.ModelName == "" {
		return nil, fmt.Errorf("model manifest %s: missing model name", path)
	}
	return &m, nil
}

// loadCalibration laedt Kalibrierungs-Batches aus einer JSON-Datei
func loadCalibration(path string) (calibration.DataGenerator, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("reading calibration data: %w", err)
	}

	var raw [][]tensorJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, 0, fmt.Errorf("parsing calibration data %s: %w", path, err)
	}

	if limit := int(envconfig.MaxCalibrationBatches()); limit > 0 && len(raw) > limit {
		raw = raw[:limit]
	}

	batches := make([]calibration.Batch, 0, len(raw))
	for _, b := range raw {
		batch := make(calibration.Batch, 0, len(b))
		for i := range b {
			batch = append(batch, b[i].tensor())
		}
		batches = append(batches, batch)
	}
	return calibration.FromSlice(batches), len(batches), nil
}

// ============================================================================
// Handler
// ============================================================================

// QuantizeHandler - Fuehrt die Post-Training-Quantisierung aus
func QuantizeHandler(cmd *cobra.Command, args []string) error {
	module, err := loadManifest(args[0])
	if err != nil {
		return err
	}

	gen, batches, err := loadCalibration(args[1])
	if err != nil {
		return err
	}

	cfg := core.DefaultCoreConfig()

	metric, _ := cmd.Flags().GetString("metric")
	switch metric {
	case "mse":
		cfg.Quantization.Metric = thresholds.MetricMSE
	case "noclipping":
		cfg.Quantization.Metric = thresholds.MetricNoClipping
	default:
		return fmt.Errorf("unknown metric %q (want mse or noclipping)", metric)
	}

	if bins := int(envconfig.HistogramBins()); bins > 0 {
		cfg.Quantization.HistogramBins = bins
	}

	if analyze, _ := cmd.Flags().GetBool("analyze"); analyze {
		cfg.Debug.AnalyzeSimilarity = true
	}

	var budget *mixedprecision.ResourceUtilization
	if mp, _ := cmd.Flags().GetBool("mixed-precision"); mp {
		weights, _ := cmd.Flags().GetInt64("weights-memory")
		activations, _ := cmd.Flags().GetInt64("activation-memory")
		cfg.MixedPrecision = &core.MixedPrecisionConfig{}
		budget = &mixedprecision.ResourceUtilization{
			WeightsMemory:    weights,
			ActivationMemory: activations,
		}
	}

	// Plattformmodell: Flag vor Environment, sonst eingebautes Default
	var capabilities any
	if path, _ := cmd.Flags().GetString("tpc"); path != "" {
		capabilities = path
	} else if path := envconfig.PlatformModel(); path != "" {
		capabilities = path
	}

	quantized, info, err := ptq.PostTrainingQuantization(module, gen, budget, cfg, capabilities)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "quantized %s (%d calibration batches)\n\n", module.Name(), batches)
	printAssignments(info)
	printScheduling(info)

	if out, _ := cmd.Flags().GetString("output"); out != "" {
		if err := writeQuantized(out, quantized); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "\nwrote %s\n", out)
	}

	return nil
}

// ============================================================================
// Report-Ausgabe
// ============================================================================

// printAssignments gibt die Bitbreiten-Tabelle aus
func printAssignments(info *core.UserInformation) {
	var data [][]string
	for _, a := range info.Assignments {
		data = append(data, []string{
			a.Name,
			string(a.Kind),
			strconv.Itoa(a.Bits),
			strconv.FormatFloat(a.Threshold, 'g', -1, 64),
		})
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"LAYER", "KIND", "BITS", "THRESHOLD"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}

// printScheduling gibt die Ressourcen-Zusammenfassung aus
func printScheduling(info *core.UserInformation) {
	s := info.Scheduling
	fmt.Fprintf(os.Stdout, "\nstrategy: %s\n", s.Strategy)
	if s.Strategy != "uniform" {
		fmt.Fprintf(os.Stdout, "search iterations: %d\n", s.Iterations)
		fmt.Fprintf(os.Stdout, "sensitivity loss: %g\n", s.SensitivityLoss)
	}
	fmt.Fprintf(os.Stdout, "weights memory: %d bytes\n", s.WeightsMemory)
	fmt.Fprintf(os.Stdout, "activation peak: %d bytes\n", s.ActivationPeak)
	fmt.Fprintf(os.Stdout, "run id: %s\n", info.RunID)
}

// ============================================================================
// Export-Ausgabe
// ============================================================================

// quantizedJSON ist die Drahtform des quantisierten Modells
type quantizedJSON struct {
	Name    string                         `json:"name"`
	Layers  []layerJSON                    `json:"layers"`
	Tensors map[string]*export.QuantTensor `json:"tensors"`
	Meta    *export.Metadata               `json:"metadata,omitempty"`
}

// writeQuantized schreibt das quantisierte Modell als JSON-Datei
func writeQuantized(path string, m adapter.Module) error {
	out := quantizedJSON{Name: m.Name()}
	for _, l := range m.Layers() {
		jl := layerJSON{
			Name:   l.Name,
			Kind:   string(l.Kind),
			Inputs: l.Inputs,
			Attrs:  l.Attrs,
		}
		if l.Weights != nil {
			jl.Weights = &tensorJSON{Shape: l.Weights.Shape, Data: l.Weights.Data}
		}
		if l.Bias != nil {
			jl.Bias = &tensorJSON{Shape: l.Bias.Shape, Data: l.Bias.Data}
		}
		out.Layers = append(out.Layers, jl)
	}

	if qm, ok := m.(*export.QuantizedModule); ok {
		out.Tensors = qm.QuantTensors()
		out.Meta = qm.Metadata()
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding quantized model: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
