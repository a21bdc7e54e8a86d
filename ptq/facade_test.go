// MODUL: facade_test
// ZWECK: End-to-End Tests fuer die PTQ-Facade und den Korrektur-Pass
// INPUT: In-memory Module, zaehlende Daten-Generatoren
// OUTPUT: Testresultate
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: testing, adapter, calibration, core, export, graph,
//                  mixedprecision, tpc

package ptq

import (
	"errors"
	"iter"
	"math"
	"testing"

	"github.com/7blacky7/quantkit/adapter"
	"github.com/7blacky7/quantkit/calibration"
	"github.com/7blacky7/quantkit/core"
	"github.com/7blacky7/quantkit/export"
	"github.com/7blacky7/quantkit/graph"
	"github.com/7blacky7/quantkit/mixedprecision"
	"github.com/7blacky7/quantkit/tpc"
)

type testModule struct {
	name   string
	layers []adapter.Layer
}

func (m *testModule) Name() string            { return m.name }
func (m *testModule) Layers() []adapter.Layer { return m.layers }

func mlp() *testModule {
	return &testModule{
		name: "mlp",
		layers: []adapter.Layer{
			{Name: "x", Kind: graph.OpInput},
			{
				Name: "fc1", Kind: graph.OpLinear, Inputs: []string{"x"},
				Weights: &graph.Tensor{Shape: []int{2, 2}, Data: []float32{0.51, -0.23, 0.87, -0.66}},
				Bias:    &graph.Tensor{Shape: []int{2}, Data: []float32{0.1, -0.1}},
			},
			{Name: "act", Kind: graph.OpReLU, Inputs: []string{"fc1"}},
		},
	}
}

// countingGenerator zaehlt, wie oft Batches konsumiert wurden.
func countingGenerator(batches []calibration.Batch, consumed *int) calibration.DataGenerator {
	return func() iter.Seq[calibration.Batch] {
		return func(yield func(calibration.Batch) bool) {
			for _, b := range batches {
				*consumed++
				if !yield(b) {
					return
				}
			}
		}
	}
}

func sampleBatches() []calibration.Batch {
	return []calibration.Batch{
		{&graph.Tensor{Shape: []int{1, 2}, Data: []float32{1, 0.5}}},
		{&graph.Tensor{Shape: []int{1, 2}, Data: []float32{-0.7, 1.3}}},
	}
}

func TestBypassReturnsOriginalUnchanged(t *testing.T) {
	consumed := 0
	gen := countingGenerator(sampleBatches(), &consumed)
	m := mlp()

	cfg := core.DefaultCoreConfig()
	cfg.Debug.Bypass = true

	got, info, err := PostTrainingQuantization(m, gen, nil, cfg, nil)
	if err != nil {
		t.Fatalf("PostTrainingQuantization: %v", err)
	}
	if got != adapter.Module(m) {
		t.Error("Bypass liefert nicht das Original-Modul")
	}
	if info != nil {
		t.Error("Bypass liefert UserInformation, erwartet nil")
	}
	if consumed != 0 {
		t.Errorf("Bypass konsumierte %d Batches, erwartet 0", consumed)
	}
}

func TestEndToEndUniform8Bit(t *testing.T) {
	m := mlp()
	model, info, err := PostTrainingQuantization(m, calibration.FromSlice(sampleBatches()), nil, nil, nil)
	if err != nil {
		t.Fatalf("PostTrainingQuantization: %v", err)
	}
	if info == nil {
		t.Fatal("keine UserInformation")
	}

	// Alle quantisierbaren Nodes: 8 bit, Zweierpotenz-Threshold
	for _, a := range info.Assignments {
		if a.Bits != 8 {
			t.Errorf("Node %q: Bits = %d, erwartet 8", a.Name, a.Bits)
		}
		if exp := math.Log2(a.Threshold); a.Threshold <= 0 || exp != math.Trunc(exp) {
			t.Errorf("Node %q: Threshold %v ist keine Zweierpotenz", a.Name, a.Threshold)
		}
	}

	qm, ok := model.(*export.QuantizedModule)
	if !ok {
		t.Fatalf("Export-Typ %T, erwartet *export.QuantizedModule", model)
	}
	if _, ok := qm.QuantTensors()["fc1"]; !ok {
		t.Error("fc1 wurde nicht materialisiert")
	}
	// Default-Plattform verlangt Metadaten-Einbettung
	meta := qm.Metadata()
	if meta == nil || meta.RunID != info.RunID {
		t.Errorf("Metadaten fehlen oder RunID abweichend: %+v", meta)
	}

	// Das exportierte Modul bleibt im Host-Framework ausfuehrbar
	g, err := adapter.Adapt(qm)
	if err != nil {
		t.Fatalf("Adapt des Exports: %v", err)
	}
	fw, _ := adapter.Default()
	if _, err := fw.Executor().Run(g, []*graph.Tensor{{Shape: []int{1, 2}, Data: []float32{1, 1}}}); err != nil {
		t.Errorf("Export nicht ausfuehrbar: %v", err)
	}
}

func TestInfeasibleBudgetNothingExported(t *testing.T) {
	cfg := core.DefaultCoreConfig()
	cfg.MixedPrecision = &core.MixedPrecisionConfig{}

	int8sym := tpc.PrecisionConfig{WeightBits: 8, ActivationBits: 8, Symmetric: true}
	int4sym := tpc.PrecisionConfig{WeightBits: 4, ActivationBits: 8, Symmetric: true}
	spec, err := tpc.New("mp", map[string][]tpc.PrecisionConfig{
		string(graph.OpLinear): {int8sym, int4sym},
		string(graph.OpReLU):   {int8sym},
	}, false)
	if err != nil {
		t.Fatal(err)
	}

	model, info, err := PostTrainingQuantization(mlp(), calibration.FromSlice(sampleBatches()),
		&mixedprecision.ResourceUtilization{WeightsMemory: 1}, cfg, spec)
	if !errors.Is(err, mixedprecision.ErrInfeasible) {
		t.Fatalf("err = %v, erwartet ErrInfeasible", err)
	}
	if model != nil || info != nil {
		t.Error("bei Infeasibility darf nichts exportiert werden")
	}
}

// Ohne Budget laeuft keine Suche: Mixed Precision konfiguriert plus
// nil-Budget quantisiert uniform statt zu scheitern
func TestNilBudgetDisablesSearch(t *testing.T) {
	cfg := core.DefaultCoreConfig()
	cfg.MixedPrecision = &core.MixedPrecisionConfig{}

	model, info, err := PostTrainingQuantization(mlp(), calibration.FromSlice(sampleBatches()),
		nil, cfg, nil)
	if err != nil {
		t.Fatalf("PostTrainingQuantization: %v", err)
	}
	if model == nil || info == nil {
		t.Fatal("uniformer Lauf muss Modell und UserInformation liefern")
	}
	if info.Scheduling.Strategy != "uniform" {
		t.Errorf("Strategy = %q, erwartet uniform", info.Scheduling.Strategy)
	}
	for _, a := range info.Assignments {
		if a.Bits != 8 {
			t.Errorf("Node %q: Bits = %d, erwartet 8", a.Name, a.Bits)
		}
	}
}

func TestEmptyGeneratorFails(t *testing.T) {
	_, _, err := PostTrainingQuantization(mlp(), calibration.FromSlice(nil), nil, nil, nil)
	if !errors.Is(err, calibration.ErrNoData) {
		t.Fatalf("err = %v, erwartet ErrNoData", err)
	}
}

func TestCorrectCompensatesMeanShift(t *testing.T) {
	// Graph mit grobem 2-bit Raster: deutliche Gewichtsabweichung
	g := graph.New("m")
	in := g.MustAdd(&graph.Node{Name: "x", Kind: graph.OpInput})
	fc := g.MustAdd(&graph.Node{
		Name: "fc", Kind: graph.OpLinear, Inputs: []graph.NodeID{in},
		Weights:     &graph.Tensor{Shape: []int{1, 2}, Data: []float32{0.6, 0.7}},
		Bias:        &graph.Tensor{Shape: []int{1}, Data: []float32{0}},
		Quantizable: true,
	})
	g.Node(fc).Params = graph.QuantParams{Threshold: 1, Bits: 2, Symmetric: true}

	batches := []calibration.Batch{
		{&graph.Tensor{Shape: []int{1, 2}, Data: []float32{1, 1}}},
		{&graph.Tensor{Shape: []int{1, 2}, Data: []float32{3, 1}}},
	}
	fw, _ := adapter.Default()

	// Erwartete Ausgabe vor Korrektur (float): W*mean + b
	mean := []float32{2, 1}
	want := 0.6*mean[0] + 0.7*mean[1]

	if err := Correct(g, calibration.FromSlice(batches), fw.Executor()); err != nil {
		t.Fatalf("Correct: %v", err)
	}

	// Quantisierte Gewichte plus korrigierter Bias treffen im Mittel
	// die Float-Ausgabe
	qg := QuantizeGraphWeights(g)
	var got float32
	qfc := qg.Node(fc)
	for i := range mean {
		got += qfc.Weights.Data[i] * mean[i]
	}
	got += qfc.Bias.Data[0]

	if diff := math.Abs(float64(got - want)); diff > 1e-5 {
		t.Errorf("Mittlere Ausgabe %v, erwartet %v (diff %v)", got, want, diff)
	}

	// Topologie und Parameter unveraendert
	if g.Node(fc).Params.Bits != 2 || g.Len() != 2 {
		t.Error("Korrektur hat Topologie oder Parameter veraendert")
	}
}
