// MODUL: runner_test
// ZWECK: Tests fuer Core Runner Orchestrierung und Konfig-Validierung
// INPUT: In-memory Module mit Linear/BN/ReLU Layern
// OUTPUT: Testresultate
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: testing, adapter, calibration, graph, mixedprecision, tpc

package core

import (
	"errors"
	"testing"

	"github.com/7blacky7/quantkit/adapter"
	"github.com/7blacky7/quantkit/calibration"
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
				Weights: &graph.Tensor{Shape: []int{2, 2}, Data: []float32{0.5, -0.5, 1, -1}},
				Bias:    &graph.Tensor{Shape: []int{2}, Data: []float32{0.1, -0.1}},
			},
			{Name: "act", Kind: graph.OpReLU, Inputs: []string{"fc1"}},
		},
	}
}

func batches() calibration.DataGenerator {
	return calibration.FromSlice([]calibration.Batch{
		{&graph.Tensor{Shape: []int{1, 2}, Data: []float32{1, 2}}},
		{&graph.Tensor{Shape: []int{1, 2}, Data: []float32{-1, 0.5}}},
	})
}

func TestRunUniformBitwidths(t *testing.T) {
	fw, err := adapter.Setup()
	if err != nil {
		t.Fatal(err)
	}
	res, err := Run(mlp(), batches(), nil, fw, tpc.Default(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if err := res.Graph.CheckAcyclic(); err != nil {
		t.Errorf("Graph nicht azyklisch: %v", err)
	}
	// Alle quantisierbaren Nodes bekommen die einzige Config: 8 bit
	count := 0
	res.BitWidths.All(func(id graph.NodeID, c graph.PrecisionConfig) bool {
		count++
		n := res.Graph.Node(id)
		if n.Params.Bits != 8 {
			t.Errorf("Node %q: Bits = %d, erwartet 8", n.Name, n.Params.Bits)
		}
		if !n.Params.Valid() {
			t.Errorf("Node %q: ungueltige Parameter %+v", n.Name, n.Params)
		}
		return true
	})
	if count != 2 {
		t.Errorf("Konfigurierte Nodes = %d, erwartet 2", count)
	}
	if res.Scheduling.Strategy != "uniform" {
		t.Errorf("Strategy = %q, erwartet uniform", res.Scheduling.Strategy)
	}
}

func TestRunRejectsWrongMixedPrecisionType(t *testing.T) {
	fw, _ := adapter.Setup()
	cfg := DefaultCoreConfig()
	cfg.MixedPrecision = "aggressive" // falscher Typ

	_, err := Run(mlp(), batches(), cfg, fw, tpc.Default(), &mixedprecision.ResourceUtilization{WeightsMemory: 1 << 20})
	if !errors.Is(err, ErrBadMixedPrecisionConfig) {
		t.Fatalf("err = %v, erwartet ErrBadMixedPrecisionConfig", err)
	}
}

// Ohne Budget keine Suche: Mixed Precision konfiguriert, Budget nil
// ergibt die uniforme Zuweisung der breitesten Kandidaten
func TestRunMixedPrecisionWithoutBudgetIsUniform(t *testing.T) {
	fw, _ := adapter.Setup()
	cfg := DefaultCoreConfig()
	cfg.MixedPrecision = &MixedPrecisionConfig{}

	res, err := Run(mlp(), batches(), cfg, fw, tpc.Default(), nil)
	if err != nil {
		t.Fatalf("Run ohne Budget: %v", err)
	}
	if res.Scheduling.Strategy != "uniform" {
		t.Errorf("Strategy = %q, erwartet uniform", res.Scheduling.Strategy)
	}
	res.BitWidths.All(func(id graph.NodeID, _ graph.PrecisionConfig) bool {
		if bits := res.Graph.Node(id).Params.Bits; bits != 8 {
			t.Errorf("Node %d: Bits = %d, erwartet 8", id, bits)
		}
		return true
	})
}

func TestRunEmptyGeneratorFailsBeforeParams(t *testing.T) {
	fw, _ := adapter.Setup()
	empty := calibration.FromSlice(nil)
	_, err := Run(mlp(), empty, nil, fw, tpc.Default(), nil)
	if !errors.Is(err, calibration.ErrNoData) {
		t.Fatalf("err = %v, erwartet ErrNoData", err)
	}
}

func TestUserInformationSummarizesRun(t *testing.T) {
	fw, _ := adapter.Setup()
	res, err := Run(mlp(), batches(), nil, fw, tpc.Default(), nil)
	if err != nil {
		t.Fatal(err)
	}
	info := NewUserInformation(res)
	if info.RunID == "" {
		t.Error("RunID leer")
	}
	if len(info.Assignments) != 2 {
		t.Errorf("Assignments = %d, erwartet 2", len(info.Assignments))
	}
	for _, a := range info.Assignments {
		if a.Bits != 8 || a.Threshold <= 0 {
			t.Errorf("Assignment %+v unplausibel", a)
		}
	}
}
