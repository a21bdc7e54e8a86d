// MODUL: analyzer_test
// ZWECK: Tests fuer die Aehnlichkeits-Analyse
// ABHAENGIGKEITEN: testing, adapter (Referenz-Executor), calibration, graph
package analyzer

import (
	"errors"
	"math"
	"testing"

	"github.com/7blacky7/quantkit/adapter"
	"github.com/7blacky7/quantkit/calibration"
	"github.com/7blacky7/quantkit/graph"
)

func linearGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New("analyzer-test")
	in := g.MustAdd(&graph.Node{Name: "x", Kind: graph.OpInput})
	g.MustAdd(&graph.Node{
		Name: "fc", Kind: graph.OpLinear, Inputs: []graph.NodeID{in},
		Weights:     &graph.Tensor{Shape: []int{2, 2}, Data: []float32{1, 0.5, -0.25, 2}},
		Bias:        &graph.Tensor{Shape: []int{2}, Data: []float32{0.1, -0.1}},
		Quantizable: true,
	})
	return g
}

func twoBatches() calibration.DataGenerator {
	return calibration.FromSlice([]calibration.Batch{
		{&graph.Tensor{Shape: []int{1, 2}, Data: []float32{1, 2}}},
		{&graph.Tensor{Shape: []int{1, 2}, Data: []float32{-0.5, 3}}},
	})
}

// Identische Graphen liefern Kosinus 1 und MSE 0
func TestCompareIdenticalGraphs(t *testing.T) {
	fw, err := adapter.Default()
	if err != nil {
		t.Fatal(err)
	}

	g := linearGraph(t)
	reports, err := Compare(g, g.DeepCopy(), twoBatches(), fw.Executor())
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 1 {
		t.Fatalf("got %d reports, want 1", len(reports))
	}
	if reports[0].Name != "fc" {
		t.Errorf("report name = %q, want fc", reports[0].Name)
	}
	if math.Abs(reports[0].Cosine-1) > 1e-9 || reports[0].MSE != 0 {
		t.Errorf("cosine = %v, mse = %v, want 1 and 0", reports[0].Cosine, reports[0].MSE)
	}
}

// Gestoerte Gewichte senken die Aehnlichkeit messbar, ohne Fehler
func TestComparePerturbedWeights(t *testing.T) {
	fw, err := adapter.Default()
	if err != nil {
		t.Fatal(err)
	}

	baseline := linearGraph(t)
	perturbed := baseline.DeepCopy()
	for _, n := range perturbed.Nodes() {
		if n.Weights == nil {
			continue
		}
		for i := range n.Weights.Data {
			n.Weights.Data[i] += 0.05
		}
	}

	reports, err := Compare(baseline, perturbed, twoBatches(), fw.Executor())
	if err != nil {
		t.Fatal(err)
	}
	if reports[0].MSE <= 0 {
		t.Errorf("MSE = %v, want > 0 for perturbed weights", reports[0].MSE)
	}
	if reports[0].Cosine >= 1 || reports[0].Cosine < 0.9 {
		t.Errorf("cosine = %v, want in [0.9, 1)", reports[0].Cosine)
	}
	if mc := MeanCosine(reports); mc != reports[0].Cosine {
		t.Errorf("MeanCosine = %v, want %v", mc, reports[0].Cosine)
	}
}

// Ohne quantisierbare Punkte gibt es nichts zu vergleichen
func TestCompareNoPoints(t *testing.T) {
	fw, err := adapter.Default()
	if err != nil {
		t.Fatal(err)
	}

	g := graph.New("analyzer-test")
	g.MustAdd(&graph.Node{Name: "x", Kind: graph.OpInput})

	if _, err := Compare(g, g.DeepCopy(), twoBatches(), fw.Executor()); !errors.Is(err, ErrNoComparePoints) {
		t.Fatalf("err = %v, want ErrNoComparePoints", err)
	}
}

// Leerer Generator meldet fehlende Daten
func TestCompareEmptyGenerator(t *testing.T) {
	fw, err := adapter.Default()
	if err != nil {
		t.Fatal(err)
	}

	g := linearGraph(t)
	empty := calibration.FromSlice(nil)
	if _, err := Compare(g, g.DeepCopy(), empty, fw.Executor()); !errors.Is(err, calibration.ErrNoData) {
		t.Fatalf("err = %v, want calibration.ErrNoData", err)
	}
}
