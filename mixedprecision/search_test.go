// MODUL: search_test
// ZWECK: Tests fuer die budget-beschraenkte Bitbreiten-Suche
// INPUT: Annotierte Graphen mit 8/4/2-bit Kandidaten
// OUTPUT: Testresultate
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: testing, graph, calibration, adapter, rewrite, tpc

package mixedprecision

import (
	"errors"
	"testing"

	"github.com/7blacky7/quantkit/adapter"
	"github.com/7blacky7/quantkit/calibration"
	"github.com/7blacky7/quantkit/graph"
	"github.com/7blacky7/quantkit/rewrite"
	"github.com/7blacky7/quantkit/tpc"
)

// mpSpec erlaubt 8 und 4 bit fuer linear, nur 8 bit fuer relu.
func mpSpec(t *testing.T) *tpc.CapabilitySpec {
	t.Helper()
	int8sym := tpc.PrecisionConfig{WeightBits: 8, ActivationBits: 8, Symmetric: true}
	int4sym := tpc.PrecisionConfig{WeightBits: 4, ActivationBits: 8, Symmetric: true}
	int2sym := tpc.PrecisionConfig{WeightBits: 2, ActivationBits: 8, Symmetric: true}
	spec, err := tpc.New("mp-npu", map[string][]tpc.PrecisionConfig{
		string(graph.OpLinear): {int8sym, int4sym, int2sym},
		string(graph.OpReLU):   {int8sym},
	}, false)
	if err != nil {
		t.Fatal(err)
	}
	return spec
}

// mpGraph: zwei Linear-Layer mit je 64 Gewichten plus ReLU
func mpGraph(t *testing.T) (*graph.Graph, *calibration.Result) {
	t.Helper()
	g := graph.New("mp")
	in := g.MustAdd(&graph.Node{Name: "x", Kind: graph.OpInput})

	w := make([]float32, 64)
	for i := range w {
		w[i] = float32(i%16)/16 - 0.5
	}
	fc1 := g.MustAdd(&graph.Node{
		Name: "fc1", Kind: graph.OpLinear, Inputs: []graph.NodeID{in},
		Weights: &graph.Tensor{Shape: []int{8, 8}, Data: append([]float32{}, w...)},
	})
	act := g.MustAdd(&graph.Node{Name: "act", Kind: graph.OpReLU, Inputs: []graph.NodeID{fc1}})
	g.MustAdd(&graph.Node{
		Name: "fc2", Kind: graph.OpLinear, Inputs: []graph.NodeID{act},
		Weights: &graph.Tensor{Shape: []int{8, 8}, Data: append([]float32{}, w...)},
	})

	if err := rewrite.Run(g, mpSpec(t), nil); err != nil {
		t.Fatal(err)
	}

	fw, _ := adapter.Default()
	batches := []calibration.Batch{
		{&graph.Tensor{Shape: []int{1, 8}, Data: []float32{1, -1, 0.5, -0.5, 2, -2, 0.1, -0.1}}},
		{&graph.Tensor{Shape: []int{1, 8}, Data: []float32{0.3, 0.7, -0.3, -0.7, 1.1, -1.1, 0, 0.9}}},
	}
	stats, err := calibration.Collect(g, calibration.FromSlice(batches), fw.Executor(), 128)
	if err != nil {
		t.Fatal(err)
	}
	return g, stats
}

func TestSearchRespectsWeightBudget(t *testing.T) {
	g, stats := mpGraph(t)

	// 2x64 Gewichte: 8 bit = 128 Bytes gesamt. Budget 96 erzwingt
	// mindestens eine Abstufung auf 4 bit.
	budget := ResourceUtilization{WeightsMemory: 96}
	cfg, info, err := Search(g, stats, budget)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if info.WeightsMemory > budget.WeightsMemory {
		t.Errorf("WeightsMemory %d > Budget %d", info.WeightsMemory, budget.WeightsMemory)
	}
	if err := Validate(g, stats, cfg, budget); err != nil {
		t.Errorf("Validate: %v", err)
	}
	if info.Iterations == 0 {
		t.Error("Suche hat keine Abstufung vorgenommen")
	}
}

func TestSearchDeterministic(t *testing.T) {
	g, stats := mpGraph(t)
	budget := ResourceUtilization{WeightsMemory: 96}

	a, _, err := Search(g, stats, budget)
	if err != nil {
		t.Fatal(err)
	}
	b, _, err := Search(g, stats, budget)
	if err != nil {
		t.Fatal(err)
	}

	a.All(func(id graph.NodeID, ca graph.PrecisionConfig) bool {
		cb, ok := b.Get(id)
		if !ok || ca != cb {
			t.Errorf("Node %d: %+v vs %+v", id, ca, cb)
		}
		return true
	})
}

func TestSearchInfeasibleBudget(t *testing.T) {
	g, stats := mpGraph(t)

	// Minimum sind 2 bit pro Gewicht: 2*64*2/8 = 32 Bytes, dazu der
	// nicht abstufbare ReLU. Budget 8 ist unerfuellbar.
	_, _, err := Search(g, stats, ResourceUtilization{WeightsMemory: 8})
	if !errors.Is(err, ErrInfeasible) {
		t.Fatalf("err = %v, erwartet ErrInfeasible", err)
	}
}

func TestSearchUnconstrainedKeepsWidest(t *testing.T) {
	g, stats := mpGraph(t)
	cfg, info, err := Search(g, stats, ResourceUtilization{})
	if err != nil {
		t.Fatal(err)
	}
	if info.Iterations != 0 {
		t.Errorf("Iterations = %d, erwartet 0 ohne Budget", info.Iterations)
	}
	cfg.All(func(id graph.NodeID, c graph.PrecisionConfig) bool {
		if c.WeightBits != 8 {
			t.Errorf("Node %d: WeightBits = %d, erwartet 8", id, c.WeightBits)
		}
		return true
	})
}

func TestBitwidthConfigOrdered(t *testing.T) {
	cfg := NewBitwidthConfig()
	cfg.Set(3, graph.PrecisionConfig{WeightBits: 8})
	cfg.Set(1, graph.PrecisionConfig{WeightBits: 4})

	var order []graph.NodeID
	cfg.All(func(id graph.NodeID, _ graph.PrecisionConfig) bool {
		order = append(order, id)
		return true
	})
	if len(order) != 2 || order[0] != 3 || order[1] != 1 {
		t.Errorf("Reihenfolge = %v, erwartet Einfuege-Reihenfolge [3 1]", order)
	}
}
