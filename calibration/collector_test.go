// MODUL: collector_test
// ZWECK: Tests fuer Statistik-Akkumulator und Kalibrierungs-Collector
// INPUT: Synthetische Batches und MLP-Graphen
// OUTPUT: Testresultate
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: testing, graph, adapter, rewrite, tpc

package calibration

import (
	"errors"
	"testing"

	"github.com/7blacky7/quantkit/adapter"
	"github.com/7blacky7/quantkit/graph"
	"github.com/7blacky7/quantkit/rewrite"
	"github.com/7blacky7/quantkit/tpc"
)

func TestStatsMinMaxAndCount(t *testing.T) {
	s := NewStats(8)
	if err := s.Update([]float32{-2, 0.5, 3}); err != nil {
		t.Fatal(err)
	}
	if s.Min != -2 || s.Max != 3 || s.Count != 3 {
		t.Errorf("Min/Max/Count = %v/%v/%v", s.Min, s.Max, s.Count)
	}
	if s.AbsMax() != 3 {
		t.Errorf("AbsMax = %v, erwartet 3", s.AbsMax())
	}
}

func TestStatsGrowPreservesCounts(t *testing.T) {
	s := NewStats(8)
	s.Update([]float32{0.1, -0.1})
	s.Update([]float32{100}) // erzwingt mehrfaches Verdoppeln
	bins, limit := s.Histogram()

	var total float64
	for _, b := range bins {
		total += b
	}
	if total != 3 {
		t.Errorf("Histogramm-Summe = %v, erwartet 3", total)
	}
	if limit < 100 {
		t.Errorf("Limit = %v, deckt 100 nicht ab", limit)
	}
}

func TestStatsFinalizeFreezes(t *testing.T) {
	s := NewStats(8)
	s.Update([]float32{1})
	s.Finalize()
	if err := s.Update([]float32{2}); !errors.Is(err, ErrFinalized) {
		t.Fatalf("err = %v, erwartet ErrFinalized", err)
	}
}

// calibGraph baut einen annotierten input -> linear -> relu Graphen
func calibGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New("mlp")
	in := g.MustAdd(&graph.Node{Name: "x", Kind: graph.OpInput})
	fc := g.MustAdd(&graph.Node{
		Name: "fc", Kind: graph.OpLinear, Inputs: []graph.NodeID{in},
		Weights: &graph.Tensor{Shape: []int{2, 2}, Data: []float32{1, -1, 0.5, 0.5}},
	})
	g.MustAdd(&graph.Node{Name: "act", Kind: graph.OpReLU, Inputs: []graph.NodeID{fc}})
	if err := rewrite.Run(g, tpc.Default(), nil); err != nil {
		t.Fatal(err)
	}
	return g
}

func testBatches() []Batch {
	return []Batch{
		{&graph.Tensor{Shape: []int{1, 2}, Data: []float32{1, 2}}},
		{&graph.Tensor{Shape: []int{1, 2}, Data: []float32{-3, 0.5}}},
	}
}

func TestCollectFinalizesAllQuantizable(t *testing.T) {
	g := calibGraph(t)
	fw, _ := adapter.Default()

	stats, err := Collect(g, FromSlice(testBatches()), fw.Executor(), 64)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(stats.Stats) != 2 {
		t.Fatalf("Stats fuer %d Nodes, erwartet 2 (fc, act)", len(stats.Stats))
	}
	if stats.Batches != 2 {
		t.Fatalf("Batches = %d, erwartet 2", stats.Batches)
	}
	for id, s := range stats.Stats {
		if !s.Finalized() {
			t.Errorf("Stats fuer Node %d nicht finalisiert", id)
		}
		if s.Count == 0 {
			t.Errorf("Stats fuer Node %d leer", id)
		}
	}
}

func TestCollectDeterministicAcrossReplay(t *testing.T) {
	g := calibGraph(t)
	fw, _ := adapter.Default()
	gen := FromSlice(testBatches())

	first, err := Collect(g, gen, fw.Executor(), 64)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Collect(g, gen, fw.Executor(), 64)
	if err != nil {
		t.Fatal(err)
	}
	for id, s := range first.Stats {
		if !s.Equal(second.Stats[id]) {
			t.Errorf("Stats fuer Node %d weichen zwischen Replays ab", id)
		}
	}
}

func TestCollectEmptyGeneratorFails(t *testing.T) {
	g := calibGraph(t)
	fw, _ := adapter.Default()
	_, err := Collect(g, FromSlice(nil), fw.Executor(), 64)
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("err = %v, erwartet ErrNoData", err)
	}
}
