package graph

import (
	"errors"
	"reflect"
	"testing"
)

func mustAdd(t *testing.T, g *Graph, specs []NodeSpec) {
	t.Helper()
	if err := g.AddSubgraph(specs); err != nil {
		t.Fatalf("AddSubgraph: %v", err)
	}
}

func TestTopologicalOrder_DependenciesFirst(t *testing.T) {
	g := New()
	mustAdd(t, g, []NodeSpec{
		{Name: "A", Description: "root"},
		{Name: "B", Description: "needs A", Dependencies: []string{"A"}},
		{Name: "C", Description: "needs A", Dependencies: []string{"A"}},
	})

	order, err := g.TopologicalOrder()
	if err != nil {
		t.Fatalf("order error: %v", err)
	}
	if len(order) != 3 {
		t.Fatalf("expected 3 nodes in order, got %d", len(order))
	}
	if order[0] != "A" {
		t.Errorf("A must come first, got %v", order)
	}

	// Ties are broken by insertion order, so the result is exact.
	if !reflect.DeepEqual(order, []string{"A", "B", "C"}) {
		t.Errorf("expected [A B C], got %v", order)
	}
}

func TestTopologicalOrder_Deterministic(t *testing.T) {
	g := New()
	mustAdd(t, g, []NodeSpec{
		{Name: "setup"},
		{Name: "left", Dependencies: []string{"setup"}},
		{Name: "right", Dependencies: []string{"setup"}},
		{Name: "join", Dependencies: []string{"left", "right"}},
	})

	first, err := g.TopologicalOrder()
	if err != nil {
		t.Fatalf("order error: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := g.TopologicalOrder()
		if err != nil {
			t.Fatalf("order error: %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("order not deterministic: %v vs %v", first, again)
		}
	}
	if !reflect.DeepEqual(first, []string{"setup", "left", "right", "join"}) {
		t.Errorf("expected insertion-order ties, got %v", first)
	}
}

func TestTopologicalOrder_SkipsCompleted(t *testing.T) {
	g := New()
	mustAdd(t, g, []NodeSpec{
		{Name: "A"},
		{Name: "B", Dependencies: []string{"A"}},
		{Name: "C", Dependencies: []string{"A"}},
	})

	node, _ := g.Node("A")
	node.MarkDone("done-output")

	order, err := g.TopologicalOrder()
	if err != nil {
		t.Fatalf("order error: %v", err)
	}
	if !reflect.DeepEqual(order, []string{"B", "C"}) {
		t.Errorf("completed dependency should be dropped, got %v", order)
	}
}

func TestTopologicalOrder_CycleReported(t *testing.T) {
	g := New()
	mustAdd(t, g, []NodeSpec{
		{Name: "A", Dependencies: []string{"B"}},
		{Name: "B", Dependencies: []string{"A"}},
		{Name: "C"},
	})

	order, err := g.TopologicalOrder()
	if !errors.Is(err, ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}
	// The acyclic part is still ordered so the caller can see how far
	// scheduling got.
	if len(order) != 1 || order[0] != "C" {
		t.Errorf("expected partial order [C], got %v", order)
	}
}

func TestTopologicalOrder_CycleAmongPendingOnly(t *testing.T) {
	g := New()
	mustAdd(t, g, []NodeSpec{
		{Name: "A", Dependencies: []string{"B"}},
		{Name: "B", Dependencies: []string{"A"}},
	})

	// Completing one side of the cycle unblocks the other.
	node, _ := g.Node("B")
	node.MarkDone("")

	order, err := g.TopologicalOrder()
	if err != nil {
		t.Fatalf("expected no cycle once B is complete, got %v", err)
	}
	if !reflect.DeepEqual(order, []string{"A"}) {
		t.Errorf("expected [A], got %v", order)
	}
}

func TestExtendFrom_SplicesBeforeAnchor(t *testing.T) {
	g := New()
	mustAdd(t, g, []NodeSpec{
		{Name: "A"},
		{Name: "B", Dependencies: []string{"A"}},
	})

	err := g.ExtendFrom("B", []NodeSpec{
		{Name: "X"},
		{Name: "Y", Dependencies: []string{"X"}},
	})
	if err != nil {
		t.Fatalf("ExtendFrom: %v", err)
	}

	deps := g.Dependencies("B")
	found := false
	for _, d := range deps {
		if d == "Y" {
			found = true
		}
	}
	if !found {
		t.Errorf("B should depend on last-inserted node Y, deps: %v", deps)
	}

	order, err := g.TopologicalOrder()
	if err != nil {
		t.Fatalf("order error: %v", err)
	}
	pos := make(map[string]int, len(order))
	for i, name := range order {
		pos[name] = i
	}
	if !(pos["X"] < pos["Y"] && pos["Y"] < pos["B"]) {
		t.Errorf("X then Y must precede B, got %v", order)
	}
}

func TestExtendFrom_UnknownAnchor(t *testing.T) {
	g := New()
	mustAdd(t, g, []NodeSpec{{Name: "A"}})

	err := g.ExtendFrom("missing", []NodeSpec{{Name: "X"}})
	if err == nil {
		t.Error("expected error for unknown anchor")
	}
}

func TestAddSubgraph_UnknownDependencyRejected(t *testing.T) {
	g := New()
	err := g.AddSubgraph([]NodeSpec{
		{Name: "A", Dependencies: []string{"ghost"}},
	})
	if err == nil {
		t.Fatal("expected error for unknown dependency")
	}
	if g.Len() != 0 {
		t.Errorf("failed insertion must not mutate the graph, have %d nodes", g.Len())
	}
}

func TestAddSubgraph_ForwardReferenceWithinBatch(t *testing.T) {
	g := New()
	// "first" depends on "second", named later in the same insertion.
	err := g.AddSubgraph([]NodeSpec{
		{Name: "first", Dependencies: []string{"second"}},
		{Name: "second"},
	})
	if err != nil {
		t.Fatalf("same-batch reference should be accepted: %v", err)
	}

	order, err := g.TopologicalOrder()
	if err != nil {
		t.Fatalf("order error: %v", err)
	}
	if !reflect.DeepEqual(order, []string{"second", "first"}) {
		t.Errorf("expected [second first], got %v", order)
	}
}

func TestAddSubgraph_DuplicateInBatchRejected(t *testing.T) {
	g := New()
	err := g.AddSubgraph([]NodeSpec{
		{Name: "A"},
		{Name: "A"},
	})
	if err == nil {
		t.Error("expected error for duplicate name in one insertion")
	}
}

func TestAddSubgraph_ReinsertPreservesCompletion(t *testing.T) {
	g := New()
	mustAdd(t, g, []NodeSpec{{Name: "A", Description: "original"}})

	node, _ := g.Node("A")
	node.MarkDone("kept-value")

	mustAdd(t, g, []NodeSpec{{Name: "A", Description: "refreshed"}})

	node, _ = g.Node("A")
	if !node.Done {
		t.Error("re-insertion must not reset completion")
	}
	if node.ReturnValue != "kept-value" {
		t.Errorf("re-insertion must not clear the return value, got %q", node.ReturnValue)
	}
	if node.Description != "refreshed" {
		t.Errorf("re-insertion should refresh the description, got %q", node.Description)
	}
}

func TestMarkDone_EmptyValueKeepsPrevious(t *testing.T) {
	g := New()
	mustAdd(t, g, []NodeSpec{{Name: "A"}})

	node, _ := g.Node("A")
	node.MarkDone("first")
	node.MarkDone("")

	if node.ReturnValue != "first" {
		t.Errorf("empty capture should keep the previous value, got %q", node.ReturnValue)
	}
}

func TestNames_InsertionOrder(t *testing.T) {
	g := New()
	mustAdd(t, g, []NodeSpec{{Name: "z"}, {Name: "a"}})
	mustAdd(t, g, []NodeSpec{{Name: "m"}})

	if got := g.Names(); !reflect.DeepEqual(got, []string{"z", "a", "m"}) {
		t.Errorf("expected insertion order, got %v", got)
	}
}
