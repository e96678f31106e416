package graph_test

import (
	"errors"
	"testing"

	"pulseboard/internal/graph"
)

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

func TestAffectedTopologicalOrder(t *testing.T) {
	g := graph.New()

	// A depends on B, B depends on raw source C.
	if err := g.Register("B", []string{"C"}); err != nil {
		t.Fatalf("register B: %v", err)
	}
	if err := g.Register("A", []string{"B"}); err != nil {
		t.Fatalf("register A: %v", err)
	}

	got := g.Affected("C")
	if len(got) != 2 {
		t.Fatalf("Affected(C) = %v, want 2 monitors", got)
	}
	if indexOf(got, "B") > indexOf(got, "A") {
		t.Errorf("Affected(C) = %v, want B before A", got)
	}

	// Touching B only recomputes A.
	got = g.Affected("B")
	if len(got) != 1 || got[0] != "A" {
		t.Errorf("Affected(B) = %v, want [A]", got)
	}

	// Nothing depends on A.
	if got := g.Affected("A"); len(got) != 0 {
		t.Errorf("Affected(A) = %v, want empty", got)
	}
}

func TestAffectedDiamond(t *testing.T) {
	g := graph.New()

	// raw -> left, raw -> right, top -> {left, right}
	for _, reg := range []struct {
		id   string
		deps []string
	}{
		{"left", []string{"raw"}},
		{"right", []string{"raw"}},
		{"top", []string{"left", "right"}},
	} {
		if err := g.Register(reg.id, reg.deps); err != nil {
			t.Fatalf("register %s: %v", reg.id, err)
		}
	}

	got := g.Affected("raw")
	if len(got) != 3 {
		t.Fatalf("Affected(raw) = %v, want 3", got)
	}
	top := indexOf(got, "top")
	if top < indexOf(got, "left") || top < indexOf(got, "right") {
		t.Errorf("Affected(raw) = %v, want top last", got)
	}
}

func TestCycleRejectedWithoutMutation(t *testing.T) {
	g := graph.New()

	if err := g.Register("A", []string{"B"}); err != nil {
		t.Fatalf("register A: %v", err)
	}

	err := g.Register("B", []string{"A"})
	var cerr *graph.CycleError
	if !errors.As(err, &cerr) {
		t.Fatalf("error = %v, want *CycleError", err)
	}
	if cerr.ID != "B" {
		t.Errorf("CycleError.ID = %q, want %q", cerr.ID, "B")
	}

	// The failed registration must not have touched the graph.
	if g.Contains("B") {
		t.Error("B was added despite the cycle")
	}
	if got := g.Affected("A"); len(got) != 0 {
		t.Errorf("Affected(A) = %v, want empty after rejected registration", got)
	}
}

func TestSelfReferenceRejected(t *testing.T) {
	g := graph.New()
	err := g.Register("A", []string{"A"})
	var cerr *graph.CycleError
	if !errors.As(err, &cerr) {
		t.Fatalf("error = %v, want *CycleError", err)
	}
}

func TestLongCycleRejected(t *testing.T) {
	g := graph.New()
	if err := g.Register("A", []string{"B"}); err != nil {
		t.Fatal(err)
	}
	if err := g.Register("B", []string{"C"}); err != nil {
		t.Fatal(err)
	}
	if err := g.Register("C", []string{"A"}); err == nil {
		t.Fatal("C -> A closes A -> B -> C, expected CycleError")
	}
}

func TestReRegisterReplacesEdges(t *testing.T) {
	g := graph.New()
	if err := g.Register("M", []string{"x"}); err != nil {
		t.Fatal(err)
	}
	if err := g.Register("M", []string{"y"}); err != nil {
		t.Fatal(err)
	}

	if got := g.Affected("x"); len(got) != 0 {
		t.Errorf("Affected(x) = %v, want empty after formula edit", got)
	}
	if got := g.Affected("y"); len(got) != 1 || got[0] != "M" {
		t.Errorf("Affected(y) = %v, want [M]", got)
	}
}

func TestUnregister(t *testing.T) {
	g := graph.New()
	if err := g.Register("M", []string{"x"}); err != nil {
		t.Fatal(err)
	}
	g.Unregister("M")

	if g.Contains("M") {
		t.Error("M still registered")
	}
	if got := g.Affected("x"); len(got) != 0 {
		t.Errorf("Affected(x) = %v, want empty", got)
	}

	if err := g.Register("M", []string{"z"}); err != nil {
		t.Fatalf("re-register after unregister: %v", err)
	}
}

func TestOrderedCoversAllMonitors(t *testing.T) {
	g := graph.New()
	if err := g.Register("B", []string{"C"}); err != nil {
		t.Fatal(err)
	}
	if err := g.Register("A", []string{"B"}); err != nil {
		t.Fatal(err)
	}
	if err := g.Register("other", []string{"raw"}); err != nil {
		t.Fatal(err)
	}

	got := g.Ordered()
	if len(got) != 3 {
		t.Fatalf("Ordered() = %v, want 3", got)
	}
	if indexOf(got, "B") > indexOf(got, "A") {
		t.Errorf("Ordered() = %v, want B before A", got)
	}
}
