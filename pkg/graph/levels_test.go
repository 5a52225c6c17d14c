package graph

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestGraph_Levels_Diamond(t *testing.T) {
	g := New("diamond")
	a := g.AddNode(stringKind, nil)
	b := g.AddNode(stringKind, nil)
	c := g.AddNode(stringKind, nil)
	d := g.AddNode(arrayKind, nil)
	g.Connect(out(a.ID), in(b.ID, "value", 0), PortSingle)
	g.Connect(out(a.ID), in(c.ID, "value", 0), PortSingle)
	g.Connect(out(b.ID), in(d.ID, "input", 0), PortDuplicate)
	g.Connect(out(c.ID), in(d.ID, "input", 1), PortDuplicate)

	levels, err := g.Levels(nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	want := [][]NodeID{{a.ID}, {b.ID, c.ID}, {d.ID}}
	if diff := cmp.Diff(want, levels); diff != "" {
		t.Errorf("Levels mismatch (-want +got):\n%s", diff)
	}
}

func TestGraph_Levels_Cycle(t *testing.T) {
	g := New("loop")
	n := chain(t, g, 3)
	g.InsertConnection(Connection{ID: 50, Src: out(n[2].ID), Target: in(n[0].ID, "value", 0)})

	_, err := g.Levels(nil)
	var cycleErr *CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("Expected CycleError, got: %v", err)
	}
	path := cycleErr.Path
	if len(path) != 4 || path[0] != path[len(path)-1] {
		t.Errorf("Expected a closed path over 3 nodes, got %v", path)
	}
	if !strings.Contains(err.Error(), "->") {
		t.Errorf("Expected formatted path, got: %v", err)
	}
}

func TestGraph_DetectCycle_SkipsUnfollowed(t *testing.T) {
	g := New("store")
	store := g.AddNode(Kind{Module: "core", Type: "State"}, nil)
	reader := g.AddNode(stringKind, nil)
	g.Connect(out(store.ID), in(reader.ID, "value", 0), PortSingle)
	g.Connect(out(reader.ID), in(store.ID, "set", 0), PortSide)

	if g.DetectCycle(nil) == nil {
		t.Error("Expected a cycle when every edge is followed")
	}
	follow := func(c Connection) bool { return c.Target.Key != "set" }
	if cycle := g.DetectCycle(follow); cycle != nil {
		t.Errorf("Expected no cycle, got %v", cycle)
	}
}

func TestGraph_ToDOT(t *testing.T) {
	g := New("greeting")
	a := g.AddNode(stringKind, nil)
	arr := g.AddNode(arrayKind, nil)
	g.Connect(out(a.ID), in(arr.ID, "input", 0), PortDuplicate)

	dot := g.ToDOT(nil)
	for _, want := range []string{
		`digraph "greeting"`,
		"cluster_level_0",
		"cluster_level_1",
		`"1" -> "2"`,
		"core.String",
		"lightgreen",
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("Expected DOT output to contain %q:\n%s", want, dot)
		}
	}
}
