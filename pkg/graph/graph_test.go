package graph

import (
	"errors"
	"testing"
)

var (
	stringKind = Kind{Module: "core", Type: "String"}
	arrayKind  = Kind{Module: "collection", Type: "Array"}
)

func out(id NodeID) PortRef { return PortRef{NodeID: id, Key: "output"} }

func in(id NodeID, key string, slot int) PortRef {
	return PortRef{NodeID: id, Key: key, Slot: slot}
}

func TestGraph_AddNode_AssignsIncreasingIDs(t *testing.T) {
	g := New("test")
	a := g.AddNode(stringKind, map[string]any{"value": "hi"})
	b := g.AddNode(stringKind, nil)

	if a.ID != 1 || b.ID != 2 {
		t.Errorf("Expected ids 1 and 2, got %d and %d", a.ID, b.ID)
	}
	if b.Params == nil {
		t.Error("Expected params to be initialized")
	}
	if g.Len() != 2 {
		t.Errorf("Expected 2 nodes, got %d", g.Len())
	}
}

func TestGraph_InsertNode_DuplicateID(t *testing.T) {
	g := New("test")
	if _, err := g.InsertNode(Node{ID: 7, Kind: stringKind}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if _, err := g.InsertNode(Node{ID: 7, Kind: stringKind}); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("Expected ErrDuplicateID, got: %v", err)
	}
	if n := g.AddNode(stringKind, nil); n.ID != 8 {
		t.Errorf("Expected next id 8, got %d", n.ID)
	}
}

func TestGraph_Connect_SinglePortReplaces(t *testing.T) {
	g := New("test")
	a := g.AddNode(stringKind, nil)
	b := g.AddNode(stringKind, nil)
	target := g.AddNode(stringKind, nil)

	first, replaced, err := g.Connect(out(a.ID), in(target.ID, "value", 3), PortSingle)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if replaced != nil {
		t.Errorf("Expected nothing replaced, got %v", replaced)
	}
	if first.Target.Slot != 0 {
		t.Errorf("Expected single port slot 0, got %d", first.Target.Slot)
	}

	second, replaced, err := g.Connect(out(b.ID), in(target.ID, "value", 0), PortSingle)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if replaced == nil || replaced.ID != first.ID {
		t.Fatalf("Expected connection %d to be replaced, got %v", first.ID, replaced)
	}

	inputs := g.Inputs(target.ID, "value")
	if len(inputs) != 1 || inputs[0].ID != second.ID {
		t.Errorf("Expected only connection %d, got %v", second.ID, inputs)
	}
	if len(g.Outputs(a.ID, "output")) != 0 {
		t.Error("Expected replaced source to lose its outgoing connection")
	}
}

func TestGraph_Connect_DuplicatePortAppendsAndReplaces(t *testing.T) {
	g := New("test")
	arr := g.AddNode(arrayKind, nil)
	srcs := []*Node{g.AddNode(stringKind, nil), g.AddNode(stringKind, nil), g.AddNode(stringKind, nil)}

	if c, _, _ := g.Connect(out(srcs[0].ID), in(arr.ID, "input", 0), PortDuplicate); c.Target.Slot != 0 {
		t.Errorf("Expected slot 0, got %d", c.Target.Slot)
	}
	// Slots past the end are clamped to the trailing empty slot.
	if c, _, _ := g.Connect(out(srcs[1].ID), in(arr.ID, "input", 9), PortDuplicate); c.Target.Slot != 1 {
		t.Errorf("Expected slot 1, got %d", c.Target.Slot)
	}

	_, replaced, err := g.Connect(out(srcs[2].ID), in(arr.ID, "input", 0), PortDuplicate)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if replaced == nil || replaced.Src.NodeID != srcs[0].ID {
		t.Fatalf("Expected slot 0 to be replaced, got %v", replaced)
	}

	inputs := g.Inputs(arr.ID, "input")
	if len(inputs) != 2 {
		t.Fatalf("Expected 2 inputs, got %d", len(inputs))
	}
	if inputs[0].Src.NodeID != srcs[2].ID || inputs[1].Src.NodeID != srcs[1].ID {
		t.Errorf("Unexpected slot order: %v", inputs)
	}
}

func TestGraph_Connect_Errors(t *testing.T) {
	g := New("test")
	a := g.AddNode(stringKind, nil)

	if _, _, err := g.Connect(out(a.ID), in(99, "value", 0), PortSingle); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("Expected ErrNodeNotFound, got: %v", err)
	}
	if _, _, err := g.Connect(out(a.ID), in(a.ID, "value", -1), PortSingle); !errors.Is(err, ErrInvalidSlot) {
		t.Errorf("Expected ErrInvalidSlot, got: %v", err)
	}
}

func TestGraph_Disconnect_CompactsDuplicateSlots(t *testing.T) {
	g := New("test")
	arr := g.AddNode(arrayKind, nil)
	var conns []Connection
	for i := 0; i < 3; i++ {
		src := g.AddNode(stringKind, nil)
		c, _, err := g.Connect(out(src.ID), in(arr.ID, "input", i), PortDuplicate)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		conns = append(conns, c)
	}

	if _, err := g.Disconnect(conns[0].ID, true); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	inputs := g.Inputs(arr.ID, "input")
	if len(inputs) != 2 {
		t.Fatalf("Expected 2 inputs, got %d", len(inputs))
	}
	for i, c := range inputs {
		if c.Target.Slot != i {
			t.Errorf("Expected slot %d, got %d", i, c.Target.Slot)
		}
	}
	if _, err := g.Disconnect(conns[0].ID, true); !errors.Is(err, ErrConnectionNotFound) {
		t.Errorf("Expected ErrConnectionNotFound, got: %v", err)
	}
}

func TestGraph_RemoveNode_CascadesConnections(t *testing.T) {
	g := New("test")
	a := g.AddNode(stringKind, nil)
	b := g.AddNode(arrayKind, nil)
	c := g.AddNode(arrayKind, nil)
	g.Connect(out(a.ID), in(b.ID, "input", 0), PortDuplicate)
	g.Connect(out(b.ID), in(c.ID, "input", 0), PortDuplicate)
	g.Connect(out(a.ID), in(c.ID, "input", 1), PortDuplicate)

	removed, err := g.RemoveNode(b.ID)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(removed) != 2 {
		t.Errorf("Expected 2 removed connections, got %d", len(removed))
	}
	if _, ok := g.Node(b.ID); ok {
		t.Error("Expected node to be gone")
	}
	if len(g.Connections()) != 1 {
		t.Errorf("Expected 1 remaining connection, got %d", len(g.Connections()))
	}
	if len(g.Incoming(c.ID)) != 1 {
		t.Errorf("Expected 1 incoming connection on c, got %d", len(g.Incoming(c.ID)))
	}
}

func TestGraph_SetParamAndMove(t *testing.T) {
	g := New("test")
	n := g.AddNode(stringKind, map[string]any{"value": "a"})

	if err := g.SetParam(n.ID, "value", "b"); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if got := n.StringParam("value", ""); got != "b" {
		t.Errorf("Expected b, got %q", got)
	}
	if err := g.SetParam(n.ID, "value", nil); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if _, ok := n.Param("value"); ok {
		t.Error("Expected nil to remove the param")
	}

	if err := g.Move(n.ID, []byte(`{"x":1,"y":2}`), 12); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if g.CurrentHighZ != 12 {
		t.Errorf("Expected CurrentHighZ 12, got %d", g.CurrentHighZ)
	}
	if err := g.SetParam(42, "value", 1); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("Expected ErrNodeNotFound, got: %v", err)
	}
}

func TestNode_IntParam(t *testing.T) {
	n := &Node{Params: map[string]any{"a": 3.0, "b": 2.5, "c": 4, "d": "x"}}

	if v, ok := n.IntParam("a"); !ok || v != 3 {
		t.Errorf("Expected 3, got %d (%v)", v, ok)
	}
	if _, ok := n.IntParam("b"); ok {
		t.Error("Expected fractional float to be rejected")
	}
	if v, ok := n.IntParam("c"); !ok || v != 4 {
		t.Errorf("Expected 4, got %d (%v)", v, ok)
	}
	if _, ok := n.IntParam("d"); ok {
		t.Error("Expected string to be rejected")
	}
}
