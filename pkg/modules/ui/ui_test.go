package ui_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/openfroyo/nodeflow/pkg/engine"
	"github.com/openfroyo/nodeflow/pkg/graph"
	"github.com/openfroyo/nodeflow/pkg/modules"
	"github.com/openfroyo/nodeflow/pkg/modules/core"
	"github.com/openfroyo/nodeflow/pkg/modules/ui"
	"github.com/openfroyo/nodeflow/pkg/types"
)

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	reg, err := modules.Load(modules.Options{})
	if err != nil {
		t.Fatalf("Expected built-in modules to load, got: %v", err)
	}
	return engine.New(graph.New("ui-test"), reg, engine.Options{})
}

func connect(t *testing.T, e *engine.Engine, src graph.NodeID, target graph.NodeID, targetKey string, slot int) {
	t.Helper()
	_, err := e.Connect(
		graph.PortRef{NodeID: src, Key: "output"},
		graph.PortRef{NodeID: target, Key: targetKey, Slot: slot},
	)
	if err != nil {
		t.Fatalf("Expected %d -> %d.%s[%d] to connect, got: %v", src, target, targetKey, slot, err)
	}
}

func TestElement(t *testing.T) {
	e := newEngine(t)
	title := e.AddNode(core.StringKind, map[string]any{"value": "hello"})
	label := e.AddNode(ui.TextKind, map[string]any{"value": "a"})
	count := e.AddNode(core.NumberKind, map[string]any{"value": 2.0})
	countText := e.AddNode(ui.TextKind, nil)
	el := e.AddNode(ui.ElementKind, map[string]any{"tag": "section", "props": []any{"title", "hidden"}})
	connect(t, e, count, countText, "input", 0)
	connect(t, e, title, el, "title", 0)
	connect(t, e, label, el, "children", 0)
	connect(t, e, countText, el, "children", 1)

	want := ui.ElementValue{
		Tag:      "section",
		Props:    map[string]any{"title": "hello"},
		Children: []any{"a", "2"},
	}
	if diff := cmp.Diff(want, e.Value(el, nil, "output")); diff != "" {
		t.Errorf("Unexpected element (-want +got):\n%s", diff)
	}

	wantType := types.ElementOf(map[string]types.ValueType{
		"title":  types.StringType(),
		"hidden": types.UnresolvedType(),
	})
	if got := e.Type(el, nil, "output"); !got.Equal(wantType) {
		t.Errorf("Expected %s, got %s", wantType, got)
	}
	if got := want.ValueType(); !got.Equal(types.ElementOf(map[string]types.ValueType{"title": types.StringType()})) {
		t.Errorf("Expected inferred Element{title: String}, got %s", got)
	}
}

func TestElement_Ports(t *testing.T) {
	e := newEngine(t)
	el := e.AddNode(ui.ElementKind, map[string]any{"props": []any{"a", "children", "a", "output"}})

	ports, _ := e.Ports(el)
	var keys []string
	for _, p := range ports.Inputs {
		keys = append(keys, p.Key)
	}
	if diff := cmp.Diff([]string{"a", "children"}, keys); diff != "" {
		t.Errorf("Unexpected inputs (-want +got):\n%s", diff)
	}
	if spec, _ := ports.Input("children"); spec.Mode != graph.PortDuplicate {
		t.Errorf("Expected children to be a duplicate port, got %s", spec.Mode)
	}
}

func TestElement_EmptyValue(t *testing.T) {
	e := newEngine(t)
	state := e.AddNode(core.StateKind, map[string]any{"type": map[string]any{
		"tag":    "Element",
		"params": map[string]any{"title": map[string]any{"tag": "String"}},
	}})

	want := ui.ElementValue{Props: map[string]any{"title": ""}, Children: []any{}}
	if diff := cmp.Diff(want, e.Value(state, nil, "output")); diff != "" {
		t.Errorf("Unexpected empty element (-want +got):\n%s", diff)
	}
}

func TestText(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"x", "x"},
		{true, "true"},
		{2.0, "2"},
		{2.5, "2.5"},
		{engine.Undefined, "undefined"},
		{[]any{1.0, "a"}, "[1 a]"},
	}
	for _, tt := range tests {
		if got := ui.Text(tt.in); got != tt.want {
			t.Errorf("Text(%v): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}
