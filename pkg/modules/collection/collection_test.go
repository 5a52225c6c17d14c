package collection_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/openfroyo/nodeflow/pkg/engine"
	"github.com/openfroyo/nodeflow/pkg/graph"
	"github.com/openfroyo/nodeflow/pkg/modules"
	"github.com/openfroyo/nodeflow/pkg/modules/collection"
	"github.com/openfroyo/nodeflow/pkg/modules/core"
	"github.com/openfroyo/nodeflow/pkg/types"
)

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	reg, err := modules.Load(modules.Options{})
	if err != nil {
		t.Fatalf("Expected built-in modules to load, got: %v", err)
	}
	return engine.New(graph.New("collection-test"), reg, engine.Options{})
}

func connect(t *testing.T, e *engine.Engine, src graph.NodeID, srcKey string, target graph.NodeID, targetKey string, slot int) {
	t.Helper()
	_, err := e.Connect(
		graph.PortRef{NodeID: src, Key: srcKey},
		graph.PortRef{NodeID: target, Key: targetKey, Slot: slot},
	)
	if err != nil {
		t.Fatalf("Expected %d.%s -> %d.%s[%d] to connect, got: %v", src, srcKey, target, targetKey, slot, err)
	}
}

// numbers builds an Array node fed by one Number literal per value.
func numbers(t *testing.T, e *engine.Engine, values ...float64) graph.NodeID {
	t.Helper()
	arr := e.AddNode(collection.ArrayKind, nil)
	for i, v := range values {
		n := e.AddNode(core.NumberKind, map[string]any{"value": v})
		connect(t, e, n, "output", arr, "input", i)
	}
	return arr
}

func TestArray_EndToEnd(t *testing.T) {
	e := newEngine(t)
	hi := e.AddNode(core.StringKind, map[string]any{"value": "hi"})
	yo := e.AddNode(core.StringKind, map[string]any{"value": "yo"})
	arr := e.AddNode(collection.ArrayKind, nil)
	connect(t, e, hi, "output", arr, "input", 0)
	connect(t, e, yo, "output", arr, "input", 1)

	if diff := cmp.Diff([]any{"hi", "yo"}, e.Value(arr, e.RootScope(), "output")); diff != "" {
		t.Errorf("Unexpected array value (-want +got):\n%s", diff)
	}
	want := types.ArrayOf(types.StringType())
	if got := e.Type(arr, e.RootContext(), "output"); !got.Equal(want) {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestArray_Empty(t *testing.T) {
	e := newEngine(t)
	arr := e.AddNode(collection.ArrayKind, nil)

	if diff := cmp.Diff([]any{}, e.Value(arr, nil, "output")); diff != "" {
		t.Errorf("Unexpected array value (-want +got):\n%s", diff)
	}
	if got := e.Type(arr, nil, "output"); !got.Equal(types.ArrayOf(types.UnresolvedType())) {
		t.Errorf("Expected Array<Unresolved>, got %s", got)
	}
}

func TestArray_RejectsMixedItems(t *testing.T) {
	e := newEngine(t)
	arr := numbers(t, e, 1)
	s := e.AddNode(core.StringKind, map[string]any{"value": "x"})

	_, err := e.Connect(graph.PortRef{NodeID: s, Key: "output"}, graph.PortRef{NodeID: arr, Key: "input", Slot: 1})
	if !engine.IsConflict(err) {
		t.Fatalf("Expected a conflict error, got: %v", err)
	}
}

func TestCollect_IterationIsolation(t *testing.T) {
	e := newEngine(t)
	arr := numbers(t, e, 1, 2, 3)
	items := e.AddNode(collection.ItemsKind, nil)
	times := e.AddNode(core.ExpressionKind, map[string]any{
		"source": "x * 10",
		"args":   []any{"x"},
		"type":   "Number",
	})
	collect := e.AddNode(collection.CollectKind, nil)
	indexes := e.AddNode(collection.CollectKind, nil)
	connect(t, e, arr, "output", items, "input", 0)
	connect(t, e, items, "output", times, "x", 0)
	connect(t, e, times, "output", collect, "input", 0)
	connect(t, e, items, "index", indexes, "input", 0)

	if diff := cmp.Diff([]any{10.0, 20.0, 30.0}, e.Value(collect, nil, "output")); diff != "" {
		t.Errorf("Unexpected collected values (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{0.0, 1.0, 2.0}, e.Value(indexes, nil, "output")); diff != "" {
		t.Errorf("Unexpected collected indexes (-want +got):\n%s", diff)
	}
	if got := e.Type(collect, nil, "output"); !got.Equal(types.ArrayOf(types.NumberType())) {
		t.Errorf("Expected Array<Number>, got %s", got)
	}

	// Each element evaluates in its own scope, and the root scope sees the empty item.
	for i, item := range []float64{1, 2, 3} {
		s := e.RootScope().Child(map[string]any{"item": collection.ItemBinding{Items: items, Index: i, Item: item}})
		if v := e.Value(times, s, "output"); v != item*10 {
			t.Errorf("Item %d: expected %v, got %v", i, item*10, v)
		}
	}
	if v := e.Value(times, nil, "output"); v != 0.0 {
		t.Errorf("Expected the root scope to see the empty Number, got %v", v)
	}
	if got := e.Type(items, nil, "output"); !got.Equal(types.NumberType()) {
		t.Errorf("Expected Items to deliver Number, got %s", got)
	}
}

func TestCollect_EqualItemsDoNotShareResults(t *testing.T) {
	e := newEngine(t)
	arr := numbers(t, e, 7, 7)
	items := e.AddNode(collection.ItemsKind, nil)
	collect := e.AddNode(collection.CollectKind, nil)
	connect(t, e, arr, "output", items, "input", 0)
	connect(t, e, items, "index", collect, "input", 0)

	if diff := cmp.Diff([]any{0.0, 1.0}, e.Value(collect, nil, "output")); diff != "" {
		t.Errorf("Unexpected collected indexes (-want +got):\n%s", diff)
	}
}

func TestCollect_WithoutItems(t *testing.T) {
	e := newEngine(t)
	s := e.AddNode(core.StringKind, map[string]any{"value": "lonely"})
	collect := e.AddNode(collection.CollectKind, nil)
	connect(t, e, s, "output", collect, "input", 0)

	if diff := cmp.Diff([]any{}, e.Value(collect, nil, "output")); diff != "" {
		t.Errorf("Unexpected value (-want +got):\n%s", diff)
	}
}

func TestCollect_Nested(t *testing.T) {
	e := newEngine(t)
	first := numbers(t, e, 1, 2)
	second := numbers(t, e, 3)
	outer := e.AddNode(collection.ArrayKind, nil)
	connect(t, e, first, "output", outer, "input", 0)
	connect(t, e, second, "output", outer, "input", 1)

	rows := e.AddNode(collection.ItemsKind, nil)
	cells := e.AddNode(collection.ItemsKind, nil)
	cell := e.AddNode(core.ExpressionKind, map[string]any{
		"source": "v + row * 10",
		"args":   []any{"v", "row"},
		"type":   "Number",
	})
	inner := e.AddNode(collection.CollectKind, nil)
	table := e.AddNode(collection.CollectKind, nil)
	connect(t, e, outer, "output", rows, "input", 0)
	connect(t, e, rows, "output", cells, "input", 0)
	connect(t, e, cells, "output", cell, "v", 0)
	connect(t, e, rows, "index", cell, "row", 0)
	connect(t, e, cell, "output", inner, "input", 0)
	connect(t, e, inner, "output", table, "input", 0)

	want := []any{[]any{1.0, 2.0}, []any{13.0}}
	if diff := cmp.Diff(want, e.Value(table, nil, "output")); diff != "" {
		t.Errorf("Unexpected table (-want +got):\n%s", diff)
	}
	wantType := types.ArrayOf(types.ArrayOf(types.NumberType()))
	if got := e.Type(table, nil, "output"); !got.Equal(wantType) {
		t.Errorf("Expected %s, got %s", wantType, got)
	}
}

func TestLength(t *testing.T) {
	e := newEngine(t)
	arr := numbers(t, e, 4, 5, 6)
	length := e.AddNode(collection.LengthKind, nil)
	connect(t, e, arr, "output", length, "input", 0)

	if v := e.Value(length, nil, "output"); v != 3.0 {
		t.Errorf("Expected 3, got %v", v)
	}

	s := e.AddNode(core.StringKind, map[string]any{"value": "abc"})
	other := e.AddNode(collection.LengthKind, nil)
	if _, err := e.Connect(graph.PortRef{NodeID: s, Key: "output"}, graph.PortRef{NodeID: other, Key: "input"}); !engine.IsConflict(err) {
		t.Errorf("Expected a String into Length to conflict, got: %v", err)
	}
}

func TestItemBinding_Fingerprint(t *testing.T) {
	a := collection.ItemBinding{Items: 3, Index: 0, Item: 7.0}
	b := collection.ItemBinding{Items: 3, Index: 1, Item: 7.0}
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("Expected equal items at different indexes to fingerprint differently")
	}
	if want := "item(items=3,index=0,value=7)"; a.Fingerprint() != want {
		t.Errorf("Expected %q, got %q", want, a.Fingerprint())
	}
}
