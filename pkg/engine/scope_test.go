package engine

import (
	"testing"

	"github.com/openfroyo/nodeflow/pkg/graph"
	"github.com/openfroyo/nodeflow/pkg/types"
)

type testBinding struct{ id string }

func (b testBinding) Fingerprint() string { return "binding:" + b.id }

func TestScope_KeysAreContentAddressed(t *testing.T) {
	root := NewScope(NewContext(nil))

	a := root.Child(map[string]any{"item": 1.0, "index": 0})
	b := root.Child(map[string]any{"index": 0, "item": 1.0})
	c := root.Child(map[string]any{"item": 2.0, "index": 1})

	if a.Key() != b.Key() {
		t.Errorf("Expected equal locals to share a key, got %s and %s", a.Key(), b.Key())
	}
	if a.Key() == c.Key() {
		t.Errorf("Expected different locals to have different keys, got %s", a.Key())
	}
	if root.Key() != "root" {
		t.Errorf("Expected root key, got %s", root.Key())
	}

	nested := a.Child(map[string]any{"item": 1.0})
	if nested.Key() == a.Key() {
		t.Error("Expected a nested scope to extend its parent key")
	}
}

func TestScope_BindingFingerprint(t *testing.T) {
	root := NewScope(NewContext(nil))
	a := root.Child(map[string]any{"input": testBinding{id: "x"}})
	b := root.Child(map[string]any{"input": testBinding{id: "x"}})
	c := root.Child(map[string]any{"input": testBinding{id: "y"}})

	if a.Key() != b.Key() || a.Key() == c.Key() {
		t.Errorf("Expected keys to follow binding fingerprints, got %s %s %s", a.Key(), b.Key(), c.Key())
	}
	if Fingerprint(Undefined) != "undefined" {
		t.Errorf("Expected undefined fingerprint, got %s", Fingerprint(Undefined))
	}
	if Fingerprint([]any{"a", 1.0}) != `["a",1]` {
		t.Errorf("Expected JSON fingerprint, got %s", Fingerprint([]any{"a", 1.0}))
	}
}

func TestScope_LookupAndBindings(t *testing.T) {
	root := NewScope(NewContext(nil))
	outer := root.Child(map[string]any{"item": "outer", "index": 0})
	inner := outer.Child(map[string]any{"item": "inner"})

	if v, ok := inner.Lookup("item"); !ok || v != "inner" {
		t.Errorf("Expected nearest item, got %v", v)
	}
	if v, ok := inner.Lookup("index"); !ok || v != 0 {
		t.Errorf("Expected index from the parent, got %v", v)
	}
	if _, ok := inner.Lookup("missing"); ok {
		t.Error("Expected missing name not to resolve")
	}

	all := inner.Bindings("item")
	if len(all) != 2 || all[0] != "inner" || all[1] != "outer" {
		t.Errorf("Expected bindings nearest first, got %v", all)
	}
	if inner.Depth() != 2 || root.Depth() != 0 {
		t.Errorf("Expected depths 2 and 0, got %d and %d", inner.Depth(), root.Depth())
	}
	if inner.Parent() != outer || inner.Context() != root.Context() {
		t.Error("Expected child scopes to keep parent and context")
	}
}

func TestScope_ChildCopiesLocals(t *testing.T) {
	root := NewScope(NewContext(nil))
	locals := map[string]any{"item": 1.0}
	child := root.Child(locals)
	locals["item"] = 2.0

	if v, _ := child.Lookup("item"); v != 1.0 {
		t.Errorf("Expected the scope to keep its own copy, got %v", v)
	}
}

func TestContext_Overrides(t *testing.T) {
	root := NewContext(nil)
	sub := root.WithTypes(Overrides{3: {"output": types.StringType()}})

	if _, ok := root.Override(3, "output"); ok {
		t.Error("Expected root context to stay untouched")
	}
	if got, ok := sub.Override(3, "output"); !ok || !got.Equal(types.StringType()) {
		t.Errorf("Expected String override, got %s", got)
	}

	deeper := sub.WithTypes(Overrides{4: {"output": types.NumberType()}})
	if _, ok := deeper.Override(3, "output"); !ok {
		t.Error("Expected overrides to be inherited")
	}
	if _, ok := sub.Override(4, "output"); ok {
		t.Error("Expected a child override not to leak into its parent")
	}
}

func TestContext_KeysAreContentAddressed(t *testing.T) {
	root := NewContext(nil)
	a := root.WithTypes(Overrides{1: {"output": types.StringType()}})
	b := root.WithTypes(Overrides{1: {"output": types.StringType()}})
	c := root.WithTypes(Overrides{1: {"output": types.NumberType()}})

	if a.Key() != b.Key() {
		t.Errorf("Expected equal overrides to share a key, got %s and %s", a.Key(), b.Key())
	}
	if a.Key() == c.Key() {
		t.Error("Expected different overrides to have different keys")
	}
}

func TestContext_InstantiateGuardsRecursion(t *testing.T) {
	root := NewContext(nil)
	proxy := graph.NodeID(7)

	first, ok := root.Instantiate(proxy, Overrides{2: {"output": types.StringType()}})
	if !ok {
		t.Fatal("Expected the first instantiation to succeed")
	}
	if !first.Calls(proxy) || root.Calls(proxy) {
		t.Error("Expected only the instantiated context to record the caller")
	}
	if _, ok := first.Instantiate(proxy, nil); ok {
		t.Error("Expected a recursive instantiation to be refused")
	}

	other, ok := first.Instantiate(8, nil)
	if !ok {
		t.Fatal("Expected a different caller to instantiate")
	}
	if other.Key() == first.Key() {
		t.Error("Expected nested instantiations to have distinct keys")
	}
}

func TestContext_TestWithoutDefinitionsAcceptsAnything(t *testing.T) {
	c := NewContext(nil)
	if !c.Test("hi", types.NumberType()) {
		t.Error("Expected Test to accept values when no definitions are known")
	}
	if !IsUndefined(c.EmptyValue(types.StringType())) {
		t.Error("Expected undefined empty value without definitions")
	}
}
