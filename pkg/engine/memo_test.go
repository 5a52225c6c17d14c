package engine

import (
	"testing"

	"github.com/openfroyo/nodeflow/pkg/types"
)

func TestMemo_CachesAndRecordsDependents(t *testing.T) {
	m := newMemo()
	leaf := cacheKey{kind: queryNode, node: 1}
	root := cacheKey{kind: queryValue, node: 2, env: "root", port: "out"}

	computed := 0
	compute := func() any {
		computed++
		return m.get(leaf, nil, func() any { return "leaf" })
	}

	if v := m.get(root, nil, compute); v != "leaf" {
		t.Fatalf("Expected leaf, got %v", v)
	}
	if v := m.get(root, nil, compute); v != "leaf" {
		t.Fatalf("Expected cached leaf, got %v", v)
	}
	if computed != 1 {
		t.Errorf("Expected one computation, got %d", computed)
	}

	if n := m.evict(leaf); n != 2 {
		t.Errorf("Expected evicting the leaf to remove 2 entries, got %d", n)
	}
	if m.cached(root) {
		t.Error("Expected the dependent entry to be evicted")
	}
}

func TestMemo_EvictLeavesUnrelatedEntries(t *testing.T) {
	m := newMemo()
	a := cacheKey{kind: queryNode, node: 1}
	b := cacheKey{kind: queryNode, node: 2}
	m.get(a, nil, func() any { return 1 })
	m.get(b, nil, func() any { return 2 })

	m.evict(a)

	if m.cached(a) {
		t.Error("Expected a to be evicted")
	}
	if !m.cached(b) {
		t.Error("Expected b to survive")
	}
	if s := m.snapshot(); s.Entries != 1 || s.Evictions != 1 {
		t.Errorf("Expected 1 entry and 1 eviction, got %+v", s)
	}
}

func TestMemo_EvictNode(t *testing.T) {
	m := newMemo()
	keys := []cacheKey{
		{kind: queryNode, node: 1},
		{kind: queryPorts, node: 1},
		{kind: queryValue, node: 1, env: "root", port: "out"},
		{kind: queryValue, node: 2, env: "root", port: "out"},
	}
	for _, k := range keys {
		m.get(k, nil, func() any { return true })
	}

	if n := m.evictNode(1); n != 3 {
		t.Errorf("Expected 3 entries evicted, got %d", n)
	}
	if !m.cached(keys[3]) {
		t.Error("Expected node 2 entry to survive")
	}
	if n := m.evictNode(1); n != 0 {
		t.Errorf("Expected nothing left for node 1, got %d", n)
	}
}

func TestMemo_ReentrantReadIsCut(t *testing.T) {
	m := newMemo()
	outer := cacheKey{kind: queryType, node: 1, env: "root", port: "out"}
	inner := cacheKey{kind: queryType, node: 2, env: "root", port: "out"}

	var innerSaw any
	v := m.get(outer, types.UnresolvedType(), func() any {
		return m.get(inner, types.UnresolvedType(), func() any {
			innerSaw = m.get(outer, types.UnresolvedType(), func() any {
				t.Fatal("Expected the re-entrant read not to recompute")
				return nil
			})
			return types.StringType()
		})
	})

	if got, ok := innerSaw.(types.ValueType); !ok || !got.Is(types.Unresolved) {
		t.Errorf("Expected the re-entrant read to see Unresolved, got %v", innerSaw)
	}
	if got := v.(types.ValueType); !got.Equal(types.StringType()) {
		t.Errorf("Expected String, got %s", got)
	}
	if !m.cached(outer) {
		t.Error("Expected the outermost frame to be cached")
	}
	if m.cached(inner) {
		t.Error("Expected the frame computed under the cut not to be cached")
	}
	if s := m.snapshot(); s.Cuts != 1 {
		t.Errorf("Expected 1 cut, got %d", s.Cuts)
	}
}

func TestMemo_UncachedFrameHandsReadsToParent(t *testing.T) {
	m := newMemo()
	outer := cacheKey{kind: queryValue, node: 1, env: "root", port: "out"}
	inner := cacheKey{kind: queryValue, node: 2, env: "root", port: "out"}
	leaf := cacheKey{kind: queryNode, node: 3}

	m.get(outer, Undefined, func() any {
		return m.get(inner, Undefined, func() any {
			m.get(leaf, nil, func() any { return "leaf" })
			m.get(outer, Undefined, func() any { return nil })
			return "inner"
		})
	})

	// outer only learns about leaf through the uncached inner frame.
	m.evict(leaf)
	if m.cached(outer) {
		t.Error("Expected outer to depend on reads made by the uncached inner frame")
	}
}

func TestMemo_ObserveSkipsStructuralReads(t *testing.T) {
	m := newMemo()
	seen := map[string]int{}
	m.observe = func(kind queryKind, hit bool) { seen[kind.String()]++ }

	m.get(cacheKey{kind: queryNode, node: 1}, nil, func() any { return nil })
	m.get(cacheKey{kind: queryType, node: 1, port: "out"}, nil, func() any { return nil })
	m.get(cacheKey{kind: queryType, node: 1, port: "out"}, nil, func() any { return nil })

	if seen["node"] != 0 {
		t.Errorf("Expected structural reads not to be observed, got %v", seen)
	}
	if seen["type"] != 2 {
		t.Errorf("Expected 2 type observations, got %v", seen)
	}
}

func TestEngine_MemoizesValues(t *testing.T) {
	f := newFixture(t, Options{})
	hi := f.add(t, constKind, map[string]any{"value": "hi"})
	count := f.add(t, countKind, nil)
	f.connect(t, hi, count, "in", 0)

	for i := 0; i < 3; i++ {
		if v := f.eng.Value(count, nil, "out"); v != "hi" {
			t.Fatalf("Expected hi, got %v", v)
		}
	}
	if n := f.counter.get(count); n != 1 {
		t.Errorf("Expected one computation, got %d", n)
	}
	if f.eng.Stats().Hits == 0 {
		t.Error("Expected cache hits")
	}
}

func TestEngine_SetParamInvalidatesDownstreamOnly(t *testing.T) {
	f := newFixture(t, Options{})
	a := f.add(t, constKind, map[string]any{"value": "a"})
	b := f.add(t, constKind, map[string]any{"value": "b"})
	countA := f.add(t, countKind, nil)
	countB := f.add(t, countKind, nil)
	f.connect(t, a, countA, "in", 0)
	f.connect(t, b, countB, "in", 0)

	f.eng.Value(countA, nil, "out")
	f.eng.Value(countB, nil, "out")

	if err := f.eng.SetParam(a, "value", "changed"); err != nil {
		t.Fatalf("Expected SetParam to succeed, got: %v", err)
	}

	if v := f.eng.Value(countA, nil, "out"); v != "changed" {
		t.Errorf("Expected changed, got %v", v)
	}
	if v := f.eng.Value(countB, nil, "out"); v != "b" {
		t.Errorf("Expected b, got %v", v)
	}
	if n := f.counter.get(countA); n != 2 {
		t.Errorf("Expected the dependent node to recompute once, got %d computations", n)
	}
	if n := f.counter.get(countB); n != 1 {
		t.Errorf("Expected the unrelated node not to recompute, got %d computations", n)
	}
}

func TestEngine_SetParamInvalidatesTypesTransitively(t *testing.T) {
	f := newFixture(t, Options{})
	src := f.add(t, constKind, map[string]any{"value": "hi"})
	a := f.add(t, passKind, nil)
	b := f.add(t, passKind, nil)
	f.connect(t, src, a, "in", 0)
	f.connect(t, a, b, "in", 0)

	if got := f.eng.Type(b, nil, "out"); !got.Equal(types.StringType()) {
		t.Fatalf("Expected String, got %s", got)
	}
	if err := f.eng.SetParam(src, "value", 2.0); err != nil {
		t.Fatalf("Expected SetParam to succeed, got: %v", err)
	}
	if got := f.eng.Type(b, nil, "out"); !got.Equal(types.NumberType()) {
		t.Errorf("Expected Number after the change, got %s", got)
	}
	if got := f.eng.Type(a, nil, "out"); !got.Equal(types.NumberType()) {
		t.Errorf("Expected Number upstream as well, got %s", got)
	}
}

func TestEngine_ConnectInvalidatesConsumer(t *testing.T) {
	f := newFixture(t, Options{})
	hi := f.add(t, constKind, map[string]any{"value": "hi"})
	count := f.add(t, countKind, nil)

	if v := f.eng.Value(count, nil, "out"); !IsUndefined(v) {
		t.Fatalf("Expected undefined before connecting, got %v", v)
	}
	f.connect(t, hi, count, "in", 0)
	if v := f.eng.Value(count, nil, "out"); v != "hi" {
		t.Errorf("Expected hi after connecting, got %v", v)
	}
	if n := f.counter.get(count); n != 2 {
		t.Errorf("Expected 2 computations, got %d", n)
	}
}

func TestEngine_MoveKeepsCache(t *testing.T) {
	f := newFixture(t, Options{})
	hi := f.add(t, constKind, map[string]any{"value": "hi"})
	count := f.add(t, countKind, nil)
	f.connect(t, hi, count, "in", 0)
	f.eng.Value(count, nil, "out")

	before := f.eng.Stats()
	if err := f.eng.Move(hi, []byte(`{"x":1}`), 5); err != nil {
		t.Fatalf("Expected move to succeed, got: %v", err)
	}
	f.eng.Value(count, nil, "out")

	if after := f.eng.Stats(); after.Evictions != before.Evictions {
		t.Errorf("Expected no evictions from Move, got %d", after.Evictions-before.Evictions)
	}
	if n := f.counter.get(count); n != 1 {
		t.Errorf("Expected no recomputation, got %d computations", n)
	}
}

func TestEngine_AddNodeKeepsCache(t *testing.T) {
	f := newFixture(t, Options{})
	hi := f.add(t, constKind, map[string]any{"value": "hi"})
	count := f.add(t, countKind, nil)
	f.connect(t, hi, count, "in", 0)
	f.eng.Value(count, nil, "out")

	f.add(t, constKind, map[string]any{"value": "unrelated"})
	f.eng.Value(count, nil, "out")

	if n := f.counter.get(count); n != 1 {
		t.Errorf("Expected adding an unrelated node not to recompute, got %d computations", n)
	}
}

func TestEngine_ScopesCacheSeparately(t *testing.T) {
	f := newFixture(t, Options{})
	hi := f.add(t, constKind, map[string]any{"value": "hi"})
	count := f.add(t, countKind, nil)
	f.connect(t, hi, count, "in", 0)

	root := f.eng.RootScope()
	one := root.Child(map[string]any{"item": 1.0})
	two := root.Child(map[string]any{"item": 2.0})
	again := root.Child(map[string]any{"item": 1.0})

	f.eng.Value(count, one, "out")
	f.eng.Value(count, two, "out")
	f.eng.Value(count, again, "out")

	if n := f.counter.get(count); n != 2 {
		t.Errorf("Expected one computation per distinct scope, got %d", n)
	}
}
