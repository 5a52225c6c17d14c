package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/openfroyo/nodeflow/pkg/graph"
	"github.com/openfroyo/nodeflow/pkg/types"
)

var (
	constKind = graph.Kind{Module: "test", Type: "Const"}
	passKind  = graph.Kind{Module: "test", Type: "Pass"}
	listKind  = graph.Kind{Module: "test", Type: "List"}
	numKind   = graph.Kind{Module: "test", Type: "Num"}
	accKind   = graph.Kind{Module: "test", Type: "Acc"}
	countKind = graph.Kind{Module: "test", Type: "Count"}
)

// calls counts Value computations per node for the Count kind.
type calls struct {
	mu sync.Mutex
	n  map[graph.NodeID]int
}

func (c *calls) inc(id graph.NodeID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n[id]++
}

func (c *calls) get(id graph.NodeID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n[id]
}

func selfType(port string) TypeFunc {
	return func(q Query, n *graph.Node, c *Context) types.ValueType {
		return q.Type(n.ID, c, port)
	}
}

func deliveredFrom(port string) TypeFunc {
	return func(q Query, n *graph.Node, c *Context) types.ValueType {
		return q.DeliveredType(n.ID, port, c)
	}
}

func testModule(counter *calls) *Module {
	return &Module{
		Manifest: Manifest{
			Name:    "test",
			Version: "1.0.0",
			Nodes:   []string{"Const", "Pass", "List", "Num", "Acc", "Count"},
		},
		Nodes: map[string]NodeKind{
			"Const": &Definition{
				Outputs: []graph.PortSpec{Out("out")},
				ValueFunc: func(q Query, n *graph.Node, s *Scope, port string) any {
					v, _ := n.Param("value")
					return v
				},
				OutputTypes: map[string]TypeFunc{
					"out": func(q Query, n *graph.Node, c *Context) types.ValueType {
						v, _ := n.Param("value")
						return InferType(v)
					},
				},
			},
			"Pass": &Definition{
				Inputs:  []graph.PortSpec{In("in")},
				Outputs: []graph.PortSpec{Out("out")},
				ValueFunc: func(q Query, n *graph.Node, s *Scope, port string) any {
					return q.Value(n.ID, s, "in")
				},
				InputTypes:  map[string]TypeFunc{"in": selfType("out")},
				OutputTypes: map[string]TypeFunc{"out": deliveredFrom("in")},
			},
			"List": &Definition{
				Inputs:  []graph.PortSpec{InList("items")},
				Outputs: []graph.PortSpec{Out("out")},
				ValueFunc: func(q Query, n *graph.Node, s *Scope, port string) any {
					return q.Value(n.ID, s, "items")
				},
				InputTypes: map[string]TypeFunc{
					"items": func(q Query, n *graph.Node, c *Context) types.ValueType {
						return types.Unwrap(q.Type(n.ID, c, "out"), types.Array, "item")
					},
				},
				OutputTypes: map[string]TypeFunc{
					"out": func(q Query, n *graph.Node, c *Context) types.ValueType {
						return types.ArrayOf(q.DeliveredType(n.ID, "items", c))
					},
				},
			},
			"Num": &Definition{
				Inputs:  []graph.PortSpec{In("in")},
				Outputs: []graph.PortSpec{Out("out")},
				ValueFunc: func(q Query, n *graph.Node, s *Scope, port string) any {
					return q.Value(n.ID, s, "in")
				},
				InputTypes: map[string]TypeFunc{
					"in": func(Query, *graph.Node, *Context) types.ValueType { return types.NumberType() },
				},
				OutputTypes: map[string]TypeFunc{
					"out": func(Query, *graph.Node, *Context) types.ValueType { return types.NumberType() },
				},
			},
			"Acc": &Definition{
				Inputs:  []graph.PortSpec{In("in"), InSide("feedback", true)},
				Outputs: []graph.PortSpec{Out("out")},
				ValueFunc: func(q Query, n *graph.Node, s *Scope, port string) any {
					return []any{q.Value(n.ID, s, "in"), q.Value(n.ID, s, "feedback")}
				},
				OutputTypes: map[string]TypeFunc{"out": deliveredFrom("in")},
			},
			"Count": &Definition{
				Inputs:  []graph.PortSpec{In("in")},
				Outputs: []graph.PortSpec{Out("out")},
				ValueFunc: func(q Query, n *graph.Node, s *Scope, port string) any {
					counter.inc(n.ID)
					return q.Value(n.ID, s, "in")
				},
				OutputTypes: map[string]TypeFunc{"out": deliveredFrom("in")},
			},
		},
	}
}

func newTestRegistry(t *testing.T, counter *calls) *Registry {
	t.Helper()
	reg := NewRegistry()
	if err := reg.Register(testModule(counter)); err != nil {
		t.Fatalf("Expected test module to register, got: %v", err)
	}
	return reg
}

// recorder captures metrics and events for assertions.
type recorder struct {
	mu        sync.Mutex
	rejected  []string
	mutations map[string]int
	failures  map[string]int
	events    []MutationEvent
	evicted   int
}

func newRecorder() *recorder {
	return &recorder{mutations: map[string]int{}, failures: map[string]int{}}
}

func (r *recorder) RecordQuery(string, bool) {}

func (r *recorder) RecordInvalidation(_ string, entries int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evicted += entries
}

func (r *recorder) RecordMutation(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.failures[op]++
		return
	}
	r.mutations[op]++
}

func (r *recorder) RecordRejectedConnection(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected = append(r.rejected, reason)
}

func (r *recorder) RecordEvaluation(time.Duration, int, int) {}

func (r *recorder) PublishMutation(ev MutationEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

type fixture struct {
	eng     *Engine
	counter *calls
	rec     *recorder
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	counter := &calls{n: map[graph.NodeID]int{}}
	rec := newRecorder()
	opts.Metrics = rec
	opts.Events = rec
	return &fixture{
		eng:     New(graph.New("test"), newTestRegistry(t, counter), opts),
		counter: counter,
		rec:     rec,
	}
}

func (f *fixture) add(t *testing.T, kind graph.Kind, params map[string]any) graph.NodeID {
	t.Helper()
	return f.eng.AddNode(kind, params)
}

func (f *fixture) connect(t *testing.T, src graph.NodeID, target graph.NodeID, key string, slot int) graph.Connection {
	t.Helper()
	c, err := f.eng.Connect(
		graph.PortRef{NodeID: src, Key: "out"},
		graph.PortRef{NodeID: target, Key: key, Slot: slot},
	)
	if err != nil {
		t.Fatalf("Expected %d -> %d.%s to connect, got: %v", src, target, key, err)
	}
	return c
}
