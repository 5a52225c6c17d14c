package engine

import (
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/nodeflow/pkg/graph"
	"github.com/openfroyo/nodeflow/pkg/types"
)

// DefineKind is the kind whose nodes make up the defines list of a document.
var DefineKind = graph.Kind{Module: "core", Type: "Define"}

// noNode keys cache entries that belong to no node.
const noNode graph.NodeID = -1

// Options configures an Engine. Every field is optional.
type Options struct {
	Logger  *zerolog.Logger
	Metrics Recorder
	Events  EventSink
	Tracer  trace.Tracer

	// AllowMismatch accepts connections whose types cannot be unified. They still show up as
	// Mismatch types and in Diagnostics.
	AllowMismatch bool
}

// Engine owns a graph and answers memoized value and type queries over it. All mutation goes
// through the Engine so that exactly the affected cache entries are evicted.
//
// Engine methods are safe for concurrent use; they are serialized by one mutex.
type Engine struct {
	mu sync.Mutex

	graph     *graph.Graph
	registry  *Registry
	memo      *memo
	guard     *graph.CycleGuard
	root      *Context
	rootScope *Scope

	logger        zerolog.Logger
	metrics       Recorder
	events        EventSink
	tracer        trace.Tracer
	allowMismatch bool
}

// New creates an engine over g. The engine takes ownership of g.
func New(g *graph.Graph, reg *Registry, opts Options) *Engine {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("component", "engine").Str("document", g.Name).Logger()
	}
	var metrics Recorder = nopRecorder{}
	if opts.Metrics != nil {
		metrics = opts.Metrics
	}
	var events EventSink = nopSink{}
	if opts.Events != nil {
		events = opts.Events
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/openfroyo/nodeflow/pkg/engine")
	}

	e := &Engine{
		graph:         g,
		registry:      reg,
		memo:          newMemo(),
		logger:        logger,
		metrics:       metrics,
		events:        events,
		tracer:        tracer,
		allowMismatch: opts.AllowMismatch,
	}
	e.guard = graph.NewCycleGuard(g, e.follows)
	e.memo.observe = func(kind queryKind, hit bool) {
		e.metrics.RecordQuery(kind.String(), hit)
	}
	e.root = NewContext(reg)
	e.rootScope = NewScope(e.root)
	return e
}

// q returns the unlocked query surface. Callers must hold e.mu.
func (e *Engine) q() resolver { return resolver{e: e} }

func (e *Engine) kind(n *graph.Node) NodeKind {
	k, _ := e.registry.Kind(n.Kind)
	return k
}

// follows reports whether a connection counts for cycle detection. Connections into
// loop-tolerant ports do not.
func (e *Engine) follows(c graph.Connection) bool {
	spec, ok := e.q().Ports(c.Target.NodeID).Input(c.Target.Key)
	return !ok || !spec.LoopTolerant
}

// Registry returns the module registry.
func (e *Engine) Registry() *Registry { return e.registry }

// RootContext returns the context without overrides.
func (e *Engine) RootContext() *Context { return e.root }

// RootScope returns the scope without locals.
func (e *Engine) RootScope() *Scope { return e.rootScope }

// Name returns the document name.
func (e *Engine) Name() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.graph.Name
}

// Snapshot returns the persisted form of the current graph.
func (e *Engine) Snapshot() graph.Document {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.graph.Snapshot()
}

// Node returns a copy of a node.
func (e *Engine) Node(id graph.NodeID) (*graph.Node, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, ok := e.graph.Node(id)
	if !ok {
		return nil, false
	}
	return n.Clone(), true
}

// Nodes returns copies of every node ordered by id.
func (e *Engine) Nodes() []*graph.Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	nodes := e.graph.Nodes()
	out := make([]*graph.Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}

// Connections returns every connection ordered by id.
func (e *Engine) Connections() []graph.Connection {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.graph.Connections()
}

// Ports returns the declared ports of a node.
func (e *Engine) Ports(id graph.NodeID) (PortSet, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.graph.Node(id); !ok {
		return PortSet{}, false
	}
	return e.q().Ports(id), true
}

// Value resolves the value at a port. A nil scope means the root scope.
func (e *Engine) Value(id graph.NodeID, s *Scope, port string) any {
	if s == nil {
		s = e.rootScope
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.q().Value(id, s, port)
}

// Type resolves the type at an output port. A nil context means the root context.
func (e *Engine) Type(id graph.NodeID, c *Context, port string) types.ValueType {
	if c == nil {
		c = e.root
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.q().Type(id, c, port)
}

// UnmatchedType resolves the bottom-up type at an output port.
func (e *Engine) UnmatchedType(id graph.NodeID, c *Context, port string) types.ValueType {
	if c == nil {
		c = e.root
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.q().UnmatchedType(id, c, port)
}

// ExpectedType resolves the type an input port requires.
func (e *Engine) ExpectedType(id graph.NodeID, port string, c *Context) types.ValueType {
	if c == nil {
		c = e.root
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.q().ExpectedType(id, port, c)
}

// DeliveredType resolves the bottom-up type arriving at a port.
func (e *Engine) DeliveredType(id graph.NodeID, port string, c *Context) types.ValueType {
	if c == nil {
		c = e.root
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.q().DeliveredType(id, port, c)
}

// Stats returns cache counters.
func (e *Engine) Stats() CacheStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.memo.snapshot()
}

// resolver implements Query on top of the memo.
type resolver struct {
	e *Engine
}

func (r resolver) Node(id graph.NodeID) (*graph.Node, bool) {
	v := r.e.memo.get(cacheKey{kind: queryNode, node: id}, (*graph.Node)(nil), func() any {
		n, ok := r.e.graph.Node(id)
		if !ok {
			return (*graph.Node)(nil)
		}
		return n
	})
	n, _ := v.(*graph.Node)
	return n, n != nil
}

func (r resolver) Defines() []*graph.Node {
	v := r.e.memo.get(cacheKey{kind: queryDefines, node: noNode}, []*graph.Node(nil), func() any {
		out := make([]*graph.Node, 0)
		for _, n := range r.e.graph.Nodes() {
			if n.Kind == DefineKind {
				out = append(out, n)
			}
		}
		return out
	})
	return v.([]*graph.Node)
}

func (r resolver) Ports(id graph.NodeID) PortSet {
	v := r.e.memo.get(cacheKey{kind: queryPorts, node: id}, PortSet{}, func() any {
		n, ok := r.Node(id)
		if !ok {
			return PortSet{}
		}
		return r.e.kind(n).Ports(r, n)
	})
	return v.(PortSet)
}

func (r resolver) Inputs(id graph.NodeID, port string) []graph.Connection {
	v := r.e.memo.get(cacheKey{kind: queryInputs, node: id, port: port}, []graph.Connection(nil), func() any {
		return r.e.graph.Inputs(id, port)
	})
	return v.([]graph.Connection)
}

func (r resolver) Consumers(id graph.NodeID, port string) []graph.Connection {
	v := r.e.memo.get(cacheKey{kind: queryOutputs, node: id, port: port}, []graph.Connection(nil), func() any {
		return r.e.graph.Outputs(id, port)
	})
	return v.([]graph.Connection)
}

func (r resolver) Value(id graph.NodeID, s *Scope, port string) any {
	return r.e.memo.get(cacheKey{kind: queryValue, node: id, env: s.Key(), port: port}, Undefined, func() any {
		n, ok := r.Node(id)
		if !ok {
			return Undefined
		}
		ports := r.Ports(id)
		if _, ok := ports.Output(port); ok {
			return r.e.kind(n).Value(r, n, s, port)
		}
		if spec, ok := ports.Input(port); ok {
			return r.inputValue(id, s, spec)
		}
		return Undefined
	})
}

func (r resolver) inputValue(id graph.NodeID, s *Scope, spec graph.PortSpec) any {
	conns := r.Inputs(id, spec.Key)
	if spec.Mode == graph.PortDuplicate {
		out := make([]any, 0, len(conns))
		for _, c := range conns {
			out = append(out, r.Value(c.Src.NodeID, s, c.Src.Key))
		}
		return out
	}
	if len(conns) == 0 {
		return Undefined
	}
	return r.Value(conns[0].Src.NodeID, s, conns[0].Src.Key)
}

func (r resolver) UnmatchedType(id graph.NodeID, c *Context, port string) types.ValueType {
	v := r.e.memo.get(cacheKey{kind: queryUnmatched, node: id, env: c.Key(), port: port}, types.UnresolvedType(), func() any {
		n, ok := r.Node(id)
		if !ok {
			return types.Mismatchf("node %d does not exist", id)
		}
		if t, ok := c.Override(id, port); ok {
			return t
		}
		return r.e.kind(n).OutputType(r, n, c, port)
	})
	return v.(types.ValueType)
}

func (r resolver) Type(id graph.NodeID, c *Context, port string) types.ValueType {
	v := r.e.memo.get(cacheKey{kind: queryType, node: id, env: c.Key(), port: port}, types.UnresolvedType(), func() any {
		unmatched := r.UnmatchedType(id, c, port)
		consumers := r.Consumers(id, port)
		expected := make([]types.ValueType, 0, len(consumers))
		for _, conn := range consumers {
			expected = append(expected, r.ExpectedType(conn.Target.NodeID, conn.Target.Key, c))
		}
		return types.Unify(unmatched, types.UnionAll(expected...))
	})
	return v.(types.ValueType)
}

func (r resolver) ExpectedType(id graph.NodeID, port string, c *Context) types.ValueType {
	v := r.e.memo.get(cacheKey{kind: queryExpected, node: id, env: c.Key(), port: port}, types.UnresolvedType(), func() any {
		n, ok := r.Node(id)
		if !ok {
			return types.Mismatchf("node %d does not exist", id)
		}
		return r.e.kind(n).InputType(r, n, c, port)
	})
	return v.(types.ValueType)
}

func (r resolver) DeliveredType(id graph.NodeID, port string, c *Context) types.ValueType {
	v := r.e.memo.get(cacheKey{kind: queryDelivered, node: id, env: c.Key(), port: port}, types.UnresolvedType(), func() any {
		if _, ok := r.Node(id); !ok {
			return types.Mismatchf("node %d does not exist", id)
		}
		if _, ok := r.Ports(id).Output(port); ok {
			return r.UnmatchedType(id, c, port)
		}
		conns := r.Inputs(id, port)
		delivered := make([]types.ValueType, 0, len(conns))
		for _, conn := range conns {
			delivered = append(delivered, r.UnmatchedType(conn.Src.NodeID, c, conn.Src.Key))
		}
		return types.UnionAll(delivered...)
	})
	return v.(types.ValueType)
}
