package core

import (
	"fmt"
	"sort"
	"strings"

	"github.com/openfroyo/nodeflow/pkg/engine"
	"github.com/openfroyo/nodeflow/pkg/graph"
	"github.com/openfroyo/nodeflow/pkg/types"
)

// ArgumentBinding is the "input" local a Proxy binds while its Define is evaluated.
type ArgumentBinding struct {
	Proxy  graph.NodeID
	Define graph.NodeID

	// Formals maps each Input node of the Define to its formal name.
	Formals map[graph.NodeID]string

	// Args maps formal names to the source port connected at the Proxy.
	Args map[string]graph.PortRef

	// Caller is the scope the Proxy was evaluated in. Arguments resolve there.
	Caller *engine.Scope
}

// Fingerprint implements engine.Binding.
func (b ArgumentBinding) Fingerprint() string {
	names := make([]string, 0, len(b.Args))
	for name := range b.Args {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	fmt.Fprintf(&sb, "call(proxy=%d,define=%d,caller=%s", b.Proxy, b.Define, b.Caller.Key())
	for _, name := range names {
		fmt.Fprintf(&sb, ",%s=%s", name, b.Args[name])
	}
	sb.WriteByte(')')
	return sb.String()
}

func defineNode() engine.NodeKind {
	return &engine.Definition{
		Inputs:      []graph.PortSpec{engine.In("input")},
		Outputs:     []graph.PortSpec{engine.Out("output")},
		ValueFunc:   passthrough("input"),
		InputTypes:  map[string]engine.TypeFunc{"input": out},
		OutputTypes: map[string]engine.TypeFunc{"output": delivered("input")},
	}
}

// resolveDefine finds the Define a Proxy calls. The "define" param is a node id, or a name
// matched against the "name" param of every Define.
func resolveDefine(q engine.Query, n *graph.Node) (*graph.Node, bool) {
	if id, ok := n.IntParam("define"); ok {
		d, ok := q.Node(graph.NodeID(id))
		if !ok || d.Kind != DefineKind {
			return nil, false
		}
		return d, true
	}
	name := n.StringParam("define", "")
	if name == "" {
		return nil, false
	}
	for _, d := range q.Defines() {
		if d.StringParam("name", "") == name {
			return d, true
		}
	}
	return nil, false
}

// Formals walks upstream from a Define and returns its Input nodes with their names. The walk
// does not enter other Define nodes.
func Formals(q engine.Query, define graph.NodeID) map[graph.NodeID]string {
	found := make(map[graph.NodeID]string)
	visited := map[graph.NodeID]bool{define: true}
	queue := []graph.NodeID{define}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, port := range q.Ports(id).Inputs {
			for _, c := range q.Inputs(id, port.Key) {
				src := c.Src.NodeID
				if visited[src] {
					continue
				}
				visited[src] = true
				n, ok := q.Node(src)
				if !ok || n.Kind == DefineKind {
					continue
				}
				if n.Kind == InputKind {
					found[src] = n.StringParam("name", "")
				}
				queue = append(queue, src)
			}
		}
	}
	return found
}

// formalNames returns the distinct usable names of a formal set in sorted order.
func formalNames(formals map[graph.NodeID]string) []string {
	seen := make(map[string]bool, len(formals))
	names := make([]string, 0, len(formals))
	for _, name := range formals {
		if name == "" || name == "output" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedIDs(formals map[graph.NodeID]string) []graph.NodeID {
	ids := make([]graph.NodeID, 0, len(formals))
	for id := range formals {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Proxy calls a Define. It has one input per formal name of the Define and delivers the Define's
// output evaluated with those inputs bound as arguments.
func proxyNode() engine.NodeKind {
	return &engine.Definition{
		PortsFunc: func(q engine.Query, n *graph.Node) engine.PortSet {
			ports := engine.PortSet{Outputs: []graph.PortSpec{engine.Out("output")}}
			d, ok := resolveDefine(q, n)
			if !ok {
				return ports
			}
			for _, name := range formalNames(Formals(q, d.ID)) {
				ports.Inputs = append(ports.Inputs, engine.In(name))
			}
			return ports
		},
		ValueFunc: func(q engine.Query, n *graph.Node, s *engine.Scope, _ string) any {
			d, ok := resolveDefine(q, n)
			if !ok {
				return engine.Undefined
			}
			for _, b := range s.Bindings("input") {
				if call, ok := b.(ArgumentBinding); ok && call.Define == d.ID {
					return engine.Undefined
				}
			}

			formals := Formals(q, d.ID)
			args := make(map[string]graph.PortRef)
			for _, name := range formalNames(formals) {
				if conns := q.Inputs(n.ID, name); len(conns) > 0 {
					args[name] = conns[0].Src
				}
			}
			child := s.Child(map[string]any{"input": ArgumentBinding{
				Proxy:   n.ID,
				Define:  d.ID,
				Formals: formals,
				Args:    args,
				Caller:  s,
			}})
			return q.Value(d.ID, child, "output")
		},
		AnyInputType: func(q engine.Query, n *graph.Node, c *engine.Context, port string) types.ValueType {
			d, ok := resolveDefine(q, n)
			if !ok {
				return types.UnresolvedType()
			}
			formals := Formals(q, d.ID)
			var expected []types.ValueType
			for _, id := range sortedIDs(formals) {
				if formals[id] == port {
					expected = append(expected, q.Type(id, c, "output"))
				}
			}
			return types.UnionAll(expected...)
		},
		OutputTypes: map[string]engine.TypeFunc{
			"output": func(q engine.Query, n *graph.Node, c *engine.Context) types.ValueType {
				d, ok := resolveDefine(q, n)
				if !ok {
					raw, _ := n.Param("define")
					return types.Mismatchf("proxy %d: no define %v", n.ID, raw)
				}
				formals := Formals(q, d.ID)
				overrides := engine.Overrides{}
				for _, id := range sortedIDs(formals) {
					name := formals[id]
					if len(q.Inputs(n.ID, name)) == 0 {
						continue
					}
					overrides[id] = map[string]types.ValueType{"output": q.DeliveredType(n.ID, name, c)}
				}
				sub, ok := c.Instantiate(n.ID, overrides)
				if !ok {
					return types.UnresolvedType()
				}
				return q.UnmatchedType(d.ID, sub, "output")
			},
		},
	}
}

// Input is a formal parameter of the Define it feeds. Inside a call it resolves to the argument
// connected at the calling Proxy; elsewhere it delivers the empty value of its type.
func inputNode() engine.NodeKind {
	return &engine.Definition{
		Outputs: []graph.PortSpec{engine.Out("output")},
		ValueFunc: func(q engine.Query, n *graph.Node, s *engine.Scope, _ string) any {
			for _, b := range s.Bindings("input") {
				call, ok := b.(ArgumentBinding)
				if !ok {
					continue
				}
				name, ok := call.Formals[n.ID]
				if !ok {
					continue
				}
				if src, ok := call.Args[name]; ok {
					return q.Value(src.NodeID, call.Caller, src.Key)
				}
				break
			}
			c := s.Context()
			return c.EmptyValue(q.Type(n.ID, c, "output"))
		},
		OutputTypes: map[string]engine.TypeFunc{
			"output": func(_ engine.Query, n *graph.Node, _ *engine.Context) types.ValueType {
				if t, ok := DeclaredType(n); ok {
					return t
				}
				return types.UnresolvedType()
			},
		},
	}
}
