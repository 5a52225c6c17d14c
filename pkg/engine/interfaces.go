package engine

import (
	"github.com/openfroyo/nodeflow/pkg/graph"
	"github.com/openfroyo/nodeflow/pkg/types"
)

// NodeKind defines the behavior of one node type.
//
// Implementations must read the graph only through the Query they are handed. Reads through
// the Query are recorded, which is what lets a mutation evict exactly the results that depended
// on it.
type NodeKind interface {
	// Ports declares the node's ports. They may depend on params and on other nodes.
	Ports(q Query, n *graph.Node) PortSet

	// Value computes the runtime value delivered at an output port.
	Value(q Query, n *graph.Node, s *Scope, port string) any

	// OutputType computes the type delivered at an output port from the node's inputs.
	OutputType(q Query, n *graph.Node, c *Context, port string) types.ValueType

	// InputType computes the type the node expects at an input port. It may depend on the
	// node's own resolved output type.
	InputType(q Query, n *graph.Node, c *Context, port string) types.ValueType
}

// Query is the read surface handed to node kinds. Every method is memoized.
type Query interface {
	// Node returns a node by id.
	Node(id graph.NodeID) (*graph.Node, bool)

	// Defines returns every Define node of the document ordered by id.
	Defines() []*graph.Node

	// Ports returns the declared ports of a node.
	Ports(id graph.NodeID) PortSet

	// Inputs returns the connections into an input port ordered by slot.
	Inputs(id graph.NodeID, port string) []graph.Connection

	// Consumers returns the connections leaving an output port.
	Consumers(id graph.NodeID, port string) []graph.Connection

	// Value resolves the value at a port. Input ports resolve to the connected source value,
	// or to a []any for duplicate ports.
	Value(id graph.NodeID, s *Scope, port string) any

	// UnmatchedType is the bottom-up type at an output port.
	UnmatchedType(id graph.NodeID, c *Context, port string) types.ValueType

	// Type is the unmatched type unified with what every consumer expects.
	Type(id graph.NodeID, c *Context, port string) types.ValueType

	// ExpectedType is the type an input port requires.
	ExpectedType(id graph.NodeID, port string, c *Context) types.ValueType

	// DeliveredType is the bottom-up type arriving at an input port, or the unmatched
	// type of an output port.
	DeliveredType(id graph.NodeID, port string, c *Context) types.ValueType
}

// PortSet is the declared ports of a node.
type PortSet struct {
	Inputs  []graph.PortSpec
	Outputs []graph.PortSpec
}

// Input looks up an input port.
func (p PortSet) Input(key string) (graph.PortSpec, bool) {
	for _, spec := range p.Inputs {
		if spec.Key == key {
			return spec, true
		}
	}
	return graph.PortSpec{}, false
}

// Output looks up an output port.
func (p PortSet) Output(key string) (graph.PortSpec, bool) {
	for _, spec := range p.Outputs {
		if spec.Key == key {
			return spec, true
		}
	}
	return graph.PortSpec{}, false
}

// In declares a single input port.
func In(key string) graph.PortSpec {
	return graph.PortSpec{Key: key, Function: graph.FunctionInput, Mode: graph.PortSingle}
}

// InList declares a duplicate input port.
func InList(key string) graph.PortSpec {
	return graph.PortSpec{Key: key, Function: graph.FunctionInput, Mode: graph.PortDuplicate}
}

// InSide declares a side input port.
func InSide(key string, loopTolerant bool) graph.PortSpec {
	return graph.PortSpec{Key: key, Function: graph.FunctionInput, Mode: graph.PortSide, LoopTolerant: loopTolerant}
}

// Out declares an output port.
func Out(key string) graph.PortSpec {
	return graph.PortSpec{Key: key, Function: graph.FunctionOutput, Mode: graph.PortSingle}
}

// TypeFunc resolves the type of one port.
type TypeFunc func(q Query, n *graph.Node, c *Context) types.ValueType

// ValueFunc resolves the value of an output port.
type ValueFunc func(q Query, n *graph.Node, s *Scope, port string) any

// Definition is a table-driven NodeKind. Most built-in kinds are a Definition.
type Definition struct {
	// Inputs and Outputs are the static ports. PortsFunc replaces them when set.
	Inputs    []graph.PortSpec
	Outputs   []graph.PortSpec
	PortsFunc func(q Query, n *graph.Node) PortSet

	ValueFunc ValueFunc

	// InputTypes and OutputTypes are keyed by port. The Any variants cover ports that are not
	// listed, such as ports derived from params.
	InputTypes    map[string]TypeFunc
	OutputTypes   map[string]TypeFunc
	AnyInputType  func(q Query, n *graph.Node, c *Context, port string) types.ValueType
	AnyOutputType func(q Query, n *graph.Node, c *Context, port string) types.ValueType
}

// Ports implements NodeKind.
func (d *Definition) Ports(q Query, n *graph.Node) PortSet {
	if d.PortsFunc != nil {
		return d.PortsFunc(q, n)
	}
	return PortSet{Inputs: d.Inputs, Outputs: d.Outputs}
}

// Value implements NodeKind.
func (d *Definition) Value(q Query, n *graph.Node, s *Scope, port string) any {
	if d.ValueFunc == nil {
		return Undefined
	}
	return d.ValueFunc(q, n, s, port)
}

// OutputType implements NodeKind.
func (d *Definition) OutputType(q Query, n *graph.Node, c *Context, port string) types.ValueType {
	if fn, ok := d.OutputTypes[port]; ok {
		return fn(q, n, c)
	}
	if d.AnyOutputType != nil {
		return d.AnyOutputType(q, n, c, port)
	}
	return types.UnresolvedType()
}

// InputType implements NodeKind.
func (d *Definition) InputType(q Query, n *graph.Node, c *Context, port string) types.ValueType {
	if fn, ok := d.InputTypes[port]; ok {
		return fn(q, n, c)
	}
	if d.AnyInputType != nil {
		return d.AnyInputType(q, n, c, port)
	}
	return types.UnresolvedType()
}

// TypeDef describes the runtime values of one type tag.
type TypeDef struct {
	// Create builds the type from its parameters.
	Create func(params map[string]types.ValueType) types.ValueType

	// Empty returns the value used when a port of type t has nothing connected.
	Empty func(t types.ValueType, c *Context) any

	// Test reports whether v is a value of type t.
	Test func(v any, t types.ValueType, c *Context) bool
}
