package core

import (
	"github.com/openfroyo/nodeflow/pkg/engine"
	"github.com/openfroyo/nodeflow/pkg/graph"
	"github.com/openfroyo/nodeflow/pkg/types"
)

func stringNode() engine.NodeKind {
	return &engine.Definition{
		Outputs: []graph.PortSpec{engine.Out("output")},
		ValueFunc: func(_ engine.Query, n *graph.Node, _ *engine.Scope, _ string) any {
			return n.StringParam("value", "")
		},
		OutputTypes: map[string]engine.TypeFunc{"output": constant(types.StringType())},
	}
}

func numberNode() engine.NodeKind {
	return &engine.Definition{
		Outputs: []graph.PortSpec{engine.Out("output")},
		ValueFunc: func(_ engine.Query, n *graph.Node, _ *engine.Scope, _ string) any {
			v, _ := n.Param("value")
			f, _ := engine.ToNumber(v)
			return f
		},
		OutputTypes: map[string]engine.TypeFunc{"output": constant(types.NumberType())},
	}
}

func booleanNode() engine.NodeKind {
	return &engine.Definition{
		Outputs: []graph.PortSpec{engine.Out("output")},
		ValueFunc: func(_ engine.Query, n *graph.Node, _ *engine.Scope, _ string) any {
			b, _ := n.Params["value"].(bool)
			return b
		},
		OutputTypes: map[string]engine.TypeFunc{"output": constant(types.BooleanType())},
	}
}

// If delivers then or else depending on condition. Both branches take the type the output
// resolves to.
func ifNode() engine.NodeKind {
	return &engine.Definition{
		Inputs:  []graph.PortSpec{engine.In("condition"), engine.In("then"), engine.In("else")},
		Outputs: []graph.PortSpec{engine.Out("output")},
		ValueFunc: func(q engine.Query, n *graph.Node, s *engine.Scope, _ string) any {
			if engine.Truthy(q.Value(n.ID, s, "condition")) {
				return q.Value(n.ID, s, "then")
			}
			return q.Value(n.ID, s, "else")
		},
		InputTypes: map[string]engine.TypeFunc{
			"condition": constant(types.BooleanType()),
			"then":      out,
			"else":      out,
		},
		OutputTypes: map[string]engine.TypeFunc{
			"output": func(q engine.Query, n *graph.Node, c *engine.Context) types.ValueType {
				return types.UnionAll(q.DeliveredType(n.ID, "then", c), q.DeliveredType(n.ID, "else", c))
			},
		},
	}
}

// SetType pins the type of a value with its "type" param. Without the param it passes the
// delivered type through.
func setTypeNode() engine.NodeKind {
	return &engine.Definition{
		Inputs:    []graph.PortSpec{engine.In("input")},
		Outputs:   []graph.PortSpec{engine.Out("output")},
		ValueFunc: passthrough("input"),
		InputTypes: map[string]engine.TypeFunc{
			"input": out,
		},
		OutputTypes: map[string]engine.TypeFunc{
			"output": func(q engine.Query, n *graph.Node, c *engine.Context) types.ValueType {
				if t, ok := DeclaredType(n); ok {
					return t
				}
				return q.DeliveredType(n.ID, "input", c)
			},
		},
	}
}

// MatchType forces its two inputs to one common type. Port keys must differ between inputs and
// outputs, hence outputA and outputB.
func matchTypeNode() engine.NodeKind {
	common := func(q engine.Query, n *graph.Node, c *engine.Context) types.ValueType {
		return types.UnionAll(q.DeliveredType(n.ID, "a", c), q.DeliveredType(n.ID, "b", c))
	}
	expected := func(q engine.Query, n *graph.Node, c *engine.Context) types.ValueType {
		return types.UnionAll(q.Type(n.ID, c, "outputA"), q.Type(n.ID, c, "outputB"))
	}
	return &engine.Definition{
		Inputs:  []graph.PortSpec{engine.In("a"), engine.In("b")},
		Outputs: []graph.PortSpec{engine.Out("outputA"), engine.Out("outputB")},
		ValueFunc: func(q engine.Query, n *graph.Node, s *engine.Scope, port string) any {
			if port == "outputB" {
				return q.Value(n.ID, s, "b")
			}
			return q.Value(n.ID, s, "a")
		},
		InputTypes:  map[string]engine.TypeFunc{"a": expected, "b": expected},
		OutputTypes: map[string]engine.TypeFunc{"outputA": common, "outputB": common},
	}
}
