package core

import (
	"github.com/openfroyo/nodeflow/pkg/engine"
	"github.com/openfroyo/nodeflow/pkg/graph"
	"github.com/openfroyo/nodeflow/pkg/types"
)

// State holds a mutable value in its "value" param. Its "set" port is loop-tolerant so a
// computation reading the state can feed its next value back; writing the param is the editor's
// job, the port only carries the wiring and its type constraint.
func stateNode() engine.NodeKind {
	return &engine.Definition{
		Inputs:  []graph.PortSpec{engine.InSide("set", true)},
		Outputs: []graph.PortSpec{engine.Out("output")},
		ValueFunc: func(q engine.Query, n *graph.Node, s *engine.Scope, _ string) any {
			if v, ok := n.Param("value"); ok {
				return v
			}
			return s.Context().EmptyValue(q.Type(n.ID, s.Context(), "output"))
		},
		InputTypes: map[string]engine.TypeFunc{
			"set": func(q engine.Query, n *graph.Node, c *engine.Context) types.ValueType {
				return q.UnmatchedType(n.ID, c, "output")
			},
		},
		OutputTypes: map[string]engine.TypeFunc{
			"output": func(_ engine.Query, n *graph.Node, _ *engine.Context) types.ValueType {
				if t, ok := DeclaredType(n); ok {
					return t
				}
				if v, ok := n.Param("value"); ok {
					return engine.InferType(v)
				}
				return types.UnresolvedType()
			},
		},
	}
}
