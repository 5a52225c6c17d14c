package core

import (
	"fmt"

	"github.com/openfroyo/nodeflow/pkg/engine"
	"github.com/openfroyo/nodeflow/pkg/graph"
	"github.com/openfroyo/nodeflow/pkg/types"
)

// PairValue is the runtime value of a Pair.
type PairValue struct {
	Key   any `json:"key"`
	Value any `json:"value"`
}

// ValueType implements engine.Typed.
func (p PairValue) ValueType() types.ValueType {
	return types.PairOf(engine.InferType(p.Key), engine.InferType(p.Value))
}

func (p PairValue) String() string {
	return fmt.Sprintf("(%v, %v)", p.Key, p.Value)
}

// objectKeys returns the field names of an Object node. Keys that would collide with the output
// port are dropped.
func objectKeys(n *graph.Node) []string {
	keys := n.StringsParam("keys")
	fields := keys[:0]
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if k == "" || k == "output" || seen[k] {
			continue
		}
		seen[k] = true
		fields = append(fields, k)
	}
	return fields
}

// Object builds a map from one input per key named in its "keys" param. Unconnected fields are
// left out of the value but stay in the type.
func objectNode() engine.NodeKind {
	return &engine.Definition{
		PortsFunc: func(_ engine.Query, n *graph.Node) engine.PortSet {
			keys := objectKeys(n)
			inputs := make([]graph.PortSpec, len(keys))
			for i, k := range keys {
				inputs[i] = engine.In(k)
			}
			return engine.PortSet{Inputs: inputs, Outputs: []graph.PortSpec{engine.Out("output")}}
		},
		ValueFunc: func(q engine.Query, n *graph.Node, s *engine.Scope, _ string) any {
			obj := make(map[string]any)
			for _, k := range objectKeys(n) {
				if v := q.Value(n.ID, s, k); !engine.IsUndefined(v) {
					obj[k] = v
				}
			}
			return obj
		},
		AnyInputType: func(q engine.Query, n *graph.Node, c *engine.Context, port string) types.ValueType {
			return types.Unwrap(out(q, n, c), types.Object, port)
		},
		OutputTypes: map[string]engine.TypeFunc{
			"output": func(q engine.Query, n *graph.Node, c *engine.Context) types.ValueType {
				keys := objectKeys(n)
				fields := make(map[string]types.ValueType, len(keys))
				for _, k := range keys {
					fields[k] = q.DeliveredType(n.ID, k, c)
				}
				return types.ObjectOf(fields)
			},
		},
	}
}

func pairNode() engine.NodeKind {
	return &engine.Definition{
		Inputs:  []graph.PortSpec{engine.In("key"), engine.In("value")},
		Outputs: []graph.PortSpec{engine.Out("output")},
		ValueFunc: func(q engine.Query, n *graph.Node, s *engine.Scope, _ string) any {
			return PairValue{Key: q.Value(n.ID, s, "key"), Value: q.Value(n.ID, s, "value")}
		},
		InputTypes: map[string]engine.TypeFunc{
			"key": func(q engine.Query, n *graph.Node, c *engine.Context) types.ValueType {
				return types.Unwrap(out(q, n, c), types.Pair, "key")
			},
			"value": func(q engine.Query, n *graph.Node, c *engine.Context) types.ValueType {
				return types.Unwrap(out(q, n, c), types.Pair, "value")
			},
		},
		OutputTypes: map[string]engine.TypeFunc{
			"output": func(q engine.Query, n *graph.Node, c *engine.Context) types.ValueType {
				return types.PairOf(q.DeliveredType(n.ID, "key", c), q.DeliveredType(n.ID, "value", c))
			},
		},
	}
}

// Get reads the field named by its "key" param from an Object.
func getNode() engine.NodeKind {
	return &engine.Definition{
		Inputs:  []graph.PortSpec{engine.In("input")},
		Outputs: []graph.PortSpec{engine.Out("output")},
		ValueFunc: func(q engine.Query, n *graph.Node, s *engine.Scope, _ string) any {
			obj, _ := q.Value(n.ID, s, "input").(map[string]any)
			if field, ok := obj[n.StringParam("key", "")]; ok {
				return field
			}
			return engine.Undefined
		},
		InputTypes: map[string]engine.TypeFunc{
			"input": func(q engine.Query, n *graph.Node, c *engine.Context) types.ValueType {
				return types.ObjectOf(map[string]types.ValueType{n.StringParam("key", ""): out(q, n, c)})
			},
		},
		OutputTypes: map[string]engine.TypeFunc{
			"output": func(q engine.Query, n *graph.Node, c *engine.Context) types.ValueType {
				key := n.StringParam("key", "")
				src := q.DeliveredType(n.ID, "input", c)
				switch src.Tag() {
				case types.Unresolved, types.Mismatch:
					return src
				case types.Object:
					if field, ok := src.Lookup(key); ok {
						return field
					}
					return types.Mismatchf("missing field %q", key)
				}
				return types.Mismatchf("expected Object, got %s", src.Tag())
			},
		},
	}
}
