// Package collection provides arrays and the Items/Collect iteration pair.
//
// Collect evaluates its input once per element of the array feeding its paired Items node. Each
// evaluation runs in a child scope binding "item", so per-element results are cached apart.
package collection

import (
	_ "embed"
	"fmt"

	"github.com/openfroyo/nodeflow/pkg/engine"
	"github.com/openfroyo/nodeflow/pkg/graph"
	"github.com/openfroyo/nodeflow/pkg/types"
)

// Name is the module name.
const Name = "collection"

//go:embed manifest.yaml
var manifest []byte

// Node kinds of the collection module.
var (
	ArrayKind   = graph.Kind{Module: Name, Type: "Array"}
	ItemsKind   = graph.Kind{Module: Name, Type: "Items"}
	CollectKind = graph.Kind{Module: Name, Type: "Collect"}
	LengthKind  = graph.Kind{Module: Name, Type: "Length"}
)

// New builds the collection module.
func New() (*engine.Module, error) {
	m, err := engine.ParseManifest(manifest)
	if err != nil {
		return nil, fmt.Errorf("collection: %w", err)
	}
	return &engine.Module{
		Manifest: m,
		Nodes: map[string]engine.NodeKind{
			"Array":   arrayNode(),
			"Items":   itemsNode(),
			"Collect": collectNode(),
			"Length":  lengthNode(),
		},
		Types: map[string]engine.TypeDef{
			string(types.Array): arrayType(),
		},
	}, nil
}

func out(q engine.Query, n *graph.Node, c *engine.Context) types.ValueType {
	return q.Type(n.ID, c, "output")
}

func arrayType() engine.TypeDef {
	return engine.TypeDef{
		Create: func(params map[string]types.ValueType) types.ValueType {
			return types.ArrayOf(params["item"])
		},
		Empty: func(types.ValueType, *engine.Context) any { return []any{} },
		Test: func(v any, t types.ValueType, c *engine.Context) bool {
			list, ok := v.([]any)
			if !ok {
				return false
			}
			for _, item := range list {
				if !c.Test(item, t.Param("item")) {
					return false
				}
			}
			return true
		},
	}
}

// Array collects its duplicate input into a list, one element per slot.
func arrayNode() engine.NodeKind {
	return &engine.Definition{
		Inputs:  []graph.PortSpec{engine.InList("input")},
		Outputs: []graph.PortSpec{engine.Out("output")},
		ValueFunc: func(q engine.Query, n *graph.Node, s *engine.Scope, _ string) any {
			return q.Value(n.ID, s, "input")
		},
		InputTypes: map[string]engine.TypeFunc{
			"input": func(q engine.Query, n *graph.Node, c *engine.Context) types.ValueType {
				return types.Unwrap(out(q, n, c), types.Array, "item")
			},
		},
		OutputTypes: map[string]engine.TypeFunc{
			"output": func(q engine.Query, n *graph.Node, c *engine.Context) types.ValueType {
				return types.ArrayOf(q.DeliveredType(n.ID, "input", c))
			},
		},
	}
}

func lengthNode() engine.NodeKind {
	return &engine.Definition{
		Inputs:  []graph.PortSpec{engine.In("input")},
		Outputs: []graph.PortSpec{engine.Out("output")},
		ValueFunc: func(q engine.Query, n *graph.Node, s *engine.Scope, _ string) any {
			list, _ := q.Value(n.ID, s, "input").([]any)
			return float64(len(list))
		},
		InputTypes: map[string]engine.TypeFunc{
			"input": func(engine.Query, *graph.Node, *engine.Context) types.ValueType {
				return types.ArrayOf(types.UnresolvedType())
			},
		},
		OutputTypes: map[string]engine.TypeFunc{
			"output": func(engine.Query, *graph.Node, *engine.Context) types.ValueType {
				return types.NumberType()
			},
		},
	}
}
