package collection

import (
	"fmt"

	"github.com/openfroyo/nodeflow/pkg/engine"
	"github.com/openfroyo/nodeflow/pkg/graph"
	"github.com/openfroyo/nodeflow/pkg/types"
)

// ItemBinding is the "item" local Collect binds for each element.
type ItemBinding struct {
	Items graph.NodeID
	Index int
	Item  any
}

// Fingerprint implements engine.Binding.
func (b ItemBinding) Fingerprint() string {
	return fmt.Sprintf("item(items=%d,index=%d,value=%s)", b.Items, b.Index, engine.Fingerprint(b.Item))
}

// binding returns the nearest item bound for the Items node id.
func binding(s *engine.Scope, id graph.NodeID) (ItemBinding, bool) {
	for _, b := range s.Bindings("item") {
		if item, ok := b.(ItemBinding); ok && item.Items == id {
			return item, true
		}
	}
	return ItemBinding{}, false
}

// Items exposes the current element of the array on its input, and its index. Outside an
// iteration it delivers the empty value of the element type.
func itemsNode() engine.NodeKind {
	return &engine.Definition{
		Inputs:  []graph.PortSpec{engine.In("input")},
		Outputs: []graph.PortSpec{engine.Out("output"), engine.Out("index")},
		ValueFunc: func(q engine.Query, n *graph.Node, s *engine.Scope, port string) any {
			item, ok := binding(s, n.ID)
			if port == "index" {
				return float64(item.Index)
			}
			if ok {
				return item.Item
			}
			c := s.Context()
			return c.EmptyValue(q.Type(n.ID, c, "output"))
		},
		InputTypes: map[string]engine.TypeFunc{
			"input": func(q engine.Query, n *graph.Node, c *engine.Context) types.ValueType {
				return types.ArrayOf(out(q, n, c))
			},
		},
		OutputTypes: map[string]engine.TypeFunc{
			"output": func(q engine.Query, n *graph.Node, c *engine.Context) types.ValueType {
				return types.Unwrap(q.DeliveredType(n.ID, "input", c), types.Array, "item")
			},
			"index": func(engine.Query, *graph.Node, *engine.Context) types.ValueType {
				return types.NumberType()
			},
		},
	}
}

// PairedItems finds the Items node a Collect iterates: the nearest Items upstream of it. The
// search passes over nested Collect nodes, resuming above the Items they iterate.
func PairedItems(q engine.Query, collect graph.NodeID) (graph.NodeID, bool) {
	visited := map[graph.NodeID]bool{collect: true}
	queue := []graph.NodeID{collect}

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
				if !ok {
					continue
				}
				switch n.Kind {
				case ItemsKind:
					return src, true
				case CollectKind:
					inner, ok := PairedItems(q, src)
					if !ok || visited[inner] {
						continue
					}
					visited[inner] = true
					queue = append(queue, inner)
				default:
					queue = append(queue, src)
				}
			}
		}
	}
	return 0, false
}

// Collect maps its input over the elements iterated by its paired Items node.
func collectNode() engine.NodeKind {
	return &engine.Definition{
		Inputs:  []graph.PortSpec{engine.In("input")},
		Outputs: []graph.PortSpec{engine.Out("output")},
		ValueFunc: func(q engine.Query, n *graph.Node, s *engine.Scope, _ string) any {
			items, ok := PairedItems(q, n.ID)
			if !ok {
				return []any{}
			}
			list, _ := q.Value(items, s, "input").([]any)
			results := make([]any, len(list))
			for i, item := range list {
				child := s.Child(map[string]any{"item": ItemBinding{Items: items, Index: i, Item: item}})
				results[i] = q.Value(n.ID, child, "input")
			}
			return results
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
