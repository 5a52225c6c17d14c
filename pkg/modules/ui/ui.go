// Package ui provides Element and Text nodes. Element values describe a tree; rendering them is
// left to the host application.
package ui

import (
	_ "embed"
	"fmt"
	"strconv"

	"github.com/openfroyo/nodeflow/pkg/engine"
	"github.com/openfroyo/nodeflow/pkg/graph"
	"github.com/openfroyo/nodeflow/pkg/types"
)

// Name is the module name.
const Name = "ui"

//go:embed manifest.yaml
var manifest []byte

// Node kinds of the ui module.
var (
	ElementKind = graph.Kind{Module: Name, Type: "Element"}
	TextKind    = graph.Kind{Module: Name, Type: "Text"}
)

// ElementValue is the runtime value of an Element node.
type ElementValue struct {
	Tag      string         `json:"tag"`
	Props    map[string]any `json:"props"`
	Children []any          `json:"children"`
}

// ValueType implements engine.Typed. The type carries the props; children are untyped.
func (e ElementValue) ValueType() types.ValueType {
	props := make(map[string]types.ValueType, len(e.Props))
	for k, v := range e.Props {
		props[k] = engine.InferType(v)
	}
	return types.ElementOf(props)
}

// New builds the ui module.
func New() (*engine.Module, error) {
	m, err := engine.ParseManifest(manifest)
	if err != nil {
		return nil, fmt.Errorf("ui: %w", err)
	}
	return &engine.Module{
		Manifest: m,
		Nodes: map[string]engine.NodeKind{
			"Element": elementNode(),
			"Text":    textNode(),
		},
		Types: map[string]engine.TypeDef{
			string(types.Element): elementType(),
		},
	}, nil
}

func elementType() engine.TypeDef {
	return engine.TypeDef{
		Create: types.ElementOf,
		Empty: func(t types.ValueType, c *engine.Context) any {
			props := make(map[string]any)
			for name, prop := range t.Params() {
				if v := c.EmptyValue(prop); !engine.IsUndefined(v) {
					props[name] = v
				}
			}
			return ElementValue{Props: props, Children: []any{}}
		},
		Test: func(v any, t types.ValueType, c *engine.Context) bool {
			el, ok := v.(ElementValue)
			if !ok {
				return false
			}
			for name, prop := range t.Params() {
				pv, ok := el.Props[name]
				if !ok || !c.Test(pv, prop) {
					return false
				}
			}
			return true
		},
	}
}

// propKeys returns the prop names of an Element. Names that collide with its fixed ports are
// dropped.
func propKeys(n *graph.Node) []string {
	names := n.StringsParam("props")
	keys := names[:0]
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if name == "" || name == "output" || name == "children" || seen[name] {
			continue
		}
		seen[name] = true
		keys = append(keys, name)
	}
	return keys
}

// Element builds an ElementValue from its "tag" param, one input per prop and a duplicate
// children port.
func elementNode() engine.NodeKind {
	return &engine.Definition{
		PortsFunc: func(_ engine.Query, n *graph.Node) engine.PortSet {
			keys := propKeys(n)
			inputs := make([]graph.PortSpec, 0, len(keys)+1)
			for _, k := range keys {
				inputs = append(inputs, engine.In(k))
			}
			inputs = append(inputs, engine.InList("children"))
			return engine.PortSet{Inputs: inputs, Outputs: []graph.PortSpec{engine.Out("output")}}
		},
		ValueFunc: func(q engine.Query, n *graph.Node, s *engine.Scope, _ string) any {
			props := make(map[string]any)
			for _, k := range propKeys(n) {
				if v := q.Value(n.ID, s, k); !engine.IsUndefined(v) {
					props[k] = v
				}
			}
			children, _ := q.Value(n.ID, s, "children").([]any)
			return ElementValue{Tag: n.StringParam("tag", "div"), Props: props, Children: children}
		},
		AnyInputType: func(q engine.Query, n *graph.Node, c *engine.Context, port string) types.ValueType {
			if port == "children" {
				return types.UnresolvedType()
			}
			return types.Unwrap(q.Type(n.ID, c, "output"), types.Element, port)
		},
		OutputTypes: map[string]engine.TypeFunc{
			"output": func(q engine.Query, n *graph.Node, c *engine.Context) types.ValueType {
				keys := propKeys(n)
				props := make(map[string]types.ValueType, len(keys))
				for _, k := range keys {
					props[k] = q.DeliveredType(n.ID, k, c)
				}
				return types.ElementOf(props)
			},
		},
	}
}

// Text renders its input as a string, or its "value" param when nothing is connected.
func textNode() engine.NodeKind {
	return &engine.Definition{
		Inputs:  []graph.PortSpec{engine.In("input")},
		Outputs: []graph.PortSpec{engine.Out("output")},
		ValueFunc: func(q engine.Query, n *graph.Node, s *engine.Scope, _ string) any {
			v := q.Value(n.ID, s, "input")
			if engine.IsUndefined(v) {
				return n.StringParam("value", "")
			}
			return Text(v)
		},
		OutputTypes: map[string]engine.TypeFunc{
			"output": func(engine.Query, *graph.Node, *engine.Context) types.ValueType {
				return types.StringType()
			},
		},
	}
}

// Text formats a value as display text.
func Text(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case fmt.Stringer:
		return val.String()
	}
	return fmt.Sprint(v)
}
