package engine

import (
	"github.com/openfroyo/nodeflow/pkg/graph"
	"github.com/openfroyo/nodeflow/pkg/types"
)

// NotFound is the kind of every node whose module or type is not registered. It has no ports,
// delivers Undefined and types every port as a Mismatch, so queries stay total.
var NotFound NodeKind = notFound{}

type notFound struct{}

func (notFound) Ports(Query, *graph.Node) PortSet { return PortSet{} }

func (notFound) Value(Query, *graph.Node, *Scope, string) any { return Undefined }

func (notFound) OutputType(_ Query, n *graph.Node, _ *Context, _ string) types.ValueType {
	return types.Mismatchf("unknown node kind %s", n.Kind)
}

func (notFound) InputType(_ Query, n *graph.Node, _ *Context, _ string) types.ValueType {
	return types.Mismatchf("unknown node kind %s", n.Kind)
}
