// Package graph holds the normalized dataflow document: nodes, ports and the connections
// between them.
//
// Connections are addressed by (node id, port key, slot) triples rather than by reference, so
// a graph can be serialized, diffed and reloaded without reconstructing object identity. The
// package knows nothing about node behavior; port modes and loop tolerance are supplied by the
// caller when a connection is made.
package graph

import (
	"encoding/json"
	"fmt"
	"math"
)

// NodeID identifies a node within a document.
type NodeID int

// ConnID identifies a connection within a document.
type ConnID int

// Kind names the behavior of a node: a node type within a module.
type Kind struct {
	Module string `json:"module"`
	Type   string `json:"type"`
}

// String returns "module.type".
func (k Kind) String() string {
	return k.Module + "." + k.Type
}

// Function separates the port groups of a node.
type Function string

const (
	// FunctionInput marks ports that receive connections.
	FunctionInput Function = "input"

	// FunctionOutput marks ports that deliver values.
	FunctionOutput Function = "output"
)

// PortMode describes how many connections a port accepts.
type PortMode int

const (
	// PortSingle accepts at most one connection.
	PortSingle PortMode = iota

	// PortDuplicate accepts an ordered list of connections, one per slot.
	// Editors always show one trailing empty slot.
	PortDuplicate

	// PortSide accepts one out-of-band connection that is not rendered as a child.
	PortSide
)

// String returns the lowercase mode name.
func (m PortMode) String() string {
	switch m {
	case PortSingle:
		return "single"
	case PortDuplicate:
		return "duplicate"
	case PortSide:
		return "side"
	default:
		return fmt.Sprintf("PortMode(%d)", int(m))
	}
}

// PortSpec declares one port of a node.
type PortSpec struct {
	Key      string
	Function Function
	Mode     PortMode

	// LoopTolerant ports may close a directed cycle, e.g. the feedback input of a store.
	LoopTolerant bool
}

// PortRef addresses one slot of a port.
type PortRef struct {
	NodeID NodeID `json:"nodeId"`
	Key    string `json:"key"`
	Slot   int    `json:"slot"`
}

// String returns "node:key[slot]".
func (p PortRef) String() string {
	return fmt.Sprintf("%d:%s[%d]", p.NodeID, p.Key, p.Slot)
}

// Connection is a directed edge from an output slot to an input slot.
type Connection struct {
	ID     ConnID  `json:"id"`
	Src    PortRef `json:"src"`
	Target PortRef `json:"target"`
}

// Node is one unit of computation.
//
// Nodes returned by a Graph are owned by it; callers change them through the Graph methods so
// that indexes and caches built on top stay consistent.
type Node struct {
	ID     NodeID
	Kind   Kind
	Params map[string]any

	// Position and ZIndex are editor data carried through unchanged.
	Position json.RawMessage
	ZIndex   int
}

// Param returns a parameter value and whether it is set.
func (n *Node) Param(key string) (any, bool) {
	v, ok := n.Params[key]
	return v, ok
}

// StringParam returns a string parameter, or def when unset or not a string.
func (n *Node) StringParam(key, def string) string {
	if s, ok := n.Params[key].(string); ok {
		return s
	}
	return def
}

// IntParam returns an integer parameter. JSON numbers decode as float64, so whole floats are
// accepted too.
func (n *Node) IntParam(key string) (int, bool) {
	switch v := n.Params[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v == math.Trunc(v) {
			return int(v), true
		}
	case json.Number:
		i, err := v.Int64()
		if err == nil {
			return int(i), true
		}
	}
	return 0, false
}

// StringsParam returns a list parameter whose items are strings. Other items are skipped.
func (n *Node) StringsParam(key string) []string {
	switch v := n.Params[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Clone returns a deep copy of the node's own fields. Param values are copied shallowly.
func (n *Node) Clone() *Node {
	c := *n
	c.Params = make(map[string]any, len(n.Params))
	for k, v := range n.Params {
		c.Params[k] = v
	}
	if n.Position != nil {
		c.Position = append(json.RawMessage(nil), n.Position...)
	}
	return &c
}
