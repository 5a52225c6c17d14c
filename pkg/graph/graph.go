package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrNodeNotFound is returned when an operation names a node that does not exist.
	ErrNodeNotFound = errors.New("node not found")

	// ErrConnectionNotFound is returned when an operation names a connection that does not exist.
	ErrConnectionNotFound = errors.New("connection not found")

	// ErrDuplicateID is returned when a node or connection id is already taken.
	ErrDuplicateID = errors.New("duplicate id")

	// ErrInvalidSlot is returned for negative slots.
	ErrInvalidSlot = errors.New("invalid slot")
)

type portKey struct {
	node NodeID
	key  string
}

// Graph is the mutable node/connection arena of one document.
// It is not safe for concurrent use; the engine serializes access.
type Graph struct {
	Name         string
	Version      int
	CurrentHighZ int

	nodes map[NodeID]*Node
	conns map[ConnID]*Connection

	// inputs indexes connections by target port, outputs by source port.
	inputs  map[portKey][]ConnID
	outputs map[portKey][]ConnID

	nextNode NodeID
	nextConn ConnID
}

// New creates an empty graph.
func New(name string) *Graph {
	return &Graph{
		Name:     name,
		nodes:    make(map[NodeID]*Node),
		conns:    make(map[ConnID]*Connection),
		inputs:   make(map[portKey][]ConnID),
		outputs:  make(map[portKey][]ConnID),
		nextNode: 1,
		nextConn: 1,
	}
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// AddNode creates a node with a fresh id. params is copied.
func (g *Graph) AddNode(kind Kind, params map[string]any) *Node {
	n := &Node{ID: g.nextNode, Kind: kind, Params: make(map[string]any, len(params))}
	for k, v := range params {
		n.Params[k] = v
	}
	g.nodes[n.ID] = n
	g.nextNode++
	return n
}

// InsertNode adds a node with a caller-chosen id, as when loading a document.
func (g *Graph) InsertNode(n Node) (*Node, error) {
	if _, exists := g.nodes[n.ID]; exists {
		return nil, fmt.Errorf("node %d: %w", n.ID, ErrDuplicateID)
	}
	stored := n.Clone()
	g.nodes[n.ID] = stored
	if n.ID >= g.nextNode {
		g.nextNode = n.ID + 1
	}
	return stored, nil
}

// Node returns the node with the given id.
func (g *Graph) Node(id NodeID) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all nodes ordered by id.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RemoveNode deletes a node and every connection touching it.
// It returns the removed connections.
func (g *Graph) RemoveNode(id NodeID) ([]Connection, error) {
	if _, ok := g.nodes[id]; !ok {
		return nil, fmt.Errorf("node %d: %w", id, ErrNodeNotFound)
	}

	removed := make([]Connection, 0)
	for _, c := range g.Connections() {
		if c.Src.NodeID == id || c.Target.NodeID == id {
			g.unlink(c.ID)
			removed = append(removed, c)
		}
	}
	delete(g.nodes, id)
	return removed, nil
}

// SetParam sets one parameter. A nil value removes it.
func (g *Graph) SetParam(id NodeID, key string, value any) error {
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("node %d: %w", id, ErrNodeNotFound)
	}
	if value == nil {
		delete(n.Params, key)
		return nil
	}
	n.Params[key] = value
	return nil
}

// Move updates the editor placement of a node and raises CurrentHighZ when needed.
func (g *Graph) Move(id NodeID, position json.RawMessage, zIndex int) error {
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("node %d: %w", id, ErrNodeNotFound)
	}
	n.Position = compactPosition(append(json.RawMessage(nil), position...))
	n.ZIndex = zIndex
	if zIndex > g.CurrentHighZ {
		g.CurrentHighZ = zIndex
	}
	return nil
}

// Connect links src to target.
//
// Single and side ports hold one connection: an existing one is replaced and returned. For a
// duplicate port a slot at or past the end appends to the list, and a slot inside the list
// replaces the connection occupying it.
func (g *Graph) Connect(src, target PortRef, mode PortMode) (Connection, *Connection, error) {
	if _, ok := g.nodes[src.NodeID]; !ok {
		return Connection{}, nil, fmt.Errorf("source node %d: %w", src.NodeID, ErrNodeNotFound)
	}
	if _, ok := g.nodes[target.NodeID]; !ok {
		return Connection{}, nil, fmt.Errorf("target node %d: %w", target.NodeID, ErrNodeNotFound)
	}
	if src.Slot < 0 || target.Slot < 0 {
		return Connection{}, nil, fmt.Errorf("%s -> %s: %w", src, target, ErrInvalidSlot)
	}

	existing := g.Inputs(target.NodeID, target.Key)
	var replaced *Connection

	if mode == PortDuplicate {
		if target.Slot >= len(existing) {
			target.Slot = len(existing)
		} else {
			for i := range existing {
				if existing[i].Target.Slot == target.Slot {
					old := existing[i]
					replaced = &old
					break
				}
			}
		}
	} else {
		target.Slot = 0
		if len(existing) > 0 {
			old := existing[0]
			replaced = &old
		}
	}

	if replaced != nil {
		g.unlink(replaced.ID)
	}

	c := Connection{ID: g.nextConn, Src: src, Target: target}
	g.link(c)
	return c, replaced, nil
}

// InsertConnection adds a connection with a caller-chosen id, as when loading a document.
// It does not apply port-mode rules.
func (g *Graph) InsertConnection(c Connection) error {
	if _, exists := g.conns[c.ID]; exists {
		return fmt.Errorf("connection %d: %w", c.ID, ErrDuplicateID)
	}
	if _, ok := g.nodes[c.Src.NodeID]; !ok {
		return fmt.Errorf("connection %d source node %d: %w", c.ID, c.Src.NodeID, ErrNodeNotFound)
	}
	if _, ok := g.nodes[c.Target.NodeID]; !ok {
		return fmt.Errorf("connection %d target node %d: %w", c.ID, c.Target.NodeID, ErrNodeNotFound)
	}
	if c.Src.Slot < 0 || c.Target.Slot < 0 {
		return fmt.Errorf("connection %d: %w", c.ID, ErrInvalidSlot)
	}
	g.link(c)
	return nil
}

// Disconnect removes a connection. When compact is set, later slots of the same target port
// shift down so a duplicate port stays dense.
func (g *Graph) Disconnect(id ConnID, compact bool) (Connection, error) {
	c, ok := g.conns[id]
	if !ok {
		return Connection{}, fmt.Errorf("connection %d: %w", id, ErrConnectionNotFound)
	}
	removed := *c
	g.unlink(id)

	if compact {
		for _, cid := range g.inputs[portKey{removed.Target.NodeID, removed.Target.Key}] {
			if other := g.conns[cid]; other.Target.Slot > removed.Target.Slot {
				other.Target.Slot--
			}
		}
	}
	return removed, nil
}

func (g *Graph) link(c Connection) {
	stored := c
	g.conns[c.ID] = &stored
	in := portKey{c.Target.NodeID, c.Target.Key}
	out := portKey{c.Src.NodeID, c.Src.Key}
	g.inputs[in] = append(g.inputs[in], c.ID)
	g.outputs[out] = append(g.outputs[out], c.ID)
	if c.ID >= g.nextConn {
		g.nextConn = c.ID + 1
	}
}

func (g *Graph) unlink(id ConnID) {
	c, ok := g.conns[id]
	if !ok {
		return
	}
	delete(g.conns, id)
	in := portKey{c.Target.NodeID, c.Target.Key}
	out := portKey{c.Src.NodeID, c.Src.Key}
	g.inputs[in] = without(g.inputs[in], id)
	if len(g.inputs[in]) == 0 {
		delete(g.inputs, in)
	}
	g.outputs[out] = without(g.outputs[out], id)
	if len(g.outputs[out]) == 0 {
		delete(g.outputs, out)
	}
}

func without(ids []ConnID, id ConnID) []ConnID {
	out := ids[:0:0]
	for _, other := range ids {
		if other != id {
			out = append(out, other)
		}
	}
	return out
}

// Connection returns a connection by id.
func (g *Graph) Connection(id ConnID) (Connection, bool) {
	c, ok := g.conns[id]
	if !ok {
		return Connection{}, false
	}
	return *c, true
}

// Connections returns all connections ordered by id.
func (g *Graph) Connections() []Connection {
	out := make([]Connection, 0, len(g.conns))
	for _, c := range g.conns {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Inputs returns the connections into one input port ordered by slot.
func (g *Graph) Inputs(node NodeID, key string) []Connection {
	ids := g.inputs[portKey{node, key}]
	out := make([]Connection, 0, len(ids))
	for _, id := range ids {
		out = append(out, *g.conns[id])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Target.Slot != out[j].Target.Slot {
			return out[i].Target.Slot < out[j].Target.Slot
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Outputs returns the connections leaving one output port ordered by id.
func (g *Graph) Outputs(node NodeID, key string) []Connection {
	ids := g.outputs[portKey{node, key}]
	out := make([]Connection, 0, len(ids))
	for _, id := range ids {
		out = append(out, *g.conns[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SlotCount returns how many connections an input port holds.
func (g *Graph) SlotCount(node NodeID, key string) int {
	return len(g.inputs[portKey{node, key}])
}

// Incoming returns every connection into a node ordered by port key, then slot.
func (g *Graph) Incoming(node NodeID) []Connection {
	out := make([]Connection, 0)
	for _, key := range g.InputKeys(node) {
		out = append(out, g.Inputs(node, key)...)
	}
	return out
}

// Outgoing returns every connection leaving a node ordered by id.
func (g *Graph) Outgoing(node NodeID) []Connection {
	out := make([]Connection, 0)
	for pk, ids := range g.outputs {
		if pk.node != node {
			continue
		}
		for _, id := range ids {
			out = append(out, *g.conns[id])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// InputKeys returns the connected input port keys of a node in sorted order.
func (g *Graph) InputKeys(node NodeID) []string {
	keys := make([]string, 0)
	for pk := range g.inputs {
		if pk.node == node {
			keys = append(keys, pk.key)
		}
	}
	sort.Strings(keys)
	return keys
}
