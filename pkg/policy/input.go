package policy

import (
	"github.com/openfroyo/nodeflow/pkg/engine"
	"github.com/openfroyo/nodeflow/pkg/graph"
)

// Input is the document as the Rego rules see it: every node with the ports its kind declares,
// and the connections exactly as stored, dangling ones included.
type Input struct {
	Document    string             `json:"document"`
	Nodes       []NodeInput        `json:"nodes"`
	Connections []graph.Connection `json:"connections"`
}

// NodeInput is one node of an Input.
type NodeInput struct {
	ID      int            `json:"id"`
	Kind    string         `json:"kind"`
	Known   bool           `json:"known"`
	Params  map[string]any `json:"params"`
	Inputs  []PortInput    `json:"inputs"`
	Outputs []PortInput    `json:"outputs"`
}

// PortInput describes one declared port.
type PortInput struct {
	Key          string `json:"key"`
	Mode         string `json:"mode"`
	LoopTolerant bool   `json:"loopTolerant"`
}

// BuildInput resolves the port sets of a document's nodes against reg. Connections with missing
// endpoints are left out of the graph used for port resolution but kept in the Input.
func BuildInput(doc graph.Document, reg *engine.Registry) Input {
	g := graph.New(doc.Name)
	for _, rec := range doc.Nodes {
		_, _ = g.InsertNode(graph.Node{
			ID:     rec.ID,
			Kind:   graph.Kind{Module: rec.Module, Type: rec.Type},
			Params: rec.Params,
		})
	}
	for _, c := range doc.Connections {
		_ = g.InsertConnection(c)
	}
	e := engine.New(g, reg, engine.Options{AllowMismatch: true})

	in := Input{
		Document:    doc.Name,
		Nodes:       make([]NodeInput, 0, len(doc.Nodes)),
		Connections: doc.Connections,
	}
	if in.Connections == nil {
		in.Connections = []graph.Connection{}
	}
	for _, rec := range doc.Nodes {
		kind := graph.Kind{Module: rec.Module, Type: rec.Type}
		_, known := reg.Kind(kind)
		params := rec.Params
		if params == nil {
			params = map[string]any{}
		}
		ports, _ := e.Ports(rec.ID)
		in.Nodes = append(in.Nodes, NodeInput{
			ID:      int(rec.ID),
			Kind:    kind.String(),
			Known:   known,
			Params:  params,
			Inputs:  portInputs(ports.Inputs),
			Outputs: portInputs(ports.Outputs),
		})
	}
	return in
}

func portInputs(specs []graph.PortSpec) []PortInput {
	out := make([]PortInput, len(specs))
	for i, s := range specs {
		out[i] = PortInput{Key: s.Key, Mode: s.Mode.String(), LoopTolerant: s.LoopTolerant}
	}
	return out
}
