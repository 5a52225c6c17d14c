package graph

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
)

// Document is the persisted form of a graph.
type Document struct {
	Name         string       `json:"name" yaml:"name" validate:"required"`
	Version      int          `json:"version" yaml:"version" validate:"gte=0"`
	CurrentHighZ int          `json:"currentHighZ" yaml:"currentHighZ"`
	Nodes        []NodeRecord `json:"nodes" yaml:"nodes" validate:"dive"`
	Connections  []Connection `json:"connections" yaml:"connections" validate:"dive"`
}

// NodeRecord is the persisted form of a node. Position is kept as raw JSON.
type NodeRecord struct {
	ID       NodeID          `json:"id" yaml:"id" validate:"gte=0"`
	Type     string          `json:"type" yaml:"type" validate:"required"`
	Module   string          `json:"module" yaml:"module" validate:"required"`
	Params   map[string]any  `json:"params" yaml:"params"`
	Position json.RawMessage `json:"position,omitempty" yaml:"-"`
	ZIndex   int             `json:"zIndex" yaml:"zIndex"`
}

// UnmarshalJSON decodes a node record. Position is stored compacted: encoding/json re-indents
// raw messages on write, so only the compact form survives a save and reload unchanged.
func (r *NodeRecord) UnmarshalJSON(data []byte) error {
	type plain NodeRecord
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	p.Position = compactPosition(p.Position)
	*r = NodeRecord(p)
	return nil
}

func compactPosition(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return raw
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return json.RawMessage(buf.Bytes())
}

var validate = validator.New()

// Validate checks the field-level constraints of the document.
func (d *Document) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("invalid document: %w", err)
	}
	return nil
}

// ParseDocument decodes and validates a JSON document.
func ParseDocument(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("failed to parse document: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Marshal encodes a document as indented JSON.
func (d Document) Marshal() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// FromDocument builds a graph from a document. Every broken reference is reported, not only
// the first.
func FromDocument(doc Document) (*Graph, error) {
	g := New(doc.Name)
	g.Version = doc.Version
	g.CurrentHighZ = doc.CurrentHighZ

	var result *multierror.Error
	for _, rec := range doc.Nodes {
		n := Node{
			ID:       rec.ID,
			Kind:     Kind{Module: rec.Module, Type: rec.Type},
			Params:   rec.Params,
			Position: rec.Position,
			ZIndex:   rec.ZIndex,
		}
		if _, err := g.InsertNode(n); err != nil {
			result = multierror.Append(result, err)
		}
	}
	for _, c := range doc.Connections {
		if err := g.InsertConnection(c); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("document %q: %w", doc.Name, err)
	}
	return g, nil
}

// Snapshot returns the persisted form of g, nodes and connections ordered by id.
func (g *Graph) Snapshot() Document {
	doc := Document{
		Name:         g.Name,
		Version:      g.Version,
		CurrentHighZ: g.CurrentHighZ,
		Nodes:        make([]NodeRecord, 0, len(g.nodes)),
		Connections:  g.Connections(),
	}
	for _, n := range g.Nodes() {
		c := n.Clone()
		doc.Nodes = append(doc.Nodes, NodeRecord{
			ID:       c.ID,
			Type:     c.Kind.Type,
			Module:   c.Kind.Module,
			Params:   c.Params,
			Position: c.Position,
			ZIndex:   c.ZIndex,
		})
	}
	return doc
}
