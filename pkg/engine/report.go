package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/nodeflow/pkg/graph"
	"github.com/openfroyo/nodeflow/pkg/types"
)

// PortResult is the resolved value and type of one output port.
type PortResult struct {
	Node  graph.NodeID    `json:"node"`
	Kind  string          `json:"kind"`
	Port  string          `json:"port"`
	Value any             `json:"value"`
	Type  types.ValueType `json:"type"`
}

// Report is the outcome of evaluating every output port of a document.
type Report struct {
	Document   string        `json:"document"`
	Results    []PortResult  `json:"results"`
	Mismatches int           `json:"mismatches"`
	Duration   time.Duration `json:"duration"`
	Cache      CacheStats    `json:"cache"`
}

// Evaluate resolves the value and type of every output port in the root scope and context.
func (e *Engine) Evaluate(ctx context.Context) (*Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, span := e.tracer.Start(ctx, "engine.evaluate",
		trace.WithAttributes(attribute.String("document", e.graph.Name)))
	defer span.End()

	start := time.Now()
	report := &Report{Document: e.graph.Name, Results: make([]PortResult, 0)}
	q := e.q()

	nodes := e.graph.Nodes()
	for _, n := range nodes {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("evaluation of %q interrupted: %w", e.graph.Name, err)
		}
		for _, out := range q.Ports(n.ID).Outputs {
			t := q.Type(n.ID, e.root, out.Key)
			if types.IsMismatch(t) {
				report.Mismatches++
			}
			report.Results = append(report.Results, PortResult{
				Node:  n.ID,
				Kind:  n.Kind.String(),
				Port:  out.Key,
				Value: q.Value(n.ID, e.rootScope, out.Key),
				Type:  t,
			})
		}
	}

	report.Duration = time.Since(start)
	report.Cache = e.memo.snapshot()
	e.metrics.RecordEvaluation(report.Duration, len(nodes), report.Mismatches)

	span.SetAttributes(
		attribute.Int("nodes", len(nodes)),
		attribute.Int("ports", len(report.Results)),
		attribute.Int("mismatches", report.Mismatches),
	)
	span.SetStatus(codes.Ok, "evaluated")

	e.logger.Debug().
		Int("nodes", len(nodes)).
		Int("mismatches", report.Mismatches).
		Dur("duration", report.Duration).
		Msg("Document evaluated")
	return report, nil
}

// Severity grades a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic is one problem found in a document.
type Diagnostic struct {
	Severity   Severity     `json:"severity"`
	Node       graph.NodeID `json:"node"`
	Port       string       `json:"port,omitempty"`
	Connection graph.ConnID `json:"connection,omitempty"`
	Message    string       `json:"message"`
}

func (d Diagnostic) String() string {
	loc := fmt.Sprintf("node %d", d.Node)
	if d.Port != "" {
		loc += " port " + d.Port
	}
	if d.Connection != 0 {
		loc += fmt.Sprintf(" connection %d", d.Connection)
	}
	return fmt.Sprintf("%s: %s: %s", d.Severity, loc, d.Message)
}

// Diagnostics lists unknown kinds, mismatched ports, connections between incompatible or
// undeclared ports, and directed cycles.
func (e *Engine) Diagnostics(ctx context.Context) []Diagnostic {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, span := e.tracer.Start(ctx, "engine.diagnostics",
		trace.WithAttributes(attribute.String("document", e.graph.Name)))
	defer span.End()

	q := e.q()
	var out []Diagnostic

	for _, n := range e.graph.Nodes() {
		if _, ok := e.registry.Kind(n.Kind); !ok {
			out = append(out, Diagnostic{
				Severity: SeverityError,
				Node:     n.ID,
				Message:  fmt.Sprintf("unknown node kind %s", n.Kind),
			})
			continue
		}
		for _, port := range q.Ports(n.ID).Outputs {
			t := q.Type(n.ID, e.root, port.Key)
			if m, ok := types.FirstMismatch(t); ok {
				out = append(out, Diagnostic{
					Severity: SeverityError,
					Node:     n.ID,
					Port:     port.Key,
					Message:  fmt.Sprintf("type mismatch: %s", m.Reason()),
				})
			}
		}
	}

	for _, c := range e.graph.Connections() {
		if _, ok := q.Ports(c.Src.NodeID).Output(c.Src.Key); !ok {
			out = append(out, Diagnostic{
				Severity:   SeverityWarning,
				Node:       c.Src.NodeID,
				Port:       c.Src.Key,
				Connection: c.ID,
				Message:    "connection leaves an undeclared output port",
			})
			continue
		}
		if _, ok := q.Ports(c.Target.NodeID).Input(c.Target.Key); !ok {
			out = append(out, Diagnostic{
				Severity:   SeverityWarning,
				Node:       c.Target.NodeID,
				Port:       c.Target.Key,
				Connection: c.ID,
				Message:    "connection enters an undeclared input port",
			})
			continue
		}
		have := q.UnmatchedType(c.Src.NodeID, e.root, c.Src.Key)
		want := q.ExpectedType(c.Target.NodeID, c.Target.Key, e.root)
		if !types.CanMatch(have, want) {
			out = append(out, Diagnostic{
				Severity:   SeverityError,
				Node:       c.Target.NodeID,
				Port:       c.Target.Key,
				Connection: c.ID,
				Message:    fmt.Sprintf("%s cannot feed %s", have, want),
			})
		}
	}

	if cycle := e.graph.DetectCycle(e.follows); cycle != nil {
		out = append(out, Diagnostic{
			Severity: SeverityError,
			Node:     cycle[0],
			Message:  fmt.Sprintf("cycle detected: %s", graph.FormatPath(cycle)),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Node != out[j].Node {
			return out[i].Node < out[j].Node
		}
		return out[i].Connection < out[j].Connection
	})
	span.SetAttributes(attribute.Int("diagnostics", len(out)))
	return out
}
