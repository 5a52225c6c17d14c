package engine

import (
	"time"

	"github.com/openfroyo/nodeflow/pkg/graph"
)

// Recorder receives engine measurements. telemetry.Metrics implements it.
type Recorder interface {
	RecordQuery(query string, hit bool)
	RecordInvalidation(reason string, entries int)
	RecordMutation(operation string, err error)
	RecordRejectedConnection(reason string)
	RecordEvaluation(duration time.Duration, nodes, mismatches int)
}

// Mutation event types.
const (
	EventNodeAdded          = "node.added"
	EventNodeRemoved        = "node.removed"
	EventNodeMoved          = "node.moved"
	EventParamChanged       = "param.changed"
	EventConnectionAdded    = "connection.added"
	EventConnectionRemoved  = "connection.removed"
	EventConnectionRejected = "connection.rejected"
	EventCacheInvalidated   = "cache.invalidated"
)

// MutationEvent describes one change applied through the mutation surface.
type MutationEvent struct {
	Type       string
	Document   string
	Node       graph.NodeID
	Connection graph.ConnID
	Data       map[string]interface{}
}

// EventSink receives mutation events. Implementations must not call back into the engine
// synchronously.
type EventSink interface {
	PublishMutation(ev MutationEvent)
}

type nopRecorder struct{}

func (nopRecorder) RecordQuery(string, bool)                 {}
func (nopRecorder) RecordInvalidation(string, int)           {}
func (nopRecorder) RecordMutation(string, error)             {}
func (nopRecorder) RecordRejectedConnection(string)          {}
func (nopRecorder) RecordEvaluation(time.Duration, int, int) {}

type nopSink struct{}

func (nopSink) PublishMutation(MutationEvent) {}
