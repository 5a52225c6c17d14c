package engine

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openfroyo/nodeflow/pkg/graph"
	"github.com/openfroyo/nodeflow/pkg/types"
)

// ConnectCheck is the verdict on a prospective connection.
type ConnectCheck struct {
	// Allowed is true when both the cycle and the type checks pass.
	Allowed bool `json:"allowed"`

	// Loop is true when the connection would close a directed cycle.
	Loop bool `json:"loop"`

	// TypesMatch is true when the source type can unify with the expected type.
	TypesMatch bool            `json:"typesMatch"`
	Have       types.ValueType `json:"have"`
	Want       types.ValueType `json:"want"`

	// Reason explains a refusal.
	Reason string `json:"reason,omitempty"`
}

// AddNode creates a node. Kinds that are not registered are accepted and behave as NotFound.
func (e *Engine) AddNode(kind graph.Kind, params map[string]any) graph.NodeID {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.registry.Kind(kind); !ok {
		e.logger.Warn().Str("kind", kind.String()).Msg("Adding node of unknown kind")
	}

	n := e.graph.AddNode(kind, params)
	evicted := e.memo.evictNode(n.ID) + e.evictDefines(kind)
	e.invalidated("node_added", evicted)

	e.logger.Debug().Int("node", int(n.ID)).Str("kind", kind.String()).Msg("Node added")
	e.metrics.RecordMutation("add_node", nil)
	e.publish(EventNodeAdded, n.ID, 0, map[string]interface{}{"kind": kind.String()})
	return n.ID
}

// RemoveNode deletes a node and every connection touching it.
func (e *Engine) RemoveNode(id graph.NodeID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var kind graph.Kind
	if n, ok := e.graph.Node(id); ok {
		kind = n.Kind
	}
	removed, err := e.graph.RemoveNode(id)
	if err != nil {
		return e.fail("remove_node", NewNotFoundError("cannot remove node", err).WithNode(int(id)))
	}

	evicted := 0
	for _, c := range removed {
		evicted += e.connectionChanged(c)
		e.publish(EventConnectionRemoved, c.Target.NodeID, c.ID, map[string]interface{}{"cascade": true})
	}
	evicted += e.memo.evictNode(id) + e.evictDefines(kind)
	e.guard.Invalidate(id)
	e.invalidated("node_removed", evicted)

	e.logger.Debug().Int("node", int(id)).Int("connections", len(removed)).Msg("Node removed")
	e.metrics.RecordMutation("remove_node", nil)
	e.publish(EventNodeRemoved, id, 0, nil)
	return nil
}

// SetParam sets one parameter of a node. A nil value removes the parameter.
func (e *Engine) SetParam(id graph.NodeID, key string, value any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.graph.SetParam(id, key, value); err != nil {
		return e.fail("set_param", NewNotFoundError("cannot set param", err).WithNode(int(id)))
	}

	n, _ := e.graph.Node(id)
	evicted := e.memo.evictNode(id) + e.evictDefines(n.Kind)
	e.guard.Invalidate(id)
	e.invalidated("param_changed", evicted)

	e.logger.Debug().Int("node", int(id)).Str("param", key).Msg("Param changed")
	e.metrics.RecordMutation("set_param", nil)
	e.publish(EventParamChanged, id, 0, map[string]interface{}{"param": key})
	return nil
}

// Move updates editor placement. It never affects cached results.
func (e *Engine) Move(id graph.NodeID, position json.RawMessage, zIndex int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.graph.Move(id, position, zIndex); err != nil {
		return e.fail("move", NewNotFoundError("cannot move node", err).WithNode(int(id)))
	}
	e.metrics.RecordMutation("move", nil)
	e.publish(EventNodeMoved, id, 0, map[string]interface{}{"zIndex": zIndex})
	return nil
}

// Connect links an output port to an input port.
//
// The connection is refused with a loop error when it would close a directed cycle through
// ports that are not loop-tolerant, and with a conflict error when the source type cannot unify
// with the type the target expects (unless the engine allows mismatches). Connecting into an
// occupied single port replaces the existing connection.
func (e *Engine) Connect(src, target graph.PortRef) (graph.Connection, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	spec, err := e.checkEndpoints(src, target)
	if err != nil {
		return graph.Connection{}, e.fail("connect", err)
	}

	if !e.guard.Allows(src.NodeID, target.NodeID, spec.LoopTolerant) {
		return graph.Connection{}, e.reject("loop", src, target,
			NewLoopError(fmt.Sprintf("connecting %s to %s would create a cycle", src, target)).
				WithNode(int(target.NodeID)))
	}

	conn, replaced, err := e.graph.Connect(src, target, spec.Mode)
	if err != nil {
		return graph.Connection{}, e.fail("connect", NewInvalidError("cannot connect", err))
	}
	evicted := e.connectionChanged(conn)
	if replaced != nil {
		evicted += e.connectionChanged(*replaced)
	}

	if !e.allowMismatch {
		q := e.q()
		have := q.UnmatchedType(src.NodeID, e.root, src.Key)
		want := q.ExpectedType(target.NodeID, target.Key, e.root)
		if !types.CanMatch(have, want) {
			e.rollback(conn, replaced)
			return graph.Connection{}, e.reject("type_mismatch", src, target,
				NewConflictError(fmt.Sprintf("%s cannot feed %s: %s", src, target, mismatchReason(types.Unify(have, want)))).
					WithNode(int(target.NodeID)).
					WithDetail("have", have.String()).
					WithDetail("want", want.String()))
		}
	}
	e.invalidated("connection_added", evicted)

	e.logger.Debug().
		Int("connection", int(conn.ID)).
		Str("src", conn.Src.String()).
		Str("target", conn.Target.String()).
		Msg("Connection added")
	e.metrics.RecordMutation("connect", nil)
	if replaced != nil {
		e.publish(EventConnectionRemoved, replaced.Target.NodeID, replaced.ID, map[string]interface{}{"replaced": true})
	}
	e.publish(EventConnectionAdded, conn.Target.NodeID, conn.ID, map[string]interface{}{
		"src":    conn.Src.String(),
		"target": conn.Target.String(),
	})
	return conn, nil
}

// rollback undoes a connection that failed the type check.
func (e *Engine) rollback(conn graph.Connection, replaced *graph.Connection) {
	if _, err := e.graph.Disconnect(conn.ID, false); err == nil {
		e.connectionChanged(conn)
	}
	if replaced != nil {
		if err := e.graph.InsertConnection(*replaced); err != nil {
			e.logger.Error().Err(err).Int("connection", int(replaced.ID)).Msg("Failed to restore replaced connection")
			return
		}
		e.connectionChanged(*replaced)
	}
}

// CanConnect reports whether Connect would accept the connection, without changing anything.
func (e *Engine) CanConnect(src, target graph.PortRef) ConnectCheck {
	e.mu.Lock()
	defer e.mu.Unlock()

	spec, err := e.checkEndpoints(src, target)
	if err != nil {
		return ConnectCheck{Reason: err.Error()}
	}

	q := e.q()
	check := ConnectCheck{
		Loop: !e.guard.Allows(src.NodeID, target.NodeID, spec.LoopTolerant),
		Have: q.UnmatchedType(src.NodeID, e.root, src.Key),
		Want: q.ExpectedType(target.NodeID, target.Key, e.root),
	}
	check.TypesMatch = types.CanMatch(check.Have, check.Want)
	check.Allowed = !check.Loop && (check.TypesMatch || e.allowMismatch)

	switch {
	case check.Loop:
		check.Reason = "connection would create a cycle"
	case !check.TypesMatch:
		check.Reason = mismatchReason(types.Unify(check.Have, check.Want))
	}
	return check
}

// Disconnect removes a connection. Later slots of a duplicate port move down to fill the gap.
func (e *Engine) Disconnect(id graph.ConnID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.graph.Connection(id)
	if !ok {
		return e.fail("disconnect", NewNotFoundError(fmt.Sprintf("connection %d does not exist", id), graph.ErrConnectionNotFound))
	}
	spec, _ := e.q().Ports(c.Target.NodeID).Input(c.Target.Key)

	if _, err := e.graph.Disconnect(id, spec.Mode == graph.PortDuplicate); err != nil {
		return e.fail("disconnect", NewNotFoundError("cannot disconnect", err))
	}
	e.invalidated("connection_removed", e.connectionChanged(c))

	e.logger.Debug().Int("connection", int(id)).Msg("Connection removed")
	e.metrics.RecordMutation("disconnect", nil)
	e.publish(EventConnectionRemoved, c.Target.NodeID, c.ID, nil)
	return nil
}

// checkEndpoints validates that src is an output port and target an input port.
func (e *Engine) checkEndpoints(src, target graph.PortRef) (graph.PortSpec, error) {
	q := e.q()
	if _, ok := q.Node(src.NodeID); !ok {
		return graph.PortSpec{}, NewNotFoundError(fmt.Sprintf("source node %d does not exist", src.NodeID), graph.ErrNodeNotFound).
			WithNode(int(src.NodeID))
	}
	if _, ok := q.Node(target.NodeID); !ok {
		return graph.PortSpec{}, NewNotFoundError(fmt.Sprintf("target node %d does not exist", target.NodeID), graph.ErrNodeNotFound).
			WithNode(int(target.NodeID))
	}
	if _, ok := q.Ports(src.NodeID).Output(src.Key); !ok {
		return graph.PortSpec{}, NewInvalidError(fmt.Sprintf("node %d has no output port %q", src.NodeID, src.Key), nil).
			WithCode(ErrCodeUnknownPort).WithNode(int(src.NodeID))
	}
	spec, ok := q.Ports(target.NodeID).Input(target.Key)
	if !ok {
		return graph.PortSpec{}, NewInvalidError(fmt.Sprintf("node %d has no input port %q", target.NodeID, target.Key), nil).
			WithCode(ErrCodeUnknownPort).WithNode(int(target.NodeID))
	}
	return spec, nil
}

// connectionChanged evicts what a connection change can affect: everything that read the
// target port's connection list or the source port's consumer list.
func (e *Engine) connectionChanged(c graph.Connection) int {
	evicted := e.memo.evict(cacheKey{kind: queryInputs, node: c.Target.NodeID, port: c.Target.Key})
	evicted += e.memo.evict(cacheKey{kind: queryOutputs, node: c.Src.NodeID, port: c.Src.Key})
	e.guard.Invalidate(c.Target.NodeID)
	return evicted
}

// evictDefines drops the cached defines list when a node of kind can change it.
func (e *Engine) evictDefines(kind graph.Kind) int {
	if kind != DefineKind {
		return 0
	}
	return e.memo.evict(cacheKey{kind: queryDefines, node: noNode})
}

func (e *Engine) invalidated(reason string, entries int) {
	if entries == 0 {
		return
	}
	e.metrics.RecordInvalidation(reason, entries)
	e.publish(EventCacheInvalidated, 0, 0, map[string]interface{}{"reason": reason, "entries": entries})
}

func (e *Engine) fail(operation string, err error) error {
	var engineErr *EngineError
	if errors.As(err, &engineErr) && engineErr.Operation == "" {
		engineErr.WithOperation(operation)
	}
	e.metrics.RecordMutation(operation, err)
	return err
}

func (e *Engine) reject(reason string, src, target graph.PortRef, err *EngineError) error {
	e.logger.Warn().
		Str("src", src.String()).
		Str("target", target.String()).
		Str("reason", reason).
		Msg("Connection rejected")
	e.metrics.RecordRejectedConnection(reason)
	e.publish(EventConnectionRejected, target.NodeID, 0, map[string]interface{}{
		"src":    src.String(),
		"target": target.String(),
		"reason": reason,
	})
	return e.fail("connect", err)
}

func (e *Engine) publish(eventType string, node graph.NodeID, conn graph.ConnID, data map[string]interface{}) {
	e.events.PublishMutation(MutationEvent{
		Type:       eventType,
		Document:   e.graph.Name,
		Node:       node,
		Connection: conn,
		Data:       data,
	})
}

func mismatchReason(t types.ValueType) string {
	if m, ok := types.FirstMismatch(t); ok {
		return m.Reason()
	}
	return t.String()
}
