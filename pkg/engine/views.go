package engine

import "github.com/openfroyo/nodeflow/pkg/graph"

// Follows reports whether a connection counts for cycle detection and ordering. Connections
// into loop-tolerant ports do not.
func (e *Engine) Follows(c graph.Connection) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.follows(c)
}

// Levels groups nodes into topological levels: every node sits one level below the deepest
// node feeding it. Feedback into loop-tolerant ports is ignored.
func (e *Engine) Levels() ([][]graph.NodeID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.graph.Levels(e.follows)
}

// Cycle returns a directed cycle through ports that are not loop-tolerant, or nil.
func (e *Engine) Cycle() []graph.NodeID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.graph.DetectCycle(e.follows)
}

// DOT renders the document as a Graphviz digraph.
func (e *Engine) DOT() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.graph.ToDOT(e.follows)
}
