package graph

import (
	"fmt"
	"sort"
	"strings"
)

// CycleError reports a directed cycle found in a loaded document.
type CycleError struct {
	Path []NodeID
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected: %s", FormatPath(e.Path))
}

// FormatPath renders a node path as "1 -> 2 -> 1".
func FormatPath(path []NodeID) string {
	parts := make([]string, len(path))
	for i, id := range path {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, " -> ")
}

// DetectCycle searches followed connections for a directed cycle and returns its path, starting
// and ending at the same node. It returns nil when the graph is acyclic.
func (g *Graph) DetectCycle(follow Follow) []NodeID {
	if follow == nil {
		follow = FollowAll
	}
	visited := make(map[NodeID]bool)
	onStack := make(map[NodeID]bool)

	var path []NodeID
	var visit func(id NodeID) []NodeID
	visit = func(id NodeID) []NodeID {
		visited[id] = true
		onStack[id] = true
		path = append(path, id)

		for _, c := range g.Outgoing(id) {
			if !follow(c) {
				continue
			}
			next := c.Target.NodeID
			if !visited[next] {
				if cycle := visit(next); cycle != nil {
					return cycle
				}
			} else if onStack[next] {
				for i, p := range path {
					if p == next {
						cycle := append([]NodeID(nil), path[i:]...)
						return append(cycle, next)
					}
				}
			}
		}

		onStack[id] = false
		path = path[:len(path)-1]
		return nil
	}

	for _, n := range g.Nodes() {
		if !visited[n.ID] {
			if cycle := visit(n.ID); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// Levels groups nodes into topological levels with Kahn's algorithm: level 0 holds nodes with
// no followed inputs, and every node sits one level below its deepest source.
func (g *Graph) Levels(follow Follow) ([][]NodeID, error) {
	if follow == nil {
		follow = FollowAll
	}

	inDegree := make(map[NodeID]int, len(g.nodes))
	dependents := make(map[NodeID][]NodeID, len(g.nodes))
	for id := range g.nodes {
		inDegree[id] = 0
	}
	for _, c := range g.Connections() {
		if !follow(c) {
			continue
		}
		inDegree[c.Target.NodeID]++
		dependents[c.Src.NodeID] = append(dependents[c.Src.NodeID], c.Target.NodeID)
	}

	current := make([]NodeID, 0)
	for id, degree := range inDegree {
		if degree == 0 {
			current = append(current, id)
		}
	}

	levels := make([][]NodeID, 0)
	processed := 0
	for len(current) > 0 {
		sort.Slice(current, func(i, j int) bool { return current[i] < current[j] })
		levels = append(levels, current)
		processed += len(current)

		next := make([]NodeID, 0)
		for _, id := range current {
			for _, dep := range dependents[id] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		current = next
	}

	if processed != len(g.nodes) {
		if cycle := g.DetectCycle(follow); cycle != nil {
			return levels, &CycleError{Path: cycle}
		}
		return levels, fmt.Errorf("failed to order %d of %d nodes", len(g.nodes)-processed, len(g.nodes))
	}
	return levels, nil
}

// ToDOT renders the graph in Graphviz DOT format, one cluster per topological level. Connections
// that are not followed are drawn dashed. A cyclic graph is drawn without clusters.
func (g *Graph) ToDOT(follow Follow) string {
	if follow == nil {
		follow = FollowAll
	}
	var sb strings.Builder

	name := g.Name
	if name == "" {
		name = "Document"
	}
	sb.WriteString(fmt.Sprintf("digraph %q {\n", name))
	sb.WriteString("  rankdir=LR;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	levels, err := g.Levels(follow)
	if err != nil {
		for _, n := range g.Nodes() {
			writeDOTNode(&sb, n, "  ")
		}
		sb.WriteString("\n")
	} else {
		for level, ids := range levels {
			sb.WriteString(fmt.Sprintf("  subgraph cluster_level_%d {\n", level))
			sb.WriteString(fmt.Sprintf("    label=\"Level %d\";\n", level))
			sb.WriteString("    style=dashed;\n")
			for _, id := range ids {
				writeDOTNode(&sb, g.nodes[id], "    ")
			}
			sb.WriteString("  }\n\n")
		}
	}

	for _, c := range g.Connections() {
		style := "style=solid"
		if !follow(c) {
			style = "style=dashed, color=gray"
		}
		label := fmt.Sprintf("%s -> %s[%d]", c.Src.Key, c.Target.Key, c.Target.Slot)
		sb.WriteString(fmt.Sprintf("  \"%d\" -> \"%d\" [label=%q, %s];\n",
			c.Src.NodeID, c.Target.NodeID, label, style))
	}

	sb.WriteString("}\n")
	return sb.String()
}

func writeDOTNode(sb *strings.Builder, n *Node, indent string) {
	label := fmt.Sprintf("#%d\\n%s", n.ID, n.Kind)
	sb.WriteString(fmt.Sprintf("%s\"%d\" [label=\"%s\", fillcolor=\"%s\", style=\"filled,rounded\"];\n",
		indent, n.ID, label, moduleColor(n.Kind.Module)))
}

// moduleColor picks a fill color per built-in module.
func moduleColor(module string) string {
	switch module {
	case "core":
		return "lightblue"
	case "collection":
		return "lightgreen"
	case "ui":
		return "lightyellow"
	default:
		return "white"
	}
}
