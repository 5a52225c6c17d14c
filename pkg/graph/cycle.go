package graph

// Follow reports whether a connection takes part in ancestry. Connections into loop-tolerant
// ports return false.
type Follow func(Connection) bool

// FollowAll treats every connection as an ancestry edge.
func FollowAll(Connection) bool { return true }

// CycleGuard answers whether a new connection would close a directed cycle.
//
// It caches the input-ancestor set of each node it has been asked about. Cached sets stay valid
// until a connection into one of their members changes; Invalidate must be called with the
// target node of every added or removed connection.
type CycleGuard struct {
	g      *Graph
	follow Follow
	memo   map[NodeID]map[NodeID]struct{}
}

// NewCycleGuard creates a guard over g. A nil follow follows every connection.
func NewCycleGuard(g *Graph, follow Follow) *CycleGuard {
	if follow == nil {
		follow = FollowAll
	}
	return &CycleGuard{
		g:      g,
		follow: follow,
		memo:   make(map[NodeID]map[NodeID]struct{}),
	}
}

// Ancestors returns every node reachable from id by walking followed input connections
// backwards. id itself is included only when it already sits on a cycle.
func (c *CycleGuard) Ancestors(id NodeID) map[NodeID]struct{} {
	if set, ok := c.memo[id]; ok {
		return set
	}

	set := make(map[NodeID]struct{})
	visited := map[NodeID]bool{id: true}
	stack := []NodeID{id}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, conn := range c.g.Incoming(current) {
			if !c.follow(conn) {
				continue
			}
			parent := conn.Src.NodeID
			set[parent] = struct{}{}
			if visited[parent] {
				continue
			}
			visited[parent] = true

			// A finished set for the parent covers its whole subtree.
			if known, ok := c.memo[parent]; ok {
				for n := range known {
					set[n] = struct{}{}
					visited[n] = true
				}
				continue
			}
			stack = append(stack, parent)
		}
	}

	c.memo[id] = set
	return set
}

// Allows reports whether src may be connected into target. Loop-tolerant target ports are
// always allowed.
func (c *CycleGuard) Allows(src, target NodeID, loopTolerant bool) bool {
	if loopTolerant {
		return true
	}
	if src == target {
		return false
	}
	_, cyclic := c.Ancestors(src)[target]
	return !cyclic
}

// Invalidate drops cached sets affected by a connection change into target: the target's own
// set and every set that contains it.
func (c *CycleGuard) Invalidate(target NodeID) {
	delete(c.memo, target)
	for id, set := range c.memo {
		if _, ok := set[target]; ok {
			delete(c.memo, id)
		}
	}
}

// Reset clears the cache.
func (c *CycleGuard) Reset() {
	c.memo = make(map[NodeID]map[NodeID]struct{})
}

// Cached reports whether an ancestor set is cached for id.
func (c *CycleGuard) Cached(id NodeID) bool {
	_, ok := c.memo[id]
	return ok
}
