package engine

import (
	"math"

	"github.com/openfroyo/nodeflow/pkg/graph"
)

type queryKind uint8

const (
	queryValue queryKind = iota
	queryUnmatched
	queryType
	queryExpected
	queryDelivered
	queryPorts
	queryNode
	queryDefines
	queryInputs
	queryOutputs
)

var queryNames = [...]string{
	queryValue:     "value",
	queryUnmatched: "unmatched_type",
	queryType:      "type",
	queryExpected:  "expected_type",
	queryDelivered: "delivered_type",
	queryPorts:     "ports",
	queryNode:      "node",
	queryDefines:   "defines",
	queryInputs:    "inputs",
	queryOutputs:   "outputs",
}

func (k queryKind) String() string { return queryNames[k] }

// cacheKey identifies one memoized result. env is the scope key for values and the context
// key for types; structural reads leave it empty.
type cacheKey struct {
	kind queryKind
	node graph.NodeID
	env  string
	port string
}

type entry struct {
	value      any
	dependents map[cacheKey]struct{}
}

// frame is one query under evaluation. reads collects every key the query looked at; low is
// the shallowest stack index a re-entrant read was cut at.
type frame struct {
	key   cacheKey
	reads []cacheKey
	low   int
}

// memo caches query results together with the reverse dependency edges between them.
//
// A query that reads a key already on the stack receives the bottom value for that key. Its
// result, and every result between it and the cut, depends on that assumption and is not cached;
// the reads of an uncached frame are handed to its parent so the parent still learns what it
// depended on.
type memo struct {
	entries map[cacheKey]*entry
	byNode  map[graph.NodeID]map[cacheKey]struct{}
	stack   []*frame
	onStack map[cacheKey]int

	observe func(kind queryKind, hit bool)
	stats   CacheStats
}

// CacheStats counts cache activity since the engine was created.
type CacheStats struct {
	Entries   int `json:"entries"`
	Hits      int `json:"hits"`
	Misses    int `json:"misses"`
	Cuts      int `json:"cuts"`
	Evictions int `json:"evictions"`
}

func newMemo() *memo {
	return &memo{
		entries: make(map[cacheKey]*entry),
		byNode:  make(map[graph.NodeID]map[cacheKey]struct{}),
		onStack: make(map[cacheKey]int),
	}
}

// get returns the cached result for key, computing it when absent.
func (m *memo) get(key cacheKey, bottom any, compute func() any) any {
	if n := len(m.stack); n > 0 {
		top := m.stack[n-1]
		top.reads = append(top.reads, key)
	}

	if e, ok := m.entries[key]; ok {
		m.stats.Hits++
		m.notify(key.kind, true)
		return e.value
	}

	if depth, ok := m.onStack[key]; ok {
		m.stats.Cuts++
		top := m.stack[len(m.stack)-1]
		if depth < top.low {
			top.low = depth
		}
		return bottom
	}

	m.stats.Misses++
	m.notify(key.kind, false)

	depth := len(m.stack)
	f := &frame{key: key, low: math.MaxInt}
	m.stack = append(m.stack, f)
	m.onStack[key] = depth

	value := compute()

	m.stack = m.stack[:depth]
	delete(m.onStack, key)

	if f.low >= depth {
		m.store(key, value, f.reads)
		return value
	}

	// The result leaned on a frame further down the stack; let that frame own the reads.
	if depth > 0 {
		parent := m.stack[depth-1]
		parent.reads = append(parent.reads, f.reads...)
		if f.low < parent.low {
			parent.low = f.low
		}
	}
	return value
}

func (m *memo) store(key cacheKey, value any, reads []cacheKey) {
	m.entries[key] = &entry{value: value, dependents: make(map[cacheKey]struct{})}
	if m.byNode[key.node] == nil {
		m.byNode[key.node] = make(map[cacheKey]struct{})
	}
	m.byNode[key.node][key] = struct{}{}

	for _, r := range reads {
		if r == key {
			continue
		}
		if dep, ok := m.entries[r]; ok {
			dep.dependents[key] = struct{}{}
		}
	}
}

func (m *memo) notify(kind queryKind, hit bool) {
	if m.observe != nil && kind <= queryDelivered {
		m.observe(kind, hit)
	}
}

// evict removes key and, transitively, every entry that read it. It returns the number of
// entries removed.
func (m *memo) evict(key cacheKey) int {
	e, ok := m.entries[key]
	if !ok {
		return 0
	}
	delete(m.entries, key)
	m.stats.Evictions++
	if keys := m.byNode[key.node]; keys != nil {
		delete(keys, key)
		if len(keys) == 0 {
			delete(m.byNode, key.node)
		}
	}

	count := 1
	for dep := range e.dependents {
		count += m.evict(dep)
	}
	return count
}

// evictNode removes every entry computed for a node, plus their dependents.
func (m *memo) evictNode(id graph.NodeID) int {
	keys := m.byNode[id]
	if len(keys) == 0 {
		return 0
	}
	pending := make([]cacheKey, 0, len(keys))
	for k := range keys {
		pending = append(pending, k)
	}
	count := 0
	for _, k := range pending {
		count += m.evict(k)
	}
	return count
}

// cached reports whether a result is cached for key.
func (m *memo) cached(key cacheKey) bool {
	_, ok := m.entries[key]
	return ok
}

func (m *memo) snapshot() CacheStats {
	s := m.stats
	s.Entries = len(m.entries)
	return s
}
