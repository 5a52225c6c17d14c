package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/openfroyo/nodeflow/pkg/graph"
	"github.com/openfroyo/nodeflow/pkg/types"
)

// Overrides pins the output types of specific node ports.
type Overrides map[graph.NodeID]map[string]types.ValueType

// Context is the type-resolution environment: the module registry and a set of type overrides
// used to instantiate reusable sub-graphs. Contexts form a tree; a sub-context copies its parent's
// overrides and extends them, so sibling instantiations never see each other's bindings.
type Context struct {
	modules *Registry
	types   Overrides
	callers []graph.NodeID
	key     string
}

// NewContext creates a root context over a registry.
func NewContext(reg *Registry) *Context {
	return &Context{modules: reg, types: Overrides{}, key: "root"}
}

// Modules returns the registry the context resolves kinds against.
func (c *Context) Modules() *Registry { return c.modules }

// Key identifies the context by content.
func (c *Context) Key() string { return c.key }

// Override returns the pinned type of a port, if any.
func (c *Context) Override(id graph.NodeID, port string) (types.ValueType, bool) {
	ports, ok := c.types[id]
	if !ok {
		return types.ValueType{}, false
	}
	t, ok := ports[port]
	return t, ok
}

// WithTypes returns a sub-context whose overrides extend c's.
func (c *Context) WithTypes(overrides Overrides) *Context {
	return c.derive(overrides, nil)
}

// Instantiate returns a sub-context for a call made by caller, typically a Proxy node. It
// reports false when caller is already on the instantiation path, which would recurse forever.
func (c *Context) Instantiate(caller graph.NodeID, overrides Overrides) (*Context, bool) {
	if c.Calls(caller) {
		return nil, false
	}
	return c.derive(overrides, &caller), true
}

// Calls reports whether caller is on the instantiation path of c.
func (c *Context) Calls(caller graph.NodeID) bool {
	for _, id := range c.callers {
		if id == caller {
			return true
		}
	}
	return false
}

func (c *Context) derive(overrides Overrides, caller *graph.NodeID) *Context {
	merged := make(Overrides, len(c.types)+len(overrides))
	for id, ports := range c.types {
		merged[id] = make(map[string]types.ValueType, len(ports))
		for port, t := range ports {
			merged[id][port] = t
		}
	}
	for id, ports := range overrides {
		if merged[id] == nil {
			merged[id] = make(map[string]types.ValueType, len(ports))
		}
		for port, t := range ports {
			merged[id][port] = t
		}
	}

	callers := append([]graph.NodeID(nil), c.callers...)
	tag := "types"
	if caller != nil {
		callers = append(callers, *caller)
		tag = fmt.Sprintf("call:%d", *caller)
	}

	return &Context{
		modules: c.modules,
		types:   merged,
		callers: callers,
		key:     c.key + "|" + tag + ":" + fingerprintOverrides(overrides),
	}
}

func fingerprintOverrides(o Overrides) string {
	ids := make([]int, 0, len(o))
	for id := range o {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)

	var sb strings.Builder
	for _, id := range ids {
		ports := o[graph.NodeID(id)]
		keys := make([]string, 0, len(ports))
		for k := range ports {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "%d.%s=%s;", id, k, ports[k])
		}
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:8])
}

// EmptyValue returns the value a port of type t holds when nothing is connected.
func (c *Context) EmptyValue(t types.ValueType) any {
	if c.modules == nil {
		return Undefined
	}
	def, ok := c.modules.TypeDef(t.Tag())
	if !ok || def.Empty == nil {
		return Undefined
	}
	return def.Empty(t, c)
}

// Test reports whether v is a value of type t. Types without a definition accept any value.
func (c *Context) Test(v any, t types.ValueType) bool {
	if c.modules == nil {
		return true
	}
	def, ok := c.modules.TypeDef(t.Tag())
	if !ok || def.Test == nil {
		return true
	}
	return def.Test(v, t, c)
}
