package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Binding is a local value that knows how to identify itself in a scope key. Bindings that hold
// references to other scopes or to connections implement it so that equal bindings produce
// equal keys.
type Binding interface {
	Fingerprint() string
}

// Scope is a frame of local values chained to its parent. Scopes are immutable once built;
// Child derives a new frame.
//
// Two scopes with the same parent key and the same locals share a key, and therefore share
// cached values.
type Scope struct {
	locals  map[string]any
	parent  *Scope
	context *Context
	key     string
}

// NewScope creates a root scope evaluating under c.
func NewScope(c *Context) *Scope {
	return &Scope{locals: map[string]any{}, context: c, key: "root"}
}

// Child derives a scope binding locals on top of s.
func (s *Scope) Child(locals map[string]any) *Scope {
	copied := make(map[string]any, len(locals))
	for k, v := range locals {
		copied[k] = v
	}
	return &Scope{
		locals:  copied,
		parent:  s,
		context: s.context,
		key:     s.key + "/" + fingerprintLocals(copied),
	}
}

// Key identifies the scope by content.
func (s *Scope) Key() string { return s.key }

// Parent returns the enclosing scope, or nil for a root scope.
func (s *Scope) Parent() *Scope { return s.parent }

// Context returns the type context the scope evaluates under.
func (s *Scope) Context() *Context { return s.context }

// Lookup returns the nearest local named name.
func (s *Scope) Lookup(name string) (any, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if v, ok := cur.locals[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Bindings returns every local named name, nearest first.
func (s *Scope) Bindings(name string) []any {
	var out []any
	for cur := s; cur != nil; cur = cur.parent {
		if v, ok := cur.locals[name]; ok {
			out = append(out, v)
		}
	}
	return out
}

// Depth returns the number of frames above the root.
func (s *Scope) Depth() int {
	d := 0
	for cur := s.parent; cur != nil; cur = cur.parent {
		d++
	}
	return d
}

func fingerprintLocals(locals map[string]any) string {
	names := make([]string, 0, len(locals))
	for name := range locals {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		sb.WriteString(name)
		sb.WriteByte('=')
		sb.WriteString(Fingerprint(locals[name]))
		sb.WriteByte(';')
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:8])
}

// Fingerprint renders a value as a stable string for scope keys.
func Fingerprint(v any) string {
	if b, ok := v.(Binding); ok {
		return b.Fingerprint()
	}
	if IsUndefined(v) {
		return "undefined"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%T:%v", v, v)
	}
	return string(data)
}
