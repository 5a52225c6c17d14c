// Package types implements the structural type algebra used by the dataflow engine.
//
// A ValueType is either a primitive (String, Number, Boolean, Null, Unknown, Unresolved),
// a generic carrying named parameters (Array, Pair, Object, Trigger, Event, Element), or a
// Mismatch carrying the reason two types could not be unified. Mismatch is absorbing: a type
// that contains a Mismatch anywhere in its parameter tree is itself treated as a Mismatch.
package types

import (
	"fmt"
	"sort"
)

// Tag identifies the shape of a ValueType.
type Tag string

// Primitive tags.
const (
	String     Tag = "String"
	Number     Tag = "Number"
	Boolean    Tag = "Boolean"
	Null       Tag = "Null"
	Unknown    Tag = "Unknown"
	Unresolved Tag = "Unresolved"
)

// Generic tags.
const (
	Array   Tag = "Array"
	Pair    Tag = "Pair"
	Object  Tag = "Object"
	Trigger Tag = "Trigger"
	Event   Tag = "Event"
	Element Tag = "Element"
)

// Mismatch is the error tag produced by a failed unification.
const Mismatch Tag = "Mismatch"

// arity lists the parameter names of generic tags with a fixed shape.
// Generic tags missing from this map accept any parameter set.
var arity = map[Tag][]string{
	Array:   {"item"},
	Pair:    {"key", "value"},
	Trigger: {"value"},
	Event:   {"value"},
}

// IsPrimitive reports whether the tag takes no parameters.
func (t Tag) IsPrimitive() bool {
	switch t {
	case String, Number, Boolean, Null, Unknown, Unresolved:
		return true
	}
	return false
}

// IsGeneric reports whether the tag carries named parameters.
func (t Tag) IsGeneric() bool {
	switch t {
	case Array, Pair, Object, Trigger, Event, Element:
		return true
	}
	return false
}

// Valid reports whether the tag is one of the known tags.
func (t Tag) Valid() bool {
	return t.IsPrimitive() || t.IsGeneric() || t == Mismatch
}

// Params returns the fixed parameter names of a generic tag, or nil when the
// tag is primitive or accepts an open field set.
func (t Tag) Params() []string {
	return arity[t]
}

// ValueType is an immutable structural type.
// The zero value is Unresolved.
type ValueType struct {
	tag    Tag
	params map[string]ValueType
	reason string
}

// Create constructs a type from a tag and its parameters.
// It panics when params do not fit the tag; that is a programming error.
func Create(tag Tag, params map[string]ValueType) ValueType {
	if !tag.Valid() {
		panic(fmt.Sprintf("types: unknown tag %q", tag))
	}
	if tag == Mismatch {
		panic("types: use MismatchOf to build a Mismatch")
	}
	if tag.IsPrimitive() {
		if len(params) != 0 {
			panic(fmt.Sprintf("types: primitive %s takes no parameters", tag))
		}
		return ValueType{tag: tag}
	}

	if names, fixed := arity[tag]; fixed {
		if len(params) != len(names) {
			panic(fmt.Sprintf("types: %s expects parameters %v, got %d", tag, names, len(params)))
		}
		for _, name := range names {
			if _, ok := params[name]; !ok {
				panic(fmt.Sprintf("types: %s is missing parameter %q", tag, name))
			}
		}
	}

	copied := make(map[string]ValueType, len(params))
	for k, v := range params {
		copied[k] = v
	}
	return ValueType{tag: tag, params: copied}
}

// Primitive constructors.
func StringType() ValueType     { return ValueType{tag: String} }
func NumberType() ValueType     { return ValueType{tag: Number} }
func BooleanType() ValueType    { return ValueType{tag: Boolean} }
func NullType() ValueType       { return ValueType{tag: Null} }
func UnknownType() ValueType    { return ValueType{tag: Unknown} }
func UnresolvedType() ValueType { return ValueType{tag: Unresolved} }

// ArrayOf builds Array{item}.
func ArrayOf(item ValueType) ValueType {
	return Create(Array, map[string]ValueType{"item": item})
}

// PairOf builds Pair{key, value}.
func PairOf(key, value ValueType) ValueType {
	return Create(Pair, map[string]ValueType{"key": key, "value": value})
}

// ObjectOf builds an Object with the given fields.
func ObjectOf(fields map[string]ValueType) ValueType {
	return Create(Object, fields)
}

// TriggerOf builds Trigger{value}.
func TriggerOf(value ValueType) ValueType {
	return Create(Trigger, map[string]ValueType{"value": value})
}

// EventOf builds Event{value}.
func EventOf(value ValueType) ValueType {
	return Create(Event, map[string]ValueType{"value": value})
}

// ElementOf builds an Element with the given props.
func ElementOf(props map[string]ValueType) ValueType {
	return Create(Element, props)
}

// MismatchOf builds a Mismatch carrying reason.
func MismatchOf(reason string) ValueType {
	return ValueType{tag: Mismatch, reason: reason}
}

// Mismatchf builds a Mismatch with a formatted reason.
func Mismatchf(format string, args ...interface{}) ValueType {
	return MismatchOf(fmt.Sprintf(format, args...))
}

// Tag returns the type's tag.
func (t ValueType) Tag() Tag {
	if t.tag == "" {
		return Unresolved
	}
	return t.tag
}

// Reason returns the Mismatch reason, or "" for other tags.
func (t ValueType) Reason() string {
	return t.reason
}

// Param returns the named parameter, or Unresolved when absent.
func (t ValueType) Param(name string) ValueType {
	if p, ok := t.params[name]; ok {
		return p
	}
	return UnresolvedType()
}

// Lookup returns the named parameter and whether it is present.
func (t ValueType) Lookup(name string) (ValueType, bool) {
	p, ok := t.params[name]
	return p, ok
}

// ParamNames returns the parameter names in sorted order.
func (t ValueType) ParamNames() []string {
	names := make([]string, 0, len(t.params))
	for name := range t.params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Params returns a copy of the parameter map.
func (t ValueType) Params() map[string]ValueType {
	if len(t.params) == 0 {
		return nil
	}
	out := make(map[string]ValueType, len(t.params))
	for k, v := range t.params {
		out[k] = v
	}
	return out
}

// Is reports whether the type carries the given tag.
func (t ValueType) Is(tag Tag) bool {
	return t.Tag() == tag
}

// Equal reports structural equality, including Mismatch reasons.
func (t ValueType) Equal(other ValueType) bool {
	if t.Tag() != other.Tag() || t.reason != other.reason || len(t.params) != len(other.params) {
		return false
	}
	for k, v := range t.params {
		ov, ok := other.params[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// IsMismatch reports whether t is a Mismatch or contains one in its parameter tree.
func IsMismatch(t ValueType) bool {
	if t.Tag() == Mismatch {
		return true
	}
	for _, p := range t.params {
		if IsMismatch(p) {
			return true
		}
	}
	return false
}

// FirstMismatch returns the first Mismatch found in t, walking parameters in name order.
func FirstMismatch(t ValueType) (ValueType, bool) {
	if t.Tag() == Mismatch {
		return t, true
	}
	for _, name := range t.ParamNames() {
		if m, ok := FirstMismatch(t.params[name]); ok {
			return m, true
		}
	}
	return ValueType{}, false
}

// Unwrap returns the named parameter of t when t carries tag.
// Unresolved and Mismatch pass through; any other tag yields a Mismatch.
func Unwrap(t ValueType, tag Tag, param string) ValueType {
	switch t.Tag() {
	case tag:
		return t.Param(param)
	case Unresolved, Mismatch:
		return t
	}
	return Mismatchf("expected %s, got %s", tag, t.Tag())
}
