package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// String renders the type in a compact, deterministic notation such as
// Array<String>, Object{a: String, b: Number} or Mismatch(expected Number, got String).
func (t ValueType) String() string {
	switch {
	case t.Tag() == Mismatch:
		return fmt.Sprintf("Mismatch(%s)", t.reason)
	case t.Tag().IsPrimitive():
		return string(t.Tag())
	}

	names := t.ParamNames()
	if fixed := t.Tag().Params(); fixed != nil {
		parts := make([]string, 0, len(fixed))
		for _, name := range fixed {
			parts = append(parts, t.Param(name).String())
		}
		return fmt.Sprintf("%s<%s>", t.Tag(), strings.Join(parts, ", "))
	}

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, t.params[name]))
	}
	return fmt.Sprintf("%s{%s}", t.Tag(), strings.Join(parts, ", "))
}

// wireType is the JSON form of a ValueType.
type wireType struct {
	Tag    Tag                 `json:"tag"`
	Params map[string]wireType `json:"params,omitempty"`
	Reason string              `json:"reason,omitempty"`
}

func toWire(t ValueType) wireType {
	w := wireType{Tag: t.Tag(), Reason: t.reason}
	if len(t.params) > 0 {
		w.Params = make(map[string]wireType, len(t.params))
		for k, v := range t.params {
			w.Params[k] = toWire(v)
		}
	}
	return w
}

func fromWire(w wireType) (ValueType, error) {
	if w.Tag == "" {
		return UnresolvedType(), nil
	}
	if !w.Tag.Valid() {
		return ValueType{}, fmt.Errorf("unknown type tag %q", w.Tag)
	}
	if w.Tag == Mismatch {
		return MismatchOf(w.Reason), nil
	}
	if w.Tag.IsPrimitive() {
		if len(w.Params) > 0 {
			return ValueType{}, fmt.Errorf("primitive %s takes no parameters", w.Tag)
		}
		return ValueType{tag: w.Tag}, nil
	}

	params := make(map[string]ValueType, len(w.Params))
	for k, v := range w.Params {
		p, err := fromWire(v)
		if err != nil {
			return ValueType{}, fmt.Errorf("parameter %s: %w", k, err)
		}
		params[k] = p
	}
	// Fixed-arity generics may omit parameters on the wire; they default to Unresolved.
	for _, name := range w.Tag.Params() {
		if _, ok := params[name]; !ok {
			params[name] = UnresolvedType()
		}
	}
	if fixed := w.Tag.Params(); fixed != nil && len(params) != len(fixed) {
		return ValueType{}, fmt.Errorf("%s expects parameters %v", w.Tag, fixed)
	}
	return ValueType{tag: w.Tag, params: params}, nil
}

// MarshalJSON implements json.Marshaler.
func (t ValueType) MarshalJSON() ([]byte, error) {
	return json.Marshal(toWire(t))
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *ValueType) UnmarshalJSON(data []byte) error {
	var w wireType
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	v, err := fromWire(w)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Decode converts a loosely typed editor value into a ValueType. It accepts a bare tag
// string ("String") or the JSON object form ({"tag": "Array", "params": {...}}).
func Decode(v interface{}) (ValueType, error) {
	switch val := v.(type) {
	case nil:
		return UnresolvedType(), nil
	case ValueType:
		return val, nil
	case string:
		return fromWire(wireType{Tag: Tag(val)})
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ValueType{}, fmt.Errorf("failed to encode type value: %w", err)
	}
	var t ValueType
	if err := json.Unmarshal(data, &t); err != nil {
		return ValueType{}, fmt.Errorf("invalid type value: %w", err)
	}
	return t, nil
}
