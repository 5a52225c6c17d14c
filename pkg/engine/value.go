package engine

import (
	"github.com/openfroyo/nodeflow/pkg/types"
)

// UndefinedValue is the type of Undefined.
type UndefinedValue struct{}

// Undefined is the value of a port with nothing to deliver. It is distinct from nil, which is
// the Null value.
var Undefined = UndefinedValue{}

// String implements fmt.Stringer.
func (UndefinedValue) String() string { return "undefined" }

// MarshalJSON encodes Undefined as null.
func (UndefinedValue) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

// IsUndefined reports whether v is Undefined.
func IsUndefined(v any) bool {
	_, ok := v.(UndefinedValue)
	return ok
}

// Typed is implemented by runtime values that know their own type.
type Typed interface {
	ValueType() types.ValueType
}

// InferType derives a type from a runtime value. Undefined infers as Unknown.
func InferType(v any) types.ValueType {
	switch val := v.(type) {
	case nil:
		return types.NullType()
	case UndefinedValue:
		return types.UnknownType()
	case Typed:
		return val.ValueType()
	case string:
		return types.StringType()
	case bool:
		return types.BooleanType()
	case float64, float32, int, int64, int32:
		return types.NumberType()
	case []any:
		items := make([]types.ValueType, len(val))
		for i, item := range val {
			items[i] = InferType(item)
		}
		return types.ArrayOf(types.UnionAll(items...))
	case map[string]any:
		fields := make(map[string]types.ValueType, len(val))
		for k, item := range val {
			fields[k] = InferType(item)
		}
		return types.ObjectOf(fields)
	}
	return types.UnknownType()
}

// ToNumber converts numeric values to float64.
func ToNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}

// Truthy reports whether v counts as true for a condition.
func Truthy(v any) bool {
	switch val := v.(type) {
	case nil, UndefinedValue:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case []any:
		return len(val) > 0
	}
	if n, ok := ToNumber(v); ok {
		return n != 0
	}
	return true
}
