package core

import (
	"github.com/openfroyo/nodeflow/pkg/engine"
	"github.com/openfroyo/nodeflow/pkg/types"
)

func primitive(t types.ValueType, empty any, test func(v any) bool) engine.TypeDef {
	return engine.TypeDef{
		Create: func(map[string]types.ValueType) types.ValueType { return t },
		Empty:  func(types.ValueType, *engine.Context) any { return empty },
		Test:   func(v any, _ types.ValueType, _ *engine.Context) bool { return test(v) },
	}
}

// signal covers Trigger and Event. Nothing has fired until a value arrives, so the empty value
// is Undefined.
func signal(create func(types.ValueType) types.ValueType) engine.TypeDef {
	return engine.TypeDef{
		Create: func(params map[string]types.ValueType) types.ValueType {
			return create(params["value"])
		},
		Empty: func(types.ValueType, *engine.Context) any { return engine.Undefined },
		Test: func(v any, t types.ValueType, c *engine.Context) bool {
			return c.Test(v, t.Param("value"))
		},
	}
}

func typeDefs() map[string]engine.TypeDef {
	return map[string]engine.TypeDef{
		string(types.String): primitive(types.StringType(), "", func(v any) bool {
			_, ok := v.(string)
			return ok
		}),
		string(types.Number): primitive(types.NumberType(), float64(0), func(v any) bool {
			_, ok := engine.ToNumber(v)
			return ok
		}),
		string(types.Boolean): primitive(types.BooleanType(), false, func(v any) bool {
			_, ok := v.(bool)
			return ok
		}),
		string(types.Null): primitive(types.NullType(), nil, func(v any) bool {
			return v == nil
		}),
		string(types.Unknown): primitive(types.UnknownType(), engine.Undefined, func(any) bool {
			return true
		}),
		string(types.Object): {
			Create: types.ObjectOf,
			Empty: func(t types.ValueType, c *engine.Context) any {
				obj := make(map[string]any)
				for name, field := range t.Params() {
					if v := c.EmptyValue(field); !engine.IsUndefined(v) {
						obj[name] = v
					}
				}
				return obj
			},
			Test: func(v any, t types.ValueType, c *engine.Context) bool {
				obj, ok := v.(map[string]any)
				if !ok {
					return false
				}
				for name, field := range t.Params() {
					fv, ok := obj[name]
					if !ok || !c.Test(fv, field) {
						return false
					}
				}
				return true
			},
		},
		string(types.Pair): {
			Create: func(params map[string]types.ValueType) types.ValueType {
				return types.PairOf(params["key"], params["value"])
			},
			Empty: func(t types.ValueType, c *engine.Context) any {
				return PairValue{Key: c.EmptyValue(t.Param("key")), Value: c.EmptyValue(t.Param("value"))}
			},
			Test: func(v any, t types.ValueType, c *engine.Context) bool {
				p, ok := v.(PairValue)
				return ok && c.Test(p.Key, t.Param("key")) && c.Test(p.Value, t.Param("value"))
			},
		},
		string(types.Trigger): signal(types.TriggerOf),
		string(types.Event):   signal(types.EventOf),
	}
}
