package types

// Unify combines src with target.
//
// Object unification is directional: fields required by target must be supplied by src,
// while fields only src carries are kept. All other cases are commutative.
func Unify(src, target ValueType) ValueType {
	// A mismatch anywhere in either tree wins, keeping its first reason.
	if IsMismatch(src) {
		return src
	}
	if IsMismatch(target) {
		return target
	}
	if src.Tag() == Unresolved {
		return target
	}
	if target.Tag() == Unresolved {
		return src
	}
	if src.Tag() != target.Tag() {
		return Mismatchf("expected %s, got %s", target.Tag(), src.Tag())
	}
	if src.Tag().IsPrimitive() {
		return src
	}
	if src.Tag() == Object {
		return unifyObject(src, target)
	}
	return unifyParams(src, target)
}

// unifyParams unifies generic parameters by name. A parameter missing on one
// side is treated as Unresolved.
func unifyParams(src, target ValueType) ValueType {
	params := make(map[string]ValueType, len(src.params))
	for name, sp := range src.params {
		params[name] = Unify(sp, target.Param(name))
	}
	for name, tp := range target.params {
		if _, ok := params[name]; !ok {
			params[name] = Unify(UnresolvedType(), tp)
		}
	}
	return ValueType{tag: src.Tag(), params: params}
}

func unifyObject(src, target ValueType) ValueType {
	fields := make(map[string]ValueType, len(src.params)+len(target.params))
	for name, sp := range src.params {
		if tp, ok := target.params[name]; ok {
			fields[name] = Unify(sp, tp)
		} else {
			fields[name] = sp
		}
	}
	for name := range target.params {
		if _, ok := src.params[name]; !ok {
			fields[name] = Mismatchf("missing field %q", name)
		}
	}
	return ValueType{tag: Object, params: fields}
}

// CanMatch reports whether src unifies with target without a Mismatch.
func CanMatch(src, target ValueType) bool {
	return !IsMismatch(Unify(src, target))
}

// UnionAll folds Unify over ts starting from Unresolved.
// An empty list yields Unresolved.
func UnionAll(ts ...ValueType) ValueType {
	acc := UnresolvedType()
	for _, t := range ts {
		acc = Unify(acc, t)
	}
	return acc
}
