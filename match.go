package permit

import "reflect"

// ============================================================================
// CONDITION MATCHING
// ============================================================================

// MatchExpression evaluates one leaf expression against an already resolved
// value. A context reference operand is resolved against ctx first. Unknown
// operators and nil or zero expressions match nothing and report no error;
// expressions may originate from loosely typed storage.
func MatchExpression(value any, expr *Expression, ctx map[string]any) (bool, error) {
	if expr == nil || expr.Op == "" || !expr.Op.Known() {
		return false, nil
	}
	var operand any
	switch o := expr.Operand.(type) {
	case Literal:
		operand = o.Value
	case ContextRef:
		operand = ResolvePath(ctx, o.Path)
	case Nested:
		operand = o.Cond
	}
	return evalOperator(expr.Op, value, operand, expr.Options, ctx)
}

// MatchCondition evaluates a condition tree against a resource instance,
// combining per-field results with AND. A nil instance matches nothing; a
// nil or empty condition matches everything.
func MatchCondition(instance any, cond *Condition, ctx map[string]any) (bool, error) {
	if cond == nil {
		return true, nil
	}
	if isNull(instance) {
		return false, nil
	}
	if cond.Expr != nil {
		ok, err := MatchExpression(instance, cond.Expr, ctx)
		if err != nil || !ok {
			return false, err
		}
	}
	for _, f := range cond.Fields {
		ok, err := matchField(instance, f, ctx)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// matchField resolves one instance field and applies its constraint. A
// nested condition requires the field value to be an object or array once
// its guard expression has run; anything else fails the clause.
func matchField(instance any, f Field, ctx map[string]any) (bool, error) {
	value := ResolvePath(instance, f.Key)
	switch k := f.Constraint.(type) {
	case *Expression:
		return MatchExpression(value, k, ctx)
	case *Condition:
		if k.Expr != nil {
			ok, err := MatchExpression(value, k.Expr, ctx)
			if err != nil || !ok {
				return false, err
			}
		}
		if !isContainer(value) {
			return false, nil
		}
		for _, nf := range k.Fields {
			ok, err := matchField(value, nf, ctx)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	default:
		return false, typeErr("", "field "+f.Key, "an expression or nested condition", k)
	}
}

// isContainer reports whether v is an object or array, the shapes a nested
// condition can recurse into.
func isContainer(v any) bool {
	if v == nil {
		return false
	}
	switch v.(type) {
	case map[string]any, map[string]string:
		return true
	}
	if _, ok := asSlice(v); ok {
		return true
	}
	return reflect.ValueOf(v).Kind() == reflect.Map
}
