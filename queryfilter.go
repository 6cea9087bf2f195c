package permit

import (
	"fmt"
	"regexp"
)

// ============================================================================
// QUERY FILTER PROJECTION
// ============================================================================
//
// RulesToFilter turns the related rules for one action/resource pair into a
// MongoDB-style filter document selecting exactly the instances those rules
// permit: the union of the allow conditions minus anything a deny condition
// matches. The projection is pure and stateless. Contextual operands must be
// substituted first (RelatedRulesFor with ApplyContext); an unresolved
// reference is an error here, since a filter cannot defer to a context.

// FilterMatchNone selects no document.
func FilterMatchNone() map[string]any {
	return map[string]any{"$nor": []any{map[string]any{}}}
}

// RulesToFilter projects a rule set into a filter document.
func RulesToFilter(rules []*Rule) (map[string]any, error) {
	var allows []any
	var denies []any
	allowAll := false
	for _, r := range rules {
		switch r.Effect {
		case EffectAllow:
			if r.Condition.Empty() {
				allowAll = true
				continue
			}
			f, err := conditionToFilter(r.Condition)
			if err != nil {
				return nil, err
			}
			allows = append(allows, f)
		case EffectDeny:
			if r.Condition.Empty() {
				return FilterMatchNone(), nil
			}
			f, err := conditionToFilter(r.Condition)
			if err != nil {
				return nil, err
			}
			denies = append(denies, f)
		}
	}
	if !allowAll && len(allows) == 0 {
		return FilterMatchNone(), nil
	}
	var positive map[string]any
	switch {
	case allowAll:
		positive = map[string]any{}
	case len(allows) == 1:
		positive = allows[0].(map[string]any)
	default:
		positive = map[string]any{"$or": allows}
	}
	if len(denies) == 0 {
		return positive, nil
	}
	negative := map[string]any{"$nor": denies}
	if len(positive) == 0 {
		return negative, nil
	}
	return map[string]any{"$and": []any{positive, negative}}, nil
}

func conditionToFilter(c *Condition) (map[string]any, error) {
	if c.Expr != nil {
		return nil, fmt.Errorf("query filter: expression guards are not projectable")
	}
	out := make(map[string]any, len(c.Fields))
	for _, f := range c.Fields {
		switch k := f.Constraint.(type) {
		case *Expression:
			v, err := expressionToFilter(k)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.Key, err)
			}
			out[f.Key] = v
		case *Condition:
			nested, err := conditionToFilter(k)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.Key, err)
			}
			for nk, nv := range nested {
				out[f.Key+"."+nk] = nv
			}
		default:
			return nil, fmt.Errorf("query filter: field %s has no constraint", f.Key)
		}
	}
	return out, nil
}

func expressionToFilter(e *Expression) (any, error) {
	operand, nested, err := filterOperand(e)
	if err != nil {
		return nil, err
	}
	ci := e.Options.CaseInsensitive
	switch e.Op {
	case OpEq:
		if s, ok := operand.(string); ok && ci {
			return regexFilter("^"+regexp.QuoteMeta(s)+"$", true), nil
		}
		return operand, nil
	case OpIn:
		return map[string]any{"$in": operand}, nil
	case OpGt:
		return map[string]any{"$gt": operand}, nil
	case OpGte:
		return map[string]any{"$gte": operand}, nil
	case OpContains:
		s, ok := operand.(string)
		if !ok {
			return nil, typeErr(e.Op, "operand", "a string", operand)
		}
		return regexFilter(regexp.QuoteMeta(s), ci), nil
	case OpStartsWith:
		s, ok := operand.(string)
		if !ok {
			return nil, typeErr(e.Op, "operand", "a string", operand)
		}
		return regexFilter("^"+regexp.QuoteMeta(s), ci), nil
	case OpEndsWith:
		s, ok := operand.(string)
		if !ok {
			return nil, typeErr(e.Op, "operand", "a string", operand)
		}
		return regexFilter(regexp.QuoteMeta(s)+"$", ci), nil
	case OpHas:
		return operand, nil
	case OpHasSome:
		return map[string]any{"$in": operand}, nil
	case OpHasEvery:
		return map[string]any{"$all": operand}, nil
	case OpSome:
		f, err := quantifierFilter(e.Op, nested)
		if err != nil {
			return nil, err
		}
		return map[string]any{"$elemMatch": f}, nil
	case OpNone:
		f, err := quantifierFilter(e.Op, nested)
		if err != nil {
			return nil, err
		}
		return map[string]any{"$not": map[string]any{"$elemMatch": f}}, nil
	case OpEvery:
		f, err := quantifierFilter(e.Op, nested)
		if err != nil {
			return nil, err
		}
		// non-vacuous: the field must exist and hold a non-empty array
		return map[string]any{
			"$exists": true,
			"$ne":     []any{},
			"$not":    map[string]any{"$elemMatch": map[string]any{"$nor": []any{f}}},
		}, nil
	}
	return nil, fmt.Errorf("query filter: operator %q is not projectable", e.Op)
}

func quantifierFilter(op Operator, nested *Condition) (map[string]any, error) {
	if nested == nil {
		return nil, typeErr(op, "operand", "a nested condition", nil)
	}
	return conditionToFilter(nested)
}

// filterOperand unwraps an operand for projection. Quantifiers yield the
// nested condition, everything else a literal.
func filterOperand(e *Expression) (any, *Condition, error) {
	switch o := e.Operand.(type) {
	case Literal:
		return o.Value, nil, nil
	case Nested:
		return nil, o.Cond, nil
	case ContextRef:
		return nil, nil, fmt.Errorf("query filter: unresolved context reference %q", ctxMarkerDollar+o.Path)
	}
	if e.Op.quantifier() {
		return nil, nil, typeErr(e.Op, "operand", "a nested condition", e.Operand)
	}
	return nil, nil, nil
}

func regexFilter(pattern string, caseInsensitive bool) map[string]any {
	f := map[string]any{"$regex": pattern}
	if caseInsensitive {
		f["$options"] = "i"
	}
	return f
}
