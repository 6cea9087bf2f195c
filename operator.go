package permit

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// ============================================================================
// OPERATOR LIBRARY
// ============================================================================

// TypeError reports a value or operand outside an operator's domain. It marks
// a defect in rule authoring, never a denial: callers must surface it rather
// than read it as "no permission". Absent data (nil values) is not a type
// error; every operator maps nil values to a defined boolean.
type TypeError struct {
	Op   Operator
	Part string // "value", "operand" or "condition"
	Want string
	Got  any
}

func (e *TypeError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("condition %s must be %s, got %T", e.Part, e.Want, e.Got)
	}
	return fmt.Sprintf("operator %q: %s must be %s, got %T", e.Op, e.Part, e.Want, e.Got)
}

func typeErr(op Operator, part, want string, got any) error {
	return &TypeError{Op: op, Part: part, Want: want, Got: got}
}

// evalOperator applies one catalogue operator to a resolved value and an
// operand. Context references must already be substituted; quantifier
// operands arrive as *Condition. Unknown operators match nothing. Operand
// domains are checked before the nil-value short circuit: a bad operand is
// a configuration error regardless of the data it meets.
func evalOperator(op Operator, value, operand any, opts Options, ctx map[string]any) (bool, error) {
	switch op {
	case OpEq:
		return evalEq(value, operand, opts)
	case OpIn:
		return evalIn(value, operand, opts)
	case OpContains, OpStartsWith, OpEndsWith:
		return evalStringOp(op, value, operand, opts)
	case OpGt, OpGte:
		return evalOrdered(op, value, operand)
	case OpHas:
		return evalHas(value, operand, opts)
	case OpHasSome:
		return evalHasSome(value, operand, opts)
	case OpHasEvery:
		return evalHasEvery(value, operand, opts)
	case OpSome, OpEvery, OpNone:
		return evalQuantifier(op, value, operand, ctx)
	}
	return false, nil
}

func evalEq(value, operand any, opts Options) (bool, error) {
	if !isScalar(operand) {
		return false, typeErr(OpEq, "operand", "a scalar or null", operand)
	}
	if isNull(value) {
		return isNull(operand), nil
	}
	if !isScalar(value) {
		return false, typeErr(OpEq, "value", "a scalar or null", value)
	}
	return scalarEq(value, operand, opts.CaseInsensitive), nil
}

func evalIn(value, operand any, opts Options) (bool, error) {
	arr, ok := asSlice(operand)
	if !ok {
		return false, typeErr(OpIn, "operand", "an array of scalars", operand)
	}
	if isNull(value) {
		return false, nil
	}
	if !isScalar(value) {
		return false, typeErr(OpIn, "value", "a scalar or null", value)
	}
	for _, el := range arr {
		if scalarEq(value, el, opts.CaseInsensitive) {
			return true, nil
		}
	}
	return false, nil
}

func evalStringOp(op Operator, value, operand any, opts Options) (bool, error) {
	needle, ok := operand.(string)
	if !ok {
		return false, typeErr(op, "operand", "a string", operand)
	}
	if isNull(value) {
		return false, nil
	}
	hay, ok := value.(string)
	if !ok {
		return false, typeErr(op, "value", "a string or null", value)
	}
	if opts.CaseInsensitive {
		hay, needle = strings.ToLower(hay), strings.ToLower(needle)
	}
	switch op {
	case OpContains:
		return strings.Contains(hay, needle), nil
	case OpStartsWith:
		return strings.HasPrefix(hay, needle), nil
	default:
		return strings.HasSuffix(hay, needle), nil
	}
}

func evalOrdered(op Operator, value, operand any) (bool, error) {
	bound, ok := toNumber(operand)
	if !ok {
		return false, typeErr(op, "operand", "a number", operand)
	}
	if isNull(value) {
		return false, nil
	}
	n, ok := toNumber(value)
	if !ok {
		return false, typeErr(op, "value", "a number or null", value)
	}
	if op == OpGt {
		return n > bound, nil
	}
	return n >= bound, nil
}

func evalHas(value, operand any, opts Options) (bool, error) {
	if !isScalar(operand) {
		return false, typeErr(OpHas, "operand", "a scalar", operand)
	}
	if isNull(value) {
		return false, nil
	}
	arr, ok := asSlice(value)
	if !ok {
		return false, typeErr(OpHas, "value", "an array or null", value)
	}
	for _, el := range arr {
		if scalarEq(el, operand, opts.CaseInsensitive) {
			return true, nil
		}
	}
	return false, nil
}

func evalHasSome(value, operand any, opts Options) (bool, error) {
	want, ok := asSlice(operand)
	if !ok {
		return false, typeErr(OpHasSome, "operand", "an array", operand)
	}
	if isNull(value) {
		return false, nil
	}
	arr, ok := asSlice(value)
	if !ok {
		return false, typeErr(OpHasSome, "value", "an array or null", value)
	}
	for _, w := range want {
		for _, el := range arr {
			if scalarEq(el, w, opts.CaseInsensitive) {
				return true, nil
			}
		}
	}
	return false, nil
}

func evalHasEvery(value, operand any, opts Options) (bool, error) {
	want, ok := asSlice(operand)
	if !ok {
		return false, typeErr(OpHasEvery, "operand", "an array", operand)
	}
	if isNull(value) {
		return false, nil
	}
	arr, ok := asSlice(value)
	if !ok {
		return false, typeErr(OpHasEvery, "value", "an array or null", value)
	}
	for _, w := range want {
		found := false
		for _, el := range arr {
			if scalarEq(el, w, opts.CaseInsensitive) {
				found = true
				break
			}
		}
		if !found {
			return false, nil
		}
	}
	return true, nil
}

// evalQuantifier runs a nested condition per array element. An empty or nil
// value answers false for some and every, true for none; every over an empty
// array is false here, not vacuously true.
func evalQuantifier(op Operator, value, operand any, ctx map[string]any) (bool, error) {
	cond, ok := operand.(*Condition)
	if !ok {
		return false, typeErr(op, "operand", "a nested condition", operand)
	}
	if isNull(value) {
		return op == OpNone, nil
	}
	arr, ok := asSlice(value)
	if !ok {
		return false, typeErr(op, "value", "an array of objects or null", value)
	}
	if len(arr) == 0 {
		return op == OpNone, nil
	}
	for _, el := range arr {
		matched, err := MatchCondition(el, cond, ctx)
		if err != nil {
			return false, err
		}
		switch {
		case op == OpSome && matched:
			return true, nil
		case op == OpEvery && !matched:
			return false, nil
		case op == OpNone && matched:
			return false, nil
		}
	}
	return op != OpSome, nil
}

// ============================================================================
// VALUE HELPERS
// ============================================================================

// isNull treats Go nil as the JSON null / absent-field case.
func isNull(v any) bool {
	return v == nil
}

// isScalar reports whether v is a comparable leaf value: string, bool,
// number or nil.
func isScalar(v any) bool {
	if v == nil {
		return true
	}
	switch v.(type) {
	case string, bool:
		return true
	}
	_, ok := toNumber(v)
	return ok
}

// toNumber widens any Go numeric kind to float64.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// asSlice widens common slice shapes to []any. Instances decoded from JSON
// arrive as []any already; direct Go callers pass typed slices.
func asSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []string:
		out := make([]any, len(s))
		for i, el := range s {
			out[i] = el
		}
		return out, true
	case []int:
		out := make([]any, len(s))
		for i, el := range s {
			out[i] = el
		}
		return out, true
	case []float64:
		out := make([]any, len(s))
		for i, el := range s {
			out[i] = el
		}
		return out, true
	case []bool:
		out := make([]any, len(s))
		for i, el := range s {
			out[i] = el
		}
		return out, true
	case []map[string]any:
		out := make([]any, len(s))
		for i, el := range s {
			out[i] = el
		}
		return out, true
	case nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// scalarEq is strict equality with numeric widening: ints and floats compare
// by numeric value, strings fold when caseInsensitive is set, and null only
// equals null. Values of different kinds are never equal.
func scalarEq(a, b any, caseInsensitive bool) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if as, ok := a.(string); ok {
		bs, ok := b.(string)
		if !ok {
			return false
		}
		if caseInsensitive {
			return strings.ToLower(as) == strings.ToLower(bs)
		}
		return as == bs
	}
	if ab, ok := a.(bool); ok {
		bb, ok := b.(bool)
		return ok && ab == bb
	}
	if an, ok := toNumber(a); ok {
		bn, ok := toNumber(b)
		return ok && an == bn
	}
	return false
}
