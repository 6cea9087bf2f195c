package permit

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// ============================================================================
// VALUE RESOLVER
// ============================================================================

// Context markers recognized on operand strings. A string operand beginning
// with one of these refers to a path inside the caller-supplied context
// instead of a literal value.
const (
	ctxMarkerDollar = "$ctx."
	ctxMarkerPlain  = "ctx."
)

// IsContextRef reports whether the operand string references the caller
// context rather than a literal.
func IsContextRef(s string) bool {
	return strings.HasPrefix(s, ctxMarkerDollar) || strings.HasPrefix(s, ctxMarkerPlain)
}

// TrimContextMarker strips a leading context marker and folds null-safe
// segment markers, yielding a bare dotted path.
func TrimContextMarker(s string) string {
	switch {
	case strings.HasPrefix(s, ctxMarkerDollar):
		s = s[len(ctxMarkerDollar):]
	case strings.HasPrefix(s, ctxMarkerPlain):
		s = s[len(ctxMarkerPlain):]
	}
	return normalizePath(s)
}

// normalizePath folds optional-chaining segments so "a?.b" walks as "a.b".
// Path resolution short-circuits on absent intermediates either way.
func normalizePath(path string) string {
	return strings.ReplaceAll(path, "?.", ".")
}

// ResolvePath walks root segment by segment along the dotted path and returns
// the value found there, or nil the first time an intermediate is missing or
// nil. Arrays answer numeric segments and the "length" pseudo-field; strings
// answer "length". Never panics, whatever shape root has.
func ResolvePath(root any, path string) any {
	path = TrimContextMarker(path)
	if path == "" {
		return root
	}
	cur := root
	for _, seg := range strings.Split(path, ".") {
		if cur == nil {
			return nil
		}
		if seg == "" {
			continue
		}
		cur = resolveSegment(cur, seg)
	}
	return cur
}

func resolveSegment(v any, seg string) any {
	switch c := v.(type) {
	case map[string]any:
		return c[seg]
	case map[string]string:
		if s, ok := c[seg]; ok {
			return s
		}
		return nil
	case string:
		if seg == "length" {
			return float64(utf8.RuneCountInString(c))
		}
		return nil
	case []any:
		return resolveElement(c, seg)
	default:
		if arr, ok := asSlice(v); ok {
			return resolveElement(arr, seg)
		}
		return nil
	}
}

func resolveElement(arr []any, seg string) any {
	if seg == "length" {
		return float64(len(arr))
	}
	if idx, err := strconv.Atoi(seg); err == nil && idx >= 0 && idx < len(arr) {
		return arr[idx]
	}
	return nil
}

// ResolveCondition returns a copy of cond with every context reference
// replaced by the literal it resolves to against ctx; paths that resolve to
// nothing become nil literals. The input condition is never modified.
func ResolveCondition(cond *Condition, ctx map[string]any) *Condition {
	if cond == nil {
		return nil
	}
	out := &Condition{Expr: resolveExpression(cond.Expr, ctx)}
	if len(cond.Fields) > 0 {
		out.Fields = make([]Field, len(cond.Fields))
		for i, f := range cond.Fields {
			out.Fields[i] = Field{Key: f.Key, Constraint: resolveConstraint(f.Constraint, ctx)}
		}
	}
	return out
}

func resolveConstraint(k Constraint, ctx map[string]any) Constraint {
	switch v := k.(type) {
	case *Expression:
		return resolveExpression(v, ctx)
	case *Condition:
		return ResolveCondition(v, ctx)
	}
	return k
}

func resolveExpression(e *Expression, ctx map[string]any) *Expression {
	if e == nil {
		return nil
	}
	dup := *e
	switch o := e.Operand.(type) {
	case ContextRef:
		dup.Operand = Literal{Value: ResolvePath(ctx, o.Path)}
	case Nested:
		dup.Operand = Nested{Cond: ResolveCondition(o.Cond, ctx)}
	}
	return &dup
}
