package permit

import (
	"encoding/json"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// ============================================================================
// CONDITION CODEC
// ============================================================================
//
// The wire form of a condition is a JSON object mapping field names to
// [operator, operand, options?] tuples or nested objects:
//
//	{"published": ["eq", true],
//	 "author":    {"id": ["eq", "$ctx.userId"]},
//	 "roles":     {"$expr": ["some", {"name": ["eq", "admin"]}]}}
//
// Decoding discriminates expression vs nested condition once, here, so
// matching never re-guesses shapes. String operands carrying a context
// marker become context references; object operands of quantifier operators
// become nested conditions.

const exprKey = "$expr"

// DecodeCondition converts a decoded JSON/YAML object into a typed condition
// tree. Constraint values that are neither arrays nor objects are authoring
// defects and fail with a TypeError.
func DecodeCondition(raw map[string]any) (*Condition, error) {
	cond := &Condition{}
	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if key == exprKey {
			tuple, ok := raw[key].([]any)
			if !ok {
				return nil, typeErr("", exprKey, "an expression tuple", raw[key])
			}
			expr, err := decodeExpression(tuple)
			if err != nil {
				return nil, err
			}
			cond.Expr = expr
			continue
		}
		constraint, err := decodeConstraint(key, raw[key])
		if err != nil {
			return nil, err
		}
		cond.Fields = append(cond.Fields, Field{Key: normalizePath(key), Constraint: constraint})
	}
	return cond, nil
}

func decodeConstraint(key string, raw any) (Constraint, error) {
	switch v := raw.(type) {
	case []any:
		return decodeExpression(v)
	case map[string]any:
		return DecodeCondition(v)
	default:
		return nil, typeErr("", "field "+key, "an expression tuple or nested object", raw)
	}
}

// decodeExpression reads one [operator, operand, options?] tuple. Tuples
// that are too short or do not start with an operator name decode to a zero
// expression, which matches nothing at evaluation time.
func decodeExpression(tuple []any) (*Expression, error) {
	if len(tuple) < 2 {
		return &Expression{}, nil
	}
	name, ok := tuple[0].(string)
	if !ok {
		return &Expression{}, nil
	}
	op := Operator(name)
	operand, err := decodeOperand(op, tuple[1])
	if err != nil {
		return nil, err
	}
	expr := &Expression{Op: op, Operand: operand}
	if len(tuple) > 2 {
		expr.Options = decodeOptions(tuple[2])
	}
	return expr, nil
}

func decodeOperand(op Operator, raw any) (Operand, error) {
	if op.quantifier() {
		if m, ok := raw.(map[string]any); ok {
			nested, err := DecodeCondition(m)
			if err != nil {
				return nil, err
			}
			return Nested{Cond: nested}, nil
		}
		// wrong operand shape for a quantifier; kept literal so the
		// operator reports the domain violation at evaluation time
		return Literal{Value: raw}, nil
	}
	if s, ok := raw.(string); ok && IsContextRef(s) {
		return ContextRef{Path: TrimContextMarker(s)}, nil
	}
	return Literal{Value: raw}, nil
}

func decodeOptions(raw any) Options {
	opts := Options{}
	m, ok := raw.(map[string]any)
	if !ok {
		return opts
	}
	if ci, ok := m["caseInsensitive"].(bool); ok {
		opts.CaseInsensitive = ci
	}
	return opts
}

// EncodeCondition converts a typed condition tree back to its wire object.
func EncodeCondition(c *Condition) map[string]any {
	if c == nil {
		return nil
	}
	out := make(map[string]any, len(c.Fields)+1)
	if c.Expr != nil {
		out[exprKey] = encodeExpression(c.Expr)
	}
	for _, f := range c.Fields {
		out[f.Key] = encodeConstraint(f.Constraint)
	}
	return out
}

func encodeConstraint(k Constraint) any {
	switch v := k.(type) {
	case *Expression:
		return encodeExpression(v)
	case *Condition:
		return EncodeCondition(v)
	}
	return nil
}

func encodeExpression(e *Expression) []any {
	if e == nil || e.Op == "" {
		return []any{}
	}
	tuple := []any{string(e.Op), encodeOperand(e.Operand)}
	if e.Options.CaseInsensitive {
		tuple = append(tuple, map[string]any{"caseInsensitive": true})
	}
	return tuple
}

func encodeOperand(o Operand) any {
	switch v := o.(type) {
	case Literal:
		return v.Value
	case ContextRef:
		return ctxMarkerDollar + v.Path
	case Nested:
		return EncodeCondition(v.Cond)
	}
	return nil
}

// ============================================================================
// JSON / YAML HOOKS
// ============================================================================

func (c *Condition) MarshalJSON() ([]byte, error) {
	return json.Marshal(EncodeCondition(c))
}

func (c *Condition) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	dec, err := DecodeCondition(raw)
	if err != nil {
		return err
	}
	*c = *dec
	return nil
}

func (c *Condition) MarshalYAML() (any, error) {
	return EncodeCondition(c), nil
}

func (c *Condition) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	dec, err := DecodeCondition(raw)
	if err != nil {
		return err
	}
	*c = *dec
	return nil
}

// ParseRules decodes a JSON array of rules.
func ParseRules(data []byte) ([]*Rule, error) {
	var rules []*Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	return rules, nil
}

// EncodeRules renders a rule set as indented JSON.
func EncodeRules(rules []*Rule) ([]byte, error) {
	return json.MarshalIndent(rules, "", "  ")
}
