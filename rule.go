package permit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// ============================================================================
// DOMAIN OBJECTS
// ============================================================================

// Effect is the outcome a matching rule contributes to the final decision
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Operator names one comparison in the condition expression catalogue
type Operator string

const (
	OpEq         Operator = "eq"
	OpIn         Operator = "in"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "startsWith"
	OpEndsWith   Operator = "endsWith"
	OpGt         Operator = "gt"
	OpGte        Operator = "gte"
	OpHas        Operator = "has"
	OpHasSome    Operator = "hasSome"
	OpHasEvery   Operator = "hasEvery"
	OpSome       Operator = "some"
	OpEvery      Operator = "every"
	OpNone       Operator = "none"
)

// Known reports whether op is part of the evaluation catalogue. Stored rule
// data may carry operator names from another release; expressions with an
// unknown operator evaluate to false instead of failing, so such names stay
// representable here.
func (op Operator) Known() bool {
	switch op {
	case OpEq, OpIn, OpContains, OpStartsWith, OpEndsWith, OpGt, OpGte,
		OpHas, OpHasSome, OpHasEvery, OpSome, OpEvery, OpNone:
		return true
	}
	return false
}

// quantifier reports whether op applies a nested condition per array element.
func (op Operator) quantifier() bool {
	return op == OpSome || op == OpEvery || op == OpNone
}

// Rule states that an action on a resource type is allowed or denied,
// optionally narrowed to instances matching Condition. Rules are immutable
// once stored; the rule set is replaced wholesale, never patched in place.
type Rule struct {
	Resource  string     `json:"resource" yaml:"resource"`
	Action    string     `json:"action" yaml:"action"`
	Condition *Condition `json:"condition,omitempty" yaml:"condition,omitempty"`
	Effect    Effect     `json:"effect" yaml:"effect"`
}

// Key returns the action:resource pair the rule is stored under.
func (r *Rule) Key() string {
	return r.Action + ":" + r.Resource
}

func (r *Rule) Validate() error {
	if r == nil {
		return fmt.Errorf("rule is nil")
	}
	if r.Resource == "" {
		return fmt.Errorf("rule resource required")
	}
	if r.Action == "" {
		return fmt.Errorf("rule action required")
	}
	if r.Effect != EffectAllow && r.Effect != EffectDeny {
		return fmt.Errorf("rule effect must be %q or %q, got %q", EffectAllow, EffectDeny, r.Effect)
	}
	return nil
}

// Checksum returns a deterministic hash of the rule
func (r *Rule) Checksum() string {
	data, _ := json.Marshal(r)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// Clone returns a deep copy. Literal operand values are shared; they are
// read-only throughout evaluation.
func (r *Rule) Clone() *Rule {
	if r == nil {
		return nil
	}
	dup := *r
	dup.Condition = r.Condition.Clone()
	return &dup
}

// Condition is a conjunction of per-field constraints evaluated against a
// resource instance. Expr, when present, is the guard evaluated against the
// value the condition as a whole is applied to (the "$expr" key in encoded
// form). Fields are kept sorted by key so encoding and hashing stay
// deterministic.
type Condition struct {
	Expr   *Expression
	Fields []Field
}

// Field binds one instance field to its constraint.
type Field struct {
	Key        string
	Constraint Constraint
}

// Constraint is one branch of a condition field: a leaf Expression or a
// nested Condition for object-valued fields. The branch is fixed when the
// condition is built, never re-guessed during matching.
type Constraint interface {
	constraint()
}

func (*Expression) constraint() {}
func (*Condition) constraint()  {}

// NewCondition builds a condition over the given field constraints.
func NewCondition(fields map[string]Constraint) *Condition {
	c := &Condition{}
	if len(fields) == 0 {
		return c
	}
	c.Fields = make([]Field, 0, len(fields))
	for key, k := range fields {
		c.Fields = append(c.Fields, Field{Key: key, Constraint: k})
	}
	sortFields(c.Fields)
	return c
}

func sortFields(fields []Field) {
	sort.SliceStable(fields, func(i, j int) bool { return fields[i].Key < fields[j].Key })
}

// Empty reports whether the condition constrains nothing.
func (c *Condition) Empty() bool {
	return c == nil || (c.Expr == nil && len(c.Fields) == 0)
}

// Field returns the constraint stored under key.
func (c *Condition) Field(key string) (Constraint, bool) {
	if c == nil {
		return nil, false
	}
	for _, f := range c.Fields {
		if f.Key == key {
			return f.Constraint, true
		}
	}
	return nil, false
}

func (c *Condition) Clone() *Condition {
	if c == nil {
		return nil
	}
	dup := &Condition{Expr: c.Expr.clone()}
	if len(c.Fields) > 0 {
		dup.Fields = make([]Field, len(c.Fields))
		for i, f := range c.Fields {
			dup.Fields[i] = Field{Key: f.Key, Constraint: cloneConstraint(f.Constraint)}
		}
	}
	return dup
}

func cloneConstraint(k Constraint) Constraint {
	switch v := k.(type) {
	case *Expression:
		return v.clone()
	case *Condition:
		return v.Clone()
	}
	return k
}

// Expression is a single [operator, operand, options?] leaf constraint.
type Expression struct {
	Op      Operator
	Operand Operand
	Options Options
}

// Options adjusts operator semantics where meaningful.
type Options struct {
	CaseInsensitive bool
}

func (e *Expression) clone() *Expression {
	if e == nil {
		return nil
	}
	dup := *e
	if n, ok := e.Operand.(Nested); ok {
		dup.Operand = Nested{Cond: n.Cond.Clone()}
	}
	return &dup
}

// Operand is the right-hand side of an expression, fixed once when the rule
// is loaded: a literal, a reference into the per-call context, or a nested
// condition for the quantifier operators.
type Operand interface {
	operand()
}

// Literal is a concrete operand value: a scalar, an array of scalars, or nil.
type Literal struct {
	Value any
}

// ContextRef is a path into the caller-supplied context object. Path is
// stored without the context marker and with null-safe segments folded.
type ContextRef struct {
	Path string
}

// Nested wraps the condition a quantifier operator applies per element.
type Nested struct {
	Cond *Condition
}

func (Literal) operand()    {}
func (ContextRef) operand() {}
func (Nested) operand()     {}
