package permit

// ConfigBuilder provides fluent API for building configurations
type ConfigBuilder struct {
	cfg *Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{
		cfg: &Config{
			Version: 1,
			Engine: EngineConfig{
				RuleLimit: DefaultRuleLimit,
			},
		},
	}
}

func (b *ConfigBuilder) Version(v int) *ConfigBuilder {
	b.cfg.Version = v
	return b
}

func (b *ConfigBuilder) AddRule(r *Rule) *ConfigBuilder {
	b.cfg.Rules = append(b.cfg.Rules, r)
	return b
}

func (b *ConfigBuilder) EngineSettings(fn func(*EngineConfig)) *ConfigBuilder {
	fn(&b.cfg.Engine)
	return b
}

func (b *ConfigBuilder) Build() *Config {
	return b.cfg
}

func (b *ConfigBuilder) ToYAML() ([]byte, error) {
	return b.cfg.ToYAML()
}

func (b *ConfigBuilder) ToJSON() ([]byte, error) {
	return b.cfg.ToJSON()
}

// RuleBuilder provides fluent API for building rules
type RuleBuilder struct {
	r   *Rule
	err error
}

func NewRuleBuilder() *RuleBuilder {
	return &RuleBuilder{r: &Rule{Effect: EffectAllow}}
}

// Allow starts an allow rule for the action and resource.
func Allow(action, resource string) *RuleBuilder {
	return &RuleBuilder{r: &Rule{Effect: EffectAllow, Action: action, Resource: resource}}
}

// Deny starts a deny rule for the action and resource.
func Deny(action, resource string) *RuleBuilder {
	return &RuleBuilder{r: &Rule{Effect: EffectDeny, Action: action, Resource: resource}}
}

func (b *RuleBuilder) Action(action string) *RuleBuilder {
	b.r.Action = action
	return b
}

func (b *RuleBuilder) Resource(resource string) *RuleBuilder {
	b.r.Resource = resource
	return b
}

func (b *RuleBuilder) Effect(e Effect) *RuleBuilder {
	b.r.Effect = e
	return b
}

// When attaches a condition the resource instance must satisfy.
func (b *RuleBuilder) When(cond *Condition) *RuleBuilder {
	b.r.Condition = cond
	return b
}

// WhenMap decodes a wire-form condition map and attaches it.
func (b *RuleBuilder) WhenMap(raw map[string]any) *RuleBuilder {
	cond, err := DecodeCondition(raw)
	if err != nil {
		if b.err == nil {
			b.err = err
		}
		return b
	}
	b.r.Condition = cond
	return b
}

func (b *RuleBuilder) Build() (*Rule, error) {
	if b.err != nil {
		return nil, b.err
	}
	if err := b.r.Validate(); err != nil {
		return nil, err
	}
	return b.r, nil
}

// ConditionBuilder provides fluent API for building conditions
type ConditionBuilder struct {
	expr   *Expression
	fields []Field
}

func NewConditionBuilder() *ConditionBuilder {
	return &ConditionBuilder{}
}

// Field attaches an arbitrary constraint under key.
func (c *ConditionBuilder) Field(key string, constraint Constraint) *ConditionBuilder {
	c.fields = append(c.fields, Field{Key: key, Constraint: constraint})
	return c
}

// Where nests a condition under key for matching embedded objects.
func (c *ConditionBuilder) Where(key string, nested *Condition) *ConditionBuilder {
	return c.Field(key, nested)
}

// Expr sets a guard expression evaluated against the instance itself.
func (c *ConditionBuilder) Expr(op Operator, value any) *ConditionBuilder {
	c.expr = &Expression{Op: op, Operand: literalOrRef(value)}
	return c
}

func (c *ConditionBuilder) Eq(key string, value any) *ConditionBuilder {
	return c.literal(key, OpEq, value, Options{})
}

// EqFold matches strings equal under case folding.
func (c *ConditionBuilder) EqFold(key string, value string) *ConditionBuilder {
	return c.literal(key, OpEq, value, Options{CaseInsensitive: true})
}

func (c *ConditionBuilder) In(key string, values ...any) *ConditionBuilder {
	return c.literal(key, OpIn, values, Options{})
}

func (c *ConditionBuilder) Contains(key string, value string) *ConditionBuilder {
	return c.literal(key, OpContains, value, Options{})
}

func (c *ConditionBuilder) StartsWith(key string, value string) *ConditionBuilder {
	return c.literal(key, OpStartsWith, value, Options{})
}

func (c *ConditionBuilder) EndsWith(key string, value string) *ConditionBuilder {
	return c.literal(key, OpEndsWith, value, Options{})
}

func (c *ConditionBuilder) Gt(key string, value any) *ConditionBuilder {
	return c.literal(key, OpGt, value, Options{})
}

func (c *ConditionBuilder) Gte(key string, value any) *ConditionBuilder {
	return c.literal(key, OpGte, value, Options{})
}

func (c *ConditionBuilder) Has(key string, value any) *ConditionBuilder {
	return c.literal(key, OpHas, value, Options{})
}

func (c *ConditionBuilder) HasSome(key string, values ...any) *ConditionBuilder {
	return c.literal(key, OpHasSome, values, Options{})
}

func (c *ConditionBuilder) HasEvery(key string, values ...any) *ConditionBuilder {
	return c.literal(key, OpHasEvery, values, Options{})
}

func (c *ConditionBuilder) Some(key string, nested *Condition) *ConditionBuilder {
	return c.Field(key, &Expression{Op: OpSome, Operand: Nested{Cond: nested}})
}

func (c *ConditionBuilder) Every(key string, nested *Condition) *ConditionBuilder {
	return c.Field(key, &Expression{Op: OpEvery, Operand: Nested{Cond: nested}})
}

func (c *ConditionBuilder) None(key string, nested *Condition) *ConditionBuilder {
	return c.Field(key, &Expression{Op: OpNone, Operand: Nested{Cond: nested}})
}

// CtxEq matches the field against a value resolved from the contextual data.
func (c *ConditionBuilder) CtxEq(key, path string) *ConditionBuilder {
	return c.Field(key, &Expression{Op: OpEq, Operand: ContextRef{Path: TrimContextMarker(path)}})
}

// Ctx matches the field with op against a context-resolved operand.
func (c *ConditionBuilder) Ctx(key string, op Operator, path string) *ConditionBuilder {
	return c.Field(key, &Expression{Op: op, Operand: ContextRef{Path: TrimContextMarker(path)}})
}

func (c *ConditionBuilder) literal(key string, op Operator, value any, opts Options) *ConditionBuilder {
	return c.Field(key, &Expression{Op: op, Operand: literalOrRef(value), Options: opts})
}

func (c *ConditionBuilder) Build() *Condition {
	fields := make([]Field, len(c.fields))
	copy(fields, c.fields)
	sortFields(fields)
	return &Condition{Expr: c.expr, Fields: fields}
}

func literalOrRef(value any) Operand {
	if s, ok := value.(string); ok && IsContextRef(s) {
		return ContextRef{Path: TrimContextMarker(s)}
	}
	return Literal{Value: value}
}
