package permit

import (
	"context"
	"fmt"

	"github.com/oarkflow/permit/logger"
)

// ============================================================================
// COLLABORATORS
// ============================================================================

// Store is the rule persistence collaborator. QueryRules is the hot path and
// must return candidates in insertion order; SetRules replaces the whole set
// as one snapshot. Stores never interpret conditions.
type Store interface {
	SetRules(ctx context.Context, rules []*Rule) error
	GetRules(ctx context.Context) ([]*Rule, error)
	QueryRules(ctx context.Context, action, resource string) ([]*Rule, error)
	ClearRules(ctx context.Context) error
}

// ContextProvider supplies the per-call context object consulted when a
// condition carries contextual operands. It is invoked once per check.
type ContextProvider func(ctx context.Context) (map[string]any, error)

// Logger re-exports the logging surface so callers wiring WithLogger do not
// need a separate import of the logger package.
type Logger = logger.Logger

// ============================================================================
// ENGINE
// ============================================================================

// DefaultRuleLimit caps how many candidate rules one check may inspect.
const DefaultRuleLimit = 1000

// Engine answers allow/deny questions by matching stored rules against
// resource instances. The matcher itself is pure; the engine adds rule
// retrieval, context fetching and optional memoization around it, so a
// single Engine is safe for concurrent use as long as its collaborators are.
type Engine struct {
	store       Store
	provider    ContextProvider
	log         logger.Logger
	traceIDFunc logger.TraceIDFunc
	subCache    Cache
	resultCache Cache
	ruleLimit   int
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger replaces the default structured logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithTraceIDFunc attaches a correlation ID generator; its output is added
// to every decision log line.
func WithTraceIDFunc(fn logger.TraceIDFunc) Option {
	return func(e *Engine) { e.traceIDFunc = fn }
}

// WithContextProvider wires the source of contextual operand data.
func WithContextProvider(p ContextProvider) Option {
	return func(e *Engine) { e.provider = p }
}

// WithCache replaces the substituted-condition cache. Pass nil to disable
// memoization of context substitution entirely.
func WithCache(c Cache) Option {
	return func(e *Engine) { e.subCache = c }
}

// WithResultCache enables decision caching. Disabled by default; decisions
// then depend only on the data fetched during the call.
func WithResultCache(c Cache) Option {
	return func(e *Engine) { e.resultCache = c }
}

// WithRuleLimit overrides the candidate-rule inspection ceiling.
func WithRuleLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.ruleLimit = n
		}
	}
}

// New builds an Engine over the given rule store.
func New(store Store, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("permit: store is required")
	}
	e := &Engine{
		store:     store,
		log:       logger.NewPhusluLogger(),
		subCache:  NewMapCache(),
		ruleLimit: DefaultRuleLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// SetRuleLimit adjusts the inspection ceiling on a built engine. Intended
// for wiring at startup, not for concurrent reconfiguration.
func (e *Engine) SetRuleLimit(n int) {
	if n > 0 {
		e.ruleLimit = n
	}
}

// SetSubstitutionCache swaps the substituted-condition cache.
func (e *Engine) SetSubstitutionCache(c Cache) {
	e.subCache = c
}

// SetResultCache swaps the decision cache.
func (e *Engine) SetResultCache(c Cache) {
	e.resultCache = c
}

// ============================================================================
// CHECKS
// ============================================================================

// Can answers the type-level question: does any allow rule exist for the
// action and resource type? Conditions are not evaluated without a concrete
// instance; a conditional allow rule still makes Can true. Use CanAccess to
// check a specific instance.
func (e *Engine) Can(ctx context.Context, action, resource string) (bool, error) {
	rules, err := e.candidates(ctx, action, resource)
	if err != nil {
		return false, err
	}
	if e.tripped(action, resource, len(rules)) {
		return false, nil
	}
	for _, r := range rules {
		if r.Effect == EffectAllow {
			return true, nil
		}
	}
	return false, nil
}

// Cannot is the strict negation of Can.
func (e *Engine) Cannot(ctx context.Context, action, resource string) (bool, error) {
	ok, err := e.Can(ctx, action, resource)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

// CanAccess answers the instance-level question. The verdict is true iff at
// least one matching rule allows and no matching rule denies: one deny
// vetoes any number of allows, whatever order the rules were stored in.
// A condition whose operand violates its operator's domain surfaces as a
// TypeError; that is an authoring defect, not a denial.
func (e *Engine) CanAccess(ctx context.Context, action, resource string, instance any) (bool, error) {
	rules, err := e.candidates(ctx, action, resource)
	if err != nil {
		return false, err
	}
	if e.tripped(action, resource, len(rules)) {
		return false, nil
	}
	evalCtx, err := e.callContext(ctx)
	if err != nil {
		return false, err
	}

	var resultKey uint64
	haveKey := false
	if e.resultCache != nil {
		if k, err := hashKey(resultEntry{Action: action, Resource: resource, Instance: instance, Context: evalCtx}); err == nil {
			resultKey, haveKey = k, true
			if v, ok := e.resultCache.Get(resultKey); ok {
				if verdict, ok := v.(bool); ok {
					return verdict, nil
				}
			}
		}
	}

	anyAllow, anyDeny := false, false
	for _, r := range rules {
		matched, err := e.ruleMatches(r, instance, evalCtx)
		if err != nil {
			return false, err
		}
		if !matched {
			continue
		}
		switch r.Effect {
		case EffectDeny:
			anyDeny = true
		case EffectAllow:
			anyAllow = true
		}
	}
	verdict := anyAllow && !anyDeny
	if haveKey {
		e.resultCache.Set(resultKey, verdict)
	}
	e.log.Debug("permit decision", e.kv("action", action, "resource", resource, "allowed", verdict)...)
	return verdict, nil
}

// CannotAccess is the strict negation of CanAccess.
func (e *Engine) CannotAccess(ctx context.Context, action, resource string, instance any) (bool, error) {
	ok, err := e.CanAccess(ctx, action, resource, instance)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

// CheckRequest is one instance-level authorization question.
type CheckRequest struct {
	Action   string
	Resource string
	Instance any
}

// BatchCheck answers several instance checks in one call, in order.
func (e *Engine) BatchCheck(ctx context.Context, reqs []CheckRequest) ([]bool, error) {
	out := make([]bool, len(reqs))
	for i, req := range reqs {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("check %d: %w", i, err)
		}
		ok, err := e.CanAccess(ctx, req.Action, req.Resource, req.Instance)
		if err != nil {
			return nil, fmt.Errorf("check %d: %w", i, err)
		}
		out[i] = ok
	}
	return out, nil
}

func (e *Engine) ruleMatches(r *Rule, instance any, evalCtx map[string]any) (bool, error) {
	if r.Condition == nil || r.Condition.Empty() {
		return true, nil
	}
	return MatchCondition(instance, e.substituted(r.Condition, evalCtx), evalCtx)
}

// substituted resolves a condition's contextual operands, memoized per
// (condition, context) pair when a substitution cache is configured.
// Substituted trees are shared through the cache and must stay read-only.
func (e *Engine) substituted(cond *Condition, evalCtx map[string]any) *Condition {
	if e.subCache == nil {
		return ResolveCondition(cond, evalCtx)
	}
	key, err := hashKey(substitutionEntry{Condition: cond, Context: evalCtx})
	if err != nil {
		return ResolveCondition(cond, evalCtx)
	}
	if v, ok := e.subCache.Get(key); ok {
		if c, ok := v.(*Condition); ok {
			return c
		}
	}
	out := ResolveCondition(cond, evalCtx)
	e.subCache.Set(key, out)
	return out
}

func (e *Engine) candidates(ctx context.Context, action, resource string) ([]*Rule, error) {
	rules, err := e.store.QueryRules(ctx, action, resource)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	return rules, nil
}

// tripped reports whether the candidate set exceeds the inspection ceiling.
// A tripped check denies immediately instead of doing unbounded work.
func (e *Engine) tripped(action, resource string, n int) bool {
	if n <= e.ruleLimit {
		return false
	}
	e.log.Error("rule limit exceeded, denying", e.kv("action", action, "resource", resource, "candidates", n, "limit", e.ruleLimit)...)
	return true
}

func (e *Engine) callContext(ctx context.Context) (map[string]any, error) {
	if e.provider == nil {
		return nil, nil
	}
	data, err := e.provider(ctx)
	if err != nil {
		return nil, fmt.Errorf("context provider: %w", err)
	}
	return data, nil
}

func (e *Engine) kv(base ...any) []any {
	if e.traceIDFunc == nil {
		return base
	}
	return append(base, "trace_id", e.traceIDFunc())
}

// ============================================================================
// RULE ADMINISTRATION
// ============================================================================

// SetRules validates and stores a new rule set, replacing the previous one
// wholesale, and drops all cached state derived from the old set.
func (e *Engine) SetRules(ctx context.Context, rules []*Rule) error {
	for i, r := range rules {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
	}
	if err := e.store.SetRules(ctx, rules); err != nil {
		return fmt.Errorf("set rules: %w", err)
	}
	e.invalidate()
	e.log.Info("rules replaced", e.kv("count", len(rules))...)
	return nil
}

// SetRulesFunc replaces the rule set with the result of fn applied to the
// current rules.
func (e *Engine) SetRulesFunc(ctx context.Context, fn func(current []*Rule) []*Rule) error {
	if fn == nil {
		return fmt.Errorf("set rules: nil callback")
	}
	current, err := e.GetRules(ctx)
	if err != nil {
		return err
	}
	return e.SetRules(ctx, fn(current))
}

// GetRules returns the full stored rule set in insertion order.
func (e *Engine) GetRules(ctx context.Context) ([]*Rule, error) {
	rules, err := e.store.GetRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("get rules: %w", err)
	}
	return rules, nil
}

// ClearRules removes every stored rule and drops cached state.
func (e *Engine) ClearRules(ctx context.Context) error {
	if err := e.store.ClearRules(ctx); err != nil {
		return fmt.Errorf("clear rules: %w", err)
	}
	e.invalidate()
	e.log.Info("rules cleared", e.kv()...)
	return nil
}

func (e *Engine) invalidate() {
	if e.subCache != nil {
		e.subCache.Clear()
	}
	if e.resultCache != nil {
		e.resultCache.Clear()
	}
}

// RelatedRulesOptions adjusts RelatedRulesFor.
type RelatedRulesOptions struct {
	// ApplyContext substitutes contextual operands with values from the
	// context provider before returning.
	ApplyContext bool
}

// RelatedRulesFor returns copies of the candidate rules for an action and
// resource key, for inspection or projection into a query filter. The
// stored rules are never exposed directly.
func (e *Engine) RelatedRulesFor(ctx context.Context, action, resource string, opts *RelatedRulesOptions) ([]*Rule, error) {
	rules, err := e.candidates(ctx, action, resource)
	if err != nil {
		return nil, err
	}
	applyCtx := opts != nil && opts.ApplyContext
	var evalCtx map[string]any
	if applyCtx {
		evalCtx, err = e.callContext(ctx)
		if err != nil {
			return nil, err
		}
	}
	out := make([]*Rule, len(rules))
	for i, r := range rules {
		dup := *r
		if dup.Condition != nil {
			if applyCtx {
				dup.Condition = ResolveCondition(dup.Condition, evalCtx)
			} else {
				dup.Condition = dup.Condition.Clone()
			}
		}
		out[i] = &dup
	}
	return out, nil
}
