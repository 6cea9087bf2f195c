package benchmark

import (
	"context"
	"testing"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/oarkflow/permit"
	"github.com/oarkflow/permit/logger"
)

func newBenchEngine(b *testing.B, opts ...permit.Option) *permit.Engine {
	b.Helper()
	opts = append([]permit.Option{permit.WithLogger(logger.NewNullLogger())}, opts...)
	eng, err := permit.New(permit.NewMemoryRuleStore(), opts...)
	if err != nil {
		b.Fatalf("new engine: %v", err)
	}
	return eng
}

func benchRules(b *testing.B) []*permit.Rule {
	b.Helper()
	published, err := permit.Allow("read", "article").
		When(permit.NewConditionBuilder().Eq("status", "published").Build()).
		Build()
	if err != nil {
		b.Fatalf("build rule: %v", err)
	}
	owner, err := permit.Allow("read", "article").
		When(permit.NewConditionBuilder().CtxEq("authorId", "user.id").Build()).
		Build()
	if err != nil {
		b.Fatalf("build rule: %v", err)
	}
	archived, err := permit.Deny("read", "article").
		When(permit.NewConditionBuilder().Eq("archived", true).Build()).
		Build()
	if err != nil {
		b.Fatalf("build rule: %v", err)
	}
	return []*permit.Rule{published, owner, archived}
}

func BenchmarkPermitCanAccess(b *testing.B) {
	eng := newBenchEngine(b,
		permit.WithContextProvider(func(ctx context.Context) (map[string]any, error) {
			return map[string]any{"user": map[string]any{"id": "alice"}}, nil
		}),
	)
	if err := eng.SetRules(context.Background(), benchRules(b)); err != nil {
		b.Fatalf("set rules: %v", err)
	}

	instance := map[string]any{"status": "published", "authorId": "bob", "archived": false}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = eng.CanAccess(context.Background(), "read", "article", instance)
	}
}

func BenchmarkPermitCanAccessResultCache(b *testing.B) {
	eng := newBenchEngine(b,
		permit.WithContextProvider(func(ctx context.Context) (map[string]any, error) {
			return map[string]any{"user": map[string]any{"id": "alice"}}, nil
		}),
		permit.WithResultCache(permit.NewMapCache()),
	)
	if err := eng.SetRules(context.Background(), benchRules(b)); err != nil {
		b.Fatalf("set rules: %v", err)
	}

	instance := map[string]any{"status": "published", "authorId": "bob", "archived": false}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = eng.CanAccess(context.Background(), "read", "article", instance)
	}
}

func BenchmarkPermitMatchCondition(b *testing.B) {
	cond, err := permit.DecodeCondition(map[string]any{
		"status":   []any{"eq", "published"},
		"archived": []any{"eq", false},
		"tags":     []any{"hasSome", []any{"go", "news"}},
	})
	if err != nil {
		b.Fatalf("decode condition: %v", err)
	}
	instance := map[string]any{
		"status":   "published",
		"archived": false,
		"tags":     []any{"go", "databases"},
	}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = permit.MatchCondition(instance, cond, nil)
	}
}

func BenchmarkCasbinABAC(b *testing.B) {
	modelText := `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub_rule, obj_type, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = eval(p.sub_rule) && r.obj.Type == p.obj_type && r.act == p.act
`

	m, err := model.NewModelFromString(modelText)
	if err != nil {
		b.Fatalf("casbin model: %v", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		b.Fatalf("casbin enforcer: %v", err)
	}
	_, _ = e.AddPolicy(`r.obj.Status == "published"`, "article", "read")

	type article struct {
		Type   string
		Status string
	}
	obj := &article{Type: "article", Status: "published"}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = e.Enforce("alice", obj, "read")
	}
}
