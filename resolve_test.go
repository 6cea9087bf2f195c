package permit_test

import (
	"testing"

	"github.com/oarkflow/permit"
)

func TestResolvePath(t *testing.T) {
	doc := map[string]any{
		"id":     "article-1",
		"author": map[string]any{"id": "user-9", "name": "Nadia"},
		"tags":   []any{"go", "auth"},
		"title":  "héllo",
		"meta":   map[string]string{"lang": "en"},
		"empty":  nil,
	}

	tests := []struct {
		name string
		path string
		want any
	}{
		{"top level", "id", "article-1"},
		{"nested map", "author.id", "user-9"},
		{"array index", "tags.1", "auth"},
		{"array out of range", "tags.5", nil},
		{"array negative index", "tags.-1", nil},
		{"array length", "tags.length", float64(2)},
		{"string length counts runes", "title.length", float64(5)},
		{"string map", "meta.lang", "en"},
		{"missing key", "missing", nil},
		{"missing intermediate", "missing.deep.path", nil},
		{"nil intermediate", "empty.anything", nil},
		{"optional chain folds", "author?.name", "Nadia"},
		{"scalar dead end", "id.length.more", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := permit.ResolvePath(doc, tt.path)
			if got != tt.want {
				t.Fatalf("ResolvePath(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestResolvePathEmptyAndNilRoot(t *testing.T) {
	doc := map[string]any{"a": 1}
	if got := permit.ResolvePath(doc, ""); got == nil {
		t.Fatal("empty path must return the root")
	}
	if got := permit.ResolvePath(nil, "a.b"); got != nil {
		t.Fatalf("nil root must resolve to nil, got %v", got)
	}
	if got := permit.ResolvePath("scalar", "field"); got != nil {
		t.Fatalf("scalar root with field path must resolve to nil, got %v", got)
	}
}

func TestResolvePathTypedSlices(t *testing.T) {
	doc := map[string]any{"scores": []int{10, 20, 30}}
	if got := permit.ResolvePath(doc, "scores.length"); got != float64(3) {
		t.Fatalf("expected length 3, got %v", got)
	}
	if got := permit.ResolvePath(doc, "scores.2"); got != 30 {
		t.Fatalf("expected element 30, got %v", got)
	}
}

func TestIsContextRef(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"$ctx.user.id", true},
		{"ctx.user.id", true},
		{"context.user", false},
		{"user.id", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := permit.IsContextRef(tt.in); got != tt.want {
			t.Errorf("IsContextRef(%q) = %t, want %t", tt.in, got, tt.want)
		}
	}
}

func TestTrimContextMarker(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"$ctx.user.id", "user.id"},
		{"ctx.user.id", "user.id"},
		{"user.id", "user.id"},
		{"$ctx.ctx.a", "ctx.a"},
		{"$ctx.user?.id", "user.id"},
	}
	for _, tt := range tests {
		if got := permit.TrimContextMarker(tt.in); got != tt.want {
			t.Errorf("TrimContextMarker(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolveCondition(t *testing.T) {
	cond := permit.NewConditionBuilder().
		CtxEq("authorId", "$ctx.user.id").
		Eq("status", "published").
		Ctx("tier", permit.OpIn, "$ctx.user.allowedTiers").
		Build()

	evalCtx := map[string]any{
		"user": map[string]any{
			"id":           "user-9",
			"allowedTiers": []any{"free", "pro"},
		},
	}

	resolved := permit.ResolveCondition(cond, evalCtx)

	authorConstraint, ok := resolved.Field("authorId")
	if !ok {
		t.Fatal("authorId field missing after resolution")
	}
	expr := authorConstraint.(*permit.Expression)
	litOperand, ok := expr.Operand.(permit.Literal)
	if !ok {
		t.Fatalf("expected literal operand, got %T", expr.Operand)
	}
	if litOperand.Value != "user-9" {
		t.Fatalf("expected substituted user-9, got %v", litOperand.Value)
	}

	tierConstraint, _ := resolved.Field("tier")
	tierOperand := tierConstraint.(*permit.Expression).Operand.(permit.Literal)
	tiers, ok := tierOperand.Value.([]any)
	if !ok || len(tiers) != 2 {
		t.Fatalf("expected two substituted tiers, got %v", tierOperand.Value)
	}

	// the input tree keeps its references
	origConstraint, _ := cond.Field("authorId")
	if _, ok := origConstraint.(*permit.Expression).Operand.(permit.ContextRef); !ok {
		t.Fatal("resolution must not modify the input condition")
	}
}

func TestResolveConditionAbsentPath(t *testing.T) {
	cond := permit.NewConditionBuilder().CtxEq("ownerId", "$ctx.user.id").Build()
	resolved := permit.ResolveCondition(cond, map[string]any{})

	constraint, _ := resolved.Field("ownerId")
	operand := constraint.(*permit.Expression).Operand.(permit.Literal)
	if operand.Value != nil {
		t.Fatalf("absent context path must substitute nil, got %v", operand.Value)
	}

	// nil literal then only matches a null field value
	ok, err := permit.MatchCondition(map[string]any{"ownerId": "user-1"}, resolved, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected mismatch against substituted nil")
	}
}

func TestResolveConditionNested(t *testing.T) {
	inner := permit.NewConditionBuilder().CtxEq("id", "$ctx.user.id").Build()
	cond := permit.NewConditionBuilder().
		Some("members", inner).
		Where("owner", permit.NewConditionBuilder().CtxEq("id", "$ctx.user.id").Build()).
		Build()

	resolved := permit.ResolveCondition(cond, map[string]any{
		"user": map[string]any{"id": "user-3"},
	})

	instance := map[string]any{
		"members": []any{map[string]any{"id": "user-3"}},
		"owner":   map[string]any{"id": "user-3"},
	}
	ok, err := permit.MatchCondition(instance, resolved, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected nested references to resolve and match")
	}
}

func TestResolveConditionNil(t *testing.T) {
	if permit.ResolveCondition(nil, map[string]any{"a": 1}) != nil {
		t.Fatal("nil condition must resolve to nil")
	}
}
