package permit_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/oarkflow/permit"
)

func TestDSLParser(t *testing.T) {
	text := `
# Engine rules for the article service
version 3

engine rule_limit=500 substitution_cache=true result_cache=true

rule allow read article {"status": ["eq", "published"]}
rule allow edit article {"authorId": ["eq", "$ctx.user.id"]}
rule deny * article {"archived": ["eq", true]}
rule allow read comment
`
	cfg, err := permit.ParseDSL(text)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Version != 3 {
		t.Errorf("expected version 3, got %d", cfg.Version)
	}
	if cfg.Engine.RuleLimit != 500 {
		t.Errorf("expected rule_limit=500, got %d", cfg.Engine.RuleLimit)
	}
	if !cfg.Engine.SubstitutionCache || !cfg.Engine.ResultCache {
		t.Errorf("expected both caches enabled, got %+v", cfg.Engine)
	}
	if len(cfg.Rules) != 4 {
		t.Fatalf("expected 4 rules, got %d", len(cfg.Rules))
	}
	if cfg.Rules[2].Effect != permit.EffectDeny || cfg.Rules[2].Action != "*" {
		t.Errorf("expected wildcard deny third, got %+v", cfg.Rules[2])
	}
	if cfg.Rules[3].Condition != nil {
		t.Errorf("expected bare rule to have no condition, got %+v", cfg.Rules[3].Condition)
	}

	editConstraint, ok := cfg.Rules[1].Condition.Field("authorId")
	if !ok {
		t.Fatal("edit rule lost its condition")
	}
	if _, ok := editConstraint.(*permit.Expression).Operand.(permit.ContextRef); !ok {
		t.Error("context marker must survive the DSL")
	}
}

func TestDSLConditionKeepsInternalSpaces(t *testing.T) {
	text := `rule allow read article {"title": ["contains", "hello world"], "views": ["gt", 10]}`
	cfg, err := permit.ParseDSL(text)
	if err != nil {
		t.Fatal(err)
	}
	constraint, ok := cfg.Rules[0].Condition.Field("title")
	if !ok {
		t.Fatal("title constraint missing")
	}
	operand := constraint.(*permit.Expression).Operand.(permit.Literal)
	if operand.Value != "hello world" {
		t.Fatalf("condition JSON with spaces mangled: %v", operand.Value)
	}
}

func TestDSLRoundTrip(t *testing.T) {
	cfg := sampleConfig(t)
	text, err := permit.EncodeDSL(cfg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	parsed, err := permit.ParseDSL(text)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if diff := cmp.Diff(cfg, parsed); diff != "" {
		t.Fatalf("DSL round trip changed the config:\n%s", diff)
	}
}

func TestDSLErrorsCarryLineNumbers(t *testing.T) {
	tests := []struct {
		name string
		text string
		line string
	}{
		{"unknown keyword", "version 1\n\npolicy allow read article", "line 3"},
		{"bad version", "version one", "line 1"},
		{"short rule", "version 1\nrule allow read", "line 2"},
		{"bad effect", "rule permit read article", "line 1"},
		{"bad condition json", `rule allow read article {"status":`, "line 1"},
		{"unknown engine key", "engine cache_ttl=5000", "line 1"},
		{"bad engine pair", "engine rule_limit", "line 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := permit.ParseDSL(tt.text)
			if err == nil {
				t.Fatal("expected parse error")
			}
			if !strings.Contains(err.Error(), tt.line) {
				t.Fatalf("expected %q in error %q", tt.line, err.Error())
			}
		})
	}
}

func TestDSLSkipsCommentsAndBlanks(t *testing.T) {
	text := "\n\n# comment only\n\n   \nversion 2\n# another\nrule allow read article\n\n"
	cfg, err := permit.ParseDSL(text)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Version != 2 || len(cfg.Rules) != 1 {
		t.Fatalf("expected version 2 with one rule, got version %d with %d", cfg.Version, len(cfg.Rules))
	}
}

func TestDSLWithEngine(t *testing.T) {
	text := `
version 1
rule allow read article {"status": ["eq", "published"]}
rule deny read article {"archived": ["eq", true]}
`
	cfg, err := permit.ParseDSL(text)
	if err != nil {
		t.Fatal(err)
	}

	engine := newTestEngine(t)
	ctx := context.Background()
	if err := engine.ApplyConfig(ctx, cfg); err != nil {
		t.Fatal(err)
	}

	ok, err := engine.CanAccess(ctx, "read", "article", map[string]any{"status": "published", "archived": false})
	if err != nil || !ok {
		t.Fatalf("expected published readable, got (%t, %v)", ok, err)
	}
	ok, err = engine.CanAccess(ctx, "read", "article", map[string]any{"status": "published", "archived": true})
	if err != nil || ok {
		t.Fatalf("expected archived denied, got (%t, %v)", ok, err)
	}
}

func ExampleParseDSL() {
	cfg, err := permit.ParseDSL(`
version 1
engine rule_limit=100
rule allow read article {"status": ["eq", "published"]}
rule deny delete article
`)
	if err != nil {
		panic(err)
	}

	fmt.Println("version:", cfg.Version)
	fmt.Println("rules:", len(cfg.Rules))
	// Output:
	// version: 1
	// rules: 2
}
