package permit_test

import (
	"fmt"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/oarkflow/permit"
)

// Generate a config with N rules, half of them conditional.
func generateBenchConfig(numRules int) *permit.Config {
	cfg := &permit.Config{
		Version: 1,
		Engine: permit.EngineConfig{
			RuleLimit:         permit.DefaultRuleLimit,
			SubstitutionCache: true,
		},
		Rules: make([]*permit.Rule, numRules),
	}
	for i := 0; i < numRules; i++ {
		rule := &permit.Rule{
			Effect:   permit.EffectAllow,
			Action:   "read",
			Resource: fmt.Sprintf("article:%d", i),
		}
		if i%2 == 0 {
			rule.Condition = permit.NewConditionBuilder().
				Eq("status", "published").
				CtxEq("ownerId", "$ctx.user.id").
				Build()
		}
		cfg.Rules[i] = rule
	}
	return cfg
}

func generateBenchDSL(numRules int) string {
	var sb strings.Builder
	sb.WriteString("version 1\n")
	sb.WriteString("engine rule_limit=1000 substitution_cache=true\n")
	for i := 0; i < numRules; i++ {
		fmt.Fprintf(&sb, "rule allow read article:%d {\"status\": [\"eq\", \"published\"]}\n", i)
	}
	return sb.String()
}

func BenchmarkDSLParse(b *testing.B) {
	dsl := `
version 1
engine rule_limit=1000 substitution_cache=true
rule allow read article {"status": ["eq", "published"]}
rule allow edit article {"ownerId": ["eq", "$ctx.user.id"]}
rule deny delete article
`

	parser := permit.NewDSLParser()
	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = parser.Parse(dsl)
	}
}

func BenchmarkDSLEncode(b *testing.B) {
	cfg := generateBenchConfig(10)
	encoder := permit.NewDSLEncoder()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = encoder.Encode(cfg)
	}
}

func BenchmarkBinaryEncode(b *testing.B) {
	cfg := generateBenchConfig(10)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = permit.EncodeBinaryConfig(cfg)
	}
}

func BenchmarkBinaryDecode(b *testing.B) {
	cfg := generateBenchConfig(10)
	data, err := permit.EncodeBinaryConfig(cfg)
	if err != nil {
		b.Fatalf("encode: %v", err)
	}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = permit.DecodeBinaryConfig(data)
	}
}

func BenchmarkYAMLEncode(b *testing.B) {
	cfg := generateBenchConfig(10)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = cfg.ToYAML()
	}
}

func BenchmarkYAMLDecode(b *testing.B) {
	cfg := generateBenchConfig(10)
	data, err := cfg.ToYAML()
	if err != nil {
		b.Fatalf("encode: %v", err)
	}
	loader := permit.NewConfigLoader()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = loader.LoadYAML(data)
	}
}

func BenchmarkJSONEncode(b *testing.B) {
	cfg := generateBenchConfig(10)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = cfg.ToJSON()
	}
}

func BenchmarkJSONDecode(b *testing.B) {
	cfg := generateBenchConfig(10)
	data, err := cfg.ToJSON()
	if err != nil {
		b.Fatalf("encode: %v", err)
	}
	loader := permit.NewConfigLoader()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = loader.LoadJSON(data)
	}
}

// Benchmark with larger configs

func BenchmarkDSLParseLarge(b *testing.B) {
	dsl := generateBenchDSL(100)
	parser := permit.NewDSLParser()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = parser.Parse(dsl)
	}
}

func BenchmarkBinaryEncodeLarge(b *testing.B) {
	cfg := generateBenchConfig(150)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = permit.EncodeBinaryConfig(cfg)
	}
}

func BenchmarkBinaryDecodeLarge(b *testing.B) {
	cfg := generateBenchConfig(150)
	data, err := permit.EncodeBinaryConfig(cfg)
	if err != nil {
		b.Fatalf("encode: %v", err)
	}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = permit.DecodeBinaryConfig(data)
	}
}

func BenchmarkYAMLEncodeLarge(b *testing.B) {
	cfg := generateBenchConfig(150)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = yaml.Marshal(cfg)
	}
}

func BenchmarkYAMLDecodeLarge(b *testing.B) {
	cfg := generateBenchConfig(150)
	data, err := yaml.Marshal(cfg)
	if err != nil {
		b.Fatalf("encode: %v", err)
	}
	loader := permit.NewConfigLoader()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = loader.LoadYAML(data)
	}
}

// Size comparison test
func TestSizeComparison(t *testing.T) {
	cfg := generateBenchConfig(150)

	binaryData, err := permit.EncodeBinaryConfig(cfg)
	if err != nil {
		t.Fatalf("binary encode: %v", err)
	}
	yamlData, err := cfg.ToYAML()
	if err != nil {
		t.Fatalf("yaml encode: %v", err)
	}
	jsonData, err := cfg.ToJSON()
	if err != nil {
		t.Fatalf("json encode: %v", err)
	}
	dslData, err := permit.EncodeDSL(cfg)
	if err != nil {
		t.Fatalf("dsl encode: %v", err)
	}

	t.Logf("Size Comparison (150 rules):")
	t.Logf("  Binary: %d bytes (100%%)", len(binaryData))
	t.Logf("  DSL:    %d bytes (%.0f%%)", len(dslData), float64(len(dslData))/float64(len(binaryData))*100)
	t.Logf("  YAML:   %d bytes (%.0f%%)", len(yamlData), float64(len(yamlData))/float64(len(binaryData))*100)
	t.Logf("  JSON:   %d bytes (%.0f%%)", len(jsonData), float64(len(jsonData))/float64(len(binaryData))*100)
}
