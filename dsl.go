package permit

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DSL Syntax:
// version <n>
// engine <key>=<value>...
// rule <effect> <action> <resource> [<condition-json>]
//
// Blank lines and lines starting with '#' are ignored. The condition, when
// present, is the JSON wire form and runs to the end of the line.

type DSLParser struct {
	line int
}

func NewDSLParser() *DSLParser {
	return &DSLParser{}
}

type DSLEncoder struct {
	buf []byte
}

func NewDSLEncoder() *DSLEncoder {
	return &DSLEncoder{buf: make([]byte, 0, 4096)}
}

func (e *DSLEncoder) Encode(cfg *Config) ([]byte, error) {
	e.buf = e.buf[:0]
	var tmp [20]byte

	e.buf = append(e.buf, "version "...)
	e.buf = append(e.buf, strconv.AppendInt(tmp[:0], int64(cfg.Version), 10)...)
	e.buf = append(e.buf, '\n')

	if cfg.Engine != (EngineConfig{}) {
		e.buf = append(e.buf, "engine"...)
		if cfg.Engine.RuleLimit > 0 {
			e.buf = append(e.buf, " rule_limit="...)
			e.buf = append(e.buf, strconv.AppendInt(tmp[:0], int64(cfg.Engine.RuleLimit), 10)...)
		}
		if cfg.Engine.SubstitutionCache {
			e.buf = append(e.buf, " substitution_cache=true"...)
		}
		if cfg.Engine.ResultCache {
			e.buf = append(e.buf, " result_cache=true"...)
		}
		if cfg.Engine.RistrettoNumCounters > 0 {
			e.buf = append(e.buf, " ristretto_num_counters="...)
			e.buf = append(e.buf, strconv.AppendInt(tmp[:0], cfg.Engine.RistrettoNumCounters, 10)...)
		}
		if cfg.Engine.RistrettoMaxCost > 0 {
			e.buf = append(e.buf, " ristretto_max_cost="...)
			e.buf = append(e.buf, strconv.AppendInt(tmp[:0], cfg.Engine.RistrettoMaxCost, 10)...)
		}
		if cfg.Engine.RistrettoBufferItems > 0 {
			e.buf = append(e.buf, " ristretto_buffer_items="...)
			e.buf = append(e.buf, strconv.AppendInt(tmp[:0], cfg.Engine.RistrettoBufferItems, 10)...)
		}
		e.buf = append(e.buf, '\n')
	}

	for i, r := range cfg.Rules {
		e.buf = append(e.buf, "rule "...)
		e.buf = append(e.buf, r.Effect...)
		e.buf = append(e.buf, ' ')
		e.buf = append(e.buf, r.Action...)
		e.buf = append(e.buf, ' ')
		e.buf = append(e.buf, r.Resource...)
		if !r.Condition.Empty() {
			cond, err := json.Marshal(r.Condition)
			if err != nil {
				return nil, fmt.Errorf("rule %d: encode condition: %w", i, err)
			}
			e.buf = append(e.buf, ' ')
			e.buf = append(e.buf, cond...)
		}
		e.buf = append(e.buf, '\n')
	}

	out := make([]byte, len(e.buf))
	copy(out, e.buf)
	return out, nil
}

func (p *DSLParser) Parse(text string) (*Config, error) {
	cfg := &Config{}
	p.line = 0
	for _, raw := range strings.Split(text, "\n") {
		p.line++
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		keyword, rest, _ := strings.Cut(line, " ")
		var err error
		switch keyword {
		case "version":
			err = p.parseVersion(rest, cfg)
		case "engine":
			err = p.parseEngine(rest, cfg)
		case "rule":
			err = p.parseRule(rest, cfg)
		default:
			err = fmt.Errorf("unknown keyword %q", keyword)
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", p.line, err)
		}
	}
	return cfg, nil
}

func (p *DSLParser) parseVersion(rest string, cfg *Config) error {
	n, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil {
		return fmt.Errorf("version: %w", err)
	}
	cfg.Version = n
	return nil
}

func (p *DSLParser) parseEngine(rest string, cfg *Config) error {
	for _, pair := range strings.Fields(rest) {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("engine: expected key=value, got %q", pair)
		}
		switch key {
		case "rule_limit":
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("engine %s: %w", key, err)
			}
			cfg.Engine.RuleLimit = n
		case "substitution_cache":
			cfg.Engine.SubstitutionCache = value == "true"
		case "result_cache":
			cfg.Engine.ResultCache = value == "true"
		case "ristretto_num_counters":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("engine %s: %w", key, err)
			}
			cfg.Engine.RistrettoNumCounters = n
		case "ristretto_max_cost":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("engine %s: %w", key, err)
			}
			cfg.Engine.RistrettoMaxCost = n
		case "ristretto_buffer_items":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("engine %s: %w", key, err)
			}
			cfg.Engine.RistrettoBufferItems = n
		default:
			return fmt.Errorf("engine: unknown key %q", key)
		}
	}
	return nil
}

func (p *DSLParser) parseRule(rest string, cfg *Config) error {
	parts := strings.SplitN(rest, " ", 4)
	if len(parts) < 3 {
		return fmt.Errorf("rule: expected <effect> <action> <resource> [condition], got %q", rest)
	}
	rule := &Rule{
		Effect:   Effect(parts[0]),
		Action:   parts[1],
		Resource: parts[2],
	}
	if len(parts) == 4 {
		condJSON := strings.TrimSpace(parts[3])
		if condJSON != "" {
			cond := &Condition{}
			if err := json.Unmarshal([]byte(condJSON), cond); err != nil {
				return fmt.Errorf("rule condition: %w", err)
			}
			rule.Condition = cond
		}
	}
	if err := rule.Validate(); err != nil {
		return err
	}
	cfg.Rules = append(cfg.Rules, rule)
	return nil
}

// EncodeDSL renders cfg in the line DSL.
func EncodeDSL(cfg *Config) (string, error) {
	out, err := NewDSLEncoder().Encode(cfg)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// ParseDSL parses the line DSL into a Config.
func ParseDSL(text string) (*Config, error) {
	return NewDSLParser().Parse(text)
}
