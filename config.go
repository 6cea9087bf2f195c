package permit

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk shape of an engine's rule set plus tuning knobs
type Config struct {
	Version int          `json:"version" yaml:"version"`
	Engine  EngineConfig `json:"engine" yaml:"engine"`
	Rules   []*Rule      `json:"rules" yaml:"rules"`
}

// EngineConfig carries evaluation knobs. Zero values leave the engine's
// defaults untouched.
type EngineConfig struct {
	RuleLimit            int   `json:"rule_limit" yaml:"rule_limit"`
	SubstitutionCache    bool  `json:"substitution_cache" yaml:"substitution_cache"`
	ResultCache          bool  `json:"result_cache" yaml:"result_cache"`
	RistrettoNumCounters int64 `json:"ristretto_num_counters" yaml:"ristretto_num_counters"`
	RistrettoMaxCost     int64 `json:"ristretto_max_cost" yaml:"ristretto_max_cost"`
	RistrettoBufferItems int64 `json:"ristretto_buffer_items" yaml:"ristretto_buffer_items"`
}

func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	for i, r := range c.Rules {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return nil
}

// ToYAML exports config to YAML
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// ToJSON exports config to JSON
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// ConfigLoader loads configuration from various formats
type ConfigLoader struct{}

func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{}
}

func (l *ConfigLoader) LoadYAML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse yaml config: %w", err)
	}
	return cfg, nil
}

func (l *ConfigLoader) LoadJSON(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse json config: %w", err)
	}
	return cfg, nil
}

// LoadBinary loads from the binary snapshot format
func (l *ConfigLoader) LoadBinary(data []byte) (*Config, error) {
	return DecodeBinaryConfig(data)
}

// LoadFile reads a config file, dispatching on its extension: .yaml/.yml,
// .json, .bin or .rules (the line DSL).
func (l *ConfigLoader) LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return l.LoadYAML(data)
	case ".json":
		return l.LoadJSON(data)
	case ".bin":
		return l.LoadBinary(data)
	case ".rules":
		return ParseDSL(string(data))
	}
	return nil, fmt.Errorf("unsupported config extension %q", filepath.Ext(path))
}

// SaveFile writes cfg in the format matching the path's extension.
func (l *ConfigLoader) SaveFile(path string, cfg *Config) error {
	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = cfg.ToYAML()
	case ".json":
		data, err = cfg.ToJSON()
	case ".bin":
		data, err = EncodeBinaryConfig(cfg)
	case ".rules":
		var text string
		text, err = EncodeDSL(cfg)
		data = []byte(text)
	default:
		return fmt.Errorf("unsupported config extension %q", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// ApplyConfig applies configuration to the engine: knobs first, then the
// rule set, replaced wholesale.
func (e *Engine) ApplyConfig(ctx context.Context, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Engine.RuleLimit > 0 {
		e.SetRuleLimit(cfg.Engine.RuleLimit)
	}
	if cfg.Engine.SubstitutionCache && e.subCache == nil {
		e.SetSubstitutionCache(NewMapCache())
	}
	if cfg.Engine.ResultCache && e.resultCache == nil {
		rc, err := NewRistrettoCache(RistrettoConfig{
			NumCounters: cfg.Engine.RistrettoNumCounters,
			MaxCost:     cfg.Engine.RistrettoMaxCost,
			BufferItems: cfg.Engine.RistrettoBufferItems,
		})
		if err != nil {
			return fmt.Errorf("result cache: %w", err)
		}
		e.SetResultCache(rc)
	}
	return e.SetRules(ctx, cfg.Rules)
}

// ============================================================================
// BINARY SNAPSHOT CODEC
// ============================================================================
//
// Layout: 4-byte magic, uint16 format version, uint32 config version, then
// tagged sections, each a tag byte plus uint32 payload length. Integers are
// little-endian; strings are uint32 length-prefixed UTF-8. Conditions travel
// as their JSON wire form inside the rules section.

var binaryMagic = []byte("PMC1")

const (
	binaryFormatVersion uint16 = 1

	sectionEngine byte = 0x01
	sectionRules  byte = 0x02

	engineFlagSubstitutionCache byte = 1 << 0
	engineFlagResultCache       byte = 1 << 1
)

// EncodeBinaryConfig encodes config to the binary snapshot format
func EncodeBinaryConfig(cfg *Config) ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.Write(binaryMagic)
	writeUint16(buf, binaryFormatVersion)
	writeUint32(buf, uint32(cfg.Version))

	engine := &bytes.Buffer{}
	writeUint32(engine, uint32(cfg.Engine.RuleLimit))
	var flags byte
	if cfg.Engine.SubstitutionCache {
		flags |= engineFlagSubstitutionCache
	}
	if cfg.Engine.ResultCache {
		flags |= engineFlagResultCache
	}
	engine.WriteByte(flags)
	writeUint64(engine, uint64(cfg.Engine.RistrettoNumCounters))
	writeUint64(engine, uint64(cfg.Engine.RistrettoMaxCost))
	writeUint64(engine, uint64(cfg.Engine.RistrettoBufferItems))
	writeSection(buf, sectionEngine, engine.Bytes())

	rules := &bytes.Buffer{}
	writeUint32(rules, uint32(len(cfg.Rules)))
	for i, r := range cfg.Rules {
		writeString(rules, r.Resource)
		writeString(rules, r.Action)
		writeString(rules, string(r.Effect))
		cond := ""
		if !r.Condition.Empty() {
			b, err := json.Marshal(r.Condition)
			if err != nil {
				return nil, fmt.Errorf("encode rule %d condition: %w", i, err)
			}
			cond = string(b)
		}
		writeString(rules, cond)
	}
	writeSection(buf, sectionRules, rules.Bytes())

	return buf.Bytes(), nil
}

// DecodeBinaryConfig parses a binary snapshot produced by EncodeBinaryConfig.
// Unknown sections are skipped so older readers tolerate newer snapshots.
func DecodeBinaryConfig(data []byte) (*Config, error) {
	r := bytes.NewReader(data)
	magic := make([]byte, len(binaryMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if !bytes.Equal(magic, binaryMagic) {
		return nil, fmt.Errorf("bad magic %q", magic)
	}
	format, err := readUint16(r)
	if err != nil {
		return nil, fmt.Errorf("read format version: %w", err)
	}
	if format != binaryFormatVersion {
		return nil, fmt.Errorf("unsupported format version %d", format)
	}
	version, err := readUint32(r)
	if err != nil {
		return nil, fmt.Errorf("read config version: %w", err)
	}
	cfg := &Config{Version: int(version)}
	for {
		tag, err := r.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read section tag: %w", err)
		}
		length, err := readUint32(r)
		if err != nil {
			return nil, fmt.Errorf("read section length: %w", err)
		}
		if int(length) > r.Len() {
			return nil, fmt.Errorf("section %#x length %d exceeds remaining %d bytes", tag, length, r.Len())
		}
		payload := make([]byte, length)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("read section %#x: %w", tag, err)
		}
		switch tag {
		case sectionEngine:
			if err := decodeEngineSection(payload, &cfg.Engine); err != nil {
				return nil, err
			}
		case sectionRules:
			rules, err := decodeRulesSection(payload)
			if err != nil {
				return nil, err
			}
			cfg.Rules = rules
		}
	}
	return cfg, nil
}

func decodeEngineSection(payload []byte, ec *EngineConfig) error {
	r := bytes.NewReader(payload)
	limit, err := readUint32(r)
	if err != nil {
		return fmt.Errorf("engine section: %w", err)
	}
	flags, err := r.ReadByte()
	if err != nil {
		return fmt.Errorf("engine section: %w", err)
	}
	counters, err := readUint64(r)
	if err != nil {
		return fmt.Errorf("engine section: %w", err)
	}
	cost, err := readUint64(r)
	if err != nil {
		return fmt.Errorf("engine section: %w", err)
	}
	items, err := readUint64(r)
	if err != nil {
		return fmt.Errorf("engine section: %w", err)
	}
	ec.RuleLimit = int(limit)
	ec.SubstitutionCache = flags&engineFlagSubstitutionCache != 0
	ec.ResultCache = flags&engineFlagResultCache != 0
	ec.RistrettoNumCounters = int64(counters)
	ec.RistrettoMaxCost = int64(cost)
	ec.RistrettoBufferItems = int64(items)
	return nil
}

func decodeRulesSection(payload []byte) ([]*Rule, error) {
	r := bytes.NewReader(payload)
	count, err := readUint32(r)
	if err != nil {
		return nil, fmt.Errorf("rules section: %w", err)
	}
	rules := make([]*Rule, 0, count)
	for i := uint32(0); i < count; i++ {
		resource, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("rule %d resource: %w", i, err)
		}
		action, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("rule %d action: %w", i, err)
		}
		effect, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("rule %d effect: %w", i, err)
		}
		condJSON, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("rule %d condition: %w", i, err)
		}
		rule := &Rule{Resource: resource, Action: action, Effect: Effect(effect)}
		if condJSON != "" {
			cond := &Condition{}
			if err := json.Unmarshal([]byte(condJSON), cond); err != nil {
				return nil, fmt.Errorf("rule %d condition: %w", i, err)
			}
			rule.Condition = cond
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func writeSection(buf *bytes.Buffer, tag byte, payload []byte) {
	buf.WriteByte(tag)
	writeUint32(buf, uint32(len(payload)))
	buf.Write(payload)
}

func writeString(buf *bytes.Buffer, s string) {
	writeUint32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	if int(n) > r.Len() {
		return "", fmt.Errorf("string length %d exceeds remaining %d bytes", n, r.Len())
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func readUint16(r *bytes.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}
