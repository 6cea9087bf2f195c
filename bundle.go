package permit

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// ============================================================================
// SIGNED RULE BUNDLES
// ============================================================================

// RuleBundle is a rule snapshot with provenance, for handing whole rule sets
// between processes. The signature covers the checksum, which in turn covers
// the canonical JSON encoding of the rules.
type RuleBundle struct {
	Version   int       `json:"version"`
	IssuedAt  time.Time `json:"issued_at"`
	Rules     []*Rule   `json:"rules"`
	Checksum  string    `json:"checksum"`
	Signature string    `json:"signature"`
	PublicKey string    `json:"public_key,omitempty"`
}

// RulesChecksum returns a deterministic sha256 hex digest of the rule set.
// Condition encoding sorts object keys, so equal rule sets hash equally.
func RulesChecksum(rules []*Rule) (string, error) {
	data, err := json.Marshal(rules)
	if err != nil {
		return "", fmt.Errorf("encode rules: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// SignRules builds a signed bundle over the given rule snapshot.
func SignRules(priv ed25519.PrivateKey, rules []*Rule, version int) (*RuleBundle, error) {
	sum, err := RulesChecksum(rules)
	if err != nil {
		return nil, err
	}
	sig := ed25519.Sign(priv, []byte(sum))
	pub, _ := priv.Public().(ed25519.PublicKey)
	return &RuleBundle{
		Version:   version,
		IssuedAt:  time.Now().UTC(),
		Rules:     rules,
		Checksum:  sum,
		Signature: base64.StdEncoding.EncodeToString(sig),
		PublicKey: base64.StdEncoding.EncodeToString(pub),
	}, nil
}

// Verify checks the bundle's checksum against its rules and its signature
// against pub.
func (b *RuleBundle) Verify(pub ed25519.PublicKey) error {
	sum, err := RulesChecksum(b.Rules)
	if err != nil {
		return err
	}
	if sum != b.Checksum {
		return fmt.Errorf("bundle checksum mismatch")
	}
	sig, err := base64.StdEncoding.DecodeString(b.Signature)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	if !ed25519.Verify(pub, []byte(sum), sig) {
		return fmt.Errorf("bundle signature invalid")
	}
	return nil
}
