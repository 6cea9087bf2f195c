package stores

import (
	"context"
	"fmt"
	"time"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/permit"
)

// SQLRuleStore persists the rule set in SQL (squealx)
type SQLRuleStore struct {
	db *squealx.DB
}

func NewSQLRuleStore(db *squealx.DB) *SQLRuleStore {
	return &SQLRuleStore{db: db}
}

// SetRules replaces the stored rule set. Rows are inserted in the order
// given, so GetRules returns rules in that order.
func (s *SQLRuleStore) SetRules(ctx context.Context, rules []*permit.Rule) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM permit_rules`); err != nil {
		return fmt.Errorf("clear rules: %w", err)
	}
	q := `INSERT INTO permit_rules(action, resource, effect, condition_json) VALUES(:action, :resource, :effect, :condition_json)`
	for i, r := range rules {
		if r == nil {
			continue
		}
		cond, err := encodeConditionJSON(r.Condition)
		if err != nil {
			return fmt.Errorf("rule %d: encode condition: %w", i, err)
		}
		if _, err := s.db.NamedExecContext(ctx, q, map[string]any{
			"action":         r.Action,
			"resource":       r.Resource,
			"effect":         string(r.Effect),
			"condition_json": cond,
		}); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return nil
}

func (s *SQLRuleStore) GetRules(ctx context.Context) ([]*permit.Rule, error) {
	return s.selectRules(ctx)
}

// QueryRules loads the rule set and filters it in Go. Stored action and
// resource names may carry '*' wildcards, which SQL equality cannot express.
func (s *SQLRuleStore) QueryRules(ctx context.Context, action, resource string) ([]*permit.Rule, error) {
	rules, err := s.selectRules(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*permit.Rule, 0, len(rules))
	for _, r := range rules {
		if ruleMatchesKey(r, action, resource) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *SQLRuleStore) ClearRules(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM permit_rules`)
	return err
}

func (s *SQLRuleStore) selectRules(ctx context.Context) ([]*permit.Rule, error) {
	q := `SELECT action, resource, effect, condition_json FROM permit_rules ORDER BY position ASC`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*permit.Rule, 0)
	for r.Next() {
		var action, resource, effect, condJSON string
		if err := r.Scan(&action, &resource, &effect, &condJSON); err != nil {
			return nil, err
		}
		cond, err := decodeConditionJSON(condJSON)
		if err != nil {
			return nil, fmt.Errorf("rule %s:%s: decode condition: %w", action, resource, err)
		}
		out = append(out, &permit.Rule{
			Action:    action,
			Resource:  resource,
			Effect:    permit.Effect(effect),
			Condition: cond,
		})
	}
	return out, nil
}

// RuleRecord is a stored rule together with its row metadata.
type RuleRecord struct {
	Position  int64
	Rule      *permit.Rule
	CreatedAt time.Time
}

// ListRuleRecords returns stored rules with position greater than after,
// oldest first. Pass 0 to list everything; feed the last position back in to
// page through large sets.
func (s *SQLRuleStore) ListRuleRecords(ctx context.Context, after int64, limit int) ([]RuleRecord, error) {
	q := `SELECT position, action, resource, effect, condition_json, created_at FROM permit_rules WHERE position > :after ORDER BY position ASC`
	params := map[string]any{"after": after}
	if limit > 0 {
		q += " LIMIT :limit"
		params["limit"] = limit
	}
	r, err := s.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]RuleRecord, 0)
	for r.Next() {
		var position int64
		var action, resource, effect, condJSON string
		var createdRaw interface{}
		if err := r.Scan(&position, &action, &resource, &effect, &condJSON, &createdRaw); err != nil {
			return nil, err
		}
		cond, err := decodeConditionJSON(condJSON)
		if err != nil {
			return nil, fmt.Errorf("rule %s:%s: decode condition: %w", action, resource, err)
		}
		out = append(out, RuleRecord{
			Position: position,
			Rule: &permit.Rule{
				Action:    action,
				Resource:  resource,
				Effect:    permit.Effect(effect),
				Condition: cond,
			},
			CreatedAt: scanTime(createdRaw),
		})
	}
	return out, nil
}
