package stores

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/oarkflow/permit"
)

// RedisRuleStore keeps the rule set as a Redis list of JSON rules
// (key: permit:rules). The whole set is replaced atomically on write.
type RedisRuleStore struct {
	client *redis.Client
	key    string
}

func NewRedisRuleStore(client *redis.Client) *RedisRuleStore {
	return &RedisRuleStore{client: client, key: "permit:rules"}
}

func (r *RedisRuleStore) SetRules(ctx context.Context, rules []*permit.Rule) error {
	values := make([]interface{}, 0, len(rules))
	for i, rule := range rules {
		if rule == nil {
			continue
		}
		b, err := json.Marshal(rule)
		if err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
		values = append(values, string(b))
	}
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.key)
	if len(values) > 0 {
		pipe.RPush(ctx, r.key, values...)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisRuleStore) GetRules(ctx context.Context) ([]*permit.Rule, error) {
	items, err := r.client.LRange(ctx, r.key, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*permit.Rule, 0, len(items))
	for i, item := range items {
		rule := &permit.Rule{}
		if err := json.Unmarshal([]byte(item), rule); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		out = append(out, rule)
	}
	return out, nil
}

func (r *RedisRuleStore) QueryRules(ctx context.Context, action, resource string) ([]*permit.Rule, error) {
	rules, err := r.GetRules(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*permit.Rule, 0, len(rules))
	for _, rule := range rules {
		if ruleMatchesKey(rule, action, resource) {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (r *RedisRuleStore) ClearRules(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}
