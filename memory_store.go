package permit

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/oarkflow/permit/utils"
)

// MemoryRuleStore keeps the rule set in process memory. Writers swap an
// immutable snapshot, so checks never block behind a SetRules call.
type MemoryRuleStore struct {
	mu       sync.Mutex
	snapshot atomic.Value // []*Rule
}

func NewMemoryRuleStore() *MemoryRuleStore {
	s := &MemoryRuleStore{}
	s.snapshot.Store([]*Rule{})
	return s
}

func (s *MemoryRuleStore) SetRules(ctx context.Context, rules []*Rule) error {
	snap := make([]*Rule, 0, len(rules))
	for _, r := range rules {
		if r == nil {
			continue
		}
		snap = append(snap, r.Clone())
	}
	s.mu.Lock()
	s.snapshot.Store(snap)
	s.mu.Unlock()
	return nil
}

func (s *MemoryRuleStore) GetRules(ctx context.Context) ([]*Rule, error) {
	snap := s.load()
	out := make([]*Rule, 0, len(snap))
	for _, r := range snap {
		out = append(out, r.Clone())
	}
	return out, nil
}

// QueryRules returns the rules whose action and resource patterns cover the
// pair, in insertion order. The returned rules share the store snapshot and
// must be treated as read-only.
func (s *MemoryRuleStore) QueryRules(ctx context.Context, action, resource string) ([]*Rule, error) {
	snap := s.load()
	out := make([]*Rule, 0, len(snap))
	for _, r := range snap {
		if utils.MatchKey(action, r.Action) && utils.MatchKey(resource, r.Resource) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemoryRuleStore) ClearRules(ctx context.Context) error {
	s.mu.Lock()
	s.snapshot.Store([]*Rule{})
	s.mu.Unlock()
	return nil
}

func (s *MemoryRuleStore) load() []*Rule {
	snap, _ := s.snapshot.Load().([]*Rule)
	return snap
}
