package stores

import (
	"encoding/json"
	"time"

	"github.com/oarkflow/date"

	"github.com/oarkflow/permit"
	"github.com/oarkflow/permit/utils"
)

func parseFlexibleTime(s string) (time.Time, error) {
	return date.Parse(s)
}

// scanTime converts whatever representation the driver produced for a
// timestamp column. Zero time on anything unrecognized.
func scanTime(raw interface{}) time.Time {
	switch v := raw.(type) {
	case time.Time:
		return v
	case string:
		if t, err := parseFlexibleTime(v); err == nil {
			return t
		}
	case []byte:
		if t, err := parseFlexibleTime(string(v)); err == nil {
			return t
		}
	}
	return time.Time{}
}

// ruleMatchesKey reports whether the stored rule applies to the action and
// resource being checked. Stored names may carry '*' wildcards.
func ruleMatchesKey(r *permit.Rule, action, resource string) bool {
	if r == nil {
		return false
	}
	return utils.MatchKey(action, r.Action) && utils.MatchKey(resource, r.Resource)
}

func encodeConditionJSON(c *permit.Condition) (string, error) {
	if c.Empty() {
		return "", nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeConditionJSON(s string) (*permit.Condition, error) {
	if s == "" {
		return nil, nil
	}
	cond := &permit.Condition{}
	if err := json.Unmarshal([]byte(s), cond); err != nil {
		return nil, err
	}
	return cond, nil
}
