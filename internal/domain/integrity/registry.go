package integrity

import (
	"fmt"
	"strings"
)

// Registry is the closed table of rules, built once at startup.
type Registry struct {
	rules []Rule
	byID  map[string]Rule
}

// NewRegistry validates and freezes the rule table.
func NewRegistry(rules ...Rule) (*Registry, error) {
	reg := &Registry{byID: make(map[string]Rule, len(rules))}
	for _, r := range rules {
		if r == nil {
			return nil, fmt.Errorf("registry: nil rule")
		}
		id := strings.TrimSpace(r.Meta().ID)
		if id == "" {
			return nil, fmt.Errorf("registry: rule with empty id (%T)", r)
		}
		if _, dup := reg.byID[id]; dup {
			return nil, fmt.Errorf("registry: duplicate rule id %q", id)
		}
		reg.byID[id] = r
		reg.rules = append(reg.rules, r)
	}
	return reg, nil
}

// MustRegistry is NewRegistry for static tables; it panics on a bad table.
func MustRegistry(rules ...Rule) *Registry {
	reg, err := NewRegistry(rules...)
	if err != nil {
		panic(err)
	}
	return reg
}

// All returns the rules in registration order.
func (r *Registry) All() []Rule {
	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

// Get looks a rule up by id.
func (r *Registry) Get(id string) (Rule, bool) {
	rule, ok := r.byID[id]
	return rule, ok
}

// Len is the number of registered rules.
func (r *Registry) Len() int { return len(r.rules) }

// Infos lists rule metadata for the API and CLI.
func (r *Registry) Infos() []RuleInfo {
	out := make([]RuleInfo, 0, len(r.rules))
	for _, rule := range r.rules {
		out = append(out, RuleInfo{RuleMeta: rule.Meta(), Fixable: Fixable(rule)})
	}
	return out
}
