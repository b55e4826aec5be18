package strategies

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// RuleKind selects the evaluation logic of a MonitorRule.
type RuleKind string

const (
	RuleBuy           RuleKind = "Buy"
	RuleSell          RuleKind = "Sell"
	RuleProfitHolding RuleKind = "ProfitHolding"
)

// ParseRuleKind accepts the canonical names case-insensitively, plus
// snake case for ProfitHolding.
func ParseRuleKind(s string) (RuleKind, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", "")) {
	case "buy":
		return RuleBuy, nil
	case "sell":
		return RuleSell, nil
	case "profitholding":
		return RuleProfitHolding, nil
	}
	return "", fmt.Errorf("unknown rule type %q", s)
}

func (k *RuleKind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("rule type must be a string: %w", err)
	}
	kind, err := ParseRuleKind(s)
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// MonitorCondition holds the optional thresholds of a rule. Unset fields
// never take part in evaluation.
type MonitorCondition struct {
	PriceBelow        *float64 `json:"price_below,omitempty"`
	PriceAbove        *float64 `json:"price_above,omitempty"`
	ProfitPercentage  *float64 `json:"profit_percentage,omitempty"`
	IsFirstSell       *bool    `json:"is_first_sell,omitempty"`
	PartialSell       *bool    `json:"partial_sell,omitempty"`
	HoldingPercentage *float64 `json:"holding_percentage,omitempty"`
}

// MonitorRule is one configured watch on an address.
type MonitorRule struct {
	Name       string           `json:"name,omitempty"`
	Address    string           `json:"address"`
	Kind       RuleKind         `json:"rule_type"`
	Conditions MonitorCondition `json:"conditions"`
}

// Validate checks the address is a 32-byte base58 key and the kind is known.
func (r MonitorRule) Validate() error {
	raw, err := base58.Decode(r.Address)
	if err != nil {
		return fmt.Errorf("rule %s: invalid address %q: %w", r.DisplayName(), r.Address, err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("rule %s: address %q decodes to %d bytes, want 32", r.DisplayName(), r.Address, len(raw))
	}
	if _, err := ParseRuleKind(string(r.Kind)); err != nil {
		return fmt.Errorf("rule %s: %w", r.DisplayName(), err)
	}
	return nil
}

// DisplayName is the configured name or a kind/address label.
func (r MonitorRule) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return fmt.Sprintf("%s:%s", r.Kind, r.Address)
}

// Key identifies a rule across reloads. Changing any field yields a new key.
func (r MonitorRule) Key() string {
	cond, _ := json.Marshal(r.Conditions)
	return fmt.Sprintf("%s|%s|%s|%s", r.Kind, r.Address, r.Name, cond)
}

// RuleSet is an immutable snapshot of the configured rules.
type RuleSet struct {
	rules []MonitorRule
	keys  []string
}

// NewRuleSet validates rules and assigns each a unique key. Identical
// rules are kept as separate entries.
func NewRuleSet(rules []MonitorRule) (*RuleSet, error) {
	set := &RuleSet{
		rules: make([]MonitorRule, 0, len(rules)),
		keys:  make([]string, 0, len(rules)),
	}
	seen := make(map[string]int, len(rules))
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		key := r.Key()
		if n := seen[key]; n > 0 {
			seen[key] = n + 1
			key = fmt.Sprintf("%s#%d", key, n)
		} else {
			seen[key] = 1
		}
		set.rules = append(set.rules, r)
		set.keys = append(set.keys, key)
	}
	return set, nil
}

// Rules returns a copy of the rules in configuration order.
func (s *RuleSet) Rules() []MonitorRule {
	if s == nil {
		return nil
	}
	out := make([]MonitorRule, len(s.rules))
	copy(out, s.rules)
	return out
}

func (s *RuleSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}

func (s *RuleSet) byKey() map[string]MonitorRule {
	m := make(map[string]MonitorRule, len(s.rules))
	for i, r := range s.rules {
		m[s.keys[i]] = r
	}
	return m
}
