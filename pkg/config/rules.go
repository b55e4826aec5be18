package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"smartmonitor/internal/strategies"
)

type rulesFile struct {
	Monitors []strategies.MonitorRule `json:"monitors"`
}

// LoadRules reads monitor rules from a JSON file holding either
// {"monitors": [...]} or a bare array of rules. Every rule is validated.
func LoadRules(path string) ([]strategies.MonitorRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return ParseRules(data)
}

func ParseRules(data []byte) ([]strategies.MonitorRule, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	var rules []strategies.MonitorRule
	if data[0] == '[' {
		if err := json.Unmarshal(data, &rules); err != nil {
			return nil, fmt.Errorf("failed to parse rules: %w", err)
		}
	} else {
		var f rulesFile
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to parse rules: %w", err)
		}
		rules = f.Monitors
	}

	for i, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return rules, nil
}
