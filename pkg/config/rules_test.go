package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartmonitor/internal/strategies"
)

const pumpProgram = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"

func TestParseRules(t *testing.T) {
	t.Run("monitors object", func(t *testing.T) {
		rules, err := ParseRules([]byte(`{"monitors":[
			{"name":"a","address":"` + pumpProgram + `","rule_type":"Buy","conditions":{"price_below":0.1}},
			{"address":"` + pumpProgram + `","rule_type":"profit_holding","conditions":{"profit_percentage":20}}
		]}`))
		require.NoError(t, err)
		require.Len(t, rules, 2)
		assert.Equal(t, strategies.RuleBuy, rules[0].Kind)
		assert.Equal(t, 0.1, *rules[0].Conditions.PriceBelow)
		assert.Equal(t, strategies.RuleProfitHolding, rules[1].Kind)
	})

	t.Run("bare array", func(t *testing.T) {
		rules, err := ParseRules([]byte(` [{"address":"` + pumpProgram + `","rule_type":"Sell","conditions":{"is_first_sell":true}}]`))
		require.NoError(t, err)
		require.Len(t, rules, 1)
		assert.True(t, *rules[0].Conditions.IsFirstSell)
	})

	t.Run("empty", func(t *testing.T) {
		rules, err := ParseRules([]byte("  \n"))
		require.NoError(t, err)
		assert.Empty(t, rules)
	})

	t.Run("invalid address", func(t *testing.T) {
		_, err := ParseRules([]byte(`[{"address":"nope","rule_type":"Buy"}]`))
		assert.ErrorContains(t, err, "rule 0")
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := ParseRules([]byte(`[{"address":"` + pumpProgram + `","rule_type":"Hodl"}]`))
		assert.Error(t, err)
	})
}

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strategies.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"monitors":[{"address":"`+pumpProgram+`","rule_type":"Buy"}]}`), 0644))

	rules, err := LoadRules(path)
	require.NoError(t, err)
	assert.Len(t, rules, 1)

	_, err = LoadRules(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestSampleRulesFile(t *testing.T) {
	rules, err := LoadRules(filepath.Join("..", "..", "strategies.json"))
	require.NoError(t, err)
	assert.NotEmpty(t, rules)
}
