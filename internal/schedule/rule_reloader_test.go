package schedule

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartmonitor/internal/models"
	"smartmonitor/internal/strategies"
)

const (
	fileAddr    = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"
	accountAddr = "5Q544fKrFoe6tsEbD7S8EmxGTJYAKtTVhAW5Q5pge4j1"
)

type fakeTarget struct {
	mu    sync.Mutex
	sets  [][]strategies.MonitorRule
	err   error
	calls chan struct{}
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{calls: make(chan struct{}, 16)}
}

func (f *fakeTarget) Reload(rules []strategies.MonitorRule) error {
	f.mu.Lock()
	f.sets = append(f.sets, rules)
	f.mu.Unlock()
	f.calls <- struct{}{}
	return f.err
}

type fakeAccounts struct {
	accounts []models.Account
	err      error
}

func (f fakeAccounts) ListAccounts(context.Context) ([]models.Account, error) {
	return f.accounts, f.err
}

type recordingObserver struct {
	counts []int
	errs   []error
}

func (o *recordingObserver) RulesReloaded(count int, err error) {
	o.counts = append(o.counts, count)
	o.errs = append(o.errs, err)
}

func writeRules(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "strategies.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestBuildRulesMergesAccounts(t *testing.T) {
	path := writeRules(t, `{"monitors":[{"name":"file","address":"`+fileAddr+`","rule_type":"ProfitHolding","conditions":{"profit_percentage":10}}]}`)
	r := &RuleReloader{
		RulesFile: path,
		Accounts: fakeAccounts{accounts: []models.Account{
			{Account: fileAddr},
			{Account: accountAddr},
		}},
		AccountProfitPct: 42,
	}

	rules, err := r.BuildRules(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "file", rules[0].Name)
	assert.Equal(t, accountAddr, rules[1].Address)
	assert.Equal(t, strategies.RuleProfitHolding, rules[1].Kind)
	assert.Equal(t, 42.0, *rules[1].Conditions.ProfitPercentage)
}

func TestReloadOnce(t *testing.T) {
	path := writeRules(t, `[{"address":"`+fileAddr+`","rule_type":"Buy","conditions":{"price_below":1}}]`)
	target := newFakeTarget()
	obs := &recordingObserver{}
	r := &RuleReloader{RulesFile: path, Target: target, Observer: obs}

	require.NoError(t, r.ReloadOnce(context.Background()))
	require.Len(t, target.sets, 1)
	assert.Len(t, target.sets[0], 1)
	assert.Equal(t, []int{1}, obs.counts)

	// a broken file leaves the engine alone
	require.NoError(t, os.WriteFile(path, []byte(`{"monitors": [`), 0644))
	assert.Error(t, r.ReloadOnce(context.Background()))
	assert.Len(t, target.sets, 1)
	assert.Error(t, obs.errs[1])

	r.Accounts = fakeAccounts{err: errors.New("db down")}
	require.NoError(t, os.WriteFile(path, []byte(`[]`), 0644))
	assert.ErrorContains(t, r.ReloadOnce(context.Background()), "db down")
}

func TestStartSchedulesReloads(t *testing.T) {
	path := writeRules(t, `[]`)
	target := newFakeTarget()
	r := &RuleReloader{RulesFile: path, Target: target}

	assert.Error(t, r.Start(context.Background(), "every now and then"))

	require.NoError(t, r.Start(context.Background(), "@every 1s"))
	defer r.Stop()
	select {
	case <-target.calls:
	case <-time.After(3 * time.Second):
		t.Fatal("reload never ran")
	}
}
