package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"smartmonitor/internal/models"
	"smartmonitor/internal/strategies"
	"smartmonitor/pkg/config"
)

// AccountLister lists accounts added through the admin API.
type AccountLister interface {
	ListAccounts(ctx context.Context) ([]models.Account, error)
}

// RuleTarget receives whole rule sets. *strategies.Engine satisfies it.
type RuleTarget interface {
	Reload(rules []strategies.MonitorRule) error
}

// ReloadObserver is notified after every reload attempt.
type ReloadObserver interface {
	RulesReloaded(count int, err error)
}

// RuleReloader periodically rebuilds the rule set from the rules file and
// the stored accounts and hands it to the engine.
type RuleReloader struct {
	RulesFile        string
	Accounts         AccountLister
	AccountProfitPct float64
	Target           RuleTarget
	Observer         ReloadObserver

	cron *cron.Cron
}

// BuildRules merges file rules with one ProfitHolding rule per stored
// account that has no ProfitHolding rule in the file.
func (r *RuleReloader) BuildRules(ctx context.Context) ([]strategies.MonitorRule, error) {
	rules, err := config.LoadRules(r.RulesFile)
	if err != nil {
		return nil, err
	}
	if r.Accounts == nil {
		return rules, nil
	}

	accounts, err := r.Accounts.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	covered := make(map[string]bool, len(rules))
	for _, rule := range rules {
		if rule.Kind == strategies.RuleProfitHolding {
			covered[rule.Address] = true
		}
	}
	for _, a := range accounts {
		if covered[a.Account] {
			continue
		}
		profit := r.AccountProfitPct
		rules = append(rules, strategies.MonitorRule{
			Name:       "account:" + a.Account,
			Address:    a.Account,
			Kind:       strategies.RuleProfitHolding,
			Conditions: strategies.MonitorCondition{ProfitPercentage: &profit},
		})
		covered[a.Account] = true
	}
	return rules, nil
}

// ReloadOnce rebuilds and applies the rule set. On failure the engine
// keeps its current rules.
func (r *RuleReloader) ReloadOnce(ctx context.Context) error {
	rules, err := r.BuildRules(ctx)
	if err == nil {
		err = r.Target.Reload(rules)
	}
	if r.Observer != nil {
		r.Observer.RulesReloaded(len(rules), err)
	}
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"rules": len(rules), "file": r.RulesFile}).Debug("Rules reloaded")
	return nil
}

// Start schedules ReloadOnce on spec, for example "@every 60s" or
// "0 */5 * * * *". Overlapping runs are skipped.
func (r *RuleReloader) Start(ctx context.Context, spec string) error {
	r.cron = cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
	_, err := r.cron.AddFunc(spec, func() {
		rctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := r.ReloadOnce(rctx); err != nil {
			log.WithFields(log.Fields{"file": r.RulesFile, "error": err.Error()}).Error("Failed to reload rules")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid reload schedule %q: %w", spec, err)
	}
	r.cron.Start()
	log.WithField("schedule", spec).Info("Rule reload scheduled")
	return nil
}

// Stop halts the schedule and waits for a running reload.
func (r *RuleReloader) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
}
