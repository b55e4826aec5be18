package strategies

import (
	"fmt"

	"github.com/shopspring/decimal"

	"smartmonitor/pkg/solana/pumpfun"
)

// TransactionInfo is the view of one observed trade that rule conditions
// are checked against.
type TransactionInfo struct {
	Signature               string
	Price                   decimal.Decimal
	CurrentProfitPercentage decimal.Decimal
	// HoldingPercentage is the share of the tracked position still held.
	HoldingPercentage *decimal.Decimal
	Logs              []string
	Event             *pumpfun.TradeEvent
	FirstSell         bool
	// PartialSell is nil when the remaining balance could not be determined.
	PartialSell *bool
}

// Matches reports whether info satisfies the rule's conditions and, if so,
// a human readable reason.
func (r MonitorRule) Matches(info TransactionInfo) (string, bool) {
	c := r.Conditions
	switch r.Kind {
	case RuleBuy:
		if c.PriceBelow == nil {
			return "", false
		}
		limit := decimal.NewFromFloat(*c.PriceBelow)
		if !info.Price.LessThan(limit) {
			return "", false
		}
		return fmt.Sprintf("buy price %s below %s", info.Price.String(), limit.String()), true

	case RuleSell:
		return matchSell(c, info)

	case RuleProfitHolding:
		if c.ProfitPercentage == nil {
			return "", false
		}
		limit := decimal.NewFromFloat(*c.ProfitPercentage)
		if !info.CurrentProfitPercentage.GreaterThan(limit) {
			return "", false
		}
		reason := fmt.Sprintf("profit %s%% above %s%%", info.CurrentProfitPercentage.StringFixed(2), limit.String())
		if c.HoldingPercentage != nil {
			hold := decimal.NewFromFloat(*c.HoldingPercentage)
			if info.HoldingPercentage == nil || info.HoldingPercentage.LessThan(hold) {
				return "", false
			}
			reason += fmt.Sprintf(", holding %s%%", info.HoldingPercentage.StringFixed(2))
		}
		return reason, true
	}
	return "", false
}

func matchSell(c MonitorCondition, info TransactionInfo) (string, bool) {
	if c.IsFirstSell == nil && c.PartialSell == nil {
		return "", false
	}
	var reason string
	if c.IsFirstSell != nil {
		if *c.IsFirstSell != info.FirstSell {
			return "", false
		}
		reason = fmt.Sprintf("first_sell=%t", info.FirstSell)
	}
	if c.PartialSell != nil {
		if info.PartialSell == nil || *c.PartialSell != *info.PartialSell {
			return "", false
		}
		if reason != "" {
			reason += " "
		}
		reason += fmt.Sprintf("partial_sell=%t", *info.PartialSell)
	}
	if c.PriceAbove != nil {
		limit := decimal.NewFromFloat(*c.PriceAbove)
		if !info.Price.GreaterThan(limit) {
			return "", false
		}
		reason += fmt.Sprintf(" price %s above %s", info.Price.String(), limit.String())
	}
	return "sell " + reason, true
}
