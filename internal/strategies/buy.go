package strategies

import (
	"context"

	"smartmonitor/pkg/solana/logstream"
)

// buyEvaluator fires on buys involving the rule address priced under
// price_below.
type buyEvaluator struct{}

func (buyEvaluator) handle(ctx context.Context, t *ruleTask, entry logstream.LogEntry) []Alert {
	if t.rule.Conditions.PriceBelow == nil {
		return nil
	}
	var alerts []Alert
	for _, ev := range t.decode(entry.Signature, entry.Logs) {
		if !ev.IsBuy || !ev.Involves(t.addr) {
			continue
		}
		price, ok := t.price(ctx, entry.Signature, ev)
		if !ok {
			continue
		}
		info := TransactionInfo{
			Signature: entry.Signature,
			Price:     price,
			Logs:      entry.Logs,
			Event:     &ev,
		}
		if reason, ok := t.rule.Matches(info); ok {
			alerts = append(alerts, t.alert(info, reason))
		}
	}
	return alerts
}
