package strategies

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"smartmonitor/pkg/solana/logstream"
	"smartmonitor/pkg/solana/txlookup"
)

// sellEvaluator checks sells made by the rule address.
type sellEvaluator struct {
	// sold holds mints the address has sold at least once.
	sold map[solana.PublicKey]struct{}
	// held is the token amount bought per mint as observed by this task.
	held map[solana.PublicKey]uint64
}

func newSellEvaluator() *sellEvaluator {
	return &sellEvaluator{
		sold: make(map[solana.PublicKey]struct{}),
		held: make(map[solana.PublicKey]uint64),
	}
}

func (s *sellEvaluator) handle(ctx context.Context, t *ruleTask, entry logstream.LogEntry) []Alert {
	var (
		alerts  []Alert
		meta    *txlookup.TransactionMeta
		fetched bool
	)
	for _, ev := range t.decode(entry.Signature, entry.Logs) {
		if !ev.User.Equals(t.addr) {
			continue
		}
		if ev.IsBuy {
			s.held[ev.Mint] += ev.TokenAmount
			continue
		}

		_, seen := s.sold[ev.Mint]
		s.sold[ev.Mint] = struct{}{}

		if !fetched && t.rule.Conditions.PartialSell != nil {
			meta = t.lookup(ctx, entry.Signature)
			fetched = true
		}
		partial := s.remaining(t, meta, ev.Mint, ev.TokenAmount)

		var price decimal.Decimal
		if p, ok := t.price(ctx, entry.Signature, ev); ok {
			price = p
		} else if t.rule.Conditions.PriceAbove != nil {
			continue
		}

		info := TransactionInfo{
			Signature:   entry.Signature,
			Price:       price,
			Logs:        entry.Logs,
			Event:       &ev,
			FirstSell:   !seen,
			PartialSell: partial,
		}
		if reason, ok := t.rule.Matches(info); ok {
			alerts = append(alerts, t.alert(info, reason))
		}
	}
	return alerts
}

// remaining updates the tracked amount for mint and reports whether the
// seller still holds some of it. The post-transaction token balance wins
// over the tracked amount. nil means unknown.
func (s *sellEvaluator) remaining(t *ruleTask, meta *txlookup.TransactionMeta, mint solana.PublicKey, sold uint64) *bool {
	var result *bool

	if held, ok := s.held[mint]; ok {
		if sold >= held {
			delete(s.held, mint)
			result = boolPtr(false)
		} else {
			s.held[mint] = held - sold
			result = boolPtr(true)
		}
	}

	if meta != nil {
		// An emptied token account is closed and drops out of the balances.
		b, ok := meta.PostBalance(t.rule.Address, mint.String())
		result = boolPtr(ok && b.Amount > 0)
		if ok && b.Amount > 0 {
			s.held[mint] = b.Amount
		} else {
			delete(s.held, mint)
		}
	}
	return result
}

func boolPtr(v bool) *bool { return &v }
