package strategies

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"smartmonitor/pkg/solana/logstream"
	"smartmonitor/pkg/solana/pumpfun"
)

// HoldingState is the open position of a ProfitHolding rule.
type HoldingState struct {
	Mint      solana.PublicKey
	BuyPrice  decimal.Decimal
	Amount    uint64
	Remaining uint64
	Timestamp time.Time
	Signature string
}

// heldPercentage is Remaining as a percentage of Amount.
func (h *HoldingState) heldPercentage() decimal.Decimal {
	if h.Amount == 0 {
		return decimal.Zero
	}
	return decimal.NewFromUint64(h.Remaining).
		Div(decimal.NewFromUint64(h.Amount)).
		Mul(decimal.NewFromInt(100))
}

// profitPercentage of price relative to the buy price.
func (h *HoldingState) profitPercentage(price decimal.Decimal) decimal.Decimal {
	return price.Sub(h.BuyPrice).Div(h.BuyPrice).Mul(decimal.NewFromInt(100))
}

// profitHoldingEvaluator tracks at most one open position. A newer buy
// replaces the current one.
type profitHoldingEvaluator struct {
	holding *HoldingState
}

func (p *profitHoldingEvaluator) handle(ctx context.Context, t *ruleTask, entry logstream.LogEntry) []Alert {
	buyMarker := pumpfun.HasBuyInstruction(entry.Logs)
	if !buyMarker && p.holding == nil {
		return nil
	}

	events := t.decode(entry.Signature, entry.Logs)
	if buyMarker && len(events) == 0 && !hasProgramData(entry.Logs) {
		if meta := t.lookup(ctx, entry.Signature); meta != nil {
			events = t.decode(entry.Signature, meta.LogMessages)
		}
	}

	var alerts []Alert
	for _, ev := range events {
		if buyMarker && ev.IsBuy && ev.User.Equals(t.addr) {
			p.open(ctx, t, entry.Signature, ev)
			continue
		}

		h := p.holding
		if h == nil || !ev.Mint.Equals(h.Mint) {
			continue
		}
		soldOut := false
		if !ev.IsBuy && ev.User.Equals(t.addr) {
			if ev.TokenAmount >= h.Remaining {
				h.Remaining = 0
				soldOut = true
			} else {
				h.Remaining -= ev.TokenAmount
			}
		}

		if price, ok := t.price(ctx, entry.Signature, ev); ok {
			if a, ok := p.check(t, entry, price, &ev); ok {
				alerts = append(alerts, a)
				p.holding = nil
				continue
			}
		}
		if soldOut {
			t.logger.WithFields(log.Fields{
				"mint":      h.Mint.String(),
				"signature": entry.Signature,
			}).Info("Position sold out, stop tracking")
			p.holding = nil
		}
	}

	// Address scoped streams mostly carry the wallet's own activity, so
	// entries that do not trade the held mint revalue it directly.
	if h := p.holding; h != nil && !tradesMint(events, h.Mint) {
		if price, ok := t.mintPrice(ctx, entry.Signature, h.Mint); ok {
			if a, ok := p.check(t, entry, price, nil); ok {
				alerts = append(alerts, a)
				p.holding = nil
			}
		}
	}
	return alerts
}

// check evaluates the open position at price. HoldingPercentage is measured
// after any sell in the same event, so a full exit holds 0%.
func (p *profitHoldingEvaluator) check(t *ruleTask, entry logstream.LogEntry, price decimal.Decimal, ev *pumpfun.TradeEvent) (Alert, bool) {
	h := p.holding
	held := h.heldPercentage()
	info := TransactionInfo{
		Signature:               entry.Signature,
		Price:                   price,
		CurrentProfitPercentage: h.profitPercentage(price),
		HoldingPercentage:       &held,
		Logs:                    entry.Logs,
		Event:                   ev,
	}
	reason, ok := t.rule.Matches(info)
	if !ok {
		return Alert{}, false
	}
	a := t.alert(info, reason)
	a.Mint = h.Mint.String()
	profit := info.CurrentProfitPercentage
	a.ProfitPercentage = &profit
	return a, true
}

func tradesMint(events []pumpfun.TradeEvent, mint solana.PublicKey) bool {
	for _, ev := range events {
		if ev.Mint.Equals(mint) {
			return true
		}
	}
	return false
}

func (p *profitHoldingEvaluator) open(ctx context.Context, t *ruleTask, signature string, ev pumpfun.TradeEvent) {
	if ev.TokenAmount == 0 {
		return
	}
	price, ok := t.price(ctx, signature, ev)
	if !ok || !price.IsPositive() {
		return
	}

	superseded := p.holding != nil
	p.holding = &HoldingState{
		Mint:      ev.Mint,
		BuyPrice:  price,
		Amount:    ev.TokenAmount,
		Remaining: ev.TokenAmount,
		Timestamp: time.Unix(ev.Timestamp, 0).UTC(),
		Signature: signature,
	}
	t.logger.WithFields(log.Fields{
		"mint":       ev.Mint.String(),
		"signature":  signature,
		"buy_price":  price.String(),
		"amount":     ev.TokenAmount,
		"superseded": superseded,
	}).Info("Tracking new buy")

	t.e.trackMint(t.logger, ev.Mint.String(), t.rule.Address, t.rule.DisplayName())
}

func hasProgramData(logs []string) bool {
	for _, line := range logs {
		if pumpfun.IsProgramDataLine(line) {
			return true
		}
	}
	return false
}
