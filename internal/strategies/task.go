package strategies

import (
	"context"
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"smartmonitor/pkg/solana/logstream"
	"smartmonitor/pkg/solana/pumpfun"
	"smartmonitor/pkg/solana/txlookup"
)

var errStreamEnded = errors.New("log stream ended")

// evaluator holds the per-kind state of one rule task. It is only ever
// called from that task's goroutine.
type evaluator interface {
	handle(ctx context.Context, t *ruleTask, entry logstream.LogEntry) []Alert
}

type ruleTask struct {
	e      *Engine
	rule   MonitorRule
	addr   solana.PublicKey
	kind   string
	logger *log.Entry
	eval   evaluator
}

func newRuleTask(e *Engine, rule MonitorRule) *ruleTask {
	t := &ruleTask{
		e:    e,
		rule: rule,
		// Address was validated by NewRuleSet.
		addr: solana.MustPublicKeyFromBase58(rule.Address),
		kind: string(rule.Kind),
		logger: e.logger.WithFields(log.Fields{
			"rule":    rule.DisplayName(),
			"kind":    rule.Kind,
			"address": rule.Address,
		}),
	}
	switch rule.Kind {
	case RuleBuy:
		t.eval = buyEvaluator{}
	case RuleSell:
		t.eval = newSellEvaluator()
	case RuleProfitHolding:
		t.eval = &profitHoldingEvaluator{}
	}
	return t
}

// run subscribes and consumes until ctx ends, resubscribing with bounded
// exponential backoff whenever the stream fails.
func (t *ruleTask) run(ctx context.Context) {
	delay := t.e.backoffInitial
	failures := 0

	for {
		if ctx.Err() != nil {
			return
		}

		stream, err := t.e.subscriber.Subscribe(ctx, t.rule.Address)
		if err == nil {
			t.logger.Debug("Rule subscribed")
			delivered := t.consume(ctx, stream)
			err = stream.Err()
			_ = stream.Close()
			if delivered {
				delay = t.e.backoffInitial
				failures = 0
			}
			if err == nil {
				err = errStreamEnded
			}
		}
		if ctx.Err() != nil {
			return
		}

		failures++
		t.e.metrics.Resubscribed(t.kind)
		if t.e.maxAttempts > 0 && failures >= t.e.maxAttempts {
			t.logger.WithFields(log.Fields{
				"attempt": failures,
				"error":   err.Error(),
			}).Error("Giving up on log subscription")
			return
		}
		t.logger.WithFields(log.Fields{
			"attempt":  failures,
			"retry_in": delay.String(),
			"error":    err.Error(),
		}).Warn("Log subscription failed, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		delay *= 2
		if delay > t.e.backoffMax {
			delay = t.e.backoffMax
		}
	}
}

// consume reports whether at least one entry was delivered.
func (t *ruleTask) consume(ctx context.Context, s Stream) bool {
	delivered := false
	entries := s.Entries()
	for {
		select {
		case <-ctx.Done():
			return delivered
		case entry, ok := <-entries:
			if !ok {
				return delivered
			}
			delivered = true
			t.process(ctx, entry)
		}
	}
}

func (t *ruleTask) process(ctx context.Context, entry logstream.LogEntry) {
	t.e.metrics.EntryProcessed(t.kind)
	for _, a := range t.eval.handle(ctx, t, entry) {
		if ctx.Err() != nil {
			return
		}
		if err := t.e.sink.Emit(ctx, a); err != nil {
			t.logger.WithFields(log.Fields{
				"signature": a.Signature,
				"error":     err.Error(),
			}).Error("Failed to emit alert")
			continue
		}
		t.e.metrics.AlertEmitted(t.kind)
	}
}

// decode decodes the program data lines of one transaction. Lines from
// other programs usually fail on length and are logged at debug level.
func (t *ruleTask) decode(signature string, logs []string) []pumpfun.TradeEvent {
	events, errs := pumpfun.DecodeLogs(logs)
	for _, err := range errs {
		t.e.metrics.DecodeFailed(t.kind)
		entry := t.logger.WithFields(log.Fields{
			"signature": signature,
			"error":     err.Error(),
		})
		if errors.Is(err, pumpfun.ErrInvalidLength) {
			entry.Debug("Skipping program data line")
		} else {
			entry.Warn("Failed to decode program data")
		}
	}
	return events
}

// lookup fetches transaction metadata, returning nil when no lookup is
// configured or the fetch failed.
func (t *ruleTask) lookup(ctx context.Context, signature string) *txlookup.TransactionMeta {
	if t.e.lookup == nil {
		return nil
	}
	lctx, cancel := context.WithTimeout(ctx, t.e.lookupTimeout)
	defer cancel()
	meta, err := t.e.lookup.GetTransaction(lctx, signature)
	if err == nil {
		return meta
	}
	fields := t.logger.WithFields(log.Fields{
		"signature": signature,
		"error":     err.Error(),
	})
	var onChain *txlookup.OnChainError
	switch {
	case errors.As(err, &onChain):
		fields.Info("Skipping failed transaction")
	case ctx.Err() != nil:
	default:
		fields.Warn("Transaction lookup failed")
	}
	return nil
}

func (t *ruleTask) price(ctx context.Context, signature string, ev pumpfun.TradeEvent) (decimal.Decimal, bool) {
	p, err := t.e.oracle.Price(ctx, ev)
	if err != nil {
		t.logger.WithFields(log.Fields{
			"signature": signature,
			"mint":      ev.Mint.String(),
			"error":     err.Error(),
		}).Warn("Failed to price trade")
		return decimal.Zero, false
	}
	return p, true
}

// mintPrice prices mint without a trade. Oracles that only read trades
// report false.
func (t *ruleTask) mintPrice(ctx context.Context, signature string, mint solana.PublicKey) (decimal.Decimal, bool) {
	mo, ok := t.e.oracle.(MintPriceOracle)
	if !ok {
		return decimal.Zero, false
	}
	p, err := mo.MintPrice(ctx, mint)
	if err != nil {
		t.logger.WithFields(log.Fields{
			"signature": signature,
			"mint":      mint.String(),
			"error":     err.Error(),
		}).Debug("Failed to price held mint")
		return decimal.Zero, false
	}
	return p, true
}

func (t *ruleTask) alert(info TransactionInfo, reason string) Alert {
	a := Alert{
		RuleName:      t.rule.DisplayName(),
		RuleAddress:   t.rule.Address,
		RuleKind:      t.rule.Kind,
		TriggerReason: reason,
		Signature:     info.Signature,
		Price:         info.Price,
		Timestamp:     t.e.now().UTC(),
	}
	if info.Event != nil {
		ev := *info.Event
		a.Event = &ev
		a.Mint = ev.Mint.String()
	}
	return a
}
