package strategies

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"smartmonitor/pkg/solana/pumpfun"
)

// Alert is emitted once per satisfied rule condition.
type Alert struct {
	RuleName         string              `json:"rule_name"`
	RuleAddress      string              `json:"rule_address"`
	RuleKind         RuleKind            `json:"rule_kind"`
	TriggerReason    string              `json:"trigger_reason"`
	Signature        string              `json:"signature"`
	Mint             string              `json:"mint,omitempty"`
	Event            *pumpfun.TradeEvent `json:"event_snapshot,omitempty"`
	Price            decimal.Decimal     `json:"price"`
	ProfitPercentage *decimal.Decimal    `json:"profit_percentage,omitempty"`
	Timestamp        time.Time           `json:"timestamp"`
}

// AlertSink receives alerts from rule tasks. Emit may be called from many
// goroutines at once.
type AlertSink interface {
	Emit(ctx context.Context, alert Alert) error
}

// ChannelSink forwards alerts to a channel, blocking until it is read or
// ctx ends.
type ChannelSink chan Alert

func (s ChannelSink) Emit(ctx context.Context, alert Alert) error {
	select {
	case s <- alert:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogSink writes alerts to a logrus logger.
type LogSink struct {
	Logger *log.Logger
}

func (s LogSink) Emit(_ context.Context, a Alert) error {
	logger := s.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	fields := log.Fields{
		"rule":      a.RuleName,
		"rule_kind": a.RuleKind,
		"address":   a.RuleAddress,
		"signature": a.Signature,
		"price":     a.Price.String(),
		"reason":    a.TriggerReason,
	}
	if a.Event != nil {
		fields["mint"] = a.Event.Mint.String()
	}
	if a.ProfitPercentage != nil {
		fields["profit_percentage"] = a.ProfitPercentage.StringFixed(2)
	}
	logger.WithFields(fields).Warn("Rule triggered")
	return nil
}

// Publisher publishes a JSON message to a named queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, message interface{}) error
}

// QueueSink publishes alerts to a message queue.
type QueueSink struct {
	Publisher Publisher
	Queue     string
}

func (s QueueSink) Emit(ctx context.Context, a Alert) error {
	if err := s.Publisher.Publish(ctx, s.Queue, a); err != nil {
		return fmt.Errorf("publish alert to %s: %w", s.Queue, err)
	}
	return nil
}

// MultiSink fans an alert out to every sink and joins their errors.
type MultiSink []AlertSink

func (m MultiSink) Emit(ctx context.Context, a Alert) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
