package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"smartmonitor/internal/strategies"
	"smartmonitor/pkg/utils"
)

// Notifier delivers one alert to a destination.
type Notifier interface {
	Notify(ctx context.Context, a strategies.Alert) error
}

// Multi delivers to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, a strategies.Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Format renders an alert as a short human readable message.
func Format(a strategies.Alert) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s\n", a.RuleKind, a.RuleName)
	fmt.Fprintf(&sb, "Address: %s\n", a.RuleAddress)
	mint := a.Mint
	if mint == "" && a.Event != nil {
		mint = a.Event.Mint.String()
	}
	if mint != "" {
		fmt.Fprintf(&sb, "Mint: %s\n", mint)
	}
	if a.Event != nil {
		side := "sell"
		if a.Event.IsBuy {
			side = "buy"
		}
		fmt.Fprintf(&sb, "Trade: %s by %s at %s\n", side, a.Event.User, utils.FormatUnix(a.Event.Timestamp))
	}
	fmt.Fprintf(&sb, "Price: %s SOL\n", a.Price.String())
	if a.ProfitPercentage != nil {
		fmt.Fprintf(&sb, "Profit: %s%%\n", a.ProfitPercentage.StringFixed(2))
	}
	fmt.Fprintf(&sb, "Reason: %s\n", a.TriggerReason)
	fmt.Fprintf(&sb, "https://solscan.io/tx/%s", a.Signature)
	return sb.String()
}

// LogNotifier writes the rendered alert through logrus.
type LogNotifier struct {
	Logger *log.Logger
}

func (n LogNotifier) Notify(_ context.Context, a strategies.Alert) error {
	logger := n.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	fields := log.Fields{
		"rule":      a.RuleName,
		"rule_kind": a.RuleKind,
		"signature": a.Signature,
	}
	if a.Event != nil {
		fields["age_seconds"] = utils.SecondsSince(a.Event.Timestamp, a.Timestamp)
	}
	logger.WithFields(fields).Info(Format(a))
	return nil
}
